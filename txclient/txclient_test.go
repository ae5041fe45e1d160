package txclient_test

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"xdao.co/xchain/codec"
	"xdao.co/xchain/model"
	"xdao.co/xchain/rpc"
	"xdao.co/xchain/schema"
	"xdao.co/xchain/txclient"
	"xdao.co/xchain/universal"
	"xdao.co/xchain/validatortest"
)

const (
	alice = "0x35B84d6848D16415177c64D64504663b998A6ab4"
	bob   = "eip155:97:0xD8634C39BBFd4033c0d3289C4515275102423681"
)

// digestSigner signs with sha256 so a verifier can check the payload.
func digestSigner(addr string) *model.UniversalSigner {
	s := universal.CreateUniversalSigner(universal.SignerOptions{
		Address: addr,
		Chain:   model.ChainEthereum,
		ChainID: model.EthereumMainnet,
		SignMessage: func(ctx context.Context, msg []byte) ([]byte, error) {
			sum := sha256.Sum256(msg)
			return sum[:], nil
		},
	})
	return &s
}

func verifyDigest(tx model.Transaction) error {
	sum := sha256.Sum256(codec.SigningPayload(tx))
	if !bytes.Equal(sum[:], tx.Signature) {
		return errors.New("bad signature")
	}
	return nil
}

func newClient(t *testing.T, opts ...validatortest.Option) (*txclient.Client, *validatortest.Server) {
	t.Helper()
	srv := validatortest.NewServer(t, opts...)
	return txclient.New(rpc.NewHTTP(srv.RPCURL), txclient.WithPollInterval(10*time.Millisecond)), srv
}

func ctxT(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestCreateUnsigned(t *testing.T) {
	c := txclient.New(nil)
	recipients := []string{"eip155:1:0x35B84d6848D16415177c64D64504663b998A6ab4", bob}
	data := []byte{1, 2, 3, 4, 5}

	tx, err := c.CreateUnsigned("INIT_DID", recipients, data)
	require.NoError(t, err)
	require.Equal(t, "INIT_DID", tx.Category)
	require.Equal(t, recipients, tx.Recipients)
	require.Equal(t, data, tx.Data)
	require.Equal(t, "0", tx.Fee)
	require.Zero(t, tx.Type)
	require.Empty(t, tx.Sender)
	require.Empty(t, tx.Signature)
	require.Len(t, tx.Salt, txclient.NonceSize)
	require.Len(t, tx.APIToken, txclient.NonceSize)
	require.False(t, tx.IsSigned())

	// Inputs are copied.
	recipients[0] = "changed"
	data[0] = 9
	require.NotEqual(t, "changed", tx.Recipients[0])
	require.EqualValues(t, 1, tx.Data[0])

	other, err := c.CreateUnsigned("INIT_DID", recipients, data)
	require.NoError(t, err)
	require.NotEqual(t, tx.Salt, other.Salt)
	require.NotEqual(t, tx.APIToken, other.APIToken)

	// Unsigned transactions survive the codec exactly.
	back, err := codec.DeserializeTx(codec.SerializeTx(tx))
	require.NoError(t, err)
	require.True(t, back.Equal(tx))

	_, err = c.CreateUnsigned("", nil, nil)
	require.True(t, model.IsKind(err, model.KindSerialization))
}

func TestCreateUnsigned_RandomFailure(t *testing.T) {
	c := txclient.New(nil, txclient.WithRandom(bytes.NewReader(make([]byte, 10))))
	_, err := c.CreateUnsigned("EMAIL", nil, nil)
	require.True(t, model.IsKind(err, model.KindInternal), "got %v", err)
}

func TestCreateUnsignedPayload(t *testing.T) {
	c := txclient.New(nil)
	tx, err := c.CreateUnsignedPayload(schema.CategoryEmail, []string{bob}, schema.Email{
		Subject: "hello",
		Body:    schema.EmailBody{Content: "hi", Format: schema.FormatText},
	})
	require.NoError(t, err)

	got, err := schema.DecodeAs[schema.Email](schema.DefaultRegistry(), tx.Category, tx.Data)
	require.NoError(t, err)
	require.Equal(t, "hello", got.Subject)

	_, err = c.CreateUnsignedPayload("NOPE", nil, struct{}{})
	require.ErrorIs(t, err, model.ErrUnsupportedCategory)
}

func TestSend_RoundTrip(t *testing.T) {
	c, srv := newClient(t, validatortest.WithVerifier(verifyDigest))
	ctx := ctxT(t)

	tx, err := c.CreateUnsigned("EMAIL", []string{bob}, []byte("payload"))
	require.NoError(t, err)
	hash, err := c.Send(ctx, tx, digestSigner(alice))
	require.NoError(t, err)
	require.NotEmpty(t, hash)

	// The caller's copy is untouched.
	require.Empty(t, tx.Sender)
	require.Empty(t, tx.Signature)

	rec, ok, err := c.GetByHash(ctx, hash)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, hash, rec.Hash)
	require.Equal(t, model.TxStatusAccepted, rec.Status)
	require.Equal(t, "eip155:1:"+alice, rec.Tx.Sender)
	require.Equal(t, tx.Salt, rec.Tx.Salt)
	require.Equal(t, codec.TxHash(rec.Tx), hash)

	require.Len(t, srv.Blocks(), 1)

	status, err := c.Status(ctx, hash)
	require.NoError(t, err)
	require.Equal(t, model.TxStatusAccepted, status)

	got, err := c.WaitAccepted(ctx, hash)
	require.NoError(t, err)
	require.Equal(t, hash, got.Hash)
}

func TestSend_PushSignerConvertsHex(t *testing.T) {
	c, _ := newClient(t)
	ctx := ctxT(t)

	s := digestSigner(alice)
	s.Chain = model.ChainPush
	s.ChainID = model.PushDevnet

	tx, err := c.CreateUnsigned("EMAIL", []string{bob}, nil)
	require.NoError(t, err)
	hash, err := c.Send(ctx, tx, s)
	require.NoError(t, err)

	rec, ok, err := c.GetByHash(ctx, hash)
	require.NoError(t, err)
	require.True(t, ok)
	require.Regexp(t, `^push:devnet:push1`, rec.Tx.Sender)
}

func TestSend_SignerFailures(t *testing.T) {
	c, srv := newClient(t)
	ctx := ctxT(t)
	tx, err := c.CreateUnsigned("EMAIL", []string{bob}, nil)
	require.NoError(t, err)

	boom := errors.New("user rejected")
	failing := digestSigner(alice)
	failing.SignMessage = func(context.Context, []byte) ([]byte, error) { return nil, boom }

	empty := digestSigner(alice)
	empty.SignMessage = func(context.Context, []byte) ([]byte, error) { return nil, nil }

	noFunc := digestSigner(alice)
	noFunc.SignMessage = nil

	noAddr := digestSigner("")

	cases := []struct {
		name   string
		signer *model.UniversalSigner
		code   string
	}{
		{"nil", nil, "no-signer"},
		{"rejects", failing, "sign-failed"},
		{"empty", empty, "empty-signature"},
		{"no-func", noFunc, "no-sign-func"},
		{"no-address", noAddr, "no-address"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := c.Send(ctx, tx, tc.signer)
			require.True(t, model.IsKind(err, model.KindSigner), "got %v", err)
			require.Equal(t, tc.code, model.CodeOf(err))
		})
	}

	_, err = c.Send(ctx, tx, failing)
	require.ErrorIs(t, err, boom)
	require.Empty(t, srv.Blocks(), "nothing must reach the network")
}

func TestSend_AlreadySigned(t *testing.T) {
	c := txclient.New(nil)
	tx := validatortest.SignedTx(1, "EMAIL")
	_, err := c.Send(context.Background(), tx, digestSigner(alice))
	require.Equal(t, "already-signed", model.CodeOf(err))
}

func TestSend_FallbackSigner(t *testing.T) {
	srv := validatortest.NewServer(t, validatortest.WithVerifier(verifyDigest))
	c := txclient.New(rpc.NewHTTP(srv.RPCURL), txclient.WithFallbackSigner(digestSigner(alice)))

	tx, err := c.CreateUnsigned("EMAIL", []string{bob}, nil)
	require.NoError(t, err)
	_, err = c.Send(ctxT(t), tx, nil)
	require.NoError(t, err)
}

func TestSend_ValidatorRefusal(t *testing.T) {
	c, _ := newClient(t, validatortest.WithVerifier(func(model.Transaction) error { return errors.New("quota") }))
	tx, err := c.CreateUnsigned("EMAIL", []string{bob}, nil)
	require.NoError(t, err)

	_, err = c.Send(ctxT(t), tx, digestSigner(alice))
	require.ErrorIs(t, err, model.ErrTxRejected)
}

func TestSend_Unreachable(t *testing.T) {
	srv := validatortest.NewServer(t)
	url := srv.RPCURL
	srv.HTTP.Close()

	c := txclient.New(rpc.NewHTTP(url))
	tx, err := c.CreateUnsigned("EMAIL", []string{bob}, nil)
	require.NoError(t, err)
	_, err = c.Send(ctxT(t), tx, digestSigner(alice))
	require.True(t, model.IsKind(err, model.KindNetwork), "got %v", err)
}

func TestSend_FailoverAfterDeliveredSubmission(t *testing.T) {
	srv := validatortest.NewServer(t, validatortest.WithVerifier(verifyDigest))
	// The first endpoint hands the request to the node, then fails.
	flaky := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		srv.Handler().ServeHTTP(httptest.NewRecorder(), r)
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer flaky.Close()

	caller := rpc.Multi{Callers: []rpc.Caller{
		rpc.NewHTTP(flaky.URL + validatortest.RPCPath),
		rpc.NewHTTP(srv.RPCURL),
	}}
	c := txclient.New(caller)
	ctx := ctxT(t)

	tx, err := c.CreateUnsigned("EMAIL", []string{bob}, []byte("once"))
	require.NoError(t, err)
	hash, err := c.Send(ctx, tx, digestSigner(alice))
	require.NoError(t, err)
	require.Len(t, srv.Blocks(), 1)

	rec, ok, err := c.GetByHash(ctx, hash)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, model.TxStatusAccepted, rec.Status)
	require.Equal(t, codec.TxHash(rec.Tx), hash)
}

// resendingCaller delivers every submission twice, as a failover would after
// losing the first response.
type resendingCaller struct{ rpc.Caller }

func (r resendingCaller) Call(ctx context.Context, method string, params []any, result any) error {
	if method == rpc.MethodSendTransaction {
		_ = r.Caller.Call(ctx, method, params, result)
	}
	return r.Caller.Call(ctx, method, params, result)
}

func TestSend_DuplicateRefusalOfAcceptedSubmission(t *testing.T) {
	srv := validatortest.NewServer(t)
	c := txclient.New(resendingCaller{rpc.NewHTTP(srv.RPCURL)})
	ctx := ctxT(t)

	tx, err := c.CreateUnsigned("EMAIL", []string{bob}, nil)
	require.NoError(t, err)
	hash, err := c.Send(ctx, tx, digestSigner(alice))
	require.NoError(t, err)
	require.NotEmpty(t, hash)
	require.Len(t, srv.Blocks(), 1)
}

func TestWaitAccepted_Rejected(t *testing.T) {
	c, _ := newClient(t, validatortest.WithVote(func(model.Transaction) model.Vote { return model.VoteRejected }))
	ctx := ctxT(t)
	tx, err := c.CreateUnsigned("EMAIL", []string{bob}, nil)
	require.NoError(t, err)

	hash, err := c.Send(ctx, tx, digestSigner(alice))
	require.NoError(t, err)

	rec, err := c.WaitAccepted(ctx, hash)
	require.ErrorIs(t, err, model.ErrTxRejected)
	require.True(t, model.IsKind(err, model.KindValidatorRejection))
	require.Equal(t, model.TxStatusRejected, rec.Status)
}

func TestWaitAccepted_UnknownTimesOut(t *testing.T) {
	c, _ := newClient(t)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.WaitAccepted(ctx, "ffff")
	require.True(t, model.IsKind(err, model.KindNetwork), "got %v", err)
}

func TestHistory(t *testing.T) {
	// Blocks are stamped in the past so a default DESC query from now sees them.
	c, _ := newClient(t, validatortest.WithClock(func() time.Time { return time.UnixMilli(1_000_000) }))
	ctx := ctxT(t)
	carol := "eip155:1:0x0000000000000000000000000000000000000003"

	var hashes []string
	for i, to := range []string{bob, carol, bob} {
		category := "EMAIL"
		if i == 1 {
			category = "INIT_DID"
		}
		tx, err := c.CreateUnsigned(category, []string{to}, []byte{byte(i)})
		require.NoError(t, err)
		h, err := c.Send(ctx, tx, digestSigner(alice))
		require.NoError(t, err)
		hashes = append(hashes, h)
	}

	all, err := c.Get(ctx, rpc.Query{})
	require.NoError(t, err)
	require.Len(t, all.Blocks, 3)
	require.Equal(t, hashes[2], all.Blocks[0].Transactions[0].Hash, "DESC by default")

	asc, err := c.Get(ctx, rpc.Query{Direction: model.Asc, PageSize: 2})
	require.NoError(t, err)
	require.Len(t, asc.Blocks, 2)
	require.Equal(t, 2, asc.TotalPages)
	require.Equal(t, hashes[0], asc.Blocks[0].Transactions[0].Hash)

	emails, err := c.Get(ctx, rpc.Query{Category: "EMAIL"})
	require.NoError(t, err)
	require.Len(t, emails.Blocks, 2)

	toBob, err := c.GetByRecipient(ctx, bob, rpc.Query{})
	require.NoError(t, err)
	require.Len(t, toBob.Blocks, 2)

	fromAlice, err := c.GetBySender(ctx, "eip155:1:"+alice, rpc.Query{})
	require.NoError(t, err)
	require.Len(t, fromAlice.Blocks, 3)

	none, err := c.GetBySender(ctx, "eip155:1:0x0000000000000000000000000000000000000009", rpc.Query{})
	require.NoError(t, err)
	require.Empty(t, none.Blocks)

	past, err := c.Get(ctx, rpc.Query{StartTime: time.UnixMilli(999_999)})
	require.NoError(t, err)
	require.Empty(t, past.Blocks, "DESC from the epoch sees nothing")

	_, ok, err := c.GetByHash(ctx, "00")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestHistory_InvalidQuery(t *testing.T) {
	c := txclient.New(nil)
	ctx := context.Background()

	for _, q := range []rpc.Query{
		{Direction: "SIDEWAYS"},
		{PageSize: -1},
		{Page: -3},
	} {
		_, err := c.Get(ctx, q)
		require.Equal(t, "invalid-query", model.CodeOf(err), "query %+v", q)
	}

	_, err := c.GetBySender(ctx, "", rpc.Query{})
	require.True(t, model.IsKind(err, model.KindAddressFormat))

	_, _, err = c.GetByHash(ctx, "")
	require.Error(t, err)
}

// Package txclient builds, queries and submits transactions against the
// validator network's JSON-RPC surface.
//
// A Client holds only immutable configuration and is safe for concurrent
// use. It never retains a signer past a single Send.
package txclient

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"xdao.co/xchain/address"
	"xdao.co/xchain/codec"
	"xdao.co/xchain/internal/tracing"
	"xdao.co/xchain/model"
	"xdao.co/xchain/rpc"
	"xdao.co/xchain/schema"
)

const (
	// NonceSize is the length of the random salt and api token.
	NonceSize = 32

	defaultPollInterval = 500 * time.Millisecond
	tracerName          = "xdao.co/xchain/txclient"
)

// Client talks to one validator endpoint (or a failover set via rpc.Multi).
type Client struct {
	caller   rpc.Caller
	log      *logrus.Entry
	random   io.Reader
	registry *schema.Registry
	fallback *model.UniversalSigner
	tracer   trace.Tracer
	poll     time.Duration
	now      func() time.Time
}

type Option func(*Client)

func WithLogger(log *logrus.Entry) Option {
	return func(c *Client) {
		if log != nil {
			c.log = log
		}
	}
}

// WithRandom replaces the salt and api token source. It must be
// cryptographically secure outside of tests.
func WithRandom(r io.Reader) Option {
	return func(c *Client) {
		if r != nil {
			c.random = r
		}
	}
}

// WithRegistry sets the schema registry used by CreateUnsignedPayload.
func WithRegistry(r *schema.Registry) Option {
	return func(c *Client) {
		if r != nil {
			c.registry = r
		}
	}
}

// WithFallbackSigner sets the signer Send uses when it is given none, such
// as one backed by a connected wallet session.
func WithFallbackSigner(s *model.UniversalSigner) Option {
	return func(c *Client) { c.fallback = s }
}

func WithTracer(t trace.Tracer) Option {
	return func(c *Client) {
		if t != nil {
			c.tracer = t
		}
	}
}

// WithPollInterval sets how often WaitAccepted polls for a status.
func WithPollInterval(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.poll = d
		}
	}
}

// WithClock replaces time.Now for default query start times.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// New returns a Client issuing calls through caller.
func New(caller rpc.Caller, opts ...Option) *Client {
	c := &Client{
		caller:   caller,
		log:      logrus.NewEntry(logrus.StandardLogger()),
		random:   rand.Reader,
		registry: schema.DefaultRegistry(),
		tracer:   tracing.Tracer(tracerName),
		poll:     defaultPollInterval,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.WithField("component", "txclient")
	return c
}

// CreateUnsigned returns a fresh unsigned transaction. Recipients and data
// are copied; salt and api token are drawn once here and never again.
func (c *Client) CreateUnsigned(category string, recipients []string, data []byte) (model.Transaction, error) {
	if category == "" {
		return model.Transaction{}, model.SerializationError("empty-category", "transaction category is required", nil)
	}
	salt, err := c.nonce()
	if err != nil {
		return model.Transaction{}, err
	}
	token, err := c.nonce()
	if err != nil {
		return model.Transaction{}, err
	}
	return model.Transaction{
		Type:       0,
		Category:   category,
		Sender:     "",
		Recipients: slices.Clone(recipients),
		Data:       slices.Clone(data),
		Salt:       salt,
		APIToken:   token,
		Signature:  []byte{},
		Fee:        "0",
	}, nil
}

// CreateUnsignedPayload encodes payload with the category's schema and
// wraps it in an unsigned transaction.
func (c *Client) CreateUnsignedPayload(category string, recipients []string, payload any) (model.Transaction, error) {
	data, err := c.registry.Encode(category, payload)
	if err != nil {
		return model.Transaction{}, err
	}
	return c.CreateUnsigned(category, recipients, data)
}

func (c *Client) nonce() ([]byte, error) {
	b := make([]byte, NonceSize)
	if _, err := io.ReadFull(c.random, b); err != nil {
		return nil, model.WrapError(model.KindInternal, "random", "read random nonce", err)
	}
	return b, nil
}

// Send signs tx with signer and submits it, returning the transaction hash
// reported by the network. A nil signer falls back to the one configured
// with WithFallbackSigner. tx must be unsigned; the caller's copy is not
// modified.
func (c *Client) Send(ctx context.Context, tx model.Transaction, signer *model.UniversalSigner) (hash string, err error) {
	ctx, finish := tracing.Start(ctx, c.tracer, "txclient.Send",
		attribute.String("tx.category", tx.Category),
		attribute.Int("tx.recipients", len(tx.Recipients)),
	)
	defer func() { finish(err) }()

	signed, err := c.Sign(ctx, tx, signer)
	if err != nil {
		return "", err
	}
	if err := c.caller.Call(ctx, rpc.MethodSendTransaction, []any{codec.SerializeTxHex(signed)}, &hash); err != nil {
		err = asNetwork(err, "send transaction")
		found, ok := c.confirmSubmitted(ctx, signed, err)
		if !ok {
			return "", err
		}
		hash = found
	}
	if hash == "" {
		return "", model.NetworkError("empty-hash", "network returned an empty transaction hash", nil)
	}
	c.log.WithFields(logrus.Fields{
		"category": signed.Category,
		"sender":   signed.Sender,
		"hash":     hash,
	}).Info("transaction submitted")
	return hash, nil
}

// confirmSubmitted looks a submission up by hash after a failed send. A
// network error may hide an accepted submission, and a failover endpoint
// refuses a resend of it as a duplicate; either way the network already
// holds the transaction when the lookup finds it.
func (c *Client) confirmSubmitted(ctx context.Context, signed model.Transaction, sendErr error) (string, bool) {
	if ctx.Err() != nil {
		return "", false
	}
	if !model.IsKind(sendErr, model.KindNetwork) && !errors.Is(sendErr, model.ErrTxRejected) {
		return "", false
	}
	rec, ok, err := c.GetByHash(ctx, codec.TxHash(signed))
	if err != nil || !ok {
		return "", false
	}
	c.log.WithFields(logrus.Fields{
		"hash":  rec.Hash,
		"cause": sendErr.Error(),
	}).Warn("send failed but the network holds the transaction")
	return rec.Hash, true
}

// Sign attaches the signer's chain-agnostic address as sender, signs the
// resulting payload and returns the signed copy.
func (c *Client) Sign(ctx context.Context, tx model.Transaction, signer *model.UniversalSigner) (model.Transaction, error) {
	if signer == nil {
		signer = c.fallback
	}
	if signer == nil {
		return model.Transaction{}, model.SignerError("no-signer", "no signer supplied and no fallback configured", nil)
	}
	if signer.SignMessage == nil {
		return model.Transaction{}, model.SignerError("no-sign-func", "signer has no SignMessage function", nil)
	}
	if tx.Sender != "" || len(tx.Signature) > 0 {
		return model.Transaction{}, model.SignerError("already-signed", "transaction already carries a sender or signature", nil)
	}
	if tx.Category == "" {
		return model.Transaction{}, model.SerializationError("empty-category", "transaction category is required", nil)
	}
	sender, err := address.ToChainAgnostic(signer.UniversalAccount)
	if err != nil {
		return model.Transaction{}, err
	}
	if sender == "" {
		return model.Transaction{}, model.SignerError("no-address", "signer has no address", nil)
	}

	out := tx
	out.Recipients = slices.Clone(tx.Recipients)
	out.Sender = sender
	sig, err := signer.SignMessage(ctx, codec.SigningPayload(out))
	if err != nil {
		return model.Transaction{}, model.SignerError("sign-failed", "signer rejected the payload", err)
	}
	if len(sig) == 0 {
		return model.Transaction{}, model.SignerError("empty-signature", "signer returned an empty signature", nil)
	}
	out.Signature = slices.Clone(sig)
	return out, nil
}

// Get returns one page of transactions across all senders and recipients.
func (c *Client) Get(ctx context.Context, q rpc.Query) (model.BlockPage, error) {
	return c.history(ctx, rpc.MethodGetTransactions, "", q)
}

// GetBySender narrows Get to transactions sent by sender, a chain-agnostic
// address.
func (c *Client) GetBySender(ctx context.Context, sender string, q rpc.Query) (model.BlockPage, error) {
	return c.history(ctx, rpc.MethodGetTransactionsBySender, sender, q)
}

// GetByRecipient narrows Get to transactions addressed to recipient.
func (c *Client) GetByRecipient(ctx context.Context, recipient string, q rpc.Query) (model.BlockPage, error) {
	return c.history(ctx, rpc.MethodGetTransactionsByRecipient, recipient, q)
}

func (c *Client) history(ctx context.Context, method, who string, q rpc.Query) (page model.BlockPage, err error) {
	ctx, finish := tracing.Start(ctx, c.tracer, "txclient."+method,
		attribute.String("query.direction", string(q.Direction)),
		attribute.Int("query.page", q.Page),
	)
	defer func() { finish(err) }()

	r, err := q.Resolve(c.now)
	if err != nil {
		return model.BlockPage{}, err
	}
	params := []any{r.StartMs, string(r.Direction), r.PageSize, r.Page, r.Category}
	if method != rpc.MethodGetTransactions {
		if who == "" {
			return model.BlockPage{}, model.AddressFormatError("empty-address", "address filter is required")
		}
		params = append([]any{who}, params...)
	}
	var raw rpc.Page
	if err := c.caller.Call(ctx, method, params, &raw); err != nil {
		return model.BlockPage{}, asNetwork(err, method)
	}
	return raw.Decode()
}

// GetByHash looks up one transaction. ok is false when the network does
// not know the hash.
func (c *Client) GetByHash(ctx context.Context, hash string) (rec model.TxRecord, ok bool, err error) {
	ctx, finish := tracing.Start(ctx, c.tracer, "txclient.GetByHash", attribute.String("tx.hash", hash))
	defer func() { finish(err) }()

	if hash == "" {
		return model.TxRecord{}, false, model.SerializationError("empty-hash", "transaction hash is required", nil)
	}
	var raw rpc.Page
	if err := c.caller.Call(ctx, rpc.MethodGetTransactionByHash, []any{hash}, &raw); err != nil {
		return model.TxRecord{}, false, asNetwork(err, "get transaction")
	}
	page, err := raw.Decode()
	if err != nil {
		return model.TxRecord{}, false, err
	}
	for _, b := range page.Blocks {
		for _, t := range b.Transactions {
			if t.Hash == hash {
				return t, true, nil
			}
		}
	}
	return model.TxRecord{}, false, nil
}

// Status returns the network's status for hash, or TxStatusUnknown if the
// hash is not found yet.
func (c *Client) Status(ctx context.Context, hash string) (model.TxStatus, error) {
	rec, ok, err := c.GetByHash(ctx, hash)
	if err != nil || !ok {
		return model.TxStatusUnknown, err
	}
	return rec.Status, nil
}

// WaitAccepted polls until hash is ACCEPTED, the network marks it REJECTED
// (reported as a ValidatorRejection matching model.ErrTxRejected), or ctx
// ends.
func (c *Client) WaitAccepted(ctx context.Context, hash string) (model.TxRecord, error) {
	ticker := time.NewTicker(c.poll)
	defer ticker.Stop()
	for {
		rec, ok, err := c.GetByHash(ctx, hash)
		if err != nil {
			return model.TxRecord{}, err
		}
		if ok {
			switch rec.Status {
			case model.TxStatusAccepted:
				return rec, nil
			case model.TxStatusRejected:
				return rec, model.ValidatorRejection(model.ErrTxRejected.Code, fmt.Sprintf("transaction %s was rejected", hash))
			}
		}
		select {
		case <-ctx.Done():
			return model.TxRecord{}, model.NetworkError("timeout", "waiting for "+hash, ctx.Err())
		case <-ticker.C:
		}
	}
}

// asNetwork keeps classified errors and wraps anything else as a network
// failure.
func asNetwork(err error, what string) error {
	var me *model.Error
	if errors.As(err, &me) {
		return err
	}
	return model.NetworkError("rpc", what, err)
}

package validatortest

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"xdao.co/xchain/codec"
	"xdao.co/xchain/model"
	"xdao.co/xchain/rpc"
)

// NewCaller returns a Caller talking to n over the transport under test.
// Every call must use a fresh Node.
type NewCaller func(t *testing.T, n *Node) rpc.Caller

// SignedTx returns a deterministic signed transaction for tests. Distinct
// seeds give distinct hashes.
func SignedTx(seed int, category string) model.Transaction {
	salt := make([]byte, 32)
	for i := range salt {
		salt[i] = byte(seed + i)
	}
	return model.Transaction{
		Category:   category,
		Sender:     "eip155:1:0x35B84d6848D16415177c64D64504663b998A6ab4",
		Recipients: []string{fmt.Sprintf("eip155:1:0x%040x", seed)},
		Data:       []byte{1, 2, 3, byte(seed)},
		Salt:       salt,
		APIToken:   salt,
		Signature:  []byte{0xde, 0xad, byte(seed)},
		Fee:        "0",
	}
}

// RunCallerConformance checks that a transport carries the validator
// JSON-RPC surface faithfully, including error mapping.
func RunCallerConformance(t *testing.T, newCaller NewCaller) {
	t.Helper()

	ctx := func(t *testing.T) context.Context {
		c, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		t.Cleanup(cancel)
		return c
	}

	t.Run("SendAndFetchByHash", func(t *testing.T) {
		n := NewNode()
		caller := newCaller(t, n)
		tx := SignedTx(1, "EMAIL")

		var hash string
		if err := caller.Call(ctx(t), rpc.MethodSendTransaction, []any{codec.SerializeTxHex(tx)}, &hash); err != nil {
			t.Fatalf("send: %v", err)
		}
		if want := codec.TxHash(tx); hash != want {
			t.Fatalf("hash = %s, want %s", hash, want)
		}

		var page rpc.Page
		if err := caller.Call(ctx(t), rpc.MethodGetTransactionByHash, []any{hash}, &page); err != nil {
			t.Fatalf("get by hash: %v", err)
		}
		if len(page.Blocks) != 1 || len(page.Blocks[0].Transactions) != 1 {
			t.Fatalf("expected one block with one tx, got %+v", page)
		}
		got := page.Blocks[0].Transactions[0]
		if got.TxnHash != hash || got.Status != string(model.TxStatusAccepted) {
			t.Fatalf("unexpected tx result %+v", got)
		}
		decoded, err := codec.DeserializeTxHex(got.TxnData)
		if err != nil {
			t.Fatalf("decode txnData: %v", err)
		}
		if !decoded.Equal(tx) {
			t.Fatalf("txnData does not round trip")
		}
	})

	t.Run("MissingHashIsEmptyPage", func(t *testing.T) {
		caller := newCaller(t, NewNode())
		var page rpc.Page
		if err := caller.Call(ctx(t), rpc.MethodGetTransactionByHash, []any{"00"}, &page); err != nil {
			t.Fatalf("get by hash: %v", err)
		}
		if len(page.Blocks) != 0 {
			t.Fatalf("expected empty page, got %d blocks", len(page.Blocks))
		}
	})

	t.Run("UnsignedIsRejection", func(t *testing.T) {
		caller := newCaller(t, NewNode())
		tx := SignedTx(2, "EMAIL")
		tx.Signature = nil
		err := caller.Call(ctx(t), rpc.MethodSendTransaction, []any{codec.SerializeTxHex(tx)}, nil)
		if !errors.Is(err, model.ErrTxRejected) {
			t.Fatalf("expected ErrTxRejected, got %v", err)
		}
	})

	t.Run("UnknownMethodIsNetworkError", func(t *testing.T) {
		caller := newCaller(t, NewNode())
		err := caller.Call(ctx(t), "push_noSuchMethod", nil, nil)
		if !model.IsKind(err, model.KindNetwork) {
			t.Fatalf("expected Network error, got %v", err)
		}
		var rpcErr *rpc.Error
		if !errors.As(err, &rpcErr) || rpcErr.Code != rpc.CodeMethodNotFound {
			t.Fatalf("expected method-not-found cause, got %v", err)
		}
	})

	t.Run("Pagination", func(t *testing.T) {
		n := NewNode()
		caller := newCaller(t, n)
		for i := 0; i < 5; i++ {
			if _, err := n.Submit(SignedTx(10+i, "EMAIL")); err != nil {
				t.Fatalf("Submit: %v", err)
			}
		}
		var seen []uint64
		for page := 1; page <= 3; page++ {
			var p rpc.Page
			if err := caller.Call(ctx(t), rpc.MethodGetTransactions, []any{0, "ASC", 2, page, ""}, &p); err != nil {
				t.Fatalf("page %d: %v", page, err)
			}
			if p.TotalPages != 3 {
				t.Fatalf("totalPages = %d, want 3", p.TotalPages)
			}
			for _, b := range p.Blocks {
				seen = append(seen, b.Ts)
			}
		}
		if len(seen) != 5 {
			t.Fatalf("saw %d txs, want 5", len(seen))
		}
		for i := 1; i < len(seen); i++ {
			if seen[i] <= seen[i-1] {
				t.Fatalf("ASC order violated: %v", seen)
			}
		}
	})

	t.Run("InvalidParams", func(t *testing.T) {
		caller := newCaller(t, NewNode())
		err := caller.Call(ctx(t), rpc.MethodGetTransactions, []any{0, "SIDEWAYS", 10, 1}, nil)
		var rpcErr *rpc.Error
		if !errors.As(err, &rpcErr) || rpcErr.Code != rpc.CodeInvalidParams {
			t.Fatalf("expected invalid-params, got %v", err)
		}
	})
}

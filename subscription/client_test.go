package subscription_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"xdao.co/xchain/model"
	"xdao.co/xchain/subscription"
	"xdao.co/xchain/validatortest"
)

const waitFor = 2 * time.Second

// collector records blocks from one callback.
type collector struct {
	mu     sync.Mutex
	blocks []model.Block
	ch     chan model.Block
}

func newCollector() *collector {
	return &collector{ch: make(chan model.Block, 16)}
}

func (c *collector) cb(blk model.Block) {
	c.mu.Lock()
	c.blocks = append(c.blocks, blk)
	c.mu.Unlock()
	c.ch <- blk
}

func (c *collector) next(t *testing.T) model.Block {
	t.Helper()
	select {
	case blk := <-c.ch:
		return blk
	case <-time.After(waitFor):
		t.Fatalf("no block delivered")
		return model.Block{}
	}
}

func (c *collector) none(t *testing.T) {
	t.Helper()
	select {
	case blk := <-c.ch:
		t.Fatalf("unexpected block at %d", blk.Timestamp)
	case <-time.After(100 * time.Millisecond):
	}
}

func ctxT(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func connect(t *testing.T, srv *validatortest.Server, opts ...subscription.Option) *subscription.Client {
	t.Helper()
	c := subscription.New(srv.WSURL, opts...)
	require.NoError(t, c.Connect(ctxT(t)))
	t.Cleanup(func() { _ = c.Disconnect() })
	return c
}

func TestSubscribe_DeliversAndUnsubscribes(t *testing.T) {
	srv := validatortest.NewServer(t)
	c := connect(t, srv)
	require.True(t, c.IsConnected())
	require.Equal(t, subscription.StateReady, c.State())
	ctx := ctxT(t)

	col := newCollector()
	sub, err := c.Subscribe(ctx, col.cb)
	require.NoError(t, err)
	require.NotEmpty(t, sub.ID)
	require.Equal(t, []model.Filter{model.WildcardFilter()}, sub.Filters)
	require.Equal(t, []model.Subscription{sub}, c.Subscriptions())

	tx := validatortest.SignedTx(1, "EMAIL")
	_, err = srv.Submit(tx)
	require.NoError(t, err)

	blk := col.next(t)
	require.True(t, blk.Equal(srv.Blocks()[0]))
	require.True(t, blk.Transactions[0].Tx.Equal(tx))

	require.NoError(t, c.Unsubscribe(ctx, sub.ID))
	require.Empty(t, c.Subscriptions())
	require.Equal(t, 0, srv.ActiveSubscriptions())

	_, err = srv.Submit(validatortest.SignedTx(2, "EMAIL"))
	require.NoError(t, err)
	col.none(t)

	err = c.Unsubscribe(ctx, sub.ID)
	require.Equal(t, "unknown-subscription", model.CodeOf(err))
}

func TestSubscribe_RoutesBySubscriptionID(t *testing.T) {
	srv := validatortest.NewServer(t)
	c := connect(t, srv)
	ctx := ctxT(t)

	emails, dids := newCollector(), newCollector()
	_, err := c.Subscribe(ctx, emails.cb, model.Filter{Type: model.FilterCategory, Value: []string{"EMAIL"}})
	require.NoError(t, err)
	_, err = c.Subscribe(ctx, dids.cb, model.Filter{Type: model.FilterCategory, Value: []string{"INIT_DID"}})
	require.NoError(t, err)

	_, err = srv.Submit(validatortest.SignedTx(1, "EMAIL"))
	require.NoError(t, err)
	require.Equal(t, "EMAIL", emails.next(t).Transactions[0].Tx.Category)
	dids.none(t)

	_, err = srv.Submit(validatortest.SignedTx(2, "INIT_DID"))
	require.NoError(t, err)
	require.Equal(t, "INIT_DID", dids.next(t).Transactions[0].Tx.Category)
	emails.none(t)
}

func TestSubscribe_BroadcastFiltersLocally(t *testing.T) {
	srv := validatortest.NewServer(t, validatortest.WithBroadcast())
	c := connect(t, srv)
	ctx := ctxT(t)

	all, dids := newCollector(), newCollector()
	_, err := c.Subscribe(ctx, all.cb)
	require.NoError(t, err)
	_, err = c.Subscribe(ctx, dids.cb, model.Filter{Type: model.FilterCategory, Value: []string{"INIT_DID"}})
	require.NoError(t, err)

	_, err = srv.Submit(validatortest.SignedTx(1, "EMAIL"))
	require.NoError(t, err)
	all.next(t)
	dids.none(t)

	_, err = srv.Submit(validatortest.SignedTx(2, "INIT_DID"))
	require.NoError(t, err)
	all.next(t)
	dids.next(t)
}

func TestConnect_HandshakeRejected(t *testing.T) {
	srv := validatortest.NewServer(t)
	c := subscription.New(srv.WSURL, subscription.WithClientID(""))

	err := c.Connect(ctxT(t))
	require.True(t, model.IsKind(err, model.KindSubscriptionProtocol), "got %v", err)
	require.Equal(t, "handshake-rejected", model.CodeOf(err))
	require.Contains(t, err.Error(), "invalid clientId")
	require.Equal(t, subscription.StateDisconnected, c.State())
	require.False(t, c.IsConnected())
}

func TestConnect_Unreachable(t *testing.T) {
	srv := validatortest.NewServer(t)
	url := srv.WSURL
	srv.HTTP.Close()

	c := subscription.New(url)
	err := c.Connect(ctxT(t))
	require.True(t, model.IsKind(err, model.KindNetwork), "got %v", err)
	require.Equal(t, "unreachable", model.CodeOf(err))
	require.Equal(t, subscription.StateDisconnected, c.State())
}

func TestNotConnected(t *testing.T) {
	c := subscription.New("ws://127.0.0.1:1/ws")
	_, err := c.Subscribe(context.Background(), func(model.Block) {})
	require.ErrorIs(t, err, model.ErrNotConnected)

	_, err = c.Subscribe(context.Background(), nil)
	require.Equal(t, "nil-callback", model.CodeOf(err))

	_, err = c.Subscribe(context.Background(), func(model.Block) {}, model.Filter{Type: model.FilterFrom})
	require.Equal(t, "bad-filter", model.CodeOf(err))

	require.NoError(t, c.Disconnect())
}

func TestReconnect_DoesNotRestoreSubscriptions(t *testing.T) {
	srv := validatortest.NewServer(t)
	c := connect(t, srv)
	ctx := ctxT(t)

	col := newCollector()
	sub, err := c.Subscribe(ctx, col.cb)
	require.NoError(t, err)

	require.NoError(t, c.Disconnect())
	require.False(t, c.IsConnected())
	require.Equal(t, []model.Subscription{sub}, c.Subscriptions(), "bookkeeping survives disconnect")
	require.NoError(t, c.Disconnect())

	_, err = c.Subscribe(ctx, col.cb)
	require.ErrorIs(t, err, model.ErrNotConnected)

	require.NoError(t, c.Connect(ctx))
	require.NoError(t, c.Connect(ctx), "connect when ready is a no-op")
	require.Empty(t, c.Subscriptions())
	require.Eventually(t, func() bool { return srv.ActiveSubscriptions() == 0 }, waitFor, 10*time.Millisecond)

	_, err = srv.Submit(validatortest.SignedTx(1, "EMAIL"))
	require.NoError(t, err)
	col.none(t)
}

func TestServerDrop(t *testing.T) {
	srv := validatortest.NewServer(t)
	c := connect(t, srv)

	srv.DropConnections()
	require.Eventually(t, func() bool { return c.State() == subscription.StateDisconnected }, waitFor, 10*time.Millisecond)

	_, err := c.Subscribe(ctxT(t), func(model.Block) {})
	require.ErrorIs(t, err, model.ErrNotConnected)

	require.NoError(t, c.Connect(ctxT(t)))
	require.True(t, c.IsConnected())
}

func TestLateAckIsDroppedAndReleased(t *testing.T) {
	srv := validatortest.NewServer(t, validatortest.WithAckDelay(200*time.Millisecond))
	c := connect(t, srv)

	short, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.Subscribe(short, func(model.Block) {})
	require.Equal(t, "timeout", model.CodeOf(err))
	require.True(t, errors.Is(err, context.DeadlineExceeded))

	// The next SUBSCRIBE must get its own ack, not the late one.
	col := newCollector()
	sub, err := c.Subscribe(ctxT(t), col.cb)
	require.NoError(t, err)
	require.Equal(t, []model.Subscription{sub}, c.Subscriptions())

	// The orphaned server-side subscription is released.
	require.Eventually(t, func() bool { return srv.ActiveSubscriptions() == 1 }, waitFor, 10*time.Millisecond)

	_, err = srv.Submit(validatortest.SignedTx(1, "EMAIL"))
	require.NoError(t, err)
	col.next(t)
	col.none(t)
}

func TestCallbackMayCallBack(t *testing.T) {
	srv := validatortest.NewServer(t)
	c := connect(t, srv)
	ctx := ctxT(t)

	ids := make(chan string, 1)
	done := make(chan error, 1)
	sub, err := c.Subscribe(ctx, func(model.Block) {
		done <- c.Unsubscribe(ctx, <-ids)
	})
	require.NoError(t, err)
	ids <- sub.ID

	_, err = srv.Submit(validatortest.SignedTx(1, "EMAIL"))
	require.NoError(t, err)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(waitFor):
		t.Fatalf("callback did not finish")
	}
	require.Empty(t, c.Subscriptions())
}

func TestMalformedPushIsIgnored(t *testing.T) {
	srv := validatortest.NewServer(t)
	c := connect(t, srv)

	col := newCollector()
	_, err := c.Subscribe(ctxT(t), col.cb)
	require.NoError(t, err)

	bad, err := subscription.NewEnvelope(subscription.TypeBlock, subscription.BlockData{Block: "zz"}, time.Now())
	require.NoError(t, err)
	srv.Send(bad)
	unsolicited, err := subscription.NewEnvelope(subscription.TypeUnsubscribeAck, subscription.AckData{Success: true}, time.Now())
	require.NoError(t, err)
	srv.Send(unsolicited)

	_, err = srv.Submit(validatortest.SignedTx(1, "EMAIL"))
	require.NoError(t, err)
	col.next(t)
	require.True(t, c.IsConnected())
}

func TestPanickingCallbackDoesNotStopDelivery(t *testing.T) {
	srv := validatortest.NewServer(t)
	c := connect(t, srv)
	ctx := ctxT(t)

	_, err := c.Subscribe(ctx, func(model.Block) { panic("boom") })
	require.NoError(t, err)
	col := newCollector()
	_, err = c.Subscribe(ctx, col.cb)
	require.NoError(t, err)

	_, err = srv.Submit(validatortest.SignedTx(1, "EMAIL"))
	require.NoError(t, err)
	col.next(t)
}

func TestCallbackMayCallBackWhilePushesQueue(t *testing.T) {
	srv := validatortest.NewServer(t)
	c := connect(t, srv, subscription.WithDeliveryBuffer(1))
	ctx := ctxT(t)

	gate := make(chan string)
	done := make(chan error, 1)
	var once sync.Once
	sub, err := c.Subscribe(ctx, func(model.Block) {
		once.Do(func() { done <- c.Unsubscribe(ctx, <-gate) })
	})
	require.NoError(t, err)

	// The first callback is held while more pushes arrive behind it.
	for i := 1; i <= 4; i++ {
		_, err = srv.Submit(validatortest.SignedTx(i, "EMAIL"))
		require.NoError(t, err)
	}
	gate <- sub.ID

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(waitFor):
		t.Fatalf("unsubscribe from callback did not return")
	}
	require.Empty(t, c.Subscriptions())
	require.Equal(t, 0, srv.ActiveSubscriptions())
	require.True(t, c.IsConnected())
}

func TestPushDeliveredWhileSubscribePending(t *testing.T) {
	srv := validatortest.NewServer(t, validatortest.WithAckDelay(300*time.Millisecond))
	c := connect(t, srv)
	ctx := ctxT(t)

	col := newCollector()
	_, err := c.Subscribe(ctx, col.cb)
	require.NoError(t, err)

	returned := make(chan error, 1)
	go func() {
		_, err := c.Subscribe(ctx, func(model.Block) {})
		returned <- err
	}()
	// Let the SUBSCRIBE reach the node, whose ack is held for 300ms.
	time.Sleep(50 * time.Millisecond)

	_, err = srv.Submit(validatortest.SignedTx(1, "EMAIL"))
	require.NoError(t, err)
	col.next(t)
	select {
	case err := <-returned:
		t.Fatalf("subscribe returned before the push was delivered: %v", err)
	default:
	}

	select {
	case err := <-returned:
		require.NoError(t, err)
	case <-time.After(waitFor):
		t.Fatalf("pending subscribe did not return")
	}
}

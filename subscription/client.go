// Package subscription maintains a websocket session with the validator
// network and dispatches pushed blocks to subscription callbacks.
//
// A session is: dial, HANDSHAKE / HANDSHAKE_ACK, then any number of
// SUBSCRIBE / UNSUBSCRIBE exchanges while BLOCK pushes arrive. Acks carry no
// request id, so each ack type is matched to its oldest outstanding request.
//
// Reconnecting does not restore subscriptions. After Disconnect (or a dropped
// connection) the local bookkeeping is kept so callers can inspect it, and it
// is discarded by the next successful Connect; callers re-subscribe.
package subscription

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"xdao.co/xchain/codec"
	"xdao.co/xchain/model"
)

// Callback receives decoded blocks.
//
// Callbacks run on a single delivery goroutine per connection, in arrival
// order. They may call back into the Client.
type Callback func(blk model.Block)

type Option func(*Client)

func WithDialer(d Dialer) Option {
	return func(c *Client) {
		if d != nil {
			c.dialer = d
		}
	}
}

func WithLogger(log *logrus.Entry) Option {
	return func(c *Client) {
		if log != nil {
			c.log = log
		}
	}
}

// WithClientID fixes the handshake client id. By default a random UUID is
// generated per Client.
func WithClientID(id string) Option {
	return func(c *Client) { c.clientID = id }
}

// WithDeliveryBuffer sets the queue size at which a backlog of undelivered
// blocks is logged. The queue itself is unbounded so the reader never waits
// on a callback. Default 64.
func WithDeliveryBuffer(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.buffer = n
		}
	}
}

// Client is a subscription session. It is safe for concurrent use.
type Client struct {
	url      string
	dialer   Dialer
	log      *logrus.Entry
	clientID string
	buffer   int
	now      func() time.Time

	mu    sync.Mutex
	state State
	sess  *session
	subs  map[string]*entry
	order []string
}

type entry struct {
	sub model.Subscription
	cb  Callback
}

// call is one outstanding request waiting for its ack.
type call struct {
	ack       chan AckData
	abandoned bool

	// onAck runs under Client.mu on the read goroutine before the ack is
	// handed to the waiting caller.
	onAck func(AckData)
}

type delivery struct {
	blk   model.Block
	subID string
}

type session struct {
	conn Connection

	// writeMu orders pending registration and the write together, so the
	// pending queues are in wire order.
	writeMu sync.Mutex

	// pending is guarded by Client.mu.
	pending map[MessageType][]*call

	deliveries *deliveryQueue
	closing    chan struct{}
	done       chan struct{}

	closeOnce sync.Once
	closeErr  error
}

func newSession(conn Connection, buffer int) *session {
	return &session{
		conn:       conn,
		pending:    map[MessageType][]*call{},
		deliveries: newDeliveryQueue(buffer),
		closing:    make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// deliveryQueue is an unbounded FIFO between the read goroutine and the
// delivery goroutine. Callbacks block on acks that only the reader can
// resolve, so the reader must never wait for the queue to drain.
type deliveryQueue struct {
	mu     sync.Mutex
	items  []delivery
	closed bool
	ready  chan struct{}
}

func newDeliveryQueue(capacity int) *deliveryQueue {
	return &deliveryQueue{
		items: make([]delivery, 0, capacity),
		ready: make(chan struct{}, 1),
	}
}

// push appends d and returns the queue length.
func (q *deliveryQueue) push(d delivery) int {
	q.mu.Lock()
	q.items = append(q.items, d)
	n := len(q.items)
	q.mu.Unlock()
	q.signal()
	return n
}

// close lets pop return once the remaining items are drained.
func (q *deliveryQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.signal()
}

func (q *deliveryQueue) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// pop blocks for the oldest item. ok is false once the queue is closed and
// empty.
func (q *deliveryQueue) pop() (d delivery, ok bool) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			d = q.items[0]
			q.items[0] = delivery{}
			q.items = q.items[1:]
			q.mu.Unlock()
			return d, true
		}
		if q.closed {
			q.mu.Unlock()
			return delivery{}, false
		}
		q.mu.Unlock()
		<-q.ready
	}
}

func (s *session) send(b []byte) error {
	return s.conn.Send(b)
}

func (s *session) shutdown() error {
	s.closeOnce.Do(func() {
		close(s.closing)
		s.closeErr = s.conn.Close()
	})
	return s.closeErr
}

// New returns a disconnected Client for the websocket endpoint url.
func New(url string, opts ...Option) *Client {
	c := &Client{
		url:      url,
		dialer:   NewWebsocketDialer(nil),
		log:      logrus.NewEntry(logrus.StandardLogger()),
		clientID: uuid.NewString(),
		buffer:   64,
		now:      time.Now,
		subs:     map[string]*entry{},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.WithFields(logrus.Fields{"component": "subscription", "url": url, "clientId": c.clientID})
	return c
}

// ClientID returns the id sent in the handshake.
func (c *Client) ClientID() string { return c.clientID }

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsConnected reports whether a connection is open.
func (c *Client) IsConnected() bool {
	switch c.State() {
	case StateConnected, StateHandshaking, StateReady:
		return true
	default:
		return false
	}
}

// Connect dials the endpoint and performs the handshake. It returns nil
// immediately if the client is already ready.
//
// A dial failure is a KindNetwork error; a negative HANDSHAKE_ACK is a
// KindSubscriptionProtocol error with code "handshake-rejected". Either way the
// client ends up Disconnected.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case StateReady:
		c.mu.Unlock()
		return nil
	case StateDisconnected:
	default:
		c.mu.Unlock()
		return model.SubscriptionProtocolError("connect-in-progress", "subscription: connect already in progress")
	}
	c.state = StateConnecting
	c.mu.Unlock()

	conn, err := c.dialer.DialContext(ctx, c.url)
	if err != nil {
		c.mu.Lock()
		c.state = StateDisconnected
		c.mu.Unlock()
		return model.NetworkError("unreachable", "subscription: dial "+c.url, err)
	}

	sess := newSession(conn, c.buffer)
	c.mu.Lock()
	c.sess = sess
	c.state = StateConnected
	c.mu.Unlock()
	go c.readLoop(sess)
	go c.deliver(sess)

	c.mu.Lock()
	if c.sess == sess {
		c.state = StateHandshaking
	}
	c.mu.Unlock()

	ack, err := c.request(ctx, sess, TypeHandshake, HandshakeData{ClientID: c.clientID, Timestamp: c.now().UnixMilli()}, nil)
	if err != nil {
		c.teardown(sess)
		return err
	}
	if !ack.Success {
		c.teardown(sess)
		c.log.WithField("error", ack.Error).Warn("handshake rejected")
		return model.SubscriptionProtocolError("handshake-rejected", "subscription: handshake rejected: "+ack.Error)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess != sess {
		return model.NetworkError("connection-closed", "subscription: connection closed during handshake", nil)
	}
	c.state = StateReady
	if len(c.subs) > 0 {
		c.log.WithField("count", len(c.subs)).Info("discarding subscriptions from previous connection")
		c.subs = map[string]*entry{}
		c.order = nil
	}
	c.log.Info("connected")
	return nil
}

// Disconnect closes the connection. Subscription bookkeeping is kept until the
// next Connect. Disconnecting a disconnected client is a no-op.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	sess := c.sess
	c.sess = nil
	c.state = StateDisconnected
	c.mu.Unlock()
	if sess == nil {
		return nil
	}
	err := sess.shutdown()
	<-sess.done
	c.log.Info("disconnected")
	return err
}

func (c *Client) teardown(sess *session) {
	c.mu.Lock()
	if c.sess == sess {
		c.sess = nil
		c.state = StateDisconnected
	}
	c.mu.Unlock()
	_ = sess.shutdown()
	<-sess.done
}

// Subscribe registers cb for blocks matching any of filters. No filters means
// a single WILDCARD filter.
//
// The callback is registered when the positive SUBSCRIBE_ACK is read, before
// any later push is dispatched.
func (c *Client) Subscribe(ctx context.Context, cb Callback, filters ...model.Filter) (model.Subscription, error) {
	if cb == nil {
		return model.Subscription{}, model.SubscriptionProtocolError("nil-callback", "subscription: callback is required")
	}
	if len(filters) == 0 {
		filters = []model.Filter{model.WildcardFilter()}
	}
	for i, f := range filters {
		if !ValidFilter(f) {
			return model.Subscription{}, model.SubscriptionProtocolError("bad-filter", fmt.Sprintf("subscription: filter %d (%s) is malformed", i, f.Type))
		}
	}
	filters = slices.Clone(filters)

	sess, err := c.ready()
	if err != nil {
		return model.Subscription{}, err
	}

	var sub model.Subscription
	ack, err := c.request(ctx, sess, TypeSubscribe, SubscribeData{Filters: filters}, func(ack AckData) {
		if !ack.Success || ack.SubscriptionID == "" {
			return
		}
		sub = model.Subscription{ID: ack.SubscriptionID, Filters: filters}
		if _, exists := c.subs[sub.ID]; !exists {
			c.order = append(c.order, sub.ID)
		}
		c.subs[sub.ID] = &entry{sub: sub, cb: cb}
	})
	if err != nil {
		return model.Subscription{}, err
	}
	if !ack.Success {
		return model.Subscription{}, model.SubscriptionProtocolError("subscribe-rejected", "subscription: subscribe rejected: "+ack.Error)
	}
	if ack.SubscriptionID == "" {
		return model.Subscription{}, model.SubscriptionProtocolError("missing-subscription-id", "subscription: SUBSCRIBE_ACK without subscriptionId")
	}
	c.log.WithField("subscriptionId", sub.ID).Debug("subscribed")
	return sub, nil
}

// Unsubscribe removes a subscription once the server acknowledges it. A
// negative ack leaves the registration in place.
func (c *Client) Unsubscribe(ctx context.Context, id string) error {
	c.mu.Lock()
	_, known := c.subs[id]
	c.mu.Unlock()
	if !known {
		return model.SubscriptionProtocolError("unknown-subscription", fmt.Sprintf("subscription: unknown subscription %q", id))
	}

	sess, err := c.ready()
	if err != nil {
		return err
	}
	ack, err := c.request(ctx, sess, TypeUnsubscribe, UnsubscribeData{SubscriptionID: id}, func(ack AckData) {
		if ack.Success {
			c.remove(id)
		}
	})
	if err != nil {
		return err
	}
	if !ack.Success {
		return model.SubscriptionProtocolError("unsubscribe-rejected", "subscription: unsubscribe rejected: "+ack.Error)
	}
	c.log.WithField("subscriptionId", id).Debug("unsubscribed")
	return nil
}

// Subscriptions returns the registered subscriptions in creation order.
func (c *Client) Subscriptions() []model.Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.Subscription, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.subs[id].sub)
	}
	return out
}

// remove must be called with c.mu held.
func (c *Client) remove(id string) {
	if _, ok := c.subs[id]; !ok {
		return
	}
	delete(c.subs, id)
	c.order = slices.DeleteFunc(c.order, func(s string) bool { return s == id })
}

func (c *Client) ready() (*session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateReady || c.sess == nil {
		return nil, model.SubscriptionProtocolError(model.ErrNotConnected.Code, "subscription: client is not connected")
	}
	return c.sess, nil
}

// request sends one message and waits for the matching ack.
//
// If ctx ends first the call is abandoned, not removed: its ack is still
// expected and is dropped on arrival, so it cannot be matched to a later
// request of the same type.
func (c *Client) request(ctx context.Context, sess *session, typ MessageType, data any, onAck func(AckData)) (AckData, error) {
	raw, err := c.encode(typ, data)
	if err != nil {
		return AckData{}, err
	}
	ackType := ackFor[typ]
	cl := &call{ack: make(chan AckData, 1), onAck: onAck}

	sess.writeMu.Lock()
	c.mu.Lock()
	sess.pending[ackType] = append(sess.pending[ackType], cl)
	c.mu.Unlock()
	err = sess.send(raw)
	if err != nil {
		c.mu.Lock()
		sess.pending[ackType] = slices.DeleteFunc(sess.pending[ackType], func(p *call) bool { return p == cl })
		c.mu.Unlock()
	}
	sess.writeMu.Unlock()
	if err != nil {
		return AckData{}, model.NetworkError("send-failed", fmt.Sprintf("subscription: send %s", typ), err)
	}

	select {
	case ack := <-cl.ack:
		return ack, nil
	case <-sess.done:
		select {
		case ack := <-cl.ack:
			return ack, nil
		default:
		}
		return AckData{}, model.NetworkError("connection-closed", fmt.Sprintf("subscription: connection closed before %s", ackType), nil)
	case <-ctx.Done():
		c.mu.Lock()
		delivered := len(cl.ack) > 0
		if !delivered {
			cl.abandoned = true
		}
		c.mu.Unlock()
		if delivered {
			return <-cl.ack, nil
		}
		return AckData{}, model.NetworkError("timeout", fmt.Sprintf("subscription: waiting for %s", ackType), ctx.Err())
	}
}

func (c *Client) encode(typ MessageType, data any) ([]byte, error) {
	env, err := NewEnvelope(typ, data, c.now())
	if err != nil {
		return nil, model.WrapError(model.KindInternal, "encode-message", fmt.Sprintf("subscription: encode %s", typ), err)
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return nil, model.WrapError(model.KindInternal, "encode-message", fmt.Sprintf("subscription: encode %s", typ), err)
	}
	return raw, nil
}

func (c *Client) readLoop(sess *session) {
	defer close(sess.done)
	defer sess.deliveries.close()
	for {
		msg, err := sess.conn.Receive()
		if err != nil {
			c.connectionLost(sess, err)
			return
		}
		c.handle(sess, msg)
	}
}

func (c *Client) connectionLost(sess *session, err error) {
	c.mu.Lock()
	current := c.sess == sess
	if current {
		c.sess = nil
		c.state = StateDisconnected
	}
	sess.pending = map[MessageType][]*call{}
	c.mu.Unlock()

	select {
	case <-sess.closing:
	default:
		c.log.WithError(err).Warn("connection lost")
	}
	_ = sess.shutdown()
}

func (c *Client) handle(sess *session, msg []byte) {
	var env Envelope
	if err := json.Unmarshal(msg, &env); err != nil {
		c.log.WithError(err).Warn("dropping undecodable message")
		return
	}

	switch env.Type {
	case TypeHandshakeAck, TypeSubscribeAck, TypeUnsubscribeAck:
		var ack AckData
		if err := json.Unmarshal(env.Data, &ack); err != nil {
			ack = AckData{Error: "malformed " + string(env.Type) + ": " + err.Error()}
		}
		c.resolve(sess, env.Type, ack)

	case TypeBlock:
		var data BlockData
		if err := json.Unmarshal(env.Data, &data); err != nil {
			c.log.WithError(err).Warn("dropping malformed BLOCK")
			return
		}
		blk, err := codec.DeserializeBlockHex(data.Block)
		if err != nil {
			c.log.WithError(err).Warn("dropping undecodable BLOCK")
			return
		}
		if n := sess.deliveries.push(delivery{blk: blk, subID: data.SubscriptionID}); n == c.buffer {
			c.log.WithField("queued", n).Warn("callbacks are falling behind")
		}

	default:
		c.log.WithField("type", env.Type).Debug("ignoring message")
	}
}

func (c *Client) resolve(sess *session, typ MessageType, ack AckData) {
	c.mu.Lock()
	q := sess.pending[typ]
	if len(q) == 0 {
		c.mu.Unlock()
		c.log.WithField("type", typ).Warn("dropping unsolicited ack")
		return
	}
	cl := q[0]
	sess.pending[typ] = q[1:]
	if !cl.abandoned {
		if cl.onAck != nil {
			cl.onAck(ack)
		}
		cl.ack <- ack
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	c.log.WithField("type", typ).Info("dropping late ack")
	if typ == TypeSubscribeAck && ack.Success && ack.SubscriptionID != "" {
		c.releaseOrphan(sess, ack.SubscriptionID)
	}
}

// releaseOrphan unsubscribes a subscription whose SUBSCRIBE was abandoned.
// Its ack is expected and dropped.
func (c *Client) releaseOrphan(sess *session, id string) {
	raw, err := c.encode(TypeUnsubscribe, UnsubscribeData{SubscriptionID: id})
	if err != nil {
		return
	}
	sess.writeMu.Lock()
	defer sess.writeMu.Unlock()
	c.mu.Lock()
	sess.pending[TypeUnsubscribeAck] = append(sess.pending[TypeUnsubscribeAck], &call{ack: make(chan AckData, 1), abandoned: true})
	c.mu.Unlock()
	if err := sess.send(raw); err != nil {
		c.log.WithError(err).WithField("subscriptionId", id).Warn("release orphaned subscription")
	}
}

func (c *Client) deliver(sess *session) {
	for {
		d, ok := sess.deliveries.pop()
		if !ok {
			return
		}
		c.dispatch(d)
	}
}

func (c *Client) dispatch(d delivery) {
	var targets []Callback
	c.mu.Lock()
	if d.subID != "" {
		if e, ok := c.subs[d.subID]; ok {
			targets = append(targets, e.cb)
		}
	} else {
		for _, id := range c.order {
			if e := c.subs[id]; Matches(e.sub.Filters, d.blk) {
				targets = append(targets, e.cb)
			}
		}
	}
	c.mu.Unlock()

	if len(targets) == 0 {
		c.log.WithField("subscriptionId", d.subID).Debug("no callback for BLOCK")
	}
	for _, cb := range targets {
		c.invoke(cb, d.blk)
	}
}

func (c *Client) invoke(cb Callback, blk model.Block) {
	defer func() {
		if r := recover(); r != nil {
			c.log.WithField("panic", r).Error("subscription callback panicked")
		}
	}()
	cb(blk)
}

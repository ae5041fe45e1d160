package validatortest

import (
	"encoding/hex"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"xdao.co/xchain/model"
	"xdao.co/xchain/subscription"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

// wsConn is one subscriber connection. Subscriptions are guarded by Node.mu.
type wsConn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex

	clientID string
	subs     map[string][]model.Filter
	order    []string
}

func (c *wsConn) write(env subscription.Envelope) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(env)
}

// ServeWS upgrades r and runs the subscription protocol until the peer
// disconnects.
func (n *Node) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		n.log.WithError(err).Warn("websocket upgrade")
		return
	}
	c := &wsConn{conn: conn, subs: map[string][]model.Filter{}}
	n.mu.Lock()
	n.conns[c] = struct{}{}
	n.mu.Unlock()

	defer func() {
		n.mu.Lock()
		delete(n.conns, c)
		n.mu.Unlock()
		_ = conn.Close()
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var env subscription.Envelope
		if err := json.Unmarshal(msg, &env); err != nil {
			n.log.WithError(err).Debug("ignoring malformed message")
			continue
		}
		n.handleWS(c, env)
	}
}

func (n *Node) handleWS(c *wsConn, env subscription.Envelope) {
	switch env.Type {
	case subscription.TypeHandshake:
		var data subscription.HandshakeData
		ack := subscription.AckData{Success: true}
		if err := json.Unmarshal(env.Data, &data); err != nil || data.ClientID == "" {
			ack = subscription.AckData{Error: "invalid clientId"}
		} else {
			n.mu.Lock()
			c.clientID = data.ClientID
			n.mu.Unlock()
		}
		n.reply(c, subscription.TypeHandshakeAck, ack)

	case subscription.TypeSubscribe:
		if n.ackDelay > 0 {
			time.Sleep(n.ackDelay)
		}
		var data subscription.SubscribeData
		if err := json.Unmarshal(env.Data, &data); err != nil {
			n.reply(c, subscription.TypeSubscribeAck, subscription.AckData{Error: "malformed SUBSCRIBE"})
			return
		}
		if len(data.Filters) == 0 {
			n.reply(c, subscription.TypeSubscribeAck, subscription.AckData{Error: "at least one filter is required"})
			return
		}
		for _, f := range data.Filters {
			if !subscription.ValidFilter(f) {
				n.reply(c, subscription.TypeSubscribeAck, subscription.AckData{Error: "invalid filter " + string(f.Type)})
				return
			}
		}
		n.mu.Lock()
		if c.clientID == "" {
			n.mu.Unlock()
			n.reply(c, subscription.TypeSubscribeAck, subscription.AckData{Error: "handshake required"})
			return
		}
		id := uuid.NewString()
		c.subs[id] = data.Filters
		c.order = append(c.order, id)
		n.mu.Unlock()
		n.reply(c, subscription.TypeSubscribeAck, subscription.AckData{Success: true, SubscriptionID: id})

	case subscription.TypeUnsubscribe:
		var data subscription.UnsubscribeData
		_ = json.Unmarshal(env.Data, &data)
		n.mu.Lock()
		_, ok := c.subs[data.SubscriptionID]
		if ok {
			delete(c.subs, data.SubscriptionID)
			for i, id := range c.order {
				if id == data.SubscriptionID {
					c.order = append(c.order[:i], c.order[i+1:]...)
					break
				}
			}
		}
		n.mu.Unlock()
		ack := subscription.AckData{Success: ok, SubscriptionID: data.SubscriptionID}
		if !ok {
			ack.Error = "unknown subscription"
		}
		n.reply(c, subscription.TypeUnsubscribeAck, ack)

	default:
		n.log.WithField("type", env.Type).Debug("ignoring message")
	}
}

func (n *Node) reply(c *wsConn, typ subscription.MessageType, ack subscription.AckData) {
	env, err := subscription.NewEnvelope(typ, ack, n.now())
	if err == nil {
		err = c.write(env)
	}
	if err != nil {
		n.log.WithError(err).WithField("type", typ).Debug("reply failed")
	}
}

type pushTarget struct {
	conn  *wsConn
	subID string
}

// pushTargets must be called with n.mu held.
func (n *Node) pushTargets(blk model.Block) []pushTarget {
	var out []pushTarget
	for c := range n.conns {
		for _, id := range c.order {
			if !subscription.Matches(c.subs[id], blk) {
				continue
			}
			if n.broadcast {
				out = append(out, pushTarget{conn: c})
				break
			}
			out = append(out, pushTarget{conn: c, subID: id})
		}
	}
	return out
}

func (n *Node) push(targets []pushTarget, sb *sealedBlock) {
	for _, t := range targets {
		data := subscription.BlockData{Block: hex.EncodeToString(sb.raw), SubscriptionID: t.subID}
		env, err := subscription.NewEnvelope(subscription.TypeBlock, data, n.now())
		if err == nil {
			err = t.conn.write(env)
		}
		if err != nil {
			n.log.WithError(err).WithFields(logrus.Fields{"subscriptionId": t.subID}).Debug("push failed")
		}
	}
}

// Send writes env to every open connection. Tests use it to inject
// arbitrary protocol messages.
func (n *Node) Send(env subscription.Envelope) {
	n.mu.Lock()
	conns := make([]*wsConn, 0, len(n.conns))
	for c := range n.conns {
		conns = append(conns, c)
	}
	n.mu.Unlock()
	for _, c := range conns {
		_ = c.write(env)
	}
}

// DropConnections closes every websocket connection from the server side.
func (n *Node) DropConnections() {
	n.mu.Lock()
	defer n.mu.Unlock()
	for c := range n.conns {
		_ = c.conn.Close()
	}
}

// Connections returns the number of open websocket connections.
func (n *Node) Connections() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.conns)
}

// ActiveSubscriptions returns the number of server-side subscriptions across
// all connections.
func (n *Node) ActiveSubscriptions() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	total := 0
	for c := range n.conns {
		total += len(c.subs)
	}
	return total
}

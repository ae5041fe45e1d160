package subscription

import (
	"encoding/json"
	"time"

	"xdao.co/xchain/model"
)

// MessageType is the envelope discriminator.
type MessageType string

const (
	TypeHandshake      MessageType = "HANDSHAKE"
	TypeHandshakeAck   MessageType = "HANDSHAKE_ACK"
	TypeSubscribe      MessageType = "SUBSCRIBE"
	TypeSubscribeAck   MessageType = "SUBSCRIBE_ACK"
	TypeUnsubscribe    MessageType = "UNSUBSCRIBE"
	TypeUnsubscribeAck MessageType = "UNSUBSCRIBE_ACK"
	TypeBlock          MessageType = "BLOCK"
)

// ackFor maps a request type to the ack type that answers it.
var ackFor = map[MessageType]MessageType{
	TypeHandshake:   TypeHandshakeAck,
	TypeSubscribe:   TypeSubscribeAck,
	TypeUnsubscribe: TypeUnsubscribeAck,
}

// Envelope is every message on the wire in both directions.
// Timestamp is milliseconds since epoch.
type Envelope struct {
	Type      MessageType     `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
}

// NewEnvelope marshals data into an envelope stamped with now.
func NewEnvelope(typ MessageType, data any, now time.Time) (Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Type: typ, Data: raw, Timestamp: now.UnixMilli()}, nil
}

type HandshakeData struct {
	ClientID  string `json:"clientId"`
	Timestamp int64  `json:"timestamp"`
}

// AckData is the payload of every *_ACK message.
type AckData struct {
	Success        bool   `json:"success"`
	SubscriptionID string `json:"subscriptionId,omitempty"`
	Error          string `json:"error,omitempty"`
}

type SubscribeData struct {
	Filters []model.Filter `json:"filters"`
}

type UnsubscribeData struct {
	SubscriptionID string `json:"subscriptionId"`
}

// BlockData is a BLOCK push. Block is the hex-encoded block wire bytes.
// SubscriptionID is set when the server routes the push to one subscription;
// when empty the push is offered to every local subscription whose filters
// match.
type BlockData struct {
	Block          string `json:"block"`
	SubscriptionID string `json:"subscriptionId,omitempty"`
}

package subscription

// State is the connection state of a Client.
//
//	Disconnected -> Connecting -> Connected -> Handshaking -> Ready -> Disconnected
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateHandshaking
	StateReady
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateHandshaking:
		return "handshaking"
	case StateReady:
		return "ready"
	default:
		return "unknown"
	}
}

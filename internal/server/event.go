package server

import "github.com/dcrodman/pongserver/internal/frame"

type EventType int

const (
	// MessageEvent carries a TEXT or BINARY frame.
	MessageEvent EventType = iota
	PingEvent
	PongEvent
	// DisconnectEvent is emitted exactly once per connection, after its slot
	// has been released.
	DisconnectEvent
	// ErrorEvent reports a protocol or transport problem. It only ends the
	// connection if followed by a DisconnectEvent.
	ErrorEvent
)

func (t EventType) String() string {
	switch t {
	case MessageEvent:
		return "message"
	case PingEvent:
		return "ping"
	case PongEvent:
		return "pong"
	case DisconnectEvent:
		return "disconnect"
	case ErrorEvent:
		return "error"
	default:
		return "unknown"
	}
}

// Event is something that happened on a registered connection. The current
// extra info of the connection is available through Registry.ExtraInfo.
type Event struct {
	Type  EventType
	Ref   Ref
	Frame *frame.Frame
	// Reason is set for DisconnectEvent.
	Reason string
	// Err is set for ErrorEvent.
	Err error
}

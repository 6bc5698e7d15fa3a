package realtime

import (
	"errors"
	"fmt"
)

// State is the lifecycle state of the broker connection.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateDisconnecting
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnecting:
		return "disconnecting"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// ErrConnectionLost is reported when an established connection ends without Disconnect.
var ErrConnectionLost = errors.New("realtime: connection lost")

// ProtocolError is a STOMP ERROR frame sent by the broker. GroupID is set when the
// broker refused a group subscription and is zero otherwise.
type ProtocolError struct {
	Message string
	Detail  string
	GroupID int64
}

func (e *ProtocolError) Error() string {
	if e.Detail == "" {
		return "stomp error: " + e.Message
	}
	return "stomp error: " + e.Message + ": " + e.Detail
}

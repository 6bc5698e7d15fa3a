package ws

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
)

const (
	wsKind       = "group"
	wsRoutingKey = "ws_events.groups"
)

var (
	errSlowConsumer   = errors.New("outbound buffer full")
	errServerShutdown = errors.New("server shutting down")
)

func newConnID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return ""
	}
	return hex.EncodeToString(buf)
}

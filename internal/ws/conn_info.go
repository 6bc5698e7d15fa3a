package ws

import (
	"time"

	"studygroup-chat/internal/observability"
)

// ConnInfo identifies a broker connection in events and logs.
type ConnInfo struct {
	ConnID      string
	UserID      int64
	Meta        observability.RequestMeta
	TraceID     string
	ConnectedAt time.Time
}

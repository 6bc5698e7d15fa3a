package telemetry

import (
	"context"
	"log"
	"strconv"
	"time"
)

type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
	Close() error
}

// AuditEmitter publishes chat audit records to the events exchange.
type AuditEmitter struct {
	publisher   Publisher
	routingKey  string
	service     string
	environment string
}

// AuditRecord is one auditable chat action.
type AuditRecord struct {
	Level     string
	Action    string
	Text      string
	RequestID string
	UserID    *int64
	GroupID   int64
	FileID    string
}

type AuditEnvelope struct {
	SchemaVersion int          `json:"schema_version"`
	EventType     string       `json:"event_type"`
	OccurredAt    string       `json:"occurred_at"`
	Service       string       `json:"service"`
	Environment   string       `json:"environment"`
	RequestID     string       `json:"request_id"`
	UserID        *int64       `json:"user_id,omitempty"`
	Payload       AuditPayload `json:"payload"`
}

type AuditPayload struct {
	Level   string `json:"level"`
	Action  string `json:"action"`
	Text    string `json:"text"`
	GroupID int64  `json:"group_id,omitempty"`
	FileID  string `json:"file_id,omitempty"`
}

func NewAuditEmitter(publisher Publisher, routingKey, service, environment string) *AuditEmitter {
	return &AuditEmitter{
		publisher:   publisher,
		routingKey:  routingKey,
		service:     service,
		environment: environment,
	}
}

// Emit logs rec and publishes it. A nil emitter drops the record.
func (e *AuditEmitter) Emit(ctx context.Context, rec AuditRecord) {
	if e == nil || e.publisher == nil {
		return
	}

	uid := "-"
	if rec.UserID != nil {
		uid = strconv.FormatInt(*rec.UserID, 10)
	}
	log.Printf("audit: level=%s action=%s group_id=%d request_id=%s user_id=%s text=%q",
		rec.Level, rec.Action, rec.GroupID, rec.RequestID, uid, rec.Text)

	envelope := AuditEnvelope{
		SchemaVersion: 2,
		EventType:     "chat_audit",
		OccurredAt:    time.Now().UTC().Format(time.RFC3339Nano),
		Service:       e.service,
		Environment:   e.environment,
		RequestID:     rec.RequestID,
		UserID:        rec.UserID,
		Payload: AuditPayload{
			Level:   rec.Level,
			Action:  rec.Action,
			Text:    rec.Text,
			GroupID: rec.GroupID,
			FileID:  rec.FileID,
		},
	}
	if err := e.publisher.Publish(ctx, e.routingKey, envelope); err != nil {
		log.Printf("audit publish failed action=%s err=%v", rec.Action, err)
	}
}

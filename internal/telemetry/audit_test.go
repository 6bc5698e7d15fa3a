package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturePublisher struct {
	routingKey string
	event      any
}

func (p *capturePublisher) Publish(_ context.Context, routingKey string, event any) error {
	p.routingKey = routingKey
	p.event = event
	return nil
}

func (p *capturePublisher) Close() error { return nil }

func TestAuditEmitterBuildsEnvelope(t *testing.T) {
	pub := &capturePublisher{}
	emitter := NewAuditEmitter(pub, "audit.chat", "studygroup-chat", "test")
	userID := int64(7)

	emitter.Emit(context.Background(), AuditRecord{
		Level:     "INFO",
		Action:    "file_upload",
		Text:      "Chat file uploaded",
		RequestID: "req-1",
		UserID:    &userID,
		GroupID:   12,
		FileID:    "f1",
	})

	require.Equal(t, "audit.chat", pub.routingKey)
	envelope, ok := pub.event.(AuditEnvelope)
	require.True(t, ok)
	assert.Equal(t, 2, envelope.SchemaVersion)
	assert.Equal(t, "chat_audit", envelope.EventType)
	assert.Equal(t, "studygroup-chat", envelope.Service)
	assert.Equal(t, "req-1", envelope.RequestID)
	require.NotNil(t, envelope.UserID)
	assert.Equal(t, int64(7), *envelope.UserID)
	assert.Equal(t, AuditPayload{Level: "INFO", Action: "file_upload", Text: "Chat file uploaded", GroupID: 12, FileID: "f1"}, envelope.Payload)
}

func TestAuditEmitterNilSafe(t *testing.T) {
	var emitter *AuditEmitter
	emitter.Emit(context.Background(), AuditRecord{Level: "INFO", Text: "ignored"})
}

func TestInitTracerDisabled(t *testing.T) {
	shutdown, err := InitTracer(context.Background(), "studygroup-chat", "")
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

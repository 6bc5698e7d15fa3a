package ws

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"studygroup-chat/internal/observability"
)

// TokenValidator resolves a bearer token to a user id.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (int64, error)
}

var upgrader = websocket.Upgrader{
	Subprotocols: []string{"v12.stomp"},
	CheckOrigin:  func(r *http.Request) bool { return true },
}

// BrokerHandler serves the STOMP broker endpoint.
type BrokerHandler struct {
	hub    *Hub
	chat   ChatStore
	out    Publisher
	tokens TokenValidator
	cfg    SessionConfig
}

// NewBrokerHandler constructs a BrokerHandler.
func NewBrokerHandler(hub *Hub, chat ChatStore, out Publisher, tokens TokenValidator, cfg SessionConfig) *BrokerHandler {
	return &BrokerHandler{hub: hub, chat: chat, out: out, tokens: tokens, cfg: cfg}
}

// Handle authenticates the upgrade request and serves STOMP frames until the
// connection ends.
func (h *BrokerHandler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("studygroup-chat/ws").Start(c.Request.Context(), "ws.handshake")
	c.Request = c.Request.WithContext(ctx)

	token := c.GetHeader("Authorization")
	if token == "" {
		token = c.Query("token")
		if token != "" {
			token = "Bearer " + token
		}
	}

	userID, err := h.validateToken(ctx, token)
	if err != nil {
		span.End()
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}
	span.SetAttributes(attribute.Int64("user.id", userID))

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		span.End()
		return
	}
	traceID := span.SpanContext().TraceID().String()
	span.End()

	info := ConnInfo{
		ConnID:      newConnID(),
		UserID:      userID,
		Meta:        observability.RequestMetaFrom(c.Request),
		TraceID:     traceID,
		ConnectedAt: time.Now(),
	}

	observability.IncWSActive(wsKind)
	observability.IncWSEvent(wsKind, "ws_connect")
	publishWSEvent(ctx, info, "ws_connect", "")

	session := newSession(conn, info, h.hub, h.chat, h.out, h.cfg)
	err = session.serve(ctx)

	observability.DecWSActive(wsKind)
	observability.IncWSEvent(wsKind, "ws_disconnect")
	reason := ""
	if err != nil {
		reason = err.Error()
	}
	publishWSEvent(ctx, info, "ws_disconnect", reason)
	if err != nil && !isNormalClose(err) {
		log.Printf("ws: session ended conn_id=%s user_id=%d err=%v", info.ConnID, userID, err)
		observability.IncWSEvent(wsKind, "ws_error")
		publishWSEvent(ctx, info, "ws_error", reason)
	}
}

func (h *BrokerHandler) validateToken(ctx context.Context, header string) (int64, error) {
	parts := strings.Split(header, " ")
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return h.tokens.ValidateToken(ctx, parts[1])
	}
	return 0, errors.New("invalid token")
}

func isNormalClose(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) ||
		errors.Is(err, errServerShutdown)
}

func publishWSEvent(ctx context.Context, info ConnInfo, event, reason string) {
	duration := int64(0)
	if event != "ws_connect" {
		duration = time.Since(info.ConnectedAt).Milliseconds()
	}
	_ = observability.PublishEvent(ctx, wsRoutingKey, observability.EventEnvelope{
		EventType: "ws_events",
		EventName: event,
		Payload: map[string]interface{}{
			"ws": map[string]interface{}{
				"kind":        wsKind,
				"event":       event,
				"conn_id":     info.ConnID,
				"duration_ms": duration,
				"reason":      reason,
			},
			"identity": map[string]interface{}{
				"user_id":   info.UserID,
				"device_id": info.Meta.DeviceID,
				"ip":        info.Meta.ClientIP,
			},
		},
	}, observability.BuildHeaders(info.Meta.RequestID, info.TraceID))
}

package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"studygroup-chat/internal/telemetry"
)

// BrokerStats exposes live subscription counts of the broker.
type BrokerStats interface {
	Groups() []int64
	Subscribers(groupID int64) int
}

type groupStats struct {
	GroupID     int64 `json:"groupId"`
	Subscribers int   `json:"subscribers"`
}

// RegisterDebugRoutes wires debug-only endpoints.
func RegisterDebugRoutes(router gin.IRouter, stats BrokerStats, emitter *telemetry.AuditEmitter, enabled bool) {
	if !enabled {
		return
	}

	router.GET("/debug/broker", func(c *gin.Context) {
		groups := stats.Groups()
		out := make([]groupStats, 0, len(groups))
		for _, id := range groups {
			out = append(out, groupStats{GroupID: id, Subscribers: stats.Subscribers(id)})
		}
		c.JSON(http.StatusOK, gin.H{"groups": out})
	})

	router.GET("/debug/audit-test", func(c *gin.Context) {
		if emitter == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit emitter not configured"})
			return
		}
		emitter.Emit(c.Request.Context(), telemetry.AuditRecord{
			Level:     "INFO",
			Action:    "audit_test",
			Text:      "audit test",
			RequestID: requestMeta(c).RequestID,
			UserID:    auditUserID(c),
		})
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}

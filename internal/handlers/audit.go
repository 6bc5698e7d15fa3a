package handlers

import (
	"github.com/gin-gonic/gin"

	"studygroup-chat/internal/observability"
)

const requestMetaKey = "request_meta"

// requestMeta caches the caller metadata so every audit record of one request
// shares the same request id.
func requestMeta(c *gin.Context) observability.RequestMeta {
	if val, ok := c.Get(requestMetaKey); ok {
		if meta, ok := val.(observability.RequestMeta); ok {
			return meta
		}
	}
	meta := observability.RequestMetaFrom(c.Request)
	c.Set(requestMetaKey, meta)
	return meta
}

func auditUserID(c *gin.Context) *int64 {
	userID := c.GetInt64("userID")
	if userID == 0 {
		return nil
	}
	return &userID
}

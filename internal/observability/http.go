package observability

import (
	"net"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// RequestMeta is the caller identity attached to events and audit records.
type RequestMeta struct {
	RequestID string
	DeviceID  string
	ClientIP  string
}

// RequestMetaFrom reads caller metadata from r. A request without an
// X-Request-ID header gets a fresh one.
func RequestMetaFrom(r *http.Request) RequestMeta {
	requestID := r.Header.Get("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	return RequestMeta{
		RequestID: requestID,
		DeviceID:  r.Header.Get("X-Device-ID"),
		ClientIP:  clientIP(r),
	}
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

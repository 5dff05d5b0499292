package observability

import (
	"net"
	"net/http"
	"strings"
)

// ConnectionIDHeader names the socket connection that issued a REST call, so
// broadcasts caused by it can skip that connection.
const ConnectionIDHeader = "X-Connection-Id"

const requestIDHeader = "X-Request-Id"

// ConnectionIDFromRequest returns the caller's socket connection id, or "".
func ConnectionIDFromRequest(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(ConnectionIDHeader))
}

// RequestIDFromRequest prefers the explicit request id and falls back to the
// socket connection id so handshake logs still correlate.
func RequestIDFromRequest(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get(requestIDHeader)); id != "" {
		return id
	}
	return ConnectionIDFromRequest(r)
}

// IPFromRequest resolves the client address behind at most one proxy hop.
func IPFromRequest(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if realIP := strings.TrimSpace(r.Header.Get("X-Real-Ip")); realIP != "" {
		return realIP
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

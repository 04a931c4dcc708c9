package metadata

import (
	"net"
	"net/http"
	"strings"

	"signupgate/pkg/requestcontext"
)

// ClientMetadata extracts client IP address and User-Agent from the request
// and adds them to the context for use by handlers and the gate.
// Proxy headers are only honoured when trustProxyHeaders is set.
// This middleware should be applied early in the chain.
func ClientMetadata(trustProxyHeaders bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := ClientIPFromRequest(r, trustProxyHeaders)
			ctx := requestcontext.WithClientMetadata(r.Context(), ip, r.Header.Get("User-Agent"))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClientIPFromRequest extracts the client IP from the request. With trustProxyHeaders
// the first X-Forwarded-For entry wins, then X-Real-IP; otherwise RemoteAddr is used.
// Returns an empty string when no address can be determined.
func ClientIPFromRequest(r *http.Request, trustProxyHeaders bool) string {
	if trustProxyHeaders {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
		if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
			return xri
		}
	}

	addr := r.RemoteAddr
	if addr == "" {
		return ""
	}
	// RemoteAddr is "ip:port" or "[ipv6]:port"
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}

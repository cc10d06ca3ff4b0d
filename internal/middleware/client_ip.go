package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"
)

// ClientIP stores the client address in the request context. With
// trustProxy the first X-Forwarded-For entry wins, then X-Real-IP, then the
// connection address. Without it proxy headers are ignored, since any
// client can set them.
//
// The stored value is a bare address without port. It is raw personal data
// and must be anonymized before it is stored or logged.
func ClientIP(trustProxy bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := ClientIPFromRequest(r, trustProxy)
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), clientIPKey, ip)))
		})
	}
}

// ClientIPFromRequest extracts the client address from r.
func ClientIPFromRequest(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := stripPort(strings.TrimSpace(first)); ip != "" {
				return ip
			}
		}
		if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
			return stripPort(xri)
		}
	}
	return stripPort(r.RemoteAddr)
}

// GetClientIP returns the address stored by ClientIP, or "".
func GetClientIP(ctx context.Context) string {
	ip, _ := ctx.Value(clientIPKey).(string)
	return ip
}

// stripPort removes a port from "host:port" and "[v6]:port" forms and
// leaves bare addresses alone.
func stripPort(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return strings.TrimSuffix(strings.TrimPrefix(addr, "["), "]")
}

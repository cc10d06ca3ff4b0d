package auth

import (
	"net/http"
	"strings"
)

// AccessKeyHeader carries admin API keys.
const AccessKeyHeader = "AccessKey"

// KeyFromRequest returns the API key from the AccessKey header, falling
// back to "Authorization: Bearer <key>".
func KeyFromRequest(r *http.Request) string {
	if key := strings.TrimSpace(r.Header.Get(AccessKeyHeader)); key != "" {
		return key
	}
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

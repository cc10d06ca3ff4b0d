// Package logging builds the service logger and masks secrets and
// personal data before they reach it.
package logging

import (
	"encoding/json"
	"fmt"
	"strings"
)

const redacted = "[REDACTED]"

// MaskHeader returns a loggable form of a header value.
//
// Secrets are fully redacted. Credentials keep their last four characters
// so operators can tell keys apart. Cookie headers keep cookie names only,
// since values identify visitors.
func MaskHeader(name, value string) string {
	switch lower := strings.ToLower(name); {
	case strings.Contains(lower, "password"),
		strings.Contains(lower, "secret"),
		strings.Contains(lower, "private-key"):
		return redacted
	case lower == "authorization", lower == "accesskey", lower == "x-api-key", lower == "x-access-key":
		if len(value) < 4 {
			return "****"
		}
		return "****" + value[len(value)-4:]
	case lower == "cookie":
		return strings.Join(CookieNames(value), "; ")
	case lower == "set-cookie":
		name, _, _ := strings.Cut(value, "=")
		return strings.TrimSpace(name) + "=" + redacted
	case lower == "x-forwarded-for", lower == "x-real-ip", lower == "forwarded":
		return redacted
	default:
		return value
	}
}

// CookieNames returns the names in a Cookie request header value, in order.
func CookieNames(header string) []string {
	var names []string
	for part := range strings.SplitSeq(header, ";") {
		name, _, _ := strings.Cut(part, "=")
		if name = strings.TrimSpace(name); name != "" {
			names = append(names, name)
		}
	}
	return names
}

// MaskJSONBody keeps the allowlisted fields of a JSON body and redacts
// every other scalar. Nested objects and arrays are walked so allowlisted
// fields survive at any depth.
//
// A nil allowlist returns the body unchanged. Bodies that are not JSON are
// returned unchanged.
func MaskJSONBody(body []byte, allowlist []string) []byte {
	if allowlist == nil || len(body) == 0 {
		return body
	}

	var data any
	if err := json.Unmarshal(body, &data); err != nil {
		return body
	}

	allowed := make(map[string]bool, len(allowlist))
	for _, field := range allowlist {
		allowed[field] = true
	}

	out, err := json.Marshal(maskValue(data, allowed))
	if err != nil {
		return body
	}
	return out
}

func maskValue(value any, allowed map[string]bool) any {
	switch v := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, val := range v {
			switch val.(type) {
			case map[string]any, []any:
				out[key] = maskValue(val, allowed)
			default:
				if allowed[key] {
					out[key] = val
				} else {
					out[key] = redacted
				}
			}
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = maskValue(item, allowed)
		}
		return out
	default:
		return value
	}
}

// FormatBinarySize describes a body that is not logged by its size.
func FormatBinarySize(n int) string {
	return fmt.Sprintf("[BINARY: %d bytes]", n)
}

package scanner

import (
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// loggingTransport logs outbound requests at debug level. Cookie values are
// never logged: Cookie and Set-Cookie headers are reduced to cookie names.
type loggingTransport struct {
	transport http.RoundTripper
	logger    *slog.Logger
}

// RoundTrip implements http.RoundTripper.
func (t *loggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()

	t.logger.Debug("HTTP Request",
		"method", req.Method,
		"url", req.URL.String(),
		"headers", redactHeaders(req.Header),
	)

	resp, err := t.base().RoundTrip(req)
	duration := time.Since(start)
	if err != nil {
		t.logger.Debug("HTTP request failed",
			"method", req.Method,
			"url", req.URL.String(),
			"duration_ms", duration.Milliseconds(),
			"error", err,
		)
		return nil, err
	}

	t.logger.Debug("HTTP Response",
		"url", req.URL.String(),
		"status_code", resp.StatusCode,
		"duration_ms", duration.Milliseconds(),
		"headers", redactHeaders(resp.Header),
	)
	return resp, nil
}

func (t *loggingTransport) base() http.RoundTripper {
	if t.transport != nil {
		return t.transport
	}
	return http.DefaultTransport
}

// redactHeaders flattens headers for logging, keeping only cookie names
// from Cookie and Set-Cookie.
func redactHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		switch {
		case strings.EqualFold(k, "Set-Cookie"):
			names := make([]string, 0, len(v))
			for _, line := range v {
				names = append(names, cookieName(line)+"=[REDACTED]")
			}
			out[k] = strings.Join(names, ", ")
		case strings.EqualFold(k, "Cookie"):
			var names []string
			for _, line := range v {
				for _, pair := range strings.Split(line, ";") {
					names = append(names, cookieName(pair)+"=[REDACTED]")
				}
			}
			out[k] = strings.Join(names, "; ")
		case strings.EqualFold(k, "Authorization"):
			out[k] = "[REDACTED]"
		default:
			out[k] = strings.Join(v, ", ")
		}
	}
	return out
}

func cookieName(s string) string {
	name, _, _ := strings.Cut(s, ";")
	name, _, _ = strings.Cut(name, "=")
	return strings.TrimSpace(name)
}

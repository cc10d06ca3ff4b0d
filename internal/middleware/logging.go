package middleware

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sipico/consent-logger/internal/logging"
)

// maxLoggedBody caps how much of a body is captured for a log line.
const maxLoggedBody = 16 << 10

// HTTPLogging logs requests and responses at debug level and is a no-op at
// any other level. Headers pass through logging.MaskHeader. JSON bodies keep
// only allowlisted fields (nil keeps everything); other bodies are logged
// by size.
func HTTPLogging(logger *slog.Logger, allowlist []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !logger.Enabled(r.Context(), slog.LevelDebug) {
				next.ServeHTTP(w, r)
				return
			}

			logRequest(logger, r, allowlist)

			rec := &responseRecorder{ResponseWriter: w, statusCode: http.StatusOK}
			start := time.Now()
			next.ServeHTTP(rec, r)

			logger.Debug("HTTP Response",
				"request_id", GetRequestID(r.Context()),
				"method", r.Method,
				"url", r.URL.Path,
				"status_code", rec.statusCode,
				"headers", maskHeaders(rec.Header()),
				"body", maskBody(rec.Header().Get("Content-Type"), rec.body.Bytes(), rec.size, allowlist),
				"duration_ms", time.Since(start).Milliseconds(),
			)
		})
	}
}

func logRequest(logger *slog.Logger, r *http.Request, allowlist []string) {
	var body []byte
	if r.Body != nil {
		var err error
		body, err = io.ReadAll(r.Body)
		if err != nil {
			logger.Debug("Failed to read request body", "error", err)
		}
		r.Body = io.NopCloser(bytes.NewReader(body))
	}

	logger.Debug("HTTP Request",
		"request_id", GetRequestID(r.Context()),
		"method", r.Method,
		"url", r.URL.Path,
		"query_params", r.URL.RawQuery,
		"headers", maskHeaders(r.Header),
		"body", maskBody(r.Header.Get("Content-Type"), body, len(body), allowlist),
	)
}

func maskHeaders(headers http.Header) map[string]string {
	out := make(map[string]string, len(headers))
	for name, values := range headers {
		masked := make([]string, len(values))
		for i, v := range values {
			masked[i] = logging.MaskHeader(name, v)
		}
		out[name] = strings.Join(masked, ", ")
	}
	return out
}

func maskBody(contentType string, body []byte, size int, allowlist []string) string {
	if size == 0 {
		return ""
	}
	if !strings.Contains(contentType, "json") || !utf8.Valid(body) || size > len(body) {
		return logging.FormatBinarySize(size)
	}
	return string(logging.MaskJSONBody(body, allowlist))
}

// responseRecorder captures the status and the start of the body.
type responseRecorder struct {
	http.ResponseWriter
	statusCode int
	body       bytes.Buffer
	size       int
}

func (r *responseRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	if room := maxLoggedBody - r.body.Len(); room > 0 {
		r.body.Write(b[:min(room, len(b))])
	}
	r.size += len(b)
	return r.ResponseWriter.Write(b)
}

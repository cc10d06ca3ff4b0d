package mocksite

import (
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// LoggingMiddleware logs requests when logger is non-nil.
func LoggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if logger == nil {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(rec, r)

			logger.Info("mocksite request",
				"method", r.Method,
				"url", r.URL.String(),
				"cookies", requestCookieNames(r.Header.Values("Cookie")),
				"status_code", rec.statusCode,
				"set_cookies", setCookieNames(rec.Header().Values("Set-Cookie")),
				"duration_ms", time.Since(start).Milliseconds(),
			)
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}

// requestCookieNames returns the names in Cookie header values.
func requestCookieNames(values []string) []string {
	var names []string
	for _, v := range values {
		for _, pair := range strings.Split(v, ";") {
			if name, _, ok := strings.Cut(strings.TrimSpace(pair), "="); ok {
				names = append(names, name)
			}
		}
	}
	return names
}

// setCookieNames returns the cookie name of each Set-Cookie value.
func setCookieNames(values []string) []string {
	names := make([]string, 0, len(values))
	for _, v := range values {
		pair, _, _ := strings.Cut(v, ";")
		if name, _, ok := strings.Cut(pair, "="); ok {
			names = append(names, strings.TrimSpace(name))
		}
	}
	return names
}

package metrics

import (
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
)

// numericSegment matches numeric path segments for the fallback label.
var numericSegment = regexp.MustCompile(`/(\d+)`)

// statusRecorder wraps http.ResponseWriter to capture the status code
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

// WriteHeader captures the status code and writes it to the underlying ResponseWriter
func (r *statusRecorder) WriteHeader(code int) {
	if !r.written {
		r.statusCode = code
		r.written = true
		r.ResponseWriter.WriteHeader(code)
	}
}

// Write ensures WriteHeader is called before writing body
func (r *statusRecorder) Write(b []byte) (int, error) {
	if !r.written {
		r.statusCode = http.StatusOK
		r.written = true
	}
	return r.ResponseWriter.Write(b)
}

// Middleware records request count and latency. Panics are recorded as
// 500 and swallowed.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}
		startTime := time.Now()

		defer func() {
			if err := recover(); err != nil {
				if !recorder.written {
					recorder.WriteHeader(http.StatusInternalServerError)
				}
				recorder.statusCode = http.StatusInternalServerError
			}

			duration := time.Since(startTime).Seconds()
			path := routeLabel(r)
			status := strconv.Itoa(recorder.statusCode)

			RecordRequest(r.Method, path, status)
			RecordRequestDuration(r.Method, path, status, duration)
		}()

		next.ServeHTTP(recorder, r)
	})
}

// routeLabel prefers the matched chi route pattern so consent ids and cookie
// names never become label values. Unrouted requests fall back to the path
// with numeric segments collapsed.
func routeLabel(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return normalizePath(r.URL.Path)
}

// normalizePath collapses numeric segments:
//
//	/admin/api/tokens/12 -> /admin/api/tokens/:id
func normalizePath(path string) string {
	return numericSegment.ReplaceAllString(path, "/:id")
}

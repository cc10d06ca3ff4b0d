package middleware

import "net/http"

// MaxBodySize limits request bodies to maxBytes. Reading past the limit
// fails with *http.MaxBytesError, which handlers map to 413 in their own
// response format. Declared and chunked lengths are treated alike.
func MaxBodySize(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}

package mocksite

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
)

const homePage = `<!doctype html><html><head><title>Mock site</title></head><body><p>Hello</p></body></html>`

// failureMiddleware applies injected latency and errors to page requests.
func (s *Server) failureMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.state.mu.Lock()
		s.state.hits++
		latency := s.state.failure.latency
		status := 0
		if s.state.failure.errorCount > 0 {
			status = s.state.failure.errorStatus
			s.state.failure.errorCount--
		}
		s.state.mu.Unlock()

		if latency > 0 {
			select {
			case <-time.After(latency):
			case <-r.Context().Done():
				return
			}
		}
		if status != 0 {
			http.Error(w, http.StatusText(status), status)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// handleHome handles GET /. With redirects configured, requests without
// the chain-complete marker are sent to the first hop.
func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	s.state.mu.RLock()
	cookies := append([]Cookie(nil), s.state.cookies...)
	hasRedirects := len(s.state.redirects) > 0
	s.state.mu.RUnlock()

	if hasRedirects && r.URL.Query().Get("done") == "" {
		http.Redirect(w, r, "/hop/0", http.StatusFound)
		return
	}

	for _, c := range cookies {
		http.SetCookie(w, c.httpCookie())
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(homePage)) //nolint:errcheck
}

// handleHop handles GET /hop/{n}: sets the hop's cookies and redirects to
// the next hop or back to the home page.
func (s *Server) handleHop(w http.ResponseWriter, r *http.Request) {
	n, err := strconv.Atoi(chi.URLParam(r, "n"))
	if err != nil {
		http.NotFound(w, r)
		return
	}

	s.state.mu.RLock()
	if n < 0 || n >= len(s.state.redirects) {
		s.state.mu.RUnlock()
		http.NotFound(w, r)
		return
	}
	hop := s.state.redirects[n]
	last := n == len(s.state.redirects)-1
	s.state.mu.RUnlock()

	for _, c := range hop.Cookies {
		http.SetCookie(w, c.httpCookie())
	}

	next := fmt.Sprintf("/hop/%d", n+1)
	if last {
		next = "/?done=1"
	}
	http.Redirect(w, r, next, http.StatusFound)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Error: code, Message: message})
}

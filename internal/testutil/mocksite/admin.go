package mocksite

import (
	"encoding/json"
	"net/http"
)

// SetRedirectsRequest is the request body for PUT /admin/redirects.
type SetRedirectsRequest struct {
	Hops []Hop `json:"hops"`
}

// handleAdminAddCookie handles POST /admin/cookies.
func (s *Server) handleAdminAddCookie(w http.ResponseWriter, r *http.Request) {
	var c Cookie
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "Invalid request body")
		return
	}
	if c.Name == "" {
		writeError(w, http.StatusBadRequest, "missing_name", "Cookie name is required")
		return
	}

	s.AddCookie(c)
	writeJSON(w, http.StatusCreated, c)
}

// handleAdminSetRedirects handles PUT /admin/redirects.
func (s *Server) handleAdminSetRedirects(w http.ResponseWriter, r *http.Request) {
	var req SetRedirectsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "Invalid request body")
		return
	}

	hops := make([][]Cookie, 0, len(req.Hops))
	for _, h := range req.Hops {
		hops = append(hops, h.Cookies)
	}
	s.SetRedirects(hops...)
	w.WriteHeader(http.StatusNoContent)
}

// handleAdminReset handles DELETE /admin/reset.
func (s *Server) handleAdminReset(w http.ResponseWriter, r *http.Request) {
	s.state.mu.Lock()
	s.state.cookies = nil
	s.state.redirects = nil
	s.state.hits = 0
	s.state.failure = FailureInjection{}
	s.state.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

// handleAdminState handles GET /admin/state.
func (s *Server) handleAdminState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.GetState())
}

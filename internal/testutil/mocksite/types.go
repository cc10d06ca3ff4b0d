// Package mocksite provides a fake website for cookie scanner tests. The
// home page sets a configurable list of cookies, optionally behind a chain
// of redirects that set cookies of their own.
package mocksite

import (
	"net/http"
	"sync"
	"time"
)

// Cookie is a cookie the site sets, in the JSON form accepted by the
// admin endpoints.
type Cookie struct {
	Name     string `json:"name"`
	Value    string `json:"value"`
	Domain   string `json:"domain,omitempty"`
	Path     string `json:"path,omitempty"`
	MaxAge   int    `json:"max_age,omitempty"`
	Secure   bool   `json:"secure,omitempty"`
	HTTPOnly bool   `json:"http_only,omitempty"`
	SameSite string `json:"same_site,omitempty"`
}

func (c Cookie) httpCookie() *http.Cookie {
	hc := &http.Cookie{
		Name:     c.Name,
		Value:    c.Value,
		Domain:   c.Domain,
		Path:     c.Path,
		MaxAge:   c.MaxAge,
		Secure:   c.Secure,
		HttpOnly: c.HTTPOnly,
	}
	switch c.SameSite {
	case "Lax", "lax":
		hc.SameSite = http.SameSiteLaxMode
	case "Strict", "strict":
		hc.SameSite = http.SameSiteStrictMode
	case "None", "none":
		hc.SameSite = http.SameSiteNoneMode
	}
	return hc
}

// Hop is one redirect in front of the home page.
type Hop struct {
	Path    string   `json:"path"`
	Cookies []Cookie `json:"cookies"`
}

// FailureInjection makes the next requests misbehave.
type FailureInjection struct {
	errorStatus int
	errorCount  int
	latency     time.Duration
}

// State holds the mock site state.
type State struct {
	mu        sync.RWMutex
	cookies   []Cookie
	redirects []Hop
	hits      int
	failure   FailureInjection
}

// NewState creates an empty site state.
func NewState() *State {
	return &State{}
}

// StateResponse is the response for GET /admin/state.
type StateResponse struct {
	Cookies   []Cookie `json:"cookies"`
	Redirects []Hop    `json:"redirects"`
	Hits      int      `json:"hits"`
}

// ErrorResponse is the error body of admin endpoints.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

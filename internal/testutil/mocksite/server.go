package mocksite

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/go-chi/chi/v5"
)

// Server is a fake website backed by httptest.
type Server struct {
	*httptest.Server
	state  *State
	router *chi.Mux
	logger *slog.Logger
}

// New starts a mock site.
func New() *Server {
	return NewWithLogger(nil)
}

// NewWithLogger starts a mock site that logs every request when logger is
// non-nil.
func NewWithLogger(logger *slog.Logger) *Server {
	s := NewHandlerOnly(logger)
	s.Server = httptest.NewServer(s.router)
	return s
}

// NewHandlerOnly builds the site without starting a listener, for use
// behind a real http.Server.
func NewHandlerOnly(logger *slog.Logger) *Server {
	s := &Server{
		state:  NewState(),
		router: chi.NewRouter(),
		logger: logger,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(LoggingMiddleware(s.logger))

	s.router.Route("/admin", func(r chi.Router) {
		r.Get("/state", s.handleAdminState)
		r.Post("/cookies", s.handleAdminAddCookie)
		r.Put("/redirects", s.handleAdminSetRedirects)
		r.Delete("/reset", s.handleAdminReset)
	})

	s.router.With(s.failureMiddleware).Get("/", s.handleHome)
	s.router.With(s.failureMiddleware).Get("/hop/{n}", s.handleHop)
}

// Handler returns the site's router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// URL returns the base URL of a started server.
func (s *Server) URL() string {
	return s.Server.URL
}

// Close stops a started server.
func (s *Server) Close() {
	if s.Server != nil {
		s.Server.Close()
	}
}

// SetCookies replaces the cookies set by the home page.
func (s *Server) SetCookies(cookies ...Cookie) {
	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	s.state.cookies = append([]Cookie(nil), cookies...)
}

// AddCookie appends a cookie set by the home page.
func (s *Server) AddCookie(c Cookie) {
	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	s.state.cookies = append(s.state.cookies, c)
}

// SetRedirects places a redirect chain in front of the home page. Each hop
// sets its own cookies.
func (s *Server) SetRedirects(hops ...[]Cookie) {
	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	s.state.redirects = s.state.redirects[:0]
	for _, cookies := range hops {
		s.state.redirects = append(s.state.redirects, Hop{Cookies: cookies})
	}
}

// SetNextError makes the next count home page requests fail with status.
func (s *Server) SetNextError(status, count int) {
	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	s.state.failure.errorStatus = status
	s.state.failure.errorCount = count
}

// SetLatency delays every page response by d.
func (s *Server) SetLatency(d time.Duration) {
	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	s.state.failure.latency = d
}

// Hits returns how many page requests were served, redirects included.
func (s *Server) Hits() int {
	s.state.mu.RLock()
	defer s.state.mu.RUnlock()
	return s.state.hits
}

// GetState returns a snapshot of the site state.
func (s *Server) GetState() StateResponse {
	s.state.mu.RLock()
	defer s.state.mu.RUnlock()
	return StateResponse{
		Cookies:   append([]Cookie{}, s.state.cookies...),
		Redirects: append([]Hop{}, s.state.redirects...),
		Hits:      s.state.hits,
	}
}

package mocksite

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"
)

// syncBuffer is a bytes.Buffer safe for the server goroutine to write to.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func cookieMap(cookies []*http.Cookie) map[string]*http.Cookie {
	m := make(map[string]*http.Cookie, len(cookies))
	for _, c := range cookies {
		m[c.Name] = c
	}
	return m
}

func TestHome_SetsConfiguredCookies(t *testing.T) {
	t.Parallel()
	s := New()
	defer s.Close()

	s.SetCookies(
		Cookie{Name: "_ga", Value: "GA1.1.1", Path: "/", MaxAge: 3600, SameSite: "Lax"},
		Cookie{Name: "PHPSESSID", Value: "abc", HTTPOnly: true, Secure: true},
	)

	resp, err := http.Get(s.URL() + "/")
	if err != nil {
		t.Fatalf("GET / failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	got := cookieMap(resp.Cookies())
	if len(got) != 2 {
		t.Fatalf("expected 2 cookies, got %d", len(got))
	}
	if got["_ga"].SameSite != http.SameSiteLaxMode || got["_ga"].MaxAge != 3600 {
		t.Errorf("unexpected _ga attributes: %+v", got["_ga"])
	}
	if !got["PHPSESSID"].HttpOnly || !got["PHPSESSID"].Secure {
		t.Errorf("unexpected PHPSESSID attributes: %+v", got["PHPSESSID"])
	}
}

func TestHome_RedirectChainSetsCookiesPerHop(t *testing.T) {
	t.Parallel()
	s := New()
	defer s.Close()

	s.SetCookies(Cookie{Name: "final", Value: "1"})
	s.SetRedirects(
		[]Cookie{{Name: "hop0", Value: "1"}},
		[]Cookie{{Name: "hop1", Value: "1"}},
	)

	var hopCookies []string
	client := &http.Client{
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			for _, c := range req.Response.Cookies() {
				hopCookies = append(hopCookies, c.Name)
			}
			return nil
		},
	}

	resp, err := client.Get(s.URL() + "/")
	if err != nil {
		t.Fatalf("GET / failed: %v", err)
	}
	defer resp.Body.Close()

	if len(hopCookies) != 2 || hopCookies[0] != "hop0" || hopCookies[1] != "hop1" {
		t.Errorf("expected hop cookies [hop0 hop1], got %v", hopCookies)
	}
	if _, ok := cookieMap(resp.Cookies())["final"]; !ok {
		t.Error("expected final response to set cookie 'final'")
	}
	// "/", "/hop/0", "/hop/1", "/?done=1"
	if s.Hits() != 4 {
		t.Errorf("expected 4 hits, got %d", s.Hits())
	}
}

func TestSetNextError(t *testing.T) {
	t.Parallel()
	s := New()
	defer s.Close()

	s.SetNextError(http.StatusServiceUnavailable, 2)

	for i, want := range []int{503, 503, 200} {
		resp, err := http.Get(s.URL() + "/")
		if err != nil {
			t.Fatalf("request %d failed: %v", i, err)
		}
		resp.Body.Close()
		if resp.StatusCode != want {
			t.Errorf("request %d: expected %d, got %d", i, want, resp.StatusCode)
		}
	}
}

func TestSetLatency_TimesOutClient(t *testing.T) {
	t.Parallel()
	s := New()
	defer s.Close()

	s.SetLatency(500 * time.Millisecond)

	client := &http.Client{Timeout: 50 * time.Millisecond}
	resp, err := client.Get(s.URL() + "/")
	if err == nil {
		resp.Body.Close()
		t.Fatal("expected client timeout")
	}
}

func TestAdminEndpoints(t *testing.T) {
	t.Parallel()
	s := New()
	defer s.Close()

	body, _ := json.Marshal(Cookie{Name: "_fbp", Value: "fb.1"})
	resp, err := http.Post(s.URL()+"/admin/cookies", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST /admin/cookies failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	resp, err = http.Post(s.URL()+"/admin/cookies", "application/json", bytes.NewReader([]byte(`{}`)))
	if err != nil {
		t.Fatalf("POST /admin/cookies failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for missing name, got %d", resp.StatusCode)
	}

	resp, err = http.Get(s.URL() + "/admin/state")
	if err != nil {
		t.Fatalf("GET /admin/state failed: %v", err)
	}
	var state StateResponse
	if err := json.NewDecoder(resp.Body).Decode(&state); err != nil {
		t.Fatalf("failed to decode state: %v", err)
	}
	resp.Body.Close()
	if len(state.Cookies) != 1 || state.Cookies[0].Name != "_fbp" {
		t.Errorf("unexpected state: %+v", state)
	}

	req, _ := http.NewRequest(http.MethodDelete, s.URL()+"/admin/reset", nil)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE /admin/reset failed: %v", err)
	}
	resp.Body.Close()
	if got := s.GetState(); len(got.Cookies) != 0 || got.Hits != 0 {
		t.Errorf("expected empty state after reset, got %+v", got)
	}
}

func TestLoggingMiddleware_DoesNotLogCookieValues(t *testing.T) {
	t.Parallel()

	var buf syncBuffer
	s := NewWithLogger(slog.New(slog.NewTextHandler(&buf, nil)))
	defer s.Close()

	s.SetCookies(Cookie{Name: "session", Value: "super-secret-value"})

	req, _ := http.NewRequest(http.MethodGet, s.URL()+"/", nil)
	req.Header.Set("Cookie", "visitor=another-secret")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET / failed: %v", err)
	}
	resp.Body.Close()

	out := buf.String()
	if strings.Contains(out, "secret") {
		t.Errorf("cookie value leaked into log: %s", out)
	}
	if !strings.Contains(out, "session") || !strings.Contains(out, "visitor") {
		t.Errorf("expected cookie names in log: %s", out)
	}
}

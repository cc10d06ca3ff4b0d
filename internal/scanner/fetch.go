package scanner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/sipico/consent-logger/internal/storage"
)

const (
	maxRedirects   = 10
	maxBodyDrain   = 1 << 20
	fetchUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (compatible; consent-logger cookie scanner)"
)

// ErrFetchFailed means the home page could not be fetched. Scans continue
// with the remaining sources.
var ErrFetchFailed = errors.New("home page fetch failed")

// fetchCookies GETs the site home page once and returns the cookies set by
// the final response and every redirect hop, in the order they were seen.
func (s *Scanner) fetchCookies(ctx context.Context) ([]*storage.TrackedCookie, error) {
	site, err := url.Parse(s.cfg.SiteURL)
	if err != nil || site.Host == "" {
		return nil, fmt.Errorf("%w: invalid site URL %q", ErrFetchFailed, s.cfg.SiteURL)
	}

	var (
		mu   sync.Mutex
		hops []*http.Response
	)
	client := *s.client
	client.Timeout = s.cfg.FetchTimeout
	client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) >= maxRedirects {
			return http.ErrUseLastResponse
		}
		if req.Response != nil {
			mu.Lock()
			hops = append(hops, req.Response)
			mu.Unlock()
		}
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, site.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}
	req.Header.Set("User-Agent", s.cfg.UserAgent)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}
	defer resp.Body.Close() //nolint:errcheck
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyDrain))

	if resp.StatusCode >= http.StatusBadRequest {
		s.logger.Warn("home page returned an error status", "url", site.String(), "status", resp.StatusCode)
	}

	mu.Lock()
	responses := append(hops, resp)
	mu.Unlock()

	var out []*storage.TrackedCookie
	for _, r := range responses {
		for _, c := range r.Cookies() {
			out = append(out, fromHTTPCookie(c, site.Hostname()))
		}
	}
	return out, nil
}

func fromHTTPCookie(c *http.Cookie, defaultDomain string) *storage.TrackedCookie {
	domain := strings.TrimPrefix(c.Domain, ".")
	if domain == "" {
		domain = defaultDomain
	}
	path := c.Path
	if path == "" {
		path = "/"
	}

	var expires string
	switch {
	case c.RawExpires != "":
		expires = c.RawExpires
	case c.MaxAge > 0:
		expires = "max-age=" + strconv.Itoa(c.MaxAge)
	}

	return &storage.TrackedCookie{
		Name:     c.Name,
		Source:   SourceResponseHeader,
		Domain:   domain,
		Path:     path,
		Expires:  expires,
		Secure:   c.Secure,
		HTTPOnly: c.HttpOnly,
		SameSite: sameSite(c.SameSite),
	}
}

func sameSite(s http.SameSite) string {
	switch s {
	case http.SameSiteLaxMode:
		return "Lax"
	case http.SameSiteStrictMode:
		return "Strict"
	case http.SameSiteNoneMode:
		return "None"
	default:
		return ""
	}
}

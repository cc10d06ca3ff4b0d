// Package scanner discovers cookies set by the site and keeps the tracked
// cookie registry up to date.
//
// A scan gathers candidates from three sources: Set-Cookie headers of one
// home page fetch, cookie-setting patterns in local scripts, and a registry
// of cookies known to be set by active platform components. Names not yet
// tracked are classified and added; the registry is written once, at the
// end of the run.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sipico/consent-logger/internal/classifier"
	"github.com/sipico/consent-logger/internal/lock"
	"github.com/sipico/consent-logger/internal/metrics"
	"github.com/sipico/consent-logger/internal/storage"
)

// Discovery sources.
const (
	SourceResponseHeader = "response-header"
	SourceScriptScan     = "script-scan"
	SourceKnownRegistry  = "known-registry"
)

var (
	// ErrCookieNotFound is returned when editing a cookie that is not tracked.
	ErrCookieNotFound = errors.New("cookie is not tracked")
	// ErrInvalidCategory is returned for an unknown category name.
	ErrInvalidCategory = errors.New("invalid cookie category")
)

// Config is the static scanner configuration.
type Config struct {
	SiteURL          string
	FetchTimeout     time.Duration
	UserAgent        string
	ThemeDir         string
	PluginsDir       string
	PluginAllowlist  []string
	ThemeFileCap     int
	PluginFileCap    int
	ActiveComponents []string
	// Defaults apply until settings are saved.
	Defaults Settings
}

func (c *Config) applyDefaults() {
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = 30 * time.Second
	}
	if c.UserAgent == "" {
		c.UserAgent = fetchUserAgent
	}
	if c.PluginAllowlist == nil {
		c.PluginAllowlist = DefaultPluginAllowlist
	}
	if c.ThemeFileCap <= 0 {
		c.ThemeFileCap = 20
	}
	if c.PluginFileCap <= 0 {
		c.PluginFileCap = 5
	}
	if c.Defaults.Time == "" {
		c.Defaults = DefaultSettings()
	}
}

// Store persists the tracked cookie registry and reads settings.
type Store interface {
	SettingsReader
	LoadTrackedCookies(ctx context.Context) (map[string]*storage.TrackedCookie, error)
	SaveTrackedCookies(ctx context.Context, cookies map[string]*storage.TrackedCookie) error
}

// ActivityRecorder appends to the operational trail.
type ActivityRecorder interface {
	Record(ctx context.Context, message string)
}

// Integrator pushes newly discovered cookies into a consent banner's
// configuration.
type Integrator interface {
	Integrate(ctx context.Context, cookies []*storage.TrackedCookie) error
}

// Notifier tells an operator about newly discovered cookies.
type Notifier interface {
	NotifyNewCookies(ctx context.Context, cookies []*storage.TrackedCookie) error
}

type nopIntegrator struct{}

func (nopIntegrator) Integrate(context.Context, []*storage.TrackedCookie) error { return nil }

type nopNotifier struct{}

func (nopNotifier) NotifyNewCookies(context.Context, []*storage.TrackedCookie) error { return nil }

// Result summarizes a scan.
type Result struct {
	// NewCookies maps name to the entry added to the registry.
	NewCookies map[string]*storage.TrackedCookie `json:"new_cookies"`
	Candidates int                               `json:"candidates"`
	FetchError string                            `json:"fetch_error,omitempty"`
	StartedAt  time.Time                         `json:"started_at"`
	Duration   time.Duration                     `json:"duration"`
}

// Scanner runs cookie scans. Runs are serialized by its Locker.
type Scanner struct {
	cfg        Config
	store      Store
	activity   ActivityRecorder
	classifier *classifier.Classifier
	locker     lock.Locker
	integrator Integrator
	notifier   Notifier
	transport  http.RoundTripper
	client     *http.Client
	logger     *slog.Logger
	now        func() time.Time
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scanner) {
		s.logger = l
	}
}

// WithLocker sets the lock serializing runs. Defaults to an in-process lock.
func WithLocker(l lock.Locker) Option {
	return func(s *Scanner) {
		s.locker = l
	}
}

// WithIntegrator sets the banner integrator. Defaults to a no-op.
func WithIntegrator(i Integrator) Option {
	return func(s *Scanner) {
		s.integrator = i
	}
}

// WithNotifier sets the new-cookie notifier. Defaults to a no-op.
func WithNotifier(n Notifier) Option {
	return func(s *Scanner) {
		s.notifier = n
	}
}

// WithClassifier overrides the classifier.
func WithClassifier(c *classifier.Classifier) Option {
	return func(s *Scanner) {
		s.classifier = c
	}
}

// WithTransport sets the round tripper used for the home page fetch.
func WithTransport(rt http.RoundTripper) Option {
	return func(s *Scanner) {
		s.transport = rt
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Scanner) {
		s.now = now
	}
}

// New creates a Scanner.
func New(cfg Config, store Store, activity ActivityRecorder, opts ...Option) *Scanner {
	cfg.applyDefaults()
	s := &Scanner{
		cfg:        cfg,
		store:      store,
		activity:   activity,
		classifier: classifier.New(nil),
		locker:     lock.NewLocal(),
		integrator: nopIntegrator{},
		notifier:   nopNotifier{},
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.client = &http.Client{
		Transport: &loggingTransport{transport: s.transport, logger: s.logger},
	}
	return s
}

// Settings returns the current scanner settings.
func (s *Scanner) Settings(ctx context.Context) (Settings, error) {
	return LoadSettings(ctx, s.store, s.cfg.Defaults)
}

// Scan runs one scan, waiting for any scan already in progress. Once the
// lock is held the run ignores ctx cancellation; it is bounded by the fetch
// timeout and file caps instead.
func (s *Scanner) Scan(ctx context.Context) (*Result, error) {
	release, err := s.locker.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire scan lock: %w", err)
	}
	defer release()

	ctx = context.WithoutCancel(ctx)
	start := s.now()

	res, err := s.run(ctx)
	duration := s.now().Sub(start)

	outcome := "no_new_cookies"
	switch {
	case err != nil:
		outcome = "failed"
		s.logger.Error("cookie scan failed", "error", err)
	case len(res.NewCookies) > 0:
		outcome = "new_cookies"
	}
	metrics.RecordScan(outcome, duration.Seconds())

	if err != nil {
		return nil, err
	}
	res.StartedAt = start
	res.Duration = duration
	return res, nil
}

func (s *Scanner) run(ctx context.Context) (*Result, error) {
	settings, err := s.Settings(ctx)
	if err != nil {
		s.logger.Warn("using default scanner settings", "error", err)
	}

	s.activity.Record(ctx, "Starting cookie scan")

	candidates, fetchErr, err := s.gather(ctx)
	if err != nil {
		return nil, err
	}

	previous, err := s.store.LoadTrackedCookies(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load tracked cookies: %w", err)
	}

	res := &Result{
		NewCookies: make(map[string]*storage.TrackedCookie),
		Candidates: len(candidates),
	}
	if fetchErr != nil {
		res.FetchError = fetchErr.Error()
	}

	now := s.now().UTC()
	for _, c := range candidates {
		if _, tracked := previous[c.Name]; tracked {
			continue
		}
		c.Category = string(s.categorize(c, settings.AutoCategorize))
		c.DiscoveredAt = now
		res.NewCookies[c.Name] = c
	}

	if len(res.NewCookies) == 0 {
		s.activity.Record(ctx, "No new cookies found")
		return res, nil
	}

	s.activity.Record(ctx, fmt.Sprintf("Found %d new cookies", len(res.NewCookies)))

	updated := make(map[string]*storage.TrackedCookie, len(previous)+len(res.NewCookies))
	for name, c := range previous {
		updated[name] = c
	}
	for name, c := range res.NewCookies {
		updated[name] = c
		metrics.RecordCookieDiscovered(c.Category)
	}
	if err := s.store.SaveTrackedCookies(ctx, updated); err != nil {
		return nil, fmt.Errorf("failed to save tracked cookies: %w", err)
	}

	added := sortedCookies(res.NewCookies)

	if settings.BannerIntegration {
		if err := s.integrator.Integrate(ctx, added); err != nil {
			s.logger.Warn("banner integration failed", "error", err)
			s.activity.Record(ctx, "Banner integration failed: "+err.Error())
		}
	}
	if settings.EmailNotifications {
		if err := s.notifier.NotifyNewCookies(ctx, added); err != nil {
			s.logger.Warn("new cookie notification failed", "error", err)
			s.activity.Record(ctx, "Notification failed: "+err.Error())
		}
	}

	return res, nil
}

// gather collects candidates from every source, merged in source order.
// A fetch failure is returned separately and does not stop the scan.
func (s *Scanner) gather(ctx context.Context) (candidates []*storage.TrackedCookie, fetchErr, err error) {
	var headerCookies, scriptCookies []*storage.TrackedCookie

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		headerCookies, fetchErr = s.fetchCookies(gctx)
		return nil
	})
	g.Go(func() error {
		var err error
		scriptCookies, err = s.scanScripts(gctx)
		return err
	})
	if err = g.Wait(); err != nil {
		return nil, nil, fmt.Errorf("failed to scan scripts: %w", err)
	}

	if fetchErr != nil {
		s.logger.Warn("continuing scan without home page cookies", "error", fetchErr)
		s.activity.Record(ctx, "Home page fetch failed, continuing with remaining sources")
	}

	return merge(headerCookies, scriptCookies, registryCookies(s.cfg.ActiveComponents)), fetchErr, nil
}

// merge combines source lists. The first source to report a name keeps its
// data; later sources only fill an empty description or category hint.
// Registry descriptions reach a candidate only through the known registry
// source, which lists active components alone.
func merge(sources ...[]*storage.TrackedCookie) []*storage.TrackedCookie {
	var out []*storage.TrackedCookie
	byName := make(map[string]*storage.TrackedCookie)

	for _, list := range sources {
		for _, c := range list {
			if existing, ok := byName[c.Name]; ok {
				if existing.Description == "" {
					existing.Description = c.Description
				}
				if existing.Category == "" {
					existing.Category = c.Category
				}
				continue
			}
			entry := *c
			byName[c.Name] = &entry
			out = append(out, &entry)
		}
	}
	return out
}

// categorize classifies c. With auto-categorize off the registry hint is
// used, falling back to the default category.
func (s *Scanner) categorize(c *storage.TrackedCookie, auto bool) classifier.Category {
	if !auto {
		if hint, ok := classifier.Parse(c.Category); ok {
			return hint
		}
		return classifier.Default
	}
	source := c.Source
	if c.Component != "" {
		source += " " + c.Component
	}
	return s.classifier.Classify(c.Name, classifier.Metadata{
		Description: c.Description,
		Source:      source,
	})
}

// Reclassify sets the category of a tracked cookie.
func (s *Scanner) Reclassify(ctx context.Context, name, category string) (*storage.TrackedCookie, error) {
	cat, ok := classifier.Parse(category)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidCategory, category)
	}

	var updated *storage.TrackedCookie
	err := s.edit(ctx, func(cookies map[string]*storage.TrackedCookie) error {
		c, ok := cookies[name]
		if !ok {
			return fmt.Errorf("%w: %s", ErrCookieNotFound, name)
		}
		c.Category = string(cat)
		updated = c
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.activity.Record(ctx, fmt.Sprintf("Reclassified cookie '%s' as %s", name, cat))
	return updated, nil
}

// Forget removes a cookie from the registry. It is rediscovered by the next
// scan if the site still sets it.
func (s *Scanner) Forget(ctx context.Context, name string) error {
	err := s.edit(ctx, func(cookies map[string]*storage.TrackedCookie) error {
		if _, ok := cookies[name]; !ok {
			return fmt.Errorf("%w: %s", ErrCookieNotFound, name)
		}
		delete(cookies, name)
		return nil
	})
	if err != nil {
		return err
	}

	s.activity.Record(ctx, fmt.Sprintf("Removed cookie '%s' from the registry", name))
	return nil
}

// edit applies fn to the registry under the scan lock and saves the result.
func (s *Scanner) edit(ctx context.Context, fn func(map[string]*storage.TrackedCookie) error) error {
	release, err := s.locker.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire scan lock: %w", err)
	}
	defer release()

	cookies, err := s.store.LoadTrackedCookies(ctx)
	if err != nil {
		return fmt.Errorf("failed to load tracked cookies: %w", err)
	}
	if err := fn(cookies); err != nil {
		return err
	}
	if err := s.store.SaveTrackedCookies(ctx, cookies); err != nil {
		return fmt.Errorf("failed to save tracked cookies: %w", err)
	}
	return nil
}

// Cookies returns the tracked cookie registry sorted by name.
func (s *Scanner) Cookies(ctx context.Context) ([]*storage.TrackedCookie, error) {
	cookies, err := s.store.LoadTrackedCookies(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load tracked cookies: %w", err)
	}
	return sortedCookies(cookies), nil
}

func sortedCookies(m map[string]*storage.TrackedCookie) []*storage.TrackedCookie {
	out := make([]*storage.TrackedCookie, 0, len(m))
	for _, c := range m {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

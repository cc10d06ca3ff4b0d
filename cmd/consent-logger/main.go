// Package main provides the entry point for the consent logger server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/sipico/consent-logger/internal/activity"
	"github.com/sipico/consent-logger/internal/admin"
	"github.com/sipico/consent-logger/internal/auth"
	"github.com/sipico/consent-logger/internal/banner"
	"github.com/sipico/consent-logger/internal/collector"
	"github.com/sipico/consent-logger/internal/config"
	"github.com/sipico/consent-logger/internal/consent"
	"github.com/sipico/consent-logger/internal/lock"
	"github.com/sipico/consent-logger/internal/logging"
	"github.com/sipico/consent-logger/internal/metrics"
	"github.com/sipico/consent-logger/internal/notify"
	"github.com/sipico/consent-logger/internal/proof"
	"github.com/sipico/consent-logger/internal/retention"
	"github.com/sipico/consent-logger/internal/scanner"
	"github.com/sipico/consent-logger/internal/schedule"
	"github.com/sipico/consent-logger/internal/storage"
)

const (
	version               = "2026.10.1"
	serverShutdownTimeout = 30 * time.Second
	healthCheckTimeout    = 5 * time.Second

	scanJobName      = "cookie-scan"
	retentionJobName = "consent-retention"
	retentionTime    = "03:30"
	scanLockKey      = "consent-logger:scan-lock"
)

// components holds everything a command needs.
type components struct {
	logger    *slog.Logger
	logLevel  *slog.LevelVar
	store     *storage.SQLStorage
	redis     *redis.Client
	activity  *activity.Log
	recorder  *consent.Recorder
	scanner   *scanner.Scanner
	scheduler *schedule.Scheduler
	purger    *retention.Purger
	proofs    *proof.Generator
	registry  *prometheus.Registry

	publicRouter http.Handler
	adminRouter  http.Handler
	mainRouter   http.Handler
}

// Close releases the database and Redis connections.
func (c *components) Close() error {
	var errs []error
	if c.redis != nil {
		if err := c.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close redis client: %w", err))
		}
	}
	if c.store != nil {
		if err := c.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close storage: %w", err))
		}
	}
	return errors.Join(errs...)
}

// scanSchedule keeps the daily scan job in line with the saved settings.
type scanSchedule struct {
	scheduler *schedule.Scheduler
	scanner   *scanner.Scanner
	logger    *slog.Logger
}

// Apply implements admin.SettingsApplier.
func (s *scanSchedule) Apply(settings scanner.Settings) error {
	if !settings.Enabled {
		s.scheduler.Remove(scanJobName)
		s.logger.Info("daily cookie scan disabled")
		return nil
	}
	err := s.scheduler.Reschedule(scanJobName, settings.Time)
	if errors.Is(err, schedule.ErrNotScheduled) {
		err = s.scheduler.Daily(scanJobName, settings.Time, s.run)
	}
	if err != nil {
		return fmt.Errorf("failed to schedule cookie scan: %w", err)
	}
	s.logger.Info("daily cookie scan scheduled", "time", settings.Time, "next", s.scheduler.Next(scanJobName))
	return nil
}

func (s *scanSchedule) run(ctx context.Context) {
	res, err := s.scanner.Scan(ctx)
	if err != nil {
		s.logger.Error("scheduled cookie scan failed", "error", err)
		return
	}
	s.logger.Info("scheduled cookie scan finished", "new_cookies", len(res.NewCookies), "duration", res.Duration)
}

func main() {
	os.Exit(run(os.Args[1:]))
}

// run dispatches the subcommand and returns the process exit code.
func run(args []string) int {
	cmd := "serve"
	if len(args) > 0 {
		cmd = args[0]
	}

	switch cmd {
	case "health":
		return runHealthCheck()
	case "version":
		fmt.Println(version)
		return 0
	case "serve", "scan", "purge":
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q (expected serve, scan, purge, health or version)\n", cmd)
		return 2
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		return 1
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		return 1
	}

	c, err := initializeComponents(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize: %v\n", err)
		return 1
	}
	defer func() {
		if err := c.Close(); err != nil {
			c.logger.Error("Failed to close resources", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case "scan":
		return runScan(ctx, c)
	case "purge":
		return runPurge(ctx, c)
	default:
		if err := serve(ctx, cfg, c); err != nil {
			c.logger.Error("Server failed", "error", err)
			return 1
		}
		return 0
	}
}

// initializeComponents builds the full object graph from cfg.
func initializeComponents(cfg *config.Config) (*components, error) {
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	logLevel := new(slog.LevelVar)
	logLevel.Set(level)

	logger, err := logging.New(os.Stdout, cfg.LogFormat, logLevel)
	if err != nil {
		return nil, err
	}
	logger = logger.With("service", "consent-logger")

	metrics.Version = version
	registry := prometheus.NewRegistry()
	if err := metrics.Init(registry); err != nil {
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}

	store, err := storage.Open(cfg.DatabaseDriver, cfg.DatabaseDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}
	c := &components{
		logger:   logger,
		logLevel: logLevel,
		store:    store,
		registry: registry,
	}

	c.activity = activity.New(store, logger)
	c.recorder = consent.NewRecorder(store, consent.WithLogger(logger))

	var locker lock.Locker = lock.NewLocal()
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("failed to parse redis url: %w", err)
		}
		c.redis = redis.NewClient(opts)
		locker = lock.NewRedis(c.redis, scanLockKey, 0, logger)
		logger.Info("Using redis scan lock", "addr", opts.Addr)
	}

	integrator := banner.NewSettingsIntegrator(store, c.activity)

	var notifier scanner.Notifier = notify.NewLogNotifier(logger)
	if cfg.SMTPAddr != "" {
		n, err := notify.NewSMTPNotifier(notify.SMTPConfig{
			Addr:          cfg.SMTPAddr,
			Username:      cfg.SMTPUsername,
			Password:      cfg.SMTPPassword,
			From:          cfg.SMTPFrom,
			To:            cfg.NotifyEmail,
			SiteName:      cfg.SiteName,
			SiteURL:       cfg.SiteURL,
			BannerManaged: cfg.BannerIntegration,
		}, c.activity, logger)
		if err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("failed to configure email notifications: %w", err)
		}
		notifier = n
	}

	c.scanner = scanner.New(scanner.Config{
		SiteURL:          cfg.SiteURL,
		FetchTimeout:     cfg.ScanTimeout,
		ThemeDir:         cfg.ThemeDir,
		PluginsDir:       cfg.PluginsDir,
		ActiveComponents: cfg.ActiveComponents,
		Defaults: scanner.Settings{
			Enabled:            cfg.ScanEnabled,
			Time:               cfg.ScanTime,
			EmailNotifications: cfg.EmailNotifications,
			AutoCategorize:     cfg.AutoCategorize,
			BannerIntegration:  cfg.BannerIntegration,
		},
	}, store, c.activity,
		scanner.WithLogger(logger),
		scanner.WithLocker(locker),
		scanner.WithIntegrator(integrator),
		scanner.WithNotifier(notifier),
	)

	c.scheduler = schedule.New(time.Local, logger)

	c.purger, err = retention.New(store, c.activity, cfg.RetentionMonths, logger)
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("failed to configure retention: %w", err)
	}

	c.proofs, err = proof.NewGenerator(store, []byte(cfg.ProofSecret), proof.SiteInfo{
		Name:       cfg.SiteName,
		URL:        cfg.SiteURL,
		AdminEmail: cfg.AdminEmail,
	}, proof.WithLogger(logger))
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("failed to create proof generator: %w", err)
	}
	proofFormat, err := proof.ParseFormat(cfg.ProofFormat)
	if err != nil {
		_ = c.Close()
		return nil, err
	}

	adminHandler := admin.NewHandler(store, logLevel, logger)
	adminHandler.SetBootstrapService(auth.NewBootstrapService(store, cfg.MasterAPIKey))
	adminHandler.SetServices(admin.Services{
		Consents:    store,
		Proofs:      c.proofs,
		Cookies:     c.scanner,
		Settings:    store,
		Applier:     &scanSchedule{scheduler: c.scheduler, scanner: c.scanner, logger: logger},
		Activity:    c.activity,
		Banner:      integrator,
		ProofFormat: proofFormat,
	})
	c.adminRouter = adminHandler.NewRouter()

	c.publicRouter = collector.New(c.recorder, collector.Config{
		TrustProxyHeaders: cfg.TrustProxyHeaders,
		CountryHeader:     cfg.CountryHeader,
	}, logger).Routes()

	mainRouter := chi.NewRouter()
	mainRouter.Get("/health", adminHandler.HandleHealth)
	mainRouter.Get("/ready", adminHandler.HandleReady)
	mainRouter.Mount("/admin", c.adminRouter)
	mainRouter.Mount("/", c.publicRouter)
	c.mainRouter = mainRouter

	return c, nil
}

// scheduleJobs registers the daily scan and retention jobs.
func scheduleJobs(ctx context.Context, c *components) error {
	applier := &scanSchedule{scheduler: c.scheduler, scanner: c.scanner, logger: c.logger}

	settings, err := c.scanner.Settings(ctx)
	if err != nil {
		c.logger.Warn("Using default scanner settings", "error", err)
	}
	if err := applier.Apply(settings); err != nil {
		return err
	}

	if !c.purger.Enabled() {
		c.logger.Info("Consent retention disabled, records are kept indefinitely")
		return nil
	}
	return c.scheduler.Daily(retentionJobName, retentionTime, func(ctx context.Context) {
		if _, err := c.purger.Run(ctx); err != nil {
			c.logger.Error("Consent retention run failed", "error", err)
		}
	})
}

// serve runs the HTTP servers and scheduler until ctx is done.
func serve(ctx context.Context, cfg *config.Config, c *components) error {
	c.logger.Info("Starting consent logger",
		"version", version,
		"listen_addr", cfg.ListenAddr,
		"database_driver", cfg.DatabaseDriver,
		"site_url", cfg.SiteURL,
	)

	if err := scheduleJobs(ctx, c); err != nil {
		return err
	}
	c.scheduler.Start()
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), serverShutdownTimeout)
		defer cancel()
		if err := c.scheduler.Stop(stopCtx); err != nil {
			c.logger.Warn("Scheduled jobs did not finish before shutdown", "error", err)
		}
	}()

	if cfg.MetricsListenAddr != "" {
		metricsServer := createMetricsServer(cfg, c.registry)
		go func() {
			c.logger.Info("Metrics listener started", "addr", cfg.MetricsListenAddr)
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				c.logger.Error("Metrics server error", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), serverShutdownTimeout)
			defer cancel()
			_ = metricsServer.Shutdown(shutdownCtx)
		}()
	}

	return startServerAndWaitForShutdown(ctx, c.logger, createServer(cfg, c.mainRouter))
}

// createServer creates the public HTTP server.
func createServer(cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// createMetricsServer creates the Prometheus listener.
func createMetricsServer(cfg *config.Config, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.HandlerFor(reg))
	return &http.Server{
		Addr:              cfg.MetricsListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// startServerAndWaitForShutdown serves until the server fails or ctx is
// done, then shuts down gracefully.
func startServerAndWaitForShutdown(ctx context.Context, logger *slog.Logger, server *http.Server) error {
	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		logger.Info("Received signal, shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), serverShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	logger.Info("Server shut down gracefully")
	return nil
}

// runScan runs one cookie scan.
func runScan(ctx context.Context, c *components) int {
	res, err := c.scanner.Scan(ctx)
	if err != nil {
		c.logger.Error("Cookie scan failed", "error", err)
		return 1
	}
	c.logger.Info("Cookie scan finished",
		"candidates", res.Candidates,
		"new_cookies", len(res.NewCookies),
		"fetch_error", res.FetchError,
		"duration", res.Duration,
	)
	return 0
}

// runPurge runs the retention job once.
func runPurge(ctx context.Context, c *components) int {
	n, err := c.purger.Run(ctx)
	if errors.Is(err, retention.ErrDisabled) {
		c.logger.Info("Consent retention disabled, nothing to purge")
		return 0
	}
	if err != nil {
		c.logger.Error("Consent retention run failed", "error", err)
		return 1
	}
	c.logger.Info("Consent retention run finished", "purged", n, "cutoff", c.purger.Cutoff())
	return 0
}

// healthURL returns the local health endpoint for a listen address.
func healthURL(listenAddr string) string {
	host, port, err := net.SplitHostPort(listenAddr)
	if err != nil {
		host, port = "", "8080"
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	return "http://" + net.JoinHostPort(host, port) + "/health"
}

// runHealthCheck probes the local server. Used as the container health
// check, where no shell or curl is available.
func runHealthCheck() int {
	addr := os.Getenv("LISTEN_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	return doHealthCheck(healthURL(addr))
}

// doHealthCheck returns 0 if url answers 200 OK, 1 otherwise.
func doHealthCheck(url string) int {
	client := &http.Client{Timeout: healthCheckTimeout}
	resp, err := client.Get(url)
	if err != nil {
		fmt.Fprintf(os.Stderr, "health check failed: %v\n", err)
		return 1
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "health check failed: status %d\n", resp.StatusCode)
		return 1
	}
	return 0
}

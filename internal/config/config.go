// Package config provides configuration loading and validation from environment variables.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sipico/consent-logger/internal/logging"
	"github.com/sipico/consent-logger/internal/proof"
	"github.com/sipico/consent-logger/internal/retention"
	"github.com/sipico/consent-logger/internal/schedule"
	"github.com/sipico/consent-logger/internal/storage"
)

// Config holds all application configuration.
type Config struct {
	LogLevel          string // debug, info, warn, error
	LogFormat         string // json or text
	ListenAddr        string // Server listen address (e.g., ":8080")
	MetricsListenAddr string // Metrics listener address (e.g., "localhost:9090")

	DatabaseDriver string // sqlite or postgres
	DatabasePath   string // SQLite database path
	DatabaseURL    string // Postgres DSN

	MasterAPIKey string // Required: bootstrap key for creating the first admin token
	ProofSecret  string // Required: keys proof document digests
	ProofFormat  string // pdf or html

	SiteURL    string // Required: the site whose cookies are scanned
	SiteName   string
	AdminEmail string

	TrustProxyHeaders bool   // take the client address from X-Forwarded-For / X-Real-IP
	CountryHeader     string // header carrying the visitor country, e.g. CF-IPCountry

	// Scanner defaults; saved settings override them at runtime.
	ScanEnabled        bool
	ScanTime           string // HH:MM
	EmailNotifications bool
	AutoCategorize     bool
	BannerIntegration  bool

	ScanTimeout      time.Duration
	ThemeDir         string
	PluginsDir       string
	ActiveComponents []string

	SMTPAddr     string // host:port; empty disables email
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
	NotifyEmail  string // defaults to AdminEmail

	RetentionMonths int // 0 keeps records forever

	RedisURL string // optional; enables the distributed scan lock
}

// Load parses configuration from environment variables.
// Optional settings have defaults; malformed values are errors.
func Load() (*Config, error) {
	cfg := &Config{
		LogLevel:          envOr("LOG_LEVEL", "info"),
		LogFormat:         envOr("LOG_FORMAT", "json"),
		ListenAddr:        envOr("LISTEN_ADDR", ":8080"),
		MetricsListenAddr: envOr("METRICS_LISTEN_ADDR", "localhost:9090"),

		DatabaseDriver: envOr("DATABASE_DRIVER", storage.DriverSQLite),
		DatabasePath:   envOr("DATABASE_PATH", "/data/consent.db"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),

		MasterAPIKey: os.Getenv("MASTER_API_KEY"),
		ProofSecret:  os.Getenv("PROOF_SECRET"),
		ProofFormat:  envOr("PROOF_FORMAT", string(proof.FormatPDF)),

		SiteURL:    strings.TrimRight(os.Getenv("SITE_URL"), "/"),
		SiteName:   os.Getenv("SITE_NAME"),
		AdminEmail: os.Getenv("ADMIN_EMAIL"),

		CountryHeader: os.Getenv("COUNTRY_HEADER"),

		ScanTime:   envOr("SCAN_TIME", "02:00"),
		ThemeDir:   os.Getenv("THEME_DIR"),
		PluginsDir: os.Getenv("PLUGINS_DIR"),

		SMTPAddr:     os.Getenv("SMTP_ADDR"),
		SMTPUsername: os.Getenv("SMTP_USERNAME"),
		SMTPPassword: os.Getenv("SMTP_PASSWORD"),
		SMTPFrom:     os.Getenv("SMTP_FROM"),
		NotifyEmail:  envOr("NOTIFY_EMAIL", os.Getenv("ADMIN_EMAIL")),

		RedisURL: os.Getenv("REDIS_URL"),
	}

	if v := os.Getenv("ACTIVE_COMPONENTS"); v != "" {
		for c := range strings.SplitSeq(v, ",") {
			if c = strings.TrimSpace(c); c != "" {
				cfg.ActiveComponents = append(cfg.ActiveComponents, c)
			}
		}
	}

	var errs []error
	cfg.TrustProxyHeaders = envBool("TRUST_PROXY_HEADERS", false, &errs)
	cfg.ScanEnabled = envBool("SCAN_ENABLED", true, &errs)
	cfg.EmailNotifications = envBool("EMAIL_NOTIFICATIONS", true, &errs)
	cfg.AutoCategorize = envBool("AUTO_CATEGORIZE", true, &errs)
	cfg.BannerIntegration = envBool("BANNER_INTEGRATION", true, &errs)
	cfg.ScanTimeout = envDuration("SCAN_TIMEOUT", 30*time.Second, &errs)
	cfg.RetentionMonths = envInt("RETENTION_MONTHS", 0, &errs)

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks all configuration constraints.
func (c *Config) Validate() error {
	if c.MasterAPIKey == "" {
		return fmt.Errorf("MASTER_API_KEY environment variable is required")
	}
	if len(c.ProofSecret) < proof.MinSecretLen {
		return fmt.Errorf("PROOF_SECRET must be at least %d bytes", proof.MinSecretLen)
	}
	if _, err := proof.ParseFormat(c.ProofFormat); err != nil {
		return fmt.Errorf("PROOF_FORMAT: %w", err)
	}

	u, err := url.Parse(c.SiteURL)
	if c.SiteURL == "" || err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("SITE_URL must be an absolute http or https URL, got %q", c.SiteURL)
	}

	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("LOG_LEVEL: %w", err)
	}
	if c.LogFormat != "json" && c.LogFormat != "text" {
		return fmt.Errorf("LOG_FORMAT must be json or text, got %q", c.LogFormat)
	}

	switch c.DatabaseDriver {
	case storage.DriverSQLite:
		if c.DatabasePath == "" {
			return fmt.Errorf("DATABASE_PATH is required for sqlite")
		}
	case storage.DriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for postgres")
		}
	default:
		return fmt.Errorf("DATABASE_DRIVER must be %s or %s, got %q", storage.DriverSQLite, storage.DriverPostgres, c.DatabaseDriver)
	}

	if _, _, err := schedule.ParseTimeOfDay(c.ScanTime); err != nil {
		return fmt.Errorf("SCAN_TIME: %w", err)
	}
	if c.ScanTimeout <= 0 {
		return fmt.Errorf("SCAN_TIMEOUT must be positive")
	}
	if c.RetentionMonths < 0 || (c.RetentionMonths > 0 && c.RetentionMonths < retention.MinMonths) {
		return fmt.Errorf("RETENTION_MONTHS: %w (or 0 to keep records forever)", retention.ErrRetentionTooShort)
	}

	if c.SMTPAddr != "" && (c.SMTPFrom == "" || c.NotifyEmail == "") {
		return fmt.Errorf("SMTP_ADDR requires SMTP_FROM and NOTIFY_EMAIL (or ADMIN_EMAIL)")
	}
	if c.RedisURL != "" {
		if _, err := redis.ParseURL(c.RedisURL); err != nil {
			return fmt.Errorf("REDIS_URL: %w", err)
		}
	}
	return nil
}

// DatabaseDSN returns the data source for the configured driver.
func (c *Config) DatabaseDSN() string {
	if c.DatabaseDriver == storage.DriverPostgres {
		return c.DatabaseURL
	}
	return c.DatabasePath
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envBool(key string, def bool, errs *[]error) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s must be a boolean, got %q", key, v))
		return def
	}
	return b
}

func envInt(key string, def int, errs *[]error) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s must be an integer, got %q", key, v))
		return def
	}
	return n
}

func envDuration(key string, def time.Duration, errs *[]error) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s must be a duration such as 30s, got %q", key, v))
		return def
	}
	return d
}

package config

import (
	"strings"
	"testing"
	"time"
)

// configEnv lists every variable Load reads.
var configEnv = []string{
	"LOG_LEVEL", "LOG_FORMAT", "LISTEN_ADDR", "METRICS_LISTEN_ADDR",
	"DATABASE_DRIVER", "DATABASE_PATH", "DATABASE_URL",
	"MASTER_API_KEY", "PROOF_SECRET", "PROOF_FORMAT",
	"SITE_URL", "SITE_NAME", "ADMIN_EMAIL",
	"TRUST_PROXY_HEADERS", "COUNTRY_HEADER",
	"SCAN_ENABLED", "SCAN_TIME", "SCAN_TIMEOUT", "EMAIL_NOTIFICATIONS", "AUTO_CATEGORIZE", "BANNER_INTEGRATION",
	"THEME_DIR", "PLUGINS_DIR", "ACTIVE_COMPONENTS",
	"SMTP_ADDR", "SMTP_USERNAME", "SMTP_PASSWORD", "SMTP_FROM", "NOTIFY_EMAIL",
	"RETENTION_MONTHS", "REDIS_URL",
}

// clearEnv blanks every config variable for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range configEnv {
		t.Setenv(k, "")
	}
}

func validConfig() *Config {
	return &Config{
		LogLevel:       "info",
		LogFormat:      "json",
		DatabaseDriver: "sqlite",
		DatabasePath:   "/data/consent.db",
		MasterAPIKey:   "master",
		ProofSecret:    strings.Repeat("k", 32),
		ProofFormat:    "pdf",
		SiteURL:        "https://shop.example.com",
		ScanTime:       "02:00",
		ScanTimeout:    30 * time.Second,
	}
}

func TestLoad_DefaultValues(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v, want nil", err)
	}

	checks := []struct {
		name string
		got  any
		want any
	}{
		{"LogLevel", cfg.LogLevel, "info"},
		{"LogFormat", cfg.LogFormat, "json"},
		{"ListenAddr", cfg.ListenAddr, ":8080"},
		{"MetricsListenAddr", cfg.MetricsListenAddr, "localhost:9090"},
		{"DatabaseDriver", cfg.DatabaseDriver, "sqlite"},
		{"DatabasePath", cfg.DatabasePath, "/data/consent.db"},
		{"ProofFormat", cfg.ProofFormat, "pdf"},
		{"TrustProxyHeaders", cfg.TrustProxyHeaders, false},
		{"ScanEnabled", cfg.ScanEnabled, true},
		{"ScanTime", cfg.ScanTime, "02:00"},
		{"ScanTimeout", cfg.ScanTimeout, 30 * time.Second},
		{"EmailNotifications", cfg.EmailNotifications, true},
		{"AutoCategorize", cfg.AutoCategorize, true},
		{"BannerIntegration", cfg.BannerIntegration, true},
		{"RetentionMonths", cfg.RetentionMonths, 0},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %v, want %v (default)", c.name, c.got, c.want)
		}
	}
	if cfg.ActiveComponents != nil {
		t.Errorf("ActiveComponents = %v, want nil", cfg.ActiveComponents)
	}
}

func TestLoad_CustomValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "text")
	t.Setenv("DATABASE_DRIVER", "postgres")
	t.Setenv("DATABASE_URL", "postgres://consent:secret@db:5432/consent")
	t.Setenv("SITE_URL", "https://shop.example.com/")
	t.Setenv("TRUST_PROXY_HEADERS", "true")
	t.Setenv("COUNTRY_HEADER", "CF-IPCountry")
	t.Setenv("SCAN_ENABLED", "false")
	t.Setenv("SCAN_TIMEOUT", "10s")
	t.Setenv("ACTIVE_COMPONENTS", " woocommerce, ,jetpack ")
	t.Setenv("ADMIN_EMAIL", "dpo@example.com")
	t.Setenv("RETENTION_MONTHS", "24")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v, want nil", err)
	}

	if cfg.SiteURL != "https://shop.example.com" {
		t.Errorf("SiteURL = %q, trailing slash should be trimmed", cfg.SiteURL)
	}
	if !cfg.TrustProxyHeaders || cfg.ScanEnabled {
		t.Errorf("booleans not parsed: trust=%v scan=%v", cfg.TrustProxyHeaders, cfg.ScanEnabled)
	}
	if cfg.ScanTimeout != 10*time.Second {
		t.Errorf("ScanTimeout = %v", cfg.ScanTimeout)
	}
	if strings.Join(cfg.ActiveComponents, "|") != "woocommerce|jetpack" {
		t.Errorf("ActiveComponents = %v", cfg.ActiveComponents)
	}
	if cfg.NotifyEmail != "dpo@example.com" {
		t.Errorf("NotifyEmail = %q, should default to ADMIN_EMAIL", cfg.NotifyEmail)
	}
	if cfg.RetentionMonths != 24 {
		t.Errorf("RetentionMonths = %d", cfg.RetentionMonths)
	}
	if cfg.DatabaseDSN() != "postgres://consent:secret@db:5432/consent" {
		t.Errorf("DatabaseDSN() = %q", cfg.DatabaseDSN())
	}
}

func TestLoad_MalformedValues(t *testing.T) {
	tests := []struct {
		key   string
		value string
	}{
		{"TRUST_PROXY_HEADERS", "sometimes"},
		{"SCAN_TIMEOUT", "thirty"},
		{"RETENTION_MONTHS", "a year"},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.value)

			_, err := Load()
			if err == nil || !strings.Contains(err.Error(), tt.key) {
				t.Errorf("Load() error = %v, want error naming %s", err, tt.key)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "missing master key", mutate: func(c *Config) { c.MasterAPIKey = "" }, wantErr: "MASTER_API_KEY"},
		{name: "short proof secret", mutate: func(c *Config) { c.ProofSecret = "short" }, wantErr: "PROOF_SECRET"},
		{name: "unknown proof format", mutate: func(c *Config) { c.ProofFormat = "docx" }, wantErr: "PROOF_FORMAT"},
		{name: "missing site url", mutate: func(c *Config) { c.SiteURL = "" }, wantErr: "SITE_URL"},
		{name: "relative site url", mutate: func(c *Config) { c.SiteURL = "shop.example.com" }, wantErr: "SITE_URL"},
		{name: "ftp site url", mutate: func(c *Config) { c.SiteURL = "ftp://shop.example.com" }, wantErr: "SITE_URL"},
		{name: "bad log level", mutate: func(c *Config) { c.LogLevel = "loud" }, wantErr: "LOG_LEVEL"},
		{name: "bad log format", mutate: func(c *Config) { c.LogFormat = "xml" }, wantErr: "LOG_FORMAT"},
		{name: "unknown driver", mutate: func(c *Config) { c.DatabaseDriver = "mysql" }, wantErr: "DATABASE_DRIVER"},
		{name: "postgres without url", mutate: func(c *Config) { c.DatabaseDriver = "postgres" }, wantErr: "DATABASE_URL"},
		{name: "bad scan time", mutate: func(c *Config) { c.ScanTime = "2am" }, wantErr: "SCAN_TIME"},
		{name: "zero scan timeout", mutate: func(c *Config) { c.ScanTimeout = 0 }, wantErr: "SCAN_TIMEOUT"},
		{name: "retention too short", mutate: func(c *Config) { c.RetentionMonths = 6 }, wantErr: "RETENTION_MONTHS"},
		{name: "negative retention", mutate: func(c *Config) { c.RetentionMonths = -1 }, wantErr: "RETENTION_MONTHS"},
		{name: "retention of a year", mutate: func(c *Config) { c.RetentionMonths = 12 }},
		{name: "smtp without recipient", mutate: func(c *Config) { c.SMTPAddr = "mail:587"; c.SMTPFrom = "a@b" }, wantErr: "SMTP_ADDR"},
		{name: "smtp complete", mutate: func(c *Config) { c.SMTPAddr = "mail:587"; c.SMTPFrom = "a@b"; c.NotifyEmail = "c@d" }},
		{name: "bad redis url", mutate: func(c *Config) { c.RedisURL = "http://redis:6379" }, wantErr: "REDIS_URL"},
		{name: "redis url", mutate: func(c *Config) { c.RedisURL = "redis://redis:6379/0" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

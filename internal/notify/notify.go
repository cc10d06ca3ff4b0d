// Package notify tells the site operator about newly discovered cookies.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/sipico/consent-logger/internal/classifier"
	"github.com/sipico/consent-logger/internal/storage"
)

// ErrNotConfigured is returned when SMTP settings are incomplete.
var ErrNotConfigured = errors.New("smtp notifier is not configured")

// ActivityRecorder appends to the operational trail.
type ActivityRecorder interface {
	Record(ctx context.Context, message string)
}

// SMTPConfig configures mail delivery.
type SMTPConfig struct {
	Addr     string // host:port
	Username string
	Password string
	From     string
	To       string
	SiteName string
	SiteURL  string
	// BannerManaged changes the call to action: cookies were already added
	// to the banner rather than needing manual review.
	BannerManaged bool
}

// SendFunc delivers a message. Matches smtp.SendMail.
type SendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPNotifier emails a summary of new cookies.
type SMTPNotifier struct {
	cfg      SMTPConfig
	send     SendFunc
	activity ActivityRecorder
	logger   *slog.Logger
	now      func() time.Time
}

// NewSMTPNotifier validates cfg and creates a notifier.
func NewSMTPNotifier(cfg SMTPConfig, activity ActivityRecorder, logger *slog.Logger) (*SMTPNotifier, error) {
	if cfg.Addr == "" || cfg.From == "" || cfg.To == "" {
		return nil, ErrNotConfigured
	}
	if _, _, err := net.SplitHostPort(cfg.Addr); err != nil {
		return nil, fmt.Errorf("%w: invalid address %q: %w", ErrNotConfigured, cfg.Addr, err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SMTPNotifier{
		cfg:      cfg,
		send:     smtp.SendMail,
		activity: activity,
		logger:   logger,
		now:      time.Now,
	}, nil
}

// NotifyNewCookies sends one email listing cookies.
func (n *SMTPNotifier) NotifyNewCookies(ctx context.Context, cookies []*storage.TrackedCookie) error {
	if len(cookies) == 0 {
		return nil
	}

	var auth smtp.Auth
	if n.cfg.Username != "" {
		host, _, _ := net.SplitHostPort(n.cfg.Addr)
		auth = smtp.PlainAuth("", n.cfg.Username, n.cfg.Password, host)
	}

	msg := n.message(cookies)
	if err := n.send(n.cfg.Addr, auth, n.cfg.From, []string{n.cfg.To}, msg); err != nil {
		return fmt.Errorf("failed to send notification: %w", err)
	}

	n.logger.Info("new cookie notification sent", "to", n.cfg.To, "cookies", len(cookies))
	n.activity.Record(ctx, "Notification email sent to "+n.cfg.To)
	return nil
}

// Subject returns the email subject for a site.
func Subject(siteName string) string {
	return fmt.Sprintf("[%s] New Cookies Detected - Action Required", siteName)
}

// Body renders the plain-text summary of cookies.
func Body(cookies []*storage.TrackedCookie, siteURL string, bannerManaged bool) string {
	var b strings.Builder
	b.WriteString("Hello,\n\n")
	fmt.Fprintf(&b, "The consent logger has detected %d new cookies on your website:\n\n", len(cookies))

	for _, c := range cookies {
		fmt.Fprintf(&b, "- %s\n", c.Name)
		fmt.Fprintf(&b, "  Category: %s\n", classifier.TitleCase(c.Category))
		source := c.Source
		if source == "" {
			source = "Unknown"
		}
		fmt.Fprintf(&b, "  Source: %s\n", source)
		if c.Description != "" {
			fmt.Fprintf(&b, "  Description: %s\n", c.Description)
		}
		b.WriteString("\n")
	}

	b.WriteString("These cookies have been automatically categorized and ")
	if bannerManaged {
		b.WriteString("added to your consent banner configuration.\n\n")
	} else {
		b.WriteString("stored in the system. Please review them and add them to your consent banner manually.\n\n")
	}

	b.WriteString("Best regards,\nConsent Logger\n")
	b.WriteString(siteURL)
	b.WriteString("\n")
	return b.String()
}

func (n *SMTPNotifier) message(cookies []*storage.TrackedCookie) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", n.cfg.From)
	fmt.Fprintf(&b, "To: %s\r\n", n.cfg.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", Subject(n.cfg.SiteName))
	fmt.Fprintf(&b, "Date: %s\r\n", n.now().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(Body(cookies, n.cfg.SiteURL, n.cfg.BannerManaged), "\n", "\r\n"))
	return []byte(b.String())
}

// LogNotifier writes the notification to the structured log. Used when no
// mail server is configured.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a LogNotifier. A nil logger uses slog.Default().
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

// NotifyNewCookies logs the cookie names and categories.
func (n *LogNotifier) NotifyNewCookies(_ context.Context, cookies []*storage.TrackedCookie) error {
	names := make([]string, 0, len(cookies))
	for _, c := range cookies {
		names = append(names, c.Name+" ("+c.Category+")")
	}
	n.logger.Warn("new cookies detected, review required", "count", len(cookies), "cookies", names)
	return nil
}

package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

// TestInitRegistersAllMetrics re-initializes the globals, so it must not run in parallel.
func TestInitRegistersAllMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	if err := Init(reg); err != nil {
		t.Fatalf("Init() failed: %v", err)
	}

	RecordRequest("GET", "/consent", "200")
	RecordRequestDuration("GET", "/consent", "200", 0.05)
	RecordAuthFailure("invalid_key")
	RecordConsent("accepted")
	RecordConsentFailure("invalid_payload")
	RecordProof("pdf")
	RecordScan("no_new_cookies", 1.2)
	RecordCookieDiscovered("analytics")
	RecordConsentsPurged(3)

	text, err := GetMetricsText(reg)
	if err != nil {
		t.Fatalf("GetMetricsText failed: %v", err)
	}

	expected := []string{
		"consent_logger_requests_total",
		"consent_logger_request_duration_seconds",
		"consent_logger_auth_failures_total",
		"consent_logger_consents_recorded_total",
		"consent_logger_consent_failures_total",
		"consent_logger_proofs_generated_total",
		"consent_logger_scans_total",
		"consent_logger_scan_duration_seconds",
		"consent_logger_cookies_discovered_total",
		"consent_logger_consents_purged_total 3",
		"consent_logger_info",
	}
	for _, name := range expected {
		if !strings.Contains(text, name) {
			t.Errorf("expected %q in metrics output", name)
		}
	}
}

func TestInitRejectsDoubleRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	if err := Init(reg); err != nil {
		t.Fatalf("first Init() failed: %v", err)
	}
	if err := Init(reg); err == nil {
		t.Error("expected error registering metrics twice on one registry")
	}
}

func TestRecordConsent_FoldsUnknownStatuses(t *testing.T) {
	reg := prometheus.NewRegistry()
	if err := Init(reg); err != nil {
		t.Fatalf("Init() failed: %v", err)
	}

	RecordConsent("accepted")
	RecordConsent("partially-accepted")
	RecordConsent("custom")

	text, err := GetMetricsText(reg)
	if err != nil {
		t.Fatalf("GetMetricsText failed: %v", err)
	}
	if !strings.Contains(text, `consent_logger_consents_recorded_total{status_class="other"} 2`) {
		t.Errorf("expected free-form statuses folded into other, got:\n%s", text)
	}
	if strings.Contains(text, "partially-accepted") {
		t.Error("free-form status leaked into a label value")
	}
}

func TestHandlerReturnsHTTPHandler(t *testing.T) {
	t.Parallel()

	if Handler() == nil {
		t.Fatal("Handler() returned nil")
	}
}

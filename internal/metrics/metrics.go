// Package metrics provides Prometheus metrics for the consent logger.
package metrics

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	namespace = "consent"
	subsystem = "logger"
)

// Version is reported by the info gauge. Overridden at build time.
var Version = "dev"

var (
	// Global metrics, stored in atomics so Record* calls are safe before Init.
	requestsTotal     atomic.Pointer[prometheus.CounterVec]
	requestDuration   atomic.Pointer[prometheus.HistogramVec]
	authFailuresTotal atomic.Pointer[prometheus.CounterVec]

	consentsRecorded  atomic.Pointer[prometheus.CounterVec]
	consentFailures   atomic.Pointer[prometheus.CounterVec]
	proofsGenerated   atomic.Pointer[prometheus.CounterVec]
	scansTotal        atomic.Pointer[prometheus.CounterVec]
	scanDuration      atomic.Pointer[prometheus.Histogram]
	cookiesDiscovered atomic.Pointer[prometheus.CounterVec]
	consentsPurged    atomic.Pointer[prometheus.Counter]
)

func newCounterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Subsystem: subsystem, Name: name, Help: help},
		labels,
	)
}

// Init creates all metrics and registers them with reg.
// Call once at startup.
func Init(reg prometheus.Registerer) error {
	requestsTotalVec := newCounterVec("requests_total",
		"Total number of HTTP requests handled", "method", "path", "status")

	requestDurationVec := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	authFailuresVec := newCounterVec("auth_failures_total",
		"Total number of admin authentication failures", "reason")

	consentsRecordedVec := newCounterVec("consents_recorded_total",
		"Consent records appended, by status class", "status_class")

	consentFailuresVec := newCounterVec("consent_failures_total",
		"Consent submissions that were not recorded, by reason", "reason")

	proofsGeneratedVec := newCounterVec("proofs_generated_total",
		"Proof documents rendered, by format", "format")

	scansTotalVec := newCounterVec("scans_total",
		"Cookie scans run, by outcome", "outcome")

	scanDurationHist := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "scan_duration_seconds",
		Help:      "Cookie scan duration in seconds",
		Buckets:   []float64{.1, .5, 1, 2.5, 5, 10, 30, 60},
	})

	cookiesDiscoveredVec := newCounterVec("cookies_discovered_total",
		"New cookies added to the registry, by category", "category")

	consentsPurgedCounter := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "consents_purged_total",
		Help:      "Consent records deleted by the retention job",
	})

	infoGaugeVec := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "info",
			Help:      "Version and build information",
		},
		[]string{"version"},
	)

	collectors := map[string]prometheus.Collector{
		"requestsTotal":     requestsTotalVec,
		"requestDuration":   requestDurationVec,
		"authFailuresTotal": authFailuresVec,
		"consentsRecorded":  consentsRecordedVec,
		"consentFailures":   consentFailuresVec,
		"proofsGenerated":   proofsGeneratedVec,
		"scansTotal":        scansTotalVec,
		"scanDuration":      scanDurationHist,
		"cookiesDiscovered": cookiesDiscoveredVec,
		"consentsPurged":    consentsPurgedCounter,
		"infoGauge":         infoGaugeVec,
	}
	for name, c := range collectors {
		if err := reg.Register(c); err != nil {
			return fmt.Errorf("failed to register %s: %w", name, err)
		}
	}
	infoGaugeVec.WithLabelValues(Version).Set(1)

	requestsTotal.Store(requestsTotalVec)
	requestDuration.Store(requestDurationVec)
	authFailuresTotal.Store(authFailuresVec)
	consentsRecorded.Store(consentsRecordedVec)
	consentFailures.Store(consentFailuresVec)
	proofsGenerated.Store(proofsGeneratedVec)
	scansTotal.Store(scansTotalVec)
	scanDuration.Store(&scanDurationHist)
	cookiesDiscovered.Store(cookiesDiscoveredVec)
	consentsPurged.Store(&consentsPurgedCounter)

	return nil
}

// RecordRequest increments the requests counter. path should be a route
// pattern, not the raw URL path.
func RecordRequest(method, path, statusCode string) {
	if counter := requestsTotal.Load(); counter != nil {
		counter.WithLabelValues(method, path, statusCode).Inc()
	}
}

// RecordRequestDuration records request latency in seconds.
func RecordRequestDuration(method, path, statusCode string, durationSeconds float64) {
	if histogram := requestDuration.Load(); histogram != nil {
		histogram.WithLabelValues(method, path, statusCode).Observe(durationSeconds)
	}
}

// RecordAuthFailure increments the auth failures counter.
// Reasons: "missing_key", "invalid_key", "permission_denied".
func RecordAuthFailure(reason string) {
	if counter := authFailuresTotal.Load(); counter != nil {
		counter.WithLabelValues(reason).Inc()
	}
}

// RecordConsent counts an appended consent record. Free-form statuses are
// folded into "other" to bound cardinality.
func RecordConsent(status string) {
	class := "other"
	switch status {
	case "accepted", "rejected":
		class = status
	}
	if counter := consentsRecorded.Load(); counter != nil {
		counter.WithLabelValues(class).Inc()
	}
}

// RecordConsentFailure counts a rejected or failed submission.
// Reasons: "invalid_payload", "storage_failure".
func RecordConsentFailure(reason string) {
	if counter := consentFailures.Load(); counter != nil {
		counter.WithLabelValues(reason).Inc()
	}
}

// RecordProof counts a rendered proof document.
func RecordProof(format string) {
	if counter := proofsGenerated.Load(); counter != nil {
		counter.WithLabelValues(format).Inc()
	}
}

// RecordScan records a finished scan. Outcomes: "new_cookies",
// "no_new_cookies", "failed".
func RecordScan(outcome string, durationSeconds float64) {
	if counter := scansTotal.Load(); counter != nil {
		counter.WithLabelValues(outcome).Inc()
	}
	if h := scanDuration.Load(); h != nil {
		(*h).Observe(durationSeconds)
	}
}

// RecordCookieDiscovered counts a cookie newly added to the registry.
func RecordCookieDiscovered(category string) {
	if counter := cookiesDiscovered.Load(); counter != nil {
		counter.WithLabelValues(category).Inc()
	}
}

// RecordConsentsPurged adds n deleted records.
func RecordConsentsPurged(n int64) {
	if c := consentsPurged.Load(); c != nil && n > 0 {
		(*c).Add(float64(n))
	}
}

// Handler returns the Prometheus HTTP handler for the default gatherer.
func Handler() http.Handler {
	return promhttp.Handler()
}

// HandlerFor returns a Prometheus HTTP handler for reg.
func HandlerFor(reg prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

// GetMetricsText returns the text exposition of reg. Used by tests.
func GetMetricsText(reg prometheus.Gatherer) (string, error) {
	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()

	HandlerFor(reg).ServeHTTP(w, req)

	body, err := io.ReadAll(w.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read metrics output: %w", err)
	}

	return string(body), nil
}

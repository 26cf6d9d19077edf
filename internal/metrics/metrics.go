// Package metrics exposes Prometheus collectors for the archiver service.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Crawl outcome labels.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
	OutcomeTimeout   = "timeout"
	OutcomeQuota     = "quota"
	OutcomeRejected  = "rejected"
)

var (
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	crawlsTotal                *prometheus.CounterVec
	crawlDurationSeconds       prometheus.Histogram
	crawlPagesTotal            *prometheus.CounterVec
	crawlsInFlight             prometheus.Gauge
	archiveBytesTotal          prometheus.Counter
	archivesDeletedTotal       *prometheus.CounterVec
	authFailuresTotal          prometheus.Counter

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 30, 120, 600},
			},
			[]string{"method", "route"},
		)

		crawlsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "archiver_crawls_total",
				Help: "Total number of crawl requests, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		crawlDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "archiver_crawl_duration_seconds",
				Help:    "Time from job submission to a terminal crawl state.",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
			},
		)

		crawlPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "archiver_pages_total",
				Help: "Total number of pages archived, labeled by site.",
			},
			[]string{"site"},
		)

		crawlsInFlight = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "archiver_crawls_in_flight",
				Help: "Number of crawl jobs currently being polled.",
			},
		)

		archiveBytesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "archiver_archive_bytes_total",
				Help: "Total bytes of zip archives written.",
			},
		)

		archivesDeletedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "archiver_archives_deleted_total",
				Help: "Archives removed, labeled by reason (expired or downloaded).",
			},
			[]string{"reason"},
		)

		authFailuresTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "archiver_auth_failures_total",
				Help: "Rejected authentication attempts.",
			},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveCrawl records the outcome and duration of one crawl job.
func ObserveCrawl(outcome string, duration time.Duration) {
	Init()
	crawlsTotal.WithLabelValues(outcome).Inc()
	if duration > 0 {
		crawlDurationSeconds.Observe(duration.Seconds())
	}
}

// ObservePages adds archived pages for a site.
func ObservePages(site string, pages int) {
	Init()
	if pages > 0 {
		crawlPagesTotal.WithLabelValues(SanitizeSite(site)).Add(float64(pages))
	}
}

// ObserveArchiveBytes adds the size of a newly written archive.
func ObserveArchiveBytes(n int64) {
	Init()
	if n > 0 {
		archiveBytesTotal.Add(float64(n))
	}
}

// ObserveArchiveDeleted counts a removed archive.
func ObserveArchiveDeleted(reason string) {
	Init()
	archivesDeletedTotal.WithLabelValues(reason).Inc()
}

// ObserveAuthFailure counts a rejected login.
func ObserveAuthFailure() {
	Init()
	authFailuresTotal.Inc()
}

// IncCrawlsInFlight increments the in-flight crawl gauge.
func IncCrawlsInFlight() {
	Init()
	crawlsInFlight.Inc()
}

// DecCrawlsInFlight decrements the in-flight crawl gauge.
func DecCrawlsInFlight() {
	Init()
	crawlsInFlight.Dec()
}

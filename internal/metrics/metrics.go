// Package metrics exposes Prometheus collectors for task resolution.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	// Namespace is the namespace for all seo-cli metrics.
	Namespace = "seo"

	// Subsystem is the subsystem for Lighthouse resolution metrics.
	Subsystem = "lighthouse"
)

// Metrics holds the resolution collectors. It satisfies lighthouse.Recorder.
type Metrics struct {
	Attempts           *prometheus.CounterVec
	Resolutions        *prometheus.CounterVec
	ResolutionDuration *prometheus.HistogramVec
	CacheRequests      *prometheus.CounterVec
	HTTPRequests       *prometheus.CounterVec
}

// NewMetrics creates and registers all collectors on reg. A nil reg uses the
// default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		Attempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Subsystem,
			Name:      "stage_attempts_total",
			Help:      "Resolution stage attempts by stage and outcome",
		}, []string{"stage", "outcome"}),

		Resolutions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Subsystem,
			Name:      "resolutions_total",
			Help:      "Finished resolutions by terminal status and source",
		}, []string{"status", "source"}),

		ResolutionDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: Subsystem,
			Name:      "resolution_duration_seconds",
			Help:      "Wall time of one resolution pass",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"status"}),

		CacheRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Subsystem,
			Name:      "cache_requests_total",
			Help:      "Result cache operations by result (hit, miss, evict, error)",
		}, []string{"result"}),

		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Subsystem,
			Name:      "http_requests_total",
			Help:      "task-get requests by response code",
		}, []string{"code"}),
	}
}

// RecordAttempt counts one stage attempt.
func (m *Metrics) RecordAttempt(stage, outcome string) {
	m.Attempts.WithLabelValues(stage, outcome).Inc()
}

// RecordResolution counts a finished resolution and observes its duration.
// Alternate-fallback sources carry the variant after a colon, which is
// dropped to keep label cardinality bounded.
func (m *Metrics) RecordResolution(status, source string, elapsed time.Duration) {
	source, _, _ = strings.Cut(source, ":")
	if source == "" {
		source = "none"
	}
	m.Resolutions.WithLabelValues(status, source).Inc()
	m.ResolutionDuration.WithLabelValues(status).Observe(elapsed.Seconds())
}

// RecordCache counts a cache lookup result.
func (m *Metrics) RecordCache(result string) {
	m.CacheRequests.WithLabelValues(result).Inc()
}

// RecordHTTP counts a task-get response.
func (m *Metrics) RecordHTTP(code int) {
	m.HTTPRequests.WithLabelValues(strconv.Itoa(code)).Inc()
}

// Handler serves the metrics gathered by g for /metrics.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

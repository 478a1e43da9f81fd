package observability

import (
	"time"

	"github.com/boddenberg/ledger-overview-bfa/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Metrics holds all Prometheus metrics for the BFA.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can use it.
	Registry *prometheus.Registry

	requestDuration *prometheus.HistogramVec
	externalErrors  *prometheus.CounterVec
	cacheHits       *prometheus.CounterVec
	cacheMisses     *prometheus.CounterVec
	overviews       *prometheus.CounterVec
	anomalies       *prometheus.CounterVec
}

// NewMetrics creates a dedicated Prometheus registry and registers all
// application metrics in it. Using a private registry avoids "duplicate
// collector" panics when NewMetrics is called more than once (e.g. in tests).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bfa_request_duration_seconds",
				Help:    "Duration of requests by operation.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		externalErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bfa_external_errors_total",
				Help: "Total errors from external services.",
			},
			[]string{"service"},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bfa_cache_hits_total",
				Help: "Total cache hits.",
			},
			[]string{"cache"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bfa_cache_misses_total",
				Help: "Total cache misses.",
			},
			[]string{"cache"},
		),
		overviews: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bfa_overviews_total",
				Help: "Overviews served, by origin (local aggregation or remote endpoint) and scope.",
			},
			[]string{"origin", "scope"},
		),
		anomalies: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bfa_ledger_anomalies_total",
				Help: "Ledger rows excluded from aggregation, by reason.",
			},
			[]string{"reason"},
		),
	}
}

// RecordRequestDuration records the duration of an operation.
func (m *Metrics) RecordRequestDuration(operation string, d time.Duration) {
	m.requestDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// IncrExternalError increments the external error counter.
func (m *Metrics) IncrExternalError(service string) {
	m.externalErrors.WithLabelValues(service).Inc()
}

// IncrCacheHit increments the cache hit counter.
func (m *Metrics) IncrCacheHit(cache string) {
	m.cacheHits.WithLabelValues(cache).Inc()
}

// IncrCacheMiss increments the cache miss counter.
func (m *Metrics) IncrCacheMiss(cache string) {
	m.cacheMisses.WithLabelValues(cache).Inc()
}

// IncrOverview counts a served overview.
func (m *Metrics) IncrOverview(origin string, scope domain.Scope) {
	m.overviews.WithLabelValues(origin, string(scope)).Inc()
}

// RecordAnomalies counts anomalies by reason.
func (m *Metrics) RecordAnomalies(anomalies []domain.Anomaly) {
	for _, a := range anomalies {
		m.anomalies.WithLabelValues(string(a.Reason)).Inc()
	}
}

// Snapshot returns the analytics counters for GET /api/v1/metrics/analytics.
func (m *Metrics) Snapshot() *domain.AnalyticsMetrics {
	hits := sumCounter(m.cacheHits)
	misses := sumCounter(m.cacheMisses)

	hitRate := float64(0)
	if hits+misses > 0 {
		hitRate = hits / (hits + misses)
	}

	return &domain.AnalyticsMetrics{
		OverviewsLocal:  int64(sumCounterWhere(m.overviews, "origin", "local")),
		OverviewsRemote: int64(sumCounterWhere(m.overviews, "origin", "remote")),
		Anomalies:       int64(sumCounter(m.anomalies)),
		CacheHitRate:    hitRate,
		ExternalErrors:  int64(sumCounter(m.externalErrors)),
	}
}

// sumCounter adds up every series of a CounterVec.
func sumCounter(cv *prometheus.CounterVec) float64 {
	return sumCounterWhere(cv, "", "")
}

// sumCounterWhere adds up the series of cv whose label name equals value.
// An empty name matches every series.
func sumCounterWhere(cv *prometheus.CounterVec, name, value string) float64 {
	ch := make(chan prometheus.Metric, 64)
	go func() {
		cv.Collect(ch)
		close(ch)
	}()

	var total float64
	for metric := range ch {
		m := &dto.Metric{}
		if err := metric.Write(m); err != nil || m.Counter == nil {
			continue
		}
		if name != "" && !hasLabel(m, name, value) {
			continue
		}
		total += m.Counter.GetValue()
	}
	return total
}

func hasLabel(m *dto.Metric, name, value string) bool {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == name && lp.GetValue() == value {
			return true
		}
	}
	return false
}

// Package metrics provides Prometheus instrumentation for the engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for the playback engine.
type Metrics struct {
	registry            *prometheus.Registry
	resolutionsTotal    *prometheus.CounterVec
	cacheHitsTotal      prometheus.Counter
	recoveryRefused     prometheus.Counter
	playbackErrorsTotal *prometheus.CounterVec
	autoSkipsTotal      prometheus.Counter
	queueLength         prometheus.Gauge
}

// New creates and registers Prometheus metrics for the engine.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	resolutionsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "resono_resolutions_total",
		Help: "Total number of external stream resolution attempts",
	}, []string{"result"})
	cacheHitsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "resono_stream_cache_hits_total",
		Help: "Total number of stream URL cache hits",
	})
	recoveryRefused := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "resono_recovery_refused_total",
		Help: "Total number of recovery attempts refused by the retry ledger",
	})
	playbackErrorsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "resono_playback_errors_total",
		Help: "Total number of playback errors by kind",
	}, []string{"kind"})
	autoSkipsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "resono_auto_skips_total",
		Help: "Total number of automatic skips after exhausted recovery",
	})
	queueLength := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "resono_queue_length",
		Help: "Number of items currently in the play queue",
	})

	registry.MustRegister(
		resolutionsTotal,
		cacheHitsTotal,
		recoveryRefused,
		playbackErrorsTotal,
		autoSkipsTotal,
		queueLength,
	)

	return &Metrics{
		registry:            registry,
		resolutionsTotal:    resolutionsTotal,
		cacheHitsTotal:      cacheHitsTotal,
		recoveryRefused:     recoveryRefused,
		playbackErrorsTotal: playbackErrorsTotal,
		autoSkipsTotal:      autoSkipsTotal,
		queueLength:         queueLength,
	}
}

// IncResolution increments the resolution counter for the given result
// ("ok", "error" or "no_stream").
func (m *Metrics) IncResolution(result string) {
	m.resolutionsTotal.WithLabelValues(result).Inc()
}

// IncCacheHit increments the stream cache hit counter.
func (m *Metrics) IncCacheHit() {
	m.cacheHitsTotal.Inc()
}

// IncRecoveryRefused increments the refused-recovery counter.
func (m *Metrics) IncRecoveryRefused() {
	m.recoveryRefused.Inc()
}

// IncPlaybackError increments the playback error counter for the given kind.
func (m *Metrics) IncPlaybackError(kind string) {
	m.playbackErrorsTotal.WithLabelValues(kind).Inc()
}

// IncAutoSkip increments the auto-skip counter.
func (m *Metrics) IncAutoSkip() {
	m.autoSkipsTotal.Inc()
}

// SetQueueLength sets the queue length gauge.
func (m *Metrics) SetQueueLength(n int) {
	m.queueLength.Set(float64(n))
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values.
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}

// Package metrics exposes Prometheus collectors for the harvester service.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	articlesTotal         *prometheus.CounterVec
	scrapeErrorsTotal     *prometheus.CounterVec
	scrapeDurationSeconds *prometheus.HistogramVec
	activeRenders         prometheus.Gauge
	relayEventsTotal      *prometheus.CounterVec
	relayRetriesTotal     prometheus.Counter
	relaySessionsActive   prometheus.Gauge

	once sync.Once
)

// Init registers the collectors. It is safe to call multiple times; every
// observation helper calls it so callers never have to.
func Init() {
	once.Do(func() {
		articlesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_articles_total",
				Help: "Article previews accepted, labeled by source and strategy.",
			},
			[]string{"source", "strategy"},
		)

		scrapeErrorsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_scrape_errors_total",
				Help: "Per-source fetch or render failures.",
			},
			[]string{"source"},
		)

		scrapeDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "harvester_scrape_duration_seconds",
				Help:    "Per-source scrape latency, labeled by source and strategy.",
				Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"source", "strategy"},
		)

		activeRenders = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "harvester_active_renders",
				Help: "Headless-browser fetches currently in flight.",
			},
		)

		relayEventsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_relay_events_total",
				Help: "Relay control and forwarded events, labeled by type.",
			},
			[]string{"type"},
		)

		relayRetriesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "harvester_relay_retries_total",
				Help: "Upstream reconnect attempts across all relay sessions.",
			},
		)

		relaySessionsActive = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "harvester_relay_sessions_active",
				Help: "Relay sessions currently open.",
			},
		)
	})
}

// Handler returns the Prometheus scrape endpoint handler.
func Handler() http.Handler {
	Init()
	return promhttp.Handler()
}

// ObserveScrape records one settled source fetch.
func ObserveScrape(src, strategy string, articles int, took time.Duration) {
	Init()
	articlesTotal.WithLabelValues(src, strategy).Add(float64(articles))
	scrapeDurationSeconds.WithLabelValues(src, strategy).Observe(took.Seconds())
}

// ObserveScrapeError counts one per-source failure.
func ObserveScrapeError(src string) {
	Init()
	scrapeErrorsTotal.WithLabelValues(src).Inc()
}

// IncActiveRenders marks one rendered fetch starting.
func IncActiveRenders() {
	Init()
	activeRenders.Inc()
}

// DecActiveRenders marks one rendered fetch finishing.
func DecActiveRenders() {
	Init()
	activeRenders.Dec()
}

// ObserveRelayEvent counts one downstream relay event by type.
func ObserveRelayEvent(eventType string) {
	Init()
	relayEventsTotal.WithLabelValues(eventType).Inc()
}

// ObserveRelayRetry counts one upstream reconnect attempt.
func ObserveRelayRetry() {
	Init()
	relayRetriesTotal.Inc()
}

// IncRelaySessions marks a relay session opening.
func IncRelaySessions() {
	Init()
	relaySessionsActive.Inc()
}

// DecRelaySessions marks a relay session closing.
func DecRelaySessions() {
	Init()
	relaySessionsActive.Dec()
}

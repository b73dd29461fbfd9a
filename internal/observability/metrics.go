package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// threat engine.
type Metrics struct {
	// Storm feed metrics.
	FeedRefreshes   *prometheus.CounterVec // labels: outcome={success,failure}
	RefreshDuration prometheus.Histogram
	FeedStale       prometheus.Gauge
	ActiveStorms    prometheus.Gauge

	// Alerting metrics.
	CriticalAlertCounties prometheus.Gauge
	AlertsPublished       prometheus.Counter
	AlertPublishErrors    prometheus.Counter

	// API metrics.
	RequestDuration *prometheus.HistogramVec // labels: route
}

// NewMetrics creates and registers all engine metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		FeedRefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "storm_threat",
			Name:      "feed_refreshes_total",
			Help:      "Storm feed refresh attempts by outcome.",
		}, []string{"outcome"}),
		RefreshDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "storm_threat",
			Name:      "feed_refresh_duration_seconds",
			Help:      "Duration of a storm feed fetch and swap.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		FeedStale: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "storm_threat",
			Name:      "feed_stale",
			Help:      "1 when the cached storm snapshot is past its TTL, 0 otherwise.",
		}),
		ActiveStorms: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "storm_threat",
			Name:      "active_storms",
			Help:      "Number of storms in the current feed snapshot.",
		}),
		CriticalAlertCounties: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "storm_threat",
			Name:      "critical_alert_counties",
			Help:      "Counties currently clearing both critical alert bars.",
		}),
		AlertsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "storm_threat",
			Name:      "alerts_published_total",
			Help:      "Critical alert messages written to the alerts topic.",
		}),
		AlertPublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "storm_threat",
			Name:      "alert_publish_errors_total",
			Help:      "Failed writes to the alerts topic.",
		}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "storm_threat",
			Name:      "request_duration_seconds",
			Help:      "API request duration by route.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5},
		}, []string{"route"}),
	}

	prometheus.MustRegister(
		m.FeedRefreshes,
		m.RefreshDuration,
		m.FeedStale,
		m.ActiveStorms,
		m.CriticalAlertCounties,
		m.AlertsPublished,
		m.AlertPublishErrors,
		m.RequestDuration,
	)

	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return &Metrics{
		FeedRefreshes:         prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "storm_threat", Name: "feed_refreshes_total"}, []string{"outcome"}),
		RefreshDuration:       prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: "storm_threat", Name: "feed_refresh_duration_seconds"}),
		FeedStale:             prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "storm_threat", Name: "feed_stale"}),
		ActiveStorms:          prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "storm_threat", Name: "active_storms"}),
		CriticalAlertCounties: prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "storm_threat", Name: "critical_alert_counties"}),
		AlertsPublished:       prometheus.NewCounter(prometheus.CounterOpts{Namespace: "storm_threat", Name: "alerts_published_total"}),
		AlertPublishErrors:    prometheus.NewCounter(prometheus.CounterOpts{Namespace: "storm_threat", Name: "alert_publish_errors_total"}),
		RequestDuration:       prometheus.NewHistogramVec(prometheus.HistogramOpts{Namespace: "storm_threat", Name: "request_duration_seconds"}, []string{"route"}),
	}
}

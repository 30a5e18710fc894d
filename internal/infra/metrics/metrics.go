// Package metrics exposes alert evaluation and delivery counters:
//
//	alertwatch_ticks_total
//	alertwatch_tick_duration_seconds
//	alertwatch_alerts_matched_total{status}
//	alertwatch_exchange_failures_total{exchange}
//	alertwatch_notifications_total{outcome}
//
// plus the go_* and process_* collectors.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry         *prometheus.Registry
	ticks            prometheus.Counter
	tickDuration     prometheus.Histogram
	matched          *prometheus.CounterVec
	exchangeFailures *prometheus.CounterVec
	notifications    *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "alertwatch_ticks_total",
			Help: "Number of completed alert evaluation ticks",
		}),
		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "alertwatch_tick_duration_seconds",
			Help:    "Wall time of one alert evaluation tick",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		matched: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "alertwatch_alerts_matched_total",
				Help: "Number of alerts that matched, by status",
			},
			[]string{"status"},
		),
		exchangeFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "alertwatch_exchange_failures_total",
				Help: "Number of failed pair or exchange evaluations",
			},
			[]string{"exchange"},
		),
		notifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "alertwatch_notifications_total",
				Help: "Number of processed notifications, by outcome",
			},
			[]string{"outcome"},
		),
	}
	m.registry.MustRegister(
		m.ticks,
		m.tickDuration,
		m.matched,
		m.exchangeFailures,
		m.notifications,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) TickCompleted(d time.Duration) {
	m.ticks.Inc()
	m.tickDuration.Observe(d.Seconds())
}

func (m *Metrics) AlertsMatched(status string, n int) {
	m.matched.WithLabelValues(status).Add(float64(n))
}

func (m *Metrics) ExchangeFailed(exchange string) {
	m.exchangeFailures.WithLabelValues(exchange).Inc()
}

// NotificationsProcessed counts delivered, retried, blocked, dropped or
// migrated notifications.
func (m *Metrics) NotificationsProcessed(outcome string, n int) {
	m.notifications.WithLabelValues(outcome).Add(float64(n))
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

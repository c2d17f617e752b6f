// Package metrics records run outcomes for scraping through the
// node-exporter textfile collector.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Run outcomes.
const (
	OutcomeNotified          = "notified"
	OutcomeUnchanged         = "unchanged"
	OutcomeSourceUnavailable = "source_unavailable"
	OutcomeSkipped           = "skipped"
)

// Collector holds the process collectors. A nil *Collector is valid and
// records nothing.
type Collector struct {
	registry *prometheus.Registry

	runs              *prometheus.CounterVec
	notifications     *prometheus.CounterVec
	persistenceErrors *prometheus.CounterVec
	spread            prometheus.Gauge
	windowSize        prometheus.Gauge
	lastRun           prometheus.Gauge
}

// NewCollector registers all collectors on a fresh registry.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "spreadwatcher",
				Name:      "runs_total",
				Help:      "Evaluation runs by outcome.",
			},
			[]string{"outcome"},
		),
		notifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "spreadwatcher",
				Name:      "notifications_total",
				Help:      "Alert deliveries by status.",
			},
			[]string{"status"},
		),
		persistenceErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "spreadwatcher",
				Name:      "persistence_errors_total",
				Help:      "Failed history or last-signal operations.",
			},
			[]string{"op"},
		),
		spread: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "spreadwatcher",
			Name:      "spread",
			Help:      "Most recently observed sell-buy spread.",
		}),
		windowSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "spreadwatcher",
			Name:      "window_observations",
			Help:      "Observations in the trend window.",
		}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "spreadwatcher",
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time of the last completed run.",
		}),
	}

	c.registry.MustRegister(c.runs, c.notifications, c.persistenceErrors, c.spread, c.windowSize, c.lastRun)
	return c
}

// Registry exposes the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// ObserveRun counts a finished run.
func (c *Collector) ObserveRun(outcome string, at time.Time) {
	if c == nil {
		return
	}
	c.runs.WithLabelValues(outcome).Inc()
	c.lastRun.Set(float64(at.Unix()))
}

// ObserveNotification counts a delivery attempt.
func (c *Collector) ObserveNotification(delivered bool) {
	if c == nil {
		return
	}
	status := "sent"
	if !delivered {
		status = "failed"
	}
	c.notifications.WithLabelValues(status).Inc()
}

// ObservePersistenceError counts a failed storage operation.
func (c *Collector) ObservePersistenceError(op string) {
	if c == nil {
		return
	}
	c.persistenceErrors.WithLabelValues(op).Inc()
}

// SetSpread records the current spread and window size.
func (c *Collector) SetSpread(spread float64, window int) {
	if c == nil {
		return
	}
	c.spread.Set(spread)
	c.windowSize.Set(float64(window))
}

// WriteTextfile writes the registry in text exposition format.
func (c *Collector) WriteTextfile(path string) error {
	if c == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, c.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}

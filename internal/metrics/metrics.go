// package metrics exposes sync run counters through a Prometheus registry
//
// A sync is a short-lived batch job, so metrics are pushed to a Pushgateway once per run
// rather than scraped.
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

const namespace = "tautsync"

// RunStats is the outcome of one sync run.
type RunStats struct {
	Mode      string
	Status    string
	Created   int
	Updated   int
	Unchanged int
	Pruned    int
	Skipped   int
	Errored   int
	Duration  time.Duration
	Finished  time.Time
}

// Collector owns a private registry with the sync metrics. A nil *Collector is valid and records nothing.
type Collector struct {
	registry    *prometheus.Registry
	records     *prometheus.CounterVec
	runs        *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	lastSuccess prometheus.Gauge
}

// New creates a [Collector] and registers its metrics.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_total",
			Help:      "Records processed by sync, by outcome.",
		}, []string{"outcome"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_runs_total",
			Help:      "Sync runs, by mode and final status.",
		}, []string{"mode", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sync_duration_seconds",
			Help:      "Wall-clock duration of sync runs.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}, []string{"mode"}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last sync that finished without a fatal error.",
		}),
	}
	c.registry.MustRegister(c.records, c.runs, c.duration, c.lastSuccess)
	return c
}

// Registry returns the registry holding the sync metrics.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// ObserveRun records the counters of one finished run.
func (c *Collector) ObserveRun(s RunStats) {
	if c == nil {
		return
	}

	for outcome, n := range map[string]int{
		"created":   s.Created,
		"updated":   s.Updated,
		"unchanged": s.Unchanged,
		"pruned":    s.Pruned,
		"skipped":   s.Skipped,
		"errored":   s.Errored,
	} {
		c.records.WithLabelValues(outcome).Add(float64(n))
	}
	c.runs.WithLabelValues(s.Mode, s.Status).Inc()
	c.duration.WithLabelValues(s.Mode).Observe(s.Duration.Seconds())

	if s.Status != "failed" {
		finished := s.Finished
		if finished.IsZero() {
			finished = time.Now()
		}
		c.lastSuccess.Set(float64(finished.Unix()))
	}
}

// Push sends the registry to a Pushgateway, replacing the job's previous metrics.
func (c *Collector) Push(ctx context.Context, gatewayURL, job string) error {
	if c == nil || gatewayURL == "" {
		return nil
	}
	if job == "" {
		job = namespace
	}
	if err := push.New(gatewayURL, job).Gatherer(c.registry).PushContext(ctx); err != nil {
		return fmt.Errorf("failed to push metrics: %w", err)
	}
	return nil
}

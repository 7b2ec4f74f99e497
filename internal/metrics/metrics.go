// Package metrics collects and exposes rebuild-domain Prometheus metrics,
// adapted from the teacher's internal/metrics.Collector: the same
// Counter/Gauge/Histogram shape and StartServer entrypoint, built around the
// rebuild module's own lifecycle (queued/started/completed/failed, obj/rec
// pulled, bcast retries) instead of the teacher's job queue.
package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector collects the rebuild module's Prometheus metrics.
type Collector struct {
	rebuildsQueued    prometheus.Counter
	rebuildsStarted   prometheus.Counter
	rebuildsCompleted prometheus.Counter
	rebuildsFailed    prometheus.Counter

	activeVersion prometheus.Gauge
	objPulled     prometheus.Counter
	recPulled     prometheus.Counter
	bcastRetries  prometheus.Counter

	rebuildDuration prometheus.Histogram
}

// NewCollector builds and registers a Collector against reg. Passing a
// fresh *prometheus.Registry (rather than prometheus.DefaultRegisterer)
// keeps repeated construction in tests from panicking on double
// registration, matching the teacher's test file's own workaround.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		rebuildsQueued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rebuild_tasks_queued_total",
			Help: "Total number of rebuild tasks enqueued.",
		}),
		rebuildsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rebuild_tasks_started_total",
			Help: "Total number of rebuild tasks the driver has started.",
		}),
		rebuildsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rebuild_tasks_completed_total",
			Help: "Total number of rebuild tasks that finalized without abort.",
		}),
		rebuildsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rebuild_tasks_failed_total",
			Help: "Total number of rebuild tasks that finalized aborted.",
		}),
		activeVersion: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rebuild_active_map_version",
			Help: "Pool map version of the rebuild currently driving, 0 if idle.",
		}),
		objPulled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rebuild_objects_pulled_total",
			Help: "Total objects reported pulled across all finished rebuilds.",
		}),
		recPulled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rebuild_records_pulled_total",
			Help: "Total records reported pulled across all finished rebuilds.",
		}),
		bcastRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rebuild_bcast_retries_total",
			Help: "Total broadcast-retry cycles consumed across all rebuilds.",
		}),
		rebuildDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "rebuild_duration_seconds",
			Help:    "Wall-clock duration of a rebuild task from start to finalize.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1s .. ~34m
		}),
	}

	reg.MustRegister(
		c.rebuildsQueued, c.rebuildsStarted, c.rebuildsCompleted, c.rebuildsFailed,
		c.activeVersion, c.objPulled, c.recPulled, c.bcastRetries, c.rebuildDuration,
	)
	return c
}

// RecordQueued records a rebuild task being enqueued.
func (c *Collector) RecordQueued() { c.rebuildsQueued.Inc() }

// RecordStarted records the driver starting a rebuild task at ver.
func (c *Collector) RecordStarted(ver uint32) {
	c.rebuildsStarted.Inc()
	c.activeVersion.Set(float64(ver))
}

// RecordFinalized records a rebuild task's terminal outcome: completed
// (aborted=false) or failed (aborted=true), plus the pull totals it reported
// and how long it ran.
func (c *Collector) RecordFinalized(aborted bool, objNr, recNr uint64, duration float64) {
	if aborted {
		c.rebuildsFailed.Inc()
	} else {
		c.rebuildsCompleted.Inc()
	}
	c.objPulled.Add(float64(objNr))
	c.recPulled.Add(float64(recNr))
	c.rebuildDuration.Observe(duration)
	c.activeVersion.Set(0)
}

// RecordBcastRetry records one consumed broadcast-retry cycle.
func (c *Collector) RecordBcastRetry() { c.bcastRetries.Inc() }

// StartServer serves /metrics on addr until the process exits or the
// returned server is shut down by the caller.
func StartServer(addr string, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		_ = srv.ListenAndServe()
	}()
	return srv
}

// Addr is a small helper mirroring the teacher's fmt.Sprintf(":%d", port)
// convention for callers that only have a bare port.
func Addr(port int) string {
	return fmt.Sprintf(":%d", port)
}

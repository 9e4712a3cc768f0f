// Package metrics exposes Prometheus instrumentation for the engine.
//
// Metrics are registered once at package init against the default
// Prometheus registry and scraped via Handler(). The engine itself never
// blocks on a scrape; all updates are plain counter/gauge/histogram
// operations taken under whatever lock the caller already holds.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Guarded allocator metrics
	RegionsLive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "stronghold_guarded_regions_live",
			Help: "Number of guarded memory regions currently allocated",
		},
	)

	RegionAllocFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "stronghold_guarded_alloc_failures_total",
			Help: "Total number of guarded allocation failures",
		},
	)

	// Vault / record log metrics
	ClientsLoaded = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "stronghold_clients_loaded",
			Help: "Number of clients currently materialized in the engine",
		},
	)

	VaultsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "stronghold_vaults_total",
			Help: "Total number of vaults with a key in the key store",
		},
	)

	RecordsWrittenTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "stronghold_records_written_total",
			Help: "Total number of data transactions appended to any vault log",
		},
	)

	RecordsRevokedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "stronghold_records_revoked_total",
			Help: "Total number of revocation transactions appended to any vault log",
		},
	)

	GarbageCollectedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "stronghold_garbage_collected_total",
			Help: "Total number of transactions and blobs removed by garbage collection",
		},
	)

	DecryptFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "stronghold_transaction_decrypt_failures_total",
			Help: "Total number of transactions dropped from a view due to a decrypt/auth failure",
		},
	)

	// Procedure runner metrics
	ProceduresRunTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stronghold_procedures_run_total",
			Help: "Total number of procedures executed, by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	ProcedureDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "stronghold_procedure_duration_seconds",
			Help:    "Procedure execution duration in seconds, by kind",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	ChainRollbacksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "stronghold_chain_rollbacks_total",
			Help: "Total number of chained-procedure outputs revoked due to a later failure",
		},
	)

	// Snapshot codec metrics
	SnapshotWritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stronghold_snapshot_writes_total",
			Help: "Total number of snapshot commits, by outcome",
		},
		[]string{"outcome"},
	)

	SnapshotWriteDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "stronghold_snapshot_write_duration_seconds",
			Help:    "Time taken to seal and write a snapshot to disk",
			Buckets: prometheus.DefBuckets,
		},
	)

	SnapshotLoadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stronghold_snapshot_loads_total",
			Help: "Total number of snapshot loads, by outcome",
		},
		[]string{"outcome"},
	)

	SnapshotBytesWritten = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "stronghold_snapshot_bytes_written",
			Help: "Size in bytes of the most recently written snapshot body",
		},
	)
)

func init() {
	prometheus.MustRegister(
		RegionsLive,
		RegionAllocFailures,
		ClientsLoaded,
		VaultsTotal,
		RecordsWrittenTotal,
		RecordsRevokedTotal,
		GarbageCollectedTotal,
		DecryptFailuresTotal,
		ProceduresRunTotal,
		ProcedureDuration,
		ChainRollbacksTotal,
		SnapshotWritesTotal,
		SnapshotWriteDuration,
		SnapshotLoadsTotal,
		SnapshotBytesWritten,
	)
}

// Handler returns the Prometheus HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the elapsed duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the elapsed duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Metrics holds all Prometheus metrics for the backend.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can use it.
	Registry *prometheus.Registry

	requestDuration *prometheus.HistogramVec
	externalErrors  *prometheus.CounterVec
	syncCycles      *prometheus.CounterVec
	recordsPushed   *prometheus.CounterVec
	fallbackWrites  *prometheus.CounterVec
	backups         *prometheus.CounterVec
	ticksSkipped    *prometheus.CounterVec
	cacheHits       *prometheus.CounterVec
	cacheMisses     *prometheus.CounterVec
	storageUsed     prometheus.Gauge
}

// SyncSnapshot summarizes cumulative sync activity for the status endpoint.
type SyncSnapshot struct {
	CyclesOK       int64 `json:"cycles_ok"`
	CyclesFailed   int64 `json:"cycles_failed"`
	FallbackWrites int64 `json:"fallback_writes"`
	BackupsRemote  int64 `json:"backups_remote"`
	BackupsLocal   int64 `json:"backups_local"`
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
				Name:    "gestor_request_duration_seconds",
				Help:    "Duration of requests by operation.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		externalErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gestor_external_errors_total",
				Help: "Total errors from external services.",
			},
			[]string{"service"},
		),
		syncCycles: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gestor_sync_collections_total",
				Help: "Per-collection sync outcomes.",
			},
			[]string{"collection", "outcome"},
		),
		recordsPushed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gestor_sync_records_pushed_total",
				Help: "Records pushed to the external store during sync.",
			},
			[]string{"collection"},
		),
		fallbackWrites: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gestor_fallback_writes_total",
				Help: "Writes that landed in the local store because the remote failed.",
			},
			[]string{"operation"},
		),
		backups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gestor_backups_total",
				Help: "Backup outcomes by destination.",
			},
			[]string{"source"},
		),
		ticksSkipped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gestor_scheduler_ticks_skipped_total",
				Help: "Scheduler ticks skipped because the previous run was still in flight.",
			},
			[]string{"task"},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gestor_cache_hits_total",
				Help: "Total cache hits.",
			},
			[]string{"cache"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gestor_cache_misses_total",
				Help: "Total cache misses.",
			},
			[]string{"cache"},
		),
		storageUsed: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "gestor_local_store_used_bytes",
				Help: "Bytes used in the local store (keys + values).",
			},
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

// IncrSyncCollection records one collection's sync outcome ("ok" or "error").
func (m *Metrics) IncrSyncCollection(collection, outcome string) {
	m.syncCycles.WithLabelValues(collection, outcome).Inc()
}

// AddRecordsPushed counts records posted to the external store.
func (m *Metrics) AddRecordsPushed(collection string, n int) {
	m.recordsPushed.WithLabelValues(collection).Add(float64(n))
}

// IncrFallbackWrite counts a degraded write that fell back to the local store.
func (m *Metrics) IncrFallbackWrite(operation string) {
	m.fallbackWrites.WithLabelValues(operation).Inc()
}

// IncrBackup records a backup outcome by destination ("remote" or "local").
func (m *Metrics) IncrBackup(source string) {
	m.backups.WithLabelValues(source).Inc()
}

// IncrTickSkipped counts a scheduler tick dropped by the single-flight guard.
func (m *Metrics) IncrTickSkipped(task string) {
	m.ticksSkipped.WithLabelValues(task).Inc()
}

// IncrCacheHit increments the cache hit counter.
func (m *Metrics) IncrCacheHit(cache string) {
	m.cacheHits.WithLabelValues(cache).Inc()
}

// IncrCacheMiss increments the cache miss counter.
func (m *Metrics) IncrCacheMiss(cache string) {
	m.cacheMisses.WithLabelValues(cache).Inc()
}

// SetStorageUsed updates the local-store usage gauge.
func (m *Metrics) SetStorageUsed(bytes int64) {
	m.storageUsed.Set(float64(bytes))
}

// GetSyncSnapshot returns cumulative sync/backup counters for the
// GET /v1/sync/status endpoint.
func (m *Metrics) GetSyncSnapshot() *SyncSnapshot {
	var ok, failed float64
	for _, collection := range []string{"cash_movements", "marketplace_orders", "app_users"} {
		ok += getCounterValue(m.syncCycles, collection, "ok")
		failed += getCounterValue(m.syncCycles, collection, "error")
	}

	var fallbacks float64
	for _, op := range []string{"backup", "entity_create", "entity_update", "entity_bulk"} {
		fallbacks += getCounterValue(m.fallbackWrites, op)
	}

	return &SyncSnapshot{
		CyclesOK:       int64(ok),
		CyclesFailed:   int64(failed),
		FallbackWrites: int64(fallbacks),
		BackupsRemote:  int64(getCounterValue(m.backups, "remote")),
		BackupsLocal:   int64(getCounterValue(m.backups, "local")),
	}
}

// getCounterValue extracts the current float64 value from a CounterVec for the given labels.
func getCounterValue(cv *prometheus.CounterVec, labels ...string) float64 {
	counter := cv.WithLabelValues(labels...)
	m := &dto.Metric{}
	if err := counter.(prometheus.Metric).Write(m); err != nil {
		return 0
	}
	if m.Counter != nil && m.Counter.Value != nil {
		return *m.Counter.Value
	}
	return 0
}

// Package metrics holds the engine's prometheus counters and gauges:
// write/read/flush/compaction/GC counts and the level occupancy gauges
// cmd/lsmd exposes over /metrics and cmd/lsmtop polls for its TUI.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry holds every metric the engine records.
type Registry struct {
	// Write path
	PutsTotal      prometheus.Counter
	DeletesTotal   prometheus.Counter
	WriteDuration  prometheus.Histogram
	BytesWritten   prometheus.Counter

	// Read path
	GetsTotal       *prometheus.CounterVec // result label: "found"|"not_found"
	ScansTotal      prometheus.Counter
	ReadDuration    prometheus.Histogram
	CacheHitsTotal  prometheus.Counter
	CacheMissTotal  prometheus.Counter

	// Search-offload (spec §6)
	OffloadRequestsTotal prometheus.Counter

	// Memtable / flush
	MemtableBytes    prometheus.Gauge
	FlushesTotal     prometheus.Counter
	FlushDuration    prometheus.Histogram

	// Compaction
	CompactionsTotal    *prometheus.CounterVec // level label
	CompactionDuration  *prometheus.HistogramVec
	LevelFileCount      *prometheus.GaugeVec // level label

	// Value-log GC
	GCRunsTotal        prometheus.Counter
	GCBlocksReclaimed  prometheus.Counter
	GCRecordsRewritten prometheus.Counter
	LogBlockCount      prometheus.Gauge

	registry *prometheus.Registry
	mu       sync.RWMutex
}

var (
	defaultRegistry *Registry
	once            sync.Once
)

// Default returns the process-wide metrics registry, created on first
// use (mirrors the teacher's DefaultRegistry/sync.Once singleton).
func Default() *Registry {
	once.Do(func() {
		defaultRegistry = New()
	})
	return defaultRegistry
}

// New creates a registry with every metric initialized.
func New() *Registry {
	reg := prometheus.NewRegistry()
	r := &Registry{registry: reg}

	r.initWriteMetrics()
	r.initReadMetrics()
	r.initFlushMetrics()
	r.initCompactionMetrics()
	r.initGCMetrics()

	return r
}

// PrometheusRegistry returns the underlying *prometheus.Registry for
// wiring into an HTTP handler (cmd/lsmd's /metrics endpoint).
func (r *Registry) PrometheusRegistry() *prometheus.Registry {
	return r.registry
}

func (r *Registry) initWriteMetrics() {
	r.PutsTotal = promauto.With(r.registry).NewCounter(prometheus.CounterOpts{
		Name: "lsm_puts_total",
		Help: "Total number of Put calls, including overwrites",
	})
	r.DeletesTotal = promauto.With(r.registry).NewCounter(prometheus.CounterOpts{
		Name: "lsm_deletes_total",
		Help: "Total number of Delete calls (tombstones written)",
	})
	r.WriteDuration = promauto.With(r.registry).NewHistogram(prometheus.HistogramOpts{
		Name:    "lsm_write_duration_seconds",
		Help:    "Put/Delete latency in seconds",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
	})
	r.BytesWritten = promauto.With(r.registry).NewCounter(prometheus.CounterOpts{
		Name: "lsm_bytes_written_total",
		Help: "Total bytes written to the value log",
	})
}

func (r *Registry) initReadMetrics() {
	r.GetsTotal = promauto.With(r.registry).NewCounterVec(prometheus.CounterOpts{
		Name: "lsm_gets_total",
		Help: "Total number of Get calls by result",
	}, []string{"result"})
	r.ScansTotal = promauto.With(r.registry).NewCounter(prometheus.CounterOpts{
		Name: "lsm_scans_total",
		Help: "Total number of range Scan calls",
	})
	r.ReadDuration = promauto.With(r.registry).NewHistogram(prometheus.HistogramOpts{
		Name:    "lsm_read_duration_seconds",
		Help:    "Get/Scan latency in seconds",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
	})
	r.CacheHitsTotal = promauto.With(r.registry).NewCounter(prometheus.CounterOpts{
		Name: "lsm_read_cache_hits_total",
		Help: "Total range-key-cache hits",
	})
	r.CacheMissTotal = promauto.With(r.registry).NewCounter(prometheus.CounterOpts{
		Name: "lsm_read_cache_misses_total",
		Help: "Total range-key-cache misses",
	})
	r.OffloadRequestsTotal = promauto.With(r.registry).NewCounter(prometheus.CounterOpts{
		Name: "lsm_offload_requests_total",
		Help: "Total number of search-offload requests shipped to the device",
	})
}

func (r *Registry) initFlushMetrics() {
	r.MemtableBytes = promauto.With(r.registry).NewGauge(prometheus.GaugeOpts{
		Name: "lsm_memtable_bytes",
		Help: "Approximate size of the active memtable in bytes",
	})
	r.FlushesTotal = promauto.With(r.registry).NewCounter(prometheus.CounterOpts{
		Name: "lsm_flushes_total",
		Help: "Total number of memtable flushes to L0",
	})
	r.FlushDuration = promauto.With(r.registry).NewHistogram(prometheus.HistogramOpts{
		Name:    "lsm_flush_duration_seconds",
		Help:    "Memtable flush duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
	})
}

func (r *Registry) initCompactionMetrics() {
	r.CompactionsTotal = promauto.With(r.registry).NewCounterVec(prometheus.CounterOpts{
		Name: "lsm_compactions_total",
		Help: "Total number of completed compaction runs by source level",
	}, []string{"src_level"})
	r.CompactionDuration = promauto.With(r.registry).NewHistogramVec(prometheus.HistogramOpts{
		Name:    "lsm_compaction_duration_seconds",
		Help:    "Compaction run duration in seconds by source level",
		Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 10},
	}, []string{"src_level"})
	r.LevelFileCount = promauto.With(r.registry).NewGaugeVec(prometheus.GaugeOpts{
		Name: "lsm_level_file_count",
		Help: "Number of SSTable files currently at each level",
	}, []string{"level"})
}

func (r *Registry) initGCMetrics() {
	r.GCRunsTotal = promauto.With(r.registry).NewCounter(prometheus.CounterOpts{
		Name: "lsm_gc_runs_total",
		Help: "Total number of value-log GC passes",
	})
	r.GCBlocksReclaimed = promauto.With(r.registry).NewCounter(prometheus.CounterOpts{
		Name: "lsm_gc_blocks_reclaimed_total",
		Help: "Total number of value-log blocks reclaimed by GC",
	})
	r.GCRecordsRewritten = promauto.With(r.registry).NewCounter(prometheus.CounterOpts{
		Name: "lsm_gc_records_rewritten_total",
		Help: "Total number of still-live records rewritten by GC",
	})
	r.LogBlockCount = promauto.With(r.registry).NewGauge(prometheus.GaugeOpts{
		Name: "lsm_log_block_count",
		Help: "Current number of allocated value-log blocks",
	})
}

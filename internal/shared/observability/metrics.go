package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics definitions
var (
	StubBuildDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "stubindex_stub_build_seconds",
		Help:    "Time spent turning a source file into a stub tree.",
		Buckets: prometheus.DefBuckets,
	}, []string{"loader"})

	FilesIndexedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stubindex_files_indexed_total",
		Help: "Total number of files whose occurrences were emitted.",
	})

	FilesSkippedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stubindex_files_skipped_total",
		Help: "Total number of files skipped because their content hash was unchanged.",
	})

	MalformedStubsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stubindex_malformed_stubs_total",
		Help: "Total number of files whose stub tree contained a malformed subtree.",
	})

	OccurrencesEmittedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stubindex_occurrences_emitted_total",
		Help: "Total number of occurrences emitted, by index.",
	}, []string{"index"})

	SummaryDecodeErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stubindex_summary_decode_errors_total",
		Help: "Total number of stored file summaries that failed to decode.",
	})

	LookupCacheTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stubindex_lookup_cache_total",
		Help: "Occurrence lookups served from the cache (hit) or the database (miss).",
	}, []string{"result"})

	IndexRunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "stubindex_index_run_seconds",
		Help:    "Time spent on one index run.",
		Buckets: prometheus.DefBuckets,
	})

	WatcherEventsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stubindex_watcher_events_total",
		Help: "Total number of file system events received by the watcher.",
	})

	WriteQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "stubindex_write_queue_depth",
		Help: "Current number of in-memory write requests waiting to be persisted.",
	})

	WriteSpoolDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "stubindex_write_spool_depth",
		Help: "Current number of persistent spool rows waiting to be applied.",
	})

	WriteQueueEnqueuedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stubindex_write_queue_enqueued_total",
		Help: "Total number of write requests accepted into the in-memory queue.",
	})

	WriteQueueDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stubindex_write_queue_dropped_total",
		Help: "Total number of write requests dropped from in-memory enqueue due to backpressure.",
	})

	WriteQueueSpilledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stubindex_write_queue_spilled_total",
		Help: "Total number of write requests spooled to persistent storage.",
	})

	WriteQueueRetryTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stubindex_write_queue_retry_total",
		Help: "Total number of persistent spool retries.",
	})

	WriteQueueApplyErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stubindex_write_queue_apply_errors_total",
		Help: "Total number of write batch apply errors.",
	})

	WriteQueueProcessedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stubindex_write_queue_processed_total",
		Help: "Total number of write requests successfully applied.",
	})

	WriteQueueFlushLatencySeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "stubindex_write_queue_flush_seconds",
		Help:    "Latency for applying a write batch.",
		Buckets: prometheus.DefBuckets,
	})
)

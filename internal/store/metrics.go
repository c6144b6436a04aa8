package store

import "github.com/prometheus/client_golang/prometheus"

// storeMetrics holds the Prometheus instrumentation for one Store
// instance. Each Store registers its own collectors into its own
// registry rather than the global default one, so embedding multiple
// stores in one process (tests, multi-tenant hosts) never collides on
// metric names.
type storeMetrics struct {
	registry *prometheus.Registry

	rowsInserted   prometheus.Counter
	rowsDropped    prometheus.Counter
	gcPasses       prometheus.Counter
	gcBytesFreed   prometheus.Counter
	gcCancelled    prometheus.Counter
	bytesPerInsert prometheus.Histogram
}

func newStoreMetrics() *storeMetrics {
	reg := prometheus.NewRegistry()
	m := &storeMetrics{
		registry: reg,
		rowsInserted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "datastore",
			Name:      "rows_inserted_total",
			Help:      "Number of rows successfully inserted.",
		}),
		rowsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "datastore",
			Name:      "rows_dropped_total",
			Help:      "Number of rows dropped by garbage collection.",
		}),
		gcPasses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "datastore",
			Name:      "gc_passes_total",
			Help:      "Number of completed garbage-collection passes.",
		}),
		gcBytesFreed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "datastore",
			Name:      "gc_bytes_freed_total",
			Help:      "Bytes freed by garbage collection.",
		}),
		gcCancelled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "datastore",
			Name:      "gc_cancelled_total",
			Help:      "Number of garbage-collection passes that hit their time budget before reaching the target.",
		}),
		bytesPerInsert: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "datastore",
			Name:      "insert_row_bytes",
			Help:      "Approximate size in bytes of inserted rows.",
			Buckets:   prometheus.ExponentialBuckets(16, 4, 8),
		}),
	}
	reg.MustRegister(m.rowsInserted, m.rowsDropped, m.gcPasses, m.gcBytesFreed, m.gcCancelled, m.bytesPerInsert)
	return m
}

// Registry exposes the store's Prometheus registry so callers can
// serve it over /metrics.
func (s *Store) Registry() *prometheus.Registry { return s.metrics.registry }

func (m *storeMetrics) observeInsert(r Row) {
	m.rowsInserted.Inc()
	var size int64
	for _, c := range r.Cells {
		if c.Batch != nil {
			size += c.Batch.SizeBytes()
		}
	}
	m.bytesPerInsert.Observe(float64(size))
}

func (m *storeMetrics) observeGC(result GCResult) {
	m.gcPasses.Inc()
	m.rowsDropped.Add(float64(len(result.DroppedRowIDs)))
	m.gcBytesFreed.Add(float64(result.BytesFreed))
	if result.Cancelled {
		m.gcCancelled.Inc()
	}
}

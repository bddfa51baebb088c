// Package metrics defines the prometheus collectors shared by the indexer
// components. A nil *Metrics is valid everywhere and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "curve_indexer"

// Metrics holds every collector the indexer exports.
type Metrics struct {
	RevertedCalls    *prometheus.CounterVec
	MulticallBatches prometheus.Counter
	MulticallReverts prometheus.Counter

	UnpricedTokens   prometheus.Counter
	SanityRejections *prometheus.CounterVec

	EventsProcessed *prometheus.CounterVec
	EventsDropped   *prometheus.CounterVec
	LastBlock       prometheus.Gauge

	SnapshotsWritten prometheus.Counter
	SweepDuration    prometheus.Histogram
	PoolsTracked     prometheus.Gauge

	DocumentsFlushed prometheus.Counter
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RevertedCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reverted_calls_total",
			Help:      "Contract reads that reverted or did not decode, by method.",
		}, []string{"method"}),
		MulticallBatches: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "multicall_batches_total",
			Help:      "Aggregate calls issued.",
		}),
		MulticallReverts: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "multicall_reverts_total",
			Help:      "Aggregate calls that failed as a whole.",
		}),
		UnpricedTokens: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unpriced_tokens_total",
			Help:      "Price lookups that resolved to zero.",
		}),
		SanityRejections: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sanity_rejections_total",
			Help:      "Computed values replaced because they exceeded a ceiling, by kind.",
		}, []string{"kind"}),
		EventsProcessed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_processed_total",
			Help:      "Typed events applied, by event name.",
		}, []string{"event"}),
		EventsDropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dropped_total",
			Help:      "Typed events skipped, by reason.",
		}, []string{"reason"}),
		LastBlock: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_processed_block",
			Help:      "Block of the last applied event.",
		}),
		SnapshotsWritten: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pool_snapshots_written_total",
			Help:      "Daily pool snapshots persisted.",
		}),
		SweepDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "snapshot_sweep_duration_seconds",
			Help:      "Time spent in one snapshot sweep.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
		PoolsTracked: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pools_tracked",
			Help:      "Pools known to the platform.",
		}),
		DocumentsFlushed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "documents_flushed_total",
			Help:      "Entity documents written to the store.",
		}),
	}
}

// Reject counts a sanity rejection of kind.
func (m *Metrics) Reject(kind string) {
	if m == nil {
		return
	}
	m.SanityRejections.WithLabelValues(kind).Inc()
}

// Unpriced counts a zero price lookup.
func (m *Metrics) Unpriced() {
	if m == nil {
		return
	}
	m.UnpricedTokens.Inc()
}

// Processed counts an applied event.
func (m *Metrics) Processed(event string, block uint64) {
	if m == nil {
		return
	}
	m.EventsProcessed.WithLabelValues(event).Inc()
	m.LastBlock.Set(float64(block))
}

// Dropped counts a skipped event.
func (m *Metrics) Dropped(reason string) {
	if m == nil {
		return
	}
	m.EventsDropped.WithLabelValues(reason).Inc()
}

// Reverted counts a failed contract read.
func (m *Metrics) Reverted(method string) {
	if m == nil {
		return
	}
	m.RevertedCalls.WithLabelValues(method).Inc()
}

// Batch counts an aggregate call and whether it failed.
func (m *Metrics) Batch(failed bool) {
	if m == nil {
		return
	}
	m.MulticallBatches.Inc()
	if failed {
		m.MulticallReverts.Inc()
	}
}

// Snapshot counts a persisted daily pool snapshot.
func (m *Metrics) Snapshot() {
	if m == nil {
		return
	}
	m.SnapshotsWritten.Inc()
}

// Sweep records how long one snapshot sweep took.
func (m *Metrics) Sweep(seconds float64) {
	if m == nil {
		return
	}
	m.SweepDuration.Observe(seconds)
}

// Flushed counts documents written by one session flush.
func (m *Metrics) Flushed(n int) {
	if m == nil {
		return
	}
	m.DocumentsFlushed.Add(float64(n))
}

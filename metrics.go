package tspacer

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the Prometheus collectors exported by the pipeline,
// grounded on how snapetech-plexTuner wires github.com/prometheus/client_golang
// into its tuner internals. The unregistered Metrics built by
// NewMetrics(nil), shared through nopMetrics, is always safe to call into,
// so tests and callers that don't care about observability never need to
// register anything. A nil *Metrics is not safe to call into.
type Metrics struct {
	packetsTotal         *prometheus.CounterVec
	pesReassembledTotal  *prometheus.CounterVec
	pendingQueueDepth    *prometheus.GaugeVec
	deferredPESGauge     prometheus.Gauge
	emitLatencyMillis    prometheus.Histogram
	fragmentsDroppedTotal prometheus.Counter
}

// NewMetrics creates and registers the pipeline's collectors on reg. Pass
// nil to get a usable, unregistered no-op Metrics value.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		packetsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tspacer",
			Name:      "packets_total",
			Help:      "Transport packets observed by the framer, by outcome.",
		}, []string{"outcome"}),
		pesReassembledTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tspacer",
			Name:      "pes_reassembled_total",
			Help:      "PES packets reassembled, by kind.",
		}, []string{"kind"}),
		pendingQueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "tspacer",
			Name:      "pending_queue_depth",
			Help:      "Current depth of the pacing scheduler's look-ahead queues.",
		}, []string{"kind"}),
		deferredPESGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "tspacer",
			Name:      "deferred_pes",
			Help:      "PES packets waiting on a PAT/PMT to classify their PID.",
		}),
		emitLatencyMillis: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "tspacer",
			Name:      "emit_latency_milliseconds",
			Help:      "now() - emit_at at the moment an access unit is actually emitted.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}),
		fragmentsDroppedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tspacer",
			Name:      "fragments_dropped_total",
			Help:      "In-progress PES fragments dropped for exceeding the unbounded-length cap.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.packetsTotal, m.pesReassembledTotal, m.pendingQueueDepth, m.deferredPESGauge, m.emitLatencyMillis, m.fragmentsDroppedTotal)
	}
	return m
}

var nopMetricsSingleton = NewMetrics(nil)

// nopMetrics returns a shared, unregistered Metrics value for components
// that weren't handed one explicitly.
func nopMetrics() *Metrics { return nopMetricsSingleton }

package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all counter bridge Prometheus metrics.
type Metrics struct {
	EventsProcessedTotal prometheus.Counter
	EventsDroppedTotal   *prometheus.CounterVec
	FlushTotal           *prometheus.CounterVec
	FlushDuration        prometheus.Histogram
	FlushBatchSize       prometheus.Histogram
	PendingMessages      prometheus.Gauge
	ReadErrorsTotal      prometheus.Counter
}

// NewMetrics creates and registers all counter bridge metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		EventsProcessedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "counter_bridge_events_processed_total",
			Help: "Total counter mutation events folded into the aggregator.",
		}),

		EventsDroppedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "counter_bridge_events_dropped_total",
			Help: "Events dropped before aggregation, by reason.",
		}, []string{"reason"}),

		FlushTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "counter_bridge_flush_total",
			Help: "Flush attempts by outcome (success, partial, total_failure).",
		}, []string{"outcome"}),

		FlushDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "counter_bridge_flush_duration_seconds",
			Help:    "Time spent persisting a flush batch to the storage provider.",
			Buckets: prometheus.DefBuckets,
		}),

		FlushBatchSize: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "counter_bridge_flush_batch_size",
			Help:    "Distinct scope count persisted per flush.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),

		PendingMessages: factory.NewGauge(prometheus.GaugeOpts{
			Name: "counter_bridge_pending_messages",
			Help: "Unflushed aggregated message count currently held in memory.",
		}),

		ReadErrorsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "counter_bridge_read_errors_total",
			Help: "Log read failures encountered by the consume loop.",
		}),
	}
}

package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics covers the three stages: intake routing, submission, confirmation.
type Metrics struct {
	RequestsTotal      *prometheus.CounterVec
	RequestErrors      *prometheus.CounterVec
	SimulateRejections prometheus.Counter
	TradesSubmitted    prometheus.Counter
	TradesConfirmed    prometheus.Counter
	TradesFailed       *prometheus.CounterVec
	SubmitQueueDepth   prometheus.Gauge
	SettleSeconds      prometheus.Histogram
}

// NewMetrics builds and registers the pipeline collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dexmatch",
			Name:      "requests_total",
			Help:      "Order requests processed, by action.",
		}, []string{"action"}),
		RequestErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dexmatch",
			Name:      "request_errors_total",
			Help:      "Order requests that failed, by action.",
		}, []string{"action"}),
		SimulateRejections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dexmatch",
			Name:      "simulate_rejections_total",
			Help:      "Matched trades rejected by the dry-run gate.",
		}),
		TradesSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dexmatch",
			Name:      "trades_submitted_total",
			Help:      "Trade transactions broadcast to the settlement chain.",
		}),
		TradesConfirmed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dexmatch",
			Name:      "trades_confirmed_total",
			Help:      "Trades confirmed on-chain.",
		}),
		TradesFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dexmatch",
			Name:      "trades_failed_total",
			Help:      "Trades that failed, by stage.",
		}, []string{"stage"}),
		SubmitQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "dexmatch",
			Name:      "submit_queue_depth",
			Help:      "Matched trades waiting for a submission worker.",
		}),
		SettleSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "dexmatch",
			Name:      "settle_seconds",
			Help:      "Wall time from broadcast to receipt resolution.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 8),
		}),
	}
	reg.MustRegister(
		m.RequestsTotal,
		m.RequestErrors,
		m.SimulateRejections,
		m.TradesSubmitted,
		m.TradesConfirmed,
		m.TradesFailed,
		m.SubmitQueueDepth,
		m.SettleSeconds,
	)
	return m
}

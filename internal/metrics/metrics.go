// Package metrics exposes the scheduler's Prometheus instrumentation,
// following the teacher repo's internal/middleware/metrics.go consumption
// pattern (a single *Metrics struct handed to whatever needs to record
// against it), adapted from HTTP request counters to scheduler decision
// counters and pending/submitted gauges.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics bundles every Prometheus collector the scheduler touches.
type Metrics struct {
	DecisionsTotal  *prometheus.CounterVec
	ConfirmedTotal  prometheus.Counter
	PendingGauge    prometheus.Gauge
	SubmittedGauge  prometheus.Gauge
	TokensGauge     prometheus.Gauge
	CurrentFeeGauge prometheus.Gauge
	VolatilityGauge prometheus.Gauge
}

// New registers and returns a Metrics bundle against reg. Pass
// prometheus.NewRegistry() in tests to avoid the global default registry's
// duplicate-registration panics across test runs.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		DecisionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gassaver",
			Subsystem: "scheduler",
			Name:      "decisions_total",
			Help:      "Count of scheduler decisions emitted, labeled by kind.",
		}, []string{"kind"}),
		ConfirmedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gassaver",
			Subsystem: "scheduler",
			Name:      "confirmed_total",
			Help:      "Count of TxConfirmed events that closed a submitted entry's lifecycle.",
		}),
		PendingGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "gassaver",
			Subsystem: "scheduler",
			Name:      "pending_size",
			Help:      "Current number of transaction requests awaiting a decision.",
		}),
		SubmittedGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "gassaver",
			Subsystem: "scheduler",
			Name:      "submitted_size",
			Help:      "Current number of transactions submitted and awaiting confirmation.",
		}),
		TokensGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "gassaver",
			Subsystem: "ratelimit",
			Name:      "tokens",
			Help:      "Current token count in the admission bucket.",
		}),
		CurrentFeeGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "gassaver",
			Subsystem: "feemodel",
			Name:      "current_fee",
			Help:      "Most recently observed base fee.",
		}),
		VolatilityGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "gassaver",
			Subsystem: "feemodel",
			Name:      "volatility",
			Help:      "Population standard deviation of the fee window.",
		}),
	}

	reg.MustRegister(
		m.DecisionsTotal,
		m.ConfirmedTotal,
		m.PendingGauge,
		m.SubmittedGauge,
		m.TokensGauge,
		m.CurrentFeeGauge,
		m.VolatilityGauge,
	)

	return m
}

package worker

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the worker's Prometheus instrumentation. Register with a
// prometheus.Registerer at process start; NewMetrics does not register itself so
// tests can construct a Metrics without a global registry side effect.
type Metrics struct {
	AttemptsClaimed   prometheus.Counter
	AttemptsSucceeded prometheus.Counter
	AttemptsFailed    prometheus.Counter
	AttemptsRetried   prometheus.Counter
	DispatchLatency   prometheus.Histogram
}

func NewMetrics() *Metrics {
	return &Metrics{
		AttemptsClaimed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hookrelay_worker_attempts_claimed_total",
			Help: "Total number of request attempts claimed by this worker.",
		}),
		AttemptsSucceeded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hookrelay_worker_attempts_succeeded_total",
			Help: "Total number of request attempts that succeeded.",
		}),
		AttemptsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hookrelay_worker_attempts_failed_total",
			Help: "Total number of request attempts that failed and were rescheduled.",
		}),
		AttemptsRetried: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hookrelay_worker_attempts_retried_total",
			Help: "Total number of retry attempts inserted.",
		}),
		DispatchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "hookrelay_worker_dispatch_seconds",
			Help:    "HTTP round-trip latency as reported by the HTTP client adapter.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// Register adds every collector to reg.
func (m *Metrics) Register(reg prometheus.Registerer) {
	reg.MustRegister(
		m.AttemptsClaimed,
		m.AttemptsSucceeded,
		m.AttemptsFailed,
		m.AttemptsRetried,
		m.DispatchLatency,
	)
}

package coordinator

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics instruments the control loop.
type Metrics struct {
	Requests         *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	StaleResults     prometheus.Counter
	SpeculativeHits  prometheus.Counter
	DebounceTriggers prometheus.Counter
	Retries          *prometheus.CounterVec
	CacheHits        prometheus.Counter
	WorkerCrashes    prometheus.Counter
	Fallbacks        prometheus.Counter
}

// NewMetrics creates the coordinator collectors and registers them on reg
// when it is non-nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ghostd", Subsystem: "coordinator", Name: "requests_total",
			Help: "Completion requests by backend and terminal outcome",
		}, []string{"backend", "outcome"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ghostd", Subsystem: "coordinator", Name: "request_duration_seconds",
			Help:    "Backend call latency of applied results",
			Buckets: []float64{.025, .05, .1, .25, .5, 1, 2, 5},
		}, []string{"backend"}),
		StaleResults: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ghostd", Subsystem: "coordinator", Name: "stale_results_total",
			Help: "Worker results discarded because their request was superseded",
		}),
		SpeculativeHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ghostd", Subsystem: "coordinator", Name: "speculative_hits_total",
			Help: "Keystrokes served by advancing the active suggestion",
		}),
		DebounceTriggers: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ghostd", Subsystem: "coordinator", Name: "debounce_triggers_total",
			Help: "Debounce firings",
		}),
		Retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ghostd", Subsystem: "coordinator", Name: "retries_total",
			Help: "Retried backend calls by failure kind",
		}, []string{"kind"}),
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ghostd", Subsystem: "coordinator", Name: "cache_hits_total",
			Help: "Triggers answered from the suggestion cache",
		}),
		WorkerCrashes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ghostd", Subsystem: "watchdog", Name: "worker_crashes_total",
			Help: "Recovered worker panics",
		}),
		Fallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ghostd", Subsystem: "backend", Name: "fallbacks_total",
			Help: "Accelerator load failures that fell back to CPU",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Requests, m.RequestDuration, m.StaleResults, m.SpeculativeHits,
			m.DebounceTriggers, m.Retries, m.CacheHits, m.WorkerCrashes, m.Fallbacks)
	}
	return m
}

func (m *Metrics) request(backend, outcome string) {
	m.Requests.WithLabelValues(backend, outcome).Inc()
}

func (m *Metrics) observe(backend string, seconds float64) {
	m.RequestDuration.WithLabelValues(backend).Observe(seconds)
}

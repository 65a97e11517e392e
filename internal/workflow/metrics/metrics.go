package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds workflow counters, histograms and gauges. A nil *Metrics
// records nothing.
type Metrics struct {
	Transitions       *prometheus.CounterVec
	TransitionLatency *prometheus.HistogramVec
	QueueLength       *prometheus.GaugeVec
	StatusRepairs     prometheus.Counter
	ReconcileRuns     *prometheus.CounterVec
}

// New registers the workflow metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Transitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "workflow_transitions_total",
			Help: "Workflow commands by command and outcome",
		}, []string{"command", "outcome"}),
		TransitionLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "workflow_transition_duration_seconds",
			Help:    "Time to execute a workflow command",
			Buckets: prometheus.DefBuckets,
		}, []string{"command"}),
		QueueLength: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "workflow_queue_length",
			Help: "Projects currently waiting in each workflow queue",
		}, []string{"queue"}),
		StatusRepairs: f.NewCounter(prometheus.CounterOpts{
			Name: "workflow_status_repairs_total",
			Help: "Project records whose status was rewritten to match their queue",
		}),
		ReconcileRuns: f.NewCounterVec(prometheus.CounterOpts{
			Name: "workflow_reconcile_runs_total",
			Help: "Reconciliation passes by outcome",
		}, []string{"outcome"}),
	}
}

func (m *Metrics) IncrementTransition(command, outcome string) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(command, outcome).Inc()
}

func (m *Metrics) ObserveTransitionLatency(command string, d time.Duration) {
	if m == nil {
		return
	}
	m.TransitionLatency.WithLabelValues(command).Observe(d.Seconds())
}

// SetQueueLengths publishes the length of every queue.
func (m *Metrics) SetQueueLengths(lengths map[string]int) {
	if m == nil {
		return
	}
	for queue, n := range lengths {
		m.QueueLength.WithLabelValues(queue).Set(float64(n))
	}
}

func (m *Metrics) AddStatusRepairs(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.StatusRepairs.Add(float64(n))
}

func (m *Metrics) IncrementReconcileRun(outcome string) {
	if m == nil {
		return
	}
	m.ReconcileRuns.WithLabelValues(outcome).Inc()
}

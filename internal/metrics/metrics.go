package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Plan outcomes used as the outcome label.
const (
	OutcomeFulfilled = "fulfilled"
	OutcomePartial   = "partial"
	OutcomeEmpty     = "empty"
	OutcomeError     = "error"
)

type PlannerMetrics struct {
	plans       *prometheus.CounterVec
	fulfillment prometheus.Histogram
	fetchTime   *prometheus.HistogramVec
	fetchErrors *prometheus.CounterVec
}

var (
	plannerOnce     sync.Once
	plannerRegistry *PlannerMetrics
)

// Planner returns the process-wide metrics, registered with the default registry.
func Planner() *PlannerMetrics {
	plannerOnce.Do(func() {
		plannerRegistry = NewPlannerMetrics(prometheus.DefaultRegisterer)
	})
	return plannerRegistry
}

// NewPlannerMetrics creates and registers the planner metrics with reg.
func NewPlannerMetrics(reg prometheus.Registerer) *PlannerMetrics {
	m := &PlannerMetrics{
		plans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reallocator_plans_total",
			Help: "Count of reallocation plans by capacity source and outcome.",
		}, []string{"source", "outcome"}),
		fulfillment: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "reallocator_plan_fulfillment_ratio",
			Help:    "Planned total divided by requested amount for non-zero requests.",
			Buckets: []float64{0, 0.1, 0.25, 0.5, 0.75, 0.9, 0.99, 1},
		}),
		fetchTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "reallocator_fetch_duration_seconds",
			Help:    "Time spent fetching vault capacity by source.",
			Buckets: prometheus.DefBuckets,
		}, []string{"source"}),
		fetchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reallocator_fetch_errors_total",
			Help: "Count of failed capacity fetches by source.",
		}, []string{"source"}),
	}
	reg.MustRegister(m.plans, m.fulfillment, m.fetchTime, m.fetchErrors)
	return m
}

func label(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}

// ObservePlan records one plan. ratio is ignored when negative.
func (m *PlannerMetrics) ObservePlan(source, outcome string, ratio float64) {
	if m == nil {
		return
	}
	m.plans.WithLabelValues(label(source), label(outcome)).Inc()
	if ratio >= 0 {
		m.fulfillment.Observe(ratio)
	}
}

// ObserveFetch records the duration of a capacity fetch and whether it failed.
func (m *PlannerMetrics) ObserveFetch(source string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	m.fetchTime.WithLabelValues(label(source)).Observe(elapsed.Seconds())
	if err != nil {
		m.fetchErrors.WithLabelValues(label(source)).Inc()
	}
}

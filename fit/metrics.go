package fit

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Run outcomes used as the status label.
const (
	OutcomeConverged = "converged"
	OutcomeFailed    = "failed"
	OutcomeError     = "error"
	OutcomeCanceled  = "canceled"
)

// Metrics provides observability for fit runs. A nil *Metrics records nothing.
type Metrics struct {
	// Finished runs by minimizer and outcome
	Runs *prometheus.CounterVec

	// Iterations used per run by minimizer
	Iterations *prometheus.HistogramVec

	// Wall time per run by minimizer
	Duration *prometheus.HistogramVec

	// Cost function evaluations not served from its cache
	CostEvaluations *prometheus.CounterVec
}

// NewMetrics creates the fit metrics and registers them with reg. A nil
// reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Runs: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "scifit_fit_runs_total",
			Help: "Total fit runs by minimizer and outcome",
		}, []string{"minimizer", "status"}),

		Iterations: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "scifit_fit_iterations",
			Help:    "Minimizer iterations used by a fit run",
			Buckets: []float64{1, 2, 5, 10, 20, 50, 100, 200, 500, 1000},
		}, []string{"minimizer"}),

		Duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "scifit_fit_duration_seconds",
			Help:    "Duration of a fit run including covariance and error estimation",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 60},
		}, []string{"minimizer"}),

		CostEvaluations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "scifit_cost_evaluations_total",
			Help: "Cost function evaluations by cost function",
		}, []string{"cost_function"}),
	}
}

// ObserveRun records a finished run.
func (m *Metrics) ObserveRun(minimizerName, outcome string, iterations int, d time.Duration) {
	if m != nil {
		m.Runs.WithLabelValues(minimizerName, outcome).Inc()
		m.Iterations.WithLabelValues(minimizerName).Observe(float64(iterations))
		m.Duration.WithLabelValues(minimizerName).Observe(d.Seconds())
	}
}

// AddCostEvaluations records n evaluations of the named cost function.
func (m *Metrics) AddCostEvaluations(costName string, n int) {
	if m != nil && n > 0 {
		m.CostEvaluations.WithLabelValues(costName).Add(float64(n))
	}
}

package fit

import (
	"fmt"
	"math"
	"strings"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/scifit/metrics"
	"github.com/YuminosukeSato/scifit/pkg/errors"
)

// StatusSuccess is the status of a converged fit.
const StatusSuccess = "success"

// ParameterStatus tells whether a parameter was moved by the minimizer.
type ParameterStatus int

const (
	Active ParameterStatus = iota
	Fixed
	Tied
)

func (s ParameterStatus) String() string {
	switch s {
	case Active:
		return "active"
	case Fixed:
		return "fixed"
	case Tied:
		return "tied"
	default:
		return "unknown"
	}
}

// Parameter is a fitted parameter of the fitting function.
type Parameter struct {
	Name  string
	Value float64
	// Error is the standard error. It is zero for fixed parameters and
	// when no covariance could be computed.
	Error  float64
	Status ParameterStatus
}

// Result is the outcome of a fit run.
type Result struct {
	// Function is the fitted function in its textual definition form.
	Function     string
	Minimizer    string
	CostFunction string

	// Status is StatusSuccess, the minimizer's failure message, or the
	// error that stopped the run.
	Status     string
	Converged  bool
	Iterations int
	// CostValue is the final value of the cost function, penalties included.
	CostValue float64

	Parameters []Parameter
	// ActiveNames label the rows and columns of Covariance.
	ActiveNames []string
	// Covariance is the unscaled (J^T W J)^-1 over the active parameters.
	// It is nil when it could not be computed.
	Covariance *mat.SymDense

	// Chi2 is the weighted sum of squared residuals.
	Chi2        float64
	ReducedChi2 float64
	// Probability is the chance of a chi-square at least as large as Chi2.
	Probability float64
	R2          float64
	Goodness    *metrics.GoodnessOfFit

	Duration time.Duration
	Warnings []error
}

// Parameter returns the named parameter.
func (r *Result) Parameter(name string) (Parameter, error) {
	for _, p := range r.Parameters {
		if p.Name == name {
			return p, nil
		}
	}
	return Parameter{}, errors.NewNotFoundError("parameter", name)
}

// Values lists the parameter values in function order.
func (r *Result) Values() []float64 {
	values := make([]float64, len(r.Parameters))
	for i, p := range r.Parameters {
		values[i] = p.Value
	}
	return values
}

// Correlation returns the covariance normalised to unit diagonal. Entries
// of parameters with zero variance are zero.
func (r *Result) Correlation() *mat.SymDense {
	if r.Covariance == nil {
		return nil
	}
	n := r.Covariance.SymmetricDim()
	corr := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			d := math.Sqrt(r.Covariance.At(i, i) * r.Covariance.At(j, j))
			corr.SetSym(i, j, errors.SafeDivide(r.Covariance.At(i, j), d))
		}
	}
	return corr
}

// String renders a parameter table.
func (r *Result) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s, %s: %s after %d iterations\n", r.Minimizer, r.CostFunction, r.Status, r.Iterations)
	fmt.Fprintf(&b, "Chi2/DoF = %g\n", r.ReducedChi2)
	width := len("Name")
	for _, p := range r.Parameters {
		width = max(width, len(p.Name))
	}
	fmt.Fprintf(&b, "%-*s  %14s  %12s  %s\n", width, "Name", "Value", "Error", "Status")
	for _, p := range r.Parameters {
		fmt.Fprintf(&b, "%-*s  %14.6g  %12.4g  %s\n", width, p.Name, p.Value, p.Error, p.Status)
	}
	return b.String()
}

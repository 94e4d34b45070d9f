// Package cost implements the scalar objectives minimised by a fit.
//
// A cost function is bound to a fitting function and a data source (a plain
// domain with its values, or a SeqDomain/ParDomain producing sub-domains on
// demand). Its parameter space is the active parameters of the fitting
// function: fixed and tied parameters are invisible to minimizers.
package cost

import (
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/scifit/function"
)

// Function is the contract a minimizer drives.
type Function interface {
	Name() string

	// NParams is the number of active parameters.
	NParams() int
	Parameter(i int) float64
	// SetParameter sets active parameter i and invalidates cached results.
	SetParameter(i int, value float64)

	Val() (float64, error)
	// Deriv writes the gradient of Val into out.
	Deriv(out []float64) error
	// ValAndDeriv gives the same results as Val followed by Deriv.
	ValAndDeriv(out []float64) (float64, error)

	// ApplyTies recomputes the tied parameters of the fitting function.
	ApplyTies() error
}

// HessianFunction adds a Gauss-Newton Hessian and step rollback.
type HessianFunction interface {
	Function

	// ValDerivHessian evaluates the value and optionally the gradient and
	// Hessian. Results are cached until a parameter changes.
	ValDerivHessian(evalDeriv, evalHessian bool) (float64, error)
	// Gradient returns the gradient of the last evaluation with evalDeriv.
	Gradient() []float64
	// Hessian returns the Hessian of the last evaluation with evalHessian.
	Hessian() *mat.SymDense

	// Push saves the active parameters and cached results.
	Push()
	// Pop restores the state saved by the matching Push.
	Pop() error
	// Drop discards the state saved by the matching Push.
	Drop() error

	CalCovarianceMatrix(epsrel float64) (*mat.SymDense, error)
	CalFittingErrors(covar *mat.SymDense, chi2 float64) error
}

// ResidualFunction exposes weighted residuals for least-squares solvers
// that work on the residual vector rather than on the scalar cost.
type ResidualFunction interface {
	Function

	// NResiduals is the length of the residual vector.
	NResiduals() int
	// Residuals fills r so that the sum of r[i]^2 equals Val. When jac is
	// not nil it also receives dr/dp over the active parameters.
	Residuals(r []float64, jac *mat.Dense) error
	// FittingFunction returns the bound function.
	FittingFunction() function.Function
}

// Package minimizer provides the iterative solvers that drive a cost
// function to its minimum.
//
// A minimizer is bound to a cost function with Initialize and advanced one
// step at a time with Iterate. Iterate returns false once the solver has
// converged or hit a terminal condition; Converged and LastError tell the
// two apart. Only the active parameters of the fitting function are seen by
// a minimizer: fixed and tied parameters are not part of its state vector.
//
//	m, err := minimizer.NewFactory().Create(minimizer.LevenbergMarquardtName)
//	if err != nil {
//	    return err
//	}
//	if err := m.Initialize(costFunction, 500); err != nil {
//	    return err
//	}
//	for iter := 0; iter < 500; iter++ {
//	    more, err := m.Iterate(ctx, iter)
//	    if err != nil || !more {
//	        break
//	    }
//	}
package minimizer

import (
	"context"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/scifit/cost"
)

// Minimizer names as accepted by Factory.Create.
const (
	LevenbergMarquardtName   = "Levenberg-Marquardt"
	LevenbergMarquardtMDName = "Levenberg-MarquardtMD"
	MadsenName               = "Levenberg-Marquardt (Madsen)"
	BFGSName                 = "BFGS"
	FletcherReevesName       = "Conjugate gradient (Fletcher-Reeves imp.)"
	PolakRibiereName         = "Conjugate gradient (Polak-Ribiere imp.)"
	SteepestDescentName      = "SteepestDescent"
)

// Terminal conditions reported through LastError.
const (
	FailureFunctionTolerance  = "changes in function value too small"
	FailureParameterTolerance = "changes in parameter value too small"
	FailureNoProgress         = "solver making no progress"
)

// Minimizer is the contract shared by all solvers.
type Minimizer interface {
	Name() string

	// Initialize binds cf and takes the starting point from its current
	// active parameters. maxIterations is the cap the caller's loop will
	// enforce; solvers that run to completion in one call use it directly.
	Initialize(cf cost.Function, maxIterations int) error

	// Iterate performs one step. It returns true while more steps are
	// useful. A cancelled ctx is reported before the step starts.
	Iterate(ctx context.Context, iteration int) (bool, error)

	// CostFunctionVal is the cost at the current point, taken from the
	// solver's stored state without evaluating the model.
	CostFunctionVal() float64

	// LastError describes the terminal condition, or is empty.
	LastError() string

	Converged() bool

	// CalCovarianceMatrix returns the covariance of the active
	// parameters with the rank tolerance of cost.Covariance.
	CalCovarianceMatrix(epsrel float64) (*mat.SymDense, error)
}

// testDelta reports whether every step component satisfies
// |dx_i| < absErr + relErr*|x_i|.
func testDelta(dx, x []float64, absErr, relErr float64) bool {
	for i := range dx {
		if math.Abs(dx[i]) >= absErr+relErr*math.Abs(x[i]) {
			return false
		}
	}
	return true
}

func parameters(cf cost.Function, dst []float64) {
	for i := range dst {
		dst[i] = cf.Parameter(i)
	}
}

// setParameters writes x into cf and recomputes the tied parameters.
func setParameters(cf cost.Function, x []float64) error {
	for i, v := range x {
		cf.SetParameter(i, v)
	}
	return cf.ApplyTies()
}

package minimizer

import (
	"context"
	"fmt"
	"math"

	"github.com/maorshutman/lm"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"

	"github.com/YuminosukeSato/scifit/cost"
	"github.com/YuminosukeSato/scifit/pkg/errors"
	"github.com/YuminosukeSato/scifit/pkg/log"
)

// Madsen runs the damped least-squares method of Madsen, Nielsen and
// Tingleff to completion in a single Iterate call. It suits small problems
// where per-iteration control is not needed.
type Madsen struct {
	opts   Options
	logger log.Logger

	cf            cost.ResidualFunction
	maxIterations int
	x             []float64
	r             []float64
	jac           *mat.Dense
	f             float64
	done          bool

	lastErr   string
	converged bool
}

// NewMadsen returns an uninitialized solver.
func NewMadsen(opts ...Option) (*Madsen, error) {
	o, err := buildOptions(opts)
	if err != nil {
		return nil, err
	}
	return &Madsen{opts: o, logger: o.minimizerLogger(MadsenName)}, nil
}

func (m *Madsen) Name() string { return MadsenName }

func (m *Madsen) Initialize(cf cost.Function, maxIterations int) error {
	const op = "Madsen.Initialize"
	rf, ok := cf.(cost.ResidualFunction)
	if !ok {
		return errors.NewValueErrorf(op, "cost function %q does not expose residuals", cf.Name())
	}
	n, nr := rf.NParams(), rf.NResiduals()
	if n == 0 {
		return errors.NewValueError(op, "no active parameters")
	}
	if nr < n {
		return errors.NewValueErrorf(op, "%d residuals cannot determine %d parameters", nr, n)
	}
	if maxIterations <= 0 {
		return errors.NewValidationError("maxIterations", "must be positive", maxIterations)
	}
	m.cf = rf
	m.maxIterations = maxIterations
	m.x = make([]float64, n)
	m.r = make([]float64, nr)
	m.jac = mat.NewDense(nr, n, nil)
	m.done = false
	m.lastErr = ""
	m.converged = false
	parameters(rf, m.x)
	return m.evaluate()
}

func (m *Madsen) evaluate() error {
	if err := m.cf.Residuals(m.r, m.jac); err != nil {
		return err
	}
	m.f = floats.Dot(m.r, m.r)
	return nil
}

func (m *Madsen) Iterate(ctx context.Context, iteration int) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if m.cf == nil {
		return false, errors.NewRuntimeError(m.Name(), "minimizer is not initialized", nil)
	}
	if m.done {
		return false, nil
	}
	m.done = true

	// the solver cannot report evaluation errors, so the first one is kept
	// and the residuals are poisoned to stop progress
	var evalErr error
	residuals := func(dst, p []float64) {
		if evalErr != nil {
			floats.AddConst(math.NaN(), dst)
			return
		}
		if err := setParameters(m.cf, p); err != nil {
			evalErr = err
		} else if err := m.cf.Residuals(dst, nil); err != nil {
			evalErr = err
		}
	}
	scratch := make([]float64, len(m.r))
	jacobian := func(dst *mat.Dense, p []float64) {
		if evalErr != nil {
			return
		}
		if err := setParameters(m.cf, p); err != nil {
			evalErr = err
		} else if err := m.cf.Residuals(scratch, dst); err != nil {
			evalErr = err
		}
	}

	problem := lm.LMProblem{
		Dim:        len(m.x),
		Size:       len(m.r),
		Func:       residuals,
		Jac:        jacobian,
		InitParams: m.x,
		Tau:        1e-6,
		Eps1:       1e-8,
		Eps2:       1e-8,
	}
	settings := &lm.Settings{Iterations: m.maxIterations, ObjectiveTol: 1e-16}

	var result *lm.Result
	err := errors.SafeExecute(m.Name(), func() error {
		var err error
		result, err = lm.LM(problem, settings)
		return err
	})
	if err == nil {
		err = evalErr
	}
	if err != nil {
		// leave the function at the starting point
		if rerr := setParameters(m.cf, m.x); rerr != nil {
			return false, rerr
		}
		return false, err
	}

	copy(m.x, result.X)
	if err := setParameters(m.cf, m.x); err != nil {
		return false, err
	}
	if err := m.evaluate(); err != nil {
		return false, err
	}
	m.converged = result.Status == optimize.StepConvergence
	if !m.converged {
		m.lastErr = fmt.Sprintf("Failed to converge after %d iterations.", m.maxIterations)
	}
	m.logger.Debug("Solver finished",
		log.IterationKey, iteration,
		log.CostKey, m.f,
		log.StatusKey, result.Status.String(),
	)
	return false, nil
}

// CostFunctionVal is the sum of squared residuals at the current point.
func (m *Madsen) CostFunctionVal() float64 { return m.f }

func (m *Madsen) LastError() string { return m.lastErr }

func (m *Madsen) Converged() bool { return m.converged }

func (m *Madsen) CalCovarianceMatrix(epsrel float64) (*mat.SymDense, error) {
	if m.cf == nil {
		return nil, errors.NewRuntimeError(m.Name(), "minimizer is not initialized", nil)
	}
	return normalCovariance(m.jac, epsrel)
}

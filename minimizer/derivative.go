package minimizer

import (
	"context"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"

	"github.com/YuminosukeSato/scifit/cost"
	"github.com/YuminosukeSato/scifit/pkg/errors"
	"github.com/YuminosukeSato/scifit/pkg/log"
)

// maxLineSearchEvals bounds the cost evaluations of one line search.
const maxLineSearchEvals = 40

// DerivativeMinimizer minimizes a cost function using its gradient only.
// A gonum direction generator proposes the search direction and a
// More-Thuente line search picks the step along it. The solver has
// converged when the 2-norm of the gradient drops below StopGradient.
type DerivativeMinimizer struct {
	name string
	// newDirection builds a fresh direction generator for each fit.
	newDirection func() optimize.NextDirectioner
	curvature    float64

	opts   Options
	logger log.Logger

	cf        cost.Function
	direction optimize.NextDirectioner
	search    *optimize.MoreThuente
	loc       *optimize.Location
	dir       []float64
	x0        []float64
	grad      []float64
	step      float64

	lastErr   string
	converged bool
}

func newDerivativeMinimizer(name string, curvature float64, newDirection func() optimize.NextDirectioner, opts []Option) (*DerivativeMinimizer, error) {
	o, err := buildOptions(opts)
	if err != nil {
		return nil, err
	}
	return &DerivativeMinimizer{
		name:         name,
		newDirection: newDirection,
		curvature:    curvature,
		opts:         o,
		logger:       o.minimizerLogger(name),
	}, nil
}

// NewBFGS returns the quasi-Newton BFGS minimizer.
func NewBFGS(opts ...Option) (*DerivativeMinimizer, error) {
	return newDerivativeMinimizer(BFGSName, 0.9, func() optimize.NextDirectioner {
		return &optimize.BFGS{}
	}, opts)
}

// NewFletcherReeves returns a conjugate gradient minimizer with the
// Fletcher-Reeves update.
func NewFletcherReeves(opts ...Option) (*DerivativeMinimizer, error) {
	return newDerivativeMinimizer(FletcherReevesName, 0.1, func() optimize.NextDirectioner {
		return newCG(&optimize.FletcherReeves{})
	}, opts)
}

// NewPolakRibiere returns a conjugate gradient minimizer with the
// Polak-Ribiere update.
func NewPolakRibiere(opts ...Option) (*DerivativeMinimizer, error) {
	return newDerivativeMinimizer(PolakRibiereName, 0.1, func() optimize.NextDirectioner {
		return newCG(&optimize.PolakRibierePolyak{})
	}, opts)
}

// NewSteepestDescent returns the steepest descent minimizer.
func NewSteepestDescent(opts ...Option) (*DerivativeMinimizer, error) {
	return newDerivativeMinimizer(SteepestDescentName, 0.9, func() optimize.NextDirectioner {
		return &optimize.GradientDescent{StepSizer: &optimize.QuadraticStepSize{}}
	}, opts)
}

func newCG(variant optimize.CGVariant) *optimize.CG {
	return &optimize.CG{
		Variant:                variant,
		InitialStep:            &optimize.FirstOrderStepSize{},
		IterationRestartFactor: 6,
		AngleRestartThreshold:  -0.9,
	}
}

func (m *DerivativeMinimizer) Name() string { return m.name }

func (m *DerivativeMinimizer) Initialize(cf cost.Function, maxIterations int) error {
	n := cf.NParams()
	if n == 0 {
		return errors.NewValueError(m.name+".Initialize", "no active parameters")
	}
	m.cf = cf
	m.direction = m.newDirection()
	m.search = &optimize.MoreThuente{
		CurvatureFactor: m.curvature,
		StepTolerance:   m.opts.Tolerance,
	}
	m.loc = &optimize.Location{X: make([]float64, n), Gradient: make([]float64, n)}
	m.dir = make([]float64, n)
	m.x0 = make([]float64, n)
	m.grad = make([]float64, n)
	m.lastErr = ""
	m.converged = false

	parameters(cf, m.loc.X)
	f, err := cf.ValAndDeriv(m.loc.Gradient)
	if err != nil {
		return err
	}
	if err := errors.CheckNumericalStability(m.name+" gradient", m.loc.Gradient, 0); err != nil {
		return err
	}
	m.loc.F = f
	m.restart()
	m.logger.Debug("Minimizer initialized",
		log.ParametersKey, n,
		log.CostKey, f,
		log.GradientNormKey, floats.Norm(m.loc.Gradient, 2),
	)
	return nil
}

// restart resets the direction generator to steepest descent with a first
// step of StepSize along the normalised direction.
func (m *DerivativeMinimizer) restart() {
	m.direction.InitDirection(m.loc, m.dir)
	if norm := floats.Norm(m.dir, 2); norm > 0 {
		m.step = m.opts.StepSize / norm
	}
}

func (m *DerivativeMinimizer) Iterate(ctx context.Context, iteration int) (more bool, err error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if m.cf == nil {
		return false, errors.NewRuntimeError(m.name, "minimizer is not initialized", nil)
	}
	defer errors.Recover(&err, m.name+".Iterate")

	if floats.Norm(m.loc.Gradient, 2) < m.opts.StopGradient {
		m.converged = true
		return false, nil
	}
	slope := floats.Dot(m.loc.Gradient, m.dir)
	if slope >= 0 {
		m.restart()
		slope = floats.Dot(m.loc.Gradient, m.dir)
	}

	accepted, err := m.lineSearch(slope)
	if err != nil {
		return false, err
	}
	if !accepted {
		if err := setParameters(m.cf, m.x0); err != nil {
			return false, err
		}
		m.lastErr = FailureNoProgress
		m.logger.Debug("Line search failed",
			log.IterationKey, iteration,
			log.CostKey, m.loc.F,
		)
		return false, nil
	}

	gnorm := floats.Norm(m.loc.Gradient, 2)
	m.logger.Debug("Iteration",
		log.IterationKey, iteration,
		log.CostKey, m.loc.F,
		log.GradientNormKey, gnorm,
	)
	if gnorm < m.opts.StopGradient {
		m.converged = true
		return false, nil
	}
	m.step = m.direction.NextDirection(m.loc, m.dir)
	return true, nil
}

// lineSearch moves along m.dir from the current location. On success the
// location holds the accepted point and the cost function's parameters
// are set to it.
func (m *DerivativeMinimizer) lineSearch(slope float64) (bool, error) {
	copy(m.x0, m.loc.X)
	step := m.step
	m.search.Init(m.loc.F, slope, step)
	trial := make([]float64, len(m.x0))
	for k := 0; k < maxLineSearchEvals; k++ {
		floats.AddScaledTo(trial, m.x0, step, m.dir)
		if err := setParameters(m.cf, trial); err != nil {
			return false, err
		}
		f, err := m.cf.ValAndDeriv(m.grad)
		if err != nil {
			return false, err
		}
		op, next, err := m.search.Iterate(f, floats.Dot(m.grad, m.dir))
		if err != nil {
			return false, nil
		}
		if op == optimize.MajorIteration {
			copy(m.loc.X, trial)
			copy(m.loc.Gradient, m.grad)
			m.loc.F = f
			return true, nil
		}
		step = next
	}
	return false, nil
}

// CostFunctionVal is the cost at the last accepted point.
func (m *DerivativeMinimizer) CostFunctionVal() float64 {
	if m.loc == nil {
		return 0
	}
	return m.loc.F
}

func (m *DerivativeMinimizer) LastError() string { return m.lastErr }

func (m *DerivativeMinimizer) Converged() bool { return m.converged }

// CalCovarianceMatrix uses the Gauss-Newton Hessian of the cost function.
func (m *DerivativeMinimizer) CalCovarianceMatrix(epsrel float64) (*mat.SymDense, error) {
	hf, ok := m.cf.(cost.HessianFunction)
	if !ok {
		return nil, errors.NewRuntimeError(m.name, "cost function has no Hessian for the covariance", nil)
	}
	return hf.CalCovarianceMatrix(epsrel)
}

package minimizer

import (
	"context"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/scifit/cost"
	"github.com/YuminosukeSato/scifit/pkg/errors"
	"github.com/YuminosukeSato/scifit/pkg/log"
)

// LevenbergMarquardt is a damped Gauss-Newton solver on the weighted
// residual vector of a cost.ResidualFunction. Each iteration takes one
// accepted step and stops when every component of that step passes the
// test_delta criterion |dx_i| < AbsError + RelError*|x_i|.
type LevenbergMarquardt struct {
	opts   Options
	logger log.Logger

	cf    cost.ResidualFunction
	x     []float64
	trial []float64
	r     []float64
	rTry  []float64
	jac   *mat.Dense
	a     *mat.SymDense
	g     []float64
	f     float64
	damp  *damping

	lastErr   string
	converged bool
}

// NewLevenbergMarquardt returns an uninitialized solver.
func NewLevenbergMarquardt(opts ...Option) (*LevenbergMarquardt, error) {
	o, err := buildOptions(opts)
	if err != nil {
		return nil, err
	}
	return &LevenbergMarquardt{opts: o, logger: o.minimizerLogger(LevenbergMarquardtName)}, nil
}

func (m *LevenbergMarquardt) Name() string { return LevenbergMarquardtName }

func (m *LevenbergMarquardt) Initialize(cf cost.Function, maxIterations int) error {
	const op = "LevenbergMarquardt.Initialize"
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

	m.cf = rf
	m.x = make([]float64, n)
	m.trial = make([]float64, n)
	m.r = make([]float64, nr)
	m.rTry = make([]float64, nr)
	m.jac = mat.NewDense(nr, n, nil)
	m.a = mat.NewSymDense(n, nil)
	m.g = make([]float64, n)
	m.damp = newDamping(n)
	m.lastErr = ""
	m.converged = false

	parameters(rf, m.x)
	if err := m.evaluate(); err != nil {
		return err
	}
	m.damp.reset(m.a)
	m.logger.Debug("Minimizer initialized",
		log.ParametersKey, n,
		"residuals", nr,
		log.CostKey, m.f,
		log.DampingKey, m.damp.mu,
	)
	return nil
}

// evaluate refreshes residuals, Jacobian, gradient 2J^T r and normal
// matrix 2J^T J at m.x.
func (m *LevenbergMarquardt) evaluate() error {
	if err := m.cf.Residuals(m.r, m.jac); err != nil {
		return err
	}
	m.f = floats.Dot(m.r, m.r)
	if err := errors.CheckScalar("LevenbergMarquardt cost", m.f, 0); err != nil {
		return err
	}
	if err := errors.CheckMatrix("LevenbergMarquardt Jacobian", m.jac, 0); err != nil {
		return err
	}
	m.a.SymOuterK(2, m.jac.T())
	g := mat.NewVecDense(len(m.g), m.g)
	g.MulVec(m.jac.T(), mat.NewVecDense(len(m.r), m.r))
	g.ScaleVec(2, g)
	return nil
}

func (m *LevenbergMarquardt) try(dx []float64) (float64, error) {
	floats.AddTo(m.trial, m.x, dx)
	if err := setParameters(m.cf, m.trial); err != nil {
		return 0, err
	}
	if err := m.cf.Residuals(m.rTry, nil); err != nil {
		return 0, err
	}
	return floats.Dot(m.rTry, m.rTry), nil
}

func (m *LevenbergMarquardt) undo() error {
	return setParameters(m.cf, m.x)
}

func (m *LevenbergMarquardt) Iterate(ctx context.Context, iteration int) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if m.cf == nil {
		return false, errors.NewRuntimeError(m.Name(), "minimizer is not initialized", nil)
	}
	if floats.Norm(m.g, 2) == 0 {
		m.converged = true
		return false, nil
	}

	step, err := m.damp.iterate(m.a, m.g, m.x, m.f, m.try, m.undo)
	if err != nil {
		return false, err
	}
	if step.failure != "" {
		m.lastErr = step.failure
		m.logger.Debug("Iteration stopped",
			log.IterationKey, iteration,
			log.StatusKey, step.failure,
			log.DampingKey, m.damp.mu,
		)
		return false, nil
	}

	copy(m.x, m.trial)
	if err := m.evaluate(); err != nil {
		return false, err
	}
	m.damp.updateScale(m.a)
	m.converged = testDelta(step.dx, m.x, m.opts.AbsError, m.opts.RelError)

	m.logger.Debug("Iteration",
		log.IterationKey, iteration,
		log.CostKey, m.f,
		log.DampingKey, m.damp.mu,
		log.RatioKey, step.ratio,
		log.StepNormKey, floats.Norm(step.dx, 2),
	)
	return !m.converged, nil
}

// CostFunctionVal is the sum of squared residuals at the current point.
func (m *LevenbergMarquardt) CostFunctionVal() float64 { return m.f }

func (m *LevenbergMarquardt) LastError() string { return m.lastErr }

func (m *LevenbergMarquardt) Converged() bool { return m.converged }

// CalCovarianceMatrix inverts J^T J of the last accepted point.
func (m *LevenbergMarquardt) CalCovarianceMatrix(epsrel float64) (*mat.SymDense, error) {
	if m.cf == nil {
		return nil, errors.NewRuntimeError(m.Name(), "minimizer is not initialized", nil)
	}
	return normalCovariance(m.jac, epsrel)
}

// normalCovariance returns (J^T J)^-1 with the rank handling of
// cost.Covariance.
func normalCovariance(jac *mat.Dense, epsrel float64) (*mat.SymDense, error) {
	_, n := jac.Dims()
	jtj := mat.NewSymDense(n, nil)
	jtj.SymOuterK(1, jac.T())
	return cost.Covariance(jtj, epsrel)
}

package minimizer

import (
	"context"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/scifit/cost"
	"github.com/YuminosukeSato/scifit/pkg/errors"
	"github.com/YuminosukeSato/scifit/pkg/log"
)

// LevenbergMarquardtMD is the Levenberg-Marquardt method working on the
// gradient and Gauss-Newton Hessian of a cost.HessianFunction instead of
// the residual vector, so it also runs over SeqDomain and ParDomain data.
// Rejected steps are rolled back with Push and Pop, which restores the
// cached derivatives without evaluating the model again.
type LevenbergMarquardtMD struct {
	opts   Options
	logger log.Logger

	cf    cost.HessianFunction
	x     []float64
	trial []float64
	f     float64
	damp  *damping

	lastErr   string
	converged bool
}

// NewLevenbergMarquardtMD returns an uninitialized solver.
func NewLevenbergMarquardtMD(opts ...Option) (*LevenbergMarquardtMD, error) {
	o, err := buildOptions(opts)
	if err != nil {
		return nil, err
	}
	return &LevenbergMarquardtMD{opts: o, logger: o.minimizerLogger(LevenbergMarquardtMDName)}, nil
}

func (m *LevenbergMarquardtMD) Name() string { return LevenbergMarquardtMDName }

func (m *LevenbergMarquardtMD) Initialize(cf cost.Function, maxIterations int) error {
	const op = "LevenbergMarquardtMD.Initialize"
	hf, ok := cf.(cost.HessianFunction)
	if !ok {
		return errors.NewValueErrorf(op, "cost function %q has no Hessian", cf.Name())
	}
	n := hf.NParams()
	if n == 0 {
		return errors.NewValueError(op, "no active parameters")
	}
	m.cf = hf
	m.x = make([]float64, n)
	m.trial = make([]float64, n)
	m.damp = newDamping(n)
	m.lastErr = ""
	m.converged = false

	parameters(hf, m.x)
	f, err := hf.ValDerivHessian(true, true)
	if err != nil {
		return err
	}
	m.f = f
	m.damp.reset(hf.Hessian())
	m.logger.Debug("Minimizer initialized",
		log.ParametersKey, n,
		log.CostKey, f,
		log.DampingKey, m.damp.mu,
	)
	return nil
}

func (m *LevenbergMarquardtMD) try(dx []float64) (float64, error) {
	m.cf.Push()
	floats.AddTo(m.trial, m.x, dx)
	if err := setParameters(m.cf, m.trial); err != nil {
		return 0, err
	}
	return m.cf.Val()
}

func (m *LevenbergMarquardtMD) undo() error {
	return m.cf.Pop()
}

func (m *LevenbergMarquardtMD) Iterate(ctx context.Context, iteration int) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if m.cf == nil {
		return false, errors.NewRuntimeError(m.Name(), "minimizer is not initialized", nil)
	}
	f, err := m.cf.ValDerivHessian(true, true)
	if err != nil {
		return false, err
	}
	if err := errors.CheckScalar("LevenbergMarquardtMD cost", f, iteration); err != nil {
		return false, err
	}
	m.f = f
	g, h := m.cf.Gradient(), m.cf.Hessian()
	if err := errors.CheckMatrix("LevenbergMarquardtMD Hessian", h, iteration); err != nil {
		return false, err
	}
	if floats.Norm(g, 2) == 0 {
		m.converged = true
		return false, nil
	}
	m.damp.updateScale(h)

	step, err := m.damp.iterate(h, g, m.x, f, m.try, m.undo)
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
	if err := m.cf.Drop(); err != nil {
		return false, err
	}

	copy(m.x, m.trial)
	m.f = step.value
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

// CostFunctionVal is the cost of the last accepted point.
func (m *LevenbergMarquardtMD) CostFunctionVal() float64 { return m.f }

func (m *LevenbergMarquardtMD) LastError() string { return m.lastErr }

func (m *LevenbergMarquardtMD) Converged() bool { return m.converged }

func (m *LevenbergMarquardtMD) CalCovarianceMatrix(epsrel float64) (*mat.SymDense, error) {
	if m.cf == nil {
		return nil, errors.NewRuntimeError(m.Name(), "minimizer is not initialized", nil)
	}
	return m.cf.CalCovarianceMatrix(epsrel)
}

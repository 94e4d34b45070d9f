// Package fit drives a minimizer over a cost function and reports the
// fitted parameters with their errors and goodness-of-fit statistics.
//
// Example:
//
//	fn, _ := function.NewFactory().CreateInitialized(
//	    "name=Gaussian,Height=2,PeakCentre=0,Sigma=1;name=FlatBackground,A0=0.1")
//	f, err := fit.New(fn, d, v,
//	    fit.WithMinimizer(minimizer.LevenbergMarquardtMDName),
//	    fit.WithLogger(logger),
//	)
//	if err != nil {
//	    return err
//	}
//	res, err := f.Run(ctx)
package fit

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/YuminosukeSato/scifit/cost"
	"github.com/YuminosukeSato/scifit/domain"
	"github.com/YuminosukeSato/scifit/function"
	"github.com/YuminosukeSato/scifit/metrics"
	"github.com/YuminosukeSato/scifit/minimizer"
	"github.com/YuminosukeSato/scifit/pkg/errors"
	"github.com/YuminosukeSato/scifit/pkg/log"
)

// costFunction is what the driver needs from cost.LeastSquares and cost.Rwp.
type costFunction interface {
	cost.HessianFunction
	cost.ResidualFunction

	SetFittingFunction(fn function.Function, d domain.FunctionDomain, v *domain.FunctionValues) error
	DomainKind() string
	NData() int
	Evaluations() int
	ChiSquared() (float64, error)
	UnpenalizedVal() (float64, error)
	EachEvaluated(visit func(v *domain.FunctionValues) error) error
}

// Fit binds a function to its data. It may be run more than once, each run
// starting from the current parameter values, but not concurrently.
type Fit struct {
	fn    function.Function
	cf    costFunction
	opts  *Options
	log   log.Logger
	state stateManager
}

// New creates a fit of fn to the values v over d. d may also be a
// *cost.SeqDomain or *cost.ParDomain, in which case v is ignored.
func New(fn function.Function, d domain.FunctionDomain, v *domain.FunctionValues, opts ...Option) (*Fit, error) {
	o, err := buildOptions(opts)
	if err != nil {
		return nil, err
	}
	cf := o.newCost()
	if err := cf.SetFittingFunction(fn, d, v); err != nil {
		return nil, err
	}
	return &Fit{
		fn:   fn,
		cf:   cf,
		opts: o,
		log:  o.Logger.With(log.ComponentKey, log.ComponentFit),
	}, nil
}

// NewSequential creates a fit over data produced one creator at a time.
func NewSequential(fn function.Function, creators []domain.Creator, opts ...Option) (*Fit, error) {
	if len(creators) == 0 {
		return nil, errors.NewValueError("fit.NewSequential", "no domain creators")
	}
	return New(fn, cost.NewSeqDomain(creators...), nil, opts...)
}

// NewParallel creates a fit that evaluates the creators' sub-domains on a
// pool of workers. workers <= 0 means GOMAXPROCS.
func NewParallel(fn function.Function, workers int, creators []domain.Creator, opts ...Option) (*Fit, error) {
	if len(creators) == 0 {
		return nil, errors.NewValueError("fit.NewParallel", "no domain creators")
	}
	return New(fn, cost.NewParDomain(workers, creators...), nil, opts...)
}

// Function returns the fitting function.
func (f *Fit) Function() function.Function { return f.fn }

// CostFunction returns the bound cost function.
func (f *Fit) CostFunction() cost.HessianFunction { return f.cf }

// Progress may be called while Run is in progress.
func (f *Fit) Progress() Progress { return f.state.snapshot() }

// Result returns the result of the last run.
func (f *Fit) Result() (*Result, error) { return f.state.requireResult() }

// Run minimizes the cost function. It stops when the minimizer converges
// or fails, after MaxIterations iterations, or when ctx is done.
//
// A fit that stops without converging is not an error: the result carries
// the minimizer's status and a ConvergenceWarning. A runtime error or a
// cancellation stops the run and is returned together with a partial
// result holding the last iterated parameters. Initialization errors are
// returned without a result.
func (f *Fit) Run(ctx context.Context) (res *Result, err error) {
	if err := f.state.begin(); err != nil {
		return nil, err
	}
	defer func() { f.state.finish(res) }()

	start := time.Now()
	ctx, span := f.opts.Tracer.Start(ctx, "fit.Run", trace.WithAttributes(
		attribute.String(log.FunctionKey, f.fn.Name()),
		attribute.String(log.MinimizerKey, f.opts.Minimizer),
		attribute.String(log.CostFunctionKey, f.cf.Name()),
		attribute.String(log.DomainKey, f.cf.DomainKind()),
		attribute.Int(log.DataPointsKey, f.cf.NData()),
	))
	defer span.End()

	evaluations := f.cf.Evaluations()
	defer func() {
		f.opts.Metrics.AddCostEvaluations(f.cf.Name(), f.cf.Evaluations()-evaluations)
	}()

	if f.opts.SatisfyConstraints {
		function.SatisfyConstraints(f.fn)
	}
	for i := 0; i < f.fn.NParams(); i++ {
		f.fn.SetParameterError(i, 0)
	}

	m, err := f.opts.newMinimizer()
	if err != nil {
		return nil, f.fail(span, f.opts.Minimizer, err, 0, start)
	}
	if err := m.Initialize(f.cf, f.opts.MaxIterations); err != nil {
		return nil, f.fail(span, m.Name(), err, 0, start)
	}
	span.SetAttributes(attribute.Int(log.ParametersKey, f.cf.NParams()))
	f.log.Info("Fit started",
		log.FunctionKey, f.fn.Name(),
		log.MinimizerKey, m.Name(),
		log.CostFunctionKey, f.cf.Name(),
		log.DomainKey, f.cf.DomainKind(),
		log.DataPointsKey, f.cf.NData(),
		log.ParametersKey, f.cf.NParams(),
	)

	iterations, err := f.iterate(ctx, span, m)
	if err != nil {
		res = f.partial(m, iterations, err, start)
		return res, f.fail(span, m.Name(), err, iterations, start)
	}
	res, err = f.finish(m, iterations)
	res.Duration = time.Since(start)
	if err != nil {
		res.Status = err.Error()
		return res, f.fail(span, m.Name(), err, iterations, start)
	}

	outcome := OutcomeFailed
	if res.Converged {
		outcome = OutcomeConverged
	}
	f.opts.Metrics.ObserveRun(m.Name(), outcome, iterations, res.Duration)
	span.SetAttributes(
		attribute.String(log.StatusKey, res.Status),
		attribute.Bool(log.ConvergedKey, res.Converged),
		attribute.Int(log.IterationKey, iterations),
		attribute.Float64(log.ChiSquaredKey, res.Chi2),
	)
	f.log.Info("Fit finished",
		log.MinimizerKey, m.Name(),
		log.StatusKey, res.Status,
		log.ConvergedKey, res.Converged,
		log.IterationKey, iterations,
		log.ChiSquaredKey, res.Chi2,
		log.ReducedChi2Key, res.ReducedChi2,
		log.DurationMsKey, res.Duration.Milliseconds(),
	)
	return res, nil
}

// iterate runs the minimizer and returns the number of completed iterations.
func (f *Fit) iterate(ctx context.Context, span trace.Span, m minimizer.Minimizer) (int, error) {
	for iter := 0; iter < f.opts.MaxIterations; iter++ {
		more, err := m.Iterate(ctx, iter)
		if err != nil {
			return iter, err
		}
		val := m.CostFunctionVal()
		f.state.update(iter+1, val)
		span.AddEvent("iteration", trace.WithAttributes(
			attribute.Int(log.IterationKey, iter),
			attribute.Float64(log.CostKey, val),
		))
		if !more {
			return iter + 1, nil
		}
	}
	return f.opts.MaxIterations, nil
}

// finish computes the status, the covariance, the parameter errors and the
// goodness of fit of a run that ended without error.
func (f *Fit) finish(m minimizer.Minimizer, iterations int) (*Result, error) {
	res := f.newResult(m, iterations)
	switch {
	case m.Converged():
		res.Status = StatusSuccess
		res.Converged = true
	case m.LastError() != "":
		res.Status = m.LastError()
	default:
		res.Status = fmt.Sprintf("Failed to converge after %d iterations.", iterations)
	}
	if !res.Converged {
		res.Warnings = append(res.Warnings, errors.NewConvergenceWarning(m.Name(), iterations, res.Status))
		f.log.Warn("Fit did not converge",
			log.MinimizerKey, m.Name(),
			log.StatusKey, res.Status,
			log.IterationKey, iterations,
		)
	}

	nActive := f.cf.NParams()
	dof := f.cf.NData() - nActive
	raw, err := f.cf.UnpenalizedVal()
	if err != nil {
		return res, err
	}
	// errors are scaled by the reduced chi-square
	scale := raw
	if dof > 0 {
		scale /= float64(dof)
	} else {
		res.Warnings = append(res.Warnings, errors.NewValueErrorf("fit",
			"%d data points leave no degrees of freedom for %d parameters", f.cf.NData(), nActive))
	}

	covar, err := m.CalCovarianceMatrix(f.opts.Epsrel)
	if err != nil {
		res.Warnings = append(res.Warnings, errors.Wrap(err, "covariance matrix"))
		f.log.Warn("Covariance matrix unavailable", err, log.MinimizerKey, m.Name())
	} else {
		res.Covariance = covar
		if err := f.cf.CalFittingErrors(covar, scale); err != nil {
			return res, err
		}
	}

	if res.Chi2, err = f.cf.ChiSquared(); err != nil {
		return res, err
	}
	g, err := f.goodness(nActive)
	if err != nil {
		return res, err
	}
	res.Goodness = g
	res.ReducedChi2 = g.ReducedChiSquare
	res.Probability = g.Probability
	res.R2 = g.R2

	f.collectParameters(res)
	return res, nil
}

// goodness gathers data, fit and weights over every sub-domain.
func (f *Fit) goodness(nParams int) (*metrics.GoodnessOfFit, error) {
	var y, calc, w []float64
	err := f.cf.EachEvaluated(func(v *domain.FunctionValues) error {
		y = append(y, v.FitDataSlice()...)
		calc = append(calc, v.CalculatedSlice()...)
		w = append(w, v.FitWeightsSlice()...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return metrics.Evaluate(y, calc, w, nParams)
}

func (f *Fit) newResult(m minimizer.Minimizer, iterations int) *Result {
	return &Result{
		Function:     function.String(f.fn),
		Minimizer:    m.Name(),
		CostFunction: f.cf.Name(),
		Iterations:   iterations,
		CostValue:    m.CostFunctionVal(),
	}
}

// partial is the result of a run stopped by err.
func (f *Fit) partial(m minimizer.Minimizer, iterations int, err error, start time.Time) *Result {
	res := f.newResult(m, iterations)
	res.Status = err.Error()
	res.Duration = time.Since(start)
	f.collectParameters(res)
	return res
}

func (f *Fit) collectParameters(res *Result) {
	res.Parameters = make([]Parameter, f.fn.NParams())
	res.ActiveNames = res.ActiveNames[:0]
	for i := range res.Parameters {
		p := Parameter{
			Name:  f.fn.ParameterName(i),
			Value: f.fn.Parameter(i),
			Error: f.fn.ParameterError(i),
		}
		switch {
		case f.fn.IsFixed(i):
			p.Status = Fixed
		case f.fn.IsTied(i):
			p.Status = Tied
		default:
			p.Status = Active
			res.ActiveNames = append(res.ActiveNames, p.Name)
		}
		res.Parameters[i] = p
	}
}

// fail records a run stopped by err and returns err.
func (f *Fit) fail(span trace.Span, minimizerName string, err error, iterations int, start time.Time) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		f.opts.Metrics.ObserveRun(minimizerName, OutcomeCanceled, iterations, time.Since(start))
		f.log.Warn("Fit canceled", err, log.MinimizerKey, minimizerName, log.IterationKey, iterations)
		return err
	}
	f.opts.Metrics.ObserveRun(minimizerName, OutcomeError, iterations, time.Since(start))
	f.log.Error("Fit failed", err,
		log.MinimizerKey, minimizerName,
		log.IterationKey, iterations,
		log.ErrorTypeKey, fmt.Sprintf("%T", err),
	)
	return err
}

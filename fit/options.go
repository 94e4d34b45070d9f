package fit

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/YuminosukeSato/scifit/cost"
	"github.com/YuminosukeSato/scifit/minimizer"
	"github.com/YuminosukeSato/scifit/pkg/errors"
	"github.com/YuminosukeSato/scifit/pkg/log"
)

// DefaultMaxIterations caps the number of minimizer iterations of a run.
const DefaultMaxIterations = 500

const tracerName = "github.com/YuminosukeSato/scifit/fit"

// Options configures a Fit.
type Options struct {
	// Minimizer is a name registered in Minimizers.
	Minimizer        string
	MinimizerOptions []minimizer.Option
	Minimizers       *minimizer.Factory

	// CostFunction is cost.LeastSquaresName or cost.RwpName.
	CostFunction   string
	IncludePenalty bool

	MaxIterations int
	// Epsrel is the relative rank tolerance of the covariance matrix.
	Epsrel float64
	// SatisfyConstraints moves parameters inside their bounds before the
	// first iteration.
	SatisfyConstraints bool

	Logger  log.Logger
	Metrics *Metrics
	Tracer  trace.Tracer
}

// Option configures a Fit.
type Option func(*Options)

// DefaultOptions returns the options used when none are given.
func DefaultOptions() *Options {
	return &Options{
		Minimizer:      minimizer.LevenbergMarquardtName,
		CostFunction:   cost.LeastSquaresName,
		IncludePenalty: true,
		MaxIterations:  DefaultMaxIterations,
		Epsrel:         cost.DefaultEpsrel,
		Logger:         log.Nop(),
		Tracer:         otel.Tracer(tracerName),
	}
}

// WithMinimizer selects the minimizer by name.
func WithMinimizer(name string) Option {
	return func(o *Options) {
		o.Minimizer = name
	}
}

// WithMinimizerOptions passes options to the minimizer constructor.
func WithMinimizerOptions(opts ...minimizer.Option) Option {
	return func(o *Options) {
		o.MinimizerOptions = append(o.MinimizerOptions, opts...)
	}
}

// WithMinimizerFactory replaces the registry minimizers are created from.
func WithMinimizerFactory(f *minimizer.Factory) Option {
	return func(o *Options) {
		o.Minimizers = f
	}
}

// WithCostFunction selects the cost function by name.
func WithCostFunction(name string) Option {
	return func(o *Options) {
		o.CostFunction = name
	}
}

// WithIncludePenalty adds constraint penalties to the cost. It is on by default.
func WithIncludePenalty(include bool) Option {
	return func(o *Options) {
		o.IncludePenalty = include
	}
}

func WithMaxIterations(n int) Option {
	return func(o *Options) {
		o.MaxIterations = n
	}
}

func WithEpsrel(epsrel float64) Option {
	return func(o *Options) {
		o.Epsrel = epsrel
	}
}

func WithSatisfyConstraints(satisfy bool) Option {
	return func(o *Options) {
		o.SatisfyConstraints = satisfy
	}
}

// WithLogger sets the logger of the fit. It is also handed to the cost
// function and, unless a minimizer option overrides it, to the minimizer.
func WithLogger(logger log.Logger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}

// WithMetrics records every run in m.
func WithMetrics(m *Metrics) Option {
	return func(o *Options) {
		o.Metrics = m
	}
}

// WithTracer replaces the tracer obtained from the global provider.
func WithTracer(t trace.Tracer) Option {
	return func(o *Options) {
		o.Tracer = t
	}
}

// Validate checks the options that do not depend on the fitting function.
func (o *Options) Validate() error {
	if o.MaxIterations <= 0 {
		return errors.NewValidationError("MaxIterations", "must be positive", o.MaxIterations)
	}
	if o.Epsrel < 0 {
		return errors.NewValidationError("Epsrel", "must not be negative", o.Epsrel)
	}
	if o.CostFunction != cost.LeastSquaresName && o.CostFunction != cost.RwpName {
		return errors.NewNotFoundError("cost function", o.CostFunction)
	}
	factory := o.Minimizers
	if factory == nil {
		factory = minimizer.NewFactory()
	}
	if !factory.Has(o.Minimizer) {
		return errors.NewNotFoundError("minimizer", o.Minimizer)
	}
	return nil
}

func buildOptions(opts []Option) (*Options, error) {
	o := DefaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	if o.Minimizers == nil {
		o.Minimizers = minimizer.NewFactory()
	}
	if o.Logger == nil {
		o.Logger = log.Nop()
	}
	if o.Tracer == nil {
		o.Tracer = otel.Tracer(tracerName)
	}
	if err := o.Validate(); err != nil {
		return nil, err
	}
	return o, nil
}

// newCost creates the configured cost function.
func (o *Options) newCost() costFunction {
	opts := []cost.Option{
		cost.WithIncludePenalty(o.IncludePenalty),
		cost.WithLogger(o.Logger),
	}
	if o.CostFunction == cost.RwpName {
		return cost.NewRwp(opts...)
	}
	return cost.NewLeastSquares(opts...)
}

// newMinimizer creates the configured minimizer. The fit logger comes first
// so that an explicit minimizer.WithLogger wins.
func (o *Options) newMinimizer() (minimizer.Minimizer, error) {
	opts := append([]minimizer.Option{minimizer.WithLogger(o.Logger)}, o.MinimizerOptions...)
	return o.Minimizers.Create(o.Minimizer, opts...)
}

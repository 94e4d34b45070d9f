package minimizer

import (
	"github.com/YuminosukeSato/scifit/pkg/errors"
	"github.com/YuminosukeSato/scifit/pkg/log"
)

// Default option values.
const (
	DefaultAbsError     = 1e-4
	DefaultRelError     = 1e-4
	DefaultStopGradient = 1e-3
	DefaultStepSize     = 0.1
	DefaultTolerance    = 1e-4
)

// Options holds the settings recognised by the minimizers. Each solver
// reads the subset that applies to it.
type Options struct {
	// AbsError and RelError are the test_delta thresholds of the
	// Levenberg-Marquardt solvers.
	AbsError float64
	RelError float64
	// StopGradient ends a derivative minimizer once the gradient norm
	// falls below it.
	StopGradient float64
	// StepSize scales the first trial step of a derivative minimizer.
	StepSize float64
	// Tolerance is the relative step tolerance of the line search.
	Tolerance float64

	Logger log.Logger
}

// Option configures Options.
type Option func(*Options)

// DefaultOptions returns the documented defaults with a no-op logger.
func DefaultOptions() Options {
	return Options{
		AbsError:     DefaultAbsError,
		RelError:     DefaultRelError,
		StopGradient: DefaultStopGradient,
		StepSize:     DefaultStepSize,
		Tolerance:    DefaultTolerance,
		Logger:       log.Nop(),
	}
}

// WithAbsError sets the absolute parameter-step threshold.
func WithAbsError(v float64) Option {
	return func(o *Options) {
		o.AbsError = v
	}
}

// WithRelError sets the relative parameter-step threshold.
func WithRelError(v float64) Option {
	return func(o *Options) {
		o.RelError = v
	}
}

// WithStopGradient sets the gradient norm at which derivative minimizers stop.
func WithStopGradient(v float64) Option {
	return func(o *Options) {
		o.StopGradient = v
	}
}

// WithStepSize sets the first trial step of derivative minimizers.
func WithStepSize(v float64) Option {
	return func(o *Options) {
		o.StepSize = v
	}
}

// WithTolerance sets the line-search step tolerance.
func WithTolerance(v float64) Option {
	return func(o *Options) {
		o.Tolerance = v
	}
}

// WithLogger sets the logger receiving per-iteration records.
func WithLogger(logger log.Logger) Option {
	return func(o *Options) {
		if logger != nil {
			o.Logger = logger
		}
	}
}

// Validate rejects non-positive thresholds.
func (o Options) Validate() error {
	checks := []struct {
		name  string
		value float64
	}{
		{"AbsError", o.AbsError},
		{"RelError", o.RelError},
		{"StopGradient", o.StopGradient},
		{"StepSize", o.StepSize},
		{"Tolerance", o.Tolerance},
	}
	for _, c := range checks {
		if !(c.value > 0) {
			return errors.NewValidationError(c.name, "must be positive", c.value)
		}
	}
	return nil
}

func buildOptions(opts []Option) (Options, error) {
	o := DefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if err := o.Validate(); err != nil {
		return Options{}, err
	}
	return o, nil
}

// minimizerLogger tags o.Logger with the minimizer name.
func (o Options) minimizerLogger(name string) log.Logger {
	return o.Logger.With(log.ComponentKey, log.ComponentMinimizer, log.MinimizerKey, name)
}

package fit

import (
	"bytes"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/YuminosukeSato/scifit/cost"
	"github.com/YuminosukeSato/scifit/domain"
	"github.com/YuminosukeSato/scifit/function"
	"github.com/YuminosukeSato/scifit/minimizer"
	"github.com/YuminosukeSato/scifit/pkg/errors"
	"github.com/YuminosukeSato/scifit/pkg/log"
)

// Config is the file form of a fit setup.
//
//	function: name=Gaussian,Height=2,PeakCentre=0,Sigma=1;name=FlatBackground
//	minimizer: Levenberg-MarquardtMD
//	cost_function: Least squares
//	max_iterations: 200
//	workers: 4
//	log_level: debug
type Config struct {
	// Function is a function definition as accepted by function.Factory.
	Function     string `yaml:"function"`
	Minimizer    string `yaml:"minimizer"`
	CostFunction string `yaml:"cost_function"`

	AbsError     float64 `yaml:"abs_error"`
	RelError     float64 `yaml:"rel_error"`
	StopGradient float64 `yaml:"stop_gradient"`
	StepSize     float64 `yaml:"step_size"`
	Tolerance    float64 `yaml:"tolerance"`

	MaxIterations      int     `yaml:"max_iterations"`
	Epsrel             float64 `yaml:"epsrel"`
	IncludePenalty     bool    `yaml:"include_penalty"`
	SatisfyConstraints bool    `yaml:"satisfy_constraints"`

	// Workers above 1 evaluates sub-domains in parallel.
	Workers  int    `yaml:"workers"`
	LogLevel string `yaml:"log_level"`
}

// DefaultConfig returns the configuration that matches DefaultOptions.
func DefaultConfig() *Config {
	m := minimizer.DefaultOptions()
	return &Config{
		Minimizer:      minimizer.LevenbergMarquardtName,
		CostFunction:   cost.LeastSquaresName,
		AbsError:       m.AbsError,
		RelError:       m.RelError,
		StopGradient:   m.StopGradient,
		StepSize:       m.StepSize,
		Tolerance:      m.Tolerance,
		MaxIterations:  DefaultMaxIterations,
		Epsrel:         cost.DefaultEpsrel,
		IncludePenalty: true,
		Workers:        1,
		LogLevel:       "info",
	}
}

// ParseConfig decodes YAML over DefaultConfig and validates the result.
// Unknown keys are rejected.
func ParseConfig(data []byte) (*Config, error) {
	return LoadConfig(bytes.NewReader(data))
}

// LoadConfig is ParseConfig reading from r.
func LoadConfig(r io.Reader) (*Config, error) {
	cfg := DefaultConfig()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, errors.Wrap(err, "decoding fit config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfigFile reads a YAML config file.
func LoadConfigFile(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening fit config %s", path)
	}
	defer file.Close()
	return LoadConfig(file)
}

func (c *Config) minimizerOptions() minimizer.Options {
	return minimizer.Options{
		AbsError:     c.AbsError,
		RelError:     c.RelError,
		StopGradient: c.StopGradient,
		StepSize:     c.StepSize,
		Tolerance:    c.Tolerance,
	}
}

// Validate rejects non-positive tolerances and iteration counts and
// unknown minimizer, cost function or log level names.
func (c *Config) Validate() error {
	if err := c.minimizerOptions().Validate(); err != nil {
		return err
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return errors.NewValidationError("log_level", err.Error(), c.LogLevel)
	}
	o := DefaultOptions()
	o.Minimizer = c.Minimizer
	o.CostFunction = c.CostFunction
	o.MaxIterations = c.MaxIterations
	o.Epsrel = c.Epsrel
	return o.Validate()
}

// Logger returns a zerolog logger writing to w at the configured level.
func (c *Config) Logger(w io.Writer) log.Logger {
	level, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		level = log.LevelInfo
	}
	return log.New(w, level)
}

// Options converts the configuration to fit options. Options given later
// to New override them.
func (c *Config) Options() []Option {
	m := c.minimizerOptions()
	return []Option{
		WithMinimizer(c.Minimizer),
		WithCostFunction(c.CostFunction),
		WithMaxIterations(c.MaxIterations),
		WithEpsrel(c.Epsrel),
		WithIncludePenalty(c.IncludePenalty),
		WithSatisfyConstraints(c.SatisfyConstraints),
		WithMinimizerOptions(
			minimizer.WithAbsError(m.AbsError),
			minimizer.WithRelError(m.RelError),
			minimizer.WithStopGradient(m.StopGradient),
			minimizer.WithStepSize(m.StepSize),
			minimizer.WithTolerance(m.Tolerance),
		),
	}
}

// NewFunction builds the configured function with factory.
func (c *Config) NewFunction(factory *function.Factory) (function.Function, error) {
	if c.Function == "" {
		return nil, errors.NewValidationError("function", "must not be empty", c.Function)
	}
	return factory.CreateInitialized(c.Function)
}

// NewFit builds the configured function and a fit over creators, parallel
// when Workers is above 1.
func (c *Config) NewFit(factory *function.Factory, creators []domain.Creator, opts ...Option) (*Fit, error) {
	fn, err := c.NewFunction(factory)
	if err != nil {
		return nil, err
	}
	opts = append(c.Options(), opts...)
	if c.Workers > 1 {
		return NewParallel(fn, c.Workers, creators, opts...)
	}
	return NewSequential(fn, creators, opts...)
}

package fit

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/scifit/cost"
	"github.com/YuminosukeSato/scifit/domain"
	"github.com/YuminosukeSato/scifit/function"
	"github.com/YuminosukeSato/scifit/minimizer"
	"github.com/YuminosukeSato/scifit/pkg/errors"
)

func TestParseConfig(t *testing.T) {
	cfg, err := ParseConfig([]byte(`
function: name=Gaussian,Height=1.8,PeakCentre=0.1,Sigma=1.2;name=FlatBackground,A0=0.4
minimizer: Levenberg-MarquardtMD
cost_function: Rwp
abs_error: 1.0e-6
max_iterations: 50
workers: 2
include_penalty: false
log_level: debug
`))
	require.NoError(t, err)

	assert.Equal(t, minimizer.LevenbergMarquardtMDName, cfg.Minimizer)
	assert.Equal(t, cost.RwpName, cfg.CostFunction)
	assert.Equal(t, 1e-6, cfg.AbsError)
	assert.Equal(t, 50, cfg.MaxIterations)
	assert.Equal(t, 2, cfg.Workers)
	assert.False(t, cfg.IncludePenalty)
	// keys left out keep their defaults
	assert.Equal(t, 1e-4, cfg.RelError)
	assert.Equal(t, 0.1, cfg.StepSize)
	assert.Equal(t, cost.DefaultEpsrel, cfg.Epsrel)

	o, err := buildOptions(cfg.Options())
	require.NoError(t, err)
	assert.Equal(t, minimizer.LevenbergMarquardtMDName, o.Minimizer)
	assert.Equal(t, cost.RwpName, o.CostFunction)
	assert.Equal(t, 50, o.MaxIterations)
	assert.False(t, o.IncludePenalty)
	assert.Len(t, o.MinimizerOptions, 5)
}

func TestParseConfigEmpty(t *testing.T) {
	cfg, err := ParseConfig(nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestParseConfigErrors(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		checkFn func(error) bool
	}{
		{"unknown key", "minimiser: BFGS", func(err error) bool { return err != nil }},
		{"malformed", "max_iterations: [1", func(err error) bool { return err != nil }},
		{"zero tolerance", "tolerance: 0", errors.IsInvalidArgument},
		{"negative step size", "step_size: -1", errors.IsInvalidArgument},
		{"zero iterations", "max_iterations: 0", errors.IsInvalidArgument},
		{"unknown minimizer", "minimizer: Simplex", errors.IsNotFound},
		{"unknown cost function", "cost_function: Chebyshev", errors.IsNotFound},
		{"bad log level", "log_level: loud", errors.IsInvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseConfig([]byte(tt.yaml))
			require.Error(t, err)
			assert.True(t, tt.checkFn(err), err.Error())
		})
	}
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fit.yaml")
	require.NoError(t, os.WriteFile(path, []byte("minimizer: BFGS\nstop_gradient: 1.0e-5\n"), 0o600))

	cfg, err := LoadConfigFile(path)
	require.NoError(t, err)
	assert.Equal(t, minimizer.BFGSName, cfg.Minimizer)
	assert.Equal(t, 1e-5, cfg.StopGradient)

	_, err = LoadConfigFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestConfigNewFit(t *testing.T) {
	x, y := peakData(t)
	creators := []domain.Creator{
		&domain.ArrayCreator{X: x[:60], Y: y[:60]},
		&domain.ArrayCreator{X: x[60:], Y: y[60:]},
	}

	for _, workers := range []int{1, 3} {
		cfg, err := LoadConfig(strings.NewReader(
			"function: " + peakStart + "\nminimizer: Levenberg-MarquardtMD\n"))
		require.NoError(t, err)
		cfg.Workers = workers

		f, err := cfg.NewFit(function.NewFactory(), creators)
		require.NoError(t, err)
		if workers > 1 {
			assert.Equal(t, "par", f.cf.DomainKind())
		} else {
			assert.Equal(t, "seq", f.cf.DomainKind())
		}

		res, err := f.Run(context.Background())
		require.NoError(t, err)
		assert.True(t, res.Converged, res.Status)
		h, err := res.Parameter("f0.Height")
		require.NoError(t, err)
		assert.InDelta(t, 2, h.Value, 0.01)
	}

	cfg := DefaultConfig()
	_, err := cfg.NewFit(function.NewFactory(), creators)
	assert.True(t, errors.IsInvalidArgument(err))

	cfg.Function = "name=NoSuchPeak"
	_, err = cfg.NewFit(function.NewFactory(), creators)
	assert.True(t, errors.IsNotFound(err))
}

func TestConfigLogger(t *testing.T) {
	var b strings.Builder
	cfg := DefaultConfig()
	cfg.LogLevel = "warn"
	logger := cfg.Logger(&b)
	logger.Info("hidden")
	logger.Warn("shown")
	assert.NotContains(t, b.String(), "hidden")
	assert.Contains(t, b.String(), "shown")
}

package fit

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"
	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/scifit/cost"
	"github.com/YuminosukeSato/scifit/domain"
	"github.com/YuminosukeSato/scifit/function"
	"github.com/YuminosukeSato/scifit/minimizer"
	"github.com/YuminosukeSato/scifit/pkg/errors"
	"github.com/YuminosukeSato/scifit/pkg/log"
)

const (
	peakTruth = "name=Gaussian,Height=2,PeakCentre=0,Sigma=1;name=FlatBackground,A0=0.5"
	peakStart = "name=Gaussian,Height=1.8,PeakCentre=0.1,Sigma=1.2;name=FlatBackground,A0=0.4"
)

func mustCreate(t *testing.T, definition string) function.Function {
	t.Helper()
	fn, err := function.NewFactory().CreateInitialized(definition)
	require.NoError(t, err)
	return fn
}

// peakData samples peakTruth on [-5, 5] with a small deterministic ripple.
func peakData(t *testing.T) (x, y []float64) {
	t.Helper()
	d, err := domain.NewDomain1DRange(-5, 5, 101)
	require.NoError(t, err)
	v := domain.NewFunctionValues(d)
	require.NoError(t, mustCreate(t, peakTruth).Function(d, v))
	x = append([]float64(nil), d.X()...)
	y = append([]float64(nil), v.CalculatedSlice()...)
	for i := range y {
		y[i] += 0.01 * math.Sin(17*x[i])
	}
	return x, y
}

func newPeakFit(t *testing.T, fn function.Function, opts ...Option) *Fit {
	t.Helper()
	x, y := peakData(t)
	d, err := domain.NewDomain1D(x)
	require.NoError(t, err)
	v := domain.NewFunctionValues(d)
	require.NoError(t, v.SetFitDataSlice(y))
	f, err := New(fn, d, v, opts...)
	require.NoError(t, err)
	return f
}

func TestRunConverges(t *testing.T) {
	for _, name := range []string{
		minimizer.LevenbergMarquardtName,
		minimizer.LevenbergMarquardtMDName,
		minimizer.MadsenName,
		minimizer.BFGSName,
	} {
		t.Run(name, func(t *testing.T) {
			fn := mustCreate(t, peakStart)
			f := newPeakFit(t, fn, WithMinimizer(name))

			res, err := f.Run(context.Background())
			require.NoError(t, err)

			assert.True(t, res.Converged, res.Status)
			assert.Equal(t, StatusSuccess, res.Status)
			assert.Empty(t, res.Warnings)
			assert.Equal(t, name, res.Minimizer)
			assert.Equal(t, cost.LeastSquaresName, res.CostFunction)
			assert.Positive(t, res.Iterations)

			want := map[string]float64{"f0.Height": 2, "f0.PeakCentre": 0, "f0.Sigma": 1, "f1.A0": 0.5}
			for pname, value := range want {
				p, err := res.Parameter(pname)
				require.NoError(t, err)
				assert.InDelta(t, value, p.Value, 0.01, pname)
				assert.Positive(t, p.Error, pname)
				assert.Less(t, p.Error, 0.01, pname)
				assert.Equal(t, Active, p.Status)
			}
			assert.Equal(t, []string{"f0.Height", "f0.PeakCentre", "f0.Sigma", "f1.A0"}, res.ActiveNames)
			assert.Equal(t, fn.Parameter(0), res.Values()[0])

			require.NotNil(t, res.Goodness)
			assert.Equal(t, 97, res.Goodness.DOF)
			assert.InDelta(t, res.Chi2/97, res.ReducedChi2, 1e-12)
			assert.Greater(t, res.R2, 0.999)
			assert.True(t, res.Probability > 0 && res.Probability <= 1)
			assert.Contains(t, res.Function, "name=Gaussian")

			corr := res.Correlation()
			require.NotNil(t, corr)
			for i := 0; i < 4; i++ {
				assert.InDelta(t, 1, corr.At(i, i), 1e-12)
			}

			stored, err := f.Result()
			require.NoError(t, err)
			assert.Same(t, res, stored)
			assert.Equal(t, Finished, f.Progress().Phase)
			assert.Equal(t, res.Iterations, f.Progress().Iteration)
		})
	}
}

func TestRunErrorsMatchOrdinaryLeastSquares(t *testing.T) {
	x := []float64{0, 1, 2, 3, 4, 5, 6, 7}
	y := []float64{1.1, 2.9, 5.2, 6.8, 9.1, 11.2, 12.8, 15.1}
	d, err := domain.NewDomain1D(x)
	require.NoError(t, err)
	v := domain.NewFunctionValues(d)
	require.NoError(t, v.SetFitDataSlice(y))

	n := float64(len(x))
	intercept, slope := stat.LinearRegression(x, y, nil, false)
	mx, vx := stat.MeanVariance(x, nil)
	sxx := vx * (n - 1)
	var rss float64
	for i := range x {
		r := y[i] - intercept - slope*x[i]
		rss += r * r
	}
	s2 := rss / (n - 2)

	// the default step test stops within 1e-4 of the optimum
	f, err := New(function.NewLinearBackground(), d, v,
		WithMinimizerOptions(minimizer.WithAbsError(1e-6), minimizer.WithRelError(1e-6)))
	require.NoError(t, err)
	res, err := f.Run(context.Background())
	require.NoError(t, err)

	require.True(t, res.Converged, res.Status)
	assert.InDelta(t, intercept, res.Parameters[0].Value, 1e-6)
	assert.InDelta(t, slope, res.Parameters[1].Value, 1e-6)
	assert.InEpsilon(t, math.Sqrt(s2*(1/n+mx*mx/sxx)), res.Parameters[0].Error, 0.01)
	assert.InEpsilon(t, math.Sqrt(s2/sxx), res.Parameters[1].Error, 0.01)
	assert.InEpsilon(t, rss, res.Chi2, 1e-6)
	assert.InEpsilon(t, s2, res.ReducedChi2, 1e-6)
}

func TestRunReportsFixedAndTiedParameters(t *testing.T) {
	d, err := domain.NewDomain1DRange(-4, 4, 161)
	require.NoError(t, err)
	v := domain.NewFunctionValues(d)
	truth := mustCreate(t, "name=Gaussian,Height=3,PeakCentre=-1,Sigma=0.5;name=Gaussian,Height=2,PeakCentre=1.5,Sigma=0.5")
	require.NoError(t, truth.Function(d, v))
	require.NoError(t, v.SetFitDataFromCalculated(v))
	for i := 0; i < d.Size(); i++ {
		v.SetFitData(i, v.FitData(i)+0.005*math.Cos(11*d.At(i)))
	}

	fn := mustCreate(t, "name=Gaussian,Height=2.8,PeakCentre=-1,Sigma=0.55;name=Gaussian,Height=2.1,PeakCentre=1.4,Sigma=0.6")
	_, err = fn.Tie("f1.Sigma", "f0.Sigma")
	require.NoError(t, err)
	require.NoError(t, function.FixParameter(fn, "f0.PeakCentre"))

	f, err := New(fn, d, v)
	require.NoError(t, err)
	res, err := f.Run(context.Background())
	require.NoError(t, err)
	require.True(t, res.Converged, res.Status)

	centre, err := res.Parameter("f0.PeakCentre")
	require.NoError(t, err)
	assert.Equal(t, Fixed, centre.Status)
	assert.Equal(t, -1.0, centre.Value)
	assert.Zero(t, centre.Error)

	sigma0, err := res.Parameter("f0.Sigma")
	require.NoError(t, err)
	sigma1, err := res.Parameter("f1.Sigma")
	require.NoError(t, err)
	assert.Equal(t, Tied, sigma1.Status)
	assert.Equal(t, sigma0.Value, sigma1.Value)
	assert.InEpsilon(t, sigma0.Error, sigma1.Error, 1e-9)
	assert.Positive(t, sigma1.Error)

	assert.Len(t, res.ActiveNames, 4)
	assert.NotContains(t, res.ActiveNames, "f1.Sigma")
	assert.Equal(t, 4, res.Covariance.SymmetricDim())

	_, err = res.Parameter("f2.Height")
	assert.True(t, errors.IsNotFound(err))
}

func TestRunStopsAtMaxIterations(t *testing.T) {
	f := newPeakFit(t, mustCreate(t, peakStart), WithMaxIterations(1))
	res, err := f.Run(context.Background())
	require.NoError(t, err)

	assert.False(t, res.Converged)
	assert.Equal(t, 1, res.Iterations)
	assert.Equal(t, "Failed to converge after 1 iterations.", res.Status)
	require.Len(t, res.Warnings, 1)
	var warning *errors.ConvergenceWarning
	require.True(t, errors.As(res.Warnings[0], &warning))
	assert.Equal(t, minimizer.LevenbergMarquardtName, warning.Algorithm)
	assert.Equal(t, 1, warning.Iterations)
	// errors are still estimated at the last point
	assert.NotNil(t, res.Covariance)
}

func TestRunCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	fn := mustCreate(t, peakStart)
	start := make([]float64, fn.NParams())
	for i := range start {
		start[i] = fn.Parameter(i)
	}

	f := newPeakFit(t, fn)
	res, err := f.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, res)
	assert.False(t, res.Converged)
	assert.Equal(t, 0, res.Iterations)
	assert.Equal(t, start, res.Values())
	assert.Equal(t, err.Error(), res.Status)

	stored, err := f.Result()
	require.NoError(t, err)
	assert.Same(t, res, stored)
}

func TestRunInitializationErrors(t *testing.T) {
	fn := function.NewLinearBackground()
	fn.Fix(0)
	fn.Fix(1)
	f := newPeakFit(t, fn)

	_, err := f.Result()
	assert.True(t, errors.IsRuntime(err))
	assert.Equal(t, Idle, f.Progress().Phase)

	res, err := f.Run(context.Background())
	assert.Nil(t, res)
	assert.True(t, errors.IsInvalidArgument(err))
	assert.Equal(t, Finished, f.Progress().Phase)
}

func TestRunWithoutDegreesOfFreedom(t *testing.T) {
	d, err := domain.NewDomain1D([]float64{0, 1})
	require.NoError(t, err)
	v := domain.NewFunctionValues(d)
	require.NoError(t, v.SetFitDataSlice([]float64{1, 3}))

	f, err := New(function.NewLinearBackground(), d, v)
	require.NoError(t, err)
	res, err := f.Run(context.Background())
	require.NoError(t, err)

	assert.InDelta(t, 1, res.Parameters[0].Value, 1e-6)
	assert.InDelta(t, 2, res.Parameters[1].Value, 1e-6)
	assert.Equal(t, 0, res.Goodness.DOF)
	assert.True(t, math.IsNaN(res.ReducedChi2))
	found := false
	for _, w := range res.Warnings {
		found = found || errors.IsInvalidArgument(w)
	}
	assert.True(t, found, "expected a degrees of freedom warning in %v", res.Warnings)
}

func TestSequentialAndParallelMatchSimple(t *testing.T) {
	x, y := peakData(t)
	creators := []domain.Creator{
		&domain.ArrayCreator{X: x[:50], Y: y[:50]},
		&domain.ArrayCreator{X: x[50:], Y: y[50:]},
	}
	opts := []Option{WithMinimizer(minimizer.LevenbergMarquardtMDName)}

	simple := mustCreate(t, peakStart)
	want, err := newPeakFit(t, simple, opts...).Run(context.Background())
	require.NoError(t, err)
	require.True(t, want.Converged, want.Status)

	build := map[string]func(fn function.Function) (*Fit, error){
		"seq": func(fn function.Function) (*Fit, error) { return NewSequential(fn, creators, opts...) },
		"par": func(fn function.Function) (*Fit, error) { return NewParallel(fn, 2, creators, opts...) },
	}
	for kind, newFit := range build {
		t.Run(kind, func(t *testing.T) {
			f, err := newFit(mustCreate(t, peakStart))
			require.NoError(t, err)
			assert.Equal(t, kind, f.cf.DomainKind())

			res, err := f.Run(context.Background())
			require.NoError(t, err)
			require.True(t, res.Converged, res.Status)
			for i, p := range res.Parameters {
				assert.InDelta(t, want.Parameters[i].Value, p.Value, 1e-6, p.Name)
				assert.InEpsilon(t, want.Parameters[i].Error, p.Error, 1e-4, p.Name)
			}
			assert.InEpsilon(t, want.Chi2, res.Chi2, 1e-8)
			assert.InDelta(t, want.R2, res.R2, 1e-10)
		})
	}

	_, err = NewSequential(simple, nil)
	assert.True(t, errors.IsInvalidArgument(err))
	_, err = NewParallel(simple, 2, nil)
	assert.True(t, errors.IsInvalidArgument(err))
}

func TestRunWithRwp(t *testing.T) {
	fn := mustCreate(t, peakStart)
	f := newPeakFit(t, fn, WithCostFunction(cost.RwpName))
	res, err := f.Run(context.Background())
	require.NoError(t, err)

	require.True(t, res.Converged, res.Status)
	assert.Equal(t, cost.RwpName, res.CostFunction)
	h, err := res.Parameter("f0.Height")
	require.NoError(t, err)
	assert.InDelta(t, 2, h.Value, 0.01)
	// Rwp is normalised by the weighted data, chi-square is not
	assert.Less(t, res.CostValue, res.Chi2)
}

func TestRunSatisfiesConstraints(t *testing.T) {
	fn := mustCreate(t, "name=Gaussian,Height=1.8,PeakCentre=0.1,Sigma=5;name=FlatBackground,A0=0.4")
	require.NoError(t, function.AddConstraints(fn, "0.5<f0.Sigma<2"))

	logger, _ := log.NewTestLogger(log.LevelInfo)
	f := newPeakFit(t, fn, WithSatisfyConstraints(true), WithLogger(logger))
	res, err := f.Run(context.Background())
	require.NoError(t, err)

	require.True(t, res.Converged, res.Status)
	sigma, err := res.Parameter("f0.Sigma")
	require.NoError(t, err)
	assert.InDelta(t, 1, sigma.Value, 0.01)
	assert.True(t, logger.ContainsMessage("Fit started"))
	assert.True(t, logger.ContainsMessage("Fit finished"))
	assert.True(t, logger.ContainsField(log.StatusKey, StatusSuccess))
	assert.True(t, logger.ContainsField(log.ComponentKey, log.ComponentFit))
}

func TestRunLogsNonConvergence(t *testing.T) {
	logger, _ := log.NewTestLogger(log.LevelWarn)
	f := newPeakFit(t, mustCreate(t, peakStart), WithMaxIterations(1), WithLogger(logger))
	_, err := f.Run(context.Background())
	require.NoError(t, err)

	assert.True(t, logger.ContainsMessage("Fit did not converge"))
	assert.False(t, logger.ContainsMessage("Fit finished"))
}

func TestRunWithTracer(t *testing.T) {
	tracer := noop.NewTracerProvider().Tracer("test")
	f := newPeakFit(t, mustCreate(t, peakStart), WithTracer(tracer))
	res, err := f.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Converged)
}

func TestRunAgainStartsFromFittedValues(t *testing.T) {
	f := newPeakFit(t, mustCreate(t, peakStart))
	first, err := f.Run(context.Background())
	require.NoError(t, err)
	second, err := f.Run(context.Background())
	require.NoError(t, err)

	assert.True(t, second.Converged)
	assert.LessOrEqual(t, second.Iterations, first.Iterations)
	for i := range first.Parameters {
		assert.InDelta(t, first.Parameters[i].Value, second.Parameters[i].Value, 1e-4)
	}
}

func TestNewOptionErrors(t *testing.T) {
	tests := []struct {
		name    string
		opt     Option
		checkFn func(error) bool
	}{
		{"unknown minimizer", WithMinimizer("Simplex"), errors.IsNotFound},
		{"unknown cost function", WithCostFunction("Poisson"), errors.IsNotFound},
		{"zero iterations", WithMaxIterations(0), errors.IsInvalidArgument},
		{"negative epsrel", WithEpsrel(-1), errors.IsInvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := domain.NewDomain1DRange(0, 1, 5)
			require.NoError(t, err)
			_, err = New(function.NewFlatBackground(), d, domain.NewFunctionValues(d), tt.opt)
			require.Error(t, err)
			assert.True(t, tt.checkFn(err), err.Error())
		})
	}

	t.Run("minimizer options are validated on run", func(t *testing.T) {
		f := newPeakFit(t, mustCreate(t, peakStart),
			WithMinimizerOptions(minimizer.WithAbsError(-1)))
		_, err := f.Run(context.Background())
		assert.True(t, errors.IsInvalidArgument(err))
	})

	t.Run("custom minimizer factory", func(t *testing.T) {
		factory := minimizer.NewFactory()
		factory.Register("Default", func(opts ...minimizer.Option) (minimizer.Minimizer, error) {
			return minimizer.NewLevenbergMarquardt(opts...)
		})
		f := newPeakFit(t, mustCreate(t, peakStart), WithMinimizerFactory(factory), WithMinimizer("Default"))
		res, err := f.Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, minimizer.LevenbergMarquardtName, res.Minimizer)
	})
}

func TestStateManager(t *testing.T) {
	var s stateManager
	assert.Equal(t, Idle, s.snapshot().Phase)
	require.NoError(t, s.begin())
	assert.True(t, errors.IsRuntime(s.begin()))

	s.update(3, 0.25)
	assert.Equal(t, Progress{Phase: Running, Iteration: 3, Cost: 0.25}, s.snapshot())

	res := &Result{Status: StatusSuccess}
	s.finish(res)
	got, err := s.requireResult()
	require.NoError(t, err)
	assert.Same(t, res, got)
	assert.Equal(t, "finished", s.snapshot().Phase.String())

	require.NoError(t, s.begin())
	_, err = s.requireResult()
	assert.True(t, errors.IsRuntime(err))
}

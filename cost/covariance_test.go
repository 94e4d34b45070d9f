package cost

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/scifit/domain"
	"github.com/YuminosukeSato/scifit/function"
	"github.com/YuminosukeSato/scifit/pkg/errors"
)

func lineData(t *testing.T) (*domain.Domain1D, *domain.FunctionValues) {
	t.Helper()
	x := []float64{0, 1, 2, 3, 4, 5, 6, 7}
	y := []float64{1.1, 2.9, 5.2, 6.8, 9.1, 11.2, 12.8, 15.1}
	d, err := domain.NewDomain1D(x)
	require.NoError(t, err)
	v := domain.NewFunctionValues(d)
	require.NoError(t, v.SetFitDataSlice(y))
	return d, v
}

func TestCovarianceMatchesOrdinaryLeastSquares(t *testing.T) {
	d, v := lineData(t)
	x, y := d.X(), v.FitDataSlice()
	n := float64(len(x))

	// closed-form straight-line fit
	var mx, my float64
	for i := range x {
		mx += x[i] / n
		my += y[i] / n
	}
	var sxx, sxy float64
	for i := range x {
		sxx += (x[i] - mx) * (x[i] - mx)
		sxy += (x[i] - mx) * (y[i] - my)
	}
	slope := sxy / sxx
	intercept := my - slope*mx
	var rss float64
	for i := range x {
		r := y[i] - intercept - slope*x[i]
		rss += r * r
	}
	s2 := rss / (n - 2)
	seSlope := math.Sqrt(s2 / sxx)
	seIntercept := math.Sqrt(s2 * (1/n + mx*mx/sxx))

	line := function.NewLinearBackground()
	line.SetParameter(0, intercept)
	line.SetParameter(1, slope)
	c := NewLeastSquares()
	require.NoError(t, c.SetFittingFunction(line, d, v))

	covar, err := c.CalCovarianceMatrix(DefaultEpsrel)
	require.NoError(t, err)
	assert.Equal(t, covar.At(0, 1), covar.At(1, 0))
	assert.Greater(t, covar.At(0, 0), 0.0)
	assert.Greater(t, mat.Det(covar), 0.0)

	chi2, err := c.UnpenalizedVal()
	require.NoError(t, err)
	assert.InDelta(t, rss, chi2, 1e-9)
	require.NoError(t, c.CalFittingErrors(covar, chi2/(n-2)))

	assert.InEpsilon(t, seIntercept, line.ParameterError(0), 0.01)
	assert.InEpsilon(t, seSlope, line.ParameterError(1), 0.01)
}

func TestCovarianceDropsDependentParameters(t *testing.T) {
	d, v := lineData(t)
	fn := function.NewCompositeFunction(function.NewFlatBackground(), function.NewFlatBackground())
	c := NewLeastSquares()
	require.NoError(t, c.SetFittingFunction(fn, d, v))

	covar, err := c.CalCovarianceMatrix(DefaultEpsrel)
	require.NoError(t, err)
	assert.InDelta(t, 1.0/8, covar.At(0, 0), 1e-12)
	assert.Zero(t, covar.At(1, 1))
	assert.Zero(t, covar.At(0, 1))
}

func TestCovarianceEpsrel(t *testing.T) {
	// nearly collinear columns
	a := mat.NewSymDense(2, []float64{
		1, 1 - 1e-10,
		1 - 1e-10, 1,
	})
	loose, err := Covariance(a, 1e-3)
	require.NoError(t, err)
	assert.Zero(t, loose.At(1, 1))

	tight, err := Covariance(a, 1e-8)
	require.NoError(t, err)
	assert.Greater(t, tight.At(1, 1), 1e8)

	_, err = Covariance(a, -1)
	assert.True(t, errors.IsInvalidArgument(err))
}

func TestFittingErrorsPropagateThroughTies(t *testing.T) {
	d, v := lineData(t)
	fn := function.NewCompositeFunction(function.NewFlatBackground(), function.NewLinearBackground())
	_, err := fn.Tie("f1.A0", "2*f0.A0")
	require.NoError(t, err)
	fn.Fix(2)
	fn.SetParameterError(2, 99)

	c := NewLeastSquares()
	require.NoError(t, c.SetFittingFunction(fn, d, v))
	require.Equal(t, 1, c.NParams())

	covar, err := c.CalCovarianceMatrix(DefaultEpsrel)
	require.NoError(t, err)
	// model is 3*A0, so J^T J = 9n
	assert.InDelta(t, 1.0/72, covar.At(0, 0), 1e-9)

	require.NoError(t, c.CalFittingErrors(covar, 4))
	e0 := fn.ParameterError(0)
	assert.InDelta(t, math.Sqrt(4.0/72), e0, 1e-9)
	assert.InDelta(t, 2*e0, fn.ParameterError(1), 1e-6)
	assert.Zero(t, fn.ParameterError(2))

	var dimErr *errors.DimensionError
	assert.True(t, errors.As(c.CalFittingErrors(mat.NewSymDense(2, nil), 1), &dimErr))
}

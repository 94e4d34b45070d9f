package cost

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/scifit/domain"
	"github.com/YuminosukeSato/scifit/function"
	"github.com/YuminosukeSato/scifit/pkg/errors"
)

// splitCreators cuts d/v into creators of the given sizes.
func splitCreators(t *testing.T, d *domain.Domain1D, v *domain.FunctionValues, sizes ...int) []domain.Creator {
	t.Helper()
	var out []domain.Creator
	start := 0
	for _, n := range sizes {
		out = append(out, &domain.ArrayCreator{
			X: append([]float64(nil), d.X()[start:start+n]...),
			Y: append([]float64(nil), v.FitDataSlice()[start:start+n]...),
			E: func() []float64 {
				e := make([]float64, n)
				for i := range e {
					e[i] = 1 / math.Sqrt(v.FitWeight(start+i))
				}
				return e
			}(),
		})
		start += n
	}
	require.Equal(t, d.Size(), start)
	return out
}

type evaluation struct {
	val  float64
	grad []float64
	hess []float64
}

func evaluate(t *testing.T, c *LeastSquares) evaluation {
	t.Helper()
	val, err := c.ValDerivHessian(true, true)
	require.NoError(t, err)
	return evaluation{
		val:  val,
		grad: append([]float64(nil), c.Gradient()...),
		hess: append([]float64(nil), c.Hessian().RawSymmetric().Data...),
	}
}

func assertSameEvaluation(t *testing.T, want, got evaluation) {
	t.Helper()
	assert.InDelta(t, want.val, got.val, 1e-9*math.Abs(want.val))
	require.Len(t, got.grad, len(want.grad))
	for k := range want.grad {
		assert.InDelta(t, want.grad[k], got.grad[k], 1e-8*math.Max(1, math.Abs(want.grad[k])))
	}
	for k := range want.hess {
		assert.InDelta(t, want.hess[k], got.hess[k], 1e-8*math.Max(1, math.Abs(want.hess[k])))
	}
}

func TestSubDomainsMatchSingleDomain(t *testing.T) {
	d, v := peakData(t, -2, 4, 60)

	models := map[string]func() function.Function{
		"analytic": func() function.Function { return peakModel() },
		"numeric": func() function.Function {
			pv := function.NewPseudoVoigt()
			pv.SetParameter(1, 2)
			pv.SetParameter(2, 0.9)
			return function.NewCompositeFunction(pv, function.NewFlatBackground())
		},
	}
	costs := map[string]func() *LeastSquares{
		"least squares": func() *LeastSquares { return NewLeastSquares() },
		"rwp":           func() *LeastSquares { return &NewRwp().LeastSquares },
	}

	for mname, model := range models {
		for cname, newCost := range costs {
			t.Run(mname+"/"+cname, func(t *testing.T) {
				whole := newCost()
				require.NoError(t, whole.SetFittingFunction(model(), d, v))
				want := evaluate(t, whole)

				seq := newCost()
				require.NoError(t, seq.SetFittingFunction(model(), NewSeqDomain(splitCreators(t, d, v, 25, 5, 30)...), nil))
				assert.Equal(t, 60, seq.NData())
				assertSameEvaluation(t, want, evaluate(t, seq))

				par := newCost()
				require.NoError(t, par.SetFittingFunction(model(), NewParDomain(3, splitCreators(t, d, v, 10, 20, 10, 20)...), nil))
				assert.Equal(t, "par", par.DomainKind())
				assertSameEvaluation(t, want, evaluate(t, par))
			})
		}
	}
}

func TestSeqDomainAccessors(t *testing.T) {
	d, v := peakData(t, 0, 1, 10)
	s := NewSeqDomain(splitCreators(t, d, v, 4, 6)...)
	assert.Equal(t, 2, s.NDomains())
	assert.Equal(t, 10, s.Size())

	d0, v0, err := s.DomainAndValues(0)
	require.NoError(t, err)
	assert.Equal(t, 4, d0.Size())
	again, vAgain, err := s.DomainAndValues(0)
	require.NoError(t, err)
	assert.Same(t, d0, again)
	assert.Same(t, v0, vAgain)

	d1, _, err := s.DomainAndValues(1)
	require.NoError(t, err)
	assert.Equal(t, 6, d1.Size())

	_, _, err = s.DomainAndValues(2)
	assert.True(t, errors.IsRange(err))
	_, _, err = NewParDomain(0).DomainAndValues(0)
	assert.True(t, errors.IsRange(err))
}

func TestUndefinedFunctionValues(t *testing.T) {
	empty := domain.CreatorFunc{Size: 3, Create: func() (domain.FunctionDomain, *domain.FunctionValues, error) {
		d, err := domain.NewDomain1DRange(0, 1, 3)
		return d, nil, err
	}}

	tests := []struct {
		name    string
		cost    *LeastSquares
		source  domain.FunctionDomain
		message string
	}{
		{"least squares seq", NewLeastSquares(), NewSeqDomain(empty), "LeastSquares: undefined FunctionValues."},
		{"rwp seq", &NewRwp().LeastSquares, NewSeqDomain(empty), "Rwp: undefined FunctionValues."},
		{"least squares par", NewLeastSquares(), NewParDomain(2, empty, empty), "LeastSquares: undefined FunctionValues."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, tt.cost.SetFittingFunction(function.NewFlatBackground(), tt.source, nil))
			_, err := tt.cost.Val()
			require.Error(t, err)
			assert.True(t, errors.IsRuntime(err))
			assert.Equal(t, tt.message, err.Error())
		})
	}
}

func TestCreatorFailureIsRuntimeError(t *testing.T) {
	failing := domain.CreatorFunc{Size: 1, Create: func() (domain.FunctionDomain, *domain.FunctionValues, error) {
		return nil, nil, errors.ErrEmptyData
	}}
	c := NewLeastSquares()
	require.NoError(t, c.SetFittingFunction(function.NewFlatBackground(), NewSeqDomain(failing), nil))
	_, err := c.Val()
	assert.True(t, errors.IsRuntime(err))
	assert.True(t, errors.Is(err, errors.ErrEmptyData))
}

func TestDomainMethodsRequireBinding(t *testing.T) {
	d, v := peakData(t, 0, 1, 10)
	s := NewSeqDomain(splitCreators(t, d, v, 10)...)
	p := NewParDomain(2, splitCreators(t, d, v, 10)...)

	c := NewLeastSquares()
	_, err := s.LeastSquaresVal(c)
	assert.True(t, errors.IsInvalidArgument(err))

	require.NoError(t, c.SetFittingFunction(peakModel(), s, nil))
	val, err := s.LeastSquaresVal(c)
	require.NoError(t, err)
	assert.Greater(t, val, 0.0)
	_, err = p.LeastSquaresVal(c)
	assert.True(t, errors.IsInvalidArgument(err))

	r := NewRwp()
	require.NoError(t, r.SetFittingFunction(peakModel(), p, nil))
	rwp, err := p.RwpVal(r)
	require.NoError(t, err)
	assert.Greater(t, rwp, 0.0)
	assert.Less(t, rwp, 1.0)
}

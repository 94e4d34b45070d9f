package function

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/scifit/domain"
)

func TestNumericalDerivMatchesAnalytic(t *testing.T) {
	d, err := domain.NewDomain1DRange(-2, 4, 25)
	require.NoError(t, err)

	exp := NewExpDecay()
	exp.SetParameter(0, 3)
	exp.SetParameter(1, 1.7)
	lor := NewLorentzian()
	lor.SetParameter(0, 2)
	lor.SetParameter(1, 0.4)
	lor.SetParameter(2, 1.2)
	lin := NewLinearBackground()
	lin.SetParameter(0, -1)
	lin.SetParameter(1, 0.25)

	tests := []struct {
		name string
		fn   Function
	}{
		{"Gaussian", newGaussianAt(2, 0.3, 0.8)},
		{"Lorentzian", lor},
		{"LinearBackground", lin},
		{"ExpDecay", exp},
		{"Composite", NewCompositeFunction(newGaussianAt(1, 1, 0.5), NewFlatBackground())},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			np := tt.fn.NParams()
			analytic := domain.NewJacobianMatrix(d.Size(), np)
			numeric := domain.NewJacobianMatrix(d.Size(), np)
			require.NoError(t, tt.fn.FunctionDeriv(d, analytic))
			require.NoError(t, NumericalDeriv(tt.fn, d, numeric))

			for i := 0; i < d.Size(); i++ {
				for k := 0; k < np; k++ {
					assert.InDelta(t, analytic.Get(i, k), numeric.Get(i, k), 1e-6,
						"x=%g param %s", d.At(i), tt.fn.ParameterName(k))
				}
			}
		})
	}
}

func TestNumericalDerivRestoresParameters(t *testing.T) {
	d, err := domain.NewDomain1DRange(-1, 1, 5)
	require.NoError(t, err)
	pv := NewPseudoVoigt()
	pv.SetParameter(3, 0.7)
	before := []float64{pv.Parameter(0), pv.Parameter(1), pv.Parameter(2), pv.Parameter(3)}

	j := domain.NewJacobianMatrix(d.Size(), pv.NParams())
	require.NoError(t, pv.FunctionDeriv(d, j))

	for i, want := range before {
		assert.Equal(t, want, pv.Parameter(i))
	}
	// the response is linear in Intensity
	v := domain.NewFunctionValues(d)
	require.NoError(t, pv.Function(d, v))
	for i := 0; i < d.Size(); i++ {
		assert.InDelta(t, v.Calculated(i), j.Get(i, 1), 1e-8)
	}
}

func TestNumericalDerivZeroesFixedColumns(t *testing.T) {
	d, err := domain.NewDomain1DRange(-1, 1, 4)
	require.NoError(t, err)
	pv := NewPseudoVoigt()
	pv.Fix(0)

	j := domain.NewJacobianMatrix(d.Size(), pv.NParams())
	for i := 0; i < d.Size(); i++ {
		j.Set(i, 0, 42)
	}
	require.NoError(t, NumericalDeriv(pv, d, j))
	for i := 0; i < d.Size(); i++ {
		assert.Zero(t, j.Get(i, 0))
	}
}

func TestTieJacobian(t *testing.T) {
	t.Run("no ties is a selection matrix", func(t *testing.T) {
		g := newGaussianAt(1, 0, 1)
		g.Fix(1)
		m, err := TieJacobian(g, ActiveIndices(g))
		require.NoError(t, err)
		r, c := m.Dims()
		assert.Equal(t, 3, r)
		assert.Equal(t, 2, c)
		assert.Equal(t, []float64{1, 0, 0, 0, 0, 1}, m.RawMatrix().Data)
	})

	t.Run("tied row follows the chain rule", func(t *testing.T) {
		g := newGaussianAt(1.5, 0.2, 1)
		_, err := g.Tie("Sigma", "2*Height + PeakCentre*PeakCentre")
		require.NoError(t, err)
		require.NoError(t, g.ApplyTies())

		m, err := TieJacobian(g, ActiveIndices(g))
		require.NoError(t, err)
		assert.InDelta(t, 2.0, m.At(2, 0), 1e-6)
		assert.InDelta(t, 0.4, m.At(2, 1), 1e-6)

		// parameters and ties are restored
		assert.Equal(t, 1.5, g.Parameter(0))
		assert.Equal(t, 0.2, g.Parameter(1))
		assert.InDelta(t, 3.04, g.Parameter(2), 1e-12)
	})

	t.Run("no active parameters", func(t *testing.T) {
		b := NewFlatBackground()
		b.Fix(0)
		m, err := TieJacobian(b, ActiveIndices(b))
		require.NoError(t, err)
		assert.Nil(t, m)
	})
}

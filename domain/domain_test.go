package domain

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/scifit/pkg/errors"
)

func TestNewDomain1D(t *testing.T) {
	x := []float64{1, 2, 3}
	d, err := NewDomain1D(x)
	require.NoError(t, err)
	assert.Equal(t, 3, d.Size())
	assert.False(t, d.IsView())

	x[0] = 100
	assert.Equal(t, 1.0, d.At(0), "owning domain must copy its input")

	view, err := NewDomain1DView(x)
	require.NoError(t, err)
	assert.True(t, view.IsView())
	assert.Equal(t, 100.0, view.At(0))

	_, err = NewDomain1D(nil)
	assert.True(t, errors.IsInvalidArgument(err))
}

func TestNewDomain1DRange(t *testing.T) {
	tests := []struct {
		name    string
		start   float64
		end     float64
		n       int
		wantErr bool
	}{
		{"regular", 0, 1, 11, false},
		{"single point", 5, 5, 1, false},
		{"zero points", 0, 1, 0, true},
		{"reversed", 1, 0, 3, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := NewDomain1DRange(tt.start, tt.end, tt.n)
			if tt.wantErr {
				assert.True(t, errors.IsInvalidArgument(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.n, d.Size())
			assert.Equal(t, tt.start, d.At(0))
			assert.Equal(t, tt.end, d.At(tt.n-1))
		})
	}
}

func TestJointDomain(t *testing.T) {
	a, _ := NewDomain1DRange(0, 1, 3)
	b, _ := NewDomain1DRange(0, 1, 5)

	jd, err := NewJointDomain(a, b)
	require.NoError(t, err)
	assert.Equal(t, 8, jd.Size())
	assert.Equal(t, 2, jd.NParts())
	assert.Equal(t, 0, jd.Offset(0))
	assert.Equal(t, 3, jd.Offset(1))
	assert.Same(t, b, jd.Part(1))

	var _ CompositeDomain = jd
}

func TestFunctionValues(t *testing.T) {
	v := NewFunctionValuesSize(3)
	assert.Equal(t, 1.0, v.FitWeight(2), "weights default to 1")

	v.SetCalculated(0, 1)
	v.AddToCalculated(0, 2)
	assert.Equal(t, 3.0, v.Calculated(0))

	ref := NewFunctionValuesSize(3)
	copy(ref.CalculatedSlice(), []float64{4, 5, 6})
	require.NoError(t, v.SetFitDataFromCalculated(ref))
	assert.Equal(t, []float64{4, 5, 6}, v.FitDataSlice())

	require.NoError(t, v.SetFitWeights(0.5))
	assert.Equal(t, []float64{0.5, 0.5, 0.5}, v.FitWeightsSlice())

	err := v.SetFitDataFromCalculated(NewFunctionValuesSize(2))
	var dimErr *errors.DimensionError
	assert.True(t, errors.As(err, &dimErr))

	assert.Error(t, v.SetFitWeightsSlice([]float64{1}))
	assert.Error(t, v.SetFitDataSlice([]float64{1, 2}))
}

func TestFunctionValuesRejectsInvalidWeights(t *testing.T) {
	tests := []struct {
		name string
		w    float64
	}{
		{"negative", -1},
		{"NaN", math.NaN()},
		{"infinite", math.Inf(1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewFunctionValuesSize(3)
			assert.True(t, errors.IsInvalidArgument(v.SetFitWeight(1, tt.w)))
			assert.True(t, errors.IsInvalidArgument(v.SetFitWeights(tt.w)))
			assert.True(t, errors.IsInvalidArgument(v.SetFitWeightsSlice([]float64{1, tt.w, 1})))
			assert.Equal(t, []float64{1, 1, 1}, v.FitWeightsSlice(), "weights must be left unchanged")
		})
	}

	v := NewFunctionValuesSize(2)
	require.NoError(t, v.SetFitWeight(0, 0))
	assert.Equal(t, []float64{0, 1}, v.FitWeightsSlice())
}

func TestFunctionValuesAddCalculatedAt(t *testing.T) {
	whole := NewFunctionValuesSize(5)
	part := NewFunctionValuesSize(2)
	copy(part.CalculatedSlice(), []float64{1, 2})

	require.NoError(t, whole.AddCalculatedAt(3, part))
	assert.Equal(t, []float64{0, 0, 0, 1, 2}, whole.CalculatedSlice())

	err := whole.AddCalculatedAt(4, part)
	assert.True(t, errors.IsRange(err))

	whole.ZeroCalculated()
	assert.Equal(t, []float64{0, 0, 0, 0, 0}, whole.CalculatedSlice())
}

func TestPartialJacobian(t *testing.T) {
	j := NewJacobianMatrix(4, 3)
	for i := 0; i < 4; i++ {
		for k := 0; k < 3; k++ {
			j.Set(i, k, 9)
		}
	}

	p := NewPartialJacobian(j, 2, 1, 2, 2)
	p.Set(0, 0, 1)
	assert.Equal(t, 1.0, j.Get(2, 1))
	assert.Equal(t, 1.0, p.Get(0, 0))

	p.Zero()
	assert.Equal(t, 0.0, j.Get(3, 2))
	assert.Equal(t, 9.0, j.Get(1, 1), "rows outside the block are untouched")
	assert.Equal(t, 9.0, j.Get(2, 0), "columns outside the block are untouched")
}

func TestArrayCreator(t *testing.T) {
	tests := []struct {
		name        string
		creator     ArrayCreator
		wantErr     bool
		wantWeights []float64
	}{
		{
			name:        "unit weights",
			creator:     ArrayCreator{X: []float64{1, 2}, Y: []float64{3, 4}},
			wantWeights: []float64{1, 1},
		},
		{
			name:        "errors become weights",
			creator:     ArrayCreator{X: []float64{1, 2}, Y: []float64{3, 4}, E: []float64{2, 0.5}},
			wantWeights: []float64{0.25, 4},
		},
		{
			name:    "invalid data rejected",
			creator: ArrayCreator{X: []float64{1, 2}, Y: []float64{math.NaN(), 4}},
			wantErr: true,
		},
		{
			name:        "invalid data ignored",
			creator:     ArrayCreator{X: []float64{1, 2}, Y: []float64{3, 4}, E: []float64{0, 1}, IgnoreInvalidData: true},
			wantWeights: []float64{0, 1},
		},
		{
			name:    "length mismatch",
			creator: ArrayCreator{X: []float64{1, 2}, Y: []float64{3}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, v, err := tt.creator.CreateDomain()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.creator.DomainSize(), d.Size())
			assert.InDeltaSlice(t, tt.wantWeights, v.FitWeightsSlice(), 1e-12)
		})
	}
}

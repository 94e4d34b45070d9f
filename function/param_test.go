package function

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/scifit/pkg/errors"
)

func TestParamFunctionParameters(t *testing.T) {
	g := NewGaussian()

	assert.Equal(t, 3, g.NParams())
	assert.Equal(t, "PeakCentre", g.ParameterName(1))
	assert.Equal(t, "Width parameter", g.ParameterDescription(2))

	require.NoError(t, SetParameterValue(g, "Height", 2.5))
	v, err := ParameterValue(g, "Height")
	require.NoError(t, err)
	assert.Equal(t, 2.5, v)

	err = SetParameterValue(g, "Amplitude", 1)
	assert.True(t, errors.IsNotFound(err))
	_, err = ParameterValue(g, "Amplitude")
	assert.True(t, errors.IsNotFound(err))

	g.SetParameterError(0, 0.1)
	assert.Equal(t, 0.1, g.ParameterError(0))
}

func TestDeclareParameterTwicePanics(t *testing.T) {
	var p ParamFunction
	p.DeclareParameter("A", 0, "")
	assert.Panics(t, func() { p.DeclareParameter("A", 1, "") })
}

func TestFixAndActive(t *testing.T) {
	g := NewGaussian()
	assert.Equal(t, []int{0, 1, 2}, ActiveIndices(g))

	require.NoError(t, FixParameter(g, "PeakCentre"))
	assert.True(t, g.IsFixed(1))
	assert.False(t, g.IsActive(1))
	assert.Equal(t, []int{0, 2}, ActiveIndices(g))
	assert.Equal(t, 2, NActive(g))

	_, err := g.Tie("Sigma", "2*Height")
	require.NoError(t, err)
	assert.False(t, g.IsActive(2))
	assert.Equal(t, 1, NActive(g))
	assert.True(t, HasTies(g))

	require.NoError(t, UnfixParameter(g, "PeakCentre"))
	assert.Equal(t, []int{0, 1}, ActiveIndices(g))

	assert.True(t, errors.IsNotFound(FixParameter(g, "Nope")))
}

package function

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/scifit/pkg/errors"
)

func TestParseBoundaryConstraint(t *testing.T) {
	tests := []struct {
		expression string
		hasLower   bool
		hasUpper   bool
		lower      float64
		upper      float64
	}{
		{"10<Sigma<20", true, true, 10, 20},
		{"10 <= Sigma <= 20", true, true, 10, 20},
		{"20>Sigma>10", true, true, 10, 20},
		{"Sigma<20", false, true, 0, 20},
		{"20>Sigma", false, true, 0, 20},
		{"10<Sigma", true, false, 10, 0},
		{"Sigma>=10", true, false, 10, 0},
		{"-5<PeakCentre<5", true, true, -5, 5},
	}

	for _, tt := range tests {
		t.Run(tt.expression, func(t *testing.T) {
			g := NewGaussian()
			c, err := ParseBoundaryConstraint(g, tt.expression)
			require.NoError(t, err)
			assert.Equal(t, tt.hasLower, c.HasLower())
			assert.Equal(t, tt.hasUpper, c.HasUpper())
			if tt.hasLower {
				assert.Equal(t, tt.lower, c.Lower())
			}
			if tt.hasUpper {
				assert.Equal(t, tt.upper, c.Upper())
			}
			assert.Equal(t, DefaultPenaltyFactor, c.PenaltyFactor())
		})
	}
}

func TestParseBoundaryConstraintErrors(t *testing.T) {
	for _, expression := range []string{
		"Sigma==20",
		"Sigma=20",
		"Foo<20",
		"10<Sigma>20",
		"Sigma",
		"a<Sigma<20",
		"20<Sigma<10",
		"<20",
		"",
	} {
		t.Run(expression, func(t *testing.T) {
			_, err := ParseBoundaryConstraint(NewGaussian(), expression)
			assert.True(t, errors.IsInvalidArgument(err), "got %v", err)
		})
	}
}

func TestBoundaryConstraintPenalty(t *testing.T) {
	g := NewGaussian()
	c, err := NewBoundaryConstraint(g, "Sigma", 10, 20)
	require.NoError(t, err)
	require.NoError(t, c.SetPenaltyFactor(2))

	inside := []float64{10, 12.5, 20}
	for _, v := range inside {
		g.SetParameter(2, v)
		assert.Zero(t, c.Check(), "value %v", v)
		assert.Zero(t, c.CheckDeriv(), "value %v", v)
		assert.Zero(t, c.CheckDeriv2(), "value %v", v)
	}

	prev := 0.0
	for _, d := range []float64{0.1, 0.5, 1, 3} {
		g.SetParameter(2, 20+d)
		p := c.Check()
		assert.InDelta(t, 2*d*d, p, 1e-12)
		assert.Greater(t, p, prev)
		assert.InDelta(t, 4*d, c.CheckDeriv(), 1e-12)
		assert.Equal(t, 4.0, c.CheckDeriv2())
		prev = p
	}

	g.SetParameter(2, 9)
	assert.InDelta(t, 2.0, c.Check(), 1e-12)
	assert.InDelta(t, -4.0, c.CheckDeriv(), 1e-12)

	// derivative is continuous at the boundary
	g.SetParameter(2, 20+1e-9)
	assert.InDelta(t, 0, c.CheckDeriv(), 1e-7)
}

func TestPenaltyFactorValidation(t *testing.T) {
	c, err := NewUpperBoundConstraint(NewGaussian(), "Height", 1)
	require.NoError(t, err)

	for _, f := range []float64{0, -1} {
		err := c.SetPenaltyFactor(f)
		assert.True(t, errors.IsInvalidArgument(err))
	}
	assert.Equal(t, DefaultPenaltyFactor, c.PenaltyFactor())
}

func TestSetParamToSatisfyConstraint(t *testing.T) {
	g := NewGaussian()
	c, err := NewLowerBoundConstraint(g, "Height", 1)
	require.NoError(t, err)

	g.SetParameter(0, -3)
	c.SetParamToSatisfyConstraint()
	assert.Equal(t, 1.0, g.Parameter(0))

	g.SetParameter(0, 5)
	c.SetParamToSatisfyConstraint()
	assert.Equal(t, 5.0, g.Parameter(0))
}

func TestAddConstraints(t *testing.T) {
	g := NewGaussian()
	require.NoError(t, AddConstraints(g, "0<Height, 1<Sigma<5"))

	require.NotNil(t, g.GetConstraint(0))
	require.NotNil(t, g.GetConstraint(2))
	assert.Nil(t, g.GetConstraint(1))
	assert.Equal(t, "1<Sigma<5", g.GetConstraint(2).String())

	g.SetParameter(2, 6)
	assert.InDelta(t, DefaultPenaltyFactor, Penalty(g), 1e-9)

	SatisfyConstraints(g)
	assert.Equal(t, 5.0, g.Parameter(2))
	assert.Zero(t, Penalty(g))

	g.RemoveConstraint(2)
	assert.Nil(t, g.GetConstraint(2))
}

func TestCompositeConstraintIndices(t *testing.T) {
	g1, g2 := NewGaussian(), NewGaussian()
	require.NoError(t, AddConstraints(g2, "Sigma<3"))
	c := NewCompositeFunction(g1, g2)
	require.NoError(t, AddConstraints(c, "f0.Height>0"))

	seen := map[int]string{}
	c.ForEachConstraint(func(i int, bc *BoundaryConstraint) {
		seen[i] = bc.String()
	})
	assert.Equal(t, map[int]string{5: "Sigma<3", 0: "0<f0.Height"}, seen)

	require.NoError(t, c.RemoveFunction(0))
	seen = map[int]string{}
	c.ForEachConstraint(func(i int, bc *BoundaryConstraint) {
		seen[i] = bc.String()
	})
	assert.Equal(t, map[int]string{2: "Sigma<3"}, seen)
}

func TestAddConstraintFromAnotherFunction(t *testing.T) {
	g1, g2 := NewGaussian(), NewGaussian()
	c := NewCompositeFunction(g1, g2)

	member, err := ParseBoundaryConstraint(g2, "Sigma<3")
	require.NoError(t, err)
	assert.True(t, errors.IsInvalidArgument(c.AddConstraint(member)), "member constraint on the composite")
	assert.Nil(t, c.GetConstraint(2))

	// same parameter layout: rebound to the receiver
	other := NewGaussian()
	bc, err := ParseBoundaryConstraint(other, "0.5<Sigma<1")
	require.NoError(t, err)
	require.NoError(t, g1.AddConstraint(bc))
	g1.SetParameter(2, 2)
	other.SetParameter(2, 0.7)
	assert.InDelta(t, DefaultPenaltyFactor, bc.Check(), 1e-9)
	bc.SetParamToSatisfyConstraint()
	assert.Equal(t, 1.0, g1.Parameter(2))
	assert.Equal(t, 0.7, other.Parameter(2))
}

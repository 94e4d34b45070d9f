package domain

import (
	"math"

	"github.com/YuminosukeSato/scifit/pkg/errors"
)

// Creator produces a domain and its values on demand. Sequential and
// parallel domains hold creators instead of materialized buffers.
type Creator interface {
	CreateDomain() (FunctionDomain, *FunctionValues, error)
	DomainSize() int
}

// ArrayCreator builds a Domain1D from x with observed values y.
// Errors e, when given, become weights 1/e^2.
type ArrayCreator struct {
	X []float64
	Y []float64
	E []float64
	// IgnoreInvalidData gives zero weight to points with a non-finite value
	// or a non-positive error instead of failing.
	IgnoreInvalidData bool
}

// DomainSize implements Creator.
func (c *ArrayCreator) DomainSize() int { return len(c.X) }

// CreateDomain implements Creator.
func (c *ArrayCreator) CreateDomain() (FunctionDomain, *FunctionValues, error) {
	if len(c.Y) != len(c.X) {
		return nil, nil, errors.NewDimensionError("ArrayCreator.CreateDomain", len(c.X), len(c.Y))
	}
	if c.E != nil && len(c.E) != len(c.X) {
		return nil, nil, errors.NewDimensionError("ArrayCreator.CreateDomain", len(c.X), len(c.E))
	}
	d, err := NewDomain1D(c.X)
	if err != nil {
		return nil, nil, err
	}
	values := NewFunctionValues(d)
	for i, y := range c.Y {
		w := 1.0
		if c.E != nil {
			e := c.E[i]
			if e > 0 && !math.IsInf(e, 0) {
				w = 1 / (e * e)
			} else {
				w = 0
			}
		}
		if math.IsNaN(y) || math.IsInf(y, 0) {
			w = 0
			y = 0
		}
		if w == 0 && !c.IgnoreInvalidData {
			return nil, nil, errors.NewValueErrorf("ArrayCreator.CreateDomain", "invalid data at index %d", i)
		}
		values.SetFitData(i, y)
		if err := values.SetFitWeight(i, w); err != nil {
			return nil, nil, err
		}
	}
	return d, values, nil
}

// StaticCreator returns an already built domain and values.
type StaticCreator struct {
	Domain FunctionDomain
	Values *FunctionValues
}

func (c *StaticCreator) DomainSize() int { return c.Domain.Size() }

func (c *StaticCreator) CreateDomain() (FunctionDomain, *FunctionValues, error) {
	return c.Domain, c.Values, nil
}

// CreatorFunc adapts a function to Creator.
type CreatorFunc struct {
	Size   int
	Create func() (FunctionDomain, *FunctionValues, error)
}

func (c CreatorFunc) DomainSize() int { return c.Size }

func (c CreatorFunc) CreateDomain() (FunctionDomain, *FunctionValues, error) {
	return c.Create()
}

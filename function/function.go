// Package function implements the parametric models that are fitted to data:
// leaf peak and background shapes, composites summing them over one domain,
// multi-domain composites binding members to sub-domains, parameter ties and
// boundary constraints.
//
// Models expose capabilities through small interfaces. Every model is a
// Function; 1D models also implement Function1D and, when an analytic
// derivative exists, Derivative1D. Peak shapes implement Peaked.
package function

import (
	"github.com/YuminosukeSato/scifit/domain"
)

// ParameterSet is the minimal view of named, indexed parameters that ties
// and constraints operate on.
type ParameterSet interface {
	NParams() int
	Parameter(i int) float64
	SetParameter(i int, value float64)
	ParameterName(i int) string
	// ParameterIndex returns a NotFoundError for unknown names.
	ParameterIndex(name string) (int, error)
}

// Parametric is a flat ordered list of parameters with fix, tie and
// constraint state.
//
// A parameter is active when it is neither fixed nor tied. Only active
// parameters are visible to cost functions and minimizers.
type Parametric interface {
	ParameterSet

	ParameterError(i int) float64
	SetParameterError(i int, err float64)

	IsFixed(i int) bool
	Fix(i int)
	Unfix(i int)
	IsTied(i int) bool
	IsActive(i int) bool

	// Tie binds the named parameter to expression. References to unknown
	// parameters and cyclic ties fail immediately with a ValueError.
	Tie(name, expression string) (*Tie, error)
	RemoveTie(i int)
	GetTie(i int) *Tie
	// ApplyTies overwrites every tied parameter with its expression value.
	ApplyTies() error

	AddConstraint(c *BoundaryConstraint) error
	RemoveConstraint(i int)
	GetConstraint(i int) *BoundaryConstraint
	// ForEachConstraint visits every constraint in this function and its
	// members. index is in this function's parameter space.
	ForEachConstraint(visit func(index int, c *BoundaryConstraint))
}

// Function is a parametric model evaluated over a domain.
type Function interface {
	Parametric
	Name() string
	// Function fills v's calculated values. It depends only on the current
	// parameter values.
	Function(d domain.FunctionDomain, v *domain.FunctionValues) error
	// FunctionDeriv fills j with d(value)/d(parameter) for every parameter,
	// treating parameters as independent. Models without an analytic
	// derivative use NumericalDeriv.
	FunctionDeriv(d domain.FunctionDomain, j domain.Jacobian) error
}

// Function1D evaluates a model pointwise over scalar x values.
type Function1D interface {
	Function1D(out, x []float64)
}

// Derivative1D fills the Jacobian rows for x analytically.
// Implementations must set every column of every row.
type Derivative1D interface {
	FunctionDeriv1D(j domain.Jacobian, x []float64)
}

// Peaked is implemented by peak shapes.
type Peaked interface {
	Function
	Centre() float64
	SetCentre(c float64)
	Height() float64
	SetHeight(h float64)
	FWHM() float64
	SetFWHM(w float64)
	// Intensity is the integrated area under the peak.
	Intensity() float64
}

// Container is implemented by functions that own member functions.
type Container interface {
	NFunctions() int
	FunctionAt(i int) Function
}

// ParameterValue returns the value of the named parameter.
func ParameterValue(f ParameterSet, name string) (float64, error) {
	i, err := f.ParameterIndex(name)
	if err != nil {
		return 0, err
	}
	return f.Parameter(i), nil
}

// SetParameterValue sets the named parameter.
func SetParameterValue(f ParameterSet, name string, value float64) error {
	i, err := f.ParameterIndex(name)
	if err != nil {
		return err
	}
	f.SetParameter(i, value)
	return nil
}

// FixParameter fixes the named parameter.
func FixParameter(f Parametric, name string) error {
	i, err := f.ParameterIndex(name)
	if err != nil {
		return err
	}
	f.Fix(i)
	return nil
}

// UnfixParameter releases the named parameter.
func UnfixParameter(f Parametric, name string) error {
	i, err := f.ParameterIndex(name)
	if err != nil {
		return err
	}
	f.Unfix(i)
	return nil
}

// ActiveIndices lists the indices of the active parameters in order.
func ActiveIndices(f Parametric) []int {
	active := make([]int, 0, f.NParams())
	for i := 0; i < f.NParams(); i++ {
		if f.IsActive(i) {
			active = append(active, i)
		}
	}
	return active
}

// NActive counts the active parameters.
func NActive(f Parametric) int {
	n := 0
	for i := 0; i < f.NParams(); i++ {
		if f.IsActive(i) {
			n++
		}
	}
	return n
}

// HasTies reports whether any parameter of f is tied.
func HasTies(f Parametric) bool {
	for i := 0; i < f.NParams(); i++ {
		if f.IsTied(i) {
			return true
		}
	}
	return false
}

// IsAnalytic reports whether every leaf of f computes its derivative
// analytically. Numerical derivatives mutate parameters while evaluating,
// so callers evaluating derivatives concurrently must check this first.
func IsAnalytic(f Function) bool {
	if c, ok := f.(Container); ok {
		for i := 0; i < c.NFunctions(); i++ {
			if !IsAnalytic(c.FunctionAt(i)) {
				return false
			}
		}
		return true
	}
	_, ok := f.(Derivative1D)
	return ok
}

// Penalty sums the penalties of all constraints of f.
func Penalty(f Parametric) float64 {
	var p float64
	f.ForEachConstraint(func(_ int, c *BoundaryConstraint) {
		p += c.Check()
	})
	return p
}

// SatisfyConstraints moves every constrained parameter of f inside its bounds.
func SatisfyConstraints(f Parametric) {
	f.ForEachConstraint(func(_ int, c *BoundaryConstraint) {
		c.SetParamToSatisfyConstraint()
	})
}

package function

import (
	"math"

	"github.com/YuminosukeSato/scifit/domain"
)

// FlatBackground is the constant A0.
type FlatBackground struct {
	ParamFunction
}

func NewFlatBackground() *FlatBackground {
	b := &FlatBackground{}
	b.DeclareParameter("A0", 0, "Constant term")
	return b
}

func (b *FlatBackground) Name() string { return "FlatBackground" }

func (b *FlatBackground) Function1D(out, x []float64) {
	for i := range x {
		out[i] = b.values[0]
	}
}

func (b *FlatBackground) FunctionDeriv1D(j domain.Jacobian, x []float64) {
	for i := range x {
		j.Set(i, 0, 1)
	}
}

func (b *FlatBackground) Function(d domain.FunctionDomain, v *domain.FunctionValues) error {
	return Eval1D(b, d, v)
}

func (b *FlatBackground) FunctionDeriv(d domain.FunctionDomain, j domain.Jacobian) error {
	return EvalDeriv1D(b, d, j)
}

// LinearBackground is A0 + A1*x.
type LinearBackground struct {
	ParamFunction
}

func NewLinearBackground() *LinearBackground {
	b := &LinearBackground{}
	b.DeclareParameter("A0", 0, "Coefficient for constant term")
	b.DeclareParameter("A1", 0, "Coefficient for linear term")
	return b
}

func (b *LinearBackground) Name() string { return "LinearBackground" }

func (b *LinearBackground) Function1D(out, x []float64) {
	a0, a1 := b.values[0], b.values[1]
	for i, xi := range x {
		out[i] = a0 + a1*xi
	}
}

func (b *LinearBackground) FunctionDeriv1D(j domain.Jacobian, x []float64) {
	for i, xi := range x {
		j.Set(i, 0, 1)
		j.Set(i, 1, xi)
	}
}

func (b *LinearBackground) Function(d domain.FunctionDomain, v *domain.FunctionValues) error {
	return Eval1D(b, d, v)
}

func (b *LinearBackground) FunctionDeriv(d domain.FunctionDomain, j domain.Jacobian) error {
	return EvalDeriv1D(b, d, j)
}

// ExpDecay is Height*exp(-x/Lifetime).
type ExpDecay struct {
	ParamFunction
}

func NewExpDecay() *ExpDecay {
	e := &ExpDecay{}
	e.DeclareParameter("Height", 1, "Height at time zero")
	e.DeclareParameter("Lifetime", 1, "Lifetime")
	return e
}

func (e *ExpDecay) Name() string { return "ExpDecay" }

func (e *ExpDecay) Function1D(out, x []float64) {
	h, tau := e.values[0], e.values[1]
	for i, xi := range x {
		out[i] = h * math.Exp(-xi/tau)
	}
}

func (e *ExpDecay) FunctionDeriv1D(j domain.Jacobian, x []float64) {
	h, tau := e.values[0], e.values[1]
	for i, xi := range x {
		ex := math.Exp(-xi / tau)
		j.Set(i, 0, ex)
		j.Set(i, 1, h*ex*xi/(tau*tau))
	}
}

func (e *ExpDecay) Function(d domain.FunctionDomain, v *domain.FunctionValues) error {
	return Eval1D(e, d, v)
}

func (e *ExpDecay) FunctionDeriv(d domain.FunctionDomain, j domain.Jacobian) error {
	return EvalDeriv1D(e, d, j)
}

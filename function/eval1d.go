package function

import (
	"github.com/YuminosukeSato/scifit/core/parallel"
	"github.com/YuminosukeSato/scifit/domain"
	"github.com/YuminosukeSato/scifit/pkg/errors"
)

func domain1D(d domain.FunctionDomain, name string) (*domain.Domain1D, error) {
	d1, ok := d.(*domain.Domain1D)
	if !ok {
		return nil, errors.NewValueErrorf(name, "expects a 1D domain, got %T", d)
	}
	return d1, nil
}

// Eval1D fills v by calling f over d's x values. Domains larger than
// parallel.DefaultThreshold are split into chunks evaluated concurrently.
func Eval1D(f Function1D, d domain.FunctionDomain, v *domain.FunctionValues) error {
	d1, err := domain1D(d, "Eval1D")
	if err != nil {
		return err
	}
	if v.Size() != d1.Size() {
		return errors.NewDimensionError("Eval1D", d1.Size(), v.Size())
	}
	x := d1.X()
	out := v.CalculatedSlice()
	parallel.ParallelizeWithThreshold(len(x), parallel.DefaultThreshold, func(start, end int) {
		f.Function1D(out[start:end], x[start:end])
	})
	return nil
}

// EvalDeriv1D fills j analytically when fn implements Derivative1D and
// falls back to NumericalDeriv otherwise.
func EvalDeriv1D(fn Function, d domain.FunctionDomain, j domain.Jacobian) error {
	deriv, ok := fn.(Derivative1D)
	if !ok {
		return NumericalDeriv(fn, d, j)
	}
	d1, err := domain1D(d, "EvalDeriv1D")
	if err != nil {
		return err
	}
	x := d1.X()
	np := fn.NParams()
	parallel.ParallelizeWithThreshold(len(x), parallel.DefaultThreshold, func(start, end int) {
		deriv.FunctionDeriv1D(domain.NewPartialJacobian(j, start, 0, end-start, np), x[start:end])
	})
	return nil
}

package function

import (
	"math"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/scifit/domain"
)

const (
	// numDerivStep is the central-difference step relative to |p|.
	numDerivStep = 1e-6
	// numDerivMinScale keeps the step finite for parameters near zero.
	numDerivMinScale = 1e-2
)

// NumericalDeriv fills j by central differences over every non-fixed
// parameter of fn. Each parameter is perturbed by numDerivStep*max(|p|, 1e-2);
// ties are not applied, matching the independent-parameter contract of
// FunctionDeriv. Parameters are restored before returning.
//
// fn's parameters are mutated during the call, so it must not run
// concurrently with other evaluations of fn.
func NumericalDeriv(fn Function, d domain.FunctionDomain, j domain.Jacobian) error {
	n := d.Size()
	np := fn.NParams()

	var free []int
	for i := 0; i < np; i++ {
		if fn.IsFixed(i) {
			for r := 0; r < n; r++ {
				j.Set(r, i, 0)
			}
			continue
		}
		free = append(free, i)
	}
	if len(free) == 0 {
		return nil
	}

	p0 := make([]float64, len(free))
	scale := make([]float64, len(free))
	x0 := make([]float64, len(free))
	for k, i := range free {
		p0[k] = fn.Parameter(i)
		scale[k] = math.Max(math.Abs(p0[k]), numDerivMinScale)
		x0[k] = p0[k] / scale[k]
	}

	values := domain.NewFunctionValues(d)
	var evalErr error
	f := func(y, x []float64) {
		for k, i := range free {
			fn.SetParameter(i, x[k]*scale[k])
		}
		if err := fn.Function(d, values); err != nil && evalErr == nil {
			evalErr = err
		}
		copy(y, values.CalculatedSlice())
	}

	dst := mat.NewDense(n, len(free), nil)
	fd.Jacobian(dst, f, x0, &fd.JacobianSettings{
		Formula: fd.Central,
		Step:    numDerivStep,
	})

	for k, i := range free {
		fn.SetParameter(i, p0[k])
	}
	if evalErr != nil {
		return evalErr
	}
	for k, i := range free {
		for r := 0; r < n; r++ {
			j.Set(r, i, dst.At(r, k)/scale[k])
		}
	}
	return nil
}

// TieJacobian returns the nParams x len(active) matrix T with
// T[i][k] = d(parameter i)/d(active[k]) once ties are applied. Rows of
// active parameters form the identity and rows of fixed parameters are
// zero; rows of tied parameters are obtained by central differences through
// ApplyTies. The cost function multiplies the model Jacobian by T so that
// derivatives flow through ties. It returns nil when there are no active
// parameters.
func TieJacobian(fn Parametric, active []int) (*mat.Dense, error) {
	if len(active) == 0 {
		return nil, nil
	}
	np := fn.NParams()
	t := mat.NewDense(np, len(active), nil)

	var tied []int
	for i := 0; i < np; i++ {
		if fn.IsTied(i) {
			tied = append(tied, i)
		}
	}
	for k, i := range active {
		t.Set(i, k, 1)
	}
	if len(tied) == 0 {
		return t, nil
	}

	p0 := make([]float64, len(active))
	scale := make([]float64, len(active))
	x0 := make([]float64, len(active))
	for k, i := range active {
		p0[k] = fn.Parameter(i)
		scale[k] = math.Max(math.Abs(p0[k]), numDerivMinScale)
		x0[k] = p0[k] / scale[k]
	}

	var tieErr error
	f := func(y, x []float64) {
		for k, i := range active {
			fn.SetParameter(i, x[k]*scale[k])
		}
		if err := fn.ApplyTies(); err != nil && tieErr == nil {
			tieErr = err
		}
		for r, i := range tied {
			y[r] = fn.Parameter(i)
		}
	}
	dst := mat.NewDense(len(tied), len(active), nil)
	fd.Jacobian(dst, f, x0, &fd.JacobianSettings{
		Formula: fd.Central,
		Step:    numDerivStep,
	})

	for k, i := range active {
		fn.SetParameter(i, p0[k])
	}
	if err := fn.ApplyTies(); err != nil {
		return nil, err
	}
	if tieErr != nil {
		return nil, tieErr
	}
	for r, i := range tied {
		for k := range active {
			t.Set(i, k, dst.At(r, k)/scale[k])
		}
	}
	return t, nil
}

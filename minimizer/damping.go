package minimizer

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

const (
	// dampingTau scales the initial damping against the largest diagonal
	// element of the normal matrix.
	dampingTau = 1e-3
	// maxTrials is the number of rejected steps one iteration may take
	// before it reports no progress.
	maxTrials = 10
	epsilon   = 2.220446049250313e-16
)

// damping is the trust-region state of a Levenberg-Marquardt solver working
// on the quadratic model
//
//	F(x+dx) ~ F(x) + g.dx + dx.A.dx/2
//
// with Marquardt scaling: the damping term is mu*D where D is the running
// maximum of diag(A).
type damping struct {
	mu    float64
	nu    float64
	scale []float64

	shifted *mat.SymDense
	chol    mat.Cholesky
	rhs     []float64
	dx      []float64
}

func newDamping(n int) *damping {
	return &damping{
		nu:      2,
		scale:   make([]float64, n),
		shifted: mat.NewSymDense(n, nil),
		rhs:     make([]float64, n),
		dx:      make([]float64, n),
	}
}

// reset starts a new fit from the normal matrix a.
func (d *damping) reset(a mat.Symmetric) {
	for i := range d.scale {
		d.scale[i] = 0
	}
	d.updateScale(a)
	maxDiag := floats.Max(d.scale)
	d.mu = dampingTau * maxDiag
	if d.mu == 0 {
		d.mu = dampingTau
	}
	d.nu = 2
}

func (d *damping) updateScale(a mat.Symmetric) {
	for i := range d.scale {
		d.scale[i] = math.Max(d.scale[i], a.At(i, i))
	}
}

// solve computes dx from (A + mu*D) dx = -g.
func (d *damping) solve(a mat.Symmetric, g []float64) bool {
	n := len(g)
	d.shifted.CopySym(a)
	for i := 0; i < n; i++ {
		s := d.scale[i]
		if s == 0 {
			s = 1
		}
		d.shifted.SetSym(i, i, a.At(i, i)+d.mu*s)
	}
	if ok := d.chol.Factorize(d.shifted); !ok {
		return false
	}
	for i, v := range g {
		d.rhs[i] = -v
	}
	dst := mat.NewVecDense(n, d.dx)
	if err := d.chol.SolveVecTo(dst, mat.NewVecDense(n, d.rhs)); err != nil {
		return false
	}
	return !floats.HasNaN(d.dx)
}

// predicted is the reduction of the quadratic model for step dx.
func predicted(a mat.Symmetric, g, dx []float64) float64 {
	v := mat.NewVecDense(len(dx), dx)
	return -(floats.Dot(g, dx) + 0.5*mat.Inner(v, a, v))
}

func (d *damping) accept(rho float64) {
	d.mu *= math.Max(1.0/3.0, 1-math.Pow(2*rho-1, 3))
	d.nu = 2
}

func (d *damping) reject() {
	d.mu *= d.nu
	d.nu *= 2
}

// trialStep is the outcome of one damped iteration.
type trialStep struct {
	dx      []float64
	value   float64
	ratio   float64
	failure string
}

// iterate tries damped steps from x until one lowers the cost f. try
// evaluates the cost at x+dx; undo returns to x after a rejected trial.
func (d *damping) iterate(a mat.Symmetric, g, x []float64, f float64,
	try func(dx []float64) (float64, error), undo func() error) (trialStep, error) {
	xnorm := floats.Norm(x, 2)
	for k := 0; k < maxTrials; k++ {
		if !d.solve(a, g) {
			d.reject()
			continue
		}
		pred := predicted(a, g, d.dx)
		value, err := try(d.dx)
		if err != nil {
			return trialStep{}, err
		}
		actual := f - value
		if pred > 0 && actual > 0 && !math.IsInf(value, 0) {
			rho := actual / pred
			d.accept(rho)
			return trialStep{dx: d.dx, value: value, ratio: rho}, nil
		}

		if err := undo(); err != nil {
			return trialStep{}, err
		}
		d.reject()
		switch {
		case math.Abs(actual) <= epsilon*f && pred <= epsilon*f:
			return trialStep{value: f, failure: FailureFunctionTolerance}, nil
		case floats.Norm(d.dx, 2) <= epsilon*xnorm:
			return trialStep{value: f, failure: FailureParameterTolerance}, nil
		}
	}
	return trialStep{value: f, failure: FailureNoProgress}, nil
}

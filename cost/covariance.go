package cost

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/scifit/function"
	"github.com/YuminosukeSato/scifit/pkg/errors"
)

// DefaultEpsrel is the default relative rank tolerance of Covariance.
const DefaultEpsrel = 1e-8

// CalCovarianceMatrix returns the covariance of the active parameters,
// (J^T W J)^-1, from the Gauss-Newton Hessian. Parameters that are linearly
// dependent within epsrel get zero rows and columns.
func (c *LeastSquares) CalCovarianceMatrix(epsrel float64) (*mat.SymDense, error) {
	if _, err := c.ValDerivHessian(true, true); err != nil {
		return nil, err
	}
	h := c.cache.hess
	if h == nil {
		return nil, errors.NewRuntimeError(c.kind(), "no active parameters", nil)
	}
	// the Hessian is 2 J^T W J; for Rwp it carries the normalisation, which
	// UnpenalizedVal carries inversely, so their product is unchanged
	half := mat.NewSymDense(h.SymmetricDim(), nil)
	half.ScaleSym(0.5, h)
	return Covariance(half, epsrel)
}

// Covariance returns the inverse of the normal matrix a = J^T W J. The rank
// is decided by a Cholesky factorisation with complete pivoting on the
// correlation-scaled matrix: a pivot whose square root falls below epsrel
// times the first one ends the factorisation, and the parameters not yet
// pivoted get zero rows and columns in the result. The remaining block is
// inverted exactly.
func Covariance(a mat.Symmetric, epsrel float64) (*mat.SymDense, error) {
	const op = "Covariance"
	if epsrel < 0 {
		return nil, errors.NewValidationError("epsrel", "must not be negative", epsrel)
	}
	n := a.SymmetricDim()
	keep := independentColumns(a, epsrel)
	covar := mat.NewSymDense(n, nil)
	if len(keep) == 0 {
		return covar, nil
	}

	sub := mat.NewSymDense(len(keep), nil)
	for p, i := range keep {
		for q := p; q < len(keep); q++ {
			sub.SetSym(p, q, a.At(i, keep[q]))
		}
	}
	var chol mat.Cholesky
	if ok := chol.Factorize(sub); !ok {
		return nil, errors.NewRuntimeError(op, "normal matrix is not positive definite", errors.ErrSingularMatrix)
	}
	inv := mat.NewSymDense(len(keep), nil)
	if err := chol.InverseTo(inv); err != nil {
		return nil, errors.NewRuntimeError(op, "inverting normal matrix", err)
	}
	for p, i := range keep {
		for q := p; q < len(keep); q++ {
			covar.SetSym(i, keep[q], inv.At(p, q))
		}
	}
	return covar, nil
}

// independentColumns returns, in ascending order, the columns of a kept by
// a pivoted Cholesky factorisation of its correlation matrix.
func independentColumns(a mat.Symmetric, epsrel float64) []int {
	n := a.SymmetricDim()
	scale := make([]float64, n)
	for i := range scale {
		if d := a.At(i, i); d > 0 {
			scale[i] = math.Sqrt(d)
		}
	}
	corr := func(i, j int) float64 {
		if scale[i] == 0 || scale[j] == 0 {
			return 0
		}
		return a.At(i, j) / (scale[i] * scale[j])
	}

	diag := make([]float64, n)
	var candidates []int
	for i := range diag {
		diag[i] = corr(i, i)
		candidates = append(candidates, i)
	}
	l := make([][]float64, n)

	var keep []int
	first := -1.0
	for len(candidates) > 0 {
		best, pos := 0.0, -1
		for k, i := range candidates {
			if diag[i] > best {
				best, pos = diag[i], k
			}
		}
		if pos < 0 {
			break
		}
		if first < 0 {
			first = best
		}
		if math.Sqrt(best) <= epsrel*math.Sqrt(first) {
			break
		}
		p := candidates[pos]
		candidates = append(candidates[:pos], candidates[pos+1:]...)
		keep = append(keep, p)

		lpp := math.Sqrt(best)
		step := len(l[p])
		for _, i := range candidates {
			s := corr(i, p)
			for k := 0; k < step; k++ {
				s -= l[i][k] * l[p][k]
			}
			v := s / lpp
			l[i] = append(l[i], v)
			diag[i] -= v * v
		}
		l[p] = append(l[p], lpp)
	}
	sort.Ints(keep)
	return keep
}

// CalFittingErrors writes sqrt(C_ii * chi2) onto the fitting function as
// parameter errors. Tied parameters get errors propagated through their
// tie expressions; fixed parameters get zero.
func (c *LeastSquares) CalFittingErrors(covar *mat.SymDense, chi2 float64) error {
	if c.fn == nil {
		return errors.NewRuntimeError(c.kind(), "no fitting function set", nil)
	}
	c.sync()
	na := len(c.active)
	if covar == nil || covar.SymmetricDim() != na {
		got := 0
		if covar != nil {
			got = covar.SymmetricDim()
		}
		return errors.NewDimensionError(c.kind()+".CalFittingErrors", na, got)
	}
	if err := c.fn.ApplyTies(); err != nil {
		return err
	}
	tie, err := function.TieJacobian(c.fn, c.active)
	if err != nil {
		return err
	}

	for i := 0; i < c.fn.NParams(); i++ {
		if tie == nil || c.fn.IsFixed(i) {
			c.fn.SetParameterError(i, 0)
			continue
		}
		var variance float64
		for k := 0; k < na; k++ {
			tk := tie.At(i, k)
			if tk == 0 {
				continue
			}
			for m := 0; m < na; m++ {
				variance += tk * covar.At(k, m) * tie.At(i, m)
			}
		}
		c.fn.SetParameterError(i, math.Sqrt(math.Max(variance, 0)*chi2))
	}
	return nil
}

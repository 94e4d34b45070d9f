package cost

import (
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/YuminosukeSato/scifit/domain"
	"github.com/YuminosukeSato/scifit/function"
)

// ParDomain evaluates sub-domains concurrently on a fixed number of
// workers. Every worker creates its own sub-domain and buffers, and partial
// sums are merged under a lock, so totals match SeqDomain up to rounding.
//
// Derivatives are evaluated concurrently only when every leaf of the
// fitting function is analytic; numerical derivatives perturb the shared
// parameters and run one sub-domain at a time.
type ParDomain struct {
	creators
	workers int
}

// NewParDomain creates a parallel domain. workers <= 0 means GOMAXPROCS.
func NewParDomain(workers int, list ...domain.Creator) *ParDomain {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	p := &ParDomain{workers: workers}
	for _, cr := range list {
		p.AddCreator(cr)
	}
	return p
}

// Workers is the size of the worker pool.
func (p *ParDomain) Workers() int { return p.workers }

func (p *ParDomain) kind() string { return "par" }

// DomainAndValues creates sub-domain i. Nothing is cached, so buffers from
// different calls never alias.
func (p *ParDomain) DomainAndValues(i int) (domain.FunctionDomain, *domain.FunctionValues, error) {
	return p.create("ParDomain.DomainAndValues", i)
}

func (p *ParDomain) accumulate(c *LeastSquares, ps *pass) error {
	if ps.evalDeriv && !function.IsAnalytic(c.fn) {
		for i := 0; i < p.NDomains(); i++ {
			d, v, err := p.DomainAndValues(i)
			if err != nil {
				return err
			}
			if err := c.evalBlock(d, v, ps, ps.acc); err != nil {
				return err
			}
		}
		return nil
	}

	var (
		g  errgroup.Group
		mu sync.Mutex
	)
	g.SetLimit(p.workers)
	na := len(c.active)
	for i := 0; i < p.NDomains(); i++ {
		g.Go(func() error {
			d, v, err := p.DomainAndValues(i)
			if err != nil {
				return err
			}
			acc := newAccumulator(na, ps.evalDeriv, ps.evalHessian)
			if err := c.evalBlock(d, v, ps, acc); err != nil {
				return err
			}
			mu.Lock()
			ps.acc.merge(acc)
			mu.Unlock()
			return nil
		})
	}
	return g.Wait()
}

// LeastSquaresVal evaluates c, which must be bound to p, and returns its value.
func (p *ParDomain) LeastSquaresVal(c *LeastSquares) (float64, error) {
	return p.LeastSquaresValDerivHessian(c, false, false)
}

// LeastSquaresValDerivHessian is LeastSquaresVal with optional gradient and Hessian.
func (p *ParDomain) LeastSquaresValDerivHessian(c *LeastSquares, evalDeriv, evalHessian bool) (float64, error) {
	if err := checkBound(c, p, "ParDomain.LeastSquaresValDerivHessian"); err != nil {
		return 0, err
	}
	return c.ValDerivHessian(evalDeriv, evalHessian)
}

// RwpVal evaluates the Rwp cost function r concurrently.
func (p *ParDomain) RwpVal(r *Rwp) (float64, error) {
	return p.RwpValDerivHessian(r, false, false)
}

// RwpValDerivHessian is RwpVal with optional gradient and Hessian.
func (p *ParDomain) RwpValDerivHessian(r *Rwp, evalDeriv, evalHessian bool) (float64, error) {
	if err := checkBound(&r.LeastSquares, p, "ParDomain.RwpValDerivHessian"); err != nil {
		return 0, err
	}
	return r.ValDerivHessian(evalDeriv, evalHessian)
}

package cost

import (
	"github.com/YuminosukeSato/scifit/domain"
	"github.com/YuminosukeSato/scifit/pkg/errors"
)

// creators is the ordered list of sub-domain sources shared by SeqDomain
// and ParDomain.
type creators struct {
	list []domain.Creator
}

// AddCreator appends a sub-domain source.
func (c *creators) AddCreator(cr domain.Creator) {
	c.list = append(c.list, cr)
}

// NDomains is the number of sub-domains.
func (c *creators) NDomains() int { return len(c.list) }

// Size is the total number of points over all sub-domains.
func (c *creators) Size() int {
	n := 0
	for _, cr := range c.list {
		n += cr.DomainSize()
	}
	return n
}

func (c *creators) create(op string, i int) (domain.FunctionDomain, *domain.FunctionValues, error) {
	if i < 0 || i >= len(c.list) {
		return nil, nil, errors.NewRangeError(op, i, len(c.list))
	}
	d, v, err := c.list[i].CreateDomain()
	if err != nil {
		return nil, nil, errors.NewRuntimeError(op, "creating sub-domain", err)
	}
	return d, v, nil
}

// SeqDomain is a domain made of sub-domains that are created one at a time.
// Only the most recently requested sub-domain is kept in memory, so
// buffers returned by DomainAndValues are valid until the next call with a
// different index. A SeqDomain must not be shared by concurrent fits.
type SeqDomain struct {
	creators

	current int
	domain  domain.FunctionDomain
	values  *domain.FunctionValues
}

// NewSeqDomain creates a sequential domain over the given creators.
func NewSeqDomain(list ...domain.Creator) *SeqDomain {
	s := &SeqDomain{current: -1}
	for _, cr := range list {
		s.AddCreator(cr)
	}
	return s
}

func (s *SeqDomain) kind() string { return "seq" }

// DomainAndValues returns sub-domain i, creating it unless it is the one
// already held. The previously held sub-domain is released.
func (s *SeqDomain) DomainAndValues(i int) (domain.FunctionDomain, *domain.FunctionValues, error) {
	if i == s.current && s.domain != nil {
		return s.domain, s.values, nil
	}
	s.current, s.domain, s.values = -1, nil, nil
	d, v, err := s.create("SeqDomain.DomainAndValues", i)
	if err != nil {
		return nil, nil, err
	}
	s.current, s.domain, s.values = i, d, v
	return d, v, nil
}

func (s *SeqDomain) accumulate(c *LeastSquares, p *pass) error {
	for i := 0; i < s.NDomains(); i++ {
		d, v, err := s.DomainAndValues(i)
		if err != nil {
			return err
		}
		if err := c.evalBlock(d, v, p, p.acc); err != nil {
			return err
		}
	}
	return nil
}

// LeastSquaresVal evaluates c, which must be bound to s, over every
// sub-domain and returns its value.
func (s *SeqDomain) LeastSquaresVal(c *LeastSquares) (float64, error) {
	return s.LeastSquaresValDerivHessian(c, false, false)
}

// LeastSquaresValDerivHessian is LeastSquaresVal with optional gradient and
// Hessian, which are then available from c.
func (s *SeqDomain) LeastSquaresValDerivHessian(c *LeastSquares, evalDeriv, evalHessian bool) (float64, error) {
	if err := checkBound(c, s, "SeqDomain.LeastSquaresValDerivHessian"); err != nil {
		return 0, err
	}
	return c.ValDerivHessian(evalDeriv, evalHessian)
}

// RwpVal evaluates the Rwp cost function r over every sub-domain.
func (s *SeqDomain) RwpVal(r *Rwp) (float64, error) {
	return s.RwpValDerivHessian(r, false, false)
}

// RwpValDerivHessian is RwpVal with optional gradient and Hessian.
func (s *SeqDomain) RwpValDerivHessian(r *Rwp, evalDeriv, evalHessian bool) (float64, error) {
	if err := checkBound(&r.LeastSquares, s, "SeqDomain.RwpValDerivHessian"); err != nil {
		return 0, err
	}
	return r.ValDerivHessian(evalDeriv, evalHessian)
}

func checkBound(c *LeastSquares, src blockSource, op string) error {
	if c == nil || c.source != src {
		return errors.NewValueError(op, "cost function is not bound to this domain")
	}
	return nil
}

package cost

import (
	"math"
	"slices"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/scifit/domain"
	"github.com/YuminosukeSato/scifit/function"
	"github.com/YuminosukeSato/scifit/pkg/errors"
	"github.com/YuminosukeSato/scifit/pkg/log"
)

// Registered cost function names.
const (
	LeastSquaresName = "Least squares"
	RwpName          = "Rwp"
)

// Option configures a LeastSquares or Rwp cost function.
type Option func(*LeastSquares)

// WithIncludePenalty sets whether constraint penalties are added to the
// value, gradient and Hessian. The default is true.
func WithIncludePenalty(include bool) Option {
	return func(c *LeastSquares) {
		c.includePenalty = include
	}
}

// WithLogger sets the logger receiving per-evaluation debug records.
func WithLogger(logger log.Logger) Option {
	return func(c *LeastSquares) {
		if logger != nil {
			c.logger = logger.With(log.ComponentKey, log.ComponentCost)
		}
	}
}

// blockSource is a domain made of sub-domains created on demand.
type blockSource interface {
	NDomains() int
	Size() int
	DomainAndValues(i int) (domain.FunctionDomain, *domain.FunctionValues, error)
	accumulate(c *LeastSquares, p *pass) error
	kind() string
}

// LeastSquares is the weighted sum of squared residuals
//
//	val = sum_i w_i (y_i - f_i)^2
//
// plus the penalties of all constraints when penalties are included.
// The gradient is 2 J^T W r and the Hessian the Gauss-Newton approximation
// 2 J^T W J, where J is taken with respect to the active parameters and
// includes the derivatives of tied parameters.
//
// Results are cached against a generation counter which every parameter
// change advances. Parameters changed directly on the fitting function are
// not observed; call Invalidate after doing so.
type LeastSquares struct {
	rwp            bool
	includePenalty bool
	logger         log.Logger

	fn     function.Function
	domain domain.FunctionDomain
	values *domain.FunctionValues
	source blockSource
	active []int

	gen   uint64
	cache snapshot
	stack []snapshot

	evaluations int
}

// snapshot holds cached results. A cached field is current when its
// generation equals the cost function's generation.
type snapshot struct {
	value    float64
	chi2     float64
	raw      float64
	grad     []float64
	hess     *mat.SymDense
	valGen   uint64
	derivGen uint64
	hessGen  uint64

	// set only on the push stack
	params []float64
	gen    uint64
}

// pass is one evaluation of the cost function over all data.
type pass struct {
	evalDeriv   bool
	evalHessian bool
	// tie maps function parameters to active parameters; nil when there
	// are no derivatives to compute.
	tie *mat.Dense
	acc *accumulator
}

// accumulator collects sums over domain points.
type accumulator struct {
	val  float64
	norm float64
	grad []float64
	hess *mat.SymDense
}

func newAccumulator(nActive int, evalDeriv, evalHessian bool) *accumulator {
	a := &accumulator{}
	if evalDeriv {
		a.grad = make([]float64, nActive)
	}
	if evalHessian && nActive > 0 {
		a.hess = mat.NewSymDense(nActive, nil)
	}
	return a
}

func (a *accumulator) merge(b *accumulator) {
	a.val += b.val
	a.norm += b.norm
	if a.grad != nil {
		floats.Add(a.grad, b.grad)
	}
	if a.hess != nil {
		a.hess.AddSym(a.hess, b.hess)
	}
}

// NewLeastSquares returns an unbound least-squares cost function.
func NewLeastSquares(opts ...Option) *LeastSquares {
	c := &LeastSquares{
		includePenalty: true,
		logger:         log.Nop(),
		gen:            1,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Rwp is the weighted profile R-factor
//
//	val = sum_i w_i (y_i - f_i)^2 / sum_i w_i y_i^2
//
// The normalisation runs over all data, including every sub-domain of a
// SeqDomain or ParDomain.
type Rwp struct {
	LeastSquares
}

// NewRwp returns an unbound Rwp cost function.
func NewRwp(opts ...Option) *Rwp {
	r := &Rwp{LeastSquares: *NewLeastSquares(opts...)}
	r.rwp = true
	return r
}

func (c *LeastSquares) Name() string {
	if c.rwp {
		return RwpName
	}
	return LeastSquaresName
}

// kind names the cost function in error messages.
func (c *LeastSquares) kind() string {
	if c.rwp {
		return "Rwp"
	}
	return "LeastSquares"
}

// SetFittingFunction binds fn to its data. d may be a plain domain with
// values v, or a *SeqDomain or *ParDomain in which case v is ignored.
func (c *LeastSquares) SetFittingFunction(fn function.Function, d domain.FunctionDomain, v *domain.FunctionValues) error {
	const op = "SetFittingFunction"
	if fn == nil {
		return errors.NewValueError(op, "fitting function is nil")
	}
	if d == nil {
		return errors.NewValueError(op, "domain is nil")
	}
	c.source = nil
	if src, ok := d.(blockSource); ok {
		c.source = src
		v = nil
	} else {
		if v == nil {
			return errors.NewValueError(op, "function values are nil")
		}
		if v.Size() != d.Size() {
			return errors.NewDimensionError(op, d.Size(), v.Size())
		}
	}
	c.fn, c.domain, c.values = fn, d, v
	c.active = function.ActiveIndices(fn)
	c.stack = nil
	c.Invalidate()

	c.logger.Debug("Fitting function bound",
		log.CostFunctionKey, c.Name(),
		log.FunctionKey, fn.Name(),
		log.DomainKey, c.DomainKind(),
		log.DataPointsKey, c.NData(),
		log.ParametersKey, len(c.active),
	)
	return nil
}

// FittingFunction returns the bound function, or nil.
func (c *LeastSquares) FittingFunction() function.Function { return c.fn }

// DomainKind is "simple", "seq" or "par".
func (c *LeastSquares) DomainKind() string {
	if c.source != nil {
		return c.source.kind()
	}
	return "simple"
}

// NData is the number of data points over all sub-domains.
func (c *LeastSquares) NData() int {
	switch {
	case c.source != nil:
		return c.source.Size()
	case c.values != nil:
		return c.values.Size()
	}
	return 0
}

// Evaluations counts the evaluations that were not served from the cache.
func (c *LeastSquares) Evaluations() int { return c.evaluations }

// Invalidate drops all cached results.
func (c *LeastSquares) Invalidate() { c.gen++ }

// sync refreshes the active index map when parameters were fixed, unfixed,
// tied or untied since the last call.
func (c *LeastSquares) sync() {
	if c.fn == nil {
		return
	}
	active := function.ActiveIndices(c.fn)
	if !slices.Equal(active, c.active) {
		c.active = active
		c.stack = nil
		c.Invalidate()
	}
}

func (c *LeastSquares) NParams() int {
	c.sync()
	return len(c.active)
}

// ActiveIndex maps active parameter i to its index in the fitting function.
func (c *LeastSquares) ActiveIndex(i int) int {
	c.sync()
	return c.active[i]
}

func (c *LeastSquares) Parameter(i int) float64 {
	c.sync()
	return c.fn.Parameter(c.active[i])
}

func (c *LeastSquares) SetParameter(i int, value float64) {
	c.sync()
	c.fn.SetParameter(c.active[i], value)
	c.Invalidate()
}

func (c *LeastSquares) ApplyTies() error {
	if c.fn == nil {
		return nil
	}
	return c.fn.ApplyTies()
}

func (c *LeastSquares) Val() (float64, error) {
	return c.ValDerivHessian(false, false)
}

func (c *LeastSquares) Deriv(out []float64) error {
	_, err := c.ValAndDeriv(out)
	return err
}

func (c *LeastSquares) ValAndDeriv(out []float64) (float64, error) {
	if n := c.NParams(); len(out) != n {
		return 0, errors.NewDimensionError(c.kind()+".Deriv", n, len(out))
	}
	val, err := c.ValDerivHessian(true, false)
	if err != nil {
		return 0, err
	}
	copy(out, c.cache.grad)
	return val, nil
}

// ChiSquared is the weighted sum of squared residuals without penalties
// or Rwp normalisation.
func (c *LeastSquares) ChiSquared() (float64, error) {
	if _, err := c.Val(); err != nil {
		return 0, err
	}
	return c.cache.chi2, nil
}

// UnpenalizedVal is Val without constraint penalties. Divided by the
// degrees of freedom it scales the covariance to parameter errors.
func (c *LeastSquares) UnpenalizedVal() (float64, error) {
	if _, err := c.Val(); err != nil {
		return 0, err
	}
	return c.cache.raw, nil
}

func (c *LeastSquares) Gradient() []float64 { return c.cache.grad }

func (c *LeastSquares) Hessian() *mat.SymDense { return c.cache.hess }

func (c *LeastSquares) cached(evalDeriv, evalHessian bool) bool {
	s := &c.cache
	return s.valGen == c.gen &&
		(!evalDeriv || s.derivGen == c.gen) &&
		(!evalHessian || s.hessGen == c.gen)
}

func (c *LeastSquares) ValDerivHessian(evalDeriv, evalHessian bool) (float64, error) {
	if c.fn == nil {
		return 0, errors.NewRuntimeError(c.kind(), "no fitting function set", nil)
	}
	c.sync()
	if evalHessian {
		evalDeriv = true
	}
	if c.cached(evalDeriv, evalHessian) {
		return c.cache.value, nil
	}

	if err := c.fn.ApplyTies(); err != nil {
		return 0, err
	}
	p := &pass{
		evalDeriv:   evalDeriv,
		evalHessian: evalHessian,
		acc:         newAccumulator(len(c.active), evalDeriv, evalHessian),
	}
	if evalDeriv {
		tie, err := function.TieJacobian(c.fn, c.active)
		if err != nil {
			return 0, err
		}
		p.tie = tie
	}

	var err error
	if c.source != nil {
		err = c.source.accumulate(c, p)
	} else {
		err = c.evalBlock(c.domain, c.values, p, p.acc)
	}
	if err != nil {
		return 0, err
	}
	c.finish(p)
	c.evaluations++

	c.logger.Debug("Cost function evaluated",
		log.CostKey, c.cache.value,
		log.ChiSquaredKey, c.cache.chi2,
		"deriv", evalDeriv,
		"hessian", evalHessian,
	)
	return c.cache.value, nil
}

// evalBlock adds the contribution of one domain to acc. It only reads the
// cost function, so ParDomain may call it from several goroutines when the
// fitting function's derivatives are analytic.
func (c *LeastSquares) evalBlock(d domain.FunctionDomain, v *domain.FunctionValues, p *pass, acc *accumulator) error {
	if v == nil {
		return errors.NewRuntimeError(c.kind(), "undefined FunctionValues.", nil)
	}
	if err := c.fn.Function(d, v); err != nil {
		return err
	}
	y, w, calc := v.FitDataSlice(), v.FitWeightsSlice(), v.CalculatedSlice()
	for i := range calc {
		r := y[i] - calc[i]
		acc.val += w[i] * r * r
		acc.norm += w[i] * y[i] * y[i]
	}
	if !p.evalDeriv || p.tie == nil {
		return nil
	}

	ja, err := c.activeJacobian(d, len(calc), p.tie)
	if err != nil {
		return err
	}
	_, na := ja.Dims()
	for i := range calc {
		coeff := -2 * w[i] * (y[i] - calc[i])
		if coeff == 0 {
			continue
		}
		for k := 0; k < na; k++ {
			acc.grad[k] += coeff * ja.At(i, k)
		}
	}
	if p.evalHessian {
		for i := range calc {
			s := math.Sqrt(w[i])
			for k := 0; k < na; k++ {
				ja.Set(i, k, s*ja.At(i, k))
			}
		}
		acc.hess.SymRankK(acc.hess, 2, ja.T())
	}
	return nil
}

// activeJacobian returns df/dp over the active parameters of d's n points.
func (c *LeastSquares) activeJacobian(d domain.FunctionDomain, n int, tie *mat.Dense) (*mat.Dense, error) {
	j := domain.NewJacobianMatrix(n, c.fn.NParams())
	if err := c.fn.FunctionDeriv(d, j); err != nil {
		return nil, err
	}
	var ja mat.Dense
	ja.Mul(j.Matrix(), tie)
	return &ja, nil
}

func (c *LeastSquares) finish(p *pass) {
	acc := p.acc
	val := acc.val
	if c.rwp && acc.norm > 0 {
		scale := 1 / acc.norm
		val *= scale
		if acc.grad != nil {
			floats.Scale(scale, acc.grad)
		}
		if acc.hess != nil {
			acc.hess.ScaleSym(scale, acc.hess)
		}
	}
	c.cache.raw = val
	if c.includePenalty {
		c.cache.value = val + c.addPenalty(p.tie, acc.grad, acc.hess)
	} else {
		c.cache.value = val
	}
	c.cache.chi2 = acc.val
	c.cache.valGen = c.gen
	if p.evalDeriv {
		c.cache.grad = acc.grad
		c.cache.derivGen = c.gen
	}
	if p.evalHessian {
		c.cache.hess = acc.hess
		c.cache.hessGen = c.gen
	}
}

// addPenalty returns the total penalty and adds its first and second
// derivatives to grad and hess when they are not nil.
func (c *LeastSquares) addPenalty(tie *mat.Dense, grad []float64, hess *mat.SymDense) float64 {
	var total float64
	c.fn.ForEachConstraint(func(i int, bc *function.BoundaryConstraint) {
		total += bc.Check()
		if grad == nil || tie == nil {
			return
		}
		d1 := bc.CheckDeriv()
		for k := range grad {
			grad[k] += d1 * tie.At(i, k)
		}
		d2 := bc.CheckDeriv2()
		if hess == nil || d2 == 0 {
			return
		}
		for k := range grad {
			tk := tie.At(i, k)
			if tk == 0 {
				continue
			}
			for l := k; l < len(grad); l++ {
				hess.SetSym(k, l, hess.At(k, l)+d2*tk*tie.At(i, l))
			}
		}
	})
	return total
}

func (c *LeastSquares) nPenaltyRows() int {
	if !c.includePenalty || c.fn == nil {
		return 0
	}
	n := 0
	c.fn.ForEachConstraint(func(int, *function.BoundaryConstraint) { n++ })
	return n
}

// NResiduals is NData plus one row per constraint when penalties are included.
func (c *LeastSquares) NResiduals() int {
	return c.NData() + c.nPenaltyRows()
}

// eachBlock visits every sub-domain in order with its row offset.
func (c *LeastSquares) eachBlock(visit func(d domain.FunctionDomain, v *domain.FunctionValues, offset int) error) error {
	if c.source == nil {
		return visit(c.domain, c.values, 0)
	}
	offset := 0
	for i := 0; i < c.source.NDomains(); i++ {
		d, v, err := c.source.DomainAndValues(i)
		if err != nil {
			return err
		}
		if v == nil {
			return errors.NewRuntimeError(c.kind(), "undefined FunctionValues.", nil)
		}
		if err := visit(d, v, offset); err != nil {
			return err
		}
		offset += v.Size()
	}
	return nil
}

// EachEvaluated evaluates the fitting function over every block of data in
// order and passes the values, with their calculated part filled, to visit.
func (c *LeastSquares) EachEvaluated(visit func(v *domain.FunctionValues) error) error {
	if c.fn == nil {
		return errors.NewRuntimeError(c.kind(), "no fitting function set", nil)
	}
	if err := c.fn.ApplyTies(); err != nil {
		return err
	}
	return c.eachBlock(func(d domain.FunctionDomain, v *domain.FunctionValues, _ int) error {
		if v == nil {
			return errors.NewRuntimeError(c.kind(), "undefined FunctionValues.", nil)
		}
		if err := c.fn.Function(d, v); err != nil {
			return err
		}
		return visit(v)
	})
}

// Residuals implements ResidualFunction. Data rows hold sqrt(w)(f - y);
// each constraint adds a row whose square is its penalty.
func (c *LeastSquares) Residuals(r []float64, jac *mat.Dense) error {
	if c.fn == nil {
		return errors.NewRuntimeError(c.kind(), "no fitting function set", nil)
	}
	c.sync()
	n, na := c.NResiduals(), len(c.active)
	if len(r) != n {
		return errors.NewDimensionError(c.kind()+".Residuals", n, len(r))
	}
	if jac != nil {
		if rows, cols := jac.Dims(); rows != n || cols != na {
			return errors.NewDimensionError(c.kind()+".Residuals", n*na, rows*cols)
		}
	}
	if err := c.fn.ApplyTies(); err != nil {
		return err
	}
	var tie *mat.Dense
	if jac != nil {
		var err error
		if tie, err = function.TieJacobian(c.fn, c.active); err != nil {
			return err
		}
	}

	var norm float64
	nData := 0
	err := c.eachBlock(func(d domain.FunctionDomain, v *domain.FunctionValues, offset int) error {
		if err := c.fn.Function(d, v); err != nil {
			return err
		}
		y, w, calc := v.FitDataSlice(), v.FitWeightsSlice(), v.CalculatedSlice()
		for i := range calc {
			r[offset+i] = math.Sqrt(w[i]) * (calc[i] - y[i])
			norm += w[i] * y[i] * y[i]
		}
		nData = offset + len(calc)
		if tie == nil {
			return nil
		}
		ja, err := c.activeJacobian(d, len(calc), tie)
		if err != nil {
			return err
		}
		for i := range calc {
			s := math.Sqrt(w[i])
			for k := 0; k < na; k++ {
				jac.Set(offset+i, k, s*ja.At(i, k))
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	if c.rwp && norm > 0 {
		scale := 1 / math.Sqrt(norm)
		floats.Scale(scale, r[:nData])
		if jac != nil {
			for i := 0; i < nData; i++ {
				for k := 0; k < na; k++ {
					jac.Set(i, k, scale*jac.At(i, k))
				}
			}
		}
	}

	if !c.includePenalty {
		return nil
	}
	row := nData
	c.fn.ForEachConstraint(func(i int, bc *function.BoundaryConstraint) {
		rho := math.Sqrt(bc.Check())
		r[row] = rho
		if jac != nil {
			for k := 0; k < na; k++ {
				var d float64
				if rho > 0 && tie != nil {
					d = bc.CheckDeriv() / (2 * rho) * tie.At(i, k)
				}
				jac.Set(row, k, d)
			}
		}
		row++
	})
	return nil
}

// Push implements HessianFunction.
func (c *LeastSquares) Push() {
	c.sync()
	s := c.cache
	s.grad = slices.Clone(c.cache.grad)
	if c.cache.hess != nil {
		s.hess = mat.NewSymDense(c.cache.hess.SymmetricDim(), nil)
		s.hess.CopySym(c.cache.hess)
	}
	s.params = make([]float64, len(c.active))
	for k, i := range c.active {
		s.params[k] = c.fn.Parameter(i)
	}
	s.gen = c.gen
	c.stack = append(c.stack, s)
}

// Pop implements HessianFunction. The parameters and the results that were
// current at the matching Push are restored without re-evaluating.
func (c *LeastSquares) Pop() error {
	s, err := c.top()
	if err != nil {
		return err
	}
	for k, i := range c.active {
		c.fn.SetParameter(i, s.params[k])
	}
	c.Invalidate()
	restored := snapshot{value: s.value, chi2: s.chi2, raw: s.raw, grad: s.grad, hess: s.hess}
	if s.valGen == s.gen {
		restored.valGen = c.gen
	}
	if s.derivGen == s.gen {
		restored.derivGen = c.gen
	}
	if s.hessGen == s.gen {
		restored.hessGen = c.gen
	}
	c.cache = restored
	return c.fn.ApplyTies()
}

// Drop implements HessianFunction.
func (c *LeastSquares) Drop() error {
	_, err := c.top()
	return err
}

func (c *LeastSquares) top() (snapshot, error) {
	c.sync()
	if len(c.stack) == 0 {
		return snapshot{}, errors.NewRuntimeError(c.kind(), "cost function stack is empty", nil)
	}
	s := c.stack[len(c.stack)-1]
	c.stack = c.stack[:len(c.stack)-1]
	return s, nil
}

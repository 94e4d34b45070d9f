package function

import (
	"math"
	"strconv"
	"strings"

	"github.com/YuminosukeSato/scifit/pkg/errors"
)

// DefaultPenaltyFactor scales the quadratic penalty of a new constraint.
const DefaultPenaltyFactor = 1000.0

// BoundaryConstraint keeps one parameter within [lower, upper] by adding
// penaltyFactor * d^2 to the cost, where d is the distance beyond the
// violated bound. The penalty and its first derivative are zero at the
// boundary, so the cost surface stays smooth.
type BoundaryConstraint struct {
	fn            ParameterSet
	index         int
	lower         float64
	upper         float64
	hasLower      bool
	hasUpper      bool
	penaltyFactor float64
}

func newConstraint(fn ParameterSet, name string) (*BoundaryConstraint, error) {
	i, err := fn.ParameterIndex(name)
	if err != nil {
		return nil, err
	}
	return &BoundaryConstraint{fn: fn, index: i, penaltyFactor: DefaultPenaltyFactor}, nil
}

// NewBoundaryConstraint bounds the named parameter on both sides.
func NewBoundaryConstraint(fn ParameterSet, name string, lower, upper float64) (*BoundaryConstraint, error) {
	if lower > upper {
		return nil, errors.NewValueErrorf("BoundaryConstraint", "lower bound %g is greater than upper bound %g", lower, upper)
	}
	c, err := newConstraint(fn, name)
	if err != nil {
		return nil, err
	}
	c.lower, c.hasLower = lower, true
	c.upper, c.hasUpper = upper, true
	return c, nil
}

// NewLowerBoundConstraint bounds the named parameter from below.
func NewLowerBoundConstraint(fn ParameterSet, name string, lower float64) (*BoundaryConstraint, error) {
	c, err := newConstraint(fn, name)
	if err != nil {
		return nil, err
	}
	c.lower, c.hasLower = lower, true
	return c, nil
}

// NewUpperBoundConstraint bounds the named parameter from above.
func NewUpperBoundConstraint(fn ParameterSet, name string, upper float64) (*BoundaryConstraint, error) {
	c, err := newConstraint(fn, name)
	if err != nil {
		return nil, err
	}
	c.upper, c.hasUpper = upper, true
	return c, nil
}

// ParseBoundaryConstraint builds a constraint from a comparison such as
// "10<Sigma<20", "Sigma<20", "0<=Height" or "20>Sigma>10".
// Equalities and unknown parameter names are rejected with a ValueError.
func ParseBoundaryConstraint(fn ParameterSet, expression string) (*BoundaryConstraint, error) {
	const op = "ParseBoundaryConstraint"
	s := strings.ReplaceAll(strings.TrimSpace(expression), " ", "")
	if s == "" {
		return nil, errors.NewValueError(op, "empty constraint expression")
	}
	if strings.Contains(s, "==") {
		return nil, errors.NewValueErrorf(op, "equality is not a boundary constraint: '%s'", expression)
	}

	terms, ops, err := splitComparison(s)
	if err != nil {
		return nil, errors.NewValueErrorf(op, "%v in '%s'", err, expression)
	}

	var lower, upper *float64
	var name string
	switch len(terms) {
	case 2:
		// a<Name, Name<b, a>Name, Name>b
		if v, err := strconv.ParseFloat(terms[0], 64); err == nil {
			name = terms[1]
			if ops[0] == '<' {
				lower = &v
			} else {
				upper = &v
			}
		} else if v, err := strconv.ParseFloat(terms[1], 64); err == nil {
			name = terms[0]
			if ops[0] == '<' {
				upper = &v
			} else {
				lower = &v
			}
		} else {
			return nil, errors.NewValueErrorf(op, "no numeric bound in '%s'", expression)
		}
	case 3:
		if ops[0] != ops[1] {
			return nil, errors.NewValueErrorf(op, "inconsistent comparison directions in '%s'", expression)
		}
		a, errA := strconv.ParseFloat(terms[0], 64)
		b, errB := strconv.ParseFloat(terms[2], 64)
		if errA != nil || errB != nil {
			return nil, errors.NewValueErrorf(op, "bounds must be numbers in '%s'", expression)
		}
		name = terms[1]
		if ops[0] == '>' {
			a, b = b, a
		}
		lower, upper = &a, &b
	default:
		return nil, errors.NewValueErrorf(op, "cannot parse '%s'", expression)
	}

	c, err := newConstraint(fn, name)
	if err != nil {
		if errors.IsNotFound(err) {
			return nil, errors.NewValueErrorf(op, "unknown parameter '%s' in '%s'", name, expression)
		}
		return nil, err
	}
	if lower != nil {
		c.lower, c.hasLower = *lower, true
	}
	if upper != nil {
		c.upper, c.hasUpper = *upper, true
	}
	if c.hasLower && c.hasUpper && c.lower > c.upper {
		return nil, errors.NewValueErrorf(op, "lower bound %g is greater than upper bound %g", c.lower, c.upper)
	}
	return c, nil
}

// splitComparison splits on <, <=, > and >=, returning operands and the
// direction of each operator.
func splitComparison(s string) ([]string, []byte, error) {
	var terms []string
	var ops []byte
	start := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '<', '>':
			terms = append(terms, s[start:i])
			ops = append(ops, s[i])
			if i+1 < len(s) && s[i+1] == '=' {
				i++
			}
			start = i + 1
		case '=':
			return nil, nil, errors.New("unexpected '='")
		}
	}
	terms = append(terms, s[start:])
	for _, t := range terms {
		if t == "" {
			return nil, nil, errors.New("missing operand")
		}
	}
	if len(ops) == 0 {
		return nil, nil, errors.New("no comparison operator")
	}
	return terms, ops, nil
}

// ParameterIndex is the constrained parameter's index in its function.
func (c *BoundaryConstraint) ParameterIndex() int { return c.index }

// ParameterName is the constrained parameter's name.
func (c *BoundaryConstraint) ParameterName() string { return c.fn.ParameterName(c.index) }

// Reset rebinds the constraint, used when a composite reindexes parameters.
func (c *BoundaryConstraint) Reset(fn ParameterSet, index int) {
	c.fn = fn
	c.index = index
}

func (c *BoundaryConstraint) HasLower() bool { return c.hasLower }
func (c *BoundaryConstraint) HasUpper() bool { return c.hasUpper }
func (c *BoundaryConstraint) Lower() float64 { return c.lower }
func (c *BoundaryConstraint) Upper() float64 { return c.upper }

// SetLower sets the lower bound.
func (c *BoundaryConstraint) SetLower(v float64) error {
	if c.hasUpper && v > c.upper {
		return errors.NewValueErrorf("BoundaryConstraint.SetLower", "lower bound %g is greater than upper bound %g", v, c.upper)
	}
	c.lower, c.hasLower = v, true
	return nil
}

// SetUpper sets the upper bound.
func (c *BoundaryConstraint) SetUpper(v float64) error {
	if c.hasLower && v < c.lower {
		return errors.NewValueErrorf("BoundaryConstraint.SetUpper", "upper bound %g is less than lower bound %g", v, c.lower)
	}
	c.upper, c.hasUpper = v, true
	return nil
}

// PenaltyFactor returns the penalty scale.
func (c *BoundaryConstraint) PenaltyFactor() float64 { return c.penaltyFactor }

// SetPenaltyFactor sets the penalty scale. Non-positive values are rejected.
func (c *BoundaryConstraint) SetPenaltyFactor(f float64) error {
	if !(f > 0) || math.IsInf(f, 0) {
		return errors.NewValidationError("PenaltyFactor", "must be a positive finite number", f)
	}
	c.penaltyFactor = f
	return nil
}

// Check returns the penalty for the current parameter value.
func (c *BoundaryConstraint) Check() float64 {
	p := c.fn.Parameter(c.index)
	switch {
	case c.hasLower && p < c.lower:
		d := c.lower - p
		return c.penaltyFactor * d * d
	case c.hasUpper && p > c.upper:
		d := p - c.upper
		return c.penaltyFactor * d * d
	}
	return 0
}

// CheckDeriv returns d(penalty)/d(parameter).
func (c *BoundaryConstraint) CheckDeriv() float64 {
	p := c.fn.Parameter(c.index)
	switch {
	case c.hasLower && p < c.lower:
		return -2 * c.penaltyFactor * (c.lower - p)
	case c.hasUpper && p > c.upper:
		return 2 * c.penaltyFactor * (p - c.upper)
	}
	return 0
}

// CheckDeriv2 returns the second derivative of the penalty.
func (c *BoundaryConstraint) CheckDeriv2() float64 {
	p := c.fn.Parameter(c.index)
	if (c.hasLower && p < c.lower) || (c.hasUpper && p > c.upper) {
		return 2 * c.penaltyFactor
	}
	return 0
}

// SetParamToSatisfyConstraint clamps the parameter to the nearest bound.
func (c *BoundaryConstraint) SetParamToSatisfyConstraint() {
	p := c.fn.Parameter(c.index)
	if c.hasLower && p < c.lower {
		c.fn.SetParameter(c.index, c.lower)
	} else if c.hasUpper && p > c.upper {
		c.fn.SetParameter(c.index, c.upper)
	}
}

// String renders the constraint in the form ParseBoundaryConstraint reads.
func (c *BoundaryConstraint) String() string {
	name := c.ParameterName()
	format := func(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }
	switch {
	case c.hasLower && c.hasUpper:
		return format(c.lower) + "<" + name + "<" + format(c.upper)
	case c.hasLower:
		return format(c.lower) + "<" + name
	default:
		return name + "<" + format(c.upper)
	}
}

// constraintSet holds at most one constraint per parameter.
type constraintSet struct {
	constraints []*BoundaryConstraint
}

// add stores c on owner. A constraint built against another function is
// accepted only if its parameter has the same name and index in owner; it
// is then rebound to owner.
func (s *constraintSet) add(owner ParameterSet, c *BoundaryConstraint) error {
	if c.index < 0 || c.index >= owner.NParams() {
		return errors.NewRangeError("AddConstraint", c.index, owner.NParams())
	}
	if c.fn != owner {
		name := c.ParameterName()
		if i, err := owner.ParameterIndex(name); err != nil || i != c.index {
			return errors.NewValueErrorf("AddConstraint", "constraint on '%s' belongs to another function", name)
		}
		c.Reset(owner, c.index)
	}
	s.remove(c.index)
	s.constraints = append(s.constraints, c)
	return nil
}

func (s *constraintSet) get(i int) *BoundaryConstraint {
	for _, c := range s.constraints {
		if c.index == i {
			return c
		}
	}
	return nil
}

func (s *constraintSet) remove(i int) {
	for k, c := range s.constraints {
		if c.index == i {
			s.constraints = append(s.constraints[:k], s.constraints[k+1:]...)
			return
		}
	}
}

func (s *constraintSet) visit(offset int, visit func(int, *BoundaryConstraint)) {
	for _, c := range s.constraints {
		visit(offset+c.index, c)
	}
}

func (s *constraintSet) remap(owner ParameterSet, move func(int) (int, bool)) {
	kept := s.constraints[:0]
	for _, c := range s.constraints {
		if idx, ok := move(c.index); ok {
			c.Reset(owner, idx)
			kept = append(kept, c)
		}
	}
	s.constraints = kept
}

// AddConstraints parses a comma separated list of comparisons and adds
// them to f, e.g. "10<Sigma<20, Height>0".
func AddConstraints(f Parametric, constraints string) error {
	for _, part := range splitTopLevel(constraints, ',') {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		c, err := ParseBoundaryConstraint(f, part)
		if err != nil {
			return err
		}
		if err := f.AddConstraint(c); err != nil {
			return err
		}
	}
	return nil
}

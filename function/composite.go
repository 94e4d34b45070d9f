package function

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/YuminosukeSato/scifit/domain"
	"github.com/YuminosukeSato/scifit/pkg/errors"
)

// CompositeFunction is the sum of its members evaluated over the same domain.
// Member k's parameter j has the global index offset(k)+j and the name
// "f<k>.<name>". The composite owns its members.
type CompositeFunction struct {
	members     []Function
	offsets     []int
	ties        tieSet
	constraints constraintSet
}

// NewCompositeFunction creates a composite of members.
func NewCompositeFunction(members ...Function) *CompositeFunction {
	c := &CompositeFunction{offsets: []int{0}}
	for _, m := range members {
		c.AddFunction(m)
	}
	return c
}

func (c *CompositeFunction) Name() string { return "CompositeFunction" }

// AddFunction appends a member and returns its index.
func (c *CompositeFunction) AddFunction(f Function) int {
	c.members = append(c.members, f)
	c.updateOffsets()
	return len(c.members) - 1
}

// RemoveFunction removes member i. Composite-level ties and constraints that
// refer to the removed member are dropped; the rest are reindexed.
func (c *CompositeFunction) RemoveFunction(i int) error {
	if i < 0 || i >= len(c.members) {
		return errors.NewRangeError("CompositeFunction.RemoveFunction", i, len(c.members))
	}
	lo, hi := c.offsets[i], c.offsets[i+1]
	width := hi - lo
	move := func(k int) (int, bool) {
		switch {
		case k < lo:
			return k, true
		case k >= hi:
			return k - width, true
		}
		return 0, false
	}
	c.members = append(c.members[:i], c.members[i+1:]...)
	c.updateOffsets()
	c.ties.remap(move)
	c.constraints.remap(c, move)
	return nil
}

// ReplaceFunction swaps member i for f. If the parameter count changes,
// composite-level ties and constraints on member i are dropped.
func (c *CompositeFunction) ReplaceFunction(i int, f Function) error {
	if i < 0 || i >= len(c.members) {
		return errors.NewRangeError("CompositeFunction.ReplaceFunction", i, len(c.members))
	}
	lo, hi := c.offsets[i], c.offsets[i+1]
	delta := f.NParams() - (hi - lo)
	c.members[i] = f
	if delta == 0 {
		return nil
	}
	move := func(k int) (int, bool) {
		switch {
		case k < lo:
			return k, true
		case k >= hi:
			return k + delta, true
		}
		return 0, false
	}
	c.updateOffsets()
	c.ties.remap(move)
	c.constraints.remap(c, move)
	return nil
}

func (c *CompositeFunction) updateOffsets() {
	c.offsets = make([]int, len(c.members)+1)
	for k, m := range c.members {
		c.offsets[k+1] = c.offsets[k] + m.NParams()
	}
}

// NFunctions implements Container.
func (c *CompositeFunction) NFunctions() int { return len(c.members) }

// FunctionAt implements Container.
func (c *CompositeFunction) FunctionAt(i int) Function { return c.members[i] }

// ParameterOffset is the global index of member i's first parameter.
func (c *CompositeFunction) ParameterOffset(i int) int { return c.offsets[i] }

// memberOf maps a global parameter index to (member, local index).
func (c *CompositeFunction) memberOf(i int) (int, int) {
	if i < 0 || i >= c.NParams() {
		panic(fmt.Sprintf("scifit: parameter index %d out of range [0, %d)", i, c.NParams()))
	}
	// offsets is sorted; members are few, so a linear scan is enough
	for k := 0; k < len(c.members); k++ {
		if i < c.offsets[k+1] {
			return k, i - c.offsets[k]
		}
	}
	panic("unreachable")
}

func (c *CompositeFunction) NParams() int {
	if len(c.offsets) == 0 {
		return 0
	}
	return c.offsets[len(c.offsets)-1]
}

func (c *CompositeFunction) Parameter(i int) float64 {
	k, j := c.memberOf(i)
	return c.members[k].Parameter(j)
}

func (c *CompositeFunction) SetParameter(i int, value float64) {
	k, j := c.memberOf(i)
	c.members[k].SetParameter(j, value)
}

func (c *CompositeFunction) ParameterName(i int) string {
	k, j := c.memberOf(i)
	return "f" + strconv.Itoa(k) + "." + c.members[k].ParameterName(j)
}

func (c *CompositeFunction) ParameterIndex(name string) (int, error) {
	dot := strings.IndexByte(name, '.')
	if len(name) < 2 || name[0] != 'f' || dot < 0 {
		return -1, errors.NewNotFoundError("parameter", name)
	}
	k, err := strconv.Atoi(name[1:dot])
	if err != nil || k < 0 || k >= len(c.members) {
		return -1, errors.NewNotFoundError("parameter", name)
	}
	j, err := c.members[k].ParameterIndex(name[dot+1:])
	if err != nil {
		return -1, errors.NewNotFoundError("parameter", name)
	}
	return c.offsets[k] + j, nil
}

func (c *CompositeFunction) ParameterError(i int) float64 {
	k, j := c.memberOf(i)
	return c.members[k].ParameterError(j)
}

func (c *CompositeFunction) SetParameterError(i int, err float64) {
	k, j := c.memberOf(i)
	c.members[k].SetParameterError(j, err)
}

func (c *CompositeFunction) IsFixed(i int) bool {
	k, j := c.memberOf(i)
	return c.members[k].IsFixed(j)
}

func (c *CompositeFunction) Fix(i int) {
	k, j := c.memberOf(i)
	c.members[k].Fix(j)
}

func (c *CompositeFunction) Unfix(i int) {
	k, j := c.memberOf(i)
	c.members[k].Unfix(j)
}

func (c *CompositeFunction) IsTied(i int) bool {
	if c.ties.get(i) != nil {
		return true
	}
	k, j := c.memberOf(i)
	return c.members[k].IsTied(j)
}

func (c *CompositeFunction) IsActive(i int) bool {
	return !c.IsFixed(i) && !c.IsTied(i)
}

// Tie ties a parameter at composite level. A member-level tie on the same
// parameter is replaced. Cycles through member ties are rejected.
func (c *CompositeFunction) Tie(name, expression string) (*Tie, error) {
	i, err := c.ParameterIndex(name)
	if err != nil {
		return nil, err
	}
	t, err := NewTie(c, i, expression)
	if err != nil {
		return nil, err
	}
	candidate := []boundTie{bind(t, 0)}
	for _, b := range c.boundTies(0, nil) {
		if b.index != i {
			candidate = append(candidate, b)
		}
	}
	if _, err := orderBound(candidate); err != nil {
		return nil, err
	}
	if err := c.ties.set(t); err != nil {
		return nil, err
	}
	k, j := c.memberOf(i)
	c.members[k].RemoveTie(j)
	return t, nil
}

func (c *CompositeFunction) RemoveTie(i int) {
	c.ties.remove(i)
	k, j := c.memberOf(i)
	c.members[k].RemoveTie(j)
}

func (c *CompositeFunction) GetTie(i int) *Tie {
	if t := c.ties.get(i); t != nil {
		return t
	}
	k, j := c.memberOf(i)
	return c.members[k].GetTie(j)
}

// Ties returns the composite-level ties in evaluation order.
func (c *CompositeFunction) Ties() []*Tie { return c.ties.all() }

// ApplyTies applies the ties of the composite and all its members in one
// dependency order, so a member tie reading a parameter set by a
// composite-level tie sees the new value.
func (c *CompositeFunction) ApplyTies() error {
	ordered, err := orderBound(c.boundTies(0, nil))
	if err != nil {
		return err
	}
	for _, b := range ordered {
		if err := b.tie.Apply(); err != nil {
			return err
		}
	}
	return nil
}

// boundTies appends every tie in the tree with indices shifted by offset.
func (c *CompositeFunction) boundTies(offset int, out []boundTie) []boundTie {
	for k, m := range c.members {
		switch m := m.(type) {
		case interface {
			boundTies(int, []boundTie) []boundTie
		}:
			out = m.boundTies(offset+c.offsets[k], out)
		case interface{ Ties() []*Tie }:
			for _, t := range m.Ties() {
				out = append(out, bind(t, offset+c.offsets[k]))
			}
		}
	}
	for _, t := range c.ties.all() {
		out = append(out, bind(t, offset))
	}
	return out
}

func (c *CompositeFunction) AddConstraint(bc *BoundaryConstraint) error {
	return c.constraints.add(c, bc)
}

func (c *CompositeFunction) RemoveConstraint(i int) {
	c.constraints.remove(i)
	k, j := c.memberOf(i)
	c.members[k].RemoveConstraint(j)
}

func (c *CompositeFunction) GetConstraint(i int) *BoundaryConstraint {
	if bc := c.constraints.get(i); bc != nil {
		return bc
	}
	k, j := c.memberOf(i)
	return c.members[k].GetConstraint(j)
}

func (c *CompositeFunction) ForEachConstraint(visit func(int, *BoundaryConstraint)) {
	for k, m := range c.members {
		offset := c.offsets[k]
		m.ForEachConstraint(func(i int, bc *BoundaryConstraint) {
			visit(offset+i, bc)
		})
	}
	c.constraints.visit(0, visit)
}

// Function implements Function.
func (c *CompositeFunction) Function(d domain.FunctionDomain, v *domain.FunctionValues) error {
	v.ZeroCalculated()
	tmp := domain.NewFunctionValues(d)
	for k, m := range c.members {
		if err := m.Function(d, tmp); err != nil {
			return errors.Wrapf(err, "member f%d (%s)", k, m.Name())
		}
		if err := v.AddCalculated(tmp); err != nil {
			return err
		}
	}
	return nil
}

// FunctionDeriv implements Function. Members write disjoint column blocks.
func (c *CompositeFunction) FunctionDeriv(d domain.FunctionDomain, j domain.Jacobian) error {
	for k, m := range c.members {
		block := domain.NewPartialJacobian(j, 0, c.offsets[k], d.Size(), m.NParams())
		if err := m.FunctionDeriv(d, block); err != nil {
			return errors.Wrapf(err, "member f%d (%s)", k, m.Name())
		}
	}
	return nil
}

func (c *CompositeFunction) ownConstraints() []*BoundaryConstraint {
	return c.constraints.constraints
}

package function

import (
	"github.com/YuminosukeSato/scifit/pkg/errors"
)

// ParamFunction stores the parameters of a leaf model. Concrete models
// embed it, declare their parameters in the constructor and add the
// evaluation methods.
type ParamFunction struct {
	names        []string
	descriptions []string
	values       []float64
	errs         []float64
	fixed        []bool
	ties         tieSet
	constraints  constraintSet
}

// DeclareParameter appends a parameter. Declaring a name twice panics since
// it is a programming error in the model's constructor.
func (p *ParamFunction) DeclareParameter(name string, initial float64, description string) {
	for _, n := range p.names {
		if n == name {
			panic("scifit: parameter " + name + " declared twice")
		}
	}
	p.names = append(p.names, name)
	p.descriptions = append(p.descriptions, description)
	p.values = append(p.values, initial)
	p.errs = append(p.errs, 0)
	p.fixed = append(p.fixed, false)
}

func (p *ParamFunction) NParams() int { return len(p.values) }

func (p *ParamFunction) Parameter(i int) float64 { return p.values[i] }

func (p *ParamFunction) SetParameter(i int, value float64) { p.values[i] = value }

func (p *ParamFunction) ParameterName(i int) string { return p.names[i] }

// ParameterDescription returns the text given at declaration.
func (p *ParamFunction) ParameterDescription(i int) string { return p.descriptions[i] }

func (p *ParamFunction) ParameterIndex(name string) (int, error) {
	for i, n := range p.names {
		if n == name {
			return i, nil
		}
	}
	return -1, errors.NewNotFoundError("parameter", name)
}

func (p *ParamFunction) ParameterError(i int) float64 { return p.errs[i] }

func (p *ParamFunction) SetParameterError(i int, err float64) { p.errs[i] = err }

func (p *ParamFunction) IsFixed(i int) bool { return p.fixed[i] }

func (p *ParamFunction) Fix(i int) { p.fixed[i] = true }

func (p *ParamFunction) Unfix(i int) { p.fixed[i] = false }

func (p *ParamFunction) IsTied(i int) bool { return p.ties.get(i) != nil }

func (p *ParamFunction) IsActive(i int) bool { return !p.fixed[i] && !p.IsTied(i) }

func (p *ParamFunction) Tie(name, expression string) (*Tie, error) {
	i, err := p.ParameterIndex(name)
	if err != nil {
		return nil, err
	}
	t, err := NewTie(p, i, expression)
	if err != nil {
		return nil, err
	}
	if err := p.ties.set(t); err != nil {
		return nil, err
	}
	return t, nil
}

func (p *ParamFunction) RemoveTie(i int) { p.ties.remove(i) }

func (p *ParamFunction) GetTie(i int) *Tie { return p.ties.get(i) }

// Ties returns the ties in evaluation order.
func (p *ParamFunction) Ties() []*Tie { return p.ties.all() }

func (p *ParamFunction) ApplyTies() error { return p.ties.apply() }

func (p *ParamFunction) AddConstraint(c *BoundaryConstraint) error {
	return p.constraints.add(p, c)
}

func (p *ParamFunction) RemoveConstraint(i int) { p.constraints.remove(i) }

func (p *ParamFunction) GetConstraint(i int) *BoundaryConstraint { return p.constraints.get(i) }

func (p *ParamFunction) ForEachConstraint(visit func(int, *BoundaryConstraint)) {
	p.constraints.visit(0, visit)
}

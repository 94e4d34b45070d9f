package function

import (
	"sort"

	"github.com/YuminosukeSato/scifit/domain"
	"github.com/YuminosukeSato/scifit/pkg/errors"
)

// MultiDomainFunction binds each member to one or more parts of a
// CompositeDomain. A member contributes only to the parts it is bound to,
// which is how several spectra are fitted at once with shared parameters
// expressed as ties. A member with no binding contributes to every part.
type MultiDomainFunction struct {
	CompositeFunction
	domains map[int][]int
}

// NewMultiDomainFunction creates an empty multi-domain function.
func NewMultiDomainFunction() *MultiDomainFunction {
	return &MultiDomainFunction{
		CompositeFunction: CompositeFunction{offsets: []int{0}},
		domains:           make(map[int][]int),
	}
}

func (m *MultiDomainFunction) Name() string { return "MultiDomainFunction" }

// SetDomainIndices binds member i to the given domain parts.
func (m *MultiDomainFunction) SetDomainIndices(i int, parts ...int) error {
	if i < 0 || i >= m.NFunctions() {
		return errors.NewRangeError("MultiDomainFunction.SetDomainIndices", i, m.NFunctions())
	}
	for _, p := range parts {
		if p < 0 {
			return errors.NewValueErrorf("MultiDomainFunction.SetDomainIndices", "negative domain index %d", p)
		}
	}
	idx := append([]int(nil), parts...)
	sort.Ints(idx)
	m.domains[i] = idx
	return nil
}

// ClearDomainIndices binds member i to every part.
func (m *MultiDomainFunction) ClearDomainIndices(i int) { delete(m.domains, i) }

// DomainIndices returns member i's parts for a domain with nParts parts.
func (m *MultiDomainFunction) DomainIndices(i, nParts int) []int {
	if idx, ok := m.domains[i]; ok {
		return idx
	}
	all := make([]int, nParts)
	for k := range all {
		all[k] = k
	}
	return all
}

// MaxDomainIndex is the largest explicitly bound part, or -1.
func (m *MultiDomainFunction) MaxDomainIndex() int {
	top := -1
	for _, idx := range m.domains {
		if len(idx) > 0 && idx[len(idx)-1] > top {
			top = idx[len(idx)-1]
		}
	}
	return top
}

// RemoveFunction removes member i and shifts the bindings of later members.
func (m *MultiDomainFunction) RemoveFunction(i int) error {
	if err := m.CompositeFunction.RemoveFunction(i); err != nil {
		return err
	}
	shifted := make(map[int][]int, len(m.domains))
	for k, idx := range m.domains {
		switch {
		case k < i:
			shifted[k] = idx
		case k > i:
			shifted[k-1] = idx
		}
	}
	m.domains = shifted
	return nil
}

func (m *MultiDomainFunction) composite(d domain.FunctionDomain) (domain.CompositeDomain, error) {
	cd, ok := d.(domain.CompositeDomain)
	if !ok {
		return nil, errors.NewValueError("MultiDomainFunction", "a composite domain is required")
	}
	if top := m.MaxDomainIndex(); top >= cd.NParts() {
		return nil, errors.NewRangeError("MultiDomainFunction", top, cd.NParts())
	}
	return cd, nil
}

// Function implements Function.
func (m *MultiDomainFunction) Function(d domain.FunctionDomain, v *domain.FunctionValues) error {
	cd, err := m.composite(d)
	if err != nil {
		return err
	}
	v.ZeroCalculated()
	for k, member := range m.members {
		for _, p := range m.DomainIndices(k, cd.NParts()) {
			part := cd.Part(p)
			tmp := domain.NewFunctionValues(part)
			if err := member.Function(part, tmp); err != nil {
				return errors.Wrapf(err, "member f%d on domain %d", k, p)
			}
			if err := v.AddCalculatedAt(cd.Offset(p), tmp); err != nil {
				return err
			}
		}
	}
	return nil
}

// FunctionDeriv implements Function.
func (m *MultiDomainFunction) FunctionDeriv(d domain.FunctionDomain, j domain.Jacobian) error {
	cd, err := m.composite(d)
	if err != nil {
		return err
	}
	j.Zero()
	for k, member := range m.members {
		for _, p := range m.DomainIndices(k, cd.NParts()) {
			part := cd.Part(p)
			block := domain.NewPartialJacobian(j, cd.Offset(p), m.offsets[k], part.Size(), member.NParams())
			if err := member.FunctionDeriv(part, block); err != nil {
				return errors.Wrapf(err, "member f%d on domain %d", k, p)
			}
		}
	}
	return nil
}

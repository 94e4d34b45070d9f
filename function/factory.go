package function

import (
	"sort"
	"strconv"
	"strings"

	"github.com/YuminosukeSato/scifit/pkg/errors"
)

// Factory creates functions by name and from textual definitions such as
//
//	name=Gaussian,Height=2,PeakCentre=0,Sigma=1;name=LinearBackground,A0=0.1
//
// Members of a composite are separated by ';' and may be nested in
// parentheses. A definition may start with composite=<Name> to choose the
// container. Attributes of a member:
//
//	ties=(Sigma=2*Height)          member-level ties
//	constraints=(0<Sigma<10)       boundary constraints
//	$domains=1 | $domains=(0,2)    MultiDomainFunction binding
//
// A top-level "ties=(...)" or "constraints=(...)" item applies to the composite.
type Factory struct {
	makers map[string]func() Function
}

// NewFactory returns a factory with the built-in models registered.
func NewFactory() *Factory {
	f := &Factory{makers: make(map[string]func() Function)}
	f.Register("Gaussian", func() Function { return NewGaussian() })
	f.Register("Lorentzian", func() Function { return NewLorentzian() })
	f.Register("PseudoVoigt", func() Function { return NewPseudoVoigt() })
	f.Register("FlatBackground", func() Function { return NewFlatBackground() })
	f.Register("LinearBackground", func() Function { return NewLinearBackground() })
	f.Register("ExpDecay", func() Function { return NewExpDecay() })
	f.Register("CompositeFunction", func() Function { return NewCompositeFunction() })
	f.Register("MultiDomainFunction", func() Function { return NewMultiDomainFunction() })
	return f
}

// Register adds or replaces a constructor.
func (f *Factory) Register(name string, maker func() Function) {
	f.makers[name] = maker
}

// Names lists the registered functions in alphabetical order.
func (f *Factory) Names() []string {
	names := make([]string, 0, len(f.makers))
	for n := range f.makers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Create returns a new function with default parameters.
func (f *Factory) Create(name string) (Function, error) {
	maker, ok := f.makers[name]
	if !ok {
		return nil, errors.NewNotFoundError("function", name)
	}
	return maker(), nil
}

// CreateInitialized builds a function from its textual definition.
func (f *Factory) CreateInitialized(definition string) (Function, error) {
	def := strings.TrimSpace(definition)
	if def == "" {
		return nil, errors.NewValueError("Factory.CreateInitialized", "empty function definition")
	}
	items := splitTopLevel(def, ';')
	if len(items) == 1 && !strings.HasPrefix(strings.TrimSpace(items[0]), "composite=") {
		item := strings.TrimSpace(items[0])
		if isParenthesized(item) {
			return f.CreateInitialized(item[1 : len(item)-1])
		}
		fn, _, err := f.createLeaf(item)
		return fn, err
	}
	return f.createComposite(items)
}

type container interface {
	Function
	AddFunction(Function) int
}

func (f *Factory) createComposite(items []string) (Function, error) {
	const op = "Factory.CreateInitialized"
	compositeName := "CompositeFunction"
	first := strings.TrimSpace(items[0])
	var compositeAttrs []attr
	if strings.HasPrefix(first, "composite=") {
		attrs, err := parseAttrs(first)
		if err != nil {
			return nil, err
		}
		compositeName = attrs[0].value
		compositeAttrs = attrs[1:]
		items = items[1:]
	}
	made, err := f.Create(compositeName)
	if err != nil {
		return nil, err
	}
	comp, ok := made.(container)
	if !ok {
		return nil, errors.NewValueErrorf(op, "'%s' is not a composite function", compositeName)
	}
	multi, _ := made.(*MultiDomainFunction)

	var ties, constraints []string
	collect := func(a attr) error {
		switch a.key {
		case "ties":
			ties = append(ties, stripParens(a.value))
		case "constraints":
			constraints = append(constraints, stripParens(a.value))
		default:
			return errors.NewValueErrorf(op, "unknown composite attribute '%s'", a.key)
		}
		return nil
	}
	for _, a := range compositeAttrs {
		if err := collect(a); err != nil {
			return nil, err
		}
	}

	for _, raw := range items {
		item := strings.TrimSpace(raw)
		if item == "" {
			continue
		}
		if strings.HasPrefix(item, "ties=") || strings.HasPrefix(item, "constraints=") {
			attrs, err := parseAttrs(item)
			if err != nil {
				return nil, err
			}
			for _, a := range attrs {
				if err := collect(a); err != nil {
					return nil, err
				}
			}
			continue
		}
		var member Function
		var domains string
		if isParenthesized(item) {
			member, err = f.CreateInitialized(item[1 : len(item)-1])
		} else {
			member, domains, err = f.createLeaf(item)
		}
		if err != nil {
			return nil, err
		}
		k := comp.AddFunction(member)
		if domains != "" {
			if multi == nil {
				return nil, errors.NewValueError(op, "$domains is only valid inside a MultiDomainFunction")
			}
			if err := bindDomains(multi, k, domains); err != nil {
				return nil, err
			}
		}
	}

	for _, t := range ties {
		if err := AddTies(comp, t); err != nil {
			return nil, err
		}
	}
	for _, c := range constraints {
		if err := AddConstraints(comp, c); err != nil {
			return nil, err
		}
	}
	return comp, nil
}

func bindDomains(m *MultiDomainFunction, member int, list string) error {
	list = stripParens(strings.TrimSpace(list))
	if strings.EqualFold(list, "all") {
		m.ClearDomainIndices(member)
		return nil
	}
	var parts []int
	for _, s := range strings.Split(list, ",") {
		p, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			return errors.NewValueErrorf("Factory.CreateInitialized", "invalid domain index '%s'", s)
		}
		parts = append(parts, p)
	}
	return m.SetDomainIndices(member, parts...)
}

// createLeaf builds one member and returns its $domains attribute, if any.
func (f *Factory) createLeaf(item string) (Function, string, error) {
	const op = "Factory.CreateInitialized"
	attrs, err := parseAttrs(item)
	if err != nil {
		return nil, "", err
	}
	if attrs[0].key != "name" {
		return nil, "", errors.NewValueErrorf(op, "definition must start with name=, got '%s'", item)
	}
	fn, err := f.Create(attrs[0].value)
	if err != nil {
		return nil, "", err
	}
	var domains string
	var ties, constraints []string
	for _, a := range attrs[1:] {
		switch a.key {
		case "ties":
			ties = append(ties, stripParens(a.value))
		case "constraints":
			constraints = append(constraints, stripParens(a.value))
		case "$domains":
			domains = a.value
		default:
			v, err := strconv.ParseFloat(a.value, 64)
			if err != nil {
				return nil, "", errors.NewValueErrorf(op, "invalid value '%s' for parameter %s", a.value, a.key)
			}
			if err := SetParameterValue(fn, a.key, v); err != nil {
				return nil, "", err
			}
		}
	}
	for _, t := range ties {
		if err := AddTies(fn, t); err != nil {
			return nil, "", err
		}
	}
	for _, c := range constraints {
		if err := AddConstraints(fn, c); err != nil {
			return nil, "", err
		}
	}
	return fn, domains, nil
}

// AddTies parses "a=expr, b=expr" and ties each parameter.
func AddTies(f Parametric, ties string) error {
	for _, part := range splitTopLevel(ties, ',') {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		eq := strings.IndexByte(part, '=')
		if eq <= 0 {
			return errors.NewValueErrorf("AddTies", "expected name=expression, got '%s'", part)
		}
		if _, err := f.Tie(strings.TrimSpace(part[:eq]), strings.TrimSpace(part[eq+1:])); err != nil {
			return err
		}
	}
	return nil
}

type attr struct {
	key   string
	value string
}

func parseAttrs(item string) ([]attr, error) {
	var attrs []attr
	for _, part := range splitTopLevel(item, ',') {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		eq := strings.IndexByte(part, '=')
		if eq <= 0 {
			return nil, errors.NewValueErrorf("Factory.CreateInitialized", "expected key=value, got '%s'", part)
		}
		attrs = append(attrs, attr{key: strings.TrimSpace(part[:eq]), value: strings.TrimSpace(part[eq+1:])})
	}
	if len(attrs) == 0 {
		return nil, errors.NewValueErrorf("Factory.CreateInitialized", "empty definition '%s'", item)
	}
	return attrs, nil
}

// splitTopLevel splits s on sep outside parentheses.
func splitTopLevel(s string, sep byte) []string {
	var parts []string
	depth, start := 0, 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
		case sep:
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	return append(parts, s[start:])
}

// isParenthesized reports whether s is wrapped in one matching pair.
func isParenthesized(s string) bool {
	if len(s) < 2 || s[0] != '(' || s[len(s)-1] != ')' {
		return false
	}
	depth := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 && i != len(s)-1 {
				return false
			}
		}
	}
	return true
}

func stripParens(s string) string {
	s = strings.TrimSpace(s)
	if isParenthesized(s) {
		return s[1 : len(s)-1]
	}
	return s
}

// String renders f in the definition syntax read by Factory.CreateInitialized.
func String(f Function) string {
	var b strings.Builder
	writeFunction(&b, f, true)
	return b.String()
}

func writeFunction(b *strings.Builder, f Function, top bool) {
	if c, ok := f.(Container); ok {
		if !top {
			b.WriteByte('(')
		}
		if f.Name() != "CompositeFunction" {
			b.WriteString("composite=" + f.Name() + ";")
		}
		multi, _ := f.(*MultiDomainFunction)
		for k := 0; k < c.NFunctions(); k++ {
			if k > 0 {
				b.WriteByte(';')
			}
			writeFunction(b, c.FunctionAt(k), false)
			if multi != nil {
				if idx, ok := multi.domains[k]; ok {
					b.WriteString(",$domains=")
					writeIndexList(b, idx)
				}
			}
		}
		if tt, ok := f.(interface{ Ties() []*Tie }); ok && len(tt.Ties()) > 0 {
			b.WriteString(";ties=(")
			writeTies(b, tt.Ties())
			b.WriteByte(')')
		}
		if comp, ok := f.(interface{ ownConstraints() []*BoundaryConstraint }); ok && len(comp.ownConstraints()) > 0 {
			b.WriteString(";constraints=(")
			writeConstraints(b, comp.ownConstraints())
			b.WriteByte(')')
		}
		if !top {
			b.WriteByte(')')
		}
		return
	}

	b.WriteString("name=" + f.Name())
	for i := 0; i < f.NParams(); i++ {
		b.WriteString("," + f.ParameterName(i) + "=" + strconv.FormatFloat(f.Parameter(i), 'g', -1, 64))
	}
	if tt, ok := f.(interface{ Ties() []*Tie }); ok && len(tt.Ties()) > 0 {
		b.WriteString(",ties=(")
		writeTies(b, tt.Ties())
		b.WriteByte(')')
	}
	var cs []*BoundaryConstraint
	f.ForEachConstraint(func(_ int, c *BoundaryConstraint) { cs = append(cs, c) })
	if len(cs) > 0 {
		b.WriteString(",constraints=(")
		writeConstraints(b, cs)
		b.WriteByte(')')
	}
}

func writeIndexList(b *strings.Builder, idx []int) {
	if len(idx) == 1 {
		b.WriteString(strconv.Itoa(idx[0]))
		return
	}
	b.WriteByte('(')
	for k, i := range idx {
		if k > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Itoa(i))
	}
	b.WriteByte(')')
}

func writeTies(b *strings.Builder, ties []*Tie) {
	for k, t := range ties {
		if k > 0 {
			b.WriteByte(',')
		}
		b.WriteString(t.String())
	}
}

func writeConstraints(b *strings.Builder, cs []*BoundaryConstraint) {
	for k, c := range cs {
		if k > 0 {
			b.WriteByte(',')
		}
		b.WriteString(c.String())
	}
}

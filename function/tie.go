package function

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/YuminosukeSato/scifit/pkg/errors"
)

// Tie binds one parameter to an expression of other parameters of the same
// function. Expressions support + - * / ^ **, parentheses, numeric literals,
// the constant pi and the functions sqrt, exp, log, sin, cos, tan and abs.
type Tie struct {
	owner    ParameterSet
	index    int
	template string
	deps     []int
	program  *vm.Program
}

const placeholderPrefix = "__p"

var tieFunctions = map[string]func(float64) float64{
	"sqrt": math.Sqrt,
	"exp":  math.Exp,
	"log":  math.Log,
	"sin":  math.Sin,
	"cos":  math.Cos,
	"tan":  math.Tan,
}

// abs is an expr builtin.
var tieBuiltins = map[string]bool{"abs": true, "pi": true}

// NewTie compiles expression against owner's parameter names.
func NewTie(owner ParameterSet, index int, expression string) (*Tie, error) {
	if index < 0 || index >= owner.NParams() {
		return nil, errors.NewRangeError("NewTie", index, owner.NParams())
	}
	template, deps, err := rewriteExpression(owner, expression)
	if err != nil {
		return nil, err
	}
	for _, d := range deps {
		if d == index {
			return nil, errors.NewValueErrorf("Tie", "parameter '%s' cannot be tied to itself", owner.ParameterName(index))
		}
	}
	program, err := compileTie(template, len(deps))
	if err != nil {
		return nil, errors.NewValueErrorf("Tie", "cannot compile '%s': %v", expression, err)
	}
	return &Tie{owner: owner, index: index, template: template, deps: deps, program: program}, nil
}

func tieEnv(n int) map[string]any {
	env := make(map[string]any, n+1)
	env["pi"] = math.Pi
	for k := 0; k < n; k++ {
		env[placeholder(k)] = 0.0
	}
	return env
}

func compileTie(template string, nDeps int) (*vm.Program, error) {
	opts := []expr.Option{expr.Env(tieEnv(nDeps))}
	for name, fn := range tieFunctions {
		fn := fn
		opts = append(opts, expr.Function(name, func(params ...any) (any, error) {
			if len(params) != 1 {
				return nil, errors.Newf("expects one argument, got %d", len(params))
			}
			x, err := toFloat(params[0])
			if err != nil {
				return nil, err
			}
			return fn(x), nil
		}))
	}
	return expr.Compile(template, opts...)
}

func placeholder(k int) string {
	return fmt.Sprintf("%s%d", placeholderPrefix, k)
}

func toFloat(v any) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	default:
		return 0, errors.Newf("expected a number, got %T", v)
	}
}

// rewriteExpression replaces parameter names with positional placeholders so
// that dotted composite names such as f0.Sigma survive compilation.
func rewriteExpression(owner ParameterSet, expression string) (string, []int, error) {
	if strings.TrimSpace(expression) == "" {
		return "", nil, errors.NewValueError("Tie", "empty tie expression")
	}
	var (
		out  strings.Builder
		deps []int
		seen = map[int]int{}
	)
	s := expression
	for i := 0; i < len(s); {
		c := s[i]
		switch {
		case isDigit(c) || (c == '.' && i+1 < len(s) && isDigit(s[i+1])):
			j := scanNumber(s, i)
			out.WriteString(s[i:j])
			i = j
		case isIdentStart(c):
			j := i + 1
			for j < len(s) && (isIdentStart(s[j]) || isDigit(s[j]) || s[j] == '.') {
				j++
			}
			name := s[i:j]
			if idx, err := owner.ParameterIndex(name); err == nil {
				k, ok := seen[idx]
				if !ok {
					k = len(deps)
					seen[idx] = k
					deps = append(deps, idx)
				}
				out.WriteString(placeholder(k))
			} else if _, ok := tieFunctions[name]; ok || tieBuiltins[name] {
				out.WriteString(name)
			} else {
				return "", nil, errors.NewValueErrorf("Tie", "unknown parameter '%s' in '%s'", name, expression)
			}
			i = j
		default:
			out.WriteByte(c)
			i++
		}
	}
	return out.String(), deps, nil
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func scanNumber(s string, i int) int {
	j := i
	for j < len(s) && (isDigit(s[j]) || s[j] == '.') {
		j++
	}
	if j < len(s) && (s[j] == 'e' || s[j] == 'E') {
		k := j + 1
		if k < len(s) && (s[k] == '+' || s[k] == '-') {
			k++
		}
		if k < len(s) && isDigit(s[k]) {
			for k < len(s) && isDigit(s[k]) {
				k++
			}
			j = k
		}
	}
	return j
}

// Index is the tied parameter's index in the owner.
func (t *Tie) Index() int { return t.index }

// Dependencies lists the indices the expression reads.
func (t *Tie) Dependencies() []int {
	out := make([]int, len(t.deps))
	copy(out, t.deps)
	return out
}

// Expression renders the expression with the owner's current parameter names.
func (t *Tie) Expression() string {
	s := t.template
	// replace higher placeholders first so __p1 does not clobber __p10
	for k := len(t.deps) - 1; k >= 0; k-- {
		s = strings.ReplaceAll(s, placeholder(k), t.owner.ParameterName(t.deps[k]))
	}
	return s
}

// String returns "Name=expression".
func (t *Tie) String() string {
	return t.owner.ParameterName(t.index) + "=" + t.Expression()
}

// Eval computes the expression from the current parameter values.
func (t *Tie) Eval() (float64, error) {
	env := tieEnv(len(t.deps))
	for k, d := range t.deps {
		env[placeholder(k)] = t.owner.Parameter(d)
	}
	out, err := expr.Run(t.program, env)
	if err != nil {
		return 0, errors.NewRuntimeError("Tie.Eval", t.String(), err)
	}
	v, err := toFloat(out)
	if err != nil {
		return 0, errors.NewRuntimeError("Tie.Eval", t.String(), err)
	}
	return v, nil
}

// Apply evaluates the tie and writes the result into the tied parameter.
func (t *Tie) Apply() error {
	v, err := t.Eval()
	if err != nil {
		return err
	}
	t.owner.SetParameter(t.index, v)
	return nil
}

// remap rewrites the tied and dependency indices. It returns false if any
// of them no longer exists.
func (t *Tie) remap(move func(int) (int, bool)) bool {
	idx, ok := move(t.index)
	if !ok {
		return false
	}
	deps := make([]int, len(t.deps))
	for k, d := range t.deps {
		nd, ok := move(d)
		if !ok {
			return false
		}
		deps[k] = nd
	}
	t.index = idx
	t.deps = deps
	return true
}

// tieSet keeps the ties of one function in evaluation order: a tie reading
// another tied parameter comes after it. This makes ApplyTies idempotent.
type tieSet struct {
	ties []*Tie
}

func (s *tieSet) get(i int) *Tie {
	for _, t := range s.ties {
		if t.index == i {
			return t
		}
	}
	return nil
}

func (s *tieSet) set(t *Tie) error {
	next := make([]*Tie, 0, len(s.ties)+1)
	for _, old := range s.ties {
		if old.index != t.index {
			next = append(next, old)
		}
	}
	next = append(next, t)
	ordered, err := orderTies(next)
	if err != nil {
		return err
	}
	s.ties = ordered
	return nil
}

func (s *tieSet) remove(i int) {
	for k, t := range s.ties {
		if t.index == i {
			s.ties = append(s.ties[:k], s.ties[k+1:]...)
			return
		}
	}
}

func (s *tieSet) apply() error {
	for _, t := range s.ties {
		if err := t.Apply(); err != nil {
			return err
		}
	}
	return nil
}

func (s *tieSet) remap(move func(int) (int, bool)) {
	kept := s.ties[:0]
	for _, t := range s.ties {
		if t.remap(move) {
			kept = append(kept, t)
		}
	}
	s.ties = kept
}

func (s *tieSet) all() []*Tie { return s.ties }

// boundTie places a tie in the parameter space of an enclosing composite.
type boundTie struct {
	tie   *Tie
	index int
	deps  []int
}

func bind(t *Tie, offset int) boundTie {
	deps := make([]int, len(t.deps))
	for k, d := range t.deps {
		deps[k] = d + offset
	}
	return boundTie{tie: t, index: t.index + offset, deps: deps}
}

// orderTies sorts ties topologically and rejects cycles.
func orderTies(ties []*Tie) ([]*Tie, error) {
	bound := make([]boundTie, len(ties))
	for k, t := range ties {
		bound[k] = bind(t, 0)
	}
	ordered, err := orderBound(bound)
	if err != nil {
		return nil, err
	}
	out := make([]*Tie, len(ordered))
	for k, b := range ordered {
		out[k] = b.tie
	}
	return out, nil
}

// orderBound sorts ties by their bound indices so that every tie comes
// after the ties it reads. Of two ties on one index the later one wins.
func orderBound(ties []boundTie) ([]boundTie, error) {
	byIndex := make(map[int]boundTie, len(ties))
	for _, t := range ties {
		byIndex[t.index] = t
	}
	if len(byIndex) != len(ties) {
		unique := make([]boundTie, 0, len(byIndex))
		for _, t := range ties {
			if byIndex[t.index].tie == t.tie {
				unique = append(unique, t)
			}
		}
		ties = unique
	}
	indegree := make(map[int]int, len(ties))
	users := make(map[int][]int)
	for _, t := range ties {
		for _, d := range t.deps {
			if _, tied := byIndex[d]; tied {
				indegree[t.index]++
				users[d] = append(users[d], t.index)
			}
		}
	}

	var ready []int
	for _, t := range ties {
		if indegree[t.index] == 0 {
			ready = append(ready, t.index)
		}
	}
	ordered := make([]boundTie, 0, len(ties))
	for len(ready) > 0 {
		sort.Ints(ready)
		i := ready[0]
		ready = ready[1:]
		ordered = append(ordered, byIndex[i])
		for _, u := range users[i] {
			indegree[u]--
			if indegree[u] == 0 {
				ready = append(ready, u)
			}
		}
	}
	if len(ordered) != len(ties) {
		return nil, errors.NewValueError("Tie", "ties form a cycle")
	}
	return ordered, nil
}

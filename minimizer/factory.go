package minimizer

import (
	"sort"

	"github.com/YuminosukeSato/scifit/pkg/errors"
)

// Constructor builds a minimizer from options.
type Constructor func(opts ...Option) (Minimizer, error)

// Factory creates minimizers by name. A Factory is passed explicitly into
// fit setup; there is no package-level registry.
type Factory struct {
	constructors map[string]Constructor
}

// NewFactory returns a factory with every minimizer of this package
// registered.
func NewFactory() *Factory {
	f := &Factory{constructors: make(map[string]Constructor)}
	f.Register(LevenbergMarquardtName, func(opts ...Option) (Minimizer, error) {
		return NewLevenbergMarquardt(opts...)
	})
	f.Register(LevenbergMarquardtMDName, func(opts ...Option) (Minimizer, error) {
		return NewLevenbergMarquardtMD(opts...)
	})
	f.Register(MadsenName, func(opts ...Option) (Minimizer, error) {
		return NewMadsen(opts...)
	})
	f.Register(BFGSName, func(opts ...Option) (Minimizer, error) {
		return NewBFGS(opts...)
	})
	f.Register(FletcherReevesName, func(opts ...Option) (Minimizer, error) {
		return NewFletcherReeves(opts...)
	})
	f.Register(PolakRibiereName, func(opts ...Option) (Minimizer, error) {
		return NewPolakRibiere(opts...)
	})
	f.Register(SteepestDescentName, func(opts ...Option) (Minimizer, error) {
		return NewSteepestDescent(opts...)
	})
	return f
}

// Register adds or replaces the constructor for name.
func (f *Factory) Register(name string, c Constructor) {
	f.constructors[name] = c
}

// Names lists the registered minimizers in sorted order.
func (f *Factory) Names() []string {
	names := make([]string, 0, len(f.constructors))
	for name := range f.constructors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Has reports whether name is registered.
func (f *Factory) Has(name string) bool {
	_, ok := f.constructors[name]
	return ok
}

// Create builds the named minimizer. Unknown names give a NotFoundError.
func (f *Factory) Create(name string, opts ...Option) (Minimizer, error) {
	c, ok := f.constructors[name]
	if !ok {
		return nil, errors.NewNotFoundError("minimizer", name)
	}
	return c(opts...)
}

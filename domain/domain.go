// Package domain holds the buffers a fitting function is evaluated over:
// the independent-variable points (FunctionDomain), the calculated and observed
// values with their weights (FunctionValues) and the Jacobian sinks derivatives
// are written into.
package domain

import (
	"github.com/YuminosukeSato/scifit/pkg/errors"
)

// FunctionDomain is an ordered, immutable set of evaluation points.
type FunctionDomain interface {
	Size() int
}

// CompositeDomain is a domain made of consecutive parts. Part i occupies
// the index range [Offset(i), Offset(i)+Part(i).Size()) of the whole.
type CompositeDomain interface {
	FunctionDomain
	NParts() int
	Part(i int) FunctionDomain
	Offset(i int) int
}

// Domain1D is a domain of scalar x values.
type Domain1D struct {
	x    []float64
	view bool
}

// NewDomain1D copies x into a new domain.
func NewDomain1D(x []float64) (*Domain1D, error) {
	if len(x) == 0 {
		return nil, errors.NewValueError("NewDomain1D", "domain must have at least one point")
	}
	owned := make([]float64, len(x))
	copy(owned, x)
	return &Domain1D{x: owned}, nil
}

// NewDomain1DView wraps x without copying. The caller keeps ownership of the
// storage and must not modify it while the domain is in use.
func NewDomain1DView(x []float64) (*Domain1D, error) {
	if len(x) == 0 {
		return nil, errors.NewValueError("NewDomain1DView", "domain must have at least one point")
	}
	return &Domain1D{x: x, view: true}, nil
}

// NewDomain1DRange creates n equally spaced points from start to end inclusive.
func NewDomain1DRange(start, end float64, n int) (*Domain1D, error) {
	if n <= 0 {
		return nil, errors.NewValidationError("n", "number of points must be positive", n)
	}
	if n > 1 && end <= start {
		return nil, errors.NewValueErrorf("NewDomain1DRange", "end (%g) must be greater than start (%g)", end, start)
	}
	x := make([]float64, n)
	if n == 1 {
		x[0] = start
		return &Domain1D{x: x}, nil
	}
	dx := (end - start) / float64(n-1)
	for i := range x {
		x[i] = start + float64(i)*dx
	}
	x[n-1] = end
	return &Domain1D{x: x}, nil
}

// Size implements FunctionDomain.
func (d *Domain1D) Size() int { return len(d.x) }

// At returns the i-th point.
func (d *Domain1D) At(i int) float64 { return d.x[i] }

// X returns the underlying points. The slice must be treated as read-only.
func (d *Domain1D) X() []float64 { return d.x }

// IsView reports whether the domain wraps caller-owned storage.
func (d *Domain1D) IsView() bool { return d.view }

// Slice returns a view of points [start, end).
func (d *Domain1D) Slice(start, end int) *Domain1D {
	return &Domain1D{x: d.x[start:end], view: true}
}

// JointDomain concatenates several domains so that a MultiDomainFunction
// can fit them simultaneously.
type JointDomain struct {
	parts   []FunctionDomain
	offsets []int
	size    int
}

// NewJointDomain creates a joint domain from parts.
func NewJointDomain(parts ...FunctionDomain) (*JointDomain, error) {
	jd := &JointDomain{}
	for _, p := range parts {
		if err := jd.AddDomain(p); err != nil {
			return nil, err
		}
	}
	return jd, nil
}

// AddDomain appends a part.
func (j *JointDomain) AddDomain(d FunctionDomain) error {
	if d == nil || d.Size() == 0 {
		return errors.NewValueError("JointDomain.AddDomain", "cannot add an empty domain")
	}
	j.offsets = append(j.offsets, j.size)
	j.parts = append(j.parts, d)
	j.size += d.Size()
	return nil
}

// Size implements FunctionDomain.
func (j *JointDomain) Size() int { return j.size }

// NParts implements CompositeDomain.
func (j *JointDomain) NParts() int { return len(j.parts) }

// Part implements CompositeDomain.
func (j *JointDomain) Part(i int) FunctionDomain { return j.parts[i] }

// Offset implements CompositeDomain.
func (j *JointDomain) Offset(i int) int { return j.offsets[i] }

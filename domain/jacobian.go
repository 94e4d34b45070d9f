package domain

import (
	"gonum.org/v1/gonum/mat"
)

// Jacobian receives the partial derivatives d(value_i)/d(param_j) of a function.
// Columns are indexed by the function's own parameter indices.
type Jacobian interface {
	Set(i, j int, value float64)
	Get(i, j int) float64
	Zero()
}

// JacobianMatrix is a Jacobian backed by a dense gonum matrix.
type JacobianMatrix struct {
	m *mat.Dense
}

// NewJacobianMatrix allocates an nData x nParams Jacobian.
func NewJacobianMatrix(nData, nParams int) *JacobianMatrix {
	return &JacobianMatrix{m: mat.NewDense(nData, nParams, nil)}
}

func (j *JacobianMatrix) Set(i, k int, value float64) { j.m.Set(i, k, value) }

func (j *JacobianMatrix) Get(i, k int) float64 { return j.m.At(i, k) }

func (j *JacobianMatrix) Zero() { j.m.Zero() }

// Matrix returns the backing matrix.
func (j *JacobianMatrix) Matrix() *mat.Dense { return j.m }

// PartialJacobian addresses an nRows x nCols block of a larger Jacobian.
// Composite functions hand one to each child so the child can use its local indices.
type PartialJacobian struct {
	parent    Jacobian
	rowOffset int
	colOffset int
	nRows     int
	nCols     int
}

// NewPartialJacobian returns the block of parent starting at (rowOffset, colOffset).
func NewPartialJacobian(parent Jacobian, rowOffset, colOffset, nRows, nCols int) *PartialJacobian {
	return &PartialJacobian{
		parent:    parent,
		rowOffset: rowOffset,
		colOffset: colOffset,
		nRows:     nRows,
		nCols:     nCols,
	}
}

func (p *PartialJacobian) Set(i, j int, value float64) {
	p.parent.Set(i+p.rowOffset, j+p.colOffset, value)
}

func (p *PartialJacobian) Get(i, j int) float64 {
	return p.parent.Get(i+p.rowOffset, j+p.colOffset)
}

// Zero clears the block only.
func (p *PartialJacobian) Zero() {
	for i := 0; i < p.nRows; i++ {
		for j := 0; j < p.nCols; j++ {
			p.parent.Set(i+p.rowOffset, j+p.colOffset, 0)
		}
	}
}

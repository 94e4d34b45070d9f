package domain

import (
	"math"

	"github.com/YuminosukeSato/scifit/pkg/errors"
)

// FunctionValues holds calculated values together with the observed data and
// weights they are compared against. All three arrays have the domain's size.
// Weights default to 1.
type FunctionValues struct {
	calculated []float64
	fitData    []float64
	fitWeights []float64
}

// NewFunctionValues allocates values sized to d.
func NewFunctionValues(d FunctionDomain) *FunctionValues {
	return NewFunctionValuesSize(d.Size())
}

// NewFunctionValuesSize allocates values for n points.
func NewFunctionValuesSize(n int) *FunctionValues {
	w := make([]float64, n)
	for i := range w {
		w[i] = 1
	}
	return &FunctionValues{
		calculated: make([]float64, n),
		fitData:    make([]float64, n),
		fitWeights: w,
	}
}

// Size returns the number of values.
func (v *FunctionValues) Size() int { return len(v.calculated) }

// Calculated returns the i-th calculated value.
func (v *FunctionValues) Calculated(i int) float64 { return v.calculated[i] }

// SetCalculated sets the i-th calculated value.
func (v *FunctionValues) SetCalculated(i int, value float64) { v.calculated[i] = value }

// AddToCalculated adds value to the i-th calculated value.
func (v *FunctionValues) AddToCalculated(i int, value float64) { v.calculated[i] += value }

// CalculatedSlice exposes the calculated buffer for functions filling it in bulk.
func (v *FunctionValues) CalculatedSlice() []float64 { return v.calculated }

// ZeroCalculated sets every calculated value to 0.
func (v *FunctionValues) ZeroCalculated() {
	for i := range v.calculated {
		v.calculated[i] = 0
	}
}

// AddCalculated adds other's calculated values element-wise.
func (v *FunctionValues) AddCalculated(other *FunctionValues) error {
	return v.AddCalculatedAt(0, other)
}

// AddCalculatedAt adds other's calculated values starting at index start.
func (v *FunctionValues) AddCalculatedAt(start int, other *FunctionValues) error {
	if start < 0 || start+other.Size() > v.Size() {
		return errors.NewRangeError("FunctionValues.AddCalculatedAt", start+other.Size()-1, v.Size())
	}
	for i, c := range other.calculated {
		v.calculated[start+i] += c
	}
	return nil
}

// FitData returns the i-th observed value.
func (v *FunctionValues) FitData(i int) float64 { return v.fitData[i] }

// SetFitData sets the i-th observed value.
func (v *FunctionValues) SetFitData(i int, value float64) { v.fitData[i] = value }

// SetFitDataSlice copies y into the observed values.
func (v *FunctionValues) SetFitDataSlice(y []float64) error {
	if len(y) != v.Size() {
		return errors.NewDimensionError("FunctionValues.SetFitDataSlice", v.Size(), len(y))
	}
	copy(v.fitData, y)
	return nil
}

// SetFitDataFromCalculated uses other's calculated values as observed data.
// It is the usual way to build synthetic reference data.
func (v *FunctionValues) SetFitDataFromCalculated(other *FunctionValues) error {
	if other.Size() != v.Size() {
		return errors.NewDimensionError("FunctionValues.SetFitDataFromCalculated", v.Size(), other.Size())
	}
	copy(v.fitData, other.calculated)
	return nil
}

// FitWeight returns the i-th weight.
func (v *FunctionValues) FitWeight(i int) float64 { return v.fitWeights[i] }

// SetFitWeight sets the i-th weight. Weights must be finite and
// non-negative.
func (v *FunctionValues) SetFitWeight(i int, w float64) error {
	if err := checkWeight(w); err != nil {
		return err
	}
	v.fitWeights[i] = w
	return nil
}

// SetFitWeights sets every weight to w.
func (v *FunctionValues) SetFitWeights(w float64) error {
	if err := checkWeight(w); err != nil {
		return err
	}
	for i := range v.fitWeights {
		v.fitWeights[i] = w
	}
	return nil
}

// SetFitWeightsSlice copies w into the weights.
func (v *FunctionValues) SetFitWeightsSlice(w []float64) error {
	if len(w) != v.Size() {
		return errors.NewDimensionError("FunctionValues.SetFitWeightsSlice", v.Size(), len(w))
	}
	for _, x := range w {
		if err := checkWeight(x); err != nil {
			return err
		}
	}
	copy(v.fitWeights, w)
	return nil
}

func checkWeight(w float64) error {
	if w < 0 || math.IsNaN(w) || math.IsInf(w, 0) {
		return errors.NewValidationError("fitWeight", "must be a finite non-negative number", w)
	}
	return nil
}

// FitDataSlice exposes the observed values. Treat as read-only.
func (v *FunctionValues) FitDataSlice() []float64 { return v.fitData }

// FitWeightsSlice exposes the weights. Treat as read-only.
func (v *FunctionValues) FitWeightsSlice() []float64 { return v.fitWeights }

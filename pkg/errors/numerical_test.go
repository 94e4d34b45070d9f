package errors

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func TestCheckNumericalStability(t *testing.T) {
	tests := []struct {
		name    string
		values  []float64
		wantErr bool
	}{
		{"finite", []float64{1, 2, 3}, false},
		{"empty", nil, false},
		{"nan", []float64{1, math.NaN()}, true},
		{"inf", []float64{math.Inf(-1)}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckNumericalStability("gradient", tt.values, 3)
			if (err != nil) != tt.wantErr {
				t.Fatalf("CheckNumericalStability() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				var ni *NumericalInstabilityError
				if !As(err, &ni) {
					t.Fatalf("expected NumericalInstabilityError, got %T", err)
				}
				if ni.Iteration != 3 || ni.Operation != "gradient" {
					t.Errorf("unexpected fields: %+v", ni)
				}
			}
		})
	}
}

func TestCheckScalar(t *testing.T) {
	if err := CheckScalar("cost_value", 1.5, 0); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := CheckScalar("cost_value", math.NaN(), 0); err == nil {
		t.Error("expected error for NaN")
	}
}

func TestCheckMatrix(t *testing.T) {
	m := mat.NewDense(2, 2, []float64{1, 2, 3, 4})
	if err := CheckMatrix("jacobian", m, 0); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	m.Set(1, 0, math.Inf(1))
	if err := CheckMatrix("jacobian", m, 0); err == nil {
		t.Error("expected error for Inf entry")
	}
}

func TestSafeDivide(t *testing.T) {
	if got := SafeDivide(1, 0); got != 0 {
		t.Errorf("SafeDivide(1, 0) = %v, want 0", got)
	}
	if got := SafeDivide(6, 3); got != 2 {
		t.Errorf("SafeDivide(6, 3) = %v, want 2", got)
	}
}

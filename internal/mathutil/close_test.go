package mathutil

import (
	"math"
	"testing"
)

func TestIsClose(t *testing.T) {
	tests := []struct {
		a, b, rEps, aEps float64
		want             bool
	}{
		{1, 1, 0, 0, true},
		{1, 1 + 1e-9, 0, 1e-8, true},
		{1, 1 + 1e-7, 0, 1e-8, false},
		{1000, 1000.01, 1e-5, 0, true},
		{1000, 1000.1, 1e-5, 0, false},
		{math.Inf(1), math.Inf(1), 0, 0, true},
		{math.NaN(), math.NaN(), 1, 1, false},
	}
	for _, tt := range tests {
		if got := IsClose(tt.a, tt.b, tt.rEps, tt.aEps); got != tt.want {
			t.Errorf("IsClose(%g, %g, %g, %g) = %v, want %v", tt.a, tt.b, tt.rEps, tt.aEps, got, tt.want)
		}
	}
}

func TestAllClose_LengthMismatch(t *testing.T) {
	if AllClose([]float64{1}, []float64{1, 2}, 1, 1) {
		t.Error("AllClose with different lengths = true")
	}
}

func TestAllCloseMat(t *testing.T) {
	a := Mat{{1, 2}, {3, 4}}
	b := Mat{{1, 2}, {3, 4 + 1e-12}}
	if !AllCloseMat(a, b, 0, 1e-10) {
		t.Error("AllCloseMat = false, want true")
	}
	if EqualMat(a, b) {
		t.Error("EqualMat = true for differing matrices")
	}
}

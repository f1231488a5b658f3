package mathutil

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// IsClose reports whether |a-b| <= aEps + rEps*max(|a|,|b|).
// NaN is never close to anything; equal infinities are close.
func IsClose(a, b, rEps, aEps float64) bool {
	if a == b {
		return true
	}
	return math.Abs(a-b) <= aEps+rEps*math.Max(math.Abs(a), math.Abs(b))
}

// AllClose applies IsClose element-wise. Slices of different length are never close.
func AllClose(a, b []float64, rEps, aEps float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !IsClose(a[i], b[i], rEps, aEps) {
			return false
		}
	}
	return true
}

// AllCloseMat applies IsClose element-wise over two matrices of identical shape.
func AllCloseMat(a, b Mat, rEps, aEps float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !AllClose(a[i], b[i], rEps, aEps) {
			return false
		}
	}
	return true
}

// EqualMat reports exact element-wise equality of two matrices, including shape.
func EqualMat(a, b Mat) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !floats.Equal(a[i], b[i]) {
			return false
		}
	}
	return true
}

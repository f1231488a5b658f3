package gmm

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/ieee0824/voiceprint-go/internal/mathutil"
)

// Default tolerances for IsSimilarTo comparisons.
const (
	DefaultRelativeEpsilon = 1e-5
	DefaultAbsoluteEpsilon = 1e-8
)

// Stats holds GMM sufficient statistics.
//
// With respect to Reynolds, "Speaker Verification Using Adapted Gaussian
// Mixture Models", DSP 2000: Eq (8) is N[i], Eq (9) is SumPx[i]/N[i] and
// Eq (10) is SumPxx[i]/N[i].
type Stats struct {
	N             []float64    // [k] accumulated responsibilities
	SumPx         mathutil.Mat // [k][dim] responsibility-weighted sample sums
	SumPxx        mathutil.Mat // [k][dim] responsibility-weighted squared-sample sums
	T             uint64       // number of samples accumulated
	LogLikelihood float64      // accumulated log-likelihood of all samples

	// dim records the feature dimension while there are no components.
	dim int
}

// NewStats creates zeroed statistics for k components of dimension dim.
// Zero sizes are allowed; such statistics must be resized before use.
func NewStats(k, dim int) *Stats {
	s := &Stats{}
	s.Resize(k, dim)
	return s
}

// NewStatsChecked is NewStats with negative sizes rejected.
func NewStatsChecked(k, dim int) (*Stats, error) {
	if k < 0 || dim < 0 {
		return nil, fmt.Errorf("new stats (%d,%d): %w", k, dim, ErrInvalidArgument)
	}
	return NewStats(k, dim), nil
}

// Resize reallocates all fields to the new shape and zeroes them.
func (s *Stats) Resize(k, dim int) {
	s.N = make([]float64, k)
	s.SumPx = mathutil.NewMat(k, dim)
	s.SumPxx = mathutil.NewMat(k, dim)
	s.T = 0
	s.LogLikelihood = 0
	s.dim = dim
}

// Reset zeroes all fields in place, keeping the shape.
func (s *Stats) Reset() {
	mathutil.FillVec(s.N, 0)
	mathutil.FillMat(s.SumPx, 0)
	mathutil.FillMat(s.SumPxx, 0)
	s.T = 0
	s.LogLikelihood = 0
}

// Shape returns (components, feature dimension). With at least one component
// the dimension is the width of the first SumPx row, so statistics built from
// their fields alone report their real shape.
func (s *Stats) Shape() (int, int) {
	if len(s.N) > 0 && len(s.SumPx) > 0 {
		return len(s.N), len(s.SumPx[0])
	}
	return len(s.N), s.dim
}

// AverageLogLikelihood returns the log-likelihood per accumulated sample, or
// -Inf when no samples were accumulated.
func (s *Stats) AverageLogLikelihood() float64 {
	if s.T == 0 {
		return math.Inf(-1)
	}
	return s.LogLikelihood / float64(s.T)
}

// Accumulate adds other into s element-wise. Shapes must match; on mismatch
// s is left untouched.
func (s *Stats) Accumulate(other *Stats) error {
	if other == nil {
		return fmt.Errorf("accumulate stats: nil stats: %w", ErrInvalidArgument)
	}
	if err := other.Validate(); err != nil {
		return fmt.Errorf("accumulate stats: %w", err)
	}
	k, d := s.Shape()
	ok, od := other.Shape()
	if k != ok || d != od {
		return fmt.Errorf("accumulate stats: (%d,%d) += (%d,%d): %w", k, d, ok, od, ErrShapeMismatch)
	}
	floats.Add(s.N, other.N)
	for i := range s.SumPx {
		floats.Add(s.SumPx[i], other.SumPx[i])
		floats.Add(s.SumPxx[i], other.SumPxx[i])
	}
	s.T += other.T
	s.LogLikelihood += other.LogLikelihood
	return nil
}

// Clone returns a deep copy of s.
func (s *Stats) Clone() *Stats {
	_, dim := s.Shape()
	return &Stats{
		N:             append([]float64(nil), s.N...),
		SumPx:         mathutil.CloneMat(s.SumPx),
		SumPxx:        mathutil.CloneMat(s.SumPxx),
		T:             s.T,
		LogLikelihood: s.LogLikelihood,
		dim:           dim,
	}
}

// Equal reports exact field-wise equality including shape.
func (s *Stats) Equal(other *Stats) bool {
	if other == nil || !s.sameShape(other) {
		return false
	}
	return s.T == other.T &&
		s.LogLikelihood == other.LogLikelihood &&
		floats.Equal(s.N, other.N) &&
		mathutil.EqualMat(s.SumPx, other.SumPx) &&
		mathutil.EqualMat(s.SumPxx, other.SumPxx)
}

// IsSimilarTo reports whether every field of s is within
// aEps + rEps*max(|a|,|b|) of the corresponding field of other.
// Shape and T must match exactly.
func (s *Stats) IsSimilarTo(other *Stats, rEps, aEps float64) bool {
	if other == nil || !s.sameShape(other) || s.T != other.T {
		return false
	}
	return mathutil.IsClose(s.LogLikelihood, other.LogLikelihood, rEps, aEps) &&
		mathutil.AllClose(s.N, other.N, rEps, aEps) &&
		mathutil.AllCloseMat(s.SumPx, other.SumPx, rEps, aEps) &&
		mathutil.AllCloseMat(s.SumPxx, other.SumPxx, rEps, aEps)
}

func (s *Stats) sameShape(other *Stats) bool {
	k, d := s.Shape()
	ok, od := other.Shape()
	return k == ok && d == od
}

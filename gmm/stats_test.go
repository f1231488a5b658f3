package gmm

import (
	"errors"
	"math"
	"math/rand"
	"testing"
)

func randomStats(rng *rand.Rand, k, dim int) *Stats {
	s := NewStats(k, dim)
	for i := 0; i < k; i++ {
		s.N[i] = rng.Float64() * 10
		for d := 0; d < dim; d++ {
			s.SumPx[i][d] = rng.NormFloat64()
			s.SumPxx[i][d] = rng.Float64() * 5
		}
	}
	s.T = uint64(rng.Intn(100) + 1)
	s.LogLikelihood = -rng.Float64() * 1000
	return s
}

func TestNewStats_Zeroed(t *testing.T) {
	s := NewStats(3, 2)
	if k, d := s.Shape(); k != 3 || d != 2 {
		t.Fatalf("Shape = (%d,%d), want (3,2)", k, d)
	}
	for i := range s.N {
		if s.N[i] != 0 || s.SumPx[i][1] != 0 || s.SumPxx[i][0] != 0 {
			t.Errorf("component %d not zeroed", i)
		}
	}
	if s.T != 0 || s.LogLikelihood != 0 {
		t.Errorf("T=%d LogLikelihood=%f, want zero", s.T, s.LogLikelihood)
	}
}

func TestNewStats_ZeroShape(t *testing.T) {
	s := NewStats(0, 0)
	if k, d := s.Shape(); k != 0 || d != 0 {
		t.Errorf("Shape = (%d,%d), want (0,0)", k, d)
	}
	s.Resize(2, 4)
	if k, d := s.Shape(); k != 2 || d != 4 {
		t.Errorf("Shape after Resize = (%d,%d), want (2,4)", k, d)
	}
	if _, err := NewStatsChecked(-1, 2); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("NewStatsChecked(-1, 2): err = %v, want ErrInvalidArgument", err)
	}
}

func TestStatsResetKeepsShape(t *testing.T) {
	s := randomStats(rand.New(rand.NewSource(1)), 4, 3)
	s.Reset()
	if !s.Equal(NewStats(4, 3)) {
		t.Error("Reset did not zero all fields")
	}
}

func TestStatsResizeDiscards(t *testing.T) {
	s := randomStats(rand.New(rand.NewSource(2)), 4, 3)
	s.Resize(2, 5)
	if !s.Equal(NewStats(2, 5)) {
		t.Error("Resize did not produce zeroed stats of the new shape")
	}
}

func TestStatsAccumulate(t *testing.T) {
	s := NewStats(1, 2)
	o := NewStats(1, 2)
	o.N[0] = 2
	o.SumPx[0][0], o.SumPx[0][1] = 1, 3
	o.SumPxx[0][1] = 4
	o.T = 5
	o.LogLikelihood = -7

	if err := s.Accumulate(o); err != nil {
		t.Fatal(err)
	}
	if err := s.Accumulate(o); err != nil {
		t.Fatal(err)
	}
	if s.N[0] != 4 || s.SumPx[0][1] != 6 || s.SumPxx[0][1] != 8 || s.T != 10 || s.LogLikelihood != -14 {
		t.Errorf("accumulated = N %v SumPx %v SumPxx %v T %d LL %f", s.N, s.SumPx, s.SumPxx, s.T, s.LogLikelihood)
	}
}

func TestStatsAccumulate_Commutative(t *testing.T) {
	rng := rand.New(rand.NewSource(9))
	a := randomStats(rng, 5, 4)
	b := randomStats(rng, 5, 4)

	ab := NewStats(5, 4)
	if err := ab.Accumulate(a); err != nil {
		t.Fatal(err)
	}
	if err := ab.Accumulate(b); err != nil {
		t.Fatal(err)
	}
	ba := NewStats(5, 4)
	if err := ba.Accumulate(b); err != nil {
		t.Fatal(err)
	}
	if err := ba.Accumulate(a); err != nil {
		t.Fatal(err)
	}
	// Addition of two terms onto zero is exactly commutative.
	if !ab.Equal(ba) {
		t.Error("A then B != B then A")
	}
}

func TestStatsAccumulate_ShapeMismatch(t *testing.T) {
	s := randomStats(rand.New(rand.NewSource(4)), 2, 3)
	before := s.Clone()
	for _, o := range []*Stats{NewStats(3, 3), NewStats(2, 2)} {
		if err := s.Accumulate(o); !errors.Is(err, ErrShapeMismatch) {
			t.Errorf("Accumulate: err = %v, want ErrShapeMismatch", err)
		}
	}
	if !s.Equal(before) {
		t.Error("failed Accumulate mutated the receiver")
	}
}

func TestStatsAccumulate_Nil(t *testing.T) {
	s := NewStats(2, 3)
	if err := s.Accumulate(nil); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("Accumulate(nil): err = %v, want ErrInvalidArgument", err)
	}
}

func TestStatsFromFields(t *testing.T) {
	s := &Stats{
		N:             []float64{16},
		SumPx:         [][]float64{{16}},
		SumPxx:        [][]float64{{32}},
		T:             16,
		LogLikelihood: -32,
	}
	if k, d := s.Shape(); k != 1 || d != 1 {
		t.Fatalf("Shape = (%d,%d), want (1,1)", k, d)
	}
	if err := s.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if got := s.AverageLogLikelihood(); got != -2 {
		t.Errorf("AverageLogLikelihood = %f, want -2", got)
	}

	acc := NewStats(1, 1)
	if err := acc.Accumulate(s); err != nil {
		t.Fatalf("Accumulate: %v", err)
	}
	if !acc.Equal(s) {
		t.Error("zero stats plus literal stats != literal stats")
	}
	if !s.Clone().Equal(acc) {
		t.Error("Clone of literal stats != accumulated stats")
	}

	ragged := &Stats{N: []float64{1, 2}, SumPx: [][]float64{{1}, {1, 2}}, SumPxx: [][]float64{{1}, {1}}}
	if err := NewStats(2, 1).Accumulate(ragged); !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("Accumulate(ragged): err = %v, want ErrShapeMismatch", err)
	}
}

func TestStatsAverageLogLikelihood_Empty(t *testing.T) {
	if got := NewStats(2, 2).AverageLogLikelihood(); !math.IsInf(got, -1) {
		t.Errorf("AverageLogLikelihood with T=0 = %f, want -Inf", got)
	}
}

func TestStatsIsSimilarTo(t *testing.T) {
	s := randomStats(rand.New(rand.NewSource(5)), 3, 2)
	o := s.Clone()
	o.SumPx[1][1] += 1e-10
	o.LogLikelihood *= 1 + 1e-7

	if s.Equal(o) {
		t.Error("Equal = true for perturbed stats")
	}
	if !s.IsSimilarTo(o, DefaultRelativeEpsilon, DefaultAbsoluteEpsilon) {
		t.Error("IsSimilarTo = false within tolerance")
	}
	o.T++
	if s.IsSimilarTo(o, 1, 1) {
		t.Error("IsSimilarTo = true with different T")
	}
	if s.IsSimilarTo(NewStats(3, 3), 1e9, 1e9) {
		t.Error("IsSimilarTo = true with different shape")
	}
}

func TestStatsCloneIndependent(t *testing.T) {
	s := randomStats(rand.New(rand.NewSource(6)), 2, 2)
	c := s.Clone()
	c.SumPxx[0][0] = -1
	if s.SumPxx[0][0] == -1 {
		t.Error("Clone shares storage")
	}
}

package ivector

import (
	"bytes"
	"errors"
	"math"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/ieee0824/voiceprint-go/gmm"
)

func testUBM(t *testing.T) *gmm.Machine {
	t.Helper()
	ubm, err := gmm.NewMachineWithParams(
		[]float64{0.3, 0.7},
		[][]float64{{0, 1, -1}, {2, 0, 0.5}},
		[][]float64{{1, 2, 0.5}, {0.25, 1, 4}},
	)
	if err != nil {
		t.Fatal(err)
	}
	return ubm
}

func randomMachine(t *testing.T, rng *rand.Rand, rt int) *Machine {
	t.Helper()
	m, err := NewMachine(testUBM(t), rt, DefaultVarianceThreshold)
	if err != nil {
		t.Fatal(err)
	}
	n := m.SupervectorLength()
	data := make([]float64, n*rt)
	for i := range data {
		data[i] = rng.NormFloat64()
	}
	if err := m.SetT(mat.NewDense(n, rt, data)); err != nil {
		t.Fatal(err)
	}
	return m
}

func randomStats(rng *rand.Rand) *gmm.Stats {
	s := gmm.NewStats(2, 3)
	for c := 0; c < 2; c++ {
		s.N[c] = 1 + 20*rng.Float64()
		for d := 0; d < 3; d++ {
			s.SumPx[c][d] = s.N[c] * rng.NormFloat64()
			s.SumPxx[c][d] = s.N[c] * (1 + rng.Float64())
		}
	}
	s.T = 30
	return s
}

func TestNewMachine(t *testing.T) {
	ubm := testUBM(t)
	m, err := NewMachine(ubm, 4, DefaultVarianceThreshold)
	if err != nil {
		t.Fatal(err)
	}
	if k, d, rt := m.Shape(); k != 2 || d != 3 || rt != 4 {
		t.Errorf("Shape() = (%d,%d,%d), want (2,3,4)", k, d, rt)
	}
	if n := m.SupervectorLength(); n != 6 {
		t.Errorf("SupervectorLength() = %d, want 6", n)
	}
	if r, c := m.T().Dims(); r != 6 || c != 4 {
		t.Errorf("T dims = %dx%d, want 6x4", r, c)
	}
	if !mat.Equal(m.T(), mat.NewDense(6, 4, nil)) {
		t.Error("T not zero-initialised")
	}
	want := ubm.VarianceSupervector()
	for i, v := range m.Sigma() {
		if v != want[i] {
			t.Errorf("Sigma[%d] = %f, want %f", i, v, want[i])
		}
	}

	for _, tc := range []struct {
		ubm *gmm.Machine
		rt  int
		thr float64
	}{
		{nil, 1, 1e-10},
		{ubm, 0, 1e-10},
		{ubm, 1, 0},
		{ubm, 1, -1},
	} {
		if _, err := NewMachine(tc.ubm, tc.rt, tc.thr); !errors.Is(err, gmm.ErrInvalidArgument) {
			t.Errorf("NewMachine(rt=%d, thr=%g): err = %v, want ErrInvalidArgument", tc.rt, tc.thr, err)
		}
	}
}

func TestSetters(t *testing.T) {
	m, err := NewMachine(testUBM(t), 2, DefaultVarianceThreshold)
	if err != nil {
		t.Fatal(err)
	}
	if err := m.SetT(mat.NewDense(5, 2, nil)); !errors.Is(err, gmm.ErrShapeMismatch) {
		t.Errorf("SetT wrong shape: err = %v", err)
	}
	if err := m.SetSigma(make([]float64, 5)); !errors.Is(err, gmm.ErrShapeMismatch) {
		t.Errorf("SetSigma wrong length: err = %v", err)
	}
	if err := m.SetSigma([]float64{1, 0, 2, 1e-20, 3, 4}); err != nil {
		t.Fatal(err)
	}
	if s := m.Sigma(); s[1] != DefaultVarianceThreshold || s[3] != DefaultVarianceThreshold || s[0] != 1 {
		t.Errorf("Sigma = %v, want floor applied", s)
	}
	if err := m.SetVarianceThreshold(1.5); err != nil {
		t.Fatal(err)
	}
	if s := m.Sigma(); s[0] != 1.5 || s[2] != 2 {
		t.Errorf("Sigma = %v, want new floor applied", s)
	}
	if err := m.SetVarianceThreshold(-1); !errors.Is(err, gmm.ErrInvalidArgument) {
		t.Errorf("negative threshold: err = %v", err)
	}
	if err := m.SetUBM(gmm.NewMachine(3, 3)); !errors.Is(err, gmm.ErrShapeMismatch) {
		t.Errorf("SetUBM wrong shape: err = %v", err)
	}
	other := testUBM(t)
	if err := m.SetUBM(other); err != nil || m.UBM() != other {
		t.Errorf("SetUBM: err = %v", err)
	}
}

func TestForward_ScalarClosedForm(t *testing.T) {
	ubm, err := gmm.NewMachineWithParams([]float64{1}, [][]float64{{0.5}}, [][]float64{{2}})
	if err != nil {
		t.Fatal(err)
	}
	m, err := NewMachine(ubm, 1, DefaultVarianceThreshold)
	if err != nil {
		t.Fatal(err)
	}
	const tv = 3.0
	if err := m.SetT(mat.NewDense(1, 1, []float64{tv})); err != nil {
		t.Fatal(err)
	}
	s := gmm.NewStats(1, 1)
	s.N[0], s.SumPx[0][0], s.T = 10, 8, 10

	w, err := m.Forward(s)
	if err != nil {
		t.Fatal(err)
	}
	// w = (t/σ)(f - n·m) / (1 + n·t²/σ)
	want := (tv / 2) * (8 - 10*0.5) / (1 + 10*tv*tv/2)
	if len(w) != 1 || math.Abs(w[0]-want) > 1e-12 {
		t.Errorf("Forward() = %v, want [%f]", w, want)
	}
}

func TestForward_StatsBuiltFromFields(t *testing.T) {
	ubm, err := gmm.NewMachineWithParams([]float64{1}, [][]float64{{0.5}}, [][]float64{{2}})
	if err != nil {
		t.Fatal(err)
	}
	m, err := NewMachine(ubm, 1, DefaultVarianceThreshold)
	if err != nil {
		t.Fatal(err)
	}
	if err := m.SetT(mat.NewDense(1, 1, []float64{3})); err != nil {
		t.Fatal(err)
	}
	lit := &gmm.Stats{N: []float64{10}, SumPx: [][]float64{{8}}, SumPxx: [][]float64{{0}}, T: 10}
	ref := gmm.NewStats(1, 1)
	ref.N[0], ref.SumPx[0][0], ref.T = 10, 8, 10

	got, err := m.Forward(lit)
	if err != nil {
		t.Fatalf("Forward: %v", err)
	}
	want, err := m.Forward(ref)
	if err != nil {
		t.Fatal(err)
	}
	if got[0] != want[0] {
		t.Errorf("Forward(literal) = %v, want %v", got, want)
	}
}

func TestForward_SolvesNormalEquations(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	m := randomMachine(t, rng, 3)
	s := randomStats(rng)
	w, err := m.Forward(s)
	if err != nil {
		t.Fatal(err)
	}

	// Rebuild the system from T, Sigma and the UBM and check the residual.
	tm := m.T()
	sigma := m.Sigma()
	prec := mat.NewDense(3, 3, nil)
	for i := 0; i < 3; i++ {
		prec.Set(i, i, 1)
	}
	b := mat.NewVecDense(3, nil)
	for c := 0; c < 2; c++ {
		for j := 0; j < 3; j++ {
			row := c*3 + j
			f := s.SumPx[c][j] - s.N[c]*m.UBM().Mean(c)[j]
			for p := 0; p < 3; p++ {
				b.SetVec(p, b.AtVec(p)+tm.At(row, p)*f/sigma[row])
				for q := 0; q < 3; q++ {
					prec.Set(p, q, prec.At(p, q)+s.N[c]*tm.At(row, p)*tm.At(row, q)/sigma[row])
				}
			}
		}
	}
	var got mat.VecDense
	got.MulVec(prec, mat.NewVecDense(3, w))
	for p := 0; p < 3; p++ {
		if math.Abs(got.AtVec(p)-b.AtVec(p)) > 1e-9 {
			t.Errorf("residual[%d] = %g", p, got.AtVec(p)-b.AtVec(p))
		}
	}
}

func TestForward_ZeroSubspace(t *testing.T) {
	m, err := NewMachine(testUBM(t), 2, DefaultVarianceThreshold)
	if err != nil {
		t.Fatal(err)
	}
	w, err := m.Forward(randomStats(rand.New(rand.NewSource(1))))
	if err != nil {
		t.Fatal(err)
	}
	for i, v := range w {
		if v != 0 {
			t.Errorf("w[%d] = %f, want 0", i, v)
		}
	}
}

func TestForward_RecomputesAfterUpdate(t *testing.T) {
	rng := rand.New(rand.NewSource(9))
	m := randomMachine(t, rng, 2)
	s := randomStats(rng)
	before, err := m.Forward(s)
	if err != nil {
		t.Fatal(err)
	}
	sigma := m.Sigma()
	for i := range sigma {
		sigma[i] *= 4
	}
	if err := m.SetSigma(sigma); err != nil {
		t.Fatal(err)
	}
	after, err := m.Forward(s)
	if err != nil {
		t.Fatal(err)
	}
	if before[0] == after[0] && before[1] == after[1] {
		t.Error("Forward ignored the Sigma update")
	}
}

func TestForward_Errors(t *testing.T) {
	m, err := NewMachine(testUBM(t), 2, DefaultVarianceThreshold)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.Forward(nil); !errors.Is(err, gmm.ErrInvalidArgument) {
		t.Errorf("nil stats: err = %v", err)
	}
	if _, err := m.Forward(gmm.NewStats(2, 4)); !errors.Is(err, gmm.ErrShapeMismatch) {
		t.Errorf("mismatched stats: err = %v", err)
	}
}

func TestEqualAndIsSimilarTo(t *testing.T) {
	a := randomMachine(t, rand.New(rand.NewSource(2)), 2)
	b := randomMachine(t, rand.New(rand.NewSource(2)), 2)
	if !a.Equal(b) || !a.IsSimilarTo(b, 0, 0) {
		t.Fatal("identical machines not equal")
	}
	tm := b.T()
	tm.Set(0, 0, tm.At(0, 0)+1e-10)
	if err := b.SetT(tm); err != nil {
		t.Fatal(err)
	}
	if a.Equal(b) {
		t.Error("Equal = true after T change")
	}
	if !a.IsSimilarTo(b, gmm.DefaultRelativeEpsilon, gmm.DefaultAbsoluteEpsilon) {
		t.Error("IsSimilarTo = false within tolerance")
	}
	c := randomMachine(t, rand.New(rand.NewSource(2)), 3)
	if a.Equal(c) || a.IsSimilarTo(c, 1, 1) {
		t.Error("machines of different rank compared equal")
	}
}

func TestSaveLoad(t *testing.T) {
	m := randomMachine(t, rand.New(rand.NewSource(4)), 3)
	if err := m.SetVarianceThreshold(0.3); err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if err := m.Save(&buf); err != nil {
		t.Fatal(err)
	}
	loaded, err := LoadMachine(bytes.NewReader(buf.Bytes()), m.UBM())
	if err != nil {
		t.Fatal(err)
	}
	if !loaded.Equal(m) {
		t.Error("loaded machine differs")
	}

	if _, err := LoadMachine(bytes.NewReader(buf.Bytes()), gmm.NewMachine(3, 3)); !errors.Is(err, gmm.ErrShapeMismatch) {
		t.Errorf("load against wrong ubm: err = %v, want ErrShapeMismatch", err)
	}

	var other bytes.Buffer
	if err := gmm.NewStats(2, 3).Save(&other); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadMachine(&other, m.UBM()); !errors.Is(err, gmm.ErrFormat) {
		t.Errorf("load stats record: err = %v, want ErrFormat", err)
	}
}

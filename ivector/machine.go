// Package ivector extracts i-vectors from GMM statistics with a Total
// Variability subspace (Dehak et al., "Front-End Factor Analysis for Speaker
// Verification", 2010).
package ivector

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/ieee0824/voiceprint-go/gmm"
	"github.com/ieee0824/voiceprint-go/internal/mathutil"
)

// DefaultVarianceThreshold is the default floor applied to Sigma.
const DefaultVarianceThreshold = 1e-10

// Machine holds a Total Variability matrix T (K*D x rt) and a diagonal
// residual covariance Sigma (K*D) over a UBM.
//
// The UBM is shared, not owned. A Machine is not safe for concurrent use.
type Machine struct {
	ubm               *gmm.Machine
	rt                int
	varianceThreshold float64
	t                 *mat.Dense
	sigma             []float64

	// per-component caches built by Precompute
	tSigmaInv  []*mat.Dense    // T_cᵀ Σ_c⁻¹, rt x D
	tSigmaInvT []*mat.SymDense // T_cᵀ Σ_c⁻¹ T_c, rt x rt
	stale      bool
}

// NewMachine creates a machine of rank rt over ubm. T starts at zero and
// Sigma at the UBM variance supervector, floored at varianceThreshold.
func NewMachine(ubm *gmm.Machine, rt int, varianceThreshold float64) (*Machine, error) {
	if ubm == nil {
		return nil, fmt.Errorf("new ivector machine: nil ubm: %w", gmm.ErrInvalidArgument)
	}
	if supervectorLength(ubm) == 0 {
		return nil, fmt.Errorf("new ivector machine: empty ubm: %w", gmm.ErrInvalidArgument)
	}
	if rt < 1 {
		return nil, fmt.Errorf("new ivector machine: rank %d < 1: %w", rt, gmm.ErrInvalidArgument)
	}
	if varianceThreshold <= 0 {
		return nil, fmt.Errorf("new ivector machine: variance threshold %g <= 0: %w", varianceThreshold, gmm.ErrInvalidArgument)
	}
	m := &Machine{
		ubm:               ubm,
		rt:                rt,
		varianceThreshold: varianceThreshold,
		t:                 mat.NewDense(supervectorLength(ubm), rt, nil),
		sigma:             ubm.VarianceSupervector(),
	}
	m.floorSigma()
	m.Precompute()
	return m, nil
}

func supervectorLength(ubm *gmm.Machine) int {
	k, d := ubm.Shape()
	return k * d
}

// Shape returns (components, feature dimension, rank).
func (m *Machine) Shape() (int, int, int) {
	k, d := m.ubm.Shape()
	return k, d, m.rt
}

// SupervectorLength returns K*D.
func (m *Machine) SupervectorLength() int { return supervectorLength(m.ubm) }

// Rank returns rt.
func (m *Machine) Rank() int { return m.rt }

// UBM returns the background model.
func (m *Machine) UBM() *gmm.Machine { return m.ubm }

// SetUBM replaces the background model. The new UBM must have the same
// supervector layout; T and Sigma are kept.
func (m *Machine) SetUBM(ubm *gmm.Machine) error {
	if ubm == nil {
		return fmt.Errorf("set ubm: nil: %w", gmm.ErrInvalidArgument)
	}
	k, d := m.ubm.Shape()
	if uk, ud := ubm.Shape(); uk != k || ud != d {
		return fmt.Errorf("set ubm: shape (%d,%d), machine (%d,%d): %w", uk, ud, k, d, gmm.ErrShapeMismatch)
	}
	m.ubm = ubm
	m.stale = true
	return nil
}

// T returns a copy of the Total Variability matrix.
func (m *Machine) T() *mat.Dense { return mat.DenseCopyOf(m.t) }

// SetT copies t into the Total Variability matrix.
func (m *Machine) SetT(t mat.Matrix) error {
	r, c := t.Dims()
	if wr, wc := m.t.Dims(); r != wr || c != wc {
		return fmt.Errorf("set T: got %dx%d, want %dx%d: %w", r, c, wr, wc, gmm.ErrShapeMismatch)
	}
	m.t.Copy(t)
	m.stale = true
	return nil
}

// Sigma returns a copy of the residual variance supervector.
func (m *Machine) Sigma() []float64 { return append([]float64(nil), m.sigma...) }

// SetSigma copies s into Sigma and applies the variance floor.
func (m *Machine) SetSigma(s []float64) error {
	if len(s) != len(m.sigma) {
		return fmt.Errorf("set sigma: got %d, want %d: %w", len(s), len(m.sigma), gmm.ErrShapeMismatch)
	}
	copy(m.sigma, s)
	m.floorSigma()
	m.stale = true
	return nil
}

// VarianceThreshold returns the floor applied to Sigma.
func (m *Machine) VarianceThreshold() float64 { return m.varianceThreshold }

// SetVarianceThreshold changes the Sigma floor and applies it.
func (m *Machine) SetVarianceThreshold(v float64) error {
	if v < 0 {
		return fmt.Errorf("set variance threshold: %g < 0: %w", v, gmm.ErrInvalidArgument)
	}
	m.varianceThreshold = v
	m.floorSigma()
	m.stale = true
	return nil
}

func (m *Machine) floorSigma() {
	for i, v := range m.sigma {
		if v < m.varianceThreshold {
			m.sigma[i] = m.varianceThreshold
		}
	}
}

// Precompute rebuilds T_cᵀΣ_c⁻¹ and T_cᵀΣ_c⁻¹T_c for every component.
// Forward calls it automatically after a parameter update.
func (m *Machine) Precompute() {
	k, d := m.ubm.Shape()
	m.tSigmaInv = make([]*mat.Dense, k)
	m.tSigmaInvT = make([]*mat.SymDense, k)
	for c := 0; c < k; c++ {
		tc := m.t.Slice(c*d, (c+1)*d, 0, m.rt)
		a := mat.NewDense(m.rt, d, nil)
		for r := 0; r < m.rt; r++ {
			for j := 0; j < d; j++ {
				a.Set(r, j, tc.At(j, r)/m.sigma[c*d+j])
			}
		}
		var p mat.Dense
		p.Mul(a, tc)
		sym := mat.NewSymDense(m.rt, nil)
		for i := 0; i < m.rt; i++ {
			for j := i; j < m.rt; j++ {
				sym.SetSym(i, j, 0.5*(p.At(i, j)+p.At(j, i)))
			}
		}
		m.tSigmaInv[c] = a
		m.tSigmaInvT[c] = sym
	}
	m.stale = false
}

// Forward computes the i-vector of s:
//
//	w = (I + Σ_c n_c T_cᵀΣ_c⁻¹T_c)⁻¹ Σ_c T_cᵀΣ_c⁻¹ (sumPx_c - n_c m_c)
//
// where m_c are the UBM means.
func (m *Machine) Forward(s *gmm.Stats) ([]float64, error) {
	if s == nil {
		return nil, fmt.Errorf("ivector forward: nil stats: %w", gmm.ErrInvalidArgument)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("ivector forward: %w", err)
	}
	k, d := m.ubm.Shape()
	if sk, sd := s.Shape(); sk != k || sd != d {
		return nil, fmt.Errorf("ivector forward: stats shape (%d,%d), ubm (%d,%d): %w", sk, sd, k, d, gmm.ErrShapeMismatch)
	}
	if m.stale || len(m.tSigmaInv) != k {
		m.Precompute()
	}

	prec := mat.NewSymDense(m.rt, nil)
	for i := 0; i < m.rt; i++ {
		prec.SetSym(i, i, 1)
	}
	b := mat.NewVecDense(m.rt, nil)
	tmp := mat.NewVecDense(m.rt, nil)
	fnorm := make([]float64, d)
	for c := 0; c < k; c++ {
		n := s.N[c]
		tt := m.tSigmaInvT[c]
		for i := 0; i < m.rt; i++ {
			for j := i; j < m.rt; j++ {
				prec.SetSym(i, j, prec.At(i, j)+n*tt.At(i, j))
			}
		}

		mean := m.ubm.Mean(c)
		for j := range fnorm {
			fnorm[j] = s.SumPx[c][j] - n*mean[j]
		}
		tmp.MulVec(m.tSigmaInv[c], mat.NewVecDense(d, fnorm))
		b.AddVec(b, tmp)
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(prec); !ok {
		return nil, fmt.Errorf("ivector forward: precision matrix not positive definite: %w", gmm.ErrInvalidArgument)
	}
	w := mat.NewVecDense(m.rt, nil)
	if err := chol.SolveVecTo(w, b); err != nil {
		return nil, fmt.Errorf("ivector forward: %w", err)
	}
	return append([]float64(nil), w.RawVector().Data...), nil
}

// Equal reports exact equality of rank, threshold, T, Sigma and UBM parameters.
func (m *Machine) Equal(o *Machine) bool {
	if o == nil || m.rt != o.rt || m.varianceThreshold != o.varianceThreshold {
		return false
	}
	if !m.ubm.Equal(o.ubm) {
		return false
	}
	return mat.Equal(m.t, o.t) && floats.Equal(m.sigma, o.sigma)
}

// IsSimilarTo is Equal under the relative/absolute tolerance rule. Rank must match exactly.
func (m *Machine) IsSimilarTo(o *Machine, rEps, aEps float64) bool {
	if o == nil || m.rt != o.rt {
		return false
	}
	if !m.ubm.IsSimilarTo(o.ubm, rEps, aEps) {
		return false
	}
	if r, c := m.t.Dims(); !sameDims(o.t, r, c) {
		return false
	}
	return mathutil.IsClose(m.varianceThreshold, o.varianceThreshold, rEps, aEps) &&
		mathutil.AllClose(m.t.RawMatrix().Data, o.t.RawMatrix().Data, rEps, aEps) &&
		mathutil.AllClose(m.sigma, o.sigma, rEps, aEps)
}

func sameDims(a mat.Matrix, r, c int) bool {
	ar, ac := a.Dims()
	return ar == r && ac == c
}

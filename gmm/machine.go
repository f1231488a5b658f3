package gmm

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/ieee0824/voiceprint-go/internal/mathutil"
)

// Machine is a Gaussian Mixture Model with diagonal covariance.
//
// Parameters are read through Mean, Variance and Weights and modified in
// place through the Update* accessors, which invalidate the likelihood
// cache. Weights changed through UpdateWeights need RecomputeLogWeights
// before the next likelihood evaluation. A Machine is not safe for
// concurrent use.
type Machine struct {
	gaussians  []Gaussian
	dim        int
	weights    []float64
	logWeights []float64

	// SoA (Struct of Arrays) cache for fast LogProb.
	// Built by Precompute(). All component data packed contiguously.
	soaMean       []float64 // [k*dim] means packed contiguously
	soaInvVar     []float64 // [k*dim] inverse variances packed contiguously
	soaMeanInvVar []float64 // [k*dim] mean*invVar, for the BLAS batch path
	soaConst      []float64 // [k] logWeight - logNormConst
	soaBias       []float64 // [k] soaConst - 0.5*sum(mean^2*invVar)
	stale         bool
}

// NewMachine creates a machine with k components of dimension dim: uniform
// weights, zero means and unit variances.
func NewMachine(k, dim int) *Machine {
	m := &Machine{
		gaussians:  make([]Gaussian, k),
		dim:        dim,
		weights:    make([]float64, k),
		logWeights: make([]float64, k),
	}
	for i := range m.gaussians {
		m.gaussians[i] = NewGaussian(dim)
		m.weights[i] = 1.0 / float64(k)
	}
	m.RecomputeLogWeights()
	m.Precompute()
	return m
}

// NewMachineWithParams creates a machine from given weights, means and variances.
func NewMachineWithParams(weights []float64, means, variances [][]float64) (*Machine, error) {
	k := len(weights)
	if k == 0 {
		return nil, fmt.Errorf("new machine: no components: %w", ErrInvalidArgument)
	}
	if len(means) != k || len(variances) != k {
		return nil, fmt.Errorf("new machine: %d weights, %d means, %d variances: %w",
			k, len(means), len(variances), ErrShapeMismatch)
	}
	dim := len(means[0])
	if dim == 0 {
		return nil, fmt.Errorf("new machine: zero feature dimension: %w", ErrInvalidArgument)
	}
	if !mathutil.IsRectangular(means, dim) || !mathutil.IsRectangular(variances, dim) {
		return nil, fmt.Errorf("new machine: ragged means or variances: %w", ErrShapeMismatch)
	}
	m := NewMachine(k, dim)
	copy(m.weights, weights)
	m.RecomputeLogWeights()
	for i := range m.gaussians {
		copy(m.gaussians[i].Mean, means[i])
		copy(m.gaussians[i].Variance, variances[i])
		m.gaussians[i].ApplyVarianceThresholds()
	}
	m.Precompute()
	return m, nil
}

// NumGaussians returns the number of mixture components.
func (m *Machine) NumGaussians() int { return len(m.gaussians) }

// NumInputs returns the feature dimension.
func (m *Machine) NumInputs() int { return m.dim }

// Shape returns (components, feature dimension).
func (m *Machine) Shape() (int, int) { return len(m.gaussians), m.dim }

// Weights returns the mixture weights. The slice must not be modified; use UpdateWeights.
func (m *Machine) Weights() []float64 { return m.weights }

// LogWeights returns the cached log mixture weights.
func (m *Machine) LogWeights() []float64 { return m.logWeights }

// SetWeights copies w into the mixture weights and refreshes the log weights.
func (m *Machine) SetWeights(w []float64) error {
	if len(w) != len(m.weights) {
		return fmt.Errorf("set weights: got %d, want %d: %w", len(w), len(m.weights), ErrShapeMismatch)
	}
	copy(m.weights, w)
	m.RecomputeLogWeights()
	return nil
}

// UpdateWeights returns the weights for in-place modification.
// Call RecomputeLogWeights when done.
func (m *Machine) UpdateWeights() []float64 {
	m.stale = true
	return m.weights
}

// RecomputeLogWeights refreshes the log-weight cache from the weights.
func (m *Machine) RecomputeLogWeights() {
	for i, w := range m.weights {
		m.logWeights[i] = math.Log(w)
	}
	m.stale = true
}

// Mean returns the mean of component i. The slice must not be modified; use UpdateMean.
func (m *Machine) Mean(i int) []float64 { return m.gaussians[i].Mean }

// UpdateMean returns the mean of component i for in-place modification.
func (m *Machine) UpdateMean(i int) []float64 {
	m.stale = true
	return m.gaussians[i].Mean
}

// SetMean copies v into the mean of component i.
func (m *Machine) SetMean(i int, v []float64) error {
	if len(v) != m.dim {
		return fmt.Errorf("set mean %d: got dim %d, want %d: %w", i, len(v), m.dim, ErrShapeMismatch)
	}
	copy(m.UpdateMean(i), v)
	return nil
}

// Variance returns the variance of component i. The slice must not be modified; use UpdateVariance.
func (m *Machine) Variance(i int) []float64 { return m.gaussians[i].Variance }

// UpdateVariance returns the variance of component i for in-place modification.
// Call ApplyVarianceFloor(i) when done.
func (m *Machine) UpdateVariance(i int) []float64 {
	m.stale = true
	return m.gaussians[i].Variance
}

// SetVariance copies v into the variance of component i and applies the floor.
func (m *Machine) SetVariance(i int, v []float64) error {
	if len(v) != m.dim {
		return fmt.Errorf("set variance %d: got dim %d, want %d: %w", i, len(v), m.dim, ErrShapeMismatch)
	}
	copy(m.UpdateVariance(i), v)
	m.ApplyVarianceFloor(i)
	return nil
}

// VarianceThresholds returns the per-dimension variance floor of component i.
func (m *Machine) VarianceThresholds(i int) []float64 { return m.gaussians[i].VarianceThresholds }

// SetVarianceThreshold sets the same floor on every dimension of every
// component and applies it.
func (m *Machine) SetVarianceThreshold(v float64) {
	for i := range m.gaussians {
		mathutil.FillVec(m.gaussians[i].VarianceThresholds, v)
		m.ApplyVarianceFloor(i)
	}
}

// SetVarianceThresholds sets the per-dimension floor of component i and applies it.
func (m *Machine) SetVarianceThresholds(i int, v []float64) error {
	if len(v) != m.dim {
		return fmt.Errorf("set variance thresholds %d: got dim %d, want %d: %w", i, len(v), m.dim, ErrShapeMismatch)
	}
	copy(m.gaussians[i].VarianceThresholds, v)
	m.ApplyVarianceFloor(i)
	return nil
}

// ApplyVarianceFloor raises the variances of component i to at least their thresholds.
func (m *Machine) ApplyVarianceFloor(i int) {
	m.gaussians[i].ApplyVarianceThresholds()
	m.stale = true
}

// MeanSupervector returns all component means concatenated (length k*dim).
func (m *Machine) MeanSupervector() []float64 {
	sv := make([]float64, 0, len(m.gaussians)*m.dim)
	for i := range m.gaussians {
		sv = append(sv, m.gaussians[i].Mean...)
	}
	return sv
}

// VarianceSupervector returns all component variances concatenated (length k*dim).
func (m *Machine) VarianceSupervector() []float64 {
	sv := make([]float64, 0, len(m.gaussians)*m.dim)
	for i := range m.gaussians {
		sv = append(sv, m.gaussians[i].Variance...)
	}
	return sv
}

// Precompute rebuilds the per-component constants and the SoA cache.
// Likelihood methods call it automatically after a parameter update.
func (m *Machine) Precompute() {
	k := len(m.gaussians)
	dim := m.dim
	m.soaMean = make([]float64, k*dim)
	m.soaInvVar = make([]float64, k*dim)
	m.soaMeanInvVar = make([]float64, k*dim)
	m.soaConst = make([]float64, k)
	m.soaBias = make([]float64, k)
	for i := range m.gaussians {
		g := &m.gaussians[i]
		g.Precompute()
		off := i * dim
		copy(m.soaMean[off:off+dim], g.Mean)
		copy(m.soaInvVar[off:off+dim], g.invVariance)
		floats.MulTo(m.soaMeanInvVar[off:off+dim], g.Mean, g.invVariance)
		m.soaConst[i] = m.logWeights[i] - g.logNormConst
		m.soaBias[i] = m.soaConst[i] - 0.5*floats.Dot(g.Mean, m.soaMeanInvVar[off:off+dim])
	}
	m.stale = false
}

func (m *Machine) ensureCache() {
	if m.stale || m.soaMean == nil {
		m.Precompute()
	}
}

// LogProb computes log P(x | this GMM) = log sum_k w_k * N(x; μ_k, σ_k).
func (m *Machine) LogProb(x []float64) float64 {
	m.ensureCache()
	logSum := mathutil.LogZero
	for c := range m.gaussians {
		logSum = mathutil.LogAdd(logSum, m.componentLogProb(c, x))
	}
	return logSum
}

// componentLogProb returns log(w_c) + log N(x; μ_c, σ_c) from the SoA cache.
func (m *Machine) componentLogProb(c int, x []float64) float64 {
	off := c * m.dim
	maha := mahalanobis(x, m.soaMean[off:off+m.dim], m.soaInvVar[off:off+m.dim])
	return m.soaConst[c] - 0.5*maha
}

// LogProbBatch computes LogProb for multiple observations, writing results into dst.
func (m *Machine) LogProbBatch(xs [][]float64, dst []float64) {
	m.ensureCache()
	for fi, x := range xs {
		logSum := mathutil.LogZero
		for c := range m.gaussians {
			logSum = mathutil.LogAdd(logSum, m.componentLogProb(c, x))
		}
		dst[fi] = logSum
	}
}

// Clone returns a deep copy of m.
func (m *Machine) Clone() *Machine {
	c := &Machine{
		gaussians:  make([]Gaussian, len(m.gaussians)),
		dim:        m.dim,
		weights:    append([]float64(nil), m.weights...),
		logWeights: append([]float64(nil), m.logWeights...),
	}
	for i := range m.gaussians {
		c.gaussians[i] = m.gaussians[i].clone()
	}
	c.Precompute()
	return c
}

// Equal reports exact equality of shape, weights, means, variances and thresholds.
func (m *Machine) Equal(o *Machine) bool {
	if o == nil || m.dim != o.dim || len(m.gaussians) != len(o.gaussians) {
		return false
	}
	if !floats.Equal(m.weights, o.weights) {
		return false
	}
	for i := range m.gaussians {
		a, b := &m.gaussians[i], &o.gaussians[i]
		if !floats.Equal(a.Mean, b.Mean) || !floats.Equal(a.Variance, b.Variance) ||
			!floats.Equal(a.VarianceThresholds, b.VarianceThresholds) {
			return false
		}
	}
	return true
}

// IsSimilarTo reports approximate equality under the relative/absolute tolerance rule.
// Shapes must match exactly.
func (m *Machine) IsSimilarTo(o *Machine, rEps, aEps float64) bool {
	if o == nil || m.dim != o.dim || len(m.gaussians) != len(o.gaussians) {
		return false
	}
	if !mathutil.AllClose(m.weights, o.weights, rEps, aEps) {
		return false
	}
	for i := range m.gaussians {
		a, b := &m.gaussians[i], &o.gaussians[i]
		if !mathutil.AllClose(a.Mean, b.Mean, rEps, aEps) ||
			!mathutil.AllClose(a.Variance, b.Variance, rEps, aEps) ||
			!mathutil.AllClose(a.VarianceThresholds, b.VarianceThresholds, rEps, aEps) {
			return false
		}
	}
	return true
}

package gmm

import (
	"fmt"
)

// BaseTrainer runs the E-step of GMM training: it accumulates sufficient
// statistics of data against a machine and carries the flags that tell an
// M-step which parameters to re-estimate.
type BaseTrainer struct {
	updateWeights   bool
	updateMeans     bool
	updateVariances bool
	threshold       float64
	stats           *Stats
}

// BaseTrainerOption configures a BaseTrainer.
type BaseTrainerOption func(*BaseTrainer)

// WithUpdates selects which parameters an M-step re-estimates.
func WithUpdates(weights, means, variances bool) BaseTrainerOption {
	return func(t *BaseTrainer) {
		t.updateWeights = weights
		t.updateMeans = means
		t.updateVariances = variances
	}
}

// WithResponsibilityThreshold sets the minimum accumulated responsibility a
// component needs before its mean and variance are estimated from data.
func WithResponsibilityThreshold(v float64) BaseTrainerOption {
	return func(t *BaseTrainer) {
		t.threshold = v
	}
}

// NewBaseTrainer creates a trainer that updates means only, with the
// responsibility threshold at machine epsilon.
func NewBaseTrainer(opts ...BaseTrainerOption) *BaseTrainer {
	t := &BaseTrainer{
		updateMeans: true,
		threshold:   DefaultVarianceThreshold,
		stats:       NewStats(0, 0),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Initialize sizes the statistics accumulator to m and zeroes it.
func (t *BaseTrainer) Initialize(m *Machine) error {
	if m == nil {
		return fmt.Errorf("initialize base trainer: nil machine: %w", ErrInvalidArgument)
	}
	t.stats.Resize(m.Shape())
	return nil
}

// EStep resets the statistics and accumulates data against m.
func (t *BaseTrainer) EStep(m *Machine, data [][]float64) error {
	if len(data) == 0 {
		return fmt.Errorf("e-step: no data: %w", ErrInvalidArgument)
	}
	if k, d := t.stats.Shape(); k != m.NumGaussians() || d != m.NumInputs() {
		t.stats.Resize(m.Shape())
	} else {
		t.stats.Reset()
	}
	return m.AccStatistics(data, t.stats)
}

// ComputeLikelihood returns the average log-likelihood per sample of the
// last E-step, or -Inf when no samples were accumulated.
func (t *BaseTrainer) ComputeLikelihood() float64 {
	return t.stats.AverageLogLikelihood()
}

// Stats returns the accumulated statistics.
func (t *BaseTrainer) Stats() *Stats { return t.stats }

// SetStats replaces the statistics, e.g. with ones accumulated elsewhere and merged.
func (t *BaseTrainer) SetStats(s *Stats) error {
	if s == nil {
		return fmt.Errorf("set stats: nil: %w", ErrInvalidArgument)
	}
	t.stats = s
	return nil
}

// UpdateWeights reports whether an M-step re-estimates mixture weights.
func (t *BaseTrainer) UpdateWeights() bool { return t.updateWeights }

// UpdateMeans reports whether an M-step re-estimates means.
func (t *BaseTrainer) UpdateMeans() bool { return t.updateMeans }

// UpdateVariances reports whether an M-step re-estimates variances.
func (t *BaseTrainer) UpdateVariances() bool { return t.updateVariances }

// ResponsibilityThreshold returns the minimum occupancy for mean/variance updates.
func (t *BaseTrainer) ResponsibilityThreshold() float64 { return t.threshold }

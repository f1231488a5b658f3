// Package mapadapt implements Maximum-A-Posteriori adaptation of a GMM from a
// prior (universal background) model, following Reynolds et al., "Speaker
// Verification Using Adapted Gaussian Mixture Models", DSP 2000.
package mapadapt

import (
	"fmt"
	"math"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/floats"

	"github.com/ieee0824/voiceprint-go/gmm"
	"github.com/ieee0824/voiceprint-go/internal/mathutil"
)

// BaseTrainer supplies E-step statistics and update flags to the MAP M-step.
// *gmm.BaseTrainer implements it. Implementations must be comparable
// (typically pointers) since Trainer.Equal compares them by identity.
type BaseTrainer interface {
	Initialize(m *gmm.Machine) error
	EStep(m *gmm.Machine, data [][]float64) error
	ComputeLikelihood() float64
	Stats() *gmm.Stats
	UpdateWeights() bool
	UpdateMeans() bool
	UpdateVariances() bool
	ResponsibilityThreshold() float64
}

// Trainer adapts a target GMM towards data while staying close to a prior.
//
// The base trainer and the prior are shared, not owned: callers must not
// modify either while an M-step runs. A Trainer is not safe for concurrent use.
type Trainer struct {
	base  BaseTrainer
	prior *gmm.Machine
	cfg   Config
	log   zerolog.Logger

	alphas    []float64 // per-component adaptation coefficients of the last M-step
	mlWeights []float64
}

// Option configures a Trainer.
type Option func(*Trainer)

// WithLogger sets the logger used for per-step diagnostics.
func WithLogger(l zerolog.Logger) Option {
	return func(t *Trainer) {
		t.log = l
	}
}

// NewTrainer creates a MAP trainer. prior may be nil and set later with SetPrior.
func NewTrainer(base BaseTrainer, prior *gmm.Machine, cfg Config, opts ...Option) (*Trainer, error) {
	if base == nil {
		return nil, fmt.Errorf("new map trainer: nil base trainer: %w", gmm.ErrInvalidArgument)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	t := &Trainer{
		base:  base,
		prior: prior,
		cfg:   cfg,
		log:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// Base returns the shared base trainer.
func (t *Trainer) Base() BaseTrainer { return t.base }

// Prior returns the prior model, or nil if none is set.
func (t *Trainer) Prior() *gmm.Machine { return t.prior }

// SetPrior replaces the prior model. It returns false and keeps the current
// prior when p is nil.
func (t *Trainer) SetPrior(p *gmm.Machine) bool {
	if p == nil {
		return false
	}
	t.prior = p
	return true
}

// Config returns the adaptation configuration.
func (t *Trainer) Config() Config { return t.cfg }

// SetConfig validates and replaces the adaptation configuration.
func (t *Trainer) SetConfig(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	t.cfg = cfg
	return nil
}

// Alphas returns a copy of the adaptation coefficients computed by the last M-step.
func (t *Trainer) Alphas() []float64 { return append([]float64(nil), t.alphas...) }

// MLWeights returns a copy of the maximum-likelihood weights of the last
// M-step that updated weights.
func (t *Trainer) MLWeights() []float64 { return append([]float64(nil), t.mlWeights...) }

// Initialize prepares target for adaptation: the base trainer is initialised
// for it, and its weights, means and variances are set to the prior's.
func (t *Trainer) Initialize(target *gmm.Machine) error {
	if err := t.checkModels(target); err != nil {
		return fmt.Errorf("map initialize: %w", err)
	}
	if err := t.base.Initialize(target); err != nil {
		return fmt.Errorf("map initialize: %w", err)
	}

	if err := target.SetWeights(t.prior.Weights()); err != nil {
		return fmt.Errorf("map initialize: %w", err)
	}
	for i := 0; i < target.NumGaussians(); i++ {
		copy(target.UpdateMean(i), t.prior.Mean(i))
		copy(target.UpdateVariance(i), t.prior.Variance(i))
		target.ApplyVarianceFloor(i)
	}
	t.resizeCache(target.NumGaussians())
	return nil
}

// checkModels verifies the prior is set and shaped like target.
func (t *Trainer) checkModels(target *gmm.Machine) error {
	if t.prior == nil {
		return fmt.Errorf("prior GMM has not been set: %w", gmm.ErrPrecondition)
	}
	if target == nil {
		return fmt.Errorf("nil target: %w", gmm.ErrInvalidArgument)
	}
	if target == t.prior {
		return fmt.Errorf("target is the prior itself: %w", gmm.ErrInvalidArgument)
	}
	pk, pd := t.prior.Shape()
	k, d := target.Shape()
	if pk != k || pd != d {
		return fmt.Errorf("prior shape (%d,%d), target (%d,%d): %w", pk, pd, k, d, gmm.ErrShapeMismatch)
	}
	return nil
}

func (t *Trainer) resizeCache(k int) {
	if len(t.alphas) != k {
		t.alphas = make([]float64, k)
		t.mlWeights = make([]float64, k)
	}
}

// MStep re-estimates the parameters of target selected by the base trainer's
// flags from its current statistics, blending each with the prior according
// to the per-component adaptation coefficient (Reynolds Eq. 11–13).
//
// All checks run before target is modified.
func (t *Trainer) MStep(target *gmm.Machine) error {
	if err := t.checkModels(target); err != nil {
		return fmt.Errorf("map m-step: %w", err)
	}
	s := t.base.Stats()
	if s == nil {
		return fmt.Errorf("map m-step: base trainer has no statistics: %w", gmm.ErrPrecondition)
	}
	if err := s.Validate(); err != nil {
		return fmt.Errorf("map m-step: %w", err)
	}
	k, d := target.Shape()
	if sk, sd := s.Shape(); sk != k || sd != d {
		return fmt.Errorf("map m-step: stats shape (%d,%d), target (%d,%d): %w", sk, sd, k, d, gmm.ErrShapeMismatch)
	}
	if t.base.UpdateWeights() && s.T == 0 {
		return fmt.Errorf("map m-step: weight update with no samples: %w", gmm.ErrInvalidArgument)
	}

	t.resizeCache(k)
	t.computeAlphas(s)

	if t.base.UpdateWeights() {
		t.updateWeights(target, s)
	}

	threshold := t.base.ResponsibilityThreshold()
	starved := 0
	for i := 0; i < k; i++ {
		if s.N[i] < threshold {
			starved++
		}
	}

	if t.base.UpdateMeans() {
		for i := 0; i < k; i++ {
			priorMean := t.prior.Mean(i)
			mean := target.UpdateMean(i)
			n := s.N[i]
			if n < threshold {
				copy(mean, priorMean)
				continue
			}
			a := t.alphas[i]
			for j, px := range s.SumPx[i] {
				mean[j] = a*(px/n) + (1-a)*priorMean[j]
			}
		}
	}

	if t.base.UpdateVariances() {
		for i := 0; i < k; i++ {
			priorMean := t.prior.Mean(i)
			priorVar := t.prior.Variance(i)
			mean := target.Mean(i)
			variance := target.UpdateVariance(i)
			n := s.N[i]
			if n < threshold {
				// (priorVar + priorMean), not the prior second moment
				// (priorVar + priorMean²); see DESIGN.md.
				for j := range variance {
					variance[j] = (priorVar[j] + priorMean[j]) - mean[j]*mean[j]
				}
			} else {
				a := t.alphas[i]
				for j, pxx := range s.SumPxx[i] {
					variance[j] = a*pxx/n + (1-a)*(priorVar[j]+priorMean[j]) - mean[j]*mean[j]
				}
			}
			target.ApplyVarianceFloor(i)
		}
	}

	t.log.Debug().
		Int("components", k).
		Int("starved", starved).
		Uint64("samples", s.T).
		Bool("weights", t.base.UpdateWeights()).
		Bool("means", t.base.UpdateMeans()).
		Bool("variances", t.base.UpdateVariances()).
		Msg("map m-step")
	return nil
}

// computeAlphas fills the coefficient cache: fixed Alpha, or n/(n+r).
func (t *Trainer) computeAlphas(s *gmm.Stats) {
	if !t.cfg.DataDependent {
		mathutil.FillVec(t.alphas, t.cfg.Alpha)
		return
	}
	r := t.cfg.RelevanceFactor
	for i, n := range s.N {
		t.alphas[i] = n / (n + r)
	}
}

// updateWeights blends ML and prior weights and rescales them to sum to one.
func (t *Trainer) updateWeights(target *gmm.Machine, s *gmm.Stats) {
	total := float64(s.T)
	for i, n := range s.N {
		t.mlWeights[i] = n / total
	}
	prior := t.prior.Weights()
	w := target.UpdateWeights()
	for i, a := range t.alphas {
		w[i] = a*t.mlWeights[i] + (1-a)*prior[i]
	}
	gamma := floats.Sum(w)
	for i := range w {
		w[i] /= gamma
	}
	target.RecomputeLogWeights()
	t.log.Debug().Float64("gamma", gamma).Msg("map weights renormalised")
}

// Result summarises a Train run.
type Result struct {
	Iterations    int     // M-steps performed
	LogLikelihood float64 // average log-likelihood per sample after the last E-step
	Converged     bool
}

// Train initialises target from the prior and alternates E- and M-steps on
// data until the average log-likelihood stabilises or opts.MaxIterations
// M-steps have run.
func (t *Trainer) Train(target *gmm.Machine, data [][]float64, opts TrainOptions) (Result, error) {
	if err := opts.Validate(); err != nil {
		return Result{}, err
	}
	if err := t.Initialize(target); err != nil {
		return Result{}, err
	}
	if err := t.base.EStep(target, data); err != nil {
		return Result{}, fmt.Errorf("map train: %w", err)
	}

	res := Result{LogLikelihood: t.base.ComputeLikelihood()}
	t.log.Info().Int("iteration", 0).Float64("avg_log_likelihood", res.LogLikelihood).Msg("map training started")

	for iter := 1; iter <= opts.MaxIterations; iter++ {
		prev := res.LogLikelihood
		if err := t.MStep(target); err != nil {
			return res, err
		}
		if err := t.base.EStep(target, data); err != nil {
			return res, fmt.Errorf("map train: %w", err)
		}
		res.Iterations = iter
		res.LogLikelihood = t.base.ComputeLikelihood()
		t.log.Info().Int("iteration", iter).Float64("avg_log_likelihood", res.LogLikelihood).Msg("map iteration")

		if opts.ConvergenceThreshold > 0 && math.Abs((prev-res.LogLikelihood)/prev) <= opts.ConvergenceThreshold {
			res.Converged = true
			break
		}
	}
	return res, nil
}

// Equal reports exact equality of configuration and identity of the shared
// base trainer and prior.
func (t *Trainer) Equal(o *Trainer) bool {
	if o == nil {
		return false
	}
	return t.base == o.base &&
		t.cfg.RelevanceFactor == o.cfg.RelevanceFactor &&
		t.prior == o.prior &&
		t.cfg.Alpha == o.cfg.Alpha &&
		t.cfg.DataDependent == o.cfg.DataDependent
}

// IsSimilarTo compares relevance factor and alpha within tolerance and the
// prior and adaptation mode exactly. The base trainers are not compared.
func (t *Trainer) IsSimilarTo(o *Trainer, rEps, aEps float64) bool {
	if o == nil {
		return false
	}
	return mathutil.IsClose(t.cfg.RelevanceFactor, o.cfg.RelevanceFactor, rEps, aEps) &&
		t.prior == o.prior &&
		mathutil.IsClose(t.cfg.Alpha, o.cfg.Alpha, rEps, aEps) &&
		t.cfg.DataDependent == o.cfg.DataDependent
}

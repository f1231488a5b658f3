package gmm

import "math"

// DefaultVarianceThreshold is the default variance floor, the float64 machine epsilon.
const DefaultVarianceThreshold = 2.220446049250313e-16

// Gaussian represents a single multivariate Gaussian component with diagonal covariance.
type Gaussian struct {
	Mean               []float64 // [dim]
	Variance           []float64 // [dim] diagonal covariance
	VarianceThresholds []float64 // [dim] per-dimension variance floor

	// Pre-computed values
	logNormConst float64
	invVariance  []float64 // [dim] 1/Variance, precomputed to avoid division in hot loop
}

// NewGaussian returns a zero-mean, unit-variance Gaussian of dimension dim.
func NewGaussian(dim int) Gaussian {
	g := Gaussian{
		Mean:               make([]float64, dim),
		Variance:           make([]float64, dim),
		VarianceThresholds: make([]float64, dim),
	}
	for d := 0; d < dim; d++ {
		g.Variance[d] = 1.0
		g.VarianceThresholds[d] = DefaultVarianceThreshold
	}
	g.Precompute()
	return g
}

// Precompute recalculates cached normalization constants and inverse variances.
// Must be called after updating Mean or Variance.
func (g *Gaussian) Precompute() {
	dim := len(g.Mean)
	g.logNormConst = float64(dim)/2.0*math.Log(2*math.Pi) + 0.5*sumLog(g.Variance)
	if cap(g.invVariance) < dim {
		g.invVariance = make([]float64, dim)
	}
	g.invVariance = g.invVariance[:dim]
	for i := range g.Variance {
		g.invVariance[i] = 1.0 / g.Variance[i]
	}
}

// ApplyVarianceThresholds raises every variance below its threshold to the
// threshold and refreshes the cached constants.
func (g *Gaussian) ApplyVarianceThresholds() {
	for d, v := range g.Variance {
		if v < g.VarianceThresholds[d] {
			g.Variance[d] = g.VarianceThresholds[d]
		}
	}
	g.Precompute()
}

// LogProb computes the log probability of observation x under this Gaussian.
func (g *Gaussian) LogProb(x []float64) float64 {
	return -0.5*mahalanobis(x, g.Mean, g.invVariance) - g.logNormConst
}

func (g *Gaussian) clone() Gaussian {
	c := Gaussian{
		Mean:               append([]float64(nil), g.Mean...),
		Variance:           append([]float64(nil), g.Variance...),
		VarianceThresholds: append([]float64(nil), g.VarianceThresholds...),
	}
	c.Precompute()
	return c
}

// mahalanobis computes sum((x[i]-mean[i])^2 * invVar[i]).
func mahalanobis(x, mean, invVar []float64) float64 {
	maha := 0.0
	for i, xi := range x {
		diff := xi - mean[i]
		maha += diff * diff * invVar[i]
	}
	return maha
}

func sumLog(v []float64) float64 {
	s := 0.0
	for _, x := range v {
		s += math.Log(x)
	}
	return s
}

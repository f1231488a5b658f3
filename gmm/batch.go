package gmm

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/ieee0824/voiceprint-go/internal/blas"
	"github.com/ieee0824/voiceprint-go/internal/mathutil"
)

// batchFrames is the number of frames scored per Dgemm call in AccStatistics.
const batchFrames = 256

// BatchWorkspace holds pre-allocated buffers for LogProbBatchMat.
type BatchWorkspace struct {
	Xsq   []float64 // T * D
	Term1 []float64 // T * maxK
	Term2 []float64 // T * maxK
	LP    []float64 // T * maxK per-component weighted log-likelihoods
	flat  []float64 // T * D packed frames
}

// NewBatchWorkspace creates a workspace for T frames, D dimensions, maxK mixture components.
func NewBatchWorkspace(T, D, maxK int) *BatchWorkspace {
	ws := &BatchWorkspace{}
	ws.EnsureBatchWorkspace(T, D, maxK)
	return ws
}

// EnsureBatchWorkspace grows workspace buffers if needed.
func (ws *BatchWorkspace) EnsureBatchWorkspace(T, D, maxK int) {
	ws.Xsq = grow(ws.Xsq, T*D)
	ws.flat = grow(ws.flat, T*D)
	ws.Term1 = grow(ws.Term1, T*maxK)
	ws.Term2 = grow(ws.Term2, T*maxK)
	ws.LP = grow(ws.LP, T*maxK)
}

func grow(buf []float64, n int) []float64 {
	if cap(buf) < n {
		return make([]float64, n)
	}
	return buf[:n]
}

// LogProbBatchMat computes log P(x_t | GMM) for T frames using BLAS matrix multiply.
// xs is a flat [T*D] array of feature vectors (row-major).
// dst is [T] output log-probabilities; ws.LP holds the per-component terms afterwards.
//
// Math:
//
//	maha(x,μ,invVar) = Σ(x²·invVar) - 2·Σ(x·μ·invVar) + Σ(μ²·invVar)
//	term1 = X² @ invVar^T   (T×D) × (K×D)^T → (T×K)
//	term2 = X  @ meanInvVar^T  (T×D) × (K×D)^T → (T×K)
//	lp[t,k] = -0.5*term1[t,k] + term2[t,k] + bias[k]
//	dst[t] = logsumexp_k(lp[t,k])
func (m *Machine) LogProbBatchMat(xs []float64, T, D int, dst []float64, ws *BatchWorkspace) {
	m.ensureCache()
	K := len(m.gaussians)
	ws.EnsureBatchWorkspace(T, D, K)

	xsq := ws.Xsq
	for i, v := range xs[:T*D] {
		xsq[i] = v * v
	}

	term1 := ws.Term1
	term2 := ws.Term2
	blas.Dgemm(false, true, T, K, D, 1.0, xsq, D, m.soaInvVar, D, 0.0, term1, K)
	blas.Dgemm(false, true, T, K, D, 1.0, xs, D, m.soaMeanInvVar, D, 0.0, term2, K)

	bias := m.soaBias
	for t := 0; t < T; t++ {
		row := ws.LP[t*K : (t+1)*K]
		for c := 0; c < K; c++ {
			row[c] = -0.5*term1[t*K+c] + term2[t*K+c] + bias[c]
		}
		dst[t] = mathutil.LogSumExp(row)
	}
}

// AccStatistics scores every frame of data against m and adds the
// responsibility-weighted counts, first and second moments, sample count and
// log-likelihood to s. Frames are scored in BLAS batches.
func (m *Machine) AccStatistics(data [][]float64, s *Stats) error {
	if err := m.checkStats(s); err != nil {
		return err
	}
	for i, x := range data {
		if len(x) != m.dim {
			return fmt.Errorf("acc statistics: frame %d has dim %d, want %d: %w", i, len(x), m.dim, ErrShapeMismatch)
		}
	}

	K, D := len(m.gaussians), m.dim
	ws := NewBatchWorkspace(min(len(data), batchFrames), D, K)
	dst := make([]float64, min(len(data), batchFrames))
	for start := 0; start < len(data); start += batchFrames {
		chunk := data[start:min(start+batchFrames, len(data))]
		T := len(chunk)
		ws.EnsureBatchWorkspace(T, D, K)
		for t, x := range chunk {
			copy(ws.flat[t*D:(t+1)*D], x)
		}
		m.LogProbBatchMat(ws.flat, T, D, dst[:T], ws)
		for t, x := range chunk {
			s.accumulateFrame(x, ws.LP[t*K:(t+1)*K], dst[t])
		}
	}
	return nil
}

// AccStatisticsFrame adds a single frame to s without the BLAS path.
func (m *Machine) AccStatisticsFrame(x []float64, s *Stats) error {
	if err := m.checkStats(s); err != nil {
		return err
	}
	if len(x) != m.dim {
		return fmt.Errorf("acc statistics: frame has dim %d, want %d: %w", len(x), m.dim, ErrShapeMismatch)
	}
	m.ensureCache()
	lp := make([]float64, len(m.gaussians))
	for c := range lp {
		lp[c] = m.componentLogProb(c, x)
	}
	s.accumulateFrame(x, lp, mathutil.LogSumExp(lp))
	return nil
}

func (m *Machine) checkStats(s *Stats) error {
	if len(m.gaussians) == 0 || m.dim == 0 {
		return fmt.Errorf("acc statistics: machine shape (%d,%d) must be resized first: %w",
			len(m.gaussians), m.dim, ErrPrecondition)
	}
	if s == nil {
		return fmt.Errorf("acc statistics: nil stats: %w", ErrInvalidArgument)
	}
	if k, d := s.Shape(); k != len(m.gaussians) || d != m.dim {
		return fmt.Errorf("acc statistics: stats shape (%d,%d), machine (%d,%d): %w",
			k, d, len(m.gaussians), m.dim, ErrShapeMismatch)
	}
	return nil
}

// accumulateFrame adds frame x with per-component log terms lp and total
// log-likelihood ll.
func (s *Stats) accumulateFrame(x, lp []float64, ll float64) {
	for c, l := range lp {
		post := math.Exp(l - ll)
		s.N[c] += post
		floats.AddScaled(s.SumPx[c], post, x)
		pxx := s.SumPxx[c]
		for d, xd := range x {
			pxx[d] += post * xd * xd
		}
	}
	s.T++
	s.LogLikelihood += ll
}

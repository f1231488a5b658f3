package gmm

import (
	"fmt"
	"io"

	"github.com/ieee0824/voiceprint-go/internal/mathutil"
	"github.com/ieee0824/voiceprint-go/internal/store"
)

// Record kinds written by Save.
const (
	StatsKind   = "gmm_stats"
	MachineKind = "gmm_machine"
)

// serializable mirrors; pointer fields detect missing entries on load.
type serializedStats struct {
	N             *[]float64   `msgpack:"n"`
	SumPx         *[][]float64 `msgpack:"sum_px"`
	SumPxx        *[][]float64 `msgpack:"sum_pxx"`
	T             *uint64      `msgpack:"t"`
	LogLikelihood *float64     `msgpack:"log_likelihood"`
	NumInputs     *int         `msgpack:"n_inputs,omitempty"`
}

type serializedMachine struct {
	Weights   []float64            `msgpack:"weights"`
	Gaussians []serializedGaussian `msgpack:"gaussians"`
	NumInputs int                  `msgpack:"n_inputs"`
}

type serializedGaussian struct {
	Mean               []float64 `msgpack:"mean"`
	Variance           []float64 `msgpack:"variance"`
	VarianceThresholds []float64 `msgpack:"variance_thresholds"`
}

// Validate checks the shape invariants of s.
func (s *Stats) Validate() error {
	k, d := s.Shape()
	if len(s.SumPx) != k || len(s.SumPxx) != k ||
		!mathutil.IsRectangular(s.SumPx, d) || !mathutil.IsRectangular(s.SumPxx, d) {
		return fmt.Errorf("stats: n has %d entries, sum_px %d rows, sum_pxx %d rows, dim %d: %w",
			k, len(s.SumPx), len(s.SumPxx), d, ErrShapeMismatch)
	}
	return nil
}

// Save writes s as a single gmm_stats record.
func (s *Stats) Save(w io.Writer) error {
	if err := s.Validate(); err != nil {
		return err
	}
	n := s.N
	px, pxx := [][]float64(s.SumPx), [][]float64(s.SumPxx)
	_, dim := s.Shape()
	t, ll := s.T, s.LogLikelihood
	return store.Write(w, StatsKind, serializedStats{
		N: &n, SumPx: &px, SumPxx: &pxx, T: &t, LogLikelihood: &ll, NumInputs: &dim,
	})
}

// LoadStats reads statistics written by Save.
func LoadStats(r io.Reader) (*Stats, error) {
	var ss serializedStats
	if err := store.Read(r, StatsKind, &ss); err != nil {
		return nil, err
	}
	switch {
	case ss.N == nil:
		return nil, store.Missing(StatsKind, "n")
	case ss.SumPx == nil:
		return nil, store.Missing(StatsKind, "sum_px")
	case ss.SumPxx == nil:
		return nil, store.Missing(StatsKind, "sum_pxx")
	case ss.T == nil:
		return nil, store.Missing(StatsKind, "t")
	case ss.LogLikelihood == nil:
		return nil, store.Missing(StatsKind, "log_likelihood")
	}

	k := len(*ss.N)
	dim := 0
	if ss.NumInputs != nil {
		dim = *ss.NumInputs
	} else if k > 0 && len(*ss.SumPx) > 0 {
		dim = len((*ss.SumPx)[0])
	}
	if dim < 0 || len(*ss.SumPx) != k || len(*ss.SumPxx) != k ||
		!mathutil.IsRectangular(*ss.SumPx, dim) || !mathutil.IsRectangular(*ss.SumPxx, dim) {
		return nil, fmt.Errorf("%w: %s record has inconsistent shape", ErrFormat, StatsKind)
	}

	s := NewStats(k, dim)
	copy(s.N, *ss.N)
	for i := 0; i < k; i++ {
		copy(s.SumPx[i], (*ss.SumPx)[i])
		copy(s.SumPxx[i], (*ss.SumPxx)[i])
	}
	s.T = *ss.T
	s.LogLikelihood = *ss.LogLikelihood
	return s, nil
}

// Load replaces the contents of s with statistics read from r.
// On error s is unchanged.
func (s *Stats) Load(r io.Reader) error {
	loaded, err := LoadStats(r)
	if err != nil {
		return err
	}
	*s = *loaded
	return nil
}

// Save writes m as a single gmm_machine record.
func (m *Machine) Save(w io.Writer) error {
	sm := serializedMachine{
		Weights:   m.weights,
		NumInputs: m.dim,
		Gaussians: make([]serializedGaussian, len(m.gaussians)),
	}
	for i := range m.gaussians {
		g := &m.gaussians[i]
		sm.Gaussians[i] = serializedGaussian{
			Mean:               g.Mean,
			Variance:           g.Variance,
			VarianceThresholds: g.VarianceThresholds,
		}
	}
	return store.Write(w, MachineKind, sm)
}

// LoadMachine reads a machine written by Save.
func LoadMachine(r io.Reader) (*Machine, error) {
	var sm serializedMachine
	if err := store.Read(r, MachineKind, &sm); err != nil {
		return nil, err
	}
	k := len(sm.Gaussians)
	if k == 0 || len(sm.Weights) != k || sm.NumInputs <= 0 {
		return nil, fmt.Errorf("%w: %s record has %d gaussians, %d weights, dim %d",
			ErrFormat, MachineKind, k, len(sm.Weights), sm.NumInputs)
	}

	m := NewMachine(k, sm.NumInputs)
	copy(m.weights, sm.Weights)
	m.RecomputeLogWeights()
	for i, sg := range sm.Gaussians {
		if len(sg.Mean) != m.dim || len(sg.Variance) != m.dim || len(sg.VarianceThresholds) != m.dim {
			return nil, fmt.Errorf("%w: %s gaussian %d has wrong dimension", ErrFormat, MachineKind, i)
		}
		g := &m.gaussians[i]
		copy(g.Mean, sg.Mean)
		copy(g.Variance, sg.Variance)
		copy(g.VarianceThresholds, sg.VarianceThresholds)
		g.Precompute()
	}
	m.Precompute()
	return m, nil
}

package ivector

import (
	"fmt"
	"io"

	"gonum.org/v1/gonum/mat"

	"github.com/ieee0824/voiceprint-go/gmm"
	"github.com/ieee0824/voiceprint-go/internal/store"
)

// MachineKind is the record kind written by Save.
const MachineKind = "ivector_machine"

type serializedMachine struct {
	Rank              *int       `msgpack:"rank"`
	T                 *[]float64 `msgpack:"t"` // row-major, K*D x rank
	Sigma             *[]float64 `msgpack:"sigma"`
	VarianceThreshold *float64   `msgpack:"variance_threshold"`
}

// Save writes T, Sigma, rank and threshold as one ivector_machine record.
// The UBM is not written.
func (m *Machine) Save(w io.Writer) error {
	rt, thr := m.rt, m.varianceThreshold
	t := append([]float64(nil), m.t.RawMatrix().Data...)
	sigma := m.Sigma()
	return store.Write(w, MachineKind, serializedMachine{
		Rank: &rt, T: &t, Sigma: &sigma, VarianceThreshold: &thr,
	})
}

// LoadMachine reads a machine written by Save and attaches it to ubm.
func LoadMachine(r io.Reader, ubm *gmm.Machine) (*Machine, error) {
	var sm serializedMachine
	if err := store.Read(r, MachineKind, &sm); err != nil {
		return nil, err
	}
	switch {
	case sm.Rank == nil:
		return nil, store.Missing(MachineKind, "rank")
	case sm.T == nil:
		return nil, store.Missing(MachineKind, "t")
	case sm.Sigma == nil:
		return nil, store.Missing(MachineKind, "sigma")
	case sm.VarianceThreshold == nil:
		return nil, store.Missing(MachineKind, "variance_threshold")
	}
	if *sm.Rank < 1 || *sm.VarianceThreshold <= 0 {
		return nil, fmt.Errorf("%w: %s record has rank %d, variance threshold %g",
			gmm.ErrFormat, MachineKind, *sm.Rank, *sm.VarianceThreshold)
	}

	m, err := NewMachine(ubm, *sm.Rank, *sm.VarianceThreshold)
	if err != nil {
		return nil, err
	}
	n := m.SupervectorLength()
	if len(*sm.T) != n*m.rt || len(*sm.Sigma) != n {
		return nil, fmt.Errorf("%s: T has %d values, sigma %d, ubm supervector %d: %w",
			MachineKind, len(*sm.T), len(*sm.Sigma), n, gmm.ErrShapeMismatch)
	}
	if err := m.SetT(mat.NewDense(n, m.rt, *sm.T)); err != nil {
		return nil, err
	}
	if err := m.SetSigma(*sm.Sigma); err != nil {
		return nil, err
	}
	m.Precompute()
	return m, nil
}

package commands

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ieee0824/voiceprint-go/gmm"
	"github.com/ieee0824/voiceprint-go/internal/store"
	"github.com/ieee0824/voiceprint-go/ivector"
)

func newShowCmd(a *app) *cobra.Command {
	var ubmPath string
	cmd := &cobra.Command{
		Use:   "show FILE",
		Short: "Summarise a stored record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			kind, err := store.Kind(data)
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			a.log.Debug().Str("file", args[0]).Str("kind", kind).Msg("show")
			return show(cmd.OutOrStdout(), kind, data, ubmPath)
		},
	}
	cmd.Flags().StringVar(&ubmPath, "ubm", "", "UBM machine file, needed for i-vector machines")
	return cmd
}

func show(w io.Writer, kind string, data []byte, ubmPath string) error {
	r := bytes.NewReader(data)
	switch kind {
	case gmm.StatsKind:
		s, err := gmm.LoadStats(r)
		if err != nil {
			return err
		}
		k, d := s.Shape()
		fmt.Fprintf(w, "%s: %d components, dim %d, %d samples, log-likelihood %.6f\n", kind, k, d, s.T, s.LogLikelihood)
		for i, n := range s.N {
			fmt.Fprintf(w, "  n[%d] = %.6f\n", i, n)
		}
	case gmm.MachineKind:
		m, err := gmm.LoadMachine(r)
		if err != nil {
			return err
		}
		k, d := m.Shape()
		fmt.Fprintf(w, "%s: %d components, dim %d\n", kind, k, d)
		for i, wt := range m.Weights() {
			fmt.Fprintf(w, "  weight[%d] = %.6f\n", i, wt)
		}
	case ivector.MachineKind:
		if ubmPath == "" {
			return fmt.Errorf("%s: --ubm is required", kind)
		}
		ubm, err := readMachine(ubmPath)
		if err != nil {
			return err
		}
		m, err := ivector.LoadMachine(r, ubm)
		if err != nil {
			return err
		}
		k, d, rt := m.Shape()
		fmt.Fprintf(w, "%s: %d components, dim %d, rank %d, variance threshold %g\n", kind, k, d, rt, m.VarianceThreshold())
	case FeaturesKind:
		var sf serializedFeatures
		if err := store.Read(r, FeaturesKind, &sf); err != nil {
			return err
		}
		dim := 0
		if len(sf.Frames) > 0 {
			dim = len(sf.Frames[0])
		}
		fmt.Fprintf(w, "%s: %d frames, dim %d\n", kind, len(sf.Frames), dim)
	default:
		return fmt.Errorf("%w: unknown record kind %q", store.ErrFormat, kind)
	}
	return nil
}

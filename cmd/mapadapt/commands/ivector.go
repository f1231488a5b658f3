package commands

import (
	"bufio"
	"fmt"
	"math"
	"math/rand"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/mat"

	"github.com/ieee0824/voiceprint-go/ivector"
)

func newTVInitCmd(a *app) *cobra.Command {
	var ubmPath, out string
	var seed int64
	cmd := &cobra.Command{
		Use:   "tv-init",
		Short: "Create an i-vector machine with a random Total Variability matrix",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ubm, err := readMachine(ubmPath)
			if err != nil {
				return err
			}
			m, err := ivector.NewMachine(ubm, a.cfg.IVector.Rank, a.cfg.IVector.VarianceThreshold)
			if err != nil {
				return err
			}
			n, rt := m.SupervectorLength(), m.Rank()
			sigma := m.Sigma()
			rng := rand.New(rand.NewSource(seed))
			data := make([]float64, n*rt)
			for i := range data {
				data[i] = 0.1 * math.Sqrt(sigma[i/rt]) * rng.NormFloat64()
			}
			if err := m.SetT(mat.NewDense(n, rt, data)); err != nil {
				return err
			}
			if err := writeFile(out, func(w *bufio.Writer) error { return m.Save(w) }); err != nil {
				return err
			}
			a.log.Info().Int("rank", rt).Int("supervector", n).Str("out", out).Msg("i-vector machine written")
			return nil
		},
	}
	cmd.Flags().StringVar(&ubmPath, "ubm", "", "UBM machine file")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output i-vector machine file")
	cmd.Flags().Int64Var(&seed, "seed", 1, "random seed")
	_ = cmd.MarkFlagRequired("ubm")
	_ = cmd.MarkFlagRequired("out")
	return cmd
}

func newIVectorCmd(a *app) *cobra.Command {
	var ubmPath, tvPath, statsPath string
	cmd := &cobra.Command{
		Use:   "ivector",
		Short: "Extract the i-vector of a statistics file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ubm, err := readMachine(ubmPath)
			if err != nil {
				return err
			}
			m, err := readIVectorMachine(tvPath, ubm)
			if err != nil {
				return err
			}
			s, err := readStats(statsPath)
			if err != nil {
				return err
			}
			w, err := m.Forward(s)
			if err != nil {
				return err
			}
			a.log.Debug().Int("rank", len(w)).Uint64("samples", s.T).Msg("i-vector extracted")
			fmt.Fprintln(cmd.OutOrStdout(), formatVector(w))
			return nil
		},
	}
	cmd.Flags().StringVar(&ubmPath, "ubm", "", "UBM machine file")
	cmd.Flags().StringVar(&tvPath, "tv", "", "i-vector machine file")
	cmd.Flags().StringVar(&statsPath, "stats", "", "statistics file")
	_ = cmd.MarkFlagRequired("ubm")
	_ = cmd.MarkFlagRequired("tv")
	_ = cmd.MarkFlagRequired("stats")
	return cmd
}

func formatVector(v []float64) string {
	parts := make([]string, len(v))
	for i, x := range v {
		parts[i] = strconv.FormatFloat(x, 'g', 8, 64)
	}
	return strings.Join(parts, " ")
}

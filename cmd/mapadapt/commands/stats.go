package commands

import (
	"bufio"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ieee0824/voiceprint-go/gmm"
)

func newStatsCmd(a *app) *cobra.Command {
	var ubmPath, out string
	var features []string
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Accumulate statistics of feature files against a UBM",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ubm, err := readMachine(ubmPath)
			if err != nil {
				return err
			}
			s := gmm.NewStats(ubm.Shape())
			for _, p := range features {
				frames, err := readFeatures(p)
				if err != nil {
					return err
				}
				if err := ubm.AccStatistics(frames, s); err != nil {
					return fmt.Errorf("%s: %w", p, err)
				}
				a.log.Debug().Str("file", p).Int("frames", len(frames)).Msg("accumulated")
			}
			if err := writeFile(out, func(w *bufio.Writer) error { return s.Save(w) }); err != nil {
				return err
			}
			a.log.Info().Int("files", len(features)).Uint64("samples", s.T).Str("out", out).Msg("stats written")
			fmt.Fprintf(cmd.OutOrStdout(), "%d samples, avg log-likelihood %.6f\n", s.T, s.AverageLogLikelihood())
			return nil
		},
	}
	cmd.Flags().StringVar(&ubmPath, "ubm", "", "UBM machine file")
	cmd.Flags().StringSliceVar(&features, "features", nil, "feature files")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output statistics file")
	_ = cmd.MarkFlagRequired("ubm")
	_ = cmd.MarkFlagRequired("features")
	_ = cmd.MarkFlagRequired("out")
	return cmd
}

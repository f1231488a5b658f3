package commands

import (
	"bufio"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ieee0824/voiceprint-go/gmm"
	"github.com/ieee0824/voiceprint-go/mapadapt"
)

func newAdaptCmd(a *app) *cobra.Command {
	var ubmPath, out string
	var features []string
	cmd := &cobra.Command{
		Use:   "adapt",
		Short: "MAP-adapt a UBM to feature files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ubm, err := readMachine(ubmPath)
			if err != nil {
				return err
			}
			frames, err := readAllFeatures(features)
			if err != nil {
				return err
			}

			base := gmm.NewBaseTrainer(a.cfg.Trainer.Options()...)
			trainer, err := mapadapt.NewTrainer(base, ubm, a.cfg.MAP, mapadapt.WithLogger(a.log))
			if err != nil {
				return err
			}
			target := gmm.NewMachine(ubm.Shape())
			target.SetVarianceThreshold(a.cfg.GMM.VarianceThreshold)

			res, err := trainer.Train(target, frames, a.cfg.Train)
			if err != nil {
				return err
			}
			if err := writeFile(out, func(w *bufio.Writer) error { return target.Save(w) }); err != nil {
				return err
			}
			a.log.Info().
				Int("frames", len(frames)).
				Int("iterations", res.Iterations).
				Bool("converged", res.Converged).
				Str("out", out).
				Msg("model adapted")
			fmt.Fprintf(cmd.OutOrStdout(), "%d iterations, avg log-likelihood %.6f, converged %t\n",
				res.Iterations, res.LogLikelihood, res.Converged)
			return nil
		},
	}
	cmd.Flags().StringVar(&ubmPath, "ubm", "", "UBM (prior) machine file")
	cmd.Flags().StringSliceVar(&features, "features", nil, "feature files of the target speaker")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output machine file")
	_ = cmd.MarkFlagRequired("ubm")
	_ = cmd.MarkFlagRequired("features")
	_ = cmd.MarkFlagRequired("out")
	return cmd
}

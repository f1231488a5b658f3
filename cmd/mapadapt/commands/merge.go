package commands

import (
	"bufio"
	"fmt"

	"github.com/spf13/cobra"
)

func newMergeCmd(a *app) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "merge IN...",
		Short: "Merge statistics files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			total, err := readStats(args[0])
			if err != nil {
				return err
			}
			for _, p := range args[1:] {
				s, err := readStats(p)
				if err != nil {
					return err
				}
				if err := total.Accumulate(s); err != nil {
					return fmt.Errorf("%s: %w", p, err)
				}
			}
			if err := writeFile(out, func(w *bufio.Writer) error { return total.Save(w) }); err != nil {
				return err
			}
			a.log.Info().Int("files", len(args)).Uint64("samples", total.T).Str("out", out).Msg("stats merged")
			fmt.Fprintf(cmd.OutOrStdout(), "%d files, %d samples\n", len(args), total.T)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output statistics file")
	_ = cmd.MarkFlagRequired("out")
	return cmd
}

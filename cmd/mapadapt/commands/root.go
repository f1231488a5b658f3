// Package commands implements the mapadapt subcommands.
package commands

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ieee0824/voiceprint-go/internal/config"
	"github.com/ieee0824/voiceprint-go/internal/logging"
)

// app carries state shared by all subcommands of one invocation.
type app struct {
	configFile string
	verbose    bool

	cfg *config.Config
	log zerolog.Logger
}

// Execute runs the root command.
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	a := &app{log: zerolog.Nop()}
	root := &cobra.Command{
		Use:   "mapadapt",
		Short: "GMM statistics, MAP adaptation and i-vector extraction",
		Long: `mapadapt - speaker model enrolment from a universal background model.

Feature, statistics and model files are msgpack records. Configuration is read
from --config, ./mapadapt.yml or ./config/mapadapt.yml, then from MAPADAPT_*
environment variables (a .env file is loaded first if present).

Examples:
  mapadapt stats --ubm ubm.gmm --features spk1.feat --out spk1.stats
  mapadapt merge --out all.stats spk1.stats spk2.stats
  mapadapt adapt --ubm ubm.gmm --features spk1.feat --out spk1.gmm
  mapadapt ivector --ubm ubm.gmm --tv tv.ivec --stats spk1.stats`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
	}
	root.PersistentFlags().StringVar(&a.configFile, "config", "", "config file (default ./mapadapt.yml)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(
		newStatsCmd(a),
		newMergeCmd(a),
		newAdaptCmd(a),
		newTVInitCmd(a),
		newIVectorCmd(a),
		newShowCmd(a),
	)
	return root
}

func (a *app) init() error {
	var opts []config.LoaderOption
	if a.configFile != "" {
		opts = append(opts, config.WithConfigFile(a.configFile))
	}
	cfg, err := config.Load(opts...)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if a.verbose {
		cfg.Log.Level = "debug"
	}
	a.cfg = cfg
	a.log = logging.New(cfg.Log).With().Str("run_id", uuid.NewString()).Logger()
	return nil
}

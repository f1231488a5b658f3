// Package config loads mapadapt configuration from a YAML file, a .env file
// and MAPADAPT_* environment variables.
package config

import (
	"github.com/ieee0824/voiceprint-go/gmm"
	"github.com/ieee0824/voiceprint-go/internal/logging"
	"github.com/ieee0824/voiceprint-go/ivector"
	"github.com/ieee0824/voiceprint-go/mapadapt"
)

// Config is the complete tool configuration.
type Config struct {
	Log     logging.Config        `mapstructure:"log"`
	GMM     GMMConfig             `mapstructure:"gmm"`
	Trainer TrainerConfig         `mapstructure:"trainer"`
	MAP     mapadapt.Config       `mapstructure:"map"`
	Train   mapadapt.TrainOptions `mapstructure:"train"`
	IVector IVectorConfig         `mapstructure:"ivector"`
}

// GMMConfig configures machines created or loaded by the tool.
type GMMConfig struct {
	VarianceThreshold float64 `mapstructure:"variance_threshold" validate:"gt=0"`
}

// TrainerConfig selects the parameters the M-step re-estimates.
type TrainerConfig struct {
	UpdateWeights           bool    `mapstructure:"update_weights"`
	UpdateMeans             bool    `mapstructure:"update_means"`
	UpdateVariances         bool    `mapstructure:"update_variances"`
	ResponsibilityThreshold float64 `mapstructure:"responsibility_threshold" validate:"gte=0"`
}

// Options converts the trainer section into gmm.BaseTrainer options.
func (c TrainerConfig) Options() []gmm.BaseTrainerOption {
	return []gmm.BaseTrainerOption{
		gmm.WithUpdates(c.UpdateWeights, c.UpdateMeans, c.UpdateVariances),
		gmm.WithResponsibilityThreshold(c.ResponsibilityThreshold),
	}
}

// IVectorConfig configures i-vector machines created by the tool.
type IVectorConfig struct {
	Rank              int     `mapstructure:"rank" validate:"gte=1"`
	VarianceThreshold float64 `mapstructure:"variance_threshold" validate:"gt=0"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		Log: logging.Config{
			Level:  "info",
			Format: "console",
			Output: "stderr",
		},
		GMM: GMMConfig{VarianceThreshold: gmm.DefaultVarianceThreshold},
		Trainer: TrainerConfig{
			UpdateMeans:             true,
			ResponsibilityThreshold: gmm.DefaultVarianceThreshold,
		},
		MAP:   mapadapt.DefaultConfig(),
		Train: mapadapt.DefaultTrainOptions(),
		IVector: IVectorConfig{
			Rank:              1,
			VarianceThreshold: ivector.DefaultVarianceThreshold,
		},
	}
}

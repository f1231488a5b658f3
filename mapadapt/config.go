package mapadapt

import (
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/ieee0824/voiceprint-go/gmm"
)

// Config selects how the adaptation coefficient of each component is computed.
type Config struct {
	// DataDependent selects Reynolds' coefficient n/(n+RelevanceFactor);
	// otherwise Alpha is used for every component.
	DataDependent   bool    `mapstructure:"data_dependent"`
	RelevanceFactor float64 `mapstructure:"relevance_factor" validate:"gt=0"`
	Alpha           float64 `mapstructure:"alpha" validate:"gte=0,lte=1"`
}

// DefaultConfig returns data-dependent adaptation with relevance factor 4.
func DefaultConfig() Config {
	return Config{
		DataDependent:   true,
		RelevanceFactor: 4,
		Alpha:           0.5,
	}
}

// TrainOptions bounds the MAP training loop.
type TrainOptions struct {
	MaxIterations int `mapstructure:"max_iterations" validate:"gte=1"`
	// ConvergenceThreshold stops training once the relative change of the
	// average log-likelihood falls to or below it. Zero disables the check.
	ConvergenceThreshold float64 `mapstructure:"convergence_threshold" validate:"gte=0"`
}

// DefaultTrainOptions returns reasonable defaults for speaker enrollment.
func DefaultTrainOptions() TrainOptions {
	return TrainOptions{
		MaxIterations:        10,
		ConvergenceThreshold: 1e-5,
	}
}

var (
	validate *validator.Validate
	once     sync.Once
)

func getValidator() *validator.Validate {
	once.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Validate checks cfg, returning an error wrapping gmm.ErrInvalidArgument.
func (c Config) Validate() error {
	return validateStruct("map config", c)
}

// Validate checks o, returning an error wrapping gmm.ErrInvalidArgument.
func (o TrainOptions) Validate() error {
	return validateStruct("train options", o)
}

func validateStruct(what string, s any) error {
	err := getValidator().Struct(s)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return fmt.Errorf("%s: %v: %w", what, err, gmm.ErrInvalidArgument)
	}
	msgs := make([]string, 0, len(verrs))
	for _, e := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s must satisfy %s=%s (got %v)", e.Field(), e.Tag(), e.Param(), e.Value()))
	}
	return fmt.Errorf("%s: %s: %w", what, strings.Join(msgs, "; "), gmm.ErrInvalidArgument)
}

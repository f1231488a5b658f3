package config

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "MAPADAPT"

// FileSystem abstracts file lookups for testing.
type FileSystem interface {
	Exists(path string) bool
	LoadEnv(path string) error
}

// RealFileSystem implements FileSystem using actual file operations.
type RealFileSystem struct{}

func (RealFileSystem) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func (RealFileSystem) LoadEnv(path string) error {
	return godotenv.Load(path)
}

// searchPaths are tried in order when no config file is given.
var searchPaths = []string{
	"./mapadapt.yml",
	"./config/mapadapt.yml",
}

// LoaderConfig holds dependencies and optional file overrides.
type LoaderConfig struct {
	FileSystem FileSystem
	ConfigFile string
	EnvFile    string
}

// LoaderOption is a functional option for Load.
type LoaderOption func(*LoaderConfig)

// WithFileSystem sets a custom filesystem for the loader.
func WithFileSystem(fs FileSystem) LoaderOption {
	return func(lc *LoaderConfig) { lc.FileSystem = fs }
}

// WithConfigFile sets an explicit config file path. A missing explicit file is an error.
func WithConfigFile(path string) LoaderOption {
	return func(lc *LoaderConfig) { lc.ConfigFile = path }
}

// WithEnvFile sets an explicit .env file path.
func WithEnvFile(path string) LoaderOption {
	return func(lc *LoaderConfig) { lc.EnvFile = path }
}

// Load builds the configuration: defaults, then the config file, then
// environment variables (after loading the .env file, if any), and validates
// the result.
func Load(opts ...LoaderOption) (*Config, error) {
	lc := LoaderConfig{FileSystem: RealFileSystem{}}
	for _, opt := range opts {
		opt(&lc)
	}

	v := viper.New()
	setDefaults(v, Default())

	configFile := lc.ConfigFile
	if configFile != "" && !lc.FileSystem.Exists(configFile) {
		return nil, fmt.Errorf("config file %s not found", configFile)
	}
	if configFile == "" {
		for _, p := range searchPaths {
			if lc.FileSystem.Exists(p) {
				configFile = p
				break
			}
		}
	}
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", configFile, err)
		}
	}

	envFile := lc.EnvFile
	if envFile == "" && lc.FileSystem.Exists(".env") {
		envFile = ".env"
	}
	if envFile != "" {
		if err := lc.FileSystem.LoadEnv(envFile); err != nil {
			return nil, fmt.Errorf("load env file %s: %w", envFile, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// setDefaults registers every key so AutomaticEnv can override it.
func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("log.output", d.Log.Output)
	v.SetDefault("log.no_color", d.Log.NoColor)
	v.SetDefault("log.timestamp", d.Log.Timestamp)

	v.SetDefault("gmm.variance_threshold", d.GMM.VarianceThreshold)

	v.SetDefault("trainer.update_weights", d.Trainer.UpdateWeights)
	v.SetDefault("trainer.update_means", d.Trainer.UpdateMeans)
	v.SetDefault("trainer.update_variances", d.Trainer.UpdateVariances)
	v.SetDefault("trainer.responsibility_threshold", d.Trainer.ResponsibilityThreshold)

	v.SetDefault("map.data_dependent", d.MAP.DataDependent)
	v.SetDefault("map.relevance_factor", d.MAP.RelevanceFactor)
	v.SetDefault("map.alpha", d.MAP.Alpha)

	v.SetDefault("train.max_iterations", d.Train.MaxIterations)
	v.SetDefault("train.convergence_threshold", d.Train.ConvergenceThreshold)

	v.SetDefault("ivector.rank", d.IVector.Rank)
	v.SetDefault("ivector.variance_threshold", d.IVector.VarianceThreshold)
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

// Validate checks every section.
func (c *Config) Validate() error {
	if err := c.Log.Validate(); err != nil {
		return err
	}
	if err := getValidator().Struct(c); err != nil {
		verrs, ok := err.(validator.ValidationErrors)
		if !ok {
			return fmt.Errorf("config validation: %w", err)
		}
		msgs := make([]string, 0, len(verrs))
		for _, e := range verrs {
			msgs = append(msgs, fmt.Sprintf("%s must satisfy %s=%s (got %v)", e.Namespace(), e.Tag(), e.Param(), e.Value()))
		}
		return fmt.Errorf("config validation: %s", strings.Join(msgs, "; "))
	}
	return nil
}

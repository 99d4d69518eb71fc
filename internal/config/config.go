// Package config loads the run configuration: ambient settings through viper, with
// BUNDLEPREP_* environment overrides, and the pipeline steps straight from the YAML file.
package config

import (
	"os"
	"strings"

	"github.com/Aidin1998/bundleprep/internal/strategy"
	"github.com/Aidin1998/bundleprep/pkg/errors"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const envPrefix = "BUNDLEPREP"

// Config is the full run configuration.
type Config struct {
	LogLevel string        `mapstructure:"log_level" validate:"oneof=debug info warn warning error"`
	Store    StoreConfig   `mapstructure:"store"`
	Tracing  TracingConfig `mapstructure:"tracing"`
	// Bundles is how many empty data bundles the pipeline starts with.
	Bundles int `mapstructure:"bundles" validate:"min=1"`
	// OutputKey, when set, stores the final bundles under OutputKey-<i>.
	OutputKey string       `mapstructure:"output_key"`
	Pipeline  []StepConfig `mapstructure:"-" validate:"required,min=1,dive"`
}

type StoreConfig struct {
	Path     string `mapstructure:"path"`
	InMemory bool   `mapstructure:"in_memory"`
}

// Memory reports whether the store should run in memory: when asked to, or when no path
// is configured.
func (c StoreConfig) Memory() bool {
	return c.InMemory || c.Path == ""
}

type TracingConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// StepConfig is one pipeline step as written in the file.
type StepConfig struct {
	StrategyName string         `yaml:"strategy_name" validate:"required"`
	ParamConfig  map[string]any `yaml:"param_config"`
}

// pipelineFile is decoded with yaml directly since viper folds map keys to lower case
// and dataset keys such as X_train are case-sensitive.
type pipelineFile struct {
	Pipeline []StepConfig `yaml:"pipeline"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("store.path", "")
	v.SetDefault("store.in_memory", false)
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("bundles", 1)
	v.SetDefault("output_key", "")
}

// Load reads and validates the configuration at path.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.MissingConfig("config path", "command line")
	}
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Configurationf("failed to read config file %s", path).Wrap(err)
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Configurationf("failed to unmarshal config").Wrap(err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Configurationf("failed to read config file %s", path).Wrap(err)
	}
	var pf pipelineFile
	if err := yaml.Unmarshal(raw, &pf); err != nil {
		return nil, errors.Configurationf("failed to parse pipeline").Wrap(err)
	}
	cfg.Pipeline = pf.Pipeline

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports the first invalid field.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return errors.Configurationf("invalid config field %s: %s", fe.Namespace(), fe.Tag()).
				WithField("invalid", fe.Field(), fe.Tag())
		}
		return errors.Configurationf("invalid config").Wrap(err)
	}
	return nil
}

// Requests converts the pipeline into fresh strategy requests.
func (c *Config) Requests() []*strategy.Request {
	out := make([]*strategy.Request, len(c.Pipeline))
	for i, step := range c.Pipeline {
		out[i] = strategy.NewRequest(step.StrategyName, step.ParamConfig)
	}
	return out
}

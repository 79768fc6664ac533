// Package config loads strata settings from strata.yaml, STRATA_*
// environment variables and command-line flags, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/roach88/strata/internal/store"
)

const (
	configFileName = "strata"
	configFileType = "yaml"
	envPrefix      = "STRATA"

	KeyDriver   = "driver"
	KeyDSN      = "dsn"
	KeyPipeline = "pipeline"
	KeySpecs    = "specs"
	KeyStrict   = "strict"
	KeyVerbose  = "verbose"

	defaultDSN   = "strata.db"
	defaultSpecs = "specs"

	// DefaultPipeline is used when neither the configuration nor the
	// CUE instance names a pipeline.
	DefaultPipeline = "default"
)

var (
	// ErrUnknownDriver is returned by Validate for a driver store.Open rejects.
	ErrUnknownDriver = errors.New("unknown driver")
	ErrEmptyDSN      = errors.New("dsn is empty")
	ErrEmptyPipeline = errors.New("pipeline is empty")
)

// Config holds resolved settings.
type Config struct {
	Driver   string `mapstructure:"driver"`
	DSN      string `mapstructure:"dsn"`
	Pipeline string `mapstructure:"pipeline"`
	Specs    string `mapstructure:"specs"`
	Strict   bool   `mapstructure:"strict"`
	Verbose  bool   `mapstructure:"verbose"`

	// File is the config file that was read, empty if none.
	File string `mapstructure:"-"`
}

// Load resolves the configuration.
//
// path names an explicit config file; when empty, strata.yaml is looked up
// in the working directory. A missing strata.yaml is not an error, a
// missing explicit file is. flags may be nil; when given, every flag whose
// name matches a key and that was set on the command line wins over file
// and environment.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetDefault(KeyDriver, store.DefaultDriver)
	v.SetDefault(KeyDSN, defaultDSN)
	v.SetDefault(KeyPipeline, DefaultPipeline)
	v.SetDefault(KeySpecs, defaultSpecs)
	v.SetDefault(KeyStrict, false)
	v.SetDefault(KeyVerbose, false)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(configFileName)
		v.SetConfigType(configFileType)
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if flags != nil {
		for _, key := range []string{KeyDriver, KeyDSN, KeyPipeline, KeySpecs, KeyStrict, KeyVerbose} {
			if f := flags.Lookup(key); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", key, err)
				}
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.File = v.ConfigFileUsed()
	return cfg, nil
}

// Validate checks that the configuration can open a store and address a
// pipeline.
func (c *Config) Validate() error {
	if !store.SupportedDriver(c.Driver) {
		return fmt.Errorf("%w %q", ErrUnknownDriver, c.Driver)
	}
	if strings.TrimSpace(c.DSN) == "" {
		return ErrEmptyDSN
	}
	if strings.TrimSpace(c.Pipeline) == "" {
		return ErrEmptyPipeline
	}
	return nil
}

// PipelineName picks the pipeline a run addresses. A pipeline configured
// to anything but DefaultPipeline wins; otherwise the name declared by the
// CUE instance is used when there is one.
func (c *Config) PipelineName(declared string) string {
	if c.Pipeline == DefaultPipeline && declared != "" {
		return declared
	}
	return c.Pipeline
}

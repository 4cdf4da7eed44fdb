// Package config defines the on-disk configuration of a filtering run.
package config

import (
	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"

	"go.viam.com/pcfilter/logging"
	"go.viam.com/pcfilter/outlier"
	"go.viam.com/pcfilter/pointcloud"
)

// AttributeMap is a convenience wrapper for pulling out typed information from a map.
type AttributeMap map[string]interface{}

// Has returns whether or not the given name is in the map.
func (am AttributeMap) Has(name string) bool {
	_, has := am[name]
	return has
}

// Config describes one filtering run.
type Config struct {
	// ConfigFilePath is the path the config was read from, if any.
	ConfigFilePath string `json:"-"`

	Filter       string       `json:"filter"`
	Workers      int          `json:"workers,omitempty"`
	Parallelism  int          `json:"parallelism,omitempty"`
	Input        string       `json:"input,omitempty"`
	Output       string       `json:"output,omitempty"`
	OutputFormat string       `json:"output_format,omitempty"`
	LogLevel     string       `json:"log_level,omitempty"`
	LogFile      string       `json:"log_file,omitempty"`
	Attributes   AttributeMap `json:"attributes,omitempty"`
}

// Validate ensures all parts of the config are valid and fills in defaults. A config without a
// filter is valid so that a filter can be chosen later; FilterConfig then reports it.
func (cfg *Config) Validate() error {
	if cfg.Workers == 0 {
		cfg.Workers = 1
	}
	if cfg.Workers < 0 {
		return outlier.NewConfigurationError("workers", "must be at least 1, got %d", cfg.Workers)
	}
	if cfg.Parallelism < 0 {
		return outlier.NewConfigurationError("parallelism", "must not be negative, got %d", cfg.Parallelism)
	}
	if _, err := pointcloud.ParseFormat(cfg.OutputFormat); err != nil {
		return outlier.NewConfigurationError("output_format", "%v", err)
	}
	if cfg.LogLevel != "" {
		if _, err := logging.LevelFromString(cfg.LogLevel); err != nil {
			return outlier.NewConfigurationError("log_level", "%v", err)
		}
	}
	if cfg.Filter == "" {
		return nil
	}
	_, err := cfg.FilterConfig()
	return err
}

// FilterConfig decodes the selected filter and its attributes.
func (cfg *Config) FilterConfig() (outlier.Config, error) {
	filterType, err := outlier.ParseFilterType(cfg.Filter)
	if err != nil {
		return outlier.Config{}, err
	}
	out := outlier.Config{Type: filterType, Parallelism: cfg.Parallelism}
	switch filterType {
	case outlier.Radius:
		var conf outlier.RadiusConfig
		if err := decodeAttributes(cfg.Attributes, &conf); err != nil {
			return outlier.Config{}, err
		}
		out.Radius = &conf
	case outlier.Statistical:
		var conf outlier.StatisticalConfig
		if err := decodeAttributes(cfg.Attributes, &conf); err != nil {
			return outlier.Config{}, err
		}
		out.Statistical = &conf
	}
	if err := out.Validate(); err != nil {
		return outlier.Config{}, err
	}
	return out, nil
}

func decodeAttributes(attributes AttributeMap, to interface{}) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		Result:           to,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return errors.Wrap(err, "error creating attribute decoder")
	}
	if err := decoder.Decode(attributes); err != nil {
		return outlier.NewConfigurationError("attributes", "%v", err)
	}
	return nil
}

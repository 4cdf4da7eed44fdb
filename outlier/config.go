package outlier

import (
	"math"
	"strings"
)

// FilterType selects an outlier predicate.
type FilterType string

// The supported outlier predicates.
const (
	// Radius removes points with fewer than K neighbors within a radius.
	Radius = FilterType("radius")
	// Statistical removes points whose mean neighbor distance is far above the cloud's average.
	Statistical = FilterType("statistical")
)

// ParseFilterType maps a selector such as "radius" or "SOR" to a FilterType.
func ParseFilterType(s string) (FilterType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "radius", "ror":
		return Radius, nil
	case "statistical", "sor":
		return Statistical, nil
	}
	return "", NewConfigurationError("filter", "unknown filter type %q", s)
}

// RadiusConfig parameterizes the radius filter. A point survives when at least K other points
// lie strictly within Radius of it.
type RadiusConfig struct {
	K      int     `json:"k"`
	Radius float64 `json:"radius"`
}

// Validate ensures all parts of the config are valid.
func (cfg *RadiusConfig) Validate() error {
	if cfg.K <= 0 {
		return NewConfigurationError("k", "must be positive, got %d", cfg.K)
	}
	if !(cfg.Radius > 0) {
		return NewConfigurationError("radius", "must be positive, got %v", cfg.Radius)
	}
	return nil
}

// StatisticalConfig parameterizes the statistical filter. A point survives when the mean
// distance to its MeanK nearest neighbors is at most mean + Multiplier*stddev over the cloud.
type StatisticalConfig struct {
	MeanK      int     `json:"mean_k"`
	Multiplier float64 `json:"multiplier"`
}

// Validate ensures all parts of the config are valid.
func (cfg *StatisticalConfig) Validate() error {
	if cfg.MeanK <= 0 {
		return NewConfigurationError("mean_k", "must be positive, got %d", cfg.MeanK)
	}
	if math.IsNaN(cfg.Multiplier) || math.IsInf(cfg.Multiplier, 0) {
		return NewConfigurationError("multiplier", "must be finite, got %v", cfg.Multiplier)
	}
	return nil
}

// Config selects a filter and its parameters. Parallelism is the number of goroutines a single
// worker uses to evaluate its range; values below 2 evaluate sequentially.
type Config struct {
	Type        FilterType
	Radius      *RadiusConfig
	Statistical *StatisticalConfig
	Parallelism int
}

// Validate ensures the selected filter is known and its parameters are present and valid.
func (cfg *Config) Validate() error {
	if cfg.Parallelism < 0 {
		return NewConfigurationError("parallelism", "must not be negative, got %d", cfg.Parallelism)
	}
	switch cfg.Type {
	case Radius:
		if cfg.Radius == nil {
			return NewConfigurationError("radius", "parameters are required for the radius filter")
		}
		return cfg.Radius.Validate()
	case Statistical:
		if cfg.Statistical == nil {
			return NewConfigurationError("statistical", "parameters are required for the statistical filter")
		}
		return cfg.Statistical.Validate()
	default:
		return NewConfigurationError("filter", "unknown filter type %q", cfg.Type)
	}
}

// Package config holds the tunables shared by the rebuild, batch and analyze commands.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// TieBreak decides which candidate wins when two unvisited frames are equally close.
type TieBreak string

const (
	TieBreakLowest  TieBreak = "lowest"  // Lowest filtered index wins (default).
	TieBreakHighest TieBreak = "highest" // Highest filtered index wins.
)

// Seed selects how the greedy chain picks its first frame.
type Seed string

const (
	SeedExtremal     Seed = "extremal"      // Frame with the largest total distance (default).
	SeedFarthestPair Seed = "farthest-pair" // Endpoint of the globally farthest pair.
)

const (
	DefaultBins            = 16
	DefaultFenceMultiplier = 1.5
	DefaultCacheBudget     = 1 << 30
	DefaultCodec           = "libx264"
)

// Config holds shared configuration for rebuild, batch, and analyze commands.
type Config struct {
	Bins            int      `yaml:"bins"`
	FenceMultiplier float64  `yaml:"fence_multiplier"`
	TieBreak        TieBreak `yaml:"tie_break"`
	Seed            Seed     `yaml:"seed"`
	CacheBudget     int64    `yaml:"cache_budget"` // Bytes of decoded frames kept in memory before spilling.
	Engines         int      `yaml:"engines"`      // Concurrent runs in batch mode.
	Codec           string   `yaml:"codec"`
	Verbose         bool     `yaml:"verbose"`

	// ScoreChart, when set, is the PNG path for the correlation score chart.
	ScoreChart string `yaml:"score_chart"`
}

// Default returns a Config with every option at its documented default.
func Default() Config {
	return Config{
		Bins:            DefaultBins,
		FenceMultiplier: DefaultFenceMultiplier,
		TieBreak:        TieBreakLowest,
		Seed:            SeedExtremal,
		CacheBudget:     DefaultCacheBudget,
		Engines:         1,
		Codec:           DefaultCodec,
	}
}

// Load overlays the YAML file at path on top of Default. An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks every option and normalizes Engines. All problems are reported together.
func (c *Config) Validate() error {
	var errs []error
	if c.Bins < 1 || c.Bins > 256 {
		errs = append(errs, fmt.Errorf("bins must be between 1 and 256, got %d", c.Bins))
	}
	if c.FenceMultiplier < 0 {
		errs = append(errs, fmt.Errorf("fence multiplier must not be negative, got %g", c.FenceMultiplier))
	}
	switch c.TieBreak {
	case TieBreakLowest, TieBreakHighest:
	default:
		errs = append(errs, fmt.Errorf("invalid tie-break '%s'. Must be 'lowest' or 'highest'", c.TieBreak))
	}
	switch c.Seed {
	case SeedExtremal, SeedFarthestPair:
	default:
		errs = append(errs, fmt.Errorf("invalid seed '%s'. Must be 'extremal' or 'farthest-pair'", c.Seed))
	}
	if c.CacheBudget < 0 {
		errs = append(errs, fmt.Errorf("cache budget must not be negative, got %d", c.CacheBudget))
	}
	if c.Codec == "" {
		errs = append(errs, errors.New("codec must not be empty"))
	}
	if c.Engines < 1 {
		c.Engines = 1
	}
	return errors.Join(errs...)
}

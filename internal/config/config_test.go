package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Bins != 16 {
		t.Errorf("Bins = %d, want 16", cfg.Bins)
	}
	if cfg.FenceMultiplier != 1.5 {
		t.Errorf("FenceMultiplier = %v, want 1.5", cfg.FenceMultiplier)
	}
	if cfg.TieBreak != TieBreakLowest {
		t.Errorf("TieBreak = %q, want %q", cfg.TieBreak, TieBreakLowest)
	}
	if cfg.Seed != SeedExtremal {
		t.Errorf("Seed = %q, want %q", cfg.Seed, SeedExtremal)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "reframe.yaml")
	content := "bins: 32\nfence_multiplier: 3\nseed: farthest-pair\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Bins != 32 || cfg.FenceMultiplier != 3 || cfg.Seed != SeedFarthestPair {
		t.Errorf("overlay not applied: %+v", cfg)
	}
	// Untouched keys keep their defaults.
	if cfg.TieBreak != TieBreakLowest || cfg.Codec != DefaultCodec {
		t.Errorf("defaults lost: %+v", cfg)
	}
}

func TestLoad_Errors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}

	path := filepath.Join(t.TempDir(), "bad.yaml")
	os.WriteFile(path, []byte("bins: [1, 2"), 0644)
	if _, err := Load(path); err == nil {
		t.Error("expected error for malformed yaml")
	}

	cfg, err := Load("")
	if err != nil || cfg != Default() {
		t.Errorf("empty path should return defaults, got %+v, %v", cfg, err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"Valid", func(c *Config) {}, false},
		{"Max bins", func(c *Config) { c.Bins = 256 }, false},
		{"Zero bins", func(c *Config) { c.Bins = 0 }, true},
		{"Too many bins", func(c *Config) { c.Bins = 257 }, true},
		{"Zero multiplier", func(c *Config) { c.FenceMultiplier = 0 }, false},
		{"Negative multiplier", func(c *Config) { c.FenceMultiplier = -0.5 }, true},
		{"Bad tie-break", func(c *Config) { c.TieBreak = "random" }, true},
		{"Bad seed", func(c *Config) { c.Seed = "middle" }, true},
		{"Negative budget", func(c *Config) { c.CacheBudget = -1 }, true},
		{"Empty codec", func(c *Config) { c.Codec = "" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidate_NormalizesEngines(t *testing.T) {
	cfg := Default()
	cfg.Engines = 0
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	if cfg.Engines != 1 {
		t.Errorf("Engines = %d, want 1", cfg.Engines)
	}
}

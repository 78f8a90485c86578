// Package config holds MINAS's engine tuning parameters, loaded either
// from a YAML file or from MINAS_* environment variables.
//
// This mirrors the teacher's own two-tier configuration approach: plain
// env-var loading for container/Docker deployments (pkg/config in the
// teacher tree) crossed with YAML file support for local/driver use
// (apoc/config.go in the teacher tree).
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds every tunable of the online phase and novelty detector.
// The zero value is not valid; use Default() or Load*.
type Config struct {
	// NumExTrigger is the short-term memory size that triggers novelty
	// detection (spec §4.5). Fixed at 2000 "by design" in spec.md, but
	// exposed here the way the teacher exposes its own tier constants
	// through a Config struct rather than hard dependency-level constants.
	NumExTrigger int `yaml:"num_ex_trigger"`

	// Window is the ageing window, in time-steps, for stale micros and
	// stale unknowns (spec §4.5). Fixed at 4000 by design.
	Window int `yaml:"window"`

	// AbsorptionFactor is the radius multiplier used to test absorption
	// (spec §3/§4.5 step 4). Fixed at 1.0 by design.
	AbsorptionFactor float64 `yaml:"absorption_factor"`

	// ExtensionFactor is the radius multiplier used as the label-match
	// threshold during novelty detection (spec §4.6.d). Fixed at 1.1 by
	// design.
	ExtensionFactor float64 `yaml:"extension_factor"`

	// KHint is the engine-wide micro-count hint used by the novelty
	// detector to cluster the short-term buffer (spec §4.4 step 4, §4.6).
	// Fixed at 100 by design.
	KHint int `yaml:"k_hint"`

	// Seed seeds the default clustering adaptor for deterministic
	// behaviour across runs (spec §4.3, §6).
	Seed int64 `yaml:"seed"`

	// Evaluate enables the prediction log and its retroactive rewrite on
	// novelty promotion (spec §4.5, §4.6.g). cmd/minas passes it to
	// engine.New, which takes the flag as its own argument and does not
	// read this field itself.
	Evaluate bool `yaml:"evaluate"`
}

// Default returns spec.md's fixed-by-design parameters.
func Default() *Config {
	return &Config{
		NumExTrigger:     2000,
		Window:           4000,
		AbsorptionFactor: 1.0,
		ExtensionFactor:  1.1,
		KHint:            100,
		Seed:             0,
		Evaluate:         false,
	}
}

// Load reads a YAML configuration file, starting from Default() so a
// partial file only overrides the fields it sets.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromEnv starts from Default() and overrides any field whose
// MINAS_* environment variable is set, the way the teacher's own
// LoadFromEnv overlays NEO4J_*/NORNICDB_* variables onto its defaults.
func LoadFromEnv() *Config {
	cfg := Default()

	if v, ok := os.LookupEnv("MINAS_NUM_EX_TRIGGER"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.NumExTrigger = n
		}
	}
	if v, ok := os.LookupEnv("MINAS_WINDOW"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Window = n
		}
	}
	if v, ok := os.LookupEnv("MINAS_ABSORPTION_FACTOR"); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.AbsorptionFactor = f
		}
	}
	if v, ok := os.LookupEnv("MINAS_EXTENSION_FACTOR"); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.ExtensionFactor = f
		}
	}
	if v, ok := os.LookupEnv("MINAS_K_HINT"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.KHint = n
		}
	}
	if v, ok := os.LookupEnv("MINAS_SEED"); ok {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Seed = n
		}
	}
	if v, ok := os.LookupEnv("MINAS_EVALUATE"); ok {
		cfg.Evaluate = v == "true" || v == "1"
	}

	return cfg
}

// Validate checks that every parameter is in a usable range.
func (c *Config) Validate() error {
	if c.NumExTrigger <= 0 {
		return fmt.Errorf("config: num_ex_trigger must be positive, got %d", c.NumExTrigger)
	}
	if c.Window <= 0 {
		return fmt.Errorf("config: window must be positive, got %d", c.Window)
	}
	if c.AbsorptionFactor <= 0 {
		return fmt.Errorf("config: absorption_factor must be positive, got %v", c.AbsorptionFactor)
	}
	if c.ExtensionFactor <= 0 {
		return fmt.Errorf("config: extension_factor must be positive, got %v", c.ExtensionFactor)
	}
	if c.KHint <= 0 {
		return fmt.Errorf("config: k_hint must be positive, got %d", c.KHint)
	}
	return nil
}

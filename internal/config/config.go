// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AURA Contributors

package config

import (
	"errors"
	"net"
	"strings"
	"time"

	"github.com/spf13/viper"

	auraerr "github.com/aura-dev/aura/pkg/errors"
)

// Config is the top-level AURA gateway configuration.
type Config struct {
	Listen      string           `mapstructure:"listen"`
	CORSOrigins []string         `mapstructure:"cors_origins"`
	Backend     BackendConfig    `mapstructure:"backend"`
	Generation  GenerationConfig `mapstructure:"generation"`
	Reveal      RevealConfig     `mapstructure:"reveal"`
}

// BackendConfig points the negotiator at the remote text-generation
// deployment.
type BackendConfig struct {
	BaseURL string `mapstructure:"base_url"`
	// APIKey may be a literal credential or a keyring://service/key URI.
	APIKey         string        `mapstructure:"api_key"`
	AttemptTimeout time.Duration `mapstructure:"attempt_timeout"`
	// Variants names a subset/reorder of the built-in probe order; empty
	// means all variants in default order.
	Variants []string `mapstructure:"variants"`
}

// GenerationConfig carries default tunables and gateway behavior.
type GenerationConfig struct {
	Temperature   float64 `mapstructure:"temperature"`
	TopP          float64 `mapstructure:"top_p"`
	TopK          int     `mapstructure:"top_k"`
	MaxTokens     int     `mapstructure:"max_tokens"`
	HistoryWindow int     `mapstructure:"history_window"`
	CacheSize     int     `mapstructure:"cache_size"`
}

// RevealConfig controls the incremental reveal stream.
type RevealConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

// Load reads configuration from the given path (or defaults) with
// environment variable overrides (prefix AURA_).
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("listen", "127.0.0.1:5000")
	// Registered empty so env overrides reach Unmarshal.
	v.SetDefault("backend.base_url", "")
	v.SetDefault("backend.api_key", "")
	v.SetDefault("backend.attempt_timeout", "8s")
	v.SetDefault("generation.temperature", 0.7)
	v.SetDefault("generation.top_p", 0.9)
	v.SetDefault("generation.top_k", 50)
	v.SetDefault("generation.max_tokens", 1024)
	v.SetDefault("generation.history_window", 10)
	v.SetDefault("generation.cache_size", 100)
	v.SetDefault("reveal.interval", "15ms")

	v.SetEnvPrefix("AURA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, auraerr.Wrapf(err, auraerr.CodeConfigLoadReadFailure,
				"reading config %s", path)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, auraerr.Wrapf(err, auraerr.CodeConfigValidateInvalidValue,
			"unmarshalling config")
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, auraerr.Wrap(errors.Join(errs...),
			auraerr.CodeConfigValidateInvalidValue, "validating config")
	}

	return &cfg, nil
}

// Validate checks the configuration for logical errors, collecting all
// issues rather than stopping at the first.
func (c *Config) Validate() []error {
	var errs []error

	if c.Listen == "" {
		errs = append(errs, auraerr.New(auraerr.CodeConfigValidateInvalidValue,
			"listen address must not be empty"))
	} else if _, _, err := net.SplitHostPort(c.Listen); err != nil {
		errs = append(errs, auraerr.Wrapf(err, auraerr.CodeConfigValidateInvalidValue,
			"listen address %q is not host:port", c.Listen))
	}

	if c.Backend.BaseURL == "" {
		errs = append(errs, auraerr.New(auraerr.CodeConfigValidateInvalidValue,
			"backend.base_url is required"))
	}
	if c.Backend.AttemptTimeout <= 0 {
		errs = append(errs, auraerr.Errorf(auraerr.CodeConfigValidateInvalidValue,
			"backend.attempt_timeout must be positive, got %s", c.Backend.AttemptTimeout))
	}

	g := c.Generation
	if g.Temperature < 0 || g.Temperature > 2 {
		errs = append(errs, auraerr.Errorf(auraerr.CodeConfigValidateInvalidValue,
			"generation.temperature must be in [0, 2], got %v", g.Temperature))
	}
	if g.TopP < 0 || g.TopP > 1 {
		errs = append(errs, auraerr.Errorf(auraerr.CodeConfigValidateInvalidValue,
			"generation.top_p must be in [0, 1], got %v", g.TopP))
	}
	if g.TopK < 0 {
		errs = append(errs, auraerr.Errorf(auraerr.CodeConfigValidateInvalidValue,
			"generation.top_k must be non-negative, got %d", g.TopK))
	}
	if g.MaxTokens <= 0 {
		errs = append(errs, auraerr.Errorf(auraerr.CodeConfigValidateInvalidValue,
			"generation.max_tokens must be positive, got %d", g.MaxTokens))
	}

	if c.Reveal.Interval <= 0 {
		errs = append(errs, auraerr.Errorf(auraerr.CodeConfigValidateInvalidValue,
			"reveal.interval must be positive, got %s", c.Reveal.Interval))
	}

	return errs
}

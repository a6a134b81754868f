// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Platewise Contributors

package config

import (
	"errors"
	"net"
	"strconv"
	"strings"
	"time"

	pwerr "github.com/platewise-dev/platewise/pkg/errors"
	"github.com/spf13/viper"
)

// Config is the top-level Platewise gateway configuration.
type Config struct {
	Networking NetworkingConfig `mapstructure:"networking"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Upstream   UpstreamConfig   `mapstructure:"upstream"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
}

// NetworkingConfig controls how the gateway listens for connections.
type NetworkingConfig struct {
	Listen string `mapstructure:"listen"`
}

// LoggingConfig controls log verbosity.
type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

// UpstreamConfig holds the credential and endpoint for the recipe API.
// An empty APIKey puts the gateway in mock mode: probes report healthy
// without touching the network.
type UpstreamConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
}

// MonitoringConfig controls the health-monitoring core.
type MonitoringConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	Interval         time.Duration `mapstructure:"interval"`
	CacheTTL         time.Duration `mapstructure:"cache_ttl"`
	MinProbeInterval time.Duration `mapstructure:"min_probe_interval"`
	ProbeTimeout     time.Duration `mapstructure:"probe_timeout"`
}

// SetDefaults registers the default value for every config key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("networking.listen", "127.0.0.1:8420")
	v.SetDefault("logging.level", "info")
	v.SetDefault("upstream.api_key", "")
	v.SetDefault("upstream.base_url", "https://api.spoonacular.com")
	v.SetDefault("monitoring.enabled", true)
	v.SetDefault("monitoring.interval", 5*time.Minute)
	v.SetDefault("monitoring.cache_ttl", time.Minute)
	v.SetDefault("monitoring.min_probe_interval", 30*time.Second)
	v.SetDefault("monitoring.probe_timeout", 10*time.Second)
}

// SetupEnv binds environment variables with the PLATEWISE_ prefix so that
// e.g. PLATEWISE_UPSTREAM_API_KEY overrides upstream.api_key.
func SetupEnv(v *viper.Viper) {
	v.SetEnvPrefix("PLATEWISE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Load reads configuration from the given path (or defaults) with
// environment variable overrides.
func Load(path string) (*Config, error) {
	v := viper.New()

	SetDefaults(v)
	SetupEnv(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, pwerr.Errorf(pwerr.CodeConfigLoadReadFailure, "reading config %s: %w", path, err)
		}
	}

	return FromViper(v)
}

// FromViper unmarshals and validates a fully populated Viper instance.
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, pwerr.Errorf(pwerr.CodeConfigParseInvalidFormat, "unmarshalling config: %w", err)
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, pwerr.Errorf(pwerr.CodeConfigValidateInvalidValue, "validating config: %w", errors.Join(errs...))
	}

	return &cfg, nil
}

// Validate checks the configuration for logical errors. It returns a slice
// of all validation errors found, collecting all issues rather than stopping
// at the first one.
func (c *Config) Validate() []error {
	var errs []error

	errs = append(errs, c.validateNetworking()...)
	errs = append(errs, c.validateLogging()...)
	errs = append(errs, c.validateUpstream()...)
	errs = append(errs, c.validateMonitoring()...)

	return errs
}

func (c *Config) validateNetworking() []error {
	var errs []error

	if c.Networking.Listen == "" {
		errs = append(errs, pwerr.Errorf(pwerr.CodeConfigValidateInvalidValue, "config: networking.listen must not be empty"))
		return errs
	}

	host, portStr, err := net.SplitHostPort(c.Networking.Listen)
	if err != nil {
		errs = append(errs, pwerr.Errorf(pwerr.CodeConfigValidateInvalidValue,
			"config: networking.listen must be a valid host:port address, got %q: %w",
			c.Networking.Listen, err,
		))
		return errs
	}

	_ = host // host can be empty (e.g., ":8420"), which is valid
	port, err := strconv.Atoi(portStr)
	if err != nil {
		errs = append(errs, pwerr.Errorf(pwerr.CodeConfigValidateInvalidValue,
			"config: networking.listen port must be a number, got %q",
			portStr,
		))
	} else if port < 1 || port > 65535 {
		errs = append(errs, pwerr.Errorf(pwerr.CodeConfigValidateInvalidValue,
			"config: networking.listen port must be between 1 and 65535, got %d",
			port,
		))
	}

	return errs
}

func (c *Config) validateLogging() []error {
	var errs []error

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		errs = append(errs, pwerr.Errorf(pwerr.CodeConfigValidateInvalidValue,
			"config: logging.level must be one of [debug, info, warn, error], got %q",
			c.Logging.Level,
		))
	}

	return errs
}

func (c *Config) validateUpstream() []error {
	var errs []error

	if c.Upstream.BaseURL == "" {
		errs = append(errs, pwerr.Errorf(pwerr.CodeConfigValidateInvalidValue, "config: upstream.base_url must not be empty"))
	} else if !strings.HasPrefix(c.Upstream.BaseURL, "http://") && !strings.HasPrefix(c.Upstream.BaseURL, "https://") {
		errs = append(errs, pwerr.Errorf(pwerr.CodeConfigValidateInvalidValue,
			"config: upstream.base_url must start with http:// or https://, got %q",
			c.Upstream.BaseURL,
		))
	}

	return errs
}

func (c *Config) validateMonitoring() []error {
	var errs []error

	if c.Monitoring.Interval <= 0 {
		errs = append(errs, pwerr.Errorf(pwerr.CodeConfigValidateInvalidValue,
			"config: monitoring.interval must be positive, got %s", c.Monitoring.Interval))
	}
	if c.Monitoring.CacheTTL <= 0 {
		errs = append(errs, pwerr.Errorf(pwerr.CodeConfigValidateInvalidValue,
			"config: monitoring.cache_ttl must be positive, got %s", c.Monitoring.CacheTTL))
	}
	if c.Monitoring.MinProbeInterval <= 0 {
		errs = append(errs, pwerr.Errorf(pwerr.CodeConfigValidateInvalidValue,
			"config: monitoring.min_probe_interval must be positive, got %s", c.Monitoring.MinProbeInterval))
	}
	if c.Monitoring.ProbeTimeout <= 0 {
		errs = append(errs, pwerr.Errorf(pwerr.CodeConfigValidateInvalidValue,
			"config: monitoring.probe_timeout must be positive, got %s", c.Monitoring.ProbeTimeout))
	}

	// The probe gate is meant to open slightly more often than the cache
	// expires; an interval longer than the TTL would make forced refreshes
	// impossible between expiries.
	if c.Monitoring.MinProbeInterval > 0 && c.Monitoring.CacheTTL > 0 &&
		c.Monitoring.MinProbeInterval > c.Monitoring.CacheTTL {
		errs = append(errs, pwerr.Errorf(pwerr.CodeConfigValidateInvalidValue,
			"config: monitoring.min_probe_interval (%s) must not exceed monitoring.cache_ttl (%s)",
			c.Monitoring.MinProbeInterval, c.Monitoring.CacheTTL))
	}

	return errs
}

// Package config loads the hostboard configuration from a YAML file and
// HOSTBOARD_* environment variables.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/kylerisse/hostboard/pkg/fetch"
	"github.com/kylerisse/hostboard/pkg/render"
	"github.com/kylerisse/hostboard/pkg/widget"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of environment overrides, e.g. HOSTBOARD_ENDPOINT.
const EnvPrefix = "hostboard"

// Config represents configuration data for the dashboard.
type Config struct {
	Endpoint        string        `yaml:"endpoint" split_words:"true"`
	Interval        time.Duration `yaml:"interval" split_words:"true"`
	FetchTimeout    time.Duration `yaml:"fetch_timeout" split_words:"true"`
	SkipOverlapping bool          `yaml:"skip_overlapping" split_words:"true"`
	Resolver        string        `yaml:"resolver" split_words:"true"`
	FetchRate       RateLimit     `yaml:"fetch_rate_limit" split_words:"true"`
	Listen          string        `yaml:"listen" split_words:"true"`
	ServerRate      RateLimit     `yaml:"server_rate_limit" split_words:"true"`
	Log             Log           `yaml:"log" split_words:"true"`
	Labels          render.Labels `yaml:"labels" ignored:"true"`
}

// RateLimit configures a token bucket. A zero PerSecond disables limiting.
type RateLimit struct {
	PerSecond float64 `yaml:"per_second" split_words:"true"`
	Burst     int     `yaml:"burst" split_words:"true"`
}

// Enabled reports whether the limit should be applied.
func (r RateLimit) Enabled() bool {
	return r.PerSecond > 0
}

// Log configures the logrus logger.
type Log struct {
	Level  string `yaml:"level" split_words:"true"`
	Format string `yaml:"format" split_words:"true"`
	// File, when set, receives log output instead of stderr.
	File string `yaml:"file" split_words:"true"`
}

// DefaultConfig returns the configuration used when no file is provided.
func DefaultConfig() Config {
	return Config{
		Endpoint:        fetch.DefaultEndpoint,
		Interval:        widget.DefaultInterval,
		SkipOverlapping: true,
		FetchRate:       RateLimit{},
		Listen:          ":1982",
		ServerRate:      RateLimit{PerSecond: 200, Burst: 500},
		Log: Log{
			Level:  "info",
			Format: "text",
		},
		Labels: render.DefaultLabels(),
	}
}

// Load reads configuration from a YAML file, applies environment overrides
// and validates the result. An empty path or a missing file falls back to
// the defaults.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		content, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return Config{}, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(content, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("read environment: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyDefaults fills zero values left by a partial file.
func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.Endpoint == "" {
		c.Endpoint = def.Endpoint
	}
	if c.Interval == 0 {
		c.Interval = def.Interval
	}
	if c.Listen == "" {
		c.Listen = def.Listen
	}
	if c.Log.Level == "" {
		c.Log.Level = def.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = def.Log.Format
	}
	if c.FetchRate.Enabled() && c.FetchRate.Burst <= 0 {
		c.FetchRate.Burst = 1
	}
	if c.ServerRate.Enabled() && c.ServerRate.Burst <= 0 {
		c.ServerRate.Burst = 1
	}
}

// Validate checks the configuration for values the dashboard cannot run with.
func (c Config) Validate() error {
	u, err := url.Parse(c.Endpoint)
	if err != nil {
		return fmt.Errorf("endpoint %q is not a valid URL: %w", c.Endpoint, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("endpoint %q must use http or https", c.Endpoint)
	}
	if u.Host == "" {
		return fmt.Errorf("endpoint %q is missing a host", c.Endpoint)
	}
	if c.Interval <= 0 {
		return fmt.Errorf("interval must be positive, got %v", c.Interval)
	}
	if c.FetchTimeout < 0 {
		return fmt.Errorf("fetch_timeout must not be negative, got %v", c.FetchTimeout)
	}
	if c.FetchRate.PerSecond < 0 {
		return fmt.Errorf("fetch_rate_limit.per_second must not be negative")
	}
	if c.ServerRate.PerSecond < 0 {
		return fmt.Errorf("server_rate_limit.per_second must not be negative")
	}
	if c.Listen == "" {
		return errors.New("listen address is required")
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log format must be text or json, got %q", c.Log.Format)
	}
	return nil
}

// Package config loads the federation policy file.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes the environment variables that override file settings.
const EnvPrefix = "AGORA_"

// Config holds the tunables of the federation core.
type Config struct {
	// Domain is the host name local actors are minted under.
	Domain string `yaml:"domain"`

	// ActorRefreshTTL is how long a cached remote actor is trusted before it is fetched again.
	ActorRefreshTTL time.Duration `yaml:"actor_refresh_ttl"`

	// SlurFilter is a regular expression matched against incoming text. Empty disables the filter.
	SlurFilter string `yaml:"slur_filter"`

	// MaxInboxBytes caps the size of an inbound activity.
	MaxInboxBytes int64 `yaml:"max_inbox_bytes"`

	// MaxFetches caps the number of remote documents fetched while handling one activity.
	MaxFetches int `yaml:"max_fetches"`

	Delivery struct {
		Interval    time.Duration `yaml:"interval"`
		MaxAttempts int           `yaml:"max_attempts"`
		Timeout     time.Duration `yaml:"timeout"`
	} `yaml:"delivery"`

	Memcache struct {
		Servers []string      `yaml:"servers"`
		TTL     time.Duration `yaml:"ttl"`
	} `yaml:"memcache"`

	LinkPreview struct {
		Enabled bool          `yaml:"enabled"`
		Timeout time.Duration `yaml:"timeout"`
	} `yaml:"link_preview"`
}

// Default returns a Config with every field set to its default.
func Default() *Config {
	c := &Config{
		ActorRefreshTTL: 24 * time.Hour,
		MaxInboxBytes:   1 << 20,
		MaxFetches:      25,
	}
	c.Delivery.Interval = 30 * time.Second
	c.Delivery.MaxAttempts = 3
	c.Delivery.Timeout = 10 * time.Second
	c.Memcache.TTL = 30 * time.Minute
	c.LinkPreview.Enabled = true
	c.LinkPreview.Timeout = 5 * time.Second
	return c
}

// Load reads the YAML file at path over the defaults, then applies
// environment overrides. An empty path yields the defaults.
func Load(path string) (*Config, error) {
	c := Default()
	if path != "" {
		buf, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(buf, c); err != nil {
			return nil, fmt.Errorf("in config file %s: %w", path, err)
		}
	}
	if err := c.applyEnv(os.Getenv); err != nil {
		return nil, err
	}
	return c, c.Validate()
}

func (c *Config) applyEnv(getenv func(string) string) error {
	if v := getenv(EnvPrefix + "DOMAIN"); v != "" {
		c.Domain = v
	}
	if v := getenv(EnvPrefix + "SLUR_FILTER"); v != "" {
		c.SlurFilter = v
	}
	if v := getenv(EnvPrefix + "MEMCACHE_SERVERS"); v != "" {
		c.Memcache.Servers = strings.Split(v, ",")
	}
	if v := getenv(EnvPrefix + "ACTOR_REFRESH_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%sACTOR_REFRESH_TTL: %w", EnvPrefix, err)
		}
		c.ActorRefreshTTL = d
	}
	if v := getenv(EnvPrefix + "LINK_PREVIEW"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%sLINK_PREVIEW: %w", EnvPrefix, err)
		}
		c.LinkPreview.Enabled = b
	}
	return nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if _, err := c.Slurs(); err != nil {
		return fmt.Errorf("slur_filter: %w", err)
	}
	switch {
	case c.ActorRefreshTTL <= 0:
		return errors.New("actor_refresh_ttl must be positive")
	case c.MaxInboxBytes <= 0:
		return errors.New("max_inbox_bytes must be positive")
	case c.MaxFetches <= 0:
		return errors.New("max_fetches must be positive")
	case c.Delivery.Interval <= 0, c.Delivery.Timeout <= 0:
		return errors.New("delivery interval and timeout must be positive")
	case c.Delivery.MaxAttempts <= 0:
		return errors.New("delivery max_attempts must be positive")
	}
	return nil
}

// Slurs compiles SlurFilter. It returns nil when no filter is configured.
func (c *Config) Slurs() (*regexp.Regexp, error) {
	if c.SlurFilter == "" {
		return nil, nil
	}
	return regexp.Compile(c.SlurFilter)
}

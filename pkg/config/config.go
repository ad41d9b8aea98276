// Package config loads the paintsd configuration from TOML and the
// environment.
package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/chatpaint/paints/pkg/constants"
	"github.com/chatpaint/paints/pkg/retry"
)

type Config struct {
	API      APIConfig      `toml:"api"`
	Retry    RetryConfig    `toml:"retry"`
	Images   ImagesConfig   `toml:"images"`
	Events   EventsConfig   `toml:"events"`
	Snapshot SnapshotConfig `toml:"snapshot"`
	HTTP     HTTPConfig     `toml:"http"`
	Log      LogConfig      `toml:"log"`
}

type APIConfig struct {
	URL     string        `toml:"url"`
	Timeout time.Duration `toml:"timeout"`
}

type RetryConfig struct {
	InitialDelay time.Duration `toml:"initial_delay"`
	MaxDelay     time.Duration `toml:"max_delay"`
	Multiplier   float64       `toml:"multiplier"`
	MaxRetries   int           `toml:"max_retries"` // 0 retries forever
	Jitter       float64       `toml:"jitter"`      // fraction of the delay, 0 disables
}

type ImagesConfig struct {
	CacheSize int   `toml:"cache_size"`
	MaxBytes  int64 `toml:"max_bytes"`
}

type EventsConfig struct {
	Enabled bool   `toml:"enabled"`
	URL     string `toml:"url"`
	// Channels are the Twitch channel ids whose cosmetic and entitlement
	// events are subscribed to.
	Channels []string `toml:"channels"`
}

type SnapshotConfig struct {
	Path string `toml:"path"` // empty disables snapshots
}

type HTTPConfig struct {
	Listen string `toml:"listen"` // empty disables the HTTP API
}

type LogConfig struct {
	Level string `toml:"level"`
	Path  string `toml:"path"` // empty logs to stderr
}

func Default() *Config {
	return &Config{
		API: APIConfig{
			URL:     constants.DefaultAPIURL,
			Timeout: constants.DefaultHTTPTimeout,
		},
		Retry: RetryConfig{
			InitialDelay: time.Second,
			MaxDelay:     30 * time.Second,
			Multiplier:   2,
			MaxRetries:   5,
			Jitter:       0.3,
		},
		Images: ImagesConfig{
			CacheSize: constants.DefaultImageCacheSize,
			MaxBytes:  constants.DefaultMaxImageBytes,
		},
		Events: EventsConfig{
			URL: constants.DefaultEventsURL,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load decodes the TOML file at path over the defaults, applies environment
// overrides and validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	c := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		md, err := toml.Decode(string(data), c)
		if err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("%w: unknown key %s", constants.ErrInvalidConfig, undecoded[0])
		}
	}

	c.applyEnv()

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) Validate() error {
	if err := validateURL(c.API.URL, "http", "https"); err != nil {
		return fmt.Errorf("%w: api.url: %w", constants.ErrInvalidConfig, err)
	}
	if c.API.Timeout <= 0 {
		return fmt.Errorf("%w: api.timeout must be positive", constants.ErrInvalidConfig)
	}
	if c.Retry.InitialDelay < 0 || c.Retry.MaxDelay < c.Retry.InitialDelay {
		return fmt.Errorf("%w: retry delays out of order", constants.ErrInvalidConfig)
	}
	if c.Retry.Multiplier < 1 {
		return fmt.Errorf("%w: retry.multiplier must be at least 1", constants.ErrInvalidConfig)
	}
	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("%w: retry.max_retries must not be negative", constants.ErrInvalidConfig)
	}
	if c.Retry.Jitter < 0 || c.Retry.Jitter > 1 {
		return fmt.Errorf("%w: retry.jitter must be within [0, 1]", constants.ErrInvalidConfig)
	}
	if c.Images.CacheSize <= 0 || c.Images.MaxBytes <= 0 {
		return fmt.Errorf("%w: images limits must be positive", constants.ErrInvalidConfig)
	}
	if c.Events.Enabled {
		if err := validateURL(c.Events.URL, "ws", "wss"); err != nil {
			return fmt.Errorf("%w: events.url: %w", constants.ErrInvalidConfig, err)
		}
		if len(c.Events.Channels) == 0 {
			return fmt.Errorf("%w: events.channels is empty", constants.ErrInvalidConfig)
		}
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: unknown log level %q", constants.ErrInvalidConfig, c.Log.Level)
	}

	return nil
}

// Retryer builds the retry policy described by the retry section.
func (c *Config) Retryer() retry.Retryer {
	return &retry.ExponentialBackoffRetryer{
		InitialDelay: c.Retry.InitialDelay,
		MaxDelay:     c.Retry.MaxDelay,
		Multiplier:   c.Retry.Multiplier,
		MaxRetries:   c.Retry.MaxRetries,
		Jitter:       c.Retry.Jitter > 0,
		JitterFactor: c.Retry.Jitter,
	}
}

func validateURL(raw string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Host == "" {
		return fmt.Errorf("%q has no host", raw)
	}
	for _, s := range schemes {
		if u.Scheme == s {
			return nil
		}
	}
	return fmt.Errorf("%q: scheme must be one of %v", raw, schemes)
}

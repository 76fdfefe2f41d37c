// Package config loads plug.yaml, the optional project configuration read by
// the plug CLI. Every value is a default; command-line flags win.
package config

import (
	"errors"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/justapithecus/plug/log"
)

// DefaultFile is looked up in the working directory when no path is given.
const DefaultFile = "plug.yaml"

// Config represents a plug.yaml file.
type Config struct {
	// BuildFile overrides the build file the CLI reports tasks against.
	BuildFile string       `yaml:"build_file"`
	Log       LogConfig    `yaml:"log"`
	Fork      ForkConfig   `yaml:"fork"`
	Notify    NotifyConfig `yaml:"notify"`
	// History enables the build history dataset when set.
	History *HistoryConfig `yaml:"history"`
}

// LogConfig holds logger defaults.
type LogConfig struct {
	Level  string `yaml:"level"`
	Color  *bool  `yaml:"color,omitempty"`
	Format string `yaml:"format"`
}

// ForkConfig holds defaults for forked plugs.
type ForkConfig struct {
	// Timeout is how long a worker waits for its fork data.
	Timeout Duration `yaml:"timeout"`
	// CoverageDir is propagated to workers as GOCOVERDIR.
	CoverageDir string `yaml:"coverage_dir"`
}

// NotifyConfig selects where build completion events are published.
// Both notifiers may be configured at once.
type NotifyConfig struct {
	Webhook *WebhookConfig `yaml:"webhook"`
	Redis   *RedisConfig   `yaml:"redis"`
}

// WebhookConfig configures the HTTP POST notifier.
type WebhookConfig struct {
	URL     string            `yaml:"url"`
	Headers map[string]string `yaml:"headers"`
	Timeout Duration          `yaml:"timeout"`
	// Retries defaults to 3 when omitted.
	Retries *int `yaml:"retries"`
}

// RedisConfig configures the Redis pub/sub notifier.
type RedisConfig struct {
	URL     string   `yaml:"url"`
	Channel string   `yaml:"channel"`
	Timeout Duration `yaml:"timeout"`
	// Retries defaults to 3 when omitted.
	Retries *int `yaml:"retries"`
}

// History storage backends.
const (
	HistoryBackendFS = "fs"
	HistoryBackendS3 = "s3"
)

// HistoryConfig configures where build history is recorded.
type HistoryConfig struct {
	// Backend is fs (default) or s3.
	Backend string `yaml:"backend"`
	// Path is a directory for fs, relative to the config file, or
	// bucket/prefix for s3.
	Path string `yaml:"path"`
	// Dataset defaults to history.DefaultDataset.
	Dataset     string `yaml:"dataset"`
	S3Region    string `yaml:"s3_region"`
	S3Endpoint  string `yaml:"s3_endpoint"`
	S3PathStyle bool   `yaml:"s3_path_style"`
}

// Duration wraps time.Duration for YAML string parsing (e.g. "10s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "750ms" or "5s".
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	if parsed < 0 {
		return fmt.Errorf("invalid duration %q: must not be negative", s)
	}
	d.Duration = parsed
	return nil
}

// MarshalYAML writes the duration back in its string form.
func (d Duration) MarshalYAML() (any, error) {
	if d.Duration == 0 {
		return "", nil
	}
	return d.String(), nil
}

// Validate checks values that are only meaningful once parsed.
func (c *Config) Validate() error {
	if c.Log.Level != "" {
		if _, err := log.ParseLevel(c.Log.Level); err != nil {
			return fmt.Errorf("log.level: %w", err)
		}
	}
	if c.Log.Format != "" {
		if _, err := log.ParseFormat(c.Log.Format); err != nil {
			return fmt.Errorf("log.format: %w", err)
		}
	}
	if w := c.Notify.Webhook; w != nil {
		if w.URL == "" {
			return errors.New("notify.webhook.url is required")
		}
		if w.Retries != nil && *w.Retries < 0 {
			return fmt.Errorf("notify.webhook.retries must be >= 0, got %d", *w.Retries)
		}
	}
	if h := c.History; h != nil {
		switch h.Backend {
		case "", HistoryBackendFS, HistoryBackendS3:
		default:
			return fmt.Errorf("history.backend: must be %s or %s, got %q", HistoryBackendFS, HistoryBackendS3, h.Backend)
		}
		if h.Path == "" {
			return errors.New("history.path is required")
		}
	}
	if r := c.Notify.Redis; r != nil {
		if r.URL == "" {
			return errors.New("notify.redis.url is required")
		}
		if r.Retries != nil && *r.Retries < 0 {
			return fmt.Errorf("notify.redis.retries must be >= 0, got %d", *r.Retries)
		}
	}
	return nil
}

// ApplyLog overlays the configured logger values onto opts.
func (c *Config) ApplyLog(opts log.Options) (log.Options, error) {
	if c.Log.Level != "" {
		level, err := log.ParseLevel(c.Log.Level)
		if err != nil {
			return opts, fmt.Errorf("log.level: %w", err)
		}
		opts.Level = level
	}
	if c.Log.Format != "" {
		format, err := log.ParseFormat(c.Log.Format)
		if err != nil {
			return opts, fmt.Errorf("log.format: %w", err)
		}
		opts.Format = format
	}
	if c.Log.Color != nil {
		opts.Color = *c.Log.Color
	}
	return opts, nil
}

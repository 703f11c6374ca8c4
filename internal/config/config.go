// Package config loads the client configuration from YAML. Every knob has
// a working default; an empty path yields a config usable against a local
// server.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Sync     SyncConfig     `yaml:"sync"`
	Queue    QueueConfig    `yaml:"queue"`
	Breaker  BreakerConfig  `yaml:"breaker"`
	Realtime RealtimeConfig `yaml:"realtime"`
	Turn     TurnConfig     `yaml:"turn"`
	Journal  JournalConfig  `yaml:"journal"`
}

// ServerConfig locates and authenticates against the game server.
type ServerConfig struct {
	URL       string `yaml:"url"`
	Token     string `yaml:"token"`
	UserID    string `yaml:"user_id"`
	TimeoutMS int    `yaml:"timeout_ms"`
}

// SyncConfig tunes the commit pipeline.
type SyncConfig struct {
	CommitTimeoutSeconds int `yaml:"commit_timeout_seconds"`
	MaxRetries           int `yaml:"max_retries"`
	RetryBaseMS          int `yaml:"retry_base_ms"`
	RetryMaxMS           int `yaml:"retry_max_ms"`
}

// QueueConfig bounds the durable offline queue.
type QueueConfig struct {
	Path            string `yaml:"path"`
	MaxItems        int    `yaml:"max_items"`
	MaxAgeMinutes   int    `yaml:"max_age_minutes"`
	FlushDebounceMS int    `yaml:"flush_debounce_ms"`
}

// BreakerConfig tunes the circuit breaker over the transport.
type BreakerConfig struct {
	FailureThreshold   int `yaml:"failure_threshold"`
	CooldownSeconds    int `yaml:"cooldown_seconds"`
	MaxCooldownSeconds int `yaml:"max_cooldown_seconds"`
}

// RealtimeConfig tunes liveness classification and snapshot debouncing.
type RealtimeConfig struct {
	CheckIntervalSeconds      int `yaml:"check_interval_seconds"`
	ConnectedWithinSeconds    int `yaml:"connected_within_seconds"`
	ReconnectingWithinSeconds int `yaml:"reconnecting_within_seconds"`
	SnapshotDebounceMS        int `yaml:"snapshot_debounce_ms"`
}

// TurnConfig tunes the per-turn countdown and auto-play fallback.
type TurnConfig struct {
	DurationSeconds int `yaml:"duration_seconds"`
}

// JournalConfig controls the compressed sync journal.
type JournalConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
}

// Load reads the config at path, layered over the defaults. An empty path
// returns the defaults untouched.
func Load(path string) (Config, error) {
	cfg := defaults()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			URL:       "ws://127.0.0.1:7350/ws",
			TimeoutMS: 10000,
		},
		Sync: SyncConfig{
			CommitTimeoutSeconds: 15,
			MaxRetries:           5,
			RetryBaseMS:          500,
			RetryMaxMS:           30000,
		},
		Queue: QueueConfig{
			Path:            "dominoclient.db",
			MaxItems:        50,
			MaxAgeMinutes:   10,
			FlushDebounceMS: 250,
		},
		Breaker: BreakerConfig{
			FailureThreshold:   5,
			CooldownSeconds:    10,
			MaxCooldownSeconds: 120,
		},
		Realtime: RealtimeConfig{
			CheckIntervalSeconds:      2,
			ConnectedWithinSeconds:    8,
			ReconnectingWithinSeconds: 15,
			SnapshotDebounceMS:        150,
		},
		Turn: TurnConfig{
			DurationSeconds: 12,
		},
		Journal: JournalConfig{
			Enabled: true,
			Dir:     "journal",
		},
	}
}

// Normalize fills zero values back in from the defaults so a partial file
// never produces a dead knob.
func (c *Config) Normalize() {
	d := defaults()
	if strings.TrimSpace(c.Server.URL) == "" {
		c.Server.URL = d.Server.URL
	}
	if c.Server.TimeoutMS <= 0 {
		c.Server.TimeoutMS = d.Server.TimeoutMS
	}
	if c.Sync.CommitTimeoutSeconds <= 0 {
		c.Sync.CommitTimeoutSeconds = d.Sync.CommitTimeoutSeconds
	}
	if c.Sync.MaxRetries <= 0 {
		c.Sync.MaxRetries = d.Sync.MaxRetries
	}
	if c.Sync.RetryBaseMS <= 0 {
		c.Sync.RetryBaseMS = d.Sync.RetryBaseMS
	}
	if c.Sync.RetryMaxMS <= 0 {
		c.Sync.RetryMaxMS = d.Sync.RetryMaxMS
	}
	if strings.TrimSpace(c.Queue.Path) == "" {
		c.Queue.Path = d.Queue.Path
	}
	if c.Queue.MaxItems <= 0 {
		c.Queue.MaxItems = d.Queue.MaxItems
	}
	if c.Queue.MaxAgeMinutes <= 0 {
		c.Queue.MaxAgeMinutes = d.Queue.MaxAgeMinutes
	}
	if c.Queue.FlushDebounceMS <= 0 {
		c.Queue.FlushDebounceMS = d.Queue.FlushDebounceMS
	}
	if c.Breaker.FailureThreshold <= 0 {
		c.Breaker.FailureThreshold = d.Breaker.FailureThreshold
	}
	if c.Breaker.CooldownSeconds <= 0 {
		c.Breaker.CooldownSeconds = d.Breaker.CooldownSeconds
	}
	if c.Breaker.MaxCooldownSeconds <= 0 {
		c.Breaker.MaxCooldownSeconds = d.Breaker.MaxCooldownSeconds
	}
	if c.Realtime.CheckIntervalSeconds <= 0 {
		c.Realtime.CheckIntervalSeconds = d.Realtime.CheckIntervalSeconds
	}
	if c.Realtime.ConnectedWithinSeconds <= 0 {
		c.Realtime.ConnectedWithinSeconds = d.Realtime.ConnectedWithinSeconds
	}
	if c.Realtime.ReconnectingWithinSeconds <= 0 {
		c.Realtime.ReconnectingWithinSeconds = d.Realtime.ReconnectingWithinSeconds
	}
	if c.Realtime.SnapshotDebounceMS <= 0 {
		c.Realtime.SnapshotDebounceMS = d.Realtime.SnapshotDebounceMS
	}
	if c.Turn.DurationSeconds <= 0 {
		c.Turn.DurationSeconds = d.Turn.DurationSeconds
	}
	if strings.TrimSpace(c.Journal.Dir) == "" {
		c.Journal.Dir = d.Journal.Dir
	}
}

func (c Config) Validate() error {
	if !strings.HasPrefix(c.Server.URL, "ws://") && !strings.HasPrefix(c.Server.URL, "wss://") {
		return fmt.Errorf("server.url must be a ws:// or wss:// URL, got %q", c.Server.URL)
	}
	if c.Sync.RetryBaseMS > c.Sync.RetryMaxMS {
		return fmt.Errorf("sync.retry_base_ms (%d) must not exceed sync.retry_max_ms (%d)",
			c.Sync.RetryBaseMS, c.Sync.RetryMaxMS)
	}
	if c.Breaker.CooldownSeconds > c.Breaker.MaxCooldownSeconds {
		return fmt.Errorf("breaker.cooldown_seconds (%d) must not exceed breaker.max_cooldown_seconds (%d)",
			c.Breaker.CooldownSeconds, c.Breaker.MaxCooldownSeconds)
	}
	if c.Realtime.ConnectedWithinSeconds >= c.Realtime.ReconnectingWithinSeconds {
		return fmt.Errorf("realtime.connected_within_seconds (%d) must be below reconnecting_within_seconds (%d)",
			c.Realtime.ConnectedWithinSeconds, c.Realtime.ReconnectingWithinSeconds)
	}
	return nil
}

// Duration helpers so callers never re-derive units.

func (c ServerConfig) Timeout() time.Duration { return time.Duration(c.TimeoutMS) * time.Millisecond }

func (c SyncConfig) CommitTimeout() time.Duration {
	return time.Duration(c.CommitTimeoutSeconds) * time.Second
}
func (c SyncConfig) RetryBase() time.Duration { return time.Duration(c.RetryBaseMS) * time.Millisecond }
func (c SyncConfig) RetryMax() time.Duration  { return time.Duration(c.RetryMaxMS) * time.Millisecond }

func (c QueueConfig) MaxAge() time.Duration {
	return time.Duration(c.MaxAgeMinutes) * time.Minute
}
func (c QueueConfig) FlushDebounce() time.Duration {
	return time.Duration(c.FlushDebounceMS) * time.Millisecond
}

func (c BreakerConfig) Cooldown() time.Duration {
	return time.Duration(c.CooldownSeconds) * time.Second
}
func (c BreakerConfig) MaxCooldown() time.Duration {
	return time.Duration(c.MaxCooldownSeconds) * time.Second
}

func (c RealtimeConfig) CheckInterval() time.Duration {
	return time.Duration(c.CheckIntervalSeconds) * time.Second
}
func (c RealtimeConfig) ConnectedWithin() time.Duration {
	return time.Duration(c.ConnectedWithinSeconds) * time.Second
}
func (c RealtimeConfig) ReconnectingWithin() time.Duration {
	return time.Duration(c.ReconnectingWithinSeconds) * time.Second
}
func (c RealtimeConfig) SnapshotDebounce() time.Duration {
	return time.Duration(c.SnapshotDebounceMS) * time.Millisecond
}

func (c TurnConfig) Duration() time.Duration {
	return time.Duration(c.DurationSeconds) * time.Second
}

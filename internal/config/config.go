// Package config loads and persists the application configuration.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// Config is the persistent application configuration
type Config struct {
	// Server is the base URL of the streaming server
	Server ServerConfig `json:"server"`

	// Cache tuning for the persisted item cache
	Cache CacheConfig `json:"cache"`

	// Search input behavior
	Search SearchConfig `json:"search"`
}

// ServerConfig holds the streaming endpoint settings
type ServerConfig struct {
	BaseURL     string `json:"base_url"`
	AccessToken string `json:"access_token,omitempty"`
}

// CacheConfig holds persisted-cache settings
type CacheConfig struct {
	DBPath        string `json:"db_path,omitempty"` // empty means the default location
	LifespanSecs  int    `json:"lifespan_secs"`
	SweepInterval int    `json:"sweep_interval_secs"`
}

// SearchConfig holds query-input settings
type SearchConfig struct {
	DebounceMs int `json:"debounce_ms"`
}

// Lifespan returns the configured item lifespan as a duration.
func (c CacheConfig) Lifespan() time.Duration {
	return time.Duration(c.LifespanSecs) * time.Second
}

// Interval returns the configured sweep interval as a duration.
func (c CacheConfig) Interval() time.Duration {
	return time.Duration(c.SweepInterval) * time.Second
}

// Debounce returns the configured quiet period as a duration.
func (c SearchConfig) Debounce() time.Duration {
	return time.Duration(c.DebounceMs) * time.Millisecond
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			BaseURL: "https://mas.to",
		},
		Cache: CacheConfig{
			LifespanSecs:  300,
			SweepInterval: 60,
		},
		Search: SearchConfig{
			DebounceMs: 300,
		},
	}
}

// ConfigPath returns the path to the config file
func ConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".timeline", "config.json")
}

// DefaultDBPath returns the default location of the cache database
func DefaultDBPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".timeline", "cache.db")
}

// Load reads config from disk, or returns defaults
func Load() (*Config, error) {
	return loadFrom(ConfigPath())
}

func loadFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := DefaultConfig()
			cfg.AutoPopulateFromEnv()
			return cfg, nil
		}
		return nil, err
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return DefaultConfig(), nil
	}
	cfg.AutoPopulateFromEnv()
	cfg.normalize()
	return cfg, nil
}

// Save writes config to disk
func (c *Config) Save() error {
	return c.saveTo(ConfigPath())
}

func (c *Config) saveTo(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600) // Restrictive permissions for the access token
}

// AutoPopulateFromEnv fills in the access token from the environment
func (c *Config) AutoPopulateFromEnv() {
	if c.Server.AccessToken == "" {
		c.Server.AccessToken = os.Getenv("TIMELINE_ACCESS_TOKEN")
	}
}

// normalize backfills zero values left by a partial config file.
func (c *Config) normalize() {
	def := DefaultConfig()
	if c.Server.BaseURL == "" {
		c.Server.BaseURL = def.Server.BaseURL
	}
	if c.Cache.LifespanSecs <= 0 {
		c.Cache.LifespanSecs = def.Cache.LifespanSecs
	}
	if c.Cache.SweepInterval <= 0 {
		c.Cache.SweepInterval = def.Cache.SweepInterval
	}
	if c.Search.DebounceMs <= 0 {
		c.Search.DebounceMs = def.Search.DebounceMs
	}
}

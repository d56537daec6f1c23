package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/pario-ai/leadchat/pkg/client"
)

// Cache backends.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// Config holds all leadchat configuration.
type Config struct {
	Listen  string        `yaml:"listen"`
	API     APIConfig     `yaml:"api"`
	Cache   CacheConfig   `yaml:"cache"`
	Stream  StreamConfig  `yaml:"stream"`
	Logging LoggingConfig `yaml:"logging"`
}

// APIConfig points at the chat API.
type APIConfig struct {
	BaseURL       string        `yaml:"base_url"`
	DefaultModel  string        `yaml:"default_model"`
	ChatTimeout   time.Duration `yaml:"chat_timeout"`
	ModelsTimeout time.Duration `yaml:"models_timeout"`
}

// CacheConfig controls the response cache and where its snapshot lives.
// Path is used by the file backend, DBPath by sqlite, RedisURL by redis.
type CacheConfig struct {
	Duration time.Duration `yaml:"duration"`
	Backend  string        `yaml:"backend"`
	Path     string        `yaml:"path"`
	DBPath   string        `yaml:"db_path"`
	RedisURL string        `yaml:"redis_url"`
	RedisKey string        `yaml:"redis_key"`
}

// StreamConfig controls simulated streaming.
type StreamConfig struct {
	Pacing time.Duration `yaml:"pacing"`
}

// LoggingConfig controls zerolog output.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	cc := client.DefaultConfig()
	return &Config{
		Listen: ":8080",
		API: APIConfig{
			BaseURL:       cc.BaseURL,
			DefaultModel:  cc.DefaultModel,
			ChatTimeout:   cc.ChatTimeout,
			ModelsTimeout: cc.ModelsTimeout,
		},
		Cache: CacheConfig{
			Duration: time.Hour,
			Backend:  BackendFile,
			Path:     "cache/api_cache.json",
			DBPath:   "cache/leadchat.db",
		},
		Stream: StreamConfig{
			Pacing: cc.StreamPacing,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads a YAML config file and expands environment variables.
// Environment overrides are applied on top.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from LEADCHAT_* variables. API_BASE_URL is
// honored when LEADCHAT_API_BASE_URL is unset.
func (c *Config) ApplyEnv() error {
	if v := firstEnv("LEADCHAT_API_BASE_URL", "API_BASE_URL"); v != "" {
		c.API.BaseURL = v
	}
	if v := os.Getenv("LEADCHAT_DEFAULT_MODEL"); v != "" {
		c.API.DefaultModel = v
	}
	if v := os.Getenv("LEADCHAT_CACHE_DURATION"); v != "" {
		d, err := parseDuration(v)
		if err != nil {
			return fmt.Errorf("LEADCHAT_CACHE_DURATION: %w", err)
		}
		c.Cache.Duration = d
	}
	if v := os.Getenv("LEADCHAT_CACHE_BACKEND"); v != "" {
		c.Cache.Backend = v
	}
	if v := os.Getenv("LEADCHAT_CACHE_PATH"); v != "" {
		c.Cache.Path = v
	}
	if v := os.Getenv("LEADCHAT_REDIS_URL"); v != "" {
		c.Cache.RedisURL = v
	}
	if v := os.Getenv("LEADCHAT_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	return nil
}

// Validate reports configuration that cannot work.
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("api.base_url is required")
	}
	if c.Cache.Duration <= 0 {
		return fmt.Errorf("cache.duration must be positive, got %s", c.Cache.Duration)
	}
	if c.API.ChatTimeout <= 0 || c.API.ModelsTimeout <= 0 {
		return fmt.Errorf("api timeouts must be positive")
	}
	switch c.Cache.Backend {
	case BackendFile, BackendSQLite, BackendMemory:
	case BackendRedis:
		if c.Cache.RedisURL == "" {
			return fmt.Errorf("cache.redis_url is required for the redis backend")
		}
	default:
		return fmt.Errorf("unknown cache backend %q", c.Cache.Backend)
	}
	return nil
}

// ClientConfig converts to the chat client's settings.
func (c *Config) ClientConfig() client.Config {
	return client.Config{
		BaseURL:       c.API.BaseURL,
		DefaultModel:  c.API.DefaultModel,
		ChatTimeout:   c.API.ChatTimeout,
		ModelsTimeout: c.API.ModelsTimeout,
		StreamPacing:  c.Stream.Pacing,
	}
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

// parseDuration accepts Go durations ("90m") or bare seconds ("3600").
func parseDuration(s string) (time.Duration, error) {
	if secs, err := strconv.Atoi(s); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	return time.ParseDuration(s)
}

package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"ollamagate/internal/cache"
	"ollamagate/internal/ollama"
)

// Config is the gateway configuration. Values come from an optional YAML
// file; environment variables override the file.
type Config struct {
	Server     ServerConfig          `yaml:"server"`
	Cache      CacheConfig           `yaml:"cache"`
	Ollama     OllamaConfig          `yaml:"ollama"`
	Conversion ollama.ConvertOptions `yaml:"conversion"`
}

type ServerConfig struct {
	Port           string        `yaml:"port"`
	VersionID      string        `yaml:"version"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	MaxBodyBytes   int64         `yaml:"max_body_bytes"`
	CORSOrigins    []string      `yaml:"cors_origins"` // empty disables CORS
}

type CacheConfig struct {
	Backend    string        `yaml:"backend"` // "memory" or "redis"
	TTL        time.Duration `yaml:"ttl"`
	Prefix     string        `yaml:"prefix"`
	RedisAddr  string        `yaml:"redis_addr"`
	MaxEntries int           `yaml:"max_entries"` // memory backend only
	MaxBytes   int64         `yaml:"max_bytes"`   // memory backend only
}

type OllamaConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:           "8080",
			VersionID:      "v1",
			RequestTimeout: 90 * time.Second,
			MaxBodyBytes:   16 << 20,
		},
		Cache: CacheConfig{
			Backend:    cache.BackendMemory,
			TTL:        5 * time.Minute,
			Prefix:     "ollamagate",
			RedisAddr:  "127.0.0.1:6379",
			MaxEntries: 1024,
			MaxBytes:   256 << 20,
		},
		Ollama: OllamaConfig{
			BaseURL: ollama.DefaultBaseURL,
			Timeout: 60 * time.Second,
		},
		Conversion: ollama.ConvertOptions{
			SystemMessageMode: ollama.SystemMessageModeSystem,
		},
	}
}

// Load reads path (if non-empty) over the defaults and then applies
// environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.Server.Port = getenv("PORT", c.Server.Port)
	c.Server.VersionID = getenv("GATEWAY_VERSION", c.Server.VersionID)
	c.Cache.Backend = getenv("CACHE_BACKEND", c.Cache.Backend)
	c.Cache.RedisAddr = getenv("REDIS_ADDR", c.Cache.RedisAddr)
	c.Ollama.BaseURL = getenv("OLLAMA_BASE_URL", c.Ollama.BaseURL)

	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		c.Server.CORSOrigins = splitList(v)
	}

	var err error
	if c.Cache.TTL, err = getenvDuration("CACHE_TTL", c.Cache.TTL); err != nil {
		return err
	}
	if c.Ollama.Timeout, err = getenvDuration("OLLAMA_TIMEOUT", c.Ollama.Timeout); err != nil {
		return err
	}

	if v := os.Getenv("SYSTEM_MESSAGE_MODE"); v != "" {
		c.Conversion.SystemMessageMode = ollama.SystemMessageMode(v)
	}
	if v := os.Getenv("LEGACY_FUNCTION_CALLING"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("LEGACY_FUNCTION_CALLING: %w", err)
		}
		c.Conversion.UseLegacyFunctionCalling = b
	}
	return nil
}

// Validate normalizes the system message mode and checks the rest.
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if _, err := strconv.Atoi(c.Server.Port); err != nil {
		return fmt.Errorf("server.port: %w", err)
	}
	if c.Server.MaxBodyBytes <= 0 {
		return errors.New("server.max_body_bytes must be positive")
	}

	switch c.Cache.Backend {
	case cache.BackendMemory, cache.BackendRedis:
	default:
		return fmt.Errorf("cache.backend must be %q or %q, got %q", cache.BackendMemory, cache.BackendRedis, c.Cache.Backend)
	}
	if c.Cache.TTL < 0 {
		return errors.New("cache.ttl must not be negative")
	}
	if c.Cache.MaxEntries < 0 || c.Cache.MaxBytes < 0 {
		return errors.New("cache.max_entries and cache.max_bytes must not be negative")
	}

	if err := c.Conversion.Normalize(); err != nil {
		return fmt.Errorf("conversion.system_message_mode: %w", err)
	}

	return nil
}

// getenv returns the value of the environment variable key or def if not set.
func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func splitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

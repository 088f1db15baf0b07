package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/luongdev/rtcfeatures/pkg/features"
	"github.com/luongdev/rtcfeatures/pkg/stats"
)

// Config represents the application configuration
type Config struct {
	Extraction ExtractionConfig `yaml:"extraction"`
	Storage    StorageConfig    `yaml:"storage"`
	HTTP       HTTPConfig       `yaml:"http"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ExtractionConfig represents feature extraction configuration
type ExtractionConfig struct {
	FormatHint string        `yaml:"format_hint"` // empty means detect
	Workers    int           `yaml:"workers"`     // connections processed concurrently
	Features   []string      `yaml:"features"`    // empty means all
	ResultTTL  time.Duration `yaml:"result_ttl"`
}

// StorageConfig represents storage backend configuration
type StorageConfig struct {
	Type  string       `yaml:"type"` // "memory" or "redis"
	Redis *RedisConfig `yaml:"redis,omitempty"`
}

// RedisConfig represents Redis connection configuration
type RedisConfig struct {
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

// Addr returns host:port
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// HTTPConfig represents HTTP server configuration
type HTTPConfig struct {
	Port         int   `yaml:"port"`
	MaxBodyBytes int64 `yaml:"max_body_bytes"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// Load loads configuration from file or environment variables
// Priority: config file → environment variables
func Load(configPath string) (*Config, error) {
	var cfg Config

	if configPath != "" {
		if err := loadFromFile(configPath, &cfg); err != nil {
			// A missing file falls through to env vars
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to load config file: %w", err)
			}
		}
	}

	if err := loadFromEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	cfg.setDefaults()

	return &cfg, nil
}

// loadFromFile loads configuration from YAML file
func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}

	return nil
}

// loadFromEnv loads configuration from environment variables with RTCFEATURES_ prefix
func loadFromEnv(cfg *Config) error {
	if hint := os.Getenv("RTCFEATURES_FORMAT_HINT"); hint != "" {
		cfg.Extraction.FormatHint = hint
	}

	if workers := os.Getenv("RTCFEATURES_WORKERS"); workers != "" {
		w, err := strconv.Atoi(workers)
		if err != nil {
			return fmt.Errorf("invalid RTCFEATURES_WORKERS: %w", err)
		}
		cfg.Extraction.Workers = w
	}

	// Comma separated, e.g. RTCFEATURES_FEATURES=rtt,isUsingRelay
	if fs := os.Getenv("RTCFEATURES_FEATURES"); fs != "" {
		cfg.Extraction.Features = strings.Split(fs, ",")
	}

	if ttl := os.Getenv("RTCFEATURES_RESULT_TTL"); ttl != "" {
		d, err := time.ParseDuration(ttl)
		if err != nil {
			return fmt.Errorf("invalid RTCFEATURES_RESULT_TTL: %w", err)
		}
		cfg.Extraction.ResultTTL = d
	}

	if port := os.Getenv("RTCFEATURES_HTTP_PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("invalid RTCFEATURES_HTTP_PORT: %w", err)
		}
		cfg.HTTP.Port = p
	}

	if level := os.Getenv("RTCFEATURES_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}

	if format := os.Getenv("RTCFEATURES_LOG_FORMAT"); format != "" {
		cfg.Logging.Format = format
	}

	if storageType := os.Getenv("RTCFEATURES_STORAGE_TYPE"); storageType != "" {
		cfg.Storage.Type = storageType
	}

	if redisHost := os.Getenv("RTCFEATURES_REDIS_HOST"); redisHost != "" {
		if cfg.Storage.Redis == nil {
			cfg.Storage.Redis = &RedisConfig{}
		}
		cfg.Storage.Redis.Host = redisHost
	}

	if redisPort := os.Getenv("RTCFEATURES_REDIS_PORT"); redisPort != "" {
		if cfg.Storage.Redis == nil {
			cfg.Storage.Redis = &RedisConfig{}
		}
		p, err := strconv.Atoi(redisPort)
		if err != nil {
			return fmt.Errorf("invalid RTCFEATURES_REDIS_PORT: %w", err)
		}
		cfg.Storage.Redis.Port = p
	}

	if redisPassword := os.Getenv("RTCFEATURES_REDIS_PASSWORD"); redisPassword != "" {
		if cfg.Storage.Redis == nil {
			cfg.Storage.Redis = &RedisConfig{}
		}
		cfg.Storage.Redis.Password = redisPassword
	}

	if redisDB := os.Getenv("RTCFEATURES_REDIS_DB"); redisDB != "" {
		if cfg.Storage.Redis == nil {
			cfg.Storage.Redis = &RedisConfig{}
		}
		db, err := strconv.Atoi(redisDB)
		if err != nil {
			return fmt.Errorf("invalid RTCFEATURES_REDIS_DB: %w", err)
		}
		cfg.Storage.Redis.DB = db
	}

	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if _, err := stats.ParseFormat(c.Extraction.FormatHint); err != nil {
		return fmt.Errorf("invalid format hint: %w", err)
	}

	if c.Extraction.Workers < 0 {
		return fmt.Errorf("workers must not be negative, got %d", c.Extraction.Workers)
	}

	if _, err := features.ParseFeatures(c.Extraction.Features); err != nil {
		return fmt.Errorf("invalid features: %w", err)
	}

	if c.Extraction.ResultTTL < 0 {
		return fmt.Errorf("result_ttl must not be negative")
	}

	if c.HTTP.Port < 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("invalid HTTP port %d", c.HTTP.Port)
	}

	if c.Storage.Type != "" && c.Storage.Type != "memory" && c.Storage.Type != "redis" {
		return fmt.Errorf("storage type must be 'memory' or 'redis', got '%s'", c.Storage.Type)
	}

	if c.Storage.Type == "redis" {
		if c.Storage.Redis == nil {
			return fmt.Errorf("Redis configuration is required when storage type is 'redis'")
		}
		if c.Storage.Redis.Host == "" {
			return fmt.Errorf("Redis host is required")
		}
		if c.Storage.Redis.Port <= 0 || c.Storage.Redis.Port > 65535 {
			return fmt.Errorf("invalid Redis port %d", c.Storage.Redis.Port)
		}
	}

	if c.Logging.Level != "" {
		validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
		if !validLevels[c.Logging.Level] {
			return fmt.Errorf("invalid log level '%s', must be one of: debug, info, warn, error", c.Logging.Level)
		}
	}

	if c.Logging.Format != "" {
		if c.Logging.Format != "json" && c.Logging.Format != "text" {
			return fmt.Errorf("invalid log format '%s', must be 'json' or 'text'", c.Logging.Format)
		}
	}

	return nil
}

// setDefaults sets default values for optional fields
func (c *Config) setDefaults() {
	if c.Extraction.Workers == 0 {
		c.Extraction.Workers = 4
	}

	if c.Extraction.ResultTTL == 0 {
		c.Extraction.ResultTTL = time.Hour
	}

	if c.HTTP.Port == 0 {
		c.HTTP.Port = 8080
	}

	if c.HTTP.MaxBodyBytes == 0 {
		c.HTTP.MaxBodyBytes = 64 << 20
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}

	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}

	if c.Storage.Type == "" {
		c.Storage.Type = "memory"
	}

	if c.Storage.Redis != nil && c.Storage.Redis.KeyPrefix == "" {
		c.Storage.Redis.KeyPrefix = "rtcfeatures"
	}
}

// Default returns a configuration with every default applied
func Default() *Config {
	var cfg Config
	cfg.setDefaults()
	return &cfg
}

// FormatHint returns the configured format hint
func (c *Config) FormatHint() stats.Format {
	f, _ := stats.ParseFormat(c.Extraction.FormatHint)
	return f
}

// ExtractorOptions converts the extraction section to engine options
func (c *Config) ExtractorOptions() []features.Option {
	var opts []features.Option
	if hint := c.FormatHint(); hint != stats.FormatUnknown {
		opts = append(opts, features.WithFormatHint(hint))
	}
	if fs, err := features.ParseFeatures(c.Extraction.Features); err == nil && len(fs) > 0 {
		opts = append(opts, features.WithFeatures(fs...))
	}
	return opts
}

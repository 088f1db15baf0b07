package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luongdev/rtcfeatures/pkg/stats"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
extraction:
  format_hint: firefox
  workers: 8
  features: [rtt, isUsingRelay]
  result_ttl: 30m
storage:
  type: redis
  redis:
    host: localhost
    port: 6379
http:
  port: 9090
logging:
  level: debug
  format: text
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, stats.FormatFirefox, cfg.FormatHint())
	assert.Equal(t, 8, cfg.Extraction.Workers)
	assert.Equal(t, []string{"rtt", "isUsingRelay"}, cfg.Extraction.Features)
	assert.Equal(t, 30*time.Minute, cfg.Extraction.ResultTTL)
	assert.Equal(t, "redis", cfg.Storage.Type)
	assert.Equal(t, "localhost:6379", cfg.Storage.Redis.Addr())
	assert.Equal(t, "rtcfeatures", cfg.Storage.Redis.KeyPrefix)
	assert.Equal(t, 9090, cfg.HTTP.Port)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Len(t, cfg.ExtractorOptions(), 2)
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.Extraction.Workers)
	assert.Equal(t, time.Hour, cfg.Extraction.ResultTTL)
	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "memory", cfg.Storage.Type)
	assert.Equal(t, stats.FormatUnknown, cfg.FormatHint())
	assert.Empty(t, cfg.ExtractorOptions())
	assert.Equal(t, Default(), cfg)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("RTCFEATURES_FORMAT_HINT", "chrome_standard")
	t.Setenv("RTCFEATURES_WORKERS", "2")
	t.Setenv("RTCFEATURES_FEATURES", "rtt")
	t.Setenv("RTCFEATURES_RESULT_TTL", "5m")
	t.Setenv("RTCFEATURES_HTTP_PORT", "8181")
	t.Setenv("RTCFEATURES_STORAGE_TYPE", "redis")
	t.Setenv("RTCFEATURES_REDIS_HOST", "redis")
	t.Setenv("RTCFEATURES_REDIS_PORT", "6380")
	t.Setenv("RTCFEATURES_REDIS_DB", "3")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, stats.FormatChromeStandard, cfg.FormatHint())
	assert.Equal(t, 2, cfg.Extraction.Workers)
	assert.Equal(t, []string{"rtt"}, cfg.Extraction.Features)
	assert.Equal(t, 5*time.Minute, cfg.Extraction.ResultTTL)
	assert.Equal(t, 8181, cfg.HTTP.Port)
	assert.Equal(t, "redis:6380", cfg.Storage.Redis.Addr())
	assert.Equal(t, 3, cfg.Storage.Redis.DB)
}

func TestLoadInvalidEnv(t *testing.T) {
	t.Setenv("RTCFEATURES_WORKERS", "many")
	_, err := Load("")
	assert.ErrorContains(t, err, "RTCFEATURES_WORKERS")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"bad hint", Config{Extraction: ExtractionConfig{FormatHint: "opera"}}},
		{"negative workers", Config{Extraction: ExtractionConfig{Workers: -1}}},
		{"bad feature", Config{Extraction: ExtractionConfig{Features: []string{"jitter"}}}},
		{"bad storage", Config{Storage: StorageConfig{Type: "disk"}}},
		{"redis without section", Config{Storage: StorageConfig{Type: "redis"}}},
		{"redis without host", Config{Storage: StorageConfig{Type: "redis", Redis: &RedisConfig{Port: 6379}}}},
		{"bad log level", Config{Logging: LoggingConfig{Level: "trace"}}},
		{"bad log format", Config{Logging: LoggingConfig{Format: "xml"}}},
		{"bad http port", Config{HTTP: HTTPConfig{Port: 70000}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.cfg.Validate())
		})
	}

	var empty Config
	assert.NoError(t, empty.Validate())
}

func TestLoadMalformedFile(t *testing.T) {
	path := writeConfig(t, "extraction: [")
	_, err := Load(path)
	assert.ErrorContains(t, err, "failed to load config file")
}

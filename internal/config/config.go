package config

import (
	"fmt"
	"os"
	"time"

	"github.com/tomgoth/hrv-dashboard/pkg/storage"
	"github.com/tomgoth/hrv-dashboard/pkg/types"
	yaml "gopkg.in/yaml.v3"
)

// Config holds the application configuration
type Config struct {
	Server    ServerConfig    `json:"server" yaml:"server"`
	Feed      FeedConfig      `json:"feed" yaml:"feed"`
	Dashboard DashboardConfig `json:"dashboard" yaml:"dashboard"`
	Storage   StorageConfig   `json:"storage" yaml:"storage"`
	Cache     CacheConfig     `json:"cache" yaml:"cache"`
	Logging   LoggingConfig   `json:"logging" yaml:"logging"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	ListenAddr string        `json:"listen_addr" yaml:"listen_addr"`
	Timeout    time.Duration `json:"timeout" yaml:"timeout"`
}

// FeedConfig configures the HRV backend the series are fetched from
type FeedConfig struct {
	BaseURI       string        `json:"base_uri" yaml:"base_uri"`
	Timeout       time.Duration `json:"timeout" yaml:"timeout"`
	RetryInterval time.Duration `json:"retry_interval" yaml:"retry_interval"`
}

// DashboardConfig holds the chart defaults
type DashboardConfig struct {
	InitialDuration string    `json:"initial_duration" yaml:"initial_duration"`
	Padding         float64   `json:"padding" yaml:"padding"`
	Quantiles       []float64 `json:"quantiles" yaml:"quantiles"`
	Location        string    `json:"location" yaml:"location"`
}

// StorageConfig holds storage configuration
type StorageConfig struct {
	CompressionLevel int           `json:"compression_level" yaml:"compression_level"`
	BlockSize        time.Duration `json:"block_size" yaml:"block_size"`
}

// CacheConfig holds the window query cache configuration
type CacheConfig struct {
	Capacity int           `json:"capacity" yaml:"capacity"`
	TTL      time.Duration `json:"ttl" yaml:"ttl"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `json:"level" yaml:"level"`
	File  string `json:"file" yaml:"file"`
	JSON  bool   `json:"json" yaml:"json"`
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr: getEnv("LISTEN_ADDR", ":8080"),
			Timeout:    getEnvDuration("SERVER_TIMEOUT", 30*time.Second),
		},
		Feed: FeedConfig{
			BaseURI:       getEnv("HRV_BACKEND_URI", "http://localhost:3000"),
			Timeout:       getEnvDuration("FEED_TIMEOUT", 10*time.Second),
			RetryInterval: getEnvDuration("FEED_RETRY_INTERVAL", 15*time.Second),
		},
		Dashboard: DashboardConfig{
			InitialDuration: getEnv("INITIAL_DURATION", string(types.Week)),
			Padding:         30,
			Quantiles:       []float64{0.66, 0.33},
			Location:        getEnv("TZ_LOCATION", "Local"),
		},
		Storage: StorageConfig{
			CompressionLevel: getEnvInt("COMPRESSION_LEVEL", 3),
			BlockSize:        getEnvDuration("BLOCK_SIZE", 24*time.Hour),
		},
		Cache: CacheConfig{
			Capacity: getEnvInt("CACHE_CAPACITY", 256),
			TTL:      getEnvDuration("CACHE_TTL", 5*time.Minute),
		},
		Logging: LoggingConfig{
			Level: getEnv("LOG_LEVEL", "info"),
			File:  getEnv("LOG_FILE", ""),
			JSON:  getEnvBool("LOG_JSON", false),
		},
	}
}

// Load returns the default configuration overlaid with the YAML file at
// path. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, nil
}

// ToStorageConfig converts to storage.Config
func (c *Config) ToStorageConfig() *storage.Config {
	return &storage.Config{
		CompressionLevel: c.Storage.CompressionLevel,
		BlockSize:        c.Storage.BlockSize,
	}
}

// InitialDuration returns the configured initial chart duration
func (c *Config) InitialDuration() types.Duration {
	return types.Duration(c.Dashboard.InitialDuration)
}

// Location resolves the time zone labels are printed in
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Dashboard.Location)
	if err != nil {
		return nil, fmt.Errorf("invalid location %q: %w", c.Dashboard.Location, err)
	}
	return loc, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.ListenAddr == "" {
		return fmt.Errorf("server listen address is required")
	}

	if c.Feed.BaseURI == "" {
		return fmt.Errorf("feed base uri is required")
	}

	if c.Feed.RetryInterval <= 0 {
		return fmt.Errorf("feed retry interval must be positive")
	}

	if !c.InitialDuration().Valid() {
		return fmt.Errorf("initial duration must be one of day, week, month, year")
	}

	if c.Dashboard.Padding < 0 {
		return fmt.Errorf("dashboard padding must not be negative")
	}

	for _, q := range c.Dashboard.Quantiles {
		if q < 0 || q > 1 {
			return fmt.Errorf("quantile %v must be between 0 and 1", q)
		}
	}

	if _, err := c.Location(); err != nil {
		return err
	}

	if c.Storage.CompressionLevel < 1 || c.Storage.CompressionLevel > 4 {
		return fmt.Errorf("compression level must be between 1 and 4")
	}

	if c.Cache.Capacity < 1 {
		return fmt.Errorf("cache capacity must be at least 1")
	}

	return nil
}

// Helper functions for environment variables
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var intVal int
		if _, err := fmt.Sscanf(value, "%d", &intVal); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1"
	}
	return defaultValue
}

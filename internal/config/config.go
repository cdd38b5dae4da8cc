// Package config loads and validates crawler configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/fipeops/fipecrawler/internal/catalog"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Crawler CrawlerConfig `mapstructure:"crawler"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	Cache   CacheConfig   `mapstructure:"cache"`
	Remote  RemoteConfig  `mapstructure:"remote"`
	Server  ServerConfig  `mapstructure:"server"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// CrawlerConfig governs the discovery run.
type CrawlerConfig struct {
	Workers        int   `mapstructure:"workers"`
	VehicleClasses []int `mapstructure:"vehicle_classes"`
}

// HTTPConfig configures the upstream API client.
type HTTPConfig struct {
	BaseURL          string `mapstructure:"base_url"`
	TimeoutSeconds   int    `mapstructure:"timeout_seconds"`
	MaxRetries       int    `mapstructure:"max_retries"`
	RetryBaseWaitSec int    `mapstructure:"retry_base_wait_seconds"`
	DelayMs          int    `mapstructure:"delay_ms"`
}

// CacheConfig locates the local SQLite cache.
type CacheConfig struct {
	Path string `mapstructure:"path"`
}

// RemoteConfig controls access to the remote Postgres store.
type RemoteConfig struct {
	DSN       string `mapstructure:"dsn"`
	BatchSize int    `mapstructure:"batch_size"`
	MaxConns  int32  `mapstructure:"max_conns"`
}

// ServerConfig controls the optional health/metrics listener.
type ServerConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("FIPE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("crawler.workers", 5)
	v.SetDefault("crawler.vehicle_classes", []int{1, 2, 3})
	// Keys without a meaningful default still need registering, or
	// AutomaticEnv never sees their FIPE_* variables.
	v.SetDefault("http.base_url", "")
	v.SetDefault("remote.dsn", "")
	v.SetDefault("remote.max_conns", 0)
	v.SetDefault("http.timeout_seconds", 30)
	v.SetDefault("http.max_retries", 3)
	v.SetDefault("http.retry_base_wait_seconds", 5)
	v.SetDefault("http.delay_ms", 1500)
	v.SetDefault("cache.path", "fipe_cache.db")
	v.SetDefault("remote.batch_size", 1000)
	v.SetDefault("server.enabled", false)
	v.SetDefault("server.port", 8080)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Crawler.Workers <= 0 {
		return fmt.Errorf("crawler.workers must be > 0")
	}
	if len(c.Crawler.VehicleClasses) == 0 {
		return fmt.Errorf("crawler.vehicle_classes must not be empty")
	}
	for _, cls := range c.Crawler.VehicleClasses {
		if !catalog.VehicleClass(cls).Valid() {
			return fmt.Errorf("crawler.vehicle_classes: unknown class %d", cls)
		}
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.HTTP.MaxRetries <= 0 {
		return fmt.Errorf("http.max_retries must be > 0")
	}
	if c.Cache.Path == "" {
		return fmt.Errorf("cache.path must be set")
	}
	if c.Remote.BatchSize <= 0 {
		return fmt.Errorf("remote.batch_size must be > 0")
	}
	if c.Server.Enabled && c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0 when the server is enabled")
	}
	return nil
}

// Classes converts the configured vehicle class codes to domain values.
func (c Config) Classes() []catalog.VehicleClass {
	classes := make([]catalog.VehicleClass, 0, len(c.Crawler.VehicleClasses))
	for _, cls := range c.Crawler.VehicleClasses {
		classes = append(classes, catalog.VehicleClass(cls))
	}
	return classes
}

// HTTPTimeout returns the API client timeout as a duration.
func (c Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// RetryBaseWait returns the 429 backoff base as a duration.
func (c Config) RetryBaseWait() time.Duration {
	return time.Duration(c.HTTP.RetryBaseWaitSec) * time.Second
}

// RequestInterval returns the pacing delay between API requests.
func (c Config) RequestInterval() time.Duration {
	return time.Duration(c.HTTP.DelayMs) * time.Millisecond
}

// Package config loads CLI configuration from a YAML file and environment
// variables. Environment variables (METAQUERY_*) override file values.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// CacheConfig selects and parameterizes the cache backend.
type CacheConfig struct {
	// Backend is one of: memory, file, postgres, redis.
	Backend       string `mapstructure:"backend"`
	Dir           string `mapstructure:"dir"`
	PostgresDSN   string `mapstructure:"postgres_dsn"`
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
}

// HTTPSourceConfig declares one JSON HTTP series source.
type HTTPSourceConfig struct {
	Name          string `mapstructure:"name"`
	BaseURL       string `mapstructure:"base_url"`
	APIKey        string `mapstructure:"api_key"`
	MinIntervalMS int    `mapstructure:"min_interval_ms"`
	TimeoutSec    int    `mapstructure:"timeout_sec"`
}

// Config holds everything the CLI needs to assemble a querier.
type Config struct {
	Catalogs    []string           `mapstructure:"catalogs"`
	Cache       CacheConfig        `mapstructure:"cache"`
	HTTPSources []HTTPSourceConfig `mapstructure:"http_sources"`
	LogLevel    string             `mapstructure:"log_level"`
}

// Load reads configuration from the given file (optional) and environment.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("METAQUERY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("cache.backend", "file")
	v.SetDefault("cache.dir", "./cache")
	v.SetDefault("cache.redis_db", 0)
	v.SetDefault("log_level", "info")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Cache.Backend {
	case "memory", "file":
	case "postgres":
		if c.Cache.PostgresDSN == "" {
			return fmt.Errorf("cache.postgres_dsn is required for the postgres backend")
		}
	case "redis":
		if c.Cache.RedisAddr == "" {
			return fmt.Errorf("cache.redis_addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("unknown cache backend %q", c.Cache.Backend)
	}
	for _, s := range c.HTTPSources {
		if s.Name == "" || s.BaseURL == "" {
			return fmt.Errorf("http source needs name and base_url (got name=%q base_url=%q)", s.Name, s.BaseURL)
		}
	}
	return nil
}

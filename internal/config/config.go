package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Log      LogConfig      `mapstructure:"log"`
	Server   ServerConfig   `mapstructure:"server"`
	Catalog  CatalogConfig  `mapstructure:"catalog"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Worker   WorkerConfig   `mapstructure:"worker"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         int    `mapstructure:"port"`
	Host         string `mapstructure:"host"`
	ReadTimeout  int    `mapstructure:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout"`
	SearchPath   string `mapstructure:"search_path"`
	StaticPath   string `mapstructure:"static_path"`
}

func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// CatalogConfig holds upstream classifier catalog configuration
type CatalogConfig struct {
	BaseURL              string   `mapstructure:"base_url"`
	ClassifiersPath      string   `mapstructure:"classifiers_path"`
	Timeout              int      `mapstructure:"timeout"`
	MaxRetries           int      `mapstructure:"max_retries"`
	MaxRequestsPerSecond int      `mapstructure:"max_requests_per_second"`
	RefreshInterval      int      `mapstructure:"refresh_interval"`
	RefreshCooldown      int      `mapstructure:"refresh_cooldown"`
	Proxies              []string `mapstructure:"proxies"`
}

// URL returns the absolute address of the upstream classifier list.
func (c CatalogConfig) URL() string {
	return strings.TrimRight(c.BaseURL, "/") + c.ClassifiersPath
}

func (c CatalogConfig) RefreshIntervalDuration() time.Duration {
	return time.Duration(c.RefreshInterval) * time.Second
}

func (c CatalogConfig) RefreshCooldownDuration() time.Duration {
	return time.Duration(c.RefreshCooldown) * time.Second
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Name     string `mapstructure:"name"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	SSLMode  string `mapstructure:"sslmode"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

// RedisConfig holds Redis connection details
type RedisConfig struct {
	Host          string `mapstructure:"host"`
	Port          int    `mapstructure:"port"`
	Password      string `mapstructure:"password"`
	Database      int    `mapstructure:"database"`
	ConsumerGroup string `mapstructure:"consumer_group"`
	MinIdleTime   int    `mapstructure:"min_idle_time"`
	KeyPrefix     string `mapstructure:"key_prefix"`
}

func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

type WorkerConfig struct {
	Count int `mapstructure:"count"`
}

// Load reads config.yaml from the given directories (the working directory
// when none are given) and applies environment overrides. A missing file is
// not an error: defaults and environment form a complete configuration.
func Load(paths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if len(paths) == 0 {
		paths = []string{"."}
	}
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	setDefaults(v)

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate rejects values the service cannot start with.
func (c *Config) Validate() error {
	switch {
	case c.Server.Port <= 0:
		return fmt.Errorf("invalid config: server.port must be positive, got %d", c.Server.Port)
	case c.Worker.Count <= 0:
		return fmt.Errorf("invalid config: worker.count must be positive, got %d", c.Worker.Count)
	case c.Catalog.MaxRequestsPerSecond <= 0:
		return fmt.Errorf("invalid config: catalog.max_requests_per_second must be positive, got %d", c.Catalog.MaxRequestsPerSecond)
	case c.Catalog.BaseURL == "":
		return fmt.Errorf("invalid config: catalog.base_url is required")
	case !strings.HasPrefix(c.Server.SearchPath, "/"):
		return fmt.Errorf("invalid config: server.search_path must be absolute, got %q", c.Server.SearchPath)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.read_timeout", 10)
	v.SetDefault("server.write_timeout", 30)
	v.SetDefault("server.search_path", "/search/")
	v.SetDefault("server.static_path", "/static/")

	v.SetDefault("catalog.base_url", "https://pypi.org")
	v.SetDefault("catalog.classifiers_path", "/pypi?%3Aaction=list_classifiers")
	v.SetDefault("catalog.timeout", 30)
	v.SetDefault("catalog.max_retries", 3)
	v.SetDefault("catalog.max_requests_per_second", 2)
	v.SetDefault("catalog.refresh_interval", 3600)
	v.SetDefault("catalog.refresh_cooldown", 60)
	v.SetDefault("catalog.proxies", []string{})

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "classifiers")
	v.SetDefault("database.user", "classifiers_user")
	v.SetDefault("database.password", "classifiers_pass")
	v.SetDefault("database.sslmode", "disable")

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.database", 0)
	v.SetDefault("redis.consumer_group", "classifiers_consumer")
	v.SetDefault("redis.min_idle_time", 120)
	v.SetDefault("redis.key_prefix", "classifiers:")

	v.SetDefault("worker.count", 2)
}

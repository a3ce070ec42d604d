package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// ConfigPathEnvVar overrides the config file location.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfigPaths lists where a config file is searched, in order.
var defaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
}

// Config holds all application configuration. Values are layered: built-in
// defaults, then an optional YAML config file, then environment variables.
// Immutable after Load.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	TMDB     TMDBConfig     `koanf:"tmdb"`
	Auth     AuthConfig     `koanf:"auth"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Port            int           `koanf:"port"`
	Host            string        `koanf:"host"`
	Timeout         time.Duration `koanf:"timeout"`
	RateLimitReqs   int           `koanf:"rate_limit_reqs"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`
}

// DatabaseConfig selects the backing store: a hosted Postgres when URL is
// set, otherwise a local SQLite file at Path.
type DatabaseConfig struct {
	URL  string `koanf:"url"`
	Path string `koanf:"path"`
}

// TMDBConfig configures the metadata provider client.
type TMDBConfig struct {
	APIKey string `koanf:"api_key"`
}

// AuthConfig configures the secret registry. Lists (inline JSON) or
// ListsFile enable the multi-list password table; Secret is the legacy
// single-tenant shared password.
type AuthConfig struct {
	Secret    string `koanf:"secret"`
	Lists     string `koanf:"lists"`
	ListsFile string `koanf:"lists_file"`
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			Host:            "0.0.0.0",
			Timeout:         30 * time.Second,
			RateLimitReqs:   120,
			RateLimitWindow: time.Minute,
		},
		Database: DatabaseConfig{
			Path: "watchlist.db",
		},
	}
}

// envKeys maps environment variable names onto koanf paths. Unknown
// variables are ignored.
var envKeys = map[string]string{
	"PORT":              "server.port",
	"HOST":              "server.host",
	"SERVER_TIMEOUT":    "server.timeout",
	"RATE_LIMIT_REQS":   "server.rate_limit_reqs",
	"RATE_LIMIT_WINDOW": "server.rate_limit_window",
	"DATABASE_URL":      "database.url",
	"DB_PATH":           "database.path",
	"TMDB_API_KEY":      "tmdb.api_key",
	"APP_SECRET":        "auth.secret",
	"LISTS":             "auth.lists",
	"LISTS_FILE":        "auth.lists_file",
}

// Load reads configuration from defaults, an optional YAML file and the
// environment, validates it and returns the result.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	envProvider := env.Provider("", ".", func(key string) string {
		return envKeys[strings.ToUpper(key)]
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required fields and ranges.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port %d is out of range", c.Server.Port)
	}
	if c.TMDB.APIKey == "" {
		return fmt.Errorf("TMDB_API_KEY is not configured")
	}
	if c.Database.URL == "" && c.Database.Path == "" {
		return fmt.Errorf("either DATABASE_URL or DB_PATH must be set")
	}
	return nil
}

func findConfigFile() string {
	if path := os.Getenv(ConfigPathEnvVar); path != "" {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	for _, path := range defaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

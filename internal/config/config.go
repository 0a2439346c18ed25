package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Database  Database  `mapstructure:"database"`
	Assets    Assets    `mapstructure:"assets"`
	API       API       `mapstructure:"api"`
	Sync      Sync      `mapstructure:"sync"`
	Scheduler Scheduler `mapstructure:"scheduler"`
	Server    Server    `mapstructure:"server"`
	Logging   Logging   `mapstructure:"logging"`
}

// Database is the local store configuration
type Database struct {
	Path string `mapstructure:"path"`
}

// Assets configures local capture storage and compression
type Assets struct {
	BasePath      string `mapstructure:"base_path"`
	MaxDimension  int    `mapstructure:"max_dimension"`
	JPEGQuality   int    `mapstructure:"jpeg_quality"`
	MaxFileSizeMB int64  `mapstructure:"max_file_size_mb"`
}

// API configures the connection to the remote authority
type API struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
	Token   string        `mapstructure:"token"`
}

// Sync configures the engine
type Sync struct {
	// MinPullInterval throttles how often a period is re-pulled.
	MinPullInterval time.Duration `mapstructure:"min_pull_interval"`
}

// Scheduler configures agent mode
type Scheduler struct {
	Enabled bool          `mapstructure:"enabled"`
	Spec    string        `mapstructure:"spec"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// Server configures the local status server
type Server struct {
	Enabled bool   `mapstructure:"enabled"`
	Address string `mapstructure:"address"`
}

// Logging configures the application logger
type Logging struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from an optional YAML file and LEITURISTA_*
// environment variables, on top of the defaults.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetDefault("database.path", "leiturista.db")
	v.SetDefault("assets.base_path", "./captures")
	v.SetDefault("assets.max_dimension", 1600)
	v.SetDefault("assets.jpeg_quality", 80)
	v.SetDefault("assets.max_file_size_mb", 25)
	v.SetDefault("api.base_url", "http://localhost:5000")
	v.SetDefault("api.timeout", 30*time.Second)
	// AutomaticEnv only sees keys viper already knows; without a default the
	// LEITURISTA_API_TOKEN override would never bind.
	v.SetDefault("api.token", "")
	v.SetDefault("sync.min_pull_interval", 2*time.Hour)
	v.SetDefault("scheduler.enabled", false)
	v.SetDefault("scheduler.spec", "@every 30m")
	v.SetDefault("scheduler.timeout", 10*time.Minute)
	v.SetDefault("server.enabled", false)
	v.SetDefault("server.address", ":8450")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetEnvPrefix("LEITURISTA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", configPath, err)
		}
	} else {
		v.SetConfigName("leiturista")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.leiturista")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, err
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path cannot be empty")
	}
	if c.API.BaseURL == "" {
		return fmt.Errorf("api.base_url cannot be empty")
	}
	if c.Sync.MinPullInterval < 0 {
		return fmt.Errorf("sync.min_pull_interval cannot be negative")
	}
	return nil
}

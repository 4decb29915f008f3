package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for the Tushare provider.
type Config struct {
	Storage Storage `yaml:"storage"`
	Server  Server  `yaml:"server"`
	Tushare Tushare `yaml:"tushare"`
	Logging Logging `yaml:"logging"`
	Cache   Cache   `yaml:"cache"`
}

// Storage holds paths for data persistence.
type Storage struct {
	DataDir   string `yaml:"data_dir"`
	CachePath string `yaml:"cache_path"`
}

// Server holds network listener configuration.
type Server struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	GRPCPort int    `yaml:"grpc_port"`
}

// Tushare holds the vendor endpoint and credentials.
type Tushare struct {
	APIKey          string `yaml:"api_key"`
	BaseURL         string `yaml:"base_url"`
	TimeoutSec      int    `yaml:"timeout_sec"`
	RateLimitPerMin int    `yaml:"rate_limit_per_min"`
}

// Logging configures the application logger. When File is set, output is
// written there with size-based rotation instead of stdout.
type Logging struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

// Cache controls background refresh of the cached reference tables.
// An empty RefreshCron disables the refresher.
type Cache struct {
	RefreshCron string `yaml:"refresh_cron"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Storage: Storage{DataDir: "data"},
		Server:  Server{Host: "127.0.0.1", Port: 8080, GRPCPort: 9090},
		Tushare: Tushare{
			BaseURL:         "http://api.tushare.pro",
			TimeoutSec:      30,
			RateLimitPerMin: 200,
		},
		Logging: Logging{Level: "info", Format: "json", MaxSizeMB: 100, MaxBackups: 3},
		Cache:   Cache{RefreshCron: "30 8 * * *"},
	}
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads the YAML configuration file at the given path over the
// defaults, then applies environment variable overrides. A missing file is
// not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, err
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, err
			}
		}
	}

	applyEnvOverrides(cfg)

	if cfg.Storage.CachePath == "" {
		cfg.Storage.CachePath = filepath.Join(cfg.Storage.DataDir, "cache.db")
	}
	return cfg, nil
}

// Path returns the config file location: $TUSHARE_CONFIG, or fallback.
func Path(fallback string) string {
	if v := os.Getenv("TUSHARE_CONFIG"); v != "" {
		return v
	}
	return fallback
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("CACHE_PATH"); v != "" {
		cfg.Storage.CachePath = v
	}

	if v := os.Getenv("TUSHARE_API_KEY"); v != "" {
		cfg.Tushare.APIKey = v
	}
	if v := os.Getenv("TUSHARE_BASE_URL"); v != "" {
		cfg.Tushare.BaseURL = v
	}

	if v := os.Getenv("SERVER_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = n
		}
	}
	if v := os.Getenv("GRPC_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Server.GRPCPort = n
		}
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("LOG_FILE"); v != "" {
		cfg.Logging.File = v
	}
}

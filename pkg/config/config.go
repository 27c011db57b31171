// Package config loads server configuration from an optional YAML file,
// overridable by environment variables of the same shape — the same
// layering the teacher's cmd/server/main.go did with env vars alone, with
// a config file added underneath so deployments can commit a baseline.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/c2h5oh/datasize"
	"gopkg.in/yaml.v3"
)

// Config holds the server's runtime configuration.
type Config struct {
	Host                string             `yaml:"host"`
	Port                string             `yaml:"port"`
	MaxBufferSize       datasize.ByteSize  `yaml:"max_buffer_size"`
	WSReadTimeout       time.Duration      `yaml:"ws_read_timeout"`
	WSWriteTimeout      time.Duration      `yaml:"ws_write_timeout"`
	BroadcastBufferSize int                `yaml:"broadcast_buffer_size"`
	LogLevel            string             `yaml:"log_level"`
	LogFormat           string             `yaml:"log_format"`
}

// Default returns the configuration used when no file or environment
// overrides are present.
func Default() Config {
	return Config{
		Host:                "0.0.0.0",
		Port:                "8080",
		MaxBufferSize:       0, // unlimited
		WSReadTimeout:       30 * time.Minute,
		WSWriteTimeout:      10 * time.Second,
		BroadcastBufferSize: 16,
		LogLevel:            "info",
		LogFormat:           "console",
	}
}

// Load returns Default(), overlaid with path (if it exists) parsed as
// YAML, overlaid with any matching environment variables. path may be
// empty, in which case only defaults and the environment apply.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return Config{}, err
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, err
		}
	}

	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("AVIAN_HOST"); v != "" {
		cfg.Host = v
	}
	if v := os.Getenv("AVIAN_PORT"); v != "" {
		cfg.Port = v
	}
	if v := os.Getenv("AVIAN_MAX_BUFFER_SIZE"); v != "" {
		var sz datasize.ByteSize
		if err := sz.UnmarshalText([]byte(v)); err == nil {
			cfg.MaxBufferSize = sz
		}
	}
	if v := os.Getenv("AVIAN_WS_READ_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.WSReadTimeout = d
		}
	}
	if v := os.Getenv("AVIAN_WS_WRITE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.WSWriteTimeout = d
		}
	}
	if v := os.Getenv("AVIAN_BROADCAST_BUFFER_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.BroadcastBufferSize = n
		}
	}
	if v := os.Getenv("AVIAN_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("AVIAN_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}
}

package main

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

// Config represents the configuration file (~/.config/nucleus/config.yaml).
// Pointer fields distinguish "not set" from zero values.
type Config struct {
	Sampler    string `yaml:"sampler"`
	Workers    *int64 `yaml:"workers"`
	PinnedHost *bool  `yaml:"pinned_host"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	ServerAddress string `yaml:"server_address"`
	TraceRequests *int64 `yaml:"trace_requests"`

	Temperature *float64 `yaml:"temperature"`
	TopP        *float64 `yaml:"top_p"`
	Seed        *int64   `yaml:"seed"`
}

// loaded is the config read by the root command's Before hook.
var loaded Config

func configPath() string {
	if p := os.Getenv("NUCLEUS_CONFIG"); p != "" {
		return p
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "nucleus", "config.yaml")
}

// LoadConfig reads the config file. A missing file yields a zero Config and
// no error.
func LoadConfig() (Config, error) {
	path := configPath()
	if path == "" {
		return Config{}, nil
	}
	return loadConfigFile(path)
}

func loadConfigFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Config{}, nil
	}
	if err != nil {
		return Config{}, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyLoggingConfig(c *cli.Command, cfg Config) {
	if cfg.LogLevel != "" && !c.IsSet("log-level") {
		logLevel = cfg.LogLevel
	}
	if cfg.LogFormat != "" && !c.IsSet("log-format") {
		logFormat = cfg.LogFormat
	}
}

// applySamplerConfig applies config file defaults to the sampler flags when
// the corresponding flag was not set explicitly.
func applySamplerConfig(c *cli.Command, cfg Config) {
	if cfg.Sampler != "" && !c.IsSet("sampler") {
		samplerKind = cfg.Sampler
	}
	if cfg.Workers != nil && !c.IsSet("workers") {
		workers = *cfg.Workers
	}
	if cfg.PinnedHost != nil && !c.IsSet("pinned") {
		pinnedHost = *cfg.PinnedHost
	}
}

func applyServeConfig(c *cli.Command, cfg Config, addr *string, traceRequests *int64) {
	applySamplerConfig(c, cfg)
	if cfg.ServerAddress != "" && !c.IsSet("addr") {
		*addr = cfg.ServerAddress
	}
	if cfg.TraceRequests != nil && !c.IsSet("trace-requests") {
		*traceRequests = *cfg.TraceRequests
	}
}

func applySampleConfig(c *cli.Command, cfg Config, temp, topP *float64, seed *int64) {
	applySamplerConfig(c, cfg)
	if cfg.Temperature != nil && !c.IsSet("temperature") {
		*temp = *cfg.Temperature
	}
	if cfg.TopP != nil && !c.IsSet("top-p") {
		*topP = *cfg.TopP
	}
	if cfg.Seed != nil && !c.IsSet("seed") {
		*seed = *cfg.Seed
	}
}

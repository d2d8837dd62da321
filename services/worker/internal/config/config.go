package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// ConfigPath is the file Load reads when no path is given.
const ConfigPath = "config.yaml"

const (
	defaultEventStream = "readshelf:events"
	defaultEventGroup  = "readshelf-worker"
	defaultRetention   = "24h"
)

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port                string `yaml:"port"`
	LogLevel            string `yaml:"logLevel"`
	DatabaseURL         string `yaml:"databaseURL"`
	BaseURL             string `yaml:"baseURL"`
	RedisAddr           string `yaml:"redisAddr"`
	RedisPassword       string `yaml:"redisPassword"`
	CachePrefix         string `yaml:"cachePrefix"`
	EventStream         string `yaml:"eventStream"`
	EventGroup          string `yaml:"eventGroup"`
	EventConcurrency    int    `yaml:"eventConcurrency"`
	EventMaxRetries     int    `yaml:"eventMaxRetries"`
	SweepSchedule       string `yaml:"sweepSchedule"`
	SweepRetention      string `yaml:"sweepRetention"`
	SweepTimeoutSeconds int    `yaml:"sweepTimeoutSeconds"`
}

// Retention is the parsed sweep retention window.
func (c FileConfig) Retention() time.Duration {
	d, _ := time.ParseDuration(c.SweepRetention)
	return d
}

// SweepTimeout bounds a single sweep run. Zero means no bound.
func (c FileConfig) SweepTimeout() time.Duration {
	return time.Duration(c.SweepTimeoutSeconds) * time.Second
}

// Load reads config from path (defaults to config.yaml).
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	applyEnv(&cfg)
	if cfg.EventStream == "" {
		cfg.EventStream = defaultEventStream
	}
	if cfg.EventGroup == "" {
		cfg.EventGroup = defaultEventGroup
	}
	if cfg.SweepRetention == "" {
		cfg.SweepRetention = defaultRetention
	}
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *FileConfig) {
	if v := os.Getenv("METRICS_PORT"); v != "" {
		cfg.Port = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("READSHELF_BASE_URL"); v != "" {
		cfg.BaseURL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("EVENT_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.EventConcurrency = n
		}
	}
	if v := os.Getenv("SWEEP_SCHEDULE"); v != "" {
		cfg.SweepSchedule = v
	}
	if v := os.Getenv("SWEEP_RETENTION"); v != "" {
		cfg.SweepRetention = v
	}
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml or METRICS_PORT)")
	}
	if cfg.DatabaseURL == "" {
		return errors.New("config: databaseURL is required (set in config.yaml or DATABASE_URL)")
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return errors.New("config: baseURL is required (set in config.yaml or READSHELF_BASE_URL)")
	}
	if cfg.RedisAddr == "" {
		return errors.New("config: redisAddr is required (set in config.yaml or REDIS_ADDR)")
	}
	if cfg.SweepSchedule == "" {
		return errors.New("config: sweepSchedule is required (set in config.yaml or SWEEP_SCHEDULE)")
	}
	if _, err := cron.ParseStandard(cfg.SweepSchedule); err != nil {
		return fmt.Errorf("config: sweepSchedule %q: %w", cfg.SweepSchedule, err)
	}
	d, err := time.ParseDuration(cfg.SweepRetention)
	if err != nil || d <= 0 {
		return fmt.Errorf("config: sweepRetention must be a positive duration, got %q", cfg.SweepRetention)
	}
	if cfg.EventConcurrency < 0 {
		return errors.New("config: eventConcurrency must be >= 0")
	}
	if cfg.EventMaxRetries < 0 {
		return errors.New("config: eventMaxRetries must be >= 0")
	}
	if cfg.SweepTimeoutSeconds < 0 {
		return errors.New("config: sweepTimeoutSeconds must be >= 0")
	}
	return nil
}

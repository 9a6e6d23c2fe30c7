package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// AppConfig holds everything the service needs to run. Values come from an
// optional YAML file (CONFIG_FILE) overridden by environment variables.
type AppConfig struct {
	ListenAddr  string `yaml:"listen_addr"`
	RedisURL    string `yaml:"redis_url"`
	DatabaseURL string `yaml:"database_url"`

	// Liveness thresholds, in seconds. Offline only affects what the
	// opponent sees; AutoResign forces a loss for the stale side.
	OfflineAfterSec    int `yaml:"offline_after_sec"`
	AutoResignAfterSec int `yaml:"auto_resign_after_sec"`
}

func (c *AppConfig) OfflineAfter() time.Duration {
	return time.Duration(c.OfflineAfterSec) * time.Second
}

func (c *AppConfig) AutoResignAfter() time.Duration {
	return time.Duration(c.AutoResignAfterSec) * time.Second
}

func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		ListenAddr:         ":8080",
		OfflineAfterSec:    12,
		AutoResignAfterSec: 180,
	}

	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if v := strings.TrimSpace(os.Getenv("LISTEN_ADDR")); v != "" {
		cfg.ListenAddr = v
	}
	if v := strings.TrimSpace(os.Getenv("REDIS_URL")); v != "" {
		cfg.RedisURL = v
	}
	if v := strings.TrimSpace(os.Getenv("DATABASE_URL")); v != "" {
		cfg.DatabaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("OFFLINE_AFTER_SEC")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.OfflineAfterSec = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("AUTO_RESIGN_AFTER_SEC")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.AutoResignAfterSec = n
		}
	}

	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if cfg.AutoResignAfterSec <= cfg.OfflineAfterSec {
		return nil, errors.New("AUTO_RESIGN_AFTER_SEC must exceed OFFLINE_AFTER_SEC")
	}
	return cfg, nil
}

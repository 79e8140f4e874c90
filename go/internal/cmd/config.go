package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/mcdev12/focushub/go/internal/store/natsjs"
	"gopkg.in/yaml.v3"
)

// Config is the server configuration, loaded from YAML and overridable by
// FOCUSHUB_* environment variables.
type Config struct {
	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`
	Store struct {
		// Backend selects the store implementation: memory, nats or postgres.
		Backend string `yaml:"backend"`
		NATS    struct {
			URL     string `yaml:"url"`
			Stream  string `yaml:"stream"`
			Subject string `yaml:"subject"`
			Bucket  string `yaml:"bucket"`
		} `yaml:"nats"`
	} `yaml:"store"`
	Timer struct {
		DurationSeconds int `yaml:"duration_seconds"`
	} `yaml:"timer"`
	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
}

func defaultConfig() *Config {
	cfg := &Config{}
	cfg.Server.Addr = ":8080"
	cfg.Store.Backend = "memory"
	natsDefaults := natsjs.DefaultConfig()
	cfg.Store.NATS.URL = natsDefaults.URL
	cfg.Store.NATS.Stream = natsDefaults.Stream
	cfg.Store.NATS.Subject = natsDefaults.Subject
	cfg.Store.NATS.Bucket = natsDefaults.Bucket
	cfg.Timer.DurationSeconds = 25 * 60
	cfg.Log.Level = "info"
	return cfg
}

// loadConfig reads path if it exists, then applies env overrides.
func loadConfig(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// No config file; defaults plus env are enough.
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.Server.Addr = getEnv("FOCUSHUB_ADDR", cfg.Server.Addr)
	cfg.Store.Backend = getEnv("FOCUSHUB_STORE", cfg.Store.Backend)
	cfg.Store.NATS.URL = getEnv("NATS_URL", cfg.Store.NATS.URL)
	cfg.Timer.DurationSeconds = getEnvAsInt("FOCUSHUB_TIMER_SECONDS", cfg.Timer.DurationSeconds)
	cfg.Log.Level = getEnv("FOCUSHUB_LOG_LEVEL", cfg.Log.Level)

	return cfg, nil
}

// TimerDuration returns the configured focus block length.
func (c *Config) TimerDuration() time.Duration {
	return time.Duration(c.Timer.DurationSeconds) * time.Second
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

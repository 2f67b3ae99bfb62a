// Package config handles application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds the application configuration.
type Config struct {
	DatabasePath string
	LogLevel     string
	FetchTimeout time.Duration
	PollInterval time.Duration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	dbPath := os.Getenv("DATABASE_PATH")
	if dbPath == "" {
		dbPath = "./data/feedzero.db"
	}

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}

	fetchTimeout, err := durationEnv("FETCH_TIMEOUT_SECONDS", 30, time.Second)
	if err != nil {
		return nil, err
	}

	pollInterval, err := durationEnv("POLL_INTERVAL_MINUTES", 15, time.Minute)
	if err != nil {
		return nil, err
	}

	return &Config{
		DatabasePath: dbPath,
		LogLevel:     logLevel,
		FetchTimeout: fetchTimeout,
		PollInterval: pollInterval,
	}, nil
}

func durationEnv(key string, def int, unit time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return time.Duration(def) * unit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s %q: must be a positive integer", key, raw)
	}
	return time.Duration(n) * unit, nil
}

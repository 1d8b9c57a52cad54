package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type AppConfig struct {
	// DBPath is the SQLite file holding the city registry.
	DBPath string

	// RefreshInterval controls how often the background sweep refreshes the
	// weather of every tracked city.
	RefreshInterval time.Duration

	// HTTPTimeout bounds every outbound call to the weather provider.
	HTTPTimeout time.Duration

	// SweepFetchTimeout bounds a single per-city refresh inside a sweep.
	SweepFetchTimeout time.Duration

	// SweepConcurrency caps the number of in-flight fetches during a sweep.
	SweepConcurrency int

	Port string
}

// Load reads configuration from environment with sensible defaults.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("INFO: No .env file found or error loading it: %v", err)
	}

	cfg := &AppConfig{}

	cfg.DBPath = getenvDefault("DB_PATH", "weather.db")
	cfg.Port = getenvDefault("PORT", "8080")

	// Refresh interval is configured in seconds; default is 15 minutes.
	intervalSec := getenvInt("REFRESH_INTERVAL", 900)
	if intervalSec <= 0 {
		return nil, fmt.Errorf("invalid REFRESH_INTERVAL: must be a positive number of seconds")
	}
	cfg.RefreshInterval = time.Duration(intervalSec) * time.Second

	timeoutStr := getenvDefault("HTTP_TIMEOUT", "10s")
	timeout, err := time.ParseDuration(timeoutStr)
	if err != nil {
		return nil, fmt.Errorf("invalid HTTP_TIMEOUT: %w", err)
	}
	cfg.HTTPTimeout = timeout

	fetchTimeoutStr := getenvDefault("SWEEP_FETCH_TIMEOUT", "30s")
	fetchTimeout, err := time.ParseDuration(fetchTimeoutStr)
	if err != nil {
		return nil, fmt.Errorf("invalid SWEEP_FETCH_TIMEOUT: %w", err)
	}
	cfg.SweepFetchTimeout = fetchTimeout

	cfg.SweepConcurrency = getenvInt("SWEEP_CONCURRENCY", 4)

	return cfg, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

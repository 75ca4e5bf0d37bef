// Package config loads engine configuration: process settings from the
// environment and optional tuning profiles from YAML.
package config

import (
	"os"
	"strconv"
)

// Config holds process configuration.
type Config struct {
	PortfolioPath  string
	ProfilePath    string
	SnapshotDBPath string
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	LogLevel       string
	Concurrency    int
	RecentLimit    int
	HorizonDays    int
	OTLPEndpoint   string
}

// Load loads configuration from environment variables.
func Load() *Config {
	portfolio := os.Getenv("PORTFOLIO_PATH")
	if portfolio == "" {
		portfolio = "portfolio.yaml"
	}

	snapshotDB := os.Getenv("SNAPSHOT_DB_PATH")
	if snapshotDB == "" {
		snapshotDB = "snapshots.db"
	}

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "INFO"
	}

	return &Config{
		PortfolioPath:  portfolio,
		ProfilePath:    os.Getenv("PROFILE_PATH"),
		SnapshotDBPath: snapshotDB,
		RedisAddr:      os.Getenv("REDIS_ADDR"),
		RedisPassword:  os.Getenv("REDIS_PASSWORD"),
		RedisDB:        envInt("REDIS_DB", 0),
		LogLevel:       logLevel,
		Concurrency:    envInt("FETCH_CONCURRENCY", 4),
		RecentLimit:    envInt("RECENT_LIMIT", 20),
		HorizonDays:    envInt("DEADLINE_HORIZON_DAYS", 30),
		OTLPEndpoint:   os.Getenv("OTLP_ENDPOINT"),
	}
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

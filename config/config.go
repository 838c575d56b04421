package config

import (
	"log"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Infrastructure
	RedisAddr     string
	RedisPassword string
	SQLitePath    string

	// HTTP / WebSocket listener
	ListenAddr string

	// Group sweeper cadence; groups idle for one full interval are torn down.
	SweepInterval time.Duration

	// Periodic regression calculation cadence.
	CalcInterval time.Duration

	// How far back live-regression contexts look for historical candles.
	HistoryDays int
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		SQLitePath:    getEnv("SQLITE_PATH", "data/ohlc.db"),
		ListenAddr:    getEnv("LISTEN_ADDR", ":8003"),
		SweepInterval: time.Duration(getEnvInt("SWEEP_INTERVAL_SECS", 60)) * time.Second,
		CalcInterval:  time.Duration(getEnvInt("CALC_INTERVAL_MS", 1000)) * time.Millisecond,
		HistoryDays:   getEnvInt("HISTORY_DAYS", 30),
	}
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		log.Printf("[config] invalid value for %s: %q, using %d", key, v, fallback)
		return fallback
	}
	return n
}

// Package config centralises environment-based configuration.
package config

import (
	"os"
	"strconv"
)

type Config struct {
	HTTPAddr       string
	DatabaseURL    string
	NearbyRadiusKM float64 // quick-challenge broadcast radius
	CountdownFrom  int     // countdown starting value before "GO"
	PersistRetries int     // durable-write attempts before rollback
}

// Load reads environment variables with defaults suitable for local dev.
func Load() Config {
	return Config{
		HTTPAddr:       getEnv("BATTLE_HTTP_ADDR", ":8080"),
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		NearbyRadiusKM: getFloatEnv("BATTLE_NEARBY_RADIUS_KM", 5),
		CountdownFrom:  getIntEnv("BATTLE_COUNTDOWN_FROM", 3),
		PersistRetries: getIntEnv("BATTLE_PERSIST_RETRIES", 3),
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getIntEnv(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

func getFloatEnv(key string, fallback float64) float64 {
	if value, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return fallback
}

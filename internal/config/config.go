package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Addr              string
	CORSOrigin        string
	ReconcileInterval time.Duration
	SchemasPath       string
	// Document store backends: Redis when configured, else Postgres.
	RedisURL    string
	DatabaseURL string
}

func Load() Config {
	return Config{
		Addr:              getenv("API_ADDR", ":8791"),
		CORSOrigin:        getenv("FLOTTA_CORS_ORIGIN", "*"),
		ReconcileInterval: time.Duration(getenvInt("FLOTTA_RECONCILE_INTERVAL_SECONDS", 60)) * time.Second,
		SchemasPath:       getenv("FLOTTA_SCHEMAS_PATH", ""),
		RedisURL:          getenv("REDIS_URL", "redis://localhost:6379/0"),
		DatabaseURL:       getenv("DATABASE_URL", ""),
	}
}

func getenv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

// Package config loads and validates application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Store backends selectable with STORE.
const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Config holds all configuration values for the API server.
// Values are populated by Load from environment variables.
type Config struct {
	// Port is the TCP port the HTTP server listens on. Defaults to "8080".
	Port string

	// Store selects the trip store backend: "postgres" (default) or "memory".
	Store string

	// DatabaseURL is the Postgres connection string.
	// Required unless Store is "memory".
	DatabaseURL string

	// LogLevel controls the minimum log level. Defaults to "info".
	// Valid values: debug, info, warn, error.
	LogLevel string

	// LogFile, when set, also writes logs to a size-rotated file.
	LogFile string

	// CORSOrigins is the list of allowed cross-origin request origins.
	// Defaults to ["http://localhost:5173"] (Vite dev server).
	// Set CORS_ORIGINS to a comma-separated list to override.
	CORSOrigins []string

	// NATSURL is the NATS server for lifecycle events. Empty disables publishing.
	NATSURL string

	// MetricsEnabled mounts the Prometheus handler at /metrics. Defaults to true.
	MetricsEnabled bool

	// MaxBodyBytes caps request bodies. Defaults to 1 MiB.
	MaxBodyBytes int64

	// MigrateOnStart applies pending goose migrations before serving. Defaults to true.
	MigrateOnStart bool
}

// Load reads configuration from environment variables and returns a Config.
// A .env file in the working directory is loaded first when present; variables
// already set in the environment win.
// Returns an error listing any required variables that are not set.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Port:        getEnv("PORT", "8080"),
		Store:       strings.ToLower(getEnv("STORE", StorePostgres)),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		LogFile:     os.Getenv("LOG_FILE"),
		CORSOrigins: splitCSV(getEnv("CORS_ORIGINS", "http://localhost:5173")),
		NATSURL:     os.Getenv("NATS_URL"),
	}

	var err error
	if cfg.MetricsEnabled, err = getBool("METRICS_ENABLED", true); err != nil {
		return Config{}, err
	}
	if cfg.MigrateOnStart, err = getBool("MIGRATE_ON_START", true); err != nil {
		return Config{}, err
	}
	if cfg.MaxBodyBytes, err = getInt64("MAX_BODY_BYTES", 1<<20); err != nil {
		return Config{}, err
	}
	if cfg.MaxBodyBytes <= 0 {
		return Config{}, fmt.Errorf("invalid MAX_BODY_BYTES: must be positive")
	}

	switch cfg.Store {
	case StorePostgres, StoreMemory:
	default:
		return Config{}, fmt.Errorf("invalid STORE %q: want %q or %q", cfg.Store, StorePostgres, StoreMemory)
	}

	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" && cfg.Store == StorePostgres {
		missing = append(missing, "DATABASE_URL")
	}

	if len(missing) > 0 {
		return Config{}, fmt.Errorf("required environment variables not set: %s", strings.Join(missing, ", "))
	}

	return cfg, nil
}

// getEnv returns the value of the environment variable named by key,
// or fallback if the variable is not set or is empty.
func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getBool(key string, fallback bool) (bool, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %q", key, v)
	}
	return b, nil
}

func getInt64(key string, fallback int64) (int64, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", key, v)
	}
	return n, nil
}

// splitCSV splits a comma-separated string into a trimmed slice, ignoring empty entries.
func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if t := strings.TrimSpace(part); t != "" {
			out = append(out, t)
		}
	}
	return out
}

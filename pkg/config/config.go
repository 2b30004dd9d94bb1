// Package config loads process-level configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config is the process-level configuration, loaded once at startup.
type Config struct {
	// DatabaseURL is a full Postgres connection string (required).
	DatabaseURL string
	// APIKeyFallback is used as the detail-fetch x-api-key header before any
	// browser session has been acquired. Optional.
	APIKeyFallback string
	// Headless controls whether the session-acquisition browser runs
	// headless. Defaults to true; set HEADLESS=false for local debugging.
	Headless bool
	// HTTPAddr is the local address the operator-facing HTTP surface binds.
	HTTPAddr string
	// SettingsPath is where the Scheduler's JSON settings file lives.
	SettingsPath string
}

// FromEnv loads Config from the process environment.
func FromEnv() (Config, error) {
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		return Config{}, fmt.Errorf("config: DATABASE_URL is required")
	}

	headless, err := parseBoolOrDefault("HEADLESS", true)
	if err != nil {
		return Config{}, fmt.Errorf("config: invalid HEADLESS: %w", err)
	}

	return Config{
		DatabaseURL:    databaseURL,
		APIKeyFallback: os.Getenv("MERCADOPUBLICO_API_KEY"),
		Headless:       headless,
		HTTPAddr:       getEnvOrDefault("HTTP_ADDR", ":8090"),
		SettingsPath:   getEnvOrDefault("SETTINGS_PATH", "settings.json"),
	}, nil
}

func parseBoolOrDefault(key string, def bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return def, nil
	}
	return strconv.ParseBool(val)
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

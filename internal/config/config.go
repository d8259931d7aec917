// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/alamati/tgrelay/internal/domain"
)

// Config holds all application configuration.
type Config struct {
	Port          string
	FrontendURL   string
	DBPath        string
	SessionDir    string
	AppID         int    // Telegram API application ID
	AppHash       string // Telegram API application hash
	AdminPassword string
	AccountPhone  string // normalized managed account identifier
	SourceChannel int64  // monitored channel ID
	Destination   string // fixed forward recipient, e.g. "@alamati_info"
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:          getEnv("PORT", "8080"),
		FrontendURL:   getEnv("FRONTEND_URL", ""),
		DBPath:        getEnv("DB_PATH", "./data/tgrelay.db"),
		SessionDir:    getEnv("SESSION_DIR", "./session"),
		AppID:         getEnvInt("API_ID", 0),
		AppHash:       getEnv("API_HASH", ""),
		AdminPassword: getEnv("ADMIN_PASSWORD", ""),
		SourceChannel: getEnvInt64("SOURCE_CHANNEL", 0),
		Destination:   getEnv("FORWARD_DESTINATION", ""),
	}

	phone, err := domain.NormalizePhone(getEnv("ACCOUNT_PHONE", ""))
	if err != nil {
		return nil, fmt.Errorf("invalid ACCOUNT_PHONE: %w", err)
	}
	cfg.AccountPhone = phone

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.AppID <= 0 {
		return fmt.Errorf("API_ID must be a positive integer")
	}
	if c.AppHash == "" {
		return fmt.Errorf("API_HASH cannot be empty")
	}
	if c.AdminPassword == "" {
		return fmt.Errorf("ADMIN_PASSWORD cannot be empty")
	}
	if c.SourceChannel == 0 {
		return fmt.Errorf("SOURCE_CHANNEL must be set")
	}
	if c.Destination == "" {
		return fmt.Errorf("FORWARD_DESTINATION cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.SessionDir == "" {
		return fmt.Errorf("SESSION_DIR cannot be empty")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvInt64(key string, fallback int64) int64 {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return fallback
	}
	return n
}

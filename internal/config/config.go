// Package config provides application configuration.
//
// Configuration is loaded from environment variables with sensible
// defaults, the way the rest of this codebase does it: a .env file is
// loaded in development via godotenv, then every setting falls back to a
// default if unset.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	ListenHost string
	ListenPort string

	DatabaseURL string

	JWTSecret           string
	JWTAlgorithm        string
	AccessTokenLifetime time.Duration

	LLMProvider string
	LLMBaseURL  string
	LLMModel    string
	LLMAPIKey   string

	CORSAllowedOrigins []string

	DefaultAdminUsername string
	DefaultAdminPassword string

	MaxConnections int
	SSHDialTimeout time.Duration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		ListenHost: getEnv("LISTEN_HOST", "0.0.0.0"),
		ListenPort: getEnv("LISTEN_PORT", "8080"),

		DatabaseURL: getEnv("DATABASE_URL", "file:shsh.db?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"),

		JWTSecret:           getEnv("JWT_SECRET", "dev-insecure-secret-change-me"),
		JWTAlgorithm:        getEnv("JWT_ALGORITHM", "HS256"),
		AccessTokenLifetime: time.Duration(getEnvInt("ACCESS_TOKEN_MINUTES", 30)) * time.Minute,

		LLMProvider: getEnv("LLM_PROVIDER", "openai"),
		LLMBaseURL:  getEnv("LLM_BASE_URL", ""),
		LLMModel:    getEnv("LLM_MODEL", ""),
		LLMAPIKey:   getEnv("LLM_API_KEY", ""),

		CORSAllowedOrigins: splitCSV(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173")),

		DefaultAdminUsername: getEnv("DEFAULT_ADMIN_USERNAME", "admin"),
		DefaultAdminPassword: getEnv("DEFAULT_ADMIN_PASSWORD", "change-me"),

		MaxConnections: getEnvInt("MAX_CONNECTIONS", 100),
		SSHDialTimeout: getEnvDuration("SSH_DIAL_TIMEOUT", 10*time.Second),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.ListenPort == "" {
		return fmt.Errorf("LISTEN_PORT cannot be empty")
	}
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL cannot be empty")
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET cannot be empty")
	}
	if c.MaxConnections <= 0 {
		return fmt.Errorf("MAX_CONNECTIONS must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running with the built-in insecure JWT
// secret, a signal this process hasn't been configured for production.
func (c *Config) IsDevelopment() bool {
	return c.JWTSecret == "dev-insecure-secret-change-me"
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

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

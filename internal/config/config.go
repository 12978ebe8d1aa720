package config

import (
	"fmt"
	"os"
)

// Config holds the application configuration
type Config struct {
	// Database connection string (DSN)
	DatabaseURL string

	// Server bind address (host:port)
	ServerAddr string

	// Enable debug logging
	Debug bool

	// OIDC token verification configuration
	OIDC OIDCConfig
}

// OIDCConfig configures verification of bearer tokens issued by an external
// identity provider. The broker never issues tokens itself; it only checks
// issuer, audience and signature, and extracts the subject claim.
//
// When Issuer is empty and InsecureDev is true, tokens are parsed without
// signature verification. This exists for local development and tests only.
type OIDCConfig struct {
	// Issuer is the external IdP's issuer URL (e.g. "https://idp.example.com").
	Issuer string

	// Audience is the required audience claim for incoming tokens. It
	// identifies this API as the intended resource server.
	Audience string

	// InsecureDev skips signature verification when no issuer is configured.
	InsecureDev bool
}

// Enabled reports whether verified OIDC authentication is configured.
func (c *OIDCConfig) Enabled() bool {
	return c.Issuer != ""
}

// Load reads configuration from environment variables with fallback defaults
func Load() (*Config, error) {
	cfg := &Config{
		DatabaseURL: getEnv("DATABASE_URL", "file:idbroker.db"),
		ServerAddr:  getEnv("SERVER_ADDR", "localhost:8080"),
		Debug:       getEnvBool("DEBUG", false),
		OIDC: OIDCConfig{
			Issuer:      getEnv("OIDC_ISSUER", ""),
			Audience:    getEnv("OIDC_AUDIENCE", ""),
			InsecureDev: getEnvBool("AUTH_INSECURE_DEV", false),
		},
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.OIDC.Issuer != "" && cfg.OIDC.Audience == "" {
		return nil, fmt.Errorf("OIDC_AUDIENCE is required when OIDC_ISSUER is set")
	}

	if cfg.OIDC.Issuer == "" && !cfg.OIDC.InsecureDev {
		return nil, fmt.Errorf("no authentication configured: set OIDC_ISSUER or AUTH_INSECURE_DEV=true")
	}

	return cfg, nil
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool retrieves a boolean environment variable or returns a default value
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

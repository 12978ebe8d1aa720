package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("defaults with dev auth", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "")
		t.Setenv("SERVER_ADDR", "")
		t.Setenv("DEBUG", "")
		t.Setenv("OIDC_ISSUER", "")
		t.Setenv("AUTH_INSECURE_DEV", "true")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "file:idbroker.db", cfg.DatabaseURL)
		assert.Equal(t, "localhost:8080", cfg.ServerAddr)
		assert.False(t, cfg.Debug)
		assert.False(t, cfg.OIDC.Enabled())
		assert.True(t, cfg.OIDC.InsecureDev)
	})

	t.Run("explicit values", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "postgres://u:p@localhost:5432/idbroker")
		t.Setenv("SERVER_ADDR", "0.0.0.0:9000")
		t.Setenv("DEBUG", "true")
		t.Setenv("OIDC_ISSUER", "https://idp.example.com")
		t.Setenv("OIDC_AUDIENCE", "idbroker")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "postgres://u:p@localhost:5432/idbroker", cfg.DatabaseURL)
		assert.Equal(t, "0.0.0.0:9000", cfg.ServerAddr)
		assert.True(t, cfg.Debug)
		assert.True(t, cfg.OIDC.Enabled())
		assert.Equal(t, "idbroker", cfg.OIDC.Audience)
	})

	t.Run("issuer without audience fails", func(t *testing.T) {
		t.Setenv("OIDC_ISSUER", "https://idp.example.com")
		t.Setenv("OIDC_AUDIENCE", "")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "OIDC_AUDIENCE")
	})

	t.Run("no auth mode fails", func(t *testing.T) {
		t.Setenv("OIDC_ISSUER", "")
		t.Setenv("AUTH_INSECURE_DEV", "")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no authentication configured")
	})
}

package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := load(viper.New())
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "postgres", cfg.DBDriver)
	assert.Equal(t, 15*time.Minute, cfg.JWTAccessExpiry)
	assert.Equal(t, 30*time.Second, cfg.ProviderTimeout)
	assert.Equal(t, 2*time.Minute, cfg.IMAPPollInterval)
	assert.Equal(t, "auto", cfg.AIProvider)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("DB_DRIVER", "SQLite")
	t.Setenv("DATABASE_URL", "file::memory:")
	t.Setenv("ENRICHMENT_TIMEOUT", "5s")
	t.Setenv("INSTAGRAM_VERIFY_TOKEN", "hub-secret")

	cfg, err := load(viper.New())
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.DBDriver)
	assert.Equal(t, "file::memory:", cfg.DatabaseURL)
	assert.Equal(t, 5*time.Second, cfg.EnrichmentTimeout)
	assert.Equal(t, "hub-secret", cfg.InstagramVerifyToken)
}

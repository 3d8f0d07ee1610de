package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_AllFieldsPopulated(t *testing.T) {
	cfg := DefaultConfig()
	require.NotNil(t, cfg)

	assert.Equal(t, "https://api.inspectcore.example/v1", cfg.API.BaseURL)

	assert.Equal(t, "inspectcore", cfg.Auth.JWTIssuer)
	assert.Equal(t, []string{"inspectcore-mobile"}, cfg.Auth.JWTAudience)
	assert.Equal(t, 3600, cfg.Auth.AccessTokenLifetimeSeconds)

	assert.Equal(t, 5, cfg.Sync.MaxRetryAttempts)
	assert.Equal(t, 10, cfg.Sync.SyncBatchSize)
	assert.Equal(t, 5*60*1000, cfg.Sync.AutoSyncIntervalMs)
	assert.False(t, cfg.Sync.PhotosWifiOnly)
	assert.Equal(t, 10, cfg.Sync.WifiOnlyThresholdMb)
	assert.Equal(t, int64(10*1024*1024), cfg.Sync.ChunkedUploadThresholdBytes)
	assert.Equal(t, int64(10*1024*1024), cfg.Sync.ChunkSizeBytes)
	assert.Equal(t, "2s", cfg.Sync.ConnectivityDebounce)

	assert.Equal(t, "30s", cfg.Network.BundleTimeout)
	assert.Equal(t, "120s", cfg.Network.PhotoTimeout)
	assert.Equal(t, "60s", cfg.Network.VideoChunkTimeout)
	assert.Equal(t, "5s", cfg.Network.HealthTimeout)

	assert.Equal(t, "inspectcore.db", cfg.Storage.DBPath)
	assert.Equal(t, "evidence", cfg.Storage.VaultRoot)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "auto", cfg.Logging.Format)
}

func TestDefaultConfig_PassesValidation(t *testing.T) {
	cfg := DefaultConfig()
	err := Validate(cfg)
	assert.NoError(t, err)
}

func TestConfig_Timeouts_ResolvesDurations(t *testing.T) {
	cfg := DefaultConfig()
	timeouts := cfg.Timeouts()

	assert.Equal(t, 30*time.Second, timeouts.Bundle)
	assert.Equal(t, 120*time.Second, timeouts.Photo)
	assert.Equal(t, 60*time.Second, timeouts.VideoChunk)
	assert.Equal(t, 5*time.Second, timeouts.Health)
}

func TestConfig_Timeouts_FallsBackOnInvalid(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Network.BundleTimeout = "not-a-duration"

	timeouts := cfg.Timeouts()
	assert.Equal(t, 30*time.Second, timeouts.Bundle)
}

func TestConfig_Timeouts_FallsBackOnEmpty(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Network.HealthTimeout = ""

	timeouts := cfg.Timeouts()
	assert.Equal(t, 5*time.Second, timeouts.Health)
}

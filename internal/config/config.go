// Package config implements TOML configuration loading, validation, and
// layered override resolution (defaults -> file -> env -> flags) for the
// inspectcore sync core.
package config

import "time"

// Config is the top-level configuration structure for the sync core.
// Every field here corresponds to a named option in the host configuration
// contract: apiBaseUrl, jwtIssuer, jwtAudience, accessTokenLifetimeSeconds,
// maxRetryAttempts, syncBatchSize, autoSyncIntervalMs, photosWifiOnly,
// wifiOnlyThresholdMb, chunkedUploadThresholdBytes, chunkSizeBytes, and
// the per-operation timeouts.
type Config struct {
	API     APIConfig     `toml:"api"`
	Auth    AuthConfig    `toml:"auth"`
	Sync    SyncConfig    `toml:"sync"`
	Network NetworkConfig `toml:"network"`
	Storage StorageConfig `toml:"storage"`
	Logging LoggingConfig `toml:"logging"`
}

// APIConfig controls the remote sync server endpoint.
type APIConfig struct {
	BaseURL string `toml:"base_url"`
}

// AuthConfig controls offline JWT validation.
type AuthConfig struct {
	JWTIssuer                  string   `toml:"jwt_issuer"`
	JWTAudience                []string `toml:"jwt_audience"`
	AccessTokenLifetimeSeconds int      `toml:"access_token_lifetime_seconds"`
}

// SyncConfig controls the sync engine's batching, retry, and gating behavior.
type SyncConfig struct {
	MaxRetryAttempts            int    `toml:"max_retry_attempts"`
	SyncBatchSize               int    `toml:"sync_batch_size"`
	AutoSyncIntervalMs          int    `toml:"auto_sync_interval_ms"`
	PhotosWifiOnly              bool   `toml:"photos_wifi_only"`
	WifiOnlyThresholdMb         int    `toml:"wifi_only_threshold_mb"`
	ChunkedUploadThresholdBytes int64  `toml:"chunked_upload_threshold_bytes"`
	ChunkSizeBytes              int64  `toml:"chunk_size_bytes"`
	ConnectivityDebounce        string `toml:"connectivity_debounce"`
}

// NetworkConfig controls per-operation HTTP timeouts.
type NetworkConfig struct {
	BundleTimeout     string `toml:"bundle_timeout"`
	PhotoTimeout      string `toml:"photo_timeout"`
	VideoChunkTimeout string `toml:"video_chunk_timeout"`
	HealthTimeout     string `toml:"health_timeout"`
}

// StorageConfig controls where the local database and evidence vault live.
type StorageConfig struct {
	DBPath    string `toml:"db_path"`
	VaultRoot string `toml:"vault_root"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Timeouts resolves the network timeout strings into time.Durations.
// Falls back to conservative defaults (bundle 30s, photo 120s, video
// chunk 60s, health 5s) when a value is unset or invalid.
func (c *Config) Timeouts() Timeouts {
	return Timeouts{
		Bundle:     parseDurationOr(c.Network.BundleTimeout, 30*time.Second),
		Photo:      parseDurationOr(c.Network.PhotoTimeout, 120*time.Second),
		VideoChunk: parseDurationOr(c.Network.VideoChunkTimeout, 60*time.Second),
		Health:     parseDurationOr(c.Network.HealthTimeout, 5*time.Second),
	}
}

// Timeouts is the resolved, typed form of NetworkConfig's duration strings.
type Timeouts struct {
	Bundle     time.Duration
	Photo      time.Duration
	VideoChunk time.Duration
	Health     time.Duration
}

func parseDurationOr(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}

	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}

	return d
}

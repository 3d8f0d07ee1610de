package config

// Default values for configuration options. These represent layer 0 of the
// four-layer override chain (defaults -> file -> env -> flags).
const (
	defaultAPIBaseURL                  = "https://api.inspectcore.example/v1"
	defaultJWTIssuer                   = "inspectcore"
	defaultAccessTokenLifetimeSeconds  = 3600
	defaultMaxRetryAttempts            = 5
	defaultSyncBatchSize               = 10
	defaultAutoSyncIntervalMs          = 5 * 60 * 1000
	defaultWifiOnlyThresholdMb         = 10
	defaultChunkedUploadThresholdBytes = 10 * 1024 * 1024
	defaultChunkSizeBytes              = 10 * 1024 * 1024
	defaultConnectivityDebounce        = "2s"
	defaultBundleTimeout               = "30s"
	defaultPhotoTimeout                = "120s"
	defaultVideoChunkTimeout           = "60s"
	defaultHealthTimeout               = "5s"
	defaultDBFileName                  = "inspectcore.db"
	defaultVaultDirName                = "evidence"
	defaultLogLevel                    = "info"
	defaultLogFormat                   = "auto"
)

// DefaultConfig returns a Config populated with all default values. Used both
// as the starting point for TOML decoding (so unset fields keep their
// defaults) and as the fallback when no config file exists.
func DefaultConfig() *Config {
	return &Config{
		API: APIConfig{
			BaseURL: defaultAPIBaseURL,
		},
		Auth: AuthConfig{
			JWTIssuer:                  defaultJWTIssuer,
			JWTAudience:                []string{"inspectcore-mobile"},
			AccessTokenLifetimeSeconds: defaultAccessTokenLifetimeSeconds,
		},
		Sync: SyncConfig{
			MaxRetryAttempts:            defaultMaxRetryAttempts,
			SyncBatchSize:               defaultSyncBatchSize,
			AutoSyncIntervalMs:          defaultAutoSyncIntervalMs,
			PhotosWifiOnly:              false,
			WifiOnlyThresholdMb:         defaultWifiOnlyThresholdMb,
			ChunkedUploadThresholdBytes: defaultChunkedUploadThresholdBytes,
			ChunkSizeBytes:              defaultChunkSizeBytes,
			ConnectivityDebounce:        defaultConnectivityDebounce,
		},
		Network: NetworkConfig{
			BundleTimeout:     defaultBundleTimeout,
			PhotoTimeout:      defaultPhotoTimeout,
			VideoChunkTimeout: defaultVideoChunkTimeout,
			HealthTimeout:     defaultHealthTimeout,
		},
		Storage: StorageConfig{
			DBPath:    defaultDBFileName,
			VaultRoot: defaultVaultDirName,
		},
		Logging: LoggingConfig{
			Level:  defaultLogLevel,
			Format: defaultLogFormat,
		},
	}
}

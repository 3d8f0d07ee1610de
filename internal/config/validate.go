package config

import (
	"errors"
	"fmt"
	"time"
)

// Validation range constants.
const (
	minRetryAttempts   = 1
	maxRetryAttempts   = 20
	minSyncBatchSize   = 1
	maxSyncBatchSize   = 500
	minAutoSyncMs      = 1000
	minTokenLifetime   = 60
	minChunkSizeBytes  = 1024 * 1024
	maxChunkSizeBytes  = 100 * 1024 * 1024
	minConnectTimeout  = 1 * time.Second
	minThresholdUnitMb = 0
)

// Validate checks all configuration values and returns all errors found.
// It accumulates every error rather than stopping at the first, so a single
// call reports the complete set of problems.
func Validate(cfg *Config) error {
	var errs []error

	errs = append(errs, validateAPI(&cfg.API)...)
	errs = append(errs, validateAuth(&cfg.Auth)...)
	errs = append(errs, validateSync(&cfg.Sync)...)
	errs = append(errs, validateNetwork(&cfg.Network)...)
	errs = append(errs, validateStorage(&cfg.Storage)...)
	errs = append(errs, validateLogging(&cfg.Logging)...)

	return errors.Join(errs...)
}

func validateAPI(a *APIConfig) []error {
	if a.BaseURL == "" {
		return []error{errors.New("api.base_url: must not be empty")}
	}

	return nil
}

func validateAuth(a *AuthConfig) []error {
	var errs []error

	if a.JWTIssuer == "" {
		errs = append(errs, errors.New("auth.jwt_issuer: must not be empty"))
	}

	if len(a.JWTAudience) == 0 {
		errs = append(errs, errors.New("auth.jwt_audience: must contain at least one entry"))
	}

	if a.AccessTokenLifetimeSeconds < minTokenLifetime {
		errs = append(errs, fmt.Errorf("auth.access_token_lifetime_seconds: must be >= %d, got %d",
			minTokenLifetime, a.AccessTokenLifetimeSeconds))
	}

	return errs
}

func validateSync(s *SyncConfig) []error {
	var errs []error

	if s.MaxRetryAttempts < minRetryAttempts || s.MaxRetryAttempts > maxRetryAttempts {
		errs = append(errs, fmt.Errorf("sync.max_retry_attempts: must be between %d and %d, got %d",
			minRetryAttempts, maxRetryAttempts, s.MaxRetryAttempts))
	}

	if s.SyncBatchSize < minSyncBatchSize || s.SyncBatchSize > maxSyncBatchSize {
		errs = append(errs, fmt.Errorf("sync.sync_batch_size: must be between %d and %d, got %d",
			minSyncBatchSize, maxSyncBatchSize, s.SyncBatchSize))
	}

	if s.AutoSyncIntervalMs < minAutoSyncMs {
		errs = append(errs, fmt.Errorf("sync.auto_sync_interval_ms: must be >= %d, got %d",
			minAutoSyncMs, s.AutoSyncIntervalMs))
	}

	if s.WifiOnlyThresholdMb < minThresholdUnitMb {
		errs = append(errs, fmt.Errorf("sync.wifi_only_threshold_mb: must be >= 0, got %d",
			s.WifiOnlyThresholdMb))
	}

	if s.ChunkedUploadThresholdBytes < 0 {
		errs = append(errs, errors.New("sync.chunked_upload_threshold_bytes: must be >= 0"))
	}

	if s.ChunkSizeBytes < minChunkSizeBytes || s.ChunkSizeBytes > maxChunkSizeBytes {
		errs = append(errs, fmt.Errorf("sync.chunk_size_bytes: must be between %d and %d, got %d",
			minChunkSizeBytes, maxChunkSizeBytes, s.ChunkSizeBytes))
	}

	if _, err := time.ParseDuration(s.ConnectivityDebounce); err != nil {
		errs = append(errs, fmt.Errorf("sync.connectivity_debounce: invalid duration %q: %w",
			s.ConnectivityDebounce, err))
	}

	return errs
}

func validateNetwork(n *NetworkConfig) []error {
	var errs []error

	errs = append(errs, validateTimeout("network.bundle_timeout", n.BundleTimeout)...)
	errs = append(errs, validateTimeout("network.photo_timeout", n.PhotoTimeout)...)
	errs = append(errs, validateTimeout("network.video_chunk_timeout", n.VideoChunkTimeout)...)
	errs = append(errs, validateTimeout("network.health_timeout", n.HealthTimeout)...)

	return errs
}

func validateTimeout(field, value string) []error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return []error{fmt.Errorf("%s: invalid duration %q: %w", field, value, err)}
	}

	if d < minConnectTimeout {
		return []error{fmt.Errorf("%s: must be >= %s, got %s", field, minConnectTimeout, d)}
	}

	return nil
}

func validateStorage(s *StorageConfig) []error {
	var errs []error

	if s.DBPath == "" {
		errs = append(errs, errors.New("storage.db_path: must not be empty"))
	}

	if s.VaultRoot == "" {
		errs = append(errs, errors.New("storage.vault_root: must not be empty"))
	}

	return errs
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validLogFormats = map[string]bool{
	"auto": true,
	"text": true,
	"json": true,
}

func validateLogging(l *LoggingConfig) []error {
	var errs []error

	if !validLogLevels[l.Level] {
		errs = append(errs, fmt.Errorf("logging.level: must be one of debug, info, warn, error; got %q", l.Level))
	}

	if !validLogFormats[l.Format] {
		errs = append(errs, fmt.Errorf("logging.format: must be one of auto, text, json; got %q", l.Format))
	}

	return errs
}

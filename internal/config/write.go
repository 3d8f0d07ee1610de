package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// configFilePermissions is the standard permission mode for config files.
const configFilePermissions = 0o644

// configDirPermissions is the standard permission mode for config directories.
const configDirPermissions = 0o755

// configTemplate is the default config file content written on first run.
// All settings are present as commented-out defaults so operators can
// discover every option without reading docs.
const configTemplate = `# inspectcore configuration

[api]
# base_url = "https://api.inspectcore.example/v1"

[auth]
# jwt_issuer = "inspectcore"
# jwt_audience = ["inspectcore-mobile"]
# access_token_lifetime_seconds = 3600

[sync]
# max_retry_attempts = 5
# sync_batch_size = 10
# auto_sync_interval_ms = 300000
# photos_wifi_only = false
# wifi_only_threshold_mb = 10
# chunked_upload_threshold_bytes = 10485760
# chunk_size_bytes = 10485760
# connectivity_debounce = "2s"

[network]
# bundle_timeout = "30s"
# photo_timeout = "120s"
# video_chunk_timeout = "60s"
# health_timeout = "5s"

[storage]
# db_path = "inspectcore.db"
# vault_root = "evidence"

[logging]
# level = "info"
# format = "auto"
`

// WriteDefaultConfig creates a new config file from the default template.
// Used on first run when no config file exists yet. The write is atomic
// (temp file + rename) and parent directories are created as needed.
func WriteDefaultConfig(path string) error {
	return atomicWriteFile(path, []byte(configTemplate))
}

// atomicWriteFile writes data to a temporary file in the same directory as
// path, then renames it to the target path. This prevents partial writes
// from corrupting the config file on crash.
func atomicWriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, configDirPermissions); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	f, err := os.CreateTemp(dir, ".config-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}

	tempPath := f.Name()

	succeeded := false
	defer func() {
		if !succeeded {
			os.Remove(tempPath)
		}
	}()

	if _, err := f.Write(data); err != nil {
		f.Close()

		return fmt.Errorf("writing temp file: %w", err)
	}

	// Flush to disk before rename. Without fsync, a power loss after rename
	// could leave the file empty (rename is metadata-only on POSIX).
	if err := f.Sync(); err != nil {
		f.Close()

		return fmt.Errorf("syncing temp file: %w", err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}

	if err := os.Chmod(tempPath, configFilePermissions); err != nil {
		return fmt.Errorf("setting file permissions: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		return fmt.Errorf("renaming temp file: %w", err)
	}

	succeeded = true

	return nil
}

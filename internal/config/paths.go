package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// Platform identifiers.
const (
	platformLinux  = "linux"
	platformDarwin = "darwin"
)

// Application directory name used across all platforms.
const appName = "inspectcore"

// Config file name.
const configFileName = "config.toml"

// DefaultConfigDir returns the platform-specific directory for config files.
// On Linux, respects XDG_CONFIG_HOME (defaults to ~/.config/inspectcore).
// On macOS, uses ~/Library/Application Support/inspectcore per Apple guidelines.
// Other platforms fall back to ~/.config/inspectcore.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	switch runtime.GOOS {
	case platformLinux:
		return linuxConfigDir(home)
	case platformDarwin:
		return filepath.Join(home, "Library", "Application Support", appName)
	default:
		return filepath.Join(home, ".config", appName)
	}
}

func linuxConfigDir(home string) string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, appName)
	}

	return filepath.Join(home, ".config", appName)
}

// DefaultDataDir returns the platform-specific directory for application data
// (the local SQLite store and the evidence vault).
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	switch runtime.GOOS {
	case platformLinux:
		return linuxDataDir(home)
	case platformDarwin:
		return filepath.Join(home, "Library", "Application Support", appName)
	default:
		return filepath.Join(home, ".local", "share", appName)
	}
}

func linuxDataDir(home string) string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, appName)
	}

	return filepath.Join(home, ".local", "share", appName)
}

// DefaultCacheDir returns the platform-specific directory for cache files
// (generated thumbnails, staged chunked-upload parts).
func DefaultCacheDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	switch runtime.GOOS {
	case platformLinux:
		return linuxCacheDir(home)
	case platformDarwin:
		return filepath.Join(home, "Library", "Caches", appName)
	default:
		return filepath.Join(home, ".cache", appName)
	}
}

func linuxCacheDir(home string) string {
	if xdg := os.Getenv("XDG_CACHE_HOME"); xdg != "" {
		return filepath.Join(xdg, appName)
	}

	return filepath.Join(home, ".cache", appName)
}

// DefaultConfigPath returns the full path to the default config file.
// Used as the fallback when neither INSPECTCORE_CONFIG nor --config is set.
func DefaultConfigPath() string {
	dir := DefaultConfigDir()
	if dir == "" {
		return ""
	}

	return filepath.Join(dir, configFileName)
}

// ResolveDBPath returns cfg.Storage.DBPath if absolute, otherwise joins it
// onto the default data directory. Relative paths in the config file are a
// convenience; the resolved path is always absolute.
func ResolveDBPath(cfg *Config) string {
	if filepath.IsAbs(cfg.Storage.DBPath) {
		return cfg.Storage.DBPath
	}

	return filepath.Join(DefaultDataDir(), cfg.Storage.DBPath)
}

// ResolveVaultRoot returns cfg.Storage.VaultRoot if absolute, otherwise joins
// it onto the default data directory.
func ResolveVaultRoot(cfg *Config) string {
	if filepath.IsAbs(cfg.Storage.VaultRoot) {
		return cfg.Storage.VaultRoot
	}

	return filepath.Join(DefaultDataDir(), cfg.Storage.VaultRoot)
}

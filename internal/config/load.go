package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/BurntSushi/toml"
)

// CLIOverrides holds values sourced from command-line flags. Empty/nil
// fields mean "flag not set"; callers only apply non-empty overrides.
type CLIOverrides struct {
	ConfigPath string
	APIBaseURL string
	DBPath     string
	VaultRoot  string
	LogLevel   string
}

// Load reads and parses a TOML config file, overlays it onto the defaults,
// and validates the result.
func Load(path string, logger *slog.Logger) (*Config, error) {
	logger.Debug("loading config file", "path", path)

	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	if _, err := toml.Decode(string(data), cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	logger.Debug("config file parsed successfully", "path", path)

	return cfg, nil
}

// LoadOrDefault reads a TOML config file if it exists, otherwise returns a
// Config populated with all default values. Supports a zero-config first run.
func LoadOrDefault(path string, logger *slog.Logger) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		logger.Debug("config file not found, using defaults", "path", path)

		return DefaultConfig(), nil
	}

	return Load(path, logger)
}

// Resolve applies the full four-layer override chain: defaults -> config
// file -> environment variables -> CLI flags. It returns the fully resolved
// Config, ready for use by the CLI and sync engine.
func Resolve(env EnvOverrides, cli CLIOverrides, logger *slog.Logger) (*Config, error) {
	cfgPath := ResolveConfigPath(env, cli, logger)

	cfg, err := LoadOrDefault(cfgPath, logger)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	ApplyEnvOverrides(cfg, env)
	applyCLIOverrides(cfg, cli)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

func applyCLIOverrides(cfg *Config, cli CLIOverrides) {
	if cli.APIBaseURL != "" {
		cfg.API.BaseURL = cli.APIBaseURL
	}

	if cli.DBPath != "" {
		cfg.Storage.DBPath = cli.DBPath
	}

	if cli.VaultRoot != "" {
		cfg.Storage.VaultRoot = cli.VaultRoot
	}

	if cli.LogLevel != "" {
		cfg.Logging.Level = cli.LogLevel
	}
}

// ResolveConfigPath determines the config file path using the three-layer
// priority: CLI flag > environment variable > platform default.
func ResolveConfigPath(env EnvOverrides, cli CLIOverrides, logger *slog.Logger) string {
	cfgPath := DefaultConfigPath()
	source := "default"

	if env.ConfigPath != "" {
		cfgPath = env.ConfigPath
		source = "env"
	}

	if cli.ConfigPath != "" {
		cfgPath = cli.ConfigPath
		source = "cli"
	}

	logger.Debug("config path resolved", "path", cfgPath, "source", source)

	return cfgPath
}

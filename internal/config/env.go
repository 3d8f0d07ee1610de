package config

import "os"

// Environment variable names for overrides. These sit between the config
// file and CLI flags in the four-layer resolution chain.
const (
	EnvConfig    = "INSPECTCORE_CONFIG"
	EnvAPIBase   = "INSPECTCORE_API_BASE_URL"
	EnvDBPath    = "INSPECTCORE_DB_PATH"
	EnvVaultRoot = "INSPECTCORE_VAULT_ROOT"
	EnvLogLevel  = "INSPECTCORE_LOG_LEVEL"
)

// EnvOverrides holds values derived from environment variables.
// Empty fields mean "not set"; callers only apply non-empty overrides.
type EnvOverrides struct {
	ConfigPath string
	APIBaseURL string
	DBPath     string
	VaultRoot  string
	LogLevel   string
}

// ReadEnvOverrides reads environment variables and returns any overrides found.
// This does not modify the Config; ApplyEnvOverrides does that.
func ReadEnvOverrides() EnvOverrides {
	return EnvOverrides{
		ConfigPath: os.Getenv(EnvConfig),
		APIBaseURL: os.Getenv(EnvAPIBase),
		DBPath:     os.Getenv(EnvDBPath),
		VaultRoot:  os.Getenv(EnvVaultRoot),
		LogLevel:   os.Getenv(EnvLogLevel),
	}
}

// ApplyEnvOverrides mutates cfg in place, overwriting any field for which an
// environment variable was set. Called after the config file is loaded and
// before CLI flag overrides, per the defaults -> file -> env -> flags chain.
func ApplyEnvOverrides(cfg *Config, env EnvOverrides) {
	if env.APIBaseURL != "" {
		cfg.API.BaseURL = env.APIBaseURL
	}

	if env.DBPath != "" {
		cfg.Storage.DBPath = env.DBPath
	}

	if env.VaultRoot != "" {
		cfg.Storage.VaultRoot = env.VaultRoot
	}

	if env.LogLevel != "" {
		cfg.Logging.Level = env.LogLevel
	}
}

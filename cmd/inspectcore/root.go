package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/inspectcore/inspectcore/internal/config"
)

// version is set at build time via ldflags.
var version = "dev"

// CLIFlags holds the global persistent flag values, bound once in
// newRootCmd() and threaded through CLIContext rather than read back from
// package globals in every command.
type CLIFlags struct {
	ConfigPath string
	JSON       bool
	Verbose    bool
	Debug      bool
	Quiet      bool
}

// skipConfigAnnotation marks commands that handle config loading themselves.
// Commands annotated with this key skip the automatic four-layer config
// resolution in PersistentPreRunE.
const skipConfigAnnotation = "skipConfig"

// CLIContext bundles resolved config, flags, and logger. Created once in
// PersistentPreRunE; eliminates redundant buildLogger calls in RunE handlers.
type CLIContext struct {
	Flags     CLIFlags
	Cfg       *config.Config
	CfgHolder *config.Holder
	CfgPath   string
	Env       config.EnvOverrides
	Logger    *slog.Logger
}

// cliContextKey is the context key for CLIContext.
type cliContextKey struct{}

// cliContextFrom extracts the CLIContext from the command's context.
// Returns nil if no config was loaded (e.g., commands that skip config).
func cliContextFrom(ctx context.Context) *CLIContext {
	cc, ok := ctx.Value(cliContextKey{}).(*CLIContext)
	if !ok {
		return nil
	}

	return cc
}

// mustCLIContext extracts the CLIContext or panics with an actionable message.
// Use in RunE handlers for commands that require config (no skipConfigAnnotation).
// Panics are always programmer errors — the command tree should guarantee the
// context is populated by PersistentPreRunE before RunE executes.
func mustCLIContext(ctx context.Context) *CLIContext {
	cc := cliContextFrom(ctx)
	if cc == nil {
		panic("BUG: CLIContext not found in context — ensure the command " +
			"does not skip config loading (no skipConfigAnnotation) or " +
			"explicitly loads config in its RunE")
	}

	return cc
}

// httpClientTimeout is the default timeout for HTTP requests against the
// inspectcore API. Prevents hung connections from blocking CLI commands
// indefinitely.
const httpClientTimeout = 30 * time.Second

// defaultHTTPClient returns an HTTP client with a sensible timeout, used for
// metadata-style calls (status checks, custody lookups).
func defaultHTTPClient() *http.Client {
	return &http.Client{Timeout: httpClientTimeout}
}

// transferHTTPClient returns an HTTP client with no timeout for photo/video
// upload operations. Large transfers on slow field connections can exceed
// the 30-second default; they're bounded by context cancellation instead.
func transferHTTPClient() *http.Client {
	return &http.Client{Timeout: 0}
}

// newRootCmd builds and returns the fully-assembled root command with all
// subcommands registered. Called once from main().
func newRootCmd() *cobra.Command {
	flags := &CLIFlags{}

	cmd := &cobra.Command{
		Use:     "inspectcore",
		Short:   "Offline-first evidence capture and sync for field inspections",
		Long:    "inspectcore captures inspection evidence on the device, keeps a chain-of-custody log, and syncs with the backend when connectivity allows.",
		Version: version,
		// Silence Cobra's default error/usage printing — we handle it ourselves.
		SilenceErrors: true,
		SilenceUsage:  true,
		// PersistentPreRunE loads configuration before every command. Commands
		// annotated with skipConfigAnnotation handle config access themselves.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Annotations[skipConfigAnnotation] == "true" {
				return nil
			}

			return loadAndAttachConfig(cmd, flags)
		},
	}

	cmd.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "config file path")
	cmd.PersistentFlags().BoolVar(&flags.JSON, "json", false, "output in JSON format")
	cmd.PersistentFlags().BoolVarP(&flags.Verbose, "verbose", "v", false, "show detailed output")
	cmd.PersistentFlags().BoolVar(&flags.Debug, "debug", false, "enable debug logging (HTTP requests, config resolution)")
	cmd.PersistentFlags().BoolVarP(&flags.Quiet, "quiet", "q", false, "suppress informational output")

	cmd.MarkFlagsMutuallyExclusive("verbose", "debug", "quiet")

	// Register subcommands.
	cmd.AddCommand(newLoginCmd())
	cmd.AddCommand(newLogoutCmd())
	cmd.AddCommand(newSessionCmd())
	cmd.AddCommand(newReportCmd())
	cmd.AddCommand(newCaptureCmd())
	cmd.AddCommand(newEvidenceCmd())
	cmd.AddCommand(newSyncCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newCustodyCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newVerifyCmd())

	return cmd
}

// loadAndAttachConfig resolves the effective configuration from the
// four-layer override chain and stores the result in the command's context
// for use by subcommands.
func loadAndAttachConfig(cmd *cobra.Command, flags *CLIFlags) error {
	// Bootstrap logger derived from CLI flags only (config doesn't exist yet).
	logger := buildLogger(nil, *flags)

	cli := config.CLIOverrides{
		ConfigPath: flags.ConfigPath,
	}

	env := config.ReadEnvOverrides()

	logger.Debug("resolving config",
		slog.String("config_path", cli.ConfigPath),
		slog.String("env_config", env.ConfigPath),
	)

	resolved, err := config.Resolve(env, cli, logger)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Build the final logger incorporating config-file log level.
	finalLogger := buildLogger(resolved, *flags)

	cfgPath := config.ResolveConfigPath(env, cli, finalLogger)

	cc := &CLIContext{
		Flags:     *flags,
		Cfg:       resolved,
		CfgHolder: config.NewHolder(resolved, cfgPath),
		CfgPath:   cfgPath,
		Env:       env,
		Logger:    finalLogger,
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cmd.SetContext(context.WithValue(ctx, cliContextKey{}, cc))

	return nil
}

// buildLogger creates an slog.Logger configured by the resolved config and
// CLI flags. Pass nil for pre-config bootstrap (no config-file log level).
// Config-file log level provides the baseline; --verbose, --debug, and
// --quiet override it because CLI flags always win. The flags are mutually
// exclusive (enforced by Cobra).
func buildLogger(cfg *config.Config, flags CLIFlags) *slog.Logger {
	level := slog.LevelWarn

	// Config-based log level (lower priority than CLI flags).
	if cfg != nil {
		switch cfg.Logging.Level {
		case "debug":
			level = slog.LevelDebug
		case "info":
			level = slog.LevelInfo
		case "error":
			level = slog.LevelError
		}
	}

	// CLI flags override config (highest priority).
	if flags.Verbose {
		level = slog.LevelInfo
	}

	if flags.Debug {
		level = slog.LevelDebug
	}

	if flags.Quiet {
		level = slog.LevelError
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// exitOnError prints a user-friendly error message to stderr and exits.
func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/inspectcore/inspectcore/internal/config"
	"github.com/inspectcore/inspectcore/internal/sync"
)

func newSyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Synchronize evidence with the inspectcore backend",
	}

	cmd.AddCommand(newSyncBootstrapCmd())
	cmd.AddCommand(newSyncFullCmd())
	cmd.AddCommand(newSyncUploadCmd())
	cmd.AddCommand(newSyncRetryCmd())
	cmd.AddCommand(newSyncStartAutoCmd())
	cmd.AddCommand(newSyncStopAutoCmd())

	return cmd
}

// withEngine opens the store/vault trio, wires a sync.Engine, runs fn, and
// closes the store on the way out. Every one-shot sync subcommand (not the
// foreground start-auto daemon, which needs the store open for its lifetime)
// follows this shape.
func withEngine(cc *CLIContext, fn func(ctx context.Context, e *sync.Engine) error) error {
	st, err := openStore(cc)
	if err != nil {
		return err
	}
	defer st.Close()

	v, err := openVault(cc)
	if err != nil {
		return err
	}

	custody := newCustodyLog(st, cc.Logger)

	engine, _, err := newEngine(cc, st, custody, v, noopCallbacks)
	if err != nil {
		return err
	}

	if userID, userName, actorErr := currentActor(cc); actorErr == nil {
		engine.SetActor(userID, userName)
	} else {
		cc.Logger.Warn("sync: no acting user resolved, custody events will carry an empty actor", "error", actorErr)
	}

	return fn(context.Background(), engine)
}

func newSyncBootstrapCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "bootstrap",
		Short: "Pull reference data (checklists, templates, recent reports) from the server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc := mustCLIContext(cmd.Context())

			return withEngine(cc, func(ctx context.Context, e *sync.Engine) error {
				counts, err := e.Bootstrap(ctx)
				if err != nil {
					return fmt.Errorf("bootstrap failed: %w", err)
				}

				return printDownloadCounts(cc, counts)
			})
		},
	}
}

func newSyncFullCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "full",
		Short: "Run a full sync cycle: health check, upload, custody flush, bootstrap download",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc := mustCLIContext(cmd.Context())

			return withEngine(cc, func(ctx context.Context, e *sync.Engine) error {
				result, err := e.FullSync(ctx)
				if err != nil {
					return fmt.Errorf("sync failed: %w", err)
				}

				return printResult(cc, result)
			})
		},
	}
}

func newSyncUploadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "upload",
		Short: "Upload pending reports, photos, videos, and voice notes without downloading",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc := mustCLIContext(cmd.Context())

			return withEngine(cc, func(ctx context.Context, e *sync.Engine) error {
				result, err := e.UploadPending(ctx)
				if err != nil {
					return fmt.Errorf("upload failed: %w", err)
				}

				return printUploadResult(cc, result)
			})
		},
	}
}

func newSyncRetryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "retry",
		Short: "Reset rows stuck in an error state and retry a full sync",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc := mustCLIContext(cmd.Context())

			return withEngine(cc, func(ctx context.Context, e *sync.Engine) error {
				result, err := e.RetryFailed(ctx)
				if err != nil {
					return fmt.Errorf("retry failed: %w", err)
				}

				return printResult(cc, result)
			})
		},
	}
}

// pidFilePath is the foreground daemon's PID file, kept in the data
// directory alongside the store rather than /var/run since the CLI runs
// unprivileged.
func pidFilePath() string {
	return filepath.Join(config.DefaultDataDir(), "sync-auto.pid")
}

func newSyncStartAutoCmd() *cobra.Command {
	var intervalMs int

	cmd := &cobra.Command{
		Use:   "start-auto",
		Short: "Run as a foreground daemon, syncing on a timer and on reconnect",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc := mustCLIContext(cmd.Context())

			cleanup, err := writePIDFile(pidFilePath())
			if err != nil {
				return err
			}
			defer cleanup()

			st, err := openStore(cc)
			if err != nil {
				return err
			}
			defer st.Close()

			v, err := openVault(cc)
			if err != nil {
				return err
			}

			custody := newCustodyLog(st, cc.Logger)

			callbacks := sync.Callbacks{
				OnStatusChange: func(phase sync.Phase) {
					cc.Logger.Info("sync: phase", "phase", phase)
				},
				OnError: func(err *sync.SyncError) {
					cc.Logger.Warn("sync: error", "kind", err.Kind, "message", err.Error())
				},
				OnSyncComplete: func(result sync.Result) {
					cc.Statusf("sync: completed (%s, %dms)\n", result.Phase, result.DurationMs)
				},
			}

			engine, mon, err := newEngine(cc, st, custody, v, callbacks)
			if err != nil {
				return err
			}

			if userID, userName, actorErr := currentActor(cc); actorErr == nil {
				engine.SetActor(userID, userName)
			}

			ctx := shutdownContext(context.Background(), cc.Logger)

			go mon.Run(ctx)

			interval := intervalMs
			if interval <= 0 {
				interval = cc.Cfg.Sync.AutoSyncIntervalMs
			}

			engine.StartAuto(ctx, interval)

			sighup := sighupChannel()
			defer signal.Stop(sighup)

			go watchConfigReload(ctx, cc, sighup)

			cc.Statusf("sync: running in the foreground, interval %dms (ctrl-C to stop, SIGHUP to reload config)\n", interval)

			<-ctx.Done()

			engine.StopAuto()

			return nil
		},
	}

	cmd.Flags().IntVar(&intervalMs, "interval-ms", 0, "auto-sync interval in milliseconds (defaults to config)")

	return cmd
}

func newSyncStopAutoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop-auto",
		Short: "Signal a running start-auto daemon to shut down",
		RunE: func(_ *cobra.Command, _ []string) error {
			return sendShutdownSignal(pidFilePath())
		},
	}
}

// watchConfigReload re-reads the config file on every SIGHUP and swaps it
// into cc.CfgHolder, so the already-running Engine (which reads the holder
// fresh on every sync pass) picks up the change without a daemon restart.
// A parse/validation failure is logged and the prior config stays in effect.
func watchConfigReload(ctx context.Context, cc *CLIContext, sighup <-chan os.Signal) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-sighup:
			cc.Logger.Info("sync: SIGHUP received, reloading config", "path", cc.CfgHolder.Path())

			cfg, err := config.Resolve(cc.Env, config.CLIOverrides{ConfigPath: cc.CfgHolder.Path()}, cc.Logger)
			if err != nil {
				cc.Logger.Warn("sync: config reload failed, keeping previous config", "error", err.Error())
				continue
			}

			cc.CfgHolder.Update(cfg)
			cc.Logger.Info("sync: config reloaded")
		}
	}
}

func printDownloadCounts(cc *CLIContext, counts sync.DownloadCounts) error {
	if cc.Flags.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		return enc.Encode(counts)
	}

	cc.Statusf("Bootstrap complete\n")
	cc.Statusf("  Checklists: %d\n", counts.Checklists)
	cc.Statusf("  Templates:  %d\n", counts.Templates)
	cc.Statusf("  Reports:    %d\n", counts.Reports)

	return nil
}

func printUploadResult(cc *CLIContext, result sync.UploadResult) error {
	if cc.Flags.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		return enc.Encode(result)
	}

	cc.Statusf("Upload complete (%dms)\n", result.DurationMs)
	cc.Statusf("  Reports:    %d\n", result.Uploaded.Reports)
	cc.Statusf("  Photos:     %d\n", result.Uploaded.Photos)
	cc.Statusf("  Videos:     %d\n", result.Uploaded.Videos)
	cc.Statusf("  VoiceNotes: %d\n", result.Uploaded.VoiceNotes)

	if result.Uploaded.Operations > 0 {
		cc.Statusf("  Actions:    %d\n", result.Uploaded.Operations)
	}

	if len(result.Conflicts) > 0 {
		cc.Statusf("  Conflicts:  %d\n", len(result.Conflicts))
	}

	if len(result.Errors) > 0 {
		cc.Statusf("  Errors:     %d\n", len(result.Errors))
		return fmt.Errorf("upload completed with %d errors", len(result.Errors))
	}

	return nil
}

func printResult(cc *CLIContext, result sync.Result) error {
	if cc.Flags.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		return enc.Encode(result)
	}

	cc.Statusf("Sync complete (%s, %dms)\n", result.Phase, result.DurationMs)
	cc.Statusf("  Uploaded:   %d reports, %d photos, %d videos, %d voice notes\n",
		result.Uploaded.Reports, result.Uploaded.Photos, result.Uploaded.Videos, result.Uploaded.VoiceNotes)
	cc.Statusf("  Downloaded: %d checklists, %d templates, %d reports\n",
		result.Downloaded.Checklists, result.Downloaded.Templates, result.Downloaded.Reports)

	if len(result.Conflicts) > 0 {
		cc.Statusf("  Conflicts:  %d\n", len(result.Conflicts))
	}

	if len(result.Errors) > 0 {
		cc.Statusf("  Errors:     %d\n", len(result.Errors))
		return fmt.Errorf("sync completed with %d errors", len(result.Errors))
	}

	return nil
}

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
	}

	cmd.AddCommand(newConfigShowCmd())

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display effective configuration after all overrides",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc := mustCLIContext(cmd.Context())

			if cc.Cfg == nil {
				return fmt.Errorf("no configuration loaded")
			}

			if cc.Flags.JSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")

				return enc.Encode(cc.Cfg)
			}

			renderEffectiveConfig(os.Stdout, cc)

			return nil
		},
	}
}

// renderEffectiveConfig prints the resolved config as a flat, grep-friendly
// key/value listing — one line per leaf field, grouped by section.
func renderEffectiveConfig(w io.Writer, cc *CLIContext) {
	cfg := cc.Cfg

	fmt.Fprintf(w, "config file: %s\n\n", cc.CfgPath)

	fmt.Fprintln(w, "[api]")
	fmt.Fprintf(w, "  base_url = %q\n\n", cfg.API.BaseURL)

	fmt.Fprintln(w, "[auth]")
	fmt.Fprintf(w, "  jwt_issuer = %q\n", cfg.Auth.JWTIssuer)
	fmt.Fprintf(w, "  jwt_audience = %v\n", cfg.Auth.JWTAudience)
	fmt.Fprintf(w, "  access_token_lifetime_seconds = %d\n\n", cfg.Auth.AccessTokenLifetimeSeconds)

	fmt.Fprintln(w, "[sync]")
	fmt.Fprintf(w, "  max_retry_attempts = %d\n", cfg.Sync.MaxRetryAttempts)
	fmt.Fprintf(w, "  sync_batch_size = %d\n", cfg.Sync.SyncBatchSize)
	fmt.Fprintf(w, "  auto_sync_interval_ms = %d\n", cfg.Sync.AutoSyncIntervalMs)
	fmt.Fprintf(w, "  photos_wifi_only = %t\n", cfg.Sync.PhotosWifiOnly)
	fmt.Fprintf(w, "  wifi_only_threshold_mb = %d\n", cfg.Sync.WifiOnlyThresholdMb)
	fmt.Fprintf(w, "  chunked_upload_threshold_bytes = %d\n", cfg.Sync.ChunkedUploadThresholdBytes)
	fmt.Fprintf(w, "  chunk_size_bytes = %d\n", cfg.Sync.ChunkSizeBytes)
	fmt.Fprintf(w, "  connectivity_debounce = %q\n\n", cfg.Sync.ConnectivityDebounce)

	fmt.Fprintln(w, "[network]")
	fmt.Fprintf(w, "  bundle_timeout = %q\n", cfg.Network.BundleTimeout)
	fmt.Fprintf(w, "  photo_timeout = %q\n", cfg.Network.PhotoTimeout)
	fmt.Fprintf(w, "  video_chunk_timeout = %q\n", cfg.Network.VideoChunkTimeout)
	fmt.Fprintf(w, "  health_timeout = %q\n\n", cfg.Network.HealthTimeout)

	fmt.Fprintln(w, "[storage]")
	fmt.Fprintf(w, "  db_path = %q\n", cfg.Storage.DBPath)
	fmt.Fprintf(w, "  vault_root = %q\n\n", cfg.Storage.VaultRoot)

	fmt.Fprintln(w, "[logging]")
	fmt.Fprintf(w, "  level = %q\n", cfg.Logging.Level)
	fmt.Fprintf(w, "  format = %q\n", cfg.Logging.Format)
}

package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/inspectcore/inspectcore/internal/store"
)

func newEvidenceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "evidence",
		Short: "Manage captured evidence artifacts",
	}

	cmd.AddCommand(newEvidenceDeleteCmd())

	return cmd
}

func newEvidenceDeleteCmd() *cobra.Command {
	var entityType, id string

	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Remove an evidence artifact: its row, vault files, and a DELETED custody event",
		Long: `Remove one captured artifact from this device.

The database row is deleted first (marking the parent report for re-upload),
then every vault tier for the artifact, and finally a DELETED custody event
is appended. The custody timeline itself is never deleted — the record of
the artifact having existed, and of this deletion, is permanent.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc := mustCLIContext(cmd.Context())

			if id == "" {
				return fmt.Errorf("--id is required")
			}

			return runEvidenceDelete(cmd.Context(), cc, entityType, id)
		},
	}

	cmd.Flags().StringVar(&entityType, "type", "photo", "artifact kind: photo, video, or voicenote")
	cmd.Flags().StringVar(&id, "id", "", "artifact ID (required)")

	return cmd
}

func runEvidenceDelete(ctx context.Context, cc *CLIContext, entityType, id string) error {
	st, err := openStore(cc)
	if err != nil {
		return err
	}
	defer st.Close()

	reportID, hash, err := deleteEvidenceRow(ctx, st, entityType, id)
	if err != nil {
		return err
	}

	v, err := openVault(cc)
	if err != nil {
		return err
	}

	if err := v.Delete(id); err != nil {
		return fmt.Errorf("removing vault files: %w", err)
	}

	cl := newCustodyLog(st, cc.Logger)

	userID, userName, actorErr := currentActor(cc)
	if actorErr != nil {
		cc.Logger.Warn("evidence delete: no acting user resolved, custody event will carry an empty actor", "error", actorErr)
	}

	details := map[string]string{"originalHash": hash, "reportId": reportID}
	if err := cl.LogDeleted(ctx, entityType, id, userID, userName, details); err != nil {
		return fmt.Errorf("recording custody event: %w", err)
	}

	cc.Statusf("Deleted %s %s\n", entityType, id)

	return nil
}

// deleteEvidenceRow removes the store row for the given artifact kind and
// returns the parent report ID and original hash for the custody record.
func deleteEvidenceRow(ctx context.Context, st *store.SQLiteStore, entityType, id string) (reportID, hash string, err error) {
	now := store.NowNano()

	switch entityType {
	case "photo":
		p, err := st.GetPhoto(ctx, id)
		if err != nil {
			return "", "", err
		}

		if p == nil {
			return "", "", fmt.Errorf("photo %s not found", id)
		}

		return p.ReportID, p.OriginalHash, st.DeletePhoto(ctx, id, now)
	case "video":
		v, err := st.GetVideo(ctx, id)
		if err != nil {
			return "", "", err
		}

		if v == nil {
			return "", "", fmt.Errorf("video %s not found", id)
		}

		return v.ReportID, v.OriginalHash, st.DeleteVideo(ctx, id, now)
	case "voicenote":
		vn, err := st.GetVoiceNote(ctx, id)
		if err != nil {
			return "", "", err
		}

		if vn == nil {
			return "", "", fmt.Errorf("voice note %s not found", id)
		}

		return vn.ReportID, vn.OriginalHash, st.DeleteVoiceNote(ctx, id, now)
	default:
		return "", "", fmt.Errorf("unknown evidence type %q (expected photo, video, or voicenote)", entityType)
	}
}

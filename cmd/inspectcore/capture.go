package main

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/inspectcore/inspectcore/internal/store"
)

func newCaptureCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "capture",
		Short: "Record a piece of evidence captured on this device",
	}

	cmd.AddCommand(newCapturePhotoCmd())
	cmd.AddCommand(newCaptureVideoCmd())
	cmd.AddCommand(newCaptureVoiceNoteCmd())

	return cmd
}

// captureSourceFile reads sourcePath and ingests it into the vault,
// returning a freshly generated entity ID and the ingest result the
// caller needs to populate the store row.
func captureSourceFile(ctx context.Context, cc *CLIContext, sourcePath, ext string) (id string, result ingestResult, err error) {
	data, err := os.ReadFile(sourcePath)
	if err != nil {
		return "", ingestResult{}, fmt.Errorf("reading source file: %w", err)
	}

	id = uuid.New().String()

	v, err := openVault(cc)
	if err != nil {
		return "", ingestResult{}, err
	}

	ingested, err := v.Ingest(ctx, data, ext, id)
	if err != nil {
		return "", ingestResult{}, fmt.Errorf("ingesting into vault: %w", err)
	}

	return id, ingestResult{
		OriginalPath:  ingested.OriginalPath,
		Hash:          ingested.Hash,
		WorkingPath:   ingested.WorkingPath,
		ThumbnailPath: ingested.ThumbnailPath,
		FileSize:      int64(len(data)),
	}, nil
}

// ingestResult mirrors vault.IngestResult plus the byte count the caller
// needs for the store row's fileSize column.
type ingestResult struct {
	OriginalPath  string
	Hash          string
	WorkingPath   string
	ThumbnailPath string
	FileSize      int64
}

func newCapturePhotoCmd() *cobra.Command {
	var reportID, defectID, elementID, file, mimeType, photoType, caption, quickTag string

	cmd := &cobra.Command{
		Use:   "photo",
		Short: "Ingest a photo file into the evidence vault and attach it to a report",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc := mustCLIContext(cmd.Context())
			ctx := cmd.Context()

			if reportID == "" || file == "" {
				return fmt.Errorf("--report-id and --file are required")
			}

			id, ingested, err := captureSourceFile(ctx, cc, file, extFromMime(mimeType))
			if err != nil {
				return err
			}

			st, err := openStore(cc)
			if err != nil {
				return err
			}
			defer st.Close()

			photo := &store.Photo{
				ID:            id,
				ReportID:      reportID,
				DefectID:      optionalString(defectID),
				ElementID:     optionalString(elementID),
				OriginalPath:  ingested.OriginalPath,
				WorkingPath:   ingested.WorkingPath,
				ThumbnailPath: ingested.ThumbnailPath,
				MimeType:      mimeType,
				FileSize:      ingested.FileSize,
				PhotoType:     photoType,
				OriginalHash:  ingested.Hash,
				SyncStatus:    store.BinaryStatusCaptured,
				Caption:       caption,
				QuickTag:      quickTag,
				CreatedAt:     store.NowNano(),
				UpdatedAt:     store.NowNano(),
			}

			if err := st.SavePhoto(ctx, photo); err != nil {
				return fmt.Errorf("saving photo: %w", err)
			}

			return recordCapture(ctx, cc, st, "photo", id, reportID)
		},
	}

	addCaptureFlags(cmd, &reportID, &defectID, &file, &mimeType)
	cmd.Flags().StringVar(&elementID, "element-id", "", "element this photo documents, if any")
	cmd.Flags().StringVar(&photoType, "photo-type", "general", "photo category (e.g. general, defect, overview)")
	cmd.Flags().StringVar(&caption, "caption", "", "free-text caption")
	cmd.Flags().StringVar(&quickTag, "quick-tag", "", "one-tap classification tag")

	return cmd
}

func newCaptureVideoCmd() *cobra.Command {
	var reportID, defectID, elementID, file, mimeType, caption string
	var durationMs int64

	cmd := &cobra.Command{
		Use:   "video",
		Short: "Ingest a video file into the evidence vault and attach it to a report",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc := mustCLIContext(cmd.Context())
			ctx := cmd.Context()

			if reportID == "" || file == "" {
				return fmt.Errorf("--report-id and --file are required")
			}

			id, ingested, err := captureSourceFile(ctx, cc, file, extFromMime(mimeType))
			if err != nil {
				return err
			}

			st, err := openStore(cc)
			if err != nil {
				return err
			}
			defer st.Close()

			video := &store.Video{
				ID:            id,
				ReportID:      reportID,
				DefectID:      optionalString(defectID),
				ElementID:     optionalString(elementID),
				OriginalPath:  ingested.OriginalPath,
				WorkingPath:   ingested.WorkingPath,
				ThumbnailPath: ingested.ThumbnailPath,
				MimeType:      mimeType,
				FileSize:      ingested.FileSize,
				DurationMs:    durationMs,
				OriginalHash:  ingested.Hash,
				SyncStatus:    store.BinaryStatusCaptured,
				Caption:       caption,
				CreatedAt:     store.NowNano(),
				UpdatedAt:     store.NowNano(),
			}

			if err := st.SaveVideo(ctx, video); err != nil {
				return fmt.Errorf("saving video: %w", err)
			}

			return recordCapture(ctx, cc, st, "video", id, reportID)
		},
	}

	addCaptureFlags(cmd, &reportID, &defectID, &file, &mimeType)
	cmd.Flags().StringVar(&elementID, "element-id", "", "element this video documents, if any")
	cmd.Flags().StringVar(&caption, "caption", "", "free-text caption")
	cmd.Flags().Int64Var(&durationMs, "duration-ms", 0, "video duration in milliseconds")

	return cmd
}

func newCaptureVoiceNoteCmd() *cobra.Command {
	var reportID, defectID, file, mimeType string
	var durationMs int64

	cmd := &cobra.Command{
		Use:   "voicenote",
		Short: "Ingest a voice note file into the evidence vault and attach it to a report",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc := mustCLIContext(cmd.Context())
			ctx := cmd.Context()

			if reportID == "" || file == "" {
				return fmt.Errorf("--report-id and --file are required")
			}

			id, ingested, err := captureSourceFile(ctx, cc, file, extFromMime(mimeType))
			if err != nil {
				return err
			}

			st, err := openStore(cc)
			if err != nil {
				return err
			}
			defer st.Close()

			note := &store.VoiceNote{
				ID:           id,
				ReportID:     reportID,
				DefectID:     optionalString(defectID),
				OriginalPath: ingested.OriginalPath,
				WorkingPath:  ingested.WorkingPath,
				MimeType:     mimeType,
				FileSize:     ingested.FileSize,
				DurationMs:   durationMs,
				OriginalHash: ingested.Hash,
				SyncStatus:   store.BinaryStatusCaptured,
				CreatedAt:    store.NowNano(),
				UpdatedAt:    store.NowNano(),
			}

			if err := st.SaveVoiceNote(ctx, note); err != nil {
				return fmt.Errorf("saving voice note: %w", err)
			}

			return recordCapture(ctx, cc, st, "voicenote", id, reportID)
		},
	}

	addCaptureFlags(cmd, &reportID, &defectID, &file, &mimeType)
	cmd.Flags().Int64Var(&durationMs, "duration-ms", 0, "voice note duration in milliseconds")

	return cmd
}

func addCaptureFlags(cmd *cobra.Command, reportID, defectID, file, mimeType *string) {
	cmd.Flags().StringVar(reportID, "report-id", "", "report this evidence belongs to (required)")
	cmd.Flags().StringVar(defectID, "defect-id", "", "defect this evidence documents, if any")
	cmd.Flags().StringVar(file, "file", "", "path to the captured source file (required)")
	cmd.Flags().StringVar(mimeType, "mime-type", "image/jpeg", "MIME type of the source file")
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}

	return &s
}

func extFromMime(mimeType string) string {
	switch mimeType {
	case "image/png":
		return "png"
	case "video/mp4":
		return "mp4"
	case "audio/m4a", "audio/mp4":
		return "m4a"
	default:
		return "jpg"
	}
}

// recordCapture marks the report dirty and appends the CAPTURED custody
// event. Separated from the type-specific Save calls above because all
// three entity kinds share the same post-save bookkeeping.
func recordCapture(ctx context.Context, cc *CLIContext, st *store.SQLiteStore, entityType, id, reportID string) error {
	if err := st.MarkReportDirty(ctx, reportID, store.NowNano()); err != nil {
		cc.Logger.Debug("capture: marking report dirty skipped", "error", err)
	}

	cl := newCustodyLog(st, cc.Logger)

	userID, userName, actorErr := currentActor(cc)
	if actorErr != nil {
		cc.Logger.Warn("capture: no acting user resolved, custody event will carry an empty actor", "error", actorErr)
	}

	if err := cl.LogCaptured(ctx, entityType, id, userID, userName, nil); err != nil {
		return fmt.Errorf("recording custody event: %w", err)
	}

	cc.Statusf("Captured %s %s\n", entityType, id)

	return nil
}

package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"sync/atomic"

	"github.com/inspectcore/inspectcore/internal/netmon"
	"github.com/inspectcore/inspectcore/internal/store"
)

// pendingPhotoUpload is one entry from the bundle-upload response that
// still needs its binary pushed.
type pendingPhotoUpload struct {
	PhotoID   string
	UploadURL string
}

// uploadPhotos runs the two-phase photo upload for every pending entry,
// through the bounded worker pool. WiFi-gating defers
// large photos with a soft return rather than an error when the
// connection isn't WiFi.
func (e *Engine) uploadPhotos(ctx context.Context, pending []pendingPhotoUpload) UploadCounts {
	jobs := make([]job, len(pending))
	labels := make([]string, len(pending))

	var finished atomic.Int32

	for i, p := range pending {
		p := p
		labels[i] = "photo:" + p.PhotoID

		jobs[i] = func(ctx context.Context) jobResult {
			uploaded, err := e.uploadOnePhoto(ctx, p)

			e.callbacks.detailedProgress(DetailedProgress{
				Phase:       PhaseUploadingPhotos,
				CurrentItem: int(finished.Add(1)),
				TotalItems:  len(pending),
				ItemType:    "photo",
				Progress:    1,
			})

			if err != nil {
				return jobResult{Label: labels[i], Success: false, Err: err}
			}

			return jobResult{Label: labels[i], Success: uploaded}
		}
	}

	results := runJobs(ctx, e.logger, jobs, labels)

	var counts UploadCounts
	for _, r := range results {
		if r.Err != nil {
			e.logger.Warn("sync: photo upload failed", slog.String("label", r.Label), slog.String("error", r.Err.Error()))
			e.callbacks.errorf(classifyUploadErr(r.Err))

			continue
		}

		if r.Success {
			counts.Photos++
		}
	}

	return counts
}

// uploadOnePhoto performs steps 1-5 of the two-phase photo upload
// contract. Returns (false, nil) when the upload was soft-deferred by
// WiFi-gating — not an error, the photo stays dirty for the next sync.
func (e *Engine) uploadOnePhoto(ctx context.Context, p pendingPhotoUpload) (bool, error) {
	photo, err := e.store.GetPhoto(ctx, p.PhotoID)
	if err != nil {
		return false, fmt.Errorf("sync: loading photo %s: %w", p.PhotoID, err)
	}

	if photo == nil {
		return false, nil
	}

	if e.shouldDeferForWifi(photo.FileSize) {
		e.logger.Info("sync: deferring photo upload pending wifi", slog.String("photo_id", photo.ID))
		return false, nil
	}

	data, err := os.ReadFile(photo.OriginalPath)
	if err != nil {
		if os.IsNotExist(err) {
			return false, e.markPhotoFileMissing(ctx, photo)
		}

		return false, fmt.Errorf("sync: reading original for photo %s: %w", photo.ID, err)
	}

	if err := e.putPresigned(ctx, p.UploadURL, photo.MimeType, data); err != nil {
		return false, fmt.Errorf("sync: uploading photo %s: %w", photo.ID, err)
	}

	publicURL := stripQuery(p.UploadURL)

	if err := e.confirmUpload(ctx, "/photos/"+photo.ID+"/confirm-upload", publicURL); err != nil {
		// Best-effort: a failed confirmation never fails the sync.
		e.logger.Warn("sync: confirm-upload failed", slog.String("photo_id", photo.ID), slog.String("error", err.Error()))
	}

	photo.SyncStatus = store.BinaryStatusSynced
	photo.LastSyncError = nil
	photo.UploadedURL = publicURL

	if err := e.store.SavePhoto(ctx, photo); err != nil {
		return false, fmt.Errorf("sync: saving photo %s after upload: %w", photo.ID, err)
	}

	hashMismatch := e.verifyOriginalHash(photo.ID, photo.OriginalHash, "photo")

	if e.custody != nil {
		details := map[string]any{"hash": photo.OriginalHash, "publicUrl": publicURL, "hashMismatch": hashMismatch}
		if err := e.custody.LogSynced(ctx, "photo", photo.ID, e.actingUserID(), e.actingUserName(), details); err != nil {
			e.logger.Warn("sync: logging SYNCED custody event failed", slog.String("photo_id", photo.ID), slog.String("error", err.Error()))
		}
	}

	return true, nil
}

// verifyOriginalHash re-hashes the original file for id against
// expectedHash and reports whether it no longer matches: loud log,
// surfaced via onError, the row stays synced.
func (e *Engine) verifyOriginalHash(id, expectedHash, entityType string) bool {
	if e.vault == nil {
		return false
	}

	verifyErr := e.vault.Verify(id, expectedHash)
	if verifyErr == nil {
		return false
	}

	e.logger.Error("sync: original hash mismatch after upload",
		slog.String("entity_type", entityType), slog.String("entity_id", id), slog.String("error", verifyErr.Error()))

	e.callbacks.errorf(&SyncError{
		Kind:    ErrorKindHashMismatch,
		Message: fmt.Sprintf("%s %s: original hash mismatch after upload: %s", entityType, id, verifyErr.Error()),
		Err:     verifyErr,
	})

	return true
}

// markPhotoFileMissing parks a photo in BinaryStatusError when its
// original file is gone from disk. Unlike a
// transport failure, this is terminal: PendingSyncPhotos excludes
// error-status rows, so the photo is not retried on the next sync.
func (e *Engine) markPhotoFileMissing(ctx context.Context, photo *store.Photo) error {
	msg := fileMissingMessage(photo.OriginalPath)
	photo.SyncStatus = store.BinaryStatusError
	photo.LastSyncError = &msg

	if err := e.store.SavePhoto(ctx, photo); err != nil {
		return fmt.Errorf("sync: saving photo %s after file-missing: %w", photo.ID, err)
	}

	return &SyncError{Kind: ErrorKindFileMissing, Message: msg}
}

// shouldDeferForWifi reports whether an artifact of this size should be
// deferred because photosWifiOnly is set, the size exceeds the
// threshold, and the current connection isn't WiFi.
func (e *Engine) shouldDeferForWifi(fileSize int64) bool {
	if !e.config().Sync.PhotosWifiOnly {
		return false
	}

	thresholdBytes := int64(e.config().Sync.WifiOnlyThresholdMb) * 1024 * 1024
	if fileSize < thresholdBytes {
		return false
	}

	if e.netMon == nil {
		return false
	}

	status := e.netMon.Status()

	return status.Type != netmon.ConnTypeWifi
}

// putPresigned PUTs data to a presigned URL with the given content type.
// Presigned URLs are pre-authenticated, so no bearer token is attached.
func (e *Engine) putPresigned(ctx context.Context, rawURL, mimeType string, data []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, rawURL, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("sync: creating presigned PUT request: %w", err)
	}

	req.Header.Set("Content-Type", mimeType)
	req.ContentLength = int64(len(data))

	resp, err := e.uploadHTTP.Do(req)
	if err != nil {
		return fmt.Errorf("sync: presigned PUT failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("sync: presigned PUT returned status %d", resp.StatusCode)
	}

	return nil
}

// confirmUpload POSTs {publicUrl} to the confirm-upload endpoint through
// the authenticated client.
func (e *Engine) confirmUpload(ctx context.Context, path, publicURL string) error {
	body, err := json.Marshal(map[string]string{"publicUrl": publicURL})
	if err != nil {
		return fmt.Errorf("sync: marshaling confirm-upload body: %w", err)
	}

	resp, err := e.client.Do(ctx, http.MethodPost, path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return nil
}

// stripQuery removes query parameters from a presigned URL to derive
// its stable public URL.
func stripQuery(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}

	u.RawQuery = ""

	return u.String()
}

package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/inspectcore/inspectcore/internal/store"
)

// chunkAlignment is the granularity upload sessions expect: all chunks
// except the final one must be a multiple of this size. Kept as the
// default chunk size's floor so a misconfigured chunk_size_bytes still
// behaves.
const chunkAlignment = 320 * 1024

const entityTypeVideo = "video"

type videoPresignResponse struct {
	UploadURL  string `json:"uploadUrl"`
	PublicURL  string `json:"publicUrl"`
	SessionURL string `json:"sessionUrl,omitempty"`
}

type sessionStatusResponse struct {
	NextExpectedRanges []string `json:"nextExpectedRanges"`
}

// uploadVideos runs simple or chunked upload for each pending video
// depending on size vs. chunkedUploadThresholdBytes, through the bounded
// worker pool.
func (e *Engine) uploadVideos(ctx context.Context, videos []*store.Video) UploadCounts {
	jobs := make([]job, len(videos))
	labels := make([]string, len(videos))

	for i, v := range videos {
		v := v
		labels[i] = "video:" + v.ID

		jobs[i] = func(ctx context.Context) jobResult {
			uploaded, err := e.uploadOneVideo(ctx, v)
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
			e.logger.Warn("sync: video upload failed", slog.String("label", r.Label), slog.String("error", r.Err.Error()))
			e.callbacks.errorf(classifyUploadErr(r.Err))

			continue
		}

		if r.Success {
			counts.Videos++
		}
	}

	return counts
}

func (e *Engine) uploadOneVideo(ctx context.Context, video *store.Video) (bool, error) {
	if e.cancelled() {
		return false, nil
	}

	if e.shouldDeferForWifi(video.FileSize) {
		e.logger.Info("sync: deferring video upload pending wifi", slog.String("video_id", video.ID))
		return false, nil
	}

	if _, err := os.Stat(video.OriginalPath); err != nil {
		if os.IsNotExist(err) {
			return false, e.markVideoFileMissing(ctx, video)
		}

		return false, fmt.Errorf("sync: checking original for video %s: %w", video.ID, err)
	}

	presign, err := e.presignVideo(ctx, video)
	if err != nil {
		return false, fmt.Errorf("sync: presigning video %s: %w", video.ID, err)
	}

	var publicURL string

	threshold := e.config().Sync.ChunkedUploadThresholdBytes
	if threshold <= 0 {
		threshold = defaultChunkedUploadThresholdBytes
	}

	if video.FileSize >= threshold && presign.SessionURL != "" {
		publicURL, err = e.uploadVideoChunked(ctx, video, presign)
	} else {
		publicURL, err = e.uploadVideoSimple(ctx, video, presign)
	}

	if err != nil {
		return false, err
	}

	if publicURL == "" {
		// Cancelled mid-upload; row stays dirty, nothing more to do.
		return false, nil
	}

	// No confirm-upload step for videos: /photos/:id/confirm-upload is a
	// photo-only endpoint, and the chunked protocol has no confirmation
	// call of its own.

	video.SyncStatus = store.BinaryStatusSynced
	video.LastSyncError = nil
	video.UploadedURL = publicURL

	if err := e.store.SaveVideo(ctx, video); err != nil {
		return false, fmt.Errorf("sync: saving video %s after upload: %w", video.ID, err)
	}

	hashMismatch := e.verifyOriginalHash(video.ID, video.OriginalHash, entityTypeVideo)

	if e.custody != nil {
		details := map[string]any{"hash": video.OriginalHash, "publicUrl": publicURL, "hashMismatch": hashMismatch}
		if err := e.custody.LogSynced(ctx, entityTypeVideo, video.ID, e.actingUserID(), e.actingUserName(), details); err != nil {
			e.logger.Warn("sync: logging SYNCED custody event failed", slog.String("video_id", video.ID), slog.String("error", err.Error()))
		}
	}

	return true, nil
}

// markVideoFileMissing parks a video in BinaryStatusError when its
// original file is gone from disk. Excluded from retry by
// PendingSyncVideos.
func (e *Engine) markVideoFileMissing(ctx context.Context, video *store.Video) error {
	msg := fileMissingMessage(video.OriginalPath)
	video.SyncStatus = store.BinaryStatusError
	video.LastSyncError = &msg

	if err := e.store.SaveVideo(ctx, video); err != nil {
		return fmt.Errorf("sync: saving video %s after file-missing: %w", video.ID, err)
	}

	return &SyncError{Kind: ErrorKindFileMissing, Message: msg}
}

func (e *Engine) presignVideo(ctx context.Context, video *store.Video) (*videoPresignResponse, error) {
	body, err := json.Marshal(map[string]any{
		"videoId":  video.ID,
		"fileSize": video.FileSize,
		"mimeType": video.MimeType,
	})
	if err != nil {
		return nil, fmt.Errorf("sync: marshaling presign request: %w", err)
	}

	resp, err := e.client.Do(ctx, http.MethodPost, "/upload/video/presign", bytes.NewReader(body))
	if err != nil {
		return nil, e.classifyTransportErr(err)
	}
	defer resp.Body.Close()

	var pr videoPresignResponse
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		return nil, fmt.Errorf("sync: decoding presign response: %w", err)
	}

	return &pr, nil
}

func (e *Engine) uploadVideoSimple(ctx context.Context, video *store.Video, presign *videoPresignResponse) (string, error) {
	data, err := os.ReadFile(video.OriginalPath)
	if err != nil {
		return "", fmt.Errorf("sync: reading original for video %s: %w", video.ID, err)
	}

	if err := e.putPresigned(ctx, presign.UploadURL, video.MimeType, data); err != nil {
		return "", fmt.Errorf("sync: uploading video %s: %w", video.ID, err)
	}

	if presign.PublicURL != "" {
		return presign.PublicURL, nil
	}

	return stripQuery(presign.UploadURL), nil
}

// uploadVideoChunked drives the resumable chunked protocol: on first
// attempt it starts from offset 0; on resume it asks the server for the
// acknowledged offset before continuing. Progress is persisted after
// every chunk so a process restart mid-upload resumes rather than
// restarts.
func (e *Engine) uploadVideoChunked(ctx context.Context, video *store.Video, presign *videoPresignResponse) (string, error) {
	f, err := os.Open(video.OriginalPath)
	if err != nil {
		return "", fmt.Errorf("sync: opening original for video %s: %w", video.ID, err)
	}
	defer f.Close()

	sessionURL := presign.SessionURL

	offset, err := e.resumeOffset(ctx, video, sessionURL)
	if err != nil {
		return "", err
	}

	chunkSize := e.config().Sync.ChunkSizeBytes
	if chunkSize < chunkAlignment {
		chunkSize = defaultChunkSizeBytes
	}

	total := video.FileSize

	for offset < total {
		if e.cancelled() {
			return "", nil
		}

		length := chunkSize
		if offset+length > total {
			length = total - offset
		}

		reader := io.NewSectionReader(f, offset, length)

		done, err := e.putChunk(ctx, sessionURL, reader, offset, length, total)
		if err != nil {
			return "", fmt.Errorf("sync: uploading chunk for video %s at offset %d: %w", video.ID, offset, err)
		}

		offset += length

		if saveErr := e.store.SaveUploadSession(ctx, &store.UploadSessionRecord{
			ID:            sessionRecordID(video.ID),
			EntityType:    entityTypeVideo,
			EntityID:      video.ID,
			SessionURL:    sessionURL,
			TotalBytes:    total,
			UploadedBytes: offset,
			CreatedAt:     store.NowNano(),
			UpdatedAt:     store.NowNano(),
		}); saveErr != nil {
			e.logger.Warn("sync: persisting upload session progress failed",
				slog.String("video_id", video.ID), slog.String("error", saveErr.Error()))
		}

		e.callbacks.detailedProgress(DetailedProgress{
			Phase: PhaseUploadingVideos, ItemType: entityTypeVideo,
			Progress: float64(offset) / float64(total),
		})

		if done {
			break
		}
	}

	if delErr := e.store.DeleteUploadSession(ctx, entityTypeVideo, video.ID); delErr != nil {
		e.logger.Warn("sync: clearing completed upload session failed",
			slog.String("video_id", video.ID), slog.String("error", delErr.Error()))
	}

	if presign.PublicURL != "" {
		return presign.PublicURL, nil
	}

	return stripQuery(sessionURL), nil
}

// resumeOffset returns the byte offset to continue from: 0 for a fresh
// session, or the server-reported acknowledged offset when a prior
// session row exists for this video (process restart mid-upload).
func (e *Engine) resumeOffset(ctx context.Context, video *store.Video, sessionURL string) (int64, error) {
	existing, err := e.store.UploadSessionForEntity(ctx, entityTypeVideo, video.ID)
	if err != nil {
		return 0, fmt.Errorf("sync: loading upload session for video %s: %w", video.ID, err)
	}

	if existing == nil {
		return 0, nil
	}

	offset, err := e.queryUploadOffset(ctx, sessionURL)
	if err != nil {
		// Fall back to the last locally-persisted offset rather than
		// restarting the whole upload from zero.
		e.logger.Warn("sync: querying upload session offset failed, resuming from last known offset",
			slog.String("video_id", video.ID), slog.String("error", err.Error()))

		return existing.UploadedBytes, nil
	}

	return offset, nil
}

// queryUploadOffset GETs the session URL to determine which byte ranges
// the server has already acknowledged, parsing the first range's start
// offset out of "bytes=N-".
func (e *Engine) queryUploadOffset(ctx context.Context, sessionURL string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sessionURL, http.NoBody)
	if err != nil {
		return 0, fmt.Errorf("sync: creating session query request: %w", err)
	}

	resp, err := e.uploadHTTP.Do(req)
	if err != nil {
		return 0, fmt.Errorf("sync: session query failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return 0, fmt.Errorf("sync: session query returned status %d", resp.StatusCode)
	}

	var status sessionStatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return 0, fmt.Errorf("sync: decoding session query response: %w", err)
	}

	if len(status.NextExpectedRanges) == 0 {
		return 0, nil
	}

	return parseRangeStart(status.NextExpectedRanges[0])
}

func parseRangeStart(r string) (int64, error) {
	r = strings.TrimPrefix(r, "bytes=")
	parts := strings.SplitN(r, "-", 2)

	start, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("sync: parsing range %q: %w", r, err)
	}

	return start, nil
}

// putChunk PUTs one chunk with a Content-Range header. Returns true when
// the server reports the upload complete (200/201); false for an
// intermediate chunk (202).
func (e *Engine) putChunk(ctx context.Context, sessionURL string, chunk io.Reader, offset, length, total int64) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, sessionURL, chunk)
	if err != nil {
		return false, fmt.Errorf("sync: creating chunk request: %w", err)
	}

	req.Header.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", offset, offset+length-1, total))
	req.Header.Set("Content-Type", "application/octet-stream")
	req.ContentLength = length

	resp, err := e.uploadHTTP.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusAccepted:
		_, _ = io.Copy(io.Discard, resp.Body)
		return false, nil
	case http.StatusOK, http.StatusCreated:
		return true, nil
	default:
		return false, fmt.Errorf("sync: chunk upload returned unexpected status %d", resp.StatusCode)
	}
}

func sessionRecordID(videoID string) string {
	return "upload-" + videoID
}

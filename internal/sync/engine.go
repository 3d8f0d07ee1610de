package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"github.com/inspectcore/inspectcore/internal/config"
	"github.com/inspectcore/inspectcore/internal/store"
	"github.com/inspectcore/inspectcore/internal/transport"
)

// Defaults applied when the resolved config leaves these at zero.
const (
	defaultChunkedUploadThresholdBytes = 10 * 1024 * 1024
	defaultChunkSizeBytes              = 10 * 1024 * 1024
	defaultAutoSyncIntervalMs          = 5 * 60 * 1000
)

// Engine is the bidirectional sync protocol driver: bootstrap (down-sync
// only), full_sync (upload then download), and the background auto-sync
// loop. Exactly one sync runs at a time, guarded by isSyncing; the
// phased upload/download state machine keeps cancellation and retry
// decisions on well-defined boundaries.
type Engine struct {
	store   Store
	custody CustodyLog
	vault   Vault
	client  HTTPClient
	// uploadHTTP is a plain, unauthenticated HTTP client for presigned
	// URLs (photo/video binary PUTs and chunk session URLs): presigned
	// URLs already carry their own auth, so no bearer token is attached.
	uploadHTTP *http.Client
	netMon     NetMonitor
	// cfgHolder is read on every sync pass rather than cached once, so a
	// config reload (cmd/inspectcore's CLIContext writing through the same
	// Holder) is visible to the next FullSync/UploadPending call without
	// restarting the engine.
	cfgHolder *config.Holder
	logger    *slog.Logger
	callbacks Callbacks

	actorUserID   string
	actorUserName string

	isSyncing  atomic.Bool
	cancelFlag atomic.Bool

	autoStop chan struct{}
	autoWG   chan struct{}
}

// NewEngine constructs an Engine. client and uploadHTTP may be the same
// *transport.Client's underlying *http.Client in production; tests
// substitute stubs for both independently. cfgHolder is read through on
// every sync pass: the CLI's foreground commands and this engine's
// background auto-sync goroutine may both be reading config at once.
func NewEngine(
	s Store,
	custody CustodyLog,
	v Vault,
	client HTTPClient,
	uploadHTTP *http.Client,
	netMon NetMonitor,
	cfgHolder *config.Holder,
	logger *slog.Logger,
	callbacks Callbacks,
) *Engine {
	if logger == nil {
		logger = slog.Default()
	}

	if uploadHTTP == nil {
		uploadHTTP = http.DefaultClient
	}

	return &Engine{
		store:      s,
		custody:    custody,
		vault:      v,
		client:     client,
		uploadHTTP: uploadHTTP,
		netMon:     netMon,
		cfgHolder:  cfgHolder,
		logger:     logger,
		callbacks:  callbacks,
	}
}

// config returns the current config snapshot through cfgHolder's
// read lock.
func (e *Engine) config() *config.Config {
	return e.cfgHolder.Config()
}

// SetActor records the signed-in user's id and display name, attached
// to every SYNCED custody event this engine emits.
func (e *Engine) SetActor(userID, userName string) {
	e.actorUserID = userID
	e.actorUserName = userName
}

func (e *Engine) actingUserID() string   { return e.actorUserID }
func (e *Engine) actingUserName() string { return e.actorUserName }

// Cancel requests the current sync stop at the next safe checkpoint
// (between entities or between chunks).
func (e *Engine) Cancel() {
	e.cancelFlag.Store(true)
}

func (e *Engine) cancelled() bool {
	return e.cancelFlag.Load()
}

// errCancelledMidUpload signals that uploadPhases stopped early because
// Cancel was called; it never leaves this file, callers translate it
// back into the cancel (not fail) path.
var errCancelledMidUpload = errors.New("sync: cancelled mid-upload")

// FullSync uploads pending local changes then downloads server state,
// transitioning through every phase of the state machine:
// Idle -> CheckingHealth -> UploadingReports -> UploadingPhotos ->
// UploadingVideos -> UploadingVoiceNotes -> FlushingCustody ->
// Downloading -> Done|Failed|Cancelled.
func (e *Engine) FullSync(ctx context.Context) (Result, error) {
	if !e.isSyncing.CompareAndSwap(false, true) {
		return Result{}, ErrSyncInProgress
	}
	defer e.isSyncing.Store(false)

	e.cancelFlag.Store(false)

	start := nowFunc()
	result := Result{}

	uploaded, conflicts, err := e.uploadPhases(ctx)
	result.Uploaded = uploaded
	result.Conflicts = conflicts

	if err != nil {
		if errors.Is(err, errCancelledMidUpload) {
			return e.cancel(result, start)
		}

		return e.fail(result, start, err)
	}

	if e.cancelled() {
		return e.cancel(result, start)
	}

	// Step 7: Downloading.
	e.transition(PhaseDownloading)

	downloadCounts, err := e.bootstrapInline(ctx)
	if err != nil {
		return e.fail(result, start, err)
	}

	result.Downloaded = downloadCounts

	// Step 8/9: Done.
	e.transition(PhaseDone)

	result.Phase = PhaseDone
	result.DurationMs = nowFunc().Sub(start).Milliseconds()
	e.callbacks.syncComplete(result)

	return result, nil
}

// uploadPhases runs steps 1-6 of the sync state machine — everything
// upload_pending and full_sync share — stopping short of bootstrap's
// download phase. Shared by FullSync and UploadPending so upload_pending
// can genuinely skip the download half rather than alias full_sync.
func (e *Engine) uploadPhases(ctx context.Context) (UploadCounts, []Conflict, error) {
	var uploaded UploadCounts

	// Step 1: CheckingHealth.
	e.transition(PhaseCheckingHealth)

	if err := e.checkHealth(ctx); err != nil {
		return uploaded, nil, err
	}

	if e.cancelled() {
		return uploaded, nil, errCancelledMidUpload
	}

	// Step 2: UploadingReports.
	e.transition(PhaseUploadingReports)

	bundleResp, err := e.uploadReportBundles(ctx)
	if err != nil {
		return uploaded, nil, err
	}

	var conflicts []Conflict

	if bundleResp != nil {
		conflicts, err = applyUploadResponse(ctx, e.store, bundleResp)
		if err != nil {
			return uploaded, nil, err
		}

		uploaded.Reports = len(bundleResp.Results.SyncedReports)
		e.callbacks.conflict(conflicts)
	}

	// Out-of-band actions ride directly behind the bundles they refer to,
	// still within the UploadingReports phase.
	uploaded.Operations = e.processQueueItems(ctx)

	if e.cancelled() {
		return uploaded, conflicts, errCancelledMidUpload
	}

	// Step 3: UploadingPhotos — binaries the bundle response flagged.
	e.transition(PhaseUploadingPhotos)

	if bundleResp != nil {
		pending := make([]pendingPhotoUpload, 0, len(bundleResp.Results.PendingPhotoUploads))
		for _, p := range bundleResp.Results.PendingPhotoUploads {
			pending = append(pending, pendingPhotoUpload{PhotoID: p.PhotoID, UploadURL: p.UploadURL})
		}

		photoCounts := e.uploadPhotos(ctx, pending)
		uploaded.Photos = photoCounts.Photos
	}

	if e.cancelled() {
		return uploaded, conflicts, errCancelledMidUpload
	}

	// Step 4: UploadingVideos.
	e.transition(PhaseUploadingVideos)

	videos, err := e.store.PendingSyncVideos(ctx)
	if err != nil {
		return uploaded, conflicts, fmt.Errorf("sync: listing pending videos: %w", err)
	}

	videoCounts := e.uploadVideos(ctx, videos)
	uploaded.Videos = videoCounts.Videos

	if e.cancelled() {
		return uploaded, conflicts, errCancelledMidUpload
	}

	// Step 5: UploadingVoiceNotes.
	e.transition(PhaseUploadingVoiceNotes)

	voiceCounts, err := e.uploadVoiceNotes(ctx)
	if err != nil {
		return uploaded, conflicts, err
	}

	uploaded.VoiceNotes = voiceCounts.VoiceNotes

	if e.cancelled() {
		return uploaded, conflicts, errCancelledMidUpload
	}

	// Step 6: FlushingCustody — non-blocking, never fails the sync.
	e.transition(PhaseFlushingCustody)
	e.flushCustodyEvents(ctx)

	if err := e.store.SetLastUploadAt(ctx, store.NowNano()); err != nil {
		e.logger.Warn("sync: recording last upload time failed", "error", err.Error())
	}

	return uploaded, conflicts, nil
}

// checkHealth pings /health with the configured health timeout. A
// failure here aborts the sync before any upload is attempted.
func (e *Engine) checkHealth(ctx context.Context) error {
	timeout := e.config().Timeouts().Health

	hctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := e.client.Do(hctx, http.MethodGet, "/health", nil)
	if err != nil {
		return e.classifyTransportErr(err)
	}
	defer resp.Body.Close()

	return nil
}

// uploadReportBundles gathers and POSTs the pending report bundles.
// A report with zero children still syncs: the engine issues the POST
// whenever at least one report is pending, and skips the request
// entirely otherwise.
func (e *Engine) uploadReportBundles(ctx context.Context) (*uploadResponse, error) {
	bundles, err := gatherBundles(ctx, e.store, e.config().Sync.SyncBatchSize)
	if err != nil {
		return nil, err
	}

	if len(bundles) == 0 {
		return nil, nil
	}

	payload := uploadPayload{Bundles: bundles}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("sync: marshaling upload payload: %w", err)
	}

	resp, err := e.client.Do(ctx, http.MethodPost, "/sync/upload", bytes.NewReader(body))
	if err != nil {
		return nil, e.classifyTransportErr(err)
	}
	defer resp.Body.Close()

	var ur uploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&ur); err != nil {
		return nil, fmt.Errorf("sync: decoding upload response: %w", err)
	}

	return &ur, nil
}

// uploadVoiceNotes uploads every pending voice note via the single-PUT
// presigned flow; voice notes are never chunked.
func (e *Engine) uploadVoiceNotes(ctx context.Context) (UploadCounts, error) {
	notes, err := e.store.PendingSyncVoiceNotes(ctx)
	if err != nil {
		return UploadCounts{}, fmt.Errorf("sync: listing pending voice notes: %w", err)
	}

	jobs := make([]job, len(notes))
	labels := make([]string, len(notes))

	for i, vn := range notes {
		vn := vn
		labels[i] = "voicenote:" + vn.ID

		jobs[i] = func(ctx context.Context) jobResult {
			uploaded, err := e.uploadOneVoiceNote(ctx, vn)
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
			e.logger.Warn("sync: voice note upload failed", slog.String("label", r.Label), slog.String("error", r.Err.Error()))
			e.callbacks.errorf(classifyUploadErr(r.Err))

			continue
		}

		if r.Success {
			counts.VoiceNotes++
		}
	}

	return counts, nil
}

func (e *Engine) uploadOneVoiceNote(ctx context.Context, vn *store.VoiceNote) (bool, error) {
	if e.cancelled() {
		return false, nil
	}

	body, err := json.Marshal(map[string]any{
		"voiceNoteId": vn.ID,
		"fileSize":    vn.FileSize,
		"mimeType":    vn.MimeType,
	})
	if err != nil {
		return false, fmt.Errorf("sync: marshaling voice note presign request: %w", err)
	}

	resp, err := e.client.Do(ctx, http.MethodPost, "/upload/voice-note/presign", bytes.NewReader(body))
	if err != nil {
		return false, e.classifyTransportErr(err)
	}
	defer resp.Body.Close()

	var presign videoPresignResponse
	if err := json.NewDecoder(resp.Body).Decode(&presign); err != nil {
		return false, fmt.Errorf("sync: decoding voice note presign response: %w", err)
	}

	data, err := os.ReadFile(vn.OriginalPath)
	if err != nil {
		if os.IsNotExist(err) {
			return false, e.markVoiceNoteFileMissing(ctx, vn)
		}

		return false, fmt.Errorf("sync: reading original for voice note %s: %w", vn.ID, err)
	}

	if err := e.putPresigned(ctx, presign.UploadURL, vn.MimeType, data); err != nil {
		return false, fmt.Errorf("sync: uploading voice note %s: %w", vn.ID, err)
	}

	publicURL := presign.PublicURL
	if publicURL == "" {
		publicURL = stripQuery(presign.UploadURL)
	}

	vn.SyncStatus = store.BinaryStatusSynced
	vn.LastSyncError = nil
	vn.UploadedURL = publicURL

	if err := e.store.SaveVoiceNote(ctx, vn); err != nil {
		return false, fmt.Errorf("sync: saving voice note %s after upload: %w", vn.ID, err)
	}

	if e.custody != nil {
		details := map[string]string{"hash": vn.OriginalHash, "publicUrl": publicURL}
		if err := e.custody.LogSynced(ctx, "voice_note", vn.ID, e.actingUserID(), e.actingUserName(), details); err != nil {
			e.logger.Warn("sync: logging SYNCED custody event failed", slog.String("voice_note_id", vn.ID), slog.String("error", err.Error()))
		}
	}

	return true, nil
}

// markVoiceNoteFileMissing parks a voice note in BinaryStatusError when
// its original file is gone from disk. Excluded from retry by
// PendingSyncVoiceNotes.
func (e *Engine) markVoiceNoteFileMissing(ctx context.Context, vn *store.VoiceNote) error {
	msg := fileMissingMessage(vn.OriginalPath)
	vn.SyncStatus = store.BinaryStatusError
	vn.LastSyncError = &msg

	if err := e.store.SaveVoiceNote(ctx, vn); err != nil {
		return fmt.Errorf("sync: saving voice note %s after file-missing: %w", vn.ID, err)
	}

	return &SyncError{Kind: ErrorKindFileMissing, Message: msg}
}

// UploadPending runs only the upload half of the sync state machine:
// checking health through flushing custody, with no bootstrap/download
// phase. Shares the same isSyncing guard as FullSync, so the two never
// run concurrently.
func (e *Engine) UploadPending(ctx context.Context) (UploadResult, error) {
	if !e.isSyncing.CompareAndSwap(false, true) {
		return UploadResult{}, ErrSyncInProgress
	}
	defer e.isSyncing.Store(false)

	e.cancelFlag.Store(false)

	start := nowFunc()

	uploaded, conflicts, err := e.uploadPhases(ctx)

	result := UploadResult{
		Uploaded:   uploaded,
		Conflicts:  conflicts,
		DurationMs: nowFunc().Sub(start).Milliseconds(),
	}

	if err != nil {
		if errors.Is(err, errCancelledMidUpload) {
			return result, nil
		}

		result.Errors = append(result.Errors, err)

		var syncErr *SyncError
		if !errors.As(err, &syncErr) {
			syncErr = &SyncError{Kind: ErrorKindInternal, Message: err.Error(), Err: err}
		}

		e.callbacks.errorf(syncErr)

		return result, err
	}

	return result, nil
}

// RetryFailed resets error-state rows back to pending/captured, then
// invokes FullSync.
func (e *Engine) RetryFailed(ctx context.Context) (Result, error) {
	if err := e.resetErrorRows(ctx); err != nil {
		return Result{}, err
	}

	return e.FullSync(ctx)
}

func (e *Engine) resetErrorRows(ctx context.Context) error {
	reports, err := e.store.PendingSyncReports(ctx)
	if err != nil {
		return fmt.Errorf("sync: listing reports for retry: %w", err)
	}

	for _, r := range reports {
		if r.SyncStatus != store.SyncStatusError {
			continue
		}

		r.SyncStatus = store.SyncStatusPending
		r.LastSyncError = nil

		if err := e.store.SaveReport(ctx, r); err != nil {
			return fmt.Errorf("sync: resetting report %s for retry: %w", r.ID, err)
		}
	}

	return nil
}

// StartAuto launches a background goroutine that calls FullSync every
// intervalMs, plus an opportunistic UploadPending on every offline->online
// transition reported by the network monitor. Call StopAuto to end it.
func (e *Engine) StartAuto(ctx context.Context, intervalMs int) {
	if intervalMs <= 0 {
		intervalMs = defaultAutoSyncIntervalMs
	}

	e.autoStop = make(chan struct{})
	e.autoWG = make(chan struct{})

	go e.autoLoop(ctx, time.Duration(intervalMs)*time.Millisecond)
}

// StopAuto stops the background auto-sync loop started by StartAuto and
// waits for it to exit.
func (e *Engine) StopAuto() {
	if e.autoStop == nil {
		return
	}

	close(e.autoStop)
	<-e.autoWG
	e.autoStop = nil
}

func (e *Engine) autoLoop(ctx context.Context, interval time.Duration) {
	defer close(e.autoWG)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var transitions <-chan struct{}
	if e.netMon != nil {
		transitions = e.netMon.OnlineTransitions()
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.autoStop:
			return
		case <-ticker.C:
			e.triggerAutoSync(ctx)
		case <-transitions:
			// A single opportunistic UploadPending, not a FullSync:
			// the interesting event on network restore is pushing what
			// piled up, not a fresh download pass.
			e.triggerUploadPending(ctx)
		}
	}
}

func (e *Engine) triggerAutoSync(ctx context.Context) {
	if _, err := e.FullSync(ctx); err != nil && !errors.Is(err, ErrSyncInProgress) {
		e.logger.Warn("sync: auto-sync run failed", "error", err.Error())
	}
}

func (e *Engine) triggerUploadPending(ctx context.Context) {
	if _, err := e.UploadPending(ctx); err != nil && !errors.Is(err, ErrSyncInProgress) {
		e.logger.Warn("sync: opportunistic upload_pending failed", "error", err.Error())
	}
}

// phaseProgress maps each phase onto a coarse overall-completion
// fraction for the onProgress callback; fine-grained per-item progress
// arrives separately through onDetailedProgress.
var phaseProgress = map[Phase]float64{
	PhaseIdle:                0,
	PhaseCheckingHealth:      0.05,
	PhaseUploadingReports:    0.15,
	PhaseUploadingPhotos:     0.35,
	PhaseUploadingVideos:     0.55,
	PhaseUploadingVoiceNotes: 0.70,
	PhaseFlushingCustody:     0.80,
	PhaseDownloading:         0.90,
	PhaseDone:                1,
	PhaseFailed:              1,
	PhaseCancelled:           1,
}

func (e *Engine) transition(phase Phase) {
	e.callbacks.statusChange(phase)
	e.callbacks.progress(phase, phaseProgress[phase])
}

func (e *Engine) fail(result Result, start time.Time, err error) (Result, error) {
	e.transition(PhaseFailed)

	result.Phase = PhaseFailed
	result.Errors = append(result.Errors, err)
	result.DurationMs = nowFunc().Sub(start).Milliseconds()

	var syncErr *SyncError
	if !errors.As(err, &syncErr) {
		syncErr = &SyncError{Kind: ErrorKindInternal, Message: err.Error(), Err: err}
	}

	e.callbacks.errorf(syncErr)
	e.callbacks.syncComplete(result)

	return result, err
}

func (e *Engine) cancel(result Result, start time.Time) (Result, error) {
	e.transition(PhaseCancelled)

	result.Phase = PhaseCancelled
	result.DurationMs = nowFunc().Sub(start).Milliseconds()
	e.callbacks.syncComplete(result)

	return result, nil
}

// classifyTransportErr maps a *transport.Error's sentinel into a
// *SyncError, cancelling the in-flight sync and notifying onUnauthorized
// on 401 — the engine must never loop on a dead token. The transport
// layer already debounces repeated 401s across concurrent requests
// (transport.Client.notifyUnauthorized); this just forwards that signal
// to the host.
func (e *Engine) classifyTransportErr(err error) error {
	var terr *transport.Error

	if errors.As(err, &terr) {
		if errors.Is(terr, transport.ErrUnauthorized) {
			e.cancelFlag.Store(true)

			if e.callbacks.OnUnauthorized != nil {
				e.callbacks.OnUnauthorized()
			}

			return &SyncError{Kind: ErrorKindUnauthorized, RequestID: terr.RequestID, Message: terr.Message, Err: err}
		}

		return &SyncError{Kind: ErrorKindServer, RequestID: terr.RequestID, Message: terr.Message, Err: err}
	}

	return &SyncError{Kind: ErrorKindNetwork, Message: err.Error(), Err: err}
}

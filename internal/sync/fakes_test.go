package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	stdsync "sync"

	"github.com/inspectcore/inspectcore/internal/netmon"
	"github.com/inspectcore/inspectcore/internal/store"
)

// fakeStore is an in-memory stand-in for *store.SQLiteStore, implementing
// just the Store interface's subset. Not goroutine-safe beyond what a
// mutex buys it, matching the scope real tests need.
type fakeStore struct {
	mu stdsync.Mutex

	reports    map[string]*store.Report
	elements   map[string][]*store.RoofElement
	defects    map[string][]*store.Defect
	compliance map[string]*store.ComplianceAssessment
	photos     map[string]*store.Photo
	videos     map[string]*store.Video
	voiceNotes map[string]*store.VoiceNote

	users      map[string]*store.User
	checklists map[string]*store.Checklist
	templates  map[string]*store.Template

	syncState *store.SyncState

	uploadSessions map[string]*store.UploadSessionRecord

	queueItems  []*store.SyncQueueItem
	nextQueueID int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		reports:        map[string]*store.Report{},
		elements:       map[string][]*store.RoofElement{},
		defects:        map[string][]*store.Defect{},
		compliance:     map[string]*store.ComplianceAssessment{},
		photos:         map[string]*store.Photo{},
		videos:         map[string]*store.Video{},
		voiceNotes:     map[string]*store.VoiceNote{},
		users:          map[string]*store.User{},
		checklists:     map[string]*store.Checklist{},
		templates:      map[string]*store.Template{},
		syncState:      &store.SyncState{},
		uploadSessions: map[string]*store.UploadSessionRecord{},
	}
}

func (f *fakeStore) SaveUser(ctx context.Context, u *store.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.users[u.ID] = u

	return nil
}

func (f *fakeStore) PendingSyncReports(ctx context.Context) ([]*store.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []*store.Report
	for _, r := range f.reports {
		if r.SyncStatus.IsDirty() {
			out = append(out, r)
		}
	}

	return out, nil
}

func (f *fakeStore) GetReport(ctx context.Context, id string) (*store.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.reports[id], nil
}

func (f *fakeStore) SaveReport(ctx context.Context, r *store.Report) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.reports[r.ID] = r

	return nil
}

func (f *fakeStore) ElementsByReport(ctx context.Context, reportID string) ([]*store.RoofElement, error) {
	return f.elements[reportID], nil
}

func (f *fakeStore) DefectsByReport(ctx context.Context, reportID string) ([]*store.Defect, error) {
	return f.defects[reportID], nil
}

func (f *fakeStore) ComplianceAssessmentByReport(ctx context.Context, reportID string) (*store.ComplianceAssessment, error) {
	return f.compliance[reportID], nil
}

func (f *fakeStore) PhotosByReport(ctx context.Context, reportID string) ([]*store.Photo, error) {
	var out []*store.Photo
	for _, p := range f.photos {
		if p.ReportID == reportID {
			out = append(out, p)
		}
	}

	return out, nil
}

func (f *fakeStore) VideosByReport(ctx context.Context, reportID string) ([]*store.Video, error) {
	var out []*store.Video
	for _, v := range f.videos {
		if v.ReportID == reportID {
			out = append(out, v)
		}
	}

	return out, nil
}

func (f *fakeStore) VoiceNotesByReport(ctx context.Context, reportID string) ([]*store.VoiceNote, error) {
	var out []*store.VoiceNote
	for _, vn := range f.voiceNotes {
		if vn.ReportID == reportID {
			out = append(out, vn)
		}
	}

	return out, nil
}

func (f *fakeStore) GetPhoto(ctx context.Context, id string) (*store.Photo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.photos[id], nil
}

func (f *fakeStore) SavePhoto(ctx context.Context, p *store.Photo) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.photos[p.ID] = p

	return nil
}

func (f *fakeStore) PendingSyncPhotos(ctx context.Context) ([]*store.Photo, error) {
	var out []*store.Photo
	for _, p := range f.photos {
		if p.SyncStatus.IsDirty() {
			out = append(out, p)
		}
	}

	return out, nil
}

func (f *fakeStore) GetVideo(ctx context.Context, id string) (*store.Video, error) {
	return f.videos[id], nil
}

func (f *fakeStore) SaveVideo(ctx context.Context, v *store.Video) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.videos[v.ID] = v

	return nil
}

func (f *fakeStore) PendingSyncVideos(ctx context.Context) ([]*store.Video, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []*store.Video
	for _, v := range f.videos {
		if v.SyncStatus.IsDirty() {
			out = append(out, v)
		}
	}

	return out, nil
}

func (f *fakeStore) GetVoiceNote(ctx context.Context, id string) (*store.VoiceNote, error) {
	return f.voiceNotes[id], nil
}

func (f *fakeStore) SaveVoiceNote(ctx context.Context, vn *store.VoiceNote) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.voiceNotes[vn.ID] = vn

	return nil
}

func (f *fakeStore) PendingSyncVoiceNotes(ctx context.Context) ([]*store.VoiceNote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []*store.VoiceNote
	for _, vn := range f.voiceNotes {
		if vn.SyncStatus.IsDirty() {
			out = append(out, vn)
		}
	}

	return out, nil
}

func (f *fakeStore) SaveChecklist(ctx context.Context, c *store.Checklist) error {
	f.checklists[c.ID] = c
	return nil
}

func (f *fakeStore) SaveTemplate(ctx context.Context, t *store.Template) error {
	f.templates[t.ID] = t
	return nil
}

func (f *fakeStore) enqueue(item *store.SyncQueueItem) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.nextQueueID++
	item.ID = f.nextQueueID
	f.queueItems = append(f.queueItems, item)

	return item.ID
}

func (f *fakeStore) PendingQueueItems(ctx context.Context) ([]*store.SyncQueueItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []*store.SyncQueueItem
	for _, item := range f.queueItems {
		if !item.PermanentlyFailedFlag {
			out = append(out, item)
		}
	}

	return out, nil
}

func (f *fakeStore) RecordQueueItemFailure(ctx context.Context, id int64, errMsg string, permanentlyFailed bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, item := range f.queueItems {
		if item.ID == id {
			item.AttemptCount++
			item.LastError = &errMsg
			item.PermanentlyFailedFlag = permanentlyFailed
		}
	}

	return nil
}

func (f *fakeStore) DeleteQueueItem(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	kept := f.queueItems[:0]
	for _, item := range f.queueItems {
		if item.ID != id {
			kept = append(kept, item)
		}
	}

	f.queueItems = kept

	return nil
}

func (f *fakeStore) GetSyncState(ctx context.Context) (*store.SyncState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	state := *f.syncState

	return &state, nil
}

func (f *fakeStore) SetLastBootstrapAt(ctx context.Context, at int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.syncState.LastBootstrapAt = &at

	return nil
}

func (f *fakeStore) SetLastUploadAt(ctx context.Context, at int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.syncState.LastUploadAt = &at

	return nil
}

// lastUploadAt is a test-only helper for race-free reads of syncState
// from a goroutine other than the one driving the engine.
func (f *fakeStore) lastUploadAt() *int64 {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.syncState.LastUploadAt
}

func (f *fakeStore) SaveUploadSession(ctx context.Context, r *store.UploadSessionRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.uploadSessions[r.EntityType+":"+r.EntityID] = r

	return nil
}

func (f *fakeStore) UploadSessionForEntity(ctx context.Context, entityType, entityID string) (*store.UploadSessionRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.uploadSessions[entityType+":"+entityID], nil
}

func (f *fakeStore) DeleteUploadSession(ctx context.Context, entityType, entityID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	delete(f.uploadSessions, entityType+":"+entityID)

	return nil
}

// fakeCustody is an in-memory CustodyLog.
type fakeCustody struct {
	mu      stdsync.Mutex
	synced  []*store.CustodyEvent
	unsent  []*store.CustodyEvent
	markErr error
}

func (f *fakeCustody) LogSynced(ctx context.Context, entityType, entityID, userID, userName string, details any) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	raw, _ := json.Marshal(details)
	f.synced = append(f.synced, &store.CustodyEvent{
		EntityType: entityType, EntityID: entityID, UserID: userID, UserName: userName, DetailsJSON: raw,
	})

	return nil
}

func (f *fakeCustody) UnsyncedEvents(ctx context.Context) ([]*store.CustodyEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.unsent, nil
}

func (f *fakeCustody) MarkSynced(ctx context.Context, ids []int64) error {
	if f.markErr != nil {
		return f.markErr
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	remaining := f.unsent[:0]

	for _, ev := range f.unsent {
		keep := true

		for _, id := range ids {
			if ev.ID == id {
				keep = false
				break
			}
		}

		if keep {
			remaining = append(remaining, ev)
		}
	}

	f.unsent = remaining

	return nil
}

// fakeVault is a Vault stub whose Verify outcome is scripted per id.
type fakeVault struct {
	mismatches map[string]bool
}

func (v *fakeVault) Verify(id, expectedHash string) error {
	if v.mismatches != nil && v.mismatches[id] {
		return errors.New("hash mismatch")
	}

	return nil
}

// fakeNetMon is a NetMonitor stub with a fixed Status and an optional
// transitions channel.
type fakeNetMon struct {
	status      netmon.Status
	transitions chan struct{}
}

func (n *fakeNetMon) Status() netmon.Status {
	return n.status
}

func (n *fakeNetMon) OnlineTransitions() <-chan struct{} {
	if n.transitions == nil {
		return nil
	}

	return n.transitions
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// stubHTTPClient is a real net/http-backed HTTPClient pointed at an
// httptest.Server, exactly mirroring what *transport.Client does minus
// retry/auth — the sync package tests its own logic, not transport's.
type stubHTTPClient struct {
	baseURL string
}

func newStubHTTPClient(baseURL string) *stubHTTPClient {
	return &stubHTTPClient{baseURL: baseURL}
}

func (c *stubHTTPClient) Do(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	return c.DoWithHeaders(ctx, method, path, body, nil)
}

// DoWithHeaders mirrors *transport.Client's status-code contract: a
// non-2xx response is surfaced as an error rather than returned to the
// caller, since every internal/sync file that calls Do assumes that.
func (c *stubHTTPClient) DoWithHeaders(ctx context.Context, method, path string, body io.Reader, extraHeaders http.Header) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}

	for k, vs := range extraHeaders {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		resp.Body.Close()
		return nil, fmt.Errorf("stub transport: %s %s returned status %d", method, path, resp.StatusCode)
	}

	return resp, nil
}

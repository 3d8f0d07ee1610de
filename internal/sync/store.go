package sync

import (
	"context"

	"github.com/inspectcore/inspectcore/internal/store"
)

// Store is the subset of *store.SQLiteStore the sync engine needs.
// Defined here (consumer side) rather than imported as a concrete type
// so engine tests can substitute an in-memory fake without touching
// SQLite.
type Store interface {
	SaveUser(ctx context.Context, u *store.User) error

	PendingSyncReports(ctx context.Context) ([]*store.Report, error)
	GetReport(ctx context.Context, id string) (*store.Report, error)
	SaveReport(ctx context.Context, r *store.Report) error
	ElementsByReport(ctx context.Context, reportID string) ([]*store.RoofElement, error)
	DefectsByReport(ctx context.Context, reportID string) ([]*store.Defect, error)
	ComplianceAssessmentByReport(ctx context.Context, reportID string) (*store.ComplianceAssessment, error)
	PhotosByReport(ctx context.Context, reportID string) ([]*store.Photo, error)
	VideosByReport(ctx context.Context, reportID string) ([]*store.Video, error)
	VoiceNotesByReport(ctx context.Context, reportID string) ([]*store.VoiceNote, error)

	GetPhoto(ctx context.Context, id string) (*store.Photo, error)
	SavePhoto(ctx context.Context, p *store.Photo) error
	PendingSyncPhotos(ctx context.Context) ([]*store.Photo, error)

	GetVideo(ctx context.Context, id string) (*store.Video, error)
	SaveVideo(ctx context.Context, v *store.Video) error
	PendingSyncVideos(ctx context.Context) ([]*store.Video, error)

	GetVoiceNote(ctx context.Context, id string) (*store.VoiceNote, error)
	SaveVoiceNote(ctx context.Context, vn *store.VoiceNote) error
	PendingSyncVoiceNotes(ctx context.Context) ([]*store.VoiceNote, error)

	SaveChecklist(ctx context.Context, c *store.Checklist) error
	SaveTemplate(ctx context.Context, t *store.Template) error

	PendingQueueItems(ctx context.Context) ([]*store.SyncQueueItem, error)
	RecordQueueItemFailure(ctx context.Context, id int64, errMsg string, permanentlyFailed bool) error
	DeleteQueueItem(ctx context.Context, id int64) error

	GetSyncState(ctx context.Context) (*store.SyncState, error)
	SetLastBootstrapAt(ctx context.Context, at int64) error
	SetLastUploadAt(ctx context.Context, at int64) error

	SaveUploadSession(ctx context.Context, r *store.UploadSessionRecord) error
	UploadSessionForEntity(ctx context.Context, entityType, entityID string) (*store.UploadSessionRecord, error)
	DeleteUploadSession(ctx context.Context, entityType, entityID string) error
}

// CustodyLog is the subset of *custody.Log the sync engine needs to
// flush unsynced events and record SYNCED events post-upload.
type CustodyLog interface {
	LogSynced(ctx context.Context, entityType, entityID, userID, userName string, details any) error
	UnsyncedEvents(ctx context.Context) ([]*store.CustodyEvent, error)
	MarkSynced(ctx context.Context, ids []int64) error
}

// Vault is the subset of *vault.Vault the sync engine needs to read
// originals for upload and re-verify post-upload hashes.
type Vault interface {
	Verify(id, expectedHash string) error
}

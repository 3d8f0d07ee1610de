package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	_ "modernc.org/sqlite" // pure-Go SQLite driver, registers as "sqlite"
)

const (
	walJournalSizeLimit = 67108864 // 64 MiB WAL journal size limit
	maxOpenConns        = 1        // single writer, serialized through WAL
)

// Store is the persistence core's public contract, implemented by
// *SQLiteStore. The CLI works with *SQLiteStore directly; the sync engine
// declares its own narrower interface in internal/sync.
type Store interface {
	// Users.
	SaveUser(ctx context.Context, u *User) error
	GetUser(ctx context.Context, id string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)

	// Reports.
	SaveReport(ctx context.Context, r *Report) error
	GetReport(ctx context.Context, id string) (*Report, error)
	ReportsByStatus(ctx context.Context, status ReportStatus) ([]*Report, error)
	PendingSyncReports(ctx context.Context) ([]*Report, error)
	MarkReportDirty(ctx context.Context, reportID string, at int64) error
	DeleteReport(ctx context.Context, id string) error

	// Roof elements.
	SaveElement(ctx context.Context, e *RoofElement) error
	GetElement(ctx context.Context, id string) (*RoofElement, error)
	ElementsByReport(ctx context.Context, reportID string) ([]*RoofElement, error)
	DeleteElement(ctx context.Context, id string, at int64) error

	// Defects.
	SaveDefect(ctx context.Context, d *Defect) error
	GetDefect(ctx context.Context, id string) (*Defect, error)
	DefectsByReport(ctx context.Context, reportID string) ([]*Defect, error)
	NextDefectNumber(ctx context.Context, reportID string) (int, error)
	InsertDefectWithNumber(ctx context.Context, d *Defect) error
	DeleteDefect(ctx context.Context, id string, at int64) error

	// Photos.
	SavePhoto(ctx context.Context, p *Photo) error
	GetPhoto(ctx context.Context, id string) (*Photo, error)
	PhotosByReport(ctx context.Context, reportID string) ([]*Photo, error)
	PhotosForDefect(ctx context.Context, defectID string) ([]*Photo, error)
	PendingSyncPhotos(ctx context.Context) ([]*Photo, error)
	DeletePhoto(ctx context.Context, id string, at int64) error

	// Videos.
	SaveVideo(ctx context.Context, v *Video) error
	GetVideo(ctx context.Context, id string) (*Video, error)
	VideosByReport(ctx context.Context, reportID string) ([]*Video, error)
	PendingSyncVideos(ctx context.Context) ([]*Video, error)
	DeleteVideo(ctx context.Context, id string, at int64) error

	// Voice notes.
	SaveVoiceNote(ctx context.Context, v *VoiceNote) error
	GetVoiceNote(ctx context.Context, id string) (*VoiceNote, error)
	VoiceNotesByReport(ctx context.Context, reportID string) ([]*VoiceNote, error)
	PendingSyncVoiceNotes(ctx context.Context) ([]*VoiceNote, error)
	DeleteVoiceNote(ctx context.Context, id string, at int64) error

	// Compliance assessments.
	SaveComplianceAssessment(ctx context.Context, c *ComplianceAssessment) error
	ComplianceAssessmentByReport(ctx context.Context, reportID string) (*ComplianceAssessment, error)

	// Checklists and templates (read-mostly reference data).
	SaveChecklist(ctx context.Context, c *Checklist) error
	GetChecklist(ctx context.Context, id string) (*Checklist, error)
	ListChecklists(ctx context.Context) ([]*Checklist, error)
	SaveTemplate(ctx context.Context, t *Template) error
	GetTemplate(ctx context.Context, id string) (*Template, error)
	ListTemplates(ctx context.Context) ([]*Template, error)

	// Chain of custody.
	AppendCustodyEvent(ctx context.Context, e *CustodyEvent) error
	EventsFor(ctx context.Context, entityType, entityID string) ([]*CustodyEvent, error)
	UnsyncedEvents(ctx context.Context) ([]*CustodyEvent, error)
	MarkCustodyEventsSynced(ctx context.Context, ids []int64) error

	// Sync queue.
	EnqueueSyncItem(ctx context.Context, item *SyncQueueItem) (int64, error)
	PendingQueueItems(ctx context.Context) ([]*SyncQueueItem, error)
	RecordQueueItemFailure(ctx context.Context, id int64, errMsg string, permanentlyFailed bool) error
	DeleteQueueItem(ctx context.Context, id int64) error

	// Sync state.
	GetSyncState(ctx context.Context) (*SyncState, error)
	SetLastBootstrapAt(ctx context.Context, at int64) error
	SetLastUploadAt(ctx context.Context, at int64) error

	// Upload sessions (chunked/resumable uploads).
	SaveUploadSession(ctx context.Context, r *UploadSessionRecord) error
	UploadSessionForEntity(ctx context.Context, entityType, entityID string) (*UploadSessionRecord, error)
	DeleteUploadSession(ctx context.Context, entityType, entityID string) error

	Checkpoint() error
	Close() error
}

// SQLiteStore implements Store using an embedded SQLite database in WAL
// mode: a single *sql.DB, a logger, and prepared-statement groups keyed
// by domain.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger

	userStmts          userStatements
	reportStmts        reportStatements
	elementStmts       elementStatements
	defectStmts        defectStatements
	photoStmts         photoStatements
	videoStmts         videoStatements
	voiceNoteStmts     voiceNoteStatements
	complianceStmts    complianceStatements
	checklistStmts     checklistStatements
	templateStmts      templateStatements
	custodyStmts       custodyStatements
	queueStmts         queueStatements
	syncStateStmts     syncStateStatements
	uploadSessionStmts uploadSessionStatements
}

// NewStore opens the database at dbPath (":memory:" for tests), applies
// pragmas, runs migrations, and prepares every repeated statement.
func NewStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	logger.Info("opening store database", "path", dbPath)

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite: %w", err)
	}

	db.SetMaxOpenConns(maxOpenConns)

	if err := setPragmas(context.Background(), db, logger); err != nil {
		db.Close()
		return nil, err
	}

	if err := runMigrations(db, logger); err != nil {
		db.Close()
		return nil, err
	}

	s := &SQLiteStore{db: db, logger: logger}

	if err := s.prepareAllStatements(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: prepare statements: %w", err)
	}

	logger.Info("store database ready", "path", dbPath)

	return s, nil
}

func setPragmas(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	pragmas := []struct {
		sql  string
		desc string
	}{
		{"PRAGMA journal_mode = WAL", "WAL mode"},
		{"PRAGMA synchronous = FULL", "synchronous FULL"},
		{"PRAGMA foreign_keys = ON", "foreign keys"},
		{fmt.Sprintf("PRAGMA journal_size_limit = %d", walJournalSizeLimit), "journal size limit"},
	}

	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p.sql); err != nil {
			return fmt.Errorf("store: set pragma %s: %w", p.desc, err)
		}

		logger.Debug("pragma set", "pragma", p.desc)
	}

	return nil
}

// stmtDef maps a SQL string to the prepared statement pointer it should
// populate.
type stmtDef struct {
	dest **sql.Stmt
	sql  string
	name string
}

func prepareAll(ctx context.Context, db *sql.DB, defs []stmtDef) error {
	for i := range defs {
		stmt, err := db.PrepareContext(ctx, defs[i].sql)
		if err != nil {
			return fmt.Errorf("prepare %s: %w", defs[i].name, err)
		}

		*defs[i].dest = stmt
	}

	return nil
}

func (s *SQLiteStore) prepareAllStatements(ctx context.Context) error {
	preparers := []func(context.Context) error{
		s.prepareUserStmts,
		s.prepareReportStmts,
		s.prepareElementStmts,
		s.prepareDefectStmts,
		s.preparePhotoStmts,
		s.prepareVideoStmts,
		s.prepareVoiceNoteStmts,
		s.prepareComplianceStmts,
		s.prepareChecklistStmts,
		s.prepareTemplateStmts,
		s.prepareCustodyStmts,
		s.prepareQueueStmts,
		s.prepareSyncStateStmts,
		s.prepareUploadSessionStmts,
	}

	for _, prepare := range preparers {
		if err := prepare(ctx); err != nil {
			return err
		}
	}

	return nil
}

// deleteChildRow removes one child row by id and marks its parent report
// dirty in the same transaction — deletion is a child mutation like any
// other. Deleting a row that does not exist is a no-op, mirroring
// the (nil, nil) not-found convention on the Get side. The del statement
// must be a DELETE ... RETURNING report_id.
func (s *SQLiteStore) deleteChildRow(ctx context.Context, del *sql.Stmt, kind, id string, at int64) error {
	s.logger.Debug("deleting "+kind, "id", id)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin delete %s tx: %w", kind, err)
	}

	var reportID string

	delStmt := tx.StmtContext(ctx, del)

	err = delStmt.QueryRowContext(ctx, id).Scan(&reportID)
	if errors.Is(err, sql.ErrNoRows) {
		if rollbackErr := tx.Rollback(); rollbackErr != nil {
			return fmt.Errorf("store: rollback delete %s: %w", kind, rollbackErr)
		}

		return nil
	}

	if err != nil {
		rollbackErr := tx.Rollback()
		return fmt.Errorf("store: delete %s %s: %w (rollback: %v)", kind, id, err, rollbackErr)
	}

	markDirtyStmt := tx.StmtContext(ctx, s.reportStmts.markDirty)
	if _, err := markDirtyStmt.ExecContext(ctx, at, reportID); err != nil {
		rollbackErr := tx.Rollback()
		return fmt.Errorf("store: mark report dirty %s: %w (rollback: %v)", reportID, err, rollbackErr)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit delete %s tx: %w", kind, err)
	}

	return nil
}

// Checkpoint forces a WAL checkpoint, consolidating the WAL file into the
// main database file.
func (s *SQLiteStore) Checkpoint() error {
	s.logger.Debug("running WAL checkpoint")

	_, err := s.db.ExecContext(context.Background(), "PRAGMA wal_checkpoint(TRUNCATE)")
	if err != nil {
		return fmt.Errorf("store: wal checkpoint: %w", err)
	}

	return nil
}

// Close closes every prepared statement and the database connection.
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing store database")

	for _, stmt := range s.allStatements() {
		if stmt != nil {
			if err := stmt.Close(); err != nil {
				s.logger.Error("error closing statement", "error", err)
			}
		}
	}

	if err := s.db.Close(); err != nil {
		return fmt.Errorf("store: close database: %w", err)
	}

	return nil
}

func (s *SQLiteStore) allStatements() []*sql.Stmt {
	return []*sql.Stmt{
		s.userStmts.save, s.userStmts.get, s.userStmts.getByEmail,
		s.reportStmts.save, s.reportStmts.get, s.reportStmts.byStatus,
		s.reportStmts.pendingSync, s.reportStmts.markDirty,
		s.elementStmts.save, s.elementStmts.get, s.elementStmts.byReport, s.elementStmts.del,
		s.defectStmts.save, s.defectStmts.get, s.defectStmts.byReport,
		s.defectStmts.bumpSeq, s.defectStmts.del,
		s.photoStmts.save, s.photoStmts.get, s.photoStmts.byReport,
		s.photoStmts.byDefect, s.photoStmts.pendingSync, s.photoStmts.del,
		s.videoStmts.save, s.videoStmts.get, s.videoStmts.byReport, s.videoStmts.pendingSync, s.videoStmts.del,
		s.voiceNoteStmts.save, s.voiceNoteStmts.get, s.voiceNoteStmts.byReport, s.voiceNoteStmts.pendingSync, s.voiceNoteStmts.del,
		s.complianceStmts.save, s.complianceStmts.byReport,
		s.checklistStmts.save, s.checklistStmts.get, s.checklistStmts.list,
		s.templateStmts.save, s.templateStmts.get, s.templateStmts.list,
		s.custodyStmts.append, s.custodyStmts.eventsFor, s.custodyStmts.unsynced,
		s.queueStmts.enqueue, s.queueStmts.pending, s.queueStmts.recordFailure, s.queueStmts.deleteItem,
		s.syncStateStmts.get, s.syncStateStmts.setBootstrap, s.syncStateStmts.setUpload,
		s.uploadSessionStmts.save, s.uploadSessionStmts.getByEntity, s.uploadSessionStmts.delete,
	}
}

// Compile-time interface check.
var _ Store = (*SQLiteStore)(nil)

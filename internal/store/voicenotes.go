package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

type voiceNoteStatements struct {
	save, get, byReport, pendingSync, del *sql.Stmt
}

const (
	sqlVoiceNoteColumns = `id, report_id, defect_id, original_path, working_path,
		mime_type, file_size, duration_ms, transcription, original_hash,
		sync_status, last_sync_error, uploaded_url, created_at, updated_at`

	sqlSaveVoiceNote = `INSERT INTO voice_notes (` + sqlVoiceNoteColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			defect_id = excluded.defect_id,
			working_path = excluded.working_path,
			mime_type = excluded.mime_type,
			file_size = excluded.file_size,
			duration_ms = excluded.duration_ms,
			transcription = excluded.transcription,
			sync_status = excluded.sync_status,
			last_sync_error = excluded.last_sync_error,
			uploaded_url = excluded.uploaded_url,
			updated_at = excluded.updated_at`

	sqlGetVoiceNote = `SELECT ` + sqlVoiceNoteColumns + ` FROM voice_notes WHERE id = ?`

	sqlVoiceNotesByReport = `SELECT ` + sqlVoiceNoteColumns + ` FROM voice_notes WHERE report_id = ? ORDER BY created_at`

	// error-status rows are excluded: a voice note whose original file went
	// missing at upload time is parked, not retried.
	sqlPendingSyncVoiceNotes = `SELECT ` + sqlVoiceNoteColumns + `
		FROM voice_notes WHERE sync_status IN ('captured', 'processing')`

	sqlDeleteVoiceNote = `DELETE FROM voice_notes WHERE id = ? RETURNING report_id`
)

func (s *SQLiteStore) prepareVoiceNoteStmts(ctx context.Context) error {
	return prepareAll(ctx, s.db, []stmtDef{
		{&s.voiceNoteStmts.save, sqlSaveVoiceNote, "saveVoiceNote"},
		{&s.voiceNoteStmts.get, sqlGetVoiceNote, "getVoiceNote"},
		{&s.voiceNoteStmts.byReport, sqlVoiceNotesByReport, "voiceNotesByReport"},
		{&s.voiceNoteStmts.pendingSync, sqlPendingSyncVoiceNotes, "pendingSyncVoiceNotes"},
		{&s.voiceNoteStmts.del, sqlDeleteVoiceNote, "deleteVoiceNote"},
	})
}

func scanVoiceNote(row interface{ Scan(...any) error }) (*VoiceNote, error) {
	vn := &VoiceNote{}

	var syncStatus string

	err := row.Scan(
		&vn.ID, &vn.ReportID, &vn.DefectID, &vn.OriginalPath, &vn.WorkingPath,
		&vn.MimeType, &vn.FileSize, &vn.DurationMs, &vn.Transcription, &vn.OriginalHash,
		&syncStatus, &vn.LastSyncError, &vn.UploadedURL, &vn.CreatedAt, &vn.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	vn.SyncStatus = BinaryStatus(syncStatus)

	return vn, nil
}

func scanVoiceNoteRows(rows *sql.Rows) ([]*VoiceNote, error) {
	var notes []*VoiceNote

	for rows.Next() {
		vn, err := scanVoiceNote(rows)
		if err != nil {
			return nil, fmt.Errorf("scan voice note row: %w", err)
		}

		notes = append(notes, vn)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate voice note rows: %w", err)
	}

	return notes, nil
}

func saveVoiceNoteArgs(vn *VoiceNote) []any {
	return []any{
		vn.ID, vn.ReportID, vn.DefectID, vn.OriginalPath, vn.WorkingPath,
		vn.MimeType, vn.FileSize, vn.DurationMs, vn.Transcription, vn.OriginalHash,
		string(vn.SyncStatus), vn.LastSyncError, vn.UploadedURL, vn.CreatedAt, vn.UpdatedAt,
	}
}

// SaveVoiceNote inserts or updates a voice note row.
func (s *SQLiteStore) SaveVoiceNote(ctx context.Context, vn *VoiceNote) error {
	s.logger.Debug("saving voice note", "id", vn.ID, "report_id", vn.ReportID)

	if _, err := s.voiceNoteStmts.save.ExecContext(ctx, saveVoiceNoteArgs(vn)...); err != nil {
		return fmt.Errorf("store: save voice note %s: %w", vn.ID, err)
	}

	return nil
}

// GetVoiceNote returns a voice note by id, or (nil, nil) if not found.
func (s *SQLiteStore) GetVoiceNote(ctx context.Context, id string) (*VoiceNote, error) {
	vn, err := scanVoiceNote(s.voiceNoteStmts.get.QueryRowContext(ctx, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil //nolint:nilnil // sentinel for "not found"
	}

	if err != nil {
		return nil, fmt.Errorf("store: get voice note %s: %w", id, err)
	}

	return vn, nil
}

// VoiceNotesByReport returns every voice note belonging to a report, oldest first.
func (s *SQLiteStore) VoiceNotesByReport(ctx context.Context, reportID string) ([]*VoiceNote, error) {
	rows, err := s.voiceNoteStmts.byReport.QueryContext(ctx, reportID)
	if err != nil {
		return nil, fmt.Errorf("store: voice notes by report %s: %w", reportID, err)
	}
	defer rows.Close()

	return scanVoiceNoteRows(rows)
}

// PendingSyncVoiceNotes returns every voice note whose sync_status is dirty
// (captured or processing).
func (s *SQLiteStore) PendingSyncVoiceNotes(ctx context.Context) ([]*VoiceNote, error) {
	rows, err := s.voiceNoteStmts.pendingSync.QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: pending sync voice notes: %w", err)
	}
	defer rows.Close()

	return scanVoiceNoteRows(rows)
}

// DeleteVoiceNote removes a voice note row and marks its parent report
// dirty in the same transaction. The caller is responsible for removing
// the vault files and appending the DELETED custody event.
func (s *SQLiteStore) DeleteVoiceNote(ctx context.Context, id string, at int64) error {
	return s.deleteChildRow(ctx, s.voiceNoteStmts.del, "voice note", id, at)
}

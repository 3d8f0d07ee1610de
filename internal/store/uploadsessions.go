package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// UploadSessionRecord persists a chunked/resumable upload's progress so
// it survives process restart: the sync engine queries UploadedBytes on
// resume instead of trusting an in-memory offset.
type UploadSessionRecord struct {
	ID            string
	EntityType    string
	EntityID      string
	SessionURL    string
	TotalBytes    int64
	UploadedBytes int64
	CreatedAt     int64
	UpdatedAt     int64
}

type uploadSessionStatements struct {
	save, getByEntity, delete *sql.Stmt
}

const (
	sqlSaveUploadSession = `INSERT INTO upload_sessions
		(id, entity_type, entity_id, session_url, total_bytes, uploaded_bytes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(entity_id) DO UPDATE SET
			session_url = excluded.session_url,
			total_bytes = excluded.total_bytes,
			uploaded_bytes = excluded.uploaded_bytes,
			updated_at = excluded.updated_at`

	sqlGetUploadSessionByEntity = `SELECT id, entity_type, entity_id, session_url, total_bytes, uploaded_bytes, created_at, updated_at
		FROM upload_sessions WHERE entity_type = ? AND entity_id = ?`

	sqlDeleteUploadSession = `DELETE FROM upload_sessions WHERE entity_type = ? AND entity_id = ?`
)

func (s *SQLiteStore) prepareUploadSessionStmts(ctx context.Context) error {
	return prepareAll(ctx, s.db, []stmtDef{
		{&s.uploadSessionStmts.save, sqlSaveUploadSession, "saveUploadSession"},
		{&s.uploadSessionStmts.getByEntity, sqlGetUploadSessionByEntity, "getUploadSessionByEntity"},
		{&s.uploadSessionStmts.delete, sqlDeleteUploadSession, "deleteUploadSession"},
	})
}

// SaveUploadSession inserts or updates the session row for one entity,
// keyed by entityId alone (entity_id is UNIQUE across entity types).
func (s *SQLiteStore) SaveUploadSession(ctx context.Context, r *UploadSessionRecord) error {
	_, err := s.uploadSessionStmts.save.ExecContext(ctx,
		r.ID, r.EntityType, r.EntityID, r.SessionURL, r.TotalBytes, r.UploadedBytes, r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("store: save upload session: %w", err)
	}

	return nil
}

// UploadSessionForEntity returns the in-progress session for an entity,
// or (nil, nil) if no session has been started.
func (s *SQLiteStore) UploadSessionForEntity(ctx context.Context, entityType, entityID string) (*UploadSessionRecord, error) {
	r := &UploadSessionRecord{}

	err := s.uploadSessionStmts.getByEntity.QueryRowContext(ctx, entityType, entityID).Scan(
		&r.ID, &r.EntityType, &r.EntityID, &r.SessionURL, &r.TotalBytes, &r.UploadedBytes, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("store: get upload session: %w", err)
	}

	return r, nil
}

// DeleteUploadSession removes a completed or abandoned session row.
func (s *SQLiteStore) DeleteUploadSession(ctx context.Context, entityType, entityID string) error {
	if _, err := s.uploadSessionStmts.delete.ExecContext(ctx, entityType, entityID); err != nil {
		return fmt.Errorf("store: delete upload session: %w", err)
	}

	return nil
}

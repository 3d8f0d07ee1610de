package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

type syncStateStatements struct {
	get, setBootstrap, setUpload *sql.Stmt
}

const (
	sqlGetSyncState = `SELECT last_bootstrap_at, last_upload_at, device_id FROM sync_state WHERE id = 1`

	sqlSetLastBootstrapAt = `INSERT INTO sync_state (id, last_bootstrap_at, device_id)
		VALUES (1, ?, '')
		ON CONFLICT(id) DO UPDATE SET last_bootstrap_at = excluded.last_bootstrap_at`

	sqlSetLastUploadAt = `INSERT INTO sync_state (id, last_upload_at, device_id)
		VALUES (1, ?, '')
		ON CONFLICT(id) DO UPDATE SET last_upload_at = excluded.last_upload_at`
)

func (s *SQLiteStore) prepareSyncStateStmts(ctx context.Context) error {
	return prepareAll(ctx, s.db, []stmtDef{
		{&s.syncStateStmts.get, sqlGetSyncState, "getSyncState"},
		{&s.syncStateStmts.setBootstrap, sqlSetLastBootstrapAt, "setLastBootstrapAt"},
		{&s.syncStateStmts.setUpload, sqlSetLastUploadAt, "setLastUploadAt"},
	})
}

// GetSyncState returns the singleton sync-state row. It returns a
// zero-valued, non-nil SyncState if the device has never synced: unlike
// the entity getters, there is no meaningful "not found" case here since
// the row's absence and an empty row mean the same thing to every caller.
func (s *SQLiteStore) GetSyncState(ctx context.Context) (*SyncState, error) {
	st := &SyncState{}

	err := s.syncStateStmts.get.QueryRowContext(ctx).Scan(&st.LastBootstrapAt, &st.LastUploadAt, &st.DeviceID)
	if errors.Is(err, sql.ErrNoRows) {
		return &SyncState{}, nil
	}

	if err != nil {
		return nil, fmt.Errorf("store: get sync state: %w", err)
	}

	return st, nil
}

// SetLastBootstrapAt records the timestamp of the most recent successful
// bootstrap, creating the singleton row on first use.
func (s *SQLiteStore) SetLastBootstrapAt(ctx context.Context, at int64) error {
	s.logger.Debug("setting last bootstrap time", "at", at)

	if _, err := s.syncStateStmts.setBootstrap.ExecContext(ctx, at); err != nil {
		return fmt.Errorf("store: set last bootstrap at: %w", err)
	}

	return nil
}

// SetLastUploadAt records the timestamp of the most recent successful
// upload pass, creating the singleton row on first use.
func (s *SQLiteStore) SetLastUploadAt(ctx context.Context, at int64) error {
	s.logger.Debug("setting last upload time", "at", at)

	if _, err := s.syncStateStmts.setUpload.ExecContext(ctx, at); err != nil {
		return fmt.Errorf("store: set last upload at: %w", err)
	}

	return nil
}

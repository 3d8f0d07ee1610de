package store

import (
	"context"
	"database/sql"
	"fmt"
)

type queueStatements struct {
	enqueue, pending, recordFailure, deleteItem *sql.Stmt
}

const (
	sqlQueueColumns = `id, entity_type, entity_id, operation, payload_json, attempt_count,
		last_error, permanently_failed_flag, created_at, updated_at`

	sqlEnqueueItem = `INSERT INTO sync_queue
		(entity_type, entity_id, operation, payload_json, attempt_count,
		 last_error, permanently_failed_flag, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	sqlPendingQueueItems = `SELECT ` + sqlQueueColumns + `
		FROM sync_queue WHERE permanently_failed_flag = 0 ORDER BY created_at`

	sqlRecordQueueItemFailure = `UPDATE sync_queue
		SET attempt_count = attempt_count + 1, last_error = ?, permanently_failed_flag = ?, updated_at = ?
		WHERE id = ?`

	sqlDeleteQueueItem = `DELETE FROM sync_queue WHERE id = ?`
)

func (s *SQLiteStore) prepareQueueStmts(ctx context.Context) error {
	return prepareAll(ctx, s.db, []stmtDef{
		{&s.queueStmts.enqueue, sqlEnqueueItem, "enqueueSyncItem"},
		{&s.queueStmts.pending, sqlPendingQueueItems, "pendingQueueItems"},
		{&s.queueStmts.recordFailure, sqlRecordQueueItemFailure, "recordQueueItemFailure"},
		{&s.queueStmts.deleteItem, sqlDeleteQueueItem, "deleteQueueItem"},
	})
}

func scanQueueItem(row interface{ Scan(...any) error }) (*SyncQueueItem, error) {
	item := &SyncQueueItem{}

	var operation string

	err := row.Scan(&item.ID, &item.EntityType, &item.EntityID, &operation, &item.PayloadJSON,
		&item.AttemptCount, &item.LastError, &item.PermanentlyFailedFlag, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return nil, err
	}

	item.Operation = QueueOperation(operation)

	return item, nil
}

// EnqueueSyncItem appends a pending out-of-band action
// (submit_for_review, approve, finalise, resolve_review_comment) and
// returns its assigned id.
func (s *SQLiteStore) EnqueueSyncItem(ctx context.Context, item *SyncQueueItem) (int64, error) {
	s.logger.Debug("enqueueing sync item", "entity_type", item.EntityType, "entity_id", item.EntityID,
		"operation", item.Operation)

	result, err := s.queueStmts.enqueue.ExecContext(ctx,
		item.EntityType, item.EntityID, string(item.Operation), item.PayloadJSON, item.AttemptCount,
		item.LastError, item.PermanentlyFailedFlag, item.CreatedAt, item.UpdatedAt)
	if err != nil {
		return 0, fmt.Errorf("store: enqueue sync item: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("store: enqueue sync item: read id: %w", err)
	}

	item.ID = id

	return id, nil
}

// PendingQueueItems returns every queue item that hasn't been permanently
// given up on, oldest first.
func (s *SQLiteStore) PendingQueueItems(ctx context.Context) ([]*SyncQueueItem, error) {
	rows, err := s.queueStmts.pending.QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: pending queue items: %w", err)
	}
	defer rows.Close()

	var items []*SyncQueueItem

	for rows.Next() {
		item, err := scanQueueItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan queue item row: %w", err)
		}

		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate queue item rows: %w", err)
	}

	return items, nil
}

// RecordQueueItemFailure bumps the attempt counter and records the latest
// error, marking the item permanently failed once the caller's retry
// budget is exhausted.
func (s *SQLiteStore) RecordQueueItemFailure(ctx context.Context, id int64, errMsg string, permanentlyFailed bool) error {
	s.logger.Debug("recording queue item failure", "id", id, "permanently_failed", permanentlyFailed)

	_, err := s.queueStmts.recordFailure.ExecContext(ctx, errMsg, permanentlyFailed, NowNano(), id)
	if err != nil {
		return fmt.Errorf("store: record queue item failure %d: %w", id, err)
	}

	return nil
}

// DeleteQueueItem removes a queue item once its action has been confirmed
// applied server-side.
func (s *SQLiteStore) DeleteQueueItem(ctx context.Context, id int64) error {
	s.logger.Debug("deleting queue item", "id", id)

	if _, err := s.queueStmts.deleteItem.ExecContext(ctx, id); err != nil {
		return fmt.Errorf("store: delete queue item %d: %w", id, err)
	}

	return nil
}

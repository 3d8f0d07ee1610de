package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

type custodyStatements struct {
	append, eventsFor, unsynced *sql.Stmt
}

const (
	sqlCustodyColumns = `id, action, entity_type, entity_id, user_id, user_name, details_json,
		created_at, synced_flag`

	sqlAppendCustodyEvent = `INSERT INTO custody_events
		(action, entity_type, entity_id, user_id, user_name, details_json, created_at, synced_flag)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	sqlCustodyEventsFor = `SELECT ` + sqlCustodyColumns + `
		FROM custody_events WHERE entity_type = ? AND entity_id = ? ORDER BY created_at`

	sqlUnsyncedCustodyEvents = `SELECT ` + sqlCustodyColumns + `
		FROM custody_events WHERE synced_flag = 0 ORDER BY created_at`
)

func (s *SQLiteStore) prepareCustodyStmts(ctx context.Context) error {
	return prepareAll(ctx, s.db, []stmtDef{
		{&s.custodyStmts.append, sqlAppendCustodyEvent, "appendCustodyEvent"},
		{&s.custodyStmts.eventsFor, sqlCustodyEventsFor, "custodyEventsFor"},
		{&s.custodyStmts.unsynced, sqlUnsyncedCustodyEvents, "unsyncedCustodyEvents"},
	})
}

func scanCustodyEvent(row interface{ Scan(...any) error }) (*CustodyEvent, error) {
	e := &CustodyEvent{}

	var action string

	err := row.Scan(&e.ID, &action, &e.EntityType, &e.EntityID, &e.UserID, &e.UserName,
		&e.DetailsJSON, &e.CreatedAt, &e.SyncedFlag)
	if err != nil {
		return nil, err
	}

	e.Action = CustodyAction(action)

	return e, nil
}

func scanCustodyEventRows(rows *sql.Rows) ([]*CustodyEvent, error) {
	var events []*CustodyEvent

	for rows.Next() {
		e, err := scanCustodyEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan custody event row: %w", err)
		}

		events = append(events, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate custody event rows: %w", err)
	}

	return events, nil
}

// AppendCustodyEvent inserts a new event. There is no corresponding Update
// or Delete method on this type, or anywhere in the Store interface: the
// chain of custody is append-only by construction, not merely by
// convention.
func (s *SQLiteStore) AppendCustodyEvent(ctx context.Context, e *CustodyEvent) error {
	s.logger.Debug("appending custody event", "action", e.Action, "entity_type", e.EntityType, "entity_id", e.EntityID)

	result, err := s.custodyStmts.append.ExecContext(ctx,
		string(e.Action), e.EntityType, e.EntityID, e.UserID, e.UserName, e.DetailsJSON,
		e.CreatedAt, e.SyncedFlag)
	if err != nil {
		return fmt.Errorf("store: append custody event: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("store: append custody event: read id: %w", err)
	}

	e.ID = id

	return nil
}

// EventsFor returns every custody event recorded against a single entity,
// oldest first.
func (s *SQLiteStore) EventsFor(ctx context.Context, entityType, entityID string) ([]*CustodyEvent, error) {
	rows, err := s.custodyStmts.eventsFor.QueryContext(ctx, entityType, entityID)
	if err != nil {
		return nil, fmt.Errorf("store: custody events for %s/%s: %w", entityType, entityID, err)
	}
	defer rows.Close()

	return scanCustodyEventRows(rows)
}

// UnsyncedEvents returns every custody event not yet confirmed uploaded.
func (s *SQLiteStore) UnsyncedEvents(ctx context.Context) ([]*CustodyEvent, error) {
	rows, err := s.custodyStmts.unsynced.QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: unsynced custody events: %w", err)
	}
	defer rows.Close()

	return scanCustodyEventRows(rows)
}

// MarkCustodyEventsSynced flips synced_flag for the given event ids. This
// is the only mutation custody events ever undergo; the rest of the row is
// immutable from creation. The query is built per-call since the IN list
// length varies with the batch.
func (s *SQLiteStore) MarkCustodyEventsSynced(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))

	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}

	query := fmt.Sprintf("UPDATE custody_events SET synced_flag = 1 WHERE id IN (%s)",
		strings.Join(placeholders, ", "))

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("store: mark custody events synced: %w", err)
	}

	return nil
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

type checklistStatements struct {
	save, get, list *sql.Stmt
}

const (
	sqlChecklistColumns = `id, standard, items_json, created_at, updated_at`

	sqlSaveChecklist = `INSERT INTO checklists (` + sqlChecklistColumns + `)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			standard = excluded.standard,
			items_json = excluded.items_json,
			updated_at = excluded.updated_at`

	sqlGetChecklist = `SELECT ` + sqlChecklistColumns + ` FROM checklists WHERE id = ?`

	sqlListChecklists = `SELECT ` + sqlChecklistColumns + ` FROM checklists ORDER BY standard`
)

func (s *SQLiteStore) prepareChecklistStmts(ctx context.Context) error {
	return prepareAll(ctx, s.db, []stmtDef{
		{&s.checklistStmts.save, sqlSaveChecklist, "saveChecklist"},
		{&s.checklistStmts.get, sqlGetChecklist, "getChecklist"},
		{&s.checklistStmts.list, sqlListChecklists, "listChecklists"},
	})
}

func scanChecklist(row interface{ Scan(...any) error }) (*Checklist, error) {
	c := &Checklist{}

	err := row.Scan(&c.ID, &c.Standard, &c.ItemsJSON, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}

	return c, nil
}

// SaveChecklist inserts or replaces a checklist pulled down via bootstrap.
// Checklists are read-only reference data from the caller's perspective;
// this is how the sync engine refreshes them.
func (s *SQLiteStore) SaveChecklist(ctx context.Context, c *Checklist) error {
	s.logger.Debug("saving checklist", "id", c.ID, "standard", c.Standard)

	_, err := s.checklistStmts.save.ExecContext(ctx, c.ID, c.Standard, jsonOr(c.ItemsJSON, "[]"), c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("store: save checklist %s: %w", c.ID, err)
	}

	return nil
}

// GetChecklist returns a checklist by id, or (nil, nil) if not found.
func (s *SQLiteStore) GetChecklist(ctx context.Context, id string) (*Checklist, error) {
	c, err := scanChecklist(s.checklistStmts.get.QueryRowContext(ctx, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil //nolint:nilnil // sentinel for "not found"
	}

	if err != nil {
		return nil, fmt.Errorf("store: get checklist %s: %w", id, err)
	}

	return c, nil
}

// ListChecklists returns every checklist known to the device, ordered by
// standard name.
func (s *SQLiteStore) ListChecklists(ctx context.Context) ([]*Checklist, error) {
	rows, err := s.checklistStmts.list.QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: list checklists: %w", err)
	}
	defer rows.Close()

	var checklists []*Checklist

	for rows.Next() {
		c, err := scanChecklist(rows)
		if err != nil {
			return nil, fmt.Errorf("scan checklist row: %w", err)
		}

		checklists = append(checklists, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate checklist rows: %w", err)
	}

	return checklists, nil
}

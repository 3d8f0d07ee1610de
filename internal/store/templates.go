package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

type templateStatements struct {
	save, get, list *sql.Stmt
}

const (
	sqlTemplateColumns = `id, inspection_type, sections_json, checklists_json, is_default,
		created_at, updated_at`

	sqlSaveTemplate = `INSERT INTO templates (` + sqlTemplateColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			inspection_type = excluded.inspection_type,
			sections_json = excluded.sections_json,
			checklists_json = excluded.checklists_json,
			is_default = excluded.is_default,
			updated_at = excluded.updated_at`

	sqlGetTemplate = `SELECT ` + sqlTemplateColumns + ` FROM templates WHERE id = ?`

	sqlListTemplates = `SELECT ` + sqlTemplateColumns + ` FROM templates ORDER BY inspection_type`
)

func (s *SQLiteStore) prepareTemplateStmts(ctx context.Context) error {
	return prepareAll(ctx, s.db, []stmtDef{
		{&s.templateStmts.save, sqlSaveTemplate, "saveTemplate"},
		{&s.templateStmts.get, sqlGetTemplate, "getTemplate"},
		{&s.templateStmts.list, sqlListTemplates, "listTemplates"},
	})
}

func scanTemplate(row interface{ Scan(...any) error }) (*Template, error) {
	t := &Template{}

	err := row.Scan(&t.ID, &t.InspectionType, &t.SectionsJSON, &t.ChecklistsJSON, &t.IsDefault,
		&t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}

	return t, nil
}

// SaveTemplate inserts or replaces a report template pulled down via
// bootstrap.
func (s *SQLiteStore) SaveTemplate(ctx context.Context, t *Template) error {
	s.logger.Debug("saving template", "id", t.ID, "inspection_type", t.InspectionType)

	_, err := s.templateStmts.save.ExecContext(ctx,
		t.ID, t.InspectionType, jsonOr(t.SectionsJSON, "[]"), jsonOr(t.ChecklistsJSON, "[]"), t.IsDefault, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("store: save template %s: %w", t.ID, err)
	}

	return nil
}

// GetTemplate returns a template by id, or (nil, nil) if not found.
func (s *SQLiteStore) GetTemplate(ctx context.Context, id string) (*Template, error) {
	t, err := scanTemplate(s.templateStmts.get.QueryRowContext(ctx, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil //nolint:nilnil // sentinel for "not found"
	}

	if err != nil {
		return nil, fmt.Errorf("store: get template %s: %w", id, err)
	}

	return t, nil
}

// ListTemplates returns every template known to the device, ordered by
// inspection type.
func (s *SQLiteStore) ListTemplates(ctx context.Context) ([]*Template, error) {
	rows, err := s.templateStmts.list.QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: list templates: %w", err)
	}
	defer rows.Close()

	var templates []*Template

	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan template row: %w", err)
		}

		templates = append(templates, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate template rows: %w", err)
	}

	return templates, nil
}

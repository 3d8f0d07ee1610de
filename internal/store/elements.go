package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

type elementStatements struct {
	save, get, byReport, del *sql.Stmt
}

const (
	sqlElementColumns = `id, report_id, element_type, location, cladding, material,
		manufacturer, pitch_degrees, area_sq_meters, condition_rating, created_at, updated_at`

	sqlSaveElement = `INSERT INTO roof_elements (` + sqlElementColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			element_type = excluded.element_type,
			location = excluded.location,
			cladding = excluded.cladding,
			material = excluded.material,
			manufacturer = excluded.manufacturer,
			pitch_degrees = excluded.pitch_degrees,
			area_sq_meters = excluded.area_sq_meters,
			condition_rating = excluded.condition_rating,
			updated_at = excluded.updated_at`

	sqlGetElement = `SELECT ` + sqlElementColumns + ` FROM roof_elements WHERE id = ?`

	sqlElementsByReport = `SELECT ` + sqlElementColumns + ` FROM roof_elements WHERE report_id = ?`

	sqlDeleteElement = `DELETE FROM roof_elements WHERE id = ? RETURNING report_id`
)

func (s *SQLiteStore) prepareElementStmts(ctx context.Context) error {
	return prepareAll(ctx, s.db, []stmtDef{
		{&s.elementStmts.save, sqlSaveElement, "saveElement"},
		{&s.elementStmts.get, sqlGetElement, "getElement"},
		{&s.elementStmts.byReport, sqlElementsByReport, "elementsByReport"},
		{&s.elementStmts.del, sqlDeleteElement, "deleteElement"},
	})
}

func scanElement(row interface{ Scan(...any) error }) (*RoofElement, error) {
	e := &RoofElement{}

	err := row.Scan(&e.ID, &e.ReportID, &e.ElementType, &e.Location, &e.Cladding,
		&e.Material, &e.Manufacturer, &e.PitchDegrees, &e.AreaSqMeters,
		&e.ConditionRating, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}

	return e, nil
}

// SaveElement inserts or updates a roof element row. It does not mark
// the owning report dirty; callers do that with MarkReportDirty.
func (s *SQLiteStore) SaveElement(ctx context.Context, e *RoofElement) error {
	s.logger.Debug("saving roof element", "id", e.ID, "report_id", e.ReportID)

	_, err := s.elementStmts.save.ExecContext(ctx,
		e.ID, e.ReportID, e.ElementType, e.Location, e.Cladding, e.Material,
		e.Manufacturer, e.PitchDegrees, e.AreaSqMeters, e.ConditionRating,
		e.CreatedAt, e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("store: save element %s: %w", e.ID, err)
	}

	return nil
}

// GetElement returns a roof element by id, or (nil, nil) if not found.
func (s *SQLiteStore) GetElement(ctx context.Context, id string) (*RoofElement, error) {
	e, err := scanElement(s.elementStmts.get.QueryRowContext(ctx, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil //nolint:nilnil // sentinel for "not found"
	}

	if err != nil {
		return nil, fmt.Errorf("store: get element %s: %w", id, err)
	}

	return e, nil
}

// ElementsByReport returns every roof element belonging to a report.
func (s *SQLiteStore) ElementsByReport(ctx context.Context, reportID string) ([]*RoofElement, error) {
	rows, err := s.elementStmts.byReport.QueryContext(ctx, reportID)
	if err != nil {
		return nil, fmt.Errorf("store: elements by report %s: %w", reportID, err)
	}
	defer rows.Close()

	var elements []*RoofElement

	for rows.Next() {
		e, err := scanElement(rows)
		if err != nil {
			return nil, fmt.Errorf("scan element row: %w", err)
		}

		elements = append(elements, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate element rows: %w", err)
	}

	return elements, nil
}

// DeleteElement removes a roof element row and marks its parent report
// dirty in the same transaction. Defects and photos referencing the
// element keep their element_id; the link simply dangles, matching the
// by-id (not FK-enforced) element references on those rows.
func (s *SQLiteStore) DeleteElement(ctx context.Context, id string, at int64) error {
	return s.deleteChildRow(ctx, s.elementStmts.del, "element", id, at)
}

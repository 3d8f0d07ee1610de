package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

type defectStatements struct {
	save, get, byReport, bumpSeq, del *sql.Stmt
}

const (
	sqlDefectColumns = `id, report_id, defect_number, element_id, classification,
		severity, observation, analysis, opinion, created_at, updated_at`

	sqlSaveDefect = `INSERT INTO defects (` + sqlDefectColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			element_id = excluded.element_id,
			classification = excluded.classification,
			severity = excluded.severity,
			observation = excluded.observation,
			analysis = excluded.analysis,
			opinion = excluded.opinion,
			updated_at = excluded.updated_at`

	sqlGetDefect = `SELECT ` + sqlDefectColumns + ` FROM defects WHERE id = ?`

	sqlDefectsByReport = `SELECT ` + sqlDefectColumns + ` FROM defects WHERE report_id = ? ORDER BY defect_number`

	// defect_seq is a per-report high-water mark (see DESIGN.md Open
	// Question #2): numbers never reuse even after the current max is
	// deleted, unlike a bare MAX(defect_number)+1 over remaining rows.
	sqlBumpDefectSeq = `UPDATE reports SET defect_seq = defect_seq + 1 WHERE id = ?
		RETURNING defect_seq`

	sqlDeleteDefect = `DELETE FROM defects WHERE id = ? RETURNING report_id`
)

func (s *SQLiteStore) prepareDefectStmts(ctx context.Context) error {
	return prepareAll(ctx, s.db, []stmtDef{
		{&s.defectStmts.save, sqlSaveDefect, "saveDefect"},
		{&s.defectStmts.get, sqlGetDefect, "getDefect"},
		{&s.defectStmts.byReport, sqlDefectsByReport, "defectsByReport"},
		{&s.defectStmts.bumpSeq, sqlBumpDefectSeq, "bumpDefectSeq"},
		{&s.defectStmts.del, sqlDeleteDefect, "deleteDefect"},
	})
}

func scanDefect(row interface{ Scan(...any) error }) (*Defect, error) {
	d := &Defect{}

	err := row.Scan(&d.ID, &d.ReportID, &d.DefectNumber, &d.ElementID,
		&d.Classification, &d.Severity, &d.Observation, &d.Analysis, &d.Opinion,
		&d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}

	return d, nil
}

// SaveDefect inserts or updates a defect row, preserving its defect
// number. Use InsertDefectWithNumber for first-time inserts so the
// number is assigned inside the same transaction.
func (s *SQLiteStore) SaveDefect(ctx context.Context, d *Defect) error {
	s.logger.Debug("saving defect", "id", d.ID, "report_id", d.ReportID)

	_, err := s.defectStmts.save.ExecContext(ctx,
		d.ID, d.ReportID, d.DefectNumber, d.ElementID, d.Classification,
		d.Severity, d.Observation, d.Analysis, d.Opinion, d.CreatedAt, d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("store: save defect %s: %w", d.ID, err)
	}

	return nil
}

// GetDefect returns a defect by id, or (nil, nil) if not found.
func (s *SQLiteStore) GetDefect(ctx context.Context, id string) (*Defect, error) {
	d, err := scanDefect(s.defectStmts.get.QueryRowContext(ctx, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil //nolint:nilnil // sentinel for "not found"
	}

	if err != nil {
		return nil, fmt.Errorf("store: get defect %s: %w", id, err)
	}

	return d, nil
}

// DefectsByReport returns every defect belonging to a report, ordered by
// defect number.
func (s *SQLiteStore) DefectsByReport(ctx context.Context, reportID string) ([]*Defect, error) {
	rows, err := s.defectStmts.byReport.QueryContext(ctx, reportID)
	if err != nil {
		return nil, fmt.Errorf("store: defects by report %s: %w", reportID, err)
	}
	defer rows.Close()

	var defects []*Defect

	for rows.Next() {
		d, err := scanDefect(rows)
		if err != nil {
			return nil, fmt.Errorf("scan defect row: %w", err)
		}

		defects = append(defects, d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate defect rows: %w", err)
	}

	return defects, nil
}

// NextDefectNumber previews the number InsertDefectWithNumber would
// assign next, without consuming it. Exposed for UI display; callers
// that actually create a defect should use InsertDefectWithNumber
// instead, since a preview-then-insert pair is not atomic.
func (s *SQLiteStore) NextDefectNumber(ctx context.Context, reportID string) (int, error) {
	r, err := s.GetReport(ctx, reportID)
	if err != nil {
		return 0, fmt.Errorf("store: next defect number %s: %w", reportID, err)
	}

	if r == nil {
		return 0, fmt.Errorf("store: next defect number: report %s not found", reportID)
	}

	return int(r.DefectSeq) + 1, nil
}

// InsertDefectWithNumber assigns the defect's number from the report's
// defect_seq high-water mark and inserts the row, both inside one
// transaction so a concurrent insert can never consume the same number.
// It also marks the parent report dirty, per the same-transaction
// dirty-marking invariant.
func (s *SQLiteStore) InsertDefectWithNumber(ctx context.Context, d *Defect) error {
	s.logger.Debug("inserting defect with number", "id", d.ID, "report_id", d.ReportID)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin insert defect tx: %w", err)
	}

	var seq int64

	bumpStmt := tx.StmtContext(ctx, s.defectStmts.bumpSeq)
	if err := bumpStmt.QueryRowContext(ctx, d.ReportID).Scan(&seq); err != nil {
		rollbackErr := tx.Rollback()
		return fmt.Errorf("store: bump defect seq %s: %w (rollback: %v)", d.ReportID, err, rollbackErr)
	}

	d.DefectNumber = int(seq)

	saveStmt := tx.StmtContext(ctx, s.defectStmts.save)
	if _, err := saveStmt.ExecContext(ctx,
		d.ID, d.ReportID, d.DefectNumber, d.ElementID, d.Classification,
		d.Severity, d.Observation, d.Analysis, d.Opinion, d.CreatedAt, d.UpdatedAt,
	); err != nil {
		rollbackErr := tx.Rollback()
		return fmt.Errorf("store: insert defect %s: %w (rollback: %v)", d.ID, err, rollbackErr)
	}

	markDirtyStmt := tx.StmtContext(ctx, s.reportStmts.markDirty)
	if _, err := markDirtyStmt.ExecContext(ctx, d.UpdatedAt, d.ReportID); err != nil {
		rollbackErr := tx.Rollback()
		return fmt.Errorf("store: mark report dirty %s: %w (rollback: %v)", d.ReportID, err, rollbackErr)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit insert defect tx: %w", err)
	}

	return nil
}

// DeleteDefect removes a defect row and marks its parent report dirty in
// the same transaction. Defect numbers are never reassigned: the
// report's defect_seq high-water mark is untouched, so the deleted
// number leaves a permanent gap.
func (s *SQLiteStore) DeleteDefect(ctx context.Context, id string, at int64) error {
	return s.deleteChildRow(ctx, s.defectStmts.del, "defect", id, at)
}

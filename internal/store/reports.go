package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

type reportStatements struct {
	save, get, byStatus, pendingSync, markDirty *sql.Stmt
}

const (
	sqlReportColumns = `id, report_number, status, property_address, property_type,
		inspection_date, inspection_type, client_name, client_email,
		scope_json, methodology_json, findings_json, conclusions_json, recommendations_json,
		declaration_signed, inspector_id, submitted_at, approved_at,
		sync_status, last_sync_error, defect_seq, created_at, updated_at`

	sqlSaveReport = `INSERT INTO reports (` + sqlReportColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			report_number = excluded.report_number,
			status = excluded.status,
			property_address = excluded.property_address,
			property_type = excluded.property_type,
			inspection_date = excluded.inspection_date,
			inspection_type = excluded.inspection_type,
			client_name = excluded.client_name,
			client_email = excluded.client_email,
			scope_json = excluded.scope_json,
			methodology_json = excluded.methodology_json,
			findings_json = excluded.findings_json,
			conclusions_json = excluded.conclusions_json,
			recommendations_json = excluded.recommendations_json,
			declaration_signed = excluded.declaration_signed,
			submitted_at = excluded.submitted_at,
			approved_at = excluded.approved_at,
			sync_status = excluded.sync_status,
			last_sync_error = excluded.last_sync_error,
			defect_seq = excluded.defect_seq,
			updated_at = excluded.updated_at`

	sqlGetReport = `SELECT ` + sqlReportColumns + ` FROM reports WHERE id = ?`

	sqlReportsByStatus = `SELECT ` + sqlReportColumns + ` FROM reports WHERE status = ?`

	sqlPendingSyncReports = `SELECT ` + sqlReportColumns + `
		FROM reports WHERE sync_status IN ('draft', 'pending', 'error')`

	sqlMarkReportDirty = `UPDATE reports
		SET sync_status = 'pending', updated_at = ?
		WHERE id = ?`
)

func (s *SQLiteStore) prepareReportStmts(ctx context.Context) error {
	return prepareAll(ctx, s.db, []stmtDef{
		{&s.reportStmts.save, sqlSaveReport, "saveReport"},
		{&s.reportStmts.get, sqlGetReport, "getReport"},
		{&s.reportStmts.byStatus, sqlReportsByStatus, "reportsByStatus"},
		{&s.reportStmts.pendingSync, sqlPendingSyncReports, "pendingSyncReports"},
		{&s.reportStmts.markDirty, sqlMarkReportDirty, "markReportDirty"},
	})
}

func scanReport(row interface{ Scan(...any) error }) (*Report, error) {
	r := &Report{}

	var status, syncStatus string

	err := row.Scan(
		&r.ID, &r.ReportNumber, &status, &r.PropertyAddress, &r.PropertyType,
		&r.InspectionDate, &r.InspectionType, &r.ClientName, &r.ClientEmail,
		&r.ScopeJSON, &r.MethodologyJSON, &r.FindingsJSON, &r.ConclusionsJSON, &r.RecommendationsJSON,
		&r.DeclarationSigned, &r.InspectorID, &r.SubmittedAt, &r.ApprovedAt,
		&syncStatus, &r.LastSyncError, &r.DefectSeq, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	r.Status = ReportStatus(status)
	r.SyncStatus = SyncStatus(syncStatus)

	return r, nil
}

func scanReportRows(rows *sql.Rows) ([]*Report, error) {
	var reports []*Report

	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("scan report row: %w", err)
		}

		reports = append(reports, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate report rows: %w", err)
	}

	return reports, nil
}

func saveReportArgs(r *Report) []any {
	return []any{
		r.ID, r.ReportNumber, string(r.Status), r.PropertyAddress, r.PropertyType,
		r.InspectionDate, r.InspectionType, r.ClientName, r.ClientEmail,
		jsonOr(r.ScopeJSON, "{}"), jsonOr(r.MethodologyJSON, "{}"), jsonOr(r.FindingsJSON, "{}"),
		jsonOr(r.ConclusionsJSON, "{}"), jsonOr(r.RecommendationsJSON, "{}"),
		r.DeclarationSigned, r.InspectorID, r.SubmittedAt, r.ApprovedAt,
		string(r.SyncStatus), r.LastSyncError, r.DefectSeq, r.CreatedAt, r.UpdatedAt,
	}
}

// SaveReport inserts or updates a report row.
func (s *SQLiteStore) SaveReport(ctx context.Context, r *Report) error {
	s.logger.Debug("saving report", "id", r.ID, "status", r.Status)

	if _, err := s.reportStmts.save.ExecContext(ctx, saveReportArgs(r)...); err != nil {
		return fmt.Errorf("store: save report %s: %w", r.ID, err)
	}

	return nil
}

// GetReport returns a report by id, or (nil, nil) if not found.
func (s *SQLiteStore) GetReport(ctx context.Context, id string) (*Report, error) {
	r, err := scanReport(s.reportStmts.get.QueryRowContext(ctx, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil //nolint:nilnil // sentinel for "not found"
	}

	if err != nil {
		return nil, fmt.Errorf("store: get report %s: %w", id, err)
	}

	return r, nil
}

// ReportsByStatus returns every report in the given lifecycle status.
func (s *SQLiteStore) ReportsByStatus(ctx context.Context, status ReportStatus) ([]*Report, error) {
	rows, err := s.reportStmts.byStatus.QueryContext(ctx, string(status))
	if err != nil {
		return nil, fmt.Errorf("store: reports by status %s: %w", status, err)
	}
	defer rows.Close()

	return scanReportRows(rows)
}

// PendingSyncReports returns every report whose sync_status is dirty
// (draft, pending, or error).
func (s *SQLiteStore) PendingSyncReports(ctx context.Context) ([]*Report, error) {
	rows, err := s.reportStmts.pendingSync.QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: pending sync reports: %w", err)
	}
	defer rows.Close()

	return scanReportRows(rows)
}

// DeleteReport removes a report and every child row belonging to it in
// one transaction. Custody events are untouched: the chain of custody
// outlives the entities it describes. Vault file removal is the
// caller's job, via vault.Delete per evidence id.
func (s *SQLiteStore) DeleteReport(ctx context.Context, id string) error {
	s.logger.Debug("deleting report", "id", id)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin delete report tx: %w", err)
	}

	// Children first: report_id columns are FK-enforced.
	childTables := []string{
		"compliance_assessments", "photos", "videos", "voice_notes",
		"defects", "roof_elements",
	}

	for _, table := range childTables {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE report_id = ?`, id); err != nil {
			rollbackErr := tx.Rollback()
			return fmt.Errorf("store: delete report %s children from %s: %w (rollback: %v)", id, table, err, rollbackErr)
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM reports WHERE id = ?`, id); err != nil {
		rollbackErr := tx.Rollback()
		return fmt.Errorf("store: delete report %s: %w (rollback: %v)", id, err, rollbackErr)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit delete report tx: %w", err)
	}

	return nil
}

// MarkReportDirty sets the report's sync_status to pending and bumps its
// updated_at, the sole signal that the report needs re-upload. Callers
// invoke this after a child mutation (element/defect/photo/compliance
// write); it runs as its own statement, outside any transaction.
func (s *SQLiteStore) MarkReportDirty(ctx context.Context, reportID string, at int64) error {
	s.logger.Debug("marking report dirty", "report_id", reportID)

	if _, err := s.reportStmts.markDirty.ExecContext(ctx, at, reportID); err != nil {
		return fmt.Errorf("store: mark report dirty %s: %w", reportID, err)
	}

	return nil
}

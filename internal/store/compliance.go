package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

type complianceStatements struct {
	save, byReport *sql.Stmt
}

const (
	sqlComplianceColumns = `id, report_id, checklist_results_json, non_compliance_summary,
		created_at, updated_at`

	sqlSaveCompliance = `INSERT INTO compliance_assessments (` + sqlComplianceColumns + `)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			checklist_results_json = excluded.checklist_results_json,
			non_compliance_summary = excluded.non_compliance_summary,
			updated_at = excluded.updated_at`

	sqlComplianceByReport = `SELECT ` + sqlComplianceColumns + ` FROM compliance_assessments WHERE report_id = ?`
)

func (s *SQLiteStore) prepareComplianceStmts(ctx context.Context) error {
	return prepareAll(ctx, s.db, []stmtDef{
		{&s.complianceStmts.save, sqlSaveCompliance, "saveCompliance"},
		{&s.complianceStmts.byReport, sqlComplianceByReport, "complianceByReport"},
	})
}

func scanCompliance(row interface{ Scan(...any) error }) (*ComplianceAssessment, error) {
	c := &ComplianceAssessment{}

	err := row.Scan(&c.ID, &c.ReportID, &c.ChecklistResultsJSON, &c.NonComplianceSummary,
		&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}

	return c, nil
}

// SaveComplianceAssessment inserts or updates the 1:1 compliance row for a
// report. It does not mark the parent report dirty; callers do that with
// MarkReportDirty.
func (s *SQLiteStore) SaveComplianceAssessment(ctx context.Context, c *ComplianceAssessment) error {
	s.logger.Debug("saving compliance assessment", "id", c.ID, "report_id", c.ReportID)

	_, err := s.complianceStmts.save.ExecContext(ctx,
		c.ID, c.ReportID, jsonOr(c.ChecklistResultsJSON, "{}"), c.NonComplianceSummary, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("store: save compliance assessment %s: %w", c.ID, err)
	}

	return nil
}

// ComplianceAssessmentByReport returns the compliance row for a report, or
// (nil, nil) if none has been recorded yet.
func (s *SQLiteStore) ComplianceAssessmentByReport(ctx context.Context, reportID string) (*ComplianceAssessment, error) {
	c, err := scanCompliance(s.complianceStmts.byReport.QueryRowContext(ctx, reportID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil //nolint:nilnil // sentinel for "not found"
	}

	if err != nil {
		return nil, fmt.Errorf("store: compliance assessment by report %s: %w", reportID, err)
	}

	return c, nil
}

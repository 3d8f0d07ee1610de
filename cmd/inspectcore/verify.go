package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/inspectcore/inspectcore/internal/store"
	"github.com/inspectcore/inspectcore/internal/vault"
)

// errVerifyMismatch is returned by the verify command (and only the verify
// command) when at least one artifact fails integrity verification. main
// checks for it with errors.Is to choose the process exit code.
var errVerifyMismatch = errors.New("evidence verification found mismatches")

// allReportStatuses enumerates the report lifecycle so verify can walk
// every report without a dedicated store.AllReports query.
var allReportStatuses = []store.ReportStatus{
	store.ReportStatusDraft,
	store.ReportStatusInProgress,
	store.ReportStatusPendingReview,
	store.ReportStatusApproved,
	store.ReportStatusFinalised,
	store.ReportStatusArchived,
}

// verifyMismatch is one artifact that failed hash verification.
type verifyMismatch struct {
	EntityType string `json:"entityType"`
	EntityID   string `json:"entityId"`
	ReportID   string `json:"reportId"`
	Reason     string `json:"reason"`
}

// verifyReport is the full result of walking every captured artifact.
type verifyReport struct {
	Verified   int              `json:"verified"`
	Mismatches []verifyMismatch `json:"mismatches"`
}

func newVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Re-hash every captured artifact against its recorded original hash",
		Long: `Walk every report's photos, videos, and voice notes and re-hash the
original file stored in the vault, comparing it against the hash recorded
at capture time. Detects bit rot, accidental edits, or vault corruption.

Exit code 0 if every artifact verifies; exit code 1 if any mismatch is found.`,
		RunE: runVerify,
	}
}

func runVerify(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())

	report, err := buildVerifyReport(cmd.Context(), cc)
	if err != nil {
		return err
	}

	if cc.Flags.JSON {
		if err := printVerifyJSON(report); err != nil {
			return err
		}
	} else {
		printVerifyTable(report)
	}

	if len(report.Mismatches) > 0 {
		return errVerifyMismatch
	}

	return nil
}

func buildVerifyReport(ctx context.Context, cc *CLIContext) (*verifyReport, error) {
	st, err := openStore(cc)
	if err != nil {
		return nil, err
	}
	defer st.Close()

	v, err := openVault(cc)
	if err != nil {
		return nil, err
	}

	report := &verifyReport{}

	for _, status := range allReportStatuses {
		reports, err := st.ReportsByStatus(ctx, status)
		if err != nil {
			return nil, fmt.Errorf("listing %s reports: %w", status, err)
		}

		for _, r := range reports {
			if err := verifyReportArtifacts(ctx, st, v, r.ID, report); err != nil {
				return nil, err
			}
		}
	}

	return report, nil
}

func verifyReportArtifacts(ctx context.Context, st *store.SQLiteStore, v *vault.Vault, reportID string, report *verifyReport) error {
	photos, err := st.PhotosByReport(ctx, reportID)
	if err != nil {
		return fmt.Errorf("listing photos for report %s: %w", reportID, err)
	}

	for _, p := range photos {
		verifyOne(v, "photo", p.ID, reportID, p.OriginalHash, report)
	}

	videos, err := st.VideosByReport(ctx, reportID)
	if err != nil {
		return fmt.Errorf("listing videos for report %s: %w", reportID, err)
	}

	for _, vd := range videos {
		verifyOne(v, "video", vd.ID, reportID, vd.OriginalHash, report)
	}

	notes, err := st.VoiceNotesByReport(ctx, reportID)
	if err != nil {
		return fmt.Errorf("listing voice notes for report %s: %w", reportID, err)
	}

	for _, n := range notes {
		verifyOne(v, "voicenote", n.ID, reportID, n.OriginalHash, report)
	}

	return nil
}

func verifyOne(v *vault.Vault, entityType, entityID, reportID, originalHash string, report *verifyReport) {
	if err := v.Verify(entityID, originalHash); err != nil {
		report.Mismatches = append(report.Mismatches, verifyMismatch{
			EntityType: entityType,
			EntityID:   entityID,
			ReportID:   reportID,
			Reason:     err.Error(),
		})

		return
	}

	report.Verified++
}

func printVerifyJSON(report *verifyReport) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("encoding JSON output: %w", err)
	}

	return nil
}

func printVerifyTable(report *verifyReport) {
	fmt.Printf("Verified: %d artifacts\n", report.Verified)

	if len(report.Mismatches) == 0 {
		fmt.Println("All artifacts verified successfully.")
		return
	}

	fmt.Printf("Mismatches: %d\n\n", len(report.Mismatches))

	headers := []string{"TYPE", "ID", "REPORT", "REASON"}
	rows := make([][]string, len(report.Mismatches))

	for i, m := range report.Mismatches {
		rows[i] = []string{m.EntityType, m.EntityID, m.ReportID, m.Reason}
	}

	printTable(os.Stdout, headers, rows)
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/inspectcore/inspectcore/internal/store"
)

func newReportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Create inspection reports and drive their lifecycle",
	}

	cmd.AddCommand(newReportCreateCmd())
	cmd.AddCommand(newReportListCmd())
	cmd.AddCommand(newReportSubmitCmd())
	cmd.AddCommand(newReportApproveCmd())
	cmd.AddCommand(newReportFinaliseCmd())
	cmd.AddCommand(newReportArchiveCmd())

	return cmd
}

func newReportCreateCmd() *cobra.Command {
	var propertyAddress, propertyType, inspectionType, clientName, clientEmail string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new DRAFT report on this device",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc := mustCLIContext(cmd.Context())
			ctx := cmd.Context()

			if propertyAddress == "" {
				return fmt.Errorf("--property-address is required")
			}

			st, err := openStore(cc)
			if err != nil {
				return err
			}
			defer st.Close()

			inspectorID, _, actorErr := currentActor(cc)
			if actorErr != nil {
				cc.Logger.Warn("report create: no acting user resolved", "error", actorErr)
			}

			now := store.NowNano()
			r := &store.Report{
				ID:              uuid.New().String(),
				Status:          store.ReportStatusDraft,
				PropertyAddress: propertyAddress,
				PropertyType:    propertyType,
				InspectionDate:  now,
				InspectionType:  inspectionType,
				ClientName:      clientName,
				ClientEmail:     clientEmail,
				InspectorID:     inspectorID,
				SyncStatus:      store.SyncStatusDraft,
				CreatedAt:       now,
				UpdatedAt:       now,
			}

			if err := st.SaveReport(ctx, r); err != nil {
				return fmt.Errorf("saving report: %w", err)
			}

			cc.Statusf("Created report %s\n", r.ID)

			return nil
		},
	}

	cmd.Flags().StringVar(&propertyAddress, "property-address", "", "address of the inspected property (required)")
	cmd.Flags().StringVar(&propertyType, "property-type", "", "property category (e.g. residential, commercial)")
	cmd.Flags().StringVar(&inspectionType, "inspection-type", "", "inspection type, matched against templates")
	cmd.Flags().StringVar(&clientName, "client-name", "", "client display name")
	cmd.Flags().StringVar(&clientEmail, "client-email", "", "client contact email")

	return cmd
}

func newReportListCmd() *cobra.Command {
	var status string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List reports in a given lifecycle status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc := mustCLIContext(cmd.Context())

			st, err := openStore(cc)
			if err != nil {
				return err
			}
			defer st.Close()

			reports, err := st.ReportsByStatus(cmd.Context(), store.ReportStatus(status))
			if err != nil {
				return err
			}

			if cc.Flags.JSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")

				return enc.Encode(reports)
			}

			if len(reports) == 0 {
				cc.Statusf("No reports with status %s.\n", status)
				return nil
			}

			for _, r := range reports {
				fmt.Printf("%s  %-14s  %-8s  %s\n", r.ID, r.Status, r.SyncStatus, r.PropertyAddress)
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&status, "status", string(store.ReportStatusDraft), "lifecycle status to list")

	return cmd
}

// lifecycleTransition describes one out-of-band report action: the
// statuses it may start from, the status it lands on, and the queue
// operation that mirrors it to the server. An empty operation means the
// transition is covered by plain dirty-row sync and records no queue
// item (archive).
type lifecycleTransition struct {
	verb      string
	from      []store.ReportStatus
	to        store.ReportStatus
	operation store.QueueOperation
}

func newReportSubmitCmd() *cobra.Command {
	return newLifecycleCmd("submit", "Submit a report for review", lifecycleTransition{
		verb:      "submit",
		from:      []store.ReportStatus{store.ReportStatusDraft, store.ReportStatusInProgress},
		to:        store.ReportStatusPendingReview,
		operation: store.QueueOpSubmitForReview,
	})
}

func newReportApproveCmd() *cobra.Command {
	return newLifecycleCmd("approve", "Approve a report under review", lifecycleTransition{
		verb:      "approve",
		from:      []store.ReportStatus{store.ReportStatusPendingReview},
		to:        store.ReportStatusApproved,
		operation: store.QueueOpApprove,
	})
}

func newReportFinaliseCmd() *cobra.Command {
	return newLifecycleCmd("finalise", "Finalise an approved report", lifecycleTransition{
		verb:      "finalise",
		from:      []store.ReportStatus{store.ReportStatusApproved},
		to:        store.ReportStatusFinalised,
		operation: store.QueueOpFinalise,
	})
}

func newReportArchiveCmd() *cobra.Command {
	// Archive has no out-of-band operation: the status change itself is
	// the whole action, and dirty-row sync carries it.
	return newLifecycleCmd("archive", "Archive a finalised report", lifecycleTransition{
		verb: "archive",
		from: []store.ReportStatus{store.ReportStatusFinalised},
		to:   store.ReportStatusArchived,
	})
}

func newLifecycleCmd(use, short string, tr lifecycleTransition) *cobra.Command {
	var id string

	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc := mustCLIContext(cmd.Context())

			if id == "" {
				return fmt.Errorf("--id is required")
			}

			st, err := openStore(cc)
			if err != nil {
				return err
			}
			defer st.Close()

			return applyLifecycleTransition(cmd.Context(), cc, st, tr, id)
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "report ID (required)")

	return cmd
}

func applyLifecycleTransition(ctx context.Context, cc *CLIContext, st *store.SQLiteStore, tr lifecycleTransition, id string) error {
	r, err := st.GetReport(ctx, id)
	if err != nil {
		return err
	}

	if r == nil {
		return fmt.Errorf("report %s not found", id)
	}

	if !statusIn(r.Status, tr.from) {
		return fmt.Errorf("cannot %s report %s: status is %s", tr.verb, id, r.Status)
	}

	now := store.NowNano()
	r.Status = tr.to
	r.SyncStatus = store.SyncStatusPending
	r.UpdatedAt = now

	switch tr.to {
	case store.ReportStatusPendingReview:
		r.SubmittedAt = &now
	case store.ReportStatusApproved:
		r.ApprovedAt = &now
	}

	if err := st.SaveReport(ctx, r); err != nil {
		return fmt.Errorf("saving report: %w", err)
	}

	if tr.operation != "" {
		item := &store.SyncQueueItem{
			EntityType:  "report",
			EntityID:    id,
			Operation:   tr.operation,
			PayloadJSON: json.RawMessage(`{}`),
			CreatedAt:   now,
			UpdatedAt:   now,
		}

		if _, err := st.EnqueueSyncItem(ctx, item); err != nil {
			return fmt.Errorf("enqueueing %s action: %w", tr.verb, err)
		}
	}

	cc.Statusf("Report %s is now %s\n", id, r.Status)

	return nil
}

func statusIn(s store.ReportStatus, allowed []store.ReportStatus) bool {
	for _, a := range allowed {
		if s == a {
			return true
		}
	}

	return false
}

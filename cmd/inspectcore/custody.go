package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/inspectcore/inspectcore/internal/store"
)

func newCustodyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "custody",
		Short: "Inspect the chain-of-custody timeline for a captured artifact",
	}

	cmd.AddCommand(newCustodyShowCmd())

	return cmd
}

func newCustodyShowCmd() *cobra.Command {
	var entityType, entityID string

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show every custody event recorded for one entity, oldest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc := mustCLIContext(cmd.Context())

			if entityType == "" || entityID == "" {
				return fmt.Errorf("--entity-type and --entity-id are required")
			}

			st, err := openStore(cc)
			if err != nil {
				return err
			}
			defer st.Close()

			cl := newCustodyLog(st, cc.Logger)

			events, err := cl.EventsFor(cmd.Context(), entityType, entityID)
			if err != nil {
				return err
			}

			if cc.Flags.JSON {
				return printCustodyEventsJSON(events)
			}

			printCustodyEventsTable(events)

			return nil
		},
	}

	cmd.Flags().StringVar(&entityType, "entity-type", "", "entity kind (photo, video, voicenote, report) (required)")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity ID (required)")

	return cmd
}

func printCustodyEventsJSON(events []*store.CustodyEvent) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	if err := enc.Encode(events); err != nil {
		return fmt.Errorf("encoding JSON output: %w", err)
	}

	return nil
}

func printCustodyEventsTable(events []*store.CustodyEvent) {
	if len(events) == 0 {
		fmt.Println("No custody events recorded for this entity.")
		return
	}

	headers := []string{"TIME", "ACTION", "USER", "SYNCED"}
	rows := make([][]string, len(events))

	for i, e := range events {
		synced := "no"
		if e.SyncedFlag {
			synced = "yes"
		}

		rows[i] = []string{
			formatTime(time.Unix(0, e.CreatedAt)),
			string(e.Action),
			e.UserName,
			synced,
		}
	}

	printTable(os.Stdout, headers, rows)
}

package main

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/inspectcore/inspectcore/internal/authjwt"
	"github.com/inspectcore/inspectcore/internal/secrets"
)

// pendingSync tallies how many rows of each evidence kind still need to
// reach the server.
type pendingSync struct {
	Reports    int `json:"reports"`
	Photos     int `json:"photos"`
	Videos     int `json:"videos"`
	VoiceNotes int `json:"voiceNotes"`
}

// authState summarizes the on-disk bearer token without making a network
// call — everything here is decoded from the token's claims locally; the
// signature is not checked.
type authState struct {
	LoggedIn         bool   `json:"loggedIn"`
	Subject          string `json:"subject,omitempty"`
	Name             string `json:"name,omitempty"`
	Expired          bool   `json:"expired"`
	RemainingSeconds uint32 `json:"remainingSeconds,omitempty"`
}

// deviceStatus is the full status report, printed either as a table or as
// JSON.
type deviceStatus struct {
	LastBootstrapAt *int64      `json:"lastBootstrapAt,omitempty"`
	LastUploadAt    *int64      `json:"lastUploadAt,omitempty"`
	Pending         pendingSync `json:"pendingSync"`
	UnsyncedCustody int         `json:"unsyncedCustodyEvents"`
	Auth            authState   `json:"auth"`
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show sync state, pending uploads, and authentication state",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc := mustCLIContext(cmd.Context())

			status, err := buildStatus(cmd.Context(), cc)
			if err != nil {
				return err
			}

			if cc.Flags.JSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")

				return enc.Encode(status)
			}

			printStatusText(cc, status)

			return nil
		},
	}
}

func buildStatus(ctx context.Context, cc *CLIContext) (*deviceStatus, error) {
	st, err := openStore(cc)
	if err != nil {
		return nil, err
	}
	defer st.Close()

	syncState, err := st.GetSyncState(ctx)
	if err != nil {
		return nil, err
	}

	pendingReports, err := st.PendingSyncReports(ctx)
	if err != nil {
		return nil, err
	}

	pendingPhotos, err := st.PendingSyncPhotos(ctx)
	if err != nil {
		return nil, err
	}

	pendingVideos, err := st.PendingSyncVideos(ctx)
	if err != nil {
		return nil, err
	}

	pendingVoiceNotes, err := st.PendingSyncVoiceNotes(ctx)
	if err != nil {
		return nil, err
	}

	unsynced, err := st.UnsyncedEvents(ctx)
	if err != nil {
		return nil, err
	}

	return &deviceStatus{
		LastBootstrapAt: syncState.LastBootstrapAt,
		LastUploadAt:    syncState.LastUploadAt,
		Pending: pendingSync{
			Reports:    len(pendingReports),
			Photos:     len(pendingPhotos),
			Videos:     len(pendingVideos),
			VoiceNotes: len(pendingVoiceNotes),
		},
		UnsyncedCustody: len(unsynced),
		Auth:            buildAuthState(),
	}, nil
}

// buildAuthState reads and decodes the on-disk bearer token entirely
// offline; a missing or unparsable token is reported as logged-out rather
// than propagated as an error, since neither case blocks the rest of the
// status report.
func buildAuthState() authState {
	f, err := secrets.Load(credentialsPath())
	if err != nil || f == nil {
		return authState{LoggedIn: false}
	}

	claims, err := authjwt.DecodeUnsafe(f.BearerToken)
	if err != nil {
		return authState{LoggedIn: false}
	}

	return authState{
		LoggedIn:         true,
		Subject:          claims.Subject,
		Name:             claims.Name,
		Expired:          authjwt.IsExpired(f.BearerToken),
		RemainingSeconds: authjwt.RemainingSeconds(f.BearerToken),
	}
}

func printStatusText(cc *CLIContext, s *deviceStatus) {
	cc.Statusf("Sync state:\n")

	if s.LastBootstrapAt != nil {
		cc.Statusf("  Last bootstrap: %s\n", formatTime(time.Unix(0, *s.LastBootstrapAt)))
	} else {
		cc.Statusf("  Last bootstrap: never\n")
	}

	if s.LastUploadAt != nil {
		cc.Statusf("  Last upload:    %s\n", formatTime(time.Unix(0, *s.LastUploadAt)))
	} else {
		cc.Statusf("  Last upload:    never\n")
	}

	cc.Statusf("\nPending sync:\n")
	cc.Statusf("  Reports:     %d\n", s.Pending.Reports)
	cc.Statusf("  Photos:      %d\n", s.Pending.Photos)
	cc.Statusf("  Videos:      %d\n", s.Pending.Videos)
	cc.Statusf("  VoiceNotes:  %d\n", s.Pending.VoiceNotes)
	cc.Statusf("  Custody:     %d unsynced events\n", s.UnsyncedCustody)

	cc.Statusf("\nAuthentication:\n")

	if !s.Auth.LoggedIn {
		cc.Statusf("  Not logged in\n")
		return
	}

	cc.Statusf("  User:      %s (%s)\n", s.Auth.Name, s.Auth.Subject)

	if s.Auth.Expired {
		cc.Statusf("  Token:     expired\n")
	} else {
		cc.Statusf("  Token:     valid, %ds remaining\n", s.Auth.RemainingSeconds)
	}
}

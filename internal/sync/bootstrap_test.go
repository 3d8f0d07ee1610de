package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inspectcore/inspectcore/internal/store"
)

func TestBootstrap_OmitsLastSyncAtOnFirstBoot(t *testing.T) {
	var gotPath string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.RequestURI()
		fmt.Fprint(w, `{"checklists":[],"templates":[],"recentReports":[]}`)
	}))
	defer srv.Close()

	s := newFakeStore()
	e := newTestEngine(t, s, &fakeCustody{}, &fakeVault{}, newStubHTTPClient(srv.URL), http.DefaultClient, nil, nil)

	_, err := e.Bootstrap(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "/sync/bootstrap", gotPath)
	require.NotNil(t, s.syncState.LastBootstrapAt)
}

func TestBootstrap_IncludesLastSyncAtOnSubsequentCalls(t *testing.T) {
	var gotQuery url.Values

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		fmt.Fprint(w, `{"checklists":[],"templates":[],"recentReports":[]}`)
	}))
	defer srv.Close()

	s := newFakeStore()
	last := int64(123456789)
	s.syncState.LastBootstrapAt = &last

	e := newTestEngine(t, s, &fakeCustody{}, &fakeVault{}, newStubHTTPClient(srv.URL), http.DefaultClient, nil, nil)

	_, err := e.Bootstrap(context.Background())
	require.NoError(t, err)

	// The cursor crosses the wire as an ISO-8601 UTC string, never a
	// raw integer.
	got := gotQuery.Get("lastSyncAt")
	assert.Equal(t, store.FormatISO8601(last), got)

	parsed, err := store.ParseISO8601(got)
	require.NoError(t, err)
	assert.Equal(t, last, parsed)
}

func TestBootstrap_SavesAllSections(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{
			"user":{"id":"u1","email":"ana@example.com","name":"Ana Reyes","role":"inspector","status":"active","updatedAt":%q},
			"checklists":[{"id":"c1","standard":"AS 1562","items":[{"id":"i1","text":"fixings"}],"updatedAt":%q}],
			"templates":[{"id":"t1","inspectionType":"condition","sections":["scope"],"isDefault":true,"updatedAt":%q}],
			"recentReports":[{"id":"r1","status":"IN_PROGRESS","propertyAddress":"12 Ridge Rd","scope":{"areas":["roof"]},"findings":{"count":2},"updatedAt":%q}]
		}`, iso(10), iso(20), iso(30), iso(100))
	}))
	defer srv.Close()

	s := newFakeStore()
	e := newTestEngine(t, s, &fakeCustody{}, &fakeVault{}, newStubHTTPClient(srv.URL), http.DefaultClient, nil, nil)

	counts, err := e.Bootstrap(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, counts.Checklists)
	assert.Equal(t, 1, counts.Templates)
	assert.Equal(t, 1, counts.Reports)

	user := s.users["u1"]
	require.NotNil(t, user, "the user section must be persisted")
	assert.Equal(t, "ana@example.com", user.Email)
	assert.Equal(t, int64(10), user.UpdatedAt)

	checklist := s.checklists["c1"]
	require.NotNil(t, checklist)
	assert.Equal(t, "AS 1562", checklist.Standard)
	assert.JSONEq(t, `[{"id":"i1","text":"fixings"}]`, string(checklist.ItemsJSON))

	template := s.templates["t1"]
	require.NotNil(t, template)
	assert.True(t, template.IsDefault)
	assert.JSONEq(t, `["scope"]`, string(template.SectionsJSON))

	report := s.reports["r1"]
	require.NotNil(t, report)
	assert.Equal(t, store.SyncStatusSynced, report.SyncStatus)
	assert.Equal(t, store.ReportStatusInProgress, report.Status)
	assert.Equal(t, int64(100), report.UpdatedAt)
	assert.JSONEq(t, `{"areas":["roof"]}`, string(report.ScopeJSON))
	assert.JSONEq(t, `{"count":2}`, string(report.FindingsJSON))
}

func TestBootstrap_ServerReportOverwritesStaleLocal(t *testing.T) {
	// The S2 reconciliation path: a server_wins conflict is applied on
	// the next bootstrap, replacing the local row wholesale including
	// the narrative blobs.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{
			"checklists":[],"templates":[],
			"recentReports":[{"id":"r1","status":"IN_PROGRESS","clientName":"New Client","conclusions":{"verdict":"replace"},"updatedAt":%q}]
		}`, iso(1100))
	}))
	defer srv.Close()

	s := newFakeStore()
	s.reports["r1"] = &store.Report{
		ID: "r1", SyncStatus: store.SyncStatusPending, UpdatedAt: 1000,
		ClientName:      "Old Client",
		ConclusionsJSON: json.RawMessage(`{"verdict":"stale"}`),
	}

	e := newTestEngine(t, s, &fakeCustody{}, &fakeVault{}, newStubHTTPClient(srv.URL), http.DefaultClient, nil, nil)

	_, err := e.Bootstrap(context.Background())
	require.NoError(t, err)

	got := s.reports["r1"]
	assert.Equal(t, "New Client", got.ClientName)
	assert.Equal(t, store.SyncStatusSynced, got.SyncStatus)
	assert.JSONEq(t, `{"verdict":"replace"}`, string(got.ConclusionsJSON))
}

func TestBootstrap_FailsFastWhileAnotherSyncHoldsTheGuard(t *testing.T) {
	s := newFakeStore()
	e := newTestEngine(t, s, &fakeCustody{}, &fakeVault{}, nil, http.DefaultClient, nil, nil)

	e.isSyncing.Store(true)
	defer e.isSyncing.Store(false)

	_, err := e.Bootstrap(context.Background())
	require.ErrorIs(t, err, ErrSyncInProgress)
}

func TestBootstrapInline_IgnoresTheGuardEntirely(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"checklists":[],"templates":[],"recentReports":[]}`)
	}))
	defer srv.Close()

	s := newFakeStore()
	e := newTestEngine(t, s, &fakeCustody{}, &fakeVault{}, newStubHTTPClient(srv.URL), http.DefaultClient, nil, nil)

	e.isSyncing.Store(true)
	defer e.isSyncing.Store(false)

	_, err := e.bootstrapInline(context.Background())
	require.NoError(t, err)
}

package sync

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inspectcore/inspectcore/internal/store"
	"github.com/inspectcore/inspectcore/internal/transport"
)

func enqueueTestItem(s *fakeStore, op store.QueueOperation, reportID string) *store.SyncQueueItem {
	item := &store.SyncQueueItem{
		EntityType:  "report",
		EntityID:    reportID,
		Operation:   op,
		PayloadJSON: json.RawMessage(`{}`),
		CreatedAt:   store.NowNano(),
		UpdatedAt:   store.NowNano(),
	}
	s.enqueue(item)

	return item
}

func TestProcessQueueItems_PostsAndDeletesOnSuccess(t *testing.T) {
	var received []queuedOperation

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/sync/operations", r.URL.Path)

		var op queuedOperation
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &op))
		received = append(received, op)
	}))
	defer srv.Close()

	s := newFakeStore()
	enqueueTestItem(s, store.QueueOpSubmitForReview, "r1")
	enqueueTestItem(s, store.QueueOpFinalise, "r1")

	e := newTestEngine(t, s, &fakeCustody{}, &fakeVault{}, newStubHTTPClient(srv.URL), http.DefaultClient, nil, nil)

	processed := e.processQueueItems(t.Context())
	assert.Equal(t, 2, processed)

	require.Len(t, received, 2)
	assert.Equal(t, "submit_for_review", received[0].Operation)
	assert.Equal(t, "finalise", received[1].Operation)

	remaining, err := s.PendingQueueItems(t.Context())
	require.NoError(t, err)
	assert.Empty(t, remaining)
}

func TestProcessQueueItems_TransientFailureIncrementsAttempts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	s := newFakeStore()
	item := enqueueTestItem(s, store.QueueOpApprove, "r1")

	e := newTestEngine(t, s, &fakeCustody{}, &fakeVault{}, newStubHTTPClient(srv.URL), http.DefaultClient, nil, nil)

	processed := e.processQueueItems(t.Context())
	assert.Zero(t, processed)

	assert.Equal(t, 1, item.AttemptCount)
	assert.False(t, item.PermanentlyFailedFlag)
	require.NotNil(t, item.LastError)
}

func TestProcessQueueItems_RetryExhaustionParksItemAndMarksReportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	s := newFakeStore()
	s.reports["r1"] = &store.Report{ID: "r1", SyncStatus: store.SyncStatusSynced}

	item := enqueueTestItem(s, store.QueueOpApprove, "r1")
	item.AttemptCount = 4 // one attempt away from the default cap of 5

	e := newTestEngine(t, s, &fakeCustody{}, &fakeVault{}, newStubHTTPClient(srv.URL), http.DefaultClient, nil, nil)

	e.processQueueItems(t.Context())

	assert.True(t, item.PermanentlyFailedFlag)
	assert.Equal(t, store.SyncStatusError, s.reports["r1"].SyncStatus)
	require.NotNil(t, s.reports["r1"].LastSyncError)
}

func TestIsQueuePayloadRejected(t *testing.T) {
	cases := []struct {
		status int
		want   bool
	}{
		{http.StatusBadRequest, true},
		{http.StatusUnprocessableEntity, true},
		{http.StatusUnauthorized, false},
		{http.StatusRequestTimeout, false},
		{http.StatusTooManyRequests, false},
		{http.StatusInternalServerError, false},
	}

	for _, tc := range cases {
		err := &transport.Error{StatusCode: tc.status}
		assert.Equal(t, tc.want, isQueuePayloadRejected(err), "status=%d", tc.status)
	}

	assert.False(t, isQueuePayloadRejected(assert.AnError), "non-transport errors are transient")
}

func TestHandleQueueItemFailure_PayloadRejectionIsImmediatelyPermanent(t *testing.T) {
	s := newFakeStore()
	s.reports["r1"] = &store.Report{ID: "r1", SyncStatus: store.SyncStatusSynced}

	item := enqueueTestItem(s, store.QueueOpSubmitForReview, "r1")

	e := newTestEngine(t, s, &fakeCustody{}, &fakeVault{}, newStubHTTPClient("http://unused"), http.DefaultClient, nil, nil)

	opErr := &transport.Error{StatusCode: http.StatusBadRequest, Message: "unknown operation"}
	e.handleQueueItemFailure(t.Context(), item, opErr, 5)

	assert.True(t, item.PermanentlyFailedFlag)
	assert.Equal(t, 1, item.AttemptCount)
	assert.Equal(t, store.SyncStatusError, s.reports["r1"].SyncStatus)
}

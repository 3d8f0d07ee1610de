package transport

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedToken string

func (f fixedToken) Token() (string, error) { return string(f), nil }

func fixedRemaining(d time.Duration) RemainingFunc {
	return func(string) (time.Duration, error) { return d, nil }
}

func TestRefreshingTokenSource_AboveThresholdPassesThrough(t *testing.T) {
	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	ts := NewRefreshingTokenSource(fixedToken("current"), srv.URL, srv.Client(),
		fixedRemaining(2*time.Hour), nil, DefaultRefreshThreshold, slog.Default())

	tok, err := ts.Token()
	require.NoError(t, err)
	assert.Equal(t, "current", tok)
	assert.Zero(t, calls.Load(), "no refresh request expected above threshold")
}

func TestRefreshingTokenSource_BelowThresholdRefreshesAndPersists(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/auth/refresh", r.URL.Path)
		assert.Equal(t, "Bearer old", r.Header.Get("Authorization"))
		assert.Equal(t, ApplicationHeader, r.Header.Get("X-Application"))
		w.Write([]byte(`{"accessToken":"new"}`))
	}))
	defer srv.Close()

	var persisted string

	persist := func(tok string) error {
		persisted = tok
		return nil
	}

	ts := NewRefreshingTokenSource(fixedToken("old"), srv.URL, srv.Client(),
		fixedRemaining(20*time.Minute), persist, DefaultRefreshThreshold, slog.Default())

	tok, err := ts.Token()
	require.NoError(t, err)
	assert.Equal(t, "new", tok)
	assert.Equal(t, "new", persisted)
}

func TestRefreshingTokenSource_RefreshFailureReturnsCurrentToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ts := NewRefreshingTokenSource(fixedToken("old"), srv.URL, srv.Client(),
		fixedRemaining(time.Minute), nil, DefaultRefreshThreshold, slog.Default())

	tok, err := ts.Token()
	require.NoError(t, err)
	assert.Equal(t, "old", tok, "original token used until its actual expiry")
}

func TestRefreshingTokenSource_AttemptsAreRateLimited(t *testing.T) {
	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ts := NewRefreshingTokenSource(fixedToken("old"), srv.URL, srv.Client(),
		fixedRemaining(time.Minute), nil, DefaultRefreshThreshold, slog.Default())

	for range 5 {
		tok, err := ts.Token()
		require.NoError(t, err)
		assert.Equal(t, "old", tok)
	}

	assert.Equal(t, int32(1), calls.Load(), "repeated failing refreshes should not hammer the server")
}

func TestRefreshingTokenSource_UndecodableTokenPassesThrough(t *testing.T) {
	remaining := func(string) (time.Duration, error) {
		return 0, assert.AnError
	}

	ts := NewRefreshingTokenSource(fixedToken("garbage"), "http://unused", nil,
		remaining, nil, DefaultRefreshThreshold, slog.Default())

	tok, err := ts.Token()
	require.NoError(t, err)
	assert.Equal(t, "garbage", tok)
}

package main

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inspectcore/inspectcore/internal/config"
	"github.com/inspectcore/inspectcore/internal/transport"
)

func testAuthContext(baseURL string) *CLIContext {
	cfg := config.DefaultConfig()
	cfg.API.BaseURL = baseURL

	return &CLIContext{Cfg: cfg, Logger: buildLogger(nil, CLIFlags{Quiet: true}), Flags: CLIFlags{Quiet: true}}
}

func TestRunLogin_RejectedCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/login", r.URL.Path)
		assert.Equal(t, transport.ApplicationHeader, r.Header.Get("X-Application"))
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	cc := testAuthContext(srv.URL)

	err := runLogin(t.Context(), cc, "user@example.com", "wrong")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "login rejected")
}

func TestRunLogin_UntrustedTokenRejected(t *testing.T) {
	// A structurally valid response whose token was not signed by the
	// embedded key must never reach the credential file.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"accessToken":"not.a.trusted-token"}`))
	}))
	defer srv.Close()

	cc := testAuthContext(srv.URL)

	err := runLogin(t.Context(), cc, "user@example.com", "pw")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not trust")
}

func TestRunLogin_EmptyTokenRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	cc := testAuthContext(srv.URL)

	err := runLogin(t.Context(), cc, "user@example.com", "pw")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no access token")
}

func TestNewLoginCmd_RequiresEmail(t *testing.T) {
	cmd := newLoginCmd()
	assert.Equal(t, "login", cmd.Use)

	flag := cmd.Flags().Lookup("email")
	require.NotNil(t, flag)
}

func TestDoUnauthenticated_SetsHeaders(t *testing.T) {
	var gotApp, gotAuth string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotApp = r.Header.Get("X-Application")
		gotAuth = r.Header.Get("Authorization")
	}))
	defer srv.Close()

	resp, err := doUnauthenticated(t.Context(), http.MethodGet, srv.URL+"/health", nil, "tok")
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, transport.ApplicationHeader, gotApp)
	assert.Equal(t, "Bearer tok", gotAuth)
}

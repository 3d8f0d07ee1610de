package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inspectcore/inspectcore/internal/config"
)

func TestNetmonTarget_UsesConfiguredHostAndPort(t *testing.T) {
	cfg := &config.Config{API: config.APIConfig{BaseURL: "https://api.example.com:8443/v1"}}
	assert.Equal(t, "api.example.com:8443", netmonTarget(cfg))
}

func TestNetmonTarget_DefaultsPortFromScheme(t *testing.T) {
	httpsCfg := &config.Config{API: config.APIConfig{BaseURL: "https://api.example.com/v1"}}
	assert.Equal(t, "api.example.com:443", netmonTarget(httpsCfg))

	httpCfg := &config.Config{API: config.APIConfig{BaseURL: "http://api.example.com/v1"}}
	assert.Equal(t, "api.example.com:80", netmonTarget(httpCfg))
}

func TestNetmonTarget_FallsBackOnUnparsableURL(t *testing.T) {
	cfg := &config.Config{API: config.APIConfig{BaseURL: "://not a url"}}
	assert.Equal(t, "api.inspectcore.io:443", netmonTarget(cfg))
}

func TestCurrentActor_NoCredentialsReturnsError(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cc := &CLIContext{Cfg: &config.Config{}, Logger: buildLogger(nil, CLIFlags{})}

	_, _, err := currentActor(cc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not logged in")
}

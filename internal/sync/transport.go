package sync

import (
	"context"
	"io"
	"net/http"

	"github.com/inspectcore/inspectcore/internal/netmon"
)

// HTTPClient is the subset of *transport.Client the sync engine needs.
// Defined consumer-side so tests can substitute a stub without spinning
// up a real *transport.Client.
type HTTPClient interface {
	Do(ctx context.Context, method, path string, body io.Reader) (*http.Response, error)
	DoWithHeaders(ctx context.Context, method, path string, body io.Reader, extraHeaders http.Header) (*http.Response, error)
}

// NetMonitor is the subset of *netmon.Monitor the sync engine needs for
// WiFi-gating large uploads and triggering opportunistic sync.
type NetMonitor interface {
	Status() netmon.Status
	OnlineTransitions() <-chan struct{}
}

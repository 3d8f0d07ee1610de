package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// DefaultRefreshThreshold is the remaining access-token lifetime below
// which a proactive refresh is attempted.
const DefaultRefreshThreshold = 30 * time.Minute

// refreshTimeout bounds the refresh round trip so a slow server cannot
// stall the request that triggered it.
const refreshTimeout = 10 * time.Second

// RemainingFunc reports how long a token stays valid. internal/authjwt's
// RemainingSeconds satisfies this after a small adapter; defined here so
// transport does not import the verifier.
type RemainingFunc func(token string) (time.Duration, error)

// PersistFunc stores a freshly-issued access token, typically back into
// the secrets file the wrapped TokenSource reads from.
type PersistFunc func(token string) error

// RefreshingTokenSource wraps a TokenSource with the proactive-refresh
// rule: when the current token's remaining lifetime drops below the
// threshold, POST /auth/refresh and persist the replacement before
// handing a token out. Refresh failures are soft: the original token is
// returned and used until its actual expiry, at which point the
// server's 401 drives the logout path instead.
type RefreshingTokenSource struct {
	base       TokenSource
	refreshURL string
	httpClient *http.Client
	remaining  RemainingFunc
	persist    PersistFunc
	threshold  time.Duration
	logger     *slog.Logger

	mu          sync.Mutex
	lastAttempt time.Time
}

// refreshAttemptInterval stops a dying token from triggering a refresh
// POST on every single request once the server starts refusing to mint
// replacements.
const refreshAttemptInterval = time.Minute

// NewRefreshingTokenSource wires the proactive-refresh wrapper. baseURL
// is the API root; threshold <= 0 selects DefaultRefreshThreshold.
func NewRefreshingTokenSource(base TokenSource, baseURL string, httpClient *http.Client,
	remaining RemainingFunc, persist PersistFunc, threshold time.Duration, logger *slog.Logger,
) *RefreshingTokenSource {
	if threshold <= 0 {
		threshold = DefaultRefreshThreshold
	}

	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &RefreshingTokenSource{
		base:       base,
		refreshURL: baseURL + "/auth/refresh",
		httpClient: httpClient,
		remaining:  remaining,
		persist:    persist,
		threshold:  threshold,
		logger:     logger,
	}
}

// Token returns the current bearer token, refreshing it first when its
// remaining lifetime is below the threshold.
func (r *RefreshingTokenSource) Token() (string, error) {
	tok, err := r.base.Token()
	if err != nil {
		return "", err
	}

	left, err := r.remaining(tok)
	if err != nil || left >= r.threshold {
		// Undecodable tokens are passed through untouched; the server's
		// response is the authority on whether they still work.
		return tok, nil
	}

	refreshed, refreshErr := r.refresh(tok)
	if refreshErr != nil {
		r.logger.Warn("proactive token refresh failed, continuing with current token",
			"remaining", left, "error", refreshErr.Error())

		return tok, nil
	}

	return refreshed, nil
}

func (r *RefreshingTokenSource) refresh(current string) (string, error) {
	r.mu.Lock()

	if time.Since(r.lastAttempt) < refreshAttemptInterval {
		r.mu.Unlock()
		return "", fmt.Errorf("refresh attempted %s ago, not retrying yet", time.Since(r.lastAttempt).Round(time.Second))
	}

	r.lastAttempt = time.Now()
	r.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.refreshURL, bytes.NewReader(nil))
	if err != nil {
		return "", fmt.Errorf("creating refresh request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+current)
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("X-Application", ApplicationHeader)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("refresh request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("refresh returned HTTP %d: %s", resp.StatusCode, string(body))
	}

	var payload struct {
		AccessToken string `json:"accessToken"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("decoding refresh response: %w", err)
	}

	if payload.AccessToken == "" {
		return "", fmt.Errorf("refresh response carried no access token")
	}

	if r.persist != nil {
		if err := r.persist(payload.AccessToken); err != nil {
			// The new token is valid even if it could not be saved; use it
			// for this process and let the next refresh try persisting again.
			r.logger.Warn("persisting refreshed token failed", "error", err.Error())
		}
	}

	r.logger.Info("access token refreshed proactively")

	return payload.AccessToken, nil
}

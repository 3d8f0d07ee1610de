package transport

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand/v2"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// Backoff parameters: base 1s, factor 2x, max 60s, plus a flat additive
// jitter in [0, 500ms) rather than a proportional one.
const (
	baseBackoff          = 1 * time.Second
	maxBackoff           = 60 * time.Second
	backoffFactor        = 2.0
	maxJitter            = 500 * time.Millisecond
	userAgent            = "inspectcore-sync/1"
	unauthorizedDebounce = 5 * time.Second
)

// ApplicationHeader identifies this client class to the server; every
// request carries it.
const ApplicationHeader = "MOBILE"

// DefaultMaxRetries matches config.defaultMaxRetryAttempts; callers
// normally pass the resolved config value instead of this constant.
const DefaultMaxRetries = 5

// TokenSource supplies the current bearer token. Defined at the consumer
// per "accept interfaces, return structs" — internal/authjwt and
// internal/secrets satisfy this without importing transport.
type TokenSource interface {
	Token() (string, error)
}

// Client is an authenticated HTTP client with retry, backoff, and a
// debounced unauthorized callback.
type Client struct {
	baseURL    string
	httpClient *http.Client
	token      TokenSource
	logger     *slog.Logger
	maxRetries int

	sleepFunc func(ctx context.Context, d time.Duration) error

	onUnauthorized     func()
	unauthorizedMu     sync.Mutex
	lastUnauthorizedAt time.Time
}

// New constructs a Client. maxRetries caps retry attempts for transient
// failures (config's max_retry_attempts). onUnauthorized, if non-nil, is
// invoked at most once per unauthorizedDebounce window whenever a request
// terminates with HTTP 401.
func New(baseURL string, httpClient *http.Client, token TokenSource, logger *slog.Logger, maxRetries int, onUnauthorized func()) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}

	return &Client{
		baseURL:        baseURL,
		httpClient:     httpClient,
		token:          token,
		logger:         logger,
		maxRetries:     maxRetries,
		sleepFunc:      timeSleep,
		onUnauthorized: onUnauthorized,
	}
}

// Do executes an authenticated request against path (relative to
// baseURL), retrying transient failures with backoff. The caller must
// close the response body on success.
func (c *Client) Do(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	return c.doWithHeaders(ctx, method, path, body, nil)
}

// DoWithHeaders behaves like Do but merges extraHeaders into every
// request attempt.
func (c *Client) DoWithHeaders(ctx context.Context, method, path string, body io.Reader, extraHeaders http.Header) (*http.Response, error) {
	return c.doWithHeaders(ctx, method, path, body, extraHeaders)
}

func (c *Client) doWithHeaders(ctx context.Context, method, path string, body io.Reader, extraHeaders http.Header) (*http.Response, error) {
	url := c.baseURL + path

	var attempt int

	for {
		if err := rewindBody(body); err != nil {
			return nil, err
		}

		resp, err := c.doOnce(ctx, method, url, body, extraHeaders)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("transport: request canceled: %w", ctx.Err())
			}

			if attempt < c.maxRetries {
				backoff := c.calcBackoff(attempt)
				c.logger.Warn("retrying after network error",
					"method", method, "path", path, "attempt", attempt+1,
					"backoff", backoff, "error", err.Error())

				if sleepErr := c.sleepFunc(ctx, backoff); sleepErr != nil {
					return nil, fmt.Errorf("transport: request canceled: %w", sleepErr)
				}

				attempt++

				continue
			}

			return nil, fmt.Errorf("transport: %s %s failed after %d retries: %w", method, path, c.maxRetries, err)
		}

		if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
			return resp, nil
		}

		errBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		if readErr != nil {
			errBody = []byte("(failed to read response body)")
		}

		reqID := resp.Header.Get("request-id")

		if resp.StatusCode == http.StatusUnauthorized {
			c.notifyUnauthorized()
			return nil, c.terminalError(method, path, resp.StatusCode, reqID, errBody, attempt)
		}

		if isRetryable(resp.StatusCode) && attempt < c.maxRetries {
			backoff := c.retryBackoff(resp, attempt)
			c.logger.Warn("retrying after HTTP error",
				"method", method, "path", path, "status", resp.StatusCode,
				"attempt", attempt+1, "backoff", backoff)

			if err := c.sleepFunc(ctx, backoff); err != nil {
				return nil, fmt.Errorf("transport: request canceled: %w", err)
			}

			attempt++

			continue
		}

		return nil, c.terminalError(method, path, resp.StatusCode, reqID, errBody, attempt)
	}
}

func (c *Client) doOnce(ctx context.Context, method, url string, body io.Reader, extraHeaders http.Header) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	tok, err := c.token.Token()
	if err != nil {
		return nil, fmt.Errorf("obtaining token: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("X-Application", ApplicationHeader)

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	for key, vals := range extraHeaders {
		for _, v := range vals {
			req.Header.Add(key, v)
		}
	}

	return c.httpClient.Do(req)
}

func (c *Client) terminalError(method, path string, statusCode int, reqID string, body []byte, attempt int) *Error {
	terr := &Error{
		StatusCode: statusCode,
		RequestID:  reqID,
		Message:    string(body),
		Err:        classifyStatus(statusCode),
	}

	if attempt > 0 {
		c.logger.Error("request failed after retries",
			"method", method, "path", path, "status", statusCode,
			"request_id", reqID, "attempts", attempt+1)
	} else {
		c.logger.Warn("request failed",
			"method", method, "path", path, "status", statusCode, "request_id", reqID)
	}

	return terr
}

// notifyUnauthorized fires onUnauthorized at most once per
// unauthorizedDebounce window, so a burst of 401s from concurrent
// in-flight requests produces a single user-facing notification.
func (c *Client) notifyUnauthorized() {
	if c.onUnauthorized == nil {
		return
	}

	c.unauthorizedMu.Lock()
	defer c.unauthorizedMu.Unlock()

	now := time.Now()
	if now.Sub(c.lastUnauthorizedAt) < unauthorizedDebounce {
		return
	}

	c.lastUnauthorizedAt = now

	c.onUnauthorized()
}

// retryBackoff honors a Retry-After header on 429 responses over the
// calculated backoff, since ignoring server-specified throttling extends
// the penalty.
func (c *Client) retryBackoff(resp *http.Response, attempt int) time.Duration {
	if resp.StatusCode == http.StatusTooManyRequests {
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if seconds, err := strconv.Atoi(ra); err == nil && seconds > 0 {
				return time.Duration(seconds) * time.Second
			}
		}
	}

	return c.calcBackoff(attempt)
}

// calcBackoff computes exponential backoff (base 1s, factor 2x, capped at
// 60s) plus a flat additive jitter in [0, 500ms).
func (c *Client) calcBackoff(attempt int) time.Duration {
	backoff := float64(baseBackoff) * math.Pow(backoffFactor, float64(attempt))
	if backoff > float64(maxBackoff) {
		backoff = float64(maxBackoff)
	}

	jitter := rand.Float64() * float64(maxJitter) //nolint:gosec // jitter does not need crypto rand

	return time.Duration(backoff + jitter)
}

// rewindBody seeks body back to offset 0 if it implements io.Seeker, so
// a retried request resends the full payload.
func rewindBody(body io.Reader) error {
	if body == nil {
		return nil
	}

	if seeker, ok := body.(io.Seeker); ok {
		if _, err := seeker.Seek(0, io.SeekStart); err != nil {
			return fmt.Errorf("transport: rewinding request body for retry: %w", err)
		}
	}

	return nil
}

// timeSleep waits for d or until ctx is canceled. Default sleepFunc;
// tests override it to avoid real delays.
func timeSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

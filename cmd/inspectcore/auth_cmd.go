package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/inspectcore/inspectcore/internal/authjwt"
	"github.com/inspectcore/inspectcore/internal/secrets"
	"github.com/inspectcore/inspectcore/internal/transport"
)

// authRequestTimeout bounds the login/logout/validate round trips; these
// are interactive commands, not background sync, so they fail fast.
const authRequestTimeout = 15 * time.Second

func newLoginCmd() *cobra.Command {
	var email, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authenticate against the sync server and store the bearer token",
		Long: `Authenticate with email and password against the configured sync server.

The issued access token is verified offline against the embedded public key
before being written to the credential file, so a server handing out tokens
for the wrong issuer or audience is rejected immediately.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc := mustCLIContext(cmd.Context())

			if email == "" {
				return fmt.Errorf("--email is required")
			}

			if password == "" {
				data, err := io.ReadAll(os.Stdin)
				if err != nil {
					return fmt.Errorf("reading password from stdin: %w", err)
				}

				password = string(bytes.TrimRight(data, "\r\n"))
			}

			if password == "" {
				return fmt.Errorf("no password given — pass --password or pipe it on stdin")
			}

			return runLogin(cmd.Context(), cc, email, password)
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "account email (required)")
	cmd.Flags().StringVar(&password, "password", "", "account password (read from stdin when omitted)")

	return cmd
}

func runLogin(ctx context.Context, cc *CLIContext, email, password string) error {
	body, err := json.Marshal(map[string]string{"email": email, "password": password})
	if err != nil {
		return fmt.Errorf("encoding login request: %w", err)
	}

	resp, err := doUnauthenticated(ctx, http.MethodPost, cc.Cfg.API.BaseURL+"/auth/login", bytes.NewReader(body), "")
	if err != nil {
		return fmt.Errorf("login request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("login rejected: HTTP %d: %s", resp.StatusCode, string(msg))
	}

	var payload struct {
		AccessToken        string `json:"accessToken"`
		MustChangePassword bool   `json:"mustChangePassword"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return fmt.Errorf("decoding login response: %w", err)
	}

	if payload.AccessToken == "" {
		return fmt.Errorf("login response carried no access token")
	}

	verifier, err := authjwt.New(cc.Cfg.Auth.JWTIssuer, cc.Cfg.Auth.JWTAudience)
	if err != nil {
		return fmt.Errorf("constructing token verifier: %w", err)
	}

	claims, err := verifier.Verify(payload.AccessToken)
	if err != nil {
		return fmt.Errorf("server issued a token this device does not trust: %w", err)
	}

	f := &secrets.File{
		BearerToken:           payload.AccessToken,
		SessionID:             claims.SessionID,
		LastOnlineValidatedAt: time.Now().UTC(),
	}

	if err := secrets.Save(credentialsPath(), f); err != nil {
		return err
	}

	cc.Statusf("Logged in as %s (%s)\n", claims.Name, claims.Email)

	if payload.MustChangePassword {
		cc.Statusf("Warning: the server requires a password change before the next login.\n")
	}

	return nil
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Invalidate the server session and remove the stored bearer token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc := mustCLIContext(cmd.Context())

			f, err := secrets.Load(credentialsPath())
			if err != nil {
				return err
			}

			if f == nil {
				cc.Statusf("Not logged in.\n")
				return nil
			}

			// Fire and forget: the local credential removal is what logs
			// this device out; the server call is a courtesy.
			resp, err := doUnauthenticated(cmd.Context(), http.MethodPost,
				cc.Cfg.API.BaseURL+"/auth/logout", nil, f.BearerToken)
			if err != nil {
				cc.Logger.Debug("logout request failed", "error", err.Error())
			} else {
				resp.Body.Close()
			}

			if err := os.Remove(credentialsPath()); err != nil {
				return fmt.Errorf("removing credentials: %w", err)
			}

			cc.Statusf("Logged out.\n")

			return nil
		},
	}
}

func newSessionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "session",
		Short: "Check whether the stored session is still valid on the server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc := mustCLIContext(cmd.Context())

			f, err := secrets.Load(credentialsPath())
			if err != nil {
				return err
			}

			if f == nil {
				return fmt.Errorf("not logged in — run inspectcore login first")
			}

			resp, err := doUnauthenticated(cmd.Context(), http.MethodGet,
				cc.Cfg.API.BaseURL+"/auth/validate-session", nil, f.BearerToken)
			if err != nil {
				return fmt.Errorf("validate-session request: %w", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
				return fmt.Errorf("session no longer valid: HTTP %d", resp.StatusCode)
			}

			f.LastOnlineValidatedAt = time.Now().UTC()
			if err := secrets.Save(credentialsPath(), f); err != nil {
				return err
			}

			cc.Statusf("Session %s is valid.\n", f.SessionID)

			return nil
		},
	}
}

// doUnauthenticated issues a one-shot request outside the retrying
// transport client — login has no token yet, and logout/validate must not
// trigger the transport layer's unauthorized callback on a stale session.
func doUnauthenticated(ctx context.Context, method, url string, body io.Reader, bearer string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("X-Application", transport.ApplicationHeader)

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	client := &http.Client{Timeout: authRequestTimeout}

	return client.Do(req)
}

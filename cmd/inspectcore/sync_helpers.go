package main

import (
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"path/filepath"
	"time"

	"github.com/inspectcore/inspectcore/internal/authjwt"
	"github.com/inspectcore/inspectcore/internal/config"
	"github.com/inspectcore/inspectcore/internal/custody"
	"github.com/inspectcore/inspectcore/internal/netmon"
	"github.com/inspectcore/inspectcore/internal/secrets"
	"github.com/inspectcore/inspectcore/internal/store"
	"github.com/inspectcore/inspectcore/internal/sync"
	"github.com/inspectcore/inspectcore/internal/transport"
	"github.com/inspectcore/inspectcore/internal/vault"
)

// credentialsPath returns the path to the on-disk bearer token file, kept
// alongside the config directory rather than inside the synced vault.
func credentialsPath() string {
	return filepath.Join(config.DefaultConfigDir(), "credentials.json")
}

// openStore opens the SQLite evidence database at the resolved config's
// db_path, creating it on first run.
func openStore(cc *CLIContext) (*store.SQLiteStore, error) {
	st, err := store.NewStore(config.ResolveDBPath(cc.Cfg), cc.Logger)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	return st, nil
}

// openVault opens the three-tier evidence vault at the resolved config's
// vault_root.
func openVault(cc *CLIContext) (*vault.Vault, error) {
	v, err := vault.New(config.ResolveVaultRoot(cc.Cfg), cc.Logger)
	if err != nil {
		return nil, fmt.Errorf("opening vault: %w", err)
	}

	return v, nil
}

// newCustodyLog constructs the chain-of-custody logger over the given store.
func newCustodyLog(st *store.SQLiteStore, logger *slog.Logger) *custody.Log {
	return custody.New(st, logger)
}

// secretsTokenSource adapts the on-disk credentials file to
// transport.TokenSource. Reloaded on every call rather than cached, so a
// fresh login on another terminal is picked up without a restart.
type secretsTokenSource struct {
	path string
}

func (s secretsTokenSource) Token() (string, error) {
	f, err := secrets.Load(s.path)
	if err != nil {
		return "", fmt.Errorf("loading credentials: %w", err)
	}

	if f == nil {
		return "", fmt.Errorf("not logged in — no credentials at %s", s.path)
	}

	return f.BearerToken, nil
}

// refreshingTokenSource wraps the on-disk credentials in the proactive
// refresh rule: when the stored access token has under 30 minutes of
// life left, a replacement is requested from /auth/refresh and written
// back to the credential file before the token is handed out.
func refreshingTokenSource(cc *CLIContext) transport.TokenSource {
	path := credentialsPath()

	remaining := func(token string) (time.Duration, error) {
		if _, err := authjwt.DecodeUnsafe(token); err != nil {
			return 0, fmt.Errorf("decoding token: %w", err)
		}

		return time.Duration(authjwt.RemainingSeconds(token)) * time.Second, nil
	}

	persist := func(token string) error {
		f, err := secrets.Load(path)
		if err != nil {
			return err
		}

		if f == nil {
			f = &secrets.File{}
		}

		f.BearerToken = token

		return secrets.Save(path, f)
	}

	return transport.NewRefreshingTokenSource(
		secretsTokenSource{path: path}, cc.Cfg.API.BaseURL, defaultHTTPClient(),
		remaining, persist, transport.DefaultRefreshThreshold, cc.Logger)
}

// currentActor resolves the acting user's ID and display name from the
// locally-stored bearer token, entirely offline. Used to attribute
// chain-of-custody events to a specific person without a network call.
func currentActor(cc *CLIContext) (userID, userName string, err error) {
	f, err := secrets.Load(credentialsPath())
	if err != nil {
		return "", "", fmt.Errorf("loading credentials: %w", err)
	}

	if f == nil {
		return "", "", fmt.Errorf("not logged in — run inspectcore login first")
	}

	verifier, err := authjwt.New(cc.Cfg.Auth.JWTIssuer, cc.Cfg.Auth.JWTAudience)
	if err != nil {
		return "", "", fmt.Errorf("constructing token verifier: %w", err)
	}

	claims, err := verifier.Verify(f.BearerToken)
	if err != nil {
		return "", "", fmt.Errorf("verifying credentials: %w", err)
	}

	return claims.Subject, claims.Name, nil
}

// netmonTarget derives a host:port dial target for connectivity monitoring
// from the configured API base URL, falling back to port 443 when the URL
// carries no explicit port.
func netmonTarget(cfg *config.Config) string {
	u, err := url.Parse(cfg.API.BaseURL)
	if err != nil || u.Hostname() == "" {
		return "api.inspectcore.io:443"
	}

	if u.Port() != "" {
		return net.JoinHostPort(u.Hostname(), u.Port())
	}

	port := "443"
	if u.Scheme == "http" {
		port = "80"
	}

	return net.JoinHostPort(u.Hostname(), port)
}

// newEngine wires a sync.Engine from the resolved config: an HTTP transport
// client carrying the on-disk bearer token, a connectivity monitor dialing
// the API host, and the store/custody/vault trio the caller already opened.
// Returns the engine and its network monitor so the caller can decide
// whether to start monitoring — only the foreground start-auto daemon needs
// Run(ctx) to actually execute.
func newEngine(cc *CLIContext, st sync.Store, cl sync.CustodyLog, vl sync.Vault, callbacks sync.Callbacks) (*sync.Engine, *netmon.Monitor, error) {
	ts := refreshingTokenSource(cc)

	onUnauthorized := func() {
		cc.Logger.Warn("sync: server rejected credentials as unauthorized")
	}

	client := transport.New(cc.Cfg.API.BaseURL, defaultHTTPClient(), ts, cc.Logger, cc.Cfg.Sync.MaxRetryAttempts, onUnauthorized)

	mon := netmon.New(netmonTarget(cc.Cfg), cc.Logger)

	engine := sync.NewEngine(st, cl, vl, client, transferHTTPClient(), mon, cc.CfgHolder, cc.Logger, callbacks)

	return engine, mon, nil
}

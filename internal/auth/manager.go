package auth

import (
	"context"
	"net/http"
	"time"

	"github.com/agavecli/agsync/internal/utils"
	"golang.org/x/oauth2"
)

const tokenRefreshBuffer = 5 * time.Minute

// Manager loads credentials, refreshes expiring tokens and hands out
// authenticated HTTP clients. Credentials are read once at startup into
// an explicit object; nothing reads the environment mid-run.
type Manager struct {
	cachePath string
	profile   string
	secrets   *SecretStore
}

// NewManager creates an auth manager for one credential cache
func NewManager(cachePath, profile string) *Manager {
	return &Manager{
		cachePath: cachePath,
		profile:   profile,
		secrets:   NewSecretStore(),
	}
}

// Load reads the credential cache, filling the consumer secret from the
// system keyring when the cache omits it
func (m *Manager) Load() (*Credentials, error) {
	creds, err := LoadCache(m.cachePath)
	if err != nil {
		return nil, utils.NewAppError(utils.NewCLIError(utils.ErrCodeAuthRequired,
			"No credentials found. Provision a client and token first.").
			WithContext("cachePath", m.cachePath).
			Build())
	}
	if creds.APISecret == "" && creds.APIKey != "" {
		if secret, secretErr := m.secrets.LoadSecret(m.profile); secretErr == nil {
			creds.APISecret = secret
		}
	}
	return creds, nil
}

// NeedsRefresh checks whether the access token is expired or close to it
func (m *Manager) NeedsRefresh(creds *Credentials) bool {
	expiry := creds.Expiry()
	if expiry.IsZero() {
		return creds.RefreshToken != ""
	}
	return time.Now().Add(tokenRefreshBuffer).After(expiry)
}

// oauthConfig builds the refresh-token grant configuration for the tenant
func (m *Manager) oauthConfig(creds *Credentials) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     creds.APIKey,
		ClientSecret: creds.APISecret,
		Endpoint: oauth2.Endpoint{
			TokenURL:  creds.BaseURL + utils.TokenPath,
			AuthStyle: oauth2.AuthStyleInHeader,
		},
	}
}

// TokenSource returns an auto-refreshing token source that persists
// refreshed tokens back to the credential cache
func (m *Manager) TokenSource(ctx context.Context, creds *Credentials) oauth2.TokenSource {
	token := &oauth2.Token{
		AccessToken:  creds.AccessToken,
		RefreshToken: creds.RefreshToken,
		Expiry:       creds.Expiry(),
	}
	if creds.RefreshToken == "" || creds.APIKey == "" || creds.APISecret == "" {
		// Cannot refresh without a client; use the token as-is
		return oauth2.StaticTokenSource(token)
	}
	base := m.oauthConfig(creds).TokenSource(ctx, token)
	return oauth2.ReuseTokenSource(token, &persistingTokenSource{
		base:      base,
		manager:   m,
		creds:     creds,
		lastToken: token.AccessToken,
	})
}

// HTTPClient returns an HTTP client that injects the bearer token
func (m *Manager) HTTPClient(ctx context.Context, creds *Credentials) *http.Client {
	return oauth2.NewClient(ctx, m.TokenSource(ctx, creds))
}

// persistingTokenSource writes refreshed tokens back to the cache file so
// subsequent invocations reuse them
type persistingTokenSource struct {
	base      oauth2.TokenSource
	manager   *Manager
	creds     *Credentials
	lastToken string
}

func (s *persistingTokenSource) Token() (*oauth2.Token, error) {
	token, err := s.base.Token()
	if err != nil {
		return nil, utils.NewAppError(utils.NewCLIError(utils.ErrCodeAuthExpired,
			"Token refresh failed; re-authenticate with the platform CLI.").
			WithContext("error", err.Error()).
			Build())
	}
	if token.AccessToken != s.lastToken {
		s.lastToken = token.AccessToken
		updated := *s.creds
		updated.AccessToken = token.AccessToken
		if token.RefreshToken != "" {
			updated.RefreshToken = token.RefreshToken
		}
		updated.CreatedAt = ""
		updated.ExpiresIn = ""
		updated.ExpiresAt = token.Expiry.Format(time.RFC3339)
		// Best effort; an unwritable cache must not fail the transfer
		_ = SaveCache(s.manager.cachePath, &updated)
	}
	return token, nil
}

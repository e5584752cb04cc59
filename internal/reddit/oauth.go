package reddit

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/reddit-agent/internal/config"
	"github.com/reddit-agent/pkg/logger"
)

const (
	authURL = "https://www.reddit.com/api/v1/authorize"

	// stateTTL bounds how long a started handshake stays completable
	stateTTL = 10 * time.Minute
)

// AuthResult is the outcome of a completed OAuth handshake
type AuthResult struct {
	Pending      PendingAuthState
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// OAuthManager runs the per-account authorization code flow. Pending
// handshake state lives in the StateStore, never in process memory.
type OAuthManager struct {
	config *oauth2.Config
	states StateStore
	log    *logger.Logger
}

// NewOAuthManager creates an OAuth manager
func NewOAuthManager(cfg config.RedditConfig, states StateStore, log *logger.Logger) *OAuthManager {
	return &OAuthManager{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Scopes:       cfg.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   authURL,
				TokenURL:  tokenURL,
				AuthStyle: oauth2.AuthStyleInHeader,
			},
		},
		states: states,
		log:    log.WithComponent("oauth"),
	}
}

// BeginHandshake stores pending state and returns the URL the account
// owner must visit. duration=permanent asks Reddit for a refresh token.
func (m *OAuthManager) BeginHandshake(ctx context.Context, pending PendingAuthState) (string, error) {
	state := uuid.NewString()
	pending.CreatedAt = time.Now().UTC()

	if err := m.states.Put(ctx, state, pending, stateTTL); err != nil {
		return "", err
	}

	authorizeURL := m.config.AuthCodeURL(state,
		oauth2.SetAuthURLParam("duration", "permanent"),
	)

	m.log.Info().
		Uint("project_id", pending.ProjectID).
		Uint("account_id", pending.AccountID).
		Msg("OAuth handshake started")

	return authorizeURL, nil
}

// CompleteHandshake validates the callback, consumes the pending state,
// and exchanges the code for tokens.
func (m *OAuthManager) CompleteHandshake(ctx context.Context, callbackQuery url.Values) (*AuthResult, error) {
	if errMsg := callbackQuery.Get("error"); errMsg != "" {
		return nil, fmt.Errorf("oauth error: %s", errMsg)
	}

	state := callbackQuery.Get("state")
	if state == "" {
		return nil, fmt.Errorf("no state in callback")
	}

	pending, err := m.states.Take(ctx, state)
	if err != nil {
		return nil, err
	}

	code := callbackQuery.Get("code")
	if code == "" {
		return nil, fmt.Errorf("no code in callback")
	}

	token, err := m.config.Exchange(ctx, code)
	if err != nil {
		m.log.Error().Err(err).Msg("Failed to exchange code")
		return nil, fmt.Errorf("failed to exchange code: %w", err)
	}

	m.log.Info().
		Uint("project_id", pending.ProjectID).
		Time("expires_at", token.Expiry).
		Msg("OAuth handshake completed")

	return &AuthResult{
		Pending:      *pending,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    token.Expiry,
	}, nil
}

// RefreshAccessToken exchanges a refresh token for a fresh access token.
// Used by the health agent to repair oauth_expired accounts.
func (m *OAuthManager) RefreshAccessToken(ctx context.Context, refreshToken string) (string, time.Time, error) {
	if refreshToken == "" {
		return "", time.Time{}, fmt.Errorf("%w: no refresh token available", ErrAuthExpired)
	}

	ts := m.config.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	token, err := ts.Token()
	if err != nil {
		m.log.Error().Err(err).Msg("Failed to refresh token")
		return "", time.Time{}, fmt.Errorf("%w: %v", ErrAuthExpired, err)
	}

	m.log.Info().
		Time("expires_at", token.Expiry).
		Msg("Token refreshed successfully")

	return token.AccessToken, token.Expiry, nil
}

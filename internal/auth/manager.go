package auth

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/beekhof/lab-calendar-sync/internal/model"

	"golang.org/x/oauth2"
)

var (
	// ErrTokenNotFound is returned when no token is stored for a connection.
	ErrTokenNotFound = errors.New("oauth token not found")

	// ErrRefreshFailed is returned when the provider token endpoint rejects
	// a refresh. It is never retried.
	ErrRefreshFailed = errors.New("oauth token refresh failed")
)

// Manager hands out usable access tokens, refreshing expired ones through
// the provider token endpoint.
type Manager struct {
	store   TokenStore
	configs map[model.Provider]*oauth2.Config

	// HTTPClient is used for token endpoint calls when set.
	HTTPClient *http.Client
	Verbose    bool

	now func() time.Time
}

// NewManager creates a token manager over store with one OAuth config per
// provider.
func NewManager(store TokenStore, configs map[model.Provider]*oauth2.Config) *Manager {
	return &Manager{
		store:   store,
		configs: configs,
		now:     time.Now,
	}
}

// AccessToken returns a valid access token for the connection. An expired
// token triggers exactly one refresh_token grant; the refreshed values are
// stored before returning.
func (m *Manager) AccessToken(ctx context.Context, provider model.Provider, connectionID string) (string, error) {
	stored, err := m.store.GetToken(ctx, connectionID)
	if err != nil {
		return "", fmt.Errorf("failed to load token for connection %s: %w", connectionID, err)
	}
	if stored == nil {
		return "", fmt.Errorf("connection %s: %w", connectionID, ErrTokenNotFound)
	}

	now := m.now()
	if !stored.Expired(now) {
		return stored.AccessToken, nil
	}

	if m.Verbose {
		log.Printf("DEBUG: access token for connection %s expired at %s, refreshing", connectionID, stored.Expiry().UTC().Format(time.RFC3339))
	}
	return m.refresh(ctx, provider, connectionID, stored, now)
}

func (m *Manager) refresh(ctx context.Context, provider model.Provider, connectionID string, stored *model.OAuthToken, now time.Time) (string, error) {
	cfg, ok := m.configs[provider]
	if !ok {
		return "", fmt.Errorf("%w: no OAuth client configured for provider %q", ErrRefreshFailed, provider)
	}
	if stored.RefreshToken == "" {
		return "", fmt.Errorf("%w: connection %s has no refresh token", ErrRefreshFailed, connectionID)
	}

	if m.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, m.HTTPClient)
	}

	// A token with no access token is never valid, so the source performs
	// the refresh grant immediately.
	fresh, err := cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: stored.RefreshToken}).Token()
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
			return "", fmt.Errorf("%w: connection %s: token endpoint returned %d: %s",
				ErrRefreshFailed, connectionID, retrieveErr.Response.StatusCode, string(retrieveErr.Body))
		}
		return "", fmt.Errorf("%w: connection %s: %v", ErrRefreshFailed, connectionID, err)
	}

	expiresAt := expiresAtMillis(fresh, now)
	update := model.TokenUpdate{
		AccessToken: &fresh.AccessToken,
		ExpiresAt:   &expiresAt,
	}
	// Google only returns a refresh token on the first grant.
	if fresh.RefreshToken != "" && fresh.RefreshToken != stored.RefreshToken {
		update.RefreshToken = &fresh.RefreshToken
	}

	if err := m.store.UpdateToken(ctx, connectionID, update); err != nil {
		return "", fmt.Errorf("failed to store refreshed token for connection %s: %w", connectionID, err)
	}

	return fresh.AccessToken, nil
}

// expiresAtMillis is now + expires_in seconds. Without expires_in the
// token is treated as already expired.
func expiresAtMillis(tok *oauth2.Token, now time.Time) int64 {
	if tok.ExpiresIn > 0 {
		return now.UnixMilli() + tok.ExpiresIn*1000
	}
	if !tok.Expiry.IsZero() {
		return tok.Expiry.UnixMilli()
	}
	return now.UnixMilli()
}

// NewOAuthToken converts a freshly granted token into the stored form.
func NewOAuthToken(connectionID string, provider model.Provider, tok *oauth2.Token, now time.Time) *model.OAuthToken {
	return &model.OAuthToken{
		ConnectionID: connectionID,
		Provider:     provider,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    expiresAtMillis(tok, now),
	}
}

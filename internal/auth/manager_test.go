package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/beekhof/lab-calendar-sync/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

// mockTokenStore is an in-memory TokenStore for testing.
type mockTokenStore struct {
	tokens  map[string]*model.OAuthToken
	updates []model.TokenUpdate
}

func newMockTokenStore(tokens ...*model.OAuthToken) *mockTokenStore {
	m := &mockTokenStore{tokens: make(map[string]*model.OAuthToken)}
	for _, tok := range tokens {
		m.tokens[tok.ConnectionID] = tok
	}
	return m
}

func (m *mockTokenStore) GetToken(ctx context.Context, connectionID string) (*model.OAuthToken, error) {
	tok, ok := m.tokens[connectionID]
	if !ok {
		return nil, nil
	}
	copied := *tok
	return &copied, nil
}

func (m *mockTokenStore) UpdateToken(ctx context.Context, connectionID string, update model.TokenUpdate) error {
	m.updates = append(m.updates, update)
	update.Apply(m.tokens[connectionID])
	return nil
}

func (m *mockTokenStore) SaveToken(ctx context.Context, token *model.OAuthToken) error {
	m.tokens[token.ConnectionID] = token
	return nil
}

type tokenEndpoint struct {
	calls atomic.Int32
	form  chan map[string]string
}

func newTokenServer(t *testing.T, status int, body string) (*httptest.Server, *tokenEndpoint) {
	t.Helper()
	ep := &tokenEndpoint{form: make(chan map[string]string, 4)}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ep.calls.Add(1)
		if err := r.ParseForm(); err != nil {
			t.Errorf("failed to parse form: %v", err)
		}
		ep.form <- map[string]string{
			"grant_type":    r.PostForm.Get("grant_type"),
			"refresh_token": r.PostForm.Get("refresh_token"),
			"client_id":     r.PostForm.Get("client_id"),
			"client_secret": r.PostForm.Get("client_secret"),
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv, ep
}

func testManager(store TokenStore, tokenURL string, now time.Time) *Manager {
	cfg := OAuthConfig(model.ProviderGoogle, Credentials{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		TokenURL:     tokenURL,
	})
	m := NewManager(store, map[model.Provider]*oauth2.Config{model.ProviderGoogle: cfg})
	m.now = func() time.Time { return now }
	return m
}

func TestAccessToken_NotExpired(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	srv, ep := newTokenServer(t, http.StatusOK, `{}`)
	store := newMockTokenStore(&model.OAuthToken{
		ConnectionID: "conn-1",
		AccessToken:  "valid",
		RefreshToken: "rt",
		ExpiresAt:    now.Add(time.Minute).UnixMilli(),
	})

	got, err := testManager(store, srv.URL, now).AccessToken(context.Background(), model.ProviderGoogle, "conn-1")
	require.NoError(t, err)
	assert.Equal(t, "valid", got)
	assert.Equal(t, int32(0), ep.calls.Load())
	assert.Empty(t, store.updates)
}

func TestAccessToken_NotFound(t *testing.T) {
	m := testManager(newMockTokenStore(), "http://127.0.0.1:1", time.Now())
	_, err := m.AccessToken(context.Background(), model.ProviderGoogle, "missing")
	assert.ErrorIs(t, err, ErrTokenNotFound)
}

func TestAccessToken_RefreshesExpiredTokenOnce(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	srv, ep := newTokenServer(t, http.StatusOK,
		`{"access_token":"fresh","token_type":"Bearer","expires_in":3600}`)
	store := newMockTokenStore(&model.OAuthToken{
		ConnectionID: "conn-1",
		AccessToken:  "stale",
		RefreshToken: "rt-original",
		ExpiresAt:    now.Add(-time.Second).UnixMilli(),
	})

	got, err := testManager(store, srv.URL, now).AccessToken(context.Background(), model.ProviderGoogle, "conn-1")
	require.NoError(t, err)

	assert.Equal(t, "fresh", got)
	assert.Equal(t, int32(1), ep.calls.Load())

	form := <-ep.form
	assert.Equal(t, "refresh_token", form["grant_type"])
	assert.Equal(t, "rt-original", form["refresh_token"])
	assert.Equal(t, "client-id", form["client_id"])
	assert.Equal(t, "client-secret", form["client_secret"])

	stored := store.tokens["conn-1"]
	assert.Equal(t, "fresh", stored.AccessToken)
	assert.Equal(t, now.UnixMilli()+3600*1000, stored.ExpiresAt)
	assert.Equal(t, "rt-original", stored.RefreshToken, "absent refresh token must not overwrite the stored one")
	require.Len(t, store.updates, 1)
	assert.Nil(t, store.updates[0].RefreshToken)
}

func TestAccessToken_StoresRotatedRefreshToken(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	srv, _ := newTokenServer(t, http.StatusOK,
		`{"access_token":"fresh","refresh_token":"rt-new","token_type":"Bearer","expires_in":60}`)
	store := newMockTokenStore(&model.OAuthToken{
		ConnectionID: "conn-1",
		RefreshToken: "rt-original",
		ExpiresAt:    0,
	})

	_, err := testManager(store, srv.URL, now).AccessToken(context.Background(), model.ProviderGoogle, "conn-1")
	require.NoError(t, err)
	assert.Equal(t, "rt-new", store.tokens["conn-1"].RefreshToken)
}

func TestAccessToken_RefreshFailed(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	srv, ep := newTokenServer(t, http.StatusBadRequest, `{"error":"invalid_grant"}`)
	store := newMockTokenStore(&model.OAuthToken{
		ConnectionID: "conn-1",
		AccessToken:  "stale",
		RefreshToken: "revoked",
		ExpiresAt:    now.Add(-time.Hour).UnixMilli(),
	})

	_, err := testManager(store, srv.URL, now).AccessToken(context.Background(), model.ProviderGoogle, "conn-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRefreshFailed))
	assert.Contains(t, err.Error(), "invalid_grant")
	assert.Equal(t, int32(1), ep.calls.Load(), "refresh is never retried")
	assert.Empty(t, store.updates)
	assert.Equal(t, "stale", store.tokens["conn-1"].AccessToken)
}

func TestAccessToken_NoRefreshToken(t *testing.T) {
	now := time.Now()
	store := newMockTokenStore(&model.OAuthToken{ConnectionID: "conn-1", ExpiresAt: 0})
	_, err := testManager(store, "http://127.0.0.1:1", now).AccessToken(context.Background(), model.ProviderGoogle, "conn-1")
	assert.ErrorIs(t, err, ErrRefreshFailed)
}

func TestAccessToken_UnconfiguredProvider(t *testing.T) {
	now := time.Now()
	store := newMockTokenStore(&model.OAuthToken{ConnectionID: "conn-1", RefreshToken: "rt", ExpiresAt: 0})
	_, err := testManager(store, "http://127.0.0.1:1", now).AccessToken(context.Background(), model.ProviderMicrosoft, "conn-1")
	assert.ErrorIs(t, err, ErrRefreshFailed)
}

func TestOAuthConfig(t *testing.T) {
	google := OAuthConfig(model.ProviderGoogle, Credentials{ClientID: "g"})
	assert.Equal(t, "https://oauth2.googleapis.com/token", google.Endpoint.TokenURL)
	assert.Equal(t, oauth2.AuthStyleInParams, google.Endpoint.AuthStyle)

	ms := OAuthConfig(model.ProviderMicrosoft, Credentials{ClientID: "m", Tenant: "lab-tenant"})
	assert.Equal(t, "https://login.microsoftonline.com/lab-tenant/oauth2/v2.0/token", ms.Endpoint.TokenURL)
	assert.Contains(t, ms.Scopes, "offline_access")

	common := OAuthConfig(model.ProviderMicrosoft, Credentials{})
	assert.Equal(t, "https://login.microsoftonline.com/common/oauth2/v2.0/token", common.Endpoint.TokenURL)
}

func TestNewOAuthToken(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	tok := NewOAuthToken("conn-1", model.ProviderGoogle, &oauth2.Token{
		AccessToken:  "at",
		RefreshToken: "rt",
		ExpiresIn:    120,
	}, now)
	assert.Equal(t, now.UnixMilli()+120000, tok.ExpiresAt)
	assert.Equal(t, "rt", tok.RefreshToken)
}

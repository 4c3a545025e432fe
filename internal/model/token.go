package model

import "time"

// OAuthToken is the secret half of a connection, stored apart from it.
// ExpiresAt is in epoch milliseconds.
type OAuthToken struct {
	ConnectionID string   `json:"connectionId"`
	Provider     Provider `json:"provider"`
	AccessToken  string   `json:"accessToken"`
	RefreshToken string   `json:"refreshToken,omitempty"`
	ExpiresAt    int64    `json:"expiresAt"`
}

// Expiry returns ExpiresAt as a time.
func (t *OAuthToken) Expiry() time.Time {
	return time.UnixMilli(t.ExpiresAt)
}

// Expired reports whether the access token expired before now. There is no
// grace window.
func (t *OAuthToken) Expired(now time.Time) bool {
	return t.ExpiresAt < now.UnixMilli()
}

// TokenUpdate is a partial token update applied after a refresh.
type TokenUpdate struct {
	AccessToken  *string
	RefreshToken *string
	ExpiresAt    *int64
}

// Apply merges the update into t.
func (u TokenUpdate) Apply(t *OAuthToken) {
	if u.AccessToken != nil {
		t.AccessToken = *u.AccessToken
	}
	if u.RefreshToken != nil {
		t.RefreshToken = *u.RefreshToken
	}
	if u.ExpiresAt != nil {
		t.ExpiresAt = *u.ExpiresAt
	}
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/beekhof/lab-calendar-sync/internal/model"
)

type tokenRow struct {
	ConnectionID string `db:"connection_id"`
	Provider     string `db:"provider"`
	AccessToken  string `db:"access_token"`
	RefreshToken string `db:"refresh_token"`
	ExpiresAt    int64  `db:"expires_at"`
}

// GetToken returns nil, nil when no token is stored for the connection.
func (s *Store) GetToken(ctx context.Context, connectionID string) (*model.OAuthToken, error) {
	var row tokenRow
	err := s.db.GetContext(ctx, &row, s.q(`SELECT connection_id, provider, access_token, refresh_token, expires_at
		FROM oauth_tokens WHERE connection_id = ?`), connectionID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load token of connection %s: %w", connectionID, err)
	}
	return &model.OAuthToken{
		ConnectionID: row.ConnectionID,
		Provider:     model.Provider(row.Provider),
		AccessToken:  row.AccessToken,
		RefreshToken: row.RefreshToken,
		ExpiresAt:    row.ExpiresAt,
	}, nil
}

// SaveToken inserts or replaces the token of a connection.
func (s *Store) SaveToken(ctx context.Context, token *model.OAuthToken) error {
	_, err := s.db.ExecContext(ctx, s.q(`INSERT INTO oauth_tokens (connection_id, provider, access_token, refresh_token, expires_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (connection_id) DO UPDATE SET
			provider = excluded.provider,
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			expires_at = excluded.expires_at`),
		token.ConnectionID, string(token.Provider), token.AccessToken, token.RefreshToken, token.ExpiresAt)
	if err != nil {
		return fmt.Errorf("failed to save token of connection %s: %w", token.ConnectionID, err)
	}
	return nil
}

// UpdateToken applies a partial update in place.
func (s *Store) UpdateToken(ctx context.Context, connectionID string, update model.TokenUpdate) error {
	var sets []string
	var args []any
	if update.AccessToken != nil {
		sets = append(sets, "access_token = ?")
		args = append(args, *update.AccessToken)
	}
	if update.RefreshToken != nil {
		sets = append(sets, "refresh_token = ?")
		args = append(args, *update.RefreshToken)
	}
	if update.ExpiresAt != nil {
		sets = append(sets, "expires_at = ?")
		args = append(args, *update.ExpiresAt)
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, connectionID)

	query := "UPDATE oauth_tokens SET " + sets[0]
	for _, set := range sets[1:] {
		query += ", " + set
	}
	query += " WHERE connection_id = ?"

	res, err := s.db.ExecContext(ctx, s.q(query), args...)
	if err != nil {
		return fmt.Errorf("failed to update token of connection %s: %w", connectionID, err)
	}
	if err := affectedOne(res); err != nil {
		return fmt.Errorf("token of connection %s: %w", connectionID, err)
	}
	return nil
}

package auth

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/beekhof/lab-calendar-sync/internal/model"

	"github.com/goccy/go-json"
)

// TokenStore persists OAuth tokens keyed by connection id, apart from the
// connection record itself.
type TokenStore interface {
	// GetToken returns nil, nil when no token is stored for the connection.
	GetToken(ctx context.Context, connectionID string) (*model.OAuthToken, error)
	UpdateToken(ctx context.Context, connectionID string, update model.TokenUpdate) error
	SaveToken(ctx context.Context, token *model.OAuthToken) error
}

// FileTokenStore keeps one JSON file per connection under Dir.
type FileTokenStore struct {
	Dir string
}

// NewFileTokenStore creates a new FileTokenStore rooted at dir.
func NewFileTokenStore(dir string) *FileTokenStore {
	return &FileTokenStore{Dir: dir}
}

func (store *FileTokenStore) path(connectionID string) (string, error) {
	if connectionID == "" || strings.ContainsAny(connectionID, `/\`) || connectionID == "." || connectionID == ".." {
		return "", fmt.Errorf("invalid connection id %q", connectionID)
	}
	return filepath.Join(store.Dir, connectionID+".json"), nil
}

// SaveToken writes the token with owner-only permissions.
func (store *FileTokenStore) SaveToken(ctx context.Context, token *model.OAuthToken) error {
	path, err := store.path(token.ConnectionID)
	if err != nil {
		return err
	}

	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}

	if err := os.MkdirAll(store.Dir, 0700); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}

	return nil
}

// GetToken loads the token of a connection.
// Returns nil, nil if the file does not exist (no error).
func (store *FileTokenStore) GetToken(ctx context.Context, connectionID string) (*model.OAuthToken, error) {
	path, err := store.path(connectionID)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read token file: %w", err)
	}

	var token model.OAuthToken
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("failed to unmarshal token: %w", err)
	}

	return &token, nil
}

// UpdateToken applies a partial update to a stored token.
func (store *FileTokenStore) UpdateToken(ctx context.Context, connectionID string, update model.TokenUpdate) error {
	token, err := store.GetToken(ctx, connectionID)
	if err != nil {
		return err
	}
	if token == nil {
		return fmt.Errorf("no token stored for connection %s", connectionID)
	}
	update.Apply(token)
	return store.SaveToken(ctx, token)
}

// DeleteToken removes the token file of a connection, if any.
func (store *FileTokenStore) DeleteToken(ctx context.Context, connectionID string) error {
	path, err := store.path(connectionID)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove token file: %w", err)
	}
	return nil
}

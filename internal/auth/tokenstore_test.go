package auth

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/beekhof/lab-calendar-sync/internal/model"
)

func TestFileTokenStore_SaveLoad(t *testing.T) {
	ctx := context.Background()
	store := NewFileTokenStore(filepath.Join(t.TempDir(), "tokens"))

	token := &model.OAuthToken{
		ConnectionID: "conn-1",
		Provider:     model.ProviderMicrosoft,
		AccessToken:  "test-access-token",
		RefreshToken: "test-refresh-token",
		ExpiresAt:    1717243200000,
	}

	if err := store.SaveToken(ctx, token); err != nil {
		t.Fatalf("SaveToken() returned an error: %v", err)
	}

	info, err := os.Stat(filepath.Join(store.Dir, "conn-1.json"))
	if err != nil {
		t.Fatalf("token file not created: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("token file permissions = %o, want 0600", perm)
	}

	loaded, err := store.GetToken(ctx, "conn-1")
	if err != nil {
		t.Fatalf("GetToken() returned an error: %v", err)
	}
	if loaded == nil {
		t.Fatal("GetToken() returned nil token")
	}
	if *loaded != *token {
		t.Errorf("loaded token = %+v, want %+v", *loaded, *token)
	}
}

func TestFileTokenStore_LoadMissing(t *testing.T) {
	store := NewFileTokenStore(t.TempDir())

	token, err := store.GetToken(context.Background(), "nope")
	if err != nil {
		t.Fatalf("GetToken() returned an error: %v", err)
	}
	if token != nil {
		t.Errorf("GetToken() = %+v, want nil", token)
	}
}

func TestFileTokenStore_Update(t *testing.T) {
	ctx := context.Background()
	store := NewFileTokenStore(t.TempDir())
	if err := store.SaveToken(ctx, &model.OAuthToken{ConnectionID: "conn-1", AccessToken: "a", RefreshToken: "r"}); err != nil {
		t.Fatalf("SaveToken() returned an error: %v", err)
	}

	access := "b"
	if err := store.UpdateToken(ctx, "conn-1", model.TokenUpdate{AccessToken: &access}); err != nil {
		t.Fatalf("UpdateToken() returned an error: %v", err)
	}
	got, _ := store.GetToken(ctx, "conn-1")
	if got.AccessToken != "b" || got.RefreshToken != "r" {
		t.Errorf("after update got %+v", got)
	}

	if err := store.UpdateToken(ctx, "missing", model.TokenUpdate{AccessToken: &access}); err == nil {
		t.Error("UpdateToken() on a missing token should fail")
	}

	if err := store.DeleteToken(ctx, "conn-1"); err != nil {
		t.Fatalf("DeleteToken() returned an error: %v", err)
	}
	if got, _ := store.GetToken(ctx, "conn-1"); got != nil {
		t.Error("token still present after DeleteToken()")
	}
}

func TestFileTokenStore_RejectsPathTraversal(t *testing.T) {
	store := NewFileTokenStore(t.TempDir())
	if _, err := store.GetToken(context.Background(), "../escape"); err == nil {
		t.Error("GetToken() accepted a connection id containing a path separator")
	}
}

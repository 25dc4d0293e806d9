package auth

import (
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func TestFileUserStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.json")

	store, err := NewFileUserStore(path)
	if err != nil {
		t.Fatalf("NewFileUserStore() error: %v", err)
	}

	user := User{
		ID:               "u-1",
		Email:            "a@x.com",
		PasswordHash:     "hash",
		Role:             "user",
		RefreshTokenHash: "refresh-hash",
		CreatedAt:        time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC),
	}
	if err := store.Create(user); err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	// A fresh store over the same file must see everything, hashes included.
	reloaded, err := NewFileUserStore(path)
	if err != nil {
		t.Fatalf("NewFileUserStore() reload error: %v", err)
	}
	got, err := reloaded.GetByEmail("a@x.com")
	if err != nil {
		t.Fatalf("GetByEmail() error: %v", err)
	}
	if got.PasswordHash != "hash" || got.RefreshTokenHash != "refresh-hash" {
		t.Fatalf("hashes lost across reload: %+v", got)
	}

	byID, err := reloaded.GetByID("u-1")
	if err != nil {
		t.Fatalf("GetByID() error: %v", err)
	}
	if byID.Email != "a@x.com" {
		t.Fatalf("expected email a@x.com, got %q", byID.Email)
	}
}

func TestFileUserStoreDuplicateEmail(t *testing.T) {
	store, err := NewFileUserStore(filepath.Join(t.TempDir(), "users.json"))
	if err != nil {
		t.Fatalf("NewFileUserStore() error: %v", err)
	}

	if err := store.Create(User{ID: "u-1", Email: "a@x.com", PasswordHash: "h"}); err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	err = store.Create(User{ID: "u-2", Email: "a@x.com", PasswordHash: "h2"})
	if !errors.Is(err, ErrDuplicateEmail) {
		t.Fatalf("expected ErrDuplicateEmail, got %v", err)
	}
}

func TestFileUserStoreUpdateRefreshTokenHash(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.json")
	store, err := NewFileUserStore(path)
	if err != nil {
		t.Fatalf("NewFileUserStore() error: %v", err)
	}

	_ = store.Create(User{ID: "u-1", Email: "a@x.com", PasswordHash: "h", RefreshTokenHash: "old"})

	if err := store.UpdateRefreshTokenHash("u-1", ""); err != nil {
		t.Fatalf("UpdateRefreshTokenHash() error: %v", err)
	}
	u, _ := store.GetByID("u-1")
	if u.RefreshTokenHash != "" {
		t.Fatalf("expected cleared refresh hash, got %q", u.RefreshTokenHash)
	}

	if err := store.UpdateRefreshTokenHash("ghost", "x"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

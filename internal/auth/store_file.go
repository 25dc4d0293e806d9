package auth

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// FileUserStore is the Postgres-less fallback for local development. State is
// a JSON map keyed by email, rewritten on every mutation.
type FileUserStore struct {
	path string

	mu    sync.RWMutex
	users map[string]User
}

func NewFileUserStore(path string) (*FileUserStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("user state file path is required")
	}

	s := &FileUserStore{
		path:  path,
		users: make(map[string]User),
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FileUserStore) GetByEmail(email string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[email]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return u, nil
}

func (s *FileUserStore) GetByID(id string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if u.ID == id {
			return u, nil
		}
	}
	return User{}, ErrUserNotFound
}

func (s *FileUserStore) Create(user User) error {
	user.Email = strings.TrimSpace(user.Email)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[user.Email]; ok {
		return ErrDuplicateEmail
	}
	s.users[user.Email] = user
	if err := s.persistLocked(); err != nil {
		delete(s.users, user.Email)
		return err
	}
	return nil
}

func (s *FileUserStore) UpdateRefreshTokenHash(userID, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for email, u := range s.users {
		if u.ID == userID {
			prev := u.RefreshTokenHash
			u.RefreshTokenHash = hash
			s.users[email] = u
			if err := s.persistLocked(); err != nil {
				u.RefreshTokenHash = prev
				s.users[email] = u
				return err
			}
			return nil
		}
	}
	return ErrUserNotFound
}

func (s *FileUserStore) load() error {
	b, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read user state: %w", err)
	}
	if len(b) == 0 {
		return nil
	}

	// Hashes have to survive restarts, so the state file uses a shadow type
	// instead of User's public JSON shape.
	state := make(map[string]storedUser)
	if err := json.Unmarshal(b, &state); err != nil {
		return fmt.Errorf("decode user state: %w", err)
	}
	for email, su := range state {
		s.users[email] = su.toUser()
	}
	return nil
}

func (s *FileUserStore) persistLocked() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("mkdir user state dir: %w", err)
	}

	state := make(map[string]storedUser, len(s.users))
	for email, u := range s.users {
		state[email] = newStoredUser(u)
	}
	b, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("encode user state: %w", err)
	}
	if err := os.WriteFile(s.path, b, 0o600); err != nil {
		return fmt.Errorf("write user state: %w", err)
	}
	return nil
}

type storedUser struct {
	ID               string    `json:"id"`
	Email            string    `json:"email"`
	PasswordHash     string    `json:"password_hash"`
	Role             string    `json:"role"`
	RefreshTokenHash string    `json:"refresh_token_hash"`
	CreatedAt        time.Time `json:"created_at"`
}

func newStoredUser(u User) storedUser {
	return storedUser(u)
}

func (su storedUser) toUser() User {
	return User(su)
}

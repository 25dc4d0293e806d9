package auth

import (
	"errors"
	"strings"
	"sync"
)

var ErrUserNotFound = errors.New("user not found")

// UserStore is the credential-store contract the lifecycle service runs
// against. Emails are unique; Create must fail ErrDuplicateEmail when the
// email is already taken so a signup race cannot create two accounts.
type UserStore interface {
	GetByEmail(email string) (User, error)
	GetByID(id string) (User, error)
	Create(user User) error
	// UpdateRefreshTokenHash replaces the stored refresh-token hash for the
	// user; an empty hash clears it (logout). Fails ErrUserNotFound when no
	// such user exists.
	UpdateRefreshTokenHash(userID, hash string) error
}

type InMemoryUserStore struct {
	mu      sync.RWMutex
	byEmail map[string]User
	byID    map[string]User
}

func NewInMemoryUserStore() *InMemoryUserStore {
	return &InMemoryUserStore{
		byEmail: make(map[string]User),
		byID:    make(map[string]User),
	}
}

func (s *InMemoryUserStore) GetByEmail(email string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.byEmail[email]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return u, nil
}

func (s *InMemoryUserStore) GetByID(id string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.byID[id]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return u, nil
}

func (s *InMemoryUserStore) Create(user User) error {
	user.Email = strings.TrimSpace(user.Email)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byEmail[user.Email]; ok {
		return ErrDuplicateEmail
	}
	s.byEmail[user.Email] = user
	s.byID[user.ID] = user
	return nil
}

func (s *InMemoryUserStore) UpdateRefreshTokenHash(userID, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.byID[userID]
	if !ok {
		return ErrUserNotFound
	}
	u.RefreshTokenHash = hash
	s.byID[userID] = u
	s.byEmail[u.Email] = u
	return nil
}

package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"tokensvr/auth-core/internal/token"
)

var (
	ErrDuplicateEmail      = errors.New("email already exists")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
)

// Service owns the session lifecycle: signup, login, refresh rotation and
// logout. Every login or refresh replaces the user's stored refresh-token
// hash, so at most one refresh token is ever usable per user.
type Service struct {
	users   UserStore
	access  *token.AccessCodec
	refresh *token.RefreshCodec

	bcryptCost int
	nowFunc    func() time.Time
}

type ServiceConfig struct {
	// BcryptCost applies to both password and refresh-token hashing.
	// Zero means bcrypt.DefaultCost.
	BcryptCost int
}

func NewService(users UserStore, access *token.AccessCodec, refresh *token.RefreshCodec, cfg ServiceConfig) (*Service, error) {
	if users == nil {
		return nil, fmt.Errorf("user store is required")
	}
	if access == nil {
		return nil, fmt.Errorf("access codec is required")
	}
	if refresh == nil {
		return nil, fmt.Errorf("refresh codec is required")
	}
	cost := cfg.BcryptCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("bcrypt cost %d out of range", cost)
	}

	return &Service{
		users:      users,
		access:     access,
		refresh:    refresh,
		bcryptCost: cost,
		nowFunc:    time.Now,
	}, nil
}

func (s *Service) Signup(email, password string) (AuthResult, error) {
	email = strings.TrimSpace(email)

	if _, err := s.users.GetByEmail(email); err == nil {
		return AuthResult{}, ErrDuplicateEmail
	} else if !errors.Is(err, ErrUserNotFound) {
		return AuthResult{}, fmt.Errorf("check existing user: %w", err)
	}

	passwordHash, err := hashPassword(password, s.bcryptCost)
	if err != nil {
		return AuthResult{}, err
	}

	user := User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: passwordHash,
		Role:         DefaultRole,
		CreatedAt:    s.nowFunc().UTC(),
	}

	pair, refreshHash, err := s.mintPair(user)
	if err != nil {
		return AuthResult{}, err
	}

	// The refresh hash rides along on the insert so a created user is always
	// immediately refreshable.
	user.RefreshTokenHash = refreshHash
	if err := s.users.Create(user); err != nil {
		if errors.Is(err, ErrDuplicateEmail) {
			return AuthResult{}, ErrDuplicateEmail
		}
		return AuthResult{}, fmt.Errorf("create user: %w", err)
	}

	return AuthResult{
		User:         user.Public(),
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	}, nil
}

func (s *Service) Login(email, password string) (AuthResult, error) {
	email = strings.TrimSpace(email)

	// Unknown email and wrong password collapse into one error so the
	// response cannot be used to enumerate accounts.
	user, err := s.users.GetByEmail(email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return AuthResult{}, ErrInvalidCredentials
		}
		return AuthResult{}, fmt.Errorf("look up user: %w", err)
	}
	if !checkPassword(password, user.PasswordHash) {
		return AuthResult{}, ErrInvalidCredentials
	}

	pair, refreshHash, err := s.mintPair(user)
	if err != nil {
		return AuthResult{}, err
	}
	if err := s.users.UpdateRefreshTokenHash(user.ID, refreshHash); err != nil {
		return AuthResult{}, fmt.Errorf("store refresh token hash: %w", err)
	}

	return AuthResult{
		User:         user.Public(),
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	}, nil
}

// Refresh rotates the presented refresh token: every successful call
// invalidates the token it consumed. Two concurrent calls on the same token
// may both pass the hash check; only the last-written hash survives, so the
// other caller's new refresh token fails on its next use. Accepted race,
// kept lockless to stay single-roundtrip.
func (s *Service) Refresh(refreshToken string) (TokenPair, error) {
	id, err := s.refresh.Verify(refreshToken)
	if err != nil {
		return TokenPair{}, ErrInvalidRefreshToken
	}

	user, err := s.users.GetByID(id.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return TokenPair{}, ErrInvalidRefreshToken
		}
		return TokenPair{}, fmt.Errorf("look up user: %w", err)
	}
	if user.RefreshTokenHash == "" {
		return TokenPair{}, ErrInvalidRefreshToken
	}
	if !checkRefreshToken(refreshToken, user.RefreshTokenHash) {
		return TokenPair{}, ErrInvalidRefreshToken
	}

	pair, refreshHash, err := s.mintPair(user)
	if err != nil {
		return TokenPair{}, err
	}
	if err := s.users.UpdateRefreshTokenHash(user.ID, refreshHash); err != nil {
		return TokenPair{}, fmt.Errorf("store refresh token hash: %w", err)
	}

	return pair, nil
}

// Logout clears the stored refresh-token hash. Calling it twice, or for a
// user with no active session, is not an error.
func (s *Service) Logout(userID string) error {
	if err := s.users.UpdateRefreshTokenHash(userID, ""); err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil
		}
		return fmt.Errorf("clear refresh token hash: %w", err)
	}
	return nil
}

// VerifyAccess checks an access token statelessly; the store is never
// consulted, so access tokens cannot be revoked before expiry.
func (s *Service) VerifyAccess(accessToken string) (token.Identity, error) {
	return s.access.Verify(accessToken)
}

func (s *Service) mintPair(user User) (TokenPair, string, error) {
	id := token.Identity{UserID: user.ID, Email: user.Email, Role: user.Role}

	accessToken, err := s.access.Sign(id)
	if err != nil {
		return TokenPair{}, "", fmt.Errorf("mint access token: %w", err)
	}
	refreshToken, err := s.refresh.Sign(id)
	if err != nil {
		return TokenPair{}, "", fmt.Errorf("mint refresh token: %w", err)
	}
	refreshHash, err := hashRefreshToken(refreshToken, s.bcryptCost)
	if err != nil {
		return TokenPair{}, "", err
	}
	return TokenPair{AccessToken: accessToken, RefreshToken: refreshToken}, refreshHash, nil
}

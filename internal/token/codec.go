package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidAccessToken  = errors.New("invalid access token")
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
)

const (
	typeAccess  = "access"
	typeRefresh = "refresh"
)

// Identity is the claim set carried by both token kinds. It is fixed at
// signing time and never re-read from the store during verification.
type Identity struct {
	UserID string
	Email  string
	Role   string
}

type claims struct {
	UserID    string `json:"user_id"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	TokenType string `json:"token_type"`
	jwt.RegisteredClaims
}

// AccessCodec signs and verifies short-lived access tokens. It shares no
// secret with RefreshCodec; a refresh token presented to Verify fails on the
// token_type claim even if the two secrets were misconfigured to be equal.
type AccessCodec struct {
	secret  []byte
	ttl     time.Duration
	nowFunc func() time.Time
}

func NewAccessCodec(secret string, ttl time.Duration) (*AccessCodec, error) {
	if secret == "" {
		return nil, fmt.Errorf("access token secret is required")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("access token TTL must be > 0")
	}
	return &AccessCodec{secret: []byte(secret), ttl: ttl, nowFunc: time.Now}, nil
}

func (c *AccessCodec) Sign(id Identity) (string, error) {
	now := c.nowFunc()
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		UserID:    id.UserID,
		Email:     id.Email,
		Role:      id.Role,
		TokenType: typeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			// A jti makes every mint distinct even within one clock second.
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
		},
	})
	signed, err := t.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return signed, nil
}

func (c *AccessCodec) Verify(tokenStr string) (Identity, error) {
	cl, err := parseHS256(tokenStr, c.secret, c.nowFunc)
	if err != nil || cl.TokenType != typeAccess {
		return Identity{}, ErrInvalidAccessToken
	}
	return Identity{UserID: cl.UserID, Email: cl.Email, Role: cl.Role}, nil
}

// RefreshCodec signs and verifies the longer-lived refresh tokens. Stateful
// validity (the stored hash check) is the lifecycle service's job; this codec
// only answers whether the token is authentic and unexpired.
type RefreshCodec struct {
	secret  []byte
	ttl     time.Duration
	nowFunc func() time.Time
}

func NewRefreshCodec(secret string, ttl time.Duration) (*RefreshCodec, error) {
	if secret == "" {
		return nil, fmt.Errorf("refresh token secret is required")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("refresh token TTL must be > 0")
	}
	return &RefreshCodec{secret: []byte(secret), ttl: ttl, nowFunc: time.Now}, nil
}

func (c *RefreshCodec) TTL() time.Duration {
	return c.ttl
}

func (c *RefreshCodec) Sign(id Identity) (string, error) {
	now := c.nowFunc()
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		UserID:    id.UserID,
		Email:     id.Email,
		Role:      id.Role,
		TokenType: typeRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
		},
	})
	signed, err := t.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("sign refresh token: %w", err)
	}
	return signed, nil
}

func (c *RefreshCodec) Verify(tokenStr string) (Identity, error) {
	cl, err := parseHS256(tokenStr, c.secret, c.nowFunc)
	if err != nil || cl.TokenType != typeRefresh {
		return Identity{}, ErrInvalidRefreshToken
	}
	return Identity{UserID: cl.UserID, Email: cl.Email, Role: cl.Role}, nil
}

func parseHS256(tokenStr string, secret []byte, nowFunc func() time.Time) (*claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(nowFunc),
	)
	parsed, err := parser.ParseWithClaims(tokenStr, &claims{}, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	})
	if err != nil {
		return nil, err
	}
	cl, ok := parsed.Claims.(*claims)
	if !ok || !parsed.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return cl, nil
}

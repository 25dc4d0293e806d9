package auth

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
)

const uniqueViolation = "23505"

type PostgresUserStore struct {
	db *sql.DB
}

func NewPostgresUserStore(db *sql.DB) (*PostgresUserStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database is required")
	}
	s := &PostgresUserStore{db: db}
	if err := s.ensureSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PostgresUserStore) ensureSchema() error {
	const q = `
CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	email TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	role TEXT NOT NULL DEFAULT 'user',
	refresh_token_hash TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`
	if _, err := s.db.Exec(q); err != nil {
		return fmt.Errorf("ensure users schema: %w", err)
	}
	return nil
}

func (s *PostgresUserStore) GetByEmail(email string) (User, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return User{}, ErrUserNotFound
	}
	const q = `
SELECT id, email, password_hash, role, refresh_token_hash, created_at
FROM users
WHERE email = $1`
	return s.scanUser(s.db.QueryRow(q, email))
}

func (s *PostgresUserStore) GetByID(id string) (User, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return User{}, ErrUserNotFound
	}
	const q = `
SELECT id, email, password_hash, role, refresh_token_hash, created_at
FROM users
WHERE id = $1`
	return s.scanUser(s.db.QueryRow(q, id))
}

func (s *PostgresUserStore) Create(user User) error {
	if user.ID == "" || user.Email == "" || user.PasswordHash == "" {
		return fmt.Errorf("id, email, and password hash are required")
	}

	const q = `
INSERT INTO users (id, email, password_hash, role, refresh_token_hash, created_at)
VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := s.db.Exec(q, user.ID, user.Email, user.PasswordHash, user.Role, user.RefreshTokenHash, user.CreatedAt); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *PostgresUserStore) UpdateRefreshTokenHash(userID, hash string) error {
	const q = `UPDATE users SET refresh_token_hash = $2 WHERE id = $1`
	res, err := s.db.Exec(q, userID, hash)
	if err != nil {
		return fmt.Errorf("update refresh token hash: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update refresh token hash: %w", err)
	}
	if affected == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (s *PostgresUserStore) scanUser(row *sql.Row) (User, error) {
	var u User
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Role, &u.RefreshTokenHash, &u.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrUserNotFound
		}
		return User{}, fmt.Errorf("query user: %w", err)
	}
	return u, nil
}

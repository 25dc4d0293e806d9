package auth

import "time"

const DefaultRole = "user"

type User struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	PasswordHash string `json:"-"`
	Role         string `json:"role"`
	// RefreshTokenHash is a bcrypt digest of the currently valid refresh
	// token, or empty when the user has no active session. Each login or
	// refresh overwrites it, which is what invalidates prior sessions.
	RefreshTokenHash string    `json:"-"`
	CreatedAt        time.Time `json:"created_at"`
}

// PublicUser is the caller-visible projection of a User. Hashes never leave
// this package.
type PublicUser struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

func (u User) Public() PublicUser {
	return PublicUser{
		ID:        u.ID,
		Email:     u.Email,
		Role:      u.Role,
		CreatedAt: u.CreatedAt,
	}
}

// AuthResult is returned by Signup and Login. Refresh returns only the token
// pair; the caller already knows the user.
type AuthResult struct {
	User         PublicUser
	AccessToken  string
	RefreshToken string
}

type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

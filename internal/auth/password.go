package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

func hashPassword(password string, cost int) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(h), nil
}

func checkPassword(password, storedHash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(storedHash), []byte(password)) == nil
}

// refreshDigest pre-digests a refresh token before bcrypt. bcrypt ignores
// input beyond 72 bytes and a signed JWT is well past that, so the token is
// reduced to a fixed-width hex string first.
func refreshDigest(refreshToken string) string {
	sum := sha256.Sum256([]byte(refreshToken))
	return hex.EncodeToString(sum[:])
}

func hashRefreshToken(refreshToken string, cost int) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(refreshDigest(refreshToken)), cost)
	if err != nil {
		return "", fmt.Errorf("hash refresh token: %w", err)
	}
	return string(h), nil
}

func checkRefreshToken(refreshToken, storedHash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(storedHash), []byte(refreshDigest(refreshToken))) == nil
}

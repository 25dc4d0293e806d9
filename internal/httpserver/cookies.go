package httpserver

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"time"
)

var ErrCSRFMismatch = errors.New("csrf token mismatch")

const csrfHeader = "X-CSRF-Token"

// CookieConfig binds the refresh token to cookie transport. Set and clear go
// through the same builders so the attributes always match; a clear with
// different path or flags would silently leave the cookie in place.
type CookieConfig struct {
	RefreshName string
	CSRFName    string
	Path        string
	// Secure is set in production; local HTTP development has no TLS.
	Secure     bool
	RefreshTTL time.Duration
	CSRFTTL    time.Duration
}

func (c CookieConfig) withDefaults() CookieConfig {
	if c.RefreshName == "" {
		c.RefreshName = "refresh_token"
	}
	if c.CSRFName == "" {
		c.CSRFName = "_csrf"
	}
	if c.Path == "" {
		c.Path = "/v1"
	}
	if c.RefreshTTL <= 0 {
		c.RefreshTTL = 7 * 24 * time.Hour
	}
	if c.CSRFTTL <= 0 {
		c.CSRFTTL = 24 * time.Hour
	}
	return c
}

func (c CookieConfig) refreshCookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     c.RefreshName,
		Value:    value,
		Path:     c.Path,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteStrictMode,
	}
}

func (c CookieConfig) csrfCookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     c.CSRFName,
		Value:    value,
		Path:     c.Path,
		MaxAge:   maxAge,
		HttpOnly: false, // script must read it to echo the header
		Secure:   c.Secure,
		SameSite: http.SameSiteStrictMode,
	}
}

func (c CookieConfig) setRefreshCookie(w http.ResponseWriter, refreshToken string) {
	http.SetCookie(w, c.refreshCookie(refreshToken, int(c.RefreshTTL.Seconds())))
}

func (c CookieConfig) clearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, c.refreshCookie("", -1))
}

func (c CookieConfig) clearCSRFCookie(w http.ResponseWriter) {
	http.SetCookie(w, c.csrfCookie("", -1))
}

// issueCSRF mints a fresh double-submit token and delivers it as a
// script-readable cookie. Reissued on every signup, login, and refresh.
func (c CookieConfig) issueCSRF(w http.ResponseWriter) (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate csrf token: %w", err)
	}
	tok := hex.EncodeToString(b)
	http.SetCookie(w, c.csrfCookie(tok, int(c.CSRFTTL.Seconds())))
	return tok, nil
}

// validateCSRF compares the cookie copy against the header copy. Both must
// be present and equal; any other outcome is a mismatch.
func (c CookieConfig) validateCSRF(r *http.Request) error {
	header := r.Header.Get(csrfHeader)
	cookie, err := r.Cookie(c.CSRFName)
	if header == "" || err != nil || cookie.Value == "" {
		return ErrCSRFMismatch
	}
	if subtle.ConstantTimeCompare([]byte(header), []byte(cookie.Value)) != 1 {
		return ErrCSRFMismatch
	}
	return nil
}

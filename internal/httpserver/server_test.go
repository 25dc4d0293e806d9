package httpserver

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"tokensvr/auth-core/internal/auth"
	"tokensvr/auth-core/internal/counter"
	"tokensvr/auth-core/internal/token"
)

type fakeAuthService struct {
	signupFunc       func(email, password string) (auth.AuthResult, error)
	loginFunc        func(email, password string) (auth.AuthResult, error)
	refreshFunc      func(refreshToken string) (auth.TokenPair, error)
	logoutFunc       func(userID string) error
	verifyAccessFunc func(accessToken string) (token.Identity, error)
}

func (f fakeAuthService) Signup(email, password string) (auth.AuthResult, error) {
	if f.signupFunc == nil {
		return auth.AuthResult{}, errors.New("not implemented")
	}
	return f.signupFunc(email, password)
}

func (f fakeAuthService) Login(email, password string) (auth.AuthResult, error) {
	if f.loginFunc == nil {
		return auth.AuthResult{}, errors.New("not implemented")
	}
	return f.loginFunc(email, password)
}

func (f fakeAuthService) Refresh(refreshToken string) (auth.TokenPair, error) {
	if f.refreshFunc == nil {
		return auth.TokenPair{}, errors.New("not implemented")
	}
	return f.refreshFunc(refreshToken)
}

func (f fakeAuthService) Logout(userID string) error {
	if f.logoutFunc == nil {
		return errors.New("not implemented")
	}
	return f.logoutFunc(userID)
}

func (f fakeAuthService) VerifyAccess(accessToken string) (token.Identity, error) {
	if f.verifyAccessFunc == nil {
		return token.Identity{}, errors.New("not implemented")
	}
	return f.verifyAccessFunc(accessToken)
}

type fakeIncrementer struct {
	name  string
	calls int
	res   counter.Resource
	err   error
}

func (f *fakeIncrementer) Increment(id, delta int64) (counter.Resource, error) {
	f.calls++
	if f.err != nil {
		return counter.Resource{}, f.err
	}
	return f.res, nil
}

type fakeCounterReader struct {
	getFunc func(id int64) (counter.Resource, error)
}

func (f fakeCounterReader) Get(id int64) (counter.Resource, error) {
	if f.getFunc == nil {
		return counter.Resource{}, errors.New("not implemented")
	}
	return f.getFunc(id)
}

func validVerify(accessToken string) (token.Identity, error) {
	if accessToken != "good-token" {
		return token.Identity{}, token.ErrInvalidAccessToken
	}
	return token.Identity{UserID: "u-1", Email: "a@x.com", Role: "user"}, nil
}

func testResult() auth.AuthResult {
	return auth.AuthResult{
		User: auth.PublicUser{
			ID:        "u-1",
			Email:     "a@x.com",
			Role:      "user",
			CreatedAt: time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC),
		},
		AccessToken:  "access-jwt",
		RefreshToken: "refresh-jwt",
	}
}

func findCookie(t *testing.T, res *http.Response, name string) *http.Cookie {
	t.Helper()
	for _, c := range res.Cookies() {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("cookie %q not set", name)
	return nil
}

func TestSignupSetsSessionCookies(t *testing.T) {
	handler := NewHandler(Deps{
		Auth: fakeAuthService{
			signupFunc: func(email, password string) (auth.AuthResult, error) {
				return testResult(), nil
			},
		},
	})

	body := bytes.NewBufferString(`{"email":"a@x.com","password":"pw"}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/auth/signup", body)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		User        auth.PublicUser `json:"user"`
		AccessToken string          `json:"access_token"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.AccessToken != "access-jwt" || resp.User.Email != "a@x.com" {
		t.Fatalf("unexpected response: %+v", resp)
	}

	refresh := findCookie(t, rec.Result(), "refresh_token")
	if refresh.Value != "refresh-jwt" || !refresh.HttpOnly {
		t.Fatalf("unexpected refresh cookie: %+v", refresh)
	}
	if refresh.SameSite != http.SameSiteStrictMode {
		t.Fatalf("refresh cookie must be SameSite=Strict")
	}

	csrf := findCookie(t, rec.Result(), "_csrf")
	if csrf.HttpOnly {
		t.Fatalf("csrf cookie must be script-readable")
	}
	if csrf.Value == "" {
		t.Fatalf("csrf cookie must carry a token")
	}
}

func TestSignupDuplicateEmail(t *testing.T) {
	handler := NewHandler(Deps{
		Auth: fakeAuthService{
			signupFunc: func(email, password string) (auth.AuthResult, error) {
				return auth.AuthResult{}, auth.ErrDuplicateEmail
			},
		},
	})

	req := httptest.NewRequest(http.MethodPost, "/v1/auth/signup",
		bytes.NewBufferString(`{"email":"a@x.com","password":"pw"}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

func TestLoginInvalidCredentials(t *testing.T) {
	handler := NewHandler(Deps{
		Auth: fakeAuthService{
			loginFunc: func(email, password string) (auth.AuthResult, error) {
				return auth.AuthResult{}, auth.ErrInvalidCredentials
			},
		},
	})

	req := httptest.NewRequest(http.MethodPost, "/v1/auth/login",
		bytes.NewBufferString(`{"email":"a@x.com","password":"bad"}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestRefreshRequiresCSRF(t *testing.T) {
	handler := NewHandler(Deps{Auth: fakeAuthService{}})

	// No CSRF material at all.
	req := httptest.NewRequest(http.MethodPost, "/v1/auth/refresh", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without csrf, got %d", rec.Code)
	}

	// Cookie and header disagree.
	req = httptest.NewRequest(http.MethodPost, "/v1/auth/refresh", nil)
	req.AddCookie(&http.Cookie{Name: "_csrf", Value: "aaa"})
	req.Header.Set(csrfHeader, "bbb")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 on csrf mismatch, got %d", rec.Code)
	}
}

func TestRefreshRotatesCookies(t *testing.T) {
	handler := NewHandler(Deps{
		Auth: fakeAuthService{
			refreshFunc: func(refreshToken string) (auth.TokenPair, error) {
				if refreshToken != "old-refresh" {
					t.Fatalf("unexpected refresh token %q", refreshToken)
				}
				return auth.TokenPair{AccessToken: "new-access", RefreshToken: "new-refresh"}, nil
			},
		},
	})

	req := httptest.NewRequest(http.MethodPost, "/v1/auth/refresh", nil)
	req.AddCookie(&http.Cookie{Name: "_csrf", Value: "tok"})
	req.Header.Set(csrfHeader, "tok")
	req.AddCookie(&http.Cookie{Name: "refresh_token", Value: "old-refresh"})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	refresh := findCookie(t, rec.Result(), "refresh_token")
	if refresh.Value != "new-refresh" {
		t.Fatalf("expected rotated refresh cookie, got %q", refresh.Value)
	}
	csrf := findCookie(t, rec.Result(), "_csrf")
	if csrf.Value == "" || csrf.Value == "tok" {
		t.Fatalf("expected a fresh csrf token, got %q", csrf.Value)
	}
}

func TestRefreshMissingCookie(t *testing.T) {
	handler := NewHandler(Deps{Auth: fakeAuthService{}})

	req := httptest.NewRequest(http.MethodPost, "/v1/auth/refresh", nil)
	req.AddCookie(&http.Cookie{Name: "_csrf", Value: "tok"})
	req.Header.Set(csrfHeader, "tok")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without refresh cookie, got %d", rec.Code)
	}
}

func TestRefreshInvalidToken(t *testing.T) {
	handler := NewHandler(Deps{
		Auth: fakeAuthService{
			refreshFunc: func(refreshToken string) (auth.TokenPair, error) {
				return auth.TokenPair{}, auth.ErrInvalidRefreshToken
			},
		},
	})

	req := httptest.NewRequest(http.MethodPost, "/v1/auth/refresh", nil)
	req.AddCookie(&http.Cookie{Name: "_csrf", Value: "tok"})
	req.Header.Set(csrfHeader, "tok")
	req.AddCookie(&http.Cookie{Name: "refresh_token", Value: "replayed"})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestLogoutClearsCookies(t *testing.T) {
	loggedOut := ""
	handler := NewHandler(Deps{
		Auth: fakeAuthService{
			verifyAccessFunc: validVerify,
			logoutFunc: func(userID string) error {
				loggedOut = userID
				return nil
			},
		},
	})

	req := httptest.NewRequest(http.MethodPost, "/v1/auth/logout", nil)
	req.Header.Set("Authorization", "Bearer good-token")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if loggedOut != "u-1" {
		t.Fatalf("expected logout for u-1, got %q", loggedOut)
	}

	refresh := findCookie(t, rec.Result(), "refresh_token")
	if refresh.Value != "" || refresh.MaxAge >= 0 {
		t.Fatalf("expected expired empty refresh cookie, got %+v", refresh)
	}
	// Clear must reuse the set path or clients silently keep the cookie.
	if refresh.Path != "/v1" {
		t.Fatalf("clear cookie path %q differs from set path", refresh.Path)
	}
}

func TestLogoutRequiresAccessToken(t *testing.T) {
	handler := NewHandler(Deps{Auth: fakeAuthService{verifyAccessFunc: validVerify}})

	req := httptest.NewRequest(http.MethodPost, "/v1/auth/logout", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without bearer, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/v1/auth/logout", nil)
	req.Header.Set("Authorization", "Bearer expired")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with bad token, got %d", rec.Code)
	}
}

func TestMe(t *testing.T) {
	handler := NewHandler(Deps{Auth: fakeAuthService{verifyAccessFunc: validVerify}})

	req := httptest.NewRequest(http.MethodGet, "/v1/auth/me", nil)
	req.Header.Set("Authorization", "Bearer good-token")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["email"] != "a@x.com" || resp["id"] != "u-1" {
		t.Fatalf("unexpected identity: %v", resp)
	}
}

func TestSampleGet(t *testing.T) {
	handler := NewHandler(Deps{
		Counters: fakeCounterReader{
			getFunc: func(id int64) (counter.Resource, error) {
				if id == 1 {
					return counter.Resource{ID: 1, Counter: 42}, nil
				}
				return counter.Resource{}, counter.ErrNotFound
			},
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/v1/samples/1", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var res counter.Resource
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if res.Counter != 42 {
		t.Fatalf("expected counter 42, got %d", res.Counter)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/samples/404", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/samples/not-a-number", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestIncrementStrategySelection(t *testing.T) {
	atomic := &fakeIncrementer{name: "atomic", res: counter.Resource{ID: 1, Counter: 2}}
	locking := &fakeIncrementer{name: "lock", res: counter.Resource{ID: 1, Counter: 2}}
	handler := NewHandler(Deps{
		Auth:           fakeAuthService{verifyAccessFunc: validVerify},
		AtomicCounter:  atomic,
		LockingCounter: locking,
	})

	post := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/v1/samples/1/increment",
			bytes.NewBufferString(body))
		req.Header.Set("Authorization", "Bearer good-token")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	if rec := post(`{"delta":1}`); rec.Code != http.StatusOK {
		t.Fatalf("default strategy: expected 200, got %d", rec.Code)
	}
	if atomic.calls != 1 || locking.calls != 0 {
		t.Fatalf("default must route to atomic: atomic=%d lock=%d", atomic.calls, locking.calls)
	}

	if rec := post(`{"delta":1,"strategy":"lock"}`); rec.Code != http.StatusOK {
		t.Fatalf("lock strategy: expected 200, got %d", rec.Code)
	}
	if locking.calls != 1 {
		t.Fatalf("expected locking incrementer to be called")
	}

	if rec := post(`{"delta":1,"strategy":"optimistic"}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown strategy: expected 400, got %d", rec.Code)
	}
}

func TestIncrementRequiresAccessToken(t *testing.T) {
	handler := NewHandler(Deps{
		Auth:          fakeAuthService{verifyAccessFunc: validVerify},
		AtomicCounter: &fakeIncrementer{},
	})

	req := httptest.NewRequest(http.MethodPost, "/v1/samples/1/increment",
		bytes.NewBufferString(`{"delta":1}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestIncrementNotFound(t *testing.T) {
	handler := NewHandler(Deps{
		Auth:          fakeAuthService{verifyAccessFunc: validVerify},
		AtomicCounter: &fakeIncrementer{err: counter.ErrNotFound},
	})

	req := httptest.NewRequest(http.MethodPost, "/v1/samples/9/increment",
		bytes.NewBufferString(`{"delta":1}`))
	req.Header.Set("Authorization", "Bearer good-token")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestHealthEndpoints(t *testing.T) {
	handler := NewHandler(Deps{})

	for _, path := range []string{"/healthz", "/readyz"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", path, rec.Code)
		}
	}
}

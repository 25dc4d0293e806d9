package httpserver

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"tokensvr/auth-core/internal/audit"
	"tokensvr/auth-core/internal/auth"
	"tokensvr/auth-core/internal/config"
	"tokensvr/auth-core/internal/counter"
	"tokensvr/auth-core/internal/token"
)

type AuthService interface {
	Signup(email, password string) (auth.AuthResult, error)
	Login(email, password string) (auth.AuthResult, error)
	Refresh(refreshToken string) (auth.TokenPair, error)
	Logout(userID string) error
	VerifyAccess(accessToken string) (token.Identity, error)
}

type CounterReader interface {
	Get(id int64) (counter.Resource, error)
}

type AuditLogger interface {
	Log(e audit.Event) error
}

type Deps struct {
	Auth           AuthService
	Counters       CounterReader
	AtomicCounter  counter.Incrementer
	LockingCounter counter.Incrementer
	Audit          AuditLogger
	Cookies        CookieConfig
}

type Server struct {
	httpServer *http.Server
}

func New(cfg config.HTTPConfig, deps Deps) *Server {
	handler := NewHandler(deps)

	return &Server{
		httpServer: &http.Server{
			Addr:         cfg.Addr,
			Handler:      loggingMiddleware(handler),
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  60 * time.Second,
		},
	}
}

func NewHandler(deps Deps) http.Handler {
	deps.Cookies = deps.Cookies.withDefaults()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	})

	registerAuthHandlers(mux, deps)
	registerSampleHandlers(mux, deps)

	return mux
}

func registerAuthHandlers(mux *http.ServeMux, deps Deps) {
	mux.HandleFunc("/v1/auth/signup", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		email, password, ok := decodeCredentials(w, r)
		if !ok {
			return
		}

		res, err := deps.Auth.Signup(email, password)
		if err != nil {
			if errors.Is(err, auth.ErrDuplicateEmail) {
				auditReq(deps.Audit, r, email, "auth.signup", "", "failed", "email already exists")
				writeError(w, http.StatusConflict, "email already exists")
				return
			}
			auditReq(deps.Audit, r, email, "auth.signup", "", "failed", err.Error())
			writeError(w, http.StatusInternalServerError, "signup failed")
			return
		}
		auditReq(deps.Audit, r, res.User.Email, "auth.signup", res.User.ID, "success", "")

		if !deliverSession(w, deps.Cookies, res.RefreshToken) {
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{
			"user":         res.User,
			"access_token": res.AccessToken,
		})
	})

	mux.HandleFunc("/v1/auth/login", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		email, password, ok := decodeCredentials(w, r)
		if !ok {
			return
		}

		res, err := deps.Auth.Login(email, password)
		if err != nil {
			if errors.Is(err, auth.ErrInvalidCredentials) {
				auditReq(deps.Audit, r, email, "auth.login", "", "failed", "invalid credentials")
				writeError(w, http.StatusUnauthorized, "invalid credentials")
				return
			}
			auditReq(deps.Audit, r, email, "auth.login", "", "failed", err.Error())
			writeError(w, http.StatusInternalServerError, "login failed")
			return
		}
		auditReq(deps.Audit, r, res.User.Email, "auth.login", res.User.ID, "success", "")

		if !deliverSession(w, deps.Cookies, res.RefreshToken) {
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"user":         res.User,
			"access_token": res.AccessToken,
		})
	})

	mux.HandleFunc("/v1/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		// CSRF first: its failure is deliberately distinguishable from
		// refresh-token failures.
		if err := deps.Cookies.validateCSRF(r); err != nil {
			auditReq(deps.Audit, r, "", "auth.refresh", "", "failed", "csrf mismatch")
			writeError(w, http.StatusForbidden, "invalid csrf token")
			return
		}

		cookie, err := r.Cookie(deps.Cookies.RefreshName)
		if err != nil || cookie.Value == "" {
			writeError(w, http.StatusUnauthorized, "invalid refresh token")
			return
		}

		pair, err := deps.Auth.Refresh(cookie.Value)
		if err != nil {
			if errors.Is(err, auth.ErrInvalidRefreshToken) {
				auditReq(deps.Audit, r, "", "auth.refresh", "", "failed", "invalid refresh token")
				writeError(w, http.StatusUnauthorized, "invalid refresh token")
				return
			}
			auditReq(deps.Audit, r, "", "auth.refresh", "", "failed", err.Error())
			writeError(w, http.StatusInternalServerError, "refresh failed")
			return
		}
		auditReq(deps.Audit, r, "", "auth.refresh", "", "success", "")

		if !deliverSession(w, deps.Cookies, pair.RefreshToken) {
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"access_token": pair.AccessToken})
	})

	mux.HandleFunc("/v1/auth/logout", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		id, ok := requireIdentity(w, r, deps.Auth)
		if !ok {
			return
		}

		if err := deps.Auth.Logout(id.UserID); err != nil {
			auditReq(deps.Audit, r, id.Email, "auth.logout", id.UserID, "failed", err.Error())
			writeError(w, http.StatusInternalServerError, "logout failed")
			return
		}
		auditReq(deps.Audit, r, id.Email, "auth.logout", id.UserID, "success", "")

		deps.Cookies.clearRefreshCookie(w)
		deps.Cookies.clearCSRFCookie(w)
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("/v1/auth/me", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		id, ok := requireIdentity(w, r, deps.Auth)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{
			"id":    id.UserID,
			"email": id.Email,
			"role":  id.Role,
		})
	})
}

func registerSampleHandlers(mux *http.ServeMux, deps Deps) {
	mux.HandleFunc("/v1/samples/", func(w http.ResponseWriter, r *http.Request) {
		rest := strings.TrimPrefix(r.URL.Path, "/v1/samples/")

		switch {
		case r.Method == http.MethodGet && !strings.Contains(rest, "/"):
			handleSampleGet(w, r, deps, rest)
		case r.Method == http.MethodPost && strings.HasSuffix(rest, "/increment"):
			handleSampleIncrement(w, r, deps, strings.TrimSuffix(rest, "/increment"))
		default:
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
	})
}

func handleSampleGet(w http.ResponseWriter, r *http.Request, deps Deps, rawID string) {
	if deps.Counters == nil {
		writeError(w, http.StatusServiceUnavailable, "counter service unavailable")
		return
	}
	id, err := parseSampleID(rawID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid sample id")
		return
	}

	res, err := deps.Counters.Get(id)
	if err != nil {
		if errors.Is(err, counter.ErrNotFound) {
			writeError(w, http.StatusNotFound, "sample not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "get sample failed")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func handleSampleIncrement(w http.ResponseWriter, r *http.Request, deps Deps, rawID string) {
	identity, ok := requireIdentity(w, r, deps.Auth)
	if !ok {
		return
	}
	id, err := parseSampleID(rawID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid sample id")
		return
	}

	var req struct {
		Delta    int64  `json:"delta"`
		Strategy string `json:"strategy"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Delta == 0 {
		req.Delta = 1
	}

	var inc counter.Incrementer
	switch req.Strategy {
	case "", "atomic":
		inc = deps.AtomicCounter
	case "lock":
		inc = deps.LockingCounter
	default:
		writeError(w, http.StatusBadRequest, "unknown strategy")
		return
	}
	if inc == nil {
		writeError(w, http.StatusServiceUnavailable, "counter service unavailable")
		return
	}

	res, err := inc.Increment(id, req.Delta)
	if err != nil {
		if errors.Is(err, counter.ErrNotFound) {
			writeError(w, http.StatusNotFound, "sample not found")
			return
		}
		auditReq(deps.Audit, r, identity.Email, "counter.increment", rawID, "failed", err.Error())
		writeError(w, http.StatusInternalServerError, "increment failed")
		return
	}
	auditReq(deps.Audit, r, identity.Email, "counter.increment", rawID, "success", "")
	writeJSON(w, http.StatusOK, res)
}

func parseSampleID(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, fmt.Errorf("empty id")
	}
	return strconv.ParseInt(raw, 10, 64)
}

func decodeCredentials(w http.ResponseWriter, r *http.Request) (string, string, bool) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return "", "", false
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password are required")
		return "", "", false
	}
	return req.Email, req.Password, true
}

// deliverSession places the refresh cookie and a fresh CSRF cookie on the
// response. Reports false after writing an error response itself.
func deliverSession(w http.ResponseWriter, cookies CookieConfig, refreshToken string) bool {
	cookies.setRefreshCookie(w, refreshToken)
	if _, err := cookies.issueCSRF(w); err != nil {
		writeError(w, http.StatusInternalServerError, "session setup failed")
		return false
	}
	return true
}

func requireIdentity(w http.ResponseWriter, r *http.Request, authSvc AuthService) (token.Identity, bool) {
	if authSvc == nil {
		writeError(w, http.StatusServiceUnavailable, "auth service unavailable")
		return token.Identity{}, false
	}
	bearer, err := extractBearerToken(r.Header.Get("Authorization"))
	if err != nil {
		writeError(w, http.StatusUnauthorized, "missing or invalid bearer token")
		return token.Identity{}, false
	}

	id, err := authSvc.VerifyAccess(bearer)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid access token")
		return token.Identity{}, false
	}
	return id, true
}

func extractBearerToken(authHeader string) (string, error) {
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", fmt.Errorf("invalid authorization header")
	}
	return strings.TrimSpace(parts[1]), nil
}

func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(statusCode int) {
	r.status = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := strings.TrimSpace(r.Header.Get("X-Request-Id"))
		if reqID == "" {
			reqID = newRequestID()
		}
		w.Header().Set("X-Request-Id", reqID)
		r = r.WithContext(context.WithValue(r.Context(), requestIDKey{}, reqID))
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)
		slog.Info("http request",
			"request_id", reqID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
			"ip", clientIP(r),
		)
	})
}

type requestIDKey struct{}

func newRequestID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("req-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}

func requestIDFromContext(ctx context.Context) string {
	if s, ok := ctx.Value(requestIDKey{}).(string); ok {
		return s
	}
	return ""
}

func clientIP(r *http.Request) string {
	if fwd := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); fwd != "" {
		parts := strings.Split(fwd, ",")
		return strings.TrimSpace(parts[0])
	}
	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
		return realIP
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		return host
	}
	return r.RemoteAddr
}

func auditReq(a AuditLogger, r *http.Request, actor, action, target, outcome, detail string) {
	if a == nil {
		return
	}
	_ = a.Log(audit.Event{
		Actor:     actor,
		Action:    action,
		Target:    target,
		Outcome:   outcome,
		Detail:    strings.TrimSpace(detail),
		RequestID: requestIDFromContext(r.Context()),
		IP:        clientIP(r),
	})
}

package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	HTTP          HTTPConfig
	DatabaseURL   string
	Auth          AuthConfig
	Cookies       CookieConfig
	Environment   string
	SampleSeedID  int64
	UserStateFile string
	AuditLogFile  string
}

type HTTPConfig struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

type AuthConfig struct {
	// AccessSecret and RefreshSecret must differ; possession of one token
	// kind must never help forge the other.
	AccessSecret    string
	RefreshSecret   string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	BcryptCost      int
}

type CookieConfig struct {
	RefreshName string
	CSRFName    string
	Path        string
	CSRFTTL     time.Duration
}

func (c Config) Production() bool {
	return c.Environment == "production"
}

func Load() (Config, error) {
	cfg := Config{
		HTTP: HTTPConfig{
			Addr:            getEnv("HTTP_ADDR", ":8080"),
			ReadTimeout:     time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SEC", 10)) * time.Second,
			WriteTimeout:    time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SEC", 15)) * time.Second,
			ShutdownTimeout: time.Duration(getEnvInt("HTTP_SHUTDOWN_TIMEOUT_SEC", 20)) * time.Second,
		},
		DatabaseURL: getEnv("DATABASE_URL", ""),
		Auth: AuthConfig{
			AccessSecret:    getEnv("JWT_ACCESS_SECRET", ""),
			RefreshSecret:   getEnv("JWT_REFRESH_SECRET", ""),
			AccessTokenTTL:  time.Duration(getEnvInt("ACCESS_TOKEN_TTL_SEC", 15*60)) * time.Second,
			RefreshTokenTTL: time.Duration(getEnvInt("REFRESH_TOKEN_TTL_SEC", 7*24*60*60)) * time.Second,
			BcryptCost:      getEnvInt("BCRYPT_COST", 0),
		},
		Cookies: CookieConfig{
			RefreshName: getEnv("REFRESH_COOKIE_NAME", "refresh_token"),
			CSRFName:    getEnv("CSRF_COOKIE_NAME", "_csrf"),
			Path:        getEnv("COOKIE_PATH", "/v1"),
			CSRFTTL:     time.Duration(getEnvInt("CSRF_TTL_SEC", 24*60*60)) * time.Second,
		},
		Environment:   getEnv("APP_ENV", "development"),
		SampleSeedID:  int64(getEnvInt("SAMPLE_SEED_ID", 1)),
		UserStateFile: getEnv("AUTH_USER_STATE_FILE", "./data/users.json"),
		AuditLogFile:  getEnv("AUDIT_LOG_FILE", "./data/audit.log"),
	}

	if cfg.HTTP.Addr == "" {
		return Config{}, fmt.Errorf("HTTP_ADDR must not be empty")
	}
	if cfg.Auth.AccessSecret == "" {
		return Config{}, fmt.Errorf("JWT_ACCESS_SECRET is required")
	}
	if cfg.Auth.RefreshSecret == "" {
		return Config{}, fmt.Errorf("JWT_REFRESH_SECRET is required")
	}
	if cfg.Auth.AccessSecret == cfg.Auth.RefreshSecret {
		return Config{}, fmt.Errorf("JWT_ACCESS_SECRET and JWT_REFRESH_SECRET must differ")
	}
	if cfg.Auth.AccessTokenTTL <= 0 {
		return Config{}, fmt.Errorf("ACCESS_TOKEN_TTL_SEC must be > 0")
	}
	if cfg.Auth.RefreshTokenTTL <= 0 {
		return Config{}, fmt.Errorf("REFRESH_TOKEN_TTL_SEC must be > 0")
	}
	if cfg.Cookies.RefreshName == "" {
		return Config{}, fmt.Errorf("REFRESH_COOKIE_NAME must not be empty")
	}
	if cfg.Cookies.CSRFName == "" {
		return Config{}, fmt.Errorf("CSRF_COOKIE_NAME must not be empty")
	}
	if cfg.UserStateFile == "" {
		return Config{}, fmt.Errorf("AUTH_USER_STATE_FILE must not be empty")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	val, ok := os.LookupEnv(key)
	if !ok || val == "" {
		return fallback
	}
	return val
}

func getEnvInt(key string, fallback int) int {
	val, ok := os.LookupEnv(key)
	if !ok || val == "" {
		return fallback
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return n
}

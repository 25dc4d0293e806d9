package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	_ "github.com/lib/pq"

	"tokensvr/auth-core/internal/audit"
	"tokensvr/auth-core/internal/auth"
	"tokensvr/auth-core/internal/config"
	"tokensvr/auth-core/internal/counter"
	"tokensvr/auth-core/internal/httpserver"
	"tokensvr/auth-core/internal/observability"
	"tokensvr/auth-core/internal/token"
)

type App struct {
	cfg    config.Config
	log    *slog.Logger
	db     *sql.DB
	server *httpserver.Server
}

func New(cfg config.Config) (*App, error) {
	logger := observability.NewLogger()

	var err error
	var db *sql.DB
	if cfg.DatabaseURL != "" {
		db, err = sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		if err := db.Ping(); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("ping database: %w", err)
		}
	}

	closeOnErr := func() {
		if db != nil {
			_ = db.Close()
		}
	}

	accessCodec, err := token.NewAccessCodec(cfg.Auth.AccessSecret, cfg.Auth.AccessTokenTTL)
	if err != nil {
		closeOnErr()
		return nil, fmt.Errorf("create access codec: %w", err)
	}
	refreshCodec, err := token.NewRefreshCodec(cfg.Auth.RefreshSecret, cfg.Auth.RefreshTokenTTL)
	if err != nil {
		closeOnErr()
		return nil, fmt.Errorf("create refresh codec: %w", err)
	}

	var userStore auth.UserStore
	if db != nil {
		userStore, err = auth.NewPostgresUserStore(db)
		if err != nil {
			closeOnErr()
			return nil, fmt.Errorf("create postgres user store: %w", err)
		}
	} else {
		userStore, err = auth.NewFileUserStore(cfg.UserStateFile)
		if err != nil {
			return nil, fmt.Errorf("create user store: %w", err)
		}
		logger.Info("no DATABASE_URL; using file-backed user store", "path", cfg.UserStateFile)
	}

	authService, err := auth.NewService(userStore, accessCodec, refreshCodec, auth.ServiceConfig{
		BcryptCost: cfg.Auth.BcryptCost,
	})
	if err != nil {
		closeOnErr()
		return nil, fmt.Errorf("create auth service: %w", err)
	}

	var counters httpserver.CounterReader
	var atomicInc, lockingInc counter.Incrementer
	if db != nil {
		store, err := counter.NewPostgresStore(db)
		if err != nil {
			closeOnErr()
			return nil, fmt.Errorf("create postgres counter store: %w", err)
		}
		if err := store.Seed(cfg.SampleSeedID, 0); err != nil {
			closeOnErr()
			return nil, fmt.Errorf("seed counter: %w", err)
		}
		counters = store
		atomicInc = store.Atomic()
		lockingInc = store.Locking()
	} else {
		store := counter.NewMemoryStore()
		_ = store.Seed(cfg.SampleSeedID, 0)
		counters = store
		atomicInc = store.Atomic()
		lockingInc = store.Locking()
	}

	server := httpserver.New(cfg.HTTP, httpserver.Deps{
		Auth:           authService,
		Counters:       counters,
		AtomicCounter:  atomicInc,
		LockingCounter: lockingInc,
		Audit:          audit.NewLogger(cfg.AuditLogFile),
		Cookies: httpserver.CookieConfig{
			RefreshName: cfg.Cookies.RefreshName,
			CSRFName:    cfg.Cookies.CSRFName,
			Path:        cfg.Cookies.Path,
			Secure:      cfg.Production(),
			RefreshTTL:  cfg.Auth.RefreshTokenTTL,
			CSRFTTL:     cfg.Cookies.CSRFTTL,
		},
	})

	return &App{
		cfg:    cfg,
		log:    logger,
		db:     db,
		server: server,
	}, nil
}

func (a *App) Run(ctx context.Context) error {
	defer func() {
		if a.db != nil {
			_ = a.db.Close()
		}
	}()

	errCh := make(chan error, 1)

	go func() {
		a.log.Info("http server starting", "addr", a.cfg.HTTP.Addr, "env", a.cfg.Environment)
		errCh <- a.server.Start()
	}()

	select {
	case <-ctx.Done():
		a.log.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.HTTP.ShutdownTimeout)
		defer cancel()
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server exited: %w", err)
	}
}

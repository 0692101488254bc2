// Command oauth2-demo runs the login flow against a configured provider.
//
// Postgres and Redis are used when DATABASE_URL and REDIS_URL are set; the
// in-memory stores are used otherwise, which is only suitable for a single
// process.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dmitrymomot/oauth2client"
	"github.com/dmitrymomot/oauth2client/pkg/db"
	"github.com/dmitrymomot/oauth2client/pkg/encryption"
	"github.com/dmitrymomot/oauth2client/pkg/health"
	"github.com/dmitrymomot/oauth2client/pkg/identity"
	"github.com/dmitrymomot/oauth2client/pkg/instrumentation"
	"github.com/dmitrymomot/oauth2client/pkg/logger"
	"github.com/dmitrymomot/oauth2client/pkg/oauth"
	"github.com/dmitrymomot/oauth2client/pkg/redis"
	"github.com/dmitrymomot/oauth2client/pkg/session"
	"github.com/dmitrymomot/oauth2client/pkg/state"
	"github.com/dmitrymomot/oauth2client/pkg/storage/memory"
	"github.com/dmitrymomot/oauth2client/pkg/storage/postgres"
)

type config struct {
	Address         string        `env:"ADDRESS" envDefault:":8080"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`
	AppKey          string        `env:"APP_KEY,required"`

	OAuth2  oauth2client.Config
	DB      db.Config
	Redis   redis.Config
	Session session.Config
	Log     logger.Config
	OTel    instrumentation.Config
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		slog.Error("oauth2-demo stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := env.ParseAs[config]()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logger.New(cfg.Log, logger.RequestID(), logger.UserID())
	defer logger.Flush(2 * time.Second)

	inst, err := instrumentation.New(cfg.OTel)
	if err != nil {
		return fmt.Errorf("init instrumentation: %w", err)
	}

	enc, err := encryption.New(cfg.AppKey)
	if err != nil {
		return fmt.Errorf("init encryption: %w", err)
	}

	mapping, err := cfg.OAuth2.Mapping()
	if err != nil {
		return err
	}

	checks := health.Checks{}

	var (
		users  identity.Repository
		tokens identity.TokenStore
	)
	if cfg.DB.Enabled() {
		pool, err := db.Connect(ctx, cfg.DB)
		if err != nil {
			return err
		}
		defer pool.Close()

		if cfg.DB.AutoMigrate {
			if err := db.Migrate(ctx, pool, postgres.Migrations(), cfg.DB.MigrationsTable, log); err != nil {
				return err
			}
		}

		store := postgres.New(pool)
		users, tokens = store.Users(), store.Tokens()
		checks["postgres"] = db.Healthcheck(pool)
	} else {
		log.WarnContext(ctx, "DATABASE_URL not set, users and tokens are kept in memory")
		store := memory.New()
		users, tokens = store.Users(), store.Tokens()
	}

	var (
		states   state.Store
		sessions session.Store
	)
	if cfg.Redis.Enabled() {
		client, err := redis.Connect(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		defer func() { _ = client.Close() }()

		states = state.NewRedis(client)
		sessions = session.NewRedis(client)
		checks["redis"] = redis.Healthcheck(client)
	} else {
		log.WarnContext(ctx, "REDIS_URL not set, states and sessions are kept in memory")
		mem := state.NewMemory()
		defer func() { _ = mem.Close() }()
		states = mem
		sessions = session.NewMemory()
	}

	client, err := oauth.New(cfg.OAuth2.OAuth, states,
		oauth.WithLogger(log),
		oauth.WithInstrumentation(inst),
	)
	if err != nil {
		return err
	}

	if cfg.Session.Secret == "" {
		cfg.Session.Secret = cfg.AppKey
	}
	manager, err := session.NewManager(sessions, append(cfg.Session.Options(), session.WithLogger(log))...)
	if err != nil {
		return err
	}

	h, err := oauth2client.New(cfg.OAuth2, oauth2client.Dependencies{
		Client: client,
		Reconciler: identity.NewReconciler(users,
			identity.WithMapping(mapping),
			identity.WithAutoCreate(cfg.OAuth2.AutoCreateUsers),
			identity.WithReconcilerLogger(log),
			identity.WithReconcilerInstrumentation(inst),
		),
		Tokens: identity.NewTokenService(tokens, enc,
			identity.WithPersistence(cfg.OAuth2.StoreTokens),
			identity.WithTokenLogger(log),
			identity.WithTokenInstrumentation(inst),
		),
		Sessions: manager,
	},
		oauth2client.WithLogger(log),
		oauth2client.WithInstrumentation(inst),
	)
	if err != nil {
		return err
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Route("/health", func(r chi.Router) {
		health.Routes(r, checks, health.WithLogger(log))
	})

	h.Routes(r)
	p := newPages(cfg.OAuth2, manager, log)
	r.With(manager.Middleware).Get(cfg.OAuth2.LoginRoute, p.login)
	r.With(h.RequireAuth).Get(cfg.OAuth2.HomeRoute, p.home)

	go h.RunLimiterCleanup(ctx)

	srv := &http.Server{
		Addr:              cfg.Address,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      45 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return serve(ctx, srv, cfg.ShutdownTimeout, log)
}

// serve runs srv until ctx is canceled, then shuts it down gracefully.
func serve(ctx context.Context, srv *http.Server, timeout time.Duration, log *slog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info("server starting", slog.String("address", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// Command gymflex runs the class booking API and its operator tasks.
//
// Usage:
//
//	gymflex [serve]      migrate the database and serve HTTP
//	gymflex migrate      apply pending migrations and exit
//	gymflex create-admin create the ADMIN_USERNAME superuser if missing
//	gymflex seed         create demo classes around today
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/example/gymflex/internal/application"
	"github.com/example/gymflex/internal/auth"
	"github.com/example/gymflex/internal/config"
	httptransport "github.com/example/gymflex/internal/http"
	"github.com/example/gymflex/internal/logging"
	"github.com/example/gymflex/internal/metrics"
	"github.com/example/gymflex/internal/persistence/sqlstore"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bootLogger := logging.New(os.Stderr, "info")
	if err := config.LoadDotEnv(); err != nil {
		bootLogger.Error("failed to read .env", "error", err)
		os.Exit(1)
	}
	cfg, err := config.Load()
	if err != nil {
		bootLogger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := logging.New(os.Stdout, cfg.LogLevel)
	if err := run(ctx, os.Args[1:], cfg, logger); err != nil {
		logger.Error("gymflex exited with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, cfg config.Config, logger *slog.Logger) error {
	command := "serve"
	if len(args) > 0 {
		command = strings.ToLower(strings.TrimSpace(args[0]))
	}

	switch command {
	case "serve", "migrate", "create-admin", "seed":
	default:
		return fmt.Errorf("unknown command %q (want serve, migrate, create-admin or seed)", command)
	}

	a, err := newApp(ctx, cfg, logger, time.Now)
	if err != nil {
		return err
	}
	defer a.Close()

	switch command {
	case "migrate":
		return nil
	case "create-admin":
		return createAdmin(ctx, a, os.Getenv("ADMIN_USERNAME"), os.Getenv("ADMIN_PASSWORD"))
	case "seed":
		_, err := a.seeder.Seed(ctx)
		return err
	default:
		return serve(ctx, a)
	}
}

func createAdmin(ctx context.Context, a *app, username, password string) error {
	if strings.TrimSpace(username) == "" || password == "" {
		return errors.New("ADMIN_USERNAME and ADMIN_PASSWORD must be set")
	}
	user, created, err := a.users.CreateAdmin(ctx, application.RegisterParams{Username: username, Password: password})
	if err != nil {
		return err
	}
	if created {
		a.logger.InfoContext(ctx, "administrator created", "user_id", user.ID, "username", user.Username)
	} else {
		a.logger.InfoContext(ctx, "administrator already exists", "username", user.Username)
	}
	return nil
}

func serve(ctx context.Context, a *app) error {
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.HTTPPort),
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("failed to shutdown server", "error", err)
		}
	}()

	a.logger.Info("gymflex API listening", "addr", server.Addr, "driver", a.cfg.DatabaseDriver, "redis", a.redis != nil)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve http: %w", err)
	}
	return nil
}

// app holds the wired services for one process.
type app struct {
	cfg     config.Config
	logger  *slog.Logger
	store   *sqlstore.Store
	redis   *redis.Client
	users   *application.UserService
	auth    *application.AuthService
	seeder  *application.Seeder
	handler http.Handler
}

// newApp opens and migrates the store, then wires services and the router.
func newApp(ctx context.Context, cfg config.Config, logger *slog.Logger, now func() time.Time) (*app, error) {
	store, err := sqlstore.Open(ctx, cfg.DatabaseDriver, cfg.DatabaseDSN, sqlstore.Options{Logger: logger})
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	a := &app{cfg: cfg, logger: logger, store: store}

	status, err := store.Migrate(ctx)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}
	if status.Dirty {
		a.Close()
		return nil, fmt.Errorf("schema version %d is dirty", status.Version)
	}

	checks := map[string]httptransport.Pinger{"database": store}
	var refresh application.RefreshStore = auth.NewSQLRefreshStore(store, now)
	if cfg.RedisAddr != "" {
		client, err := auth.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		a.redis = client
		redisStore := auth.NewRedisRefreshStore(client, auth.DefaultRedisKeyPrefix, now)
		refresh = redisStore
		checks["redis"] = redisStore
	}

	issuer, err := auth.NewIssuer(cfg.JWTSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL, now)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("configure tokens: %w", err)
	}

	idGenerator := uuid.NewString
	collectors := metrics.New()

	users := newUserRepositoryAdapter(store)
	sessions := newSessionRepositoryAdapter(store)
	notes := newNoteRepositoryAdapter(store)

	a.users = application.NewUserServiceWithLogger(users, application.HashPassword, idGenerator, now, logger)
	a.auth = application.NewAuthServiceWithLogger(users, issuer, refresh, application.VerifyPassword, idGenerator, now, logger)
	a.seeder = application.NewSeeder(users, sessions, idGenerator, now, cfg.Location, logger)
	sessionService := application.NewSessionServiceWithLogger(sessions, sessions, users, idGenerator, now, cfg.Location, logger)
	bookingEngine := application.NewBookingEngineWithLogger(sessions, users, idGenerator, now, application.BookingPolicy{
		Location:            cfg.Location,
		CancellationLockout: cfg.CancellationLockout,
		Observer:            collectors,
	}, logger)
	noteService := application.NewNoteServiceWithLogger(notes, idGenerator, now, logger)

	a.handler = httptransport.NewRouter(httptransport.RouterConfig{
		Users:       httptransport.NewUserHandler(a.users, logger),
		Auth:        httptransport.NewAuthHandler(a.auth, logger),
		Sessions:    httptransport.NewSessionHandler(sessionService, logger),
		Bookings:    httptransport.NewBookingHandler(bookingEngine, logger),
		Notes:       httptransport.NewNoteHandler(noteService, logger),
		Health:      httptransport.NewHealthHandler(checks, logger),
		Metrics:     collectors.Handler(),
		RequireAuth: httptransport.RequireAuth(a.auth, logger),
		// The metrics middleware must sit inside the request logger so it
		// sees the request the mux annotates with its matched pattern.
		Middleware: []func(http.Handler) http.Handler{
			httptransport.RequestLogger(logger),
			collectors.Middleware,
		},
	})
	return a, nil
}

// Close releases the store and the Redis client.
func (a *app) Close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Error("failed to close redis client", "error", err)
		}
	}
	if err := a.store.Close(); err != nil {
		a.logger.Error("failed to close storage", "error", err)
	}
}

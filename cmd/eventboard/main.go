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

	"github.com/google/uuid"

	"github.com/example/event-board/internal/application"
	"github.com/example/event-board/internal/changes"
	"github.com/example/event-board/internal/config"
	"github.com/example/event-board/internal/geocode"
	httptransport "github.com/example/event-board/internal/http"
	"github.com/example/event-board/internal/logging"
	"github.com/example/event-board/internal/notify"
	"github.com/example/event-board/internal/persistence/sqlite"
	"github.com/example/event-board/internal/persistence/sqlite/migration"
	"github.com/example/event-board/internal/sweeper"
)

const (
	geocodeCacheTTL     = 24 * time.Hour
	geocodeCacheEntries = 1024
)

func main() {
	bootstrap := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		bootstrap.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		bootstrap.Error("invalid log level", "error", err)
		os.Exit(1)
	}
	logger := logging.NewJSONLogger(os.Stdout, level, "eventboard")

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server encountered error", "error", err)
		os.Exit(1)
	}
}

// run serves the API until ctx is cancelled.
func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	app, err := newApp(ctx, cfg, migration.DefaultSQLiteConfig(cfg.SQLiteDSN), logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := app.Close(); cerr != nil {
			logger.Error("failed to close storage", "error", cerr)
		}
	}()

	app.sweeper.Start()
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := app.sweeper.Stop(stopCtx); err != nil {
			logger.Warn("sweeper did not stop cleanly", "error", err)
		}
	}()

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           app.handler,
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
			logger.Error("failed to shutdown server", "error", err)
		}
	}()

	logger.Info("event board API listening", "addr", server.Addr, "timezone", cfg.Timezone)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// app holds the wired service graph.
type app struct {
	storage *sqlite.Storage
	handler http.Handler
	sweeper *sweeper.Sweeper
}

func (a *app) Close() error {
	return a.storage.Close()
}

func newApp(ctx context.Context, cfg config.Config, db migration.SQLiteConfig, logger *slog.Logger) (*app, error) {
	storage, err := sqlite.Open(db)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	if err := storage.Migrate(ctx, logger); err != nil {
		storage.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}

	a, err := wire(cfg, storage, logger)
	if err != nil {
		storage.Close()
		return nil, err
	}
	return a, nil
}

func wire(cfg config.Config, storage *sqlite.Storage, logger *slog.Logger) (*app, error) {
	idGenerator := uuid.NewString
	now := time.Now

	client, err := geocode.NewClientWithLogger(geocode.Config{
		BaseURL:   cfg.GeocoderURL,
		UserAgent: cfg.GeocoderUserAgent,
		Timeout:   cfg.GeocoderTimeout,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("geocoder: %w", err)
	}
	geocoder := application.NewCachedGeocoder(client, geocodeCacheTTL, geocodeCacheEntries, now)

	notifier, err := newNotifier(cfg, logger, now)
	if err != nil {
		return nil, err
	}

	hasher := application.NewPasswordHasher(application.DefaultArgon2idParams)
	users := newUserRepositoryAdapter(storage)

	authService := application.NewAuthServiceWithLogger(
		newCredentialStoreAdapter(storage),
		newSessionRepositoryAdapter(storage),
		hasher.Verify,
		idGenerator,
		now,
		application.AuthConfig{Secret: []byte(cfg.JWTSecret), TokenTTL: cfg.TokenTTL},
		logger,
	)
	userService := application.NewUserServiceWithLogger(users, hasher.Hash, idGenerator, now, logger)
	eventService := application.NewEventServiceWithLogger(storage, geocoder, idGenerator, now, application.EventConfig{Location: cfg.Location}, logger)

	tracker := changes.NewTrackerWithLogger(storage, geocoder, changes.Config{Location: cfg.Location}, logger)
	changeService := application.NewChangeServiceWithLogger(
		storage,
		storage,
		tracker,
		users,
		notifier,
		idGenerator,
		now,
		application.ChangeConfig{ProposalTTL: cfg.ProposalTTL},
		logger,
	)

	sweep, err := sweeper.New(cfg.SweepSchedule, changeService, authService, logger)
	if err != nil {
		return nil, fmt.Errorf("sweeper: %w", err)
	}

	handler := httptransport.NewRouter(httptransport.RouterConfig{
		Auth:            httptransport.NewAuthHandler(authService, logger),
		Users:           httptransport.NewUserHandler(userService, logger),
		Events:          httptransport.NewEventHandler(eventService, cfg.Location, logger),
		Changes:         httptransport.NewChangeHandler(changeService, logger),
		Session:         httptransport.RequireSession(authService, logger),
		OptionalSession: httptransport.OptionalSession(authService, logger),
		RateLimit:       httptransport.RateLimit(cfg.LoginRatePerMinute, logger),
		Middleware:      []func(http.Handler) http.Handler{httptransport.RequestLogger(logger)},
	})

	return &app{storage: storage, handler: handler, sweeper: sweep}, nil
}

// newNotifier delivers through SMTP when a relay is configured and logs the
// messages otherwise.
func newNotifier(cfg config.Config, logger *slog.Logger, now func() time.Time) (*notify.Notifier, error) {
	renderer, err := notify.NewRenderer()
	if err != nil {
		return nil, fmt.Errorf("notification templates: %w", err)
	}
	if !cfg.SMTPEnabled() {
		return notify.NewNotifier(renderer, notify.LogSender{Logger: logger}, now), nil
	}
	sender, err := notify.NewSMTPSender(notify.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
	})
	if err != nil {
		return nil, fmt.Errorf("smtp: %w", err)
	}
	return notify.NewNotifier(renderer, sender, now), nil
}

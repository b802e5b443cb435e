package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/floorreports/internal/auth"
	"github.com/floorreports/internal/config"
	"github.com/floorreports/internal/crypto"
	"github.com/floorreports/internal/db"
	"github.com/floorreports/internal/mailer"
	"github.com/floorreports/internal/model"
	"github.com/floorreports/internal/production"
	"github.com/floorreports/internal/report"
	"github.com/floorreports/internal/scheduler"
	"github.com/floorreports/internal/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"
)

const sessionCleanupInterval = 15 * time.Minute

var _ scheduler.SettingsApplier = (*mailer.Mailer)(nil)

type App struct {
	config   *config.Config
	logger   *slog.Logger
	loc      *time.Location
	db       *sql.DB
	registry *prometheus.Registry

	production    *production.Source
	userStore     *store.UserStore
	sessionStore  *store.SessionStore
	settingsStore *store.SettingsStore
	emailLogStore *store.EmailLogStore
	mailer        *mailer.Mailer
	generator     *report.Generator
	scheduler     *scheduler.Scheduler
}

func (app *App) Close() {
	app.production.Close()
	app.db.Close()
}

func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	logger := newLogger(cfg)

	loc, err := time.LoadLocation(cfg.Scheduler.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone: %w", err)
	}

	ctx := context.Background()
	conn, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	src, err := production.Open(ctx, cfg.ProductionDatabaseURL)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open production database: %w", err)
	}

	crypter, err := crypto.NewFromPassphrase(cfg.SettingsEncryptionKey)
	if err != nil {
		conn.Close()
		src.Close()
		return nil, fmt.Errorf("settings encryption: %w", err)
	}

	userStore := store.NewUserStore(conn)
	sessionStore := store.NewSessionStore(conn, cfg.SessionTTL)
	settingsStore := store.NewSettingsStore(conn, crypter, seedSettings(cfg))
	emailLogStore := store.NewEmailLogStore(conn)

	if err := auth.SeedFirstAdmin(ctx, userStore, []byte(cfg.PinHMACKey), cfg.SeedAdminName, cfg.SeedAdminPin); err != nil {
		logger.Warn("seed admin failed", "err", err)
	}

	// The scheduler applies the stored SMTP account before every dispatch.
	m := mailer.New(nil)
	m.SetTimeout(cfg.SMTPTimeout)

	generator := report.NewGenerator(logger, src, loc)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	sched := scheduler.New(settingsStore, emailLogStore, generator, m, scheduler.Options{
		Location:      loc,
		CheckInterval: cfg.Scheduler.CheckInterval,
		StartupDelay:  cfg.Scheduler.StartupDelay,
		GracePeriod:   cfg.Scheduler.GracePeriod,
		RetryDelay:    cfg.Scheduler.RetryDelay,
		MaxAttempts:   cfg.Scheduler.MaxAttempts,
		Logger:        logger,
		Metrics:       scheduler.NewMetrics(registry),
	})

	return &App{
		config:        cfg,
		logger:        logger,
		loc:           loc,
		db:            conn,
		registry:      registry,
		production:    src,
		userStore:     userStore,
		sessionStore:  sessionStore,
		settingsStore: settingsStore,
		emailLogStore: emailLogStore,
		mailer:        m,
		generator:     generator,
		scheduler:     sched,
	}, nil
}

// Start runs the HTTP server, the report scheduler and session cleanup until
// ctx is cancelled. The scheduler is stopped first so a send in progress can
// finish while the server drains.
func (app *App) Start(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", app.config.Port),
		Handler:      app.routes(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 2 * time.Minute,
		ErrorLog:     slog.NewLogLogger(app.logger.Handler(), slog.LevelError),
	}

	g.Go(func() error {
		app.logger.Info("starting server", "addr", srv.Addr, "env", app.config.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		app.scheduler.Start()
		<-gctx.Done()
		app.scheduler.Stop()
		app.scheduler.Wait()
		return nil
	})

	g.Go(func() error {
		app.cleanupSessions(gctx)
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()

		app.logger.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	app.logger.Info("stopped server")
	return nil
}

func (app *App) cleanupSessions(ctx context.Context) {
	ticker := time.NewTicker(sessionCleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := app.sessionStore.DeleteExpired(ctx)
			if err != nil {
				app.logger.Warn("session cleanup failed", "err", err)
				continue
			}
			if n > 0 {
				app.logger.Debug("removed expired sessions", "count", n)
			}
		}
	}
}

// seedSettings are the report settings used until an admin saves some.
func seedSettings(cfg *config.Config) *model.ReportSettings {
	s := model.DefaultReportSettings()
	s.SMTPHost = cfg.SMTPHost
	s.SMTPPort = cfg.SMTPPort
	s.SMTPUser = cfg.SMTPUser
	s.SMTPPass = cfg.SMTPPass
	s.SMTPFromAddress = cfg.SMTPFromAddress
	s.SMTPFromName = cfg.SMTPFromName
	return s
}

func newLogger(cfg *config.Config) *slog.Logger {
	logLevel := slog.LevelInfo

	if cfg.IsDevelopment() {
		logLevel = slog.LevelDebug
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))

	slog.SetDefault(logger)
	return logger
}

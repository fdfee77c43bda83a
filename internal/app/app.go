package app

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

	httpapi "github.com/aussiebroadwan/authkit/internal/http"
	"github.com/aussiebroadwan/authkit/internal/metrics"
	"github.com/aussiebroadwan/authkit/internal/store/sqlite"
	"github.com/aussiebroadwan/authkit/pkg/authkit"
	"github.com/aussiebroadwan/authkit/pkg/cryptox"
	"github.com/aussiebroadwan/authkit/pkg/httpx"
	"github.com/aussiebroadwan/authkit/pkg/ledger"
	"github.com/aussiebroadwan/authkit/pkg/slogx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// BuildVersion is overridden at build time via -ldflags.
var BuildVersion = "v0.1.0"

// Roles granted by the service.
var (
	DefaultRoles   = []string{"user"}
	BootstrapRoles = []string{httpapi.AdminRole}
)

// Application wires the auth service together.
type Application struct {
	cfg    Config
	logger *slog.Logger

	db          *sqlite.Store
	manager     *authkit.Manager
	closeLedger func() error

	registry     *prometheus.Registry
	metrics      *metrics.Metrics
	housekeeping *Housekeeping // sqlite ledger only

	server *http.Server
	router *httpapi.Router
}

// New builds the application from cfg. Nothing listens until Run.
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "authkit",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
			Output:  cfg.LogOutput,
		}),
		closeLedger: func() error { return nil },
	}

	if err := app.initDatabase(); err != nil {
		return nil, err
	}

	ctx := context.Background()
	if err := app.initManager(ctx); err != nil {
		_ = app.db.Close()
		return nil, err
	}
	if err := app.bootstrap(ctx); err != nil {
		_ = app.closeLedger()
		_ = app.db.Close()
		return nil, err
	}

	app.initHTTP()
	return app, nil
}

// Handler is the fully wired HTTP handler.
func (app *Application) Handler() http.Handler { return app.router }

// Manager exposes the toolkit for embedders sharing the process.
func (app *Application) Manager() *authkit.Manager { return app.manager }

// Run serves until SIGINT/SIGTERM or a server failure.
func (app *Application) Run() error {
	if app.housekeeping != nil {
		app.housekeeping.Start()
	}

	app.logger.Info("auth service starting", "port", app.cfg.Port, "version", BuildVersion, "ledger", app.cfg.LedgerBackend)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(shutdown)

	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			_ = app.Shutdown()
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)
		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown drains the server, then releases the ledger and database.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down auth service...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	if app.housekeeping != nil {
		app.housekeeping.Stop()
	}

	var errs []error
	if err := app.closeLedger(); err != nil {
		app.logger.Error("error closing ledger", "error", err)
		errs = append(errs, err)
	}
	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		errs = append(errs, err)
	}

	app.logger.Info("auth service stopped")
	return errors.Join(errs...)
}

func (app *Application) initDatabase() error {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", app.cfg.DatabaseFile)
	db, err := sqlite.NewStore(dsn)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	app.logger.Info("database migrations applied successfully", "file", app.cfg.DatabaseFile)
	return nil
}

func (app *Application) initManager(ctx context.Context) error {
	hasher := &cryptox.Argon2{}
	if app.cfg.PepperFile != "" {
		pepper, err := cryptox.LoadOrCreatePepper(app.cfg.PepperFile)
		if err != nil {
			return fmt.Errorf("failed to load pepper: %w", err)
		}
		hasher.Pepper = pepper
	}
	opts := []authkit.Option{authkit.WithHasher(hasher)}

	if app.cfg.MetricsEnabled {
		app.registry = prometheus.NewRegistry()
		app.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		app.metrics = metrics.New(app.registry)
		opts = append(opts, authkit.WithObserver(app.metrics))
	}

	var store ledger.Store
	switch app.cfg.LedgerBackend {
	case LedgerSQLite:
		store = app.db
		app.housekeeping = NewHousekeeping(app.db, app.logger, app.cfg.HousekeepingInterval)
	default:
		rcfg := ledger.DefaultRedisConfig()
		rcfg.URL = app.cfg.RedisURL
		rs, err := ledger.NewRedisStore(ctx, rcfg, app.logger)
		if err != nil {
			return fmt.Errorf("failed to connect revocation ledger: %w", err)
		}
		store = rs
		app.closeLedger = rs.Close
	}

	m, err := authkit.New(app.cfg.AuthConfig(), app.db, store, opts...)
	if err != nil {
		_ = app.closeLedger()
		return fmt.Errorf("failed to initialize auth manager: %w", err)
	}
	app.manager = m
	return nil
}

// bootstrap seeds the first admin on an empty database.
func (app *Application) bootstrap(ctx context.Context) error {
	if app.cfg.BootstrapEmail == "" {
		return nil
	}

	n, err := app.db.CountPrincipals(ctx)
	if err != nil {
		return fmt.Errorf("failed to count principals: %w", err)
	}
	if n > 0 {
		app.logger.Debug("bootstrap skipped, principals exist", "count", n)
		return nil
	}

	p, err := app.manager.Register(ctx, app.cfg.BootstrapEmail, app.cfg.BootstrapPassword, BootstrapRoles)
	if err != nil {
		return fmt.Errorf("failed to bootstrap admin: %w", err)
	}
	app.logger.Info("bootstrap admin created", "principal_id", p.ID)
	return nil
}

func (app *Application) initHTTP() {
	opts := httpapi.Options{
		Manager:      app.manager,
		Logger:       app.logger,
		Version:      BuildVersion,
		Limits:       httpx.RateLimitsFromEnv(httpx.DefaultRateLimits()),
		DefaultRoles: DefaultRoles,
		Checks: map[string]httpapi.Check{
			"ledger":   app.manager.Ping,
			"database": app.db.Ping,
		},
	}
	if app.metrics != nil {
		opts.Metrics = app.metrics
		opts.Gatherer = app.registry
	}

	app.router = httpapi.NewRouter(opts)
	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           app.router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}

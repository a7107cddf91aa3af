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

	httpapi "github.com/aussiebroadwan/lpr/internal/lpr/http"
	"github.com/aussiebroadwan/lpr/internal/lpr/service"
	"github.com/aussiebroadwan/lpr/pkg/clock"
	"github.com/aussiebroadwan/lpr/pkg/cryptox"
	"github.com/aussiebroadwan/lpr/pkg/httpx"
	"github.com/aussiebroadwan/lpr/pkg/jwtx"
	"github.com/aussiebroadwan/lpr/pkg/slogx"
)

// BuildVersion is overridden at build time via ldflags.
var BuildVersion = "v0.1.0"

// Application encapsulates the LPR engine with all its dependencies
type Application struct {
	cfg    *Config
	logger *slog.Logger
	clock  clock.Clock

	// Core dependencies
	stores     *stores
	keyManager *jwtx.KeyManager

	// Services
	auditService        *service.AuditService
	revocationService   *service.RevocationService
	lprService          *service.LPRService
	keyRotationService  *service.KeyRotationService
	housekeepingService *service.HousekeepingService

	// Background workers
	cancelWorkers context.CancelFunc
	workersDone   chan struct{}

	// HTTP server
	server *http.Server
	router *httpapi.Router
}

// NewLogger builds the process logger from cfg.
func NewLogger(cfg *Config) *slog.Logger {
	return slogx.New(slogx.Config{
		Service: "lprd",
		Version: BuildVersion,
		Env:     cfg.Env,
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
	})
}

// New creates a new Application instance with all dependencies initialized
func New(cfg *Config, logger *slog.Logger) (_ *Application, err error) {
	if cfg.API.Token == "" {
		return nil, errors.New("api.token is required")
	}

	app := &Application{
		cfg:    cfg,
		logger: logger,
		clock:  clock.Real(),
	}

	sec, err := loadSecrets(cfg)
	if err != nil {
		return nil, err
	}
	pseudonymizer, err := loadPseudonymizer(cfg)
	if err != nil {
		return nil, err
	}
	if sec.auditKey == nil {
		app.logger.Warn("no master key configured: audit entries are hash chained but not signed")
	}

	if app.stores, err = openStores(cfg, app.clock, app.logger); err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = app.stores.Close()
		}
	}()

	// Keys are loaded after the database so stored keys can be unsealed.
	src, err := keySource(cfg, app.stores.keys, sec)
	if err != nil {
		return nil, err
	}
	app.keyManager, err = initKeyManager(context.Background(), cfg, src, app.clock, cfg.Keys.VerifyOnly, app.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize signing keys: %w", err)
	}

	if err := app.initServices(sec, pseudonymizer); err != nil {
		return nil, err
	}
	app.initHTTP()

	return app, nil
}

// initServices initializes all business logic services
func (app *Application) initServices(sec *secrets, pseudonymizer *cryptox.Pseudonymizer) error {
	app.auditService = &service.AuditService{
		Log:          app.stores.audit.Audit(),
		Clock:        app.clock,
		SignatureKey: sec.auditKey,
	}

	app.revocationService = service.NewRevocationService(
		app.stores.state.Revocations(),
		app.clock,
		app.cfg.TTLBounds().RetentionTTL(),
		app.logger,
	)

	policy := app.cfg.DefaultPolicy()
	lpr, err := service.NewLPRService(service.Options{
		Store:         app.stores.state,
		Audit:         app.auditService,
		Revocations:   app.revocationService,
		RateLimiter:   &service.RateLimiter{Buckets: app.stores.state.Buckets(), Clock: app.clock},
		Keys:          app.keyManager,
		Pseudonymizer: pseudonymizer,
		Clock:         app.clock,
		TTL:           app.cfg.TTLBounds(),
		DefaultPolicy: &policy,
		StoreTimeout:  app.cfg.Timeouts.Store,
		JitterMin:     app.cfg.Jitter.Min,
		JitterMax:     app.cfg.Jitter.Max,
	})
	if err != nil {
		return err
	}
	app.lprService = lpr

	app.keyRotationService = &service.KeyRotationService{
		KeyManager:  app.keyManager,
		Audit:       app.auditService,
		Algorithm:   app.cfg.Keys.Algorithm,
		GracePeriod: app.cfg.Keys.GracePeriod,
		Clock:       app.clock,
	}
	if app.stores.keys != nil {
		app.keyRotationService.Keys = app.stores.keys
		app.keyRotationService.Encrypter = sec.encrypter
		app.logger.Info("key rotation service enabled", "source", "sqlite")
	} else {
		app.keyRotationService.Dir = app.cfg.Keys.Dir
		app.logger.Info("key rotation service enabled", "source", "file", "dir", app.cfg.Keys.Dir)
	}

	app.housekeepingService = service.NewHousekeepingService(
		app.keyManager,
		app.stores.keys,
		app.revocationService,
		app.logger,
		app.cfg.Housekeeping.Interval,
	)
	return nil
}

// initHTTP initializes the HTTP router and server
func (app *Application) initHTTP() {
	router := httpapi.NewRouter(
		app.keyManager,
		[]httpx.APIToken{httpx.NewAPIToken(app.cfg.API.Caller, app.cfg.API.Token)},
		BuildVersion,
		app.stores.state,
		app.stores.audit,
		app.logger,
	)

	// Wire services to router
	router.LPRService = app.lprService
	router.AuditService = app.auditService
	router.KeyRotationService = app.keyRotationService
	router.ApplyRoutes()

	app.router = router

	// Initialize HTTP server
	app.server = &http.Server{
		Addr:              app.cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}

// Handler returns the HTTP handler serving the API.
func (app *Application) Handler() http.Handler { return app.router }

// startWorkers runs the revocation subscription and housekeeping.
func (app *Application) startWorkers() {
	ctx, cancel := context.WithCancel(context.Background())
	app.cancelWorkers = cancel
	app.workersDone = make(chan struct{})

	go func() {
		defer close(app.workersDone)
		app.revocationService.Run(ctx)
	}()
	app.housekeepingService.Start()
}

// Run starts the application and blocks until shutdown is requested
func (app *Application) Run() error {
	app.startWorkers()

	app.logger.Info("lpr engine starting", "addr", app.cfg.ListenAddr, "version", BuildVersion)

	// Start server in a goroutine
	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	// Setup signal handling for graceful shutdown
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(shutdown)

	// Block until we receive a shutdown signal or server error
	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			_ = app.Shutdown()
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)

		// Perform graceful shutdown
		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown gracefully shuts down the application
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down lpr engine...")

	// Give outstanding requests a deadline for completion
	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	// Shutdown the HTTP server
	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	// Stop background workers
	if app.cancelWorkers != nil {
		app.cancelWorkers()
		<-app.workersDone
		app.housekeepingService.Stop()
		app.cancelWorkers = nil
	}

	// Close store connections
	if err := app.stores.Close(); err != nil {
		app.logger.Error("error closing stores", "error", err)
		return err
	}

	app.logger.Info("lpr engine stopped")
	return nil
}

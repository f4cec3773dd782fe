package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"eink_backend/core"
	"eink_backend/frame"
	"eink_backend/handlers"
	"eink_backend/imagegen"
	"eink_backend/logging"
	"eink_backend/quote"
	"eink_backend/scene"
	"eink_backend/store"
	"eink_backend/textai"
)

// shutdownTimeout bounds graceful HTTP shutdown.
const shutdownTimeout = 10 * time.Second

// App owns the wired application: database, generation pipeline and
// HTTP server. Construct with NewApp, run with Run, release with Close.
type App struct {
	cfg      *core.Config
	logger   *logging.Logger
	db       *sql.DB
	store    *store.Store
	recorder *store.Recorder
	server   *http.Server
}

// NewApp wires the full pipeline from configuration. The database
// schema must already be migrated (the startup checks do this).
func NewApp(cfg *core.Config, logger *logging.Logger) (*App, error) {
	db, err := store.NewSQLiteConnectionWithDefaults(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	st := store.NewStore(db, logger)
	recorder := store.NewRecorder(db, logger)
	recorder.Start()

	// Single-tenant bootstrap: make sure the owner exists and surface
	// the device key the display must be configured with.
	owner, err := st.EnsureUser(context.Background(), cfg.DefaultUserEmail)
	if err != nil {
		recorder.Close()
		db.Close()
		return nil, fmt.Errorf("failed to ensure default user: %w", err)
	}
	logger.Info("default user ready",
		zap.String("email", owner.Email),
		zap.String("device_key", owner.DeviceKey))

	registry := textai.NewRegistry(cfg, logger)
	quotes := quote.NewGenerator(registry, logger)
	scenes := scene.NewGenerator(registry, cfg.SceneTwoStage, logger)

	var images frame.ImageGenerator
	gen, err := imagegen.NewGeneratorFromConfig(cfg, logger)
	if err != nil {
		// Image views degrade to text; keep serving quotes.
		logger.Warn("image generation unavailable", zap.Error(err))
		images = unavailableImages{err: err}
	} else {
		images = gen
	}

	orchestrator := frame.NewOrchestrator(quotes, scenes, images, st, logger)
	api := handlers.NewAPI(st, recorder, orchestrator, quotes, scenes, images, registry, logger)

	mux := http.NewServeMux()
	api.RegisterRoutes(mux)

	return &App{
		cfg:      cfg,
		logger:   logger.Named("app"),
		db:       db,
		store:    st,
		recorder: recorder,
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully.
func (a *App) Run(ctx context.Context) error {
	errChan := make(chan error, 1)
	go func() {
		a.logger.Info("HTTP server listening", zap.String("addr", a.server.Addr))
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	a.logger.Info("shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown failed: %w", err)
	}
	return nil
}

// Close drains the event-log queue and closes the database.
func (a *App) Close() {
	a.recorder.Close()
	if err := a.db.Close(); err != nil {
		a.logger.Error("failed to close database", zap.Error(err))
	}
}

// unavailableImages satisfies frame.ImageGenerator when no image
// credential is configured; every call reports the original error so
// the orchestrator's text fallback kicks in.
type unavailableImages struct {
	err error
}

func (u unavailableImages) Generate(ctx context.Context, scenePrompt, style string) ([]byte, error) {
	return nil, u.err
}

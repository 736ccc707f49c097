package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/cors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rpattn/resourcekit/internal/coerce"
	"github.com/rpattn/resourcekit/internal/config"
	"github.com/rpattn/resourcekit/internal/db"
	"github.com/rpattn/resourcekit/internal/domain"
	"github.com/rpattn/resourcekit/internal/drafts"
	"github.com/rpattn/resourcekit/internal/export"
	"github.com/rpattn/resourcekit/internal/filters"
	"github.com/rpattn/resourcekit/internal/httpapi"
	"github.com/rpattn/resourcekit/internal/ingestion"
	"github.com/rpattn/resourcekit/internal/middleware"
	"github.com/rpattn/resourcekit/internal/registry"
	"github.com/rpattn/resourcekit/internal/repository"
	"github.com/rpattn/resourcekit/internal/sessions"
	"github.com/rpattn/resourcekit/pkg/validator"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg, logger)
	},
}

// app is the wired service graph.
type app struct {
	registry *domain.Registry
	sessions *sessions.Store
	drafts   *drafts.Service
	handler  http.Handler
	close    func()
}

// buildApp wires storage, services and middleware from cfg.
func buildApp(ctx context.Context, cfg config.Config, logger *zap.Logger) (*app, error) {
	reg, err := registry.Default(cfg.API.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to build registry: %w", err)
	}

	repo, closeRepo, err := openRepository(ctx, cfg, reg, logger)
	if err != nil {
		return nil, err
	}

	filterEngine := filters.NewEngine(reg, nil)
	coerceEngine := coerce.NewEngine(reg, coerce.WithLogger(logger.Named("coerce")))
	fv := validator.NewFieldsValidator(reg, cfg.CustomProperties.Strict)
	store := sessions.NewStore(reg, filterEngine)
	draftService := drafts.NewService(repo, fv, logger)

	server := httpapi.NewServer(httpapi.Dependencies{
		Registry:  reg,
		Repo:      repo,
		Filters:   filterEngine,
		Coerce:    coerceEngine,
		Validator: fv,
		Sessions:  store,
		Drafts:    draftService,
		Export: export.NewService(repo, reg, filterEngine, coerceEngine,
			export.WithPageSize(cfg.Export.PageSize),
			export.WithMaxRows(cfg.Export.MaxRows),
			export.WithCustomColumns(cfg.Export.CustomColumns),
			export.WithLogger(logger),
		),
		Importer: ingestion.NewService(repo, reg, coerceEngine, fv, logger),
		Logger:   logger,
	})

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowCredentials: true,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"Content-Disposition"},
	})

	return &app{
		registry: reg,
		sessions: store,
		drafts:   draftService,
		handler:  corsHandler.Handler(middleware.LoggingMiddleware(logger)(server.Handler())),
		close:    closeRepo,
	}, nil
}

func openRepository(ctx context.Context, cfg config.Config, reg *domain.Registry, logger *zap.Logger) (repository.ResourceRepository, func(), error) {
	if cfg.Storage.Backend == config.BackendMemory {
		logger.Warn("using in-memory storage; data is lost on restart")
		return repository.NewMemoryRepository(reg), func() {}, nil
	}

	if err := db.RunMigrations(cfg.Database, logger); err != nil {
		return nil, nil, err
	}
	conn, err := db.NewConnection(ctx, cfg.Database, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return repository.NewPostgresRepository(conn, reg), conn.Close, nil
}

// sweepSessions expires idle sessions until ctx is done.
func sweepSessions(ctx context.Context, store *sessions.Store, ds *drafts.Service, sc config.SessionsConfig, logger *zap.Logger) {
	if sc.TTL <= 0 {
		return
	}
	ticker := time.NewTicker(sc.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			expireSessions(store, ds, now.Add(-sc.TTL), logger)
		}
	}
}

// expireSessions removes sessions last seen before cutoff together with
// their drafts.
func expireSessions(store *sessions.Store, ds *drafts.Service, cutoff time.Time, logger *zap.Logger) int {
	expired := store.Expire(cutoff)
	if len(expired) == 0 {
		return 0
	}
	discarded := 0
	for _, id := range expired {
		discarded += ds.DiscardSession(id)
	}
	logger.Info("expired idle sessions",
		zap.Int("count", len(expired)),
		zap.Int("drafts_discarded", discarded))
	return len(expired)
}

func serve(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	go sweepSessions(ctx, a.sessions, a.drafts, cfg.Sessions, logger)

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      a.handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server",
			zap.String("addr", cfg.Server.Addr),
			zap.String("storage", cfg.Storage.Backend),
			zap.Int("lookup_keys", len(a.registry.LookupKeys())))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	logger.Info("server exited")
	return nil
}

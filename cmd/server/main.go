// Package main is the entrypoint for the cardiotriage API server.
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

	"github.com/kiranshivaraju/cardiotriage/internal/ai"
	"github.com/kiranshivaraju/cardiotriage/internal/api"
	"github.com/kiranshivaraju/cardiotriage/internal/api/handler"
	mw "github.com/kiranshivaraju/cardiotriage/internal/api/middleware"
	"github.com/kiranshivaraju/cardiotriage/internal/cache"
	"github.com/kiranshivaraju/cardiotriage/internal/config"
	"github.com/kiranshivaraju/cardiotriage/internal/diagnosis"
	"github.com/kiranshivaraju/cardiotriage/internal/inference"
	"github.com/kiranshivaraju/cardiotriage/internal/localinference"
	"github.com/kiranshivaraju/cardiotriage/internal/registry"
	"github.com/kiranshivaraju/cardiotriage/internal/store"
	"github.com/kiranshivaraju/cardiotriage/internal/store/memory"
	"github.com/kiranshivaraju/cardiotriage/pkg/models"
)

const (
	shutdownTimeout   = 30 * time.Second
	diagnosisCacheTTL = time.Hour
	migrationsDir     = "migrations"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded",
		"ai_provider", cfg.AI.Provider,
		"store_driver", cfg.Database.Driver,
		"env", cfg.Server.Env,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, closeStore, err := openStore(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer closeStore()

	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	aiProvider, err := ai.NewProvider(cfg.AI)
	if err != nil {
		return fmt.Errorf("create AI provider: %w", err)
	}
	slog.Info("AI provider initialized", "provider", aiProvider.Name())

	local := localinference.NewHTTPClient(cfg.LocalInference.BaseURL, cfg.LocalInference.Timeout)
	if err := local.Health(ctx); err != nil {
		// Local models fall back to mock output while the executor is down.
		slog.Warn("local inference backend unreachable", "base_url", cfg.LocalInference.BaseURL, "error", err)
	}

	router := buildRouter(cfg, st, redisCache, aiProvider, local)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.AI.InferenceTimeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

// openStore returns the configured store and a release func. Postgres
// migrations run before the store is returned.
func openStore(ctx context.Context, cfg config.DatabaseConfig) (store.Store, func(), error) {
	if cfg.Driver == "memory" {
		slog.Warn("using in-memory store; data is lost on restart")
		return memory.New(), func() {}, nil
	}

	pool, err := store.Connect(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("connect database: %w", err)
	}
	slog.Info("database connected")

	if err := store.RunMigrations(cfg.URL, migrationsDir); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	return store.NewPostgresStore(pool), pool.Close, nil
}

// buildRouter wires services and handlers onto the HTTP router.
func buildRouter(cfg *config.Config, st store.Store, c cache.Cache, provider models.AIProvider, local models.LocalInference) http.Handler {
	var regOpts []registry.Option
	if cfg.Activation.LockEnabled {
		regOpts = append(regOpts, registry.WithLocker(c, cfg.Activation.LockTTL))
	}

	analyzer := inference.NewRouter(st, provider, local, cfg.AI.InferenceTimeout)
	reg := registry.NewService(st, regOpts...)
	diag := diagnosis.NewService(st, []byte(cfg.Diagnosis.SigningKey), diagnosis.WithCache(c, diagnosisCacheTTL))

	admin := handler.NewModelHandlers(reg)
	diagnoses := handler.NewDiagnosisHandlers(diag)
	keys := handler.NewKeyHandlers(st)

	return api.NewRouter(api.Dependencies{
		Auth:      mw.NewAuth(st),
		RateLimit: mw.NewRateLimit(c, cfg.RateLimit.PerMinute),

		HealthHandler:  handler.NewHealthHandler(st, c),
		AnalyzeHandler: handler.NewAnalyzeHandler(analyzer),

		CreateDiagnosis: diagnoses.Create,
		ListDiagnoses:   diagnoses.List,
		GetDiagnosis:    diagnoses.Get,
		VerifyDiagnosis: diagnoses.Verify,

		ListModels:        admin.List,
		CreateLocalModel:  admin.CreateLocal,
		CreateRemoteModel: admin.CreateRemote,
		ToggleModel:       admin.Toggle,
		GetSettings:       admin.Settings,
		SwitchInfra:       admin.SwitchInfrastructure,
		ActiveModels:      admin.ActiveModels,

		CreateKeyHandler: keys.Create,
		ListKeysHandler:  keys.List,
		RevokeKeyHandler: keys.Revoke,
	})
}

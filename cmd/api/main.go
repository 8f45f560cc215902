package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"radboard/internal/adapter/memstore"
	"radboard/internal/adapter/repo"
	"radboard/internal/content"
	"radboard/internal/domain"
	"radboard/internal/eventbus"
	"radboard/internal/generation"
	"radboard/internal/http/handlers"
	httpapi "radboard/internal/http/httpapi"
	"radboard/internal/infra"
	"radboard/internal/providers"
	"radboard/internal/providers/luma"
	"radboard/internal/providers/stability"
	"radboard/internal/realtime"
	"radboard/internal/storage"
)

func main() {
	// .env is optional.
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Job store: PostgreSQL when configured, in-memory otherwise.
	var store domain.JobStore
	if cfg.DatabaseURL != "" {
		pool, err := infra.NewDBPool(ctx, cfg)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect database")
		}
		defer pool.Close()
		store = repo.NewJobRepository(pool)
	} else {
		logger.Warn().Msg("DATABASE_URL not set, generation jobs are kept in memory")
		store = memstore.NewJobStore()
	}

	fileStore, err := storage.NewFileStore(cfg.StoragePath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure storage")
	}

	clients := map[domain.JobKind]providers.Client{
		domain.JobKindImage: stability.New(stability.Options{
			APIKey:  cfg.StabilityAPIKey,
			BaseURL: cfg.StabilityBaseURL,
			Engine:  cfg.StabilityEngine,
			Timeout: cfg.ProviderTimeout,
		}, fileStore),
		domain.JobKindVideo: luma.New(luma.Options{
			APIKey:  cfg.LumaAPIKey,
			BaseURL: cfg.LumaBaseURL,
			Timeout: cfg.ProviderTimeout,
		}),
	}
	if cfg.StabilityAPIKey == "" {
		logger.Warn().Msg("STABILITY_API_KEY missing, image generation will fail until configured")
	}
	if cfg.LumaAPIKey == "" {
		logger.Warn().Msg("LUMAAI_API_KEY missing, video generation will fail until configured")
	}

	bus := eventbus.New(cfg.EventQueueSize)
	defer bus.Close()

	registry := realtime.NewRegistry(cfg.WSQueueSize)
	defer registry.Close()
	busSub := realtime.AttachBus(bus, registry)
	defer busSub.Cancel()

	orch := generation.NewOrchestrator(ctx, store, clients, bus, logger, generation.Options{
		PollInterval: cfg.PollInterval,
		MaxAttempts:  cfg.PollMaxAttempts,
		BackoffBase:  cfg.PollBackoffBase,
		CallTimeout:  cfg.ProviderTimeout,
	})

	contentSvc := content.NewService(bus, orch, logger)
	defer contentSvc.Close()

	poller := generation.NewPoller(orch, store, logger, cfg.PollInterval, cfg.PollWorkers)
	go func() {
		if err := poller.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("poller stopped with error")
		}
	}()

	app := handlers.NewApp(logger, contentSvc, orch)
	router := httpapi.NewRouter(app, httpapi.Options{
		Logger:          logger,
		WSHandler:       realtime.NewHandler(registry, logger),
		StaticDir:       fileStore.BasePath(),
		RateLimitPerMin: cfg.RateLimitPerMin,
	})

	server := infra.NewHTTPServer(cfg, router)
	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	orch.Wait()
	logger.Info().Msg("server stopped")
}

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/jonboulle/clockwork"

	"github.com/mathieu-neron/toptabled/internal/config"
	"github.com/mathieu-neron/toptabled/internal/db"
	"github.com/mathieu-neron/toptabled/internal/handler"
	"github.com/mathieu-neron/toptabled/internal/logging"
	"github.com/mathieu-neron/toptabled/internal/metrics"
	"github.com/mathieu-neron/toptabled/internal/repository"
	"github.com/mathieu-neron/toptabled/internal/router"
	"github.com/mathieu-neron/toptabled/internal/service"
)

func main() {
	cfg := config.Load()
	logging.Init(cfg.LogLevel, "toptabled")
	log := logging.Logger

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()

	if cfg.AutoSchema {
		if err := db.EnsureSchema(ctx, pool); err != nil {
			log.Fatal().Err(err).Msg("failed to create schema")
		}
	}
	metrics.RegisterPoolGauges(pool)

	cache := service.NewCacheService(cfg.RedisURL)
	defer cache.Close()

	clock := clockwork.NewRealClock()
	ledger := service.NewBreakerLedger(repository.NewLedger(pool))
	catalog := service.NewCatalogService(ledger, service.NewStore(), cache, cfg.PageSize)
	reconciler := service.NewVoteReconciler(catalog, ledger, cache,
		service.WithClock(clock),
		service.WithRefreshDelay(cfg.RefreshDelay),
	)
	classifier := service.NewClassifier(cfg.EphemeralUserIDs)

	if err := catalog.Refresh(ctx); err != nil {
		// the resync worker keeps retrying
		log.Warn().Err(err).Msg("initial catalog load failed")
	}

	workerCtx, cancelWorkers := context.WithCancel(ctx)
	defer cancelWorkers()
	go service.NewRefreshWorker(pool, catalog, cache, cfg.NotifyBatch, clock).Start(workerCtx)
	go service.NewResyncWorker(catalog, cfg.ResyncInterval, clock).Start(workerCtx)

	app := fiber.New(fiber.Config{
		AppName:      "TopTabled API",
		ServerHeader: "TopTabled",
	})
	router.Setup(app, &router.Handlers{
		Item:   handler.NewItemHandler(catalog, reconciler, cfg.TrendingSize),
		Vote:   handler.NewVoteHandler(reconciler),
		Health: handler.NewHealthHandler(pool, cache.Client(), catalog.Store(), 3*cfg.ResyncInterval),
	}, classifier, cfg.CORSOrigins)

	go func() {
		<-ctx.Done()
		log.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := app.ShutdownWithContext(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("server shutdown")
		}
	}()

	log.Info().
		Str("port", cfg.Port).
		Str("env", cfg.Environment).
		Int("items", catalog.Store().Len()).
		Msg("TopTabled backend starting")
	if err := app.Listen(":"+cfg.Port, fiber.ListenConfig{DisableStartupMessage: true}); err != nil {
		log.Error().Err(err).Msg("server stopped")
	}

	cancelWorkers()
	reconciler.Wait()
}

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"reelgen/internal/adapter/repo"
	"reelgen/internal/batch"
	"reelgen/internal/breaker"
	"reelgen/internal/cache"
	"reelgen/internal/catalog"
	"reelgen/internal/generation"
	"reelgen/internal/http/handlers"
	httpapi "reelgen/internal/http/httpapi"
	"reelgen/internal/infra"
	"reelgen/internal/metrics"
	"reelgen/internal/providers/scrape"
	"reelgen/internal/providers/script"
	videoprovider "reelgen/internal/providers/video"
	"reelgen/internal/ratelimit"
	"reelgen/internal/storage"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, "api")

	ctx := context.Background()
	dbpool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	defer dbpool.Close()

	m := metrics.New()

	jobs := repo.NewJobRepository(dbpool)
	ledger := repo.NewLedgerRepository(dbpool)
	batches := repo.NewBatchRepository(dbpool)

	cat := catalog.NewCatalog()
	selector := catalog.NewSelector(cat, logger)

	brk := breaker.New(cfg.BreakerFailureThreshold, cfg.BreakerCooldown, logger)
	brk.OnStateChange = func(from, to breaker.State) {
		m.BreakerTransitions.WithLabelValues(from.String(), to.String()).Inc()
	}
	limits := ratelimit.NewSet(cfg.ScrapeRPM, cfg.ScriptRPM, cfg.ProviderRPM)

	var provider videoprovider.Client
	if cfg.ProviderAPIKey == "" {
		logger.Warn().Msg("no provider api key; using stub video provider")
		provider = videoprovider.NewStub(30 * time.Second)
	} else {
		provider, err = videoprovider.NewHTTPClient(videoprovider.Options{
			APIKey:  cfg.ProviderAPIKey,
			BaseURL: cfg.ProviderBaseURL,
			Logger:  &logger,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to build video provider client")
		}
	}

	var statuses cache.JobStatusCache = cache.Noop{}
	if cfg.RedisURL != "" {
		rc, err := cache.NewRedisCache(cfg.RedisURL)
		if err != nil {
			logger.Warn().Err(err).Msg("redis unavailable; job status cache disabled")
		} else {
			statuses = rc
		}
	}

	store, err := storage.NewFileStore(cfg.StoragePath, cfg.StorageBaseURL, cfg.StorageSignKey)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize storage")
	}

	svc := generation.NewService(
		jobs, ledger, cat, selector, provider, brk, limits, store, statuses, m, logger, nil,
		generation.Options{
			CreditUnitUSD:        cfg.CreditUnitUSD,
			QualityMinScore:      cfg.QualityMinScore,
			MaxAutoRegenerations: cfg.MaxAutoRegenerations,
			ProcessingTimeout:    cfg.ProcessingTimeout,
		},
	)

	scraper, err := scrape.NewHTTPClient(scrape.Options{BaseURL: cfg.ScraperBaseURL})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build scraper client")
	}
	scripts, err := script.NewHTTPClient(script.Options{
		APIKey:  cfg.ScriptAPIKey,
		BaseURL: cfg.ScriptBaseURL,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build script client")
	}

	orchestrator := batch.NewOrchestrator(svc, batches, scraper, scripts, selector, limits, m, logger, batch.Options{
		WindowSize:    cfg.BatchWindowSize,
		ItemStagger:   cfg.BatchItemStagger,
		WindowDelay:   cfg.BatchWindowDelay,
		CreditUnitUSD: cfg.CreditUnitUSD,
	})

	app := handlers.NewApp(svc, orchestrator, store, logger)
	router := httpapi.NewRouter(app, m.Registry, logger, httpapi.Options{RateLimitPerMin: cfg.RateLimitPerMin})
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("API listening on %s", server.Addr())
		if err := server.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}

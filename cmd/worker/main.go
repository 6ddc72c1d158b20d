package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"reelgen/internal/adapter/repo"
	"reelgen/internal/batch"
	"reelgen/internal/breaker"
	"reelgen/internal/cache"
	"reelgen/internal/catalog"
	"reelgen/internal/generation"
	"reelgen/internal/infra"
	"reelgen/internal/metrics"
	"reelgen/internal/providers/scrape"
	"reelgen/internal/providers/script"
	videoprovider "reelgen/internal/providers/video"
	"reelgen/internal/ratelimit"
	"reelgen/internal/storage"
)

// The worker owns job progression: it polls provider status, enforces the
// processing timeout, runs quality validation and regenerations, and
// resumes batches stranded by an API restart. The API process only submits.
func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, "worker")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbpool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: db connection failed")
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
			logger.Fatal().Err(err).Msg("worker: failed to build video provider client")
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
		logger.Fatal().Err(err).Msg("worker: failed to initialize storage")
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
		logger.Fatal().Err(err).Msg("worker: failed to build scraper client")
	}
	scripts, err := script.NewHTTPClient(script.Options{
		APIKey:  cfg.ScriptAPIKey,
		BaseURL: cfg.ScriptBaseURL,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to build script client")
	}
	orchestrator := batch.NewOrchestrator(svc, batches, scraper, scripts, selector, limits, m, logger, batch.Options{
		WindowSize:    cfg.BatchWindowSize,
		ItemStagger:   cfg.BatchItemStagger,
		WindowDelay:   cfg.BatchWindowDelay,
		CreditUnitUSD: cfg.CreditUnitUSD,
	})

	// Resume batches whose API-side runner died before finishing.
	go func() {
		ticker := time.NewTicker(cfg.BatchReclaimInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := orchestrator.ReclaimStalled(ctx, cfg.BatchReclaimAge, 10)
				if err != nil && !errors.Is(err, context.Canceled) {
					logger.Error().Err(err).Msg("worker: batch reclaim failed")
				}
				if n > 0 {
					logger.Info().Int("batches", n).Msg("worker: resumed stalled batches")
				}
			}
		}
	}()

	// Expose worker metrics on a side port so both processes scrape cleanly.
	metricsSrv := &http.Server{
		Addr:    ":" + getEnv("WORKER_METRICS_PORT", "9091"),
		Handler: promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}),
	}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("worker: metrics server failed")
		}
	}()

	poller := generation.NewPoller(svc, cfg.PollInterval)
	logger.Info().Dur("interval", cfg.PollInterval).Msg("worker started")
	if err := poller.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("worker: poll loop stopped")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = metricsSrv.Shutdown(shutdownCtx)
	logger.Info().Msg("worker stopped")
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"studio/internal/adapter/repo"
	"studio/internal/bootstrap"
	"studio/internal/events"
	"studio/internal/imagegen"
	"studio/internal/infra"
	"studio/internal/infra/credentials"
	"studio/internal/requests"
	"studio/internal/storage"
	"studio/internal/worker"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, "worker")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: db connection failed")
	}
	defer pool.Close()
	runner := infra.NewSQLRunner(pool, logger)

	store, err := storage.NewFileStore(cfg.StoragePath, cfg.StorageBaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to configure storage")
	}

	keys := bootstrap.ResolveKeys(ctx, credentials.NewStore(runner), cfg, logger)
	providers := bootstrap.NewProviders(ctx, cfg, keys, logger)
	fetcher := providers.Fetcher()

	profiles := repo.NewProfileRepository(runner)
	images := repo.NewImageRepository(runner)
	// The API relays these notifications to its SSE subscribers.
	notifier := events.NewNotifier(runner, events.NewOrigin("worker"))

	w := worker.New(worker.Options{
		Requests:     requests.NewService(repo.NewRequestRepository(runner), profiles, notifier, logger),
		Pipeline:     providers.Pipeline(),
		Persister:    imagegen.NewPersister(store, images, fetcher, logger),
		Video:        providers.Video,
		Posts:        providers.Posts,
		Profiles:     profiles,
		Usage:        repo.NewUsageRepository(runner),
		Store:        store,
		Fetcher:      fetcher,
		PollInterval: cfg.WorkerPollInterval,
		StaleAfter:   cfg.WorkerStaleAfter,
		Logger:       logger,
	})

	if err := w.Run(ctx); err != nil {
		logger.Fatal().Err(err).Msg("worker: stopped with error")
	}
	logger.Info().Msg("worker: stopped")
}

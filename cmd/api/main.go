package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"studio/internal/adapter/repo"
	"studio/internal/bootstrap"
	"studio/internal/events"
	"studio/internal/http/handlers"
	"studio/internal/http/httpapi"
	"studio/internal/imagegen"
	"studio/internal/infra"
	"studio/internal/infra/credentials"
	"studio/internal/infra/geoip"
	"studio/internal/requests"
	"studio/internal/storage"
)

func main() {
	// .env is optional
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, "api")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbpool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	defer dbpool.Close()
	runner := infra.NewSQLRunner(dbpool, logger)

	store, err := storage.NewFileStore(cfg.StoragePath, cfg.StorageBaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure storage")
	}

	var countries geoip.CountryResolver
	if cfg.GeoIPDBPath != "" {
		resolver, err := geoip.NewResolver(cfg.GeoIPDBPath)
		if err != nil {
			logger.Warn().Err(err).Str("path", cfg.GeoIPDBPath).Msg("geoip disabled")
		} else {
			defer resolver.Close()
			countries = resolver
		}
	}

	keys := bootstrap.ResolveKeys(ctx, credentials.NewStore(runner), cfg, logger)
	providers := bootstrap.NewProviders(ctx, cfg, keys, logger)
	fetcher := providers.Fetcher()

	profiles := repo.NewProfileRepository(runner)
	images := repo.NewImageRepository(runner)
	usage := repo.NewUsageRepository(runner)

	origin := events.NewOrigin("api")
	bus := events.NewBus(logger)
	publisher := events.Multi{bus, events.NewNotifier(runner, origin)}
	listener := events.NewListener(cfg.DatabaseURL, origin, bus, logger)

	app := handlers.NewApp(handlers.Deps{
		Config:    cfg,
		Logger:    logger,
		DB:        dbpool,
		Requests:  requests.NewService(repo.NewRequestRepository(runner), profiles, publisher, logger),
		Profiles:  profiles,
		Images:    images,
		Usage:     usage,
		Pipeline:  providers.Pipeline(),
		Gemini:    providers.GeminiPipeline(),
		Persister: imagegen.NewPersister(store, images, fetcher, logger),
		Fetcher:   fetcher,
		Posts:     providers.Posts,
		Store:     store,
		Bus:       bus,
	})

	router := httpapi.NewRouter(app, cfg, logger, countries)
	server := infra.NewHTTPServer(cfg, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Msgf("API listening on %s", server.Addr())
		return server.Start()
	})
	g.Go(func() error {
		return listener.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("server stopped with error")
	}
	logger.Info().Msg("server stopped")
}

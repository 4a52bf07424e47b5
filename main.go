package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/1509Chamma/ukenergydashboard/internal/api"
	"github.com/1509Chamma/ukenergydashboard/internal/cache"
	"github.com/1509Chamma/ukenergydashboard/internal/config"
	"github.com/1509Chamma/ukenergydashboard/internal/db"
	"github.com/1509Chamma/ukenergydashboard/internal/ingest"
	"github.com/1509Chamma/ukenergydashboard/internal/query"
	"github.com/1509Chamma/ukenergydashboard/internal/sources"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log := zerolog.New(os.Stdout).With().Timestamp().Str("service", "ukenergydashboard").Logger()

	if err := run(log); err != nil {
		log.Fatal().Err(err).Msg("exiting")
	}
}

func run(log zerolog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := db.New(ctx, cfg.DatabaseURL, cfg.PageSize)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.EnsureSchema(ctx); err != nil {
		return err
	}

	httpClient := &http.Client{Timeout: cfg.RequestTimeout}
	adapters := []sources.Adapter{
		sources.NewNeso(sources.NewClient("neso", httpClient), cfg.NesoURL, cfg.NesoResource),
		sources.NewCarbon(sources.NewClient("carbonintensity", httpClient), cfg.CarbonURL),
		sources.NewOpenMeteo(sources.NewClient("openmeteo", httpClient), cfg.OpenMeteoURL, log),
	}

	resultCache := cache.New(cfg.CacheTTL)
	queries := query.New(store)
	refresher := ingest.New(store, adapters, resultCache, cfg.SourceTimeout, log)

	// One incremental refresh per process lifetime, off the request path.
	// Readers keep getting cached or stored data while it runs.
	go refresher.TryRunCycle(ctx)

	srv := api.New(cfg, queries, resultCache, refresher)
	log.Info().Str("addr", cfg.ListenAddr()).Msg("REST API listening")
	return srv.Run(ctx)
}

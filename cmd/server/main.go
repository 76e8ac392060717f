// Package main is the entry point for the habitat bank allocation service.
// It resolves a developer's biodiversity net gain demand against the
// reference bank catalogue and returns a least-cost, policy-compliant
// allocation.
package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/WCLondon/habitat-allocator/internal/allocation"
	"github.com/WCLondon/habitat-allocator/internal/config"
	"github.com/WCLondon/habitat-allocator/internal/database"
	"github.com/WCLondon/habitat-allocator/internal/geography"
	"github.com/WCLondon/habitat-allocator/internal/jobqueue"
	"github.com/WCLondon/habitat-allocator/internal/metricparser"
	"github.com/WCLondon/habitat-allocator/internal/pipeline"
	"github.com/WCLondon/habitat-allocator/internal/reference"
	"github.com/WCLondon/habitat-allocator/internal/server"
	"github.com/WCLondon/habitat-allocator/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("failed to load configuration")
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.DevMode})
	logger.SetGlobalLogger(log)
	log.Info().Msg("starting habitat allocator")

	// Three SQLite databases, each tuned for its own access pattern: the
	// reference catalogue is read-mostly, geography is read-only after
	// load, and the job cache/queue is write-heavy and disposable.
	referenceDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "reference.db"),
		Profile: database.ProfileReference,
		Name:    "reference",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open reference database")
	}
	defer referenceDB.Close()

	geographyDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "geography.db"),
		Profile: database.ProfileReference,
		Name:    "geography",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open geography database")
	}
	defer geographyDB.Close()

	cacheDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "cache.db"),
		Profile: database.ProfileCache,
		Name:    "cache",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open cache database")
	}
	defer cacheDB.Close()

	if err := referenceDB.Migrate(reference.Schema()); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate reference database")
	}
	if err := geographyDB.Migrate(geography.Schema()); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate geography database")
	}
	// The cache database's schema is migrated by jobqueue.NewCache itself.

	// Reference store: loads the bank catalogue into memory and refreshes
	// it on a cron schedule so a slow upstream edit never blocks a job.
	referenceRepo := reference.NewRepository(referenceDB.Conn(), log)
	referenceStore := reference.NewStore(referenceRepo, cfg.ReferenceTTL, log)
	if err := referenceStore.Refresh(); err != nil {
		log.Fatal().Err(err).Msg("failed initial reference catalogue load")
	}
	if err := referenceStore.StartBackgroundRefresh(); err != nil {
		log.Fatal().Err(err).Msg("failed to start reference background refresh")
	}
	defer referenceStore.StopBackgroundRefresh()

	// Geography store holds LPA/NCA boundary polygons; unlike the
	// reference catalogue these don't change on job timescales, so there
	// is no background refresh to start.
	geographyStore, err := geography.Load(geographyDB.Conn())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load geography boundaries")
	}
	geocoder := geography.NewPostcodesIOGeocoder("")
	resolver := geography.NewResolver(geographyStore, geocoder, cfg.GeoNeighbourTTL, cfg.GeocodeTTL, log)

	engine := allocation.NewEngine(log)
	parser := metricparser.New(log)
	pipe := pipeline.New(referenceStore, parser, resolver, engine, cfg, log)

	cache, err := jobqueue.NewCache(cacheDB.Conn(), cfg.CacheTTL, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to construct job cache")
	}
	if err := cache.StartBackgroundSweep(cfg.CacheTTL); err != nil {
		log.Fatal().Err(err).Msg("failed to start cache sweep")
	}
	defer cache.StopBackgroundSweep()

	queue := jobqueue.NewQueue(cache, pipe, cfg.WorkerCount, cfg.JobTimeout, log)
	queue.Start()

	srv := server.New(server.Config{
		Log:     log,
		Queue:   queue,
		Cache:   cache,
		Port:    cfg.Port,
		DevMode: cfg.DevMode,
	})

	go func() {
		if err := srv.Start(); err != nil {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()
	log.Info().Int("port", cfg.Port).Msg("server started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutdown signal received")

	// Workers finish the in-flight job and drain the queue refusing new
	// work, then exit; this must happen before the databases close.
	queue.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shut down")
	}

	log.Info().Msg("habitat allocator stopped")
}

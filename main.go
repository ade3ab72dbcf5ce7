package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/driftwatch/deltasync/internal/config"
	"github.com/driftwatch/deltasync/internal/database"
	"github.com/driftwatch/deltasync/internal/domain"
	"github.com/driftwatch/deltasync/internal/events"
	"github.com/driftwatch/deltasync/internal/http"
	"github.com/driftwatch/deltasync/internal/logger"
	"github.com/driftwatch/deltasync/internal/scheduler"
	"github.com/driftwatch/deltasync/internal/server"
	"github.com/driftwatch/deltasync/internal/sync"

	"github.com/asaskevich/EventBus"
	"github.com/r3labs/sse/v2"
	"github.com/spf13/pflag"
)

var (
	version = "dev"
	commit  = ""
	date    = ""
)

func main() {
	var configPath string
	pflag.StringVar(&configPath, "config", "", "path to configuration file")
	pflag.Parse()

	// read config
	cfg := config.New(configPath, version)

	// init new logger
	log := logger.New(cfg.Config)

	// init dynamic config
	cfg.DynamicReload(log)

	// setup server-sent-events
	serverEvents := sse.New()
	serverEvents.CreateStreamWithOpts("logs", sse.StreamOpts{MaxEntries: 1000, AutoReplay: true})

	// register SSE writer
	log.RegisterSSEWriter(serverEvents)

	// setup internal eventbus
	bus := EventBus.New()

	// open database connection
	db, err := database.NewDB(cfg.Config, log)
	if err != nil {
		log.Fatal().Err(err).Msg("could not create new db")
	}

	if err := db.Open(); err != nil {
		log.Fatal().Err(err).Msg("could not open db connection")
	}

	log.Info().Msgf("Starting DeltaSync")
	log.Info().Msgf("Version: %s", version)
	log.Info().Msgf("Commit: %s", commit)
	log.Info().Msgf("Build date: %s", date)
	log.Info().Msgf("Log-level: %s", cfg.Config.Logging.Level)
	log.Info().Msgf("Using database: %s", db.Driver)

	// the engine only syncs entity types registered here
	specs := make([]domain.EntityTypeSpec, 0, len(cfg.Config.Sync.EntityTypes))
	for _, name := range cfg.Config.Sync.EntityTypes {
		specs = append(specs, domain.EntityTypeSpec{Name: name})
	}
	registry := domain.NewEntityRegistry(specs...)
	log.Info().Msgf("Registered entity types: %v", registry.Names())

	// setup repos
	entityRepo := database.NewEntityRepo(log, db)

	// setup services
	var (
		schedulingService = scheduler.NewService(log, cfg.Config, entityRepo)
		syncService       = sync.NewService(log, cfg.Config, entityRepo, registry, bus)
	)

	// register event subscribers
	events.NewSubscribers(log, bus)

	errorChannel := make(chan error)

	go func() {
		httpServer := http.NewServer(
			log,
			cfg,
			serverEvents,
			db,
			version,
			commit,
			date,
			syncService,
			entityRepo,
		)
		errorChannel <- httpServer.Open()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGHUP, syscall.SIGINT, syscall.SIGQUIT, syscall.SIGTERM)

	srv := server.NewServer(log, cfg.Config, schedulingService)
	if err := srv.Start(); err != nil {
		log.Fatal().Stack().Err(err).Msg("could not start server")
		return
	}

	for {
		select {
		case err := <-errorChannel:
			log.Error().Stack().Err(err).Msg("http server failed")
			srv.Shutdown()
			if err := db.Close(); err != nil {
				log.Error().Stack().Err(err).Msg("could not close db connection")
			}
			os.Exit(1)
		case sig := <-sigCh:
			switch sig {
			case syscall.SIGHUP:
				log.Log().Msg("shutting down server sighup")
				srv.Shutdown()
				if err := db.Close(); err != nil {
					log.Error().Stack().Err(err).Msg("could not close db connection")
				}
				os.Exit(1)
			default:
				log.Info().Msgf("Shutting down server due to %s...", sig)
				srv.Shutdown()
				if err := db.Close(); err != nil {
					log.Error().Stack().Err(err).Msg("could not close db connection")
				}
				os.Exit(0)
			}
		}
	}
}

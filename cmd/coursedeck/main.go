package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"coursedeck/internal/api"
	"coursedeck/internal/cache"
	"coursedeck/internal/config"
	"coursedeck/internal/fsys"
	"coursedeck/internal/library"
	"coursedeck/internal/media"
	"coursedeck/internal/progress"
	"coursedeck/internal/server"
	"coursedeck/internal/storage"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	importPath := flag.String("import", "", "course directory to import at startup")
	flag.Parse()

	// .env is optional
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}
	if *importPath != "" {
		cfg.Library.ImportPath = *importPath
	}

	logger := setupLogger(cfg.Logging)

	logger.Info().
		Str("version", api.Version).
		Msg("starting coursedeck")

	store, err := storage.NewSQLiteStorage(cfg.Database.Path)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize storage")
	}
	defer store.Close()

	files := fsys.NewLocal(logger)

	tracker := progress.NewTracker(
		store,
		files,
		cache.NewLRUCache(cfg.Cache.LastPlayedCapacity),
		progress.Options{
			SaveInterval:        cfg.Playback.SaveInterval,
			CompletionThreshold: cfg.Playback.CompletionThreshold,
			AutoMarkCompleted:   cfg.Playback.AutoMarkCompleted,
			AutoPlayNext:        cfg.Playback.AutoPlayNext,
			RememberPosition:    cfg.Playback.RememberPosition,
		},
		logger,
	)
	player := progress.NewPlayer(tracker)
	importer := library.NewImporter(files, store, logger)

	srv := server.New(cfg, logger, store, importer, player, files)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	srv.SetBaseContext(ctx)

	scheduler := cron.New()
	metadataExtractor := media.NewMetadataExtractor(cfg.Maintenance.ProbeTimeout, logger)
	if metadataExtractor.IsAvailable() {
		logger.Info().Msg("ffprobe available - duration refresh enabled")

		durations := media.NewDurationService(metadataExtractor, store, files, cfg.Maintenance.ProbeWorkers, logger)
		srv.SetDurationService(durations)

		if err := durations.Schedule(ctx, scheduler, cfg.Maintenance.DurationRefresh); err != nil {
			logger.Error().Err(err).Msg("failed to schedule duration refresh")
		}
	} else {
		logger.Warn().Msg("ffprobe not found - duration refresh disabled")
	}
	scheduler.Start()

	if cfg.Library.ImportPath != "" {
		go func() {
			picker := fsys.StaticPicker{Path: cfg.Library.ImportPath}
			course, err := importer.ImportPicked(ctx, picker)
			switch {
			case errors.Is(err, storage.ErrCourseExists):
				logger.Info().Str("path", picker.Path).Msg("course already imported")
			case err != nil:
				logger.Error().Err(err).Str("path", picker.Path).Msg("startup import failed")
			default:
				logger.Info().Str("id", course.ID).Msg("startup import completed")
			}
		}()
	}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		logger.Info().Msg("received shutdown signal")
		cancel()

		if err := srv.Shutdown(context.Background()); err != nil {
			logger.Error().Err(err).Msg("shutdown error")
		}
	}()

	if err := srv.Start(); err != nil {
		logger.Error().Err(err).Msg("server error")
	}

	<-scheduler.Stop().Done()

	// Save the position of whatever was playing.
	closeCtx, closeCancel := context.WithTimeout(context.Background(), 5*time.Second)
	player.Close(closeCtx)
	closeCancel()

	logger.Info().Msg("server stopped")
}

func setupLogger(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	zerolog.SetGlobalLevel(level)

	if cfg.Pretty {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).
			With().
			Timestamp().
			Logger()
	}

	return zerolog.New(os.Stdout).
		With().
		Timestamp().
		Logger()
}

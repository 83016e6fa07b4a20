package main

import (
	"context"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"dispatchboard/internal/api"
	"dispatchboard/internal/board"
	"dispatchboard/internal/config"
	"dispatchboard/internal/database"
	"dispatchboard/internal/domain"
	"dispatchboard/internal/events"
	"dispatchboard/internal/google"
	"dispatchboard/internal/logging"
	"dispatchboard/internal/metrics"
	"dispatchboard/internal/notify"
	"dispatchboard/internal/repository"
	"dispatchboard/internal/worker"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func(c io.Closer) { _ = c.Close() })(closer)
	}
	logger := baseLogger.With().Str("component", "server-main").Logger()

	metrics.Register()

	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return err
	}

	db, err := database.NewDB(cfg.Database.Path, baseLogger)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisClient, state := initState(ctx, cfg, logger)
	if redisClient != nil {
		defer repository.Close(redisClient)
	}

	eventBus := events.NewEventBus()

	if cfg.Telegram.Enabled {
		bot, err := notify.NewBotAPI(cfg.Telegram)
		if err != nil {
			logger.Error().Err(err).Msg("telegram notifier disabled")
		} else {
			notify.NewTelegramNotifier(bot, cfg.Telegram.ChatID, *baseLogger).Register(eventBus)
		}
	}

	var syncer domain.SyncScheduler
	if cfg.Google.Enabled {
		sheets, err := google.NewSheetsService(cfg.Google.GoogleCredentialsFile, cfg.Google.ScheduleSpreadSheetID)
		if err != nil {
			return err
		}
		if err := sheets.TestConnection(ctx); err != nil {
			logger.Warn().Err(err).Msg("schedule sheet unreachable at startup")
		}
		scheduleWorker := worker.NewScheduleWorker(db, sheets, redisClient, cfg.Board, worker.DefaultRetryPolicy(), *baseLogger)
		go scheduleWorker.Start(ctx)
		syncer = scheduleWorker
	}

	boards := board.NewController(db, state, eventBus, syncer, cfg.Board, *baseLogger)

	if cfg.Backup.Enabled {
		backupService := database.NewBackupService(cfg.Database.Path, cfg.Backup, baseLogger)
		go backupService.Start(ctx)
	}

	server := api.NewServer(cfg.API, db, boards, state, eventBus, *baseLogger)
	go func() {
		if err := server.Start(); err != nil {
			logger.Error().Err(err).Msg("api server error")
		}
	}()

	logger.Info().Str("env", cfg.App.Environment).Msg("dispatch server started")

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// initState wires the Redis-backed state repository behind a failover to the
// in-memory one, so a Redis outage degrades read markers and session caches
// instead of taking the server down.
func initState(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*redis.Client, domain.StateRepository) {
	memory := repository.NewMemoryStateRepository()
	if cfg.Redis.Address == "" {
		logger.Warn().Msg("redis not configured, using in-memory state only")
		return nil, memory
	}

	client := repository.NewRedisClient(cfg.Redis)
	if err := repository.Ping(ctx, client); err != nil {
		logger.Warn().Err(err).Msg("redis unreachable at startup, failover will probe")
	}

	primary := repository.NewRedisStateRepository(client, 0)
	return client, repository.NewFailoverStateRepository(primary, memory, &logger)
}

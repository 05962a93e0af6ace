package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"systeminvoice/internal/config"
	"systeminvoice/internal/infra"
	"systeminvoice/internal/repository"
	"systeminvoice/internal/repository/memory"
	"systeminvoice/internal/router"
	"systeminvoice/internal/service"
	"systeminvoice/internal/worker"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	setupLogger(cfg)

	// Storage strategy is chosen once here; services never branch on it.
	var store *repository.Store
	switch cfg.StorageDriver {
	case "memory":
		log.Warn().Msg("using in-memory storage: data is lost on restart")
		store = memory.New().Repositories()
	case "postgres":
		db, err := infra.NewDatabase(cfg.DatabaseURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to postgres")
		}
		if cfg.RunMigrations {
			if err := infra.RunMigrations(db); err != nil {
				log.Fatal().Err(err).Msg("failed to run migrations")
			}
		}
		store = repository.NewGormStore(db, cfg.StorageTimeout)
	default:
		log.Fatal().Str("driver", cfg.StorageDriver).Msg("unknown STORAGE_DRIVER")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Redis is optional: without it the register lock is process-local and
	// closure reports are not mailed.
	var (
		rdb      *redis.Client
		locker   infra.Locker = infra.NewLocalLocker()
		notifier service.ClosureNotifier
	)
	if cfg.RedisURL != "" {
		rdb, err = infra.NewRedis(cfg.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to redis")
		}
		locker = infra.NewRedisLocker(rdb)
	}
	if rdb != nil && len(cfg.Recipients()) > 0 {
		notifier = worker.NewDispatcher(rdb)
	}

	svcs := router.NewServices(cfg, store, locker, notifier)

	var pool *worker.Pool
	if rdb != nil {
		var mailer worker.ReportMailer
		if m := infra.NewMailer(cfg); m.Configured() {
			mailer = m
		}
		breaker := infra.NewCircuitBreaker(infra.DefaultCBConfig("smtp"))
		pool = worker.NewPool(rdb, map[string]worker.Handler{
			worker.JobClosureReport: worker.NewClosureReportWorker(svcs.Closures, mailer, breaker, cfg.Recipients(), cfg.ReportStoragePath),
		})
		pool.Start(ctx, cfg.WorkerPoolSize)
	}

	r := router.New(ctx, cfg, svcs, store, rdb)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown on SIGINT / SIGTERM
	go func() {
		log.Info().Str("storage", cfg.StorageDriver).Msgf("systeminvoice listening on :%d", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server…")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("forced shutdown")
	}
	cancel()
	if pool != nil {
		pool.Wait()
	}
	if rdb != nil {
		_ = rdb.Close()
	}
	log.Info().Msg("server exited")
}

// setupLogger: dev pretty console, prod JSON.
func setupLogger(cfg *config.Config) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339
	if cfg.Env == "production" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
		return
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
}

// cmd/server/main.go
//
// @title Transcription Service API
// @version 1.0
// @description Asynchronous speech-to-text with polling, progress and SRT delivery.
// @BasePath /
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"transcription-service/internal/config"
	"transcription-service/internal/engine"
	"transcription-service/internal/repository/memory"
	"transcription-service/internal/repository/postgresql"
	"transcription-service/internal/scheduler"
	"transcription-service/internal/service"
	"transcription-service/internal/storage"
	httptransport "transcription-service/internal/transport/http"
	"transcription-service/internal/worker"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml (default: $TRANSCRIBE_CONFIG or ./config.yaml)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("config", "error", err)
		os.Exit(1)
	}
	logger := cfg.Server.NewLogger(os.Stdout)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	whisper, err := engine.NewWhisper(engine.WhisperConfig{
		ModelSize:   cfg.Engine.ModelSize,
		ModelDir:    cfg.Engine.ModelDir,
		ModelPath:   cfg.Engine.ModelPath,
		WhisperPath: cfg.Engine.WhisperPath,
		FFmpegPath:  cfg.Engine.FFmpegPath,
		Threads:     cfg.Engine.Threads,
	}, logger)
	if err != nil {
		return err
	}

	files := storage.NewUploader(cfg.Server.StorageDir, logger)
	table := memory.NewJobTable()
	slots := worker.NewSlots(cfg.Jobs.Workers)

	var (
		procOpts []worker.Option
		svcOpts  = []service.Option{service.WithLogger(logger)}
	)

	// Postgres (optional): ledger of finished jobs
	if dsn := cfg.History.PostgresDSN; dsn != "" {
		pool, err := postgresql.NewPool(ctx, dsn)
		if err != nil {
			return err
		}
		defer pool.Close()

		repo := postgresql.NewHistoryRepository(pool)
		if err := repo.Migrate(ctx); err != nil {
			return err
		}
		procOpts = append(procOpts, worker.WithHistory(repo))
		svcOpts = append(svcOpts, service.WithHistory(repo))
		logger.Info("history ledger enabled", "postgres_dsn", config.RedactDSN(dsn))
	}

	// Redis (optional): job events
	if addr := cfg.Events.RedisAddr; addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: cfg.Events.RedisPassword,
			DB:       cfg.Events.RedisDB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return err
		}
		procOpts = append(procOpts, worker.WithEvents(service.NewRedisPublisher(rdb, cfg.Events.Channel, cfg.Events.StatusTTL)))
		logger.Info("job events enabled", "redis_addr", addr, "channel", cfg.Events.Channel)
	}

	processor := worker.NewProcessor(table, whisper, files, slots, logger, procOpts...)
	runners := worker.NewPool(processor, logger)
	sched := scheduler.New(logger)

	jobSvc := service.NewJobService(table, files, whisper, runners, sched, slots, service.Config{
		AllowedExtensions: cfg.Jobs.AllowedExtensions,
		MaxUploadBytes:    int64(cfg.Server.MaxUploadSize),
		PollTimeout:       cfg.Jobs.PollTimeout,
		FileGrace:         cfg.Jobs.FileGrace,
		JobTTL:            cfg.Jobs.TTL,
	}, svcOpts...)

	// Reaper: terminal jobs nobody polled are evicted after the TTL
	if err := runners.Go("reaper", func(ctx context.Context) {
		ticker := time.NewTicker(cfg.Jobs.ReapInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := jobSvc.ReapExpired(time.Now().UTC()); n > 0 {
					logger.Info("reaped expired jobs", "count", n)
				}
			}
		}
	}); err != nil {
		return err
	}

	handler := httptransport.NewHandler(jobSvc, int64(cfg.Server.MaxUploadSize), logger)
	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      httptransport.Routes(handler, logger),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening",
			"addr", cfg.Server.Addr,
			"workers", cfg.Jobs.Workers,
			"model", engine.ResolveModelPath(engine.WhisperConfig{
				ModelSize: cfg.Engine.ModelSize, ModelDir: cfg.Engine.ModelDir, ModelPath: cfg.Engine.ModelPath,
			}),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	logger.Info("shutting down", "grace", cfg.Server.ShutdownGrace)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "error", err)
	}
	if err := runners.Shutdown(cfg.Server.ShutdownGrace); err != nil {
		logger.Warn("runners still busy at exit", "error", err, "active_jobs", table.Active())
	}
	sched.Flush()

	logger.Info("server stopped")
	return nil
}

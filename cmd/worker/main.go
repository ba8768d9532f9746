package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/vaultstream/vaultstream/internal/config"
	"github.com/vaultstream/vaultstream/internal/domain/repository"
	"github.com/vaultstream/vaultstream/internal/infrastructure/cache"
	"github.com/vaultstream/vaultstream/internal/infrastructure/postgres"
	"github.com/vaultstream/vaultstream/internal/infrastructure/queue"
	"github.com/vaultstream/vaultstream/internal/infrastructure/storage"
	"github.com/vaultstream/vaultstream/internal/transcoder"
	"github.com/vaultstream/vaultstream/internal/usecase"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := os.MkdirAll(cfg.Worker.TempDir, 0755); err != nil {
		return fmt.Errorf("failed to create temp directory: %w", err)
	}

	pgClient, err := postgres.NewClient(ctx, postgres.DefaultClientConfig(cfg.Database.DSN()))
	if err != nil {
		return fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	defer pgClient.Close()
	logger.Info("connected to PostgreSQL")

	blobStore, err := newBlobStorage(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize blob storage: %w", err)
	}
	logger.Info("blob storage ready", slog.String("backend", cfg.Storage.Backend))

	queueClient, err := queue.NewClient(ctx, queue.DefaultClientConfig(cfg.RabbitMQ.URL(), cfg.Worker.Concurrency))
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	defer func() { _ = queueClient.Close() }()
	logger.Info("connected to RabbitMQ")

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer func() { _ = redisClient.Close() }()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	logger.Info("connected to Redis")

	ffmpegCfg := transcoder.DefaultFFmpegConfig()
	ffmpegCfg.FFmpegPath = cfg.HLS.FFmpegPath
	ffmpegCfg.FFprobePath = cfg.HLS.FFprobePath
	ffmpegCfg.VideoPreset = cfg.HLS.VideoPreset
	ffmpegCfg.SegmentDuration = cfg.HLS.SegmentDuration
	ffmpegCfg.RenditionTimeout = cfg.HLS.RenditionTimeout
	tc := transcoder.NewFFmpegTranscoder(ffmpegCfg, logger)

	videoRepo := postgres.NewVideoRepository(pgClient.Pool())
	videoCache := cache.NewRedisVideoCache(redisClient)
	pipelineSvc := usecase.NewPipelineService(
		videoRepo,
		blobStore,
		tc,
		videoCache,
		logger,
		usecase.PipelineServiceConfig{
			TempDir: cfg.Worker.TempDir,
		},
	)

	// A previous worker may have died mid-pipeline; those videos would sit
	// in processing forever without this.
	if err := pipelineSvc.SweepStuckProcessing(ctx, cfg.Worker.StaleProcessingAfter); err != nil {
		logger.Error("stale processing sweep failed", slog.String("error", err.Error()))
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	// Cancelling ctx stops dispatch only. Tasks run on a context that
	// survives shutdown so an in-flight encode can still write its terminal
	// ready/failed status instead of stranding the video in processing.
	taskCtx := context.WithoutCancel(ctx)

	errCh := make(chan error, 1)
	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		logger.Info("starting worker, consuming pipeline tasks",
			slog.Int("concurrency", cfg.Worker.Concurrency),
		)
		err := queueClient.ConsumePipelineTasks(ctx, func(task repository.PipelineTask) error {
			logger.Info("processing task", slog.String("video_id", task.VideoID.String()))

			if err := pipelineSvc.ProcessTask(taskCtx, task); err != nil {
				logger.Error("task processing failed",
					slog.String("video_id", task.VideoID.String()),
					slog.String("error", err.Error()),
				)
				return err
			}

			logger.Info("task completed", slog.String("video_id", task.VideoID.String()))
			return nil
		})
		if err != nil && ctx.Err() == nil {
			errCh <- fmt.Errorf("consumer error: %w", err)
		}
	}()

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		logger.Info("shutting down worker", slog.String("signal", sig.String()))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Worker.ShutdownTimeout)
	defer shutdownCancel()

	// Stop dispatching; the consumer returns once in-flight tasks finish.
	cancel()

	select {
	case <-consumerDone:
		logger.Info("all in-flight tasks completed")
	case <-shutdownCtx.Done():
		logger.Warn("shutdown timeout exceeded, some tasks may not have completed")
	}

	logger.Info("worker stopped")
	return nil
}

// newBlobStorage selects the blob store backend from configuration.
func newBlobStorage(ctx context.Context, cfg *config.Config) (repository.BlobStorage, error) {
	switch cfg.Storage.Backend {
	case "s3":
		return storage.NewMinIO(ctx, storage.MinIOConfig{
			Endpoint:   cfg.Storage.MinIO.Endpoint,
			AccessKey:  cfg.Storage.MinIO.AccessKey,
			SecretKey:  cfg.Storage.MinIO.SecretKey,
			Bucket:     cfg.Storage.MinIO.Bucket,
			UseSSL:     cfg.Storage.MinIO.UseSSL,
			StagingDir: cfg.Worker.TempDir,
		})
	default:
		return storage.NewLocal(cfg.Storage.LocalRoot)
	}
}

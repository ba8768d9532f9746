package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/vaultstream/vaultstream/internal/api/handler"
	"github.com/vaultstream/vaultstream/internal/api/middleware"
	"github.com/vaultstream/vaultstream/internal/config"
	"github.com/vaultstream/vaultstream/internal/domain/repository"
	"github.com/vaultstream/vaultstream/internal/infrastructure/cache"
	"github.com/vaultstream/vaultstream/internal/infrastructure/postgres"
	"github.com/vaultstream/vaultstream/internal/infrastructure/queue"
	"github.com/vaultstream/vaultstream/internal/infrastructure/storage"
	"github.com/vaultstream/vaultstream/internal/passphrase"
	"github.com/vaultstream/vaultstream/internal/signer"
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

	sgn, err := signer.New(cfg.Signer.Secret, cfg.Signer.TokenTTL)
	if err != nil {
		return fmt.Errorf("failed to initialize signer: %w", err)
	}
	hasher := passphrase.NewHasher(cfg.Upload.PassphraseCost)

	videoRepo := postgres.NewVideoRepository(pgClient.Pool())
	videoCache := cache.NewRedisVideoCache(redisClient)

	videoSvc := usecase.NewVideoService(videoRepo, blobStore, queueClient, hasher, logger)
	cachedSvc := usecase.NewCachedVideoService(videoSvc, videoCache, logger, usecase.DefaultCachedVideoServiceConfig())
	accessSvc := usecase.NewAccessService(cachedSvc, videoRepo, sgn, hasher, logger)

	videoHandler := handler.NewVideoHandler(cachedSvc, accessSvc, logger, handler.UploadConfig{
		ScratchDir:        cfg.Upload.ScratchDir,
		MaxBytes:          cfg.Upload.MaxSizeBytes(),
		AllowedExtensions: cfg.Upload.AllowedExtensions,
	})
	streamHandler := handler.NewStreamHandler(cachedSvc, blobStore, sgn, logger)

	r := setupRouter(cfg, logger, videoHandler, streamHandler)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", slog.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("server error: %w", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		logger.Info("shutting down server", slog.String("signal", sig.String()))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	logger.Info("server stopped")
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

func setupRouter(cfg *config.Config, logger *slog.Logger, videos *handler.VideoHandler, streams *handler.StreamHandler) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Recoverer(logger))
	r.Use(middleware.Identity)

	r.Get("/health", handler.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(middleware.RateLimit(cfg.Server.RateLimit, cfg.Server.RateLimitWindow))

		r.Route("/videos", func(r chi.Router) {
			r.Get("/{id}", videos.Get)
			r.Post("/{id}/access", videos.Access)

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireIdentity)
				r.Post("/upload", videos.Upload)
				r.Get("/", videos.List)
				r.Patch("/{id}", videos.Update)
				r.Delete("/{id}", videos.Delete)
			})
		})
	})

	// Streaming sits outside /v1 and its rate limit: a single player
	// legitimately fetches segments in bursts, and every request already
	// carries a signed token.
	r.Get("/stream/{videoID}/{file}", streams.Serve)

	return r
}

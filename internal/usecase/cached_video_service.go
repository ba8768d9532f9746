package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/vaultstream/vaultstream/internal/domain/model"
	"github.com/vaultstream/vaultstream/internal/infrastructure/cache"
	"github.com/vaultstream/vaultstream/internal/infrastructure/metrics"
)

// CachedVideoServiceConfig holds configuration for CachedVideoService.
type CachedVideoServiceConfig struct {
	// CacheTTL is the TTL for cached video metadata.
	CacheTTL time.Duration
}

// DefaultCachedVideoServiceConfig returns the default configuration.
func DefaultCachedVideoServiceConfig() CachedVideoServiceConfig {
	return CachedVideoServiceConfig{
		CacheTTL: 5 * time.Minute,
	}
}

// cachedVideoService wraps VideoService with read-path caching. Every
// playlist and segment request looks the video up, so GetVideo is the hot
// path; singleflight keeps a cache miss from stampeding the database.
type cachedVideoService struct {
	delegate VideoService
	cache    cache.VideoCache
	sfGroup  singleflight.Group
	logger   *slog.Logger

	cacheTTL time.Duration
}

// NewCachedVideoService creates a caching decorator around a VideoService.
func NewCachedVideoService(
	delegate VideoService,
	videoCache cache.VideoCache,
	logger *slog.Logger,
	cfg CachedVideoServiceConfig,
) VideoService {
	if logger == nil {
		logger = slog.Default()
	}
	return &cachedVideoService{
		delegate: delegate,
		cache:    videoCache,
		logger:   logger,
		cacheTTL: cfg.CacheTTL,
	}
}

// CreateUpload delegates to the underlying service.
// No caching for create operations - the video is immediately returned.
func (s *cachedVideoService) CreateUpload(ctx context.Context, input CreateUploadInput) (*model.Video, error) {
	return s.delegate.CreateUpload(ctx, input)
}

// Ingest invalidates the cache before delegating so the uploading->failed
// edge of an ingest error is never masked by a stale entry.
func (s *cachedVideoService) Ingest(ctx context.Context, videoID uuid.UUID, scratchPath string) error {
	s.invalidate(ctx, videoID)
	return s.delegate.Ingest(ctx, videoID, scratchPath)
}

// GetVideo retrieves video information with caching.
// Uses singleflight to prevent cache stampede on concurrent requests for
// the same video.
func (s *cachedVideoService) GetVideo(ctx context.Context, videoID uuid.UUID) (*model.Video, error) {
	key := videoID.String()
	result, err, shared := s.sfGroup.Do(key, func() (any, error) {
		return s.getVideoWithCache(ctx, videoID)
	})

	if shared {
		metrics.SingleflightRequestsTotal.WithLabelValues(metrics.SingleflightShared).Inc()
	} else {
		metrics.SingleflightRequestsTotal.WithLabelValues(metrics.SingleflightInitiated).Inc()
	}

	if err != nil {
		return nil, err
	}
	return result.(*model.Video), nil
}

// getVideoWithCache implements the cache-aside pattern.
func (s *cachedVideoService) getVideoWithCache(ctx context.Context, videoID uuid.UUID) (*model.Video, error) {
	video, err := s.cache.Get(ctx, videoID)
	if err != nil {
		metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpGet, metrics.CacheStatusError).Inc()
		s.logger.Warn("cache get failed, falling back to database",
			slog.String("video_id", videoID.String()),
			slog.String("error", err.Error()),
		)
	}
	if video != nil {
		metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpGet, metrics.CacheStatusHit).Inc()
		return video, nil
	}
	if err == nil {
		metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpGet, metrics.CacheStatusMiss).Inc()
	}

	video, err = s.delegate.GetVideo(ctx, videoID)
	if err != nil {
		return nil, err
	}

	if err := s.cache.Set(ctx, video, s.cacheTTL); err != nil {
		metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpSet, metrics.CacheStatusError).Inc()
		s.logger.Warn("cache set failed",
			slog.String("video_id", videoID.String()),
			slog.String("error", err.Error()),
		)
	} else {
		metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpSet, metrics.CacheStatusSuccess).Inc()
	}

	return video, nil
}

// ListByOwner delegates to the underlying service; listings are not cached.
func (s *cachedVideoService) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]*model.Video, error) {
	return s.delegate.ListByOwner(ctx, ownerID)
}

// UpdateMeta invalidates the cache after a successful edit.
func (s *cachedVideoService) UpdateMeta(ctx context.Context, input UpdateMetaInput) (*model.Video, error) {
	video, err := s.delegate.UpdateMeta(ctx, input)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, input.VideoID)
	return video, nil
}

// DeleteVideo invalidates the cache after a successful delete.
func (s *cachedVideoService) DeleteVideo(ctx context.Context, videoID, requesterID uuid.UUID) error {
	if err := s.delegate.DeleteVideo(ctx, videoID, requesterID); err != nil {
		return err
	}
	s.invalidate(ctx, videoID)
	return nil
}

func (s *cachedVideoService) invalidate(ctx context.Context, videoID uuid.UUID) {
	if err := s.cache.Delete(ctx, videoID); err != nil {
		metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpDelete, metrics.CacheStatusError).Inc()
		s.logger.Warn("cache invalidation failed",
			slog.String("video_id", videoID.String()),
			slog.String("error", err.Error()),
		)
		return
	}
	metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpDelete, metrics.CacheStatusSuccess).Inc()
}

package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/vaultstream/vaultstream/internal/domain/model"
)

const (
	// videoCacheKeyPrefix is the prefix for video cache keys in Redis.
	videoCacheKeyPrefix = "video:"
)

// videoJSON is the JSON representation of a Video for caching.
// Using an explicit struct avoids coupling to domain model JSON tags.
// The passphrase hash is cached too: the access gate reads through this
// cache and must see the gate fields, and Redis is as trusted as Postgres.
type videoJSON struct {
	ID               string  `json:"id"`
	OwnerID          string  `json:"owner_id"`
	Title            string  `json:"title"`
	Description      string  `json:"description"`
	Visibility       string  `json:"visibility"`
	PassphraseHash   string  `json:"passphrase_hash,omitempty"`
	StoragePath      string  `json:"storage_path"`
	HLSPath          string  `json:"hls_path"`
	MasterPlaylist   string  `json:"master_playlist"`
	ThumbnailPath    string  `json:"thumbnail_path"`
	Duration         float64 `json:"duration"`
	Width            int     `json:"width"`
	Height           int     `json:"height"`
	FileSize         int64   `json:"file_size"`
	MimeType         string  `json:"mime_type"`
	OriginalFilename string  `json:"original_filename"`
	Status           string  `json:"status"`
	ProcessingError  string  `json:"processing_error,omitempty"`
	Views            int64   `json:"views"`
	CreatedAt        string  `json:"created_at"`
	UpdatedAt        string  `json:"updated_at"`
}

// RedisVideoCache implements VideoCache using Redis as the backing store.
type RedisVideoCache struct {
	client *redis.Client
}

// Compile-time verification that RedisVideoCache implements VideoCache.
var _ VideoCache = (*RedisVideoCache)(nil)

// NewRedisVideoCache creates a new Redis-backed video cache.
func NewRedisVideoCache(client *redis.Client) *RedisVideoCache {
	return &RedisVideoCache{
		client: client,
	}
}

// Get retrieves a video from Redis cache.
// Returns nil, nil on cache miss.
func (c *RedisVideoCache) Get(ctx context.Context, videoID uuid.UUID) (*model.Video, error) {
	key := c.buildKey(videoID)

	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil // Cache miss
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}

	video, err := c.deserialize(data)
	if err != nil {
		return nil, fmt.Errorf("deserialize video: %w", err)
	}

	return video, nil
}

// Set stores a video in Redis cache with the specified TTL.
func (c *RedisVideoCache) Set(ctx context.Context, video *model.Video, ttl time.Duration) error {
	key := c.buildKey(video.ID)

	data, err := c.serialize(video)
	if err != nil {
		return fmt.Errorf("serialize video: %w", err)
	}

	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}

	return nil
}

// Delete removes a video from Redis cache.
func (c *RedisVideoCache) Delete(ctx context.Context, videoID uuid.UUID) error {
	key := c.buildKey(videoID)

	if err := c.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}

	return nil
}

// buildKey constructs the Redis key for a video.
func (c *RedisVideoCache) buildKey(videoID uuid.UUID) string {
	return videoCacheKeyPrefix + videoID.String()
}

// serialize converts a Video to JSON bytes.
func (c *RedisVideoCache) serialize(video *model.Video) ([]byte, error) {
	v := videoJSON{
		ID:               video.ID.String(),
		OwnerID:          video.OwnerID.String(),
		Title:            video.Title,
		Description:      video.Description,
		Visibility:       video.Visibility.String(),
		PassphraseHash:   video.PassphraseHash,
		StoragePath:      video.StoragePath,
		HLSPath:          video.HLSPath,
		MasterPlaylist:   video.MasterPlaylist,
		ThumbnailPath:    video.ThumbnailPath,
		Duration:         video.Duration,
		Width:            video.Resolution.Width,
		Height:           video.Resolution.Height,
		FileSize:         video.FileSize,
		MimeType:         video.MimeType,
		OriginalFilename: video.OriginalFilename,
		Status:           video.Status.String(),
		ProcessingError:  video.ProcessingError,
		Views:            video.Views,
		CreatedAt:        video.CreatedAt.Format(time.RFC3339Nano),
		UpdatedAt:        video.UpdatedAt.Format(time.RFC3339Nano),
	}
	return json.Marshal(v)
}

// deserialize converts JSON bytes to a Video.
func (c *RedisVideoCache) deserialize(data []byte) (*model.Video, error) {
	var v videoJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}

	id, err := uuid.Parse(v.ID)
	if err != nil {
		return nil, fmt.Errorf("parse video ID: %w", err)
	}

	ownerID, err := uuid.Parse(v.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("parse owner ID: %w", err)
	}

	createdAt, err := time.Parse(time.RFC3339Nano, v.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}

	updatedAt, err := time.Parse(time.RFC3339Nano, v.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}

	return &model.Video{
		ID:               id,
		OwnerID:          ownerID,
		Title:            v.Title,
		Description:      v.Description,
		Visibility:       model.Visibility(v.Visibility),
		PassphraseHash:   v.PassphraseHash,
		StoragePath:      v.StoragePath,
		HLSPath:          v.HLSPath,
		MasterPlaylist:   v.MasterPlaylist,
		ThumbnailPath:    v.ThumbnailPath,
		Duration:         v.Duration,
		Resolution:       model.Resolution{Width: v.Width, Height: v.Height},
		FileSize:         v.FileSize,
		MimeType:         v.MimeType,
		OriginalFilename: v.OriginalFilename,
		Status:           model.Status(v.Status),
		ProcessingError:  v.ProcessingError,
		Views:            v.Views,
		CreatedAt:        createdAt,
		UpdatedAt:        updatedAt,
	}, nil
}

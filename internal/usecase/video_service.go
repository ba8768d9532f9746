package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/vaultstream/vaultstream/internal/domain/model"
	"github.com/vaultstream/vaultstream/internal/domain/repository"
	"github.com/vaultstream/vaultstream/internal/passphrase"
)

var (
	// ErrNotOwner is returned when a mutation is attempted by a non-owner.
	ErrNotOwner = errors.New("requester does not own this video")
)

// CreateUploadInput contains the input parameters for accepting an upload.
// The file itself has already been streamed to a scratch path by the handler.
type CreateUploadInput struct {
	OwnerID          uuid.UUID
	Title            string
	Description      string
	Visibility       model.Visibility
	Passphrase       string // optional; hashed before persistence
	OriginalFilename string
	MimeType         string
	FileSize         int64
}

// UpdateMetaInput contains owner-editable metadata fields. Nil pointers
// leave the current value untouched.
type UpdateMetaInput struct {
	VideoID     uuid.UUID
	RequesterID uuid.UUID
	Title       *string
	Description *string
	Visibility  *model.Visibility
	// Passphrase: nil leaves gating unchanged, empty string removes it,
	// anything else replaces the hash.
	Passphrase *string
}

// VideoService defines the interface for video business logic operations.
type VideoService interface {
	// CreateUpload creates the video record in the uploading state and
	// derives its storage layout. The blob is adopted later by Ingest.
	CreateUpload(ctx context.Context, input CreateUploadInput) (*model.Video, error)

	// Ingest moves the scratch file into managed storage and publishes the
	// pipeline task. Runs detached from the upload request; the scratch
	// file is consumed on every exit path. A failed ingest marks the video
	// failed.
	Ingest(ctx context.Context, videoID uuid.UUID, scratchPath string) error

	// GetVideo retrieves video information by ID.
	GetVideo(ctx context.Context, videoID uuid.UUID) (*model.Video, error)

	// ListByOwner retrieves all videos belonging to an owner, newest first.
	ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]*model.Video, error)

	// UpdateMeta applies owner-initiated metadata edits.
	UpdateMeta(ctx context.Context, input UpdateMetaInput) (*model.Video, error)

	// DeleteVideo removes the source blob, the HLS tree, and the record.
	// Storage errors are logged but do not block the record delete.
	DeleteVideo(ctx context.Context, videoID, requesterID uuid.UUID) error
}

type videoService struct {
	repo    repository.VideoRepository
	storage repository.BlobStorage
	queue   repository.MessageQueue
	hasher  *passphrase.Hasher
	logger  *slog.Logger
}

// NewVideoService creates a new VideoService instance.
func NewVideoService(
	repo repository.VideoRepository,
	storage repository.BlobStorage,
	queue repository.MessageQueue,
	hasher *passphrase.Hasher,
	logger *slog.Logger,
) VideoService {
	if logger == nil {
		logger = slog.Default()
	}
	return &videoService{
		repo:    repo,
		storage: storage,
		queue:   queue,
		hasher:  hasher,
		logger:  logger,
	}
}

// CreateUpload creates video metadata in the uploading state.
func (s *videoService) CreateUpload(ctx context.Context, input CreateUploadInput) (*model.Video, error) {
	video, err := model.NewVideo(input.OwnerID, input.Title, input.Visibility)
	if err != nil {
		return nil, err
	}

	video.Description = input.Description
	video.OriginalFilename = input.OriginalFilename
	video.MimeType = input.MimeType
	video.FileSize = input.FileSize
	video.StoragePath = sourceKey(video.OwnerID, video.ID, input.OriginalFilename)
	video.HLSPath = hlsPrefix(video.OwnerID, video.ID)

	if input.Passphrase != "" {
		hash, err := s.hasher.Hash(input.Passphrase)
		if err != nil {
			return nil, err
		}
		video.PassphraseHash = hash
	}

	if err := s.repo.Create(ctx, video); err != nil {
		return nil, fmt.Errorf("create video: %w", err)
	}

	return video, nil
}

// Ingest adopts the scratch upload into managed storage and kicks off the
// pipeline. The caller runs this detached with its own context so a client
// disconnect cannot abort it.
func (s *videoService) Ingest(ctx context.Context, videoID uuid.UUID, scratchPath string) error {
	// The scratch file must not outlive this call, success or failure.
	defer func() {
		if err := os.Remove(scratchPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("failed to remove scratch file",
				slog.String("path", scratchPath),
				slog.String("error", err.Error()),
			)
		}
	}()

	video, err := s.repo.GetByID(ctx, videoID)
	if err != nil {
		return fmt.Errorf("get video: %w", err)
	}

	if err := s.moveIntoStorage(ctx, scratchPath, video.StoragePath); err != nil {
		s.failIngest(ctx, videoID, err)
		return fmt.Errorf("move source into storage: %w", err)
	}

	task := repository.PipelineTask{
		VideoID:   video.ID,
		SourceKey: video.StoragePath,
		HLSPrefix: video.HLSPath,
	}
	if err := s.queue.PublishPipelineTask(ctx, task); err != nil {
		s.failIngest(ctx, videoID, err)
		return fmt.Errorf("publish pipeline task: %w", err)
	}

	return nil
}

// moveIntoStorage prefers the backend's native move (a rename on local
// storage) and falls back to a streamed upload. The whole file is never
// buffered in memory.
func (s *videoService) moveIntoStorage(ctx context.Context, scratchPath, key string) error {
	if mover, ok := s.storage.(repository.BlobMover); ok {
		return mover.MoveIn(ctx, scratchPath, key)
	}

	file, err := os.Open(scratchPath)
	if err != nil {
		return fmt.Errorf("open scratch file: %w", err)
	}
	defer func() { _ = file.Close() }()

	info, err := file.Stat()
	if err != nil {
		return fmt.Errorf("stat scratch file: %w", err)
	}

	return s.storage.Upload(ctx, key, file, info.Size(), "application/octet-stream")
}

func (s *videoService) failIngest(ctx context.Context, videoID uuid.UUID, cause error) {
	if err := s.repo.MarkFailed(ctx, videoID, cause.Error()); err != nil {
		s.logger.Error("failed to mark video failed after ingest error",
			slog.String("video_id", videoID.String()),
			slog.String("error", err.Error()),
		)
	}
}

// GetVideo retrieves video information by ID.
func (s *videoService) GetVideo(ctx context.Context, videoID uuid.UUID) (*model.Video, error) {
	return s.repo.GetByID(ctx, videoID)
}

// ListByOwner retrieves all videos belonging to an owner.
func (s *videoService) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]*model.Video, error) {
	return s.repo.GetByOwnerID(ctx, ownerID)
}

// UpdateMeta applies owner-initiated metadata edits.
func (s *videoService) UpdateMeta(ctx context.Context, input UpdateMetaInput) (*model.Video, error) {
	video, err := s.repo.GetByID(ctx, input.VideoID)
	if err != nil {
		return nil, err
	}
	if video.OwnerID != input.RequesterID {
		return nil, ErrNotOwner
	}

	if input.Title != nil {
		if *input.Title == "" {
			return nil, model.ErrEmptyTitle
		}
		video.Title = *input.Title
	}
	if input.Description != nil {
		video.Description = *input.Description
	}
	if input.Visibility != nil {
		if !input.Visibility.IsValid() {
			return nil, model.ErrInvalidVisibility
		}
		video.Visibility = *input.Visibility
	}
	if input.Passphrase != nil {
		if *input.Passphrase == "" {
			video.PassphraseHash = ""
		} else {
			hash, err := s.hasher.Hash(*input.Passphrase)
			if err != nil {
				return nil, err
			}
			video.PassphraseHash = hash
		}
	}

	if err := s.repo.Update(ctx, video); err != nil {
		return nil, fmt.Errorf("update video: %w", err)
	}

	return video, nil
}

// DeleteVideo removes the source blob and HLS tree from storage, then the
// record. Blob deletion errors are logged but never block the record
// delete; orphaned blobs are preferable to undeletable records.
func (s *videoService) DeleteVideo(ctx context.Context, videoID, requesterID uuid.UUID) error {
	video, err := s.repo.GetByID(ctx, videoID)
	if err != nil {
		return err
	}
	if video.OwnerID != requesterID {
		return ErrNotOwner
	}

	if video.StoragePath != "" {
		if err := s.storage.Delete(ctx, video.StoragePath); err != nil {
			s.logger.Warn("failed to delete source blob",
				slog.String("video_id", videoID.String()),
				slog.String("key", video.StoragePath),
				slog.String("error", err.Error()),
			)
		}
	}
	if video.HLSPath != "" {
		if err := s.storage.DeleteDirectory(ctx, video.HLSPath); err != nil {
			s.logger.Warn("failed to delete HLS directory",
				slog.String("video_id", videoID.String()),
				slog.String("prefix", video.HLSPath),
				slog.String("error", err.Error()),
			)
		}
	}

	return s.repo.Delete(ctx, videoID)
}

// sourceKey builds the storage key for the untouched source blob.
// Layout: videos/<ownerID>/<videoID>/original<.ext>
func sourceKey(ownerID, videoID uuid.UUID, originalFilename string) string {
	name := "original"
	if ext := path.Ext(originalFilename); ext != "" && ext != "." {
		name += strings.ToLower(ext)
	}
	return path.Join("videos", ownerID.String(), videoID.String(), name)
}

// hlsPrefix builds the storage key prefix for the HLS output directory.
// Layout: videos/<ownerID>/<videoID>/hls
func hlsPrefix(ownerID, videoID uuid.UUID) string {
	return path.Join("videos", ownerID.String(), videoID.String(), "hls")
}

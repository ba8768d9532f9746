package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/vaultstream/vaultstream/internal/domain/model"
)

// VideoRepository defines the interface for video persistence operations.
// Implementations should be provided by the infrastructure layer (e.g., PostgreSQL).
//
// Status writes are guarded: a video never regresses out of a terminal
// state, and concurrent pipeline writers are serialized by compare-and-set
// on the current status.
type VideoRepository interface {
	// Create persists a new video entity.
	// Returns ErrDuplicateVideo if the video already exists.
	Create(ctx context.Context, video *model.Video) error

	// GetByID retrieves a video by its unique identifier.
	// Returns nil and ErrVideoNotFound if the video does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*model.Video, error)

	// GetByOwnerID retrieves all videos belonging to an owner, newest first.
	// Returns empty slice if no videos exist for the owner.
	GetByOwnerID(ctx context.Context, ownerID uuid.UUID) ([]*model.Video, error)

	// Update persists metadata changes to an existing video entity.
	// Returns ErrVideoNotFound if the video does not exist.
	Update(ctx context.Context, video *model.Video) error

	// TransitionStatus moves a video from one status to another.
	// Returns ErrStaleStatus if the video is no longer in the expected state.
	TransitionStatus(ctx context.Context, id uuid.UUID, from, to model.Status) error

	// SetProbeResult persists probe-derived metadata during processing.
	SetProbeResult(ctx context.Context, id uuid.UUID, duration float64, res model.Resolution) error

	// MarkReady moves a processing video to ready and records the playlist
	// and thumbnail keys. Returns ErrStaleStatus if the video left processing.
	MarkReady(ctx context.Context, id uuid.UUID, masterPlaylist, thumbnailPath string) error

	// MarkFailed moves a video from a non-terminal state to failed and
	// records the processing error. Returns ErrStaleStatus if the video
	// already reached a terminal state.
	MarkFailed(ctx context.Context, id uuid.UUID, processingError string) error

	// IncrementViews bumps the view counter by one.
	IncrementViews(ctx context.Context, id uuid.UUID) error

	// Delete removes the video record.
	// Returns ErrVideoNotFound if the video does not exist.
	Delete(ctx context.Context, id uuid.UUID) error

	// FailStuckProcessing marks videos stuck in processing longer than the
	// cutoff as failed with the given error message. Returns the IDs of the
	// videos that were swept. Used by the worker on startup.
	FailStuckProcessing(ctx context.Context, olderThan time.Duration, processingError string) ([]uuid.UUID, error)
}

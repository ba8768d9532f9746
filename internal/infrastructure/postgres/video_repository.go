package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vaultstream/vaultstream/internal/domain/model"
	"github.com/vaultstream/vaultstream/internal/domain/repository"
)

// DBTX is an interface that abstracts pgxpool.Pool and pgx.Tx for testability.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// VideoRepository implements repository.VideoRepository using PostgreSQL.
type VideoRepository struct {
	db DBTX
}

// Compile-time verification that VideoRepository implements repository.VideoRepository.
var _ repository.VideoRepository = (*VideoRepository)(nil)

// NewVideoRepository creates a new VideoRepository instance.
func NewVideoRepository(db DBTX) *VideoRepository {
	return &VideoRepository{db: db}
}

const videoColumns = `id, owner_id, title, description, visibility, passphrase_hash,
		storage_path, hls_path, master_playlist, thumbnail_path,
		duration, width, height, file_size, mime_type, original_filename,
		status, processing_error, views, created_at, updated_at`

// Create persists a new video entity.
func (r *VideoRepository) Create(ctx context.Context, video *model.Video) error {
	const query = `
		INSERT INTO videos (id, owner_id, title, description, visibility, passphrase_hash,
			storage_path, hls_path, master_playlist, thumbnail_path,
			duration, width, height, file_size, mime_type, original_filename,
			status, processing_error, views, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
	`

	_, err := r.db.Exec(ctx, query,
		video.ID,
		video.OwnerID,
		video.Title,
		video.Description,
		video.Visibility.String(),
		nullString(video.PassphraseHash),
		nullString(video.StoragePath),
		nullString(video.HLSPath),
		nullString(video.MasterPlaylist),
		nullString(video.ThumbnailPath),
		video.Duration,
		video.Resolution.Width,
		video.Resolution.Height,
		video.FileSize,
		nullString(video.MimeType),
		nullString(video.OriginalFilename),
		video.Status.String(),
		nullString(video.ProcessingError),
		video.Views,
		video.CreatedAt,
		video.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return repository.ErrDuplicateVideo
		}
		return fmt.Errorf("failed to create video: %w", err)
	}

	return nil
}

// GetByID retrieves a video by its unique identifier.
func (r *VideoRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Video, error) {
	query := `SELECT ` + videoColumns + ` FROM videos WHERE id = $1`

	video, err := scanVideo(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrVideoNotFound
		}
		return nil, fmt.Errorf("failed to get video by ID: %w", err)
	}

	return video, nil
}

// GetByOwnerID retrieves all videos belonging to an owner, newest first.
func (r *VideoRepository) GetByOwnerID(ctx context.Context, ownerID uuid.UUID) ([]*model.Video, error) {
	query := `SELECT ` + videoColumns + ` FROM videos WHERE owner_id = $1 ORDER BY created_at DESC`

	rows, err := r.db.Query(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query videos by owner ID: %w", err)
	}
	defer rows.Close()

	var videos []*model.Video
	for rows.Next() {
		video, err := scanVideo(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan video: %w", err)
		}
		videos = append(videos, video)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating videos: %w", err)
	}

	return videos, nil
}

// Update persists metadata changes to an existing video entity.
// Status is deliberately excluded; status moves only through the guarded
// transition methods.
func (r *VideoRepository) Update(ctx context.Context, video *model.Video) error {
	const query = `
		UPDATE videos
		SET title = $2, description = $3, visibility = $4, passphrase_hash = $5,
			storage_path = $6, hls_path = $7, file_size = $8, mime_type = $9,
			original_filename = $10, updated_at = $11
		WHERE id = $1
	`

	video.UpdatedAt = time.Now()

	tag, err := r.db.Exec(ctx, query,
		video.ID,
		video.Title,
		video.Description,
		video.Visibility.String(),
		nullString(video.PassphraseHash),
		nullString(video.StoragePath),
		nullString(video.HLSPath),
		video.FileSize,
		nullString(video.MimeType),
		nullString(video.OriginalFilename),
		video.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update video: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return repository.ErrVideoNotFound
	}

	return nil
}

// TransitionStatus moves a video between states with a compare-and-set on
// the current status, so concurrent writers serialize and terminal states
// never regress.
func (r *VideoRepository) TransitionStatus(ctx context.Context, id uuid.UUID, from, to model.Status) error {
	if !from.CanTransitionTo(to) {
		return model.ErrInvalidTransition
	}

	const query = `
		UPDATE videos
		SET status = $3, updated_at = $4
		WHERE id = $1 AND status = $2
	`

	tag, err := r.db.Exec(ctx, query, id, from.String(), to.String(), time.Now())
	if err != nil {
		return fmt.Errorf("failed to transition video status: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return r.staleOrMissing(ctx, id)
	}

	return nil
}

// SetProbeResult persists probe-derived metadata during processing.
func (r *VideoRepository) SetProbeResult(ctx context.Context, id uuid.UUID, duration float64, res model.Resolution) error {
	const query = `
		UPDATE videos
		SET duration = $2, width = $3, height = $4, updated_at = $5
		WHERE id = $1
	`

	tag, err := r.db.Exec(ctx, query, id, duration, res.Width, res.Height, time.Now())
	if err != nil {
		return fmt.Errorf("failed to set probe result: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return repository.ErrVideoNotFound
	}

	return nil
}

// MarkReady moves a processing video to ready and records the playlist and
// thumbnail keys.
func (r *VideoRepository) MarkReady(ctx context.Context, id uuid.UUID, masterPlaylist, thumbnailPath string) error {
	const query = `
		UPDATE videos
		SET status = $2, master_playlist = $3, thumbnail_path = $4, processing_error = NULL, updated_at = $5
		WHERE id = $1 AND status = $6
	`

	tag, err := r.db.Exec(ctx, query,
		id,
		model.StatusReady.String(),
		masterPlaylist,
		nullString(thumbnailPath),
		time.Now(),
		model.StatusProcessing.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to mark video ready: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return r.staleOrMissing(ctx, id)
	}

	return nil
}

// MarkFailed moves a video from any non-terminal state to failed.
func (r *VideoRepository) MarkFailed(ctx context.Context, id uuid.UUID, processingError string) error {
	const query = `
		UPDATE videos
		SET status = $2, processing_error = $3, updated_at = $4
		WHERE id = $1 AND status NOT IN ($5, $6)
	`

	tag, err := r.db.Exec(ctx, query,
		id,
		model.StatusFailed.String(),
		processingError,
		time.Now(),
		model.StatusReady.String(),
		model.StatusFailed.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to mark video failed: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return r.staleOrMissing(ctx, id)
	}

	return nil
}

// IncrementViews bumps the view counter by one.
func (r *VideoRepository) IncrementViews(ctx context.Context, id uuid.UUID) error {
	const query = `UPDATE videos SET views = views + 1 WHERE id = $1`

	tag, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to increment views: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return repository.ErrVideoNotFound
	}

	return nil
}

// Delete removes the video record.
func (r *VideoRepository) Delete(ctx context.Context, id uuid.UUID) error {
	const query = `DELETE FROM videos WHERE id = $1`

	tag, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete video: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return repository.ErrVideoNotFound
	}

	return nil
}

// FailStuckProcessing sweeps videos abandoned mid-pipeline (e.g. by a
// worker crash) into the failed state.
func (r *VideoRepository) FailStuckProcessing(ctx context.Context, olderThan time.Duration, processingError string) ([]uuid.UUID, error) {
	const query = `
		UPDATE videos
		SET status = $1, processing_error = $2, updated_at = $3
		WHERE status = $4 AND updated_at < $5
		RETURNING id
	`

	now := time.Now()
	rows, err := r.db.Query(ctx, query,
		model.StatusFailed.String(),
		processingError,
		now,
		model.StatusProcessing.String(),
		now.Add(-olderThan),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to sweep stuck videos: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan swept video ID: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating swept videos: %w", err)
	}

	return ids, nil
}

// staleOrMissing distinguishes a guarded write that matched no row because
// the video is gone from one that lost a status race.
func (r *VideoRepository) staleOrMissing(ctx context.Context, id uuid.UUID) error {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM videos WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check video existence: %w", err)
	}
	if !exists {
		return repository.ErrVideoNotFound
	}
	return repository.ErrStaleStatus
}

// scanVideo scans a row into a Video model.
func scanVideo(row pgx.Row) (*model.Video, error) {
	var (
		video            model.Video
		visibility       string
		status           string
		passphraseHash   *string
		storagePath      *string
		hlsPath          *string
		masterPlaylist   *string
		thumbnailPath    *string
		mimeType         *string
		originalFilename *string
		processingError  *string
	)

	err := row.Scan(
		&video.ID,
		&video.OwnerID,
		&video.Title,
		&video.Description,
		&visibility,
		&passphraseHash,
		&storagePath,
		&hlsPath,
		&masterPlaylist,
		&thumbnailPath,
		&video.Duration,
		&video.Resolution.Width,
		&video.Resolution.Height,
		&video.FileSize,
		&mimeType,
		&originalFilename,
		&status,
		&processingError,
		&video.Views,
		&video.CreatedAt,
		&video.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	video.Visibility = model.Visibility(visibility)
	video.Status = model.Status(status)
	video.PassphraseHash = deref(passphraseHash)
	video.StoragePath = deref(storagePath)
	video.HLSPath = deref(hlsPath)
	video.MasterPlaylist = deref(masterPlaylist)
	video.ThumbnailPath = deref(thumbnailPath)
	video.MimeType = deref(mimeType)
	video.OriginalFilename = deref(originalFilename)
	video.ProcessingError = deref(processingError)

	return &video, nil
}

// nullString returns nil for empty strings, otherwise a pointer to the string.
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

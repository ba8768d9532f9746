package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/vaultstream/vaultstream/internal/domain/model"
	"github.com/vaultstream/vaultstream/internal/domain/repository"
	"github.com/vaultstream/vaultstream/internal/infrastructure/metrics"
	"github.com/vaultstream/vaultstream/internal/passphrase"
	"github.com/vaultstream/vaultstream/internal/signer"
)

var (
	// ErrVideoNotReady is returned when playback is requested before the
	// pipeline has finished (or after it failed).
	ErrVideoNotReady = errors.New("video is not ready for playback")

	// ErrAccessDenied is returned when a private video is requested by a
	// non-owner.
	ErrAccessDenied = errors.New("access denied")

	// ErrPassphraseRequired is returned when the video is passphrase-gated
	// and none was supplied. Clients use this to prompt.
	ErrPassphraseRequired = errors.New("passphrase required")

	// ErrInvalidPassphrase is returned when the supplied passphrase does
	// not match.
	ErrInvalidPassphrase = errors.New("invalid passphrase")
)

// MasterPlaylistResource is the resource name bound into entry tokens.
const MasterPlaylistResource = "master.m3u8"

// AccessGrant is the successful result of the access gate: a time-limited
// playback capability plus the metadata safe to disclose.
type AccessGrant struct {
	StreamURL     string
	Title         string
	Description   string
	Duration      float64
	Resolution    model.Resolution
	ThumbnailPath string
	Views         int64
	CreatedAt     time.Time
}

// AccessService is the gate in front of the HLS server. It converts a
// one-shot visibility + passphrase check into a time-limited capability:
// the master-playlist token, from which all child tokens descend.
type AccessService interface {
	// RequestAccess enforces visibility and passphrase and, on success,
	// mints a master-playlist token. requesterID is nil for anonymous
	// requests; pass is nil when no passphrase was supplied.
	RequestAccess(ctx context.Context, videoID uuid.UUID, requesterID *uuid.UUID, pass *string) (*AccessGrant, error)
}

type accessService struct {
	videos VideoService
	repo   repository.VideoRepository
	signer *signer.Signer
	hasher *passphrase.Hasher
	logger *slog.Logger
}

// NewAccessService creates a new AccessService instance. Lookups go through
// the (possibly cached) VideoService; the repository is used only for the
// view counter.
func NewAccessService(
	videos VideoService,
	repo repository.VideoRepository,
	sgn *signer.Signer,
	hasher *passphrase.Hasher,
	logger *slog.Logger,
) AccessService {
	if logger == nil {
		logger = slog.Default()
	}
	return &accessService{
		videos: videos,
		repo:   repo,
		signer: sgn,
		hasher: hasher,
		logger: logger,
	}
}

// RequestAccess applies the gate checks in a fixed order: existence,
// readiness, visibility, passphrase.
func (s *accessService) RequestAccess(ctx context.Context, videoID uuid.UUID, requesterID *uuid.UUID, pass *string) (*AccessGrant, error) {
	video, err := s.videos.GetVideo(ctx, videoID)
	if err != nil {
		if errors.Is(err, repository.ErrVideoNotFound) {
			metrics.AccessRequestsTotal.WithLabelValues(metrics.AccessNotFound).Inc()
		}
		return nil, err
	}

	if !video.IsReady() {
		metrics.AccessRequestsTotal.WithLabelValues(metrics.AccessNotReady).Inc()
		return nil, fmt.Errorf("%w: status is %s", ErrVideoNotReady, video.Status)
	}

	// unlisted and public behave identically here; they differ only in
	// whether the ID shows up in listing surfaces.
	if video.Visibility == model.VisibilityPrivate {
		if requesterID == nil || *requesterID != video.OwnerID {
			metrics.AccessRequestsTotal.WithLabelValues(metrics.AccessDenied).Inc()
			return nil, ErrAccessDenied
		}
	}

	if video.RequiresPassphrase() {
		if pass == nil {
			metrics.AccessRequestsTotal.WithLabelValues(metrics.AccessPassphraseRequired).Inc()
			return nil, ErrPassphraseRequired
		}
		if err := s.hasher.Verify(video.PassphraseHash, *pass); err != nil {
			if errors.Is(err, passphrase.ErrMismatch) {
				// Log the event, never the attempted passphrase.
				s.logger.Info("passphrase verification failed",
					slog.String("video_id", videoID.String()),
				)
				metrics.AccessRequestsTotal.WithLabelValues(metrics.AccessInvalidPassphrase).Inc()
				return nil, ErrInvalidPassphrase
			}
			return nil, err
		}
	}

	token, err := s.signer.Mint(videoID, MasterPlaylistResource, requesterID, 0)
	if err != nil {
		return nil, fmt.Errorf("mint master token: %w", err)
	}

	if err := s.repo.IncrementViews(ctx, videoID); err != nil {
		// View counting is bookkeeping; never block playback on it.
		s.logger.Warn("failed to increment views",
			slog.String("video_id", videoID.String()),
			slog.String("error", err.Error()),
		)
	}

	metrics.AccessRequestsTotal.WithLabelValues(metrics.AccessGranted).Inc()
	return &AccessGrant{
		StreamURL:     fmt.Sprintf("/stream/%s/%s?token=%s", videoID, MasterPlaylistResource, token),
		Title:         video.Title,
		Description:   video.Description,
		Duration:      video.Duration,
		Resolution:    video.Resolution,
		ThumbnailPath: video.ThumbnailPath,
		Views:         video.Views,
		CreatedAt:     video.CreatedAt,
	}, nil
}

package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/vaultstream/vaultstream/internal/domain/model"
	"github.com/vaultstream/vaultstream/internal/domain/repository"
	"github.com/vaultstream/vaultstream/internal/infrastructure/cache"
	"github.com/vaultstream/vaultstream/internal/infrastructure/metrics"
	"github.com/vaultstream/vaultstream/internal/transcoder"
)

// thumbnailOffsetFraction places the thumbnail capture at 10% of duration.
const thumbnailOffsetFraction = 0.10

// PipelineServiceConfig holds configuration for PipelineService.
type PipelineServiceConfig struct {
	// TempDir is the base directory for per-video working directories.
	TempDir string
}

// PipelineService drives a video through the transcoding state machine:
// uploading -> processing -> ready|failed.
type PipelineService interface {
	// ProcessTask handles one pipeline task. Every exit leaves the video in
	// a terminal state (ready or failed); a nil return means the message
	// can be acked regardless of outcome.
	ProcessTask(ctx context.Context, task repository.PipelineTask) error

	// SweepStuckProcessing marks videos abandoned mid-pipeline as failed.
	// Called once on worker startup.
	SweepStuckProcessing(ctx context.Context, olderThan time.Duration) error
}

type pipelineService struct {
	repo       repository.VideoRepository
	storage    repository.BlobStorage
	transcoder transcoder.Transcoder
	videoCache cache.VideoCache
	logger     *slog.Logger

	tempDir string
}

// NewPipelineService creates a new PipelineService instance.
// videoCache may be nil when no cache invalidation is needed.
func NewPipelineService(
	repo repository.VideoRepository,
	storage repository.BlobStorage,
	tc transcoder.Transcoder,
	videoCache cache.VideoCache,
	logger *slog.Logger,
	cfg PipelineServiceConfig,
) PipelineService {
	if logger == nil {
		logger = slog.Default()
	}
	tempDir := cfg.TempDir
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	return &pipelineService{
		repo:       repo,
		storage:    storage,
		transcoder: tc,
		videoCache: videoCache,
		logger:     logger,
		tempDir:    tempDir,
	}
}

// ProcessTask runs the full pipeline for one video.
func (s *pipelineService) ProcessTask(ctx context.Context, task repository.PipelineTask) error {
	logger := s.logger.With(slog.String("video_id", task.VideoID.String()))
	start := time.Now()

	if err := s.repo.TransitionStatus(ctx, task.VideoID, model.StatusUploading, model.StatusProcessing); err != nil {
		if errors.Is(err, repository.ErrStaleStatus) {
			// Redelivered task for a video that already moved on; nothing to do.
			logger.Warn("skipping task, video is not awaiting processing")
			return nil
		}
		if errors.Is(err, repository.ErrVideoNotFound) {
			logger.Warn("skipping task, video no longer exists")
			return nil
		}
		return fmt.Errorf("transition to processing: %w", err)
	}
	s.invalidateCache(ctx, task.VideoID)

	masterKey, thumbKey, err := s.run(ctx, task, logger)
	if err != nil {
		logger.Error("pipeline failed", slog.String("error", err.Error()))
		s.fail(ctx, task.VideoID, err, logger)
		metrics.PipelineRunsTotal.WithLabelValues(metrics.OutcomeFailed).Inc()
		metrics.PipelineDurationSeconds.Observe(time.Since(start).Seconds())
		return nil
	}

	if err := s.repo.MarkReady(ctx, task.VideoID, masterKey, thumbKey); err != nil {
		return fmt.Errorf("mark video ready: %w", err)
	}
	s.invalidateCache(ctx, task.VideoID)

	metrics.PipelineRunsTotal.WithLabelValues(metrics.OutcomeReady).Inc()
	metrics.PipelineDurationSeconds.Observe(time.Since(start).Seconds())
	logger.Info("pipeline completed",
		slog.String("master_playlist", masterKey),
		slog.Duration("elapsed", time.Since(start)),
	)
	return nil
}

// run executes probe, encode, manifest, thumbnail, and publish. It returns
// the storage keys of the master playlist and thumbnail (empty if absent).
func (s *pipelineService) run(ctx context.Context, task repository.PipelineTask, logger *slog.Logger) (string, string, error) {
	workDir := filepath.Join(s.tempDir, task.VideoID.String())
	if err := os.MkdirAll(workDir, 0755); err != nil {
		return "", "", fmt.Errorf("create work directory: %w", err)
	}
	defer func() { _ = os.RemoveAll(workDir) }()

	inputPath, release, err := s.storage.Resolve(ctx, task.SourceKey)
	if err != nil {
		return "", "", fmt.Errorf("resolve source blob: %w", err)
	}
	defer release()

	probe, err := s.transcoder.Probe(ctx, inputPath)
	if err != nil {
		return "", "", fmt.Errorf("probe source: %w", err)
	}
	if err := s.repo.SetProbeResult(ctx, task.VideoID, probe.Duration, model.Resolution{
		Width:  probe.Width,
		Height: probe.Height,
	}); err != nil {
		return "", "", fmt.Errorf("persist probe result: %w", err)
	}

	ladder := transcoder.BuildLadder(probe.Height)
	logger.Info("derived quality ladder",
		slog.Int("source_height", probe.Height),
		slog.Int("renditions", len(ladder)),
	)

	outDir := filepath.Join(workDir, "hls")
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return "", "", fmt.Errorf("create output directory: %w", err)
	}

	outputs, err := s.transcoder.EncodeLadder(ctx, inputPath, outDir, ladder)
	if err != nil {
		return "", "", fmt.Errorf("encode ladder: %w", err)
	}
	s.recordRenditionMetrics(ladder, outputs)

	succeeded := make([]transcoder.Rendition, 0, len(outputs))
	for _, out := range outputs {
		succeeded = append(succeeded, out.Rendition)
	}
	if _, err := s.transcoder.WriteMasterPlaylist(outDir, succeeded); err != nil {
		return "", "", fmt.Errorf("write master playlist: %w", err)
	}

	// Thumbnail failure never fails the pipeline.
	thumbPath := filepath.Join(outDir, "thumbnail.jpg")
	haveThumb := true
	if err := s.transcoder.Thumbnail(ctx, inputPath, thumbPath, probe.Duration*thumbnailOffsetFraction); err != nil {
		logger.Warn("thumbnail generation failed", slog.String("error", err.Error()))
		haveThumb = false
	}

	if err := s.uploadHLSTree(ctx, outDir, task.HLSPrefix); err != nil {
		return "", "", fmt.Errorf("upload HLS tree: %w", err)
	}

	masterKey := path.Join(task.HLSPrefix, "master.m3u8")
	thumbKey := ""
	if haveThumb {
		thumbKey = path.Join(task.HLSPrefix, "thumbnail.jpg")
	}
	return masterKey, thumbKey, nil
}

// uploadHLSTree uploads every file produced in the output directory.
func (s *pipelineService) uploadHLSTree(ctx context.Context, outDir, prefix string) error {
	entries, err := os.ReadDir(outDir)
	if err != nil {
		return fmt.Errorf("read output directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if err := s.uploadFile(ctx, filepath.Join(outDir, name), path.Join(prefix, name), contentTypeFor(name)); err != nil {
			return fmt.Errorf("upload %s: %w", name, err)
		}
	}
	return nil
}

// uploadFile streams a single file into blob storage.
func (s *pipelineService) uploadFile(ctx context.Context, localPath, key, contentType string) error {
	file, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	info, err := file.Stat()
	if err != nil {
		return fmt.Errorf("stat file: %w", err)
	}

	if err := s.storage.Upload(ctx, key, file, info.Size(), contentType); err != nil {
		return fmt.Errorf("storage upload: %w", err)
	}
	return nil
}

func contentTypeFor(name string) string {
	switch path.Ext(name) {
	case ".m3u8":
		return "application/vnd.apple.mpegurl"
	case ".ts":
		return "video/mp2t"
	case ".jpg":
		return "image/jpeg"
	default:
		return "application/octet-stream"
	}
}

// fail moves the video to failed with the pipeline error message.
func (s *pipelineService) fail(ctx context.Context, videoID uuid.UUID, cause error, logger *slog.Logger) {
	if err := s.repo.MarkFailed(ctx, videoID, cause.Error()); err != nil {
		logger.Error("failed to mark video failed",
			slog.String("error", err.Error()),
		)
		return
	}
	s.invalidateCache(ctx, videoID)
}

func (s *pipelineService) recordRenditionMetrics(ladder []transcoder.Rendition, outputs []transcoder.RenditionOutput) {
	produced := make(map[string]bool, len(outputs))
	for _, out := range outputs {
		produced[out.Rendition.Name] = true
	}
	for _, r := range ladder {
		outcome := metrics.RenditionFailure
		if produced[r.Name] {
			outcome = metrics.RenditionSuccess
		}
		metrics.RenditionsTotal.WithLabelValues(r.Name, outcome).Inc()
	}
}

func (s *pipelineService) invalidateCache(ctx context.Context, videoID uuid.UUID) {
	if s.videoCache == nil {
		return
	}
	if err := s.videoCache.Delete(ctx, videoID); err != nil {
		s.logger.Warn("failed to invalidate video cache",
			slog.String("video_id", videoID.String()),
			slog.String("error", err.Error()),
		)
	}
}

// SweepStuckProcessing fails videos abandoned mid-pipeline, e.g. by a
// worker crash. Requeueing instead was considered and rejected: it would
// need dedup against live deliveries.
func (s *pipelineService) SweepStuckProcessing(ctx context.Context, olderThan time.Duration) error {
	ids, err := s.repo.FailStuckProcessing(ctx, olderThan, "processing interrupted by worker restart")
	if err != nil {
		return fmt.Errorf("sweep stuck videos: %w", err)
	}
	for _, id := range ids {
		s.invalidateCache(ctx, id)
		s.logger.Warn("marked stuck video as failed", slog.String("video_id", id.String()))
	}
	return nil
}

package usecase

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/vaultstream/vaultstream/internal/domain/model"
	"github.com/vaultstream/vaultstream/internal/domain/repository"
	"github.com/vaultstream/vaultstream/internal/transcoder"
)

// mockVideoRepository provides a configurable mock for VideoRepository.
type mockVideoRepository struct {
	createFn              func(ctx context.Context, video *model.Video) error
	getByIDFn             func(ctx context.Context, id uuid.UUID) (*model.Video, error)
	getByOwnerIDFn        func(ctx context.Context, ownerID uuid.UUID) ([]*model.Video, error)
	updateFn              func(ctx context.Context, video *model.Video) error
	transitionStatusFn    func(ctx context.Context, id uuid.UUID, from, to model.Status) error
	setProbeResultFn      func(ctx context.Context, id uuid.UUID, duration float64, res model.Resolution) error
	markReadyFn           func(ctx context.Context, id uuid.UUID, masterPlaylist, thumbnailPath string) error
	markFailedFn          func(ctx context.Context, id uuid.UUID, processingError string) error
	incrementViewsFn      func(ctx context.Context, id uuid.UUID) error
	deleteFn              func(ctx context.Context, id uuid.UUID) error
	failStuckProcessingFn func(ctx context.Context, olderThan time.Duration, processingError string) ([]uuid.UUID, error)
}

func (m *mockVideoRepository) Create(ctx context.Context, video *model.Video) error {
	if m.createFn != nil {
		return m.createFn(ctx, video)
	}
	return nil
}

func (m *mockVideoRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Video, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, repository.ErrVideoNotFound
}

func (m *mockVideoRepository) GetByOwnerID(ctx context.Context, ownerID uuid.UUID) ([]*model.Video, error) {
	if m.getByOwnerIDFn != nil {
		return m.getByOwnerIDFn(ctx, ownerID)
	}
	return nil, nil
}

func (m *mockVideoRepository) Update(ctx context.Context, video *model.Video) error {
	if m.updateFn != nil {
		return m.updateFn(ctx, video)
	}
	return nil
}

func (m *mockVideoRepository) TransitionStatus(ctx context.Context, id uuid.UUID, from, to model.Status) error {
	if m.transitionStatusFn != nil {
		return m.transitionStatusFn(ctx, id, from, to)
	}
	return nil
}

func (m *mockVideoRepository) SetProbeResult(ctx context.Context, id uuid.UUID, duration float64, res model.Resolution) error {
	if m.setProbeResultFn != nil {
		return m.setProbeResultFn(ctx, id, duration, res)
	}
	return nil
}

func (m *mockVideoRepository) MarkReady(ctx context.Context, id uuid.UUID, masterPlaylist, thumbnailPath string) error {
	if m.markReadyFn != nil {
		return m.markReadyFn(ctx, id, masterPlaylist, thumbnailPath)
	}
	return nil
}

func (m *mockVideoRepository) MarkFailed(ctx context.Context, id uuid.UUID, processingError string) error {
	if m.markFailedFn != nil {
		return m.markFailedFn(ctx, id, processingError)
	}
	return nil
}

func (m *mockVideoRepository) IncrementViews(ctx context.Context, id uuid.UUID) error {
	if m.incrementViewsFn != nil {
		return m.incrementViewsFn(ctx, id)
	}
	return nil
}

func (m *mockVideoRepository) Delete(ctx context.Context, id uuid.UUID) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, id)
	}
	return nil
}

func (m *mockVideoRepository) FailStuckProcessing(ctx context.Context, olderThan time.Duration, processingError string) ([]uuid.UUID, error) {
	if m.failStuckProcessingFn != nil {
		return m.failStuckProcessingFn(ctx, olderThan, processingError)
	}
	return nil, nil
}

// mockBlobStorage provides a configurable mock for BlobStorage.
type mockBlobStorage struct {
	uploadFn          func(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error
	downloadFn        func(ctx context.Context, key string) ([]byte, error)
	downloadStreamFn  func(ctx context.Context, key string) (io.ReadCloser, error)
	deleteFn          func(ctx context.Context, key string) error
	existsFn          func(ctx context.Context, key string) (bool, error)
	resolveFn         func(ctx context.Context, key string) (string, func(), error)
	deleteDirectoryFn func(ctx context.Context, prefix string) error
}

func (m *mockBlobStorage) Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error {
	if m.uploadFn != nil {
		return m.uploadFn(ctx, key, reader, size, contentType)
	}
	return nil
}

func (m *mockBlobStorage) Download(ctx context.Context, key string) ([]byte, error) {
	if m.downloadFn != nil {
		return m.downloadFn(ctx, key)
	}
	return nil, repository.ErrObjectNotFound
}

func (m *mockBlobStorage) DownloadStream(ctx context.Context, key string) (io.ReadCloser, error) {
	if m.downloadStreamFn != nil {
		return m.downloadStreamFn(ctx, key)
	}
	return nil, repository.ErrObjectNotFound
}

func (m *mockBlobStorage) Delete(ctx context.Context, key string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, key)
	}
	return nil
}

func (m *mockBlobStorage) Exists(ctx context.Context, key string) (bool, error) {
	if m.existsFn != nil {
		return m.existsFn(ctx, key)
	}
	return false, nil
}

func (m *mockBlobStorage) Resolve(ctx context.Context, key string) (string, func(), error) {
	if m.resolveFn != nil {
		return m.resolveFn(ctx, key)
	}
	return "", func() {}, repository.ErrObjectNotFound
}

func (m *mockBlobStorage) DeleteDirectory(ctx context.Context, prefix string) error {
	if m.deleteDirectoryFn != nil {
		return m.deleteDirectoryFn(ctx, prefix)
	}
	return nil
}

// mockMoverStorage adds the BlobMover capability on top of mockBlobStorage.
type mockMoverStorage struct {
	mockBlobStorage
	moveInFn func(ctx context.Context, localPath, key string) error
}

func (m *mockMoverStorage) MoveIn(ctx context.Context, localPath, key string) error {
	if m.moveInFn != nil {
		return m.moveInFn(ctx, localPath, key)
	}
	return nil
}

// mockMessageQueue provides a configurable mock for MessageQueue.
type mockMessageQueue struct {
	publishPipelineTaskFn  func(ctx context.Context, task repository.PipelineTask) error
	consumePipelineTasksFn func(ctx context.Context, handler func(task repository.PipelineTask) error) error
}

func (m *mockMessageQueue) PublishPipelineTask(ctx context.Context, task repository.PipelineTask) error {
	if m.publishPipelineTaskFn != nil {
		return m.publishPipelineTaskFn(ctx, task)
	}
	return nil
}

func (m *mockMessageQueue) ConsumePipelineTasks(ctx context.Context, handler func(task repository.PipelineTask) error) error {
	if m.consumePipelineTasksFn != nil {
		return m.consumePipelineTasksFn(ctx, handler)
	}
	return nil
}

func (m *mockMessageQueue) Close() error {
	return nil
}

// mockTranscoder provides a configurable mock for Transcoder.
type mockTranscoder struct {
	probeFn               func(ctx context.Context, inputPath string) (*transcoder.ProbeResult, error)
	encodeLadderFn        func(ctx context.Context, inputPath, outputDir string, ladder []transcoder.Rendition) ([]transcoder.RenditionOutput, error)
	writeMasterPlaylistFn func(outputDir string, renditions []transcoder.Rendition) (string, error)
	thumbnailFn           func(ctx context.Context, inputPath, outputPath string, atSeconds float64) error
}

func (m *mockTranscoder) Probe(ctx context.Context, inputPath string) (*transcoder.ProbeResult, error) {
	if m.probeFn != nil {
		return m.probeFn(ctx, inputPath)
	}
	return &transcoder.ProbeResult{Duration: 10, Width: 1280, Height: 720}, nil
}

func (m *mockTranscoder) EncodeLadder(ctx context.Context, inputPath, outputDir string, ladder []transcoder.Rendition) ([]transcoder.RenditionOutput, error) {
	if m.encodeLadderFn != nil {
		return m.encodeLadderFn(ctx, inputPath, outputDir, ladder)
	}
	outputs := make([]transcoder.RenditionOutput, 0, len(ladder))
	for _, r := range ladder {
		outputs = append(outputs, transcoder.RenditionOutput{Rendition: r})
	}
	return outputs, nil
}

func (m *mockTranscoder) WriteMasterPlaylist(outputDir string, renditions []transcoder.Rendition) (string, error) {
	if m.writeMasterPlaylistFn != nil {
		return m.writeMasterPlaylistFn(outputDir, renditions)
	}
	return outputDir + "/master.m3u8", nil
}

func (m *mockTranscoder) Thumbnail(ctx context.Context, inputPath, outputPath string, atSeconds float64) error {
	if m.thumbnailFn != nil {
		return m.thumbnailFn(ctx, inputPath, outputPath, atSeconds)
	}
	return nil
}

// mockVideoCache provides a configurable mock for VideoCache.
type mockVideoCache struct {
	getFn    func(ctx context.Context, videoID uuid.UUID) (*model.Video, error)
	setFn    func(ctx context.Context, video *model.Video, ttl time.Duration) error
	deleteFn func(ctx context.Context, videoID uuid.UUID) error
}

func (m *mockVideoCache) Get(ctx context.Context, videoID uuid.UUID) (*model.Video, error) {
	if m.getFn != nil {
		return m.getFn(ctx, videoID)
	}
	return nil, nil
}

func (m *mockVideoCache) Set(ctx context.Context, video *model.Video, ttl time.Duration) error {
	if m.setFn != nil {
		return m.setFn(ctx, video, ttl)
	}
	return nil
}

func (m *mockVideoCache) Delete(ctx context.Context, videoID uuid.UUID) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, videoID)
	}
	return nil
}

// mockVideoService provides a configurable mock for VideoService, used by
// the decorator and gate tests.
type mockVideoService struct {
	createUploadFn func(ctx context.Context, input CreateUploadInput) (*model.Video, error)
	ingestFn       func(ctx context.Context, videoID uuid.UUID, scratchPath string) error
	getVideoFn     func(ctx context.Context, videoID uuid.UUID) (*model.Video, error)
	listByOwnerFn  func(ctx context.Context, ownerID uuid.UUID) ([]*model.Video, error)
	updateMetaFn   func(ctx context.Context, input UpdateMetaInput) (*model.Video, error)
	deleteVideoFn  func(ctx context.Context, videoID, requesterID uuid.UUID) error
}

func (m *mockVideoService) CreateUpload(ctx context.Context, input CreateUploadInput) (*model.Video, error) {
	if m.createUploadFn != nil {
		return m.createUploadFn(ctx, input)
	}
	return nil, nil
}

func (m *mockVideoService) Ingest(ctx context.Context, videoID uuid.UUID, scratchPath string) error {
	if m.ingestFn != nil {
		return m.ingestFn(ctx, videoID, scratchPath)
	}
	return nil
}

func (m *mockVideoService) GetVideo(ctx context.Context, videoID uuid.UUID) (*model.Video, error) {
	if m.getVideoFn != nil {
		return m.getVideoFn(ctx, videoID)
	}
	return nil, repository.ErrVideoNotFound
}

func (m *mockVideoService) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]*model.Video, error) {
	if m.listByOwnerFn != nil {
		return m.listByOwnerFn(ctx, ownerID)
	}
	return nil, nil
}

func (m *mockVideoService) UpdateMeta(ctx context.Context, input UpdateMetaInput) (*model.Video, error) {
	if m.updateMetaFn != nil {
		return m.updateMetaFn(ctx, input)
	}
	return nil, nil
}

func (m *mockVideoService) DeleteVideo(ctx context.Context, videoID, requesterID uuid.UUID) error {
	if m.deleteVideoFn != nil {
		return m.deleteVideoFn(ctx, videoID, requesterID)
	}
	return nil
}

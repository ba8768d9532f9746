package handler

import (
	"context"
	"io"

	"github.com/google/uuid"

	"github.com/vaultstream/vaultstream/internal/domain/model"
	"github.com/vaultstream/vaultstream/internal/domain/repository"
	"github.com/vaultstream/vaultstream/internal/usecase"
)

// mockVideoService provides a configurable mock for usecase.VideoService.
type mockVideoService struct {
	createUploadFn func(ctx context.Context, input usecase.CreateUploadInput) (*model.Video, error)
	ingestFn       func(ctx context.Context, videoID uuid.UUID, scratchPath string) error
	getVideoFn     func(ctx context.Context, videoID uuid.UUID) (*model.Video, error)
	listByOwnerFn  func(ctx context.Context, ownerID uuid.UUID) ([]*model.Video, error)
	updateMetaFn   func(ctx context.Context, input usecase.UpdateMetaInput) (*model.Video, error)
	deleteVideoFn  func(ctx context.Context, videoID, requesterID uuid.UUID) error
}

func (m *mockVideoService) CreateUpload(ctx context.Context, input usecase.CreateUploadInput) (*model.Video, error) {
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

func (m *mockVideoService) UpdateMeta(ctx context.Context, input usecase.UpdateMetaInput) (*model.Video, error) {
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

// mockAccessService provides a configurable mock for usecase.AccessService.
type mockAccessService struct {
	requestAccessFn func(ctx context.Context, videoID uuid.UUID, requesterID *uuid.UUID, pass *string) (*usecase.AccessGrant, error)
}

func (m *mockAccessService) RequestAccess(ctx context.Context, videoID uuid.UUID, requesterID *uuid.UUID, pass *string) (*usecase.AccessGrant, error) {
	if m.requestAccessFn != nil {
		return m.requestAccessFn(ctx, videoID, requesterID, pass)
	}
	return nil, repository.ErrVideoNotFound
}

// mockBlobStorage provides a configurable mock for repository.BlobStorage.
type mockBlobStorage struct {
	downloadFn       func(ctx context.Context, key string) ([]byte, error)
	downloadStreamFn func(ctx context.Context, key string) (io.ReadCloser, error)
}

func (m *mockBlobStorage) Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error {
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

func (m *mockBlobStorage) Delete(ctx context.Context, key string) error { return nil }

func (m *mockBlobStorage) Exists(ctx context.Context, key string) (bool, error) { return false, nil }

func (m *mockBlobStorage) Resolve(ctx context.Context, key string) (string, func(), error) {
	return "", func() {}, repository.ErrObjectNotFound
}

func (m *mockBlobStorage) DeleteDirectory(ctx context.Context, prefix string) error { return nil }

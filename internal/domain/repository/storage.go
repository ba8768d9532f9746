package repository

import (
	"context"
	"io"
)

// BlobStorage defines the interface for blob storage operations.
// Keys are forward-slash-separated relative paths; implementations resolve
// them to a backend location (local filesystem, S3-compatible store).
//
// Download and DownloadStream are deliberately split: playlists are small
// and get buffered for rewriting, while segments must never be held in
// memory whole.
type BlobStorage interface {
	// Upload writes an entire blob from the reader. size may be -1 when
	// unknown. Intermediate directories are created as needed.
	Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error

	// Download performs a fully-buffered read. Only for small objects
	// (manifests). Returns ErrObjectNotFound if the blob does not exist.
	Download(ctx context.Context, key string) ([]byte, error)

	// DownloadStream performs a lazy read. Returns ErrObjectNotFound before
	// any bytes flow. The returned reader surfaces I/O errors on Read;
	// callers must propagate them and always Close.
	DownloadStream(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes a blob. Idempotent: a missing blob is not an error.
	Delete(ctx context.Context, key string) error

	// Exists checks if a blob exists.
	Exists(ctx context.Context, key string) (bool, error)

	// Resolve returns a local filesystem path for the blob that an external
	// encoder can read directly. Remote backends stage a local copy; the
	// cleanup func releases it and must always be called. The local backend
	// returns the backing path with a no-op cleanup.
	Resolve(ctx context.Context, key string) (localPath string, cleanup func(), err error)

	// DeleteDirectory recursively removes every blob under the prefix.
	// Idempotent.
	DeleteDirectory(ctx context.Context, prefix string) error
}

// BlobMover is an optional BlobStorage capability for adopting a local file
// into the store without re-reading it. Same-device backends rename; the
// caller falls back to Upload+remove when the capability is absent. The
// source file is consumed on success.
type BlobMover interface {
	MoveIn(ctx context.Context, localPath, key string) error
}

package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/vaultstream/vaultstream/internal/domain/repository"
)

// objectReader abstracts minio.Object for testability.
// *minio.Object satisfies this interface.
type objectReader interface {
	io.ReadCloser
	Stat() (minio.ObjectInfo, error)
}

// minioClient defines the interface for MinIO operations.
// This abstraction allows for easier unit testing with mocks.
type minioClient interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	GetObject(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (objectReader, error)
	RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error
	StatObject(ctx context.Context, bucketName, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
	ListObjects(ctx context.Context, bucketName string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo
}

// minioClientAdapter wraps *minio.Client to implement minioClient.
// Needed because *minio.Client.GetObject returns *minio.Object while the
// interface returns objectReader for testability.
type minioClientAdapter struct {
	client *minio.Client
}

func (a *minioClientAdapter) BucketExists(ctx context.Context, bucketName string) (bool, error) {
	return a.client.BucketExists(ctx, bucketName)
}

func (a *minioClientAdapter) PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	return a.client.PutObject(ctx, bucketName, objectName, reader, objectSize, opts)
}

func (a *minioClientAdapter) GetObject(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (objectReader, error) {
	return a.client.GetObject(ctx, bucketName, objectName, opts)
}

func (a *minioClientAdapter) RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error {
	return a.client.RemoveObject(ctx, bucketName, objectName, opts)
}

func (a *minioClientAdapter) StatObject(ctx context.Context, bucketName, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error) {
	return a.client.StatObject(ctx, bucketName, objectName, opts)
}

func (a *minioClientAdapter) ListObjects(ctx context.Context, bucketName string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo {
	return a.client.ListObjects(ctx, bucketName, opts)
}

// MinIOConfig holds configuration for the MinIO-backed blob store.
type MinIOConfig struct {
	Endpoint   string
	AccessKey  string
	SecretKey  string
	Bucket     string
	UseSSL     bool
	StagingDir string // scratch directory for Resolve staging copies
}

// MinIO implements repository.BlobStorage against an S3-compatible store.
type MinIO struct {
	client     minioClient
	bucket     string
	stagingDir string
}

// Compile-time verification that MinIO implements BlobStorage.
var _ repository.BlobStorage = (*MinIO)(nil)

// NewMinIO creates a MinIO-backed blob store. It verifies the bucket exists
// during initialization to fail fast on misconfiguration.
func NewMinIO(ctx context.Context, cfg MinIOConfig) (*MinIO, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	return newMinIOWithClient(ctx, &minioClientAdapter{client: client}, cfg.Bucket, cfg.StagingDir)
}

// newMinIOWithClient creates a MinIO store with a given minioClient
// implementation. Used for dependency injection in tests.
func newMinIOWithClient(ctx context.Context, client minioClient, bucket, stagingDir string) (*MinIO, error) {
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s", repository.ErrBucketNotFound, bucket)
	}

	if stagingDir == "" {
		stagingDir = os.TempDir()
	}
	if err := os.MkdirAll(stagingDir, 0755); err != nil {
		return nil, fmt.Errorf("create staging directory: %w", err)
	}

	return &MinIO{
		client:     client,
		bucket:     bucket,
		stagingDir: stagingDir,
	}, nil
}

// Upload writes an entire blob to the bucket.
func (m *MinIO) Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error {
	_, err := m.client.PutObject(ctx, m.bucket, key, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("failed to upload object %s: %w", key, err)
	}
	return nil
}

// Download performs a fully-buffered read. Only for small objects.
func (m *MinIO) Download(ctx context.Context, key string) ([]byte, error) {
	obj, err := m.open(ctx, key)
	if err != nil {
		return nil, err
	}
	defer func() { _ = obj.Close() }()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("failed to read object %s: %w", key, err)
	}
	return data, nil
}

// DownloadStream performs a lazy read. The object is stat-checked first so
// a missing key fails before any bytes flow.
func (m *MinIO) DownloadStream(ctx context.Context, key string) (io.ReadCloser, error) {
	return m.open(ctx, key)
}

// open returns a verified object reader for the key.
func (m *MinIO) open(ctx context.Context, key string) (objectReader, error) {
	obj, err := m.client.GetObject(ctx, m.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get object %s: %w", key, err)
	}

	// GetObject returns a lazy reader that doesn't fail until read.
	if _, err := obj.Stat(); err != nil {
		_ = obj.Close()
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, repository.ErrObjectNotFound
		}
		return nil, fmt.Errorf("failed to stat object %s: %w", key, err)
	}

	return obj, nil
}

// Delete removes a blob. Missing objects are not an error.
func (m *MinIO) Delete(ctx context.Context, key string) error {
	err := m.client.RemoveObject(ctx, m.bucket, key, minio.RemoveObjectOptions{})
	if err != nil {
		return fmt.Errorf("failed to delete object %s: %w", key, err)
	}
	return nil
}

// Exists checks if a blob exists in the bucket.
func (m *MinIO) Exists(ctx context.Context, key string) (bool, error) {
	_, err := m.client.StatObject(ctx, m.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return false, nil
		}
		return false, fmt.Errorf("failed to check object existence: %w", err)
	}
	return true, nil
}

// Resolve stages the object into a local scratch file so an external
// encoder can read it. The cleanup func removes the staging copy.
func (m *MinIO) Resolve(ctx context.Context, key string) (string, func(), error) {
	obj, err := m.open(ctx, key)
	if err != nil {
		return "", nil, err
	}
	defer func() { _ = obj.Close() }()

	staged, err := os.CreateTemp(m.stagingDir, "stage-*"+sanitizeExt(key))
	if err != nil {
		return "", nil, fmt.Errorf("create staging file: %w", err)
	}

	if _, err := io.Copy(staged, obj); err != nil {
		_ = staged.Close()
		_ = os.Remove(staged.Name())
		return "", nil, fmt.Errorf("stage object %s: %w", key, err)
	}
	if err := staged.Close(); err != nil {
		_ = os.Remove(staged.Name())
		return "", nil, fmt.Errorf("close staging file: %w", err)
	}

	path := staged.Name()
	cleanup := func() { _ = os.Remove(path) }
	return path, cleanup, nil
}

// DeleteDirectory removes every object under the prefix. Idempotent.
func (m *MinIO) DeleteDirectory(ctx context.Context, prefix string) error {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	objects := m.client.ListObjects(ctx, m.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	})

	for obj := range objects {
		if obj.Err != nil {
			return fmt.Errorf("list objects under %s: %w", prefix, obj.Err)
		}
		if err := m.client.RemoveObject(ctx, m.bucket, obj.Key, minio.RemoveObjectOptions{}); err != nil {
			return fmt.Errorf("delete object %s: %w", obj.Key, err)
		}
	}
	return nil
}

// Ping verifies the MinIO connection is alive by checking bucket access.
func (m *MinIO) Ping(ctx context.Context) error {
	if _, err := m.client.BucketExists(ctx, m.bucket); err != nil {
		return fmt.Errorf("failed to ping minio: %w", err)
	}
	return nil
}

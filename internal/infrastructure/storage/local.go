package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/vaultstream/vaultstream/internal/domain/repository"
)

// Local implements repository.BlobStorage on the local filesystem. Keys are
// forward-slash-separated and resolved under a single root directory.
type Local struct {
	root string
}

// Compile-time verification of the implemented interfaces.
var (
	_ repository.BlobStorage = (*Local)(nil)
	_ repository.BlobMover   = (*Local)(nil)
)

// NewLocal creates a filesystem-backed blob store rooted at root.
func NewLocal(root string) (*Local, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve storage root: %w", err)
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	return &Local{root: abs}, nil
}

// resolveKey maps a storage key to an absolute path under the root,
// rejecting keys that would escape it.
func (l *Local) resolveKey(key string) (string, error) {
	cleaned := path.Clean("/" + key)
	if cleaned == "/" {
		return "", fmt.Errorf("invalid storage key %q", key)
	}
	full := filepath.Join(l.root, filepath.FromSlash(cleaned))
	if !strings.HasPrefix(full, l.root+string(filepath.Separator)) {
		return "", fmt.Errorf("storage key %q escapes root", key)
	}
	return full, nil
}

// Upload writes an entire blob, creating intermediate directories as
// needed. A partial file is removed on error.
func (l *Local) Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error {
	full, err := l.resolveKey(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return fmt.Errorf("create blob directory: %w", err)
	}

	file, err := os.Create(full)
	if err != nil {
		return fmt.Errorf("create blob %s: %w", key, err)
	}

	if _, err := io.Copy(file, reader); err != nil {
		_ = file.Close()
		_ = os.Remove(full)
		return fmt.Errorf("write blob %s: %w", key, err)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(full)
		return fmt.Errorf("close blob %s: %w", key, err)
	}
	return nil
}

// Download performs a fully-buffered read. Only for small objects.
func (l *Local) Download(ctx context.Context, key string) ([]byte, error) {
	full, err := l.resolveKey(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(full)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, repository.ErrObjectNotFound
		}
		return nil, fmt.Errorf("read blob %s: %w", key, err)
	}
	return data, nil
}

// DownloadStream opens the blob for lazy reading.
func (l *Local) DownloadStream(ctx context.Context, key string) (io.ReadCloser, error) {
	full, err := l.resolveKey(key)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(full)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, repository.ErrObjectNotFound
		}
		return nil, fmt.Errorf("open blob %s: %w", key, err)
	}
	return file, nil
}

// Delete removes a blob. Missing blobs are not an error.
func (l *Local) Delete(ctx context.Context, key string) error {
	full, err := l.resolveKey(key)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete blob %s: %w", key, err)
	}
	return nil
}

// Exists checks if a blob exists.
func (l *Local) Exists(ctx context.Context, key string) (bool, error) {
	full, err := l.resolveKey(key)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(full); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("stat blob %s: %w", key, err)
	}
	return true, nil
}

// Resolve returns the backing filesystem path directly; no staging copy is
// needed for a local store.
func (l *Local) Resolve(ctx context.Context, key string) (string, func(), error) {
	full, err := l.resolveKey(key)
	if err != nil {
		return "", nil, err
	}
	if _, err := os.Stat(full); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil, repository.ErrObjectNotFound
		}
		return "", nil, fmt.Errorf("stat blob %s: %w", key, err)
	}
	return full, func() {}, nil
}

// DeleteDirectory recursively removes every blob under the prefix. Idempotent.
func (l *Local) DeleteDirectory(ctx context.Context, prefix string) error {
	full, err := l.resolveKey(prefix)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(full); err != nil {
		return fmt.Errorf("delete directory %s: %w", prefix, err)
	}
	return nil
}

// MoveIn adopts a local file into the store. Same-device moves are a
// rename; cross-device moves fall back to a streamed copy plus delete with
// partial-file cleanup. The source file is consumed on success.
func (l *Local) MoveIn(ctx context.Context, localPath, key string) error {
	full, err := l.resolveKey(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return fmt.Errorf("create blob directory: %w", err)
	}

	if err := os.Rename(localPath, full); err == nil {
		return nil
	}

	// Rename failed (typically EXDEV across devices): stream the copy.
	src, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open source file: %w", err)
	}
	defer func() { _ = src.Close() }()

	dst, err := os.Create(full)
	if err != nil {
		return fmt.Errorf("create blob %s: %w", key, err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		_ = os.Remove(full)
		return fmt.Errorf("copy into blob %s: %w", key, err)
	}
	if err := dst.Close(); err != nil {
		_ = os.Remove(full)
		return fmt.Errorf("close blob %s: %w", key, err)
	}

	return os.Remove(localPath)
}

// sanitizeExt returns the file extension of a key if it looks like a plain
// container suffix, for naming staging copies so probes can sniff by name.
func sanitizeExt(key string) string {
	ext := path.Ext(key)
	if len(ext) < 2 || len(ext) > 6 {
		return ""
	}
	for _, r := range ext[1:] {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return ""
		}
	}
	return ext
}

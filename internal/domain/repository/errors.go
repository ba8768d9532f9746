package repository

import "errors"

var (
	// ErrVideoNotFound is returned when a video cannot be found.
	ErrVideoNotFound = errors.New("video not found")

	// ErrDuplicateVideo is returned when attempting to create a video that already exists.
	ErrDuplicateVideo = errors.New("video already exists")

	// ErrObjectNotFound is returned when a blob does not exist in storage.
	ErrObjectNotFound = errors.New("object not found")

	// ErrBucketNotFound is returned when the configured bucket does not exist.
	ErrBucketNotFound = errors.New("bucket not found")

	// ErrStaleStatus is returned when a guarded status write matched no row,
	// meaning the video moved to another state (or a terminal one) concurrently.
	ErrStaleStatus = errors.New("video status changed concurrently")
)

package model

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Status represents the processing state of a video.
type Status string

const (
	StatusUploading  Status = "uploading"
	StatusProcessing Status = "processing"
	StatusReady      Status = "ready"
	StatusFailed     Status = "failed"
)

// Valid status transitions:
// uploading -> processing -> ready
//          \              \-> failed
//           \-> failed (ingest error before the pipeline starts)
var validTransitions = map[Status][]Status{
	StatusUploading:  {StatusProcessing, StatusFailed},
	StatusProcessing: {StatusReady, StatusFailed},
	StatusReady:      {},
	StatusFailed:     {},
}

func (s Status) IsValid() bool {
	switch s {
	case StatusUploading, StatusProcessing, StatusReady, StatusFailed:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the status may never change again.
func (s Status) IsTerminal() bool {
	return s == StatusReady || s == StatusFailed
}

func (s Status) CanTransitionTo(next Status) bool {
	allowed, exists := validTransitions[s]
	if !exists {
		return false
	}
	for _, status := range allowed {
		if status == next {
			return true
		}
	}
	return false
}

func (s Status) String() string {
	return string(s)
}

// Visibility is the access policy on a video.
type Visibility string

const (
	VisibilityPublic   Visibility = "public"
	VisibilityUnlisted Visibility = "unlisted"
	VisibilityPrivate  Visibility = "private"
)

func (v Visibility) IsValid() bool {
	switch v {
	case VisibilityPublic, VisibilityUnlisted, VisibilityPrivate:
		return true
	default:
		return false
	}
}

func (v Visibility) String() string {
	return string(v)
}

// Resolution is the pixel dimensions of the source video, populated from probe.
type Resolution struct {
	Width  int
	Height int
}

// Video represents a video entity in the domain.
type Video struct {
	ID               uuid.UUID
	OwnerID          uuid.UUID
	Title            string
	Description      string
	Visibility       Visibility
	PassphraseHash   string // empty means no passphrase required; never exposed
	StoragePath      string // key of the untouched source blob
	HLSPath          string // key prefix of the HLS output directory
	MasterPlaylist   string // key of master.m3u8, set on successful pipeline exit
	ThumbnailPath    string // key of thumbnail.jpg, optional
	Duration         float64
	Resolution       Resolution
	FileSize         int64
	MimeType         string
	OriginalFilename string
	Status           Status
	ProcessingError  string
	Views            int64
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

var (
	ErrEmptyTitle        = errors.New("title cannot be empty")
	ErrInvalidOwnerID    = errors.New("owner ID cannot be nil")
	ErrInvalidVisibility = errors.New("invalid visibility")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrTitleTooLong      = errors.New("title exceeds maximum length of 255 characters")
)

const maxTitleLength = 255

// NewVideo creates a new Video in the uploading state.
func NewVideo(ownerID uuid.UUID, title string, visibility Visibility) (*Video, error) {
	if ownerID == uuid.Nil {
		return nil, ErrInvalidOwnerID
	}
	if title == "" {
		return nil, ErrEmptyTitle
	}
	if len(title) > maxTitleLength {
		return nil, ErrTitleTooLong
	}
	if !visibility.IsValid() {
		return nil, ErrInvalidVisibility
	}

	now := time.Now()
	return &Video{
		ID:         uuid.New(),
		OwnerID:    ownerID,
		Title:      title,
		Visibility: visibility,
		Status:     StatusUploading,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// TransitionTo attempts to change the video status.
// Returns error if the transition is not allowed.
func (v *Video) TransitionTo(next Status) error {
	if !next.IsValid() {
		return ErrInvalidTransition
	}
	if !v.Status.CanTransitionTo(next) {
		return ErrInvalidTransition
	}
	v.Status = next
	v.UpdatedAt = time.Now()
	return nil
}

// RequiresPassphrase reports whether playback is gated behind a passphrase.
func (v *Video) RequiresPassphrase() bool {
	return v.PassphraseHash != ""
}

// IsReady returns true if the video is ready for streaming.
func (v *Video) IsReady() bool {
	return v.Status == StatusReady
}

// IsFailed returns true if the video processing failed.
func (v *Video) IsFailed() bool {
	return v.Status == StatusFailed
}

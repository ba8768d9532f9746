package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/vaultstream/vaultstream/internal/api/middleware"
	"github.com/vaultstream/vaultstream/internal/domain/model"
	"github.com/vaultstream/vaultstream/internal/domain/repository"
	"github.com/vaultstream/vaultstream/internal/usecase"
)

// maxFieldBytes bounds each non-file multipart field.
const maxFieldBytes = 8 << 10

// UploadConfig carries the upload handler's limits.
type UploadConfig struct {
	ScratchDir        string
	MaxBytes          int64
	AllowedExtensions []string
}

// Request/Response types

type UploadResponse struct {
	VideoID string `json:"video_id"`
	Status  string `json:"status"`
}

type AccessRequest struct {
	Passphrase *string `json:"passphrase"`
}

type AccessResponse struct {
	StreamURL     string  `json:"stream_url"`
	Title         string  `json:"title"`
	Description   string  `json:"description,omitempty"`
	Duration      float64 `json:"duration"`
	Width         int     `json:"width"`
	Height        int     `json:"height"`
	ThumbnailPath string  `json:"thumbnail_path,omitempty"`
	Views         int64   `json:"views"`
	CreatedAt     string  `json:"created_at"`
}

type UpdateVideoRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Visibility  *string `json:"visibility"`
	Passphrase  *string `json:"passphrase"`
}

type VideoResponse struct {
	ID                  string  `json:"id"`
	OwnerID             string  `json:"owner_id"`
	Title               string  `json:"title"`
	Description         string  `json:"description,omitempty"`
	Visibility          string  `json:"visibility"`
	Status              string  `json:"status"`
	PassphraseProtected bool    `json:"passphrase_protected"`
	Duration            float64 `json:"duration,omitempty"`
	Width               int     `json:"width,omitempty"`
	Height              int     `json:"height,omitempty"`
	FileSize            int64   `json:"file_size,omitempty"`
	OriginalFilename    string  `json:"original_filename,omitempty"`
	Views               int64   `json:"views"`
	ProcessingError     string  `json:"processing_error,omitempty"`
	CreatedAt           string  `json:"created_at"`
	UpdatedAt           string  `json:"updated_at"`
}

type ListVideosResponse struct {
	Videos []VideoResponse `json:"videos"`
}

// VideoHandler handles the JSON API for uploads, metadata, and the access gate.
type VideoHandler struct {
	videos usecase.VideoService
	access usecase.AccessService
	logger *slog.Logger

	scratchDir  string
	maxBytes    int64
	allowedExts map[string]bool
}

// NewVideoHandler creates a new VideoHandler.
func NewVideoHandler(videos usecase.VideoService, access usecase.AccessService, logger *slog.Logger, cfg UploadConfig) *VideoHandler {
	if logger == nil {
		logger = slog.Default()
	}
	exts := make(map[string]bool, len(cfg.AllowedExtensions))
	for _, ext := range cfg.AllowedExtensions {
		exts["."+strings.ToLower(strings.TrimPrefix(ext, "."))] = true
	}
	return &VideoHandler{
		videos:      videos,
		access:      access,
		logger:      logger,
		scratchDir:  cfg.ScratchDir,
		maxBytes:    cfg.MaxBytes,
		allowedExts: exts,
	}
}

// Upload handles POST /v1/videos/upload.
// The file part streams to a scratch path; the response returns as soon as
// the record exists, with ingest and transcoding continuing in the background.
func (h *VideoHandler) Upload(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := middleware.UserID(r.Context())
	if !ok {
		Error(w, http.StatusUnauthorized, CodeAuthRequired, "Authentication is required")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)
	mr, err := r.MultipartReader()
	if err != nil {
		Error(w, http.StatusBadRequest, CodeInvalidRequest, "Expected a multipart form")
		return
	}

	form, err := h.readUploadForm(mr)
	if form.scratchPath != "" {
		// The scratch file is owned by this handler until Ingest adopts it.
		defer func() {
			if form.scratchPath != "" {
				_ = os.Remove(form.scratchPath)
			}
		}()
	}
	if err != nil {
		h.uploadError(w, err)
		return
	}

	if form.title == "" {
		Error(w, http.StatusBadRequest, CodeInvalidRequest, "Title is required")
		return
	}
	visibility := model.VisibilityPublic
	if form.visibility != "" {
		visibility = model.Visibility(form.visibility)
		if !visibility.IsValid() {
			Error(w, http.StatusBadRequest, CodeInvalidRequest, "Visibility must be public, unlisted, or private")
			return
		}
	}
	if form.scratchPath == "" {
		Error(w, http.StatusBadRequest, CodeInvalidRequest, "A file part is required")
		return
	}
	if !h.allowedExts[strings.ToLower(filepath.Ext(form.filename))] {
		Error(w, http.StatusUnsupportedMediaType, CodeUnsupportedMedia, "Unsupported file extension")
		return
	}

	video, err := h.videos.CreateUpload(r.Context(), usecase.CreateUploadInput{
		OwnerID:          ownerID,
		Title:            form.title,
		Description:      form.description,
		Visibility:       visibility,
		Passphrase:       form.passphrase,
		OriginalFilename: form.filename,
		MimeType:         form.mimeType,
		FileSize:         form.size,
	})
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	// Hand the scratch file to the detached ingest; it removes the file on
	// every exit path. The request context is not used because the upload
	// response returns before ingest completes.
	scratch := form.scratchPath
	form.scratchPath = ""
	go func() {
		if err := h.videos.Ingest(context.Background(), video.ID, scratch); err != nil {
			h.logger.Error("ingest failed",
				slog.String("video_id", video.ID.String()),
				slog.String("error", err.Error()),
			)
		}
	}()

	JSON(w, http.StatusCreated, UploadResponse{
		VideoID: video.ID.String(),
		Status:  video.Status.String(),
	})
}

type uploadForm struct {
	title       string
	description string
	visibility  string
	passphrase  string
	filename    string
	mimeType    string
	size        int64
	scratchPath string
}

// readUploadForm consumes the multipart stream in order, accepting the text
// fields and the file part in any arrangement. The file streams straight to
// a scratch path and is never buffered.
func (h *VideoHandler) readUploadForm(mr *multipart.Reader) (uploadForm, error) {
	var form uploadForm
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return form, nil
		}
		if err != nil {
			return form, err
		}

		if part.FormName() == "file" {
			if form.scratchPath != "" {
				_ = part.Close()
				return form, errDuplicateFile
			}
			form.filename = filepath.Base(part.FileName())
			form.mimeType = part.Header.Get("Content-Type")
			path, size, err := h.spoolToScratch(part)
			_ = part.Close()
			if err != nil {
				return form, err
			}
			form.scratchPath = path
			form.size = size
			continue
		}

		value, err := io.ReadAll(io.LimitReader(part, maxFieldBytes))
		_ = part.Close()
		if err != nil {
			return form, err
		}
		switch part.FormName() {
		case "title":
			form.title = string(value)
		case "description":
			form.description = string(value)
		case "visibility":
			form.visibility = string(value)
		case "passphrase":
			form.passphrase = string(value)
		}
	}
}

var errDuplicateFile = errors.New("multiple file parts in upload")

// spoolToScratch streams one multipart part to a fresh scratch file. The
// partial file is removed when the copy fails.
func (h *VideoHandler) spoolToScratch(part io.Reader) (string, int64, error) {
	if err := os.MkdirAll(h.scratchDir, 0755); err != nil {
		return "", 0, fmt.Errorf("create scratch directory: %w", err)
	}
	f, err := os.CreateTemp(h.scratchDir, "upload-*")
	if err != nil {
		return "", 0, fmt.Errorf("create scratch file: %w", err)
	}

	size, err := io.Copy(f, part)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(f.Name())
		return "", 0, err
	}
	return f.Name(), size, nil
}

func (h *VideoHandler) uploadError(w http.ResponseWriter, err error) {
	var maxBytesErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxBytesErr):
		Error(w, http.StatusRequestEntityTooLarge, CodeUploadTooLarge, "Upload exceeds the maximum allowed size")
	case errors.Is(err, errDuplicateFile):
		Error(w, http.StatusBadRequest, CodeInvalidRequest, "Exactly one file part is allowed")
	default:
		h.logger.Error("upload read failed", slog.String("error", err.Error()))
		Error(w, http.StatusBadRequest, CodeInvalidRequest, "Failed to read upload")
	}
}

// Get handles GET /v1/videos/{id}.
func (h *VideoHandler) Get(w http.ResponseWriter, r *http.Request) {
	videoID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		Error(w, http.StatusBadRequest, CodeInvalidRequest, "Video ID must be a valid UUID")
		return
	}

	video, err := h.videos.GetVideo(r.Context(), videoID)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	if video.Visibility == model.VisibilityPrivate {
		requester := middleware.OptionalUserID(r.Context())
		if requester == nil || *requester != video.OwnerID {
			Error(w, http.StatusForbidden, CodeAccessDenied, "This video is private")
			return
		}
	}

	JSON(w, http.StatusOK, toVideoResponse(video))
}

// List handles GET /v1/videos, returning the caller's own videos.
func (h *VideoHandler) List(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := middleware.UserID(r.Context())
	if !ok {
		Error(w, http.StatusUnauthorized, CodeAuthRequired, "Authentication is required")
		return
	}

	videos, err := h.videos.ListByOwner(r.Context(), ownerID)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	resp := ListVideosResponse{Videos: make([]VideoResponse, 0, len(videos))}
	for _, v := range videos {
		resp.Videos = append(resp.Videos, toVideoResponse(v))
	}
	JSON(w, http.StatusOK, resp)
}

// Access handles POST /v1/videos/{id}/access: the gate that trades a
// visibility and passphrase check for a time-limited stream URL.
func (h *VideoHandler) Access(w http.ResponseWriter, r *http.Request) {
	videoID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		Error(w, http.StatusBadRequest, CodeInvalidRequest, "Video ID must be a valid UUID")
		return
	}

	var req AccessRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			Error(w, http.StatusBadRequest, CodeInvalidRequest, "Invalid JSON body")
			return
		}
	}

	grant, err := h.access.RequestAccess(r.Context(), videoID, middleware.OptionalUserID(r.Context()), req.Passphrase)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	JSON(w, http.StatusOK, AccessResponse{
		StreamURL:     grant.StreamURL,
		Title:         grant.Title,
		Description:   grant.Description,
		Duration:      grant.Duration,
		Width:         grant.Resolution.Width,
		Height:        grant.Resolution.Height,
		ThumbnailPath: grant.ThumbnailPath,
		Views:         grant.Views,
		CreatedAt:     grant.CreatedAt.Format(time.RFC3339),
	})
}

// Update handles PATCH /v1/videos/{id}.
func (h *VideoHandler) Update(w http.ResponseWriter, r *http.Request) {
	requesterID, ok := middleware.UserID(r.Context())
	if !ok {
		Error(w, http.StatusUnauthorized, CodeAuthRequired, "Authentication is required")
		return
	}

	videoID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		Error(w, http.StatusBadRequest, CodeInvalidRequest, "Video ID must be a valid UUID")
		return
	}

	var req UpdateVideoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, CodeInvalidRequest, "Invalid JSON body")
		return
	}

	input := usecase.UpdateMetaInput{
		VideoID:     videoID,
		RequesterID: requesterID,
		Title:       req.Title,
		Description: req.Description,
		Passphrase:  req.Passphrase,
	}
	if req.Visibility != nil {
		vis := model.Visibility(*req.Visibility)
		input.Visibility = &vis
	}

	video, err := h.videos.UpdateMeta(r.Context(), input)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	JSON(w, http.StatusOK, toVideoResponse(video))
}

// Delete handles DELETE /v1/videos/{id}.
func (h *VideoHandler) Delete(w http.ResponseWriter, r *http.Request) {
	requesterID, ok := middleware.UserID(r.Context())
	if !ok {
		Error(w, http.StatusUnauthorized, CodeAuthRequired, "Authentication is required")
		return
	}

	videoID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		Error(w, http.StatusBadRequest, CodeInvalidRequest, "Video ID must be a valid UUID")
		return
	}

	if err := h.videos.DeleteVideo(r.Context(), videoID, requesterID); err != nil {
		h.handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *VideoHandler) handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repository.ErrVideoNotFound):
		Error(w, http.StatusNotFound, CodeVideoNotFound, "Video not found")
	case errors.Is(err, usecase.ErrVideoNotReady):
		Error(w, http.StatusConflict, CodeVideoNotReady, "Video is not ready for playback")
	case errors.Is(err, usecase.ErrAccessDenied):
		Error(w, http.StatusForbidden, CodeAccessDenied, "Access denied")
	case errors.Is(err, usecase.ErrPassphraseRequired):
		Error(w, http.StatusUnauthorized, CodePassphraseNeeded, "A passphrase is required for this video")
	case errors.Is(err, usecase.ErrInvalidPassphrase):
		Error(w, http.StatusUnauthorized, CodeInvalidPassphrase, "Invalid passphrase")
	case errors.Is(err, usecase.ErrNotOwner):
		Error(w, http.StatusForbidden, CodeAccessDenied, "Only the owner may modify this video")
	case errors.Is(err, model.ErrEmptyTitle):
		Error(w, http.StatusBadRequest, CodeInvalidRequest, "Title cannot be empty")
	case errors.Is(err, model.ErrTitleTooLong):
		Error(w, http.StatusBadRequest, CodeInvalidRequest, "Title exceeds maximum length")
	case errors.Is(err, model.ErrInvalidVisibility):
		Error(w, http.StatusBadRequest, CodeInvalidRequest, "Visibility must be public, unlisted, or private")
	default:
		h.logger.Error("request failed", slog.String("error", err.Error()))
		Error(w, http.StatusInternalServerError, CodeInternalError, "An unexpected error occurred")
	}
}

func toVideoResponse(v *model.Video) VideoResponse {
	return VideoResponse{
		ID:                  v.ID.String(),
		OwnerID:             v.OwnerID.String(),
		Title:               v.Title,
		Description:         v.Description,
		Visibility:          v.Visibility.String(),
		Status:              v.Status.String(),
		PassphraseProtected: v.RequiresPassphrase(),
		Duration:            v.Duration,
		Width:               v.Resolution.Width,
		Height:              v.Resolution.Height,
		FileSize:            v.FileSize,
		OriginalFilename:    v.OriginalFilename,
		Views:               v.Views,
		ProcessingError:     v.ProcessingError,
		CreatedAt:           v.CreatedAt.Format(time.RFC3339),
		UpdatedAt:           v.UpdatedAt.Format(time.RFC3339),
	}
}

package handler

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"regexp"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/vaultstream/vaultstream/internal/domain/repository"
	"github.com/vaultstream/vaultstream/internal/infrastructure/metrics"
	"github.com/vaultstream/vaultstream/internal/signer"
	"github.com/vaultstream/vaultstream/internal/usecase"
)

// hlsFileName admits exactly the files the transcoder produces. Anything
// else, including traversal attempts, is rejected before touching storage.
var hlsFileName = regexp.MustCompile(`^[a-zA-Z0-9_-]+\.(m3u8|ts)$`)

// StreamHandler serves the HLS tree behind per-resource signed tokens.
// Playlists are rewritten on the fly so every child URL carries its own
// token; segments stream straight from blob storage.
type StreamHandler struct {
	videos  usecase.VideoService
	storage repository.BlobStorage
	signer  *signer.Signer
	logger  *slog.Logger
}

// NewStreamHandler creates a new StreamHandler.
func NewStreamHandler(videos usecase.VideoService, storage repository.BlobStorage, sgn *signer.Signer, logger *slog.Logger) *StreamHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &StreamHandler{
		videos:  videos,
		storage: storage,
		signer:  sgn,
		logger:  logger,
	}
}

// Serve handles GET /stream/{videoID}/{file}. Variant playlists and
// segments share the path template; dispatch is by trailing extension.
func (h *StreamHandler) Serve(w http.ResponseWriter, r *http.Request) {
	videoID, err := uuid.Parse(chi.URLParam(r, "videoID"))
	if err != nil {
		Error(w, http.StatusBadRequest, CodeInvalidRequest, "Video ID must be a valid UUID")
		return
	}
	file := chi.URLParam(r, "file")

	if !hlsFileName.MatchString(file) {
		switch {
		case strings.HasSuffix(file, ".m3u8"):
			Error(w, http.StatusBadRequest, CodeInvalidPlaylist, "Invalid playlist name")
		case strings.HasSuffix(file, ".ts"):
			Error(w, http.StatusBadRequest, CodeInvalidSegment, "Invalid segment name")
		default:
			Error(w, http.StatusNotFound, CodeVideoNotFound, "Not found")
		}
		return
	}

	payload, ok := h.verifyToken(w, r, videoID, file)
	if !ok {
		return
	}

	video, err := h.videos.GetVideo(r.Context(), videoID)
	if err != nil {
		if errors.Is(err, repository.ErrVideoNotFound) {
			Error(w, http.StatusNotFound, CodeVideoNotFound, "Video not found")
			return
		}
		h.logger.Error("video lookup failed", slog.String("error", err.Error()))
		Error(w, http.StatusInternalServerError, CodeInternalError, "An unexpected error occurred")
		return
	}
	if !video.IsReady() {
		Error(w, http.StatusNotFound, CodeVideoNotFound, "Video not found")
		return
	}

	key := path.Join(video.HLSPath, file)
	if strings.HasSuffix(file, ".ts") {
		h.serveSegment(w, r, key)
		return
	}
	h.servePlaylist(w, r, videoID, key, file, payload.UserID)
}

// verifyToken checks the signed token against the requested resource. A
// token minted for one file grants nothing else.
func (h *StreamHandler) verifyToken(w http.ResponseWriter, r *http.Request, videoID uuid.UUID, file string) (*signer.Payload, bool) {
	payload, err := h.signer.Verify(r.URL.Query().Get("token"))
	if err != nil {
		switch {
		case errors.Is(err, signer.ErrTokenExpired):
			metrics.TokenVerificationsTotal.WithLabelValues(metrics.TokenExpired).Inc()
			Error(w, http.StatusForbidden, CodeTokenExpired, "Token has expired")
		case errors.Is(err, signer.ErrBadSignature):
			metrics.TokenVerificationsTotal.WithLabelValues(metrics.TokenBadSignature).Inc()
			Error(w, http.StatusForbidden, CodeInvalidSignature, "Invalid token signature")
		default:
			metrics.TokenVerificationsTotal.WithLabelValues(metrics.TokenMalformed).Inc()
			Error(w, http.StatusForbidden, CodeInvalidSignature, "Invalid token")
		}
		return nil, false
	}

	if payload.Resource != file || payload.VideoID != videoID {
		metrics.TokenVerificationsTotal.WithLabelValues(metrics.TokenResourceMismatch).Inc()
		Error(w, http.StatusForbidden, CodeResourceMismatch, "Token does not grant this resource")
		return nil, false
	}

	metrics.TokenVerificationsTotal.WithLabelValues(metrics.TokenOK).Inc()
	return payload, true
}

// servePlaylist buffers the playlist, appends a fresh token to every child
// reference, and returns the rewritten text. The master names variant
// playlists; variants name segments.
func (h *StreamHandler) servePlaylist(w http.ResponseWriter, r *http.Request, videoID uuid.UUID, key, file string, userID *uuid.UUID) {
	raw, err := h.storage.Download(r.Context(), key)
	if err != nil {
		if errors.Is(err, repository.ErrObjectNotFound) {
			Error(w, http.StatusNotFound, CodeVideoNotFound, "Video not found")
			return
		}
		h.logger.Error("playlist download failed",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		Error(w, http.StatusInternalServerError, CodeInternalError, "Failed to read playlist")
		return
	}

	childSuffix := ".ts"
	if file == usecase.MasterPlaylistResource {
		childSuffix = ".m3u8"
	}

	rewritten, err := h.rewritePlaylist(raw, videoID, childSuffix, userID)
	if err != nil {
		h.logger.Error("playlist rewrite failed",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		Error(w, http.StatusInternalServerError, CodeInternalError, "Failed to rewrite playlist")
		return
	}

	w.Header().Set("Content-Type", "application/vnd.apple.mpegurl")
	w.Header().Set("Cache-Control", "no-cache")
	_, _ = w.Write(rewritten)
}

// rewritePlaylist appends ?token=<T> to each line ending in childSuffix and
// preserves every other line verbatim. Child tokens are minted in one batch
// so they share an expiry basis.
func (h *StreamHandler) rewritePlaylist(raw []byte, videoID uuid.UUID, childSuffix string, userID *uuid.UUID) ([]byte, error) {
	lines, err := splitLines(raw)
	if err != nil {
		return nil, err
	}

	var children []string
	for _, line := range lines {
		if strings.HasSuffix(line, childSuffix) {
			children = append(children, line)
		}
	}
	tokens, err := h.signer.MintMany(videoID, children, userID, 0)
	if err != nil {
		return nil, err
	}

	var out bytes.Buffer
	out.Grow(len(raw) * 2)
	for _, line := range lines {
		out.WriteString(line)
		if token, ok := tokens[line]; ok && strings.HasSuffix(line, childSuffix) {
			out.WriteString("?token=")
			out.WriteString(token)
		}
		out.WriteByte('\n')
	}
	return out.Bytes(), nil
}

func splitLines(raw []byte) ([]string, error) {
	var lines []string
	scanner := bufio.NewScanner(bytes.NewReader(raw))
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan playlist: %w", err)
	}
	return lines, nil
}

// serveSegment pipes a segment from storage to the client. After the first
// byte is written the response is committed; a mid-stream failure can only
// drop the connection.
func (h *StreamHandler) serveSegment(w http.ResponseWriter, r *http.Request, key string) {
	stream, err := h.storage.DownloadStream(r.Context(), key)
	if err != nil {
		if errors.Is(err, repository.ErrObjectNotFound) {
			Error(w, http.StatusNotFound, CodeInvalidSegment, "Segment not found")
			return
		}
		h.logger.Error("segment open failed",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		Error(w, http.StatusInternalServerError, CodeInternalError, "Failed to open segment")
		return
	}
	defer func() { _ = stream.Close() }()

	w.Header().Set("Content-Type", "video/MP2T")
	w.Header().Set("Cache-Control", "public, max-age=31536000")

	written, err := io.Copy(w, stream)
	metrics.SegmentBytesStreamed.Add(float64(written))
	if err != nil {
		h.logger.Warn("segment stream interrupted",
			slog.String("key", key),
			slog.Int64("bytes_written", written),
			slog.String("error", err.Error()),
		)
		// Headers are gone; reset the connection so the player never
		// mistakes a truncated segment for a complete one.
		panic(http.ErrAbortHandler)
	}
}

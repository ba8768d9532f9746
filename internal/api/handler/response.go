package handler

import (
	"encoding/json"
	"net/http"
)

// Error codes surfaced to clients.
const (
	CodeInvalidRequest    = "INVALID_REQUEST"
	CodeAuthRequired      = "AUTH_REQUIRED"
	CodeVideoNotFound     = "VIDEO_NOT_FOUND"
	CodeVideoNotReady     = "VIDEO_NOT_READY"
	CodeAccessDenied      = "ACCESS_DENIED"
	CodePassphraseNeeded  = "PASSPHRASE_REQUIRED"
	CodeInvalidPassphrase = "INVALID_PASSPHRASE"
	CodeInvalidSignature  = "INVALID_SIGNATURE"
	CodeTokenExpired      = "TOKEN_EXPIRED"
	CodeResourceMismatch  = "RESOURCE_MISMATCH"
	CodeInvalidPlaylist   = "INVALID_PLAYLIST"
	CodeInvalidSegment    = "INVALID_SEGMENT"
	CodeUploadTooLarge    = "UPLOAD_TOO_LARGE"
	CodeUnsupportedMedia  = "UNSUPPORTED_MEDIA_TYPE"
	CodeInternalError     = "INTERNAL_ERROR"
)

func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			http.Error(w, "failed to encode response", http.StatusInternalServerError)
		}
	}
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func Error(w http.ResponseWriter, status int, code string, message string) {
	JSON(w, status, ErrorResponse{
		Error:   code,
		Message: message,
	})
}

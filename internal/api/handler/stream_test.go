package handler

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/vaultstream/vaultstream/internal/domain/model"
	"github.com/vaultstream/vaultstream/internal/signer"
	"github.com/vaultstream/vaultstream/internal/usecase"
)

const streamTestSecret = "0123456789abcdef0123456789abcdef"

func newStreamSigner(t *testing.T) *signer.Signer {
	t.Helper()
	s, err := signer.New(streamTestSecret, 0)
	if err != nil {
		t.Fatalf("signer.New() error: %v", err)
	}
	return s
}

func newStreamRouter(h *StreamHandler) http.Handler {
	r := chi.NewRouter()
	r.Get("/stream/{videoID}/{file}", h.Serve)
	return r
}

func readyStreamVideo() *model.Video {
	return &model.Video{
		ID:      uuid.New(),
		OwnerID: uuid.New(),
		Status:  model.StatusReady,
		HLSPath: "videos/o/v/hls",
	}
}

func videosServing(video *model.Video) *mockVideoService {
	return &mockVideoService{
		getVideoFn: func(ctx context.Context, videoID uuid.UUID) (*model.Video, error) {
			return video, nil
		},
	}
}

func mintFor(t *testing.T, sgn *signer.Signer, videoID uuid.UUID, resource string) string {
	t.Helper()
	token, err := sgn.Mint(videoID, resource, nil, 0)
	if err != nil {
		t.Fatalf("Mint(%s) error: %v", resource, err)
	}
	return token
}

func streamRequest(router http.Handler, videoID uuid.UUID, file, token string) *httptest.ResponseRecorder {
	url := "/stream/" + videoID.String() + "/" + file
	if token != "" {
		url += "?token=" + token
	}
	req := httptest.NewRequest(http.MethodGet, url, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestStreamHandler_FilenameValidation(t *testing.T) {
	video := readyStreamVideo()
	sgn := newStreamSigner(t)
	h := NewStreamHandler(videosServing(video), &mockBlobStorage{}, sgn, nil)
	router := newStreamRouter(h)

	tests := []struct {
		file       string
		wantStatus int
		wantCode   string
	}{
		{"master.min.m3u8", http.StatusBadRequest, CodeInvalidPlaylist},
		{".m3u8", http.StatusBadRequest, CodeInvalidPlaylist},
		{"720p..ts", http.StatusBadRequest, CodeInvalidSegment},
		{"notes.txt", http.StatusNotFound, CodeVideoNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			rec := streamRequest(router, video.ID, tt.file, "")
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if resp := decodeError(t, rec); resp.Error != tt.wantCode {
				t.Errorf("error code = %s, want %s", resp.Error, tt.wantCode)
			}
		})
	}
}

func TestStreamHandler_TokenValidation(t *testing.T) {
	video := readyStreamVideo()
	sgn := newStreamSigner(t)
	h := NewStreamHandler(videosServing(video), &mockBlobStorage{}, sgn, nil)
	router := newStreamRouter(h)

	t.Run("missing token", func(t *testing.T) {
		rec := streamRequest(router, video.ID, "master.m3u8", "")
		if rec.Code != http.StatusForbidden {
			t.Errorf("status = %d, want 403", rec.Code)
		}
		if resp := decodeError(t, rec); resp.Error != CodeInvalidSignature {
			t.Errorf("error code = %s, want %s", resp.Error, CodeInvalidSignature)
		}
	})

	t.Run("expired token", func(t *testing.T) {
		token, err := sgn.Mint(video.ID, "master.m3u8", nil, -time.Minute)
		if err != nil {
			t.Fatalf("Mint() error: %v", err)
		}
		rec := streamRequest(router, video.ID, "master.m3u8", token)
		if rec.Code != http.StatusForbidden {
			t.Errorf("status = %d, want 403", rec.Code)
		}
		if resp := decodeError(t, rec); resp.Error != CodeTokenExpired {
			t.Errorf("error code = %s, want %s", resp.Error, CodeTokenExpired)
		}
	})

	t.Run("foreign secret", func(t *testing.T) {
		other, err := signer.New("ffffffffffffffffffffffffffffffff", 0)
		if err != nil {
			t.Fatalf("signer.New() error: %v", err)
		}
		rec := streamRequest(router, video.ID, "master.m3u8", mintFor(t, other, video.ID, "master.m3u8"))
		if rec.Code != http.StatusForbidden {
			t.Errorf("status = %d, want 403", rec.Code)
		}
		if resp := decodeError(t, rec); resp.Error != CodeInvalidSignature {
			t.Errorf("error code = %s, want %s", resp.Error, CodeInvalidSignature)
		}
	})

	t.Run("token for another file", func(t *testing.T) {
		rec := streamRequest(router, video.ID, "720p_001.ts", mintFor(t, sgn, video.ID, "720p_000.ts"))
		if rec.Code != http.StatusForbidden {
			t.Errorf("status = %d, want 403", rec.Code)
		}
		if resp := decodeError(t, rec); resp.Error != CodeResourceMismatch {
			t.Errorf("error code = %s, want %s", resp.Error, CodeResourceMismatch)
		}
	})

	t.Run("token for another video", func(t *testing.T) {
		rec := streamRequest(router, video.ID, "master.m3u8", mintFor(t, sgn, uuid.New(), "master.m3u8"))
		if rec.Code != http.StatusForbidden {
			t.Errorf("status = %d, want 403", rec.Code)
		}
		if resp := decodeError(t, rec); resp.Error != CodeResourceMismatch {
			t.Errorf("error code = %s, want %s", resp.Error, CodeResourceMismatch)
		}
	})
}

func TestStreamHandler_NotReadyLooksAbsent(t *testing.T) {
	sgn := newStreamSigner(t)

	for _, status := range []model.Status{model.StatusUploading, model.StatusProcessing, model.StatusFailed} {
		video := readyStreamVideo()
		video.Status = status

		h := NewStreamHandler(videosServing(video), &mockBlobStorage{}, sgn, nil)
		router := newStreamRouter(h)

		rec := streamRequest(router, video.ID, "master.m3u8", mintFor(t, sgn, video.ID, "master.m3u8"))
		if rec.Code != http.StatusNotFound {
			t.Errorf("status %s: status = %d, want 404", status, rec.Code)
		}
		if resp := decodeError(t, rec); resp.Error != CodeVideoNotFound {
			t.Errorf("status %s: error code = %s, want %s", status, resp.Error, CodeVideoNotFound)
		}
	}
}

func TestStreamHandler_MasterPlaylistRewrite(t *testing.T) {
	video := readyStreamVideo()
	sgn := newStreamSigner(t)

	master := strings.Join([]string{
		"#EXTM3U",
		"#EXT-X-VERSION:3",
		"",
		"#EXT-X-STREAM-INF:BANDWIDTH=2800000,RESOLUTION=1280x720",
		"720p.m3u8",
		"#EXT-X-STREAM-INF:BANDWIDTH=1400000,RESOLUTION=854x480",
		"480p.m3u8",
	}, "\n")

	storage := &mockBlobStorage{
		downloadFn: func(ctx context.Context, key string) ([]byte, error) {
			if key != "videos/o/v/hls/master.m3u8" {
				t.Errorf("download key = %s", key)
			}
			return []byte(master), nil
		},
	}

	h := NewStreamHandler(videosServing(video), storage, sgn, nil)
	router := newStreamRouter(h)

	rec := streamRequest(router, video.ID, "master.m3u8", mintFor(t, sgn, video.ID, "master.m3u8"))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/vnd.apple.mpegurl" {
		t.Errorf("content type = %s", ct)
	}
	if cc := rec.Header().Get("Cache-Control"); cc != "no-cache" {
		t.Errorf("cache control = %s", cc)
	}

	lines := strings.Split(strings.TrimRight(rec.Body.String(), "\n"), "\n")
	var variantLines []string
	for _, line := range lines {
		if strings.HasPrefix(line, "#") || line == "" {
			if strings.Contains(line, "token=") {
				t.Errorf("tag line rewritten: %s", line)
			}
			continue
		}
		variantLines = append(variantLines, line)
	}
	if len(variantLines) != 2 {
		t.Fatalf("variant lines = %v", variantLines)
	}

	for _, line := range variantLines {
		name, tokenPart, ok := strings.Cut(line, "?token=")
		if !ok {
			t.Errorf("variant line without token: %s", line)
			continue
		}
		payload, err := sgn.Verify(tokenPart)
		if err != nil {
			t.Errorf("child token for %s does not verify: %v", name, err)
			continue
		}
		if payload.Resource != name || payload.VideoID != video.ID {
			t.Errorf("child token payload = %+v, want resource %s", payload, name)
		}
	}
}

func TestStreamHandler_VariantPlaylistRewrite(t *testing.T) {
	video := readyStreamVideo()
	sgn := newStreamSigner(t)

	variant := strings.Join([]string{
		"#EXTM3U",
		"#EXT-X-TARGETDURATION:6",
		"#EXTINF:6.000,",
		"720p_000.ts",
		"#EXTINF:4.200,",
		"720p_001.ts",
		"#EXT-X-ENDLIST",
	}, "\n")

	storage := &mockBlobStorage{
		downloadFn: func(ctx context.Context, key string) ([]byte, error) {
			return []byte(variant), nil
		},
	}

	h := NewStreamHandler(videosServing(video), storage, sgn, nil)
	router := newStreamRouter(h)

	rec := streamRequest(router, video.ID, "720p.m3u8", mintFor(t, sgn, video.ID, "720p.m3u8"))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	body := rec.Body.String()
	for _, seg := range []string{"720p_000.ts?token=", "720p_001.ts?token="} {
		if !strings.Contains(body, seg) {
			t.Errorf("segment reference not tokenized: want %s in\n%s", seg, body)
		}
	}
	if strings.Contains(body, "#EXT-X-ENDLIST?token=") {
		t.Error("tag line rewritten")
	}
}

func TestStreamHandler_Segment(t *testing.T) {
	video := readyStreamVideo()
	sgn := newStreamSigner(t)

	segment := bytes.Repeat([]byte{0x47, 0x00}, 188)
	storage := &mockBlobStorage{
		downloadStreamFn: func(ctx context.Context, key string) (io.ReadCloser, error) {
			if key != "videos/o/v/hls/720p_000.ts" {
				t.Errorf("stream key = %s", key)
			}
			return io.NopCloser(bytes.NewReader(segment)), nil
		},
	}

	h := NewStreamHandler(videosServing(video), storage, sgn, nil)
	router := newStreamRouter(h)

	rec := streamRequest(router, video.ID, "720p_000.ts", mintFor(t, sgn, video.ID, "720p_000.ts"))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "video/MP2T" {
		t.Errorf("content type = %s", ct)
	}
	if cc := rec.Header().Get("Cache-Control"); cc != "public, max-age=31536000" {
		t.Errorf("cache control = %s", cc)
	}
	if !bytes.Equal(rec.Body.Bytes(), segment) {
		t.Errorf("segment body length = %d, want %d", rec.Body.Len(), len(segment))
	}
}

// failingSegmentReader returns some bytes, then an error, simulating
// storage dropping mid-copy after the response is committed.
type failingSegmentReader struct {
	remaining []byte
	err       error
}

func (r *failingSegmentReader) Read(p []byte) (int, error) {
	if len(r.remaining) == 0 {
		return 0, r.err
	}
	n := copy(p, r.remaining)
	r.remaining = r.remaining[n:]
	return n, nil
}

func (r *failingSegmentReader) Close() error { return nil }

func TestStreamHandler_SegmentStreamFailureAbortsConnection(t *testing.T) {
	video := readyStreamVideo()
	sgn := newStreamSigner(t)

	storage := &mockBlobStorage{
		downloadStreamFn: func(ctx context.Context, key string) (io.ReadCloser, error) {
			return &failingSegmentReader{
				remaining: bytes.Repeat([]byte{0x47, 0x00}, 10),
				err:       errors.New("read: connection reset"),
			}, nil
		},
	}

	h := NewStreamHandler(videosServing(video), storage, sgn, nil)
	router := newStreamRouter(h)

	url := "/stream/" + video.ID.String() + "/720p_000.ts?token=" + mintFor(t, sgn, video.ID, "720p_000.ts")
	req := httptest.NewRequest(http.MethodGet, url, nil)
	rec := httptest.NewRecorder()

	// A truncated segment must reset the connection rather than end the
	// response cleanly; net/http treats this panic value as an abort.
	defer func() {
		if r := recover(); r != http.ErrAbortHandler {
			t.Errorf("panic value = %v, want http.ErrAbortHandler", r)
		}
	}()
	router.ServeHTTP(rec, req)
	t.Error("handler returned normally after a mid-stream failure")
}

func TestStreamHandler_MissingObjects(t *testing.T) {
	video := readyStreamVideo()
	sgn := newStreamSigner(t)

	// Default mock storage returns object-not-found for everything.
	h := NewStreamHandler(videosServing(video), &mockBlobStorage{}, sgn, nil)
	router := newStreamRouter(h)

	t.Run("playlist", func(t *testing.T) {
		rec := streamRequest(router, video.ID, "master.m3u8", mintFor(t, sgn, video.ID, "master.m3u8"))
		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", rec.Code)
		}
		if resp := decodeError(t, rec); resp.Error != CodeVideoNotFound {
			t.Errorf("error code = %s, want %s", resp.Error, CodeVideoNotFound)
		}
	})

	t.Run("segment", func(t *testing.T) {
		rec := streamRequest(router, video.ID, "720p_000.ts", mintFor(t, sgn, video.ID, "720p_000.ts"))
		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", rec.Code)
		}
		if resp := decodeError(t, rec); resp.Error != CodeInvalidSegment {
			t.Errorf("error code = %s, want %s", resp.Error, CodeInvalidSegment)
		}
	})
}

// usecase.MasterPlaylistResource anchors which playlist gets .m3u8 children;
// keep the handler and gate agreeing on the name.
func TestMasterPlaylistResourceName(t *testing.T) {
	if usecase.MasterPlaylistResource != "master.m3u8" {
		t.Fatalf("master playlist resource = %s", usecase.MasterPlaylistResource)
	}
}

package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v3"

	"github.com/vaultstream/vaultstream/internal/domain/model"
	"github.com/vaultstream/vaultstream/internal/domain/repository"
)

func newTestVideo() *model.Video {
	now := time.Now()
	return &model.Video{
		ID:          uuid.New(),
		OwnerID:     uuid.New(),
		Title:       "Test Video",
		Visibility:  model.VisibilityPublic,
		StoragePath: "videos/o/v/original.mp4",
		HLSPath:     "videos/o/v/hls",
		Status:      model.StatusUploading,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func anyArgs(n int) []any {
	args := make([]any, n)
	for i := range args {
		args[i] = pgxmock.AnyArg()
	}
	return args
}

func TestVideoRepository_Create(t *testing.T) {
	tests := []struct {
		name    string
		mockFn  func(mock pgxmock.PgxPoolIface)
		wantErr error
	}{
		{
			name: "successful creation",
			mockFn: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec("INSERT INTO videos").
					WithArgs(anyArgs(21)...).
					WillReturnResult(pgxmock.NewResult("INSERT", 1))
			},
			wantErr: nil,
		},
		{
			name: "duplicate video",
			mockFn: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec("INSERT INTO videos").
					WithArgs(anyArgs(21)...).
					WillReturnError(&pgconn.PgError{Code: "23505"})
			},
			wantErr: repository.ErrDuplicateVideo,
		},
		{
			name: "database error",
			mockFn: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec("INSERT INTO videos").
					WithArgs(anyArgs(21)...).
					WillReturnError(errors.New("connection refused"))
			},
			wantErr: errors.New("failed to create video"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			if err != nil {
				t.Fatalf("failed to create mock: %v", err)
			}
			defer mock.Close()

			tt.mockFn(mock)

			repo := NewVideoRepository(mock)
			err = repo.Create(context.Background(), newTestVideo())

			if tt.wantErr != nil {
				if err == nil {
					t.Fatal("Create() expected error, got nil")
				}
				if errors.Is(tt.wantErr, repository.ErrDuplicateVideo) && !errors.Is(err, repository.ErrDuplicateVideo) {
					t.Errorf("Create() error = %v, want %v", err, tt.wantErr)
				}
			} else if err != nil {
				t.Errorf("Create() unexpected error: %v", err)
			}

			if err := mock.ExpectationsWereMet(); err != nil {
				t.Errorf("unmet expectations: %v", err)
			}
		})
	}
}

func TestVideoRepository_GetByID_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer mock.Close()

	id := uuid.New()
	mock.ExpectQuery("SELECT (.+) FROM videos WHERE id").
		WithArgs(id).
		WillReturnError(pgx.ErrNoRows)

	repo := NewVideoRepository(mock)
	_, err = repo.GetByID(context.Background(), id)
	if !errors.Is(err, repository.ErrVideoNotFound) {
		t.Errorf("GetByID() error = %v, want %v", err, repository.ErrVideoNotFound)
	}
}

func TestVideoRepository_TransitionStatus(t *testing.T) {
	id := uuid.New()

	tests := []struct {
		name    string
		from    model.Status
		to      model.Status
		mockFn  func(mock pgxmock.PgxPoolIface)
		wantErr error
	}{
		{
			name: "successful transition",
			from: model.StatusUploading,
			to:   model.StatusProcessing,
			mockFn: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec("UPDATE videos").
					WithArgs(id, "uploading", "processing", pgxmock.AnyArg()).
					WillReturnResult(pgxmock.NewResult("UPDATE", 1))
			},
			wantErr: nil,
		},
		{
			name:    "invalid transition rejected before SQL",
			from:    model.StatusReady,
			to:      model.StatusProcessing,
			mockFn:  func(mock pgxmock.PgxPoolIface) {},
			wantErr: model.ErrInvalidTransition,
		},
		{
			name: "stale status loses the compare-and-set",
			from: model.StatusUploading,
			to:   model.StatusProcessing,
			mockFn: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec("UPDATE videos").
					WithArgs(id, "uploading", "processing", pgxmock.AnyArg()).
					WillReturnResult(pgxmock.NewResult("UPDATE", 0))
				mock.ExpectQuery("SELECT EXISTS").
					WithArgs(id).
					WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
			},
			wantErr: repository.ErrStaleStatus,
		},
		{
			name: "missing video",
			from: model.StatusUploading,
			to:   model.StatusProcessing,
			mockFn: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec("UPDATE videos").
					WithArgs(id, "uploading", "processing", pgxmock.AnyArg()).
					WillReturnResult(pgxmock.NewResult("UPDATE", 0))
				mock.ExpectQuery("SELECT EXISTS").
					WithArgs(id).
					WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
			},
			wantErr: repository.ErrVideoNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			if err != nil {
				t.Fatalf("failed to create mock: %v", err)
			}
			defer mock.Close()

			tt.mockFn(mock)

			repo := NewVideoRepository(mock)
			err = repo.TransitionStatus(context.Background(), id, tt.from, tt.to)

			if !errors.Is(err, tt.wantErr) {
				t.Errorf("TransitionStatus() error = %v, want %v", err, tt.wantErr)
			}
			if err := mock.ExpectationsWereMet(); err != nil {
				t.Errorf("unmet expectations: %v", err)
			}
		})
	}
}

func TestVideoRepository_MarkReady(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer mock.Close()

	id := uuid.New()
	mock.ExpectExec("UPDATE videos").
		WithArgs(id, "ready", "videos/o/v/hls/master.m3u8", pgxmock.AnyArg(), pgxmock.AnyArg(), "processing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	repo := NewVideoRepository(mock)
	if err := repo.MarkReady(context.Background(), id, "videos/o/v/hls/master.m3u8", "videos/o/v/hls/thumbnail.jpg"); err != nil {
		t.Errorf("MarkReady() error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestVideoRepository_MarkFailed_TerminalGuard(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer mock.Close()

	id := uuid.New()
	// The guarded update matches no row because the video is already ready.
	mock.ExpectExec("UPDATE videos").
		WithArgs(id, "failed", "boom", pgxmock.AnyArg(), "ready", "failed").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	repo := NewVideoRepository(mock)
	if err := repo.MarkFailed(context.Background(), id, "boom"); !errors.Is(err, repository.ErrStaleStatus) {
		t.Errorf("MarkFailed() error = %v, want %v", err, repository.ErrStaleStatus)
	}
}

func TestVideoRepository_IncrementViews(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer mock.Close()

	id := uuid.New()
	mock.ExpectExec("UPDATE videos SET views").
		WithArgs(id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	repo := NewVideoRepository(mock)
	if err := repo.IncrementViews(context.Background(), id); err != nil {
		t.Errorf("IncrementViews() error: %v", err)
	}
}

func TestVideoRepository_FailStuckProcessing(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer mock.Close()

	stuck1, stuck2 := uuid.New(), uuid.New()
	mock.ExpectQuery("UPDATE videos").
		WithArgs("failed", "processing interrupted by worker restart", pgxmock.AnyArg(), "processing", pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(stuck1).AddRow(stuck2))

	repo := NewVideoRepository(mock)
	ids, err := repo.FailStuckProcessing(context.Background(), 2*time.Hour, "processing interrupted by worker restart")
	if err != nil {
		t.Fatalf("FailStuckProcessing() error: %v", err)
	}
	if len(ids) != 2 || ids[0] != stuck1 || ids[1] != stuck2 {
		t.Errorf("FailStuckProcessing() ids = %v, want [%v %v]", ids, stuck1, stuck2)
	}
}

func TestVideoRepository_GetByID_ScansAllFields(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer mock.Close()

	id := uuid.New()
	ownerID := uuid.New()
	now := time.Now()
	hash := "$2a$12$hash"
	master := "videos/o/v/hls/master.m3u8"

	rows := pgxmock.NewRows([]string{
		"id", "owner_id", "title", "description", "visibility", "passphrase_hash",
		"storage_path", "hls_path", "master_playlist", "thumbnail_path",
		"duration", "width", "height", "file_size", "mime_type", "original_filename",
		"status", "processing_error", "views", "created_at", "updated_at",
	}).AddRow(
		id, ownerID, "My Video", "desc", "private", &hash,
		(*string)(nil), (*string)(nil), &master, (*string)(nil),
		12.5, 1920, 1080, int64(1000), (*string)(nil), (*string)(nil),
		"ready", (*string)(nil), int64(7), now, now,
	)

	mock.ExpectQuery("SELECT (.+) FROM videos WHERE id").
		WithArgs(id).
		WillReturnRows(rows)

	repo := NewVideoRepository(mock)
	video, err := repo.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("GetByID() error: %v", err)
	}

	if video.ID != id || video.OwnerID != ownerID {
		t.Error("identity fields not scanned")
	}
	if video.Visibility != model.VisibilityPrivate || video.Status != model.StatusReady {
		t.Errorf("enum fields = %v/%v", video.Visibility, video.Status)
	}
	if video.PassphraseHash != hash {
		t.Errorf("passphrase hash = %q", video.PassphraseHash)
	}
	if video.StoragePath != "" || video.ProcessingError != "" {
		t.Error("nullable fields should deref to empty strings")
	}
	if video.Resolution.Width != 1920 || video.Resolution.Height != 1080 {
		t.Errorf("resolution = %v", video.Resolution)
	}
	if video.Views != 7 {
		t.Errorf("views = %d", video.Views)
	}
}

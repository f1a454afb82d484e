package media

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Seeksy-app/powering-how-people-work-and-share-online-sub001/internal/models"
	"github.com/Seeksy-app/powering-how-people-work-and-share-online-sub001/pkg/storage"
)

// Store persists media file rows.
type Store interface {
	Create(ctx context.Context, f *models.MediaFile) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.MediaFile, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.MediaFile, error)
	SoftDelete(ctx context.Context, id, userID uuid.UUID) error
}

// ObjectStore holds the media bytes.
type ObjectStore interface {
	Upload(ctx context.Context, key, contentType string, body io.Reader, contentLength int64) (string, error)
	PresignDownload(ctx context.Context, key string) (string, time.Duration, error)
	Delete(ctx context.Context, key string) error
}

// SaveInput describes a file to store.
type SaveInput struct {
	UserID          uuid.UUID
	FileName        string
	ContentType     string
	Size            int64
	Body            io.Reader
	DurationSeconds *int
	Metadata        map[string]interface{}
}

// Service stores media bytes in object storage and records them in the database.
type Service struct {
	store    Store
	objects  ObjectStore
	maxBytes int64
	logger   *zap.Logger
}

// NewService creates a media service. maxBytes <= 0 means MaxFileBytes.
func NewService(store Store, objects ObjectStore, maxBytes int64, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxBytes <= 0 {
		maxBytes = MaxFileBytes
	}
	return &Service{store: store, objects: objects, maxBytes: maxBytes, logger: logger}
}

// MaxBytes returns the configured size ceiling.
func (s *Service) MaxBytes() int64 { return s.maxBytes }

// Save validates in, uploads the body and inserts the media file row.
// A failed insert leaves the uploaded object in place.
func (s *Service) Save(ctx context.Context, in SaveInput) (*models.MediaFile, error) {
	if in.UserID == uuid.Nil {
		return nil, fmt.Errorf("missing user id")
	}
	if err := ValidateFileLimit(in.ContentType, in.Size, s.maxBytes); err != nil {
		return nil, err
	}
	if in.FileName == "" {
		in.FileName = "upload"
	}
	key := storage.NewMediaKey(in.UserID.String(), in.FileName)
	url, err := s.objects.Upload(ctx, key, in.ContentType, in.Body, in.Size)
	if err != nil {
		return nil, fmt.Errorf("store object: %w", err)
	}

	meta := orEmpty(in.Metadata)
	if _, ok := meta[models.MetaSource]; !ok {
		meta[models.MetaSource] = models.SourceUpload
	}
	f := &models.MediaFile{
		UserID:          in.UserID,
		FileName:        in.FileName,
		FileURL:         url,
		StorageKey:      key,
		FileType:        in.ContentType,
		FileSizeBytes:   in.Size,
		DurationSeconds: in.DurationSeconds,
		Metadata:        meta,
	}
	if err := s.store.Create(ctx, f); err != nil {
		s.logger.Warn("media insert failed after upload", zap.String("storage_key", key), zap.Error(err))
		return nil, fmt.Errorf("insert media file: %w", err)
	}
	s.logger.Info("media file stored",
		zap.String("media_file_id", f.ID.String()),
		zap.String("user_id", f.UserID.String()),
		zap.Int64("size", f.FileSizeBytes))
	return f, nil
}

// Get returns a media file owned by userID.
func (s *Service) Get(ctx context.Context, id, userID uuid.UUID) (*models.MediaFile, error) {
	f, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if f.UserID != userID {
		return nil, ErrNotFound
	}
	return f, nil
}

// List returns the user's media files.
func (s *Service) List(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.MediaFile, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.store.ListByUser(ctx, userID, limit, offset)
}

// Delete soft-deletes the row and then removes the object; object removal is best effort.
func (s *Service) Delete(ctx context.Context, id, userID uuid.UUID) error {
	f, err := s.Get(ctx, id, userID)
	if err != nil {
		return err
	}
	if err := s.store.SoftDelete(ctx, id, userID); err != nil {
		return err
	}
	if f.StorageKey != "" {
		if err := s.objects.Delete(ctx, f.StorageKey); err != nil {
			s.logger.Warn("delete media object failed", zap.String("storage_key", f.StorageKey), zap.Error(err))
		}
	}
	return nil
}

// DownloadURL returns a presigned URL for the user's media file.
func (s *Service) DownloadURL(ctx context.Context, id, userID uuid.UUID) (string, time.Duration, error) {
	f, err := s.Get(ctx, id, userID)
	if err != nil {
		return "", 0, err
	}
	if f.StorageKey == "" {
		return f.FileURL, 0, nil
	}
	return s.objects.PresignDownload(ctx, f.StorageKey)
}

package media

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Seeksy-app/powering-how-people-work-and-share-online-sub001/internal/models"
)

// ErrNotFound is returned when a media file does not exist or was deleted.
var ErrNotFound = errors.New("media file not found")

const mediaColumns = `id, user_id, file_name, file_url, storage_key, file_type, file_size_bytes, duration_seconds, metadata, created_at, updated_at, deleted_at`

// Repository handles media file persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a media repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a media file and fills its id and timestamps.
func (r *Repository) Create(ctx context.Context, f *models.MediaFile) error {
	meta, err := json.Marshal(orEmpty(f.Metadata))
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	const q = `INSERT INTO media_files (user_id, file_name, file_url, storage_key, file_type, file_size_bytes, duration_seconds, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, q, f.UserID, f.FileName, f.FileURL, f.StorageKey, f.FileType, f.FileSizeBytes, f.DurationSeconds, meta).
		Scan(&f.ID, &f.CreatedAt, &f.UpdatedAt)
}

// GetByID returns a live media file by id.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.MediaFile, error) {
	q := `SELECT ` + mediaColumns + ` FROM media_files WHERE id = $1 AND deleted_at IS NULL`
	f, err := scanMediaFile(r.pool.QueryRow(ctx, q, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return f, nil
}

// ListByUser returns the user's live media files, newest first.
func (r *Repository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.MediaFile, error) {
	q := `SELECT ` + mediaColumns + ` FROM media_files
		WHERE user_id = $1 AND deleted_at IS NULL
		ORDER BY created_at DESC LIMIT $2 OFFSET $3`
	rows, err := r.pool.Query(ctx, q, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []models.MediaFile{}
	for rows.Next() {
		f, err := scanMediaFile(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *f)
	}
	return list, rows.Err()
}

// SoftDelete marks the user's media file deleted.
func (r *Repository) SoftDelete(ctx context.Context, id, userID uuid.UUID) error {
	const q = `UPDATE media_files SET deleted_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND user_id = $2 AND deleted_at IS NULL`
	tag, err := r.pool.Exec(ctx, q, id, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanMediaFile(row pgx.Row) (*models.MediaFile, error) {
	var f models.MediaFile
	var meta []byte
	if err := row.Scan(&f.ID, &f.UserID, &f.FileName, &f.FileURL, &f.StorageKey, &f.FileType, &f.FileSizeBytes, &f.DurationSeconds, &meta, &f.CreatedAt, &f.UpdatedAt, &f.DeletedAt); err != nil {
		return nil, err
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &f.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	return &f, nil
}

func orEmpty(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return map[string]interface{}{}
	}
	return m
}

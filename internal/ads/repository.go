package ads

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Seeksy-app/powering-how-people-work-and-share-online-sub001/internal/models"
)

// ErrNotFound is returned when an ad slot does not exist on the media file.
var ErrNotFound = errors.New("ad slot not found")

// Repository handles ad slot persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an ad slot repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a new ad slot.
func (r *Repository) Create(ctx context.Context, s *models.AdSlot) error {
	const query = `INSERT INTO media_ad_slots (media_file_id, position_seconds, ad_file_url, duration_seconds)
		VALUES ($1, $2, $3, $4)
		RETURNING id`
	return r.pool.QueryRow(ctx, query, s.MediaFileID, s.PositionSeconds, s.AdFileURL, s.DurationSeconds).Scan(&s.ID)
}

// ListByMedia returns the ad slots of a media file by position.
func (r *Repository) ListByMedia(ctx context.Context, mediaFileID uuid.UUID) ([]models.AdSlot, error) {
	const query = `SELECT id, media_file_id, position_seconds, ad_file_url, duration_seconds
		FROM media_ad_slots WHERE media_file_id = $1 ORDER BY position_seconds`
	rows, err := r.pool.Query(ctx, query, mediaFileID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []models.AdSlot{}
	for rows.Next() {
		var s models.AdSlot
		if err := rows.Scan(&s.ID, &s.MediaFileID, &s.PositionSeconds, &s.AdFileURL, &s.DurationSeconds); err != nil {
			return nil, err
		}
		list = append(list, s)
	}
	return list, rows.Err()
}

// Delete removes an ad slot of a media file.
func (r *Repository) Delete(ctx context.Context, id, mediaFileID uuid.UUID) error {
	const query = `DELETE FROM media_ad_slots WHERE id = $1 AND media_file_id = $2`
	tag, err := r.pool.Exec(ctx, query, id, mediaFileID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

package edits

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Seeksy-app/powering-how-people-work-and-share-online-sub001/internal/models"
)

// Repository persists edit instructions.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an edit instruction repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Replace swaps the instruction list of a media file in one transaction.
func (r *Repository) Replace(ctx context.Context, mediaFileID uuid.UUID, list []models.EditInstruction) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM media_edit_instructions WHERE media_file_id = $1`, mediaFileID); err != nil {
			return err
		}
		if len(list) == 0 {
			return nil
		}
		const q = `INSERT INTO media_edit_instructions (media_file_id, position, kind, start_seconds, end_seconds, params)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id`
		batch := &pgx.Batch{}
		for i := range list {
			e := &list[i]
			params := e.Params
			if len(params) == 0 {
				params = json.RawMessage(`{}`)
			}
			batch.Queue(q, mediaFileID, e.Position, e.Kind, e.StartSeconds, e.EndSeconds, []byte(params)).QueryRow(func(row pgx.Row) error {
				return row.Scan(&e.ID)
			})
		}
		return tx.SendBatch(ctx, batch).Close()
	})
}

// List returns the instructions of a media file in order.
func (r *Repository) List(ctx context.Context, mediaFileID uuid.UUID) ([]models.EditInstruction, error) {
	const q = `SELECT id, media_file_id, position, kind, start_seconds, end_seconds, params
		FROM media_edit_instructions WHERE media_file_id = $1 ORDER BY position, created_at`
	rows, err := r.pool.Query(ctx, q, mediaFileID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []models.EditInstruction{}
	for rows.Next() {
		var e models.EditInstruction
		var params []byte
		if err := rows.Scan(&e.ID, &e.MediaFileID, &e.Position, &e.Kind, &e.StartSeconds, &e.EndSeconds, &params); err != nil {
			return nil, err
		}
		e.Params = params
		list = append(list, e)
	}
	return list, rows.Err()
}

package processing

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Seeksy-app/powering-how-people-work-and-share-online-sub001/internal/models"
)

// ErrJobNotFound is returned for unknown job ids.
var ErrJobNotFound = errors.New("processing job not found")

const jobColumns = `id, media_file_id, job_type, status, config, COALESCE(output_url,''), COALESCE(error_message,''), edits_applied, ads_inserted, created_at, completed_at`

// Repository persists processing jobs and reads their inputs.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a processing repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetMediaFile returns the live media file a job would run against.
func (r *Repository) GetMediaFile(ctx context.Context, id uuid.UUID) (*models.MediaFile, error) {
	const q = `SELECT id, user_id, file_name, file_url, file_type, file_size_bytes, duration_seconds
		FROM media_files WHERE id = $1 AND deleted_at IS NULL`
	var f models.MediaFile
	err := r.pool.QueryRow(ctx, q, id).Scan(&f.ID, &f.UserID, &f.FileName, &f.FileURL, &f.FileType, &f.FileSizeBytes, &f.DurationSeconds)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMediaFileNotFound
		}
		return nil, err
	}
	return &f, nil
}

// CreateJob inserts a job in the processing state.
func (r *Repository) CreateJob(ctx context.Context, job *models.ProcessingJob) error {
	cfg := job.Config
	if len(cfg) == 0 {
		cfg = json.RawMessage(`{}`)
	}
	const q = `INSERT INTO media_processing_jobs (media_file_id, job_type, status, config)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`
	job.Status = models.JobStatusProcessing
	return r.pool.QueryRow(ctx, q, job.MediaFileID, job.JobType, job.Status, []byte(cfg)).Scan(&job.ID, &job.CreatedAt)
}

// GetJob returns a job by id.
func (r *Repository) GetJob(ctx context.Context, id uuid.UUID) (*models.ProcessingJob, error) {
	q := `SELECT ` + jobColumns + ` FROM media_processing_jobs WHERE id = $1`
	job, err := scanJob(r.pool.QueryRow(ctx, q, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}
	return job, nil
}

// ListJobsByMedia returns the jobs of a media file, newest first.
func (r *Repository) ListJobsByMedia(ctx context.Context, mediaFileID uuid.UUID) ([]models.ProcessingJob, error) {
	q := `SELECT ` + jobColumns + ` FROM media_processing_jobs WHERE media_file_id = $1 ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, q, mediaFileID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []models.ProcessingJob{}
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *job)
	}
	return list, rows.Err()
}

// ListEditInstructions returns the stored edits for a media file in order.
func (r *Repository) ListEditInstructions(ctx context.Context, mediaFileID uuid.UUID) ([]models.EditInstruction, error) {
	const q = `SELECT id, media_file_id, position, kind, start_seconds, end_seconds, params
		FROM media_edit_instructions WHERE media_file_id = $1 ORDER BY position, created_at`
	rows, err := r.pool.Query(ctx, q, mediaFileID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.EditInstruction
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

// ListAdSlots returns the stored ad placements for a media file by position.
func (r *Repository) ListAdSlots(ctx context.Context, mediaFileID uuid.UUID) ([]models.AdSlot, error) {
	const q = `SELECT id, media_file_id, position_seconds, ad_file_url, duration_seconds
		FROM media_ad_slots WHERE media_file_id = $1 ORDER BY position_seconds`
	rows, err := r.pool.Query(ctx, q, mediaFileID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.AdSlot
	for rows.Next() {
		var s models.AdSlot
		if err := rows.Scan(&s.ID, &s.MediaFileID, &s.PositionSeconds, &s.AdFileURL, &s.DurationSeconds); err != nil {
			return nil, err
		}
		list = append(list, s)
	}
	return list, rows.Err()
}

// InsertOperations writes the descriptive operation rows of a job in one batch.
func (r *Repository) InsertOperations(ctx context.Context, ops []models.JobOperation) error {
	if len(ops) == 0 {
		return nil
	}
	const q = `INSERT INTO media_job_operations (job_id, seq, operation, kind, start_seconds, end_seconds, description)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	batch := &pgx.Batch{}
	for _, op := range ops {
		batch.Queue(q, op.JobID, op.Seq, op.Operation, op.Kind, op.StartSeconds, op.EndSeconds, op.Description)
	}
	return r.pool.SendBatch(ctx, batch).Close()
}

// Complete moves a processing job to completed. It reports false when the
// job had already left the processing state.
func (r *Repository) Complete(ctx context.Context, id uuid.UUID, outputURL string, editsApplied, adsInserted int) (bool, error) {
	const q = `UPDATE media_processing_jobs
		SET status = $2, output_url = $3, edits_applied = $4, ads_inserted = $5, completed_at = NOW()
		WHERE id = $1 AND status = $6`
	tag, err := r.pool.Exec(ctx, q, id, models.JobStatusCompleted, outputURL, editsApplied, adsInserted, models.JobStatusProcessing)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// Fail moves a processing job to failed with msg. It reports false when the
// job had already left the processing state.
func (r *Repository) Fail(ctx context.Context, id uuid.UUID, msg string) (bool, error) {
	const q = `UPDATE media_processing_jobs
		SET status = $2, error_message = $3, completed_at = NOW()
		WHERE id = $1 AND status = $4`
	tag, err := r.pool.Exec(ctx, q, id, models.JobStatusFailed, msg, models.JobStatusProcessing)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// FailStale fails every job that has been processing longer than olderThan
// and returns the affected jobs.
func (r *Repository) FailStale(ctx context.Context, olderThan time.Duration, msg string) ([]models.ProcessingJob, error) {
	q := `UPDATE media_processing_jobs
		SET status = $1, error_message = $2, completed_at = NOW()
		WHERE status = $3 AND created_at < $4
		RETURNING ` + jobColumns
	rows, err := r.pool.Query(ctx, q, models.JobStatusFailed, msg, models.JobStatusProcessing, time.Now().Add(-olderThan))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.ProcessingJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *job)
	}
	return list, rows.Err()
}

func scanJob(row pgx.Row) (*models.ProcessingJob, error) {
	var j models.ProcessingJob
	var cfg []byte
	if err := row.Scan(&j.ID, &j.MediaFileID, &j.JobType, &j.Status, &cfg, &j.OutputURL, &j.ErrorMessage, &j.EditsApplied, &j.AdsInserted, &j.CreatedAt, &j.CompletedAt); err != nil {
		return nil, err
	}
	j.Config = cfg
	return &j, nil
}

// Package processing tracks "a video was asked to be edited" as a job row,
// runs the job outside the request, and records its single terminal transition.
package processing

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/Seeksy-app/powering-how-people-work-and-share-online-sub001/internal/models"
)

// ErrMediaFileNotFound is returned when a job targets a missing or deleted media file.
var ErrMediaFileNotFound = errors.New("media file not found")

// Store is the persistence used by the service, processor and worker.
type Store interface {
	GetMediaFile(ctx context.Context, id uuid.UUID) (*models.MediaFile, error)
	CreateJob(ctx context.Context, job *models.ProcessingJob) error
	GetJob(ctx context.Context, id uuid.UUID) (*models.ProcessingJob, error)
	ListJobsByMedia(ctx context.Context, mediaFileID uuid.UUID) ([]models.ProcessingJob, error)
	ListEditInstructions(ctx context.Context, mediaFileID uuid.UUID) ([]models.EditInstruction, error)
	ListAdSlots(ctx context.Context, mediaFileID uuid.UUID) ([]models.AdSlot, error)
	InsertOperations(ctx context.Context, ops []models.JobOperation) error
	Complete(ctx context.Context, id uuid.UUID, outputURL string, editsApplied, adsInserted int) (bool, error)
	Fail(ctx context.Context, id uuid.UUID, msg string) (bool, error)
	FailStale(ctx context.Context, olderThan time.Duration, msg string) ([]models.ProcessingJob, error)
}

package processing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Seeksy-app/powering-how-people-work-and-share-online-sub001/internal/models"
)

// ErrInvalidJobType is returned for job types other than ai_edit, ad_insertion and full_process.
var ErrInvalidJobType = errors.New("invalid job type")

// SubmitRequest asks for one processing job.
type SubmitRequest struct {
	UserID      uuid.UUID
	MediaFileID uuid.UUID
	JobType     models.JobType
	Config      json.RawMessage
	// AnyOwner lets service callers process files they do not own.
	AnyOwner bool
}

// Service creates jobs and hands them to a dispatcher.
type Service struct {
	store      Store
	dispatcher Dispatcher
	logger     *zap.Logger
}

// NewService creates a processing service.
func NewService(store Store, dispatcher Dispatcher, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, dispatcher: dispatcher, logger: logger}
}

// Submit creates a job in processing state and dispatches it without waiting.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*models.ProcessingJob, Handle, error) {
	if !req.JobType.Valid() {
		return nil, nil, ErrInvalidJobType
	}
	if _, err := s.ownedMedia(ctx, req.MediaFileID, req.UserID, req.AnyOwner); err != nil {
		return nil, nil, err
	}

	config := req.Config
	if len(config) == 0 || string(config) == "null" {
		config = json.RawMessage(`{}`)
	}
	job := &models.ProcessingJob{
		MediaFileID: req.MediaFileID,
		JobType:     req.JobType,
		Status:      models.JobStatusProcessing,
		Config:      config,
	}
	if err := s.store.CreateJob(ctx, job); err != nil {
		return nil, nil, fmt.Errorf("create job: %w", err)
	}

	handle, err := s.dispatcher.Dispatch(ctx, job)
	if err != nil {
		// Nothing will ever pick the job up; close it now.
		if _, ferr := s.store.Fail(context.WithoutCancel(ctx), job.ID, "dispatch failed: "+err.Error()); ferr != nil {
			s.logger.Error("fail undispatched job", zap.String("job_id", job.ID.String()), zap.Error(ferr))
		}
		return nil, nil, fmt.Errorf("dispatch job: %w", err)
	}
	s.logger.Info("job submitted",
		zap.String("job_id", job.ID.String()),
		zap.String("media_file_id", job.MediaFileID.String()),
		zap.String("job_type", string(job.JobType)),
	)
	return job, handle, nil
}

// Get returns a job if its media file belongs to userID.
func (s *Service) Get(ctx context.Context, jobID, userID uuid.UUID, anyOwner bool) (*models.ProcessingJob, error) {
	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if _, err := s.ownedMedia(ctx, job.MediaFileID, userID, anyOwner); err != nil {
		if errors.Is(err, ErrMediaFileNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}
	return job, nil
}

// ListForMedia returns the jobs of a media file owned by userID, newest first.
func (s *Service) ListForMedia(ctx context.Context, mediaFileID, userID uuid.UUID, anyOwner bool) ([]models.ProcessingJob, error) {
	if _, err := s.ownedMedia(ctx, mediaFileID, userID, anyOwner); err != nil {
		return nil, err
	}
	return s.store.ListJobsByMedia(ctx, mediaFileID)
}

func (s *Service) ownedMedia(ctx context.Context, id, userID uuid.UUID, anyOwner bool) (*models.MediaFile, error) {
	f, err := s.store.GetMediaFile(ctx, id)
	if err != nil {
		return nil, err
	}
	if !anyOwner && f.UserID != userID {
		return nil, ErrMediaFileNotFound
	}
	return f, nil
}

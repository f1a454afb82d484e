package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Seeksy-app/powering-how-people-work-and-share-online-sub001/internal/metrics"
	"github.com/Seeksy-app/powering-how-people-work-and-share-online-sub001/internal/models"
	"github.com/Seeksy-app/powering-how-people-work-and-share-online-sub001/internal/notify"
	"github.com/Seeksy-app/powering-how-people-work-and-share-online-sub001/internal/processing"
	"github.com/Seeksy-app/powering-how-people-work-and-share-online-sub001/pkg/queue"
)

// StaleMessage is the error recorded on jobs failed by recovery.
const StaleMessage = "job timed out"

// JobRunner runs one processing job to a terminal state.
type JobRunner interface {
	Run(ctx context.Context, jobID uuid.UUID) error
}

// JobProcessor consumes processing jobs from a queue.
type JobProcessor struct {
	runner JobRunner
	logger *zap.Logger
}

// NewJobProcessor creates a queue job processor.
func NewJobProcessor(runner JobRunner, logger *zap.Logger) *JobProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &JobProcessor{runner: runner, logger: logger}
}

// Process executes one queued job. It implements queue.Handler.
func (p *JobProcessor) Process(ctx context.Context, job *queue.Job) error {
	payload, err := queue.DecodeProcessVideo(job)
	if err != nil {
		return err
	}
	p.logger.Debug("processing job",
		zap.String("message_id", job.ID),
		zap.String("job_id", payload.JobID.String()),
		zap.String("job_type", payload.JobType),
	)
	// A job already started runs to its terminal state even during shutdown.
	if err := p.runner.Run(context.WithoutCancel(ctx), payload.JobID); err != nil {
		return fmt.Errorf("run job %s: %w", payload.JobID, err)
	}
	return nil
}

// Run consumes jobs until ctx is done.
func (p *JobProcessor) Run(ctx context.Context, consumer queue.Consumer) error {
	p.logger.Info("processing worker started")
	err := consumer.Consume(ctx, p.Process)
	p.logger.Info("processing worker stopping")
	return err
}

// StaleStore fails jobs stuck in processing.
type StaleStore interface {
	FailStale(ctx context.Context, olderThan time.Duration, msg string) ([]models.ProcessingJob, error)
}

// Recovery periodically fails jobs left in processing by a crashed worker.
type Recovery struct {
	store      StaleStore
	events     processing.Events
	notifier   notify.Notifier
	owners     func(ctx context.Context, mediaFileID uuid.UUID) (uuid.UUID, error)
	staleAfter time.Duration
	every      time.Duration
	logger     *zap.Logger
}

// RecoveryOption configures a Recovery.
type RecoveryOption func(*Recovery)

// WithEvents publishes a failed event for each recovered job.
func WithEvents(events processing.Events) RecoveryOption {
	return func(r *Recovery) { r.events = events }
}

// WithNotifier tells the media owner about recovered jobs. owner resolves the
// owner of a media file.
func WithNotifier(n notify.Notifier, owner func(ctx context.Context, mediaFileID uuid.UUID) (uuid.UUID, error)) RecoveryOption {
	return func(r *Recovery) {
		r.notifier = n
		r.owners = owner
	}
}

// NewRecovery creates a stale-job recovery loop.
func NewRecovery(store StaleStore, staleAfter, every time.Duration, logger *zap.Logger, opts ...RecoveryOption) *Recovery {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Recovery{store: store, staleAfter: staleAfter, every: every, logger: logger}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Sweep fails every stale job once and returns how many were failed.
func (r *Recovery) Sweep(ctx context.Context) (int, error) {
	jobs, err := r.store.FailStale(ctx, r.staleAfter, StaleMessage)
	if err != nil {
		return 0, fmt.Errorf("fail stale jobs: %w", err)
	}
	if len(jobs) == 0 {
		return 0, nil
	}
	metrics.StaleJobsFailed.Add(float64(len(jobs)))
	for _, job := range jobs {
		r.logger.Warn("stale job failed",
			zap.String("job_id", job.ID.String()),
			zap.String("job_type", string(job.JobType)),
			zap.Time("created_at", job.CreatedAt),
		)
		metrics.JobsProcessed.WithLabelValues(string(job.JobType), string(models.JobStatusFailed)).Inc()
		if r.events != nil {
			ev := processing.JobEvent{JobID: job.ID, Status: models.JobStatusFailed, At: time.Now().Unix()}
			if err := r.events.Publish(ctx, ev); err != nil {
				r.logger.Warn("publish stale job event failed", zap.String("job_id", job.ID.String()), zap.Error(err))
			}
		}
		if r.notifier != nil && r.owners != nil {
			owner, err := r.owners(ctx, job.MediaFileID)
			if err != nil {
				continue
			}
			r.notifier.Error(ctx, owner, "Processing failed", StaleMessage)
		}
	}
	return len(jobs), nil
}

// Run sweeps immediately and then on every tick until ctx is done.
func (r *Recovery) Run(ctx context.Context) {
	ticker := time.NewTicker(r.every)
	defer ticker.Stop()
	for {
		if n, err := r.Sweep(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			r.logger.Error("stale job sweep failed", zap.Error(err))
		} else if n > 0 {
			r.logger.Info("stale jobs recovered", zap.Int("count", n))
		}
		select {
		case <-ctx.Done():
			r.logger.Info("recovery loop stopping")
			return
		case <-ticker.C:
		}
	}
}

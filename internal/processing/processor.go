package processing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Seeksy-app/powering-how-people-work-and-share-online-sub001/internal/metrics"
	"github.com/Seeksy-app/powering-how-people-work-and-share-online-sub001/internal/models"
	"github.com/Seeksy-app/powering-how-people-work-and-share-online-sub001/internal/notify"
)

// Processor executes processing jobs. No media is transformed: the job
// records the edits and ad insertions it would perform and completes with
// the input file as its output.
type Processor struct {
	store    Store
	events   Events
	notifier notify.Notifier
	logger   *zap.Logger

	writeAttempts int
	writeBackoff  time.Duration
}

// NewProcessor creates a processor. events and notifier may be nil.
func NewProcessor(store Store, events Events, notifier notify.Notifier, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{
		store:         store,
		events:        events,
		notifier:      notifier,
		logger:        logger,
		writeAttempts: 3,
		writeBackoff:  250 * time.Millisecond,
	}
}

type outcome struct {
	userID       uuid.UUID
	outputURL    string
	editsApplied int
	adsInserted  int
}

// Run processes one job and moves it to completed or failed exactly once.
// A job that is already terminal is left alone. The returned error means the
// terminal state could not be recorded.
func (p *Processor) Run(ctx context.Context, jobID uuid.UUID) error {
	job, err := p.store.GetJob(ctx, jobID)
	if errors.Is(err, ErrJobNotFound) {
		return fmt.Errorf("load job %s: %w", jobID, err)
	}
	if err != nil {
		return p.failUnloaded(ctx, jobID, fmt.Errorf("load job: %w", err))
	}
	if job.Status.Terminal() {
		p.logger.Info("job already finished", zap.String("job_id", jobID.String()), zap.String("status", string(job.Status)))
		return nil
	}

	start := time.Now()
	res, runErr := p.execute(ctx, job)

	// Terminal writes outlive the caller's context.
	wctx := context.WithoutCancel(ctx)
	status := models.JobStatusCompleted
	var updated bool
	if runErr == nil {
		updated, err = p.terminalWrite(wctx, func(ctx context.Context) (bool, error) {
			return p.store.Complete(ctx, jobID, res.outputURL, res.editsApplied, res.adsInserted)
		})
		if err != nil {
			runErr = fmt.Errorf("record completion: %w", err)
		}
	}
	if runErr != nil {
		status = models.JobStatusFailed
		msg := runErr.Error()
		updated, err = p.terminalWrite(wctx, func(ctx context.Context) (bool, error) {
			return p.store.Fail(ctx, jobID, msg)
		})
		if err != nil {
			return fmt.Errorf("record failure of job %s (%v): %w", jobID, runErr, err)
		}
	}

	if !updated {
		p.logger.Warn("job left processing before it finished", zap.String("job_id", jobID.String()))
		return nil
	}

	elapsed := time.Since(start)
	metrics.JobsProcessed.WithLabelValues(string(job.JobType), string(status)).Inc()
	metrics.JobDuration.WithLabelValues(string(job.JobType), string(status)).Observe(elapsed.Seconds())

	fields := []zap.Field{
		zap.String("job_id", jobID.String()),
		zap.String("job_type", string(job.JobType)),
		zap.String("status", string(status)),
		zap.Duration("elapsed", elapsed),
	}
	if runErr != nil {
		p.logger.Warn("job failed", append(fields, zap.Error(runErr))...)
	} else {
		p.logger.Info("job completed", append(fields, zap.Int("edits_applied", res.editsApplied), zap.Int("ads_inserted", res.adsInserted))...)
	}

	p.announce(wctx, jobID, status, res.userID, runErr)
	return nil
}

// failUnloaded marks a job failed when it could not be read. The update is
// conditional, so a job that already finished keeps its status.
func (p *Processor) failUnloaded(ctx context.Context, jobID uuid.UUID, loadErr error) error {
	wctx := context.WithoutCancel(ctx)
	msg := loadErr.Error()
	updated, err := p.terminalWrite(wctx, func(ctx context.Context) (bool, error) {
		return p.store.Fail(ctx, jobID, msg)
	})
	if err != nil {
		return fmt.Errorf("record failure of job %s (%v): %w", jobID, loadErr, err)
	}
	if updated {
		p.logger.Warn("job failed before it started", zap.String("job_id", jobID.String()), zap.Error(loadErr))
		p.announce(wctx, jobID, models.JobStatusFailed, uuid.Nil, loadErr)
	}
	return nil
}

// terminalWrite retries a terminal status update a few times before giving up.
func (p *Processor) terminalWrite(ctx context.Context, write func(context.Context) (bool, error)) (bool, error) {
	attempts := max(p.writeAttempts, 1)
	var err error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			time.Sleep(p.writeBackoff * time.Duration(i))
		}
		var updated bool
		if updated, err = write(ctx); err == nil {
			return updated, nil
		}
		p.logger.Warn("terminal status write failed", zap.Int("attempt", i+1), zap.Error(err))
	}
	return false, err
}

// execute builds and records the job's operations. Panics become errors.
func (p *Processor) execute(ctx context.Context, job *models.ProcessingJob) (res outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	file, err := p.store.GetMediaFile(ctx, job.MediaFileID)
	if err != nil {
		return res, fmt.Errorf("load media file: %w", err)
	}
	res.userID = file.UserID

	var edits []models.EditInstruction
	if job.JobType.AppliesEdits() {
		if edits, err = p.store.ListEditInstructions(ctx, file.ID); err != nil {
			return res, fmt.Errorf("load edit instructions: %w", err)
		}
	}
	var slots []models.AdSlot
	if job.JobType.InsertsAds() {
		if slots, err = p.store.ListAdSlots(ctx, file.ID); err != nil {
			return res, fmt.Errorf("load ad slots: %w", err)
		}
	}

	ops := PlanOperations(job.ID, edits, slots)
	if err := p.store.InsertOperations(ctx, ops); err != nil {
		return res, fmt.Errorf("record operations: %w", err)
	}

	res.outputURL = file.FileURL
	res.editsApplied = len(edits)
	res.adsInserted = len(slots)
	return res, nil
}

// PlanOperations describes the edits and ad insertions a job would perform, edits first.
func PlanOperations(jobID uuid.UUID, edits []models.EditInstruction, slots []models.AdSlot) []models.JobOperation {
	ops := make([]models.JobOperation, 0, len(edits)+len(slots))
	for _, e := range edits {
		ops = append(ops, models.JobOperation{
			JobID:        jobID,
			Seq:          len(ops) + 1,
			Operation:    models.OperationEdit,
			Kind:         e.Kind,
			StartSeconds: e.StartSeconds,
			EndSeconds:   e.EndSeconds,
			Description:  fmt.Sprintf("%s from %.2fs to %.2fs", e.Kind, e.StartSeconds, e.EndSeconds),
		})
	}
	for _, s := range slots {
		ops = append(ops, models.JobOperation{
			JobID:        jobID,
			Seq:          len(ops) + 1,
			Operation:    models.OperationAdInsert,
			Kind:         "ad",
			StartSeconds: s.PositionSeconds,
			EndSeconds:   s.PositionSeconds + s.DurationSeconds,
			Description:  fmt.Sprintf("insert %s at %.2fs for %.2fs", s.AdFileURL, s.PositionSeconds, s.DurationSeconds),
		})
	}
	return ops
}

func (p *Processor) announce(ctx context.Context, jobID uuid.UUID, status models.JobStatus, userID uuid.UUID, runErr error) {
	if p.events != nil {
		ev := JobEvent{JobID: jobID, Status: status, At: time.Now().Unix()}
		if err := p.events.Publish(ctx, ev); err != nil {
			p.logger.Warn("publish job event failed", zap.String("job_id", jobID.String()), zap.Error(err))
		}
	}
	if p.notifier == nil || userID == uuid.Nil {
		return
	}
	if runErr != nil {
		p.notifier.Error(ctx, userID, "Processing failed", runErr.Error())
		return
	}
	p.notifier.Info(ctx, userID, "Processing complete", "Job "+jobID.String()+" completed")
}

package processing

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Seeksy-app/powering-how-people-work-and-share-online-sub001/internal/models"
	"github.com/Seeksy-app/powering-how-people-work-and-share-online-sub001/pkg/queue"
)

// Handle observes a dispatched job.
type Handle interface {
	ID() uuid.UUID
	// Done is closed once the job is terminal.
	Done() <-chan struct{}
	// Wait blocks until the job is terminal or ctx is done and returns the job.
	Wait(ctx context.Context) (*models.ProcessingJob, error)
}

// Dispatcher starts a created job without blocking the caller.
type Dispatcher interface {
	Dispatch(ctx context.Context, job *models.ProcessingJob) (Handle, error)
}

// LocalDispatcher runs jobs on goroutines in this process.
type LocalDispatcher struct {
	proc   *Processor
	store  Store
	logger *zap.Logger
	wg     sync.WaitGroup
}

// NewLocalDispatcher creates an in-process dispatcher.
func NewLocalDispatcher(proc *Processor, store Store, logger *zap.Logger) *LocalDispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LocalDispatcher{proc: proc, store: store, logger: logger}
}

// Dispatch runs the job in the background, detached from ctx cancellation.
func (d *LocalDispatcher) Dispatch(ctx context.Context, job *models.ProcessingJob) (Handle, error) {
	h := &localHandle{id: job.ID, store: d.store, done: make(chan struct{})}
	runCtx := context.WithoutCancel(ctx)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer close(h.done)
		if err := d.proc.Run(runCtx, job.ID); err != nil {
			h.err = err
			d.logger.Error("job run failed", zap.String("job_id", job.ID.String()), zap.Error(err))
		}
	}()
	return h, nil
}

// Wait blocks until every dispatched job has returned or ctx is done.
func (d *LocalDispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type localHandle struct {
	id    uuid.UUID
	store Store
	done  chan struct{}
	err   error
}

func (h *localHandle) ID() uuid.UUID { return h.id }
func (h *localHandle) Done() <-chan struct{} { return h.done }

func (h *localHandle) Wait(ctx context.Context) (*models.ProcessingJob, error) {
	select {
	case <-h.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if h.err != nil {
		return nil, h.err
	}
	return h.store.GetJob(ctx, h.id)
}

// QueueDispatcher hands jobs to workers through a queue and observes
// completion through Events.
type QueueDispatcher struct {
	pub    queue.Publisher
	events Events
	store  Store
}

// NewQueueDispatcher creates a queue-backed dispatcher.
func NewQueueDispatcher(pub queue.Publisher, events Events, store Store) *QueueDispatcher {
	return &QueueDispatcher{pub: pub, events: events, store: store}
}

// Dispatch publishes the job for a worker.
func (d *QueueDispatcher) Dispatch(ctx context.Context, job *models.ProcessingJob) (Handle, error) {
	msg, err := queue.NewJob(queue.JobTypeProcessVideo, queue.ProcessVideoPayload{
		JobID:       job.ID,
		MediaFileID: job.MediaFileID,
		JobType:     string(job.JobType),
	})
	if err != nil {
		return nil, err
	}
	if err := d.pub.Publish(ctx, msg); err != nil {
		return nil, fmt.Errorf("publish job: %w", err)
	}
	return &queueHandle{id: job.ID, events: d.events, store: d.store, done: make(chan struct{})}, nil
}

type queueHandle struct {
	id     uuid.UUID
	events Events
	store  Store
	once   sync.Once
	done   chan struct{}
}

func (h *queueHandle) ID() uuid.UUID { return h.id }

// Done starts a watcher on first use.
func (h *queueHandle) Done() <-chan struct{} {
	h.once.Do(func() {
		go func() {
			defer close(h.done)
			_, _ = h.Wait(context.Background())
		}()
	})
	return h.done
}

// Wait subscribes before reading the row so a completion between the two is not missed.
func (h *queueHandle) Wait(ctx context.Context) (*models.ProcessingJob, error) {
	events, cancel, err := h.events.Subscribe(ctx, h.id)
	if err != nil {
		return nil, err
	}
	defer cancel()

	job, err := h.store.GetJob(ctx, h.id)
	if err != nil {
		return nil, err
	}
	if job.Status.Terminal() {
		return job, nil
	}
	select {
	case <-events:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return h.store.GetJob(ctx, h.id)
}

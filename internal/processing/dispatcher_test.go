package processing

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Seeksy-app/powering-how-people-work-and-share-online-sub001/internal/models"
	"github.com/Seeksy-app/powering-how-people-work-and-share-online-sub001/pkg/queue"
)

type recordingPublisher struct {
	mu   sync.Mutex
	jobs []*queue.Job
	err  error
}

func (p *recordingPublisher) Publish(_ context.Context, job *queue.Job) error {
	if p.err != nil {
		return p.err
	}
	p.mu.Lock()
	p.jobs = append(p.jobs, job)
	p.mu.Unlock()
	return nil
}

func TestService_SubmitLocalRunsJob(t *testing.T) {
	store := newMemStore()
	userID := uuid.New()
	file := store.addFile(userID)
	proc := NewProcessor(store, nil, nil, nil)
	disp := NewLocalDispatcher(proc, store, nil)
	svc := NewService(store, disp, nil)

	job, handle, err := svc.Submit(context.Background(), SubmitRequest{UserID: userID, MediaFileID: file.ID, JobType: models.JobTypeAIEdit})
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusProcessing, job.Status)
	assert.JSONEq(t, `{}`, string(job.Config))
	assert.Equal(t, job.ID, handle.ID())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	final, err := handle.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, final.Status)

	select {
	case <-handle.Done():
	default:
		t.Fatal("done not closed after wait")
	}
	require.NoError(t, disp.Wait(ctx))
}

func TestService_SubmitRejects(t *testing.T) {
	store := newMemStore()
	owner := uuid.New()
	file := store.addFile(owner)
	svc := NewService(store, NewLocalDispatcher(NewProcessor(store, nil, nil, nil), store, nil), nil)

	t.Run("invalid job type", func(t *testing.T) {
		_, _, err := svc.Submit(context.Background(), SubmitRequest{UserID: owner, MediaFileID: file.ID, JobType: "transcode"})
		assert.ErrorIs(t, err, ErrInvalidJobType)
	})

	t.Run("foreign media", func(t *testing.T) {
		_, _, err := svc.Submit(context.Background(), SubmitRequest{UserID: uuid.New(), MediaFileID: file.ID, JobType: models.JobTypeAIEdit})
		assert.ErrorIs(t, err, ErrMediaFileNotFound)
	})

	t.Run("missing media", func(t *testing.T) {
		_, _, err := svc.Submit(context.Background(), SubmitRequest{UserID: owner, MediaFileID: uuid.New(), JobType: models.JobTypeAIEdit})
		assert.ErrorIs(t, err, ErrMediaFileNotFound)
	})

	assert.Empty(t, store.jobs)
}

func TestService_DispatchFailureFailsJob(t *testing.T) {
	store := newMemStore()
	owner := uuid.New()
	file := store.addFile(owner)
	pub := &recordingPublisher{err: errors.New("redis down")}
	svc := NewService(store, NewQueueDispatcher(pub, NewMemoryEvents(), store), nil)

	_, _, err := svc.Submit(context.Background(), SubmitRequest{UserID: owner, MediaFileID: file.ID, JobType: models.JobTypeAIEdit})
	require.Error(t, err)

	require.Len(t, store.jobs, 1)
	for _, j := range store.jobs {
		assert.Equal(t, models.JobStatusFailed, j.Status)
		assert.Contains(t, j.ErrorMessage, "dispatch failed")
	}
}

func TestQueueDispatcher_PublishesAndObservesCompletion(t *testing.T) {
	store := newMemStore()
	owner := uuid.New()
	file := store.addFile(owner)
	events := NewMemoryEvents()
	pub := &recordingPublisher{}
	svc := NewService(store, NewQueueDispatcher(pub, events, store), nil)

	job, handle, err := svc.Submit(context.Background(), SubmitRequest{UserID: owner, MediaFileID: file.ID, JobType: models.JobTypeFullProcess})
	require.NoError(t, err)

	require.Len(t, pub.jobs, 1)
	payload, err := queue.DecodeProcessVideo(pub.jobs[0])
	require.NoError(t, err)
	assert.Equal(t, job.ID, payload.JobID)
	assert.Equal(t, file.ID, payload.MediaFileID)
	assert.Equal(t, "full_process", payload.JobType)

	// Stands in for the worker.
	proc := NewProcessor(store, events, nil, nil)
	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = proc.Run(context.Background(), payload.JobID)
	}()

	select {
	case <-handle.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("handle never finished")
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	final, err := handle.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, final.Status)
}

func TestQueueHandle_WaitHonorsContext(t *testing.T) {
	store := newMemStore()
	file := store.addFile(uuid.New())
	job := newJob(t, store, file.ID, models.JobTypeAIEdit)
	handle, err := NewQueueDispatcher(&recordingPublisher{}, NewMemoryEvents(), store).Dispatch(context.Background(), job)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err = handle.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

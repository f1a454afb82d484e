package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewJob_RoundTripsProcessPayload(t *testing.T) {
	want := ProcessVideoPayload{JobID: uuid.New(), MediaFileID: uuid.New(), JobType: "ai_edit"}

	job, err := NewJob(JobTypeProcessVideo, want)
	require.NoError(t, err)
	assert.NotEmpty(t, job.ID)
	assert.False(t, job.CreatedAt.IsZero())

	raw, err := json.Marshal(job)
	require.NoError(t, err)
	var decoded Job
	require.NoError(t, json.Unmarshal(raw, &decoded))

	got, err := DecodeProcessVideo(&decoded)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestDecodeProcessVideo_Rejects(t *testing.T) {
	t.Run("wrong type", func(t *testing.T) {
		_, err := DecodeProcessVideo(&Job{Type: "email", Payload: json.RawMessage(`{}`)})
		assert.ErrorContains(t, err, "unknown job type")
	})

	t.Run("bad payload", func(t *testing.T) {
		_, err := DecodeProcessVideo(&Job{Type: JobTypeProcessVideo, Payload: json.RawMessage(`[1]`)})
		assert.Error(t, err)
	})

	t.Run("missing job id", func(t *testing.T) {
		_, err := DecodeProcessVideo(&Job{Type: JobTypeProcessVideo, Payload: json.RawMessage(`{"job_type":"ai_edit"}`)})
		assert.ErrorContains(t, err, "missing job_id")
	})
}

type deadLetters struct {
	entries [][]byte
	err     error
}

func (d *deadLetters) write(_ context.Context, entry []byte) error {
	if d.err != nil {
		return d.err
	}
	d.entries = append(d.entries, entry)
	return nil
}

func TestNATSQueue_DeliverDeadLettersFailedJobs(t *testing.T) {
	dlq := &deadLetters{}
	q := &NATSQueue{logger: zap.NewNop(), deadLetter: dlq.write}
	job, err := NewJob(JobTypeProcessVideo, ProcessVideoPayload{JobID: uuid.New(), JobType: "full_process"})
	require.NoError(t, err)
	raw, err := json.Marshal(job)
	require.NoError(t, err)

	t.Run("handler success is acked", func(t *testing.T) {
		ok := q.deliver(context.Background(), raw, func(context.Context, *Job) error { return nil })
		assert.True(t, ok)
		assert.Empty(t, dlq.entries)
	})

	t.Run("handler error is dead-lettered", func(t *testing.T) {
		ok := q.deliver(context.Background(), raw, func(context.Context, *Job) error {
			return errors.New("record failure: db down")
		})
		assert.False(t, ok)
		require.Len(t, dlq.entries, 1)

		var entry struct {
			ID     string `json:"id"`
			Reason string `json:"reason"`
		}
		require.NoError(t, json.Unmarshal(dlq.entries[0], &entry))
		assert.Equal(t, job.ID, entry.ID)
		assert.Equal(t, "record failure: db down", entry.Reason)
	})

	t.Run("unreadable payload is dead-lettered as is", func(t *testing.T) {
		dlq.entries = nil
		ok := q.deliver(context.Background(), []byte("not json"), func(context.Context, *Job) error {
			t.Fatal("handler must not run")
			return nil
		})
		assert.False(t, ok)
		require.Len(t, dlq.entries, 1)
		assert.Equal(t, "not json", string(dlq.entries[0]))
	})
}

func TestNATSQueue_DeadLetterFailureStillTerminates(t *testing.T) {
	q := &NATSQueue{logger: zap.NewNop(), deadLetter: (&deadLetters{err: errors.New("no stream")}).write}
	raw, err := json.Marshal(&Job{ID: "j1", Type: JobTypeProcessVideo, Payload: json.RawMessage(`{}`)})
	require.NoError(t, err)

	ok := q.deliver(context.Background(), raw, func(context.Context, *Job) error { return errors.New("boom") })
	assert.False(t, ok)
}

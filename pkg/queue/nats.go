package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

const (
	// NATSStream is the JetStream stream carrying media jobs.
	NATSStream = "MEDIA_JOBS"
	// NATSSubject is the subject processing jobs are published on.
	NATSSubject = "media.jobs.process"
	// NATSDurable is the durable consumer name shared by workers.
	NATSDurable = "processing-worker"
	// NATSDLQStream keeps dead-lettered jobs for operators.
	NATSDLQStream = "MEDIA_JOBS_DLQ"
	// NATSDLQSubject receives jobs whose handler failed or whose payload was unreadable.
	NATSDLQSubject = "media.jobs.dlq"
)

// NATSQueue publishes and consumes jobs through NATS JetStream.
type NATSQueue struct {
	nc         *nats.Conn
	js         nats.JetStreamContext
	deadLetter func(ctx context.Context, entry []byte) error
	logger     *zap.Logger
}

// NewNATSQueue connects to url and ensures the job and dead-letter streams exist.
func NewNATSQueue(url string, logger *zap.Logger) (*NATSQueue, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	nc, err := nats.Connect(url, nats.Name("seeksy-media"))
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream context: %w", err)
	}
	streams := []*nats.StreamConfig{
		{Name: NATSStream, Subjects: []string{NATSSubject}, Retention: nats.WorkQueuePolicy},
		{Name: NATSDLQStream, Subjects: []string{NATSDLQSubject}, Retention: nats.LimitsPolicy},
	}
	for _, sc := range streams {
		if err := ensureStream(js, sc, logger); err != nil {
			nc.Close()
			return nil, err
		}
	}
	q := &NATSQueue{nc: nc, js: js, logger: logger}
	q.deadLetter = func(ctx context.Context, entry []byte) error {
		_, err := js.Publish(NATSDLQSubject, entry, nats.Context(ctx))
		return err
	}
	return q, nil
}

func ensureStream(js nats.JetStreamContext, sc *nats.StreamConfig, logger *zap.Logger) error {
	if _, err := js.StreamInfo(sc.Name); err == nil {
		return nil
	} else if !errors.Is(err, nats.ErrStreamNotFound) {
		return fmt.Errorf("stream info %s: %w", sc.Name, err)
	}
	if _, err := js.AddStream(sc); err != nil {
		return fmt.Errorf("add stream %s: %w", sc.Name, err)
	}
	logger.Info("created jetstream stream", zap.String("stream", sc.Name))
	return nil
}

// Publish sends job to the processing subject.
func (q *NATSQueue) Publish(ctx context.Context, job *Job) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if _, err := q.js.Publish(NATSSubject, raw, nats.Context(ctx), nats.MsgId(job.ID)); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	q.logger.Debug("published job", zap.String("job_id", job.ID))
	return nil
}

// Consume subscribes with the shared durable consumer and blocks until ctx is done.
// Every delivered message is acked or terminated; nothing is redelivered on handler error.
func (q *NATSQueue) Consume(ctx context.Context, handle Handler) error {
	sub, err := q.js.Subscribe(NATSSubject, func(m *nats.Msg) {
		if q.deliver(ctx, m.Data, handle) {
			_ = m.Ack()
			return
		}
		_ = m.Term()
	}, nats.Durable(NATSDurable), nats.ManualAck(), nats.DeliverAll())
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	q.logger.Info("subscribed", zap.String("subject", sub.Subject))

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		q.logger.Warn("drain subscription", zap.Error(err))
	}
	return nil
}

// deliver runs handle on one message and reports whether it succeeded.
// Failed or unreadable messages are copied to the dead-letter subject first.
func (q *NATSQueue) deliver(ctx context.Context, data []byte, handle Handler) bool {
	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		q.logger.Warn("invalid job payload", zap.Error(err))
		q.publishDeadLetter(data, "")
		return false
	}
	if err := handle(ctx, &job); err != nil {
		q.logger.Error("job failed", zap.String("job_id", job.ID), zap.Error(err))
		entry, mErr := DeadLetterEntry(&job, err.Error())
		if mErr != nil {
			q.logger.Error("dead-letter encode failed", zap.Error(mErr))
			entry = data
		}
		q.publishDeadLetter(entry, job.ID)
		return false
	}
	return true
}

func (q *NATSQueue) publishDeadLetter(entry []byte, jobID string) {
	if q.deadLetter == nil {
		return
	}
	// The dead-letter write must survive shutdown.
	if err := q.deadLetter(context.Background(), entry); err != nil {
		q.logger.Error("dead-letter failed", zap.String("job_id", jobID), zap.Error(err))
		return
	}
	q.logger.Warn("job moved to DLQ", zap.String("job_id", jobID), zap.String("subject", NATSDLQSubject))
}

// Close closes the NATS connection.
func (q *NATSQueue) Close() {
	q.nc.Close()
}

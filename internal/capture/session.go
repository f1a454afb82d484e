package capture

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Seeksy-app/powering-how-people-work-and-share-online-sub001/internal/auth"
	"github.com/Seeksy-app/powering-how-people-work-and-share-online-sub001/internal/metrics"
	"github.com/Seeksy-app/powering-how-people-work-and-share-online-sub001/internal/notify"
)

// SliceInterval is how often buffered data is sealed into a slice.
const SliceInterval = time.Second

// flushTimeout bounds the wait for a source to flush on stop.
const flushTimeout = 10 * time.Second

// State is the lifecycle state of a Session.
type State string

const (
	StateIdle       State = "idle"
	StateRecording  State = "recording"
	StateProcessing State = "processing"
)

// Option configures a Session.
type Option func(*Session)

// WithSliceInterval overrides SliceInterval.
func WithSliceInterval(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.sliceInterval = d
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// WithLogger sets the session logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// OnFinalized registers a callback for captures finalized because the stream ended.
func OnFinalized(fn func(*Recording, error)) Option {
	return func(s *Session) { s.onFinalized = fn }
}

// Session is one screen capture: idle → recording → processing → idle, or
// idle → recording → idle on cancel. A Session can be reused after it returns to idle.
type Session struct {
	source   Source
	store    Store
	notifier notify.Notifier
	sessions auth.SessionProvider
	logger   *zap.Logger

	sliceInterval time.Duration
	now           func() time.Time
	onFinalized   func(*Recording, error)

	mu        sync.Mutex
	state     State
	stream    Stream
	mimeType  string
	preset    Preset
	startedAt time.Time
	done      chan struct{}
	collected chan struct{}
	buf       *sliceBuffer
}

// sliceBuffer holds the data of one recording.
type sliceBuffer struct {
	mu     sync.Mutex
	slices [][]byte
	cur    []byte
}

func (b *sliceBuffer) add(chunk []byte) {
	b.mu.Lock()
	b.cur = append(b.cur, chunk...)
	b.mu.Unlock()
}

// seal closes the current slice.
func (b *sliceBuffer) seal() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.cur) == 0 {
		return
	}
	b.slices = append(b.slices, b.cur)
	b.cur = nil
}

// join returns all sealed slices as one blob; never nil.
func (b *sliceBuffer) join() []byte {
	b.seal()
	b.mu.Lock()
	defer b.mu.Unlock()
	return bytes.Join(b.slices, nil)
}

// NewSession creates an idle session.
func NewSession(source Source, store Store, notifier notify.Notifier, sessions auth.SessionProvider, opts ...Option) *Session {
	s := &Session{
		source:        source,
		store:         store,
		notifier:      notifier,
		sessions:      sessions,
		logger:        zap.NewNop(),
		sliceInterval: SliceInterval,
		now:           time.Now,
		state:         StateIdle,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.notifier == nil {
		s.notifier = notify.NewLogNotifier(s.logger)
	}
	return s
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// MimeType returns the encoding chosen by the last Start.
func (s *Session) MimeType() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mimeType
}

// Elapsed returns whole seconds since Start while recording, else zero.
func (s *Session) Elapsed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateRecording {
		return 0
	}
	return int(s.now().Sub(s.startedAt) / time.Second)
}

// Start opens a video-only stream in the preferred supported encoding and
// begins buffering. Failures are reported through the notifier and leave the session idle.
func (s *Session) Start(ctx context.Context, preset Preset) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateIdle {
		return ErrAlreadyRecording
	}

	mimeType, err := ChooseMIMEType(s.source)
	if err != nil {
		s.report(ctx, "Recording unavailable", "Your environment does not support screen recording.")
		metrics.CaptureSessions.WithLabelValues("unsupported").Inc()
		return err
	}
	stream, err := s.source.Open(ctx, mimeType)
	if err != nil {
		if errors.Is(err, ErrPermissionDenied) {
			s.report(ctx, "Permission denied", "Screen sharing was not allowed.")
			metrics.CaptureSessions.WithLabelValues("denied").Inc()
		} else {
			s.report(ctx, "Failed to start recording", err.Error())
			metrics.CaptureSessions.WithLabelValues("error").Inc()
		}
		return err
	}

	s.stream = stream
	s.mimeType = mimeType
	s.preset = preset
	s.startedAt = s.now()
	s.done = make(chan struct{})
	s.collected = make(chan struct{})
	s.buf = &sliceBuffer{}
	s.state = StateRecording

	go s.collect(stream, s.buf, s.collected)
	go s.watchEnded(stream, s.done)

	s.logger.Info("capture started", zap.String("mime_type", mimeType), zap.String("preset", preset.Slug()))
	metrics.CaptureSessions.WithLabelValues("started").Inc()
	return nil
}

// collect appends chunks to the current slice and seals it every slice interval.
func (s *Session) collect(stream Stream, buf *sliceBuffer, collected chan struct{}) {
	defer close(collected)
	ticker := time.NewTicker(s.sliceInterval)
	defer ticker.Stop()
	for {
		select {
		case chunk, ok := <-stream.Chunks():
			if !ok {
				buf.seal()
				return
			}
			buf.add(chunk)
		case <-ticker.C:
			buf.seal()
		}
	}
}

// watchEnded finalizes the capture when the stream ends on its own.
func (s *Session) watchEnded(stream Stream, done chan struct{}) {
	select {
	case <-done:
		return
	case <-stream.Ended():
	}
	s.logger.Info("capture stream ended")
	rec, err := s.Stop(context.Background(), Preset{})
	if errors.Is(err, ErrNotRecording) {
		return
	}
	if s.onFinalized != nil {
		s.onFinalized(rec, err)
	}
}

// Stop ends encoding, joins the buffered slices into one blob and stores it.
// A zero preset keeps the one given to Start. Store failures are reported
// through the notifier and return a nil recording.
func (s *Session) Stop(ctx context.Context, preset Preset) (*Recording, error) {
	s.mu.Lock()
	if s.state != StateRecording {
		s.mu.Unlock()
		return nil, ErrNotRecording
	}
	s.state = StateProcessing
	stream := s.stream
	collected := s.collected
	buf := s.buf
	if preset.ID == "" && preset.Name == "" {
		preset = s.preset
	}
	mimeType := s.mimeType
	duration := int(s.now().Sub(s.startedAt) / time.Second)
	close(s.done)
	s.mu.Unlock()

	defer s.reset()

	if err := stream.Stop(); err != nil {
		s.logger.Warn("capture flush failed", zap.Error(err))
	}
	select {
	case <-collected:
	case <-time.After(flushTimeout):
		s.logger.Warn("capture flush timed out")
	}
	_ = stream.Close()
	data := buf.join()

	userID, err := s.sessions.UserID(ctx)
	if err != nil {
		s.report(ctx, "Recording failed", "You must be signed in to save recordings.")
		metrics.CaptureSessions.WithLabelValues("error").Inc()
		return nil, err
	}

	blob := Blob{
		UserID:          userID,
		FileName:        FileName(preset, mimeType, s.now()),
		MimeType:        BaseMIMEType(mimeType),
		Data:            data,
		DurationSeconds: duration,
		Preset:          preset,
	}
	rec, err := s.store.Store(ctx, blob)
	if err != nil {
		s.logger.Error("store capture failed", zap.String("file_name", blob.FileName), zap.Error(err))
		s.notifier.Error(ctx, userID, "Failed to save recording", err.Error())
		metrics.CaptureSessions.WithLabelValues("error").Inc()
		return nil, err
	}
	s.notifier.Info(ctx, userID, "Recording saved", blob.FileName)
	metrics.CaptureSessions.WithLabelValues("stored").Inc()
	return rec, nil
}

// Cancel stops the timer and releases the stream without producing output.
func (s *Session) Cancel() {
	s.mu.Lock()
	if s.state != StateRecording {
		s.mu.Unlock()
		return
	}
	stream := s.stream
	close(s.done)
	s.state = StateIdle
	s.stream = nil
	s.buf = nil
	s.mu.Unlock()

	_ = stream.Close()
	s.logger.Info("capture cancelled")
	metrics.CaptureSessions.WithLabelValues("cancelled").Inc()
}

func (s *Session) reset() {
	s.mu.Lock()
	s.state = StateIdle
	s.stream = nil
	s.buf = nil
	s.mu.Unlock()
}

// report notifies the signed-in user, or uuid.Nil when none is known.
func (s *Session) report(ctx context.Context, title, message string) {
	userID, err := s.sessions.UserID(ctx)
	if err != nil {
		userID = uuid.Nil
	}
	s.notifier.Error(ctx, userID, title, message)
}

package capture

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"

	"github.com/Seeksy-app/powering-how-people-work-and-share-online-sub001/internal/auth"
	"github.com/Seeksy-app/powering-how-people-work-and-share-online-sub001/internal/notify"
)

// finishedRetention is how long a finished session stays readable.
const finishedRetention = 10 * time.Minute

// ErrSessionNotFound is returned for unknown or foreign session ids.
var ErrSessionNotFound = errors.New("capture session not found")

// Status is the externally visible state of a managed session.
type Status struct {
	ID             uuid.UUID  `json:"id"`
	State          State      `json:"state"`
	MimeType       string     `json:"mime_type,omitempty"`
	ElapsedSeconds int        `json:"elapsed_seconds"`
	Preset         Preset     `json:"preset"`
	Recording      *Recording `json:"recording,omitempty"`
	Error          string     `json:"error,omitempty"`
}

type managed struct {
	id         uuid.UUID
	userID     uuid.UUID
	preset     Preset
	session    *Session
	source     *WebRTCSource
	mu         sync.Mutex
	recording  *Recording
	err        error
	finishedAt time.Time
	finished   chan struct{}
	finishOnce sync.Once
}

// finish records the outcome of the session's single finalize.
func (m *managed) finish(rec *Recording, err error) {
	m.finishOnce.Do(func() {
		m.mu.Lock()
		m.recording = rec
		m.err = err
		m.finishedAt = time.Now()
		m.mu.Unlock()
		close(m.finished)
	})
}

// outcome waits for finish and returns its result.
func (m *managed) outcome(ctx context.Context) (*Recording, error) {
	select {
	case <-m.finished:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	if m.recording == nil {
		return nil, ErrNotRecording
	}
	return m.recording, nil
}

// Manager holds the server's browser capture sessions.
type Manager struct {
	store      Store
	notifier   notify.Notifier
	iceServers []webrtc.ICEServer
	logger     *zap.Logger

	mu       sync.Mutex
	sessions map[uuid.UUID]*managed
}

// NewManager creates a session manager.
func NewManager(store Store, notifier notify.Notifier, iceServers []webrtc.ICEServer, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		store:      store,
		notifier:   notifier,
		iceServers: iceServers,
		logger:     logger,
		sessions:   make(map[uuid.UUID]*managed),
	}
}

// Create starts a recording session for userID and returns its status.
func (m *Manager) Create(ctx context.Context, userID uuid.UUID, preset Preset) (*Status, error) {
	m.sweep()
	id := uuid.New()
	entry := &managed{id: id, userID: userID, preset: preset, finished: make(chan struct{})}
	entry.source = NewWebRTCSource(m.iceServers, m.logger)
	entry.session = NewSession(entry.source, m.store, m.notifier, auth.StaticSession(userID),
		WithLogger(m.logger.With(zap.String("capture_id", id.String()))),
		OnFinalized(entry.finish),
	)
	if err := entry.session.Start(ctx, preset); err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.sessions[id] = entry
	m.mu.Unlock()
	return m.status(entry), nil
}

// Offer hands the browser's SDP offer to the session and returns the answer.
func (m *Manager) Offer(ctx context.Context, id, userID uuid.UUID, sdp string) (string, error) {
	entry, err := m.get(id, userID)
	if err != nil {
		return "", err
	}
	return entry.source.Accept(ctx, sdp)
}

// Stop finalizes the session and returns the stored recording. When the
// stream already ended on its own, Stop waits for that finalize instead.
func (m *Manager) Stop(ctx context.Context, id, userID uuid.UUID) (*Recording, error) {
	entry, err := m.get(id, userID)
	if err != nil {
		return nil, err
	}
	rec, err := entry.session.Stop(ctx, Preset{})
	if errors.Is(err, ErrNotRecording) {
		return entry.outcome(ctx)
	}
	entry.finish(rec, err)
	return rec, err
}

// Cancel discards the session.
func (m *Manager) Cancel(id, userID uuid.UUID) error {
	entry, err := m.get(id, userID)
	if err != nil {
		return err
	}
	entry.session.Cancel()
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
	return nil
}

// Get returns the session status.
func (m *Manager) Get(id, userID uuid.UUID) (*Status, error) {
	entry, err := m.get(id, userID)
	if err != nil {
		return nil, err
	}
	return m.status(entry), nil
}

// Shutdown cancels every live session.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	entries := make([]*managed, 0, len(m.sessions))
	for _, e := range m.sessions {
		entries = append(entries, e)
	}
	m.sessions = make(map[uuid.UUID]*managed)
	m.mu.Unlock()
	for _, e := range entries {
		e.session.Cancel()
	}
}

func (m *Manager) get(id, userID uuid.UUID) (*managed, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.sessions[id]
	if !ok || entry.userID != userID {
		return nil, ErrSessionNotFound
	}
	return entry, nil
}

func (m *Manager) status(entry *managed) *Status {
	st := &Status{
		ID:             entry.id,
		State:          entry.session.State(),
		MimeType:       entry.session.MimeType(),
		ElapsedSeconds: entry.session.Elapsed(),
		Preset:         entry.preset,
	}
	entry.mu.Lock()
	st.Recording = entry.recording
	if entry.err != nil {
		st.Error = entry.err.Error()
	}
	entry.mu.Unlock()
	return st
}

// sweep drops sessions that finished more than finishedRetention ago.
func (m *Manager) sweep() {
	cutoff := time.Now().Add(-finishedRetention)
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, e := range m.sessions {
		e.mu.Lock()
		done := !e.finishedAt.IsZero() && e.finishedAt.Before(cutoff)
		e.mu.Unlock()
		if done {
			delete(m.sessions, id)
		}
	}
}

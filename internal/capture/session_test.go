package capture

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Seeksy-app/powering-how-people-work-and-share-online-sub001/internal/auth"
	"github.com/Seeksy-app/powering-how-people-work-and-share-online-sub001/internal/notify"
)

type fakeStream struct {
	chunks    chan []byte
	ended     chan struct{}
	closeOnce sync.Once
	endOnce   sync.Once
	mu        sync.Mutex
	stopped   bool
	closed    bool
}

func newFakeStream() *fakeStream {
	return &fakeStream{chunks: make(chan []byte, 64), ended: make(chan struct{})}
}

func (f *fakeStream) Chunks() <-chan []byte  { return f.chunks }
func (f *fakeStream) Ended() <-chan struct{} { return f.ended }

func (f *fakeStream) Stop() error {
	f.mu.Lock()
	f.stopped = true
	f.mu.Unlock()
	f.closeOnce.Do(func() { close(f.chunks) })
	return nil
}

func (f *fakeStream) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	f.closeOnce.Do(func() { close(f.chunks) })
	return nil
}

func (f *fakeStream) end() { f.endOnce.Do(func() { close(f.ended) }) }

func (f *fakeStream) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

type fakeSource struct {
	supported map[string]bool
	openErr   error
	stream    *fakeStream
	opened    string
}

func (f *fakeSource) Supports(mt string) bool { return f.supported[mt] }

func (f *fakeSource) Open(_ context.Context, mt string) (Stream, error) {
	if f.openErr != nil {
		return nil, f.openErr
	}
	f.opened = mt
	f.stream = newFakeStream()
	return f.stream, nil
}

type fakeStore struct {
	mu    sync.Mutex
	blobs []Blob
	err   error
}

func (f *fakeStore) Store(_ context.Context, b Blob) (*Recording, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.blobs = append(f.blobs, b)
	return &Recording{
		MediaFileID:     uuid.New(),
		FileName:        b.FileName,
		MimeType:        b.MimeType,
		SizeBytes:       int64(len(b.Data)),
		DurationSeconds: b.DurationSeconds,
		PresetID:        b.Preset.ID,
	}, nil
}

func (f *fakeStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.blobs)
}

func newTestSession(src *fakeSource, store *fakeStore, rec *notify.Recorder, opts ...Option) *Session {
	opts = append([]Option{WithSliceInterval(10 * time.Millisecond)}, opts...)
	return NewSession(src, store, rec, auth.StaticSession(uuid.New()), opts...)
}

func webmSource() *fakeSource {
	return &fakeSource{supported: map[string]bool{"video/webm;codecs=vp8": true, "video/webm": true}}
}

func TestSession_StartStop(t *testing.T) {
	src := webmSource()
	store := &fakeStore{}
	rec := &notify.Recorder{}
	s := newTestSession(src, store, rec)
	preset := Preset{ID: "p1", Name: "Demo Walkthrough"}

	require.NoError(t, s.Start(context.Background(), preset))
	assert.Equal(t, StateRecording, s.State())
	assert.Equal(t, "video/webm;codecs=vp8", src.opened)

	src.stream.chunks <- []byte("abc")
	time.Sleep(30 * time.Millisecond)
	src.stream.chunks <- []byte("def")

	got, err := s.Stop(context.Background(), Preset{})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, StateIdle, s.State())
	assert.Equal(t, int64(6), got.SizeBytes)
	assert.Equal(t, "p1", got.PresetID)

	require.Len(t, store.blobs, 1)
	assert.Equal(t, []byte("abcdef"), store.blobs[0].Data)
	assert.Equal(t, "video/webm", store.blobs[0].MimeType)
	assert.Regexp(t, `^demo-walkthrough-\d{4}-\d{2}-\d{2}-\d{2}-\d{2}-\d{2}\.webm$`, store.blobs[0].FileName)
	assert.True(t, src.stream.isClosed())
	assert.Empty(t, rec.Errors())
}

func TestSession_StopWithNoData(t *testing.T) {
	src := webmSource()
	store := &fakeStore{}
	s := newTestSession(src, store, &notify.Recorder{})

	require.NoError(t, s.Start(context.Background(), Preset{Name: "Empty"}))
	got, err := s.Stop(context.Background(), Preset{})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Zero(t, got.SizeBytes)
	require.Len(t, store.blobs, 1)
	assert.NotNil(t, store.blobs[0].Data)
	assert.Empty(t, store.blobs[0].Data)
}

func TestSession_CancelPersistsNothing(t *testing.T) {
	src := webmSource()
	store := &fakeStore{}
	rec := &notify.Recorder{}
	s := newTestSession(src, store, rec)

	require.NoError(t, s.Start(context.Background(), Preset{Name: "Demo"}))
	src.stream.chunks <- []byte("data")
	s.Cancel()

	assert.Equal(t, StateIdle, s.State())
	assert.True(t, src.stream.isClosed())
	assert.Zero(t, store.count())
	assert.Empty(t, rec.All())

	_, err := s.Stop(context.Background(), Preset{})
	assert.ErrorIs(t, err, ErrNotRecording)
	assert.Zero(t, store.count())
}

func TestSession_StartFailures(t *testing.T) {
	t.Run("permission denied", func(t *testing.T) {
		src := webmSource()
		src.openErr = ErrPermissionDenied
		rec := &notify.Recorder{}
		s := newTestSession(src, &fakeStore{}, rec)

		err := s.Start(context.Background(), Preset{})
		assert.ErrorIs(t, err, ErrPermissionDenied)
		assert.Equal(t, StateIdle, s.State())
		require.Len(t, rec.Errors(), 1)
		assert.Equal(t, "Permission denied", rec.Errors()[0].Title)
	})

	t.Run("no supported encoding", func(t *testing.T) {
		rec := &notify.Recorder{}
		s := newTestSession(&fakeSource{supported: map[string]bool{"video/ogg": true}}, &fakeStore{}, rec)

		err := s.Start(context.Background(), Preset{})
		assert.ErrorIs(t, err, ErrUnsupportedEncoding)
		assert.Equal(t, StateIdle, s.State())
		assert.Len(t, rec.Errors(), 1)
	})

	t.Run("already recording", func(t *testing.T) {
		s := newTestSession(webmSource(), &fakeStore{}, &notify.Recorder{})
		require.NoError(t, s.Start(context.Background(), Preset{}))
		assert.ErrorIs(t, s.Start(context.Background(), Preset{}), ErrAlreadyRecording)
		s.Cancel()
	})
}

func TestSession_StoreFailureNotifies(t *testing.T) {
	src := webmSource()
	store := &fakeStore{err: errors.New("bucket unavailable")}
	rec := &notify.Recorder{}
	s := newTestSession(src, store, rec)

	require.NoError(t, s.Start(context.Background(), Preset{}))
	got, err := s.Stop(context.Background(), Preset{})
	assert.Nil(t, got)
	assert.ErrorContains(t, err, "bucket unavailable")
	assert.Equal(t, StateIdle, s.State())
	require.Len(t, rec.Errors(), 1)
	assert.Equal(t, "Failed to save recording", rec.Errors()[0].Title)
}

func TestSession_StreamEndedFinalizes(t *testing.T) {
	src := webmSource()
	store := &fakeStore{}
	finalized := make(chan *Recording, 1)
	s := newTestSession(src, store, &notify.Recorder{}, OnFinalized(func(r *Recording, err error) {
		assert.NoError(t, err)
		finalized <- r
	}))

	require.NoError(t, s.Start(context.Background(), Preset{Name: "Tab"}))
	src.stream.chunks <- []byte("frame")
	src.stream.end()

	select {
	case r := <-finalized:
		require.NotNil(t, r)
		assert.Equal(t, int64(5), r.SizeBytes)
	case <-time.After(2 * time.Second):
		t.Fatal("capture was not finalized after stream ended")
	}
	assert.Equal(t, StateIdle, s.State())
	assert.Equal(t, 1, store.count())
}

func TestSession_ElapsedUsesClock(t *testing.T) {
	now := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	src := webmSource()
	store := &fakeStore{}
	s := newTestSession(src, store, &notify.Recorder{}, WithClock(clock))

	require.NoError(t, s.Start(context.Background(), Preset{}))
	mu.Lock()
	now = now.Add(42 * time.Second)
	mu.Unlock()
	assert.Equal(t, 42, s.Elapsed())

	_, err := s.Stop(context.Background(), Preset{})
	require.NoError(t, err)
	assert.Equal(t, 42, store.blobs[0].DurationSeconds)
	assert.Equal(t, 0, s.Elapsed())
}

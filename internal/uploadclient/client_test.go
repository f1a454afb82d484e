package uploadclient

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Seeksy-app/powering-how-people-work-and-share-online-sub001/internal/auth"
	"github.com/Seeksy-app/powering-how-people-work-and-share-online-sub001/internal/media"
	"github.com/Seeksy-app/powering-how-people-work-and-share-online-sub001/internal/notify"
)

type progressLog struct {
	mu    sync.Mutex
	items []Progress
}

func (l *progressLog) add(p Progress) {
	l.mu.Lock()
	l.items = append(l.items, p)
	l.mu.Unlock()
}

func (l *progressLog) all() []Progress {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Progress(nil), l.items...)
}

func uploadServer(t *testing.T, user uuid.UUID, mediaID uuid.UUID, received *int64) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/upload", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "anon-key", r.Header.Get("apikey"))
		file, header, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		defer file.Close()
		n, _ := io.Copy(io.Discard, file)
		atomic.StoreInt64(received, n)
		assert.Equal(t, user.String(), r.FormValue("userId"))
		assert.Equal(t, "episode.mp3", r.FormValue("fileName"))
		assert.Equal(t, "audio/mpeg", header.Header.Get("Content-Type"))
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"success": true, "mediaFileId": mediaID, "fileUrl": "https://cdn.example.com/episode.mp3",
		})
	}))
}

func TestUpload_TenMegabyteAudio(t *testing.T) {
	user, mediaID := uuid.New(), uuid.New()
	var received int64
	srv := uploadServer(t, user, mediaID, &received)
	defer srv.Close()

	progress := &progressLog{}
	var statuses []Status
	var statusMu sync.Mutex
	succeeded := make(chan *Result, 1)
	rec := &notify.Recorder{}
	c := New(srv.URL+"/", "anon-key", "tok", auth.StaticSession(user), rec,
		WithProgress(progress.add),
		WithStatus(func(s Status) { statusMu.Lock(); statuses = append(statuses, s); statusMu.Unlock() }),
		WithSuccess(func(r *Result) { succeeded <- r }),
		WithSuccessDelay(10*time.Millisecond),
	)

	size := int64(10 << 20)
	res, err := c.Upload(context.Background(), File{
		Name: "episode.mp3", ContentType: "audio/mpeg", Size: size,
		Body: bytes.NewReader(bytes.Repeat([]byte{7}, int(size))),
	})
	require.NoError(t, err)
	assert.Equal(t, mediaID, res.MediaFileID)
	assert.Equal(t, StatusSuccess, c.Status())
	assert.Equal(t, size, atomic.LoadInt64(&received))

	reports := progress.all()
	require.NotEmpty(t, reports)
	for i := 1; i < len(reports); i++ {
		assert.GreaterOrEqual(t, reports[i].Percent, reports[i-1].Percent)
		assert.GreaterOrEqual(t, reports[i].BytesSent, reports[i-1].BytesSent)
	}
	for _, p := range reports[:len(reports)-1] {
		assert.Less(t, p.Percent, 100.0)
	}
	last := reports[len(reports)-1]
	assert.Equal(t, 100.0, last.Percent)
	assert.Equal(t, size, last.BytesSent)

	statusMu.Lock()
	assert.Equal(t, []Status{StatusUploading, StatusSuccess}, statuses)
	statusMu.Unlock()

	select {
	case r := <-succeeded:
		assert.Equal(t, res, r)
	case <-time.After(2 * time.Second):
		t.Fatal("success callback not fired")
	}
	assert.Empty(t, rec.Errors())
}

func TestUpload_TooLargeNeverTouchesNetwork(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))
	defer srv.Close()

	rec := &notify.Recorder{}
	c := New(srv.URL, "k", "t", auth.StaticSession(uuid.New()), rec)

	_, err := c.Upload(context.Background(), File{Name: "huge.mp4", ContentType: "video/mp4", Size: 6 << 30})
	assert.ErrorIs(t, err, media.ErrFileTooLarge)
	assert.Contains(t, err.Error(), "file too large")
	assert.Equal(t, StatusError, c.Status())
	assert.Zero(t, atomic.LoadInt32(&hits))
	require.Len(t, rec.Errors(), 1)
	assert.Contains(t, rec.Errors()[0].Message, "file too large")
}

func TestUpload_WrongTypeRejected(t *testing.T) {
	c := New("http://127.0.0.1:1", "k", "t", auth.StaticSession(uuid.New()), &notify.Recorder{})
	_, err := c.Upload(context.Background(), File{Name: "a.png", ContentType: "image/png", Size: 10, Body: bytes.NewReader(nil)})
	assert.ErrorIs(t, err, media.ErrUnsupportedType)
}

func TestUpload_ServerErrors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		want    string
	}{
		{"non-2xx", func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.Copy(io.Discard, r.Body)
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"success":false,"error":"upload failed"}`))
		}, "server returned 500: upload failed"},
		{"malformed body", func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.Copy(io.Discard, r.Body)
			_, _ = w.Write([]byte(`<html>`))
		}, "invalid response"},
		{"success false", func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.Copy(io.Discard, r.Body)
			_, _ = w.Write([]byte(`{"success":false,"error":"quota exceeded"}`))
		}, "quota exceeded"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()
			progress := &progressLog{}
			rec := &notify.Recorder{}
			c := New(srv.URL, "k", "t", auth.StaticSession(uuid.New()), rec, WithProgress(progress.add))

			_, err := c.Upload(context.Background(), File{Name: "a.webm", ContentType: "video/webm", Size: 4, Body: bytes.NewReader([]byte("abcd"))})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
			assert.Equal(t, StatusError, c.Status())
			assert.Len(t, rec.Errors(), 1)
			for _, p := range progress.all() {
				assert.Less(t, p.Percent, 100.0)
			}
		})
	}
}

func TestUpload_Cancel(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		<-release
	}))
	defer srv.Close()
	defer close(release)

	rec := &notify.Recorder{}
	c := New(srv.URL, "k", "t", auth.StaticSession(uuid.New()), rec)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	_, err := c.Upload(ctx, File{Name: "a.webm", ContentType: "video/webm", Size: 3, Body: bytes.NewReader([]byte("abc"))})
	assert.ErrorIs(t, err, ErrCancelled)
	assert.Equal(t, StatusCancelled, c.Status())
	assert.Empty(t, rec.Errors())
}

func TestTracker_ThroughputIsSimpleAverage(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	now := start
	var got []Progress
	tr := newTracker(1000, func() time.Time { return now }, func(p Progress) { got = append(got, p) })

	now = start.Add(2 * time.Second)
	tr.add(500)
	now = start.Add(4 * time.Second)
	tr.add(500)
	tr.complete()

	require.Len(t, got, 3)
	assert.Equal(t, 50.0, got[0].Percent)
	assert.Equal(t, 250.0, got[0].BytesPerSecond)
	assert.Equal(t, float64(maxInFlightPercent), got[1].Percent)
	assert.Equal(t, 250.0, got[1].BytesPerSecond)
	assert.Equal(t, 100.0, got[2].Percent)
}

func TestUpload_ConcurrentCallsAdmitOne(t *testing.T) {
	const callers = 8
	var requests int32
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		_, _ = io.Copy(io.Discard, r.Body)
		<-release
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"success": true, "mediaFileId": uuid.New()})
	}))
	defer srv.Close()

	c := New(srv.URL, "k", "t", auth.StaticSession(uuid.New()), notify.Multi{}, WithSuccessDelay(0))
	errs := make(chan error, callers)
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		go func() {
			<-start
			_, err := c.Upload(context.Background(), File{Name: "a.webm", ContentType: "video/webm", Size: 3, Body: bytes.NewReader([]byte("abc"))})
			errs <- err
		}()
	}
	close(start)

	busy := 0
	for busy < callers-1 {
		select {
		case err := <-errs:
			require.ErrorIs(t, err, ErrBusy)
			busy++
		case <-time.After(5 * time.Second):
			t.Fatalf("only %d callers were turned away", busy)
		}
	}
	close(release)

	select {
	case err := <-errs:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("admitted upload did not finish")
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&requests))
	assert.Equal(t, StatusSuccess, c.Status())
}

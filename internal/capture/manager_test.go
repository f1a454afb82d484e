package capture

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Seeksy-app/powering-how-people-work-and-share-online-sub001/internal/auth"
	"github.com/Seeksy-app/powering-how-people-work-and-share-online-sub001/internal/notify"
)

func TestManager_Lifecycle(t *testing.T) {
	store := &fakeStore{}
	m := NewManager(store, &notify.Recorder{}, ICEServers(nil), nil)
	user := uuid.New()

	st, err := m.Create(context.Background(), user, Preset{ID: "demo", Name: "Demo"})
	require.NoError(t, err)
	assert.Equal(t, StateRecording, st.State)
	assert.Equal(t, "video/x-ivf", st.MimeType)

	_, err = m.Get(st.ID, uuid.New())
	assert.ErrorIs(t, err, ErrSessionNotFound)

	rec, err := m.Stop(context.Background(), st.ID, user)
	require.NoError(t, err)
	assert.Equal(t, "demo", rec.PresetID)
	assert.Equal(t, 1, store.count())
	assert.True(t, strings.HasSuffix(store.blobs[0].FileName, ".ivf"))

	got, err := m.Get(st.ID, user)
	require.NoError(t, err)
	assert.Equal(t, StateIdle, got.State)
	require.NotNil(t, got.Recording)
	assert.Equal(t, rec.MediaFileID, got.Recording.MediaFileID)
}

// gatedStore blocks in Store until release is closed.
type gatedStore struct {
	fakeStore
	entered chan struct{}
	release chan struct{}
}

func (g *gatedStore) Store(ctx context.Context, b Blob) (*Recording, error) {
	close(g.entered)
	<-g.release
	return g.fakeStore.Store(ctx, b)
}

func TestManager_StopWaitsForStreamEndFinalize(t *testing.T) {
	store := &gatedStore{entered: make(chan struct{}), release: make(chan struct{})}
	m := NewManager(store, &notify.Recorder{}, ICEServers(nil), nil)
	user := uuid.New()

	st, err := m.Create(context.Background(), user, Preset{ID: "demo"})
	require.NoError(t, err)
	entry, err := m.get(st.ID, user)
	require.NoError(t, err)

	entry.source.mu.Lock()
	stream := entry.source.stream
	entry.source.mu.Unlock()
	stream.end()

	select {
	case <-store.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("stream end did not finalize")
	}

	type result struct {
		rec *Recording
		err error
	}
	stopped := make(chan result, 1)
	go func() {
		rec, err := m.Stop(context.Background(), st.ID, user)
		stopped <- result{rec, err}
	}()

	select {
	case r := <-stopped:
		t.Fatalf("stop returned before finalize completed: %v", r.err)
	case <-time.After(50 * time.Millisecond):
	}
	close(store.release)

	select {
	case r := <-stopped:
		require.NoError(t, r.err)
		require.NotNil(t, r.rec)
		assert.Equal(t, "demo", r.rec.PresetID)
	case <-time.After(5 * time.Second):
		t.Fatal("stop did not return")
	}
	assert.Equal(t, 1, store.count())
}

func TestManager_CancelStoresNothing(t *testing.T) {
	store := &fakeStore{}
	m := NewManager(store, &notify.Recorder{}, ICEServers(nil), nil)
	user := uuid.New()

	st, err := m.Create(context.Background(), user, Preset{})
	require.NoError(t, err)
	require.NoError(t, m.Cancel(st.ID, user))

	assert.Zero(t, store.count())
	_, err = m.Get(st.ID, user)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestHandler_CaptureRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store := &fakeStore{}
	user := uuid.New()
	h := NewHandler(NewManager(store, &notify.Recorder{}, ICEServers(nil), nil), nil, nil)

	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Request = c.Request.WithContext(auth.WithUserID(c.Request.Context(), user))
		c.Next()
	})
	r.POST("/capture/sessions", h.Create)
	r.GET("/capture/sessions/:id", h.Get)
	r.POST("/capture/sessions/:id/stop", h.Stop)
	r.POST("/capture/sessions/:id/cancel", h.Cancel)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/capture/sessions", strings.NewReader(`{"preset":{"id":"p","name":"Walkthrough"}}`)))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created struct {
		Data Status `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	id := created.Data.ID.String()

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/capture/sessions/"+id+"/stop", nil))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/capture/sessions/"+id+"/cancel", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/capture/sessions/"+uuid.NewString(), nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/capture/sessions/not-a-uuid/stop", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandler_CaptureRequiresSession(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store := &fakeStore{}
	h := NewHandler(NewManager(store, &notify.Recorder{}, ICEServers(nil), nil), auth.ContextSession{}, nil)
	r := gin.New()
	r.POST("/capture/sessions", h.Create)
	r.POST("/capture/sessions/:id/stop", h.Stop)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/capture/sessions", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/capture/sessions/"+uuid.NewString()+"/stop", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Zero(t, store.count())
}

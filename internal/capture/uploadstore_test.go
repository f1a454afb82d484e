package capture

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Seeksy-app/powering-how-people-work-and-share-online-sub001/internal/uploadclient"
)

type fakeUploader struct {
	got  []byte
	file uploadclient.File
	res  *uploadclient.Result
	err  error
}

func (f *fakeUploader) Upload(_ context.Context, file uploadclient.File) (*uploadclient.Result, error) {
	f.file = file
	f.got, _ = io.ReadAll(file.Body)
	return f.res, f.err
}

func TestUploadStore_UploadsAndKeepsCopy(t *testing.T) {
	dir := t.TempDir()
	id := uuid.New()
	up := &fakeUploader{res: &uploadclient.Result{MediaFileID: id, FileURL: "https://cdn.example.com/demo.webm"}}
	blob := Blob{FileName: "demo-2024-01-02-03-04-05.webm", MimeType: "video/webm", Data: []byte("webm-bytes"), DurationSeconds: 4, Preset: Preset{ID: "p1"}}

	rec, err := NewUploadStore(up, dir).Store(context.Background(), blob)
	require.NoError(t, err)

	assert.Equal(t, id, rec.MediaFileID)
	assert.Equal(t, int64(10), rec.SizeBytes)
	assert.Equal(t, 4, rec.DurationSeconds)
	assert.Equal(t, "p1", rec.PresetID)
	assert.Equal(t, "webm-bytes", string(up.got))
	assert.Equal(t, int64(10), up.file.Size)

	local, err := os.ReadFile(filepath.Join(dir, blob.FileName))
	require.NoError(t, err)
	assert.Equal(t, blob.Data, local)
}

func TestUploadStore_PropagatesUploadError(t *testing.T) {
	up := &fakeUploader{err: errors.New("server returned 500")}
	_, err := NewUploadStore(up, "").Store(context.Background(), Blob{FileName: "x.webm", MimeType: "video/webm", Data: []byte("x")})
	assert.ErrorContains(t, err, "500")
}

package probe

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const encodersOutput = `Encoders:
 V..... = Video
 A..... = Audio
 ------
 V....D libx264              libx264 H.264 / AVC / MPEG-4 AVC / MPEG-4 part 10 (codec h264)
 V....D libvpx               libvpx VP8 (codec vp8)
 V....D libvpx-vp9           libvpx VP9 (codec vp9)
 A....D aac                  AAC (Advanced Audio Coding)
`

type fakeRunner map[string]struct {
	out string
	err error
}

func (f fakeRunner) run(_ context.Context, name string, args ...string) ([]byte, error) {
	r, ok := f[name+" "+strings.Join(args, " ")]
	if !ok {
		return nil, errors.New("exec: \"" + name + "\": executable file not found in $PATH")
	}
	return []byte(r.out), r.err
}

func TestParseEncoders(t *testing.T) {
	assert.Equal(t, []string{"libx264", "libvpx", "libvpx-vp9", "aac"}, ParseEncoders([]byte(encodersOutput)))
	assert.Empty(t, ParseEncoders([]byte("no separator here")))
}

func TestRun_AllAvailable(t *testing.T) {
	runner := fakeRunner{
		"ffmpeg -version":               {out: "ffmpeg version 6.1.1 Copyright (c) 2000-2023\nbuilt with gcc"},
		"ffprobe -version":              {out: "ffprobe version 6.1.1\n"},
		"ffmpeg -hide_banner -encoders": {out: encodersOutput},
	}
	res := New("ffmpeg", "ffprobe", WithRunner(runner.run)).Run(context.Background())

	assert.True(t, res.Success)
	assert.True(t, res.FFmpegAvailable)
	assert.True(t, res.FFprobeAvailable)
	assert.True(t, res.CanEncodeH264)
	assert.True(t, res.CanEncodeVP8)
	assert.Equal(t, "ffmpeg version 6.1.1 Copyright (c) 2000-2023", res.Version)
	assert.Contains(t, res.Encoders, "libvpx-vp9")
	assert.NotEmpty(t, res.Logs)
}

func TestRun_MissingBinaries(t *testing.T) {
	res := New("ffmpeg", "ffprobe", WithRunner(fakeRunner{}.run)).Run(context.Background())

	assert.False(t, res.Success)
	assert.False(t, res.FFmpegAvailable)
	assert.False(t, res.FFprobeAvailable)
	assert.False(t, res.CanEncodeH264)
	assert.Empty(t, res.Version)
	assert.Contains(t, strings.Join(res.Logs, "\n"), "ffmpeg not available")
}

func TestRun_NoH264(t *testing.T) {
	runner := fakeRunner{
		"ffmpeg -version":               {out: "ffmpeg version n7.0"},
		"ffprobe -version":              {err: errors.New("exit status 1"), out: "broken install"},
		"ffmpeg -hide_banner -encoders": {out: " ------\n V....D libvpx  VP8\n"},
	}
	res := New("ffmpeg", "ffprobe", WithRunner(runner.run)).Run(context.Background())

	assert.True(t, res.Success)
	assert.False(t, res.FFprobeAvailable)
	assert.False(t, res.CanEncodeH264)
	assert.True(t, res.CanEncodeVP8)
	assert.Contains(t, strings.Join(res.Logs, "\n"), "broken install")
}

func TestRun_Timeout(t *testing.T) {
	slow := func(ctx context.Context, name string, args ...string) ([]byte, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	res := New("ffmpeg", "ffprobe", WithRunner(slow), WithTimeout(10*time.Millisecond)).Run(context.Background())

	assert.False(t, res.FFmpegAvailable)
	assert.Contains(t, res.Logs[1], "timed out")
}

func TestHandler_TestFFmpeg(t *testing.T) {
	gin.SetMode(gin.TestMode)
	runner := fakeRunner{
		"ffmpeg -version":               {out: "ffmpeg version 6.1.1"},
		"ffprobe -version":              {out: "ffprobe version 6.1.1"},
		"ffmpeg -hide_banner -encoders": {out: encodersOutput},
	}
	r := gin.New()
	r.POST("/test-ffmpeg", NewHandler(New("ffmpeg", "ffprobe", WithRunner(runner.run))).TestFFmpeg)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/test-ffmpeg", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, true, body["success"])
	assert.Equal(t, true, body["canEncodeH264"])
	assert.Equal(t, "ffmpeg version 6.1.1", body["version"])
	assert.NotContains(t, body, "Encoders")
	assert.IsType(t, []interface{}{}, body["logs"])
}

package capture

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts not available")
	}
	path := filepath.Join(t.TempDir(), "ffmpeg")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

func TestFFmpegSource_SupportsFollowsEncoders(t *testing.T) {
	src := NewFFmpegSource(FFmpegConfig{InputFormat: "x11grab", Input: ":0.0"}, []string{"libvpx", "libx264"}, nil)

	assert.False(t, src.Supports("video/webm;codecs=vp9"))
	assert.True(t, src.Supports("video/webm;codecs=vp8"))
	assert.True(t, src.Supports("video/mp4"))

	mt, err := ChooseMIMEType(src)
	require.NoError(t, err)
	assert.Equal(t, "video/webm;codecs=vp8", mt)

	_, err = ChooseMIMEType(NewFFmpegSource(FFmpegConfig{}, nil, nil))
	assert.ErrorIs(t, err, ErrUnsupportedEncoding)
}

func TestFFmpegSource_Args(t *testing.T) {
	src := NewFFmpegSource(FFmpegConfig{InputFormat: "x11grab", Input: ":1.0", FrameRate: 15}, nil, nil)

	args := src.Args("video/mp4")
	assert.Equal(t, []string{"-f", "x11grab"}, args[3:5])
	assert.Contains(t, args, "-an")
	assert.Contains(t, args, "libx264")
	assert.Contains(t, args, "frag_keyframe+empty_moov")
	assert.Equal(t, []string{"-f", "mp4", "pipe:1"}, args[len(args)-3:])

	args = src.Args("video/webm;codecs=vp9")
	assert.Contains(t, args, "libvpx-vp9")
	assert.Contains(t, args, "15")
	assert.Equal(t, "webm", args[len(args)-2])
}

func TestFFmpegSource_StreamAndStop(t *testing.T) {
	bin := writeScript(t, "printf 'webm-bytes'\nexec sleep 30")
	src := NewFFmpegSource(FFmpegConfig{Binary: bin, InputFormat: "x11grab", Input: ":0.0"}, []string{"libvpx"}, nil)

	stream, err := src.Open(context.Background(), "video/webm")
	require.NoError(t, err)

	require.NoError(t, stream.Stop())
	var got []byte
	for chunk := range stream.Chunks() {
		got = append(got, chunk...)
	}
	assert.Equal(t, "webm-bytes", string(got))
	require.NoError(t, stream.Close())

	select {
	case <-stream.Ended():
		t.Fatal("explicit stop must not report the stream as ended")
	default:
	}
}

func TestFFmpegSource_ExitReportsEnded(t *testing.T) {
	bin := writeScript(t, "sleep 1\nprintf 'tail'")
	src := NewFFmpegSource(FFmpegConfig{Binary: bin}, []string{"libvpx"}, nil)

	stream, err := src.Open(context.Background(), "video/webm")
	require.NoError(t, err)

	select {
	case <-stream.Ended():
	case <-time.After(5 * time.Second):
		t.Fatal("stream did not end when ffmpeg exited")
	}
	_ = stream.Close()
}

func TestFFmpegSource_PermissionDenied(t *testing.T) {
	bin := writeScript(t, "echo 'Cannot open display :0.0, error 1.' >&2\nexit 1")
	src := NewFFmpegSource(FFmpegConfig{Binary: bin}, []string{"libvpx"}, nil)

	_, err := src.Open(context.Background(), "video/webm")
	assert.ErrorIs(t, err, ErrPermissionDenied)
}

func TestFFmpegSource_StartFailure(t *testing.T) {
	bin := writeScript(t, "echo 'Unknown encoder' >&2\nexit 1")
	src := NewFFmpegSource(FFmpegConfig{Binary: bin}, []string{"libvpx"}, nil)

	_, err := src.Open(context.Background(), "video/webm")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrPermissionDenied)
	assert.Contains(t, err.Error(), "Unknown encoder")
}

package storage

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMediaKey(t *testing.T) {
	key := MediaKey("user-1", "obj-1", "My Clip (final).webm")
	assert.Equal(t, "media/user-1/obj-1-My_Clip__final_.webm", key)
}

func TestNewMediaKey_IsUnique(t *testing.T) {
	a := NewMediaKey("u", "a.mp4")
	b := NewMediaKey("u", "a.mp4")
	assert.NotEqual(t, a, b)
	assert.True(t, strings.HasPrefix(a, "media/u/"))
	assert.True(t, strings.HasSuffix(a, "-a.mp4"))
}

func TestSanitizeFilename(t *testing.T) {
	cases := map[string]string{
		"../../etc/passwd":   "passwd",
		`C:\videos\clip.mp4`: "clip.mp4",
		"":                   "upload",
		"ok-name_1.mp3":      "ok-name_1.mp3",
	}
	for in, want := range cases {
		assert.Equal(t, want, SanitizeFilename(in), in)
	}
}

func TestContentTypeForFilename(t *testing.T) {
	assert.Equal(t, "video/webm", ContentTypeForFilename("a.WEBM"))
	assert.Equal(t, "audio/mpeg", ContentTypeForFilename("a.mp3"))
	assert.Equal(t, "application/octet-stream", ContentTypeForFilename("a.txt"))
}

func TestObjectURL(t *testing.T) {
	s := &S3{cfg: S3Config{Region: "us-east-1", MediaBucket: "b"}}
	assert.Equal(t, "https://b.s3.us-east-1.amazonaws.com/media/k", s.ObjectURL("media/k"))

	s.cfg.Endpoint = "http://minio:9000/"
	assert.Equal(t, "http://minio:9000/b/media/k", s.ObjectURL("media/k"))
}

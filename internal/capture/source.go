// Package capture records a screen stream into a single media blob and
// hands it to a Store. Platform capture (browser WebRTC, ffmpeg screen
// grab) sits behind the Source interface.
package capture

import (
	"context"
	"errors"
	"mime"
	"strings"
)

var (
	// ErrPermissionDenied is returned when the platform refuses screen access.
	ErrPermissionDenied = errors.New("screen capture permission denied")
	// ErrUnsupportedEncoding is returned when the source supports none of MIMEPreference.
	ErrUnsupportedEncoding = errors.New("no supported recording format")
	// ErrNotRecording is returned by Stop on a session that is not recording.
	ErrNotRecording = errors.New("not recording")
	// ErrAlreadyRecording is returned by Start on a busy session.
	ErrAlreadyRecording = errors.New("already recording")
)

// MIMEPreference lists encodings in descending preference.
var MIMEPreference = []string{
	"video/webm;codecs=vp9",
	"video/webm;codecs=vp8",
	"video/webm",
	"video/mp4",
	"video/x-ivf",
}

// Source is a platform capture capability.
type Source interface {
	// Supports reports whether the source can encode mimeType.
	Supports(mimeType string) bool
	// Open requests a video-only screen stream encoded as mimeType.
	Open(ctx context.Context, mimeType string) (Stream, error)
}

// Stream is one open capture.
type Stream interface {
	// Chunks yields encoded data. It is closed once Stop has flushed or Close was called.
	Chunks() <-chan []byte
	// Ended is closed when the capture ends on its own, e.g. the user stops sharing.
	Ended() <-chan struct{}
	// Stop ends encoding and flushes pending data to Chunks.
	Stop() error
	// Close releases the underlying capture without flushing.
	Close() error
}

// ChooseMIMEType returns the first entry of MIMEPreference that src supports.
func ChooseMIMEType(src Source) (string, error) {
	for _, mt := range MIMEPreference {
		if src.Supports(mt) {
			return mt, nil
		}
	}
	return "", ErrUnsupportedEncoding
}

// BaseMIMEType strips parameters such as codecs.
func BaseMIMEType(mimeType string) string {
	mt, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		if i := strings.IndexByte(mimeType, ';'); i >= 0 {
			return strings.TrimSpace(mimeType[:i])
		}
		return strings.TrimSpace(mimeType)
	}
	return mt
}

// ExtensionFor returns the file extension (without dot) for a capture MIME type.
func ExtensionFor(mimeType string) string {
	switch BaseMIMEType(mimeType) {
	case "video/mp4":
		return "mp4"
	case "video/x-ivf":
		return "ivf"
	default:
		return "webm"
	}
}

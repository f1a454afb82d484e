package media

import (
	"errors"
	"fmt"
	"mime"
	"strings"
)

// MaxFileBytes is the largest accepted media file (5 GiB).
const MaxFileBytes int64 = 5 << 30

var (
	// ErrFileTooLarge is returned for files over the size ceiling.
	ErrFileTooLarge = errors.New("file too large")
	// ErrUnsupportedType is returned for files that are neither video nor audio.
	ErrUnsupportedType = errors.New("unsupported file type")
)

// ValidateFile checks the MIME category and the 5 GiB ceiling.
// A file of exactly MaxFileBytes passes.
func ValidateFile(contentType string, size int64) error {
	return ValidateFileLimit(contentType, size, MaxFileBytes)
}

// ValidateFileLimit is ValidateFile with a configurable ceiling.
func ValidateFileLimit(contentType string, size, maxBytes int64) error {
	if !IsMediaType(contentType) {
		return fmt.Errorf("%w: %q, please select a video or audio file", ErrUnsupportedType, contentType)
	}
	if size < 0 {
		return fmt.Errorf("invalid file size %d", size)
	}
	if size > maxBytes {
		return fmt.Errorf("%w: maximum size is %s", ErrFileTooLarge, humanBytes(maxBytes))
	}
	return nil
}

// IsMediaType reports whether contentType is in the video/* or audio/* category.
func IsMediaType(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return strings.HasPrefix(mt, "video/") || strings.HasPrefix(mt, "audio/")
}

func humanBytes(n int64) string {
	switch {
	case n >= 1<<30 && n%(1<<30) == 0:
		return fmt.Sprintf("%d GiB", n>>30)
	case n >= 1<<20 && n%(1<<20) == 0:
		return fmt.Sprintf("%d MiB", n>>20)
	default:
		return fmt.Sprintf("%d bytes", n)
	}
}

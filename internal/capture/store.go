package capture

import (
	"context"

	"github.com/google/uuid"
)

// Blob is a finished capture ready to persist.
type Blob struct {
	UserID          uuid.UUID
	FileName        string
	MimeType        string
	Data            []byte
	DurationSeconds int
	Preset          Preset
}

// Recording describes a stored capture.
type Recording struct {
	MediaFileID     uuid.UUID `json:"media_file_id"`
	FileName        string    `json:"file_name"`
	FileURL         string    `json:"file_url"`
	MimeType        string    `json:"mime_type"`
	SizeBytes       int64     `json:"size_bytes"`
	DurationSeconds int       `json:"duration_seconds"`
	PresetID        string    `json:"preset_id,omitempty"`
}

// Store uploads a blob and records it as a media file.
type Store interface {
	Store(ctx context.Context, blob Blob) (*Recording, error)
}

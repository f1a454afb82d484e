package models

import (
	"time"

	"github.com/google/uuid"
)

// Metadata keys written on media files.
const (
	MetaSource     = "source"
	MetaPresetID   = "preset_id"
	MetaPresetName = "preset_name"
	MetaTags       = "tags"

	SourceUpload        = "upload"
	SourceScreenCapture = "screen_capture"
)

// MediaFile is one uploaded binary asset and its metadata.
type MediaFile struct {
	ID              uuid.UUID              `json:"id"`
	UserID          uuid.UUID              `json:"user_id"`
	FileName        string                 `json:"file_name"`
	FileURL         string                 `json:"file_url"`
	StorageKey      string                 `json:"-"`
	FileType        string                 `json:"file_type"`
	FileSizeBytes   int64                  `json:"file_size_bytes"`
	DurationSeconds *int                   `json:"duration_seconds,omitempty"`
	Metadata        map[string]interface{} `json:"metadata"`
	CreatedAt       time.Time              `json:"created_at"`
	UpdatedAt       time.Time              `json:"updated_at"`
	DeletedAt       *time.Time             `json:"deleted_at,omitempty"`
}

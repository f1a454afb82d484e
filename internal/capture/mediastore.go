package capture

import (
	"bytes"
	"context"

	"github.com/Seeksy-app/powering-how-people-work-and-share-online-sub001/internal/media"
	"github.com/Seeksy-app/powering-how-people-work-and-share-online-sub001/internal/models"
)

// MediaStore stores captures through the media service (object storage plus a media_files row).
type MediaStore struct {
	svc *media.Service
}

// NewMediaStore creates a Store backed by svc.
func NewMediaStore(svc *media.Service) *MediaStore {
	return &MediaStore{svc: svc}
}

// Store implements Store.
func (m *MediaStore) Store(ctx context.Context, blob Blob) (*Recording, error) {
	duration := blob.DurationSeconds
	meta := map[string]interface{}{
		models.MetaSource:     models.SourceScreenCapture,
		models.MetaPresetID:   blob.Preset.ID,
		models.MetaPresetName: blob.Preset.Name,
	}
	if len(blob.Preset.Tags) > 0 {
		meta[models.MetaTags] = blob.Preset.Tags
	}
	f, err := m.svc.Save(ctx, media.SaveInput{
		UserID:          blob.UserID,
		FileName:        blob.FileName,
		ContentType:     blob.MimeType,
		Size:            int64(len(blob.Data)),
		Body:            bytes.NewReader(blob.Data),
		DurationSeconds: &duration,
		Metadata:        meta,
	})
	if err != nil {
		return nil, err
	}
	return &Recording{
		MediaFileID:     f.ID,
		FileName:        f.FileName,
		FileURL:         f.FileURL,
		MimeType:        f.FileType,
		SizeBytes:       f.FileSizeBytes,
		DurationSeconds: duration,
		PresetID:        blob.Preset.ID,
	}, nil
}

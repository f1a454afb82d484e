package capture

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Seeksy-app/powering-how-people-work-and-share-online-sub001/internal/uploadclient"
)

// Uploader sends one file to the upload endpoint.
type Uploader interface {
	Upload(ctx context.Context, f uploadclient.File) (*uploadclient.Result, error)
}

// UploadStore stores captures by posting them to a remote upload endpoint.
// It is the Store used by the desktop capture CLI.
type UploadStore struct {
	up      Uploader
	keepDir string
}

// NewUploadStore creates an UploadStore. When keepDir is set a local copy of
// every capture is written there before the upload starts.
func NewUploadStore(up Uploader, keepDir string) *UploadStore {
	return &UploadStore{up: up, keepDir: keepDir}
}

// Store implements Store.
func (u *UploadStore) Store(ctx context.Context, blob Blob) (*Recording, error) {
	if u.keepDir != "" {
		if err := os.WriteFile(filepath.Join(u.keepDir, blob.FileName), blob.Data, 0o644); err != nil {
			return nil, fmt.Errorf("keep local copy: %w", err)
		}
	}
	res, err := u.up.Upload(ctx, uploadclient.File{
		Name:        blob.FileName,
		ContentType: blob.MimeType,
		Size:        int64(len(blob.Data)),
		Body:        bytes.NewReader(blob.Data),
	})
	if err != nil {
		return nil, err
	}
	return &Recording{
		MediaFileID:     res.MediaFileID,
		FileName:        blob.FileName,
		FileURL:         res.FileURL,
		MimeType:        blob.MimeType,
		SizeBytes:       int64(len(blob.Data)),
		DurationSeconds: blob.DurationSeconds,
		PresetID:        blob.Preset.ID,
	}, nil
}

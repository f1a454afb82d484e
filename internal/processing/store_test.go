package processing

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Seeksy-app/powering-how-people-work-and-share-online-sub001/internal/models"
)

// memStore is an in-memory Store with the same conditional terminal updates as Repository.
type memStore struct {
	mu     sync.Mutex
	files  map[uuid.UUID]*models.MediaFile
	jobs   map[uuid.UUID]*models.ProcessingJob
	edits  map[uuid.UUID][]models.EditInstruction
	slots  map[uuid.UUID][]models.AdSlot
	ops    []models.JobOperation
	panics bool
}

func newMemStore() *memStore {
	return &memStore{
		files: make(map[uuid.UUID]*models.MediaFile),
		jobs:  make(map[uuid.UUID]*models.ProcessingJob),
		edits: make(map[uuid.UUID][]models.EditInstruction),
		slots: make(map[uuid.UUID][]models.AdSlot),
	}
}

func (s *memStore) addFile(userID uuid.UUID) *models.MediaFile {
	f := &models.MediaFile{ID: uuid.New(), UserID: userID, FileName: "talk.webm", FileURL: "https://cdn.example.com/talk.webm", FileType: "video/webm"}
	s.mu.Lock()
	s.files[f.ID] = f
	s.mu.Unlock()
	return f
}

func (s *memStore) GetMediaFile(_ context.Context, id uuid.UUID) (*models.MediaFile, error) {
	if s.panics {
		panic("storage exploded")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.files[id]
	if !ok {
		return nil, ErrMediaFileNotFound
	}
	cp := *f
	return &cp, nil
}

func (s *memStore) CreateJob(_ context.Context, job *models.ProcessingJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job.ID = uuid.New()
	job.Status = models.JobStatusProcessing
	job.CreatedAt = time.Now()
	cp := *job
	s.jobs[job.ID] = &cp
	return nil
}

func (s *memStore) GetJob(_ context.Context, id uuid.UUID) (*models.ProcessingJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	cp := *j
	return &cp, nil
}

func (s *memStore) ListJobsByMedia(_ context.Context, mediaFileID uuid.UUID) ([]models.ProcessingJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var list []models.ProcessingJob
	for _, j := range s.jobs {
		if j.MediaFileID == mediaFileID {
			list = append(list, *j)
		}
	}
	return list, nil
}

func (s *memStore) ListEditInstructions(_ context.Context, mediaFileID uuid.UUID) ([]models.EditInstruction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.edits[mediaFileID], nil
}

func (s *memStore) ListAdSlots(_ context.Context, mediaFileID uuid.UUID) ([]models.AdSlot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.slots[mediaFileID], nil
}

func (s *memStore) InsertOperations(_ context.Context, ops []models.JobOperation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops = append(s.ops, ops...)
	return nil
}

func (s *memStore) Complete(_ context.Context, id uuid.UUID, outputURL string, editsApplied, adsInserted int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok || j.Status != models.JobStatusProcessing {
		return false, nil
	}
	now := time.Now()
	j.Status = models.JobStatusCompleted
	j.OutputURL = outputURL
	j.EditsApplied = editsApplied
	j.AdsInserted = adsInserted
	j.CompletedAt = &now
	return true, nil
}

func (s *memStore) Fail(_ context.Context, id uuid.UUID, msg string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok || j.Status != models.JobStatusProcessing {
		return false, nil
	}
	now := time.Now()
	j.Status = models.JobStatusFailed
	j.ErrorMessage = msg
	j.CompletedAt = &now
	return true, nil
}

func (s *memStore) FailStale(_ context.Context, olderThan time.Duration, msg string) ([]models.ProcessingJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := time.Now().Add(-olderThan)
	var list []models.ProcessingJob
	for _, j := range s.jobs {
		if j.Status == models.JobStatusProcessing && j.CreatedAt.Before(cutoff) {
			now := time.Now()
			j.Status = models.JobStatusFailed
			j.ErrorMessage = msg
			j.CompletedAt = &now
			list = append(list, *j)
		}
	}
	return list, nil
}

package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// JobType is the kind of processing requested for a media file.
type JobType string

const (
	JobTypeAIEdit      JobType = "ai_edit"
	JobTypeAdInsertion JobType = "ad_insertion"
	JobTypeFullProcess JobType = "full_process"
)

// Valid reports whether t is a known job type.
func (t JobType) Valid() bool {
	switch t {
	case JobTypeAIEdit, JobTypeAdInsertion, JobTypeFullProcess:
		return true
	}
	return false
}

// AppliesEdits reports whether jobs of this type read edit instructions.
func (t JobType) AppliesEdits() bool { return t == JobTypeAIEdit || t == JobTypeFullProcess }

// InsertsAds reports whether jobs of this type read ad slots.
func (t JobType) InsertsAds() bool { return t == JobTypeAdInsertion || t == JobTypeFullProcess }

// JobStatus is the lifecycle state of a processing job.
type JobStatus string

const (
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Terminal reports whether s is a final state.
func (s JobStatus) Terminal() bool { return s == JobStatusCompleted || s == JobStatusFailed }

// ProcessingJob tracks one processing request against a media file.
type ProcessingJob struct {
	ID           uuid.UUID       `json:"id"`
	MediaFileID  uuid.UUID       `json:"media_file_id"`
	JobType      JobType         `json:"job_type"`
	Status       JobStatus       `json:"status"`
	Config       json.RawMessage `json:"config,omitempty"`
	OutputURL    string          `json:"output_url,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
	EditsApplied int             `json:"edits_applied"`
	AdsInserted  int             `json:"ads_inserted"`
	CreatedAt    time.Time       `json:"created_at"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
}

// EditInstruction is a stored edit to apply to a media file.
type EditInstruction struct {
	ID           uuid.UUID       `json:"id"`
	MediaFileID  uuid.UUID       `json:"media_file_id"`
	Position     int             `json:"position"`
	Kind         string          `json:"kind"`
	StartSeconds float64         `json:"start_seconds"`
	EndSeconds   float64         `json:"end_seconds"`
	Params       json.RawMessage `json:"params,omitempty"`
}

// AdSlot is a stored ad placement for a media file.
type AdSlot struct {
	ID              uuid.UUID `json:"id"`
	MediaFileID     uuid.UUID `json:"media_file_id"`
	PositionSeconds float64   `json:"position_seconds"`
	AdFileURL       string    `json:"ad_file_url"`
	DurationSeconds float64   `json:"duration_seconds"`
}

// Operation kinds recorded for a job.
const (
	OperationEdit     = "edit"
	OperationAdInsert = "ad_insert"
)

// JobOperation describes one splice or trim a job would perform.
type JobOperation struct {
	ID           uuid.UUID `json:"id"`
	JobID        uuid.UUID `json:"job_id"`
	Seq          int       `json:"seq"`
	Operation    string    `json:"operation"`
	Kind         string    `json:"kind"`
	StartSeconds float64   `json:"start_seconds"`
	EndSeconds   float64   `json:"end_seconds"`
	Description  string    `json:"description"`
	CreatedAt    time.Time `json:"created_at"`
}

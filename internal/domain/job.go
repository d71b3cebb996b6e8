package domain

import "time"

// JobType enumerates the supported asynchronous work categories. The set is
// closed: creating a job with any other value is a validation error, and the
// worker refuses to execute types it has no handler for.
type JobType string

const (
	JobTypeImageGeneration JobType = "image_generation"
	JobTypeVideoGeneration JobType = "video_generation"
	JobTypeAudioGeneration JobType = "audio_generation"
	JobTypeExport          JobType = "export"
	JobTypeExportBundle    JobType = "export_bundle"
)

// KnownJobTypes lists every valid job type in a stable order.
func KnownJobTypes() []JobType {
	return []JobType{
		JobTypeImageGeneration,
		JobTypeVideoGeneration,
		JobTypeAudioGeneration,
		JobTypeExport,
		JobTypeExportBundle,
	}
}

// ValidJobType reports whether t is part of the closed type set.
func ValidJobType(t JobType) bool {
	switch t {
	case JobTypeImageGeneration, JobTypeVideoGeneration, JobTypeAudioGeneration,
		JobTypeExport, JobTypeExportBundle:
		return true
	}
	return false
}

// JobStatus enumerates job lifecycle states.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCancelled  JobStatus = "cancelled"
)

// ValidJobStatus reports whether s is a known lifecycle state.
func ValidJobStatus(s JobStatus) bool {
	switch s {
	case JobStatusPending, JobStatusProcessing, JobStatusCompleted,
		JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether s admits no further transitions.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// CanTransition encodes the state machine:
// pending -> {processing, cancelled}; processing -> {completed, failed,
// cancelled}. No transition re-enters pending.
func CanTransition(from, to JobStatus) bool {
	switch from {
	case JobStatusPending:
		return to == JobStatusProcessing || to == JobStatusCancelled
	case JobStatusProcessing:
		return to == JobStatusCompleted || to == JobStatusFailed || to == JobStatusCancelled
	}
	return false
}

// Job is the durable record of one unit of asynchronous work.
//
// ResultJSON and ErrorMessage are mutually exclusive and each written at most
// once, on the transition to completed respectively failed. Progress never
// regresses while the job is processing.
type Job struct {
	ID              string
	OwnerID         string
	ScopeID         string
	Type            JobType
	Status          JobStatus
	ParentJobID     *string
	Progress        int
	CurrentStep     *int
	TotalSteps      *int
	ProgressMessage string
	InputJSON       []byte
	ResultJSON      []byte
	ErrorMessage    string
	CreatedAt       time.Time
	StartedAt       *time.Time
	CompletedAt     *time.Time
	UpdatedAt       time.Time
}

// NewJob carries the caller-supplied fields for job creation. Everything else
// is stamped by the store.
type NewJob struct {
	OwnerID     string
	ScopeID     string
	Type        JobType
	Input       []byte
	TotalSteps  *int
	ParentJobID *string
}

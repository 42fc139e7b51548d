package queue

import (
	"time"

	"github.com/google/uuid"
)

// JobType represents the type of job
type JobType string

const (
	// JobTypeClassifyFile assigns a taxonomy category to a stored upload
	JobTypeClassifyFile JobType = "classify_file"
	// JobTypeDeleteExternalUpload retries deletion of a temporary provider-side upload
	JobTypeDeleteExternalUpload JobType = "delete_external_upload"
)

const (
	// DefaultMaxRetries bounds how often a failed job is re-published.
	DefaultMaxRetries = 3
	// baseRetryDelay is doubled on every attempt.
	baseRetryDelay = 30 * time.Second
	maxRetryDelay  = 30 * time.Minute
)

// Job represents a job in the queue
type Job struct {
	ID             uuid.UUID      `json:"id"`
	Type           JobType        `json:"type"`
	UserID         uuid.UUID      `json:"user_id"`
	FileID         *uuid.UUID     `json:"file_id,omitempty"`          // Stored upload, for classify jobs
	ExternalFileID string         `json:"external_file_id,omitempty"` // Provider file id, for cleanup jobs
	NotBefore      *time.Time     `json:"not_before,omitempty"`       // Earliest time to process job (nil = immediate)
	NotAfter       *time.Time     `json:"not_after,omitempty"`        // Latest time to process job (nil = no expiration)
	Metadata       map[string]any `json:"metadata,omitempty"`         // Job-specific data
	CreatedAt      time.Time      `json:"created_at"`
	RetryCount     int            `json:"retry_count"`
	MaxRetries     int            `json:"max_retries"`
}

// NewJob creates a new job
func NewJob(jobType JobType, userID uuid.UUID) *Job {
	return &Job{
		ID:         uuid.New(),
		Type:       jobType,
		UserID:     userID,
		Metadata:   make(map[string]any),
		CreatedAt:  time.Now(),
		RetryCount: 0,
		MaxRetries: DefaultMaxRetries,
	}
}

// NewClassifyFileJob creates a job that classifies one stored upload.
func NewClassifyFileJob(userID, fileID uuid.UUID) *Job {
	job := NewJob(JobTypeClassifyFile, userID)
	job.FileID = &fileID
	return job
}

// NewDeleteExternalUploadJob creates a job that deletes a leaked provider upload.
// cause is recorded for operators and never parsed.
func NewDeleteExternalUploadJob(externalFileID, cause string) *Job {
	job := NewJob(JobTypeDeleteExternalUpload, uuid.Nil)
	job.ExternalFileID = externalFileID
	if cause != "" {
		job.Metadata["cause"] = cause
	}
	// Provider uploads expire on their own after a day; retrying later is pointless.
	notAfter := job.CreatedAt.Add(24 * time.Hour)
	job.NotAfter = &notAfter
	return job
}

// ShouldProcess checks if the job should be processed now
func (j *Job) ShouldProcess() bool {
	now := time.Now()

	if j.NotBefore != nil && now.Before(*j.NotBefore) {
		return false
	}

	if j.NotAfter != nil && now.After(*j.NotAfter) {
		return false
	}

	return true
}

// IsExpired checks if the job has expired
func (j *Job) IsExpired() bool {
	if j.NotAfter == nil {
		return false
	}

	return time.Now().After(*j.NotAfter)
}

// CanRetry checks if the job can be retried
func (j *Job) CanRetry() bool {
	return j.RetryCount < j.MaxRetries
}

// IncrementRetry increments the retry count
func (j *Job) IncrementRetry() {
	j.RetryCount++
}

// RetryDelay is the exponential backoff for the current retry count.
func (j *Job) RetryDelay() time.Duration {
	delay := baseRetryDelay
	for i := 0; i < j.RetryCount; i++ {
		delay *= 2
		if delay >= maxRetryDelay {
			return maxRetryDelay
		}
	}
	return delay
}

// ScheduleRetry increments the retry count and pushes NotBefore out by the backoff.
func (j *Job) ScheduleRetry(now time.Time) {
	j.IncrementRetry()
	notBefore := now.Add(j.RetryDelay())
	j.NotBefore = &notBefore
}

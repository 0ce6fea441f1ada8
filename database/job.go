package database

import (
	"encoding/json"
	"time"

	"github.com/oklog/ulid/v2"
)

// JobStatus represents the status of a job
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// JobType represents the type of job
type JobType string

const (
	JobTypeRender  JobType = "render"
	JobTypeCleanup JobType = "cleanup"
)

// Job represents a background job or operation
type Job struct {
	ID          ulid.ULID  `json:"id"`
	Type        JobType    `json:"type"`
	Status      JobStatus  `json:"status"`
	Progress    int        `json:"progress"`         // 0-100
	CurrentStep string     `json:"currentStep"`      // Human-readable current step
	TotalSteps  int        `json:"totalSteps"`       // pages for a render
	Message     string     `json:"message"`          // Status message
	Error       string     `json:"error,omitempty"`  // Error message if failed
	Result      string     `json:"result,omitempty"` // JSON result data
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// Finished reports whether the job reached a terminal status
func (j *Job) Finished() bool {
	switch j.Status {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// RenderResult is stored as the result of a completed render job
type RenderResult struct {
	SetID      string `json:"setId"`
	Name       string `json:"name"`
	Title      string `json:"title,omitempty"`
	PDFVersion string `json:"pdfVersion,omitempty"`
	Pages      int    `json:"pages"`
	Bytes      int64  `json:"bytes"`
	Backend    string `json:"backend"`
	Duration   string `json:"duration"`
}

// Encode marshals the result for CompleteJob
func (r RenderResult) Encode() string {
	b, err := json.Marshal(r)
	if err != nil {
		return ""
	}
	return string(b)
}

// RenderResultOf decodes the result of a completed render job
func RenderResultOf(job *Job) (RenderResult, error) {
	var r RenderResult
	err := json.Unmarshal([]byte(job.Result), &r)
	return r, err
}

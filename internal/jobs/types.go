package jobs

import (
	"context"
	"errors"
	"time"
)

// JobType represents the type of job to be executed.
type JobType string

const (
	// JobTypeAnalyzeUpload runs the analysis pipeline over a stored upload.
	JobTypeAnalyzeUpload JobType = "analyze_upload"
)

// JobStatus represents the current status of a job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusRetrying  JobStatus = "retrying"
)

// DefaultMaxRetries applies to jobs published without MaxRetries.
const DefaultMaxRetries = 3

// AnalyzeUploadJob analyzes one upload and delivers its report.
type AnalyzeUploadJob struct {
	JobID    string `json:"job_id"`
	UploadID string `json:"upload_id"`

	// PublishReport writes the report to Cloud Storage when configured.
	PublishReport bool `json:"publish_report"`
	// ExportWarehouse appends the upload to BigQuery when configured.
	ExportWarehouse bool `json:"export_warehouse"`

	Status      JobStatus  `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Error       string     `json:"error,omitempty"`

	// Outputs of the last successful run.
	NewAnomalies int    `json:"new_anomalies"`
	ReportURI    string `json:"report_uri,omitempty"`
	ExportID     string `json:"export_id,omitempty"`

	RetryCount int `json:"retry_count"`
	MaxRetries int `json:"max_retries"`
}

// Job is a generic interface for all job types.
type Job interface {
	GetID() string
	GetType() JobType
	GetStatus() JobStatus
}

func (j *AnalyzeUploadJob) GetID() string        { return j.JobID }
func (j *AnalyzeUploadJob) GetType() JobType     { return JobTypeAnalyzeUpload }
func (j *AnalyzeUploadJob) GetStatus() JobStatus { return j.Status }

// Publisher enqueues jobs.
type Publisher interface {
	PublishAnalyzeUpload(ctx context.Context, job *AnalyzeUploadJob) error
	Close() error
}

// Consumer runs queued jobs.
type Consumer interface {
	// Start begins consuming jobs; handler is called for each job received.
	Start(ctx context.Context, handler JobHandler) error
	// Stop stops consuming jobs and waits for in-flight jobs to complete.
	Stop(ctx context.Context) error
}

// JobHandler processes a job. A returned error is retried unless it is
// marked Permanent.
type JobHandler func(ctx context.Context, job Job) error

// JobStore tracks job state across the life of the process.
type JobStore interface {
	SaveJob(ctx context.Context, job *AnalyzeUploadJob) error
	GetJob(ctx context.Context, jobID string) (*AnalyzeUploadJob, error)
	ListJobs(ctx context.Context, filter JobFilter) ([]*AnalyzeUploadJob, error)
	UpdateJobStatus(ctx context.Context, jobID string, status JobStatus, errorMsg string) error
}

// JobFilter defines filtering criteria for listing jobs.
type JobFilter struct {
	UploadID string
	Status   JobStatus
	Limit    int
	Offset   int
}

// ErrJobNotFound is returned by stores for unknown job ids.
var ErrJobNotFound = errors.New("job not found")

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

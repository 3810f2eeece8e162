package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// JobStatus represents the status of a bulk import job
type JobStatus string

const (
	JobStatusPending   JobStatus = "PENDING"
	JobStatusRunning   JobStatus = "RUNNING"
	JobStatusCompleted JobStatus = "COMPLETED"
	JobStatusFailed    JobStatus = "FAILED"
	JobStatusCancelled JobStatus = "CANCELLED"
)

// IsTerminal reports whether the job can no longer change state on its own
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// JSONB custom type for PostgreSQL JSONB
type JSONB map[string]interface{}

func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return "{}", nil
	}
	b, err := json.Marshal(j)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = make(map[string]interface{})
		return nil
	}
	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported JSONB value type %T", value)
	}
	if len(raw) == 0 {
		*j = make(map[string]interface{})
		return nil
	}
	return json.Unmarshal(raw, j)
}

// JobProgress tracks the record counts of an import job
type JobProgress struct {
	TotalItems      int     `json:"totalItems"`
	ProcessedItems  int     `json:"processedItems"`
	SuccessfulItems int     `json:"successfulItems"`
	FailedItems     int     `json:"failedItems"`
	Percentage      float64 `json:"percentage"`
}

// ImportJob is the job-tracking record of a bulk import
type ImportJob struct {
	ID        uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	RequestID string     `gorm:"type:varchar(64);index:idx_import_jobs_request" json:"requestId"`
	Source    SourceType `gorm:"type:varchar(50);not null;index:idx_import_jobs_source" json:"source"`
	SourceURL string     `gorm:"type:varchar(2000)" json:"sourceUrl,omitempty"`
	FileName  string     `gorm:"type:varchar(500)" json:"fileName,omitempty"`

	Status   JobStatus `gorm:"type:varchar(50);not null;default:'PENDING';index:idx_import_jobs_status" json:"status"`
	Progress JSONB     `gorm:"type:jsonb" json:"progress"`

	IdempotencyKey string `gorm:"type:varchar(128);index:idx_import_jobs_idempotency" json:"idempotencyKey,omitempty"`

	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`

	ErrorMessage string `gorm:"type:text" json:"errorMessage,omitempty"`
	RetryCount   int    `gorm:"default:0" json:"retryCount"`
	MaxRetries   int    `gorm:"default:3" json:"maxRetries"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TableName specifies the table name for ImportJob
func (ImportJob) TableName() string {
	return "product_import_jobs"
}

// BeforeCreate assigns an id when the caller did not
func (j *ImportJob) BeforeCreate(tx *gorm.DB) error {
	if j.ID == uuid.Nil {
		j.ID = uuid.New()
	}
	return nil
}

// GetProgress returns the job progress as a structured object
func (j *ImportJob) GetProgress() *JobProgress {
	progress := &JobProgress{}
	if j.Progress != nil {
		if v, ok := j.Progress["totalItems"].(float64); ok {
			progress.TotalItems = int(v)
		}
		if v, ok := j.Progress["processedItems"].(float64); ok {
			progress.ProcessedItems = int(v)
		}
		if v, ok := j.Progress["successfulItems"].(float64); ok {
			progress.SuccessfulItems = int(v)
		}
		if v, ok := j.Progress["failedItems"].(float64); ok {
			progress.FailedItems = int(v)
		}
		if v, ok := j.Progress["percentage"].(float64); ok {
			progress.Percentage = v
		}
	}
	return progress
}

// SetProgress sets the job progress from a structured object
func (j *ImportJob) SetProgress(progress *JobProgress) {
	j.Progress = progress.JSONB()
}

// JSONB converts the progress into its stored representation
func (p *JobProgress) JSONB() JSONB {
	return JSONB{
		"totalItems":      p.TotalItems,
		"processedItems":  p.ProcessedItems,
		"successfulItems": p.SuccessfulItems,
		"failedItems":     p.FailedItems,
		"percentage":      p.Percentage,
	}
}

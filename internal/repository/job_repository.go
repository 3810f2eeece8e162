package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"product-import-service/internal/models"
)

var (
	// ErrJobNotFound is returned when no job exists with the given id
	ErrJobNotFound = errors.New("import job not found")
	// ErrJobNotCancellable is returned when cancelling a job that already finished
	ErrJobNotCancellable = errors.New("import job is not cancellable")
	// ErrJobNotRetryable is returned when retrying a job that did not fail or was not cancelled
	ErrJobNotRetryable = errors.New("import job is not retryable")
	// ErrRetryLimitReached is returned when a job exhausted its retries
	ErrRetryLimitReached = errors.New("import job retry limit reached")
	// ErrJobCancelled is returned when completing a job that was cancelled meanwhile
	ErrJobCancelled = errors.New("import job was cancelled")
)

// JobStore is the job-tracking collaborator used by bulk imports
type JobStore interface {
	Create(ctx context.Context, job *models.ImportJob) error
	Complete(ctx context.Context, id uuid.UUID, status models.JobStatus, progress *models.JobProgress, errorMessage string) error
	History(ctx context.Context, limit int) ([]models.ImportJob, error)
	Cancel(ctx context.Context, id uuid.UUID) (*models.ImportJob, error)
	Retry(ctx context.Context, id uuid.UUID) (*models.ImportJob, error)
}

// JobRepository handles database operations for import jobs
type JobRepository struct {
	db *gorm.DB
}

// NewJobRepository creates a new job repository
func NewJobRepository(db *gorm.DB) *JobRepository {
	return &JobRepository{db: db}
}

// Create creates a new import job
func (r *JobRepository) Create(ctx context.Context, job *models.ImportJob) error {
	if job.Status == "" {
		job.Status = models.JobStatusPending
	}
	return r.db.WithContext(ctx).Create(job).Error
}

// GetByID retrieves an import job by ID
func (r *JobRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.ImportJob, error) {
	var job models.ImportJob
	err := r.db.WithContext(ctx).First(&job, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}
	return &job, nil
}

// Complete records the status and counts of a job. A cancelled job keeps
// its status and Complete returns ErrJobCancelled.
func (r *JobRepository) Complete(ctx context.Context, id uuid.UUID, status models.JobStatus, progress *models.JobProgress, errorMessage string) error {
	updates := map[string]interface{}{
		"status":        status,
		"error_message": errorMessage,
		"updated_at":    time.Now(),
	}
	if progress != nil {
		updates["progress"] = progress.JSONB()
	}
	if status.IsTerminal() {
		now := time.Now()
		updates["completed_at"] = &now
	}
	result := r.db.WithContext(ctx).
		Model(&models.ImportJob{}).
		Where("id = ? AND status <> ?", id, models.JobStatusCancelled).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		job, err := r.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if job.Status == models.JobStatusCancelled {
			return ErrJobCancelled
		}
		return ErrJobNotFound
	}
	return nil
}

// History lists the most recent jobs first
func (r *JobRepository) History(ctx context.Context, limit int) ([]models.ImportJob, error) {
	var jobs []models.ImportJob
	query := r.db.WithContext(ctx).Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}

// Cancel marks a pending or running job as cancelled
func (r *JobRepository) Cancel(ctx context.Context, id uuid.UUID) (*models.ImportJob, error) {
	var job models.ImportJob
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&job, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrJobNotFound
			}
			return err
		}
		if job.Status.IsTerminal() {
			return ErrJobNotCancellable
		}

		now := time.Now()
		job.Status = models.JobStatusCancelled
		job.CompletedAt = &now
		return tx.Model(&job).Updates(map[string]interface{}{
			"status":       job.Status,
			"completed_at": job.CompletedAt,
			"updated_at":   now,
		}).Error
	})
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// Retry puts a failed or cancelled job back into the pending state
func (r *JobRepository) Retry(ctx context.Context, id uuid.UUID) (*models.ImportJob, error) {
	var job models.ImportJob
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&job, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrJobNotFound
			}
			return err
		}
		if job.Status != models.JobStatusFailed && job.Status != models.JobStatusCancelled {
			return ErrJobNotRetryable
		}
		if job.MaxRetries > 0 && job.RetryCount >= job.MaxRetries {
			return ErrRetryLimitReached
		}

		job.Status = models.JobStatusPending
		job.RetryCount++
		job.ErrorMessage = ""
		job.CompletedAt = nil
		return tx.Model(&job).Updates(map[string]interface{}{
			"status":        job.Status,
			"retry_count":   job.RetryCount,
			"error_message": "",
			"completed_at":  nil,
			"updated_at":    time.Now(),
		}).Error
	})
	if err != nil {
		return nil, err
	}
	return &job, nil
}

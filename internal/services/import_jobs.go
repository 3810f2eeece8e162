package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"product-import-service/internal/models"
)

// createJob records a bulk import in the job store. Tracking failures are
// logged and the import proceeds untracked.
func (s *ImportService) createJob(ctx context.Context, run *importRun) *models.ImportJob {
	if s.jobs == nil {
		return nil
	}

	now := time.Now()
	job := &models.ImportJob{
		ID:             uuid.New(),
		RequestID:      run.requestID,
		Source:         run.source,
		SourceURL:      run.req.URL,
		Status:         models.JobStatusRunning,
		IdempotencyKey: run.key,
		StartedAt:      &now,
		MaxRetries:     3,
	}
	if run.req.File != nil {
		job.FileName = run.req.File.Name
	}
	job.SetProgress(&models.JobProgress{})

	if err := s.jobs.Create(ctx, job); err != nil {
		s.logger.WithError(err).WithField("request_id", run.requestID).Warn("Failed to create import job")
		return nil
	}
	return job
}

// GetImportHistory lists the most recent bulk import jobs
func (s *ImportService) GetImportHistory(ctx context.Context, limit int) ([]models.ImportJob, error) {
	if s.jobs == nil {
		return nil, ErrJobTrackingDisabled
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	return s.jobs.History(ctx, limit)
}

// CancelJob marks a job cancelled in the job store. An import that is still
// running finishes normally and its completion leaves the status unchanged.
func (s *ImportService) CancelJob(ctx context.Context, id string) (*models.ImportJob, error) {
	jobID, err := s.jobID(id)
	if err != nil {
		return nil, err
	}

	job, err := s.jobs.Cancel(ctx, jobID)
	if err != nil {
		return nil, err
	}
	s.logger.WithField("job_id", jobID).Info("Import job cancelled")
	return job, nil
}

// RetryJob puts a failed or cancelled job back into the pending state of the
// job store. Nothing is re-executed here; the job is picked up by whoever
// resubmits it.
func (s *ImportService) RetryJob(ctx context.Context, id string) (*models.ImportJob, error) {
	jobID, err := s.jobID(id)
	if err != nil {
		return nil, err
	}

	job, err := s.jobs.Retry(ctx, jobID)
	if err != nil {
		return nil, err
	}
	s.logger.WithFields(logrus.Fields{
		"job_id":      job.ID,
		"retry_count": job.RetryCount,
	}).Info("Import job reset for retry")
	return job, nil
}

func (s *ImportService) jobID(id string) (uuid.UUID, error) {
	if s.jobs == nil {
		return uuid.Nil, ErrJobTrackingDisabled
	}
	jobID, err := uuid.Parse(id)
	if err != nil {
		return uuid.Nil, models.NewValidationError("id", "invalid job id")
	}
	return jobID, nil
}

// Stats returns the registered sources and extraction concurrency
func (s *ImportService) Stats() map[string]interface{} {
	return map[string]interface{}{
		"sources":     s.registry.Sources(),
		"concurrency": s.limiter.GetStats(),
	}
}

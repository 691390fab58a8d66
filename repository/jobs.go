package repository

import (
	"context"
	"fmt"

	"github.com/Iksvihii/daily-watt-sub000/models"

	"github.com/google/uuid"
)

var activeStatuses = []models.ImportJobStatus{models.ImportJobPending, models.ImportJobRunning}

// CreateJob stores a new job; id, creation time and Pending status are filled when missing
func (r *Repository) CreateJob(ctx context.Context, job *models.ImportJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = r.now()
	}
	if job.Status == "" {
		job.Status = models.ImportJobPending
	}
	if err := r.db.WithContext(ctx).Create(job).Error; err != nil {
		return fmt.Errorf("failed to create import job: %w", err)
	}
	return nil
}

// GetJob returns a job when it belongs to userID
func (r *Repository) GetJob(ctx context.Context, userID, jobID string) (*models.ImportJob, error) {
	var job models.ImportJob
	err := r.db.WithContext(ctx).Where("user_id = ? AND id = ?", userID, jobID).Take(&job).Error
	if err != nil {
		return nil, notFound(err, "JOB_NOT_FOUND", "import job %s not found", jobID)
	}
	return &job, nil
}

// PendingJobs returns every Pending job, oldest first
func (r *Repository) PendingJobs(ctx context.Context) ([]models.ImportJob, error) {
	var jobs []models.ImportJob
	err := r.db.WithContext(ctx).
		Where("status = ?", models.ImportJobPending).
		Order("created_at ASC").
		Find(&jobs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list pending jobs: %w", err)
	}
	return jobs, nil
}

// MarkRunning moves a Pending job to Running
func (r *Repository) MarkRunning(ctx context.Context, jobID string) error {
	res := r.db.WithContext(ctx).Model(&models.ImportJob{}).
		Where("id = ? AND status = ?", jobID, models.ImportJobPending).
		Update("status", models.ImportJobRunning)
	if res.Error != nil {
		return fmt.Errorf("failed to mark job %s running: %w", jobID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("job %s is no longer pending", jobID)
	}
	return nil
}

// MarkCompleted finishes a job with the number of imported readings
func (r *Repository) MarkCompleted(ctx context.Context, jobID string, importedCount int) error {
	return r.finish(ctx, jobID, map[string]interface{}{
		"status":         models.ImportJobCompleted,
		"imported_count": importedCount,
		"completed_at":   r.now(),
	})
}

// MarkFailed finishes a job with an error code and message
func (r *Repository) MarkFailed(ctx context.Context, jobID, code, message string) error {
	return r.finish(ctx, jobID, map[string]interface{}{
		"status":        models.ImportJobFailed,
		"error_code":    code,
		"error_message": message,
		"completed_at":  r.now(),
	})
}

// finish only touches jobs that are not terminal yet
func (r *Repository) finish(ctx context.Context, jobID string, fields map[string]interface{}) error {
	err := r.db.WithContext(ctx).Model(&models.ImportJob{}).
		Where("id = ? AND status IN ?", jobID, activeStatuses).
		Updates(fields).Error
	if err != nil {
		return fmt.Errorf("failed to update job %s: %w", jobID, err)
	}
	return nil
}

// FailRunningJobs marks every Running job Failed; used to reconcile jobs interrupted by a shutdown
func (r *Repository) FailRunningJobs(ctx context.Context, code, message string) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.ImportJob{}).
		Where("status = ?", models.ImportJobRunning).
		Updates(map[string]interface{}{
			"status":        models.ImportJobFailed,
			"error_code":    code,
			"error_message": message,
			"completed_at":  r.now(),
		})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to reconcile running jobs: %w", res.Error)
	}
	return res.RowsAffected, nil
}

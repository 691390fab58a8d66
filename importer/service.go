package importer

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Iksvihii/daily-watt-sub000/apperror"
	"github.com/Iksvihii/daily-watt-sub000/logger"
	"github.com/Iksvihii/daily-watt-sub000/models"

	"github.com/google/uuid"
)

// Service creates and reads import jobs on behalf of a user
type Service struct {
	store     Store
	uploadDir string
}

func NewService(store Store, uploadDir string) *Service {
	return &Service{store: store, uploadDir: uploadDir}
}

// CreateJob enqueues a Pending job; filePath is nil for portal downloads
func (s *Service) CreateJob(ctx context.Context, userID, meterID string, from, to time.Time, filePath *string) (*models.ImportJob, error) {
	return s.createJob(ctx, uuid.NewString(), userID, meterID, from, to, filePath)
}

func (s *Service) createJob(ctx context.Context, jobID, userID, meterID string, from, to time.Time, filePath *string) (*models.ImportJob, error) {
	if !to.After(from) {
		return nil, apperror.Validation("to must be after from")
	}
	if _, err := s.store.GetMeter(ctx, userID, meterID); err != nil {
		return nil, err
	}

	job := &models.ImportJob{
		ID:       jobID,
		UserID:   userID,
		MeterID:  meterID,
		FromUtc:  from.UTC(),
		ToUtc:    to.UTC(),
		Status:   models.ImportJobPending,
		FilePath: filePath,
	}
	if err := s.store.CreateJob(ctx, job); err != nil {
		return nil, err
	}
	logger.Infof("Import job %s created for meter %s", job.ID, meterID)
	return job, nil
}

// CreateUploadJob stores the uploaded file under the upload directory and enqueues a job for it
func (s *Service) CreateUploadJob(ctx context.Context, userID, meterID string, from, to time.Time, filename string, content io.Reader) (*models.ImportJob, error) {
	if !to.After(from) {
		return nil, apperror.Validation("to must be after from")
	}
	if _, err := s.store.GetMeter(ctx, userID, meterID); err != nil {
		return nil, err
	}

	jobID := uuid.NewString()
	path, err := s.saveUpload(jobID, filename, content)
	if err != nil {
		return nil, err
	}

	job, err := s.createJob(ctx, jobID, userID, meterID, from, to, &path)
	if err != nil {
		_ = os.Remove(path)
		return nil, err
	}
	return job, nil
}

func (s *Service) saveUpload(jobID, filename string, content io.Reader) (string, error) {
	if err := os.MkdirAll(s.uploadDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create upload directory: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(filename))
	if ext != ".xlsx" && ext != ".csv" {
		ext = ".bin"
	}
	path := filepath.Join(s.uploadDir, jobID+ext)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("failed to create upload file: %w", err)
	}
	if _, err := io.Copy(f, content); err != nil {
		f.Close()
		_ = os.Remove(path)
		return "", apperror.IO(err, "failed to store upload")
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("failed to store upload: %w", err)
	}
	return path, nil
}

// GetJob returns a job of userID; foreign and unknown jobs are both NotFound
func (s *Service) GetJob(ctx context.Context, userID, jobID string) (*models.ImportJob, error) {
	return s.store.GetJob(ctx, userID, jobID)
}

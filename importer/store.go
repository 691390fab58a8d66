package importer

import (
	"context"
	"time"

	"github.com/Iksvihii/daily-watt-sub000/models"
	"github.com/Iksvihii/daily-watt-sub000/weather"
)

// Store is the persistence needed by the runner and the job service
type Store interface {
	CreateJob(ctx context.Context, job *models.ImportJob) error
	GetJob(ctx context.Context, userID, jobID string) (*models.ImportJob, error)
	PendingJobs(ctx context.Context) ([]models.ImportJob, error)
	MarkRunning(ctx context.Context, jobID string) error
	MarkCompleted(ctx context.Context, jobID string, importedCount int) error
	MarkFailed(ctx context.Context, jobID, code, message string) error
	FailRunningJobs(ctx context.Context, code, message string) (int64, error)

	GetMeter(ctx context.Context, userID, meterID string) (*models.Meter, error)
	GetCredential(ctx context.Context, userID string) (*models.Credential, error)
	ReplaceMeasurements(ctx context.Context, userID, meterID string, from, to time.Time, items []models.Measurement) (int, error)
}

// WeatherSyncer fills the weather cache after an import
type WeatherSyncer interface {
	EnsureWeather(ctx context.Context, userID, meterID string, lat, lon float64, from, to models.Date) (weather.SyncResult, error)
}

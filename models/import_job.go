package models

import "time"

// ImportJobStatus is the lifecycle state of an import job
type ImportJobStatus string

const (
	ImportJobPending   ImportJobStatus = "Pending"
	ImportJobRunning   ImportJobStatus = "Running"
	ImportJobCompleted ImportJobStatus = "Completed"
	ImportJobFailed    ImportJobStatus = "Failed"
)

// IsTerminal reports whether no further transition is allowed
func (s ImportJobStatus) IsTerminal() bool {
	return s == ImportJobCompleted || s == ImportJobFailed
}

// Error codes stored on failed jobs
const (
	ErrCodeMeterNotFound = "METER_NOT_FOUND"
	ErrCodeNoCredentials = "NO_CREDENTIALS"
	ErrCodeInvalidFormat = "INVALID_FORMAT"
	ErrCodeScraper       = "SCRAPER_ERROR"
	ErrCodeUnexpected    = "UNEXPECTED_ERROR"
	ErrCodeInterrupted   = "INTERRUPTED"
)

// ImportJob tracks one asynchronous ingestion request
type ImportJob struct {
	ID            string          `gorm:"primaryKey;size:36" json:"id"`
	UserID        string          `gorm:"index;not null;size:64" json:"userId"`
	MeterID       string          `gorm:"index;not null;size:64" json:"meterId"`
	FromUtc       time.Time       `gorm:"not null" json:"fromUtc"`
	ToUtc         time.Time       `gorm:"not null" json:"toUtc"`
	CreatedAt     time.Time       `gorm:"index;not null" json:"createdAt"`
	CompletedAt   *time.Time      `json:"completedAt,omitempty"`
	Status        ImportJobStatus `gorm:"index;size:16;not null" json:"status"`
	ErrorCode     *string         `gorm:"size:64" json:"errorCode,omitempty"`
	ErrorMessage  *string         `gorm:"type:text" json:"errorMessage,omitempty"`
	ImportedCount int             `gorm:"not null;default:0" json:"importedCount"`
	FilePath      *string         `gorm:"size:1024" json:"filePath,omitempty"`
}

func (ImportJob) TableName() string {
	return "import_jobs"
}

// Package repository is the persistence collaborator of the import pipeline and the dashboard:
// meters, credentials, measurements, import jobs and cached weather, all scoped by user and meter.
package repository

import (
	"errors"
	"time"

	"github.com/Iksvihii/daily-watt-sub000/apperror"

	"gorm.io/gorm"
)

// insertBatchSize bounds the rows sent per INSERT statement
const insertBatchSize = 1000

// Repository implements every store contract on top of gorm
type Repository struct {
	db  *gorm.DB
	now func() time.Time
}

// New wraps an open gorm connection
func New(db *gorm.DB) *Repository {
	return &Repository{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the time source; used by tests
func (r *Repository) WithClock(now func() time.Time) *Repository {
	r.now = now
	return r
}

// DB exposes the underlying connection for commands such as db:info
func (r *Repository) DB() *gorm.DB {
	return r.db
}

func notFound(err error, code, format string, args ...interface{}) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperror.NotFound(code, format, args...)
	}
	return err
}

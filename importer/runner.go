// Package importer runs the asynchronous consumption import jobs.
package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/Iksvihii/daily-watt-sub000/apperror"
	"github.com/Iksvihii/daily-watt-sub000/events"
	"github.com/Iksvihii/daily-watt-sub000/logger"
	"github.com/Iksvihii/daily-watt-sub000/metrics"
	"github.com/Iksvihii/daily-watt-sub000/mirror"
	"github.com/Iksvihii/daily-watt-sub000/models"
	"github.com/Iksvihii/daily-watt-sub000/parser"
	"github.com/Iksvihii/daily-watt-sub000/secret"
	"github.com/Iksvihii/daily-watt-sub000/source"
)

// DefaultPollInterval is used when Options.PollInterval is not set
const DefaultPollInterval = 10 * time.Second

// Options wires the runner collaborators; only Store is mandatory
type Options struct {
	Store        Store
	Source       source.FileSource
	Protector    secret.Protector
	Weather      WeatherSyncer
	Recorder     metrics.Recorder
	Publisher    events.Publisher
	Sink         mirror.Sink
	PollInterval time.Duration
}

// Runner polls Pending jobs and processes them one at a time
type Runner struct {
	store     Store
	source    source.FileSource
	protector secret.Protector
	weather   WeatherSyncer
	recorder  metrics.Recorder
	publisher events.Publisher
	sink      mirror.Sink
	interval  time.Duration

	cycle sync.Mutex
}

// CycleResult summarizes one poll cycle
type CycleResult struct {
	Skipped   bool
	Processed int
	Completed int
	Failed    int
}

func NewRunner(opts Options) *Runner {
	r := &Runner{
		store:     opts.Store,
		source:    opts.Source,
		protector: opts.Protector,
		weather:   opts.Weather,
		recorder:  opts.Recorder,
		publisher: opts.Publisher,
		sink:      opts.Sink,
		interval:  opts.PollInterval,
	}
	if r.recorder == nil {
		r.recorder = metrics.NoOpRecorder{}
	}
	if r.publisher == nil {
		r.publisher = events.NoOpPublisher{}
	}
	if r.sink == nil {
		r.sink = mirror.NoOpSink{}
	}
	if r.interval <= 0 {
		r.interval = DefaultPollInterval
	}
	return r
}

// Run processes a cycle immediately then one per interval until ctx is done
func (r *Runner) Run(ctx context.Context) error {
	logger.Printf("Import runner started (poll interval %v)", r.interval)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		if _, err := r.RunOnce(ctx); err != nil && ctx.Err() == nil {
			logger.Errorf("Import cycle failed: %v", err)
		}

		select {
		case <-ctx.Done():
			logger.Println("Import runner stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// RunOnce processes every Pending job, oldest first. It returns immediately with Skipped set
// when another cycle is still in progress.
func (r *Runner) RunOnce(ctx context.Context) (CycleResult, error) {
	if !r.cycle.TryLock() {
		logger.Debugf("Import cycle already in progress, skipping")
		return CycleResult{Skipped: true}, nil
	}
	defer r.cycle.Unlock()

	var result CycleResult
	jobs, err := r.store.PendingJobs(ctx)
	if err != nil {
		return result, fmt.Errorf("failed to load pending jobs: %w", err)
	}
	if len(jobs) == 0 {
		return result, nil
	}

	logger.Printf("Processing %d pending import job(s)", len(jobs))
	for i := range jobs {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		logger.LogProgress(i+1, len(jobs), "job "+jobs[i].ID)

		status, err := r.processJob(ctx, jobs[i])
		if err != nil {
			// Only cancellation escapes processJob; the job stays Running for reconciliation
			return result, err
		}
		if status == "" {
			continue
		}
		result.Processed++
		switch status {
		case models.ImportJobCompleted:
			result.Completed++
		case models.ImportJobFailed:
			result.Failed++
		}
	}
	return result, nil
}

// ReconcileInterrupted fails jobs left Running by a previous process
func (r *Runner) ReconcileInterrupted(ctx context.Context) (int64, error) {
	n, err := r.store.FailRunningJobs(ctx, models.ErrCodeInterrupted, "job was interrupted by a shutdown")
	if err != nil {
		return 0, err
	}
	if n > 0 {
		logger.Warnf("Marked %d interrupted job(s) as failed", n)
	}
	return n, nil
}

// processJob drives one job to a terminal state. The returned error is non-nil only on cancellation;
// an empty status means the job could not be claimed and was left untouched.
func (r *Runner) processJob(ctx context.Context, job models.ImportJob) (models.ImportJobStatus, error) {
	started := time.Now()

	meter, err := r.store.GetMeter(ctx, job.UserID, job.MeterID)
	if err != nil {
		return r.fail(ctx, job, started, err)
	}

	var login, password string
	if job.FilePath == nil {
		login, password, err = r.credentials(ctx, job.UserID)
		if err != nil {
			return r.fail(ctx, job, started, err)
		}
	}

	if err := r.store.MarkRunning(ctx, job.ID); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		// The job was claimed or finished elsewhere; it is not ours to fail
		logger.Warnf("Job %s skipped: %v", job.ID, err)
		return "", nil
	}
	logger.Infof("Job %s running for meter %s (%s..%s)", job.ID, job.MeterID,
		job.FromUtc.Format(time.RFC3339), job.ToUtc.Format(time.RFC3339))

	data, err := r.acquire(ctx, job, login, password)
	if err != nil {
		return r.fail(ctx, job, started, err)
	}

	items, report, err := parser.Parse(data, parser.Scope{
		UserID:  job.UserID,
		MeterID: job.MeterID,
		From:    job.FromUtc,
		To:      job.ToUtc,
	})
	if err != nil {
		return r.fail(ctx, job, started, err)
	}
	logger.Infof("Job %s parsed %s", job.ID, report)

	count, err := r.store.ReplaceMeasurements(ctx, job.UserID, job.MeterID, job.FromUtc, job.ToUtc, items)
	if err != nil {
		return r.fail(ctx, job, started, err)
	}

	if meter.HasLocation() && r.weather != nil {
		r.syncWeather(ctx, job, meter)
		if err := ctx.Err(); err != nil {
			return "", err
		}
	}

	if err := r.store.MarkCompleted(ctx, job.ID, count); err != nil {
		return r.fail(ctx, job, started, err)
	}

	now := time.Now().UTC()
	job.Status = models.ImportJobCompleted
	job.ImportedCount = count
	job.CompletedAt = &now
	logger.LogResult("Job "+job.ID, true, fmt.Sprintf("%d readings imported in %v", count, time.Since(started)))
	r.afterTerminal(ctx, job, started, items)
	return models.ImportJobCompleted, nil
}

func (r *Runner) credentials(ctx context.Context, userID string) (string, string, error) {
	cred, err := r.store.GetCredential(ctx, userID)
	if err != nil {
		return "", "", err
	}
	if r.protector == nil {
		return "", "", errors.New("no secret protector configured")
	}
	password, err := r.protector.Unprotect(cred.PasswordProtected)
	if err != nil {
		return "", "", err
	}
	return cred.Login, string(password), nil
}

func (r *Runner) acquire(ctx context.Context, job models.ImportJob, login, password string) ([]byte, error) {
	var (
		body io.ReadCloser
		err  error
	)
	if job.FilePath != nil {
		body, err = source.OpenUpload(*job.FilePath)
	} else {
		if r.source == nil {
			return nil, errors.New("no file source configured")
		}
		body, err = r.source.DownloadConsumptionFile(ctx, login, password, job.FromUtc, job.ToUtc)
	}
	if err != nil {
		return nil, err
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, apperror.IO(err, "failed to read consumption file")
	}
	return data, nil
}

// syncWeather is best effort: failures are logged and never fail the job
func (r *Runner) syncWeather(ctx context.Context, job models.ImportJob, meter *models.Meter) {
	result, err := r.weather.EnsureWeather(ctx, job.UserID, job.MeterID, *meter.Latitude, *meter.Longitude,
		models.DateOf(job.FromUtc), models.DateOf(job.ToUtc))
	if err != nil {
		logger.Warnf("Job %s: weather sync failed: %v", job.ID, err)
		return
	}
	if !result.Complete() {
		logger.Warnf("Job %s: weather partially synced: %v", job.ID, result.Failures)
	}
}

// fail records the failure of job unless ctx was cancelled, in which case the cancellation is returned
func (r *Runner) fail(ctx context.Context, job models.ImportJob, started time.Time, cause error) (models.ImportJobStatus, error) {
	if err := ctx.Err(); err != nil {
		logger.Warnf("Job %s interrupted: %v", job.ID, cause)
		return "", err
	}

	code := ErrorCode(cause)
	message := cause.Error()
	if err := r.store.MarkFailed(ctx, job.ID, code, message); err != nil {
		logger.Errorf("Job %s: failed to record failure %s: %v", job.ID, code, err)
	}

	now := time.Now().UTC()
	job.Status = models.ImportJobFailed
	job.ErrorCode = &code
	job.ErrorMessage = &message
	job.CompletedAt = &now
	logger.LogResult("Job "+job.ID, false, fmt.Sprintf("%s: %s", code, message))
	r.afterTerminal(ctx, job, started, nil)
	return models.ImportJobFailed, nil
}

// ErrorCode maps a job failure to the code stored on the job
func ErrorCode(err error) string {
	var appErr *apperror.Error
	if !errors.As(err, &appErr) {
		return models.ErrCodeUnexpected
	}
	switch appErr.Kind {
	case apperror.KindNotFound:
		if appErr.Code != "" {
			return appErr.Code
		}
	case apperror.KindFormat:
		return models.ErrCodeInvalidFormat
	case apperror.KindTransient:
		return models.ErrCodeScraper
	}
	return models.ErrCodeUnexpected
}

func (r *Runner) afterTerminal(ctx context.Context, job models.ImportJob, started time.Time, items []models.Measurement) {
	code := ""
	if job.ErrorCode != nil {
		code = *job.ErrorCode
	}
	r.recorder.RecordJobFinished(string(job.Status), code, time.Since(started), job.ImportedCount)

	if err := r.publisher.PublishJob(ctx, job); err != nil {
		logger.Warnf("Job %s: %v", job.ID, err)
	}
	if job.Status == models.ImportJobCompleted && len(items) > 0 {
		if err := r.sink.WriteMeasurements(ctx, items); err != nil {
			logger.Warnf("Job %s: %v", job.ID, err)
		}
	}
}

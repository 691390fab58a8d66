package importer

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Iksvihii/daily-watt-sub000/apperror"
	"github.com/Iksvihii/daily-watt-sub000/models"
	"github.com/Iksvihii/daily-watt-sub000/repository"
	"github.com/Iksvihii/daily-watt-sub000/weather"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const sampleCSV = "timestamp;kwh\n" +
	"2024-01-01T00:00:00Z;0,5\n" +
	"2024-01-01T00:30:00Z;0,25\n" +
	"2024-01-02T00:00:00Z;1\n"

func openTestRepo(t *testing.T) *repository.Repository {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(models.GetAllModels()...))
	return repository.New(db)
}

// plainProtector stores secrets reversed
type plainProtector struct{}

func (plainProtector) Protect(p []byte) ([]byte, error)   { return reverse(p), nil }
func (plainProtector) Unprotect(p []byte) ([]byte, error) { return reverse(p), nil }

func reverse(p []byte) []byte {
	out := make([]byte, len(p))
	for i := range p {
		out[len(p)-1-i] = p[i]
	}
	return out
}

type fakeSource struct {
	data  []byte
	err   error
	block bool

	mu     sync.Mutex
	logins []string
}

func (f *fakeSource) DownloadConsumptionFile(ctx context.Context, login, password string, _, _ time.Time) (io.ReadCloser, error) {
	f.mu.Lock()
	f.logins = append(f.logins, login+":"+password)
	f.mu.Unlock()
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	return io.NopCloser(bytes.NewReader(f.data)), nil
}

type fakeWeather struct {
	calls int
	err   error
}

func (f *fakeWeather) EnsureWeather(_ context.Context, _, _ string, _, _ float64, _, _ models.Date) (weather.SyncResult, error) {
	f.calls++
	return weather.SyncResult{}, f.err
}

type fixture struct {
	repo    *repository.Repository
	service *Service
	meter   *models.Meter
	ctx     context.Context
}

func newFixture(t *testing.T, withCredentials bool) *fixture {
	t.Helper()
	repo := openTestRepo(t)
	ctx := context.Background()

	lat, lon := 45.76, 4.84
	meter := &models.Meter{UserID: "u1", Prm: "09876543210987", Latitude: &lat, Longitude: &lon}
	require.NoError(t, repo.CreateMeter(ctx, meter))
	if withCredentials {
		protected, _ := plainProtector{}.Protect([]byte("s3cret"))
		require.NoError(t, repo.SaveCredential(ctx, &models.Credential{UserID: "u1", Login: "alice", PasswordProtected: protected}))
	}

	return &fixture{repo: repo, service: NewService(repo, t.TempDir()), meter: meter, ctx: ctx}
}

func (f *fixture) createJob(t *testing.T) *models.ImportJob {
	t.Helper()
	job, err := f.service.CreateJob(f.ctx, "u1", f.meter.ID,
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC), nil)
	require.NoError(t, err)
	return job
}

func (f *fixture) job(t *testing.T, id string) *models.ImportJob {
	t.Helper()
	job, err := f.service.GetJob(f.ctx, "u1", id)
	require.NoError(t, err)
	return job
}

func TestRunner_CompletesJob(t *testing.T) {
	f := newFixture(t, true)
	src := &fakeSource{data: []byte(sampleCSV)}
	wx := &fakeWeather{}
	runner := NewRunner(Options{Store: f.repo, Source: src, Protector: plainProtector{}, Weather: wx})

	job := f.createJob(t)
	assert.Equal(t, models.ImportJobPending, job.Status)

	result, err := runner.RunOnce(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, CycleResult{Processed: 1, Completed: 1}, result)

	stored := f.job(t, job.ID)
	assert.Equal(t, models.ImportJobCompleted, stored.Status)
	assert.Equal(t, 3, stored.ImportedCount)
	assert.NotNil(t, stored.CompletedAt)
	assert.Nil(t, stored.ErrorCode)

	assert.Equal(t, []string{"alice:s3cret"}, src.logins)
	assert.Equal(t, 1, wx.calls)

	count, err := f.repo.CountMeasurements(f.ctx, "u1", f.meter.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
}

func TestRunner_ReimportIsIdempotent(t *testing.T) {
	f := newFixture(t, true)
	runner := NewRunner(Options{Store: f.repo, Source: &fakeSource{data: []byte(sampleCSV)}, Protector: plainProtector{}})

	f.createJob(t)
	_, err := runner.RunOnce(f.ctx)
	require.NoError(t, err)
	f.createJob(t)
	_, err = runner.RunOnce(f.ctx)
	require.NoError(t, err)

	count, err := f.repo.CountMeasurements(f.ctx, "u1", f.meter.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
}

func TestRunner_NoCredentials(t *testing.T) {
	f := newFixture(t, false)
	src := &fakeSource{data: []byte(sampleCSV)}
	runner := NewRunner(Options{Store: f.repo, Source: src, Protector: plainProtector{}})

	job := f.createJob(t)
	result, err := runner.RunOnce(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)

	stored := f.job(t, job.ID)
	assert.Equal(t, models.ImportJobFailed, stored.Status)
	require.NotNil(t, stored.ErrorCode)
	assert.Equal(t, models.ErrCodeNoCredentials, *stored.ErrorCode)
	assert.NotNil(t, stored.CompletedAt)
	assert.Empty(t, src.logins)
}

func TestRunner_MeterNotFound(t *testing.T) {
	f := newFixture(t, true)
	runner := NewRunner(Options{Store: f.repo, Source: &fakeSource{data: []byte(sampleCSV)}, Protector: plainProtector{}})

	job := &models.ImportJob{UserID: "u1", MeterID: "gone", FromUtc: time.Now().Add(-time.Hour), ToUtc: time.Now()}
	require.NoError(t, f.repo.CreateJob(f.ctx, job))

	_, err := runner.RunOnce(f.ctx)
	require.NoError(t, err)

	stored := f.job(t, job.ID)
	assert.Equal(t, models.ImportJobFailed, stored.Status)
	assert.Equal(t, models.ErrCodeMeterNotFound, *stored.ErrorCode)
}

func TestRunner_FailureCodes(t *testing.T) {
	tests := []struct {
		name string
		src  *fakeSource
		code string
	}{
		{name: "invalid workbook", src: &fakeSource{data: []byte("PK\x03\x04garbage")}, code: models.ErrCodeInvalidFormat},
		{name: "scraper down", src: &fakeSource{err: apperror.Transient(errors.New("timeout"), "export service unreachable")}, code: models.ErrCodeScraper},
		{name: "unexpected", src: &fakeSource{err: errors.New("boom")}, code: models.ErrCodeUnexpected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, true)
			runner := NewRunner(Options{Store: f.repo, Source: tt.src, Protector: plainProtector{}})
			job := f.createJob(t)

			_, err := runner.RunOnce(f.ctx)
			require.NoError(t, err)

			stored := f.job(t, job.ID)
			assert.Equal(t, models.ImportJobFailed, stored.Status)
			require.NotNil(t, stored.ErrorCode)
			assert.Equal(t, tt.code, *stored.ErrorCode)
			require.NotNil(t, stored.ErrorMessage)
			assert.NotEmpty(t, *stored.ErrorMessage)
		})
	}
}

func TestRunner_OneFailureDoesNotStopOthers(t *testing.T) {
	f := newFixture(t, true)
	runner := NewRunner(Options{Store: f.repo, Source: &fakeSource{data: []byte(sampleCSV)}, Protector: plainProtector{}})

	broken := &models.ImportJob{UserID: "u1", MeterID: "gone", FromUtc: time.Now().Add(-time.Hour), ToUtc: time.Now(),
		CreatedAt: time.Now().UTC().Add(-time.Minute)}
	require.NoError(t, f.repo.CreateJob(f.ctx, broken))
	good := f.createJob(t)

	result, err := runner.RunOnce(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, CycleResult{Processed: 2, Completed: 1, Failed: 1}, result)
	assert.Equal(t, models.ImportJobCompleted, f.job(t, good.ID).Status)
}

func TestRunner_WeatherFailureDoesNotFailJob(t *testing.T) {
	f := newFixture(t, true)
	wx := &fakeWeather{err: errors.New("cache unavailable")}
	runner := NewRunner(Options{Store: f.repo, Source: &fakeSource{data: []byte(sampleCSV)}, Protector: plainProtector{}, Weather: wx})

	job := f.createJob(t)
	_, err := runner.RunOnce(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, models.ImportJobCompleted, f.job(t, job.ID).Status)
	assert.Equal(t, 1, wx.calls)
}

func TestRunner_UploadJobNeedsNoCredentials(t *testing.T) {
	f := newFixture(t, false)
	runner := NewRunner(Options{Store: f.repo})

	job, err := f.service.CreateUploadJob(f.ctx, "u1", f.meter.ID,
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 1, 1, 23, 59, 0, 0, time.UTC),
		"export.CSV", strings.NewReader(sampleCSV))
	require.NoError(t, err)
	require.NotNil(t, job.FilePath)
	assert.Equal(t, ".csv", filepath.Ext(*job.FilePath))

	_, err = runner.RunOnce(f.ctx)
	require.NoError(t, err)

	stored := f.job(t, job.ID)
	assert.Equal(t, models.ImportJobCompleted, stored.Status)
	assert.Equal(t, 2, stored.ImportedCount)
}

func TestRunner_FileWithOnlyBadRowsCompletesEmpty(t *testing.T) {
	f := newFixture(t, false)
	runner := NewRunner(Options{Store: f.repo})

	job, err := f.service.CreateUploadJob(f.ctx, "u1", f.meter.ID,
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC),
		"export.csv", strings.NewReader("timestamp;kwh\n2024-01-05T00:00:00Z;abc\nnot-a-date;1,5\n"))
	require.NoError(t, err)

	result, err := runner.RunOnce(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Completed)

	stored := f.job(t, job.ID)
	assert.Equal(t, models.ImportJobCompleted, stored.Status)
	assert.Equal(t, 0, stored.ImportedCount)
	assert.Nil(t, stored.ErrorCode)
}

func TestRunner_CancellationLeavesJobRunning(t *testing.T) {
	f := newFixture(t, true)
	runner := NewRunner(Options{Store: f.repo, Source: &fakeSource{block: true}, Protector: plainProtector{}})
	job := f.createJob(t)

	ctx, cancel := context.WithCancel(f.ctx)
	done := make(chan error, 1)
	go func() {
		_, err := runner.RunOnce(ctx)
		done <- err
	}()

	require.Eventually(t, func() bool {
		return f.job(t, job.ID).Status == models.ImportJobRunning
	}, 2*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("runner did not stop")
	}
	assert.Equal(t, models.ImportJobRunning, f.job(t, job.ID).Status)

	n, err := runner.ReconcileInterrupted(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	stored := f.job(t, job.ID)
	assert.Equal(t, models.ImportJobFailed, stored.Status)
	assert.Equal(t, models.ErrCodeInterrupted, *stored.ErrorCode)
}

func TestRunner_CyclesDoNotOverlap(t *testing.T) {
	f := newFixture(t, true)
	runner := NewRunner(Options{Store: f.repo, Source: &fakeSource{block: true}, Protector: plainProtector{}})
	job := f.createJob(t)

	ctx, cancel := context.WithCancel(f.ctx)
	defer cancel()
	go func() { _, _ = runner.RunOnce(ctx) }()

	require.Eventually(t, func() bool {
		return f.job(t, job.ID).Status == models.ImportJobRunning
	}, 2*time.Second, 10*time.Millisecond)

	result, err := runner.RunOnce(f.ctx)
	require.NoError(t, err)
	assert.True(t, result.Skipped)
}

// claimedElsewhere lets another worker move the job to Running just before this runner claims it
type claimedElsewhere struct {
	*repository.Repository
}

func (s claimedElsewhere) MarkRunning(ctx context.Context, jobID string) error {
	if err := s.Repository.MarkRunning(ctx, jobID); err != nil {
		return err
	}
	return s.Repository.MarkRunning(ctx, jobID)
}

func TestRunner_JobClaimedElsewhereIsLeftAlone(t *testing.T) {
	f := newFixture(t, true)
	src := &fakeSource{data: []byte(sampleCSV)}
	runner := NewRunner(Options{Store: claimedElsewhere{f.repo}, Source: src, Protector: plainProtector{}})
	job := f.createJob(t)

	result, err := runner.RunOnce(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Processed)
	assert.Equal(t, 0, result.Failed)

	stored := f.job(t, job.ID)
	assert.Equal(t, models.ImportJobRunning, stored.Status)
	assert.Nil(t, stored.ErrorCode)
	assert.Nil(t, stored.CompletedAt)
	assert.Empty(t, src.logins)
}

func TestRunner_RunStopsOnCancel(t *testing.T) {
	f := newFixture(t, true)
	runner := NewRunner(Options{Store: f.repo, Source: &fakeSource{data: []byte(sampleCSV)}, Protector: plainProtector{}, PollInterval: 10 * time.Millisecond})
	job := f.createJob(t)

	ctx, cancel := context.WithCancel(f.ctx)
	done := make(chan error, 1)
	go func() { done <- runner.Run(ctx) }()

	require.Eventually(t, func() bool {
		return f.job(t, job.ID).Status == models.ImportJobCompleted
	}, 2*time.Second, 10*time.Millisecond)
	cancel()
	assert.NoError(t, <-done)
}

func TestService_Validation(t *testing.T) {
	f := newFixture(t, false)
	now := time.Now()

	_, err := f.service.CreateJob(f.ctx, "u1", f.meter.ID, now, now, nil)
	assert.True(t, apperror.IsKind(err, apperror.KindValidation))

	_, err = f.service.CreateJob(f.ctx, "u1", "unknown", now.Add(-time.Hour), now, nil)
	assert.True(t, apperror.IsKind(err, apperror.KindNotFound))

	_, err = f.service.CreateJob(f.ctx, "intruder", f.meter.ID, now.Add(-time.Hour), now, nil)
	assert.True(t, apperror.IsKind(err, apperror.KindNotFound))

	job := f.createJob(t)
	_, err = f.service.GetJob(f.ctx, "intruder", job.ID)
	assert.True(t, apperror.IsKind(err, apperror.KindNotFound))
}

func TestService_UploadRejectedLeavesNoFile(t *testing.T) {
	f := newFixture(t, false)
	now := time.Now()

	_, err := f.service.CreateUploadJob(f.ctx, "u1", "unknown", now.Add(-time.Hour), now, "a.csv", strings.NewReader("x"))
	assert.True(t, apperror.IsKind(err, apperror.KindNotFound))

	entries, _ := os.ReadDir(f.service.uploadDir)
	assert.Empty(t, entries)
}

func TestErrorCode(t *testing.T) {
	assert.Equal(t, models.ErrCodeUnexpected, ErrorCode(errors.New("x")))
	assert.Equal(t, models.ErrCodeInvalidFormat, ErrorCode(apperror.Format("bad")))
	assert.Equal(t, models.ErrCodeNoCredentials, ErrorCode(apperror.NotFound(models.ErrCodeNoCredentials, "none")))
	assert.Equal(t, models.ErrCodeUnexpected, ErrorCode(apperror.NotFound("", "none")))
	assert.Equal(t, models.ErrCodeScraper, ErrorCode(apperror.Transient(nil, "down")))
}

package scanner

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/Iksvihii/daily-watt-sub000/demo"
	"github.com/Iksvihii/daily-watt-sub000/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedJob struct {
	filename string
	from, to time.Time
	size     int
}

type fakeCreator struct {
	mu   sync.Mutex
	jobs []recordedJob
	fail bool
}

func (f *fakeCreator) CreateUploadJob(_ context.Context, _, _ string, from, to time.Time, filename string, content io.Reader) (*models.ImportJob, error) {
	if f.fail {
		return nil, errors.New("database unavailable")
	}
	data, err := io.ReadAll(content)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs = append(f.jobs, recordedJob{filename: filename, from: from, to: to, size: len(data)})
	return &models.ImportJob{ID: "job-" + filename}, nil
}

func writeFixtures(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	from := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	readings := demo.Generate(5, "u1", "m1", from, from.AddDate(0, 0, 3))

	var csvBuf bytes.Buffer
	require.NoError(t, demo.WriteCSV(&csvBuf, readings))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "march.csv"), csvBuf.Bytes(), 0o644))

	var xlsxBuf bytes.Buffer
	require.NoError(t, demo.WriteDailyWorkbook(&xlsxBuf, readings))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "march.XLSX"), xlsxBuf.Bytes(), 0o644))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "empty.csv"), []byte("timestamp;kwh\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.csv"), 0o755))
	return dir
}

func TestScanDirectory(t *testing.T) {
	dir := writeFixtures(t)
	creator := &fakeCreator{}
	s := NewScanner(creator)
	s.SetWorkerCount(2)

	results, err := s.ScanDirectory(context.Background(), dir, "u1", "m1")
	require.NoError(t, err)
	require.Len(t, results, 3)

	sort.Slice(results, func(i, j int) bool { return results[i].FilePath < results[j].FilePath })
	assert.Error(t, results[0].Error) // empty.csv
	require.NoError(t, results[1].Error)
	require.NoError(t, results[2].Error)

	require.Len(t, creator.jobs, 2)
	for _, job := range creator.jobs {
		assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), job.from)
		assert.Equal(t, time.Date(2024, 3, 3, 23, 59, 59, 0, time.UTC), job.to)
		assert.Greater(t, job.size, 0)
	}
	assert.Equal(t, 3, results[1].RecordCount)   // march.XLSX, one row per day
	assert.Equal(t, 144, results[2].RecordCount) // march.csv, half-hourly
}

func TestScanDirectory_EnqueueFailure(t *testing.T) {
	dir := writeFixtures(t)
	results, err := NewScanner(&fakeCreator{fail: true}).ScanDirectory(context.Background(), dir, "u1", "m1")
	require.NoError(t, err)
	for _, result := range results {
		assert.Error(t, result.Error)
		assert.Empty(t, result.JobID)
	}
}

func TestScanDirectory_MissingDirectory(t *testing.T) {
	_, err := NewScanner(&fakeCreator{}).ScanDirectory(context.Background(), filepath.Join(t.TempDir(), "missing"), "u1", "m1")
	assert.Error(t, err)
}

func TestScanDirectory_NoFiles(t *testing.T) {
	results, err := NewScanner(&fakeCreator{}).ScanDirectory(context.Background(), t.TempDir(), "u1", "m1")
	require.NoError(t, err)
	assert.Empty(t, results)
}

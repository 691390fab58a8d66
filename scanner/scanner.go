// Package scanner enqueues import jobs for the consumption exports found in a directory.
package scanner

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/Iksvihii/daily-watt-sub000/logger"
	"github.com/Iksvihii/daily-watt-sub000/models"
	"github.com/Iksvihii/daily-watt-sub000/parser"
)

// JobCreator enqueues an upload job
type JobCreator interface {
	CreateUploadJob(ctx context.Context, userID, meterID string, from, to time.Time, filename string, content io.Reader) (*models.ImportJob, error)
}

// Scanner inspects export files in parallel and enqueues one job per usable file
type Scanner struct {
	jobs        JobCreator
	workerCount int
}

// FileJob represents an export file to be inspected
type FileJob struct {
	FilePath string
	FileName string
}

// ProcessResult contains the outcome of one file
type ProcessResult struct {
	FilePath    string
	JobID       string
	From        time.Time
	To          time.Time
	RecordCount int
	ErrorCount  int
	Duration    time.Duration
	Error       error
}

// NewScanner creates a scanner with one worker per core, at most 8
func NewScanner(jobs JobCreator) *Scanner {
	workerCount := runtime.NumCPU()
	if workerCount > 8 {
		workerCount = 8
	}
	return &Scanner{jobs: jobs, workerCount: workerCount}
}

// SetWorkerCount sets the number of parallel workers
func (s *Scanner) SetWorkerCount(count int) {
	if count > 0 {
		s.workerCount = count
	}
}

// ScanDirectory inspects every .xlsx and .csv file of directoryPath (non-recursive)
func (s *Scanner) ScanDirectory(ctx context.Context, directoryPath, userID, meterID string) ([]ProcessResult, error) {
	logger.Printf("Scanning directory: %s", directoryPath)

	if _, err := os.Stat(directoryPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("directory does not exist: %s", directoryPath)
	}

	files, err := findExportFiles(directoryPath)
	if err != nil {
		return nil, fmt.Errorf("failed to find export files: %w", err)
	}
	if len(files) == 0 {
		logger.Println("No export files found in the directory")
		return nil, nil
	}

	logger.Printf("Found %d export file(s) to process", len(files))
	logger.Printf("Processing with %d parallel workers", s.workerCount)

	results := s.processFilesParallel(ctx, files, userID, meterID)
	displaySummary(results)
	return results, nil
}

func findExportFiles(directoryPath string) ([]FileJob, error) {
	entries, err := os.ReadDir(directoryPath)
	if err != nil {
		return nil, err
	}

	var files []FileJob
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".xlsx", ".csv":
			files = append(files, FileJob{
				FilePath: filepath.Join(directoryPath, entry.Name()),
				FileName: entry.Name(),
			})
		}
	}
	return files, nil
}

func (s *Scanner) processFilesParallel(ctx context.Context, files []FileJob, userID, meterID string) []ProcessResult {
	jobs := make(chan FileJob, len(files))
	results := make(chan ProcessResult, len(files))

	var wg sync.WaitGroup
	for i := 0; i < s.workerCount; i++ {
		wg.Add(1)
		go s.worker(ctx, jobs, results, userID, meterID, &wg)
	}

	for _, file := range files {
		jobs <- file
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(results)
	}()

	var all []ProcessResult
	for result := range results {
		all = append(all, result)
	}
	return all
}

func (s *Scanner) worker(ctx context.Context, jobs <-chan FileJob, results chan<- ProcessResult, userID, meterID string, wg *sync.WaitGroup) {
	defer wg.Done()
	for job := range jobs {
		if ctx.Err() != nil {
			results <- ProcessResult{FilePath: job.FilePath, Error: ctx.Err()}
			continue
		}
		results <- s.processFile(ctx, job, userID, meterID)
	}
}

// wholeHistory accepts every reading while inspecting a file
var wholeHistory = parser.Scope{
	From: time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC),
	To:   time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC),
}

// processFile parses the file to find its date span, then enqueues it with that span
func (s *Scanner) processFile(ctx context.Context, job FileJob, userID, meterID string) (result ProcessResult) {
	startTime := time.Now()
	result.FilePath = job.FilePath
	defer func() { result.Duration = time.Since(startTime) }()

	logger.Printf("Processing file: %s", job.FileName)

	data, err := os.ReadFile(job.FilePath)
	if err != nil {
		result.Error = fmt.Errorf("failed to open file: %w", err)
		return result
	}

	scope := wholeHistory
	scope.UserID, scope.MeterID = userID, meterID
	items, report, err := parser.Parse(data, scope)
	if err != nil {
		result.Error = err
		return result
	}
	result.RecordCount = len(items)
	result.ErrorCount = report.RowsSkipped

	first, last, ok := parser.Span(items)
	if !ok {
		result.Error = fmt.Errorf("no readings found")
		return result
	}
	// Whole days, so a re-import of the same file replaces exactly what it brought
	result.From = models.DateOf(first).Time()
	result.To = models.DateOf(last).AddDays(1).Time().Add(-time.Second)

	created, err := s.jobs.CreateUploadJob(ctx, userID, meterID, result.From, result.To, job.FileName, bytes.NewReader(data))
	if err != nil {
		result.Error = fmt.Errorf("failed to enqueue: %w", err)
		return result
	}
	result.JobID = created.ID

	logger.Printf("✓ Enqueued %s as job %s: %d readings, %d errors", job.FileName, created.ID, result.RecordCount, result.ErrorCount)
	return result
}

func displaySummary(results []ProcessResult) {
	logger.Println(strings.Repeat("=", 60))
	logger.Println("SCAN SUMMARY")
	logger.Println(strings.Repeat("=", 60))

	var enqueued, failed, totalRecords, totalErrors int
	for _, result := range results {
		if result.Error != nil {
			failed++
			logger.Printf("❌ %s: FAILED - %v", filepath.Base(result.FilePath), result.Error)
			continue
		}
		enqueued++
		totalRecords += result.RecordCount
		totalErrors += result.ErrorCount
		logger.Printf("✅ %s: job %s, %s..%s, %d readings (%v)", filepath.Base(result.FilePath), result.JobID,
			result.From.Format("2006-01-02"), result.To.Format("2006-01-02"), result.RecordCount, result.Duration)
	}

	logger.Println(strings.Repeat("-", 60))
	logger.Printf("Total files: %d", len(results))
	logger.Printf("Enqueued: %d", enqueued)
	logger.Printf("Failed: %d", failed)
	logger.Printf("Total readings found: %d", totalRecords)
	logger.Printf("Total parsing errors: %d", totalErrors)
	logger.Println(strings.Repeat("=", 60))
}

// Package source acquires the raw consumption file of an import job.
package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/Iksvihii/daily-watt-sub000/apperror"
	"github.com/Iksvihii/daily-watt-sub000/logger"
)

// FileSource downloads a consumption export from the utility portal
type FileSource interface {
	DownloadConsumptionFile(ctx context.Context, login, password string, from, to time.Time) (io.ReadCloser, error)
}

// ExportService delegates the portal scraping to an HTTP export service.
// The service receives the credentials and the range as JSON and answers with the workbook.
type ExportService struct {
	url    string
	client *http.Client
}

func NewExportService(url string, timeout time.Duration) *ExportService {
	return &ExportService{
		url:    strings.TrimRight(url, "/"),
		client: &http.Client{Timeout: timeout},
	}
}

type exportRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
	From     string `json:"from"`
	To       string `json:"to"`
}

func (s *ExportService) DownloadConsumptionFile(ctx context.Context, login, password string, from, to time.Time) (io.ReadCloser, error) {
	if s.url == "" {
		return nil, apperror.Transient(nil, "no export service configured")
	}

	body, err := json.Marshal(exportRequest{
		Login:    login,
		Password: password,
		From:     from.UTC().Format(time.RFC3339),
		To:       to.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode export request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url+"/exports/daily", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build export request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	logger.Debugf("Requesting consumption export %s..%s", from.Format(time.RFC3339), to.Format(time.RFC3339))
	resp, err := s.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, apperror.Transient(err, "export service unreachable")
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, apperror.Transient(nil, "export service answered %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return resp.Body, nil
}

// OpenUpload opens a previously uploaded file
func OpenUpload(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, apperror.IO(err, "failed to open uploaded file %s", path)
	}
	return f, nil
}

package source

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Iksvihii/daily-watt-sub000/apperror"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExportService_Download(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/exports/daily", r.URL.Path)
		var req exportRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "alice", req.Login)
		assert.Equal(t, "secret", req.Password)
		assert.Equal(t, "2024-01-01T00:00:00Z", req.From)
		_, _ = w.Write([]byte("file-bytes"))
	}))
	defer server.Close()

	svc := NewExportService(server.URL, time.Second)
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	body, err := svc.DownloadConsumptionFile(context.Background(), "alice", "secret", from, from.AddDate(0, 1, 0))
	require.NoError(t, err)
	defer body.Close()

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "file-bytes", string(data))
}

func TestExportService_Failures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "portal down", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := NewExportService(server.URL, time.Second).DownloadConsumptionFile(context.Background(), "a", "b", time.Now(), time.Now())
	assert.True(t, apperror.IsKind(err, apperror.KindTransient))
	assert.Contains(t, err.Error(), "503")

	_, err = NewExportService("", time.Second).DownloadConsumptionFile(context.Background(), "a", "b", time.Now(), time.Now())
	assert.True(t, apperror.IsKind(err, apperror.KindTransient))
}

func TestExportService_Cancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewExportService(server.URL, time.Second).DownloadConsumptionFile(ctx, "a", "b", time.Now(), time.Now())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestOpenUpload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "upload.csv")
	require.NoError(t, os.WriteFile(path, []byte("timestamp;kwh\n"), 0o644))

	f, err := OpenUpload(path)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = OpenUpload(path + ".missing")
	assert.True(t, apperror.IsKind(err, apperror.KindIO))
}

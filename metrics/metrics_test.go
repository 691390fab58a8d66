package metrics

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestPrometheusRecorder(t *testing.T) {
	r := NewPrometheusRecorder()

	r.RecordJobFinished("Completed", "", 2*time.Second, 48)
	r.RecordJobFinished("Failed", "NO_CREDENTIALS", time.Millisecond, 0)
	r.RecordWeatherCall("ok")
	r.RecordWeatherCall("error")
	r.RecordWeatherCall("ok")
	r.RecordWeatherDaysStored(31)

	assert.Equal(t, 1.0, testutil.ToFloat64(r.jobStatusCounter.WithLabelValues("Failed", "NO_CREDENTIALS")))
	assert.Equal(t, 48.0, testutil.ToFloat64(r.importedReadings))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.weatherCallsCounter.WithLabelValues("ok")))
	assert.Equal(t, 31.0, testutil.ToFloat64(r.weatherDaysStored))

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "dailywatt_import_jobs_total")
}

func TestNoOpRecorder(t *testing.T) {
	var r Recorder = NoOpRecorder{}
	assert.NotPanics(t, func() {
		r.RecordJobFinished("Completed", "", time.Second, 1)
		r.RecordWeatherCall("ok")
		r.RecordWeatherDaysStored(1)
	})
}

package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/Iksvihii/daily-watt-sub000/aggregation"
	"github.com/Iksvihii/daily-watt-sub000/apperror"
	"github.com/Iksvihii/daily-watt-sub000/dashboard"
	"github.com/Iksvihii/daily-watt-sub000/models"

	"github.com/go-chi/chi/v5"
)

const maxUploadBytes = 32 << 20

type createImportRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type jobResponse struct {
	ID            string                 `json:"id"`
	MeterID       string                 `json:"meterId"`
	Status        models.ImportJobStatus `json:"status"`
	FromUtc       time.Time              `json:"fromUtc"`
	ToUtc         time.Time              `json:"toUtc"`
	CreatedAt     time.Time              `json:"createdAt"`
	CompletedAt   *time.Time             `json:"completedAt,omitempty"`
	ImportedCount int                    `json:"importedCount"`
	ErrorCode     *string                `json:"errorCode,omitempty"`
	ErrorMessage  *string                `json:"errorMessage,omitempty"`
}

func toJobResponse(job *models.ImportJob) jobResponse {
	return jobResponse{
		ID:            job.ID,
		MeterID:       job.MeterID,
		Status:        job.Status,
		FromUtc:       job.FromUtc,
		ToUtc:         job.ToUtc,
		CreatedAt:     job.CreatedAt,
		CompletedAt:   job.CompletedAt,
		ImportedCount: job.ImportedCount,
		ErrorCode:     job.ErrorCode,
		ErrorMessage:  job.ErrorMessage,
	}
}

// parseInstant accepts RFC 3339 timestamps and yyyy-MM-dd dates (midnight UTC)
func parseInstant(field, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, apperror.Validation("%s is required", field)
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.UTC(), nil
	}
	if d, err := models.ParseDate(value); err == nil {
		return d.Time(), nil
	}
	return time.Time{}, apperror.Validation("%s must be an ISO-8601 date", field)
}

func parseRange(from, to string) (time.Time, time.Time, error) {
	start, err := parseInstant("from", from)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := parseInstant("to", to)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, end, nil
}

func (s *Server) CreateImport(w http.ResponseWriter, r *http.Request) {
	var req createImportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	from, to, err := parseRange(req.From, req.To)
	if err != nil {
		writeAppError(w, err)
		return
	}

	job, err := s.Jobs.CreateJob(r.Context(), CurrentUserID(r), chi.URLParam(r, "meterId"), from, to, nil)
	if err != nil {
		writeAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusAccepted, toJobResponse(job))
}

func (s *Server) UploadImport(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid multipart form")
		return
	}
	from, to, err := parseRange(r.FormValue("from"), r.FormValue("to"))
	if err != nil {
		writeAppError(w, err)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	job, err := s.Jobs.CreateUploadJob(r.Context(), CurrentUserID(r), chi.URLParam(r, "meterId"), from, to, header.Filename, file)
	if err != nil {
		writeAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusAccepted, toJobResponse(job))
}

func (s *Server) GetImport(w http.ResponseWriter, r *http.Request) {
	job, err := s.Jobs.GetJob(r.Context(), CurrentUserID(r), chi.URLParam(r, "jobId"))
	if err != nil {
		writeAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, toJobResponse(job))
}

func (s *Server) TimeSeries(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, to, err := parseRange(q.Get("from"), q.Get("to"))
	if err != nil {
		writeAppError(w, err)
		return
	}

	withWeather := false
	if raw := q.Get("withWeather"); raw != "" {
		withWeather, err = strconv.ParseBool(raw)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "withWeather must be a boolean")
			return
		}
	}

	resp, err := s.Dashboard.Query(r.Context(), dashboard.Request{
		UserID:      CurrentUserID(r),
		MeterID:     q.Get("meterId"),
		From:        from,
		To:          to,
		Granularity: aggregation.ParseGranularity(q.Get("granularity")),
		WithWeather: withWeather,
	})
	if err != nil {
		writeAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, resp)
}

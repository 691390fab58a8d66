// Package api exposes import jobs and the dashboard time series over HTTP.
package api

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/Iksvihii/daily-watt-sub000/config"
	"github.com/Iksvihii/daily-watt-sub000/dashboard"
	"github.com/Iksvihii/daily-watt-sub000/models"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
)

// JobService creates and reads import jobs
type JobService interface {
	CreateJob(ctx context.Context, userID, meterID string, from, to time.Time, filePath *string) (*models.ImportJob, error)
	CreateUploadJob(ctx context.Context, userID, meterID string, from, to time.Time, filename string, content io.Reader) (*models.ImportJob, error)
	GetJob(ctx context.Context, userID, jobID string) (*models.ImportJob, error)
}

// Dashboard answers time series queries
type Dashboard interface {
	Query(ctx context.Context, req dashboard.Request) (*dashboard.Response, error)
}

type Server struct {
	Jobs        JobService
	Dashboard   Dashboard
	Tokens      Tokens
	Metrics     http.Handler
	CorsOrigins []string
}

func NewServer(cfg config.ServerConfig, jobs JobService, dash Dashboard, metrics http.Handler) *Server {
	return &Server{
		Jobs:        jobs,
		Dashboard:   dash,
		Tokens:      Tokens{Secret: []byte(cfg.JWTSecret), Issuer: cfg.JWTIssuer},
		Metrics:     metrics,
		CorsOrigins: cfg.CorsOrigins,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(RequestLogger)
	if len(s.CorsOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   s.CorsOrigins,
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if s.Metrics != nil {
		r.Handle("/metrics", s.Metrics)
	}

	r.Route("/api", func(api chi.Router) {
		api.Use(WithAuth(s.Tokens))
		api.Post("/meters/{meterId}/imports", s.CreateImport)
		api.Post("/meters/{meterId}/imports/upload", s.UploadImport)
		api.Get("/imports/{jobId}", s.GetImport)
		api.Get("/dashboard/timeseries", s.TimeSeries)
	})

	return r
}

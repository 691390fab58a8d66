package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Iksvihii/daily-watt-sub000/apperror"
	"github.com/Iksvihii/daily-watt-sub000/logger"
)

type ErrorResponse struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

func WriteJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func WriteError(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, ErrorResponse{Message: message})
}

// writeAppError answers with the status of the error kind; internal details stay in the log
func writeAppError(w http.ResponseWriter, err error) {
	status := apperror.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		logger.Errorf("Request failed: %v", err)
		WriteError(w, status, "Internal error")
		return
	}

	resp := ErrorResponse{Message: err.Error()}
	var appErr *apperror.Error
	if errors.As(err, &appErr) {
		resp.Code = appErr.Code
	}
	WriteJSON(w, status, resp)
}

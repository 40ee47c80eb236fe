package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/sourove-a/splaro/internal/models"
)

// jobRetryAfter is what a caller is told to wait when a campaign is busy
const jobRetryAfter = 30 * time.Second

// ErrorResponse is the error response
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
	Field string `json:"field,omitempty"`
}

// HealthResponse is the response for GET /health
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Uptime  string `json:"uptime"`
}

func (s *Server) sendJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

func (s *Server) sendError(w http.ResponseWriter, status int, code, message string) {
	s.sendJSON(w, status, ErrorResponse{Error: message, Code: code})
}

// writeError maps domain errors onto HTTP statuses
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var ve *models.ValidationError
	switch {
	case errors.As(err, &ve):
		s.sendJSON(w, http.StatusBadRequest, ErrorResponse{Error: ve.Error(), Code: "VALIDATION_ERROR", Field: ve.Field})
	case errors.Is(err, models.ErrNotFound):
		s.sendError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
	case errors.Is(err, models.ErrJobAlreadyRunning):
		w.Header().Set("Retry-After", strconv.Itoa(int(jobRetryAfter.Seconds())))
		s.sendError(w, http.StatusConflict, "JOB_ALREADY_RUNNING", err.Error())
	case errors.Is(err, models.ErrInvalidTransition):
		s.sendError(w, http.StatusConflict, "INVALID_TRANSITION", err.Error())
	case models.IsResolution(err):
		s.logger.Error("audience resolution failed", "path", r.URL.Path, "error", err)
		s.sendError(w, http.StatusBadGateway, "RESOLUTION_FAILURE", err.Error())
	default:
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		s.sendError(w, http.StatusInternalServerError, "INTERNAL", "internal server error")
	}
}

// pageParams reads page and page_size from the query string
func pageParams(r *http.Request) (int, int, error) {
	page, err := intParam(r, "page")
	if err != nil {
		return 0, 0, err
	}
	size, err := intParam(r, "page_size")
	if err != nil {
		return 0, 0, err
	}
	return page, size, nil
}

func intParam(r *http.Request, name string) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, &models.ValidationError{Field: name, Message: "must be a non-negative integer"}
	}
	return n, nil
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, HealthResponse{
		Status:  "ok",
		Version: s.version,
		Uptime:  time.Since(s.startTime).Round(time.Second).String(),
	})
}

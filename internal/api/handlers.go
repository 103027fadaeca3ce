package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/vaidashi/trust-trace-api/internal/config"
	apperrors "github.com/vaidashi/trust-trace-api/pkg/errors"
)

// ApiResponse is the envelope of every response body
type ApiResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Code    string      `json:"code,omitempty"`
}

// Health represents the health check response
type Health struct {
	Status    string                 `json:"status"`
	Version   string                 `json:"version"`
	Timestamp string                 `json:"timestamp"`
	Store     string                 `json:"store"`
	Breakers  map[string]interface{} `json:"breakers,omitempty"`
}

// healthCheckHandler handles the health check endpoint
func (s *Server) healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	health := Health{
		Status:    "ok",
		Version:   config.ServiceVersion,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Store:     "ok",
		Breakers:  map[string]interface{}{},
	}
	code := http.StatusOK

	if s.deps.Ping != nil {
		if err := s.deps.Ping(r.Context()); err != nil {
			s.logger.Warn("Health check failed", "error", err)
			health.Status = "degraded"
			health.Store = "unavailable"
			code = http.StatusServiceUnavailable
		}
	}

	if s.deps.Outbox != nil {
		health.Breakers["broker"] = s.deps.Outbox.BreakerState()
	}
	if s.degradation != nil {
		health.Breakers["http"] = s.degradation.GetMetrics()
	}

	s.respondWithJSON(w, code, ApiResponse{Success: code == http.StatusOK, Data: health})
}

func (s *Server) decode(r *http.Request, v interface{}) error {
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(v); err != nil {
		return apperrors.NewInvalidInputError("Invalid request payload").WithContext("cause", err.Error())
	}
	return nil
}

// respondWithAppError renders err with the status and code its AppError carries
func (s *Server) respondWithAppError(w http.ResponseWriter, r *http.Request, err error) {
	appErr := apperrors.FromError(err)

	if appErr.StatusCode >= http.StatusInternalServerError {
		s.logger.Error("Request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
			"context", appErr.Context)
	}

	s.respondWithJSON(w, appErr.StatusCode, ApiResponse{
		Success: false,
		Error:   appErr.Error(),
		Code:    appErr.Code,
	})
}

// respondWithJSON sends a JSON response
func (s *Server) respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error("Failed to marshal response", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(response)
}

package api

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	apperrors "github.com/vaidashi/trust-trace-api/pkg/errors"
)

// requeueOutboxHandler gives a failed outbox message a fresh retry budget
func (s *Server) requeueOutboxHandler(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		s.respondWithAppError(w, r, apperrors.NewInvalidInputError("Invalid outbox message id"))
		return
	}

	if err := s.deps.Outbox.Requeue(r.Context(), id); err != nil {
		s.respondWithAppError(w, r, err)
		return
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{
		Success: true,
		Data: map[string]interface{}{
			"id":     id,
			"status": "pending",
		},
	})
}

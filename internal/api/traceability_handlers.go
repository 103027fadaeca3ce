package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/vaidashi/trust-trace-api/internal/models"
)

type appendRecordRequest struct {
	ProductID          string                    `json:"product_id"`
	OrderID            *string                   `json:"order_id,omitempty"`
	Stage              models.Stage              `json:"stage"`
	Location           models.Location           `json:"location"`
	Timestamp          *time.Time                `json:"timestamp,omitempty"`
	Action             string                    `json:"action"`
	Description        string                    `json:"description"`
	Temperature        *float64                  `json:"temperature,omitempty"`
	Humidity           *float64                  `json:"humidity,omitempty"`
	QualityScore       *float64                  `json:"quality_score,omitempty"`
	Certifications     []string                  `json:"certifications,omitempty"`
	// accepted for compatibility, ignored: manual records start pending
	VerificationStatus models.VerificationStatus `json:"verification_status,omitempty"`
	PreviousRecordID   *string                   `json:"previous_record_id,omitempty"`
	Metadata           models.Metadata           `json:"metadata,omitempty"`
}

// record builds the ledger entry; the acting party is always the caller
func (req appendRecordRequest) record(actor models.Actor) *models.TraceabilityRecord {
	rec := &models.TraceabilityRecord{
		ProductID:          req.ProductID,
		OrderID:            req.OrderID,
		Stage:              req.Stage,
		ActorID:            actor.ID,
		ActorName:          actor.Name,
		ActorRole:          actor.Role,
		Location:           req.Location,
		Action:             req.Action,
		Description:        req.Description,
		Temperature:        req.Temperature,
		Humidity:           req.Humidity,
		QualityScore:       req.QualityScore,
		Certifications:     req.Certifications,
		VerificationStatus: models.VerificationPending,
		PreviousRecordID:   req.PreviousRecordID,
		Metadata:           req.Metadata,
	}

	if req.Timestamp != nil {
		rec.Timestamp = *req.Timestamp
	}
	return rec
}

// appendRecordHandler appends a manual record to a product's chain
func (s *Server) appendRecordHandler(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFrom(r.Context())

	var req appendRecordRequest
	if err := s.decode(r, &req); err != nil {
		s.respondWithAppError(w, r, err)
		return
	}

	rec, err := s.deps.Ledger.Append(r.Context(), req.record(actor))
	if err != nil {
		s.respondWithAppError(w, r, err)
		return
	}

	s.respondWithJSON(w, http.StatusCreated, ApiResponse{Success: true, Data: rec})
}

// getJourneyHandler returns the computed journey of a product
func (s *Server) getJourneyHandler(w http.ResponseWriter, r *http.Request) {
	journey, err := s.deps.Ledger.JourneyFor(r.Context(), mux.Vars(r)["productId"])
	if err != nil {
		s.respondWithAppError(w, r, err)
		return
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{Success: true, Data: journey})
}

// verifyJourneyHandler checks the integrity of a product's chain
func (s *Server) verifyJourneyHandler(w http.ResponseWriter, r *http.Request) {
	productID := mux.Vars(r)["productId"]

	authentic, err := s.deps.Ledger.VerifyAuthenticity(r.Context(), productID)
	if err != nil {
		s.respondWithAppError(w, r, err)
		return
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{Success: true, Data: map[string]interface{}{
		"product_id": productID,
		"authentic":  authentic,
	}})
}

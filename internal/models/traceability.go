package models

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/lib/pq"
)

// TraceabilityRecord is one immutable entry of a product's chain of custody
type TraceabilityRecord struct {
	ID                 string             `db:"id" json:"id"`
	ProductID          string             `db:"product_id" json:"product_id"`
	OrderID            *string            `db:"order_id" json:"order_id,omitempty"`
	Stage              Stage              `db:"stage" json:"stage"`
	ActorID            string             `db:"actor_id" json:"actor_id"`
	ActorName          string             `db:"actor_name" json:"actor_name"`
	ActorRole          Role               `db:"actor_role" json:"actor_role"`
	Location           Location           `db:"location" json:"location"`
	Timestamp          time.Time          `db:"timestamp" json:"timestamp"`
	Action             string             `db:"action" json:"action"`
	Description        string             `db:"description" json:"description"`
	Temperature        *float64           `db:"temperature" json:"temperature,omitempty"`
	Humidity           *float64           `db:"humidity" json:"humidity,omitempty"`
	QualityScore       *float64           `db:"quality_score" json:"quality_score,omitempty"`
	Certifications     pq.StringArray     `db:"certifications" json:"certifications,omitempty"`
	VerificationStatus VerificationStatus `db:"verification_status" json:"verification_status"`
	PreviousRecordID   *string            `db:"previous_record_id" json:"previous_record_id,omitempty"`
	Hash               string             `db:"hash" json:"hash,omitempty"`
	Metadata           Metadata           `db:"metadata" json:"metadata,omitempty"`
	CreatedAt          time.Time          `db:"created_at" json:"created_at"`
}

// ComputeHash derives the integrity hash of r chained onto the predecessor's hash
func (r *TraceabilityRecord) ComputeHash(previousHash string) string {
	orderID := ""
	if r.OrderID != nil {
		orderID = *r.OrderID
	}

	payload := strings.Join([]string{
		previousHash,
		r.ProductID,
		orderID,
		string(r.Stage),
		r.Action,
		r.ActorID,
		r.Timestamp.UTC().Format(time.RFC3339Nano),
	}, "|")

	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}

// JourneyOrigin summarises where a product's chain begins
type JourneyOrigin struct {
	ActorID   string    `json:"actor_id"`
	ActorName string    `json:"actor_name"`
	ActorRole Role      `json:"actor_role"`
	Location  Location  `json:"location"`
	Since     time.Time `json:"since"`
}

// ProductJourney is the computed view of a product's chain of custody
type ProductJourney struct {
	ProductID          string                `json:"product_id"`
	ProductName        string                `json:"product_name,omitempty"`
	Origin             JourneyOrigin         `json:"origin"`
	Records            []*TraceabilityRecord `json:"records"`
	CurrentStatus      string                `json:"current_status"`
	CurrentStage       Stage                 `json:"current_stage"`
	VerificationStatus VerificationStatus    `json:"verification_status"`
	Authentic          bool                  `json:"authentic"`
	TrustScore         int                   `json:"trust_score"`
}

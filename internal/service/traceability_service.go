package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/vaidashi/trust-trace-api/internal/models"
	"github.com/vaidashi/trust-trace-api/internal/repository"
	apperrors "github.com/vaidashi/trust-trace-api/pkg/errors"
	"github.com/vaidashi/trust-trace-api/pkg/logger"
)

const (
	stageWeight   = 80
	verifiedBonus = 20
	maxTrustScore = 100
)

// TraceabilityService maintains the append-only custody ledger
type TraceabilityService struct {
	store  repository.Store
	cache  *JourneyCache
	logger logger.Logger
	tracer trace.Tracer
}

// NewTraceabilityService creates a new TraceabilityService
func NewTraceabilityService(store repository.Store, cache *JourneyCache, logger logger.Logger) *TraceabilityService {
	if cache == nil {
		cache = NewJourneyCache()
	}

	return &TraceabilityService{
		store:  store,
		cache:  cache,
		logger: logger,
		tracer: defaultTracer(),
	}
}

// Cache exposes the journey cache so event consumers can invalidate it
func (s *TraceabilityService) Cache() *JourneyCache {
	return s.cache
}

// Append validates, links, hashes, and stores rec, then announces it on the outbox
func (s *TraceabilityService) Append(ctx context.Context, rec *models.TraceabilityRecord) (*models.TraceabilityRecord, error) {
	ctx, span := startSpan(ctx, s.tracer, "traceability.append",
		attribute.String("product.id", rec.ProductID),
		attribute.String("record.action", rec.Action))

	err := s.store.WithinTx(ctx, func(tx repository.Store) error {
		return s.AppendTx(ctx, tx, rec)
	})
	endSpan(span, err)

	if err != nil {
		return nil, err
	}

	s.cache.Invalidate(rec.ProductID)
	return rec, nil
}

// AppendTx appends rec inside tx. Callers invalidate the journey cache after commit.
func (s *TraceabilityService) AppendTx(ctx context.Context, tx repository.Store, rec *models.TraceabilityRecord) error {
	if err := validateRecord(rec); err != nil {
		return err
	}

	now := models.GetCurrentTime()
	if rec.ID == "" {
		rec.ID = models.GenerateID("trc")
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = now
	}
	// Postgres keeps microseconds; the hash must survive a round trip.
	rec.Timestamp = rec.Timestamp.UTC().Truncate(time.Microsecond)
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	if rec.VerificationStatus == "" {
		rec.VerificationStatus = models.VerificationPending
	}

	ledger := tx.Ledger()

	if err := ledger.LockChain(ctx, rec.ProductID); err != nil {
		return translate(err, "")
	}

	prev, err := s.predecessor(ctx, ledger, rec)
	if err != nil {
		return err
	}

	prevHash := ""
	if prev != nil {
		id := prev.ID
		rec.PreviousRecordID = &id
		prevHash = prev.Hash

		if rec.Timestamp.Before(prev.Timestamp) {
			rec.Timestamp = prev.Timestamp
		}
	}

	rec.Hash = rec.ComputeHash(prevHash)

	if err := ledger.Append(ctx, rec); err != nil {
		return translate(err, "")
	}

	msg, err := models.NewCustodyRecordedEvent(rec)
	if err != nil {
		s.logger.Error("Failed to create outbox message", "error", err)
		return apperrors.NewInternalError("Failed to create outbox message")
	}

	if err := tx.Outbox().Create(ctx, msg); err != nil {
		return translate(err, "")
	}

	s.logger.Info("Custody recorded",
		"recordID", rec.ID,
		"productID", rec.ProductID,
		"stage", rec.Stage,
		"action", rec.Action,
		"actorID", rec.ActorID)

	return nil
}

// predecessor resolves the record rec links to: the supplied previous record, or the chain head
func (s *TraceabilityService) predecessor(ctx context.Context, ledger repository.LedgerRepository, rec *models.TraceabilityRecord) (*models.TraceabilityRecord, error) {
	if rec.PreviousRecordID == nil || *rec.PreviousRecordID == "" {
		rec.PreviousRecordID = nil

		latest, err := ledger.Latest(ctx, rec.ProductID)
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, translate(err, "")
		}
		return latest, nil
	}

	chain, err := ledger.ListByProduct(ctx, rec.ProductID)
	if err != nil {
		return nil, translate(err, "")
	}

	for _, r := range chain {
		if r.ID == *rec.PreviousRecordID {
			return r, nil
		}
	}

	return nil, apperrors.NewInvalidInputError(
		fmt.Sprintf("Previous record %s is not part of product %s", *rec.PreviousRecordID, rec.ProductID))
}

func validateRecord(rec *models.TraceabilityRecord) error {
	var missing []string

	if rec.ProductID == "" {
		missing = append(missing, "product_id")
	}
	if rec.ActorID == "" {
		missing = append(missing, "actor_id")
	}
	if rec.Action == "" {
		missing = append(missing, "action")
	}
	if len(missing) > 0 {
		return apperrors.NewInvalidInputError("Missing required fields: " + strings.Join(missing, ", "))
	}

	if !rec.Stage.Valid() {
		return apperrors.NewInvalidInputError(fmt.Sprintf("Invalid stage %q", rec.Stage))
	}
	if !rec.ActorRole.Valid() {
		return apperrors.NewInvalidInputError(fmt.Sprintf("Invalid actor role %q", rec.ActorRole))
	}
	if rec.VerificationStatus != "" && !rec.VerificationStatus.Valid() {
		return apperrors.NewInvalidInputError(fmt.Sprintf("Invalid verification status %q", rec.VerificationStatus))
	}

	return nil
}

// JourneyFor computes the product's journey, serving it from cache when the chain is unchanged
func (s *TraceabilityService) JourneyFor(ctx context.Context, productID string) (*models.ProductJourney, error) {
	if j, ok := s.cache.Get(productID); ok {
		return j, nil
	}

	ctx, span := startSpan(ctx, s.tracer, "traceability.journey", attribute.String("product.id", productID))
	j, err := s.buildJourney(ctx, productID)
	endSpan(span, err)

	return j, err
}

func (s *TraceabilityService) buildJourney(ctx context.Context, productID string) (*models.ProductJourney, error) {
	gen := s.cache.Generation(productID)

	records, err := s.store.Ledger().ListByProduct(ctx, productID)
	if err != nil {
		return nil, translate(err, "")
	}

	if len(records) == 0 {
		return nil, apperrors.NewNotFoundError("Product journey not found").WithContext("productID", productID)
	}

	authentic := verifyChain(records)
	status := journeyStatus(records, authentic)
	first, last := records[0], records[len(records)-1]

	j := &models.ProductJourney{
		ProductID: productID,
		Origin: models.JourneyOrigin{
			ActorID:   first.ActorID,
			ActorName: first.ActorName,
			ActorRole: first.ActorRole,
			Location:  first.Location,
			Since:     first.Timestamp,
		},
		Records:            records,
		CurrentStatus:      last.Action,
		CurrentStage:       last.Stage,
		VerificationStatus: status,
		Authentic:          authentic,
		TrustScore:         TrustScore(records, status),
	}

	if good, err := s.store.Inventory().FindGood(ctx, productID); err == nil {
		j.ProductName = good.Name
	}

	if !s.cache.Put(productID, gen, j) {
		s.logger.Debug("Journey changed while computing, not cached", "productID", productID)
	}

	return j, nil
}

// VerifyAuthenticity checks every link and hash of the product's chain
func (s *TraceabilityService) VerifyAuthenticity(ctx context.Context, productID string) (bool, error) {
	records, err := s.store.Ledger().ListByProduct(ctx, productID)
	if err != nil {
		return false, translate(err, "")
	}

	if len(records) == 0 {
		return false, apperrors.NewNotFoundError("Product journey not found").WithContext("productID", productID)
	}

	authentic := verifyChain(records)
	if !authentic {
		s.logger.Warn("Product chain failed verification", "productID", productID, "records", len(records))
	}

	return authentic, nil
}

// verifyChain expects records in chain order. Each link must point at an earlier record
// of the same chain that is not newer than the record, and each stored hash must
// match its recomputation.
func verifyChain(records []*models.TraceabilityRecord) bool {
	position := make(map[string]int, len(records))
	for i, r := range records {
		position[r.ID] = i
	}

	for i, r := range records {
		prevHash := ""

		if r.PreviousRecordID != nil {
			p, ok := position[*r.PreviousRecordID]
			if !ok || p >= i {
				return false
			}

			prev := records[p]
			if prev.ProductID != r.ProductID || prev.Timestamp.After(r.Timestamp) {
				return false
			}
			prevHash = prev.Hash
		}

		if r.Hash != "" && r.Hash != r.ComputeHash(prevHash) {
			return false
		}
	}

	return true
}

func journeyStatus(records []*models.TraceabilityRecord, authentic bool) models.VerificationStatus {
	if !authentic {
		return models.VerificationFailed
	}

	allVerified := true
	for _, r := range records {
		switch r.VerificationStatus {
		case models.VerificationFailed:
			return models.VerificationFailed
		case models.VerificationVerified:
		default:
			allVerified = false
		}
	}

	if allVerified {
		return models.VerificationVerified
	}
	return models.VerificationPending
}

// TrustScore rewards stage coverage and a fully verified chain, on a 0 to 100 scale
func TrustScore(records []*models.TraceabilityRecord, status models.VerificationStatus) int {
	stages := make(map[models.Stage]struct{})
	for _, r := range records {
		stages[r.Stage] = struct{}{}
	}

	score := int(math.Round(float64(stageWeight*len(stages)) / float64(len(models.AllStages))))
	if status == models.VerificationVerified {
		score += verifiedBonus
	}

	if score > maxTrustScore {
		score = maxTrustScore
	}
	return score
}

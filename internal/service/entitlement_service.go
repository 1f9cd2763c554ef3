package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/ciltra/ciltra-backend/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

// ErrCandidateNotFound marks a grant aimed at a nonexistent account.
var ErrCandidateNotFound = errors.New("candidate not found")

// EntitlementWriter records new entitlements.
type EntitlementWriter interface {
	Create(ctx context.Context, e *model.Entitlement) error
}

// EntitlementService issues administrative access grants. Payment-provider
// webhooks write entitlements elsewhere; this path is for examiners
// unlocking a priced exam by hand.
type EntitlementService struct {
	exams        ExamStore
	candidates   CandidateReader
	entitlements EntitlementWriter
	log          zerolog.Logger
}

// NewEntitlementService creates a new EntitlementService.
func NewEntitlementService(exams ExamStore, candidates CandidateReader, entitlements EntitlementWriter, log zerolog.Logger) *EntitlementService {
	return &EntitlementService{
		exams:        exams,
		candidates:   candidates,
		entitlements: entitlements,
		log:          log.With().Str("component", "entitlement_service").Logger(),
	}
}

// Grant records a zero-amount successful entitlement for candidate+exam.
// Both sides are validated first so a typo'd ID fails loudly.
func (s *EntitlementService) Grant(ctx context.Context, examinerID int, req model.GrantEntitlementRequest) (*model.Entitlement, error) {
	examID, err := uuid.Parse(req.ExamID)
	if err != nil {
		return nil, ErrExamNotAvailable
	}
	if _, err := s.exams.GetByID(ctx, examID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrExamNotAvailable
		}
		return nil, fmt.Errorf("get exam: %w", err)
	}
	if _, err := s.candidates.GetByID(ctx, req.CandidateID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCandidateNotFound
		}
		return nil, fmt.Errorf("get candidate: %w", err)
	}

	ent := &model.Entitlement{
		CandidateID: req.CandidateID,
		ExamID:      examID,
		Amount:      0,
		Reference:   fmt.Sprintf("grant-%s", uuid.New()),
		Provider:    model.EntitlementProviderGrant,
		Status:      model.EntitlementStatusSuccess,
	}
	if err := s.entitlements.Create(ctx, ent); err != nil {
		return nil, fmt.Errorf("create entitlement: %w", err)
	}

	s.log.Info().
		Int("examiner_id", examinerID).
		Int("candidate_id", req.CandidateID).
		Str("exam_id", examID.String()).
		Str("reference", ent.Reference).
		Msg("Access granted")

	return ent, nil
}

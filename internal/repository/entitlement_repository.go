package repository

import (
	"context"

	"github.com/ciltra/ciltra-backend/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// EntitlementRepository handles payment/grant entitlement data access.
type EntitlementRepository struct {
	pool *pgxpool.Pool
}

// NewEntitlementRepository creates a new EntitlementRepository.
func NewEntitlementRepository(pool *pgxpool.Pool) *EntitlementRepository {
	return &EntitlementRepository{pool: pool}
}

// HasEntitlement reports whether a successful payment or grant exists for the
// exact candidate+exam pair.
func (r *EntitlementRepository) HasEntitlement(ctx context.Context, candidateID int, examID uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM entitlements
		   WHERE candidate_id = $1 AND exam_id = $2 AND status = $3
		 )`, candidateID, examID, model.EntitlementStatusSuccess,
	).Scan(&exists)
	return exists, err
}

// Create inserts an entitlement record.
func (r *EntitlementRepository) Create(ctx context.Context, e *model.Entitlement) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO entitlements (candidate_id, exam_id, amount, reference, provider, status)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, created_at`,
		e.CandidateID, e.ExamID, e.Amount, e.Reference, e.Provider, e.Status,
	).Scan(&e.ID, &e.CreatedAt)
}

package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/ciltra/ciltra-backend/internal/model"
	"github.com/google/uuid"
)

// ErrPaymentRequired means the candidate has no successful entitlement for a
// priced exam. Terminal for this request; the candidate must pay or be
// granted access externally.
var ErrPaymentRequired = errors.New("payment required for this exam")

// EntitlementChecker answers whether a candidate may take a priced exam.
type EntitlementChecker interface {
	HasEntitlement(ctx context.Context, candidateID int, examID uuid.UUID) (bool, error)
}

// AccessGate decides whether a candidate may start an exam. Read-only — it
// never mutates entitlement state.
type AccessGate struct {
	entitlements EntitlementChecker
}

// NewAccessGate creates a new AccessGate.
func NewAccessGate(entitlements EntitlementChecker) *AccessGate {
	return &AccessGate{entitlements: entitlements}
}

// CanStart returns nil when the candidate may start the exam, or
// ErrPaymentRequired when a priced exam has no entitlement on record.
// Free exams are always allowed.
func (g *AccessGate) CanStart(ctx context.Context, candidateID int, exam *model.Exam) error {
	if exam.IsFree() {
		return nil
	}
	ok, err := g.entitlements.HasEntitlement(ctx, candidateID, exam.ID)
	if err != nil {
		return fmt.Errorf("check entitlement: %w", err)
	}
	if !ok {
		return ErrPaymentRequired
	}
	return nil
}

package model

import (
	"time"

	"github.com/google/uuid"
)

// EntitlementStatus enumerates transaction states.
type EntitlementStatus string

const (
	EntitlementStatusPending EntitlementStatus = "pending"
	EntitlementStatusSuccess EntitlementStatus = "success"
	EntitlementStatusFailed  EntitlementStatus = "failed"
)

// Entitlement providers. "grant" marks an administrative grant rather than a
// payment-provider transaction.
const (
	EntitlementProviderPaystack = "paystack"
	EntitlementProviderGrant    = "grant"
)

// Entitlement records proof that a candidate may take a priced exam, either a
// successful payment or an administrative grant. Webhook verification of
// payment-provider callbacks happens outside this service.
type Entitlement struct {
	ID          uuid.UUID         `json:"id"`
	CandidateID int               `json:"candidate_id"`
	ExamID      uuid.UUID         `json:"exam_id"`
	Amount      float64           `json:"amount"`
	Reference   string            `json:"reference"`
	Provider    string            `json:"provider"`
	Status      EntitlementStatus `json:"status"`
	CreatedAt   time.Time         `json:"created_at"`
}

// GrantEntitlementRequest is the payload for an administrative access grant.
type GrantEntitlementRequest struct {
	CandidateID int    `json:"candidate_id" binding:"required"`
	ExamID      string `json:"exam_id" binding:"required,uuid"`
}

package model

import (
	"time"

	"github.com/google/uuid"
)

// Certificate is issued to the passing session, at most once per session.
// Code is the public verification handle.
type Certificate struct {
	ID        uuid.UUID `json:"id"`
	Code      string    `json:"code"`
	SessionID uuid.UUID `json:"session_id"`
	IssuedAt  time.Time `json:"issued_at"`
	FileURL   *string   `json:"file_url,omitempty"`
}

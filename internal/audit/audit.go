// Package audit emits fire-and-forget records of grading actions. Events are
// queued in Redis and drained into PostgreSQL by the audit worker; grading
// never depends on delivery succeeding.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ciltra/ciltra-backend/internal/config"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Grading actions recorded in the audit trail.
const (
	ActionAutoGrade   = "auto_grade"
	ActionManualGrade = "manual_grade"
)

// Event is one grading action: who graded which session to what score.
type Event struct {
	Action    string    `json:"action"`
	Actor     string    `json:"actor"`
	SessionID uuid.UUID `json:"session_id"`
	Score     float64   `json:"score"`
	At        time.Time `json:"at"`
}

// Publisher queues audit events in Redis.
type Publisher struct {
	rdb *redis.Client
	log zerolog.Logger
}

// NewPublisher creates a new Publisher.
func NewPublisher(rdb *redis.Client, log zerolog.Logger) *Publisher {
	return &Publisher{
		rdb: rdb,
		log: log.With().Str("component", "audit_publisher").Logger(),
	}
}

// Publish enqueues an event. Failures are logged and swallowed — audit
// delivery must never fail a grading request.
func (p *Publisher) Publish(ctx context.Context, ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	raw, err := json.Marshal(ev)
	if err != nil {
		p.log.Error().Err(err).Msg("marshal audit event")
		return
	}
	if err := p.rdb.RPush(ctx, config.WorkerKey.AuditEventsQueue, raw).Err(); err != nil {
		p.log.Warn().Err(err).Str("action", ev.Action).Msg("audit event dropped")
	}
}

package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ciltra/ciltra-backend/internal/config"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// GradingEvent announces a submission entering the manual grading queue.
type GradingEvent struct {
	SessionID   uuid.UUID `json:"session_id"`
	ExamID      uuid.UUID `json:"exam_id"`
	CandidateID int       `json:"candidate_id"`
	Score       float64   `json:"score"`
	At          time.Time `json:"at"`
}

// Broadcaster fans grading events out to connected examiner monitors.
// Delivery is best-effort.
type Broadcaster interface {
	GradingQueued(ctx context.Context, ev GradingEvent)
}

// RedisBroadcaster publishes grading events over Redis pub/sub so every
// server instance can relay them to its websocket subscribers.
type RedisBroadcaster struct {
	rdb *redis.Client
	log zerolog.Logger
}

// NewRedisBroadcaster creates a new RedisBroadcaster.
func NewRedisBroadcaster(rdb *redis.Client, log zerolog.Logger) *RedisBroadcaster {
	return &RedisBroadcaster{
		rdb: rdb,
		log: log.With().Str("component", "broadcaster").Logger(),
	}
}

// GradingQueued publishes the event. Failures are logged and dropped; a
// missed notification never blocks a submission.
func (b *RedisBroadcaster) GradingQueued(ctx context.Context, ev GradingEvent) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		b.log.Error().Err(err).Msg("Failed to marshal grading event")
		return
	}
	if err := b.rdb.Publish(ctx, config.CacheKey.GradingEventsChannel(), payload).Err(); err != nil {
		b.log.Error().Err(err).
			Str("session_id", ev.SessionID.String()).
			Msg("Failed to publish grading event")
	}
}

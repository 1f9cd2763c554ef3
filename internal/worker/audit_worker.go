package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ciltra/ciltra-backend/internal/audit"
	"github.com/ciltra/ciltra-backend/internal/config"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	AuditBatchSize    = 100
	AuditBatchTimeout = 2 * time.Second
	AuditPollTimeout  = 1 * time.Second
)

// AuditWorker drains the Redis audit queue and persists events to Postgres
// in batches. Grading requests never wait on the audit trail.
type AuditWorker struct {
	pool *pgxpool.Pool
	rdb  *redis.Client
	log  zerolog.Logger
}

// NewAuditWorker creates a new AuditWorker.
func NewAuditWorker(pool *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) *AuditWorker {
	return &AuditWorker{
		pool: pool,
		rdb:  rdb,
		log:  log.With().Str("component", "audit_worker").Logger(),
	}
}

// Start runs the worker loop until ctx is canceled. A partial batch is
// flushed on shutdown.
func (w *AuditWorker) Start(ctx context.Context) {
	w.log.Info().Msg("AuditWorker started")

	batch := make([]*audit.Event, 0, AuditBatchSize)
	lastFlush := time.Now()

	for {
		if len(batch) > 0 &&
			(len(batch) >= AuditBatchSize || time.Since(lastFlush) >= AuditBatchTimeout) {

			w.flushSafe(ctx, batch)
			batch = batch[:0]
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			w.log.Info().Msg("Shutdown requested. Flushing remaining batch...")
			w.flushSafe(context.Background(), batch)
			return

		default:
			item, err := w.rdb.BLPop(ctx, AuditPollTimeout, config.WorkerKey.AuditEventsQueue).Result()
			if err != nil {
				if err != redis.Nil && ctx.Err() == nil {
					w.log.Error().Err(err).Msg("BLPop error")
				}
				continue
			}

			if len(item) < 2 {
				continue
			}

			var ev audit.Event
			if err := json.Unmarshal([]byte(item[1]), &ev); err != nil {
				w.log.Error().Err(err).Msg("Invalid JSON payload")
				continue
			}

			batch = append(batch, &ev)
		}
	}
}

func (w *AuditWorker) flushSafe(ctx context.Context, batch []*audit.Event) {
	if len(batch) == 0 {
		return
	}

	if err := w.bulkInsert(ctx, batch); err != nil {
		w.log.Warn().Err(err).Msg("bulk audit insert failed, using fallback")

		for _, ev := range batch {
			if err := w.insertSingle(ctx, ev); err != nil {
				w.log.Error().Err(err).Msg("insertSingle failed — requeueing")
				raw, _ := json.Marshal(ev)
				w.rdb.RPush(ctx, config.WorkerKey.AuditEventsQueue, raw)
			}
		}
	}
}

// bulkInsert writes one batch with a single UNNEST statement.
func (w *AuditWorker) bulkInsert(ctx context.Context, batch []*audit.Event) error {
	n := len(batch)

	actions := make([]string, 0, n)
	actors := make([]string, 0, n)
	sessionIDs := make([]string, 0, n)
	scores := make([]float64, 0, n)
	occurredAts := make([]time.Time, 0, n)

	for _, ev := range batch {
		actions = append(actions, ev.Action)
		actors = append(actors, ev.Actor)
		sessionIDs = append(sessionIDs, ev.SessionID.String())
		scores = append(scores, ev.Score)
		occurredAts = append(occurredAts, ev.At)
	}

	query := `
		INSERT INTO audit_events (action, actor, session_id, score, occurred_at)
		SELECT u.action, u.actor, u.session_id, u.score, u.occurred_at
		FROM UNNEST(
			$1::text[],
			$2::text[],
			$3::uuid[],
			$4::float8[],
			$5::timestamptz[]
		) AS u (action, actor, session_id, score, occurred_at)
	`

	_, err := w.pool.Exec(ctx, query, actions, actors, sessionIDs, scores, occurredAts)
	return err
}

func (w *AuditWorker) insertSingle(ctx context.Context, ev *audit.Event) error {
	_, err := w.pool.Exec(ctx,
		`INSERT INTO audit_events (action, actor, session_id, score, occurred_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		ev.Action, ev.Actor, ev.SessionID, ev.Score, ev.At,
	)
	return err
}

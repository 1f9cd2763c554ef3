package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/ciltra/ciltra-backend/internal/model"
	"github.com/ciltra/ciltra-backend/internal/scoring"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Data-level errors surfaced by the session repository. The service layer
// maps these onto the API error taxonomy.
var (
	// ErrSessionFinished: the row already carries an end_time. The loser of
	// a concurrent submit race observes this instead of double-scoring.
	ErrSessionFinished = errors.New("session already finished")
	// ErrSessionNotFinished: grades were submitted for a session that has
	// not been submitted yet.
	ErrSessionNotFinished = errors.New("session not yet finished")
	// ErrAnswerMissing: a grade referenced a question the candidate never
	// answered in this session. The whole grade batch is rolled back.
	ErrAnswerMissing = errors.New("no answer for graded question")
)

// PendingSession is a grading-queue row joined with candidate and exam data.
type PendingSession struct {
	SessionID     uuid.UUID  `json:"session_id"`
	ExamID        uuid.UUID  `json:"exam_id"`
	ExamTitle     string     `json:"exam_title"`
	CandidateID   int        `json:"candidate_id"`
	CandidateName string     `json:"candidate_name"`
	EndTime       *time.Time `json:"end_time"`
	Score         *float64   `json:"score"`
	IsGraded      bool       `json:"is_graded"`
	Passed        *bool      `json:"passed"`
}

// ExamSessionRepository handles exam session and student answer data access.
type ExamSessionRepository struct {
	pool *pgxpool.Pool
}

// NewExamSessionRepository creates a new ExamSessionRepository.
func NewExamSessionRepository(pool *pgxpool.Pool) *ExamSessionRepository {
	return &ExamSessionRepository{pool: pool}
}

const sessionColumns = `id, exam_id, candidate_id, start_time, end_time, score, passed, is_graded, question_order`

func scanSession(row pgx.Row) (*model.ExamSession, error) {
	s := &model.ExamSession{}
	var orderRaw []byte
	if err := row.Scan(&s.ID, &s.ExamID, &s.CandidateID, &s.StartTime, &s.EndTime,
		&s.Score, &s.Passed, &s.IsGraded, &orderRaw); err != nil {
		return nil, err
	}
	if len(orderRaw) > 0 {
		if err := json.Unmarshal(orderRaw, &s.QuestionOrder); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// GetByID retrieves a session by its UUID.
func (r *ExamSessionRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.ExamSession, error) {
	return scanSession(r.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM exam_sessions WHERE id = $1`, id))
}

// GetInProgress retrieves the unfinished session for a candidate+exam pair,
// if one exists. At most one can exist (partial unique index).
func (r *ExamSessionRepository) GetInProgress(ctx context.Context, examID uuid.UUID, candidateID int) (*model.ExamSession, error) {
	return scanSession(r.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+`
		 FROM exam_sessions
		 WHERE exam_id = $1 AND candidate_id = $2 AND end_time IS NULL`, examID, candidateID))
}

// Create inserts a new in-progress session. A concurrent start for the same
// candidate+exam hits the partial unique index; the caller then refetches the
// winner via GetInProgress (pgx.ErrNoRows signals the conflict).
func (r *ExamSessionRepository) Create(ctx context.Context, s *model.ExamSession) error {
	var orderRaw []byte
	if len(s.QuestionOrder) > 0 {
		raw, err := json.Marshal(s.QuestionOrder)
		if err != nil {
			return err
		}
		orderRaw = raw
	}
	return r.pool.QueryRow(ctx,
		`INSERT INTO exam_sessions (exam_id, candidate_id, question_order)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (exam_id, candidate_id) WHERE end_time IS NULL DO NOTHING
		 RETURNING id, start_time`,
		s.ExamID, s.CandidateID, orderRaw,
	).Scan(&s.ID, &s.StartTime)
}

// Finish atomically persists one grading pass and closes the session.
//
// The session row is locked for the duration of the transaction; a concurrent
// submit that lost the race sees end_time already set and gets
// ErrSessionFinished without touching any answer row.
func (r *ExamSessionRepository) Finish(ctx context.Context, sessionID uuid.UUID, answers []model.StudentAnswer, score float64, isGraded, passed bool) (*model.ExamSession, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var endTime *time.Time
	if err := tx.QueryRow(ctx,
		`SELECT end_time FROM exam_sessions WHERE id = $1 FOR UPDATE`, sessionID,
	).Scan(&endTime); err != nil {
		return nil, err
	}
	if endTime != nil {
		return nil, ErrSessionFinished
	}

	for _, a := range answers {
		if _, err := tx.Exec(ctx,
			`INSERT INTO student_answers (session_id, question_id, selected_option_id, text_answer, awarded_marks)
			 VALUES ($1, $2, $3, $4, $5)
			 ON CONFLICT (session_id, question_id) DO UPDATE
			 SET selected_option_id = EXCLUDED.selected_option_id,
			     text_answer = EXCLUDED.text_answer,
			     awarded_marks = EXCLUDED.awarded_marks`,
			sessionID, a.QuestionID, a.SelectedOptionID, a.TextAnswer, a.AwardedMarks,
		); err != nil {
			return nil, err
		}
	}

	session, err := scanSession(tx.QueryRow(ctx,
		`UPDATE exam_sessions
		 SET end_time = NOW(), score = $1, is_graded = $2, passed = $3
		 WHERE id = $4
		 RETURNING `+sessionColumns, score, isGraded, passed, sessionID))
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return session, nil
}

// ApplyGrades applies examiner marks and recomputes the final score in one
// transaction. The recomputed total is derived from the persisted
// awarded_marks at commit time, never from an in-memory sum, so concurrent
// regrades serialize on the session row and converge.
//
// Any missing answer row rolls the whole batch back (nothing partially
// persisted). Bounds validation against question maxima happens in the
// service layer before this is called.
func (r *ExamSessionRepository) ApplyGrades(ctx context.Context, sessionID uuid.UUID, grades []model.AnswerGrade, totalPoints, passMark float64) (*model.ExamSession, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var endTime *time.Time
	if err := tx.QueryRow(ctx,
		`SELECT end_time FROM exam_sessions WHERE id = $1 FOR UPDATE`, sessionID,
	).Scan(&endTime); err != nil {
		return nil, err
	}
	if endTime == nil {
		return nil, ErrSessionNotFinished
	}

	for _, g := range grades {
		tag, err := tx.Exec(ctx,
			`UPDATE student_answers
			 SET awarded_marks = $1, grader_comment = $2
			 WHERE session_id = $3 AND question_id = $4`,
			g.Marks, g.Comment, sessionID, g.QuestionID,
		)
		if err != nil {
			return nil, err
		}
		if tag.RowsAffected() == 0 {
			return nil, ErrAnswerMissing
		}
	}

	var earned float64
	if err := tx.QueryRow(ctx,
		`SELECT COALESCE(SUM(awarded_marks), 0) FROM student_answers WHERE session_id = $1`, sessionID,
	).Scan(&earned); err != nil {
		return nil, err
	}

	percentage := scoring.Percentage(earned, totalPoints)
	passed := scoring.Passed(percentage, passMark)

	session, err := scanSession(tx.QueryRow(ctx,
		`UPDATE exam_sessions
		 SET score = $1, is_graded = TRUE, passed = $2
		 WHERE id = $3
		 RETURNING `+sessionColumns, percentage, passed, sessionID))
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return session, nil
}

// ListByCandidate retrieves all sessions for a candidate, newest first.
func (r *ExamSessionRepository) ListByCandidate(ctx context.Context, candidateID int) ([]model.ExamSession, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+sessionColumns+`
		 FROM exam_sessions
		 WHERE candidate_id = $1
		 ORDER BY start_time DESC`, candidateID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []model.ExamSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *s)
	}
	return sessions, rows.Err()
}

// ListPending retrieves submitted sessions awaiting manual grading, most
// recently submitted first.
func (r *ExamSessionRepository) ListPending(ctx context.Context) ([]PendingSession, error) {
	return r.listQueue(ctx,
		`WHERE s.end_time IS NOT NULL AND s.is_graded = FALSE
		 ORDER BY s.end_time DESC`)
}

// ListGraded retrieves fully graded sessions, most recently finalized first.
func (r *ExamSessionRepository) ListGraded(ctx context.Context) ([]PendingSession, error) {
	return r.listQueue(ctx,
		`WHERE s.is_graded = TRUE
		 ORDER BY s.end_time DESC`)
}

func (r *ExamSessionRepository) listQueue(ctx context.Context, filter string) ([]PendingSession, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT s.id, s.exam_id, e.title, s.candidate_id, c.name, s.end_time, s.score, s.is_graded, s.passed
		 FROM exam_sessions s
		 JOIN exams e ON s.exam_id = e.id
		 JOIN candidates c ON s.candidate_id = c.id
		 `+filter,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []PendingSession
	for rows.Next() {
		var p PendingSession
		if err := rows.Scan(&p.SessionID, &p.ExamID, &p.ExamTitle, &p.CandidateID, &p.CandidateName,
			&p.EndTime, &p.Score, &p.IsGraded, &p.Passed); err != nil {
			return nil, err
		}
		results = append(results, p)
	}
	return results, rows.Err()
}

// PendingCount returns the number of sessions awaiting manual grading.
func (r *ExamSessionRepository) PendingCount(ctx context.Context) (int64, error) {
	var n int64
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM exam_sessions WHERE end_time IS NOT NULL AND is_graded = FALSE`).Scan(&n)
	return n, err
}

// GradedCount returns the number of fully graded sessions.
func (r *ExamSessionRepository) GradedCount(ctx context.Context) (int64, error) {
	var n int64
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM exam_sessions WHERE is_graded = TRUE`).Scan(&n)
	return n, err
}

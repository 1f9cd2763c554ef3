package repository

import (
	"context"

	"github.com/ciltra/ciltra-backend/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AnswerRepository reads student answers. Writes go through the session
// repository's transactions so grading stays atomic.
type AnswerRepository struct {
	pool *pgxpool.Pool
}

// NewAnswerRepository creates a new AnswerRepository.
func NewAnswerRepository(pool *pgxpool.Pool) *AnswerRepository {
	return &AnswerRepository{pool: pool}
}

// ListBySession retrieves all answers for a session.
func (r *AnswerRepository) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]model.StudentAnswer, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, session_id, question_id, selected_option_id, text_answer, awarded_marks, grader_comment
		 FROM student_answers
		 WHERE session_id = $1`, sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var answers []model.StudentAnswer
	for rows.Next() {
		var a model.StudentAnswer
		if err := rows.Scan(&a.ID, &a.SessionID, &a.QuestionID, &a.SelectedOptionID,
			&a.TextAnswer, &a.AwardedMarks, &a.GraderComment); err != nil {
			return nil, err
		}
		answers = append(answers, a)
	}
	return answers, rows.Err()
}

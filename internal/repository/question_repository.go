package repository

import (
	"context"

	"github.com/ciltra/ciltra-backend/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// QuestionRepository handles question and option data access.
type QuestionRepository struct {
	pool *pgxpool.Pool
}

// NewQuestionRepository creates a new QuestionRepository.
func NewQuestionRepository(pool *pgxpool.Pool) *QuestionRepository {
	return &QuestionRepository{pool: pool}
}

// ListByExam retrieves all questions for an exam with their options, ordered
// by order_num. The result is a stable set for the duration of one grading
// pass — questions are read once and graded in memory.
func (r *QuestionRepository) ListByExam(ctx context.Context, examID uuid.UUID) ([]model.Question, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, exam_id, text, type, points, order_num
		 FROM questions WHERE exam_id = $1
		 ORDER BY order_num`, examID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var questions []model.Question
	index := make(map[uuid.UUID]int)
	for rows.Next() {
		var q model.Question
		if err := rows.Scan(&q.ID, &q.ExamID, &q.Text, &q.Type, &q.Points, &q.OrderNum); err != nil {
			return nil, err
		}
		index[q.ID] = len(questions)
		questions = append(questions, q)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(questions) == 0 {
		return questions, nil
	}

	optRows, err := r.pool.Query(ctx,
		`SELECT o.id, o.question_id, o.text, o.is_correct
		 FROM options o
		 JOIN questions q ON o.question_id = q.id
		 WHERE q.exam_id = $1
		 ORDER BY o.id`, examID,
	)
	if err != nil {
		return nil, err
	}
	defer optRows.Close()

	for optRows.Next() {
		var o model.Option
		if err := optRows.Scan(&o.ID, &o.QuestionID, &o.Text, &o.IsCorrect); err != nil {
			return nil, err
		}
		if i, ok := index[o.QuestionID]; ok {
			questions[i].Options = append(questions[i].Options, o)
		}
	}
	return questions, optRows.Err()
}

package repository

import (
	"context"

	"github.com/ciltra/ciltra-backend/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ExamRepository handles exam data access. The attempt lifecycle only ever
// reads exams; administrative edits live outside this service.
type ExamRepository struct {
	pool *pgxpool.Pool
}

// NewExamRepository creates a new ExamRepository.
func NewExamRepository(pool *pgxpool.Pool) *ExamRepository {
	return &ExamRepository{pool: pool}
}

// GetByID retrieves an exam by its UUID.
func (r *ExamRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	e := &model.Exam{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, title, description, price, currency, duration_minutes,
		        pass_mark_percentage, grading_mode, randomize_questions, is_active, created_at
		 FROM exams WHERE id = $1`, id,
	).Scan(&e.ID, &e.Title, &e.Description, &e.Price, &e.Currency, &e.DurationMinutes,
		&e.PassMarkPercentage, &e.GradingMode, &e.RandomizeQuestions, &e.IsActive, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	return e, nil
}

// ListActive retrieves the candidate-facing exam catalog.
func (r *ExamRepository) ListActive(ctx context.Context) ([]model.Exam, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, title, description, price, currency, duration_minutes,
		        pass_mark_percentage, grading_mode, randomize_questions, is_active, created_at
		 FROM exams
		 WHERE is_active = TRUE
		 ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var exams []model.Exam
	for rows.Next() {
		var e model.Exam
		if err := rows.Scan(&e.ID, &e.Title, &e.Description, &e.Price, &e.Currency, &e.DurationMinutes,
			&e.PassMarkPercentage, &e.GradingMode, &e.RandomizeQuestions, &e.IsActive, &e.CreatedAt); err != nil {
			return nil, err
		}
		exams = append(exams, e)
	}
	return exams, rows.Err()
}

// CountAll returns the total number of exams, for the stats dashboard.
func (r *ExamRepository) CountAll(ctx context.Context) (int64, error) {
	var n int64
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM exams`).Scan(&n)
	return n, err
}

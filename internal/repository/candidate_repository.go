package repository

import (
	"context"

	"github.com/ciltra/ciltra-backend/internal/model"
	"github.com/jackc/pgx/v5/pgxpool"
)

// CandidateRepository handles candidate account data access.
type CandidateRepository struct {
	pool *pgxpool.Pool
}

// NewCandidateRepository creates a new CandidateRepository.
func NewCandidateRepository(pool *pgxpool.Pool) *CandidateRepository {
	return &CandidateRepository{pool: pool}
}

// GetByEmail retrieves a candidate by email for login.
func (r *CandidateRepository) GetByEmail(ctx context.Context, email string) (*model.Candidate, error) {
	c := &model.Candidate{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, email, name, password_hash, created_at
		 FROM candidates WHERE email = $1`, email,
	).Scan(&c.ID, &c.Email, &c.Name, &c.PasswordHash, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// GetByID retrieves a candidate by ID.
func (r *CandidateRepository) GetByID(ctx context.Context, id int) (*model.Candidate, error) {
	c := &model.Candidate{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, email, name, password_hash, created_at
		 FROM candidates WHERE id = $1`, id,
	).Scan(&c.ID, &c.Email, &c.Name, &c.PasswordHash, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Create inserts a new candidate.
func (r *CandidateRepository) Create(ctx context.Context, c *model.Candidate) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO candidates (email, name, password_hash)
		 VALUES ($1, $2, $3)
		 RETURNING id, created_at`,
		c.Email, c.Name, c.PasswordHash,
	).Scan(&c.ID, &c.CreatedAt)
}

// CountAll returns the number of registered candidates.
func (r *CandidateRepository) CountAll(ctx context.Context) (int64, error) {
	var n int64
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM candidates`).Scan(&n)
	return n, err
}

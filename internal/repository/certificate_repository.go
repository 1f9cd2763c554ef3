package repository

import (
	"context"
	"errors"

	"github.com/ciltra/ciltra-backend/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// CertificateRepository handles certificate data access.
type CertificateRepository struct {
	pool *pgxpool.Pool
}

// NewCertificateRepository creates a new CertificateRepository.
func NewCertificateRepository(pool *pgxpool.Pool) *CertificateRepository {
	return &CertificateRepository{pool: pool}
}

// IssueIfAbsent creates a certificate for a session unless one already
// exists, and returns the certificate either way. Calling it repeatedly for
// the same session is a no-op after the first call.
func (r *CertificateRepository) IssueIfAbsent(ctx context.Context, sessionID uuid.UUID) (*model.Certificate, error) {
	c := &model.Certificate{SessionID: sessionID, Code: uuid.New().String()}
	err := r.pool.QueryRow(ctx,
		`INSERT INTO certificates (code, session_id)
		 VALUES ($1, $2)
		 ON CONFLICT (session_id) DO NOTHING
		 RETURNING id, code, issued_at`,
		c.Code, sessionID,
	).Scan(&c.ID, &c.Code, &c.IssuedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		// Already issued by an earlier pass — return the existing one.
		return r.GetBySession(ctx, sessionID)
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// GetBySession retrieves the certificate issued for a session, if any.
func (r *CertificateRepository) GetBySession(ctx context.Context, sessionID uuid.UUID) (*model.Certificate, error) {
	c := &model.Certificate{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, code, session_id, issued_at, file_url
		 FROM certificates WHERE session_id = $1`, sessionID,
	).Scan(&c.ID, &c.Code, &c.SessionID, &c.IssuedAt, &c.FileURL)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// GetByCode retrieves a certificate by its public verification code.
func (r *CertificateRepository) GetByCode(ctx context.Context, code string) (*model.Certificate, error) {
	c := &model.Certificate{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, code, session_id, issued_at, file_url
		 FROM certificates WHERE code = $1`, code,
	).Scan(&c.ID, &c.Code, &c.SessionID, &c.IssuedAt, &c.FileURL)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// CandidateCertificate is a certificate joined with its exam context for
// candidate-facing listings.
type CandidateCertificate struct {
	model.Certificate
	ExamID    uuid.UUID `json:"exam_id"`
	ExamTitle string    `json:"exam_title"`
}

// ListByCandidate returns all certificates earned by a candidate, newest
// first.
func (r *CertificateRepository) ListByCandidate(ctx context.Context, candidateID int) ([]CandidateCertificate, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT c.id, c.code, c.session_id, c.issued_at, c.file_url, e.id, e.title
		 FROM certificates c
		 JOIN exam_sessions s ON s.id = c.session_id
		 JOIN exams e ON e.id = s.exam_id
		 WHERE s.candidate_id = $1
		 ORDER BY c.issued_at DESC`, candidateID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var certs []CandidateCertificate
	for rows.Next() {
		var c CandidateCertificate
		if err := rows.Scan(&c.ID, &c.Code, &c.SessionID, &c.IssuedAt, &c.FileURL, &c.ExamID, &c.ExamTitle); err != nil {
			return nil, err
		}
		certs = append(certs, c)
	}
	return certs, rows.Err()
}

// CountAll returns the number of issued certificates.
func (r *CertificateRepository) CountAll(ctx context.Context) (int64, error) {
	var n int64
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM certificates`).Scan(&n)
	return n, err
}

package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/ciltra/ciltra-backend/internal/model"
	"github.com/ciltra/ciltra-backend/internal/repository"
	"github.com/jackc/pgx/v5"
)

// ErrCertificateNotFound marks an unknown verification code.
var ErrCertificateNotFound = errors.New("certificate not found")

// CertificateStore is the full certificate data surface.
type CertificateStore interface {
	CertificateIssuer
	GetByCode(ctx context.Context, code string) (*model.Certificate, error)
	ListByCandidate(ctx context.Context, candidateID int) ([]repository.CandidateCertificate, error)
}

// CandidateReader resolves candidate accounts by ID.
type CandidateReader interface {
	GetByID(ctx context.Context, id int) (*model.Candidate, error)
}

// VerificationView is the public proof returned for a certificate code.
type VerificationView struct {
	Code      string `json:"code"`
	ExamTitle string `json:"exam_title"`
	Candidate string `json:"candidate"`
	IssuedAt  string `json:"issued_at"`
}

// CertificateService exposes candidate listings and public verification.
type CertificateService struct {
	certs      CertificateStore
	sessions   SessionStore
	exams      ExamStore
	candidates CandidateReader
}

// NewCertificateService creates a new CertificateService.
func NewCertificateService(certs CertificateStore, sessions SessionStore, exams ExamStore, candidates CandidateReader) *CertificateService {
	return &CertificateService{certs: certs, sessions: sessions, exams: exams, candidates: candidates}
}

// ListForCandidate returns the candidate's earned certificates.
func (s *CertificateService) ListForCandidate(ctx context.Context, candidateID int) ([]repository.CandidateCertificate, error) {
	return s.certs.ListByCandidate(ctx, candidateID)
}

// Verify resolves a public certificate code to its exam and holder. Used
// by third parties checking a claimed credential.
func (s *CertificateService) Verify(ctx context.Context, code string) (*VerificationView, error) {
	cert, err := s.certs.GetByCode(ctx, code)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCertificateNotFound
		}
		return nil, fmt.Errorf("get certificate: %w", err)
	}

	session, err := s.sessions.GetByID(ctx, cert.SessionID)
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	exam, err := s.exams.GetByID(ctx, session.ExamID)
	if err != nil {
		return nil, fmt.Errorf("get exam: %w", err)
	}
	candidate, err := s.candidates.GetByID(ctx, session.CandidateID)
	if err != nil {
		return nil, fmt.Errorf("get candidate: %w", err)
	}

	return &VerificationView{
		Code:      cert.Code,
		ExamTitle: exam.Title,
		Candidate: candidate.Name,
		IssuedAt:  cert.IssuedAt.Format("2006-01-02"),
	}, nil
}

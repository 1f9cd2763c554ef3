package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/ciltra/ciltra-backend/internal/audit"
	"github.com/ciltra/ciltra-backend/internal/config"
	"github.com/ciltra/ciltra-backend/internal/model"
	"github.com/ciltra/ciltra-backend/internal/repository"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

// ErrInvalidMark rejects a grade batch containing an out-of-bounds or
// unmatchable mark. No partial application: one bad entry fails the lot.
var ErrInvalidMark = errors.New("invalid mark in grade batch")

// ErrExamAutoGraded rejects manual marks for exams whose grading mode is
// AUTO. Their sessions are final at submission and never enter the queue.
var ErrExamAutoGraded = errors.New("exam is auto-graded")

// AnswerStore reads persisted answers for review.
type AnswerStore interface {
	ListBySession(ctx context.Context, sessionID uuid.UUID) ([]model.StudentAnswer, error)
}

// GradingDetail is everything an examiner needs to mark one submission.
type GradingDetail struct {
	Session   *model.ExamSession    `json:"session"`
	ExamTitle string                `json:"exam_title"`
	PassMark  float64               `json:"pass_mark"`
	Questions []model.Question      `json:"questions"`
	Answers   []model.StudentAnswer `json:"answers"`
}

// GradingStats summarizes the examiner workload.
type GradingStats struct {
	PendingCount int64 `json:"pending_count"`
	GradedCount  int64 `json:"graded_count"`
}

// RegradeResult reports the recomputed outcome after manual marks land.
type RegradeResult struct {
	Session *model.ExamSession `json:"session"`
	Score   float64            `json:"score"`
	Passed  bool               `json:"passed"`
}

// GradingService is the examiner-side workflow: queue inspection, manual
// mark entry, and score recomputation.
type GradingService struct {
	cfg       *config.Config
	exams     ExamStore
	questions QuestionStore
	sessions  SessionStore
	answers   AnswerStore
	certs     CertificateIssuer
	auditor   AuditSink
	log       zerolog.Logger
}

// NewGradingService creates a new GradingService.
func NewGradingService(
	cfg *config.Config,
	exams ExamStore,
	questions QuestionStore,
	sessions SessionStore,
	answers AnswerStore,
	certs CertificateIssuer,
	auditor AuditSink,
	log zerolog.Logger,
) *GradingService {
	return &GradingService{
		cfg:       cfg,
		exams:     exams,
		questions: questions,
		sessions:  sessions,
		answers:   answers,
		certs:     certs,
		auditor:   auditor,
		log:       log.With().Str("component", "grading_service").Logger(),
	}
}

// ListPending returns submissions awaiting manual marks, newest first.
func (s *GradingService) ListPending(ctx context.Context) ([]repository.PendingSession, error) {
	return s.sessions.ListPending(ctx)
}

// ListGraded returns fully graded submissions, newest first.
func (s *GradingService) ListGraded(ctx context.Context) ([]repository.PendingSession, error) {
	return s.sessions.ListGraded(ctx)
}

// Stats returns queue counters for the examiner dashboard.
func (s *GradingService) Stats(ctx context.Context) (*GradingStats, error) {
	pending, err := s.sessions.PendingCount(ctx)
	if err != nil {
		return nil, fmt.Errorf("pending count: %w", err)
	}
	graded, err := s.sessions.GradedCount(ctx)
	if err != nil {
		return nil, fmt.Errorf("graded count: %w", err)
	}
	return &GradingStats{PendingCount: pending, GradedCount: graded}, nil
}

// SessionDetail loads one submission with its questions and answers.
func (s *GradingService) SessionDetail(ctx context.Context, sessionID uuid.UUID) (*GradingDetail, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	if session.InProgress() {
		return nil, ErrNotSubmitted
	}

	exam, err := s.exams.GetByID(ctx, session.ExamID)
	if err != nil {
		return nil, fmt.Errorf("get exam: %w", err)
	}
	questions, err := s.questions.ListByExam(ctx, session.ExamID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	answers, err := s.answers.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}

	passMark := exam.PassMarkPercentage
	if passMark <= 0 {
		passMark = s.cfg.DefaultPassMark
	}

	return &GradingDetail{
		Session:   session,
		ExamTitle: exam.Title,
		PassMark:  passMark,
		Questions: questions,
		Answers:   answers,
	}, nil
}

// SubmitGrades applies a batch of manual marks and recomputes the session
// score from all persisted answers. The batch is validated up front: every
// mark must target a question of the session's exam and stay within that
// question's point value. Repeated calls overwrite earlier marks and
// recompute again.
func (s *GradingService) SubmitGrades(ctx context.Context, examinerID int, sessionID uuid.UUID, inputs []model.GradeInput) (*RegradeResult, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	if session.InProgress() {
		return nil, ErrNotSubmitted
	}

	exam, err := s.exams.GetByID(ctx, session.ExamID)
	if err != nil {
		return nil, fmt.Errorf("get exam: %w", err)
	}
	if exam.GradingMode != model.GradingModeManualHybrid {
		return nil, ErrExamAutoGraded
	}
	questions, err := s.questions.ListByExam(ctx, session.ExamID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}

	byID := make(map[uuid.UUID]model.Question, len(questions))
	totalPoints := 0.0
	for _, q := range questions {
		byID[q.ID] = q
		totalPoints += q.Points
	}

	grades := make([]model.AnswerGrade, 0, len(inputs))
	for _, in := range inputs {
		qid, err := uuid.Parse(in.QuestionID)
		if err != nil {
			return nil, fmt.Errorf("%w: bad question id %q", ErrInvalidMark, in.QuestionID)
		}
		q, ok := byID[qid]
		if !ok {
			return nil, fmt.Errorf("%w: question %s not in exam", ErrInvalidMark, qid)
		}
		if in.Marks < 0 || in.Marks > q.Points {
			return nil, fmt.Errorf("%w: %.2f outside [0, %.2f] for question %s",
				ErrInvalidMark, in.Marks, q.Points, qid)
		}
		grades = append(grades, model.AnswerGrade{
			QuestionID: qid,
			Marks:      in.Marks,
			Comment:    in.Comment,
		})
	}

	passMark := exam.PassMarkPercentage
	if passMark <= 0 {
		passMark = s.cfg.DefaultPassMark
	}

	updated, err := s.sessions.ApplyGrades(ctx, sessionID, grades, totalPoints, passMark)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrSessionNotFinished):
			return nil, ErrNotSubmitted
		case errors.Is(err, repository.ErrAnswerMissing):
			return nil, fmt.Errorf("%w: no answer on record for graded question", ErrInvalidMark)
		}
		return nil, fmt.Errorf("apply grades: %w", err)
	}

	score := 0.0
	if updated.Score != nil {
		score = *updated.Score
	}
	passed := updated.Passed != nil && *updated.Passed

	if passed {
		if _, err := s.certs.IssueIfAbsent(ctx, sessionID); err != nil {
			return nil, fmt.Errorf("issue certificate: %w", err)
		}
	}

	s.auditor.Publish(ctx, audit.Event{
		Action:    audit.ActionManualGrade,
		Actor:     fmt.Sprintf("examiner:%d", examinerID),
		SessionID: sessionID,
		Score:     score,
	})

	s.log.Info().
		Str("session_id", sessionID.String()).
		Int("examiner_id", examinerID).
		Float64("score", score).
		Bool("passed", passed).
		Msg("Manual grades applied")

	return &RegradeResult{Session: updated, Score: score, Passed: passed}, nil
}

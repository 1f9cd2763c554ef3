package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/ciltra/ciltra-backend/internal/audit"
	"github.com/ciltra/ciltra-backend/internal/config"
	"github.com/ciltra/ciltra-backend/internal/model"
	"github.com/ciltra/ciltra-backend/internal/repository"
	"github.com/ciltra/ciltra-backend/internal/scoring"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

// Domain errors for the session lifecycle.
var (
	ErrExamNotAvailable = errors.New("exam is not available")
	ErrSessionNotFound  = errors.New("session not found")
	ErrNotOwner         = errors.New("session belongs to another candidate")
	ErrAlreadySubmitted = errors.New("exam already submitted")
	ErrNotSubmitted     = errors.New("exam not yet submitted")
)

// ExamStore reads exams for the attempt lifecycle.
type ExamStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error)
}

// QuestionStore reads an exam's question set. The returned set must be
// stable for the duration of one grading pass.
type QuestionStore interface {
	ListByExam(ctx context.Context, examID uuid.UUID) ([]model.Question, error)
}

// SessionStore persists exam sessions and their answers.
type SessionStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.ExamSession, error)
	GetInProgress(ctx context.Context, examID uuid.UUID, candidateID int) (*model.ExamSession, error)
	Create(ctx context.Context, s *model.ExamSession) error
	Finish(ctx context.Context, sessionID uuid.UUID, answers []model.StudentAnswer, score float64, isGraded, passed bool) (*model.ExamSession, error)
	ApplyGrades(ctx context.Context, sessionID uuid.UUID, grades []model.AnswerGrade, totalPoints, passMark float64) (*model.ExamSession, error)
	ListByCandidate(ctx context.Context, candidateID int) ([]model.ExamSession, error)
	ListPending(ctx context.Context) ([]repository.PendingSession, error)
	ListGraded(ctx context.Context) ([]repository.PendingSession, error)
	PendingCount(ctx context.Context) (int64, error)
	GradedCount(ctx context.Context) (int64, error)
}

// CertificateIssuer issues certificates to passing sessions. IssueIfAbsent
// must be safe to call multiple times for the same session.
type CertificateIssuer interface {
	IssueIfAbsent(ctx context.Context, sessionID uuid.UUID) (*model.Certificate, error)
	GetBySession(ctx context.Context, sessionID uuid.UUID) (*model.Certificate, error)
}

// AuditSink receives fire-and-forget grading records.
type AuditSink interface {
	Publish(ctx context.Context, ev audit.Event)
}

// StartResult tags whether Start created a fresh session or resumed an
// unfinished one, so callers can log and respond accordingly.
type StartResult struct {
	Session *model.ExamSession `json:"session"`
	Resumed bool               `json:"resumed"`
}

// SessionState is the candidate-facing view of an active attempt.
// TimeRemainingSeconds is advisory — late submissions are accepted.
type SessionState struct {
	Session              *model.ExamSession `json:"session"`
	TimeRemainingSeconds float64            `json:"time_remaining_seconds"`
}

// SubmitResult reports the outcome of one submission.
type SubmitResult struct {
	Session *model.ExamSession `json:"session"`
	Score   float64            `json:"score"`
	// IsGraded is false when open-ended answers await examiner marks.
	IsGraded bool `json:"is_graded"`
	// SkippedAnswers counts entries dropped for referencing unknown
	// questions — a leniency policy, the rest of the submission stands.
	SkippedAnswers int `json:"skipped_answers"`
}

// ResultView is the final-result payload for a submitted session.
type ResultView struct {
	ExamTitle       string   `json:"exam_title"`
	Score           *float64 `json:"score"`
	PassMark        float64  `json:"pass_mark"`
	Passed          *bool    `json:"passed"`
	IsGraded        bool     `json:"is_graded"`
	CertificateCode *string  `json:"certificate_code,omitempty"`
}

// ExamSessionService drives the attempt lifecycle: start/resume, submission
// with auto-grading, and result retrieval.
type ExamSessionService struct {
	cfg       *config.Config
	exams     ExamStore
	questions QuestionStore
	sessions  SessionStore
	certs     CertificateIssuer
	gate      *AccessGate
	auditor   AuditSink
	events    Broadcaster
	log       zerolog.Logger
}

// NewExamSessionService creates a new ExamSessionService.
func NewExamSessionService(
	cfg *config.Config,
	exams ExamStore,
	questions QuestionStore,
	sessions SessionStore,
	certs CertificateIssuer,
	gate *AccessGate,
	auditor AuditSink,
	events Broadcaster,
	log zerolog.Logger,
) *ExamSessionService {
	return &ExamSessionService{
		cfg:       cfg,
		exams:     exams,
		questions: questions,
		sessions:  sessions,
		certs:     certs,
		gate:      gate,
		auditor:   auditor,
		events:    events,
		log:       log.With().Str("component", "session_service").Logger(),
	}
}

// Start begins a new attempt or resumes the candidate's unfinished one.
// Idempotent: calling Start twice without submitting returns the same
// session. Fails with ErrExamNotAvailable for unknown/inactive exams and
// ErrPaymentRequired when the access gate denies.
func (s *ExamSessionService) Start(ctx context.Context, candidateID int, examID uuid.UUID) (*StartResult, error) {
	exam, err := s.exams.GetByID(ctx, examID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrExamNotAvailable
		}
		return nil, fmt.Errorf("get exam: %w", err)
	}
	if !exam.IsActive {
		return nil, ErrExamNotAvailable
	}

	if err := s.gate.CanStart(ctx, candidateID, exam); err != nil {
		return nil, err
	}

	existing, err := s.sessions.GetInProgress(ctx, examID, candidateID)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("check existing session: %w", err)
	}
	if existing != nil {
		return &StartResult{Session: existing, Resumed: true}, nil
	}

	session := &model.ExamSession{
		ExamID:      examID,
		CandidateID: candidateID,
	}

	if exam.RandomizeQuestions {
		order, err := s.shuffledOrder(ctx, examID)
		if err != nil {
			return nil, err
		}
		session.QuestionOrder = order
	}

	if err := s.sessions.Create(ctx, session); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Lost a concurrent start race — resume the winner's session.
			winner, fetchErr := s.sessions.GetInProgress(ctx, examID, candidateID)
			if fetchErr != nil {
				return nil, fmt.Errorf("concurrent start detected, refetch failed: %w", fetchErr)
			}
			return &StartResult{Session: winner, Resumed: true}, nil
		}
		return nil, fmt.Errorf("create session: %w", err)
	}

	s.log.Info().
		Str("session_id", session.ID.String()).
		Str("exam_id", examID.String()).
		Int("candidate_id", candidateID).
		Msg("Session started")

	return &StartResult{Session: session}, nil
}

// shuffledOrder builds a per-session presentation order. Scoring never
// consults it.
func (s *ExamSessionService) shuffledOrder(ctx context.Context, examID uuid.UUID) ([]uuid.UUID, error) {
	questions, err := s.questions.ListByExam(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	order := make([]uuid.UUID, len(questions))
	for i, q := range questions {
		order[i] = q.ID
	}
	rand.Shuffle(len(order), func(i, j int) {
		order[i], order[j] = order[j], order[i]
	})
	return order, nil
}

// GetActive retrieves a candidate-owned session with advisory time remaining.
func (s *ExamSessionService) GetActive(ctx context.Context, candidateID int, sessionID uuid.UUID) (*SessionState, error) {
	session, err := s.ownedSession(ctx, candidateID, sessionID)
	if err != nil {
		return nil, err
	}

	exam, err := s.exams.GetByID(ctx, session.ExamID)
	if err != nil {
		return nil, fmt.Errorf("get exam: %w", err)
	}

	return &SessionState{
		Session:              session,
		TimeRemainingSeconds: session.TimeRemaining(s.effectiveDuration(exam), time.Now()),
	}, nil
}

// Submit finalizes an attempt: auto-grades objective answers, provisions
// open-ended ones for manual review, and closes the session exactly once.
// The second of two racing submits fails with ErrAlreadySubmitted and
// leaves the stored score untouched.
func (s *ExamSessionService) Submit(ctx context.Context, candidateID int, sessionID uuid.UUID, inputs []model.SubmitAnswerInput) (*SubmitResult, error) {
	session, err := s.ownedSession(ctx, candidateID, sessionID)
	if err != nil {
		return nil, err
	}
	if !session.InProgress() {
		return nil, ErrAlreadySubmitted
	}

	exam, err := s.exams.GetByID(ctx, session.ExamID)
	if err != nil {
		return nil, fmt.Errorf("get exam: %w", err)
	}
	questions, err := s.questions.ListByExam(ctx, session.ExamID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}

	answers, malformed := parseAnswers(inputs)
	result := scoring.Grade(questions, answers)

	passMark := s.effectivePassMark(exam)
	passed := result.FullyGraded && scoring.Passed(result.Percentage, passMark)

	records := make([]model.StudentAnswer, 0, len(result.Marks))
	for _, m := range result.Marks {
		records = append(records, model.StudentAnswer{
			SessionID:        sessionID,
			QuestionID:       m.QuestionID,
			SelectedOptionID: m.SelectedOptionID,
			TextAnswer:       m.TextAnswer,
			AwardedMarks:     m.Awarded,
		})
	}

	updated, err := s.sessions.Finish(ctx, sessionID, records, result.Percentage, result.FullyGraded, passed)
	if err != nil {
		if errors.Is(err, repository.ErrSessionFinished) {
			return nil, ErrAlreadySubmitted
		}
		return nil, fmt.Errorf("finish session: %w", err)
	}

	if passed {
		if _, err := s.certs.IssueIfAbsent(ctx, sessionID); err != nil {
			// Certificate issuance failures are reported, not swallowed;
			// the graded session itself is already durable.
			return nil, fmt.Errorf("issue certificate: %w", err)
		}
	}

	s.auditor.Publish(ctx, audit.Event{
		Action:    audit.ActionAutoGrade,
		Actor:     fmt.Sprintf("candidate:%d", candidateID),
		SessionID: sessionID,
		Score:     result.Percentage,
	})

	if !result.FullyGraded {
		s.events.GradingQueued(ctx, GradingEvent{
			SessionID:   sessionID,
			ExamID:      session.ExamID,
			CandidateID: candidateID,
			Score:       result.Percentage,
		})
	}

	s.log.Info().
		Str("session_id", sessionID.String()).
		Float64("score", result.Percentage).
		Bool("is_graded", result.FullyGraded).
		Int("skipped_answers", malformed+result.Skipped).
		Msg("Session submitted")

	return &SubmitResult{
		Session:        updated,
		Score:          result.Percentage,
		IsGraded:       result.FullyGraded,
		SkippedAnswers: malformed + result.Skipped,
	}, nil
}

// Result returns the final result view for a submitted session.
func (s *ExamSessionService) Result(ctx context.Context, candidateID int, sessionID uuid.UUID) (*ResultView, error) {
	session, err := s.ownedSession(ctx, candidateID, sessionID)
	if err != nil {
		return nil, err
	}
	if session.InProgress() {
		return nil, ErrNotSubmitted
	}

	exam, err := s.exams.GetByID(ctx, session.ExamID)
	if err != nil {
		return nil, fmt.Errorf("get exam: %w", err)
	}

	view := &ResultView{
		ExamTitle: exam.Title,
		Score:     session.Score,
		PassMark:  s.effectivePassMark(exam),
		Passed:    session.Passed,
		IsGraded:  session.IsGraded,
	}

	if session.Passed != nil && *session.Passed {
		cert, err := s.certs.GetBySession(ctx, sessionID)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("get certificate: %w", err)
		}
		if cert != nil {
			view.CertificateCode = &cert.Code
		}
	}
	return view, nil
}

// Attempts lists the candidate's sessions, newest first.
func (s *ExamSessionService) Attempts(ctx context.Context, candidateID int) ([]model.ExamSession, error) {
	return s.sessions.ListByCandidate(ctx, candidateID)
}

func (s *ExamSessionService) ownedSession(ctx context.Context, candidateID int, sessionID uuid.UUID) (*model.ExamSession, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	if session.CandidateID != candidateID {
		return nil, ErrNotOwner
	}
	return session, nil
}

func (s *ExamSessionService) effectivePassMark(exam *model.Exam) float64 {
	if exam.PassMarkPercentage > 0 {
		return exam.PassMarkPercentage
	}
	return s.cfg.DefaultPassMark
}

func (s *ExamSessionService) effectiveDuration(exam *model.Exam) int {
	if exam.DurationMinutes > 0 {
		return exam.DurationMinutes
	}
	return s.cfg.DefaultDurationMinutes
}

// parseAnswers converts raw submission entries into scoring inputs.
// Unparsable question IDs are dropped (counted), unparsable option
// references degrade to "no selection" — per-item leniency, never fatal.
func parseAnswers(inputs []model.SubmitAnswerInput) ([]scoring.Answer, int) {
	answers := make([]scoring.Answer, 0, len(inputs))
	malformed := 0
	for _, in := range inputs {
		qid, err := uuid.Parse(in.QuestionID)
		if err != nil {
			malformed++
			continue
		}
		ans := scoring.Answer{QuestionID: qid, TextAnswer: in.TextAnswer}
		if in.SelectedOptionID != "" {
			if oid, err := uuid.Parse(in.SelectedOptionID); err == nil {
				ans.SelectedOptionID = oid
			}
		}
		answers = append(answers, ans)
	}
	return answers, malformed
}

package service

import (
	"context"
	"testing"
	"time"

	"github.com/ciltra/ciltra-backend/internal/audit"
	"github.com/ciltra/ciltra-backend/internal/config"
	"github.com/ciltra/ciltra-backend/internal/model"
	"github.com/ciltra/ciltra-backend/internal/repository"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ─── Fakes ──────────────────────────────────────────────────────────────────

type fakeExamStore struct {
	exams map[uuid.UUID]*model.Exam
}

func (f *fakeExamStore) GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	if e, ok := f.exams[id]; ok {
		return e, nil
	}
	return nil, pgx.ErrNoRows
}

func (f *fakeExamStore) ListActive(ctx context.Context) ([]model.Exam, error) {
	var out []model.Exam
	for _, e := range f.exams {
		if e.IsActive {
			out = append(out, *e)
		}
	}
	return out, nil
}

type fakeQuestionStore struct {
	questions map[uuid.UUID][]model.Question
}

func (f *fakeQuestionStore) ListByExam(ctx context.Context, examID uuid.UUID) ([]model.Question, error) {
	return f.questions[examID], nil
}

// fakeSessionStore keeps sessions in memory and mimics the repository's
// conflict and locking semantics.
type fakeSessionStore struct {
	sessions    map[uuid.UUID]*model.ExamSession
	answers     map[uuid.UUID][]model.StudentAnswer
	finishCalls int
	gradeCalls  int
}

func newFakeSessionStore() *fakeSessionStore {
	return &fakeSessionStore{
		sessions: make(map[uuid.UUID]*model.ExamSession),
		answers:  make(map[uuid.UUID][]model.StudentAnswer),
	}
}

func (f *fakeSessionStore) GetByID(ctx context.Context, id uuid.UUID) (*model.ExamSession, error) {
	if s, ok := f.sessions[id]; ok {
		copied := *s
		return &copied, nil
	}
	return nil, pgx.ErrNoRows
}

func (f *fakeSessionStore) GetInProgress(ctx context.Context, examID uuid.UUID, candidateID int) (*model.ExamSession, error) {
	for _, s := range f.sessions {
		if s.ExamID == examID && s.CandidateID == candidateID && s.EndTime == nil {
			copied := *s
			return &copied, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (f *fakeSessionStore) Create(ctx context.Context, s *model.ExamSession) error {
	for _, existing := range f.sessions {
		if existing.ExamID == s.ExamID && existing.CandidateID == s.CandidateID && existing.EndTime == nil {
			return pgx.ErrNoRows
		}
	}
	s.ID = uuid.New()
	s.StartTime = time.Now()
	copied := *s
	f.sessions[s.ID] = &copied
	return nil
}

func (f *fakeSessionStore) Finish(ctx context.Context, sessionID uuid.UUID, answers []model.StudentAnswer, score float64, isGraded, passed bool) (*model.ExamSession, error) {
	f.finishCalls++
	s, ok := f.sessions[sessionID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	if s.EndTime != nil {
		return nil, repository.ErrSessionFinished
	}
	now := time.Now()
	s.EndTime = &now
	s.Score = &score
	s.IsGraded = isGraded
	s.Passed = &passed
	f.answers[sessionID] = answers
	copied := *s
	return &copied, nil
}

// ApplyGrades mirrors the repository: overwrite the matching answers, then
// recompute the score from everything persisted, never from the input alone.
func (f *fakeSessionStore) ApplyGrades(ctx context.Context, sessionID uuid.UUID, grades []model.AnswerGrade, totalPoints, passMark float64) (*model.ExamSession, error) {
	f.gradeCalls++
	s, ok := f.sessions[sessionID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	if s.EndTime == nil {
		return nil, repository.ErrSessionNotFinished
	}

	answers := f.answers[sessionID]
	for _, g := range grades {
		found := false
		for i := range answers {
			if answers[i].QuestionID == g.QuestionID {
				answers[i].AwardedMarks = g.Marks
				answers[i].GraderComment = g.Comment
				found = true
			}
		}
		if !found {
			return nil, repository.ErrAnswerMissing
		}
	}
	f.answers[sessionID] = answers

	earned := 0.0
	for _, a := range answers {
		earned += a.AwardedMarks
	}
	score := 0.0
	if totalPoints > 0 {
		score = earned / totalPoints * 100
	}
	passed := score >= passMark
	s.Score = &score
	s.IsGraded = true
	s.Passed = &passed
	copied := *s
	return &copied, nil
}

func (f *fakeSessionStore) ListByCandidate(ctx context.Context, candidateID int) ([]model.ExamSession, error) {
	var out []model.ExamSession
	for _, s := range f.sessions {
		if s.CandidateID == candidateID {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (f *fakeSessionStore) ListPending(ctx context.Context) ([]repository.PendingSession, error) {
	return nil, nil
}

func (f *fakeSessionStore) ListGraded(ctx context.Context) ([]repository.PendingSession, error) {
	return nil, nil
}

func (f *fakeSessionStore) PendingCount(ctx context.Context) (int64, error) { return 0, nil }
func (f *fakeSessionStore) GradedCount(ctx context.Context) (int64, error)  { return 0, nil }

type fakeCertStore struct {
	issued map[uuid.UUID]*model.Certificate
}

func newFakeCertStore() *fakeCertStore {
	return &fakeCertStore{issued: make(map[uuid.UUID]*model.Certificate)}
}

func (f *fakeCertStore) IssueIfAbsent(ctx context.Context, sessionID uuid.UUID) (*model.Certificate, error) {
	if c, ok := f.issued[sessionID]; ok {
		return c, nil
	}
	c := &model.Certificate{
		ID:        uuid.New(),
		Code:      uuid.New().String(),
		SessionID: sessionID,
		IssuedAt:  time.Now(),
	}
	f.issued[sessionID] = c
	return c, nil
}

func (f *fakeCertStore) GetBySession(ctx context.Context, sessionID uuid.UUID) (*model.Certificate, error) {
	if c, ok := f.issued[sessionID]; ok {
		return c, nil
	}
	return nil, pgx.ErrNoRows
}

type fakeAuditSink struct {
	events []audit.Event
}

func (f *fakeAuditSink) Publish(ctx context.Context, ev audit.Event) {
	f.events = append(f.events, ev)
}

type fakeBroadcaster struct {
	events []GradingEvent
}

func (f *fakeBroadcaster) GradingQueued(ctx context.Context, ev GradingEvent) {
	f.events = append(f.events, ev)
}

type fakeEntitlements struct {
	granted map[string]bool
}

func (f *fakeEntitlements) HasEntitlement(ctx context.Context, candidateID int, examID uuid.UUID) (bool, error) {
	return f.granted[examID.String()], nil
}

// ─── Fixture ────────────────────────────────────────────────────────────────

type sessionFixture struct {
	svc       *ExamSessionService
	exams     *fakeExamStore
	questions *fakeQuestionStore
	sessions  *fakeSessionStore
	certs     *fakeCertStore
	auditor   *fakeAuditSink
	events    *fakeBroadcaster
	ents      *fakeEntitlements
}

func newSessionFixture() *sessionFixture {
	f := &sessionFixture{
		exams:     &fakeExamStore{exams: make(map[uuid.UUID]*model.Exam)},
		questions: &fakeQuestionStore{questions: make(map[uuid.UUID][]model.Question)},
		sessions:  newFakeSessionStore(),
		certs:     newFakeCertStore(),
		auditor:   &fakeAuditSink{},
		events:    &fakeBroadcaster{},
		ents:      &fakeEntitlements{granted: make(map[string]bool)},
	}
	cfg := &config.Config{DefaultPassMark: 50, DefaultDurationMinutes: 60}
	f.svc = NewExamSessionService(
		cfg, f.exams, f.questions, f.sessions, f.certs,
		NewAccessGate(f.ents), f.auditor, f.events, zerolog.Nop())
	return f
}

func (f *sessionFixture) addExam(exam *model.Exam) {
	if exam.ID == uuid.Nil {
		exam.ID = uuid.New()
	}
	f.exams.exams[exam.ID] = exam
}

func (f *sessionFixture) addObjectiveQuestion(examID uuid.UUID, points float64) (qID, correctID uuid.UUID) {
	qID = uuid.New()
	correctID = uuid.New()
	f.questions.questions[examID] = append(f.questions.questions[examID], model.Question{
		ID:     qID,
		ExamID: examID,
		Type:   model.QuestionTypeObjective,
		Points: points,
		Options: []model.Option{
			{ID: correctID, QuestionID: qID, IsCorrect: true},
			{ID: uuid.New(), QuestionID: qID},
		},
	})
	return qID, correctID
}

func (f *sessionFixture) addOpenQuestion(examID uuid.UUID, points float64) uuid.UUID {
	qID := uuid.New()
	f.questions.questions[examID] = append(f.questions.questions[examID], model.Question{
		ID:     qID,
		ExamID: examID,
		Type:   model.QuestionTypeOpenEnded,
		Points: points,
	})
	return qID
}

// ─── Start ──────────────────────────────────────────────────────────────────

func TestStartFreeExam(t *testing.T) {
	f := newSessionFixture()
	exam := &model.Exam{Title: "Basics", IsActive: true}
	f.addExam(exam)

	result, err := f.svc.Start(context.Background(), 1, exam.ID)
	require.NoError(t, err)
	assert.False(t, result.Resumed)
	assert.Equal(t, exam.ID, result.Session.ExamID)
	assert.Equal(t, 1, result.Session.CandidateID)
	assert.Nil(t, result.Session.EndTime)
}

func TestStartIsIdempotent(t *testing.T) {
	f := newSessionFixture()
	exam := &model.Exam{Title: "Basics", IsActive: true}
	f.addExam(exam)

	first, err := f.svc.Start(context.Background(), 1, exam.ID)
	require.NoError(t, err)

	second, err := f.svc.Start(context.Background(), 1, exam.ID)
	require.NoError(t, err)
	assert.True(t, second.Resumed)
	assert.Equal(t, first.Session.ID, second.Session.ID)
}

func TestStartPricedExamWithoutEntitlement(t *testing.T) {
	f := newSessionFixture()
	exam := &model.Exam{Title: "Pro Cert", Price: 5000, IsActive: true}
	f.addExam(exam)

	_, err := f.svc.Start(context.Background(), 1, exam.ID)
	assert.ErrorIs(t, err, ErrPaymentRequired)
}

func TestStartPricedExamWithEntitlement(t *testing.T) {
	f := newSessionFixture()
	exam := &model.Exam{Title: "Pro Cert", Price: 5000, IsActive: true}
	f.addExam(exam)
	f.ents.granted[exam.ID.String()] = true

	result, err := f.svc.Start(context.Background(), 1, exam.ID)
	require.NoError(t, err)
	assert.False(t, result.Resumed)
}

func TestStartInactiveExam(t *testing.T) {
	f := newSessionFixture()
	exam := &model.Exam{Title: "Retired", IsActive: false}
	f.addExam(exam)

	_, err := f.svc.Start(context.Background(), 1, exam.ID)
	assert.ErrorIs(t, err, ErrExamNotAvailable)
}

func TestStartUnknownExam(t *testing.T) {
	f := newSessionFixture()

	_, err := f.svc.Start(context.Background(), 1, uuid.New())
	assert.ErrorIs(t, err, ErrExamNotAvailable)
}

func TestStartRandomizedExamStoresOrder(t *testing.T) {
	f := newSessionFixture()
	exam := &model.Exam{Title: "Shuffled", IsActive: true, RandomizeQuestions: true}
	f.addExam(exam)
	q1, _ := f.addObjectiveQuestion(exam.ID, 5)
	q2, _ := f.addObjectiveQuestion(exam.ID, 5)
	q3 := f.addOpenQuestion(exam.ID, 5)

	result, err := f.svc.Start(context.Background(), 1, exam.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uuid.UUID{q1, q2, q3}, result.Session.QuestionOrder)
}

// ─── Submit ─────────────────────────────────────────────────────────────────

func TestSubmitAutoGradesAndPasses(t *testing.T) {
	f := newSessionFixture()
	exam := &model.Exam{Title: "Basics", IsActive: true, PassMarkPercentage: 50}
	f.addExam(exam)
	q1, correct1 := f.addObjectiveQuestion(exam.ID, 5)
	q2, _ := f.addObjectiveQuestion(exam.ID, 5)

	started, err := f.svc.Start(context.Background(), 1, exam.ID)
	require.NoError(t, err)

	result, err := f.svc.Submit(context.Background(), 1, started.Session.ID, []model.SubmitAnswerInput{
		{QuestionID: q1.String(), SelectedOptionID: correct1.String()},
		{QuestionID: q2.String(), SelectedOptionID: uuid.New().String()},
	})
	require.NoError(t, err)

	assert.Equal(t, 50.0, result.Score)
	assert.True(t, result.IsGraded)
	require.NotNil(t, result.Session.Passed)
	assert.True(t, *result.Session.Passed)

	// Certificate issued for the passing session.
	_, issued := f.certs.issued[started.Session.ID]
	assert.True(t, issued)

	// Auto-grade recorded in the audit trail.
	require.Len(t, f.auditor.events, 1)
	assert.Equal(t, audit.ActionAutoGrade, f.auditor.events[0].Action)

	// Nothing queued for manual grading.
	assert.Empty(t, f.events.events)
}

func TestSubmitHybridQueuesForManualGrading(t *testing.T) {
	f := newSessionFixture()
	exam := &model.Exam{Title: "Hybrid", IsActive: true, GradingMode: model.GradingModeManualHybrid, PassMarkPercentage: 70}
	f.addExam(exam)
	q1, correct1 := f.addObjectiveQuestion(exam.ID, 10)
	q2 := f.addOpenQuestion(exam.ID, 10)

	started, err := f.svc.Start(context.Background(), 1, exam.ID)
	require.NoError(t, err)

	result, err := f.svc.Submit(context.Background(), 1, started.Session.ID, []model.SubmitAnswerInput{
		{QuestionID: q1.String(), SelectedOptionID: correct1.String()},
		{QuestionID: q2.String(), TextAnswer: "an essay"},
	})
	require.NoError(t, err)

	assert.Equal(t, 50.0, result.Score)
	assert.False(t, result.IsGraded)

	// Provisional result never passes, even above the mark.
	require.NotNil(t, result.Session.Passed)
	assert.False(t, *result.Session.Passed)
	assert.Empty(t, f.certs.issued)

	// Examiners notified about the pending submission.
	require.Len(t, f.events.events, 1)
	assert.Equal(t, started.Session.ID, f.events.events[0].SessionID)
}

func TestSubmitTwiceFails(t *testing.T) {
	f := newSessionFixture()
	exam := &model.Exam{Title: "Basics", IsActive: true}
	f.addExam(exam)
	q1, correct1 := f.addObjectiveQuestion(exam.ID, 5)

	started, err := f.svc.Start(context.Background(), 1, exam.ID)
	require.NoError(t, err)

	answers := []model.SubmitAnswerInput{{QuestionID: q1.String(), SelectedOptionID: correct1.String()}}

	_, err = f.svc.Submit(context.Background(), 1, started.Session.ID, answers)
	require.NoError(t, err)

	_, err = f.svc.Submit(context.Background(), 1, started.Session.ID, answers)
	assert.ErrorIs(t, err, ErrAlreadySubmitted)
	assert.Equal(t, 1, f.sessions.finishCalls)
}

func TestSubmitOtherCandidatesSession(t *testing.T) {
	f := newSessionFixture()
	exam := &model.Exam{Title: "Basics", IsActive: true}
	f.addExam(exam)

	started, err := f.svc.Start(context.Background(), 1, exam.ID)
	require.NoError(t, err)

	_, err = f.svc.Submit(context.Background(), 2, started.Session.ID, nil)
	assert.ErrorIs(t, err, ErrNotOwner)
}

func TestSubmitUnknownSession(t *testing.T) {
	f := newSessionFixture()

	_, err := f.svc.Submit(context.Background(), 1, uuid.New(), nil)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSubmitCountsMalformedEntries(t *testing.T) {
	f := newSessionFixture()
	exam := &model.Exam{Title: "Basics", IsActive: true}
	f.addExam(exam)
	q1, correct1 := f.addObjectiveQuestion(exam.ID, 5)

	started, err := f.svc.Start(context.Background(), 1, exam.ID)
	require.NoError(t, err)

	result, err := f.svc.Submit(context.Background(), 1, started.Session.ID, []model.SubmitAnswerInput{
		{QuestionID: "not-a-uuid", SelectedOptionID: correct1.String()},
		{QuestionID: uuid.New().String()},
		{QuestionID: q1.String(), SelectedOptionID: correct1.String()},
	})
	require.NoError(t, err)

	assert.Equal(t, 2, result.SkippedAnswers)
	assert.Equal(t, 100.0, result.Score)
}

// ─── Result ─────────────────────────────────────────────────────────────────

func TestResultBeforeSubmission(t *testing.T) {
	f := newSessionFixture()
	exam := &model.Exam{Title: "Basics", IsActive: true}
	f.addExam(exam)

	started, err := f.svc.Start(context.Background(), 1, exam.ID)
	require.NoError(t, err)

	_, err = f.svc.Result(context.Background(), 1, started.Session.ID)
	assert.ErrorIs(t, err, ErrNotSubmitted)
}

func TestResultIncludesCertificateCode(t *testing.T) {
	f := newSessionFixture()
	exam := &model.Exam{Title: "Basics", IsActive: true, PassMarkPercentage: 50}
	f.addExam(exam)
	q1, correct1 := f.addObjectiveQuestion(exam.ID, 5)

	started, err := f.svc.Start(context.Background(), 1, exam.ID)
	require.NoError(t, err)

	_, err = f.svc.Submit(context.Background(), 1, started.Session.ID, []model.SubmitAnswerInput{
		{QuestionID: q1.String(), SelectedOptionID: correct1.String()},
	})
	require.NoError(t, err)

	view, err := f.svc.Result(context.Background(), 1, started.Session.ID)
	require.NoError(t, err)

	assert.Equal(t, "Basics", view.ExamTitle)
	require.NotNil(t, view.Score)
	assert.Equal(t, 100.0, *view.Score)
	require.NotNil(t, view.CertificateCode)
	assert.NotEmpty(t, *view.CertificateCode)
}

// ─── GetActive ──────────────────────────────────────────────────────────────

func TestGetActiveReportsTimeRemaining(t *testing.T) {
	f := newSessionFixture()
	exam := &model.Exam{Title: "Timed", IsActive: true, DurationMinutes: 30}
	f.addExam(exam)

	started, err := f.svc.Start(context.Background(), 1, exam.ID)
	require.NoError(t, err)

	state, err := f.svc.GetActive(context.Background(), 1, started.Session.ID)
	require.NoError(t, err)
	assert.Greater(t, state.TimeRemainingSeconds, 0.0)
	assert.LessOrEqual(t, state.TimeRemainingSeconds, 30*60.0)
}

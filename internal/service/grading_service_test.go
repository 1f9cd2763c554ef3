package service

import (
	"context"
	"testing"
	"time"

	"github.com/ciltra/ciltra-backend/internal/audit"
	"github.com/ciltra/ciltra-backend/internal/config"
	"github.com/ciltra/ciltra-backend/internal/model"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAnswerStore struct {
	answers map[uuid.UUID][]model.StudentAnswer
}

func (f *fakeAnswerStore) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]model.StudentAnswer, error) {
	return f.answers[sessionID], nil
}

type gradingFixture struct {
	svc       *GradingService
	exams     *fakeExamStore
	questions *fakeQuestionStore
	sessions  *fakeSessionStore
	answers   *fakeAnswerStore
	certs     *fakeCertStore
	auditor   *fakeAuditSink
}

func newGradingFixture() *gradingFixture {
	f := &gradingFixture{
		exams:     &fakeExamStore{exams: make(map[uuid.UUID]*model.Exam)},
		questions: &fakeQuestionStore{questions: make(map[uuid.UUID][]model.Question)},
		sessions:  newFakeSessionStore(),
		answers:   &fakeAnswerStore{answers: make(map[uuid.UUID][]model.StudentAnswer)},
		certs:     newFakeCertStore(),
		auditor:   &fakeAuditSink{},
	}
	cfg := &config.Config{DefaultPassMark: 50}
	f.svc = NewGradingService(
		cfg, f.exams, f.questions, f.sessions, f.answers, f.certs, f.auditor, zerolog.Nop())
	return f
}

// submittedSession seeds an exam with one objective (graded) and one
// open-ended (pending) question plus a finished session awaiting marks.
func (f *gradingFixture) submittedSession(passMark float64) (examID, sessionID, openQID uuid.UUID) {
	exam := &model.Exam{
		ID:                 uuid.New(),
		Title:              "Hybrid",
		GradingMode:        model.GradingModeManualHybrid,
		PassMarkPercentage: passMark,
		IsActive:           true,
	}
	f.exams.exams[exam.ID] = exam

	objQID := uuid.New()
	openQID = uuid.New()
	f.questions.questions[exam.ID] = []model.Question{
		{ID: objQID, ExamID: exam.ID, Type: model.QuestionTypeObjective, Points: 10},
		{ID: openQID, ExamID: exam.ID, Type: model.QuestionTypeOpenEnded, Points: 10},
	}

	now := time.Now()
	score := 50.0
	passed := false
	session := &model.ExamSession{
		ID:          uuid.New(),
		ExamID:      exam.ID,
		CandidateID: 1,
		StartTime:   now.Add(-time.Hour),
		EndTime:     &now,
		Score:       &score,
		Passed:      &passed,
	}
	f.sessions.sessions[session.ID] = session

	answers := []model.StudentAnswer{
		{SessionID: session.ID, QuestionID: objQID, AwardedMarks: 10},
		{SessionID: session.ID, QuestionID: openQID, TextAnswer: "an essay"},
	}
	f.answers.answers[session.ID] = answers
	f.sessions.answers[session.ID] = append([]model.StudentAnswer(nil), answers...)

	return exam.ID, session.ID, openQID
}

func TestSubmitGradesAppliesBatch(t *testing.T) {
	f := newGradingFixture()
	_, sessionID, openQID := f.submittedSession(70)

	result, err := f.svc.SubmitGrades(context.Background(), 7, sessionID, []model.GradeInput{
		{QuestionID: openQID.String(), Marks: 8, Comment: "solid"},
	})
	require.NoError(t, err)

	assert.Equal(t, 90.0, result.Score)
	assert.True(t, result.Passed)
	assert.True(t, result.Session.IsGraded)
	assert.Equal(t, 1, f.sessions.gradeCalls)

	// Passing regrade issues the certificate.
	_, issued := f.certs.issued[sessionID]
	assert.True(t, issued)

	require.Len(t, f.auditor.events, 1)
	assert.Equal(t, audit.ActionManualGrade, f.auditor.events[0].Action)
	assert.Equal(t, "examiner:7", f.auditor.events[0].Actor)
}

func TestSubmitGradesRejectsMarkAbovePoints(t *testing.T) {
	f := newGradingFixture()
	_, sessionID, openQID := f.submittedSession(70)

	_, err := f.svc.SubmitGrades(context.Background(), 7, sessionID, []model.GradeInput{
		{QuestionID: openQID.String(), Marks: 11},
	})
	assert.ErrorIs(t, err, ErrInvalidMark)
	assert.Zero(t, f.sessions.gradeCalls, "invalid batch must not reach the store")
}

func TestSubmitGradesRejectsNegativeMark(t *testing.T) {
	f := newGradingFixture()
	_, sessionID, openQID := f.submittedSession(70)

	_, err := f.svc.SubmitGrades(context.Background(), 7, sessionID, []model.GradeInput{
		{QuestionID: openQID.String(), Marks: -1},
	})
	assert.ErrorIs(t, err, ErrInvalidMark)
}

func TestSubmitGradesRejectsUnknownQuestion(t *testing.T) {
	f := newGradingFixture()
	_, sessionID, openQID := f.submittedSession(70)

	_, err := f.svc.SubmitGrades(context.Background(), 7, sessionID, []model.GradeInput{
		{QuestionID: openQID.String(), Marks: 5},
		{QuestionID: uuid.New().String(), Marks: 5},
	})
	assert.ErrorIs(t, err, ErrInvalidMark)
	assert.Zero(t, f.sessions.gradeCalls, "one bad entry fails the whole batch")
}

func TestSubmitGradesRejectsBadQuestionID(t *testing.T) {
	f := newGradingFixture()
	_, sessionID, _ := f.submittedSession(70)

	_, err := f.svc.SubmitGrades(context.Background(), 7, sessionID, []model.GradeInput{
		{QuestionID: "not-a-uuid", Marks: 5},
	})
	assert.ErrorIs(t, err, ErrInvalidMark)
}

func TestSubmitGradesOnInProgressSession(t *testing.T) {
	f := newGradingFixture()
	examID, _, openQID := f.submittedSession(70)

	open := &model.ExamSession{
		ID:          uuid.New(),
		ExamID:      examID,
		CandidateID: 2,
		StartTime:   time.Now(),
	}
	f.sessions.sessions[open.ID] = open

	_, err := f.svc.SubmitGrades(context.Background(), 7, open.ID, []model.GradeInput{
		{QuestionID: openQID.String(), Marks: 5},
	})
	assert.ErrorIs(t, err, ErrNotSubmitted)
}

func TestSubmitGradesUnknownSession(t *testing.T) {
	f := newGradingFixture()

	_, err := f.svc.SubmitGrades(context.Background(), 7, uuid.New(), nil)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSubmitGradesFailedRegradeSkipsCertificate(t *testing.T) {
	f := newGradingFixture()
	_, sessionID, openQID := f.submittedSession(70)

	result, err := f.svc.SubmitGrades(context.Background(), 7, sessionID, []model.GradeInput{
		{QuestionID: openQID.String(), Marks: 1},
	})
	require.NoError(t, err)

	assert.Equal(t, 55.0, result.Score)
	assert.False(t, result.Passed)
	assert.Empty(t, f.certs.issued)
}

func TestSubmitGradesIsIdempotent(t *testing.T) {
	f := newGradingFixture()
	_, sessionID, openQID := f.submittedSession(70)
	batch := []model.GradeInput{{QuestionID: openQID.String(), Marks: 8, Comment: "solid"}}

	first, err := f.svc.SubmitGrades(context.Background(), 7, sessionID, batch)
	require.NoError(t, err)
	second, err := f.svc.SubmitGrades(context.Background(), 7, sessionID, batch)
	require.NoError(t, err)

	assert.Equal(t, 90.0, first.Score)
	assert.Equal(t, first.Score, second.Score)
	assert.Equal(t, first.Passed, second.Passed)
	assert.Equal(t, 2, f.sessions.gradeCalls)

	stored := f.sessions.sessions[sessionID]
	require.NotNil(t, stored.Score)
	assert.Equal(t, 90.0, *stored.Score)

	// Re-running a passing regrade must not mint a second certificate.
	assert.Len(t, f.certs.issued, 1)
}

func TestSubmitGradesOnAutoGradedExam(t *testing.T) {
	f := newGradingFixture()
	examID, sessionID, openQID := f.submittedSession(70)
	f.exams.exams[examID].GradingMode = model.GradingModeAuto

	_, err := f.svc.SubmitGrades(context.Background(), 7, sessionID, []model.GradeInput{
		{QuestionID: openQID.String(), Marks: 5},
	})
	assert.ErrorIs(t, err, ErrExamAutoGraded)
	assert.Zero(t, f.sessions.gradeCalls)
}

func TestSessionDetail(t *testing.T) {
	f := newGradingFixture()
	_, sessionID, _ := f.submittedSession(70)

	detail, err := f.svc.SessionDetail(context.Background(), sessionID)
	require.NoError(t, err)

	assert.Equal(t, "Hybrid", detail.ExamTitle)
	assert.Equal(t, 70.0, detail.PassMark)
	assert.Len(t, detail.Questions, 2)
	assert.Len(t, detail.Answers, 2)
}

func TestSessionDetailInProgress(t *testing.T) {
	f := newGradingFixture()
	examID, _, _ := f.submittedSession(70)

	open := &model.ExamSession{
		ID:          uuid.New(),
		ExamID:      examID,
		CandidateID: 2,
		StartTime:   time.Now(),
	}
	f.sessions.sessions[open.ID] = open

	_, err := f.svc.SessionDetail(context.Background(), open.ID)
	assert.ErrorIs(t, err, ErrNotSubmitted)
}

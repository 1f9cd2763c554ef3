package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ciltra/ciltra-backend/internal/config"
	"github.com/ciltra/ciltra-backend/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const examPaperTTL = 10 * time.Minute

// ExamCatalog lists exams for the candidate-facing catalog.
type ExamCatalog interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error)
	ListActive(ctx context.Context) ([]model.Exam, error)
}

// ExamService serves the exam catalog and delivers per-session papers.
// Papers are cached in Redis per exam; the per-session question order is
// applied after the cache, so all sessions share one cached paper.
type ExamService struct {
	exams     ExamCatalog
	questions QuestionStore
	sessions  SessionStore
	rdb       *redis.Client
	log       zerolog.Logger
}

// NewExamService creates a new ExamService.
func NewExamService(
	exams ExamCatalog,
	questions QuestionStore,
	sessions SessionStore,
	rdb *redis.Client,
	log zerolog.Logger,
) *ExamService {
	return &ExamService{
		exams:     exams,
		questions: questions,
		sessions:  sessions,
		rdb:       rdb,
		log:       log.With().Str("component", "exam_service").Logger(),
	}
}

// Catalog lists active exams.
func (s *ExamService) Catalog(ctx context.Context) ([]model.Exam, error) {
	return s.exams.ListActive(ctx)
}

// Get returns one exam, active or not.
func (s *ExamService) Get(ctx context.Context, examID uuid.UUID) (*model.Exam, error) {
	exam, err := s.exams.GetByID(ctx, examID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrExamNotAvailable
		}
		return nil, fmt.Errorf("get exam: %w", err)
	}
	return exam, nil
}

// Paper delivers the question paper for an in-progress session the
// candidate owns. Correct-answer flags never leave this layer.
func (s *ExamService) Paper(ctx context.Context, candidateID int, sessionID uuid.UUID) (*model.ExamPaper, error) {
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
	if !session.InProgress() {
		return nil, ErrAlreadySubmitted
	}

	paper, err := s.cachedPaper(ctx, session.ExamID)
	if err != nil {
		return nil, err
	}
	if len(session.QuestionOrder) > 0 {
		paper.Questions = reorderQuestions(paper.Questions, session.QuestionOrder)
	}
	return paper, nil
}

// cachedPaper fetches the exam paper from Redis, building and caching it
// on miss. Cache failures degrade to a direct build.
func (s *ExamService) cachedPaper(ctx context.Context, examID uuid.UUID) (*model.ExamPaper, error) {
	key := config.CacheKey.ExamPaperKey(examID.String())

	raw, err := s.rdb.Get(ctx, key).Bytes()
	if err == nil {
		var paper model.ExamPaper
		if err := json.Unmarshal(raw, &paper); err == nil {
			return &paper, nil
		}
		s.log.Warn().Str("key", key).Msg("Discarding undecodable cached paper")
	} else if !errors.Is(err, redis.Nil) {
		s.log.Warn().Err(err).Str("key", key).Msg("Paper cache read failed")
	}

	paper, err := s.buildPaper(ctx, examID)
	if err != nil {
		return nil, err
	}

	if encoded, err := json.Marshal(paper); err == nil {
		if err := s.rdb.Set(ctx, key, encoded, examPaperTTL).Err(); err != nil {
			s.log.Warn().Err(err).Str("key", key).Msg("Paper cache write failed")
		}
	}
	return paper, nil
}

func (s *ExamService) buildPaper(ctx context.Context, examID uuid.UUID) (*model.ExamPaper, error) {
	exam, err := s.exams.GetByID(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("get exam: %w", err)
	}
	questions, err := s.questions.ListByExam(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}

	paper := &model.ExamPaper{
		ExamID:          exam.ID,
		Title:           exam.Title,
		DurationMinutes: exam.DurationMinutes,
		Questions:       make([]model.QuestionForCandidate, 0, len(questions)),
	}
	for _, q := range questions {
		pq := model.QuestionForCandidate{
			ID:       q.ID,
			Text:     q.Text,
			Type:     q.Type,
			Points:   q.Points,
			OrderNum: q.OrderNum,
			Options:  make([]model.OptionForCandidate, 0, len(q.Options)),
		}
		for _, o := range q.Options {
			pq.Options = append(pq.Options, model.OptionForCandidate{
				ID:   o.ID,
				Text: o.Text,
			})
		}
		paper.Questions = append(paper.Questions, pq)
	}
	return paper, nil
}

// reorderQuestions applies a stored presentation order. Questions missing
// from the order keep their relative position at the end.
func reorderQuestions(questions []model.QuestionForCandidate, order []uuid.UUID) []model.QuestionForCandidate {
	byID := make(map[uuid.UUID]model.QuestionForCandidate, len(questions))
	for _, q := range questions {
		byID[q.ID] = q
	}
	out := make([]model.QuestionForCandidate, 0, len(questions))
	seen := make(map[uuid.UUID]bool, len(order))
	for _, id := range order {
		if q, ok := byID[id]; ok {
			out = append(out, q)
			seen[id] = true
		}
	}
	for _, q := range questions {
		if !seen[q.ID] {
			out = append(out, q)
		}
	}
	return out
}

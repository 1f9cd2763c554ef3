package service

import (
	"context"
	"fmt"
)

// Counter is implemented by repositories that can report a table count.
type Counter interface {
	CountAll(ctx context.Context) (int64, error)
}

// PlatformStats is the examiner dashboard summary.
type PlatformStats struct {
	Candidates   int64 `json:"candidates"`
	Exams        int64 `json:"exams"`
	Certificates int64 `json:"certificates"`
	PendingCount int64 `json:"pending_count"`
	GradedCount  int64 `json:"graded_count"`
}

// StatsService aggregates platform-wide counters.
type StatsService struct {
	candidates Counter
	exams      Counter
	certs      Counter
	sessions   SessionStore
}

// NewStatsService creates a new StatsService.
func NewStatsService(candidates, exams, certs Counter, sessions SessionStore) *StatsService {
	return &StatsService{candidates: candidates, exams: exams, certs: certs, sessions: sessions}
}

// Platform returns current platform-wide counts.
func (s *StatsService) Platform(ctx context.Context) (*PlatformStats, error) {
	stats := &PlatformStats{}
	var err error

	if stats.Candidates, err = s.candidates.CountAll(ctx); err != nil {
		return nil, fmt.Errorf("count candidates: %w", err)
	}
	if stats.Exams, err = s.exams.CountAll(ctx); err != nil {
		return nil, fmt.Errorf("count exams: %w", err)
	}
	if stats.Certificates, err = s.certs.CountAll(ctx); err != nil {
		return nil, fmt.Errorf("count certificates: %w", err)
	}
	if stats.PendingCount, err = s.sessions.PendingCount(ctx); err != nil {
		return nil, fmt.Errorf("count pending: %w", err)
	}
	if stats.GradedCount, err = s.sessions.GradedCount(ctx); err != nil {
		return nil, fmt.Errorf("count graded: %w", err)
	}
	return stats, nil
}

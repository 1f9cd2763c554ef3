package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// ExamPaperKey returns the cache key for the candidate-facing exam paper.
func (r *CacheKeyStruct) ExamPaperKey(examID string) string {
	return fmt.Sprintf("exam:%s:paper", examID)
}

// GradingEventsChannel returns the Redis PubSub channel for grading queue events.
func (r *CacheKeyStruct) GradingEventsChannel() string {
	return "grading:events"
}

var CacheKey = NewCacheKeyStruct()

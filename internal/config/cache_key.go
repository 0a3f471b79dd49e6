package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// UserSessionKey returns the cache key for a user's login session.
func (r *CacheKeyStruct) UserSessionKey(userID int) string {
	return fmt.Sprintf("login:%d", userID)
}

// ExamKey returns the cache key for an exam definition payload.
func (r *CacheKeyStruct) ExamKey(examID string) string {
	return fmt.Sprintf("exam:%s", examID)
}

// AttemptClockKey returns the cache key for an attempt's current-subject
// deadline (unix seconds).
func (r *CacheKeyStruct) AttemptClockKey(attemptID string) string {
	return fmt.Sprintf("attempt:%s:clock", attemptID)
}

var CacheKey = NewCacheKeyStruct()

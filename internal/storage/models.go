package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// CacheEntry is one cached answer, keyed by query fingerprint.
type CacheEntry struct {
	Fingerprint  string
	QueryText    string // original query, kept for auditability
	AnswerText   string
	CreatedAt    time.Time
	ExpiresAt    time.Time // absolute expiry, created_at + ttl
	AccessCount  int64
	LastAccessed time.Time
}

// Expired reports whether the entry is logically expired at the given time.
func (e CacheEntry) Expired(now time.Time) bool {
	return now.After(e.ExpiresAt)
}

// Vote values for feedback entries.
const (
	VotePositive = "positive"
	VoteNegative = "negative"
)

// FeedbackEntry records a user judgment on an answer. Feedback outlives the
// cache entry it references; only the fingerprint ties them together.
type FeedbackEntry struct {
	ID          string
	Fingerprint string
	QueryText   string
	AnswerText  string
	Vote        string
	Comment     string
	SubmittedAt time.Time
	ExpiresAt   time.Time
}

// CacheTableStats summarizes the answer_cache table.
type CacheTableStats struct {
	EntryCount     int
	TotalAccesses  int64
	MaxAccessCount int64
	OldestCreated  time.Time // zero when the table is empty
	NewestCreated  time.Time
}

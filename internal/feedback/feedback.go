// Package feedback records user votes on answers and summarizes them.
package feedback

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/corpusqa/corpusqa/internal/fingerprint"
	"github.com/corpusqa/corpusqa/internal/storage"
)

var (
	// ErrInvalidVote is returned for a vote outside {positive, negative}.
	ErrInvalidVote = errors.New("vote must be positive or negative")
	// ErrMissingQuery is returned when a submission carries no query text.
	ErrMissingQuery = errors.New("feedback needs the query it refers to")
)

// Backend is the persistence surface the feedback service needs.
// *storage.Store satisfies it.
type Backend interface {
	SaveFeedback(e storage.FeedbackEntry) error
	FeedbackFor(fingerprint string) ([]storage.FeedbackEntry, error)
	RecentFeedback(limit int) ([]storage.FeedbackEntry, error)
	FeedbackCounts(fingerprint string) (positive, negative int, err error)
	DeleteExpiredFeedback(now time.Time) (int, error)
}

// Service validates and stores feedback.
type Service struct {
	backend Backend
	ttl     time.Duration
	logger  *slog.Logger
	now     func() time.Time
	newID   func() string
}

func New(backend Backend, ttl time.Duration, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		backend: backend,
		ttl:     ttl,
		logger:  logger,
		now:     time.Now,
		newID:   func() string { return uuid.NewString() },
	}
}

// Submission is one incoming vote.
type Submission struct {
	Query   string `json:"query"`
	Answer  string `json:"answer"`
	Vote    string `json:"vote"`
	Comment string `json:"comment,omitempty"`
}

// Record validates a submission, derives the query fingerprint and persists
// the entry. The stored record keeps its own expiry, independent of the
// answer cache, so votes survive cache invalidation.
func (s *Service) Record(sub Submission) (storage.FeedbackEntry, error) {
	vote := strings.ToLower(strings.TrimSpace(sub.Vote))
	if vote != storage.VotePositive && vote != storage.VoteNegative {
		return storage.FeedbackEntry{}, fmt.Errorf("%w: %q", ErrInvalidVote, sub.Vote)
	}
	if fingerprint.Normalize(sub.Query) == "" {
		return storage.FeedbackEntry{}, ErrMissingQuery
	}

	now := s.now().UTC()
	entry := storage.FeedbackEntry{
		ID:          s.newID(),
		Fingerprint: fingerprint.Fingerprint(sub.Query),
		QueryText:   sub.Query,
		AnswerText:  sub.Answer,
		Vote:        vote,
		Comment:     strings.TrimSpace(sub.Comment),
		SubmittedAt: now,
		ExpiresAt:   now.Add(s.ttl),
	}
	if err := s.backend.SaveFeedback(entry); err != nil {
		return storage.FeedbackEntry{}, fmt.Errorf("save feedback: %w", err)
	}
	s.logger.Info("feedback recorded", "vote", vote, "fingerprint", entry.Fingerprint[:8])
	return entry, nil
}

// Distribution is the vote breakdown for one fingerprint, or for the whole
// corpus when Fingerprint is empty.
type Distribution struct {
	Fingerprint   string  `json:"fingerprint,omitempty"`
	Positive      int     `json:"positive"`
	Negative      int     `json:"negative"`
	Total         int     `json:"total"`
	PositiveRatio float64 `json:"positive_ratio"`
}

// DistributionFor returns the vote breakdown for a fingerprint; pass an empty
// string for the corpus-wide breakdown.
func (s *Service) DistributionFor(fp string) (Distribution, error) {
	pos, neg, err := s.backend.FeedbackCounts(fp)
	if err != nil {
		return Distribution{}, fmt.Errorf("count feedback: %w", err)
	}
	d := Distribution{Fingerprint: fp, Positive: pos, Negative: neg, Total: pos + neg}
	if d.Total > 0 {
		d.PositiveRatio = float64(pos) / float64(d.Total)
	}
	return d, nil
}

// ForQuery lists feedback for the question a query normalizes to, newest
// first.
func (s *Service) ForQuery(query string) ([]storage.FeedbackEntry, error) {
	return s.backend.FeedbackFor(fingerprint.Fingerprint(query))
}

// Recent lists the newest entries across all questions.
func (s *Service) Recent(limit int) ([]storage.FeedbackEntry, error) {
	return s.backend.RecentFeedback(limit)
}

// SweepExpired removes entries past their expiry and returns the number
// removed.
func (s *Service) SweepExpired() (int, error) {
	return s.backend.DeleteExpiredFeedback(s.now().UTC())
}

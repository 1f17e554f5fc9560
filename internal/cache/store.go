// Package cache implements the answer cache on top of the storage layer.
//
// The cache is fail-open by contract: a backend error on Get degrades to a
// miss and an error on Put is logged and swallowed. Cache unavailability
// never blocks the query path.
package cache

import (
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/corpusqa/corpusqa/internal/storage"
)

// Backend is the persistence surface the cache needs. *storage.Store
// satisfies it.
type Backend interface {
	GetCacheEntry(fingerprint string) (storage.CacheEntry, error)
	PutCacheEntry(e storage.CacheEntry) error
	TouchCacheEntry(fingerprint string, now time.Time) error
	DeleteCacheEntry(fingerprint string) (int, error)
	DeleteCacheMatching(prefix string) (int, error)
	ClearCache() (int, error)
	DeleteExpiredCache(now time.Time) (int, error)
	CacheStats() (storage.CacheTableStats, error)
}

// Store is the fail-open answer cache.
type Store struct {
	backend Backend
	logger  *slog.Logger
	now     func() time.Time

	hits   atomic.Int64
	misses atomic.Int64
}

// New creates a Store. A nil logger falls back to slog.Default().
func New(backend Backend, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		backend: backend,
		logger:  logger,
		now:     time.Now,
	}
}

// Get returns the cached entry for a fingerprint. A logically-expired entry
// reports a miss and is physically removed on the spot (best effort). On a
// hit the access counters are bumped; that update never fails the read.
func (s *Store) Get(fingerprint string) (storage.CacheEntry, bool) {
	now := s.now().UTC()

	entry, err := s.backend.GetCacheEntry(fingerprint)
	if errors.Is(err, storage.ErrNotFound) {
		s.misses.Add(1)
		return storage.CacheEntry{}, false
	}
	if err != nil {
		// Fail open: a broken cache is a miss, never an error.
		s.logger.Warn("cache get failed, treating as miss", "fingerprint", short(fingerprint), "error", err)
		s.misses.Add(1)
		return storage.CacheEntry{}, false
	}

	if entry.Expired(now) {
		if _, err := s.backend.DeleteCacheEntry(fingerprint); err != nil {
			s.logger.Warn("expired entry cleanup failed", "fingerprint", short(fingerprint), "error", err)
		}
		s.misses.Add(1)
		return storage.CacheEntry{}, false
	}

	if err := s.backend.TouchCacheEntry(fingerprint, now); err != nil {
		s.logger.Warn("access stats update failed", "fingerprint", short(fingerprint), "error", err)
	} else {
		entry.AccessCount++
		entry.LastAccessed = now
	}

	s.hits.Add(1)
	return entry, true
}

// Put stores an answer under the fingerprint, overwriting any existing entry.
// Storage errors are logged and swallowed; the answer has already been
// produced and an uncacheable answer is still an answer.
func (s *Store) Put(fingerprint, query, answer string, ttl time.Duration) {
	now := s.now().UTC()
	entry := storage.CacheEntry{
		Fingerprint:  fingerprint,
		QueryText:    query,
		AnswerText:   answer,
		CreatedAt:    now,
		ExpiresAt:    now.Add(ttl),
		LastAccessed: now,
	}
	if err := s.backend.PutCacheEntry(entry); err != nil {
		s.logger.Warn("cache put failed, answer not cached", "fingerprint", short(fingerprint), "error", err)
	}
}

// Selector picks cache entries for invalidation.
type Selector struct {
	exact  string
	prefix string
	all    bool
}

// ExactKey selects the single entry with this fingerprint.
func ExactKey(fingerprint string) Selector {
	return Selector{exact: fingerprint}
}

// PrefixPattern selects entries whose fingerprint or query text starts with
// the given prefix.
func PrefixPattern(prefix string) Selector {
	return Selector{prefix: prefix}
}

// All selects every entry.
func All() Selector {
	return Selector{all: true}
}

// Invalidate removes the selected entries and returns the number removed.
// Invalidation is an administrative operation, so unlike Get/Put it reports
// backend errors to the caller.
func (s *Store) Invalidate(sel Selector) (int, error) {
	switch {
	case sel.all:
		return s.backend.ClearCache()
	case sel.exact != "":
		return s.backend.DeleteCacheEntry(sel.exact)
	case sel.prefix != "":
		return s.backend.DeleteCacheMatching(sel.prefix)
	default:
		return 0, errors.New("empty invalidation selector")
	}
}

// SweepExpired physically deletes logically-expired entries and returns the
// number removed.
func (s *Store) SweepExpired() (int, error) {
	return s.backend.DeleteExpiredCache(s.now().UTC())
}

// Stats describes the cache contents plus in-process hit/miss counters. The
// counters reset on restart; the table numbers are authoritative.
type Stats struct {
	EntryCount     int       `json:"entry_count"`
	Hits           int64     `json:"hits"`
	Misses         int64     `json:"misses"`
	TotalAccesses  int64     `json:"total_accesses"`
	MaxAccessCount int64     `json:"max_access_count"`
	OldestEntry    time.Time `json:"oldest_entry,omitzero"`
	NewestEntry    time.Time `json:"newest_entry,omitzero"`
}

// Stats returns current cache statistics.
func (s *Store) Stats() (Stats, error) {
	table, err := s.backend.CacheStats()
	if err != nil {
		return Stats{}, err
	}
	return Stats{
		EntryCount:     table.EntryCount,
		Hits:           s.hits.Load(),
		Misses:         s.misses.Load(),
		TotalAccesses:  table.TotalAccesses,
		MaxAccessCount: table.MaxAccessCount,
		OldestEntry:    table.OldestCreated,
		NewestEntry:    table.NewestCreated,
	}, nil
}

// short truncates a fingerprint for log lines.
func short(fingerprint string) string {
	if len(fingerprint) <= 8 {
		return fingerprint
	}
	return fingerprint[:8]
}

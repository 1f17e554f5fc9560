package cache

import (
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/corpusqa/corpusqa/internal/storage"
)

func newTestStore(t *testing.T) (*Store, *storage.Store) {
	t.Helper()
	backend, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(func() { backend.Close() })
	return New(backend, slog.New(slog.NewTextHandler(io.Discard, nil))), backend
}

func TestGetMissOnEmpty(t *testing.T) {
	s, _ := newTestStore(t)

	if _, ok := s.Get("nothing"); ok {
		t.Error("Get on empty cache reported a hit")
	}
}

func TestPutThenGet(t *testing.T) {
	s, _ := newTestStore(t)

	s.Put("fp-1", "what is go?", "a language", time.Hour)

	entry, ok := s.Get("fp-1")
	if !ok {
		t.Fatal("expected hit after Put")
	}
	if entry.AnswerText != "a language" {
		t.Errorf("AnswerText = %q, want %q", entry.AnswerText, "a language")
	}
	if entry.AccessCount != 1 {
		t.Errorf("AccessCount = %d, want 1 after first read", entry.AccessCount)
	}

	entry, ok = s.Get("fp-1")
	if !ok {
		t.Fatal("expected second hit")
	}
	if entry.AccessCount != 2 {
		t.Errorf("AccessCount = %d, want 2 after second read", entry.AccessCount)
	}
}

func TestExpiredEntryIsMissAndCleanedUp(t *testing.T) {
	s, backend := newTestStore(t)

	s.Put("fp-exp", "q", "a", time.Hour)
	// Move the clock past the expiry.
	s.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	if _, ok := s.Get("fp-exp"); ok {
		t.Error("expired entry reported as hit")
	}

	// The expired row was physically removed, not just masked.
	if _, err := backend.GetCacheEntry("fp-exp"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expired row still present, err = %v", err)
	}
}

func TestSweepExpired(t *testing.T) {
	s, _ := newTestStore(t)

	s.Put("keep", "q", "a", time.Hour)
	s.Put("drop-1", "q", "a", -time.Hour)
	s.Put("drop-2", "q", "a", -time.Minute)

	n, err := s.SweepExpired()
	if err != nil {
		t.Fatalf("SweepExpired: %v", err)
	}
	if n != 2 {
		t.Errorf("swept = %d, want 2", n)
	}

	if _, ok := s.Get("keep"); !ok {
		t.Error("live entry swept")
	}
}

func TestInvalidateSelectors(t *testing.T) {
	s, _ := newTestStore(t)

	seed := func() {
		s.Put("abc123", "first question", "a", time.Hour)
		s.Put("abc456", "second question", "a", time.Hour)
		s.Put("xyz789", "third question", "a", time.Hour)
	}

	seed()
	n, err := s.Invalidate(ExactKey("abc123"))
	if err != nil {
		t.Fatalf("Invalidate(ExactKey): %v", err)
	}
	if n != 1 {
		t.Errorf("ExactKey removed %d, want 1", n)
	}
	if _, ok := s.Get("abc456"); !ok {
		t.Error("ExactKey removed an unrelated entry")
	}

	n, err = s.Invalidate(PrefixPattern("abc"))
	if err != nil {
		t.Fatalf("Invalidate(PrefixPattern): %v", err)
	}
	if n != 1 {
		t.Errorf("PrefixPattern removed %d, want 1", n)
	}
	if _, ok := s.Get("xyz789"); !ok {
		t.Error("PrefixPattern removed an entry outside the prefix")
	}

	seed()
	n, err = s.Invalidate(All())
	if err != nil {
		t.Fatalf("Invalidate(All): %v", err)
	}
	if n != 3 {
		t.Errorf("All removed %d, want 3", n)
	}

	if _, err := s.Invalidate(Selector{}); err == nil {
		t.Error("empty selector should be rejected")
	}
}

func TestStats(t *testing.T) {
	s, _ := newTestStore(t)

	s.Get("miss-1")
	s.Put("fp-s", "q", "a", time.Hour)
	s.Get("fp-s")
	s.Get("fp-s")

	stats, err := s.Stats()
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.EntryCount != 1 {
		t.Errorf("EntryCount = %d, want 1", stats.EntryCount)
	}
	if stats.Hits != 2 {
		t.Errorf("Hits = %d, want 2", stats.Hits)
	}
	if stats.Misses != 1 {
		t.Errorf("Misses = %d, want 1", stats.Misses)
	}
	if stats.MaxAccessCount != 2 {
		t.Errorf("MaxAccessCount = %d, want 2", stats.MaxAccessCount)
	}
	if stats.OldestEntry.IsZero() || stats.NewestEntry.IsZero() {
		t.Error("expected oldest/newest timestamps to be set")
	}
}

// brokenBackend simulates an unreachable cache store.
type brokenBackend struct{}

var errDown = errors.New("backend down")

func (brokenBackend) GetCacheEntry(string) (storage.CacheEntry, error)  { return storage.CacheEntry{}, errDown }
func (brokenBackend) PutCacheEntry(storage.CacheEntry) error            { return errDown }
func (brokenBackend) TouchCacheEntry(string, time.Time) error           { return errDown }
func (brokenBackend) DeleteCacheEntry(string) (int, error)              { return 0, errDown }
func (brokenBackend) DeleteCacheMatching(string) (int, error)           { return 0, errDown }
func (brokenBackend) ClearCache() (int, error)                          { return 0, errDown }
func (brokenBackend) DeleteExpiredCache(time.Time) (int, error)         { return 0, errDown }
func (brokenBackend) CacheStats() (storage.CacheTableStats, error)      { return storage.CacheTableStats{}, errDown }

// TestFailOpen verifies Get degrades to a miss and Put swallows errors when
// the backend is unreachable.
func TestFailOpen(t *testing.T) {
	s := New(brokenBackend{}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	if _, ok := s.Get("fp"); ok {
		t.Error("Get on broken backend reported a hit")
	}

	// Must not panic or surface the error.
	s.Put("fp", "q", "a", time.Hour)
}

// TestTouchFailureDoesNotFailRead covers the best-effort access-stat bump: a
// backend that reads fine but cannot write still serves hits.
func TestTouchFailureDoesNotFailRead(t *testing.T) {
	real, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(func() { real.Close() })

	rb := &readOnlyBackend{Backend: real}
	s := New(rb, slog.New(slog.NewTextHandler(io.Discard, nil)))

	now := time.Now().UTC().Truncate(time.Second)
	if err := real.PutCacheEntry(storage.CacheEntry{
		Fingerprint:  "fp-ro",
		QueryText:    "q",
		AnswerText:   "a",
		CreatedAt:    now,
		ExpiresAt:    now.Add(time.Hour),
		LastAccessed: now,
	}); err != nil {
		t.Fatalf("PutCacheEntry: %v", err)
	}

	entry, ok := s.Get("fp-ro")
	if !ok {
		t.Fatal("expected hit despite failing touch")
	}
	if entry.AccessCount != 0 {
		t.Errorf("AccessCount = %d, want 0 when touch fails", entry.AccessCount)
	}
}

type readOnlyBackend struct {
	Backend
}

func (b *readOnlyBackend) TouchCacheEntry(string, time.Time) error {
	return errDown
}

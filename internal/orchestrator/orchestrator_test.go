package orchestrator

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/corpusqa/corpusqa/internal/cache"
	"github.com/corpusqa/corpusqa/internal/fingerprint"
	"github.com/corpusqa/corpusqa/internal/storage"
)

type fakeGenerator struct {
	answer string
	err    error
	calls  int
}

func (g *fakeGenerator) Generate(_ context.Context, _ string) (string, error) {
	g.calls++
	return g.answer, g.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestOrchestrator(t *testing.T, gen Generator) (*Orchestrator, *cache.Store) {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	c := cache.New(store, discardLogger())
	o := New(Config{Cache: c, Generator: gen, TTL: time.Hour, Logger: discardLogger()})
	return o, c
}

func TestAnswerGeneratesOnMiss(t *testing.T) {
	gen := &fakeGenerator{answer: "Berlin is the capital of Germany."}
	o, _ := newTestOrchestrator(t, gen)

	res, err := o.Answer(context.Background(), "What is the capital of Germany?")
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if res.Source != SourceGenerated {
		t.Errorf("source = %s, want generated", res.Source)
	}
	if res.Answer != gen.answer {
		t.Errorf("answer = %q", res.Answer)
	}
	if res.Fingerprint != fingerprint.Fingerprint("What is the capital of Germany?") {
		t.Errorf("fingerprint mismatch: %s", res.Fingerprint)
	}
}

func TestAnswerServedFromCache(t *testing.T) {
	gen := &fakeGenerator{answer: "42"}
	o, _ := newTestOrchestrator(t, gen)

	if _, err := o.Answer(context.Background(), "meaning of life?"); err != nil {
		t.Fatalf("first Answer: %v", err)
	}
	res, err := o.Answer(context.Background(), "meaning of life?")
	if err != nil {
		t.Fatalf("second Answer: %v", err)
	}
	if res.Source != SourceCache {
		t.Errorf("source = %s, want cache", res.Source)
	}
	if gen.calls != 1 {
		t.Errorf("generator calls = %d, want 1", gen.calls)
	}
}

// Equivalent phrasings normalize to the same fingerprint and share an entry.
func TestAnswerSharedAcrossPhrasings(t *testing.T) {
	gen := &fakeGenerator{answer: "yes"}
	o, _ := newTestOrchestrator(t, gen)

	if _, err := o.Answer(context.Background(), "Is water wet?"); err != nil {
		t.Fatalf("Answer: %v", err)
	}
	res, err := o.Answer(context.Background(), "  is   WATER wet?  ")
	if err != nil {
		t.Fatalf("Answer variant: %v", err)
	}
	if res.Source != SourceCache {
		t.Errorf("source = %s, want cache", res.Source)
	}
	if gen.calls != 1 {
		t.Errorf("generator calls = %d, want 1", gen.calls)
	}
}

func TestAnswerEmptyQuery(t *testing.T) {
	gen := &fakeGenerator{answer: "unused"}
	o, _ := newTestOrchestrator(t, gen)

	for _, q := range []string{"", "   ", "\t\n"} {
		if _, err := o.Answer(context.Background(), q); !errors.Is(err, ErrEmptyQuery) {
			t.Errorf("Answer(%q) err = %v, want ErrEmptyQuery", q, err)
		}
	}
	if gen.calls != 0 {
		t.Errorf("generator ran for blank query")
	}
}

func TestAnswerEmptyGeneration(t *testing.T) {
	gen := &fakeGenerator{answer: "  \n "}
	o, c := newTestOrchestrator(t, gen)

	_, err := o.Answer(context.Background(), "anything there?")
	if !errors.Is(err, ErrEmptyAnswer) {
		t.Fatalf("err = %v, want ErrEmptyAnswer", err)
	}
	// A blank answer must not be cached.
	if _, ok := c.Get(fingerprint.Fingerprint("anything there?")); ok {
		t.Error("blank answer was cached")
	}
}

func TestAnswerGenerationFailureNotCached(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("model unavailable")}
	o, c := newTestOrchestrator(t, gen)

	_, err := o.Answer(context.Background(), "will this fail?")
	if err == nil {
		t.Fatal("expected error")
	}
	if gen.calls != 1 {
		t.Errorf("generator calls = %d, want exactly 1 (no retries)", gen.calls)
	}
	if _, ok := c.Get(fingerprint.Fingerprint("will this fail?")); ok {
		t.Error("failed generation left a cache entry")
	}
}

// brokenBackend fails every operation, simulating a dead cache database.
type brokenBackend struct{}

var errDown = errors.New("database is locked")

func (brokenBackend) GetCacheEntry(string) (storage.CacheEntry, error) {
	return storage.CacheEntry{}, errDown
}
func (brokenBackend) PutCacheEntry(storage.CacheEntry) error          { return errDown }
func (brokenBackend) TouchCacheEntry(string, time.Time) error         { return errDown }
func (brokenBackend) DeleteCacheEntry(string) (int, error)            { return 0, errDown }
func (brokenBackend) DeleteCacheMatching(string) (int, error)         { return 0, errDown }
func (brokenBackend) ClearCache() (int, error)                        { return 0, errDown }
func (brokenBackend) DeleteExpiredCache(time.Time) (int, error)       { return 0, errDown }
func (brokenBackend) CacheStats() (storage.CacheTableStats, error)    { return storage.CacheTableStats{}, errDown }

// TestAnswerFailOpen: with the cache database down every query still gets a
// generated answer.
func TestAnswerFailOpen(t *testing.T) {
	gen := &fakeGenerator{answer: "still works"}
	c := cache.New(brokenBackend{}, discardLogger())
	o := New(Config{Cache: c, Generator: gen, TTL: time.Hour, Logger: discardLogger()})

	for i := 0; i < 2; i++ {
		res, err := o.Answer(context.Background(), "does the cache matter?")
		if err != nil {
			t.Fatalf("Answer %d: %v", i, err)
		}
		if res.Source != SourceGenerated {
			t.Errorf("source = %s, want generated", res.Source)
		}
	}
	if gen.calls != 2 {
		t.Errorf("generator calls = %d, want 2", gen.calls)
	}
}

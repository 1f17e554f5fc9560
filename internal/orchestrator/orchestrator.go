// Package orchestrator drives the cache-or-generate answer flow.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/corpusqa/corpusqa/internal/fingerprint"
	"github.com/corpusqa/corpusqa/internal/storage"
)

var (
	// ErrEmptyQuery is returned for a query that is blank after normalization.
	ErrEmptyQuery = errors.New("empty query")
	// ErrEmptyAnswer is returned when the generator produced no usable text.
	ErrEmptyAnswer = errors.New("empty answer from generator")
)

// Source tells where an answer came from.
type Source string

const (
	SourceCache     Source = "cache"
	SourceGenerated Source = "generated"
)

// Cache is the answer cache surface. *cache.Store satisfies it.
type Cache interface {
	Get(fingerprint string) (storage.CacheEntry, bool)
	Put(fingerprint, query, answer string, ttl time.Duration)
}

// Generator produces an answer for a query. *answerer.Client satisfies it.
type Generator interface {
	Generate(ctx context.Context, query string) (string, error)
}

// Result is a resolved answer.
type Result struct {
	Answer      string `json:"answer"`
	Source      Source `json:"source"`
	Fingerprint string `json:"fingerprint"`
}

// Orchestrator answers queries, consulting the cache before the generator.
type Orchestrator struct {
	cache  Cache
	gen    Generator
	ttl    time.Duration
	logger *slog.Logger
}

// Config collects the orchestrator collaborators.
type Config struct {
	Cache     Cache
	Generator Generator
	TTL       time.Duration
	Logger    *slog.Logger
}

func New(cfg Config) *Orchestrator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		cache:  cfg.Cache,
		gen:    cfg.Generator,
		ttl:    cfg.TTL,
		logger: logger,
	}
}

// Answer resolves a query. Equivalent phrasings of the same question share a
// fingerprint, so a hit for one serves them all. On a miss the generator runs
// exactly once and its answer is cached best-effort; a generation failure is
// never retried here and never served from a stale entry.
func (o *Orchestrator) Answer(ctx context.Context, query string) (Result, error) {
	if fingerprint.Normalize(query) == "" {
		return Result{}, ErrEmptyQuery
	}
	fp := fingerprint.Fingerprint(query)

	if entry, ok := o.cache.Get(fp); ok {
		o.logger.Debug("answer served from cache", "fingerprint", fp[:8], "access_count", entry.AccessCount)
		return Result{Answer: entry.AnswerText, Source: SourceCache, Fingerprint: fp}, nil
	}

	answer, err := o.gen.Generate(ctx, query)
	if err != nil {
		return Result{}, fmt.Errorf("generate answer: %w", err)
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return Result{}, ErrEmptyAnswer
	}

	o.cache.Put(fp, query, answer, o.ttl)
	return Result{Answer: answer, Source: SourceGenerated, Fingerprint: fp}, nil
}

// Package api exposes the query, feedback and administrative surfaces over
// HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/corpusqa/corpusqa/internal/analytics"
	"github.com/corpusqa/corpusqa/internal/cache"
	"github.com/corpusqa/corpusqa/internal/feedback"
	"github.com/corpusqa/corpusqa/internal/orchestrator"
	"github.com/corpusqa/corpusqa/internal/storage"
)

const maxAskBodySize = 1 << 20 // 1MB

// Answerer resolves queries. *orchestrator.Orchestrator satisfies it.
type Answerer interface {
	Answer(ctx context.Context, query string) (orchestrator.Result, error)
}

// CacheAdmin is the administrative cache surface. *cache.Store satisfies it.
type CacheAdmin interface {
	Stats() (cache.Stats, error)
	Invalidate(sel cache.Selector) (int, error)
	SweepExpired() (int, error)
}

// FeedbackRecorder accepts votes. *feedback.Service satisfies it.
type FeedbackRecorder interface {
	Record(sub feedback.Submission) (storage.FeedbackEntry, error)
}

// Reporter builds analytics snapshots. *analytics.Aggregator satisfies it.
type Reporter interface {
	Report() (analytics.Report, error)
}

type Deps struct {
	Answerer  Answerer
	Cache     CacheAdmin
	Feedback  FeedbackRecorder
	Analytics Reporter
	Token     string // guards admin routes; empty disables auth
	Logger    *slog.Logger
}

func NewHandler(deps Deps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Get("/health", handleHealth)
	r.Post("/ask", handleAsk(deps))
	r.Post("/feedback", handleFeedback(deps))

	r.Group(func(r chi.Router) {
		if deps.Token != "" {
			r.Use(BearerAuth(deps.Token))
		}
		r.Get("/cache/stats", handleCacheStats(deps))
		r.Post("/cache/invalidate", handleCacheInvalidate(deps))
		r.Post("/cache/sweep", handleCacheSweep(deps))
		r.Get("/analytics", handleAnalytics(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type askRequest struct {
	Query string `json:"query"`
}

func handleAsk(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxAskBodySize)
		defer r.Body.Close()

		var req askRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		res, err := deps.Answerer.Answer(r.Context(), req.Query)
		switch {
		case errors.Is(err, orchestrator.ErrEmptyQuery):
			httpError(w, http.StatusBadRequest, "invalid_request_error", "query is required")
			return
		case errors.Is(err, orchestrator.ErrEmptyAnswer):
			httpError(w, http.StatusBadGateway, "api_error", "generator returned no answer")
			return
		case err != nil:
			deps.Logger.Error("answer failed", "error", err)
			httpError(w, http.StatusBadGateway, "api_error", "failed to answer: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func handleFeedback(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxAskBodySize)
		defer r.Body.Close()

		var sub feedback.Submission
		if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		entry, err := deps.Feedback.Record(sub)
		switch {
		case errors.Is(err, feedback.ErrInvalidVote), errors.Is(err, feedback.ErrMissingQuery):
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		case err != nil:
			deps.Logger.Error("record feedback failed", "error", err)
			httpError(w, http.StatusInternalServerError, "api_error", "failed to record feedback")
			return
		}
		writeJSON(w, http.StatusCreated, map[string]string{
			"id":          entry.ID,
			"fingerprint": entry.Fingerprint,
		})
	}
}

func handleCacheStats(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		stats, err := deps.Cache.Stats()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to read cache stats: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, stats)
	}
}

type invalidateRequest struct {
	Fingerprint string `json:"fingerprint"`
	Prefix      string `json:"prefix"`
	All         bool   `json:"all"`
}

func (req invalidateRequest) selector() (cache.Selector, error) {
	set := 0
	if req.Fingerprint != "" {
		set++
	}
	if req.Prefix != "" {
		set++
	}
	if req.All {
		set++
	}
	if set != 1 {
		return cache.Selector{}, errors.New("exactly one of fingerprint, prefix or all is required")
	}
	switch {
	case req.All:
		return cache.All(), nil
	case req.Fingerprint != "":
		return cache.ExactKey(req.Fingerprint), nil
	default:
		return cache.PrefixPattern(req.Prefix), nil
	}
}

func handleCacheInvalidate(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req invalidateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		sel, err := req.selector()
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}
		removed, err := deps.Cache.Invalidate(sel)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "invalidation failed: %v", err)
			return
		}
		deps.Logger.Info("cache invalidated", "removed", removed)
		writeJSON(w, http.StatusOK, map[string]int{"removed": removed})
	}
}

func handleCacheSweep(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		removed, err := deps.Cache.SweepExpired()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "sweep failed: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"removed": removed})
	}
}

func handleAnalytics(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		report, err := deps.Analytics.Report()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to build report: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, report)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

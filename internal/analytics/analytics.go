// Package analytics assembles a read-only operational report from the cache
// and feedback stores.
package analytics

import (
	"fmt"
	"time"

	"github.com/corpusqa/corpusqa/internal/cache"
	"github.com/corpusqa/corpusqa/internal/feedback"
	"github.com/corpusqa/corpusqa/internal/pipeline"
	"github.com/corpusqa/corpusqa/internal/storage"
)

// CacheSource supplies cache statistics. *cache.Store satisfies it.
type CacheSource interface {
	Stats() (cache.Stats, error)
}

// FeedbackSource supplies feedback summaries. *feedback.Service satisfies it.
type FeedbackSource interface {
	DistributionFor(fingerprint string) (feedback.Distribution, error)
	Recent(limit int) ([]storage.FeedbackEntry, error)
}

// Report is a point-in-time snapshot. Hit rate covers the current process
// only; the table-level numbers survive restarts.
type Report struct {
	GeneratedAt    time.Time               `json:"generated_at"`
	Cache          cache.Stats             `json:"cache"`
	HitRate        float64                 `json:"hit_rate"`
	Feedback       feedback.Distribution   `json:"feedback"`
	RecentFeedback []storage.FeedbackEntry `json:"recent_feedback,omitempty"`
}

// Aggregator composes reports; it holds no state of its own.
type Aggregator struct {
	cache    CacheSource
	feedback FeedbackSource
	now      func() time.Time
}

func New(cacheSrc CacheSource, feedbackSrc FeedbackSource) *Aggregator {
	return &Aggregator{cache: cacheSrc, feedback: feedbackSrc, now: time.Now}
}

// recentSample bounds the feedback excerpt included in a report.
const recentSample = 10

// Report builds a snapshot. It only reads; a report never mutates counters or
// entries.
func (a *Aggregator) Report() (Report, error) {
	stats, err := a.cache.Stats()
	if err != nil {
		return Report{}, fmt.Errorf("cache stats: %w", err)
	}
	dist, err := a.feedback.DistributionFor("")
	if err != nil {
		return Report{}, fmt.Errorf("feedback distribution: %w", err)
	}
	recent, err := a.feedback.Recent(recentSample)
	if err != nil {
		return Report{}, fmt.Errorf("recent feedback: %w", err)
	}

	r := Report{
		GeneratedAt:    a.now().UTC(),
		Cache:          stats,
		Feedback:       dist,
		RecentFeedback: recent,
	}
	if lookups := stats.Hits + stats.Misses; lookups > 0 {
		r.HitRate = float64(stats.Hits) / float64(lookups)
	}
	return r, nil
}

// StageCounts aggregates a pipeline run's outcomes by final stage. Job state
// lives only for the duration of a run, so throughput is derived from the
// outcome list rather than stored.
func StageCounts(outcomes []pipeline.Outcome) map[pipeline.Stage]int {
	counts := make(map[pipeline.Stage]int)
	for _, o := range outcomes {
		counts[o.Stage]++
	}
	return counts
}

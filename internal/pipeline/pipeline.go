// Package pipeline drives documents through ingestion: upload, text
// extraction, and index synchronization.
//
// Each document is an independent state machine; a batch run returns one
// outcome per document and a failure never aborts siblings. Every stage is
// idempotent against existing artifacts, so re-running the pipeline after a
// failure resumes from the failed stage instead of redoing completed work.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"path"

	"golang.org/x/sync/errgroup"
)

// Stage is a document's position in the ingestion lifecycle.
type Stage string

const (
	StagePending   Stage = "pending"
	StageUploaded  Stage = "uploaded"
	StageExtracted Stage = "extracted"
	StageIndexed   Stage = "indexed"
	StageFailed    Stage = "failed"
)

// Document is one unit of pipeline work. LocalPath is empty when the object
// already lives in the bucket and only extraction/indexing remain.
type Document struct {
	LocalPath string
	Key       string
}

// Outcome is the per-document result of a run. FailedAt and Err are set only
// when Stage is StageFailed.
type Outcome struct {
	DocKey     string `json:"doc_key"`
	Stage      Stage  `json:"stage"`
	FailedAt   Stage  `json:"failed_at,omitempty"`
	DerivedKey string `json:"derived_key,omitempty"`
	Err        error  `json:"-"`
	Error      string `json:"error,omitempty"`
}

// ObjectStore is the bucket surface the pipeline needs.
type ObjectStore interface {
	Stat(ctx context.Context, key string) (size int64, exists bool, err error)
	UploadFile(ctx context.Context, localPath, key string) (uploaded bool, err error)
	PutText(ctx context.Context, key, text string) error
}

// Extractor produces plain text for a document in the bucket.
type Extractor interface {
	Extract(ctx context.Context, bucket, key string) (string, error)
}

// IndexSyncer triggers (re)indexing of derived text.
type IndexSyncer interface {
	SyncIndex(ctx context.Context, sourceRef string) (string, error)
}

// Config wires a Pipeline.
type Config struct {
	Store           ObjectStore
	Extractor       Extractor
	Syncer          IndexSyncer
	Bucket          string
	ProcessedPrefix string
	// Concurrency bounds how many documents run at once; <= 0 defaults to 4.
	Concurrency int
	Logger      *slog.Logger
}

// Pipeline runs ingestion batches.
type Pipeline struct {
	store       ObjectStore
	extractor   Extractor
	syncer      IndexSyncer
	bucket      string
	processed   string
	concurrency int
	logger      *slog.Logger
}

// New creates a Pipeline from cfg.
func New(cfg Config) *Pipeline {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Pipeline{
		store:       cfg.Store,
		extractor:   cfg.Extractor,
		syncer:      cfg.Syncer,
		bucket:      cfg.Bucket,
		processed:   cfg.ProcessedPrefix,
		concurrency: cfg.Concurrency,
		logger:      cfg.Logger,
	}
}

// DerivedKey returns the well-known location of a document's extracted text.
func (p *Pipeline) DerivedKey(docKey string) string {
	return p.processed + path.Base(docKey) + ".txt"
}

// Run processes the batch and returns one outcome per document, in input
// order. Documents run concurrently up to the configured limit; cancelling
// ctx abandons in-flight stages but each document stays at its last
// confirmed-complete artifact, so a later run resumes safely.
func (p *Pipeline) Run(ctx context.Context, docs []Document) []Outcome {
	outcomes := make([]Outcome, len(docs))

	var g errgroup.Group
	g.SetLimit(p.concurrency)
	for i, doc := range docs {
		g.Go(func() error {
			outcomes[i] = p.processDocument(ctx, doc)
			return nil
		})
	}
	g.Wait()
	return outcomes
}

func (p *Pipeline) processDocument(ctx context.Context, doc Document) Outcome {
	out := Outcome{DocKey: doc.Key, Stage: StagePending, DerivedKey: p.DerivedKey(doc.Key)}

	fail := func(at Stage, err error) Outcome {
		p.logger.Warn("document failed", "key", doc.Key, "stage", at, "error", err)
		out.Stage = StageFailed
		out.FailedAt = at
		out.Err = err
		out.Error = err.Error()
		return out
	}

	// Upload. With no local source the object must already be in place.
	if doc.LocalPath != "" {
		uploaded, err := p.store.UploadFile(ctx, doc.LocalPath, doc.Key)
		if err != nil {
			return fail(StageUploaded, err)
		}
		if !uploaded {
			p.logger.Debug("upload skipped, artifact present", "key", doc.Key)
		}
	} else {
		_, exists, err := p.store.Stat(ctx, doc.Key)
		if err != nil {
			return fail(StageUploaded, err)
		}
		if !exists {
			return fail(StageUploaded, fmt.Errorf("object %s not found and no local source given", doc.Key))
		}
	}
	out.Stage = StageUploaded

	// Extract, unless the derived text already exists from an earlier run.
	_, exists, err := p.store.Stat(ctx, out.DerivedKey)
	if err != nil {
		return fail(StageExtracted, err)
	}
	if exists {
		p.logger.Debug("extraction skipped, derived text present", "key", out.DerivedKey)
	} else {
		text, err := p.extractor.Extract(ctx, p.bucket, doc.Key)
		if err != nil {
			return fail(StageExtracted, err)
		}
		if err := p.store.PutText(ctx, out.DerivedKey, text); err != nil {
			return fail(StageExtracted, err)
		}
	}
	out.Stage = StageExtracted

	// Signal the index that new derived text is available.
	if _, err := p.syncer.SyncIndex(ctx, out.DerivedKey); err != nil {
		return fail(StageIndexed, err)
	}
	out.Stage = StageIndexed

	p.logger.Info("document indexed", "key", doc.Key, "derived", out.DerivedKey)
	return out
}

// FailedCount returns how many outcomes ended in StageFailed.
func FailedCount(outcomes []Outcome) int {
	n := 0
	for _, o := range outcomes {
		if o.Stage == StageFailed {
			n++
		}
	}
	return n
}

package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/corpusqa/corpusqa/internal/answerer"
	"github.com/corpusqa/corpusqa/internal/cache"
	"github.com/corpusqa/corpusqa/internal/config"
	"github.com/corpusqa/corpusqa/internal/extract"
	"github.com/corpusqa/corpusqa/internal/feedback"
	"github.com/corpusqa/corpusqa/internal/objectstore"
	"github.com/corpusqa/corpusqa/internal/orchestrator"
	"github.com/corpusqa/corpusqa/internal/pipeline"
	"github.com/corpusqa/corpusqa/internal/storage"
)

// app holds the loaded configuration and open storage; commands build the
// services they need on top of it.
type app struct {
	cfg    config.Config
	logger *slog.Logger
	store  *storage.Store
}

func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger := newLogger(cfg.Log.Level)
	slog.SetDefault(logger)

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}
	return &app{cfg: cfg, logger: logger, store: store}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
	}
}

func newLogger(level string) *slog.Logger {
	lvl := slog.LevelInfo
	if strings.EqualFold(level, "debug") {
		lvl = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

func (a *app) cacheStore() *cache.Store {
	return cache.New(a.store, a.logger)
}

func (a *app) feedbackService() *feedback.Service {
	return feedback.New(a.store, a.cfg.Cache.FeedbackTTL, a.logger)
}

func (a *app) answererClient() *answerer.Client {
	return answerer.New(answerer.Config{
		BaseURL:      a.cfg.Answerer.BaseURL,
		IndexID:      a.cfg.Answerer.IndexID,
		DataSourceID: a.cfg.Answerer.DataSourceID,
		MaxAnswerLen: a.cfg.Answerer.MaxAnswerLen,
	}, a.logger)
}

func (a *app) orchestrator() *orchestrator.Orchestrator {
	return orchestrator.New(orchestrator.Config{
		Cache:     a.cacheStore(),
		Generator: a.answererClient(),
		TTL:       a.cfg.Cache.TTL,
		Logger:    a.logger,
	})
}

func (a *app) objectStore() (*objectstore.Store, error) {
	return objectstore.New(objectstore.Config{
		Endpoint:  a.cfg.ObjectStore.Endpoint,
		Region:    a.cfg.ObjectStore.Region,
		AccessKey: a.cfg.ObjectStore.AccessKey,
		SecretKey: a.cfg.ObjectStore.SecretKey,
		Bucket:    a.cfg.ObjectStore.Bucket,
		Secure:    a.cfg.ObjectStore.Secure,
	}, a.logger)
}

func (a *app) pipeline() (*pipeline.Pipeline, error) {
	objects, err := a.objectStore()
	if err != nil {
		return nil, fmt.Errorf("connecting to object store: %w", err)
	}
	return pipeline.New(pipeline.Config{
		Store:           objects,
		Extractor:       extract.NewClient(a.cfg.Extractor.BaseURL, a.cfg.Extractor.PollInterval, a.logger),
		Syncer:          a.answererClient(),
		Bucket:          a.cfg.ObjectStore.Bucket,
		ProcessedPrefix: a.cfg.Pipeline.ProcessedPrefix,
		Concurrency:     a.cfg.Pipeline.Concurrency,
		Logger:          a.logger,
	}), nil
}

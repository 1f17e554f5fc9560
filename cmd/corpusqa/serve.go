package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/corpusqa/corpusqa/internal/analytics"
	"github.com/corpusqa/corpusqa/internal/api"
)

// sweepInterval is how often expired cache entries and feedback are removed
// while the server runs.
const sweepInterval = time.Hour

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "corpusqa version %s\n", version)

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cacheStore := a.cacheStore()
	feedbackSvc := a.feedbackService()

	handler := api.NewHandler(api.Deps{
		Answerer:  a.orchestrator(),
		Cache:     cacheStore,
		Feedback:  feedbackSvc,
		Analytics: analytics.New(cacheStore, feedbackSvc),
		Token:     a.cfg.Server.Token,
		Logger:    a.logger,
	})

	addr := fmt.Sprintf("127.0.0.1:%d", a.cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	// Background sweeper keeps expired rows from accumulating.
	go func() {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n, err := cacheStore.SweepExpired(); err != nil {
					a.logger.Warn("cache sweep failed", "error", err)
				} else if n > 0 {
					a.logger.Info("swept expired cache entries", "removed", n)
				}
				if n, err := feedbackSvc.SweepExpired(); err != nil {
					a.logger.Warn("feedback sweep failed", "error", err)
				} else if n > 0 {
					a.logger.Info("swept expired feedback", "removed", n)
				}
			}
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("corpusqa listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// Package extract talks to the document text-extraction service.
//
// Extraction runs as an external long-running job: a document reference is
// submitted, then the job is polled until it reports a terminal state.
package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
)

// State is the extraction job lifecycle state reported by the service.
type State string

const (
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
)

// JobStatus is one poll result.
type JobStatus struct {
	State State  `json:"status"`
	Text  string `json:"text,omitempty"`
	Error string `json:"error,omitempty"`
}

// ErrJobFailed is returned when the service reports a terminal failure.
var ErrJobFailed = errors.New("extraction job failed")

// Client communicates with the extraction service over HTTP.
type Client struct {
	baseURL      string
	httpClient   *http.Client
	pollInterval time.Duration
	logger       *slog.Logger
}

// NewClient creates a Client for the given base URL. pollInterval bounds how
// often a running job is re-polled; values <= 0 default to 2s.
func NewClient(baseURL string, pollInterval time.Duration, logger *slog.Logger) *Client {
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 0, // per-request deadlines come from ctx
		},
		pollInterval: pollInterval,
		logger:       logger,
	}
}

// submitRequest is the JSON body for POST /v1/jobs.
type submitRequest struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
}

type submitResponse struct {
	JobID string `json:"job_id"`
}

// Submit starts an extraction job for the document at bucket/key.
func (c *Client) Submit(ctx context.Context, bucket, key string) (string, error) {
	body, err := json.Marshal(submitRequest{Bucket: bucket, Key: key})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/jobs", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating submit request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("submitting extraction job: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return "", fmt.Errorf("submit: unexpected status %d", resp.StatusCode)
	}

	var result submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decoding submit response: %w", err)
	}
	if result.JobID == "" {
		return "", fmt.Errorf("submit: empty job id")
	}
	return result.JobID, nil
}

// Poll fetches the current status of a job.
func (c *Client) Poll(ctx context.Context, jobID string) (JobStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/jobs/"+jobID, nil)
	if err != nil {
		return JobStatus{}, fmt.Errorf("creating poll request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return JobStatus{}, fmt.Errorf("polling job %s: %w", jobID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return JobStatus{}, fmt.Errorf("poll %s: unexpected status %d", jobID, resp.StatusCode)
	}

	var status JobStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return JobStatus{}, fmt.Errorf("decoding poll response: %w", err)
	}
	return status, nil
}

// WaitForText polls the job until it succeeds, fails, or ctx is done. Each
// poll is retried a few times with backoff to ride out transient service
// errors; the wait between polls respects cancellation.
func (c *Client) WaitForText(ctx context.Context, jobID string) (string, error) {
	for {
		var status JobStatus
		err := retry.Do(
			func() error {
				var pollErr error
				status, pollErr = c.Poll(ctx, jobID)
				return pollErr
			},
			retry.Attempts(3),
			retry.Delay(200*time.Millisecond),
			retry.Context(ctx),
			retry.LastErrorOnly(true),
		)
		if err != nil {
			if ctx.Err() != nil {
				return "", fmt.Errorf("waiting for job %s: %w", jobID, ctx.Err())
			}
			return "", err
		}

		switch status.State {
		case StateSucceeded:
			return status.Text, nil
		case StateFailed:
			return "", fmt.Errorf("%w: job %s: %s", ErrJobFailed, jobID, status.Error)
		}

		c.logger.Debug("extraction job still running", "job_id", jobID)
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("waiting for job %s: %w", jobID, ctx.Err())
		case <-time.After(c.pollInterval):
		}
	}
}

// Extract submits the document and waits for the extracted text.
func (c *Client) Extract(ctx context.Context, bucket, key string) (string, error) {
	jobID, err := c.Submit(ctx, bucket, key)
	if err != nil {
		return "", err
	}
	c.logger.Info("extraction job started", "key", key, "job_id", jobID)
	return c.WaitForText(ctx, jobID)
}

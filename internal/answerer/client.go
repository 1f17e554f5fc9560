// Package answerer talks to the index/retrieval-and-generation service.
//
// The service owns the vector index: it is told when new derived text is
// available (SyncIndex) and asked to produce grounded answers (Generate).
// Generation streams text chunks; the full stream is always collected before
// an answer is returned.
package answerer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

// Config identifies the index and data source this client drives.
type Config struct {
	BaseURL      string
	IndexID      string
	DataSourceID string
	// MaxAnswerLen caps the collected answer in bytes; 0 means no cap.
	MaxAnswerLen int
}

// ErrStream is returned when the generation stream reports an error signal.
var ErrStream = errors.New("generation stream error")

// Client communicates with the answer-generation service over HTTP.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger
}

// New creates a Client. A nil logger falls back to slog.Default().
func New(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 0, // deadlines come from ctx; generation can be slow
		},
		logger: logger,
	}
}

type syncRequest struct {
	Source string `json:"source,omitempty"`
}

type syncResponse struct {
	JobID string `json:"job_id"`
}

// SyncIndex signals that new derived text is available under sourceRef and
// triggers (re)indexing. The returned job id is informational; the ingestion
// job runs on the service side.
func (c *Client) SyncIndex(ctx context.Context, sourceRef string) (string, error) {
	body, err := json.Marshal(syncRequest{Source: sourceRef})
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s/v1/indexes/%s/datasources/%s/sync", c.cfg.BaseURL, c.cfg.IndexID, c.cfg.DataSourceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating sync request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("starting index sync: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return "", fmt.Errorf("sync: unexpected status %d", resp.StatusCode)
	}

	var result syncResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decoding sync response: %w", err)
	}
	c.logger.Info("index sync started", "index_id", c.cfg.IndexID, "job_id", result.JobID)
	return result.JobID, nil
}

// generateRequest is the JSON body for POST /v1/answer.
type generateRequest struct {
	Query   string `json:"query"`
	IndexID string `json:"index_id"`
}

// streamChunk is one line of the streamed generation response.
type streamChunk struct {
	Text  string `json:"text,omitempty"`
	Done  bool   `json:"done,omitempty"`
	Error string `json:"error,omitempty"`
}

// Generate asks the service for a grounded answer and collects the full
// chunk stream before returning. The answer is capped at MaxAnswerLen bytes
// when configured; the stream is still drained to its completion signal.
func (c *Client) Generate(ctx context.Context, query string) (string, error) {
	body, err := json.Marshal(generateRequest{Query: query, IndexID: c.cfg.IndexID})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/v1/answer", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating answer request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("answer request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("answer: unexpected status %d", resp.StatusCode)
	}

	var answer strings.Builder
	dec := json.NewDecoder(resp.Body)
	for {
		var ch streamChunk
		if err := dec.Decode(&ch); err == io.EOF {
			break
		} else if err != nil {
			return "", fmt.Errorf("reading answer stream: %w", err)
		}
		if ch.Error != "" {
			return "", fmt.Errorf("%w: %s", ErrStream, ch.Error)
		}
		if ch.Done {
			break
		}
		if c.cfg.MaxAnswerLen <= 0 || answer.Len() < c.cfg.MaxAnswerLen {
			answer.WriteString(ch.Text)
		}
	}

	text := answer.String()
	if c.cfg.MaxAnswerLen > 0 && len(text) > c.cfg.MaxAnswerLen {
		text = text[:c.cfg.MaxAnswerLen]
	}
	return strings.TrimSpace(text), nil
}

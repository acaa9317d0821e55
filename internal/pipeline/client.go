// Package pipeline talks to the backend AI workflow service that classifies
// rooms and extracts assets and takeoffs from uploaded documents.
package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"costseg/pkg/apperror"
)

type ClientOptions struct {
	BaseURL    string
	HTTPClient *http.Client
}

// Client is a thin wrapper over the workflow HTTP API. Any non-2xx response
// becomes an ExternalServiceError carrying the status code and raw body.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(opts ClientOptions) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		return nil, apperror.ErrNotConfigured
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{baseURL: baseURL, httpClient: httpClient}, nil
}

// StartRequest kicks off the full analysis pipeline for a study.
type StartRequest struct {
	StudyID     string   `json:"study_id"`
	StudyDocIDs []string `json:"study_doc_ids"`
}

// RunResponse is returned by start/resume/stage calls.
type RunResponse struct {
	Status             string   `json:"status"`
	CurrentStage       string   `json:"current_stage"`
	NeedsReview        bool     `json:"needs_review"`
	ItemsNeedingReview []string `json:"items_needing_review"`
	Message            string   `json:"message"`
}

// StatusResponse reports pipeline progress for one study.
type StatusResponse struct {
	CurrentStage         string   `json:"current_stage"`
	RoomsCount           int      `json:"rooms_count"`
	ObjectsCount         int      `json:"objects_count"`
	ClassificationsCount int      `json:"classifications_count"`
	NeedsReview          bool     `json:"needs_review"`
	ItemsNeedingReview   []string `json:"items_needing_review"`
}

func (c *Client) StartWorkflow(ctx context.Context, req StartRequest) (*RunResponse, error) {
	var out RunResponse
	if err := c.do(ctx, http.MethodPost, "/workflow/start", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ResumeWorkflow(ctx context.Context, req StartRequest) (*RunResponse, error) {
	var out RunResponse
	if err := c.do(ctx, http.MethodPost, "/workflow/resume", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RunStage executes a single named pipeline stage.
func (c *Client) RunStage(ctx context.Context, stage string, req StartRequest) (*RunResponse, error) {
	var out RunResponse
	if err := c.do(ctx, http.MethodPost, "/workflow/stage/"+stage, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Status(ctx context.Context, studyID string) (*StatusResponse, error) {
	var out StatusResponse
	if err := c.do(ctx, http.MethodGet, "/workflow/"+studyID+"/status", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Evidence returns the raw classification evidence payload for review UIs.
func (c *Client) Evidence(ctx context.Context, studyID string) (json.RawMessage, error) {
	var out json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/workflow/"+studyID+"/evidence", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil)
}

// PollClassification polls Status at a fixed interval until the pipeline
// leaves the room-analysis stage or maxAttempts is reached. Exhausting the
// attempts is not an error: the last observed status is returned and the
// caller keeps its own background polling.
func (c *Client) PollClassification(ctx context.Context, studyID string, interval time.Duration, maxAttempts int) (*StatusResponse, error) {
	var last *StatusResponse
	for attempt := 0; attempt < maxAttempts; attempt++ {
		status, err := c.Status(ctx, studyID)
		if err == nil {
			last = status
			if status.CurrentStage != "" && status.CurrentStage != "analyzing_rooms" {
				return last, nil
			}
		}
		select {
		case <-ctx.Done():
			return last, ctx.Err()
		case <-time.After(interval):
		}
	}
	return last, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("workflow api: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &apperror.ExternalServiceError{
			Service:    "workflow api",
			StatusCode: resp.StatusCode,
			Body:       string(raw),
		}
	}
	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

package video

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"reelgen/internal/infra"
)

// ErrMissingAPIKey indicates that the client was configured without credentials.
var ErrMissingAPIKey = errors.New("video: api key is required")

// Options configures the HTTP provider client.
type Options struct {
	APIKey         string
	BaseURL        string
	HTTPClient     *http.Client
	Logger         *infra.Logger
	RequestTimeout time.Duration
}

// HTTPClient performs HTTP calls against the video-generation provider and
// normalizes its wire variants into TaskStatus.
type HTTPClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *infra.Logger
	timeout    time.Duration
}

// NewHTTPClient constructs a client with sane defaults and injected dependencies.
func NewHTTPClient(opts Options) (*HTTPClient, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, ErrMissingAPIKey
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		return nil, errors.New("video: base url is required")
	}
	return &HTTPClient{
		apiKey:     opts.APIKey,
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     opts.Logger,
		timeout:    timeout,
	}, nil
}

type dispatchPayload struct {
	Model  string         `json:"model"`
	Input  dispatchInput  `json:"input"`
	Config dispatchConfig `json:"config"`
}

type dispatchInput struct {
	Prompt    string   `json:"prompt"`
	ImageURLs []string `json:"image_urls,omitempty"`
}

type dispatchConfig struct {
	AspectRatio string `json:"aspect_ratio,omitempty"`
	Duration    int    `json:"duration"`
	RiskHint    string `json:"risk_hint,omitempty"`
	TierHint    string `json:"tier_hint,omitempty"`
	WebhookID   string `json:"webhook_id,omitempty"`
}

type errorEnvelope struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Dispatch submits one generation call and returns the provider task handle.
func (c *HTTPClient) Dispatch(ctx context.Context, req DispatchRequest) (string, error) {
	payload := dispatchPayload{
		Model: req.BackendName,
		Input: dispatchInput{Prompt: req.Script, ImageURLs: req.ImageURLs},
		Config: dispatchConfig{
			AspectRatio: req.AspectRatio,
			Duration:    req.Seconds,
			RiskHint:    req.RiskHint,
			TierHint:    req.TierHint,
		},
	}
	var task wireTask
	if err := c.do(ctx, http.MethodPost, "/tasks", req.RequestID, payload, &task); err != nil {
		return "", err
	}
	if task.id() == "" {
		return "", errors.New("video: provider accepted task but returned no task id")
	}
	return task.id(), nil
}

// PollStatus fetches the task and normalizes whatever wire shape comes back.
func (c *HTTPClient) PollStatus(ctx context.Context, taskID string) (TaskStatus, error) {
	if strings.TrimSpace(taskID) == "" {
		return TaskStatus{}, errors.New("video: task id is required")
	}
	var task wireTask
	if err := c.do(ctx, http.MethodGet, "/tasks/"+url.PathEscape(taskID), "", nil, &task); err != nil {
		return TaskStatus{}, err
	}
	if task.legacy() && c.logger != nil {
		c.logger.Debug().Str("task_id", taskID).Msg("provider answered with legacy numeric status shape")
	}
	return task.normalize()
}

func (c *HTTPClient) do(ctx context.Context, method, path, requestID string, payload, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("video: encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("video: build request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	if payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if requestID != "" {
		httpReq.Header.Set("X-Request-ID", requestID)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("video: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("video: read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var envelope errorEnvelope
		if json.Unmarshal(raw, &envelope) == nil && envelope.Message != "" {
			return fmt.Errorf("video: provider error %d (%s): %s", resp.StatusCode, envelope.Code, envelope.Message)
		}
		return fmt.Errorf("video: provider error %d", resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("video: decode response: %w", err)
	}
	return nil
}

var _ Client = (*HTTPClient)(nil)

// Package script wraps the LLM-backed script generator consumed by the
// batch orchestrator.
package script

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Request describes the content a script should be written for.
type Request struct {
	Title       string
	Description string
	Style       string
	Seconds     int
}

// Client generates a narration script for one batch item.
type Client interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// Options configures the HTTP script-generator client.
type Options struct {
	APIKey     string
	BaseURL    string
	Model      string
	HTTPClient *http.Client
}

// HTTPClient calls the script-generation service.
type HTTPClient struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

// NewHTTPClient constructs a script client.
func NewHTTPClient(opts Options) (*HTTPClient, error) {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		return nil, errors.New("script: base url is required")
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 45 * time.Second}
	}
	model := opts.Model
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &HTTPClient{apiKey: opts.APIKey, baseURL: baseURL, model: model, httpClient: httpClient}, nil
}

type chatPayload struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Generate writes a short-form video script for the given content.
func (c *HTTPClient) Generate(ctx context.Context, req Request) (string, error) {
	if strings.TrimSpace(req.Title) == "" {
		return "", errors.New("script: title is required")
	}
	payload := chatPayload{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt(req)},
		},
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("script: encode request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("script: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("script: generate: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("script: read response: %w", err)
	}
	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("script: decode response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		if parsed.Error.Message != "" {
			return "", fmt.Errorf("script: service error %d: %s", resp.StatusCode, parsed.Error.Message)
		}
		return "", fmt.Errorf("script: service error %d", resp.StatusCode)
	}
	if len(parsed.Choices) == 0 || strings.TrimSpace(parsed.Choices[0].Message.Content) == "" {
		return "", errors.New("script: service returned no script")
	}
	return strings.TrimSpace(parsed.Choices[0].Message.Content), nil
}

const systemPrompt = "You write tight voice-over scripts for short-form product videos. " +
	"Plain spoken language, no camera directions, no hashtags."

func userPrompt(req Request) string {
	return fmt.Sprintf(
		"Write a %d second %s-style script for this content.\nTitle: %s\nDescription: %s",
		req.Seconds, req.Style, req.Title, req.Description,
	)
}

var _ Client = (*HTTPClient)(nil)

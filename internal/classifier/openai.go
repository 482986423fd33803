package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// OpenAIConfig describes one OpenAI-compatible chat-completions backend.
// Multiple backends with the same endpoint but different models represent
// the quota/quality tiers the gateway falls through.
type OpenAIConfig struct {
	Name     string
	Endpoint string
	Model    string
	APIKey   string
	Timeout  time.Duration
}

// OpenAIBackend implements Backend against any OpenAI-compatible API.
type OpenAIBackend struct {
	cfg        OpenAIConfig
	httpClient *http.Client
}

var _ Backend = (*OpenAIBackend)(nil)

// NewOpenAIBackend builds a backend from configuration.
func NewOpenAIBackend(cfg OpenAIConfig) *OpenAIBackend {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &OpenAIBackend{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Name identifies the backend in logs and metrics.
func (b *OpenAIBackend) Name() string {
	if b.cfg.Name != "" {
		return b.cfg.Name
	}
	return b.cfg.Model
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Complete posts the prompt as a single user message and returns the first
// choice's content verbatim.
func (b *OpenAIBackend) Complete(ctx context.Context, prompt string) (string, error) {
	if b.cfg.Endpoint == "" || b.cfg.Model == "" {
		return "", fmt.Errorf("backend %s misconfigured", b.Name())
	}

	body, err := json.Marshal(chatRequest{
		Model:    b.cfg.Model,
		Messages: []chatMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", fmt.Errorf("marshal chat payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if b.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+b.cfg.APIKey)
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("post completion: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("backend %s error %s: %s",
			b.Name(), resp.Status, strings.TrimSpace(string(detail)))
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode completion: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("backend %s returned no choices", b.Name())
	}
	return parsed.Choices[0].Message.Content, nil
}

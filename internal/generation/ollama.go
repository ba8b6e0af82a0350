package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const (
	defaultModel   = "llama3.2"
	defaultTimeout = 120 * time.Second
)

// OllamaClient requests completions from an Ollama server. Generation is the
// longest external call in the system, so the timeout is generous but always
// bounded.
type OllamaClient struct {
	baseURL     string
	model       string
	temperature float64
	contextSize int
	timeout     time.Duration
	client      *http.Client
}

// OllamaConfig configures the generation client.
type OllamaConfig struct {
	BaseURL     string
	Model       string
	Temperature float64
	ContextSize int
	Timeout     time.Duration
}

// NewOllamaClient creates a generation client for the given config.
func NewOllamaClient(cfg OllamaConfig) *OllamaClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:11434"
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.7
	}
	if cfg.ContextSize == 0 {
		cfg.ContextSize = 4096
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &OllamaClient{
		baseURL:     cfg.BaseURL,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		contextSize: cfg.ContextSize,
		timeout:     cfg.Timeout,
		client:      &http.Client{},
	}
}

// Generate returns the model's reply for prompt. Any transport or service
// failure surfaces as ErrUnavailable.
func (c *OllamaClient) Generate(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(map[string]interface{}{
		"model":  c.model,
		"prompt": prompt,
		"stream": false,
		"options": map[string]interface{}{
			"temperature": c.temperature,
			"num_ctx":     c.contextSize,
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshal generation request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build generation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("%w: server returned %s", ErrUnavailable, resp.Status)
	}

	var out struct {
		Response string `json:"response"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: malformed response: %v", ErrUnavailable, err)
	}
	return out.Response, nil
}

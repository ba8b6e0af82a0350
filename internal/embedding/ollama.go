package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const (
	defaultModel   = "nomic-embed-text"
	defaultTimeout = 30 * time.Second
)

// OllamaClient requests embeddings from an Ollama server. Every call carries a
// bounded timeout so a stalled service fails the operation instead of hanging
// the store's writer. Identical texts are served from an LRU cache.
type OllamaClient struct {
	baseURL    string
	model      string
	dimensions int
	timeout    time.Duration
	client     *http.Client
	cache      *Cache
}

// OllamaConfig configures the embedding client. Dimensions is required and must
// match the model's output; the client rejects anything else before it can reach
// the index.
type OllamaConfig struct {
	BaseURL    string
	Model      string
	Dimensions int
	Timeout    time.Duration
	CacheSize  int
}

// NewOllamaClient creates an embedding client for the given config.
func NewOllamaClient(cfg OllamaConfig) (*OllamaClient, error) {
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("embedding dimensions must be positive, got %d", cfg.Dimensions)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:11434"
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	var cache *Cache
	if cfg.CacheSize > 0 {
		cache = NewCache(cfg.CacheSize)
	}
	return &OllamaClient{
		baseURL:    cfg.BaseURL,
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		timeout:    cfg.Timeout,
		client:     &http.Client{},
		cache:      cache,
	}, nil
}

// Embed returns the embedding for text. Service errors, timeouts, non-2xx
// responses, and wrong-dimension vectors all surface as ErrUnavailable.
func (c *OllamaClient) Embed(ctx context.Context, text string) ([]float32, error) {
	if c.cache != nil {
		if vec, ok := c.cache.Get(text); ok {
			return vec, nil
		}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(map[string]string{
		"model":  c.model,
		"prompt": text,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal embedding request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: server returned %s", ErrUnavailable, resp.Status)
	}

	var out struct {
		Embedding []float64 `json:"embedding"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: malformed response: %v", ErrUnavailable, err)
	}
	if len(out.Embedding) != c.dimensions {
		return nil, fmt.Errorf("%w: returned vector of dimension %d, expected %d",
			ErrUnavailable, len(out.Embedding), c.dimensions)
	}

	vec := make([]float32, c.dimensions)
	for i, v := range out.Embedding {
		vec[i] = float32(v)
	}
	if c.cache != nil {
		c.cache.Set(text, vec)
	}
	return vec, nil
}

// Dimensions returns the configured embedding dimension.
func (c *OllamaClient) Dimensions() int {
	return c.dimensions
}

// Close is a no-op for the HTTP client.
func (c *OllamaClient) Close() error {
	return nil
}

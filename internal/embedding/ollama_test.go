package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func embeddingServer(t *testing.T, dimensions int, calls *atomic.Int64) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls != nil {
			calls.Add(1)
		}
		if r.URL.Path != "/api/embeddings" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req struct {
			Model  string `json:"model"`
			Prompt string `json:"prompt"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Model == "" || req.Prompt == "" {
			t.Errorf("request missing fields: %+v", req)
		}
		vec := make([]float64, dimensions)
		for i := range vec {
			vec[i] = float64(i) + 0.5
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"embedding": vec})
	}))
}

func TestOllamaEmbed(t *testing.T) {
	srv := embeddingServer(t, 4, nil)
	defer srv.Close()

	client, err := NewOllamaClient(OllamaConfig{BaseURL: srv.URL, Model: "test-model", Dimensions: 4})
	if err != nil {
		t.Fatal(err)
	}
	vec, err := client.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if len(vec) != 4 {
		t.Fatalf("got %d dimensions, want 4", len(vec))
	}
	if vec[0] != 0.5 || vec[3] != 3.5 {
		t.Errorf("unexpected vector %v", vec)
	}
}

func TestOllamaEmbedCaches(t *testing.T) {
	var calls atomic.Int64
	srv := embeddingServer(t, 4, &calls)
	defer srv.Close()

	client, err := NewOllamaClient(OllamaConfig{BaseURL: srv.URL, Dimensions: 4, CacheSize: 10})
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		if _, err := client.Embed(context.Background(), "same text"); err != nil {
			t.Fatal(err)
		}
	}
	if calls.Load() != 1 {
		t.Errorf("server called %d times, want 1 (cache hit)", calls.Load())
	}
}

func TestOllamaEmbedServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client, err := NewOllamaClient(OllamaConfig{BaseURL: srv.URL, Dimensions: 4})
	if err != nil {
		t.Fatal(err)
	}
	_, err = client.Embed(context.Background(), "hello")
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("error = %v, want ErrUnavailable", err)
	}
}

func TestOllamaEmbedWrongDimension(t *testing.T) {
	srv := embeddingServer(t, 3, nil)
	defer srv.Close()

	client, err := NewOllamaClient(OllamaConfig{BaseURL: srv.URL, Dimensions: 4})
	if err != nil {
		t.Fatal(err)
	}
	_, err = client.Embed(context.Background(), "hello")
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("error = %v, want ErrUnavailable", err)
	}
}

func TestOllamaEmbedUnreachable(t *testing.T) {
	client, err := NewOllamaClient(OllamaConfig{BaseURL: "http://127.0.0.1:1", Dimensions: 4})
	if err != nil {
		t.Fatal(err)
	}
	_, err = client.Embed(context.Background(), "hello")
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("error = %v, want ErrUnavailable", err)
	}
}

func TestNewOllamaClientRequiresDimensions(t *testing.T) {
	if _, err := NewOllamaClient(OllamaConfig{}); err == nil {
		t.Error("expected error for zero dimensions")
	}
	if _, err := NewOllamaClient(OllamaConfig{Dimensions: -1}); err == nil {
		t.Error("expected error for negative dimensions")
	}
}

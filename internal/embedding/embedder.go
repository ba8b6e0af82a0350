// Package embedding provides the client for the external embedding service,
// with caching and a deterministic mock for tests.
package embedding

import (
	"context"
	"errors"
)

// ErrUnavailable is returned when the embedding service cannot be reached,
// errors, times out, or returns a vector of the wrong dimension. Callers treat
// it as transient: a store is rejected with no state change, a retrieval
// degrades to empty results.
var ErrUnavailable = errors.New("embedding service unavailable")

// Embedder produces fixed-dimension vector embeddings for text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
	Close() error
}

// Package generation provides the client for the external text generation service.
package generation

import (
	"context"
	"errors"
)

// ErrUnavailable is returned when the generation service errors, times out, or
// returns a malformed response. The chat layer substitutes a degraded textual
// reply instead of surfacing it to the user.
var ErrUnavailable = errors.New("generation service unavailable")

// Generator produces a free-text reply for an assembled prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

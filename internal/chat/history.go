// Package chat orchestrates retrieval-augmented conversation: it pulls context
// documents from the store, assembles the prompt, calls the generation service,
// and keeps a bounded rolling history.
package chat

import (
	"sync"

	"github.com/hyperjump/kioku/internal/models"
)

// DefaultHistorySize is the number of turns kept in the rolling window.
const DefaultHistorySize = 10

// History is a bounded rolling window of conversation turns. When full, the
// oldest turn is evicted.
type History struct {
	mu       sync.Mutex
	turns    []models.ConversationTurn
	capacity int
}

// NewHistory creates a history holding up to capacity turns.
func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = DefaultHistorySize
	}
	return &History{capacity: capacity}
}

// Append adds a turn, evicting the oldest when the window is full.
func (h *History) Append(role, content string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.turns = append(h.turns, models.ConversationTurn{Role: role, Content: content})
	if len(h.turns) > h.capacity {
		h.turns = h.turns[len(h.turns)-h.capacity:]
	}
}

// Turns returns a copy of the current window, oldest first.
func (h *History) Turns() []models.ConversationTurn {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]models.ConversationTurn, len(h.turns))
	copy(out, h.turns)
	return out
}

// Len returns the number of turns in the window.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.turns)
}

package chat

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/kioku/internal/generation"
	"github.com/hyperjump/kioku/internal/models"
)

const degradedReply = "I'm having trouble reaching my language model right now. Please try again in a moment."

// Retriever is the slice of the document store the chat service consumes.
type Retriever interface {
	Retrieve(ctx context.Context, query string, topK int) []models.RetrievedDocument
}

// Service answers chat messages with retrieval-augmented generation.
type Service struct {
	retriever Retriever
	generator generation.Generator
	history   *History
	topK      int
	logger    *zap.Logger
}

// NewService creates a chat service. topK controls how many context documents
// are retrieved per message.
func NewService(retriever Retriever, generator generation.Generator, historySize, topK int, logger *zap.Logger) *Service {
	if topK <= 0 {
		topK = 3
	}
	return &Service{
		retriever: retriever,
		generator: generator,
		history:   NewHistory(historySize),
		topK:      topK,
		logger:    logger,
	}
}

// Chat answers message using retrieved context and the rolling history.
// Retrieval degradation yields an empty-context prompt; generation failure
// yields a degraded textual reply. Neither becomes an error for the caller.
func (s *Service) Chat(ctx context.Context, message string) (*models.ChatReply, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, fmt.Errorf("empty message")
	}
	s.history.Append(models.RoleUser, message)

	docs := s.retriever.Retrieve(ctx, message, s.topK)
	prompt := BuildPrompt(message, docs, s.history.Turns())

	reply := &models.ChatReply{}
	text, err := s.generator.Generate(ctx, prompt)
	if err != nil {
		s.logger.Warn("generation failed, substituting degraded reply", zap.Error(err))
		text = degradedReply
		reply.Degraded = true
	}
	reply.Reply = Polish(text)

	for _, doc := range docs {
		reply.Sources = append(reply.Sources, doc.ID)
		reply.Timestamps = append(reply.Timestamps, doc.Timestamp)
	}
	s.history.Append(models.RoleAssistant, reply.Reply)
	return reply, nil
}

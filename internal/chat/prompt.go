package chat

import (
	"fmt"
	"strings"

	"github.com/hyperjump/kioku/internal/models"
)

const systemPrompt = `You are a friendly and helpful AI assistant. Be warm, polite, and conversational while providing accurate information.
If you reference documents, mention which ones you're using. Keep responses concise but helpful.`

// BuildPrompt assembles the generation prompt from the query, the retrieved
// context documents, and the conversation history.
func BuildPrompt(query string, docs []models.RetrievedDocument, history []models.ConversationTurn) string {
	var context strings.Builder
	for _, doc := range docs {
		fmt.Fprintf(&context, "Document %s:\n%s\n----\n", doc.ID, doc.Text)
	}
	contextText := context.String()
	if contextText == "" {
		contextText = "No specific documents found"
	}

	var historyText strings.Builder
	for _, turn := range history {
		fmt.Fprintf(&historyText, "%s: %s\n", turn.Role, turn.Content)
	}

	return fmt.Sprintf(`System: %s

Context Documents:
%s

Conversation History:
%s
User Query: %s

Guidelines:
1. Respond conversationally using "I" and "you"
2. If using documents, mention relevant ones briefly
3. Keep responses under 3 sentences unless more is needed
4. Be polite and helpful
5. If unsure, say so but still try to help

Assistant Response:`, systemPrompt, contextText, historyText.String(), query)
}

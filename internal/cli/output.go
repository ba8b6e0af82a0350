// Package cli provides output formatting for the kioku CLI.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/hyperjump/kioku/internal/models"
)

// OutputFormat is the format for CLI result output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseFormat maps a flag value to an OutputFormat.
func ParseFormat(s string) (OutputFormat, error) {
	switch s {
	case "", "text":
		return OutputText, nil
	case "json":
		return OutputJSON, nil
	default:
		return "", fmt.Errorf("unknown output format %q; use text or json", s)
	}
}

// WriteRetrieveResults writes retrieval results to w in the given format.
func WriteRetrieveResults(w io.Writer, response *models.RetrieveResponse, format OutputFormat) error {
	if format == OutputJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(response)
	}
	if len(response.Results) == 0 {
		fmt.Fprintln(w, "No documents found")
		return nil
	}
	fmt.Fprintf(w, "\nFound %d documents\n\n", len(response.Results))
	for i, result := range response.Results {
		fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
		fmt.Fprintf(w, "Rank: %d | Score: %.4f\n", i+1, result.Score)
		fmt.Fprintf(w, "ID: %s | Stored: %s\n", result.ID, result.Timestamp.Format(time.RFC3339))
		fmt.Fprintf(w, "\n%s\n\n", result.Excerpt)
	}
	return nil
}

// WriteChatReply writes a chat reply to w in the given format.
func WriteChatReply(w io.Writer, reply *models.ChatReply, format OutputFormat) error {
	if format == OutputJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(reply)
	}
	fmt.Fprintf(w, "\n%s\n", reply.Reply)
	if len(reply.Sources) > 0 {
		fmt.Fprintf(w, "\nSources:\n")
		for i, src := range reply.Sources {
			fmt.Fprintf(w, "  %s (stored %s)\n", src, reply.Timestamps[i].Format(time.RFC3339))
		}
	}
	return nil
}

package chat

import "strings"

var phrasingRewrites = strings.NewReplacer(
	"the document states that", "according to the information",
	"as per the document", "based on what I found",
)

// Polish cleans up a generated reply: strips markup asterisks, rewrites stilted
// document references, and ensures terminal punctuation.
func Polish(reply string) string {
	reply = strings.ReplaceAll(reply, "*", "")
	reply = phrasingRewrites.Replace(reply)
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return reply
	}
	if !strings.HasSuffix(reply, ".") && !strings.HasSuffix(reply, "!") && !strings.HasSuffix(reply, "?") {
		reply += "."
	}
	return reply
}

// Package llmtext holds small text-shaping helpers shared by every
// call site that asks an LLM for a single JSON object back.
package llmtext

import "strings"

// StripCodeFence removes a leading/trailing ```json or ``` fence from
// text, the common way a chat model wraps JSON output despite being
// asked not to. Text without a fence is returned trimmed and
// unmodified.
func StripCodeFence(text string) string {
	t := strings.TrimSpace(text)
	if strings.HasPrefix(t, "```") {
		t = strings.TrimPrefix(t, "```json")
		t = strings.TrimPrefix(t, "```")
		t = strings.TrimSuffix(t, "```")
		t = strings.TrimSpace(t)
	}
	return t
}

// Package watcher manages the watcher registry: LLM-expanded
// paraphrases for a watcher's seed query prototype, invoked by the
// out-of-scope watcher-management CLI (port/in.WatcherAdminService),
// not by the streaming stages.
package watcher

import (
	"context"

	"github.com/goccy/go-json"

	"github.com/kodelabs/mailrouter/core/port/out"
	"github.com/kodelabs/mailrouter/pkg/llmtext"
)

const expandSystemPrompt = `You generate paraphrases of a short search-intent query for use as
semantic-similarity prototypes. Return exactly one JSON object:
{"paraphrases": [string, ...]}. Each paraphrase should express the same intent
in different words; do not repeat the original query verbatim.`

type expandResponse struct {
	Paraphrases []string `json:"paraphrases"`
}

// Expander generates LLM-expanded paraphrases of a watcher's seed
// query via a structured-JSON completion call.
type Expander struct {
	LLM   out.LLMClient
	Model string
}

// ExpandPrototypes returns up to n paraphrases of seedQuery, not
// including the seed itself.
func (e *Expander) ExpandPrototypes(ctx context.Context, seedQuery string, n int) ([]string, error) {
	prompt := "Seed query: " + seedQuery
	text, err := e.LLM.Complete(ctx, expandSystemPrompt, prompt, e.Model)
	if err != nil {
		return nil, err
	}

	candidate := llmtext.StripCodeFence(text)

	var resp expandResponse
	if err := json.Unmarshal([]byte(candidate), &resp); err != nil {
		return nil, err
	}
	paraphrases := make([]string, 0, len(resp.Paraphrases))
	for _, p := range resp.Paraphrases {
		if p != seedQuery {
			paraphrases = append(paraphrases, p)
		}
	}
	if len(paraphrases) > n {
		paraphrases = paraphrases[:n]
	}
	return paraphrases, nil
}

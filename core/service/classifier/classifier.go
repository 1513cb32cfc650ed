// Package classifier produces structured
// extraction under the schema implied by the matched watcher.
package classifier

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"github.com/kodelabs/mailrouter/core/port/out"
	"github.com/kodelabs/mailrouter/pkg/apperr"
	"github.com/kodelabs/mailrouter/pkg/llmtext"
	"github.com/kodelabs/mailrouter/pkg/logger"
)

// PublishConfidenceFloor is the confidence threshold of the publish
// rule.
const PublishConfidenceFloor = 0.7

// BodyPromptCeiling bounds the body slice given to the prompt.
const BodyPromptCeiling = 2000

type Service struct {
	llm    out.LLMClient
	model  string
	broker out.Broker
	log    *logger.Logger
}

func NewService(llm out.LLMClient, model string, broker out.Broker) *Service {
	return &Service{llm: llm, model: model, broker: broker, log: logger.Default().WithField("component", "classifier")}
}

type llmResponse struct {
	Class         string         `json:"class"`
	Confidence    float64        `json:"confidence"`
	ExtractedData map[string]any `json:"extracted_data"`
}

const classifierSystemPrompt = `You extract structured data from one email under a user-declared watcher's
intent. Return exactly one JSON object: {"class": string, "confidence": float,
"extracted_data": object}. class should equal the watcher name unless you have
strong reason to override it. extracted_data is watcher-defined and may be {}
when nothing is extractable from the email. Do not wrap the JSON in prose.`

// HandleRouted implements port/in.ClassifierService for one
// emails.to_classify.v1 message.
func (s *Service) HandleRouted(ctx context.Context, fields map[string]string) error {
	traceID := fields["trace_id"]
	watcherName := fields["filter_watcher_name"]

	prompt := buildPrompt(fields)
	text, err := s.llm.Complete(ctx, classifierSystemPrompt, prompt, s.model)
	if err != nil {
		s.log.WithField("trace_id", traceID).Warn("LLM unreachable, skipping: %v", err)
		return nil
	}

	resp, ok := parseResponse(text)
	if !ok {
		s.log.WithField("trace_id", traceID).Warn("malformed classifier JSON, skipping")
		return nil
	}

	if resp.Class == "" && watcherName != "" {
		resp.Class = watcherName
	}

	if !shouldPublish(watcherName, resp) {
		s.log.WithField("trace_id", traceID).Warn("classifier result did not clear publish rule, skipping")
		return nil
	}

	extractedJSON, err := json.Marshal(resp.ExtractedData)
	if err != nil {
		extractedJSON = []byte("{}")
	}

	outFields := map[string]string{
		"trace_id":       traceID,
		"mailbox_id":     fields["mailbox_id"],
		"idemp_key":      fields["idemp_key"],
		"body_hash":      fields["body_hash"],
		"subject":        fields["subject"],
		"external_id":    fields["external_id"],
		"received_ts":    fields["received_ts"],
		"class":          resp.Class,
		"confidence":     strconv.FormatFloat(resp.Confidence, 'f', -1, 64),
		"watcher_id":     fields["filter_watcher_id"],
		"extracted_data": string(extractedJSON),
	}
	if _, err := s.broker.Append(ctx, out.StreamEmailsClassifd, outFields); err != nil {
		return apperr.Transient("broker.append", err)
	}
	s.log.WithField("trace_id", traceID).WithField("idemp_key", fields["idemp_key"]).Info("classified as %s", resp.Class)
	return nil
}

// shouldPublish implements the publish rule: any of watcher
// name provided, confidence >= floor, or non-empty extracted_data —
// but never publishes a classification with an empty class, since
// resp.Class is only backfilled from watcherName when the LLM left it
// blank, not when watcherName itself is missing.
func shouldPublish(watcherName string, resp llmResponse) bool {
	if resp.Class == "" {
		return false
	}
	return watcherName != "" || resp.Confidence >= PublishConfidenceFloor || len(resp.ExtractedData) > 0
}

func buildPrompt(fields map[string]string) string {
	body := fields["text_content"]
	r := []rune(body)
	if len(r) > BodyPromptCeiling {
		body = string(r[:BodyPromptCeiling])
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Watcher name: %s\n", fields["filter_watcher_name"])
	fmt.Fprintf(&b, "Watcher query: %s\n", fields["filter_query_text"])
	fmt.Fprintf(&b, "From: %s\n", fields["from"])
	fmt.Fprintf(&b, "Subject: %s\n", fields["subject"])
	fmt.Fprintf(&b, "Body:\n%s\n", body)
	return b.String()
}

// parseResponse extracts JSON via a code-fence stripper followed by a
// direct-parse fallback, matching the LLM collaborator contract.
func parseResponse(text string) (llmResponse, bool) {
	candidate := llmtext.StripCodeFence(text)
	var resp llmResponse
	if err := json.Unmarshal([]byte(candidate), &resp); err != nil {
		return llmResponse{}, false
	}
	return resp, true
}

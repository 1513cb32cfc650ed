package classifier

import (
	"context"
	"testing"

	"github.com/kodelabs/mailrouter/core/port/out"
)

type fakeLLM struct {
	response string
	err      error
}

func (f *fakeLLM) Complete(ctx context.Context, systemPrompt, userPrompt, model string) (string, error) {
	return f.response, f.err
}

type fakeBroker struct {
	appended []map[string]string
}

func (f *fakeBroker) Append(ctx context.Context, stream string, fields map[string]string) (string, error) {
	f.appended = append(f.appended, fields)
	return "1-0", nil
}
func (f *fakeBroker) CreateGroup(ctx context.Context, stream, group string) error { return nil }
func (f *fakeBroker) ReadGroup(ctx context.Context, group, consumer string, streams []string, count int64, blockMS int64) ([]out.StreamBatch, error) {
	return nil, nil
}
func (f *fakeBroker) Ack(ctx context.Context, stream, group, id string) error { return nil }
func (f *fakeBroker) Pending(ctx context.Context, stream, group string, minIdle int64, count int64) ([]out.PendingEntry, error) {
	return nil, nil
}
func (f *fakeBroker) Claim(ctx context.Context, stream, group, consumer string, minIdle int64, ids []string) ([]out.StreamMessage, error) {
	return nil, nil
}

func baseFields() map[string]string {
	return map[string]string{
		"trace_id": "t1", "mailbox_id": "m1", "idemp_key": "k1",
		"subject": "Your Netflix receipt", "external_id": "e1", "received_ts": "1000",
		"text_content": "amount $15.99", "filter_watcher_name": "Billing", "filter_query_text": "invoice, payment, receipt",
	}
}

func TestHandleRoutedPublishesOnWatcherName(t *testing.T) {
	broker := &fakeBroker{}
	llm := &fakeLLM{response: `{"class":"","confidence":0.2,"extracted_data":{}}`}
	svc := NewService(llm, "model", broker)

	if err := svc.HandleRouted(context.Background(), baseFields()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(broker.appended) != 1 {
		t.Fatalf("expected publish (watcher name alone satisfies the rule), got %d", len(broker.appended))
	}
	if broker.appended[0]["class"] != "Billing" {
		t.Errorf("expected class overwritten with watcher name, got %q", broker.appended[0]["class"])
	}
}

func TestHandleRoutedSkipsOnMalformedJSON(t *testing.T) {
	broker := &fakeBroker{}
	llm := &fakeLLM{response: "not json at all"}
	svc := NewService(llm, "model", broker)

	if err := svc.HandleRouted(context.Background(), baseFields()); err != nil {
		t.Fatalf("expected ack (nil error) on malformed JSON, got %v", err)
	}
	if len(broker.appended) != 0 {
		t.Fatalf("expected no publish on malformed JSON, got %d", len(broker.appended))
	}
}

func TestHandleRoutedSkipsOnEmptyResponse(t *testing.T) {
	broker := &fakeBroker{}
	llm := &fakeLLM{response: ""}
	svc := NewService(llm, "model", broker)

	if err := svc.HandleRouted(context.Background(), baseFields()); err != nil {
		t.Fatalf("expected ack on empty response, got %v", err)
	}
	if len(broker.appended) != 0 {
		t.Fatalf("expected no publish on empty response, got %d", len(broker.appended))
	}
}

func TestHandleRoutedSkipsOnLLMError(t *testing.T) {
	broker := &fakeBroker{}
	llm := &fakeLLM{err: context.DeadlineExceeded}
	svc := NewService(llm, "model", broker)

	if err := svc.HandleRouted(context.Background(), baseFields()); err != nil {
		t.Fatalf("expected ack (no surfaced classified event) on LLM error, got %v", err)
	}
	if len(broker.appended) != 0 {
		t.Fatalf("expected no publish on LLM error, got %d", len(broker.appended))
	}
}

func TestHandleRoutedStripsCodeFence(t *testing.T) {
	broker := &fakeBroker{}
	llm := &fakeLLM{response: "```json\n{\"class\":\"Billing\",\"confidence\":0.91,\"extracted_data\":{\"vendor\":\"Netflix\"}}\n```"}
	svc := NewService(llm, "model", broker)

	if err := svc.HandleRouted(context.Background(), baseFields()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(broker.appended) != 1 {
		t.Fatalf("expected one publish, got %d", len(broker.appended))
	}
	if broker.appended[0]["confidence"] != "0.91" {
		t.Errorf("expected confidence 0.91, got %q", broker.appended[0]["confidence"])
	}
}

func TestHandleRoutedSkipsOnEmptyClassEvenWithHighConfidence(t *testing.T) {
	broker := &fakeBroker{}
	llm := &fakeLLM{response: `{"class":"","confidence":0.95,"extracted_data":{"vendor":"Netflix"}}`}
	fields := baseFields()
	fields["filter_watcher_name"] = ""
	svc := NewService(llm, "model", broker)

	if err := svc.HandleRouted(context.Background(), fields); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(broker.appended) != 0 {
		t.Fatalf("expected no publish with an empty class, got %d", len(broker.appended))
	}
}

func TestHandleRoutedSkipsWhenPublishRuleFails(t *testing.T) {
	broker := &fakeBroker{}
	llm := &fakeLLM{response: `{"class":"","confidence":0.1,"extracted_data":{}}`}
	fields := baseFields()
	fields["filter_watcher_name"] = ""
	svc := NewService(llm, "model", broker)

	if err := svc.HandleRouted(context.Background(), fields); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(broker.appended) != 0 {
		t.Fatalf("expected no publish when no watcher, low confidence, and empty extracted_data, got %d", len(broker.appended))
	}
}

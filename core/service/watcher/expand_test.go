package watcher

import (
	"context"
	"testing"
)

type fakeLLM struct {
	response string
}

func (f *fakeLLM) Complete(ctx context.Context, systemPrompt, userPrompt, model string) (string, error) {
	return f.response, nil
}

func TestExpandPrototypesParsesCodeFencedJSON(t *testing.T) {
	llm := &fakeLLM{response: "```json\n{\"paraphrases\": [\"billing statement\", \"payment receipt\", \"invoice notice\"]}\n```"}
	e := &Expander{LLM: llm, Model: "model"}

	got, err := e.ExpandPrototypes(context.Background(), "invoice", 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected truncation to n=2, got %d: %v", len(got), got)
	}
}

func TestExpandPrototypesParsesDirectJSON(t *testing.T) {
	llm := &fakeLLM{response: `{"paraphrases": ["flight confirmation"]}`}
	e := &Expander{LLM: llm, Model: "model"}

	got, err := e.ExpandPrototypes(context.Background(), "flights", 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0] != "flight confirmation" {
		t.Fatalf("unexpected result: %v", got)
	}
}

func TestExpandPrototypesMalformedJSONErrors(t *testing.T) {
	llm := &fakeLLM{response: "not json"}
	e := &Expander{LLM: llm, Model: "model"}

	if _, err := e.ExpandPrototypes(context.Background(), "invoice", 2); err == nil {
		t.Fatal("expected an error for malformed JSON")
	}
}

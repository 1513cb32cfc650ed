package llmtext

import "testing"

func TestStripCodeFenceRemovesJSONFence(t *testing.T) {
	in := "```json\n{\"a\":1}\n```"
	got := StripCodeFence(in)
	if got != `{"a":1}` {
		t.Errorf("got %q", got)
	}
}

func TestStripCodeFenceRemovesBareFence(t *testing.T) {
	in := "```\n{\"a\":1}\n```"
	got := StripCodeFence(in)
	if got != `{"a":1}` {
		t.Errorf("got %q", got)
	}
}

func TestStripCodeFenceLeavesUnfencedTextAlone(t *testing.T) {
	in := "  {\"a\":1}  "
	got := StripCodeFence(in)
	if got != `{"a":1}` {
		t.Errorf("got %q", got)
	}
}

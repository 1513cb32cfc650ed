package poller

import (
	"context"
	"testing"

	"github.com/kodelabs/mailrouter/pkg/llmtext"
)

func TestAlwaysPassGatePasses(t *testing.T) {
	g := AlwaysPassGate{}
	pass, err := g.Pass(context.Background(), "a@b.com", "hi")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !pass {
		t.Fatal("expected AlwaysPassGate to always pass")
	}
}

func TestSubjectGateCacheKeyDistinguishesInputs(t *testing.T) {
	k1 := subjectGateCacheKey("alice@gmail.com", "Your receipt")
	k2 := subjectGateCacheKey("bob@gmail.com", "Your receipt")
	k3 := subjectGateCacheKey("alice@gmail.com", "Different subject")
	if k1 == k2 || k1 == k3 || k2 == k3 {
		t.Fatalf("expected distinct cache keys, got %q %q %q", k1, k2, k3)
	}
}

func TestSubjectGateCacheKeyDeterministic(t *testing.T) {
	k1 := subjectGateCacheKey("alice@gmail.com", "Your receipt")
	k2 := subjectGateCacheKey("alice@gmail.com", "Your receipt")
	if k1 != k2 {
		t.Fatalf("expected deterministic key, got %q and %q", k1, k2)
	}
}

func TestSubjectGateStripsCodeFenceViaSharedHelper(t *testing.T) {
	got := llmtext.StripCodeFence("```json\n{\"is_subscription\": true}\n```")
	if got != `{"is_subscription": true}` {
		t.Fatalf("unexpected extraction: %q", got)
	}
}

func TestSubjectGatePassesThroughDirectJSON(t *testing.T) {
	got := llmtext.StripCodeFence(`{"is_subscription": false}`)
	if got != `{"is_subscription": false}` {
		t.Fatalf("unexpected extraction: %q", got)
	}
}

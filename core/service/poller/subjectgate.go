package poller

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/goccy/go-json"

	"github.com/kodelabs/mailrouter/core/port/out"
	"github.com/kodelabs/mailrouter/pkg/cache"
	"github.com/kodelabs/mailrouter/pkg/llmtext"
)

// SubjectGate is a pluggable predicate answering the question:
// decide, from (from, subject) alone, whether a fetched candidate is
// worth publishing into the pipeline. Exposed as an interface with a trivial
// always-pass default and an LLM-backed option, selected by
// SUBJECT_GATE_ENABLED.
type SubjectGate interface {
	Pass(ctx context.Context, from, subject string) (bool, error)
}

// AlwaysPassGate is the trivial default — used when the gate is
// configured off.
type AlwaysPassGate struct{}

func (AlwaysPassGate) Pass(ctx context.Context, from, subject string) (bool, error) {
	return true, nil
}

// subjectGateResponse is the JSON shape the subject-gate prompt
// instructs the model to return.
type subjectGateResponse struct {
	IsSubscription bool    `json:"is_subscription"`
	Confidence     float64 `json:"confidence"`
}

const subjectGateSystemPrompt = `You classify email senders and subject lines only, with no body text.
Return exactly one JSON object: {"is_subscription": bool, "confidence": float}.
is_subscription is true when the sender/subject pattern looks like automated
promotional or transactional mail (newsletters, receipts, shipping notices,
billing statements) rather than a personal one-to-one message.`

// LLMSubjectGate publishes iff is_subscription && confidence >= 0.7,
// a cost gate cheaper than pulling full bodies into
// the pipeline for manifestly irrelevant promotional traffic.
type LLMSubjectGate struct {
	LLM   out.LLMClient
	Model string
}

const subjectGatePassThreshold = 0.7

func (g *LLMSubjectGate) Pass(ctx context.Context, from, subject string) (bool, error) {
	prompt := "From: " + from + "\nSubject: " + subject
	text, err := g.LLM.Complete(ctx, subjectGateSystemPrompt, prompt, g.Model)
	if err != nil {
		return false, err
	}

	var resp subjectGateResponse
	if err := json.Unmarshal([]byte(llmtext.StripCodeFence(text)), &resp); err != nil {
		return false, err
	}
	return resp.IsSubscription && resp.Confidence >= subjectGatePassThreshold, nil
}

// CachingSubjectGate wraps another gate with a Redis-backed read-through
// cache keyed on the (from, subject) pair: subscription senders resend
// near-identical subject lines on a recurring cadence, so repeat
// candidates from the same sender/subject pattern skip the LLM call
// entirely for the life of the cache entry.
type CachingSubjectGate struct {
	Inner SubjectGate
	Cache *cache.RedisCache
	TTL   time.Duration
}

// DefaultSubjectGateCacheTTL bounds how long a gate decision is reused
// before the underlying LLM is consulted again.
const DefaultSubjectGateCacheTTL = 24 * time.Hour

type subjectGateCacheEntry struct {
	Pass bool `json:"pass"`
}

func (g *CachingSubjectGate) Pass(ctx context.Context, from, subject string) (bool, error) {
	ttl := g.TTL
	if ttl <= 0 {
		ttl = DefaultSubjectGateCacheTTL
	}
	key := "subjectgate:" + subjectGateCacheKey(from, subject)

	var entry subjectGateCacheEntry
	if hit, err := g.Cache.GetJSON(ctx, key, &entry); err == nil && hit {
		return entry.Pass, nil
	}

	pass, err := g.Inner.Pass(ctx, from, subject)
	if err != nil {
		return false, err
	}
	_ = g.Cache.SetJSON(ctx, key, subjectGateCacheEntry{Pass: pass}, ttl)
	return pass, nil
}

func subjectGateCacheKey(from, subject string) string {
	sum := sha256.Sum256([]byte(from + "\x00" + subject))
	return hex.EncodeToString(sum[:])
}

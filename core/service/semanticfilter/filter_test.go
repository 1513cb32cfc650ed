package semanticfilter

import (
	"context"
	"testing"

	"github.com/kodelabs/mailrouter/core/domain"
	"github.com/kodelabs/mailrouter/core/port/out"
)

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

type fakeCache struct {
	stored map[string][]float32
	gets   int
}

func cacheKey(mailboxID, bodyHash string) string { return mailboxID + "|" + bodyHash }

func (f *fakeCache) Get(ctx context.Context, mailboxID, bodyHash string) ([]float32, bool, error) {
	f.gets++
	v, ok := f.stored[cacheKey(mailboxID, bodyHash)]
	return v, ok, nil
}
func (f *fakeCache) Upsert(ctx context.Context, row domain.EmbeddingCacheRow) error {
	if f.stored == nil {
		f.stored = make(map[string][]float32)
	}
	f.stored[cacheKey(row.MailboxID, row.BodyHash)] = row.EmailEmbedding
	return nil
}

type fakeEmbedder struct {
	calls int
	vec   []float32
}

func (f *fakeEmbedder) Embed(ctx context.Context, texts []string, model string) ([][]float32, error) {
	f.calls++
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = f.vec
	}
	return out, nil
}

type fakeWatchers struct {
	matches []domain.WatcherMatch
}

func (f *fakeWatchers) ActiveByMailbox(ctx context.Context, mailboxID string) ([]domain.Watcher, error) {
	return nil, nil
}
func (f *fakeWatchers) Create(ctx context.Context, w domain.Watcher) error          { return nil }
func (f *fakeWatchers) Deactivate(ctx context.Context, watcherID string) error      { return nil }
func (f *fakeWatchers) AddPrototype(ctx context.Context, p domain.WatcherPrototype) error { return nil }
func (f *fakeWatchers) MatchQueries(ctx context.Context, mailboxID string, embedding []float32, k int) ([]domain.WatcherMatch, error) {
	return f.matches, nil
}

func TestHandleNormalizedDropsShortText(t *testing.T) {
	broker := &fakeBroker{}
	svc := NewService(Config{}, broker, &fakeCache{}, &fakeEmbedder{}, &fakeWatchers{}, "model")

	err := svc.HandleNormalized(context.Background(), map[string]string{
		"trace_id": "t1", "subject": "hi", "text_content": "short",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(broker.appended) != 0 {
		t.Fatalf("expected no publish for short text, got %d", len(broker.appended))
	}
}

func TestHandleNormalizedRoutesAboveThreshold(t *testing.T) {
	broker := &fakeBroker{}
	watchers := &fakeWatchers{matches: []domain.WatcherMatch{
		{WatcherID: "w1", WatcherName: "Billing", WatcherThreshold: 0.7, QueryID: "q1", QueryText: "invoice", CosineDistance: 0.2},
	}}
	svc := NewService(Config{}, broker, &fakeCache{}, &fakeEmbedder{vec: []float32{0.1, 0.2}}, watchers, "model")

	longText := "this email mentions an invoice and a payment receipt for services rendered"
	err := svc.HandleNormalized(context.Background(), map[string]string{
		"trace_id": "t1", "mailbox_id": "m1", "body_hash": "h1",
		"subject": "Your receipt", "text_content": longText,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(broker.appended) != 1 {
		t.Fatalf("expected one publish, got %d", len(broker.appended))
	}
	if broker.appended[0]["filter_watcher_name"] != "Billing" {
		t.Errorf("expected watcher name Billing, got %q", broker.appended[0]["filter_watcher_name"])
	}
}

func TestHandleNormalizedDropsBelowThreshold(t *testing.T) {
	broker := &fakeBroker{}
	watchers := &fakeWatchers{matches: []domain.WatcherMatch{
		{WatcherID: "w1", WatcherName: "Flights", WatcherThreshold: 0.8, CosineDistance: 0.5},
	}}
	svc := NewService(Config{}, broker, &fakeCache{}, &fakeEmbedder{vec: []float32{0.1}}, watchers, "model")

	longText := "a generic newsletter about unrelated promotional content for readers everywhere"
	err := svc.HandleNormalized(context.Background(), map[string]string{
		"trace_id": "t1", "mailbox_id": "m1", "body_hash": "h1",
		"subject": "Newsletter", "text_content": longText,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(broker.appended) != 0 {
		t.Fatalf("expected drop below threshold, got %d publishes", len(broker.appended))
	}
}

func TestHandleNormalizedThresholdEqualRoutes(t *testing.T) {
	broker := &fakeBroker{}
	watchers := &fakeWatchers{matches: []domain.WatcherMatch{
		{WatcherID: "w1", WatcherName: "Billing", WatcherThreshold: 0.7, CosineDistance: 0.3},
	}}
	svc := NewService(Config{}, broker, &fakeCache{}, &fakeEmbedder{vec: []float32{0.1}}, watchers, "model")

	longText := "invoice payment receipt amount due fifteen dollars and ninety nine cents total"
	err := svc.HandleNormalized(context.Background(), map[string]string{
		"trace_id": "t1", "mailbox_id": "m1", "body_hash": "h1",
		"subject": "Receipt", "text_content": longText,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(broker.appended) != 1 {
		t.Fatalf("expected similarity == threshold to route (>=, not >), got %d publishes", len(broker.appended))
	}
}

func TestResolveEmbeddingCacheOnlyDropsOnMiss(t *testing.T) {
	broker := &fakeBroker{}
	embedder := &fakeEmbedder{vec: []float32{0.1}}
	svc := NewService(Config{CacheOnly: true}, broker, &fakeCache{}, embedder, &fakeWatchers{}, "model")

	longText := "content that is long enough to pass the forty character signal floor check"
	err := svc.HandleNormalized(context.Background(), map[string]string{
		"trace_id": "t1", "mailbox_id": "m1", "body_hash": "missing",
		"subject": "x", "text_content": longText,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if embedder.calls != 0 {
		t.Fatalf("expected no embedding-service call under CACHE_ONLY, got %d calls", embedder.calls)
	}
	if len(broker.appended) != 0 {
		t.Fatalf("expected drop on cache miss under CACHE_ONLY, got %d publishes", len(broker.appended))
	}
}

func TestResolveEmbeddingCacheHitSkipsEmbedder(t *testing.T) {
	broker := &fakeBroker{}
	embedder := &fakeEmbedder{vec: []float32{9, 9}}
	cache := &fakeCache{stored: map[string][]float32{cacheKey("m1", "h1"): {0.5, 0.5}}}
	watchers := &fakeWatchers{matches: []domain.WatcherMatch{
		{WatcherID: "w1", WatcherName: "Billing", WatcherThreshold: 0.1, CosineDistance: 0.05},
	}}
	svc := NewService(Config{}, broker, cache, embedder, watchers, "model")

	longText := "content that is long enough to pass the forty character signal floor check"
	err := svc.HandleNormalized(context.Background(), map[string]string{
		"trace_id": "t1", "mailbox_id": "m1", "body_hash": "h1",
		"subject": "x", "text_content": longText,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if embedder.calls != 0 {
		t.Fatalf("expected cache hit to skip embedder, got %d calls", embedder.calls)
	}
	if len(broker.appended) != 1 {
		t.Fatalf("expected one publish on cache hit, got %d", len(broker.appended))
	}
}

package watcher

import (
	"context"
	"testing"

	"github.com/kodelabs/mailrouter/core/domain"
)

type fakeWatcherRepo struct {
	created    []domain.Watcher
	prototypes []domain.WatcherPrototype
	deactivated []string
}

func (f *fakeWatcherRepo) ActiveByMailbox(ctx context.Context, mailboxID string) ([]domain.Watcher, error) {
	return f.created, nil
}
func (f *fakeWatcherRepo) Create(ctx context.Context, w domain.Watcher) error {
	f.created = append(f.created, w)
	return nil
}
func (f *fakeWatcherRepo) Deactivate(ctx context.Context, watcherID string) error {
	f.deactivated = append(f.deactivated, watcherID)
	return nil
}
func (f *fakeWatcherRepo) AddPrototype(ctx context.Context, p domain.WatcherPrototype) error {
	f.prototypes = append(f.prototypes, p)
	return nil
}
func (f *fakeWatcherRepo) MatchQueries(ctx context.Context, mailboxID string, embedding []float32, k int) ([]domain.WatcherMatch, error) {
	return nil, nil
}

type fakeEmbedder struct {
	vectors map[string][]float32
}

func (f *fakeEmbedder) Embed(ctx context.Context, texts []string, model string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = f.vectors[t]
	}
	return out, nil
}

func TestCreateWatcherPersistsSeedAndAssignsID(t *testing.T) {
	repo := &fakeWatcherRepo{}
	embedder := &fakeEmbedder{vectors: map[string][]float32{"invoice, payment, receipt": {0.1, 0.2}}}
	svc := NewAdminService(repo, embedder, nil, "text-embedding-3-small")

	w, err := svc.CreateWatcher(context.Background(), "alice@gmail.com", "Billing", "invoice, payment, receipt", 0.7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if w.ID == "" {
		t.Fatal("expected a non-empty watcher id")
	}
	if len(repo.created) != 1 {
		t.Fatalf("expected one watcher created, got %d", len(repo.created))
	}
	if repo.created[0].Threshold != 0.7 {
		t.Errorf("expected threshold 0.7, got %v", repo.created[0].Threshold)
	}
}

func TestCreateWatcherDefaultsThreshold(t *testing.T) {
	repo := &fakeWatcherRepo{}
	embedder := &fakeEmbedder{vectors: map[string][]float32{"flights": {0.3}}}
	svc := NewAdminService(repo, embedder, nil, "model")

	w, err := svc.CreateWatcher(context.Background(), "alice@gmail.com", "Flights", "flights", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if w.Threshold != domain.DefaultWatcherThreshold {
		t.Errorf("expected default threshold %v, got %v", domain.DefaultWatcherThreshold, w.Threshold)
	}
}

func TestDeactivateWatcher(t *testing.T) {
	repo := &fakeWatcherRepo{}
	svc := NewAdminService(repo, &fakeEmbedder{}, nil, "model")

	if err := svc.DeactivateWatcher(context.Background(), "w1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(repo.deactivated) != 1 || repo.deactivated[0] != "w1" {
		t.Fatalf("expected w1 to be deactivated, got %v", repo.deactivated)
	}
}

package watcher

import (
	"context"

	"github.com/google/uuid"

	"github.com/kodelabs/mailrouter/core/domain"
	in "github.com/kodelabs/mailrouter/core/port/in"
	"github.com/kodelabs/mailrouter/core/port/out"
)

// ParaphraseCount is how many LLM-expanded paraphrases a newly created
// watcher gets beyond its seed prototype.
const ParaphraseCount = 4

// AdminService implements port/in.WatcherAdminService: the backing
// interface for the out-of-scope watcher-management CLI.
// No transport is wired to it here; it exists so the watcher
// registry's write path — seed embedding, paraphrase expansion,
// soft-delete deactivation — is exercised by tests without inventing
// a wire format.
type AdminService struct {
	watchers out.WatcherRepository
	embedder out.EmbeddingClient
	expander *Expander
	embedModel string
}

func NewAdminService(watchers out.WatcherRepository, embedder out.EmbeddingClient, expander *Expander, embedModel string) *AdminService {
	return &AdminService{watchers: watchers, embedder: embedder, expander: expander, embedModel: embedModel}
}

var _ in.WatcherAdminService = (*AdminService)(nil)

// CreateWatcher embeds the seed query, persists the watcher plus seed
// prototype, then best-effort expands and persists paraphrase
// prototypes. A paraphrase-expansion failure does not fail watcher
// creation — the watcher is still usable with only its seed prototype.
func (s *AdminService) CreateWatcher(ctx context.Context, mailboxID, name, queryText string, threshold float64) (domain.Watcher, error) {
	if threshold == 0 {
		threshold = domain.DefaultWatcherThreshold
	}

	vectors, err := s.embedder.Embed(ctx, []string{queryText}, s.embedModel)
	if err != nil {
		return domain.Watcher{}, err
	}
	var seedEmbedding []float32
	if len(vectors) > 0 {
		seedEmbedding = vectors[0]
	}

	w := domain.Watcher{
		ID:             uuid.NewString(),
		MailboxID:      mailboxID,
		Name:           name,
		QueryText:      queryText,
		QueryEmbedding: seedEmbedding,
		Threshold:      threshold,
		IsActive:       true,
	}
	if err := s.watchers.Create(ctx, w); err != nil {
		return domain.Watcher{}, err
	}

	if s.expander != nil {
		if paraphrases, err := s.expander.ExpandPrototypes(ctx, queryText, ParaphraseCount); err == nil {
			s.addParaphrasePrototypes(ctx, w, paraphrases)
		}
	}

	return w, nil
}

func (s *AdminService) addParaphrasePrototypes(ctx context.Context, w domain.Watcher, paraphrases []string) {
	if len(paraphrases) == 0 {
		return
	}
	texts := make([]string, len(paraphrases))
	copy(texts, paraphrases)
	vectors, err := s.embedder.Embed(ctx, texts, s.embedModel)
	if err != nil {
		return
	}
	for i, text := range paraphrases {
		if i >= len(vectors) {
			break
		}
		_ = s.watchers.AddPrototype(ctx, domain.WatcherPrototype{
			WatcherID:      w.ID,
			QueryText:      text,
			QueryEmbedding: vectors[i],
		})
	}
}

func (s *AdminService) DeactivateWatcher(ctx context.Context, watcherID string) error {
	return s.watchers.Deactivate(ctx, watcherID)
}

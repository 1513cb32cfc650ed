package persistence

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kodelabs/mailrouter/core/domain"
)

// WatcherAdapter implements out.WatcherRepository: the watcher
// registry plus its per-watcher prototype table, fronted by pgxpool so
// MatchQueries can run pgvector's <=> cosine-distance operator.
type WatcherAdapter struct {
	db *pgxpool.Pool
}

func NewWatcherAdapter(db *pgxpool.Pool) *WatcherAdapter {
	return &WatcherAdapter{db: db}
}

func (a *WatcherAdapter) ActiveByMailbox(ctx context.Context, mailboxID string) ([]domain.Watcher, error) {
	rows, err := a.db.Query(ctx, `
		SELECT id, mailbox_id, name, query_text, threshold, is_active, created_at
		FROM watchers WHERE mailbox_id = $1 AND is_active = TRUE`, mailboxID)
	if err != nil {
		return nil, fmt.Errorf("watchers.active_by_mailbox: %w", err)
	}
	defer rows.Close()

	var watchers []domain.Watcher
	for rows.Next() {
		var w domain.Watcher
		if err := rows.Scan(&w.ID, &w.MailboxID, &w.Name, &w.QueryText, &w.Threshold, &w.IsActive, &w.CreatedAt); err != nil {
			return nil, fmt.Errorf("watchers.scan: %w", err)
		}
		watchers = append(watchers, w)
	}
	return watchers, rows.Err()
}

// Create inserts a watcher and its seed prototype in one transaction,
// so a watcher always owns at least one prototype: the seed.
func (a *WatcherAdapter) Create(ctx context.Context, w domain.Watcher) error {
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	if w.Threshold == 0 {
		w.Threshold = domain.DefaultWatcherThreshold
	}

	tx, err := a.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("watchers.create.begin: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO watchers (id, mailbox_id, name, query_text, query_embedding, threshold, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, TRUE, NOW())`,
		w.ID, w.MailboxID, w.Name, w.QueryText, pgVector(w.QueryEmbedding), w.Threshold)
	if err != nil {
		return fmt.Errorf("watchers.create: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO watcher_query_prototypes (watcher_id, query_id, query_text, query_embedding)
		VALUES ($1, $2, $3, $4)`,
		w.ID, uuid.NewString(), w.QueryText, pgVector(w.QueryEmbedding))
	if err != nil {
		return fmt.Errorf("watchers.create.seed_prototype: %w", err)
	}

	return tx.Commit(ctx)
}

// Deactivate is a soft delete: watchers are never
// removed, only flagged is_active = false.
func (a *WatcherAdapter) Deactivate(ctx context.Context, watcherID string) error {
	_, err := a.db.Exec(ctx, `UPDATE watchers SET is_active = FALSE WHERE id = $1`, watcherID)
	if err != nil {
		return fmt.Errorf("watchers.deactivate: %w", err)
	}
	return nil
}

// AddPrototype appends an LLM-expanded paraphrase prototype to an
// existing watcher, part of the LLM-driven query expansion
// feature.
func (a *WatcherAdapter) AddPrototype(ctx context.Context, p domain.WatcherPrototype) error {
	if p.QueryID == "" {
		p.QueryID = uuid.NewString()
	}
	_, err := a.db.Exec(ctx, `
		INSERT INTO watcher_query_prototypes (watcher_id, query_id, query_text, query_embedding)
		VALUES ($1, $2, $3, $4)`,
		p.WatcherID, p.QueryID, p.QueryText, pgVector(p.QueryEmbedding))
	if err != nil {
		return fmt.Errorf("watchers.add_prototype: %w", err)
	}
	return nil
}

// MatchQueries implements the match_watcher_queries stored
// procedure as a plain query: top-K prototypes for mailboxID's active
// watchers by ascending cosine distance, joined back to their owning
// watcher for its name/threshold.
func (a *WatcherAdapter) MatchQueries(ctx context.Context, mailboxID string, embedding []float32, k int) ([]domain.WatcherMatch, error) {
	const query = `
		SELECT w.id, w.name, w.threshold, p.query_id, p.query_text,
			   p.query_embedding <=> $1 AS cosine_distance
		FROM watcher_query_prototypes p
		JOIN watchers w ON w.id = p.watcher_id
		WHERE w.mailbox_id = $2 AND w.is_active = TRUE
		ORDER BY p.query_embedding <=> $1
		LIMIT $3`

	rows, err := a.db.Query(ctx, query, pgVector(embedding), mailboxID, k)
	if err != nil {
		return nil, fmt.Errorf("watchers.match_queries: %w", err)
	}
	defer rows.Close()

	var matches []domain.WatcherMatch
	for rows.Next() {
		var m domain.WatcherMatch
		if err := rows.Scan(&m.WatcherID, &m.WatcherName, &m.WatcherThreshold, &m.QueryID, &m.QueryText, &m.CosineDistance); err != nil {
			return nil, fmt.Errorf("watchers.match_queries.scan: %w", err)
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

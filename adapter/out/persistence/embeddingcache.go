package persistence

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kodelabs/mailrouter/core/domain"
)

// EmbeddingCacheAdapter implements out.EmbeddingCacheRepository over a
// write-through embedding_cache table keyed by (mailbox_id,
// body_hash), using pgxpool for its pgvector column.
type EmbeddingCacheAdapter struct {
	db *pgxpool.Pool
}

func NewEmbeddingCacheAdapter(db *pgxpool.Pool) *EmbeddingCacheAdapter {
	return &EmbeddingCacheAdapter{db: db}
}

func (a *EmbeddingCacheAdapter) Get(ctx context.Context, mailboxID, bodyHash string) ([]float32, bool, error) {
	var vec []float32
	err := a.db.QueryRow(ctx, `
		SELECT email_embedding FROM embedding_cache WHERE mailbox_id = $1 AND body_hash = $2`,
		mailboxID, bodyHash,
	).Scan(&vec)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("embedding_cache.get: %w", err)
	}
	return vec, true, nil
}

// Upsert is pure deduplication: identical
// (mailbox_id, body_hash) always holds an identical vector, so a
// conflict is a no-op rather than an overwrite.
func (a *EmbeddingCacheAdapter) Upsert(ctx context.Context, row domain.EmbeddingCacheRow) error {
	_, err := a.db.Exec(ctx, `
		INSERT INTO embedding_cache (mailbox_id, body_hash, email_embedding)
		VALUES ($1, $2, $3)
		ON CONFLICT (mailbox_id, body_hash) DO NOTHING`,
		row.MailboxID, row.BodyHash, pgVector(row.EmailEmbedding))
	if err != nil {
		return fmt.Errorf("embedding_cache.upsert: %w", err)
	}
	return nil
}

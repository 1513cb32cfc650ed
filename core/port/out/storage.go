package out

import (
	"context"

	"github.com/kodelabs/mailrouter/core/domain"
)

// ScanStateRepository is the per-mailbox scan-state manager: a
// simple key-value helper with an auto-inserting get.
type ScanStateRepository interface {
	// Get returns the mailbox's scan status, auto-inserting a zeroed
	// row on first access.
	Get(ctx context.Context, mailboxID string) (domain.MailboxScanStatus, error)
	// Update advances last_scan_uid; it does not touch
	// initial_scan_completed.
	Update(ctx context.Context, mailboxID string, lastUID uint64) error
	// Complete marks the initial scan done and carries forward
	// last_scan_uid. One-way: once true, stays true.
	Complete(ctx context.Context, mailboxID string, lastUID uint64) error
}

// WatcherRepository is the read-mostly watcher registry.
type WatcherRepository interface {
	ActiveByMailbox(ctx context.Context, mailboxID string) ([]domain.Watcher, error)
	Create(ctx context.Context, w domain.Watcher) error
	Deactivate(ctx context.Context, watcherID string) error
	AddPrototype(ctx context.Context, p domain.WatcherPrototype) error
	// MatchQueries is the match_watcher_queries stored procedure of
	// Returns the top-K prototypes by ascending cosine distance.
	MatchQueries(ctx context.Context, mailboxID string, embedding []float32, k int) ([]domain.WatcherMatch, error)
}

// EmbeddingCacheRepository fronts the write-through embedding cache
// keyed by (mailbox_id, body_hash).
type EmbeddingCacheRepository interface {
	Get(ctx context.Context, mailboxID, bodyHash string) ([]float32, bool, error)
	Upsert(ctx context.Context, row domain.EmbeddingCacheRow) error
}

// MessageRepository is the persisted-message upsert surface of
// keyed by idemp_key.
type MessageRepository interface {
	// Upsert creates or updates the row, returning its id.
	Upsert(ctx context.Context, row domain.MessageRow) (int64, error)
	// ListByMailbox backs the out-of-scope reporting surface's
	// message listing (port/in.QueryService), most-recent first.
	ListByMailbox(ctx context.Context, mailboxID string, limit int) ([]domain.MessageRow, error)
}

// ClassificationRepository is the persisted-classification upsert
// surface, keyed by message_id.
type ClassificationRepository interface {
	Upsert(ctx context.Context, row domain.ClassificationRow) error
	// ListByMessageID backs the out-of-scope reporting surface's
	// classification listing (port/in.QueryService).
	ListByMessageID(ctx context.Context, messageID int64) ([]domain.ClassificationRow, error)
}

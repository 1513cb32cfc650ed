package in

import (
	"context"

	"github.com/kodelabs/mailrouter/core/domain"
)

// WatcherAdminService backs the out-of-scope watcher-management CLI
// for the out-of-scope watcher-management surface: create and deactivate watchers. No transport is
// implemented for it; it exists so the watcher registry's write path
// is exercised by unit tests without inventing a wire format.
type WatcherAdminService interface {
	CreateWatcher(ctx context.Context, mailboxID, name, queryText string, threshold float64) (domain.Watcher, error)
	DeactivateWatcher(ctx context.Context, watcherID string) error
}

// QueryService backs the out-of-scope reporting/dashboard surface
// for the out-of-scope reporting surface: read-only access to persisted messages and
// classifications.
type QueryService interface {
	ListMessages(ctx context.Context, mailboxID string, limit int) ([]domain.MessageRow, error)
	ListClassifications(ctx context.Context, messageID int64) ([]domain.ClassificationRow, error)
}

package persistence

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/kodelabs/mailrouter/core/domain"
)

// ClassificationAdapter implements out.ClassificationRepository over a
// classifications table unique on message_id.
type ClassificationAdapter struct {
	db *sqlx.DB
}

func NewClassificationAdapter(db *sqlx.DB) *ClassificationAdapter {
	return &ClassificationAdapter{db: db}
}

func (a *ClassificationAdapter) Upsert(ctx context.Context, row domain.ClassificationRow) error {
	const query = `
		INSERT INTO classifications (message_id, class, confidence, watcher_id, extracted_data)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (message_id) DO UPDATE SET
			class = EXCLUDED.class,
			confidence = EXCLUDED.confidence,
			watcher_id = EXCLUDED.watcher_id,
			extracted_data = EXCLUDED.extracted_data`

	_, err := a.db.ExecContext(ctx, query, row.MessageID, row.Class, row.Confidence, row.WatcherID, row.ExtractedData)
	if err != nil {
		return fmt.Errorf("classifications.upsert: %w", err)
	}
	return nil
}

// ListByMessageID backs the out-of-scope reporting surface. The table
// is unique on message_id so this returns at most one row, but stays
// slice-shaped to match port/in.QueryService's contract.
func (a *ClassificationAdapter) ListByMessageID(ctx context.Context, messageID int64) ([]domain.ClassificationRow, error) {
	const query = `
		SELECT id, message_id, class, confidence, watcher_id, extracted_data
		FROM classifications WHERE message_id = $1`

	var rows []domain.ClassificationRow
	if err := a.db.SelectContext(ctx, &rows, query, messageID); err != nil {
		return nil, fmt.Errorf("classifications.list_by_message_id: %w", err)
	}
	return rows, nil
}

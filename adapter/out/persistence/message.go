package persistence

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/kodelabs/mailrouter/core/domain"
)

// MessageAdapter implements out.MessageRepository over a messages
// table unique on idemp_key, using an ON CONFLICT ... RETURNING upsert
// idiom.
type MessageAdapter struct {
	db *sqlx.DB
}

func NewMessageAdapter(db *sqlx.DB) *MessageAdapter {
	return &MessageAdapter{db: db}
}

func (a *MessageAdapter) Upsert(ctx context.Context, row domain.MessageRow) (int64, error) {
	const query = `
		INSERT INTO messages (idemp_key, mailbox_id, external_id, subject, body_hash, received_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (idemp_key) DO UPDATE SET
			subject = EXCLUDED.subject,
			body_hash = EXCLUDED.body_hash,
			updated_at = NOW()
		RETURNING id`

	var id int64
	err := a.db.QueryRowContext(ctx, query,
		row.IdempKey, row.MailboxID, row.ExternalID, row.Subject, row.BodyHash, row.ReceivedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("messages.upsert: %w", err)
	}
	return id, nil
}

// ListByMailbox backs the out-of-scope reporting surface: most recent
// messages for a mailbox, newest first.
func (a *MessageAdapter) ListByMailbox(ctx context.Context, mailboxID string, limit int) ([]domain.MessageRow, error) {
	const query = `
		SELECT id, idemp_key, mailbox_id, external_id, subject, body_hash, received_at, created_at, updated_at
		FROM messages WHERE mailbox_id = $1 ORDER BY received_at DESC LIMIT $2`

	var rows []domain.MessageRow
	if err := a.db.SelectContext(ctx, &rows, query, mailboxID, limit); err != nil {
		return nil, fmt.Errorf("messages.list_by_mailbox: %w", err)
	}
	return rows, nil
}

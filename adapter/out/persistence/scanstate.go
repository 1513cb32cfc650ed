package persistence

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/kodelabs/mailrouter/core/domain"
)

// ScanStateAdapter implements out.ScanStateRepository over a
// mailbox_scan_state table using sqlx.
type ScanStateAdapter struct {
	db *sqlx.DB
}

func NewScanStateAdapter(db *sqlx.DB) *ScanStateAdapter {
	return &ScanStateAdapter{db: db}
}

type scanStateRow struct {
	MailboxID            string       `db:"mailbox_id"`
	InitialScanCompleted bool         `db:"initial_scan_completed"`
	LastScanUID          int64        `db:"last_scan_uid"`
	InitialScanDate      sql.NullTime `db:"initial_scan_date"`
	UpdatedAt            sql.NullTime `db:"updated_at"`
}

func (r scanStateRow) toDomain() domain.MailboxScanStatus {
	status := domain.MailboxScanStatus{
		MailboxID:            r.MailboxID,
		InitialScanCompleted: r.InitialScanCompleted,
		LastScanUID:          uint64(r.LastScanUID),
	}
	if r.InitialScanDate.Valid {
		status.InitialScanDate = r.InitialScanDate.Time
	}
	if r.UpdatedAt.Valid {
		status.UpdatedAt = r.UpdatedAt.Time
	}
	return status
}

func (a *ScanStateAdapter) Get(ctx context.Context, mailboxID string) (domain.MailboxScanStatus, error) {
	var row scanStateRow
	err := a.db.GetContext(ctx, &row, `SELECT mailbox_id, initial_scan_completed, last_scan_uid, initial_scan_date, updated_at FROM mailbox_scan_state WHERE mailbox_id = $1`, mailboxID)
	if err == nil {
		return row.toDomain(), nil
	}
	if err != sql.ErrNoRows {
		return domain.MailboxScanStatus{}, fmt.Errorf("scan_state.get: %w", err)
	}

	_, err = a.db.ExecContext(ctx, `
		INSERT INTO mailbox_scan_state (mailbox_id, initial_scan_completed, last_scan_uid)
		VALUES ($1, FALSE, 0)
		ON CONFLICT (mailbox_id) DO NOTHING`, mailboxID)
	if err != nil {
		return domain.MailboxScanStatus{}, fmt.Errorf("scan_state.auto_insert: %w", err)
	}
	return domain.MailboxScanStatus{MailboxID: mailboxID}, nil
}

func (a *ScanStateAdapter) Update(ctx context.Context, mailboxID string, lastUID uint64) error {
	_, err := a.db.ExecContext(ctx, `
		UPDATE mailbox_scan_state SET last_scan_uid = GREATEST(last_scan_uid, $2), updated_at = NOW() WHERE mailbox_id = $1`,
		mailboxID, int64(lastUID))
	if err != nil {
		return fmt.Errorf("scan_state.update: %w", err)
	}
	return nil
}

func (a *ScanStateAdapter) Complete(ctx context.Context, mailboxID string, lastUID uint64) error {
	_, err := a.db.ExecContext(ctx, `
		UPDATE mailbox_scan_state
		SET initial_scan_completed = TRUE, last_scan_uid = GREATEST(last_scan_uid, $2), initial_scan_date = NOW(), updated_at = NOW()
		WHERE mailbox_id = $1`,
		mailboxID, int64(lastUID))
	if err != nil {
		return fmt.Errorf("scan_state.complete: %w", err)
	}
	return nil
}

package domain

import "time"

// EmbeddingCacheRow is a write-through cache row keyed by (mailbox_id,
// body_hash); pure deduplication — identical keys always hold an
// identical vector.
type EmbeddingCacheRow struct {
	MailboxID      string
	BodyHash       string
	EmailEmbedding []float32
}

// MessageRow is the persisted message, unique by IdempKey.
type MessageRow struct {
	ID         int64     `db:"id"`
	IdempKey   string    `db:"idemp_key"`
	MailboxID  string    `db:"mailbox_id"`
	ExternalID string    `db:"external_id"`
	Subject    string    `db:"subject"`
	BodyHash   string    `db:"body_hash"`
	ReceivedAt time.Time `db:"received_at"`
	CreatedAt  time.Time `db:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"`
}

// ClassificationRow is the persisted classification, unique by
// MessageID (a foreign key into MessageRow).
type ClassificationRow struct {
	ID            int64   `db:"id"`
	MessageID     int64   `db:"message_id"`
	Class         string  `db:"class"`
	Confidence    float64 `db:"confidence"`
	WatcherID     string  `db:"watcher_id"`
	ExtractedData string  `db:"extracted_data"`
}

// MailboxScanStatus is the scan-state record the Poller maintains per
// mailbox.
type MailboxScanStatus struct {
	MailboxID            string
	InitialScanCompleted bool
	LastScanUID          uint64
	InitialScanDate      time.Time
	UpdatedAt            time.Time
}

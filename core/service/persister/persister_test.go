package persister

import (
	"context"
	"testing"

	"github.com/kodelabs/mailrouter/core/domain"
)

type fakeMessages struct {
	byIdempKey map[string]int64
	rows       map[int64]domain.MessageRow
	nextID     int64
}

func newFakeMessages() *fakeMessages {
	return &fakeMessages{byIdempKey: map[string]int64{}, rows: map[int64]domain.MessageRow{}}
}

func (f *fakeMessages) Upsert(ctx context.Context, row domain.MessageRow) (int64, error) {
	id, ok := f.byIdempKey[row.IdempKey]
	if !ok {
		f.nextID++
		id = f.nextID
		f.byIdempKey[row.IdempKey] = id
	}
	row.ID = id
	f.rows[id] = row
	return id, nil
}

func (f *fakeMessages) ListByMailbox(ctx context.Context, mailboxID string, limit int) ([]domain.MessageRow, error) {
	var rows []domain.MessageRow
	for _, row := range f.rows {
		if row.MailboxID == mailboxID {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

type fakeClassifications struct {
	byMessageID map[int64]domain.ClassificationRow
}

func newFakeClassifications() *fakeClassifications {
	return &fakeClassifications{byMessageID: map[int64]domain.ClassificationRow{}}
}

func (f *fakeClassifications) Upsert(ctx context.Context, row domain.ClassificationRow) error {
	f.byMessageID[row.MessageID] = row
	return nil
}

func (f *fakeClassifications) ListByMessageID(ctx context.Context, messageID int64) ([]domain.ClassificationRow, error) {
	if row, ok := f.byMessageID[messageID]; ok {
		return []domain.ClassificationRow{row}, nil
	}
	return nil, nil
}

func TestHandleClassifiedCreatesOneRowPerIdempKey(t *testing.T) {
	messages := newFakeMessages()
	classifications := newFakeClassifications()
	svc := NewService(messages, classifications)

	fields := map[string]string{
		"trace_id": "t1", "idemp_key": "k1", "mailbox_id": "m1", "external_id": "e1",
		"subject": "Your Netflix receipt", "body_hash": "h1", "received_ts": "1700000000",
		"class": "Billing", "confidence": "0.91", "watcher_id": "w1", "extracted_data": `{"vendor":"Netflix"}`,
	}
	if err := svc.HandleClassified(context.Background(), fields); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(messages.rows) != 1 {
		t.Fatalf("expected one message row, got %d", len(messages.rows))
	}
	if len(classifications.byMessageID) != 1 {
		t.Fatalf("expected one classification row, got %d", len(classifications.byMessageID))
	}
}

func TestHandleClassifiedReplayIsIdempotent(t *testing.T) {
	messages := newFakeMessages()
	classifications := newFakeClassifications()
	svc := NewService(messages, classifications)

	fields := map[string]string{
		"trace_id": "t1", "idemp_key": "k1", "mailbox_id": "m1", "external_id": "e1",
		"subject": "first subject", "body_hash": "h1", "received_ts": "1700000000",
		"class": "Billing", "confidence": "0.91", "watcher_id": "w1", "extracted_data": `{}`,
	}
	for i := 0; i < 3; i++ {
		if err := svc.HandleClassified(context.Background(), fields); err != nil {
			t.Fatalf("replay %d: unexpected error: %v", i, err)
		}
	}
	if len(messages.rows) != 1 {
		t.Fatalf("expected exactly one message row after 3 replays, got %d", len(messages.rows))
	}
	if len(classifications.byMessageID) != 1 {
		t.Fatalf("expected exactly one classification row after 3 replays, got %d", len(classifications.byMessageID))
	}
}

func TestHandleClassifiedLaterSubjectWins(t *testing.T) {
	messages := newFakeMessages()
	classifications := newFakeClassifications()
	svc := NewService(messages, classifications)

	first := map[string]string{
		"trace_id": "t1", "idemp_key": "k1", "mailbox_id": "m1", "external_id": "e1",
		"subject": "original subject", "body_hash": "h1", "received_ts": "1700000000",
		"class": "Billing", "confidence": "0.9", "watcher_id": "w1", "extracted_data": `{}`,
	}
	second := map[string]string{}
	for k, v := range first {
		second[k] = v
	}
	second["subject"] = "updated subject"

	if err := svc.HandleClassified(context.Background(), first); err != nil {
		t.Fatal(err)
	}
	if err := svc.HandleClassified(context.Background(), second); err != nil {
		t.Fatal(err)
	}

	var got domain.MessageRow
	for _, row := range messages.rows {
		got = row
	}
	if got.Subject != "updated subject" {
		t.Errorf("expected latest subject to win, got %q", got.Subject)
	}
}

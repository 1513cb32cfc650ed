package query

import (
	"context"
	"testing"

	"github.com/kodelabs/mailrouter/core/domain"
)

type fakeMessages struct {
	rows []domain.MessageRow
}

func (f *fakeMessages) Upsert(ctx context.Context, row domain.MessageRow) (int64, error) {
	return 0, nil
}
func (f *fakeMessages) ListByMailbox(ctx context.Context, mailboxID string, limit int) ([]domain.MessageRow, error) {
	return f.rows, nil
}

type fakeClassifications struct {
	rows []domain.ClassificationRow
}

func (f *fakeClassifications) Upsert(ctx context.Context, row domain.ClassificationRow) error {
	return nil
}
func (f *fakeClassifications) ListByMessageID(ctx context.Context, messageID int64) ([]domain.ClassificationRow, error) {
	return f.rows, nil
}

func TestListMessagesPassesThrough(t *testing.T) {
	messages := &fakeMessages{rows: []domain.MessageRow{{ID: 1, Subject: "hi"}}}
	svc := NewService(messages, &fakeClassifications{})

	rows, err := svc.ListMessages(context.Background(), "alice@gmail.com", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 1 || rows[0].Subject != "hi" {
		t.Fatalf("unexpected rows: %+v", rows)
	}
}

func TestListClassificationsPassesThrough(t *testing.T) {
	classifications := &fakeClassifications{rows: []domain.ClassificationRow{{ID: 1, Class: "Billing"}}}
	svc := NewService(&fakeMessages{}, classifications)

	rows, err := svc.ListClassifications(context.Background(), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 1 || rows[0].Class != "Billing" {
		t.Fatalf("unexpected rows: %+v", rows)
	}
}

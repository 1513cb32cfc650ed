package poller

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/kodelabs/mailrouter/core/domain"
	"github.com/kodelabs/mailrouter/core/port/out"
)

func TestAboveWatermarkFiltersAndPreservesOrder(t *testing.T) {
	got := aboveWatermark([]uint32{5, 8, 12, 20}, 8)
	want := []uint32{12, 20}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestAboveWatermarkZeroReturnsAllUnfiltered(t *testing.T) {
	uids := []uint32{3, 1, 2}
	got := aboveWatermark(uids, 0)
	if !reflect.DeepEqual(got, uids) {
		t.Fatalf("got %v, want %v", got, uids)
	}
}

func TestAboveWatermarkAllBelowReturnsEmpty(t *testing.T) {
	got := aboveWatermark([]uint32{1, 2, 3}, 10)
	if len(got) != 0 {
		t.Fatalf("expected empty result, got %v", got)
	}
}

type fakeIMAP struct {
	uids     []uint32
	messages []out.IMAPMessage
}

func (f *fakeIMAP) SearchSince(ctx context.Context, mailboxID string, t time.Time) ([]uint32, error) {
	return f.uids, nil
}
func (f *fakeIMAP) SearchUIDRange(ctx context.Context, mailboxID string, from uint32) ([]uint32, error) {
	return f.uids, nil
}
func (f *fakeIMAP) Fetch(ctx context.Context, mailboxID string, uids []uint32) ([]out.IMAPMessage, error) {
	return f.messages, nil
}

type fakeScanState struct {
	status  domain.MailboxScanStatus
	updated uint64
	done    bool
}

func (f *fakeScanState) Get(ctx context.Context, mailboxID string) (domain.MailboxScanStatus, error) {
	return f.status, nil
}
func (f *fakeScanState) Update(ctx context.Context, mailboxID string, lastUID uint64) error {
	f.updated = lastUID
	return nil
}
func (f *fakeScanState) Complete(ctx context.Context, mailboxID string, lastUID uint64) error {
	f.updated = lastUID
	f.done = true
	return nil
}

type fakePollerBroker struct {
	appended []map[string]string
}

func (f *fakePollerBroker) Append(ctx context.Context, stream string, fields map[string]string) (string, error) {
	f.appended = append(f.appended, fields)
	return "1-0", nil
}
func (f *fakePollerBroker) CreateGroup(ctx context.Context, stream, group string) error { return nil }
func (f *fakePollerBroker) ReadGroup(ctx context.Context, group, consumer string, streams []string, count int64, blockMS int64) ([]out.StreamBatch, error) {
	return nil, nil
}
func (f *fakePollerBroker) Ack(ctx context.Context, stream, group, id string) error { return nil }
func (f *fakePollerBroker) Pending(ctx context.Context, stream, group string, minIdle int64, count int64) ([]out.PendingEntry, error) {
	return nil, nil
}
func (f *fakePollerBroker) Claim(ctx context.Context, stream, group, consumer string, minIdle int64, ids []string) ([]out.StreamMessage, error) {
	return nil, nil
}

// rejectAllGate simulates every candidate failing the subject gate.
type rejectAllGate struct{}

func (rejectAllGate) Pass(ctx context.Context, from, subject string) (bool, error) {
	return false, nil
}

func TestPollMailboxAdvancesWatermarkWhenEveryMessageIsGated(t *testing.T) {
	imap := &fakeIMAP{
		uids: []uint32{10, 11, 12},
		messages: []out.IMAPMessage{
			{UID: 10, Subject: "newsletter"},
			{UID: 11, Subject: "newsletter"},
			{UID: 12, Subject: "newsletter"},
		},
	}
	scanState := &fakeScanState{status: domain.MailboxScanStatus{InitialScanCompleted: true, LastScanUID: 9}}
	broker := &fakePollerBroker{}
	cfg := Config{ScanBatchCap: 100, FetchConcurrency: 4, SubjectGateEnabled: true}
	svc := NewService(cfg, []string{"m1"}, imap, broker, scanState, rejectAllGate{})

	if err := svc.PollOnce(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(broker.appended) != 0 {
		t.Fatalf("expected no publishes, got %d", len(broker.appended))
	}
	if scanState.updated != 12 {
		t.Fatalf("expected watermark to advance past the fetched batch to 12, got %d", scanState.updated)
	}
}

func TestPollMailboxPropagatesEnvelopeFrom(t *testing.T) {
	imap := &fakeIMAP{
		uids:     []uint32{5},
		messages: []out.IMAPMessage{{UID: 5, From: "sender@example.com", Subject: "hi"}},
	}
	scanState := &fakeScanState{status: domain.MailboxScanStatus{InitialScanCompleted: true}}
	broker := &fakePollerBroker{}
	cfg := Config{ScanBatchCap: 100, FetchConcurrency: 4}
	svc := NewService(cfg, []string{"m1"}, imap, broker, scanState, AlwaysPassGate{})

	if err := svc.PollOnce(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(broker.appended) != 1 {
		t.Fatalf("expected one publish, got %d", len(broker.appended))
	}
	if got := broker.appended[0]["from"]; got != "sender@example.com" {
		t.Errorf("expected from field carried through, got %q", got)
	}
}

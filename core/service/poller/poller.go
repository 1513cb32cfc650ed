// Package poller produces exactly the set of
// raw email events worth routing, with a stable idemp_key, driven by a
// per-mailbox INITIAL/INCREMENTAL UID-watermark state machine.
package poller

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kodelabs/mailrouter/core/domain"
	"github.com/kodelabs/mailrouter/core/port/out"
	"github.com/kodelabs/mailrouter/pkg/apperr"
	"github.com/kodelabs/mailrouter/pkg/logger"
)

// Config holds the Poller's tunables, all sourced from config.Config
// at wiring time.
type Config struct {
	ScanBatchCap       int
	InitialScanWindow  time.Duration
	ProviderOverride   string
	SubjectGateEnabled bool
	FetchConcurrency   int
}

// Service drives one poll tick across every configured mailbox.
type Service struct {
	cfg        Config
	mailboxes  []string
	imap       out.IMAPClient
	broker     out.Broker
	scanState  out.ScanStateRepository
	subjGate   SubjectGate
	log        *logger.Logger
}

func NewService(cfg Config, mailboxes []string, imap out.IMAPClient, broker out.Broker, scanState out.ScanStateRepository, gate SubjectGate) *Service {
	if gate == nil {
		gate = AlwaysPassGate{}
	}
	if !cfg.SubjectGateEnabled {
		gate = AlwaysPassGate{}
	}
	return &Service{cfg: cfg, mailboxes: mailboxes, imap: imap, broker: broker, scanState: scanState, subjGate: gate, log: logger.Default().WithField("component", "poller")}
}

// PollOnce runs one tick over every configured mailbox. A per-mailbox
// failure does not abort the tick for the others.
func (s *Service) PollOnce(ctx context.Context) error {
	var firstErr error
	for _, mailboxID := range s.mailboxes {
		if err := s.pollMailbox(ctx, mailboxID); err != nil {
			s.log.WithError(err).Warn("poll failed for mailbox %s", mailboxID)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (s *Service) pollMailbox(ctx context.Context, mailboxID string) error {
	status, err := s.scanState.Get(ctx, mailboxID)
	if err != nil {
		return apperr.Transient("scan_state.get", err)
	}

	var uids []uint32
	if !status.InitialScanCompleted {
		since := time.Now().AddDate(0, 0, -int(s.cfg.InitialScanWindow.Hours()/24))
		uids, err = s.imap.SearchSince(ctx, mailboxID, since)
		if err == nil {
			// SearchSince re-walks the whole window every tick; once a
			// prior batch has advanced the watermark, drop anything at
			// or below it so the backfill pages forward instead of
			// re-fetching its first batch forever.
			uids = aboveWatermark(uids, uint32(status.LastScanUID))
		}
	} else {
		uids, err = s.imap.SearchUIDRange(ctx, mailboxID, uint32(status.LastScanUID)+1)
	}
	if err != nil {
		return apperr.Transient("imap.search", err)
	}

	if len(uids) == 0 {
		if !status.InitialScanCompleted {
			// Nothing to backfill yet; leave initial_scan_completed
			// false so a future tick retries the window.
			return nil
		}
		return nil
	}

	if len(uids) > s.cfg.ScanBatchCap {
		uids = uids[:s.cfg.ScanBatchCap]
	}
	exhausted := !status.InitialScanCompleted && len(uids) < s.cfg.ScanBatchCap

	messages, err := s.imap.Fetch(ctx, mailboxID, uids)
	if err != nil {
		return apperr.Transient("imap.fetch", err)
	}
	if len(messages) == 0 {
		return nil
	}

	published, publishedMaxUID, err := s.publishBatch(ctx, mailboxID, messages)
	if err != nil && published == 0 {
		// Nothing made it through and a broker append or subject-gate
		// call failed (the gate merely rejecting candidates is not an
		// error): retry the same batch next tick rather than advancing
		// past it.
		return err
	}

	// The watermark tracks how far the mailbox has been scanned, not
	// how much was published: a batch where every candidate is
	// rejected by the subject gate must still advance past the
	// fetched UIDs, or the next tick re-fetches and re-gates the same
	// batch forever. fetchedMaxUID is the ceiling of what was
	// considered this tick regardless of outcome.
	fetchedMaxUID := uids[len(uids)-1]
	maxUID := fetchedMaxUID
	if published > 0 && publishedMaxUID > maxUID {
		maxUID = publishedMaxUID
	}

	if !status.InitialScanCompleted {
		if exhausted {
			return s.scanState.Complete(ctx, mailboxID, uint64(maxUID))
		}
		return s.scanState.Update(ctx, mailboxID, uint64(maxUID))
	}
	return s.scanState.Update(ctx, mailboxID, uint64(maxUID))
}

// aboveWatermark returns the subset of uids strictly greater than
// watermark, preserving order.
func aboveWatermark(uids []uint32, watermark uint32) []uint32 {
	if watermark == 0 {
		return uids
	}
	filtered := uids[:0:0]
	for _, uid := range uids {
		if uid > watermark {
			filtered = append(filtered, uid)
		}
	}
	return filtered
}

// publishBatch classifies and publishes messages concurrently, bounded
// by FetchConcurrency; order is irrelevant, only the count published
// and the max UID among them matter to the caller.
func (s *Service) publishBatch(ctx context.Context, mailboxID string, messages []out.IMAPMessage) (published int, maxUID uint32, err error) {
	sem := make(chan struct{}, max(1, s.cfg.FetchConcurrency))
	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	for _, msg := range messages {
		msg := msg
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			ok, perr := s.publishOne(ctx, mailboxID, msg)
			mu.Lock()
			defer mu.Unlock()
			if perr != nil {
				if firstErr == nil {
					firstErr = perr
				}
				return
			}
			if ok {
				published++
				if msg.UID > maxUID {
					maxUID = msg.UID
				}
			}
		}()
	}
	wg.Wait()
	return published, maxUID, firstErr
}

func (s *Service) publishOne(ctx context.Context, mailboxID string, msg out.IMAPMessage) (bool, error) {
	pass, err := s.subjGate.Pass(ctx, msg.From, msg.Subject)
	if err != nil {
		// Subject-gate failure is a transient collaborator error, not
		// grounds to drop a candidate silently.
		return false, apperr.Transient("subject_gate", err)
	}
	if !pass {
		return false, nil
	}

	externalID := msg.MessageID
	if externalID == "" {
		externalID = fmt.Sprintf("%d", msg.UID)
	}
	provider := DeriveProvider(mailboxID, s.cfg.ProviderOverride)
	idempKey := BuildIdempotencyKey(provider, mailboxID, externalID)

	ev := domain.RawEmailEvent{
		TraceID:     uuid.NewString(),
		MailboxID:   mailboxID,
		ExternalID:  externalID,
		ReceivedTS:  msg.Date.Unix(),
		IdempKey:    idempKey,
		From:        msg.From,
		Subject:     msg.Subject,
		RawEmailB64: base64.StdEncoding.EncodeToString(msg.RawRFC822),
	}

	fields := map[string]string{
		"trace_id":      ev.TraceID,
		"mailbox_id":    ev.MailboxID,
		"external_id":   ev.ExternalID,
		"received_ts":   fmt.Sprintf("%d", ev.ReceivedTS),
		"idemp_key":     ev.IdempKey,
		"from":          ev.From,
		"subject":       ev.Subject,
		"raw_email_b64": ev.RawEmailB64,
	}
	if _, err := s.broker.Append(ctx, out.StreamRawEmails, fields); err != nil {
		return false, apperr.Transient("broker.append", err)
	}
	s.log.WithField("trace_id", ev.TraceID).WithField("idemp_key", ev.IdempKey).Info("published raw email")
	return true, nil
}

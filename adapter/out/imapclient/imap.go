// Package imapclient adapts github.com/emersion/go-imap's v1 client
// to core/port/out.IMAPClient, grounded on the pack's UidSearch/
// UidFetch usage (customeros-mailstack's initial_sync.go): dial,
// login, SELECT INBOX, UID SEARCH, UID FETCH BODY.PEEK[], logout.
package imapclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"

	"github.com/kodelabs/mailrouter/core/port/out"
	"github.com/kodelabs/mailrouter/pkg/logger"
	"github.com/kodelabs/mailrouter/pkg/metrics"
)

// Credentials is one mailbox's IMAP4-over-TLS login.
type Credentials struct {
	Server   string
	Username string
	Password string
}

// Adapter implements out.IMAPClient against a fixed set of mailboxes,
// dialing a fresh connection per call — polling happens on a tens-of-
// seconds cadence (config.Poller.PollInterval), so a persistent
// connection pool buys nothing but added failure modes.
type Adapter struct {
	mailboxes map[string]Credentials
	timeout   time.Duration
	log       *logger.Logger
}

func NewAdapter(mailboxes map[string]Credentials, timeout time.Duration) *Adapter {
	return &Adapter{mailboxes: mailboxes, timeout: timeout, log: logger.Default().WithField("component", "imapclient")}
}

func (a *Adapter) dial(mailboxID string) (*client.Client, error) {
	creds, ok := a.mailboxes[mailboxID]
	if !ok {
		return nil, fmt.Errorf("no imap credentials configured for mailbox %q", mailboxID)
	}
	c, err := client.DialTLS(creds.Server, nil)
	if err != nil {
		return nil, fmt.Errorf("imap dial %s: %w", creds.Server, err)
	}
	if err := c.Login(creds.Username, creds.Password); err != nil {
		c.Close()
		return nil, fmt.Errorf("imap login %s: %w", creds.Username, err)
	}
	if _, err := c.Select("INBOX", false); err != nil {
		c.Logout()
		c.Close()
		return nil, fmt.Errorf("imap select INBOX: %w", err)
	}
	return c, nil
}

func (a *Adapter) close(c *client.Client) {
	if err := c.Logout(); err != nil {
		a.log.Warn("imap logout error: %v", err)
	}
	c.Close()
}

func (a *Adapter) SearchSince(ctx context.Context, mailboxID string, t time.Time) ([]uint32, error) {
	defer func(start time.Time) { metrics.RecordLatency("imap.search_since", time.Since(start)) }(time.Now())

	c, err := a.dial(mailboxID)
	if err != nil {
		return nil, err
	}
	defer a.close(c)

	c.Timeout = a.timeout
	criteria := imap.NewSearchCriteria()
	criteria.Since = t
	uids, err := c.UidSearch(criteria)
	c.Timeout = 0
	if err != nil {
		return nil, fmt.Errorf("imap uid search since %s: %w", t, err)
	}
	return sortedUint32(uids), nil
}

func (a *Adapter) SearchUIDRange(ctx context.Context, mailboxID string, from uint32) ([]uint32, error) {
	defer func(start time.Time) { metrics.RecordLatency("imap.search_uid_range", time.Since(start)) }(time.Now())

	c, err := a.dial(mailboxID)
	if err != nil {
		return nil, err
	}
	defer a.close(c)

	c.Timeout = a.timeout
	seqSet := new(imap.SeqSet)
	seqSet.AddRange(from, 0) // 0 means "*" (no upper bound) in go-imap's SeqSet
	criteria := imap.NewSearchCriteria()
	criteria.Uid = seqSet
	uids, err := c.UidSearch(criteria)
	c.Timeout = 0
	if err != nil {
		return nil, fmt.Errorf("imap uid search range from %d: %w", from, err)
	}
	return sortedUint32(uids), nil
}

func (a *Adapter) Fetch(ctx context.Context, mailboxID string, uids []uint32) ([]out.IMAPMessage, error) {
	if len(uids) == 0 {
		return nil, nil
	}
	defer func(start time.Time) { metrics.RecordLatency("imap.fetch", time.Since(start)) }(time.Now())

	c, err := a.dial(mailboxID)
	if err != nil {
		return nil, err
	}
	defer a.close(c)

	seqSet := new(imap.SeqSet)
	for _, uid := range uids {
		seqSet.AddNum(uid)
	}

	items := []imap.FetchItem{imap.FetchEnvelope, imap.FetchUid, "BODY.PEEK[]"}
	messages := make(chan *imap.Message, len(uids))
	done := make(chan error, 1)

	c.Timeout = a.timeout
	go func() {
		done <- c.UidFetch(seqSet, items, messages)
	}()

	var results []out.IMAPMessage
	for msg := range messages {
		results = append(results, toIMAPMessage(msg))
	}
	c.Timeout = 0

	if err := <-done; err != nil {
		return nil, fmt.Errorf("imap uid fetch: %w", err)
	}
	return results, nil
}

func toIMAPMessage(msg *imap.Message) out.IMAPMessage {
	im := out.IMAPMessage{UID: msg.Uid}
	if msg.Envelope != nil {
		im.Subject = msg.Envelope.Subject
		im.Date = msg.Envelope.Date
		im.MessageID = msg.Envelope.MessageId
		if len(msg.Envelope.From) > 0 && msg.Envelope.From[0] != nil {
			im.From = msg.Envelope.From[0].Address()
		}
	}
	for _, body := range msg.Body {
		buf := new(bytes.Buffer)
		if _, err := io.Copy(buf, body); err == nil {
			im.RawRFC822 = buf.Bytes()
			break
		}
	}
	return im
}

func sortedUint32(uids []uint32) []uint32 {
	sort.Slice(uids, func(i, j int) bool { return uids[i] < uids[j] })
	return uids
}

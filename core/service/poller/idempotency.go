package poller

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// DeriveProvider maps a mailbox address to the provider label used in
// the idempotency key: gmail / outlook / the leading
// domain label otherwise. An override (e.g. for a self-hosted IMAP
// fleet whose addresses don't carry a recognizable provider domain)
// takes precedence when non-empty.
func DeriveProvider(mailboxID, override string) string {
	if override != "" {
		return override
	}
	at := strings.LastIndex(mailboxID, "@")
	if at < 0 {
		return "unknown"
	}
	domain := strings.ToLower(mailboxID[at+1:])
	switch {
	case strings.HasSuffix(domain, "gmail.com"):
		return "gmail"
	case strings.HasSuffix(domain, "outlook.com"), strings.HasSuffix(domain, "hotmail.com"):
		return "outlook"
	default:
		label, _, _ := strings.Cut(domain, ".")
		return label
	}
}

// BuildIdempotencyKey computes SHA-256(provider ‖ mailbox_id ‖
// external_id) as a 64-char lowercase hex string.
func BuildIdempotencyKey(provider, mailboxID, externalID string) string {
	h := sha256.New()
	h.Write([]byte(provider))
	h.Write([]byte(mailboxID))
	h.Write([]byte(externalID))
	return hex.EncodeToString(h.Sum(nil))
}

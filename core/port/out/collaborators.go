package out

import (
	"context"
	"time"
)

// IMAPMessage is one fetched message: the UID plus its raw RFC 5322
// bytes.
type IMAPMessage struct {
	UID       uint32
	MessageID string
	From      string
	Subject   string
	Date      time.Time
	RawRFC822 []byte
}

// IMAPClient is the IMAP4-over-TLS collaborator: SELECT
// INBOX, UID SEARCH (SINCE / range), UID FETCH (RFC822).
type IMAPClient interface {
	// SearchSince returns UIDs for messages received since t, ascending.
	SearchSince(ctx context.Context, mailboxID string, t time.Time) ([]uint32, error)
	// SearchUIDRange returns UIDs in [from, +inf), ascending.
	SearchUIDRange(ctx context.Context, mailboxID string, from uint32) ([]uint32, error)
	// Fetch retrieves the full RFC822 payload for the given UIDs.
	Fetch(ctx context.Context, mailboxID string, uids []uint32) ([]IMAPMessage, error)
}

// LLMClient is the request/response collaborator: given
// a prompt and a model identifier, return generated text. Callers that
// need JSON extract it themselves (code-fence then direct-parse
// fallback).
type LLMClient interface {
	Complete(ctx context.Context, systemPrompt, userPrompt, model string) (string, error)
}

// EmbeddingClient is the fixed-dimensionality vector collaborator of
// EmbeddingClient embeds text for semantic comparison.
type EmbeddingClient interface {
	Embed(ctx context.Context, texts []string, model string) ([][]float32, error)
}

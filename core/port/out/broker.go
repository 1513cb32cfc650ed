package out

import "context"

// Stream names: four ordered streams plus their
// per-stream dead-letter siblings.
const (
	StreamRawEmails       = "raw_emails.v1"
	StreamEmailsNormal    = "emails.normalized.v1"
	StreamEmailsToClassif = "emails.to_classify.v1"
	StreamEmailsClassifd  = "emails.classified.v1"
)

// DLQStream returns the dead-letter stream name for a given input
// stream, following the "*.dlq.v1" convention.
func DLQStream(stream string) string {
	return stream + ".dlq.v1"
}

// StreamMessage is one entry read off a stream under a consumer group.
type StreamMessage struct {
	ID     string
	Fields map[string]string
}

// Broker is the stream-broker contract: an ordered
// append-only log per stream name, with consumer-group semantics
// (pending lists, explicit ack, redelivery).
type Broker interface {
	// Append adds fields_map to stream, returning the server-assigned
	// message id.
	Append(ctx context.Context, stream string, fields map[string]string) (string, error)

	// CreateGroup is idempotent: already-exists is not an error.
	CreateGroup(ctx context.Context, stream, group string) error

	// ReadGroup blocks up to blockMS waiting for new (">") entries,
	// returning at most count per stream.
	ReadGroup(ctx context.Context, group, consumer string, streams []string, count int64, blockMS int64) ([]StreamBatch, error)

	// Ack removes message id from group's pending list for stream.
	Ack(ctx context.Context, stream, group, id string) error

	// Pending lists entries idle longer than minIdle, for redelivery
	// sweeps.
	Pending(ctx context.Context, stream, group string, minIdle int64, count int64) ([]PendingEntry, error)

	// Claim reassigns pending entries to consumer, returning their
	// current field payloads.
	Claim(ctx context.Context, stream, group, consumer string, minIdle int64, ids []string) ([]StreamMessage, error)
}

// StreamBatch groups the messages ReadGroup returned for one stream.
type StreamBatch struct {
	Stream   string
	Messages []StreamMessage
}

// PendingEntry describes one pending-list row as returned by XPENDING,
// used by the reclaim loop to decide redeliver-vs-DLQ.
type PendingEntry struct {
	ID         string
	Consumer   string
	IdleMS     int64
	DeliveryCt int64
}

// Package in holds the pipeline's inbound capability surfaces: one
// interface per stage role, plus the thin stubs for the out-of-scope
// external collaborators (watcher CLI, reporting/query surface).
package in

import "context"

// PollerService drives one poll tick over all known mailboxes.
type PollerService interface {
	PollOnce(ctx context.Context) error
}

// NormalizerService processes one raw-email stream message.
type NormalizerService interface {
	HandleRaw(ctx context.Context, fields map[string]string) error
}

// SemanticFilterService processes one normalized-email stream message.
type SemanticFilterService interface {
	HandleNormalized(ctx context.Context, fields map[string]string) error
}

// ClassifierService processes one routed-to-classify stream message.
type ClassifierService interface {
	HandleRouted(ctx context.Context, fields map[string]string) error
}

// PersisterService processes one classified-email stream message.
type PersisterService interface {
	HandleClassified(ctx context.Context, fields map[string]string) error
}

// Package semanticfilter is the routing brain:
// decide whether a normalized email matches any active watcher for its
// mailbox, and if so attach the best-matching watcher's identity.
package semanticfilter

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/kodelabs/mailrouter/core/domain"
	"github.com/kodelabs/mailrouter/core/port/out"
	"github.com/kodelabs/mailrouter/pkg/apperr"
	"github.com/kodelabs/mailrouter/pkg/logger"
)

// MinAssembledTextLen is the drop threshold for assembled text.
const MinAssembledTextLen = 40

// TopK is the default breadth of the prototype vector search.
const TopK = 5

type Config struct {
	CacheOnly bool
	TopK      int
}

type Service struct {
	cfg       Config
	broker    out.Broker
	cache     out.EmbeddingCacheRepository
	embedder  out.EmbeddingClient
	watchers  out.WatcherRepository
	embedModel string
	log       *logger.Logger
}

func NewService(cfg Config, broker out.Broker, cache out.EmbeddingCacheRepository, embedder out.EmbeddingClient, watchers out.WatcherRepository, embedModel string) *Service {
	if cfg.TopK <= 0 {
		cfg.TopK = TopK
	}
	return &Service{cfg: cfg, broker: broker, cache: cache, embedder: embedder, watchers: watchers, embedModel: embedModel, log: logger.Default().WithField("component", "semanticfilter")}
}

// HandleNormalized implements port/in.SemanticFilterService for one
// emails.normalized.v1 message. It acks (returns nil) on every outcome
// except a genuine transient failure, honoring the "ack exactly once
// on exit" discipline.
func (s *Service) HandleNormalized(ctx context.Context, fields map[string]string) error {
	traceID := fields["trace_id"]
	mailboxID := fields["mailbox_id"]
	bodyHash := fields["body_hash"]

	emailText := assembleText(fields["subject"], fields["text_content"])
	if len(emailText) < MinAssembledTextLen {
		s.log.WithField("trace_id", traceID).Info("dropped: assembled text below signal floor")
		return nil
	}

	embedding, err := s.resolveEmbedding(ctx, mailboxID, bodyHash, emailText)
	if err != nil {
		return err
	}
	if embedding == nil {
		s.log.WithField("trace_id", traceID).Info("dropped: cache miss under CACHE_ONLY mode")
		return nil
	}

	matches, err := s.watchers.MatchQueries(ctx, mailboxID, embedding, s.cfg.TopK)
	if err != nil {
		return apperr.Transient("watchers.match_queries", err)
	}
	if len(matches) == 0 {
		s.log.WithField("trace_id", traceID).Info("dropped: no watcher prototypes for mailbox")
		return nil
	}

	best := bestMatch(matches)
	if best.Similarity() < best.WatcherThreshold {
		s.log.WithField("trace_id", traceID).Info("filtered out: best similarity %.4f below threshold %.4f", best.Similarity(), best.WatcherThreshold)
		return nil
	}

	outFields := map[string]string{
		"trace_id":            traceID,
		"mailbox_id":          mailboxID,
		"idemp_key":           fields["idemp_key"],
		"from":                fields["from"],
		"subject":             fields["subject"],
		"external_id":         fields["external_id"],
		"received_ts":         fields["received_ts"],
		"text_content":        fields["text_content"],
		"body_hash":           bodyHash,
		"filter_watcher_id":   best.WatcherID,
		"filter_watcher_name": best.WatcherName,
		"filter_query_id":     best.QueryID,
		"filter_query_text":   best.QueryText,
		"filter_similarity":   strconv.FormatFloat(best.Similarity(), 'f', -1, 64),
	}
	if _, err := s.broker.Append(ctx, out.StreamEmailsToClassif, outFields); err != nil {
		return apperr.Transient("broker.append", err)
	}
	s.log.WithField("trace_id", traceID).WithField("idemp_key", fields["idemp_key"]).Info("routed to watcher %s", best.WatcherName)
	return nil
}

// resolveEmbedding is a read-through cache,
// compute-and-upsert on miss unless CACHE_ONLY is set, in which case a
// miss returns (nil, nil) meaning "drop".
func (s *Service) resolveEmbedding(ctx context.Context, mailboxID, bodyHash, emailText string) ([]float32, error) {
	if cached, ok, err := s.cache.Get(ctx, mailboxID, bodyHash); err != nil {
		return nil, apperr.Transient("embedding_cache.get", err)
	} else if ok {
		return cached, nil
	}

	if s.cfg.CacheOnly {
		return nil, nil
	}

	vectors, err := s.embedder.Embed(ctx, []string{emailText}, s.embedModel)
	if err != nil {
		return nil, apperr.Transient("embedder.embed", err)
	}
	if len(vectors) == 0 {
		return nil, apperr.Permanent("embedder.embed", fmt.Errorf("empty embedding response"))
	}
	embedding := vectors[0]

	if err := s.cache.Upsert(ctx, domain.EmbeddingCacheRow{MailboxID: mailboxID, BodyHash: bodyHash, EmailEmbedding: embedding}); err != nil {
		return nil, apperr.Transient("embedding_cache.upsert", err)
	}
	return embedding, nil
}

// assembleText builds (subject + "\n" +
// text_content)[:1000] construction.
func assembleText(subject, textContent string) string {
	full := subject + "\n" + textContent
	r := []rune(full)
	if len(r) > 1000 {
		r = r[:1000]
	}
	return strings.TrimSpace(string(r))
}

// bestMatch returns the row with the smallest cosine distance (the
// caller's match rows are expected sorted ascending already, but this
// re-derives the minimum defensively).
func bestMatch(matches []domain.WatcherMatch) domain.WatcherMatch {
	best := matches[0]
	for _, m := range matches[1:] {
		if m.CosineDistance < best.CosineDistance {
			best = m
		}
	}
	return best
}

package messaging

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/kodelabs/mailrouter/core/port/out"
)

// ReclaimConfig controls one stream/group's pending-message sweep:
// check interval, idle threshold, and max retries before DLQ,
// generalized to run against
// the "*.dlq.v1" convention instead of a bare "dlq:"
// prefix.
type ReclaimConfig struct {
	Stream          string
	Group           string
	Consumer        string
	CheckInterval   time.Duration
	PendingIdleTime time.Duration
	MaxRetries      int64
	BatchSize       int64
}

func DefaultReclaimConfig(stream, group, consumer string) ReclaimConfig {
	return ReclaimConfig{
		Stream:          stream,
		Group:           group,
		Consumer:        consumer,
		CheckInterval:   30 * time.Second,
		PendingIdleTime: 2 * time.Minute,
		MaxRetries:      3,
		BatchSize:       100,
	}
}

// Reclaimer periodically sweeps a stream's pending list, redelivering
// entries that have merely stalled and moving entries that exceeded
// MaxRetries to their dead-letter sibling.
type Reclaimer struct {
	broker *RedisBroker
	cfg    ReclaimConfig
	log    zerolog.Logger
}

func NewReclaimer(broker *RedisBroker, cfg ReclaimConfig, log zerolog.Logger) *Reclaimer {
	return &Reclaimer{broker: broker, cfg: cfg, log: log.With().Str("stream", cfg.Stream).Str("group", cfg.Group).Logger()}
}

// Run blocks until ctx is cancelled, sweeping on CheckInterval. Each
// sweep claims stalled entries and passes them to onClaimed, acking an
// entry once onClaimed returns nil; an entry whose onClaimed returns an
// error stays pending for a later sweep.
func (r *Reclaimer) Run(ctx context.Context, onClaimed func(context.Context, out.StreamMessage) error) {
	ticker := time.NewTicker(r.cfg.CheckInterval)
	defer ticker.Stop()

	r.log.Info().
		Dur("check_interval", r.cfg.CheckInterval).
		Dur("idle_time", r.cfg.PendingIdleTime).
		Int64("max_retries", r.cfg.MaxRetries).
		Msg("starting pending reclaim sweep")

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweep(ctx, onClaimed)
		}
	}
}

func (r *Reclaimer) sweep(ctx context.Context, onClaimed func(context.Context, out.StreamMessage) error) {
	entries, err := r.broker.Pending(ctx, r.cfg.Stream, r.cfg.Group, r.cfg.PendingIdleTime.Milliseconds(), r.cfg.BatchSize)
	if err != nil {
		if err != redis.Nil {
			r.log.Error().Err(err).Msg("error listing pending messages")
		}
		return
	}

	for _, p := range entries {
		if p.DeliveryCt >= r.cfg.MaxRetries {
			r.log.Warn().Str("id", p.ID).Int64("retries", p.DeliveryCt).Msg("message exceeded max retries, moving to DLQ")
			if err := r.moveToDLQ(ctx, p.ID); err != nil {
				r.log.Error().Err(err).Str("id", p.ID).Msg("error moving message to DLQ, leaving pending for next sweep")
				continue
			}
			if err := r.broker.Ack(ctx, r.cfg.Stream, r.cfg.Group, p.ID); err != nil {
				r.log.Error().Err(err).Str("id", p.ID).Msg("error acknowledging DLQ'd message")
			}
			continue
		}

		r.log.Info().Str("id", p.ID).Str("consumer", p.Consumer).Int64("idle_ms", p.IdleMS).Int64("retries", p.DeliveryCt).Msg("claiming stuck pending message")

		claimed, err := r.broker.Claim(ctx, r.cfg.Stream, r.cfg.Group, r.cfg.Consumer, r.cfg.PendingIdleTime.Milliseconds(), []string{p.ID})
		if err != nil {
			r.log.Error().Err(err).Str("id", p.ID).Msg("error claiming message")
			continue
		}

		for _, msg := range claimed {
			if err := onClaimed(ctx, msg); err != nil {
				r.log.Error().Err(err).Str("id", msg.ID).Msg("error reprocessing pending message")
				continue
			}
			if err := r.broker.Ack(ctx, r.cfg.Stream, r.cfg.Group, msg.ID); err != nil {
				r.log.Error().Err(err).Str("id", msg.ID).Msg("error acknowledging reprocessed message")
			} else {
				r.log.Info().Str("id", msg.ID).Msg("successfully reprocessed pending message")
			}
		}
	}
}

func (r *Reclaimer) moveToDLQ(ctx context.Context, msgID string) error {
	fields, err := r.broker.RangeOne(ctx, r.cfg.Stream, msgID)
	if err != nil {
		return err
	}

	dlqFields := map[string]string{
		"original_stream": r.cfg.Stream,
		"original_id":     msgID,
		"failed_at":       time.Now().UTC().Format(time.RFC3339),
		"consumer":        r.cfg.Consumer,
		"group":           r.cfg.Group,
	}
	for k, v := range fields {
		dlqFields["original_"+k] = v
	}

	dlqStream := out.DLQStream(r.cfg.Stream)
	if _, err := r.broker.Append(ctx, dlqStream, dlqFields); err != nil {
		return err
	}
	r.log.Info().Str("dlq_stream", dlqStream).Str("original_id", msgID).Msg("message moved to DLQ")
	return nil
}

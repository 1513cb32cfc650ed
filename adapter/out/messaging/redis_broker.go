// Package messaging adapts github.com/redis/go-redis/v9 Redis Streams
// to the core/port/out.Broker contract: XADD/XREADGROUP/
// XACK/XPENDINGEXT/XCLAIM, one stream per event type, one shared
// consumer group per stage role.
package messaging

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kodelabs/mailrouter/core/port/out"
)

// RedisBroker implements out.Broker.
type RedisBroker struct {
	client *redis.Client
}

func NewRedisBroker(client *redis.Client) *RedisBroker {
	return &RedisBroker{client: client}
}

func (b *RedisBroker) Append(ctx context.Context, stream string, fields map[string]string) (string, error) {
	values := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		values[k] = v
	}
	id, err := b.client.XAdd(ctx, &redis.XAddArgs{Stream: stream, Values: values}).Result()
	if err != nil {
		return "", fmt.Errorf("xadd %s: %w", stream, err)
	}
	return id, nil
}

// CreateGroup is idempotent: BUSYGROUP (already exists) is not an
// error, matching the idempotent create_group contract.
func (b *RedisBroker) CreateGroup(ctx context.Context, stream, group string) error {
	err := b.client.XGroupCreateMkStream(ctx, stream, group, "0").Err()
	if err != nil && !isBusyGroup(err) {
		return fmt.Errorf("xgroup create %s/%s: %w", stream, group, err)
	}
	return nil
}

func isBusyGroup(err error) bool {
	return err != nil && len(err.Error()) >= 9 && err.Error()[:9] == "BUSYGROUP"
}

func (b *RedisBroker) ReadGroup(ctx context.Context, group, consumer string, streams []string, count int64, blockMS int64) ([]out.StreamBatch, error) {
	if len(streams) == 0 {
		return nil, nil
	}
	args := make([]string, len(streams)*2)
	for i, s := range streams {
		args[i] = s
		args[len(streams)+i] = ">"
	}
	res, err := b.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  args,
		Count:    count,
		Block:    time.Duration(blockMS) * time.Millisecond,
	}).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("xreadgroup %s: %w", group, err)
	}

	batches := make([]out.StreamBatch, 0, len(res))
	for _, xs := range res {
		msgs := make([]out.StreamMessage, 0, len(xs.Messages))
		for _, m := range xs.Messages {
			msgs = append(msgs, out.StreamMessage{ID: m.ID, Fields: toStringFields(m.Values)})
		}
		batches = append(batches, out.StreamBatch{Stream: xs.Stream, Messages: msgs})
	}
	return batches, nil
}

func (b *RedisBroker) Ack(ctx context.Context, stream, group, id string) error {
	if err := b.client.XAck(ctx, stream, group, id).Err(); err != nil {
		return fmt.Errorf("xack %s/%s/%s: %w", stream, group, id, err)
	}
	return nil
}

func (b *RedisBroker) Pending(ctx context.Context, stream, group string, minIdle int64, count int64) ([]out.PendingEntry, error) {
	res, err := b.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: stream,
		Group:  group,
		Start:  "-",
		End:    "+",
		Count:  count,
		Idle:   time.Duration(minIdle) * time.Millisecond,
	}).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("xpendingext %s/%s: %w", stream, group, err)
	}
	entries := make([]out.PendingEntry, 0, len(res))
	for _, p := range res {
		entries = append(entries, out.PendingEntry{ID: p.ID, Consumer: p.Consumer, IdleMS: p.Idle.Milliseconds(), DeliveryCt: p.RetryCount})
	}
	return entries, nil
}

func (b *RedisBroker) Claim(ctx context.Context, stream, group, consumer string, minIdle int64, ids []string) ([]out.StreamMessage, error) {
	res, err := b.client.XClaim(ctx, &redis.XClaimArgs{
		Stream:   stream,
		Group:    group,
		Consumer: consumer,
		MinIdle:  time.Duration(minIdle) * time.Millisecond,
		Messages: ids,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("xclaim %s/%s: %w", stream, group, err)
	}
	msgs := make([]out.StreamMessage, 0, len(res))
	for _, m := range res {
		msgs = append(msgs, out.StreamMessage{ID: m.ID, Fields: toStringFields(m.Values)})
	}
	return msgs, nil
}

// RangeOne fetches one message's current field payload by id, used by
// the reclaim loop when copying a pending entry into its DLQ sibling.
func (b *RedisBroker) RangeOne(ctx context.Context, stream, id string) (map[string]string, error) {
	res, err := b.client.XRange(ctx, stream, id, id).Result()
	if err != nil {
		return nil, fmt.Errorf("xrange %s/%s: %w", stream, id, err)
	}
	if len(res) == 0 {
		return nil, fmt.Errorf("message %s not found in stream %s", id, stream)
	}
	return toStringFields(res[0].Values), nil
}

func toStringFields(values map[string]interface{}) map[string]string {
	fields := make(map[string]string, len(values))
	for k, v := range values {
		if s, ok := v.(string); ok {
			fields[k] = s
		} else {
			fields[k] = fmt.Sprintf("%v", v)
		}
	}
	return fields
}

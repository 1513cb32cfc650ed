package persistence

import (
	"context"
	"time"

	"github.com/kodelabs/mailrouter/core/domain"
	"github.com/kodelabs/mailrouter/core/port/out"
	"github.com/kodelabs/mailrouter/pkg/cache"
)

// CachedWatcherRepository wraps another out.WatcherRepository with a
// short-TTL read-through cache over ActiveByMailbox, matching the
// "shared resource policy": the watcher registry is read-mostly, and a
// per-mailbox cache with lazy invalidation keeps repeated lookups off
// the store without needing Create/Deactivate to explicitly bust
// anything — a stale entry self-heals within TTL.
type CachedWatcherRepository struct {
	out.WatcherRepository
	cache *cache.RedisCache
	ttl   time.Duration
}

// DefaultWatcherCacheTTL is a conservative 60s default.
const DefaultWatcherCacheTTL = 60 * time.Second

func NewCachedWatcherRepository(inner out.WatcherRepository, c *cache.RedisCache, ttl time.Duration) *CachedWatcherRepository {
	if ttl <= 0 {
		ttl = DefaultWatcherCacheTTL
	}
	return &CachedWatcherRepository{WatcherRepository: inner, cache: c, ttl: ttl}
}

func (r *CachedWatcherRepository) ActiveByMailbox(ctx context.Context, mailboxID string) ([]domain.Watcher, error) {
	key := "watchers:active:" + mailboxID

	var cached []domain.Watcher
	if hit, err := r.cache.GetJSON(ctx, key, &cached); err == nil && hit {
		return cached, nil
	}

	watchers, err := r.WatcherRepository.ActiveByMailbox(ctx, mailboxID)
	if err != nil {
		return nil, err
	}
	_ = r.cache.SetJSON(ctx, key, watchers, r.ttl)
	return watchers, nil
}

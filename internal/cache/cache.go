// Package cache keeps read-through copies of forms, per-form response counters
// and the live response feed in Redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/formcraft/formcraft-backend/internal/config"
	"github.com/formcraft/formcraft-backend/internal/model"
)

// ErrMiss is returned when a key is not cached.
var ErrMiss = errors.New("cache miss")

// RedisCache implements the form cache, response counters and feed channels.
type RedisCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// New creates a RedisCache whose cached forms expire after ttl.
func New(rdb *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{rdb: rdb, ttl: ttl}
}

// GetForm returns the cached form or ErrMiss.
func (c *RedisCache) GetForm(ctx context.Context, id string) (*model.Form, error) {
	data, err := c.rdb.Get(ctx, config.CacheKey.FormKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrMiss
		}
		return nil, fmt.Errorf("get form: %w", err)
	}
	var f model.Form
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("unmarshal form: %w", err)
	}
	return &f, nil
}

// SetForm caches f for the configured TTL.
func (c *RedisCache) SetForm(ctx context.Context, f *model.Form) error {
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshal form: %w", err)
	}
	return c.rdb.Set(ctx, config.CacheKey.FormKey(f.ID), data, c.ttl).Err()
}

// InvalidateForm drops the cached form.
func (c *RedisCache) InvalidateForm(ctx context.Context, id string) error {
	return c.rdb.Del(ctx, config.CacheKey.FormKey(id)).Err()
}

// DropCounter removes a form's response counter.
func (c *RedisCache) DropCounter(ctx context.Context, id string) error {
	return c.rdb.Del(ctx, config.CacheKey.FormResponseCountKey(id)).Err()
}

// countedTTL is how long a counted event id is remembered. Redelivery of an
// event happens well within it.
const countedTTL = 24 * time.Hour

// incrOnce bumps the counter unless the event was already counted. It returns
// -1 when the counter does not exist.
var incrOnce = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return -1
end
if redis.call('SET', KEYS[2], '1', 'NX', 'EX', ARGV[1]) then
	return redis.call('INCR', KEYS[1])
end
return tonumber(redis.call('GET', KEYS[1]))
`)

// seedOnce marks the event counted and sets the counter unless it exists.
var seedOnce = redis.NewScript(`
redis.call('SET', KEYS[2], '1', 'NX', 'EX', ARGV[1])
redis.call('SET', KEYS[1], ARGV[2], 'NX')
return tonumber(redis.call('GET', KEYS[1]))
`)

// IncrResponseCountOnce bumps a form's response counter for one submission
// event and returns the new value. Repeating an event id does not bump it
// again. A missing counter yields ErrMiss.
func (c *RedisCache) IncrResponseCountOnce(ctx context.Context, formID, eventID string) (int64, error) {
	keys := []string{config.CacheKey.FormResponseCountKey(formID), config.CacheKey.FormCountedEventKey(formID, eventID)}
	n, err := incrOnce.Run(ctx, c.rdb, keys, int(countedTTL.Seconds())).Int64()
	if err != nil {
		return 0, fmt.Errorf("incr response count: %w", err)
	}
	if n < 0 {
		return 0, ErrMiss
	}
	return n, nil
}

// SeedResponseCountOnce sets a missing counter to n, a store count that
// already includes the event's response, and marks the event counted.
func (c *RedisCache) SeedResponseCountOnce(ctx context.Context, formID, eventID string, n int64) (int64, error) {
	keys := []string{config.CacheKey.FormResponseCountKey(formID), config.CacheKey.FormCountedEventKey(formID, eventID)}
	got, err := seedOnce.Run(ctx, c.rdb, keys, int(countedTTL.Seconds()), n).Int64()
	if err != nil {
		return 0, fmt.Errorf("seed response count: %w", err)
	}
	return got, nil
}

// ResponseCount returns a form's response counter or ErrMiss.
func (c *RedisCache) ResponseCount(ctx context.Context, formID string) (int64, error) {
	n, err := c.rdb.Get(ctx, config.CacheKey.FormResponseCountKey(formID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, ErrMiss
	}
	return n, err
}

// SeedResponseCount sets a form's counter unless one already exists.
func (c *RedisCache) SeedResponseCount(ctx context.Context, formID string, n int64) error {
	return c.rdb.SetNX(ctx, config.CacheKey.FormResponseCountKey(formID), n, 0).Err()
}

// PublishFeed sends a message to a form's live feed channel.
func (c *RedisCache) PublishFeed(ctx context.Context, formID string, payload []byte) error {
	return c.rdb.Publish(ctx, config.CacheKey.FormResponsesChannel(formID), payload).Err()
}

// Feed is a live subscription to one form's feed channel.
type Feed struct {
	// C delivers message payloads until the feed is closed.
	C       <-chan string
	release func() error
}

// NewFeed wraps a payload channel and its release function.
func NewFeed(c <-chan string, release func() error) *Feed {
	return &Feed{C: c, release: release}
}

// Close ends the subscription.
func (f *Feed) Close() error { return f.release() }

// SubscribeFeed subscribes to a form's live feed channel and waits until
// Redis has confirmed the subscription. The caller closes the feed.
func (c *RedisCache) SubscribeFeed(ctx context.Context, formID string) (*Feed, error) {
	ps := c.rdb.Subscribe(ctx, config.CacheKey.FormResponsesChannel(formID))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe feed: %w", err)
	}

	out := make(chan string)
	go func() {
		defer close(out)
		for msg := range ps.Channel() {
			select {
			case out <- msg.Payload:
			case <-ctx.Done():
				return
			}
		}
	}()
	return NewFeed(out, ps.Close), nil
}

package views

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/blake2b"
)

const (
	cacheVersionKey = "billing:views:version"
	bumpChannel     = "billing.bump"
)

// Cache wraps Redis based caching of projections with versioning controls.
// A nil Cache or client disables caching. While ListenForInvalidation runs,
// the version is served from memory and kept current by published bumps;
// a missed bump is bounded by the entry TTL.
type Cache struct {
	client    *redis.Client
	ttl       time.Duration
	local     atomic.Int64
	listening atomic.Bool
}

// NewCache instantiates the cache helper.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

// Version returns the current cache version, initialising when missing.
func (c *Cache) Version(ctx context.Context) (int64, error) {
	if c == nil || c.client == nil {
		return 0, nil
	}
	if c.listening.Load() {
		if ver := c.local.Load(); ver > 0 {
			return ver, nil
		}
	}
	ver, err := c.client.Get(ctx, cacheVersionKey).Int64()
	if errors.Is(err, redis.Nil) {
		if err := c.client.SetNX(ctx, cacheVersionKey, 1, 0).Err(); err != nil {
			return 0, err
		}
		ver, err = c.client.Get(ctx, cacheVersionKey).Int64()
	}
	if err != nil {
		return 0, err
	}
	c.observe(ver)
	return ver, nil
}

// observe raises the in-memory version, never lowering it.
func (c *Cache) observe(ver int64) {
	for {
		cur := c.local.Load()
		if ver <= cur || c.local.CompareAndSwap(cur, ver) {
			return
		}
	}
}

// Key composes the cache key for a projection request at the current version.
func (c *Cache) Key(ctx context.Context, scope Scope, mode Mode, filters Filters) (string, error) {
	ver, err := c.Version(ctx)
	if err != nil {
		return "", err
	}
	return strings.Join([]string{"billing", "views", string(scope), string(mode), filterDigest(filters), strconv.FormatInt(ver, 10)}, ":"), nil
}

// filterDigest hashes the normalised filters so equivalent requests share a key.
func filterDigest(f Filters) string {
	statuses := make([]string, 0, len(f.Statuses))
	for _, s := range f.Statuses {
		statuses = append(statuses, strings.ToLower(strings.TrimSpace(s)))
	}
	sort.Strings(statuses)
	raw := fmt.Sprintf("%s|%s|%t", strings.Join(statuses, ","), normalize(f.Search), f.DeliveryOnly)
	sum := blake2b.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:12])
}

// Fetch loads cached views or populates them using the loader.
func (c *Cache) Fetch(ctx context.Context, key string, loader func(context.Context) ([]VirtualBillingView, error)) ([]VirtualBillingView, error) {
	if loader == nil {
		return nil, errors.New("views cache: loader required")
	}
	if c == nil || c.client == nil {
		return loader(ctx)
	}
	payload, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var out []VirtualBillingView
		if err := json.Unmarshal(payload, &out); err == nil {
			return out, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		return nil, err
	}

	views, err := loader(ctx)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(views)
	if err != nil {
		return nil, err
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		return nil, err
	}
	return views, nil
}

// Invalidate bumps the version so older keys are never read again and
// notifies other instances.
func (c *Cache) Invalidate(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	ver, err := c.client.Incr(ctx, cacheVersionKey).Result()
	if err != nil {
		return err
	}
	c.observe(ver)
	return c.client.Publish(ctx, bumpChannel, strconv.FormatInt(ver, 10)).Err()
}

// ListenForInvalidation follows version bumps published by other instances
// until ctx is done. Once subscribed, Version is answered from memory.
func (c *Cache) ListenForInvalidation(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	pubsub := c.client.Subscribe(ctx, bumpChannel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return err
	}
	// seed from the shared key before answering locally
	c.listening.Store(false)
	if _, err := c.Version(ctx); err != nil {
		_ = pubsub.Close()
		return err
	}
	c.listening.Store(true)
	go func() {
		defer func() {
			c.listening.Store(false)
			_ = pubsub.Close()
		}()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				ver, err := strconv.ParseInt(msg.Payload, 10, 64)
				if err != nil {
					continue
				}
				c.observe(ver)
			}
		}
	}()
	return nil
}

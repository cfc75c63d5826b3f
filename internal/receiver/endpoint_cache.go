package receiver

import (
	"context"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"webhooks.cc/backend/internal/wire"
)

type endpointEntry struct {
	info     *wire.EndpointInfo
	lastSync time.Time
}

// EndpointCache caches endpoint configuration per slug so mock
// responses can be served without touching the store. Refreshes are
// coalesced through singleflight: concurrent misses for one slug issue
// exactly one upstream call and share its result.
type EndpointCache struct {
	mu      sync.RWMutex
	entries map[string]*endpointEntry
	group   singleflight.Group
	ttl     time.Duration
	client  *Client
}

// NewEndpointCache builds the cache and starts a janitor that evicts
// stale entries until ctx is canceled.
func NewEndpointCache(ctx context.Context, ttl time.Duration, client *Client) *EndpointCache {
	c := &EndpointCache{
		entries: make(map[string]*endpointEntry),
		ttl:     ttl,
		client:  client,
	}
	go c.janitor(ctx)
	return c
}

// Get returns the endpoint info for slug, refreshing when the cached
// entry is older than the TTL. A failed refresh falls back to the
// stale entry when one exists; the error surfaces only on a cold miss.
func (c *EndpointCache) Get(ctx context.Context, slug string) (*wire.EndpointInfo, error) {
	c.mu.RLock()
	entry, exists := c.entries[slug]
	fresh := exists && time.Since(entry.lastSync) <= c.ttl
	c.mu.RUnlock()

	if fresh {
		return entry.info, nil
	}

	v, err, _ := c.group.Do(slug, func() (any, error) {
		// Another waiter may have refreshed while we queued.
		c.mu.RLock()
		e, ok := c.entries[slug]
		ok = ok && time.Since(e.lastSync) <= c.ttl
		c.mu.RUnlock()
		if ok {
			return e.info, nil
		}

		info, err := c.client.EndpointInfo(ctx, slug)
		if err != nil {
			return nil, err
		}
		// not_found is not cached: the endpoint may be created moments
		// after the first probe arrives.
		if info.Error == "" {
			c.mu.Lock()
			c.entries[slug] = &endpointEntry{info: info, lastSync: time.Now()}
			c.mu.Unlock()
		}
		return info, nil
	})
	if err != nil {
		if exists {
			log.Printf("Endpoint info refresh failed for %s, using stale cache: %v", slug, err)
			return entry.info, nil
		}
		return nil, err
	}

	return v.(*wire.EndpointInfo), nil
}

func (c *EndpointCache) janitor(ctx context.Context) {
	ticker := time.NewTicker(cacheJanitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.cleanup()
		}
	}
}

// cleanup drops entries that have aged past the TTL.
func (c *EndpointCache) cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for slug, entry := range c.entries {
		if time.Since(entry.lastSync) > c.ttl {
			delete(c.entries, slug)
		}
	}
}

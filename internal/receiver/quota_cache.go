package receiver

import (
	"context"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// QuotaEntry holds cached quota state for an endpoint's owner. The
// receiver decrements Remaining locally between refreshes, so the
// value is advisory and converges with the store on the next sync.
type QuotaEntry struct {
	OwnerID     string
	Remaining   int64
	Limit       int64
	PeriodEnd   int64
	IsUnlimited bool
	lastSync    time.Time
}

// QuotaCache caches owner quota per slug with single-flight refresh
// and stale-on-error fallback, mirroring EndpointCache.
type QuotaCache struct {
	mu      sync.RWMutex
	entries map[string]*QuotaEntry
	group   singleflight.Group
	ttl     time.Duration
	client  *Client
}

func NewQuotaCache(ctx context.Context, ttl time.Duration, client *Client) *QuotaCache {
	c := &QuotaCache{
		entries: make(map[string]*QuotaEntry),
		ttl:     ttl,
		client:  client,
	}
	go c.janitor(ctx)
	return c
}

// Check returns the quota entry for slug, refreshing stale entries.
// A nil entry with nil error means the store has no quota record for
// the slug; callers treat that as unlimited.
func (c *QuotaCache) Check(ctx context.Context, slug string) (*QuotaEntry, error) {
	c.mu.RLock()
	entry, exists := c.entries[slug]
	fresh := exists && time.Since(entry.lastSync) <= c.ttl
	c.mu.RUnlock()

	if fresh {
		return entry, nil
	}

	v, err, _ := c.group.Do(slug, func() (any, error) {
		c.mu.RLock()
		e, ok := c.entries[slug]
		ok = ok && time.Since(e.lastSync) <= c.ttl
		c.mu.RUnlock()
		if ok {
			return e, nil
		}
		return c.fetchAndStore(ctx, slug)
	})
	if err != nil {
		if exists {
			log.Printf("Quota refresh failed for %s, using stale cache: %v", slug, err)
			return entry, nil
		}
		return nil, err
	}
	if v == nil {
		return nil, nil
	}
	return v.(*QuotaEntry), nil
}

// fetchAndStore refreshes a slug's quota from the store. It returns a
// typed nil-free any so singleflight waiters can distinguish "no quota
// record" from an entry.
func (c *QuotaCache) fetchAndStore(ctx context.Context, slug string) (any, error) {
	resp, err := c.client.Quota(ctx, slug)
	if err != nil {
		return nil, err
	}

	if resp.Error == "not_found" {
		return nil, nil
	}

	entry := &QuotaEntry{
		OwnerID:     resp.OwnerID,
		Remaining:   resp.Remaining,
		Limit:       resp.Limit,
		IsUnlimited: resp.Remaining == -1,
		lastSync:    time.Now(),
	}
	if resp.PeriodEnd != nil {
		entry.PeriodEnd = *resp.PeriodEnd
	}

	c.mu.Lock()
	c.entries[slug] = entry
	c.mu.Unlock()

	return entry, nil
}

// Admit atomically consumes one unit of a slug's cached quota. It
// returns false only when the entry is finite and already exhausted,
// so two concurrent requests racing for the last unit admit exactly
// one. Unknown slugs admit (the quota check fails open).
func (c *QuotaCache) Admit(slug string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, exists := c.entries[slug]
	if !exists || entry.IsUnlimited {
		return true
	}
	if entry.Remaining <= 0 {
		return false
	}
	entry.Remaining--
	return true
}

func (c *QuotaCache) janitor(ctx context.Context) {
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

func (c *QuotaCache) cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for slug, entry := range c.entries {
		if time.Since(entry.lastSync) > c.ttl {
			delete(c.entries, slug)
		}
	}
}

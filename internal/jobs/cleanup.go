// Package jobs holds the store's background maintenance loops. Each
// job exposes RunOnce for tests and RunForever for the process.
package jobs

import (
	"context"
	"log/slog"
	"time"

	"webhooks.cc/backend/internal/store"
)

const (
	// cleanupBatchSize bounds both the expired-endpoint scan and the
	// per-endpoint request delete so a huge backlog cannot hold a long
	// write transaction.
	cleanupBatchSize = 100

	cleanupInterval = 60 * time.Second
)

// Cleaner removes expired endpoints and their captured requests in
// bounded batches.
type Cleaner struct {
	endpoints *store.EndpointStore
	requests  *store.RequestStore
	logger    *slog.Logger
}

func NewCleaner(endpoints *store.EndpointStore, requests *store.RequestStore, logger *slog.Logger) *Cleaner {
	return &Cleaner{endpoints: endpoints, requests: requests, logger: logger}
}

func (c *Cleaner) RunForever(ctx context.Context) {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.RunOnce(ctx); err != nil {
				c.logger.Error("cleanup pass failed", "error", err)
			}
		}
	}
}

// RunOnce drains one batch of expired endpoints. Each endpoint loses at
// most cleanupBatchSize requests per pass; the endpoint row itself is
// removed only once a partial batch shows its requests are gone, so an
// endpoint with a deep backlog survives across passes until drained.
func (c *Cleaner) RunOnce(ctx context.Context) error {
	now := time.Now().UnixMilli()
	expired, err := c.endpoints.ListExpired(now, cleanupBatchSize)
	if err != nil {
		return err
	}

	for _, ep := range expired {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		deleted, err := c.requests.DeleteByEndpoint(ep.ID, cleanupBatchSize)
		if err != nil {
			c.logger.Error("cleanup: delete requests", "slug", ep.Slug, "error", err)
			continue
		}
		if deleted >= cleanupBatchSize {
			// More rows may remain; leave the endpoint for the next pass.
			c.logger.Debug("cleanup: endpoint backlog remains", "slug", ep.Slug, "deleted", deleted)
			continue
		}

		if err := c.endpoints.Delete(ep.ID); err != nil {
			c.logger.Error("cleanup: delete endpoint", "slug", ep.Slug, "error", err)
			continue
		}
		c.logger.Info("cleanup: removed expired endpoint", "slug", ep.Slug, "requests", deleted)
	}
	return nil
}

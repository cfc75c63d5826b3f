package receiver

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"

	"webhooks.cc/backend/internal/wire"
)

// RequestBatcher buffers captured requests per slug and flushes them
// to the store in batches. A buffer flushes when it reaches maxSize or
// when interval elapses after the first enqueue; each Add re-arms the
// timer so bursts coalesce. In-flight dispatches are tracked by a wait
// group for graceful shutdown.
type RequestBatcher struct {
	mu       sync.Mutex
	wg       sync.WaitGroup
	buffers  map[string][]wire.BufferedRequest
	timers   map[string]*time.Timer
	maxSize  int
	interval time.Duration
	client   *Client
}

func NewRequestBatcher(maxSize int, interval time.Duration, client *Client) *RequestBatcher {
	return &RequestBatcher{
		buffers:  make(map[string][]wire.BufferedRequest),
		timers:   make(map[string]*time.Timer),
		maxSize:  maxSize,
		interval: interval,
		client:   client,
	}
}

// Add buffers a request under slug. The request is already accepted at
// this point, so Add never blocks on I/O and is not cancelable. A
// slug's buffer is capped at batchMaxPerSlug; overflow drops the
// oldest queued request.
func (b *RequestBatcher) Add(slug string, req wire.BufferedRequest) {
	b.mu.Lock()
	defer b.mu.Unlock()

	buf := b.buffers[slug]
	if len(buf) >= batchMaxPerSlug {
		buf = buf[1:]
	}
	b.buffers[slug] = append(buf, req)

	if len(b.buffers[slug]) >= b.maxSize {
		b.flushLocked(slug)
		return
	}

	if timer, exists := b.timers[slug]; exists {
		// Stop returns false if the timer already fired; its callback
		// will just find an empty buffer.
		timer.Stop()
	}
	b.timers[slug] = time.AfterFunc(b.interval, func() {
		b.Flush(slug)
	})
}

// Flush dispatches all buffered requests for a slug.
func (b *RequestBatcher) Flush(slug string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.flushLocked(slug)
}

// flushLocked must be called with b.mu held. It detaches the current
// buffer and dispatches it on a background context so an in-flight
// capture survives the inbound request's cancellation.
func (b *RequestBatcher) flushLocked(slug string) {
	requests := b.buffers[slug]
	if len(requests) == 0 {
		return
	}

	delete(b.buffers, slug)
	if timer, exists := b.timers[slug]; exists {
		timer.Stop()
		delete(b.timers, slug)
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), httpTimeout)
		defer cancel()

		resp, err := b.client.CaptureBatch(ctx, slug, requests)
		if err != nil {
			// No retry: the capture path is not idempotent, so a retry
			// could double-insert. The batch is dropped.
			log.Printf("Batch capture failed for %s (%d requests): %v", slug, len(requests), err)
			sentry.CaptureException(err)
			return
		}
		if resp.Error != "" {
			log.Printf("Batch capture error for %s: %s", slug, resp.Error)
			return
		}
		log.Printf("Batch captured %d requests for %s", resp.Inserted, slug)
	}()
}

// FlushAll enqueues every pending buffer for dispatch. Used on
// graceful shutdown before waiting on the group.
func (b *RequestBatcher) FlushAll() {
	b.mu.Lock()
	slugs := make([]string, 0, len(b.buffers))
	for slug := range b.buffers {
		slugs = append(slugs, slug)
	}
	b.mu.Unlock()

	for _, slug := range slugs {
		b.Flush(slug)
	}
}

// Wait blocks until all in-flight dispatch goroutines complete.
func (b *RequestBatcher) Wait() {
	b.wg.Wait()
}

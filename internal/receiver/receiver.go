// Package receiver implements the webhook capture edge: it accepts
// arbitrary HTTP at /w/{slug}, answers from cached endpoint
// configuration, enforces quota from cached state, and buffers
// captures for batched delivery to the store. All store I/O is off
// the request hot path.
package receiver

import "time"

const (
	// MaxBodySize caps inbound webhook bodies; fiber rejects larger
	// requests with 413 before the handler runs.
	MaxBodySize = 100 * 1024

	// ShutdownTimeout bounds the wait for in-flight batch flushes on
	// graceful shutdown.
	ShutdownTimeout = 10 * time.Second

	maxStoreResponseSize = 1024 * 1024
	httpTimeout          = 10 * time.Second

	quotaCacheTTL    = 30 * time.Second
	endpointCacheTTL = 60 * time.Second

	batchFlushInterval = 100 * time.Millisecond
	batchMaxSize       = 50
	batchMaxPerSlug    = 1000

	maxHeaderKeyLen   = 256
	maxHeaderValueLen = 8192

	circuitFailureThreshold = 5
	circuitCooldown         = 30 * time.Second

	cacheJanitorInterval = 5 * time.Minute
)

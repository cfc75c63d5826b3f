package receiver

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"webhooks.cc/backend/internal/wire"
)

// blockedHeaders must never be forwarded from mock responses.
var blockedHeaders = map[string]bool{
	"set-cookie":                true,
	"strict-transport-security": true,
	"content-security-policy":   true,
	"x-frame-options":           true,
}

// Receiver wires the two caches and the batcher behind the webhook
// handler. One instance lives for the process lifetime.
type Receiver struct {
	endpoints *EndpointCache
	quotas    *QuotaCache
	batcher   *RequestBatcher
}

// New builds a Receiver whose cache janitors stop when ctx is
// canceled.
func New(ctx context.Context, client *Client) *Receiver {
	return &Receiver{
		endpoints: NewEndpointCache(ctx, endpointCacheTTL, client),
		quotas:    NewQuotaCache(ctx, quotaCacheTTL, client),
		batcher:   NewRequestBatcher(batchMaxSize, batchFlushInterval, client),
	}
}

// Batcher exposes the request batcher for shutdown flushing.
func (rcv *Receiver) Batcher() *RequestBatcher {
	return rcv.batcher
}

// realIP extracts the client IP from proxy headers, falling back to
// the direct connection IP. The reverse proxy sets X-Forwarded-For and
// X-Real-Ip.
func realIP(c *fiber.Ctx) string {
	if ip := c.Get("X-Real-Ip"); ip != "" {
		return ip
	}
	// X-Forwarded-For can be a comma-separated chain; first entry is the client
	if xff := c.Get("X-Forwarded-For"); xff != "" {
		if i := strings.IndexByte(xff, ','); i > 0 {
			return strings.TrimSpace(xff[:i])
		}
		return strings.TrimSpace(xff)
	}
	return c.IP()
}

// HandleWebhook processes an inbound webhook: resolve the endpoint
// from cache, admit against cached quota, buffer the capture, and
// answer with the configured mock response. No store write happens on
// this path.
func (rcv *Receiver) HandleWebhook(c *fiber.Ctx) error {
	slug := c.Params("slug")
	if !wire.ValidSlug(slug) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_slug"})
	}

	path := c.Params("*")
	if path == "" {
		path = "/"
	} else if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	endpointInfo, err := rcv.endpoints.Get(c.Context(), slug)
	if err != nil {
		log.Printf("Endpoint info fetch failed for %s: %v", slug, err)
		return c.Status(fiber.StatusInternalServerError).SendString("Internal server error")
	}
	if endpointInfo == nil || endpointInfo.Error == "not_found" {
		return c.Status(fiber.StatusNotFound).SendString("Endpoint not found")
	}

	// expiresAt == now counts as expired; only strictly-future expiry
	// is valid.
	if endpointInfo.ExpiresAt != nil && *endpointInfo.ExpiresAt <= time.Now().UnixMilli() {
		return c.Status(fiber.StatusGone).SendString("Endpoint expired")
	}

	// Quota fails open: an unreachable store must not block ingest.
	quota, err := rcv.quotas.Check(c.Context(), slug)
	if err != nil {
		log.Printf("Quota check failed for %s, allowing request: %v", slug, err)
	} else if quota != nil && !quota.IsUnlimited {
		if !rcv.quotas.Admit(slug) {
			return c.Status(fiber.StatusTooManyRequests).SendString("Request limit exceeded")
		}
	}

	headers := make(map[string]string)
	c.Request().Header.VisitAll(func(key, value []byte) {
		headers[string(key)] = string(value)
	})

	queryParams := make(map[string]string)
	c.Request().URI().QueryArgs().VisitAll(func(key, value []byte) {
		queryParams[string(key)] = string(value)
	})

	rcv.batcher.Add(slug, wire.BufferedRequest{
		Method:      c.Method(),
		Path:        path,
		Headers:     headers,
		Body:        string(c.Body()),
		QueryParams: queryParams,
		IP:          realIP(c),
		ReceivedAt:  time.Now().UnixMilli(),
	})

	if endpointInfo.MockResponse != nil {
		return sendMockResponse(c, endpointInfo.MockResponse)
	}

	return c.SendString("OK")
}

// sendMockResponse emits the endpoint's configured response. Unsafe
// headers, CRLF-bearing keys or values, and oversized headers are
// dropped; a status outside [100,599] falls back to 200.
func sendMockResponse(c *fiber.Ctx, mock *wire.MockResponse) error {
	for key, value := range mock.Headers {
		if len(key) > maxHeaderKeyLen || len(value) > maxHeaderValueLen {
			continue
		}
		if blockedHeaders[strings.ToLower(key)] {
			continue
		}
		if strings.ContainsAny(key, "\r\n") || strings.ContainsAny(value, "\r\n") {
			continue
		}
		c.Set(key, value)
	}

	status := mock.Status
	if status < 100 || status > 599 {
		status = fiber.StatusOK
	}
	return c.Status(status).SendString(mock.Body)
}

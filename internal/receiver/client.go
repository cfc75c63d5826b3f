package receiver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"webhooks.cc/backend/internal/wire"
)

// errCircuitOpen is returned without touching the network when the
// store circuit breaker is rejecting calls.
var errCircuitOpen = errors.New("store circuit open")

// Client talks to the store's internal HTTP actions. All calls carry
// the shared bearer secret and cap the response body at 1MB.
type Client struct {
	baseURL string
	secret  string
	http    *http.Client
	circuit *circuitBreaker
}

func NewClient(baseURL, secret string) *Client {
	return &Client{
		baseURL: baseURL,
		secret:  secret,
		http: &http.Client{
			Timeout: httpTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 100,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		circuit: newCircuitBreaker(circuitFailureThreshold, circuitCooldown),
	}
}

// EndpointInfo fetches endpoint configuration for a slug.
func (c *Client) EndpointInfo(ctx context.Context, slug string) (*wire.EndpointInfo, error) {
	var result wire.EndpointInfo
	if err := c.get(ctx, "/endpoint-info?slug="+url.QueryEscape(slug), &result); err != nil {
		return nil, fmt.Errorf("fetch endpoint info: %w", err)
	}
	return &result, nil
}

// Quota fetches the remaining request budget for a slug's owner.
func (c *Client) Quota(ctx context.Context, slug string) (*wire.QuotaResponse, error) {
	var result wire.QuotaResponse
	if err := c.get(ctx, "/quota?slug="+url.QueryEscape(slug), &result); err != nil {
		return nil, fmt.Errorf("fetch quota: %w", err)
	}
	return &result, nil
}

// CaptureBatch ships a slug's buffered requests to the store.
func (c *Client) CaptureBatch(ctx context.Context, slug string, requests []wire.BufferedRequest) (*wire.CaptureResponse, error) {
	payload, err := json.Marshal(wire.BatchCaptureRequest{
		Slug:     slug,
		Requests: requests,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal batch request: %w", err)
	}

	var result wire.CaptureResponse
	if err := c.post(ctx, "/capture-batch", payload, &result); err != nil {
		return nil, fmt.Errorf("capture batch: %w", err)
	}
	return &result, nil
}

// Capture ships a single request on the legacy non-batched path.
func (c *Client) Capture(ctx context.Context, req wire.CaptureRequest) (*wire.CaptureResponse, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal capture request: %w", err)
	}

	var result wire.CaptureResponse
	if err := c.post(ctx, "/capture", payload, &result); err != nil {
		return nil, fmt.Errorf("capture: %w", err)
	}
	return &result, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	return c.do(req, out)
}

func (c *Client) post(ctx context.Context, path string, payload []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	if !c.circuit.AllowRequest() {
		return errCircuitOpen
	}

	if c.secret != "" {
		req.Header.Set("Authorization", "Bearer "+c.secret)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.circuit.RecordFailure()
		return fmt.Errorf("call store: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxStoreResponseSize))
	if err != nil {
		c.circuit.RecordFailure()
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Validation failures (4xx) are not a store outage; only count
		// server-side errors against the circuit.
		if resp.StatusCode >= 500 {
			c.circuit.RecordFailure()
		} else {
			c.circuit.RecordSuccess()
		}
		return fmt.Errorf("store returned status %d: %s", resp.StatusCode, string(body))
	}

	c.circuit.RecordSuccess()

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}

package receiver

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"webhooks.cc/backend/internal/wire"
)

func TestBatcherAdd_BufferLimitDropsOldest(t *testing.T) {
	b := NewRequestBatcher(9999, 1*time.Hour, nil) // high maxSize to prevent auto-flush

	slug := "test-slug"
	for i := 0; i < batchMaxPerSlug; i++ {
		b.Add(slug, wire.BufferedRequest{Method: "GET", IP: fmt.Sprintf("ip-%d", i)})
	}

	b.mu.Lock()
	if len(b.buffers[slug]) != batchMaxPerSlug {
		t.Errorf("expected buffer at %d, got %d", batchMaxPerSlug, len(b.buffers[slug]))
	}
	firstIP := b.buffers[slug][0].IP
	b.mu.Unlock()

	// One more drops the oldest
	b.Add(slug, wire.BufferedRequest{Method: "POST", IP: "ip-new"})

	b.mu.Lock()
	if len(b.buffers[slug]) != batchMaxPerSlug {
		t.Errorf("expected buffer still at %d, got %d", batchMaxPerSlug, len(b.buffers[slug]))
	}
	newFirstIP := b.buffers[slug][0].IP
	b.mu.Unlock()

	if newFirstIP == firstIP {
		t.Error("oldest request should have been dropped")
	}
}

func TestBatcherAdd_FlushAtMaxSize(t *testing.T) {
	var mu sync.Mutex
	var received []wire.BufferedRequest
	mockStore := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var payload wire.BatchCaptureRequest
		if err := json.Unmarshal(body, &payload); err != nil {
			t.Errorf("unmarshal batch payload: %v", err)
		}
		mu.Lock()
		received = append(received, payload.Requests...)
		mu.Unlock()
		if err := json.NewEncoder(w).Encode(wire.CaptureResponse{Success: true, Inserted: len(payload.Requests)}); err != nil {
			t.Errorf("encode CaptureResponse: %v", err)
		}
	}))
	defer mockStore.Close()

	client := NewClient(mockStore.URL, "test-secret")
	b := NewRequestBatcher(batchMaxSize, 1*time.Hour, client) // long interval to prevent timer flush

	slug := "flush-test"
	for i := 0; i < batchMaxSize; i++ {
		b.Add(slug, wire.BufferedRequest{Method: "POST", IP: fmt.Sprintf("ip-%d", i)})
	}

	// Wait for the async flush goroutine
	b.Wait()

	b.mu.Lock()
	remaining := len(b.buffers[slug])
	b.mu.Unlock()

	if remaining != 0 {
		t.Errorf("expected empty buffer after flush, got %d", remaining)
	}

	mu.Lock()
	if len(received) != batchMaxSize {
		t.Errorf("expected %d requests sent, got %d", batchMaxSize, len(received))
	}
	mu.Unlock()
}

func TestBatcherAdd_IntervalFlush(t *testing.T) {
	var sent sync.WaitGroup
	sent.Add(1)
	mockStore := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer sent.Done()
		var payload wire.BatchCaptureRequest
		_ = json.NewDecoder(r.Body).Decode(&payload)
		if len(payload.Requests) != 2 {
			t.Errorf("expected 2 buffered requests, got %d", len(payload.Requests))
		}
		_ = json.NewEncoder(w).Encode(wire.CaptureResponse{Success: true, Inserted: len(payload.Requests)})
	}))
	defer mockStore.Close()

	client := NewClient(mockStore.URL, "test-secret")
	b := NewRequestBatcher(9999, 30*time.Millisecond, client)

	b.Add("interval-test", wire.BufferedRequest{Method: "GET"})
	b.Add("interval-test", wire.BufferedRequest{Method: "POST"})

	sent.Wait()
	b.Wait()
}

func TestBatcherAdd_MultipleSlugsIndependent(t *testing.T) {
	b := NewRequestBatcher(9999, 1*time.Hour, nil)

	b.Add("slug-a", wire.BufferedRequest{Method: "GET"})
	b.Add("slug-a", wire.BufferedRequest{Method: "GET"})
	b.Add("slug-b", wire.BufferedRequest{Method: "POST"})

	b.mu.Lock()
	lenA := len(b.buffers["slug-a"])
	lenB := len(b.buffers["slug-b"])
	b.mu.Unlock()

	if lenA != 2 {
		t.Errorf("slug-a: expected 2, got %d", lenA)
	}
	if lenB != 1 {
		t.Errorf("slug-b: expected 1, got %d", lenB)
	}
}

func TestBatcherFlushAll(t *testing.T) {
	var mu sync.Mutex
	slugs := make(map[string]int)
	mockStore := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload wire.BatchCaptureRequest
		_ = json.NewDecoder(r.Body).Decode(&payload)
		mu.Lock()
		slugs[payload.Slug] += len(payload.Requests)
		mu.Unlock()
		_ = json.NewEncoder(w).Encode(wire.CaptureResponse{Success: true, Inserted: len(payload.Requests)})
	}))
	defer mockStore.Close()

	client := NewClient(mockStore.URL, "test-secret")
	b := NewRequestBatcher(9999, 1*time.Hour, client)

	b.Add("drain-a", wire.BufferedRequest{Method: "GET"})
	b.Add("drain-b", wire.BufferedRequest{Method: "POST"})

	b.FlushAll()
	b.Wait()

	mu.Lock()
	defer mu.Unlock()
	if slugs["drain-a"] != 1 || slugs["drain-b"] != 1 {
		t.Errorf("expected one request per slug after FlushAll, got %v", slugs)
	}
}

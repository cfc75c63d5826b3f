package server

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"webhooks.cc/backend/internal/model"
	"webhooks.cc/backend/internal/wire"
)

// handleCaptureBatch persists a slug's buffered requests in one
// transaction, then schedules the deferred usage increment for the
// endpoint's owner. Validation failures reject the whole batch.
func (s *Server) handleCaptureBatch(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxCapturePayload))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}

	var req wire.BatchCaptureRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}

	if !wire.ValidSlug(req.Slug) {
		writeError(w, http.StatusBadRequest, "invalid_slug")
		return
	}
	if len(req.Requests) == 0 {
		writeError(w, http.StatusBadRequest, "invalid_requests")
		return
	}
	if len(req.Requests) > maxBatchSize {
		writeError(w, http.StatusBadRequest, "batch_too_large")
		return
	}
	for _, queued := range req.Requests {
		if kind := validateCapture(queued); kind != "" {
			s.logger.Warn("batch rejected", "slug", req.Slug, "count", len(req.Requests), "kind", kind)
			writeError(w, statusForKind(kind), kind)
			return
		}
	}

	s.insertAndRespond(w, req.Slug, req.Requests, false)
}

// handleCapture is the legacy single-capture path. The store assigns
// receivedAt here, and the response carries the endpoint's mock so a
// non-batching receiver can answer from it.
func (s *Server) handleCapture(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxCapturePayload))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}

	var req wire.CaptureRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}

	if !wire.ValidSlug(req.Slug) {
		writeError(w, http.StatusBadRequest, "invalid_slug")
		return
	}

	queued := wire.BufferedRequest{
		Method:      req.Method,
		Path:        req.Path,
		Headers:     req.Headers,
		Body:        req.Body,
		QueryParams: req.QueryParams,
		IP:          req.IP,
		ReceivedAt:  time.Now().UnixMilli(),
	}
	if kind := validateCapture(queued); kind != "" {
		writeError(w, statusForKind(kind), kind)
		return
	}

	s.insertAndRespond(w, req.Slug, []wire.BufferedRequest{queued}, true)
}

func (s *Server) insertAndRespond(w http.ResponseWriter, slug string, requests []wire.BufferedRequest, includeMock bool) {
	ep, err := s.endpoints.GetBySlug(slug)
	if err != nil {
		s.logger.Error("capture: endpoint lookup", "slug", slug, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error")
		return
	}
	if ep == nil {
		writeJSON(w, http.StatusOK, wire.CaptureResponse{Error: "not_found"})
		return
	}
	if expired(ep, time.Now().UnixMilli()) {
		writeJSON(w, http.StatusOK, wire.CaptureResponse{Error: "expired"})
		return
	}

	inserted, err := s.requests.InsertBatch(ep.ID, requests)
	if err != nil {
		s.logger.Error("capture: insert batch", "slug", slug, "count", len(requests), "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error")
		return
	}

	if err := s.endpoints.IncrementRequestCount(ep.ID, inserted); err != nil {
		// Advisory counter only; the capture itself succeeded.
		s.logger.Warn("capture: bump request count", "slug", slug, "error", err)
	}

	// The owner counter is advanced off this path so endpoints of one
	// owner never contend on the user row during capture.
	if ep.OwnerID != nil && inserted > 0 {
		s.usage.Enqueue(*ep.OwnerID, int64(inserted))
	}

	resp := wire.CaptureResponse{Success: true, Inserted: inserted}
	if includeMock {
		resp.MockResponse = ep.MockResponse
	}
	writeJSON(w, http.StatusOK, resp)
}

// expired reports whether the endpoint's expiry has passed. An expiry
// equal to now already counts as expired.
func expired(ep *model.Endpoint, now int64) bool {
	return ep.ExpiresAt != nil && *ep.ExpiresAt <= now
}

package server

import (
	"net/http"

	"webhooks.cc/backend/internal/wire"
)

// handleQuota answers the receiver's quota snapshot for a slug.
// Ephemeral and owner-less endpoints report remaining=-1 (unlimited);
// owned endpoints report the owner's live counters.
func (s *Server) handleQuota(w http.ResponseWriter, r *http.Request) {
	slug := r.URL.Query().Get("slug")
	if !wire.ValidSlug(slug) {
		writeError(w, http.StatusBadRequest, "invalid_slug")
		return
	}

	ep, err := s.endpoints.GetBySlug(slug)
	if err != nil {
		s.logger.Error("quota: endpoint lookup", "slug", slug, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error")
		return
	}
	if ep == nil {
		writeJSON(w, http.StatusOK, wire.QuotaResponse{Error: "not_found", Remaining: -1})
		return
	}

	if ep.IsEphemeral || ep.OwnerID == nil {
		writeJSON(w, http.StatusOK, wire.QuotaResponse{Remaining: -1})
		return
	}

	owner, err := s.users.GetByID(*ep.OwnerID)
	if err != nil {
		s.logger.Error("quota: owner lookup", "slug", slug, "owner", *ep.OwnerID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error")
		return
	}
	if owner == nil {
		// Orphaned owner reference. Treat as unlimited rather than
		// blocking the endpoint's traffic.
		writeJSON(w, http.StatusOK, wire.QuotaResponse{Remaining: -1})
		return
	}

	// Usage can overshoot the limit because increments are deferred.
	// Clamp at zero so a finite quota is never mistaken for the -1
	// unlimited sentinel.
	remaining := owner.RequestLimit - owner.RequestsUsed
	if remaining < 0 {
		remaining = 0
	}
	writeJSON(w, http.StatusOK, wire.QuotaResponse{
		OwnerID:   owner.ID,
		Remaining: remaining,
		Limit:     owner.RequestLimit,
		PeriodEnd: owner.PeriodEnd,
	})
}

// handleEndpointInfo returns the endpoint metadata the receiver caches:
// ownership, expiry and the configured mock response. Expired endpoints
// still resolve here; the receiver turns the expiry into a 410.
func (s *Server) handleEndpointInfo(w http.ResponseWriter, r *http.Request) {
	slug := r.URL.Query().Get("slug")
	if !wire.ValidSlug(slug) {
		writeError(w, http.StatusBadRequest, "invalid_slug")
		return
	}

	ep, err := s.endpoints.GetBySlug(slug)
	if err != nil {
		s.logger.Error("endpoint-info: lookup", "slug", slug, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error")
		return
	}
	if ep == nil {
		writeJSON(w, http.StatusOK, wire.EndpointInfo{Error: "not_found"})
		return
	}

	writeJSON(w, http.StatusOK, wire.EndpointInfo{
		EndpointID:   ep.ID,
		OwnerID:      ep.OwnerID,
		IsEphemeral:  ep.IsEphemeral,
		ExpiresAt:    ep.ExpiresAt,
		MockResponse: ep.MockResponse,
	})
}

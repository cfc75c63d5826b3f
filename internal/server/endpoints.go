package server

import (
	"crypto/rand"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"webhooks.cc/backend/internal/model"
	"webhooks.cc/backend/internal/wire"
)

// slugAlphabet avoids uppercase so generated slugs read the same in
// URLs regardless of how clients case-fold them.
const slugAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

func generateSlug() (string, error) {
	buf := make([]byte, generatedSlugLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i, b := range buf {
		buf[i] = slugAlphabet[int(b)%len(slugAlphabet)]
	}
	return string(buf), nil
}

// handleCreateEndpoint provisions an endpoint. Without an ownerId the
// endpoint is ephemeral and expires after the configured TTL; with one
// it is permanent and counts against the owner's quota.
func (s *Server) handleCreateEndpoint(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxEndpointPayload))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}

	var req wire.CreateEndpointRequest
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_json")
			return
		}
	}

	slug := req.Slug
	if slug == "" {
		slug, err = generateSlug()
		if err != nil {
			s.logger.Error("create endpoint: generate slug", "error", err)
			writeError(w, http.StatusInternalServerError, "internal_error")
			return
		}
	} else if !wire.ValidSlug(slug) {
		writeError(w, http.StatusBadRequest, "invalid_slug")
		return
	}

	if req.MockResponse != nil {
		if req.MockResponse.Status < 100 || req.MockResponse.Status > 599 {
			writeError(w, http.StatusBadRequest, "invalid_mock_response")
			return
		}
	}

	ep := &model.Endpoint{
		Slug:         slug,
		Name:         req.Name,
		MockResponse: req.MockResponse,
	}

	if req.OwnerID != "" {
		owner, err := s.users.GetByID(req.OwnerID)
		if err != nil {
			s.logger.Error("create endpoint: owner lookup", "owner", req.OwnerID, "error", err)
			writeError(w, http.StatusInternalServerError, "internal_error")
			return
		}
		if owner == nil {
			writeError(w, http.StatusBadRequest, "unknown_owner")
			return
		}
		ep.OwnerID = &owner.ID
	} else {
		expiresAt := time.Now().UnixMilli() + s.cfg.EphemeralTTLMS
		ep.IsEphemeral = true
		ep.ExpiresAt = &expiresAt
	}

	created, err := s.endpoints.Create(ep)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			writeJSON(w, http.StatusConflict, wire.CreateEndpointResponse{Error: "slug_taken"})
			return
		}
		s.logger.Error("create endpoint: insert", "slug", slug, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error")
		return
	}

	writeJSON(w, http.StatusCreated, wire.CreateEndpointResponse{
		EndpointID:  created.ID,
		Slug:        created.Slug,
		IsEphemeral: created.IsEphemeral,
		ExpiresAt:   created.ExpiresAt,
	})
}

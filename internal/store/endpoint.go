package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"webhooks.cc/backend/internal/model"
	"webhooks.cc/backend/internal/wire"
)

type EndpointStore struct {
	db *sql.DB
}

func NewEndpointStore(db *sql.DB) *EndpointStore {
	return &EndpointStore{db: db}
}

const endpointCols = `id, slug, owner_id, name, mock_status, mock_body, mock_headers, is_ephemeral, expires_at, request_count, created_at`

func scanEndpoint(scanner interface{ Scan(...any) error }) (*model.Endpoint, error) {
	var ep model.Endpoint
	var ownerID sql.NullString
	var mockStatus sql.NullInt64
	var mockBody, mockHeaders sql.NullString
	var expiresAt sql.NullInt64

	err := scanner.Scan(
		&ep.ID, &ep.Slug, &ownerID, &ep.Name, &mockStatus, &mockBody,
		&mockHeaders, &ep.IsEphemeral, &expiresAt, &ep.RequestCount, &ep.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if ownerID.Valid {
		ep.OwnerID = &ownerID.String
	}
	if expiresAt.Valid {
		ep.ExpiresAt = &expiresAt.Int64
	}
	if mockStatus.Valid {
		mock := &wire.MockResponse{
			Status: int(mockStatus.Int64),
			Body:   mockBody.String,
		}
		if mockHeaders.Valid && mockHeaders.String != "" {
			if err := json.Unmarshal([]byte(mockHeaders.String), &mock.Headers); err != nil {
				return nil, fmt.Errorf("decode mock headers: %w", err)
			}
		}
		ep.MockResponse = mock
	}
	return &ep, nil
}

// Create inserts a new endpoint. ID and CreatedAt are assigned here.
func (s *EndpointStore) Create(ep *model.Endpoint) (*model.Endpoint, error) {
	ep.ID = uuid.NewString()
	ep.CreatedAt = time.Now().UnixMilli()

	var ownerID sql.NullString
	if ep.OwnerID != nil {
		ownerID = sql.NullString{String: *ep.OwnerID, Valid: true}
	}
	var expiresAt sql.NullInt64
	if ep.ExpiresAt != nil {
		expiresAt = sql.NullInt64{Int64: *ep.ExpiresAt, Valid: true}
	}

	var mockStatus sql.NullInt64
	var mockBody, mockHeaders sql.NullString
	if ep.MockResponse != nil {
		mockStatus = sql.NullInt64{Int64: int64(ep.MockResponse.Status), Valid: true}
		mockBody = sql.NullString{String: ep.MockResponse.Body, Valid: true}
		if len(ep.MockResponse.Headers) > 0 {
			raw, err := json.Marshal(ep.MockResponse.Headers)
			if err != nil {
				return nil, fmt.Errorf("encode mock headers: %w", err)
			}
			mockHeaders = sql.NullString{String: string(raw), Valid: true}
		}
	}

	_, err := s.db.Exec(
		`INSERT INTO endpoints (id, slug, owner_id, name, mock_status, mock_body, mock_headers, is_ephemeral, expires_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ep.ID, ep.Slug, ownerID, ep.Name, mockStatus, mockBody, mockHeaders,
		ep.IsEphemeral, expiresAt, ep.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert endpoint: %w", err)
	}
	return s.GetBySlug(ep.Slug)
}

// GetBySlug returns the endpoint for a slug, or nil if none exists.
func (s *EndpointStore) GetBySlug(slug string) (*model.Endpoint, error) {
	row := s.db.QueryRow(`SELECT `+endpointCols+` FROM endpoints WHERE slug = ?`, slug)
	ep, err := scanEndpoint(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get endpoint by slug: %w", err)
	}
	return ep, nil
}

// ListExpired returns up to limit endpoints whose expiry is strictly
// in the past.
func (s *EndpointStore) ListExpired(now int64, limit int) ([]*model.Endpoint, error) {
	rows, err := s.db.Query(
		`SELECT `+endpointCols+` FROM endpoints WHERE expires_at IS NOT NULL AND expires_at < ? LIMIT ?`,
		now, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list expired endpoints: %w", err)
	}
	defer rows.Close()

	var endpoints []*model.Endpoint
	for rows.Next() {
		ep, err := scanEndpoint(rows)
		if err != nil {
			return nil, fmt.Errorf("scan expired endpoint: %w", err)
		}
		endpoints = append(endpoints, ep)
	}
	return endpoints, rows.Err()
}

// IncrementRequestCount advances the denormalized per-endpoint
// counter. The counter is advisory; quota enforcement never reads it.
func (s *EndpointStore) IncrementRequestCount(id string, n int) error {
	_, err := s.db.Exec(
		`UPDATE endpoints SET request_count = request_count + ? WHERE id = ?`,
		n, id,
	)
	if err != nil {
		return fmt.Errorf("increment request count: %w", err)
	}
	return nil
}

func (s *EndpointStore) Delete(id string) error {
	_, err := s.db.Exec(`DELETE FROM endpoints WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete endpoint: %w", err)
	}
	return nil
}

package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"webhooks.cc/backend/internal/model"
	"webhooks.cc/backend/internal/wire"
)

type RequestStore struct {
	db *sql.DB
}

func NewRequestStore(db *sql.DB) *RequestStore {
	return &RequestStore{db: db}
}

const requestCols = `id, endpoint_id, method, path, headers, body, query_params, content_type, ip, size, received_at`

func scanRequest(scanner interface{ Scan(...any) error }) (*model.Request, error) {
	var req model.Request
	var headers, queryParams string
	var body, contentType sql.NullString

	err := scanner.Scan(
		&req.ID, &req.EndpointID, &req.Method, &req.Path, &headers, &body,
		&queryParams, &contentType, &req.IP, &req.Size, &req.ReceivedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(headers), &req.Headers); err != nil {
		return nil, fmt.Errorf("decode headers: %w", err)
	}
	if err := json.Unmarshal([]byte(queryParams), &req.QueryParams); err != nil {
		return nil, fmt.Errorf("decode query params: %w", err)
	}
	req.Body = body.String
	req.ContentType = contentType.String
	return &req, nil
}

// contentTypeOf looks up the Content-Type header case-insensitively.
func contentTypeOf(headers map[string]string) string {
	for key, value := range headers {
		if strings.EqualFold(key, "Content-Type") {
			return value
		}
	}
	return ""
}

// InsertBatch persists a slug's buffered requests inside a single
// transaction, preserving their order. Size and contentType are
// derived here. Returns the number of rows inserted.
func (s *RequestStore) InsertBatch(endpointID string, requests []wire.BufferedRequest) (int, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin batch insert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT INTO requests (id, endpoint_id, method, path, headers, body, query_params, content_type, ip, size, received_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return 0, fmt.Errorf("prepare batch insert: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, req := range requests {
		headers, err := json.Marshal(req.Headers)
		if err != nil {
			return 0, fmt.Errorf("encode headers: %w", err)
		}
		queryParams, err := json.Marshal(req.QueryParams)
		if err != nil {
			return 0, fmt.Errorf("encode query params: %w", err)
		}

		var body sql.NullString
		if req.Body != "" {
			body = sql.NullString{String: req.Body, Valid: true}
		}
		var contentType sql.NullString
		if ct := contentTypeOf(req.Headers); ct != "" {
			contentType = sql.NullString{String: ct, Valid: true}
		}

		_, err = stmt.Exec(
			uuid.NewString(), endpointID, req.Method, req.Path, string(headers),
			body, string(queryParams), contentType, req.IP, len(req.Body), req.ReceivedAt,
		)
		if err != nil {
			return 0, fmt.Errorf("insert request: %w", err)
		}
		inserted++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit batch insert: %w", err)
	}
	return inserted, nil
}

// ListByEndpoint returns up to limit requests for an endpoint, newest
// first.
func (s *RequestStore) ListByEndpoint(endpointID string, limit int) ([]*model.Request, error) {
	rows, err := s.db.Query(
		`SELECT `+requestCols+` FROM requests WHERE endpoint_id = ? ORDER BY received_at DESC, id LIMIT ?`,
		endpointID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	defer rows.Close()

	var requests []*model.Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan request: %w", err)
		}
		requests = append(requests, req)
	}
	return requests, rows.Err()
}

// CountByEndpoint returns the number of persisted rows for an endpoint.
func (s *RequestStore) CountByEndpoint(endpointID string) (int64, error) {
	var count int64
	err := s.db.QueryRow(`SELECT COUNT(*) FROM requests WHERE endpoint_id = ?`, endpointID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count requests: %w", err)
	}
	return count, nil
}

// DeleteByEndpoint removes up to limit rows for an endpoint and
// returns how many were deleted. The cleanup job calls this repeatedly
// until a partial batch signals the endpoint is drained.
func (s *RequestStore) DeleteByEndpoint(endpointID string, limit int) (int64, error) {
	result, err := s.db.Exec(
		`DELETE FROM requests WHERE id IN (SELECT id FROM requests WHERE endpoint_id = ? LIMIT ?)`,
		endpointID, limit,
	)
	if err != nil {
		return 0, fmt.Errorf("delete requests: %w", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return count, nil
}

// Package wire holds the JSON types that cross the receiver/store
// boundary. Every response shape carries an optional Error kind; a
// response is either ok or an error, never both.
package wire

// ValidSlug reports whether slug matches ^[A-Za-z0-9_-]{1,50}$.
func ValidSlug(slug string) bool {
	if len(slug) == 0 || len(slug) > 50 {
		return false
	}
	for i := 0; i < len(slug); i++ {
		b := slug[i]
		switch {
		case b >= 'a' && b <= 'z':
		case b >= 'A' && b <= 'Z':
		case b >= '0' && b <= '9':
		case b == '-' || b == '_':
		default:
			return false
		}
	}
	return true
}

// MockResponse defines the HTTP response an endpoint returns for a
// captured webhook.
type MockResponse struct {
	Status  int               `json:"status"`
	Body    string            `json:"body"`
	Headers map[string]string `json:"headers"`
}

// BufferedRequest holds captured request data waiting to be shipped to
// the store. ReceivedAt is assigned by the receiver at ingest time.
type BufferedRequest struct {
	Method      string            `json:"method"`
	Path        string            `json:"path"`
	Headers     map[string]string `json:"headers"`
	Body        string            `json:"body,omitempty"`
	QueryParams map[string]string `json:"queryParams"`
	IP          string            `json:"ip"`
	ReceivedAt  int64             `json:"receivedAt"`
}

// CaptureRequest is the single-capture payload for POST /capture.
// The store assigns receivedAt server-side on this path.
type CaptureRequest struct {
	Slug        string            `json:"slug"`
	Method      string            `json:"method"`
	Path        string            `json:"path"`
	Headers     map[string]string `json:"headers"`
	Body        string            `json:"body,omitempty"`
	QueryParams map[string]string `json:"queryParams"`
	IP          string            `json:"ip"`
}

// BatchCaptureRequest is the payload for POST /capture-batch.
type BatchCaptureRequest struct {
	Slug     string            `json:"slug"`
	Requests []BufferedRequest `json:"requests"`
}

// CaptureResponse is returned by both capture paths. MockResponse is
// populated only on the single-capture path so the legacy non-batched
// receiver can respond from it.
type CaptureResponse struct {
	Success      bool          `json:"success,omitempty"`
	Error        string        `json:"error,omitempty"`
	Inserted     int           `json:"inserted"`
	MockResponse *MockResponse `json:"mockResponse,omitempty"`
}

// QuotaResponse is returned by GET /quota. Remaining is -1 for
// ephemeral or owner-less endpoints (unlimited).
type QuotaResponse struct {
	Error     string `json:"error,omitempty"`
	OwnerID   string `json:"ownerId,omitempty"`
	Remaining int64  `json:"remaining"`
	Limit     int64  `json:"limit"`
	PeriodEnd *int64 `json:"periodEnd,omitempty"`
}

// EndpointInfo is returned by GET /endpoint-info.
type EndpointInfo struct {
	Error        string        `json:"error,omitempty"`
	EndpointID   string        `json:"endpointId,omitempty"`
	OwnerID      *string       `json:"ownerId,omitempty"`
	IsEphemeral  bool          `json:"isEphemeral,omitempty"`
	ExpiresAt    *int64        `json:"expiresAt,omitempty"`
	MockResponse *MockResponse `json:"mockResponse,omitempty"`
}

// CreateEndpointRequest is the payload for POST /endpoints. Anonymous
// creations (no ownerId) are ephemeral with a bounded lifetime.
type CreateEndpointRequest struct {
	Slug         string        `json:"slug,omitempty"`
	Name         string        `json:"name,omitempty"`
	OwnerID      string        `json:"ownerId,omitempty"`
	MockResponse *MockResponse `json:"mockResponse,omitempty"`
}

// CreateEndpointResponse echoes the created endpoint.
type CreateEndpointResponse struct {
	Error       string `json:"error,omitempty"`
	EndpointID  string `json:"endpointId,omitempty"`
	Slug        string `json:"slug,omitempty"`
	IsEphemeral bool   `json:"isEphemeral,omitempty"`
	ExpiresAt   *int64 `json:"expiresAt,omitempty"`
}

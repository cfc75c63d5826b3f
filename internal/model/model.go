// Package model defines the records persisted by the store service.
// All timestamps are unix milliseconds.
package model

import "webhooks.cc/backend/internal/wire"

const (
	PlanFree = "free"
	PlanPro  = "pro"
)

// Endpoint is a capture endpoint. Ephemeral endpoints have no owner
// and always carry an expiry; owned endpoints live until deleted.
type Endpoint struct {
	ID           string             `json:"id"`
	Slug         string             `json:"slug"`
	OwnerID      *string            `json:"ownerId,omitempty"`
	Name         string             `json:"name,omitempty"`
	MockResponse *wire.MockResponse `json:"mockResponse,omitempty"`
	IsEphemeral  bool               `json:"isEphemeral"`
	ExpiresAt    *int64             `json:"expiresAt,omitempty"`
	RequestCount int64              `json:"requestCount"`
	CreatedAt    int64              `json:"createdAt"`
}

// Request is a captured webhook request. Rows are immutable and
// reachable only through their endpoint.
type Request struct {
	ID          string            `json:"id"`
	EndpointID  string            `json:"endpointId"`
	Method      string            `json:"method"`
	Path        string            `json:"path"`
	Headers     map[string]string `json:"headers"`
	Body        string            `json:"body,omitempty"`
	QueryParams map[string]string `json:"queryParams"`
	ContentType string            `json:"contentType,omitempty"`
	IP          string            `json:"ip"`
	Size        int               `json:"size"`
	ReceivedAt  int64             `json:"receivedAt"`
}

// User is an endpoint owner. RequestsUsed is advanced by the deferred
// usage scheduler, never by the capture path itself.
type User struct {
	ID                 string `json:"id"`
	Email              string `json:"email"`
	Plan               string `json:"plan"`
	RequestLimit       int64  `json:"requestLimit"`
	RequestsUsed       int64  `json:"requestsUsed"`
	PeriodStart        *int64 `json:"periodStart,omitempty"`
	PeriodEnd          *int64 `json:"periodEnd,omitempty"`
	CancelAtPeriodEnd  bool   `json:"cancelAtPeriodEnd,omitempty"`
	SubscriptionStatus string `json:"subscriptionStatus,omitempty"`
	BillingID          string `json:"billingId,omitempty"`
}

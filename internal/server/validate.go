package server

import "webhooks.cc/backend/internal/wire"

const (
	maxBatchSize        = 100
	maxPathLen          = 2048
	maxIPLen            = 45
	maxCaptureBodySize  = 1024 * 1024
	maxHeaderCount      = 100
	maxQueryParamCount  = 100
	maxCapturePayload   = 16 * 1024 * 1024
	maxEndpointPayload  = 1024 * 1024
	generatedSlugLength = 12
)

var allowedMethods = map[string]bool{
	"GET":     true,
	"POST":    true,
	"PUT":     true,
	"PATCH":   true,
	"DELETE":  true,
	"HEAD":    true,
	"OPTIONS": true,
}

// validateCapture checks one queued request against the capture
// limits. It returns the error kind, or "" when the request is
// acceptable. body_too_large is the only kind surfaced as 413.
func validateCapture(req wire.BufferedRequest) string {
	if !allowedMethods[req.Method] {
		return "invalid_method"
	}
	if req.Path == "" || len(req.Path) > maxPathLen {
		return "invalid_path"
	}
	if len(req.IP) > maxIPLen {
		return "invalid_ip"
	}
	if len(req.Headers) > maxHeaderCount {
		return "invalid_headers"
	}
	if len(req.QueryParams) > maxQueryParamCount {
		return "invalid_query_params"
	}
	if len(req.Body) > maxCaptureBodySize {
		return "body_too_large"
	}
	return ""
}

func statusForKind(kind string) int {
	if kind == "body_too_large" {
		return 413
	}
	return 400
}

package client

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"strings"

	"github.com/kjstillabower/agrimeteo-service/internal/circuitbreaker"
	"github.com/kjstillabower/agrimeteo-service/internal/openmeteo"
)

// ErrorCategory is a stable label for error classification in metrics.
type ErrorCategory string

// Labels for weatherApiErrorsTotal and httpErrorsTotal.
const (
	ErrorCategoryTimeout          ErrorCategory = "timeout"
	ErrorCategoryNetwork          ErrorCategory = "network"
	ErrorCategoryInvalidAPIKey    ErrorCategory = "invalid_api_key"
	ErrorCategoryLocationNotFound ErrorCategory = "location_not_found"
	ErrorCategoryRateLimited      ErrorCategory = "rate_limited"
	ErrorCategoryUpstream5xx      ErrorCategory = "upstream_5xx"
	ErrorCategoryCircuitOpen      ErrorCategory = "circuit_open"
	ErrorCategoryParsing          ErrorCategory = "parsing"
	ErrorCategoryValidation       ErrorCategory = "validation"
	ErrorCategoryCache            ErrorCategory = "cache"
	ErrorCategoryUnknown          ErrorCategory = "unknown"
)

// sentinelCategories is checked in order; the first match wins. Circuit errors come
// before upstream failures because an open breaker is wrapped in ErrUpstreamFailure.
var sentinelCategories = []struct {
	err      error
	category ErrorCategory
}{
	{context.DeadlineExceeded, ErrorCategoryTimeout},
	{context.Canceled, ErrorCategoryTimeout},
	{ErrInvalidAPIKey, ErrorCategoryInvalidAPIKey},
	{ErrLocationNotFound, ErrorCategoryLocationNotFound},
	{ErrRateLimited, ErrorCategoryRateLimited},
	{circuitbreaker.ErrOpen, ErrorCategoryCircuitOpen},
	{openmeteo.ErrCircuitOpen, ErrorCategoryCircuitOpen},
	{ErrUpstreamFailure, ErrorCategoryUpstream5xx},
	{openmeteo.ErrUpstreamFailure, ErrorCategoryUpstream5xx},
	{openmeteo.ErrBadRequest, ErrorCategoryValidation},
	{openmeteo.ErrInvalidResponse, ErrorCategoryParsing},
}

// CategorizeError maps an error from either weather provider to a stable category.
func CategorizeError(err error) ErrorCategory {
	if err == nil {
		return ""
	}
	for _, sc := range sentinelCategories {
		if errors.Is(err, sc.err) {
			return sc.category
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return ErrorCategoryTimeout
		}
		return ErrorCategoryNetwork
	}
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return ErrorCategoryParsing
	}

	// Errors that arrive as plain strings, e.g. from the memcached client.
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "connection refused"), strings.Contains(msg, "connection reset"):
		return ErrorCategoryNetwork
	case strings.Contains(msg, "timeout"):
		return ErrorCategoryTimeout
	case strings.Contains(msg, "cache"):
		return ErrorCategoryCache
	}
	return ErrorCategoryUnknown
}

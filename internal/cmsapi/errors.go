// Package cmsapi provides an HTTP client for the HubSpot CMS and developer
// projects APIs with automatic retry, rate limiting, and error classification.
package cmsapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for HTTP status code classification.
// Use errors.Is(err, cmsapi.ErrNotFound) to check.
var (
	ErrBadRequest   = errors.New("cmsapi: bad request")
	ErrUnauthorized = errors.New("cmsapi: unauthorized")
	ErrForbidden    = errors.New("cmsapi: forbidden")
	ErrNotFound     = errors.New("cmsapi: not found")
	ErrConflict     = errors.New("cmsapi: conflict")
	ErrThrottled    = errors.New("cmsapi: throttled")
	ErrServerError  = errors.New("cmsapi: server error")
)

// Sentinel errors for pipeline sub-categories reported in the error body.
// These take precedence over the status sentinel.
var (
	// ErrProjectLocked means another staged build holds the project.
	ErrProjectLocked = errors.New("cmsapi: project locked")
	// ErrMissingProjectProvision means the staged build was cancelled
	// elsewhere (for example from the web UI).
	ErrMissingProjectProvision = errors.New("cmsapi: missing project provision")
	// ErrBuildNotInProgress means there is no staged build to cancel.
	ErrBuildNotInProgress = errors.New("cmsapi: build not in progress")
)

// Sub-category strings as reported by the projects API.
const (
	subCategoryProjectLocked    = "PipelineErrors.PROJECT_LOCKED"
	subCategoryMissingProvision = "PipelineErrors.MISSING_PROJECT_PROVISION"
	subCategoryBuildNotRunning  = "BuildPipelineErrorType.BUILD_NOT_IN_PROGRESS"
)

// APIError wraps a sentinel error with HTTP status code, correlation ID,
// and the API's error category for debugging.
type APIError struct {
	StatusCode  int
	RequestID   string
	Category    string
	SubCategory string
	Message     string
	Err         error // sentinel, for errors.Is()
}

func (e *APIError) Error() string {
	if e.RequestID != "" {
		return fmt.Sprintf("cmsapi: HTTP %d (correlation-id: %s): %s", e.StatusCode, e.RequestID, e.Message)
	}

	return fmt.Sprintf("cmsapi: HTTP %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// errorBody is the JSON shape HubSpot returns for failed requests.
type errorBody struct {
	Message       string `json:"message"`
	CorrelationID string `json:"correlationId"`
	Category      string `json:"category"`
	SubCategory   string `json:"subCategory"`
}

// newAPIError builds an APIError from a non-2xx response body. Bodies that
// are not JSON are kept verbatim as the message.
func newAPIError(status int, headerReqID string, body []byte) *APIError {
	apiErr := &APIError{
		StatusCode: status,
		RequestID:  headerReqID,
		Message:    string(body),
	}

	var eb errorBody
	if err := json.Unmarshal(body, &eb); err == nil {
		if eb.Message != "" {
			apiErr.Message = eb.Message
		}

		if apiErr.RequestID == "" {
			apiErr.RequestID = eb.CorrelationID
		}

		apiErr.Category = eb.Category
		apiErr.SubCategory = eb.SubCategory
	}

	apiErr.Err = classifySubCategory(apiErr.SubCategory)
	if apiErr.Err == nil {
		apiErr.Err = classifyStatus(status)
	}

	return apiErr
}

// classifySubCategory maps a pipeline sub-category to a sentinel error.
// Returns nil for sub-categories without a dedicated sentinel.
func classifySubCategory(sub string) error {
	switch sub {
	case subCategoryProjectLocked:
		return ErrProjectLocked
	case subCategoryMissingProvision:
		return ErrMissingProjectProvision
	case subCategoryBuildNotRunning:
		return ErrBuildNotInProgress
	default:
		return nil
	}
}

// classifyStatus maps an HTTP status code to a sentinel error.
// Returns nil for 2xx success codes.
func classifyStatus(code int) error {
	switch code {
	case http.StatusBadRequest:
		return ErrBadRequest
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict:
		return ErrConflict
	case http.StatusTooManyRequests:
		return ErrThrottled
	default:
		if code >= http.StatusInternalServerError {
			return ErrServerError
		}

		return nil
	}
}

// isRetryable reports whether the given HTTP status code should be retried.
func isRetryable(code int) bool {
	switch code {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

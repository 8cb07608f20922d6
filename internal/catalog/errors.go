package catalog

import (
	"errors"
	"fmt"
)

// ErrNotFound indicates the catalog server has no such resource.
var ErrNotFound = errors.New("not found on catalog server")

// ErrEmptyResponse indicates a successful status with no usable body.
var ErrEmptyResponse = errors.New("catalog server returned an empty response")

// StatusError represents a non-2xx response from the catalog server.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("catalog server error: HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("catalog server error: HTTP %d: %s", e.StatusCode, e.Body)
}

func (e *StatusError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == 404
}

// APIError is returned when the server answers with success=false.
type APIError struct {
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return "catalog server rejected the request"
	}
	return "catalog server rejected the request: " + e.Message
}

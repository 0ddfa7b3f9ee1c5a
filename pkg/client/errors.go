package client

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrNoBody is returned by CheckResponse for a successful response without a body.
var ErrNoBody = errors.New("response body is empty")

// APIError represents a failed HTTP exchange with its classification.
type APIError struct {
	StatusCode int
	ErrorClass ErrorClass
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.StatusCode == 0 {
		if e.Err != nil {
			return fmt.Sprintf("%s error: %s: %v", e.ErrorClass, e.Message, e.Err)
		}
		return fmt.Sprintf("%s error: %s", e.ErrorClass, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("HTTP %d: %s: %v", e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *APIError) Unwrap() error {
	return e.Err
}

// CheckResponse returns an *APIError for non-2xx responses, carrying the
// status code and reason phrase, and ErrNoBody for a 204 or a nil body.
// The body is left open either way.
func CheckResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if resp.Body == nil || resp.StatusCode == http.StatusNoContent {
			return ErrNoBody
		}
		return nil
	}
	return &APIError{
		StatusCode: resp.StatusCode,
		ErrorClass: classifyStatus(resp.StatusCode),
		Message:    reasonPhrase(resp),
	}
}

// IsNetworkError reports whether err is a transport-level failure.
func IsNetworkError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.ErrorClass == ErrorClassNetwork
}

// reasonPhrase extracts "Not Found" from a "404 Not Found" status line.
func reasonPhrase(resp *http.Response) string {
	if _, reason, ok := strings.Cut(resp.Status, " "); ok && reason != "" {
		return reason
	}
	return http.StatusText(resp.StatusCode)
}

package apiclient

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrSessionExpired means the session is unrecoverable on this side:
	// renewal failed, or an authorized retry was rejected again. Credentials
	// have already been cleared when a call returns it.
	ErrSessionExpired = errors.New("session expired")
)

// APIError carries the HTTP status and parsed response body of a non-success
// response so callers can distinguish validation failures (4xx, usually with
// a human-readable detail) from server errors (5xx).
type APIError struct {
	Status int
	Body   map[string]any
	Detail string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("api error %d: %s", e.Status, e.Detail)
	}
	return fmt.Sprintf("api error %d: %s", e.Status, http.StatusText(e.Status))
}

// IsValidation reports whether the error is a client-side request problem
// (4xx other than 401, which the pipeline consumes).
func (e *APIError) IsValidation() bool {
	return e.Status >= 400 && e.Status < 500
}

// IsServer reports whether the backend itself failed.
func (e *APIError) IsServer() bool {
	return e.Status >= 500
}

// newAPIError builds an APIError from a parsed body, pulling the backend's
// conventional "detail" message when present.
func newAPIError(status int, body map[string]any) *APIError {
	detail := ""
	if body != nil {
		if d, ok := body["detail"].(string); ok {
			detail = d
		}
	}
	return &APIError{Status: status, Body: body, Detail: detail}
}

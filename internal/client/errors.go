package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// statusMessages maps the API's known status codes to user-facing
// descriptions. Codes absent from the table fall back to a generic message.
var statusMessages = map[int]string{
	400: "bad request",
	401: "authentication required",
	403: "access denied",
	404: "resource not found",
	416: "requested range not satisfiable",
	429: "rate limited, slow down",
	500: "internal server error",
	502: "bad gateway",
	503: "service unavailable",
	504: "gateway timeout",
	524: "origin timeout",
	307: "temporary redirect",
}

// AuthError signals that the server rejected the request for lack of valid
// credentials (401/403/416, or a 307 pointing at a login page).
type AuthError struct {
	Status         int
	RequiresAPIKey bool
	Message        string
}

func (e *AuthError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("authentication required (%d): %s", e.Status, e.Message)
	}
	return fmt.Sprintf("authentication required (%d)", e.Status)
}

// APIError is any other non-success HTTP status from the content API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

// NetworkError wraps connect/timeout failures so callers can keep their
// loops running and retry later.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error during %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// FileError wraps disk write/merge failures.
type FileError struct {
	Op   string
	Path string
	Err  error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("file error during %s on %s: %v", e.Op, e.Path, e.Err)
}

func (e *FileError) Unwrap() error { return e.Err }

func statusMessage(status int) string {
	if msg, ok := statusMessages[status]; ok {
		return msg
	}
	return fmt.Sprintf("unexpected status %d", status)
}

// classifyStatus maps a non-success status to a typed error. 401, 403 and
// 416 mean the credentials are missing or invalid, not that the resource is
// broken, so they get AuthError instead of APIError.
func classifyStatus(status int) error {
	if status < 400 {
		return nil
	}
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusRequestedRangeNotSatisfiable:
		return &AuthError{Status: status, RequiresAPIKey: true, Message: statusMessage(status)}
	default:
		return &APIError{Status: status, Message: statusMessage(status)}
	}
}

// isLoginRedirect reports whether a redirect Location points at a login
// page. The API answers asset requests with a 307 to /login when the key is
// missing or rejected; following it would turn an auth failure into an
// apparent 200.
func isLoginRedirect(location string) bool {
	return strings.Contains(strings.ToLower(location), "/login")
}

// IsRetryable reports whether an error is a transient connection/timeout
// failure worth retrying. Typed API and auth errors are never retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var authErr *AuthError
	var apiErr *APIError
	if errors.As(err, &authErr) || errors.As(err, &apiErr) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var connErr *NetworkError
	return errors.As(err, &connErr)
}

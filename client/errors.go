// Package client is the long-lived caller-side library for the
// configuration and experimentation platform: a thin HTTP transport for the
// admin API plus a background poller that keeps an in-memory view of
// in-progress experiments fresh (concluded ones are evicted) for local
// variant assignment.
package client

import "fmt"

// Error represents an error response from the server, carrying the HTTP
// status code and the server's error envelope fields.
type Error struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("client: %s (%d): %s", e.Code, e.StatusCode, e.Message)
}

// IsNotFound returns true if err is a 404 response.
func IsNotFound(err error) bool { return hasStatus(err, 404) }

// IsUnauthorized returns true if err is a 401 response.
func IsUnauthorized(err error) bool { return hasStatus(err, 401) }

// IsForbidden returns true if err is a 403 response.
func IsForbidden(err error) bool { return hasStatus(err, 403) }

// IsConflict returns true if err is a 409 response.
func IsConflict(err error) bool { return hasStatus(err, 409) }

// IsRateLimited returns true if err is a 429 response.
func IsRateLimited(err error) bool { return hasStatus(err, 429) }

func hasStatus(err error, code int) bool {
	e, ok := err.(*Error)
	return ok && e.StatusCode == code
}

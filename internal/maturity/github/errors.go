package github

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrRateLimitExceeded is returned when waiting for the rate limit would exceed the wait budget.
	ErrRateLimitExceeded = errors.New("github rate limit exceeded")
	// ErrOrganizationNotFound is returned when the organization does not exist or is not visible.
	ErrOrganizationNotFound = errors.New("organization not found")
	// ErrCancelled flags a listing interrupted by run cancellation.
	ErrCancelled = errors.New("collection cancelled")
)

// AuthenticationError is returned when GitHub rejects the credentials. It is fatal for the run.
type AuthenticationError struct {
	Endpoint string
	Err      error
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("github authentication failed on %s: %v", e.Endpoint, e.Err)
}

func (e *AuthenticationError) Unwrap() error { return e.Err }

// RemoteRequestError is a request GitHub answered with a non-retryable status,
// or a retryable one that kept failing.
type RemoteRequestError struct {
	Endpoint string
	Status   int
	Err      error
}

func (e *RemoteRequestError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("request %s failed: %v", e.Endpoint, e.Err)
	}
	return fmt.Sprintf("request %s failed with status %d: %v", e.Endpoint, e.Status, e.Err)
}

func (e *RemoteRequestError) Unwrap() error { return e.Err }

// IsAuthentication reports whether err carries an AuthenticationError.
func IsAuthentication(err error) bool {
	var ae *AuthenticationError
	return errors.As(err, &ae)
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var re *RemoteRequestError
	if errors.As(err, &re) {
		return re.Status
	}
	if IsAuthentication(err) {
		return http.StatusUnauthorized
	}
	return 0
}

// IsNotFound reports whether err is a 404 answer.
func IsNotFound(err error) bool { return StatusOf(err) == http.StatusNotFound }

// IsEmptyRepository reports whether err is the 409 GitHub answers for repositories without commits.
func IsEmptyRepository(err error) bool { return StatusOf(err) == http.StatusConflict }

package reddit

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors the publisher maps to account state transitions
var (
	ErrRateLimited = errors.New("reddit: rate limited")
	ErrAuthExpired = errors.New("reddit: authorization expired")
	ErrSuspended   = errors.New("reddit: account suspended or banned")
	ErrNotFound    = errors.New("reddit: thing not found")
)

// FailureKind classifies a publish failure for account health handling
type FailureKind string

const (
	FailureRateLimited FailureKind = "rate_limited"
	FailureAuthExpired FailureKind = "auth_expired"
	FailureSuspended   FailureKind = "suspended"
	FailureTransient   FailureKind = "transient"
)

// ClassifyError maps an API error to a failure kind
func ClassifyError(err error) FailureKind {
	switch {
	case errors.Is(err, ErrRateLimited):
		return FailureRateLimited
	case errors.Is(err, ErrAuthExpired):
		return FailureAuthExpired
	case errors.Is(err, ErrSuspended):
		return FailureSuspended
	default:
		return FailureTransient
	}
}

// APIError carries the raw response for errors that have no sentinel
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("reddit: api error %d: %s", e.StatusCode, e.Body)
}

// errorFromStatus converts an HTTP status to the matching sentinel,
// wrapping it with the response body for logging.
func errorFromStatus(status int, body string) error {
	switch status {
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", ErrRateLimited, body)
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", ErrAuthExpired, body)
	case http.StatusForbidden:
		return fmt.Errorf("%w: %s", ErrSuspended, body)
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, body)
	default:
		return &APIError{StatusCode: status, Body: body}
	}
}

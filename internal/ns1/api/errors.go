package api

import (
	"errors"
	"fmt"
	"net/http"
)

// RateLimitError signals the platform refused a call because the request
// budget is exhausted. Period is the server-specified backoff in seconds.
type RateLimitError struct {
	Message string
	Period  int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("ns1 api: rate limited (period %ds): %s", e.Period, e.Message)
}

// ResourceError is a non-rate-limit request failure, carrying the HTTP-level
// status of the response.
type ResourceError struct {
	Status  int
	Message string
}

func (e *ResourceError) Error() string {
	return fmt.Sprintf("ns1 api: %s (status %d)", e.Message, e.Status)
}

// AuthError signals rejected credentials. It is never retried.
type AuthError struct {
	Message string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("ns1 api: authentication failed: %s", e.Message)
}

// IsNotFound reports whether err is a ResourceError with a 404 status.
func IsNotFound(err error) bool {
	var re *ResourceError
	return errors.As(err, &re) && re.Status == http.StatusNotFound
}

// NotFoundMessage extracts the server message from a not-found error, or ""
// when err is not one. Call sites that expect absence match on the message
// (the platform reports missing zones and missing records identically at the
// status level).
func NotFoundMessage(err error) string {
	var re *ResourceError
	if errors.As(err, &re) && re.Status == http.StatusNotFound {
		return re.Message
	}
	return ""
}

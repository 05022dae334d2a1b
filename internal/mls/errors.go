package mls

import (
	"errors"
	"fmt"
)

// ErrUnauthorized indicates the listing endpoint rejected the bearer token.
var ErrUnauthorized = errors.New("MLS API rejected the access token")

// ErrRateLimited indicates the API rate limit was exceeded
var ErrRateLimited = errors.New("MLS API rate limit exceeded")

// ServerError represents a 5xx error from the MLS API
type ServerError struct {
	StatusCode int
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("MLS server error: HTTP %d", e.StatusCode)
}

// AuthenticationError means no access token could be obtained. It is never
// papered over with a placeholder token.
type AuthenticationError struct {
	StatusCode int // 0 when the request never got a response
	Err        error
}

func (e *AuthenticationError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("MLS authentication failed (HTTP %d): %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("MLS authentication failed: %v", e.Err)
}

func (e *AuthenticationError) Unwrap() error {
	return e.Err
}

// FetchError means a page of listings could not be retrieved. Page is zero-based.
type FetchError struct {
	Page int
	Err  error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("failed to fetch listings page %d: %v", e.Page, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

func isRetryableError(err error) bool {
	if errors.Is(err, ErrRateLimited) {
		return true
	}
	var serverErr *ServerError
	return errors.As(err, &serverErr)
}

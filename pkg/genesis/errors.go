package genesis

import (
	"errors"
	"fmt"
)

// AuthError means the account credentials or session were rejected and a
// retry cannot succeed until the credentials are fixed.
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed: %s", e.Reason)
}

// ConnectError means the remote service was unreachable or answered with
// something unexpected. These are temporary and should clear on a later
// cycle.
type ConnectError struct {
	Reason string
	Err    error
}

func (e *ConnectError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("connection failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("connection failed: %s", e.Reason)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

// APIError is a non-2xx answer to a single data call. The session itself is
// still considered good.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("api status %d", e.StatusCode)
	}
	return fmt.Sprintf("api status %d: %s", e.StatusCode, e.Body)
}

// IsAuthError reports whether err (or anything it wraps) indicates the
// account needs new credentials.
func IsAuthError(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}

// IsConnectError reports whether err (or anything it wraps) indicates a
// temporary connectivity problem.
func IsConnectError(err error) bool {
	var ce *ConnectError
	return errors.As(err, &ce)
}

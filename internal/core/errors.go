package core

import (
	"errors"
	"fmt"
)

// ErrNoCredentials is returned when a login is attempted without username or password.
var ErrNoCredentials = errors.New("no credentials configured")

// AuthError reports a failed login or a request that was still rejected
// after presenting a fresh token.
type AuthError struct {
	Op         string
	StatusCode int // 0 when no response was received
	Err        error
}

func (e *AuthError) Error() string {
	msg := "authentication failed"
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s: status %d", msg, e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// NetworkError reports a transport or decoding failure on a resource request,
// or a response with an unexpected status.
type NetworkError struct {
	Op         string
	Path       string
	StatusCode int
	Err        error
}

func (e *NetworkError) Error() string {
	msg := "request failed"
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Path != "" {
		msg += " for " + e.Path
	}
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s: status %d", msg, e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// RateFetchError reports a failed exchange rate refresh.
// It is never fatal: the rate cache falls back to approximate rates.
type RateFetchError struct {
	Reason string // error type reported by the rate provider, if any
	Err    error
}

func (e *RateFetchError) Error() string {
	msg := "fetch exchange rates"
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *RateFetchError) Unwrap() error {
	return e.Err
}

// IsAuthError reports whether err contains an [AuthError].
func IsAuthError(err error) bool {
	var e *AuthError
	return errors.As(err, &e)
}

// IsNetworkError reports whether err contains a [NetworkError].
func IsNetworkError(err error) bool {
	var e *NetworkError
	return errors.As(err, &e)
}

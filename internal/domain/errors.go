package domain

import (
	"errors"
	"fmt"
)

// ErrAuthentication marks failures to establish or keep a platform session.
// It is fatal: the run loop stops when a cycle reports it.
var ErrAuthentication = errors.New("authentication failed")

// ConfigurationError reports missing or malformed settings. Startup only.
type ConfigurationError struct {
	Field string
	Err   error
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("configuration: %v", e.Err)
	}
	return fmt.Sprintf("configuration: %s: %v", e.Field, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// RemoteError is a recoverable failure of an external call.
type RemoteError struct {
	Op         string
	StatusCode int // 0 when no HTTP response was received
	Err        error
}

func (e *RemoteError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *RemoteError) Unwrap() error { return e.Err }

// IsFatal reports whether err must terminate the run loop.
func IsFatal(err error) bool {
	return errors.Is(err, ErrAuthentication)
}

// AuthenticationError carries context for an authentication failure.
// errors.Is(err, ErrAuthentication) holds for every AuthenticationError.
type AuthenticationError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *AuthenticationError) Error() string {
	msg := e.Op + ": " + ErrAuthentication.Error()
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *AuthenticationError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrAuthentication}
	}
	return []error{ErrAuthentication, e.Err}
}

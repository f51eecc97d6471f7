package apperr

import (
	"errors"
	"fmt"
)

// ValidationError marks malformed input to a mutating call. Never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation failed: %s", e.Reason)
	}
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
}

// NotFoundError means the target document no longer exists. Callers treat
// it as "already ended", not as a system failure.
type NotFoundError struct {
	Resource string
	Id       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.Id)
}

// SessionEndedError is returned when a join/leave/progress update targets
// a terminal session. The UI should redirect, not retry.
type SessionEndedError struct {
	SessionId string
}

func (e *SessionEndedError) Error() string {
	return fmt.Sprintf("session %s has ended", e.SessionId)
}

// TransientStoreError wraps a connectivity/availability failure from the
// document store. Retried with backoff up to a bounded attempt count.
type TransientStoreError struct {
	Op  string
	Err error
}

func (e *TransientStoreError) Error() string {
	return fmt.Sprintf("transient store error during %s: %v", e.Op, e.Err)
}

func (e *TransientStoreError) Unwrap() error { return e.Err }

// ListenerSetupError means a change subscription could not be established
// after exhausting retries. Live updates are unavailable (degraded mode).
type ListenerSetupError struct {
	Target   string
	Attempts int
	Err      error
}

func (e *ListenerSetupError) Error() string {
	return fmt.Sprintf("failed to establish listener for %s after %d attempts: %v", e.Target, e.Attempts, e.Err)
}

func (e *ListenerSetupError) Unwrap() error { return e.Err }

func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

func IsSessionEnded(err error) bool {
	var target *SessionEndedError
	return errors.As(err, &target)
}

func IsTransient(err error) bool {
	var target *TransientStoreError
	return errors.As(err, &target)
}

package repository

import (
	"context"
	"errors"
)

var (
	// ErrNavigationTimeout means the page did not finish loading before its timeout.
	ErrNavigationTimeout = errors.New("navigation timed out")
	// ErrNavigationFailed covers DNS, connection and protocol-level load failures.
	ErrNavigationFailed = errors.New("navigation failed")
	// ErrExtractionFailed means the page loaded but its tree or styles could not be read.
	ErrExtractionFailed = errors.New("accessibility extraction failed")
	// ErrPoolExhausted means no session became free within the acquire timeout.
	ErrPoolExhausted = errors.New("browser pool exhausted")
	ErrPoolClosed    = errors.New("browser pool closed")
	ErrBrowserLaunch = errors.New("browser launch failed")

	// ErrPersistenceIO wraps state store read and write failures.
	ErrPersistenceIO  = errors.New("persistence I/O error")
	ErrStateNotFound  = errors.New("queue state not found")
	ErrResultNotFound = errors.New("audit result not found")
	ErrQueueEmpty     = errors.New("job queue is empty")
)

// IsRetryable reports whether an audit attempt that failed with err may be retried.
func IsRetryable(err error) bool {
	switch {
	case errors.Is(err, ErrNavigationTimeout),
		errors.Is(err, ErrNavigationFailed),
		errors.Is(err, ErrPoolExhausted):
		return true
	}
	return false
}

// ErrorType maps err to a short label for metrics and logs.
func ErrorType(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNavigationTimeout), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, ErrNavigationFailed):
		return "navigation"
	case errors.Is(err, ErrExtractionFailed):
		return "extraction"
	case errors.Is(err, ErrPoolExhausted):
		return "pool_exhausted"
	case errors.Is(err, ErrPoolClosed), errors.Is(err, ErrBrowserLaunch):
		return "browser"
	case errors.Is(err, ErrPersistenceIO):
		return "persistence"
	}
	return "unknown"
}

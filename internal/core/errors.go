package core

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrRetriesExhausted means throttling shrank the batch size to one
	// record or less and the probe gave up.
	ErrRetriesExhausted = errors.New("throttle retries exhausted")

	// ErrContentionExhausted means the throttle state could not record a
	// partition total after repeated attempts.
	ErrContentionExhausted = errors.New("throttle state contention exhausted")
)

// RateLimitedError is returned by backends when the remote account throttles
// a request. It is the only retryable error.
type RateLimitedError struct {
	RetryAfter time.Duration
	Message    string
}

func (e *RateLimitedError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("rate limited, retry after %s: %s", e.RetryAfter, e.Message)
	}
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}

// IsRateLimited reports whether err carries a throttling signal.
func IsRateLimited(err error) (*RateLimitedError, bool) {
	var rl *RateLimitedError
	if errors.As(err, &rl) && rl != nil {
		return rl, true
	}
	return nil, false
}

// DiscoveryError wraps any failure while enumerating scan targets.
type DiscoveryError struct {
	Database string
	Err      error
}

func (e *DiscoveryError) Error() string {
	if e.Database != "" {
		return fmt.Sprintf("discover containers in %q: %v", e.Database, e.Err)
	}
	return fmt.Sprintf("discover targets: %v", e.Err)
}

func (e *DiscoveryError) Unwrap() error {
	return e.Err
}

// ProbeError is a non-retryable failure scoped to one partition.
type ProbeError struct {
	Target ScanTarget
	Err    error
}

func (e *ProbeError) Error() string {
	return fmt.Sprintf("probe %s: %v", e.Target.ID(), e.Err)
}

func (e *ProbeError) Unwrap() error {
	return e.Err
}

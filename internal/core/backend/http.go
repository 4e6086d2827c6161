package backend

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Header carrying the service's own retry hint in milliseconds.
const headerRetryAfterMs = "x-ms-retry-after-ms"

// StatusError is a non-2xx, non-throttle response from a backend.
type StatusError struct {
	Operation  string
	StatusCode int
	Code       string
	Message    string
}

func (e *StatusError) Error() string {
	msg := strings.TrimSpace(e.Message)
	if e.Code != "" {
		msg = strings.TrimSpace(e.Code + ": " + msg)
	}
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Operation, e.StatusCode, msg)
}

// retryAfterHeader reads the retry hint from a throttled response, preferring
// the millisecond header over the standard Retry-After.
func retryAfterHeader(resp *http.Response) (time.Duration, map[string]any) {
	if resp == nil || resp.Header == nil {
		return 0, nil
	}

	if ms := strings.TrimSpace(resp.Header.Get(headerRetryAfterMs)); ms != "" {
		if value, err := strconv.ParseFloat(ms, 64); err == nil && value >= 0 {
			return time.Duration(value * float64(time.Millisecond)), map[string]any{"retry_after_ms": ms}
		}
	}

	retry := strings.TrimSpace(resp.Header.Get("Retry-After"))
	if retry == "" {
		return 0, nil
	}

	if seconds, err := time.ParseDuration(retry + "s"); err == nil {
		return seconds, map[string]any{"retry_after": retry}
	}
	if parsed, err := http.ParseTime(retry); err == nil {
		wait := time.Until(parsed)
		if wait < 0 {
			wait = 0
		}
		return wait, map[string]any{"retry_after": retry}
	}

	return 0, map[string]any{"retry_after": retry}
}

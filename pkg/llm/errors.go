package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/lexhaven/docintel/internal/resilience"
)

// ErrorKind classifies an inference failure for retry policy.
type ErrorKind string

const (
	// KindConfig means a required credential is missing. Checked before any
	// network call; never retried.
	KindConfig ErrorKind = "config_error"
	// KindAPI is a permanent non-2xx, non-429 response. Never retried.
	KindAPI ErrorKind = "api_error"
	// KindRateLimited is HTTP 429. Retried, honoring Retry-After when present.
	KindRateLimited ErrorKind = "rate_limited"
	// KindTimeout means the call exceeded its per-call timeout. Retried.
	KindTimeout ErrorKind = "timeout"
	// KindNetwork is a transport-level failure with no response. Retried.
	KindNetwork ErrorKind = "network_error"
	// KindTransient is a retryable server-side status (5xx or 408). Retried.
	KindTransient ErrorKind = "transient_error"
)

// ClientError is the typed error returned by the inference client. Status is
// the HTTP status when one was received; RetryAfter is the server-requested
// delay for rate-limited calls.
type ClientError struct {
	Kind       ErrorKind
	Status     int
	RetryAfter time.Duration
	Err        error
}

func (e *ClientError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("llm: %s (status %d): %v", e.Kind, e.Status, e.Err)
	}
	return fmt.Sprintf("llm: %s: %v", e.Kind, e.Err)
}

func (e *ClientError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the failure is safe to retry.
func (e *ClientError) Retryable() bool {
	switch e.Kind {
	case KindRateLimited, KindTimeout, KindNetwork, KindTransient:
		return true
	default:
		return false
	}
}

// errFromStatus maps a non-2xx HTTP status to a ClientError. retryAfter is
// the raw Retry-After header value, honored only for 429.
func errFromStatus(status int, retryAfter string, err error) *ClientError {
	switch {
	case status == http.StatusTooManyRequests:
		return &ClientError{
			Kind:       KindRateLimited,
			Status:     status,
			RetryAfter: parseRetryAfter(retryAfter),
			Err:        err,
		}
	case resilience.IsTransientHTTPStatus(status):
		return &ClientError{Kind: KindTransient, Status: status, Err: err}
	default:
		return &ClientError{Kind: KindAPI, Status: status, Err: err}
	}
}

// errFromTransport maps a transport-level failure (no HTTP response) to a
// ClientError: deadline expiry becomes timeout, everything else network_error.
func errFromTransport(err error) *ClientError {
	if errors.Is(err, context.DeadlineExceeded) {
		return &ClientError{Kind: KindTimeout, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &ClientError{Kind: KindTimeout, Err: err}
	}
	return &ClientError{Kind: KindNetwork, Err: err}
}

// parseRetryAfter interprets a Retry-After header value as delay seconds or
// an HTTP date. Returns 0 when absent or unparseable.
func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// Package classify turns a delivery attempt's raw outcome (HTTP status,
// transport error, Retry-After header) into the error taxonomy the delivery
// worker and circuit breaker act on.
package classify

import (
	"strconv"
	"strings"

	"github.com/hookwise/core/store"
)

// defaultRateLimitDelayMs is used when a 429 carries no parseable
// Retry-After header (spec.md §4.E).
const defaultRateLimitDelayMs = 60_000

// server503DelayMs is the fixed backoff for a 503 (spec.md §4.E).
const server503DelayMs = 30_000

// Outcome is the classifier's verdict for one delivery attempt.
type Outcome struct {
	ErrorType         store.ErrorType
	ShouldRetry       bool
	RetryDelayMs      *int
	ShouldOpenCircuit bool
}

// Classify applies spec.md §4.E's ordered rule table, first match wins.
// transportErr is the lower-cased transport-level error message, empty on
// a completed HTTP round trip. retryAfter is the raw Retry-After header
// value, empty if absent.
func Classify(statusCode int, transportErr string, retryAfter string) Outcome {
	msg := strings.ToLower(transportErr)

	switch {
	case containsAny(msg, "abort", "timeout"):
		return Outcome{ErrorType: store.ErrorTimeout, ShouldRetry: true}

	case containsAny(msg, "ssl", "tls", "certificate"):
		return Outcome{ErrorType: store.ErrorSSL, ShouldOpenCircuit: true}

	case containsAny(msg, "econnrefused", "enotfound", "connection refused"):
		return Outcome{ErrorType: store.ErrorConnectionRefused, ShouldOpenCircuit: true}

	case statusCode == 429:
		delay := defaultRateLimitDelayMs
		if parsed, err := strconv.Atoi(retryAfter); err == nil {
			delay = parsed * 1000
		}
		return Outcome{ErrorType: store.ErrorRateLimit, ShouldRetry: true, RetryDelayMs: intPtr(delay)}

	case statusCode == 503:
		return Outcome{ErrorType: store.ErrorServerError, ShouldRetry: true, RetryDelayMs: intPtr(server503DelayMs)}

	case statusCode >= 500:
		return Outcome{ErrorType: store.ErrorServerError, ShouldRetry: true}

	default:
		return Outcome{ErrorType: store.ErrorUnknown, ShouldRetry: true}
	}
}

func containsAny(msg string, substrs ...string) bool {
	for _, s := range substrs {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

func intPtr(v int) *int { return &v }

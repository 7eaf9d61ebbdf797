package marketplace

import (
	"errors"
	"fmt"
	"time"
)

// RateLimitError is returned for 429 responses
type RateLimitError struct {
	Message    string
	RetryAfter time.Duration // zero when the response carried no usable hint
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited (retry after %v): %s", e.RetryAfter, e.Message)
	}
	return "rate limited: " + e.Message
}

// StatusError is returned for any other non-2xx response
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("marketplace returned %d: %s", e.Code, e.Message)
}

// AsRateLimit returns the rate-limit error wrapped in err, if any
func AsRateLimit(err error) (*RateLimitError, bool) {
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return rl, true
	}
	return nil, false
}

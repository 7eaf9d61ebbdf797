package ratelimit

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// MaxHint bounds what a server hint can make us wait
const MaxHint = time.Hour

var hintPattern = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(milliseconds?|ms|seconds?|secs?|s|minutes?|mins?|m)\b`)

// ParseRetryAfter extracts a wait from free text such as "Too many requests, retry in 12 seconds".
// It returns false when the message carries no usable hint.
func ParseRetryAfter(message string) (time.Duration, bool) {
	m := hintPattern.FindStringSubmatch(message)
	if m == nil {
		return 0, false
	}

	n, err := strconv.ParseFloat(m[1], 64)
	if err != nil || n <= 0 {
		return 0, false
	}

	var unit time.Duration
	switch u := strings.ToLower(m[2]); {
	case u == "ms" || strings.HasPrefix(u, "milli"):
		unit = time.Millisecond
	case u == "m" || strings.HasPrefix(u, "min"):
		unit = time.Minute
	default:
		unit = time.Second
	}

	d := time.Duration(n * float64(unit))
	if d > MaxHint {
		d = MaxHint
	}
	return d, true
}

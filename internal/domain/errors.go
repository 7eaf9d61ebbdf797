package domain

import (
	"regexp"
	"strings"
)

// ListingError classifies why the marketplace refused a listing.
type ListingError string

const (
	ErrorInvalidItem       ListingError = "INVALID_ITEM"
	ErrorItemDoesNotExist  ListingError = "ITEM_DOES_NOT_EXIST"
	ErrorInvalidCurrencies ListingError = "INVALID_CURRENCIES"
	ErrorOverwritten       ListingError = "OVERWRITTEN"
	ErrorUnknown           ListingError = "UNKNOWN"
)

// IsTerminal reports whether retrying the same spec cannot succeed.
func (e ListingError) IsTerminal() bool {
	switch e {
	case ErrorInvalidItem, ErrorItemDoesNotExist, ErrorInvalidCurrencies:
		return true
	}
	return false
}

var (
	capReachedPattern        = regexp.MustCompile(`(?i)listing cap|cap reached|too many listings`)
	invalidItemPattern       = regexp.MustCompile(`(?i)invalid item|item is invalid|malformed item|unknown item|could not (parse|resolve) item`)
	invalidCurrenciesPattern = regexp.MustCompile(`(?i)cyclic|invalid currenc|currenc\w* (must|cannot|can't)|(value|price|currencies) (cannot|can't|must not) be zero`)
)

// ClassifyError maps a per-listing failure message to an error class. The
// second result is true when the account hit its listing cap, which is not a
// property of the listing and must not be stored on it.
func ClassifyError(message string) (ListingError, bool) {
	msg := strings.TrimSpace(message)
	switch {
	case msg == "":
		return ErrorItemDoesNotExist, false
	case capReachedPattern.MatchString(msg):
		return "", true
	case invalidItemPattern.MatchString(msg):
		return ErrorInvalidItem, false
	case invalidCurrenciesPattern.MatchString(msg):
		return ErrorInvalidCurrencies, false
	default:
		return ErrorUnknown, false
	}
}

package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ErrInvalidSpec is returned for a listing spec carrying neither an id nor an item.
var ErrInvalidSpec = errors.New("listing spec needs an id or an item")

// Currencies is the price of a listing.
type Currencies struct {
	Keys  decimal.Decimal `json:"keys"`
	Metal decimal.Decimal `json:"metal"`
}

// IsZero reports whether the listing would be priced at nothing.
func (c Currencies) IsZero() bool {
	return c.Keys.IsZero() && c.Metal.IsZero()
}

// Validate rejects prices the marketplace refuses outright.
func (c Currencies) Validate() error {
	if c.IsZero() {
		return errors.New("currencies must not be zero")
	}
	if c.Keys.IsNegative() || c.Metal.IsNegative() {
		return errors.New("currencies must not be negative")
	}
	return nil
}

// MarshalJSON writes amounts as JSON numbers and omits zero values.
func (c Currencies) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.Number, 2)
	if !c.Keys.IsZero() {
		out["keys"] = json.Number(c.Keys.String())
	}
	if !c.Metal.IsZero() {
		out["metal"] = json.Number(c.Metal.String())
	}
	return json.Marshal(out)
}

// ListingSpec is what an operator asks to be listed. Sell listings carry the
// asset id, buy listings an item descriptor.
type ListingSpec struct {
	ID         string         `json:"id,omitempty"`
	Item       map[string]any `json:"item,omitempty"`
	Currencies Currencies     `json:"currencies"`
	Details    string         `json:"details,omitempty"`
}

// Quantity returns item.quantity, defaulting to 1.
func (s ListingSpec) Quantity() int {
	if s.Item == nil {
		return 1
	}
	switch q := s.Item["quantity"].(type) {
	case float64:
		return int(q)
	case int:
		return q
	case int64:
		return int(q)
	case json.Number:
		if n, err := q.Int64(); err == nil {
			return int(n)
		}
	case string:
		if d, err := decimal.NewFromString(q); err == nil {
			return int(d.IntPart())
		}
	}
	return 1
}

// quantity returns the raw item.quantity in canonical form, "1" when absent.
func (s ListingSpec) quantity() string {
	q, ok := s.Item["quantity"]
	if !ok || q == nil {
		return "1"
	}
	if str, ok := q.(string); ok {
		if d, err := decimal.NewFromString(str); err == nil {
			return d.String()
		}
		return str
	}
	raw, err := CanonicalJSON(q)
	if err != nil {
		return fmt.Sprint(q)
	}
	return string(raw)
}

// SameQuantity reports whether two specs ask for the same item quantity.
// Numbers compare by value, so 2, 2.0 and "2" are equal while 1.5 and 1 are not.
func SameQuantity(a, b ListingSpec) bool {
	return a.quantity() == b.quantity()
}

// DesiredListing is a listing an account should have, keyed by Hash.
type DesiredListing struct {
	Hash            string       `json:"hash"`
	SteamID64       string       `json:"steamid64"`
	Listing         ListingSpec  `json:"listing"`
	ExternalID      *string      `json:"externalId,omitempty"`
	Priority        *int         `json:"priority,omitempty"`
	Error           ListingError `json:"error,omitempty"`
	ErrorMessage    string       `json:"errorMessage,omitempty"`
	LastAttemptedAt *time.Time   `json:"lastAttemptedAt,omitempty"`
	UpdatedAt       time.Time    `json:"updatedAt"`

	// Force only lives on incoming add requests and is never stored.
	Force bool `json:"-"`
}

// ExternalIDValue returns the marketplace id or "" when the listing was never created.
func (d *DesiredListing) ExternalIDValue() string {
	if d.ExternalID == nil {
		return ""
	}
	return *d.ExternalID
}

// Listing is the marketplace's view of a listing, keyed by its id.
type Listing struct {
	ID         string         `json:"id"`
	SteamID64  string         `json:"steamid"`
	Currencies Currencies     `json:"currencies"`
	Item       map[string]any `json:"item,omitempty"`
	Details    string         `json:"details,omitempty"`
	Archived   bool           `json:"archived"`
	ListedAt   int64          `json:"listedAt"`
	BumpedAt   int64          `json:"bumpedAt"`
}

// IsUpdate reports whether the marketplace bumped an existing listing
// instead of creating a new one.
func (l *Listing) IsUpdate() bool {
	return l.BumpedAt > l.ListedAt
}

// Operation is a kind of batch job run against the marketplace.
type Operation string

const (
	OpCreate         Operation = "create"
	OpDelete         Operation = "delete"
	OpDeleteArchived Operation = "delete-archived"
	OpDeleteAll      Operation = "delete-all"
)

// Operations lists every operation kind.
var Operations = []Operation{OpCreate, OpDelete, OpDeleteArchived, OpDeleteAll}

// Valid reports whether op is a known operation.
func (op Operation) Valid() bool {
	switch op {
	case OpCreate, OpDelete, OpDeleteArchived, OpDeleteAll:
		return true
	}
	return false
}

package reconciler

import (
	"encoding/json"
	"reflect"

	"github.com/shopspring/decimal"

	"github.com/MrSnakeDoc/listingd/internal/domain"
)

// isDifferent compares two listing specs structurally. Numbers compare by
// value whatever their JSON spelling, so 1, 1.0 and "1" are equal.
func isDifferent(a, b domain.ListingSpec) (bool, error) {
	ca, err := domain.Canonicalize(a)
	if err != nil {
		return false, err
	}
	cb, err := domain.Canonicalize(b)
	if err != nil {
		return false, err
	}
	return !looseEqual(ca, cb), nil
}

func looseEqual(a, b any) bool {
	if da, ok := asDecimal(a); ok {
		db, ok := asDecimal(b)
		return ok && da.Equal(db)
	}

	switch ta := a.(type) {
	case map[string]any:
		tb, ok := b.(map[string]any)
		if !ok || len(ta) != len(tb) {
			return false
		}
		for k, va := range ta {
			vb, ok := tb[k]
			if !ok || !looseEqual(va, vb) {
				return false
			}
		}
		return true
	case []any:
		tb, ok := b.([]any)
		if !ok || len(ta) != len(tb) {
			return false
		}
		for i := range ta {
			if !looseEqual(ta[i], tb[i]) {
				return false
			}
		}
		return true
	default:
		if _, ok := asDecimal(b); ok {
			return false
		}
		return reflect.DeepEqual(a, b)
	}
}

func asDecimal(v any) (decimal.Decimal, bool) {
	switch t := v.(type) {
	case json.Number:
		d, err := decimal.NewFromString(t.String())
		return d, err == nil
	case string:
		d, err := decimal.NewFromString(t)
		return d, err == nil
	}
	return decimal.Decimal{}, false
}

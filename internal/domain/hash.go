package domain

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
)

// Hash returns the identity of a listing spec. Sell listings are identified by
// their asset id, buy listings by their item descriptor without quantity, so a
// quantity change keeps the same identity.
func Hash(spec ListingSpec) (string, error) {
	if spec.ID != "" {
		return digest([]byte(spec.ID)), nil
	}
	if len(spec.Item) == 0 {
		return "", ErrInvalidSpec
	}

	item := make(map[string]any, len(spec.Item))
	for k, v := range spec.Item {
		if k == "quantity" {
			continue
		}
		item[k] = v
	}

	b, err := CanonicalJSON(item)
	if err != nil {
		return "", fmt.Errorf("failed to hash item: %w", err)
	}
	return digest(b), nil
}

func digest(b []byte) string {
	sum := sha1.Sum(b)
	return hex.EncodeToString(sum[:])
}

package catalog

import (
	"encoding/json"
	"fmt"
)

// Hasher computes digests of encoded catalogs.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Fingerprint returns a digest of the JSON encoding of entries. Callers sort
// first when they want order-independent comparisons.
func Fingerprint(entries []Entry, hasher Hasher) (string, error) {
	data, err := json.Marshal(entries)
	if err != nil {
		return "", fmt.Errorf("encode catalog: %w", err)
	}
	sum, err := hasher.Hash(data)
	if err != nil {
		return "", fmt.Errorf("hash catalog: %w", err)
	}
	return sum, nil
}

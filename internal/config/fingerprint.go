package config

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"
)

// Fingerprint computes a SHA-256 hash for the given bytes.
func Fingerprint(body []byte) (string, error) {
	if len(body) == 0 {
		return "", errors.New("fingerprint input is empty")
	}
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:]), nil
}

// FingerprintValues fingerprints each top-level value independently.
// Maps are re-encoded with sorted keys, so ordering in the source file does not matter.
func FingerprintValues(values map[string]any) (map[string]string, error) {
	result := make(map[string]string, len(values))
	for key, value := range values {
		encoded, err := yaml.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("fingerprint %s: %w", key, err)
		}
		sum, err := Fingerprint(encoded)
		if err != nil {
			return nil, fmt.Errorf("fingerprint %s: %w", key, err)
		}
		result[key] = sum
	}
	return result, nil
}

// ChangedKeys returns the sorted keys whose fingerprint differs, including added and removed keys.
func ChangedKeys(previous, current map[string]string) []string {
	changed := make([]string, 0)
	for key, value := range current {
		if previous[key] != value {
			changed = append(changed, key)
		}
	}
	for key := range previous {
		if _, ok := current[key]; !ok {
			changed = append(changed, key)
		}
	}
	sort.Strings(changed)
	return changed
}

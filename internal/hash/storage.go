package hash

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"imagededup/internal/models"
)

// Format selects how a set of hashes is serialized for storage
type Format string

const (
	FormatJSON      Format = "json"
	FormatDelimited Format = "delimited" // algo:hash|algo:hash
)

type storedHash struct {
	HashValue string         `json:"hash_value"`
	Algorithm string         `json:"algorithm"`
	Timestamp *float64       `json:"timestamp"`
	BitLength *int           `json:"bit_length"`
	Metadata  map[string]any `json:"metadata"`
}

// FormatForStorage serializes hashes keyed by algorithm
func FormatForStorage(results map[models.Algorithm]models.HashResult, format Format) (string, error) {
	switch format {
	case FormatJSON:
		data := make(map[string]storedHash, len(results))
		for algo, r := range results {
			ts := float64(r.Timestamp.UnixNano()) / 1e9
			bl := r.BitLength
			meta := r.Metadata
			if meta == nil {
				meta = map[string]any{}
			}
			data[string(algo)] = storedHash{
				HashValue: r.Value,
				Algorithm: string(r.Algorithm),
				Timestamp: &ts,
				BitLength: &bl,
				Metadata:  meta,
			}
		}
		out, err := json.Marshal(data)
		if err != nil {
			return "", fmt.Errorf("failed to encode hashes: %w", err)
		}
		return string(out), nil

	case FormatDelimited:
		algos := make([]string, 0, len(results))
		for algo := range results {
			algos = append(algos, string(algo))
		}
		sort.Strings(algos)

		parts := make([]string, 0, len(algos))
		for _, algo := range algos {
			parts = append(parts, algo+":"+results[models.Algorithm(algo)].Value)
		}
		return strings.Join(parts, "|"), nil

	default:
		return "", fmt.Errorf("unsupported storage format %q", format)
	}
}

// ParseFromStorage reverses FormatForStorage. Delimited input carries no
// bit length or timestamp; the bit length is derived from the hex width.
func ParseFromStorage(stored string, format Format) (map[models.Algorithm]models.HashResult, error) {
	results := make(map[models.Algorithm]models.HashResult)

	switch format {
	case FormatJSON:
		var data map[string]storedHash
		if err := json.Unmarshal([]byte(stored), &data); err != nil {
			return nil, fmt.Errorf("invalid JSON: %w", err)
		}
		for key, h := range data {
			r := models.HashResult{
				Value:     h.HashValue,
				Algorithm: models.Algorithm(h.Algorithm),
				Metadata:  h.Metadata,
			}
			if r.Algorithm == "" {
				r.Algorithm = models.Algorithm(key)
			}
			if h.BitLength != nil {
				r.BitLength = *h.BitLength
			} else {
				r.BitLength = len(h.HashValue) * 4
			}
			if h.Timestamp != nil {
				r.Timestamp = unixFloat(*h.Timestamp)
			}
			results[models.Algorithm(key)] = r
		}
		return results, nil

	case FormatDelimited:
		if stored == "" {
			return results, nil
		}
		for _, part := range strings.Split(stored, "|") {
			algo, value, ok := strings.Cut(part, ":")
			if !ok {
				continue
			}
			results[models.Algorithm(algo)] = models.HashResult{
				Value:     value,
				Algorithm: models.Algorithm(algo),
				BitLength: len(value) * 4,
			}
		}
		return results, nil

	default:
		return nil, fmt.Errorf("unsupported storage format %q", format)
	}
}

// ValidateStorage reports whether stored parses in the given format
func ValidateStorage(stored string, format Format) bool {
	_, err := ParseFromStorage(stored, format)
	return err == nil
}

func unixFloat(ts float64) time.Time {
	sec, frac := math.Modf(ts)
	return time.Unix(int64(sec), int64(frac*1e9))
}

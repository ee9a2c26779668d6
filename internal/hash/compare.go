package hash

import (
	"errors"
	"fmt"
	"math"
	"math/bits"
)

var (
	ErrLengthMismatch   = errors.New("hashes must be of the same length")
	ErrInvalidHex       = errors.New("invalid hex string")
	ErrInvalidBitLength = errors.New("bit length must be positive")
	ErrNegativeDistance = errors.New("hamming distance cannot be negative")
)

// HammingDistance counts the differing bits between two hex-encoded hashes
func HammingDistance(a, b string) (int, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrLengthMismatch, len(a), len(b))
	}

	count := 0
	for i := 0; i < len(a); i++ {
		x, ok := hexNibble(a[i])
		if !ok {
			return 0, fmt.Errorf("%w: %q", ErrInvalidHex, a)
		}
		y, ok := hexNibble(b[i])
		if !ok {
			return 0, fmt.Errorf("%w: %q", ErrInvalidHex, b)
		}
		count += bits.OnesCount8(x ^ y)
	}
	return count, nil
}

func hexNibble(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	default:
		return 0, false
	}
}

// SimilarityPercentage converts a distance into a 0-100 score
func SimilarityPercentage(distance, bitLength int) (float64, error) {
	if bitLength <= 0 {
		return 0, ErrInvalidBitLength
	}
	if distance < 0 {
		return 0, ErrNegativeDistance
	}

	similarity := (1 - float64(distance)/float64(bitLength)) * 100.0
	return math.Max(0, math.Min(100, similarity)), nil
}

// AreSimilar reports whether two hashes meet the similarity threshold
// (inclusive). Hashes of different length are never similar.
func AreSimilar(a, b string, threshold float64) bool {
	if len(a) != len(b) || len(a) == 0 {
		return false
	}

	distance, err := HammingDistance(a, b)
	if err != nil {
		return false
	}
	similarity, err := SimilarityPercentage(distance, len(a)*4)
	if err != nil {
		return false
	}
	return similarity >= threshold
}

// AreExact reports whether two hashes are literally identical
func AreExact(a, b string) bool {
	return a == b
}

// MaxDistance returns an upper bound on the Hamming distance two hashes of
// bitLength bits can have while still meeting threshold. The bound is one
// bit loose so that float rounding can never exclude a qualifying pair.
func MaxDistance(bitLength int, threshold float64) int {
	if bitLength <= 0 {
		return 0
	}
	d := int(math.Floor(float64(bitLength)*(1-threshold/100.0))) + 1
	if d < 0 {
		return 0
	}
	if d > bitLength {
		return bitLength
	}
	return d
}

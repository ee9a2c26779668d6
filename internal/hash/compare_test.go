package hash

import (
	"errors"
	"testing"
)

func TestHammingDistance(t *testing.T) {
	tests := []struct {
		name     string
		a, b     string
		expected int
	}{
		{"identical", "ff00", "ff00", 0},
		{"one bit", "ff00", "ff01", 1},
		{"all bits", "0000", "ffff", 16},
		{"mixed case", "ABCD", "abcd", 0},
		{"single nibble", "8", "0", 1},
		{"64 bit", "ffffffffffffffff", "0000000000000000", 64},
		{"empty", "", "", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := HammingDistance(tt.a, tt.b)
			if err != nil {
				t.Fatalf("HammingDistance failed: %v", err)
			}
			if got != tt.expected {
				t.Errorf("HammingDistance(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.expected)
			}

			reverse, _ := HammingDistance(tt.b, tt.a)
			if reverse != got {
				t.Errorf("distance is not symmetric: %d vs %d", got, reverse)
			}
		})
	}
}

func TestHammingDistance_Errors(t *testing.T) {
	if _, err := HammingDistance("ff", "fff"); !errors.Is(err, ErrLengthMismatch) {
		t.Errorf("expected ErrLengthMismatch, got %v", err)
	}
	if _, err := HammingDistance("zz", "00"); !errors.Is(err, ErrInvalidHex) {
		t.Errorf("expected ErrInvalidHex, got %v", err)
	}
	if _, err := HammingDistance("00", "0g"); !errors.Is(err, ErrInvalidHex) {
		t.Errorf("expected ErrInvalidHex, got %v", err)
	}
}

func TestSimilarityPercentage(t *testing.T) {
	tests := []struct {
		distance  int
		bitLength int
		expected  float64
	}{
		{0, 64, 100},
		{1, 16, 93.75},
		{32, 64, 50},
		{64, 64, 0},
		{100, 64, 0},
	}

	for _, tt := range tests {
		got, err := SimilarityPercentage(tt.distance, tt.bitLength)
		if err != nil {
			t.Fatalf("SimilarityPercentage(%d, %d) failed: %v", tt.distance, tt.bitLength, err)
		}
		if got != tt.expected {
			t.Errorf("SimilarityPercentage(%d, %d) = %v, want %v", tt.distance, tt.bitLength, got, tt.expected)
		}
	}
}

func TestSimilarityPercentage_Errors(t *testing.T) {
	if _, err := SimilarityPercentage(1, 0); !errors.Is(err, ErrInvalidBitLength) {
		t.Errorf("expected ErrInvalidBitLength, got %v", err)
	}
	if _, err := SimilarityPercentage(-1, 64); !errors.Is(err, ErrNegativeDistance) {
		t.Errorf("expected ErrNegativeDistance, got %v", err)
	}
}

func TestAreSimilar(t *testing.T) {
	tests := []struct {
		name      string
		a, b      string
		threshold float64
		expected  bool
	}{
		{"identical", "ff00", "ff00", 100, true},
		{"inside threshold", "ff00", "ff01", 90, true},
		{"threshold is inclusive", "ff00", "ff01", 93.75, true},
		{"just above threshold", "ff00", "ff01", 94, false},
		{"far apart", "ff00", "0000", 90, false},
		{"length mismatch", "ff00", "ff0", 0, false},
		{"empty", "", "", 0, false},
		{"invalid hex", "zz00", "ff00", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := AreSimilar(tt.a, tt.b, tt.threshold); got != tt.expected {
				t.Errorf("AreSimilar(%q, %q, %v) = %v, want %v", tt.a, tt.b, tt.threshold, got, tt.expected)
			}
		})
	}
}

func TestAreExact(t *testing.T) {
	if !AreExact("abc123", "abc123") {
		t.Error("identical strings should be exact")
	}
	if AreExact("abc123", "ABC123") {
		t.Error("exact comparison is case sensitive")
	}
}

func TestMaxDistance(t *testing.T) {
	tests := []struct {
		bitLength int
		threshold float64
		expected  int
	}{
		{64, 100, 1},
		{64, 95, 4},
		{64, 90, 7},
		{16, 90, 2},
		{64, 0, 64},
		{0, 90, 0},
	}

	for _, tt := range tests {
		if got := MaxDistance(tt.bitLength, tt.threshold); got != tt.expected {
			t.Errorf("MaxDistance(%d, %v) = %d, want %d", tt.bitLength, tt.threshold, got, tt.expected)
		}
	}
}

func TestMaxDistance_CoversEverySimilarPair(t *testing.T) {
	for _, threshold := range []float64{50, 80, 90, 93.75, 95, 99, 100} {
		bound := MaxDistance(64, threshold)
		for d := 0; d <= 64; d++ {
			sim, _ := SimilarityPercentage(d, 64)
			if sim >= threshold && d > bound {
				t.Errorf("threshold %v: distance %d qualifies but exceeds bound %d", threshold, d, bound)
			}
		}
	}
}

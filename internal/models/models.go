package models

import (
	"fmt"
	"strings"
	"time"
)

// Algorithm names a hash function supported by the calculator
type Algorithm string

const (
	AlgoPHash Algorithm = "phash"
	AlgoDHash Algorithm = "dhash"
	AlgoAHash Algorithm = "ahash"
	AlgoWHash Algorithm = "whash"

	AlgoMD5     Algorithm = "md5"
	AlgoSHA1    Algorithm = "sha1"
	AlgoSHA256  Algorithm = "sha256"
	AlgoSHA512  Algorithm = "sha512"
	AlgoSHA3256 Algorithm = "sha3-256"
)

// PerceptualAlgorithms lists the image-structure hashes in display order
var PerceptualAlgorithms = []Algorithm{AlgoPHash, AlgoDHash, AlgoAHash, AlgoWHash}

// CryptographicAlgorithms lists the byte digests in display order
var CryptographicAlgorithms = []Algorithm{AlgoMD5, AlgoSHA1, AlgoSHA256, AlgoSHA512, AlgoSHA3256}

// IsPerceptual reports whether the algorithm hashes decoded pixels
func (a Algorithm) IsPerceptual() bool {
	for _, p := range PerceptualAlgorithms {
		if a == p {
			return true
		}
	}
	return false
}

// IsCryptographic reports whether the algorithm digests raw bytes
func (a Algorithm) IsCryptographic() bool {
	for _, c := range CryptographicAlgorithms {
		if a == c {
			return true
		}
	}
	return false
}

func (a Algorithm) String() string {
	return string(a)
}

// ParseAlgorithm normalizes an algorithm name. Unknown names are returned
// as-is together with an error so callers can report them.
func ParseAlgorithm(name string) (Algorithm, error) {
	a := Algorithm(strings.ToLower(strings.TrimSpace(name)))
	if a.IsPerceptual() || a.IsCryptographic() {
		return a, nil
	}
	return a, fmt.Errorf("unknown algorithm %q", name)
}

// HashResult is a fingerprint of one payload. It is not modified after creation.
type HashResult struct {
	Value     string         `json:"hash_value"`
	Algorithm Algorithm      `json:"algorithm"`
	BitLength int            `json:"bit_length"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Item is an entry supplied by an item source
type Item struct {
	ID         string    `json:"id"`
	PayloadRef string    `json:"payload_ref,omitempty"` // path or URL the source uses to fetch bytes
	Size       int64     `json:"size,omitempty"`
	ModTime    time.Time `json:"mod_time,omitempty"`
}

// Validate checks the fields every item must carry
func (i Item) Validate() error {
	if strings.TrimSpace(i.ID) == "" {
		return fmt.Errorf("item has no ID")
	}
	return nil
}

// ItemMetadata holds file-level facts used by keep strategies
type ItemMetadata struct {
	Size        int64     `json:"size"`
	ModTime     time.Time `json:"mod_time"`
	CaptureTime time.Time `json:"capture_time,omitempty"`
	Width       int       `json:"width,omitempty"`
	Height      int       `json:"height,omitempty"`
	Format      string    `json:"format,omitempty"`
	HasExif     bool      `json:"has_exif,omitempty"`
}

// QualityScore ranks an image by resolution, format and metadata presence
func (m ItemMetadata) QualityScore() float64 {
	resolution := float64(m.Width * m.Height)
	return resolution * FormatQualityMultiplier(m.Format) * MetadataMultiplier(m.HasExif)
}

// FormatQualityMultiplier returns quality multiplier for image format
func FormatQualityMultiplier(format string) float64 {
	switch strings.ToLower(format) {
	case "png", "tiff", "bmp":
		return 1.2
	case "webp":
		return 1.1
	case "gif":
		return 0.9
	default:
		return 1.0
	}
}

// MetadataMultiplier prefers images that still carry EXIF
func MetadataMultiplier(hasExif bool) float64 {
	if hasExif {
		return 1.1
	}
	return 1.0
}

// EffectiveTime prefers the capture time over the modification time
func (m ItemMetadata) EffectiveTime() time.Time {
	if !m.CaptureTime.IsZero() {
		return m.CaptureTime
	}
	return m.ModTime
}

// DuplicateGroup is a connected set of similar items
type DuplicateGroup struct {
	ID               int                `json:"id"`
	Items            []string           `json:"items"`
	SimilarityScores map[string]float64 `json:"similarity_scores"`
	HashType         Algorithm          `json:"hash_type"`
	Pivot            string             `json:"pivot"`
	Hashes           map[string]string  `json:"hashes,omitempty"` // member hash values
}

// Contains reports whether id is a member of the group
func (g *DuplicateGroup) Contains(id string) bool {
	for _, item := range g.Items {
		if item == id {
			return true
		}
	}
	return false
}

// DedupDecision says which item of a group survives
type DedupDecision struct {
	KeepItem    string   `json:"keep_item,omitempty"` // empty means no automatic keep
	RemoveItems []string `json:"remove_items"`
	Reason      string   `json:"reason"`
}

// IsAutomatic reports whether the decision removes anything
func (d DedupDecision) IsAutomatic() bool {
	return d.KeepItem != "" && len(d.RemoveItems) > 0
}

// ScanResult holds the outcome of one scan
type ScanResult struct {
	ScanID      string            `json:"scan_id"`
	TotalItems  int               `json:"total_items"`
	ItemsHashed int               `json:"items_hashed"`
	Groups      []*DuplicateGroup `json:"groups"`
	Errors      []string          `json:"errors"`
	Algorithm   Algorithm         `json:"algorithm"`
	Threshold   float64           `json:"threshold"`
	Aborted     bool              `json:"aborted"`
	StartedAt   time.Time         `json:"started_at"`
	CompletedAt time.Time         `json:"completed_at"`
}

// ErrorCount returns the number of per-item failures
func (r *ScanResult) ErrorCount() int {
	return len(r.Errors)
}

// DuplicateCount returns how many items would go if one per group is kept
func (r *ScanResult) DuplicateCount() int {
	n := 0
	for _, g := range r.Groups {
		n += len(g.Items) - 1
	}
	return n
}

// ApplyResult tallies the outcome of applying decisions
type ApplyResult struct {
	Action        string   `json:"action"`
	Tagged        int      `json:"tagged"`
	Moved         int      `json:"moved"`
	Deleted       int      `json:"deleted"`
	Skipped       int      `json:"skipped"`
	Errors        int      `json:"errors"`
	MovedIDs      []string `json:"moved_ids"`
	DeletedIDs    []string `json:"deleted_ids"`
	ErrorMessages []string `json:"error_messages,omitempty"`
	Aborted       bool     `json:"aborted"`
}

// GoneIDs returns the items that left their original location
func (r *ApplyResult) GoneIDs() []string {
	gone := make([]string, 0, len(r.MovedIDs)+len(r.DeletedIDs))
	gone = append(gone, r.MovedIDs...)
	return append(gone, r.DeletedIDs...)
}

// Total returns the number of items the apply pass touched
func (r *ApplyResult) Total() int {
	return r.Tagged + r.Moved + r.Deleted + r.Skipped + r.Errors
}

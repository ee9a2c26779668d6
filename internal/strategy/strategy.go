package strategy

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"imagededup/internal/models"
)

// Strategy decides which member of a duplicate group survives
type Strategy string

const (
	First    Strategy = "first"
	Largest  Strategy = "largest"
	Smallest Strategy = "smallest"
	Oldest   Strategy = "oldest"
	Newest   Strategy = "newest"
	Quality  Strategy = "quality"
	Manual   Strategy = "manual"
	KeepAll  Strategy = "keep_all"
)

// Reasons attached to decisions
const (
	ReasonEmpty    = "Empty group"
	ReasonManual   = "Manual review required"
	ReasonUser     = "User selection"
	ReasonKeepAll  = "False positive - keep all"
	reasonFirst    = "Keep first item"
	reasonLargest  = "Keep largest file"
	reasonSmallest = "Keep smallest file"
	reasonOldest   = "Keep oldest file"
	reasonNewest   = "Keep newest file"
	reasonQuality  = "Keep highest quality"
)

// ErrUnknownStrategy is returned for strategy names outside the supported set
var ErrUnknownStrategy = errors.New("unknown strategy")

// All returns every strategy in display order
func All() []Strategy {
	return []Strategy{First, Largest, Smallest, Oldest, Newest, Quality, Manual, KeepAll}
}

// Parse converts a user-supplied name into a Strategy
func Parse(name string) (Strategy, error) {
	s := Strategy(strings.ToLower(strings.TrimSpace(name)))
	for _, known := range All() {
		if s == known {
			return s, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
}

// MetadataFunc looks up file-level facts for an item
type MetadataFunc func(id string) (models.ItemMetadata, error)

// Select picks the item to keep in group. Ties keep the group's member
// order. A failed metadata lookup never fails the call; the member is
// ranked last instead.
func Select(group *models.DuplicateGroup, s Strategy, lookup MetadataFunc) (models.DedupDecision, error) {
	switch s {
	case Manual:
		return models.DedupDecision{RemoveItems: []string{}, Reason: ReasonManual}, nil
	case KeepAll:
		return keepAll(group), nil
	}

	if group == nil || len(group.Items) == 0 {
		if _, err := Parse(string(s)); err != nil {
			return models.DedupDecision{}, err
		}
		return models.DedupDecision{RemoveItems: []string{}, Reason: ReasonEmpty}, nil
	}

	var (
		ordered []string
		reason  string
	)

	switch s {
	case First:
		ordered, reason = group.Items, reasonFirst
	case Largest:
		ordered, reason = rankBy(group.Items, lookup, func(m models.ItemMetadata) float64 {
			return float64(m.Size)
		}, 0, true), reasonLargest
	case Smallest:
		ordered, reason = rankBy(group.Items, lookup, func(m models.ItemMetadata) float64 {
			return float64(m.Size)
		}, math.Inf(1), false), reasonSmallest
	case Oldest:
		ordered, reason = rankBy(group.Items, lookup, func(m models.ItemMetadata) float64 {
			return timeKey(m.EffectiveTime())
		}, timeKey(time.Now()), false), reasonOldest
	case Newest:
		ordered, reason = rankBy(group.Items, lookup, func(m models.ItemMetadata) float64 {
			return timeKey(m.EffectiveTime())
		}, math.Inf(-1), true), reasonNewest
	case Quality:
		ordered, reason = rankBy(group.Items, lookup, func(m models.ItemMetadata) float64 {
			return m.QualityScore()
		}, math.Inf(-1), true), reasonQuality
	default:
		return models.DedupDecision{}, fmt.Errorf("%w: %q", ErrUnknownStrategy, s)
	}

	remove := make([]string, len(ordered)-1)
	copy(remove, ordered[1:])

	return models.DedupDecision{
		KeepItem:    ordered[0],
		RemoveItems: remove,
		Reason:      reason,
	}, nil
}

// rankBy stable-sorts ids by the key extracted from their metadata. Members
// whose lookup fails get fallback, which the caller picks so they rank last.
func rankBy(ids []string, lookup MetadataFunc, key func(models.ItemMetadata) float64, fallback float64, descending bool) []string {
	keys := make(map[string]float64, len(ids))
	for _, id := range ids {
		if lookup == nil {
			keys[id] = fallback
			continue
		}
		meta, err := lookup(id)
		if err != nil {
			keys[id] = fallback
			continue
		}
		keys[id] = key(meta)
	}

	sorted := make([]string, len(ids))
	copy(sorted, ids)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := keys[sorted[i]], keys[sorted[j]]
		if descending {
			return a > b
		}
		return a < b
	})
	return sorted
}

// timeKey maps a time onto a sortable float; the zero time sorts first
func timeKey(t time.Time) float64 {
	if t.IsZero() {
		return math.Inf(-1)
	}
	return float64(t.UnixNano())
}

// GeneratePlan applies s to every group, keeping group order
func GeneratePlan(groups []*models.DuplicateGroup, s Strategy, lookup MetadataFunc) ([]models.DedupDecision, error) {
	if _, err := Parse(string(s)); err != nil {
		return nil, err
	}

	decisions := make([]models.DedupDecision, 0, len(groups))
	for _, g := range groups {
		d, err := Select(g, s, lookup)
		if err != nil {
			return nil, fmt.Errorf("group %d: %w", g.ID, err)
		}
		decisions = append(decisions, d)
	}
	return decisions, nil
}

// KeepItem records a reviewer's explicit choice of survivor
func KeepItem(group *models.DuplicateGroup, id string) (models.DedupDecision, error) {
	if group == nil || !group.Contains(id) {
		return models.DedupDecision{}, fmt.Errorf("item %q is not in the group", id)
	}

	remove := make([]string, 0, len(group.Items)-1)
	for _, item := range group.Items {
		if item != id {
			remove = append(remove, item)
		}
	}
	return models.DedupDecision{KeepItem: id, RemoveItems: remove, Reason: ReasonUser}, nil
}

// MarkKeepAll marks the group as a false positive
func MarkKeepAll(group *models.DuplicateGroup) models.DedupDecision {
	return keepAll(group)
}

func keepAll(group *models.DuplicateGroup) models.DedupDecision {
	d := models.DedupDecision{RemoveItems: []string{}, Reason: ReasonKeepAll}
	if group != nil && len(group.Items) > 0 {
		d.KeepItem = group.Items[0]
	}
	return d
}

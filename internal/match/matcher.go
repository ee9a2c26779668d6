package match

import (
	"sort"

	"imagededup/internal/hash"
	"imagededup/internal/models"
)

// DefaultThreshold is the similarity percentage used when none is configured
const DefaultThreshold = 95.0

// Engine groups hashed items into duplicate sets
type Engine struct {
	threshold float64
}

// NewEngine creates an Engine. A negative threshold selects DefaultThreshold.
func NewEngine(threshold float64) *Engine {
	if threshold < 0 {
		threshold = DefaultThreshold
	}
	return &Engine{threshold: threshold}
}

// Threshold returns the configured similarity percentage
func (e *Engine) Threshold() float64 {
	return e.threshold
}

// buildGroups turns connected components into DuplicateGroups. Singletons
// are dropped, members are sorted, the smallest ID becomes the pivot and
// every member is scored against it. Groups are ordered by pivot and
// numbered from 1.
func buildGroups(components [][]string, hashes map[string]models.HashResult) []*models.DuplicateGroup {
	var groups []*models.DuplicateGroup

	for _, members := range components {
		if len(members) < 2 {
			continue
		}

		items := make([]string, len(members))
		copy(items, members)

		values := make(map[string]string, len(items))
		for _, id := range items {
			values[id] = hashes[id].Value
		}

		g := &models.DuplicateGroup{
			Items:    items,
			HashType: hashes[items[0]].Algorithm,
			Hashes:   values,
		}
		Repivot(g)
		groups = append(groups, g)
	}

	sort.Slice(groups, func(i, j int) bool {
		return groups[i].Pivot < groups[j].Pivot
	})
	numberGroups(groups)

	return groups
}

// Repivot sorts the members, makes the smallest one the pivot and scores
// every member against the pivot hash. Members without a recorded hash
// keep their current score.
func Repivot(g *models.DuplicateGroup) {
	if len(g.Items) == 0 {
		return
	}
	sort.Strings(g.Items)
	g.Pivot = g.Items[0]

	if g.SimilarityScores == nil {
		g.SimilarityScores = make(map[string]float64, len(g.Items))
	}
	pivotHash, ok := g.Hashes[g.Pivot]
	if !ok {
		g.SimilarityScores[g.Pivot] = 100.0
		return
	}
	for _, id := range g.Items {
		if value, ok := g.Hashes[id]; ok {
			g.SimilarityScores[id] = similarityTo(pivotHash, value)
		}
	}
}

func numberGroups(groups []*models.DuplicateGroup) {
	for i, g := range groups {
		g.ID = i + 1
	}
}

// similarityTo scores value against the pivot hash on the hex-width bit scale
func similarityTo(pivot, value string) float64 {
	if pivot == value {
		return 100.0
	}
	dist, err := hash.HammingDistance(pivot, value)
	if err != nil {
		return 0
	}
	sim, err := hash.SimilarityPercentage(dist, len(pivot)*4)
	if err != nil {
		return 0
	}
	return sim
}

func sortedIDs(hashes map[string]models.HashResult) []string {
	ids := make([]string, 0, len(hashes))
	for id := range hashes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// FilterExcluded drops groups whose members all belong to one exclusion set.
// Exclusions are groups a reviewer marked as false positives. Remaining
// groups are renumbered from 1.
func FilterExcluded(groups []*models.DuplicateGroup, exclusions [][]string) []*models.DuplicateGroup {
	if len(exclusions) == 0 {
		return groups
	}
	kept := DropExcluded(groups, exclusions)
	numberGroups(kept)
	return kept
}

// DropExcluded is FilterExcluded without renumbering, for groups whose IDs
// are already persisted.
func DropExcluded(groups []*models.DuplicateGroup, exclusions [][]string) []*models.DuplicateGroup {
	if len(exclusions) == 0 {
		return groups
	}

	sets := make([]map[string]struct{}, 0, len(exclusions))
	for _, ex := range exclusions {
		set := make(map[string]struct{}, len(ex))
		for _, id := range ex {
			set[id] = struct{}{}
		}
		sets = append(sets, set)
	}

	kept := make([]*models.DuplicateGroup, 0, len(groups))
	for _, g := range groups {
		if !coveredBy(g, sets) {
			kept = append(kept, g)
		}
	}
	return kept
}

func coveredBy(g *models.DuplicateGroup, sets []map[string]struct{}) bool {
	for _, set := range sets {
		covered := true
		for _, id := range g.Items {
			if _, ok := set[id]; !ok {
				covered = false
				break
			}
		}
		if covered {
			return true
		}
	}
	return false
}

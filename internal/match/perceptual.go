package match

import (
	"imagededup/internal/hash"
	"imagededup/internal/models"
)

// bucketKey separates hashes that can never be compared: different
// algorithms or different hex widths
type bucketKey struct {
	algo  models.Algorithm
	width int
}

// FindSimilarImages groups items whose hashes are connected through pairs at
// or above the threshold (transitive closure). A nil threshold uses the
// engine default. Only hashes of the same algorithm and width are compared.
//
// Each bucket is indexed by a BK-tree so that only candidates inside
// hash.MaxDistance are checked with hash.AreSimilar; the resulting unions
// are the same as testing every pair.
func (e *Engine) FindSimilarImages(hashes map[string]models.HashResult, threshold *float64) []*models.DuplicateGroup {
	if len(hashes) < 2 {
		return nil
	}

	t := e.threshold
	if threshold != nil {
		t = *threshold
	}

	ids := sortedIDs(hashes)
	uf := NewUnionFind(ids...)
	trees := make(map[bucketKey]*bkTree)

	for _, id := range ids {
		h := hashes[id]
		if !isComparable(h.Value) {
			continue
		}

		key := bucketKey{algo: h.Algorithm, width: len(h.Value)}
		tree, ok := trees[key]
		if !ok {
			tree = newBKTree(hexDistance)
			trees[key] = tree
		}

		maxDist := hash.MaxDistance(len(h.Value)*4, t)
		for _, other := range tree.findWithinDistance(h.Value, maxDist) {
			if uf.Connected(id, other) {
				continue
			}
			if hash.AreSimilar(h.Value, hashes[other].Value, t) {
				uf.Union(id, other)
			}
		}
		tree.insert(h.Value, id)
	}

	components := make([][]string, 0, uf.Len())
	for _, members := range uf.Components() {
		components = append(components, members)
	}

	return buildGroups(components, hashes)
}

// isComparable reports whether value is a non-empty hex string
func isComparable(value string) bool {
	if value == "" {
		return false
	}
	_, err := hash.HammingDistance(value, value)
	return err == nil
}

func hexDistance(a, b string) int {
	d, _ := hash.HammingDistance(a, b)
	return d
}

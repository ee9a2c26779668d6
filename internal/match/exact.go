package match

import "imagededup/internal/models"

type exactKey struct {
	algo  models.Algorithm
	value string
}

// FindExactDuplicates groups items whose hash values are identical,
// regardless of threshold. Every member scores 100.
func (e *Engine) FindExactDuplicates(hashes map[string]models.HashResult) []*models.DuplicateGroup {
	if len(hashes) < 2 {
		return nil
	}

	// Group by algorithm and hash value
	byValue := make(map[exactKey][]string)
	for _, id := range sortedIDs(hashes) {
		h := hashes[id]
		if h.Value == "" {
			continue
		}
		key := exactKey{algo: h.Algorithm, value: h.Value}
		byValue[key] = append(byValue[key], id)
	}

	components := make([][]string, 0, len(byValue))
	for _, ids := range byValue {
		components = append(components, ids)
	}

	return buildGroups(components, hashes)
}

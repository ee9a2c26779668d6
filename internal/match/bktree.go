package match

// bkTree is a BK-tree over equal-width hex hashes. It supports
// O(log n) average-case lookup for every entry within a distance bound.
type bkTree struct {
	root     *bkNode
	distance func(a, b string) int
}

type bkNode struct {
	hash     string
	ids      []string        // items sharing this exact hash
	children map[int]*bkNode // distance -> child node
}

// newBKTree creates a new BK-tree with the given distance function.
// distance must be a metric over the hashes that will be inserted.
func newBKTree(distanceFn func(a, b string) int) *bkTree {
	return &bkTree{distance: distanceFn}
}

// insert adds an item under its hash.
func (t *bkTree) insert(hash, id string) {
	if t.root == nil {
		t.root = newBKNode(hash, id)
		return
	}

	current := t.root
	for {
		dist := t.distance(hash, current.hash)
		if dist == 0 {
			current.ids = append(current.ids, id)
			return
		}
		if child, exists := current.children[dist]; exists {
			current = child
		} else {
			current.children[dist] = newBKNode(hash, id)
			return
		}
	}
}

func newBKNode(hash, id string) *bkNode {
	return &bkNode{
		hash:     hash,
		ids:      []string{id},
		children: make(map[int]*bkNode),
	}
}

// findWithinDistance returns the IDs of all entries within maxDist of hash.
func (t *bkTree) findWithinDistance(hash string, maxDist int) []string {
	if t.root == nil {
		return nil
	}

	var results []string
	t.searchNode(t.root, hash, maxDist, &results)
	return results
}

func (t *bkTree) searchNode(node *bkNode, hash string, maxDist int, results *[]string) {
	dist := t.distance(hash, node.hash)

	if dist <= maxDist {
		*results = append(*results, node.ids...)
	}

	// Triangle inequality: only children in [dist-maxDist, dist+maxDist]
	// can hold matches
	minChild := dist - maxDist
	if minChild < 0 {
		minChild = 0
	}
	maxChild := dist + maxDist

	for childDist, child := range node.children {
		if childDist >= minChild && childDist <= maxChild {
			t.searchNode(child, hash, maxDist, results)
		}
	}
}

package match

// UnionFind is a disjoint-set over item IDs with path compression and
// union by rank
type UnionFind struct {
	parent map[string]string
	rank   map[string]int
}

// NewUnionFind creates a UnionFind where every ID starts in its own set
func NewUnionFind(ids ...string) *UnionFind {
	uf := &UnionFind{
		parent: make(map[string]string, len(ids)),
		rank:   make(map[string]int, len(ids)),
	}
	for _, id := range ids {
		uf.Add(id)
	}
	return uf
}

// Add registers id as a singleton set. Existing IDs are left untouched.
func (uf *UnionFind) Add(id string) {
	if _, ok := uf.parent[id]; !ok {
		uf.parent[id] = id
	}
}

// Find returns the representative of id's set. Unknown IDs are added.
func (uf *UnionFind) Find(id string) string {
	p, ok := uf.parent[id]
	if !ok {
		uf.parent[id] = id
		return id
	}
	if p != id {
		uf.parent[id] = uf.Find(p) // Path compression
	}
	return uf.parent[id]
}

// Union merges the sets containing x and y
func (uf *UnionFind) Union(x, y string) {
	px, py := uf.Find(x), uf.Find(y)
	if px == py {
		return
	}
	// Union by rank
	if uf.rank[px] < uf.rank[py] {
		px, py = py, px
	}
	uf.parent[py] = px
	if uf.rank[px] == uf.rank[py] {
		uf.rank[px]++
	}
}

// Connected reports whether x and y share a set
func (uf *UnionFind) Connected(x, y string) bool {
	return uf.Find(x) == uf.Find(y)
}

// Components partitions every known ID by its representative
func (uf *UnionFind) Components() map[string][]string {
	components := make(map[string][]string)
	for id := range uf.parent {
		root := uf.Find(id)
		components[root] = append(components[root], id)
	}
	return components
}

// Len returns the number of known IDs
func (uf *UnionFind) Len() int {
	return len(uf.parent)
}

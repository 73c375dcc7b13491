package dedupe

import "sort"

// unionFind groups article URLs into same-event clusters.
// Path compression plus union by rank; unknown ids are singletons.
type unionFind struct {
	parent map[string]string
	rank   map[string]int
	groups map[string][]string // root -> members
}

func newUnionFind() *unionFind {
	return &unionFind{
		parent: map[string]string{},
		rank:   map[string]int{},
		groups: map[string][]string{},
	}
}

func (uf *unionFind) add(id string) {
	if _, ok := uf.parent[id]; !ok {
		uf.parent[id] = id
		uf.groups[id] = []string{id}
	}
}

func (uf *unionFind) has(id string) bool {
	_, ok := uf.parent[id]
	return ok
}

func (uf *unionFind) find(id string) string {
	p, ok := uf.parent[id]
	if !ok || p == id {
		return id
	}
	root := uf.find(p)
	uf.parent[id] = root
	return root
}

func (uf *unionFind) union(a, b string) {
	uf.add(a)
	uf.add(b)
	ra, rb := uf.find(a), uf.find(b)
	if ra == rb {
		return
	}
	if uf.rank[ra] < uf.rank[rb] {
		ra, rb = rb, ra
	}
	uf.parent[rb] = ra
	if uf.rank[ra] == uf.rank[rb] {
		uf.rank[ra]++
	}
	uf.groups[ra] = append(uf.groups[ra], uf.groups[rb]...)
	delete(uf.groups, rb)
}

// members returns every id sharing id's root, sorted.
func (uf *unionFind) members(id string) []string {
	g := uf.groups[uf.find(id)]
	if len(g) == 0 {
		return []string{id}
	}
	out := append([]string(nil), g...)
	sort.Strings(out)
	return out
}

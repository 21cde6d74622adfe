package netlist

import (
	"sort"

	"github.com/OpenTraceLab/OpenTraceERC/pkg/layout"
)

// DisjointSet is a union-find over object ids with union by rank and path
// compression.
type DisjointSet struct {
	parent map[layout.ObjectID]layout.ObjectID
	rank   map[layout.ObjectID]int
}

// NewDisjointSet creates a set in which each id starts in its own group.
func NewDisjointSet(ids ...layout.ObjectID) *DisjointSet {
	ds := &DisjointSet{
		parent: make(map[layout.ObjectID]layout.ObjectID, len(ids)),
		rank:   make(map[layout.ObjectID]int, len(ids)),
	}
	for _, id := range ids {
		ds.Add(id)
	}
	return ds
}

// Add inserts id as a singleton group. Existing ids are left alone.
func (ds *DisjointSet) Add(id layout.ObjectID) {
	if _, ok := ds.parent[id]; ok {
		return
	}
	ds.parent[id] = id
	ds.rank[id] = 0
}

// Has reports whether id was added.
func (ds *DisjointSet) Has(id layout.ObjectID) bool {
	_, ok := ds.parent[id]
	return ok
}

// Len returns the number of ids.
func (ds *DisjointSet) Len() int {
	return len(ds.parent)
}

// Find returns the representative of the group containing id. Unknown ids
// are added first.
func (ds *DisjointSet) Find(id layout.ObjectID) layout.ObjectID {
	ds.Add(id)

	root := id
	for ds.parent[root] != root {
		root = ds.parent[root]
	}

	// Path compression: make all nodes on the path point directly to root
	current := id
	for current != root {
		next := ds.parent[current]
		ds.parent[current] = root
		current = next
	}
	return root
}

// Union merges the groups of a and b. It reports whether they were separate.
func (ds *DisjointSet) Union(a, b layout.ObjectID) bool {
	rootA := ds.Find(a)
	rootB := ds.Find(b)
	if rootA == rootB {
		return false
	}

	// Union by rank
	switch {
	case ds.rank[rootA] < ds.rank[rootB]:
		ds.parent[rootA] = rootB
	case ds.rank[rootA] > ds.rank[rootB]:
		ds.parent[rootB] = rootA
	default:
		ds.parent[rootB] = rootA
		ds.rank[rootA]++
	}
	return true
}

// Groups returns every group with its members sorted by id. Groups are
// ordered by their smallest member.
func (ds *DisjointSet) Groups() [][]layout.ObjectID {
	byRoot := make(map[layout.ObjectID][]layout.ObjectID)
	for id := range ds.parent {
		root := ds.Find(id)
		byRoot[root] = append(byRoot[root], id)
	}

	groups := make([][]layout.ObjectID, 0, len(byRoot))
	for _, members := range byRoot {
		sortIDs(members)
		groups = append(groups, members)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i][0] < groups[j][0] })
	return groups
}

func sortIDs(ids []layout.ObjectID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}

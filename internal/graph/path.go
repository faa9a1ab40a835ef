package graph

import (
	"slices"

	"pyimports/internal/pypath"
	"pyimports/internal/tree"
)

const noPrev = -1

// Edge is an ordered pair of items.
type Edge struct {
	From tree.Handle
	To   tree.Handle
}

// ExternalEdge is a direct import of an external key.
type ExternalEdge struct {
	From tree.Handle
	Key  string
}

// PathQuery describes a constrained path search.
type PathQuery struct {
	From tree.Handle
	To   tree.Handle
	// FromPackage and ToPackage widen a package endpoint to the package and
	// every item below it.
	FromPackage bool
	ToPackage   bool
	// ToExternal, when set, replaces To: the path ends at any item that
	// directly imports this external key or a dotted descendant of it.
	ToExternal string

	// Exclude removes items and all their edges from the search.
	Exclude []tree.Handle
	// ExcludeExternal removes external references from the search, so a
	// ToExternal query finds nothing.
	ExcludeExternal bool
	// IgnoreEdges removes individual edges from the search.
	IgnoreEdges []Edge
	// IgnoreExternalEdges removes individual external imports, matched by
	// exact key, from a ToExternal search.
	IgnoreExternalEdges []ExternalEdge
	// SkipTypeChecking ignores imports made only under TYPE_CHECKING.
	SkipTypeChecking bool
}

// FindPath returns a path with the fewest edges satisfying q, from the source
// to the sink inclusive. Ties go to the lowest arena indexes: sources are
// seeded and successors expanded in ascending order, and the first complete
// path wins. A query whose source is also a sink yields a one-item path.
// When there is no path the second result is false.
func (g *Graph) FindPath(q PathQuery) ([]tree.Handle, bool, error) {
	if _, err := g.index(q.From); err != nil {
		return nil, false, err
	}
	if q.ToExternal == "" {
		if _, err := g.index(q.To); err != nil {
			return nil, false, err
		}
	}

	n := len(g.fwd)
	excluded := make([]bool, n)
	for _, h := range q.Exclude {
		i, err := g.index(h)
		if err != nil {
			return nil, false, err
		}
		excluded[i] = true
	}

	ignored := make(map[edgeKey]bool, len(q.IgnoreEdges))
	for _, e := range q.IgnoreEdges {
		f, err := g.index(e.From)
		if err != nil {
			return nil, false, err
		}
		t, err := g.index(e.To)
		if err != nil {
			return nil, false, err
		}
		ignored[edgeKey{from: f, to: t}] = true
	}

	ignoredExt := make(map[externalKey]bool, len(q.IgnoreExternalEdges))
	for _, e := range q.IgnoreExternalEdges {
		f, err := g.index(e.From)
		if err != nil {
			return nil, false, err
		}
		ignoredExt[externalKey{from: f, key: e.Key}] = true
	}

	sinks := g.sinks(q, excluded, ignoredExt)
	if sinks == nil {
		return nil, false, nil
	}

	var sources []uint32
	for _, h := range g.expand(q.From, q.FromPackage) {
		if i := uint32(h.Index()); !excluded[i] {
			sources = append(sources, i)
		}
	}

	for _, s := range sources {
		if sinks[s] {
			return []tree.Handle{g.t.At(int(s))}, true, nil
		}
	}

	prev := make([]int, n)
	for i := range prev {
		prev[i] = noPrev
	}
	visited := make([]bool, n)
	for _, s := range sources {
		visited[s] = true
	}

	queue := sources
	for head := 0; head < len(queue); head++ {
		cur := queue[head]
		for _, next := range g.fwd[cur] {
			if visited[next] || excluded[next] {
				continue
			}
			k := edgeKey{from: cur, to: next}
			if ignored[k] || (q.SkipTypeChecking && g.typeCheckingOnly(g.origins[k])) {
				continue
			}
			visited[next] = true
			prev[next] = int(cur)
			if sinks[next] {
				return g.trace(prev, next), true, nil
			}
			queue = append(queue, next)
		}
	}
	return nil, false, nil
}

// PathExists reports whether FindPath would find a path.
func (g *Graph) PathExists(q PathQuery) (bool, error) {
	_, ok, err := g.FindPath(q)
	return ok, err
}

func (g *Graph) expand(h tree.Handle, asPackage bool) []tree.Handle {
	if asPackage {
		return g.t.Descendants(h)
	}
	return []tree.Handle{h}
}

// sinks marks the items a path may end at. It returns nil when there are none.
func (g *Graph) sinks(q PathQuery, excluded []bool, ignored map[externalKey]bool) []bool {
	out := make([]bool, len(g.fwd))
	found := false

	if q.ToExternal != "" {
		if q.ExcludeExternal {
			return nil
		}
		target := pypath.Path(q.ToExternal)
		for i, keys := range g.externals {
			if excluded[i] {
				continue
			}
			for _, key := range keys {
				if !pypath.Path(key).IsEqualOrDescendant(target) {
					continue
				}
				k := externalKey{from: uint32(i), key: key}
				if ignored[k] {
					continue
				}
				if q.SkipTypeChecking && g.typeCheckingOnly(g.externalOrigins[k]) {
					continue
				}
				out[i] = true
				found = true
				break
			}
		}
	} else {
		for _, h := range g.expand(q.To, q.ToPackage) {
			if i := h.Index(); !excluded[i] {
				out[i] = true
				found = true
			}
		}
	}

	if !found {
		return nil
	}
	return out
}

func (g *Graph) typeCheckingOnly(origins []Origin) bool {
	if len(origins) == 0 {
		return false
	}
	for _, o := range origins {
		if !o.TypeChecking {
			return false
		}
	}
	return true
}

func (g *Graph) trace(prev []int, end uint32) []tree.Handle {
	var idx []uint32
	for cur := int(end); cur != noPrev; cur = prev[cur] {
		idx = append(idx, uint32(cur))
	}
	slices.Reverse(idx)
	return g.handles(idx)
}

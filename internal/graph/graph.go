// Package graph holds the import graph of a package tree and answers direct,
// transitive, cycle and path queries over it.
package graph

import (
	"fmt"
	"log/slog"
	"slices"

	lru "github.com/hashicorp/golang-lru/v2"

	"pyimports/internal/resolver"
	"pyimports/internal/tree"
)

// Origin describes one cause of an edge.
type Origin struct {
	Line         int  `json:"line,omitempty"`
	TypeChecking bool `json:"type_checking,omitempty"`
	// Implicit marks the edge every package has to its initializer.
	Implicit bool `json:"implicit,omitempty"`
	Deep     bool `json:"deep,omitempty"`
}

// Options configures New.
type Options struct {
	// QueryCacheSize bounds the number of memoised reachability results.
	// Zero disables memoisation.
	QueryCacheSize int
	Logger         *slog.Logger
}

// Stats summarises a graph.
type Stats struct {
	Items           int `json:"items"`
	Edges           int `json:"edges"`
	ExternalImports int `json:"external_imports"`
	Cycles          int `json:"cycles"`
}

type edgeKey struct {
	from, to uint32
}

type externalKey struct {
	from uint32
	key  string
}

type reachKey struct {
	item     uint32
	upstream bool
}

// Graph is an immutable import graph. Vertices are tree handles; adjacency is
// stored by arena index in ascending order. It is safe for concurrent use.
type Graph struct {
	t *tree.Tree

	fwd     [][]uint32
	rev     [][]uint32
	origins map[edgeKey][]Origin

	externals       [][]string
	externalOrigins map[externalKey][]Origin

	inCycle []bool
	cycles  [][]uint32

	reach *lru.Cache[reachKey, []uint32]
}

// New builds the graph of t from resolved imports. Every package also gets an
// edge to its initializer. Duplicate edges are merged, keeping every origin.
func New(t *tree.Tree, imports []resolver.Resolved, opts Options) (*Graph, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	n := t.Len()
	g := &Graph{
		t:               t,
		fwd:             make([][]uint32, n),
		rev:             make([][]uint32, n),
		origins:         make(map[edgeKey][]Origin),
		externals:       make([][]string, n),
		externalOrigins: make(map[externalKey][]Origin),
	}

	if opts.QueryCacheSize > 0 {
		cache, err := lru.New[reachKey, []uint32](opts.QueryCacheSize)
		if err != nil {
			return nil, fmt.Errorf("failed to create query cache: %w", err)
		}
		g.reach = cache
	}

	for _, it := range t.Items() {
		if it.IsPackage() {
			g.addEdge(uint32(it.Handle.Index()), uint32(it.Init.Index()), Origin{Implicit: true})
		}
	}

	for _, imp := range imports {
		if !t.Contains(imp.Source) {
			return nil, &UnknownItemError{Handle: imp.Source}
		}
		from := uint32(imp.Source.Index())
		origin := Origin{Line: imp.Line, TypeChecking: imp.TypeChecking, Deep: imp.Deep}

		if imp.Target.IsExternal() {
			k := externalKey{from: from, key: imp.Target.External}
			if _, seen := g.externalOrigins[k]; !seen {
				g.externals[from] = append(g.externals[from], k.key)
			}
			g.externalOrigins[k] = append(g.externalOrigins[k], origin)
			continue
		}

		if !t.Contains(imp.Target.Item) {
			return nil, &UnknownItemError{Handle: imp.Target.Item}
		}
		g.addEdge(from, uint32(imp.Target.Item.Index()), origin)
	}

	for i := range n {
		slices.Sort(g.fwd[i])
		slices.Sort(g.rev[i])
		slices.Sort(g.externals[i])
	}

	g.computeCycles()

	logger.Debug("import graph built", "items", n, "edges", len(g.origins), "external", len(g.externalOrigins))
	return g, nil
}

func (g *Graph) addEdge(from, to uint32, origin Origin) {
	k := edgeKey{from: from, to: to}
	if _, seen := g.origins[k]; !seen {
		g.fwd[from] = append(g.fwd[from], to)
		g.rev[to] = append(g.rev[to], from)
	}
	g.origins[k] = append(g.origins[k], origin)
}

// Tree returns the tree the graph was built from.
func (g *Graph) Tree() *tree.Tree {
	return g.t
}

// Stats returns item, edge and external reference counts.
func (g *Graph) Stats() Stats {
	return Stats{
		Items:           g.t.Len(),
		Edges:           len(g.origins),
		ExternalImports: len(g.externalOrigins),
		Cycles:          len(g.cycles),
	}
}

func (g *Graph) index(h tree.Handle) (uint32, error) {
	if !g.t.Contains(h) {
		return 0, &UnknownItemError{Handle: h}
	}
	return uint32(h.Index()), nil
}

func (g *Graph) handles(idx []uint32) []tree.Handle {
	out := make([]tree.Handle, len(idx))
	for i, x := range idx {
		out[i] = g.t.At(int(x))
	}
	return out
}

// DirectImports returns the items h imports directly, in arena order.
func (g *Graph) DirectImports(h tree.Handle) ([]tree.Handle, error) {
	i, err := g.index(h)
	if err != nil {
		return nil, err
	}
	return g.handles(g.fwd[i]), nil
}

// DirectImportedBy returns the items that import h directly, in arena order.
func (g *Graph) DirectImportedBy(h tree.Handle) ([]tree.Handle, error) {
	i, err := g.index(h)
	if err != nil {
		return nil, err
	}
	return g.handles(g.rev[i]), nil
}

// DirectImportExists reports whether from imports to directly.
func (g *Graph) DirectImportExists(from, to tree.Handle) (bool, error) {
	f, err := g.index(from)
	if err != nil {
		return false, err
	}
	t, err := g.index(to)
	if err != nil {
		return false, err
	}
	_, found := slices.BinarySearch(g.fwd[f], t)
	return found, nil
}

// EdgeOrigins returns every cause of the edge from -> to, or nil if there is
// no such edge.
func (g *Graph) EdgeOrigins(from, to tree.Handle) ([]Origin, error) {
	f, err := g.index(from)
	if err != nil {
		return nil, err
	}
	t, err := g.index(to)
	if err != nil {
		return nil, err
	}
	return slices.Clone(g.origins[edgeKey{from: f, to: t}]), nil
}

// DownstreamItems returns every item reachable from h through one or more
// imports. h itself is included only when it sits on a cycle.
func (g *Graph) DownstreamItems(h tree.Handle) ([]tree.Handle, error) {
	i, err := g.index(h)
	if err != nil {
		return nil, err
	}
	return g.handles(g.reachable(i, false)), nil
}

// UpstreamItems returns every item from which h is reachable.
func (g *Graph) UpstreamItems(h tree.Handle) ([]tree.Handle, error) {
	i, err := g.index(h)
	if err != nil {
		return nil, err
	}
	return g.handles(g.reachable(i, true)), nil
}

// reachable runs a visited-guarded breadth-first search from the neighbours
// of start. The result is sorted and must not be modified by callers.
func (g *Graph) reachable(start uint32, upstream bool) []uint32 {
	key := reachKey{item: start, upstream: upstream}
	if g.reach != nil {
		if cached, ok := g.reach.Get(key); ok {
			return cached
		}
	}

	adj := g.fwd
	if upstream {
		adj = g.rev
	}

	visited := make([]bool, len(adj))
	var out []uint32
	queue := append([]uint32(nil), adj[start]...)
	for _, x := range queue {
		visited[x] = true
	}
	for head := 0; head < len(queue); head++ {
		cur := queue[head]
		out = append(out, cur)
		for _, next := range adj[cur] {
			if !visited[next] {
				visited[next] = true
				queue = append(queue, next)
			}
		}
	}
	slices.Sort(out)

	if g.reach != nil {
		g.reach.Add(key, out)
	}
	return out
}

// ExternalImports returns the external keys h imports directly, sorted.
// External references are never expanded further.
func (g *Graph) ExternalImports(h tree.Handle) ([]string, error) {
	i, err := g.index(h)
	if err != nil {
		return nil, err
	}
	return slices.Clone(g.externals[i]), nil
}

// ExternalOrigins returns every cause of h importing the external key.
func (g *Graph) ExternalOrigins(h tree.Handle, key string) ([]Origin, error) {
	i, err := g.index(h)
	if err != nil {
		return nil, err
	}
	return slices.Clone(g.externalOrigins[externalKey{from: i, key: key}]), nil
}

// DownstreamExternalImports returns the external keys imported by h or any
// item downstream of it, sorted and deduplicated.
func (g *Graph) DownstreamExternalImports(h tree.Handle) ([]string, error) {
	i, err := g.index(h)
	if err != nil {
		return nil, err
	}
	var out []string
	out = append(out, g.externals[i]...)
	for _, x := range g.reachable(i, false) {
		out = append(out, g.externals[x]...)
	}
	slices.Sort(out)
	return slices.Compact(out), nil
}

// PackageDirectImports returns the items outside pkg imported directly by pkg
// or any item below it.
func (g *Graph) PackageDirectImports(pkg tree.Handle) ([]tree.Handle, error) {
	if _, err := g.index(pkg); err != nil {
		return nil, err
	}
	if !g.t.MustItem(pkg).IsPackage() {
		return nil, fmt.Errorf("%s: %w", g.t.MustItem(pkg).Path, ErrNotAPackage)
	}

	members := g.t.Descendants(pkg)
	inside := make(map[uint32]bool, len(members))
	for _, m := range members {
		inside[uint32(m.Index())] = true
	}

	var out []uint32
	for _, m := range members {
		for _, x := range g.fwd[m.Index()] {
			if !inside[x] {
				out = append(out, x)
			}
		}
	}
	slices.Sort(out)
	return g.handles(slices.Compact(out)), nil
}

// IsInCycle reports whether h can reach itself.
func (g *Graph) IsInCycle(h tree.Handle) (bool, error) {
	i, err := g.index(h)
	if err != nil {
		return false, err
	}
	return g.inCycle[i], nil
}

// Cycles returns the strongly connected components that contain a cycle. Each
// component is sorted; components are ordered by their first member.
func (g *Graph) Cycles() [][]tree.Handle {
	out := make([][]tree.Handle, len(g.cycles))
	for i, c := range g.cycles {
		out[i] = g.handles(c)
	}
	return out
}

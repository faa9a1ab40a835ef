package graph

import (
	"cmp"
	"slices"
)

type sccFrame struct {
	v    uint32
	next int
}

// computeCycles runs an iterative Tarjan pass and records every strongly
// connected component that contains a cycle: more than one member, or a
// single member importing itself.
func (g *Graph) computeCycles() {
	n := len(g.fwd)
	index := make([]int, n) // 0 = unvisited
	low := make([]int, n)
	onStack := make([]bool, n)
	g.inCycle = make([]bool, n)

	var (
		stack   []uint32
		counter int
	)
	visit := func(v uint32) {
		counter++
		index[v] = counter
		low[v] = counter
		stack = append(stack, v)
		onStack[v] = true
	}

	for s := range n {
		if index[s] != 0 {
			continue
		}
		visit(uint32(s))
		call := []sccFrame{{v: uint32(s)}}

		for len(call) > 0 {
			top := &call[len(call)-1]
			v := top.v
			if top.next < len(g.fwd[v]) {
				w := g.fwd[v][top.next]
				top.next++
				if index[w] == 0 {
					visit(w)
					call = append(call, sccFrame{v: w})
				} else if onStack[w] {
					low[v] = min(low[v], index[w])
				}
				continue
			}

			call = call[:len(call)-1]
			if len(call) > 0 {
				parent := call[len(call)-1].v
				low[parent] = min(low[parent], low[v])
			}
			if low[v] != index[v] {
				continue
			}

			var component []uint32
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				component = append(component, w)
				if w == v {
					break
				}
			}
			if len(component) == 1 {
				if _, self := slices.BinarySearch(g.fwd[v], v); !self {
					continue
				}
			}
			slices.Sort(component)
			for _, w := range component {
				g.inCycle[w] = true
			}
			g.cycles = append(g.cycles, component)
		}
	}

	slices.SortFunc(g.cycles, func(a, b []uint32) int {
		return cmp.Compare(a[0], b[0])
	})
}

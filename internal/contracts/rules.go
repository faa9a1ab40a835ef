package contracts

import (
	"pyimports/internal/graph"
	"pyimports/internal/tree"
)

// Independent requires that none of Items imports another, directly or
// transitively.
type Independent struct {
	Items []tree.Handle
	Ignores
}

func (c Independent) Verify(g *graph.Graph) (Result, error) {
	return verify(g, permutations(c.Items), c.Ignores)
}

// ForbiddenInternal forbids From from importing To unless every path passes
// through ExceptVia.
type ForbiddenInternal struct {
	From      tree.Handle
	To        tree.Handle
	ExceptVia []tree.Handle
	Ignores
}

func (c ForbiddenInternal) Verify(g *graph.Graph) (Result, error) {
	return verify(g, []ForbiddenImport{{From: c.From, To: c.To, ExceptVia: c.ExceptVia}}, c.Ignores)
}

// ForbiddenExternal forbids From from importing the external key To or any
// dotted descendant of it, directly or through other items.
type ForbiddenExternal struct {
	From      tree.Handle
	To        string
	ExceptVia []tree.Handle
	Ignores
}

func (c ForbiddenExternal) Verify(g *graph.Graph) (Result, error) {
	return verify(g, []ForbiddenImport{{From: c.From, ToExternal: c.To, ExceptVia: c.ExceptVia}}, c.Ignores)
}

// Layer is one level of a layered architecture.
type Layer struct {
	Siblings []tree.Handle
	// Independent forbids the siblings from importing each other.
	Independent bool
}

// Layers enforces a layered architecture. Layers are listed lowest first.
// Lower layers may not import higher ones. Unless AllowDeepImports is set, a
// layer may reach layers further down only through the layer right below it.
type Layers struct {
	Layers           []Layer
	AllowDeepImports bool
	Ignores
}

func (c Layers) Verify(g *graph.Graph) (Result, error) {
	return verify(g, c.ForbiddenImports(), c.Ignores)
}

// ForbiddenImports lists the imports the layering rules out.
func (c Layers) ForbiddenImports() []ForbiddenImport {
	var out []ForbiddenImport
	for idx, layer := range c.Layers {
		for _, higher := range c.Layers[idx+1:] {
			for _, from := range layer.Siblings {
				for _, to := range higher.Siblings {
					out = append(out, ForbiddenImport{From: from, To: to})
				}
			}
		}

		if !c.AllowDeepImports && idx >= 2 {
			via := c.Layers[idx-1].Siblings
			for _, lower := range c.Layers[:idx-1] {
				for _, from := range layer.Siblings {
					for _, to := range lower.Siblings {
						out = append(out, ForbiddenImport{From: from, To: to, ExceptVia: via})
					}
				}
			}
		}

		if layer.Independent {
			out = append(out, permutations(layer.Siblings)...)
		}
	}
	return out
}

// Package contracts verifies architectural rules about which parts of a
// package may import which others.
//
// Every rule works at package granularity: an item stands for itself and
// everything below it.
package contracts

import (
	"fmt"
	"runtime"
	"strings"

	"golang.org/x/sync/errgroup"

	"pyimports/internal/graph"
	"pyimports/internal/tree"
)

// Contract is a verifiable import rule.
type Contract interface {
	Verify(g *graph.Graph) (Result, error)
}

// ForbiddenImport is an import path that must not exist. ExceptVia lists
// items through which the path is allowed. Exactly one of To and ToExternal is
// set.
type ForbiddenImport struct {
	From       tree.Handle
	To         tree.Handle
	ToExternal string
	ExceptVia  []tree.Handle
}

// Violation is a forbidden import together with one concrete path.
type Violation struct {
	Forbidden ForbiddenImport
	Path      []tree.Handle
}

// Describe renders the violation with dotted paths.
func (v Violation) Describe(t *tree.Tree) string {
	hops := make([]string, len(v.Path))
	for i, h := range v.Path {
		hops[i] = t.MustItem(h).Path.String()
	}
	target := v.Forbidden.ToExternal
	if target == "" {
		target = t.MustItem(v.Forbidden.To).Path.String()
	}
	path := strings.Join(hops, " -> ")
	if v.Forbidden.ToExternal != "" {
		path += " -> " + v.Forbidden.ToExternal
	}
	return fmt.Sprintf("%s must not import %s: %s", t.MustItem(v.Forbidden.From).Path, target, path)
}

// Result is the outcome of verifying a contract. The violations are samples,
// at most one per forbidden import.
type Result struct {
	Violations []Violation
}

// Kept reports whether the contract holds.
func (r Result) Kept() bool {
	return len(r.Violations) == 0
}

// Ignores holds the options every contract shares.
type Ignores struct {
	// IgnoredImports are direct imports left out of verification.
	IgnoredImports []graph.Edge
	// IgnoredExternalImports are direct external imports left out of
	// verification, matched by exact key.
	IgnoredExternalImports []graph.ExternalEdge
	// IgnoreTypeChecking leaves out imports made only under TYPE_CHECKING.
	IgnoreTypeChecking bool
}

// findViolations checks the forbidden imports in parallel. Results keep the
// order of forbidden.
func findViolations(g *graph.Graph, forbidden []ForbiddenImport, ign Ignores) ([]Violation, error) {
	t := g.Tree()
	for _, f := range forbidden {
		for _, h := range f.ExceptVia {
			if !t.Contains(h) {
				return nil, &graph.UnknownItemError{Handle: h}
			}
		}
	}
	paths := make([][]tree.Handle, len(forbidden))

	eg := new(errgroup.Group)
	eg.SetLimit(runtime.NumCPU())
	for i, f := range forbidden {
		eg.Go(func() error {
			var exclude []tree.Handle
			for _, h := range f.ExceptVia {
				exclude = append(exclude, t.Descendants(h)...)
			}
			path, ok, err := g.FindPath(graph.PathQuery{
				From:                f.From,
				FromPackage:         true,
				To:                  f.To,
				ToPackage:           true,
				ToExternal:          f.ToExternal,
				Exclude:             exclude,
				IgnoreEdges:         ign.IgnoredImports,
				IgnoreExternalEdges: ign.IgnoredExternalImports,
				SkipTypeChecking:    ign.IgnoreTypeChecking,
			})
			if err != nil {
				return err
			}
			if ok {
				paths[i] = path
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	var out []Violation
	for i, path := range paths {
		if path != nil {
			out = append(out, Violation{Forbidden: forbidden[i], Path: path})
		}
	}
	return out, nil
}

func verify(g *graph.Graph, forbidden []ForbiddenImport, ign Ignores) (Result, error) {
	violations, err := findViolations(g, forbidden, ign)
	if err != nil {
		return Result{}, err
	}
	return Result{Violations: violations}, nil
}

// permutations returns every ordered pair of distinct items.
func permutations(items []tree.Handle) []ForbiddenImport {
	var out []ForbiddenImport
	for _, a := range items {
		for _, b := range items {
			if a != b {
				out = append(out, ForbiddenImport{From: a, To: b})
			}
		}
	}
	return out
}

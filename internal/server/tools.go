package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"pyimports"
	"pyimports/internal/contracts"
	"pyimports/internal/graph"
	"pyimports/internal/tree"
	"pyimports/util"
)

// Arguments structs

type IndexArgs struct{}

type IndexStatusArgs struct{}

type ItemArgs struct {
	Item string `json:"item" jsonschema:"Dotted path of a module or package, e.g. mypackage.foo.bar, or the file:// URI of its source"`
}

type ExternalImportsArgs struct {
	Item       string `json:"item" jsonschema:"Dotted path of a module or package"`
	Transitive bool   `json:"transitive,omitempty" jsonschema:"Include the external imports of every downstream item"`
}

type FindPathArgs struct {
	From             string   `json:"from" jsonschema:"Dotted path the import chain starts at"`
	To               string   `json:"to,omitempty" jsonschema:"Dotted path the import chain ends at"`
	ToExternal       string   `json:"to_external,omitempty" jsonschema:"External dotted path to reach instead of an item, e.g. django.db"`
	FromPackage      bool     `json:"from_package,omitempty" jsonschema:"Start from any item inside the from package"`
	ToPackage        bool     `json:"to_package,omitempty" jsonschema:"End at any item inside the to package"`
	Exclude          []string `json:"exclude,omitempty" jsonschema:"Dotted paths the chain must not pass through"`
	SkipTypeChecking bool     `json:"skip_type_checking,omitempty" jsonschema:"Ignore imports made only under TYPE_CHECKING"`
}

type CyclesArgs struct{}

type CheckIndependenceArgs struct {
	Items              []string `json:"items" jsonschema:"Dotted paths of modules or packages that must not import each other"`
	IgnoreTypeChecking bool     `json:"ignore_type_checking,omitempty" jsonschema:"Ignore imports made only under TYPE_CHECKING"`
}

type importEdge struct {
	Item    string         `json:"item"`
	URI     string         `json:"uri,omitempty"`
	Origins []graph.Origin `json:"origins,omitempty"`
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "index",
		Description: "Builds the import graph of the package",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args IndexArgs) (*mcp.CallToolResult, any, error) {
		if err := s.Index(ctx); err != nil {
			if errors.Is(err, ErrIndexInProgress) {
				return errorResult("Indexing already in progress"), nil, nil
			}
			return errorResult(fmt.Sprintf("Index failed: %v", err)), nil, nil
		}

		g, diags, err := s.current(ctx)
		if err != nil {
			return errorResult(err.Error()), nil, nil
		}
		_, _, duration := s.GetIndexStatus()
		stats := g.Stats()
		msg := fmt.Sprintf("Indexed %d items and %d imports in %.2fs (%d files, %d cached, %d parse errors, %d unresolved imports)",
			stats.Items, stats.Edges, duration.Seconds(), diags.Files, diags.CacheHits,
			len(diags.ParseErrors), len(diags.ResolutionErrors))
		return textResult(msg), nil, nil
	})

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "index_status",
		Description: "Returns the current indexing status of the package",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args IndexStatusArgs) (*mcp.CallToolResult, any, error) {
		status, err, duration := s.GetIndexStatus()

		result := map[string]any{
			"status": string(status),
		}
		if duration > 0 {
			result["duration_seconds"] = duration.Seconds()
		}
		if err != nil {
			result["error"] = err.Error()
		}

		s.indexMu.RLock()
		if s.graph != nil {
			result["stats"] = s.graph.Stats()
			var diagnostics []string
			for _, e := range s.diags.ParseErrors {
				diagnostics = append(diagnostics, e.Error())
			}
			for _, e := range s.diags.ResolutionErrors {
				diagnostics = append(diagnostics, e.Error())
			}
			if len(diagnostics) > 0 {
				result["diagnostics"] = diagnostics
			}
		}
		s.indexMu.RUnlock()

		return jsonResult(result), nil, nil
	})

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "direct_imports",
		Description: "Lists the modules and packages an item imports directly, with the lines that import them",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args ItemArgs) (*mcp.CallToolResult, any, error) {
		return s.withItem(ctx, args.Item, func(g *graph.Graph, h tree.Handle) (any, error) {
			hs, err := g.DirectImports(h)
			if err != nil {
				return nil, err
			}
			edges := make([]importEdge, 0, len(hs))
			for _, to := range hs {
				origins, err := g.EdgeOrigins(h, to)
				if err != nil {
					return nil, err
				}
				it := g.Tree().MustItem(to)
				edges = append(edges, importEdge{Item: it.Path.String(), URI: util.PathToURI(it.File), Origins: origins})
			}
			return edges, nil
		})
	})

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "imported_by",
		Description: "Lists the modules and packages that import an item directly",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args ItemArgs) (*mcp.CallToolResult, any, error) {
		return s.withItem(ctx, args.Item, func(g *graph.Graph, h tree.Handle) (any, error) {
			hs, err := g.DirectImportedBy(h)
			if err != nil {
				return nil, err
			}
			return names(g.Tree(), hs), nil
		})
	})

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "downstream",
		Description: "Lists every item an item imports, directly or transitively",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args ItemArgs) (*mcp.CallToolResult, any, error) {
		return s.withItem(ctx, args.Item, func(g *graph.Graph, h tree.Handle) (any, error) {
			hs, err := g.DownstreamItems(h)
			if err != nil {
				return nil, err
			}
			return names(g.Tree(), hs), nil
		})
	})

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "upstream",
		Description: "Lists every item that imports an item, directly or transitively",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args ItemArgs) (*mcp.CallToolResult, any, error) {
		return s.withItem(ctx, args.Item, func(g *graph.Graph, h tree.Handle) (any, error) {
			hs, err := g.UpstreamItems(h)
			if err != nil {
				return nil, err
			}
			return names(g.Tree(), hs), nil
		})
	})

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "external_imports",
		Description: "Lists the imports of an item that point outside the package",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args ExternalImportsArgs) (*mcp.CallToolResult, any, error) {
		return s.withItem(ctx, args.Item, func(g *graph.Graph, h tree.Handle) (any, error) {
			if args.Transitive {
				return g.DownstreamExternalImports(h)
			}
			return g.ExternalImports(h)
		})
	})

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "find_path",
		Description: "Finds a shortest import chain between two items, or from an item to an external module",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args FindPathArgs) (*mcp.CallToolResult, any, error) {
		if (args.To == "") == (args.ToExternal == "") {
			return errorResult("Exactly one of to and to_external is required"), nil, nil
		}
		g, _, err := s.current(ctx)
		if err != nil {
			return errorResult(err.Error()), nil, nil
		}
		t := g.Tree()

		q := graph.PathQuery{
			FromPackage:      args.FromPackage,
			ToPackage:        args.ToPackage,
			ToExternal:       args.ToExternal,
			SkipTypeChecking: args.SkipTypeChecking,
		}
		if q.From, err = pyimports.LookupRef(t, args.From); err != nil {
			return errorResult(err.Error()), nil, nil
		}
		if args.To != "" {
			if q.To, err = pyimports.LookupRef(t, args.To); err != nil {
				return errorResult(err.Error()), nil, nil
			}
		}
		if q.Exclude, err = lookupAll(t, args.Exclude); err != nil {
			return errorResult(err.Error()), nil, nil
		}

		path, ok, err := g.FindPath(q)
		if err != nil {
			return errorResult(fmt.Sprintf("Query failed: %v", err)), nil, nil
		}
		if !ok {
			return textResult("No path found."), nil, nil
		}
		return jsonResult(names(t, path)), nil, nil
	})

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "cycles",
		Description: "Lists the groups of items that import each other in a cycle",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args CyclesArgs) (*mcp.CallToolResult, any, error) {
		g, _, err := s.current(ctx)
		if err != nil {
			return errorResult(err.Error()), nil, nil
		}
		cycles := g.Cycles()
		if len(cycles) == 0 {
			return textResult("No import cycles found."), nil, nil
		}
		out := make([][]string, len(cycles))
		for i, c := range cycles {
			out[i] = names(g.Tree(), c)
		}
		return jsonResult(out), nil, nil
	})

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "check_independence",
		Description: "Checks that none of the given modules or packages imports another, directly or transitively",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args CheckIndependenceArgs) (*mcp.CallToolResult, any, error) {
		g, _, err := s.current(ctx)
		if err != nil {
			return errorResult(err.Error()), nil, nil
		}
		items, err := lookupAll(g.Tree(), args.Items)
		if err != nil {
			return errorResult(err.Error()), nil, nil
		}

		res, err := contracts.Independent{
			Items:   items,
			Ignores: contracts.Ignores{IgnoreTypeChecking: args.IgnoreTypeChecking},
		}.Verify(g)
		if err != nil {
			return errorResult(fmt.Sprintf("Check failed: %v", err)), nil, nil
		}

		violations := make([]string, 0, len(res.Violations))
		for _, v := range res.Violations {
			violations = append(violations, v.Describe(g.Tree()))
		}
		return jsonResult(map[string]any{
			"kept":       res.Kept(),
			"violations": violations,
		}), nil, nil
	})
}

// withItem resolves a dotted path on the current graph and renders fn's
// result as JSON.
func (s *Server) withItem(ctx context.Context, item string, fn func(*graph.Graph, tree.Handle) (any, error)) (*mcp.CallToolResult, any, error) {
	g, _, err := s.current(ctx)
	if err != nil {
		return errorResult(err.Error()), nil, nil
	}
	h, err := pyimports.LookupRef(g.Tree(), item)
	if err != nil {
		return errorResult(err.Error()), nil, nil
	}
	v, err := fn(g, h)
	if err != nil {
		return errorResult(fmt.Sprintf("Query failed: %v", err)), nil, nil
	}
	return jsonResult(v), nil, nil
}

func jsonResult(v any) *mcp.CallToolResult {
	jsonBytes, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errorResult(fmt.Sprintf("Failed to encode result: %v", err))
	}
	return textResult(string(jsonBytes))
}

package server

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	guidelinesURI = "pyimports://usage-guidelines"
	schemaPrefix  = "pyimports://schemas/"
)

const usageGuidelines = `# pyimports

pyimports answers questions about the import graph of one Python package.

- Items are modules and packages, addressed by dotted path starting with the
  root package name, e.g. ` + "`mypackage.utils.text`" + `.
- A package and its ` + "`__init__`" + ` module are separate items. Every package
  imports its own ` + "`__init__`" + `, so importing a package reaches everything
  its initializer imports.
- Imports of code outside the package are reported by ` + "`external_imports`" + `
  and never appear in downstream or upstream results.

Start with ` + "`index_status`" + `. If the package is not indexed yet, call
` + "`index`" + `. Use ` + "`find_path`" + ` to explain why one item depends on
another, and ` + "`check_independence`" + ` to verify that parts of the package
stay decoupled.
`

func (s *Server) registerResources() {
	s.mcpServer.AddResource(&mcp.Resource{
		URI:         guidelinesURI,
		Name:        "Usage Guidelines",
		Description: "System prompt and usage guidelines for the pyimports MCP server",
		MIMEType:    "text/markdown",
	}, func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		return &mcp.ReadResourceResult{
			Contents: []*mcp.ResourceContents{
				{
					URI:      guidelinesURI,
					MIMEType: "text/markdown",
					Text:     s.systemPrompt,
				},
			},
		}, nil
	})

	schemaMap := buildSchemaMap()

	s.mcpServer.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: schemaPrefix + "{tool_name}",
		Name:        "Tool Schema",
		Description: "JSON schema for the named tool's arguments",
		MIMEType:    "application/schema+json",
	}, func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		uri := req.Params.URI
		toolName := strings.TrimPrefix(uri, schemaPrefix)
		schemaJSON, ok := schemaMap[toolName]
		if !ok {
			return nil, fmt.Errorf("unknown tool schema: %q", toolName)
		}
		return &mcp.ReadResourceResult{
			Contents: []*mcp.ResourceContents{
				{
					URI:      uri,
					MIMEType: "application/schema+json",
					Text:     schemaJSON,
				},
			},
		}, nil
	})
}

// buildSchemaMap maps each tool name to the JSON schema of its arguments.
func buildSchemaMap() map[string]string {
	m := make(map[string]string)
	addSchema[IndexArgs](m, "index")
	addSchema[IndexStatusArgs](m, "index_status")
	addSchema[ItemArgs](m, "direct_imports")
	addSchema[ItemArgs](m, "imported_by")
	addSchema[ItemArgs](m, "downstream")
	addSchema[ItemArgs](m, "upstream")
	addSchema[ExternalImportsArgs](m, "external_imports")
	addSchema[FindPathArgs](m, "find_path")
	addSchema[CyclesArgs](m, "cycles")
	addSchema[CheckIndependenceArgs](m, "check_independence")
	return m
}

func addSchema[T any](m map[string]string, name string) {
	schema, err := jsonschema.For[T](nil)
	if err != nil {
		return
	}
	schemaJSON, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return
	}
	m[name] = string(schemaJSON)
}

package server

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pyimports/internal/config"
	"pyimports/internal/testpkg"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	root := testpkg.Write(t, filepath.Join(t.TempDir(), "root"), map[string]string{
		"__init__.py": "from root import a, b",
		"a.py":        "from root import b",
		"b.py":        "from root import c, d\nimport requests",
		"c.py":        "from root import d",
		"d.py":        "",
	})
	cfg := config.Default()
	cfg.Root = root
	cfg.RespectGitignore = false
	return cfg
}

func connect(t *testing.T, s *Server) *mcp.ClientSession {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	clientTransport, serverTransport := mcp.NewInMemoryTransports()

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- s.RunWithTransport(ctx, serverTransport)
	}()

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "1.0.0"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = session.Close()
		cancel()
		<-serverDone
	})
	return session
}

func callTool(t *testing.T, session *mcp.ClientSession, name string, args map[string]any) (string, bool) {
	t.Helper()
	res, err := session.CallTool(context.Background(), &mcp.CallToolParams{Name: name, Arguments: args})
	require.NoError(t, err)
	require.NotEmpty(t, res.Content)
	text, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	return text.Text, res.IsError
}

func decode[T any](t *testing.T, text string) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal([]byte(text), &v), text)
	return v
}

func TestTools(t *testing.T) {
	session := connect(t, New(testConfig(t), nil))

	tools, err := session.ListTools(context.Background(), nil)
	require.NoError(t, err)
	var toolNames []string
	for _, tool := range tools.Tools {
		toolNames = append(toolNames, tool.Name)
	}
	assert.ElementsMatch(t, []string{
		"index", "index_status", "direct_imports", "imported_by", "downstream", "upstream",
		"external_imports", "find_path", "cycles", "check_independence",
	}, toolNames)

	text, isErr := callTool(t, session, "downstream", map[string]any{"item": "root"})
	require.False(t, isErr, text)
	assert.Equal(t, []string{"root.__init__", "root.a", "root.b", "root.c", "root.d"}, decode[[]string](t, text))

	text, isErr = callTool(t, session, "direct_imports", map[string]any{"item": "root.b"})
	require.False(t, isErr, text)
	edges := decode[[]importEdge](t, text)
	require.Len(t, edges, 2)
	assert.Equal(t, "root.c", edges[0].Item)
	assert.Equal(t, 1, edges[0].Origins[0].Line)

	text, isErr = callTool(t, session, "downstream", map[string]any{"item": edges[0].URI})
	require.False(t, isErr, text)
	assert.Equal(t, []string{"root.d"}, decode[[]string](t, text))

	text, isErr = callTool(t, session, "imported_by", map[string]any{"item": "root.d"})
	require.False(t, isErr, text)
	assert.Equal(t, []string{"root.b", "root.c"}, decode[[]string](t, text))

	text, isErr = callTool(t, session, "upstream", map[string]any{"item": "root.c"})
	require.False(t, isErr, text)
	assert.Equal(t, []string{"root", "root.__init__", "root.a", "root.b"}, decode[[]string](t, text))

	text, isErr = callTool(t, session, "external_imports", map[string]any{"item": "root.a", "transitive": true})
	require.False(t, isErr, text)
	assert.Equal(t, []string{"requests"}, decode[[]string](t, text))

	text, isErr = callTool(t, session, "find_path", map[string]any{"from": "root", "to": "root.d"})
	require.False(t, isErr, text)
	assert.Equal(t, []string{"root", "root.__init__", "root.b", "root.d"}, decode[[]string](t, text))

	text, isErr = callTool(t, session, "find_path", map[string]any{"from": "root.a", "to_external": "requests"})
	require.False(t, isErr, text)
	assert.Equal(t, []string{"root.a", "root.b"}, decode[[]string](t, text))

	text, isErr = callTool(t, session, "find_path", map[string]any{"from": "root.d", "to": "root.a"})
	require.False(t, isErr, text)
	assert.Equal(t, "No path found.", text)

	text, isErr = callTool(t, session, "cycles", map[string]any{})
	require.False(t, isErr, text)
	assert.Equal(t, "No import cycles found.", text)

	text, isErr = callTool(t, session, "check_independence", map[string]any{"items": []string{"root.a", "root.c"}})
	require.False(t, isErr, text)
	report := decode[struct {
		Kept       bool     `json:"kept"`
		Violations []string `json:"violations"`
	}](t, text)
	assert.False(t, report.Kept)
	assert.Equal(t, []string{"root.a must not import root.c: root.a -> root.b -> root.c"}, report.Violations)

	text, isErr = callTool(t, session, "index_status", map[string]any{})
	require.False(t, isErr, text)
	status := decode[map[string]any](t, text)
	assert.Equal(t, string(IndexStatusReady), status["status"])
}

func TestToolErrors(t *testing.T) {
	session := connect(t, New(testConfig(t), nil))

	text, isErr := callTool(t, session, "downstream", map[string]any{"item": "root.missing"})
	assert.True(t, isErr)
	assert.Contains(t, text, "root.missing")

	_, isErr = callTool(t, session, "downstream", map[string]any{"item": "not a path"})
	assert.True(t, isErr)

	text, isErr = callTool(t, session, "find_path", map[string]any{"from": "root"})
	assert.True(t, isErr)
	assert.Contains(t, text, "to_external")
}

func TestResources(t *testing.T) {
	session := connect(t, New(testConfig(t), nil))
	ctx := context.Background()

	res, err := session.ReadResource(ctx, &mcp.ReadResourceParams{URI: guidelinesURI})
	require.NoError(t, err)
	require.Len(t, res.Contents, 1)
	assert.Contains(t, res.Contents[0].Text, "find_path")

	res, err = session.ReadResource(ctx, &mcp.ReadResourceParams{URI: schemaPrefix + "find_path"})
	require.NoError(t, err)
	require.Len(t, res.Contents, 1)
	assert.Contains(t, res.Contents[0].Text, "to_external")

	_, err = session.ReadResource(ctx, &mcp.ReadResourceParams{URI: schemaPrefix + "nope"})
	assert.Error(t, err)
}

func TestSchemaMapCoversTools(t *testing.T) {
	m := buildSchemaMap()
	for _, name := range []string{
		"index", "index_status", "direct_imports", "imported_by", "downstream", "upstream",
		"external_imports", "find_path", "cycles", "check_independence",
	} {
		assert.Contains(t, m, name)
	}
}

func TestIndex(t *testing.T) {
	s := New(testConfig(t), nil)
	status, err, _ := s.GetIndexStatus()
	assert.Equal(t, IndexStatusNotStarted, status)
	assert.NoError(t, err)

	require.NoError(t, s.Index(context.Background()))
	status, err, duration := s.GetIndexStatus()
	assert.Equal(t, IndexStatusReady, status)
	assert.NoError(t, err)
	assert.Positive(t, duration)
	require.NoError(t, s.WaitForIndex(context.Background()))

	g, _, err := s.current(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 6, g.Stats().Items)
}

func TestIndexFailure(t *testing.T) {
	cfg := config.Default()
	cfg.Root = filepath.Join(t.TempDir(), "missing")
	s := New(cfg, nil)

	require.Error(t, s.Index(context.Background()))
	status, err, _ := s.GetIndexStatus()
	assert.Equal(t, IndexStatusFailed, status)
	assert.Error(t, err)

	_, _, err = s.current(context.Background())
	assert.ErrorContains(t, err, "indexing failed")
}

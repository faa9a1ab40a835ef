package cache

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pyimports/internal/scanner"
	"pyimports/internal/testpkg"
	"pyimports/internal/tree"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "imports.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestGetPut(t *testing.T) {
	s := openStore(t)
	stmts := []scanner.Statement{
		{Kind: scanner.Absolute, Segments: []string{"os", "path"}, Line: 1},
		{Kind: scanner.Relative, Level: 2, Segments: []string{"x"}, Names: []scanner.ImportedName{{Name: "y", Alias: "z"}}, Line: 3, TypeChecking: true},
	}

	_, ok := s.Get("/a.py", "h1")
	assert.False(t, ok)

	s.Put("/a.py", "h1", stmts)
	got, ok := s.Get("/a.py", "h1")
	require.True(t, ok)
	assert.Equal(t, stmts, got)

	_, ok = s.Get("/a.py", "h2")
	assert.False(t, ok, "stale hash must miss")

	s.Put("/a.py", "h2", stmts[:1])
	got, ok = s.Get("/a.py", "h2")
	require.True(t, ok)
	assert.Equal(t, stmts[:1], got)

	n, err := s.Len()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestEmptyStatements(t *testing.T) {
	s := openStore(t)
	s.Put("/empty.py", "h", nil)

	got, ok := s.Get("/empty.py", "h")
	require.True(t, ok)
	assert.Empty(t, got)
}

func TestCompression(t *testing.T) {
	var stmts []scanner.Statement
	for i := range 200 {
		stmts = append(stmts, scanner.Statement{Kind: scanner.Absolute, Segments: []string{"package", fmt.Sprintf("mod%d", i)}, Line: i + 1})
	}

	s := openStore(t)
	s.Put("/big.py", "h", stmts)

	var compressed bool
	require.NoError(t, s.db.QueryRow(`SELECT compressed FROM statements WHERE path = ?`, "/big.py").Scan(&compressed))
	assert.True(t, compressed)

	got, ok := s.Get("/big.py", "h")
	require.True(t, ok)
	assert.Equal(t, stmts, got)
}

func TestCorruptEntry(t *testing.T) {
	s := openStore(t)
	s.Put("/a.py", "h", []scanner.Statement{{Kind: scanner.Absolute, Segments: []string{"os"}, Line: 1}})

	_, err := s.db.Exec(`UPDATE statements SET payload = ?, compressed = 1, raw_size = 64`, []byte{0xff, 0x00, 0x13})
	require.NoError(t, err)

	_, ok := s.Get("/a.py", "h")
	assert.False(t, ok)
}

func TestPersistsAcrossOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "imports.db")
	stmts := []scanner.Statement{{Kind: scanner.Absolute, Segments: []string{"json"}, Line: 4}}

	s, err := Open(path, nil)
	require.NoError(t, err)
	s.Put("/a.py", "h", stmts)
	require.NoError(t, s.Close())

	s, err = Open(path, nil)
	require.NoError(t, err)
	defer s.Close()
	got, ok := s.Get("/a.py", "h")
	require.True(t, ok)
	assert.Equal(t, stmts, got)
}

func TestScanWithStore(t *testing.T) {
	tr, err := tree.Build(testpkg.New(t, map[string]string{
		"__init__.py": "from . import a",
		"a.py":        "import os\nfrom .b import c",
		"b/c.py":      "",
	}), tree.Options{})
	require.NoError(t, err)
	s := openStore(t)

	first, err := scanner.Scan(context.Background(), tr, scanner.Options{Cache: s})
	require.NoError(t, err)
	assert.Zero(t, first.CacheHits)

	second, err := scanner.Scan(context.Background(), tr, scanner.Options{Cache: s})
	require.NoError(t, err)
	assert.Equal(t, second.Files, second.CacheHits)

	for _, h := range tr.Handles() {
		a, b := first.For(h), second.For(h)
		require.Len(t, b, len(a))
		for i := range a {
			assert.Equal(t, a[i].String(), b[i].String())
			assert.Equal(t, a[i].Line, b[i].Line)
		}
	}
}

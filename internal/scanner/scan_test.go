package scanner

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pyimports/internal/testpkg"
	"pyimports/internal/tree"
)

type memCache struct {
	mu      sync.Mutex
	entries map[string][]Statement
	puts    int
}

func (c *memCache) Get(path, hash string) ([]Statement, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.entries[path+"@"+hash]
	return s, ok
}

func (c *memCache) Put(path, hash string, stmts []Statement) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.entries == nil {
		c.entries = map[string][]Statement{}
	}
	c.entries[path+"@"+hash] = stmts
	c.puts++
}

func buildTree(t *testing.T, files map[string]string) *tree.Tree {
	t.Helper()
	tr, err := tree.Build(testpkg.New(t, files), tree.Options{})
	require.NoError(t, err)
	return tr
}

func TestScan(t *testing.T) {
	tr := buildTree(t, map[string]string{
		"__init__.py": "from testpackage import a",
		"a.py":        "import os\nfrom . import b",
		"b.py":        "def broken(:\n",
		"ns/c.py":     "import a",
	})

	res, err := Scan(context.Background(), tr, Options{Workers: 2})
	require.NoError(t, err)

	assert.Equal(t, tr.Len(), len(res.Statements))
	assert.Equal(t, 4, res.Files)

	a, _ := tr.Lookup("testpackage.a")
	require.Len(t, res.For(a), 2)
	assert.Equal(t, "os", res.For(a)[0].Segments[0])
	assert.Equal(t, 2, res.For(a)[1].Line)

	assert.Nil(t, res.For(tr.Root()))

	require.Len(t, res.Errors, 1)
	var pe *ParseError
	require.ErrorAs(t, res.Errors[0], &pe)
	assert.Equal(t, filepath.Join(tr.Dir(), "b.py"), pe.File)

	b, _ := tr.Lookup("testpackage.b")
	assert.Empty(t, res.For(b))
}

func TestScanDeterministic(t *testing.T) {
	files := map[string]string{"__init__.py": ""}
	for _, name := range []string{"m1", "m2", "m3", "m4", "m5", "m6", "m7", "m8"} {
		files[name+".py"] = "import os\nfrom . import m1\n"
	}
	tr := buildTree(t, files)

	first, err := Scan(context.Background(), tr, Options{Workers: 1})
	require.NoError(t, err)
	second, err := Scan(context.Background(), tr, Options{Workers: 8})
	require.NoError(t, err)

	assert.Equal(t, first.Statements, second.Statements)
}

func TestScanCache(t *testing.T) {
	tr := buildTree(t, map[string]string{
		"__init__.py": "import os",
		"a.py":        "import sys",
	})
	cache := &memCache{}

	res, err := Scan(context.Background(), tr, Options{Cache: cache})
	require.NoError(t, err)
	assert.Zero(t, res.CacheHits)
	assert.Equal(t, 2, cache.puts)

	res, err = Scan(context.Background(), tr, Options{Cache: cache})
	require.NoError(t, err)
	assert.Equal(t, 2, res.CacheHits)

	a, _ := tr.Lookup("testpackage.a")
	require.NoError(t, os.WriteFile(tr.MustItem(a).File, []byte("import json"), 0o644))

	res, err = Scan(context.Background(), tr, Options{Cache: cache})
	require.NoError(t, err)
	assert.Equal(t, 1, res.CacheHits)
	assert.Equal(t, []string{"json"}, res.For(a)[0].Segments)
}

func TestScanCacheVersion(t *testing.T) {
	tr := buildTree(t, map[string]string{
		"__init__.py": "import os",
		"a.py":        "import json",
	})
	cache := &memCache{}
	stub := func() (Extractor, error) { return fixedExtractor{}, nil }

	res, err := Scan(context.Background(), tr, Options{Extractors: stub, CacheVersion: "fixed/1", Cache: cache})
	require.NoError(t, err)
	assert.Zero(t, res.CacheHits)

	res, err = Scan(context.Background(), tr, Options{Cache: cache})
	require.NoError(t, err)
	assert.Zero(t, res.CacheHits, "statements of another extractor must not be reused")

	a, _ := tr.Lookup("testpackage.a")
	require.Len(t, res.For(a), 1)
	assert.Equal(t, []string{"json"}, res.For(a)[0].Segments)

	res, err = Scan(context.Background(), tr, Options{Extractors: stub, CacheVersion: "fixed/1", Cache: cache})
	require.NoError(t, err)
	assert.Equal(t, 2, res.CacheHits)
	assert.Equal(t, []string{"sys"}, res.For(a)[0].Segments)
}

type fixedExtractor struct{}

func (fixedExtractor) Extract([]byte) ([]Statement, error) {
	return []Statement{{Kind: Absolute, Segments: []string{"sys"}, Line: 1}}, nil
}

func (fixedExtractor) Close() {}

func TestScanUnreadableFile(t *testing.T) {
	tr := buildTree(t, map[string]string{
		"__init__.py": "",
		"a.py":        "import os",
	})
	a, _ := tr.Lookup("testpackage.a")
	require.NoError(t, os.Remove(tr.MustItem(a).File))

	res, err := Scan(context.Background(), tr, Options{})
	require.NoError(t, err)

	require.Len(t, res.Errors, 1)
	var fsErr *tree.FileSystemError
	assert.ErrorAs(t, res.Errors[0], &fsErr)
}

func TestScanExtractorFailure(t *testing.T) {
	tr := buildTree(t, map[string]string{"__init__.py": ""})
	boom := errors.New("boom")

	_, err := Scan(context.Background(), tr, Options{
		Extractors: func() (Extractor, error) { return nil, boom },
	})
	assert.ErrorIs(t, err, boom)
}

func TestScanCancelled(t *testing.T) {
	files := map[string]string{"__init__.py": ""}
	for _, name := range []string{"a", "b", "c"} {
		files[name+".py"] = ""
	}
	tr := buildTree(t, files)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Scan(ctx, tr, Options{Workers: 1})
	assert.ErrorIs(t, err, context.Canceled)
}

// Package testpkg writes throwaway Python packages to disk for tests.
package testpkg

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// DefaultName is the root package name used by New.
const DefaultName = "testpackage"

// New creates a package named DefaultName inside a temporary directory and
// returns its root directory. See Write for the files format.
func New(t testing.TB, files map[string]string) string {
	t.Helper()
	return Write(t, filepath.Join(t.TempDir(), DefaultName), files)
}

// Write materialises files below root. Keys are slash-separated paths relative
// to root; a key ending in "/" creates an empty directory. Values are
// dedented so fixtures can be written as indented raw strings.
func Write(t testing.TB, root string, files map[string]string) string {
	t.Helper()

	if err := os.MkdirAll(root, 0o755); err != nil {
		t.Fatalf("failed to create %s: %v", root, err)
	}
	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		if strings.HasSuffix(name, "/") {
			if err := os.MkdirAll(path, 0o755); err != nil {
				t.Fatalf("failed to create %s: %v", path, err)
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("failed to create %s: %v", filepath.Dir(path), err)
		}
		if err := os.WriteFile(path, []byte(Dedent(content)), 0o644); err != nil {
			t.Fatalf("failed to write %s: %v", path, err)
		}
	}
	return root
}

// Dedent removes the longest common leading whitespace of non-blank lines and
// a single leading newline.
func Dedent(s string) string {
	s = strings.TrimPrefix(s, "\n")
	lines := strings.Split(s, "\n")

	prefix := ""
	first := true
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		indent := line[:len(line)-len(strings.TrimLeft(line, " \t"))]
		if first {
			prefix = indent
			first = false
			continue
		}
		for !strings.HasPrefix(indent, prefix) {
			prefix = prefix[:len(prefix)-1]
		}
	}

	for i, line := range lines {
		lines[i] = strings.TrimPrefix(line, prefix)
	}
	return strings.Join(lines, "\n")
}

package util

import (
	"path/filepath"
	"strings"
)

// PathToURI converts a filesystem path to a file:// URI.
func PathToURI(path string) string {
	if path == "" {
		return ""
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "file://" + filepath.ToSlash(path)
	}
	return "file://" + filepath.ToSlash(abs)
}

// URIToPath converts a file:// URI back to a filesystem path. Other strings are
// returned unchanged.
func URIToPath(uri string) string {
	if strings.HasPrefix(uri, "file://") {
		return filepath.FromSlash(uri[7:])
	}
	return uri
}

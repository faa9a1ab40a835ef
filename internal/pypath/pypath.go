// Package pypath provides helpers for dotted Python import paths.
package pypath

import (
	"errors"
	"path/filepath"
	"regexp"
	"strings"
)

// InitModule is the name of a package's initializer module.
const InitModule = "__init__"

// ident follows the Python 3 identifier grammar: a letter or underscore, then
// letters, digits, combining marks and connector punctuation.
const ident = `[\p{L}\p{Nl}_][\p{L}\p{Nl}\p{Mn}\p{Mc}\p{Nd}\p{Pc}]*`

var (
	pathRegex  = regexp.MustCompile(`^` + ident + `(\.` + ident + `)*$`)
	identRegex = regexp.MustCompile(`^` + ident + `$`)
)

// ErrInvalidPath is returned when a string is not a valid dotted path.
var ErrInvalidPath = errors.New("invalid dotted path")

// Path is an absolute dotted path such as "pkg.sub.mod".
type Path string

// Parse validates s and returns it as a Path.
func Parse(s string) (Path, error) {
	if !pathRegex.MatchString(s) {
		return "", ErrInvalidPath
	}
	return Path(s), nil
}

// Join builds a path from segments without validating them.
func Join(segments ...string) Path {
	return Path(strings.Join(segments, "."))
}

// IsIdentifier reports whether s is a single valid path segment.
func IsIdentifier(s string) bool {
	return identRegex.MatchString(s)
}

// String implements fmt.Stringer.
func (p Path) String() string {
	return string(p)
}

// Segments splits the path on dots.
func (p Path) Segments() []string {
	if p == "" {
		return nil
	}
	return strings.Split(string(p), ".")
}

// Name returns the last segment.
func (p Path) Name() string {
	if i := strings.LastIndexByte(string(p), '.'); i >= 0 {
		return string(p[i+1:])
	}
	return string(p)
}

// Parent returns the path without its last segment. The second result is false
// for single-segment paths.
func (p Path) Parent() (Path, bool) {
	i := strings.LastIndexByte(string(p), '.')
	if i < 0 {
		return "", false
	}
	return p[:i], true
}

// Child appends a segment.
func (p Path) Child(name string) Path {
	if p == "" {
		return Path(name)
	}
	return p + "." + Path(name)
}

// IsEqualOrDescendant reports whether p equals other or lives below it,
// segment-wise ("a.bc" is not below "a.b").
func (p Path) IsEqualOrDescendant(other Path) bool {
	if p == other {
		return true
	}
	return strings.HasPrefix(string(p), string(other)+".")
}

// FromFile derives the dotted path of a file or directory below root. The root
// directory itself maps to its base name.
func FromFile(root, path string) (Path, error) {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return "", err
	}
	segments := []string{filepath.Base(root)}
	if rel != "." {
		rel = strings.TrimSuffix(rel, ".py")
		segments = append(segments, strings.Split(filepath.ToSlash(rel), "/")...)
	}
	return Parse(strings.Join(segments, "."))
}

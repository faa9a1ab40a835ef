// Package scanner extracts raw import statements from Python source files.
package scanner

import (
	"strings"
)

// StatementKind tells absolute imports from relative ones.
type StatementKind uint8

const (
	Absolute StatementKind = iota
	Relative
)

func (k StatementKind) String() string {
	if k == Relative {
		return "relative"
	}
	return "absolute"
}

// Wildcard is the imported name of `from x import *`.
const Wildcard = "*"

// ImportedName is one name of a `from ... import` list.
type ImportedName struct {
	Name  string `json:"name"`
	Alias string `json:"alias,omitempty"`
}

// Statement is one syntactic import occurrence.
//
// `import a.b` gives {Absolute, 0, [a b], nil}; `from ..x import y as z`
// gives {Relative, 2, [x], [{y z}]}. An empty Names list imports the module
// itself.
type Statement struct {
	Kind     StatementKind  `json:"kind"`
	Level    int            `json:"level,omitempty"`
	Segments []string       `json:"segments,omitempty"`
	Names    []ImportedName `json:"names,omitempty"`
	Line     int            `json:"line"`
	// TypeChecking marks imports inside an `if TYPE_CHECKING:` block.
	TypeChecking bool `json:"type_checking,omitempty"`
}

// String renders the statement back in Python syntax.
func (s Statement) String() string {
	var b strings.Builder
	module := strings.Repeat(".", s.Level) + strings.Join(s.Segments, ".")
	if len(s.Names) == 0 {
		b.WriteString("import ")
		b.WriteString(module)
		return b.String()
	}

	b.WriteString("from ")
	b.WriteString(module)
	b.WriteString(" import ")
	for i, n := range s.Names {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(n.Name)
		if n.Alias != "" {
			b.WriteString(" as ")
			b.WriteString(n.Alias)
		}
	}
	return b.String()
}

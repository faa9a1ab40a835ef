package scanner

import (
	"fmt"
	"strings"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_python "github.com/tree-sitter/tree-sitter-python/bindings/go"
)

// Extractor turns the content of one source file into its import statements.
// Implementations need not be safe for concurrent use; the scan gives every
// worker its own instance.
type Extractor interface {
	Extract(content []byte) ([]Statement, error)
	Close()
}

// ExtractorFactory creates one Extractor per worker.
type ExtractorFactory func() (Extractor, error)

// PythonExtractorVersion identifies the statements produced by
// PythonExtractor in the parse cache. Bump it when the grammar or the
// extraction changes.
const PythonExtractorVersion = "tree-sitter-python/1"

// PythonExtractor extracts imports with tree-sitter.
type PythonExtractor struct {
	parser *tree_sitter.Parser
	query  *tree_sitter.Query
	cursor *tree_sitter.QueryCursor
}

var _ Extractor = (*PythonExtractor)(nil)

// NewPythonExtractor creates a parser for Python source.
func NewPythonExtractor() (*PythonExtractor, error) {
	lang := tree_sitter.NewLanguage(tree_sitter_python.Language())

	parser := tree_sitter.NewParser()
	if err := parser.SetLanguage(lang); err != nil {
		parser.Close()
		return nil, fmt.Errorf("failed to set python language: %w", err)
	}

	query, qerr := tree_sitter.NewQuery(lang, Queries["python"])
	if qerr != nil {
		parser.Close()
		return nil, fmt.Errorf("failed to compile import query: %w", qerr)
	}

	return &PythonExtractor{
		parser: parser,
		query:  query,
		cursor: tree_sitter.NewQueryCursor(),
	}, nil
}

// NewPythonExtractorFactory adapts NewPythonExtractor to ExtractorFactory.
func NewPythonExtractorFactory() ExtractorFactory {
	return func() (Extractor, error) {
		return NewPythonExtractor()
	}
}

// Close releases the parser.
func (e *PythonExtractor) Close() {
	e.cursor.Close()
	e.query.Close()
	e.parser.Close()
}

// Extract returns the import statements of content in source order. Source
// with syntax errors yields a *ParseError and no statements.
func (e *PythonExtractor) Extract(content []byte) ([]Statement, error) {
	tree := e.parser.Parse(content, nil)
	if tree == nil {
		return nil, &ParseError{Msg: "parser returned no tree"}
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		return nil, &ParseError{Line: firstErrorLine(root), Msg: "syntax error"}
	}

	var out []Statement
	matches := e.cursor.Matches(e.query, root, content)
	for match := matches.Next(); match != nil; match = matches.Next() {
		for _, capture := range match.Captures {
			node := capture.Node
			stmts := decodeStatement(&node, content)
			if len(stmts) == 0 {
				continue
			}
			typeChecking := underTypeChecking(&node, content)
			for i := range stmts {
				stmts[i].Line = int(node.StartPosition().Row) + 1
				stmts[i].TypeChecking = typeChecking
			}
			out = append(out, stmts...)
		}
	}
	return out, nil
}

func decodeStatement(node *tree_sitter.Node, src []byte) []Statement {
	switch node.Kind() {
	case kindImport:
		// import a.b, c as d
		var out []Statement
		for i := uint(0); i < node.NamedChildCount(); i++ {
			child := node.NamedChild(i)
			if name := moduleName(child, src); name != nil {
				out = append(out, Statement{Kind: Absolute, Segments: name})
			}
		}
		return out

	case kindImportFrom:
		module := node.ChildByFieldName("module_name")
		if module == nil {
			return nil
		}
		stmt := Statement{Kind: Absolute}
		if module.Kind() == kindRelativeImport {
			stmt.Kind = Relative
			for i := uint(0); i < module.NamedChildCount(); i++ {
				child := module.NamedChild(i)
				switch child.Kind() {
				case kindImportPrefix:
					stmt.Level = strings.Count(child.Utf8Text(src), ".")
				case kindDottedName:
					stmt.Segments = dottedSegments(child, src)
				}
			}
		} else {
			stmt.Segments = dottedSegments(module, src)
		}
		stmt.Names = importedNames(node, module, src)
		return []Statement{stmt}

	case kindFutureImport:
		return []Statement{{
			Kind:     Absolute,
			Segments: []string{"__future__"},
			Names:    importedNames(node, nil, src),
		}}
	}
	return nil
}

// moduleName returns the segments of an `import` target, ignoring its alias.
func moduleName(node *tree_sitter.Node, src []byte) []string {
	switch node.Kind() {
	case kindDottedName:
		return dottedSegments(node, src)
	case kindAliasedImport:
		if name := node.ChildByFieldName("name"); name != nil {
			return dottedSegments(name, src)
		}
	}
	return nil
}

func importedNames(stmt, module *tree_sitter.Node, src []byte) []ImportedName {
	var names []ImportedName
	for i := uint(0); i < stmt.NamedChildCount(); i++ {
		child := stmt.NamedChild(i)
		if module != nil && sameNode(child, module) {
			continue
		}
		switch child.Kind() {
		case kindWildcardImport:
			names = append(names, ImportedName{Name: Wildcard})
		case kindDottedName:
			names = append(names, ImportedName{Name: strings.Join(dottedSegments(child, src), ".")})
		case kindAliasedImport:
			name := child.ChildByFieldName("name")
			if name == nil {
				continue
			}
			n := ImportedName{Name: strings.Join(dottedSegments(name, src), ".")}
			if alias := child.ChildByFieldName("alias"); alias != nil {
				n.Alias = alias.Utf8Text(src)
			}
			names = append(names, n)
		}
	}
	return names
}

func dottedSegments(node *tree_sitter.Node, src []byte) []string {
	var segments []string
	for i := uint(0); i < node.NamedChildCount(); i++ {
		child := node.NamedChild(i)
		if child.Kind() == kindIdentifier {
			segments = append(segments, child.Utf8Text(src))
		}
	}
	return segments
}

// underTypeChecking reports whether node sits in the body of an
// `if TYPE_CHECKING:` or `elif TYPE_CHECKING:` branch.
func underTypeChecking(node *tree_sitter.Node, src []byte) bool {
	for p := node.Parent(); p != nil; p = p.Parent() {
		if p.Kind() != kindBlock {
			continue
		}
		owner := p.Parent()
		if owner == nil || (owner.Kind() != kindIfStatement && owner.Kind() != kindElifClause) {
			continue
		}
		consequence := owner.ChildByFieldName("consequence")
		if consequence == nil || !sameNode(consequence, p) {
			continue
		}
		if isTypeCheckingFlag(owner.ChildByFieldName("condition"), src) {
			return true
		}
	}
	return false
}

// isTypeCheckingFlag matches `TYPE_CHECKING` and `typing.TYPE_CHECKING`.
func isTypeCheckingFlag(cond *tree_sitter.Node, src []byte) bool {
	if cond == nil {
		return false
	}
	switch cond.Kind() {
	case kindIdentifier:
		return cond.Utf8Text(src) == typeCheckingFlag
	case kindAttribute:
		attr := cond.ChildByFieldName("attribute")
		return attr != nil && attr.Utf8Text(src) == typeCheckingFlag
	}
	return false
}

func sameNode(a, b *tree_sitter.Node) bool {
	return a.StartByte() == b.StartByte() && a.EndByte() == b.EndByte() && a.Kind() == b.Kind()
}

func firstErrorLine(node *tree_sitter.Node) int {
	if node.IsError() || node.IsMissing() {
		return int(node.StartPosition().Row) + 1
	}
	for i := uint(0); i < node.ChildCount(); i++ {
		if child := node.Child(i); child != nil && child.HasError() {
			return firstErrorLine(child)
		}
	}
	return int(node.StartPosition().Row) + 1
}

// Package resolver maps raw import statements onto items of a package tree
// or onto opaque external references.
package resolver

import (
	"fmt"
	"log/slog"
	"strings"

	"pyimports/internal/pypath"
	"pyimports/internal/scanner"
	"pyimports/internal/tree"
)

// UnresolvedPrefix starts the external key recorded for a relative import
// that climbs above the root package.
const UnresolvedPrefix = "<unresolved>"

// Target is either an item of the tree or an external dotted path.
type Target struct {
	Item     tree.Handle
	External string
}

// Internal targets a tree item.
func Internal(h tree.Handle) Target {
	return Target{Item: h}
}

// External targets code outside the tree.
func External(key string) Target {
	return Target{External: key}
}

// IsExternal reports whether the target lies outside the tree.
func (t Target) IsExternal() bool {
	return t.Item.IsZero()
}

// Resolved is the outcome of resolving one imported name.
type Resolved struct {
	Source tree.Handle
	Target Target
	// Deep is set when a name was imported from inside a module rather than
	// naming a module or package itself.
	Deep         bool
	Line         int
	TypeChecking bool
}

// Options filters what resolution emits.
type Options struct {
	ExcludeTypeChecking bool
	ExcludeExternal     bool
	Logger              *slog.Logger
}

// Resolver resolves statements against one tree. It is safe for concurrent
// use.
type Resolver struct {
	t      *tree.Tree
	opts   Options
	logger *slog.Logger
}

// New creates a resolver for t.
func New(t *tree.Tree, opts Options) *Resolver {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{t: t, opts: opts, logger: logger}
}

// ResolveAll resolves every statement, walking items in arena order.
// statements is indexed by arena index. The returned errors are
// *ResolutionError values; they never prevent the other statements from
// resolving.
func (r *Resolver) ResolveAll(statements [][]scanner.Statement) ([]Resolved, []error) {
	var (
		out  []Resolved
		errs []error
	)
	for i, stmts := range statements {
		if i >= r.t.Len() {
			break
		}
		source := r.t.At(i)
		for _, stmt := range stmts {
			res, err := r.Resolve(source, stmt)
			if err != nil {
				r.logger.Debug("unresolved import", "error", err)
				errs = append(errs, err)
			}
			out = append(out, res...)
		}
	}
	return out, errs
}

// Resolve resolves one statement written in source. A statement with no
// names yields one result; otherwise one result per name. Statement problems
// are reported as *ResolutionError, possibly alongside results.
func (r *Resolver) Resolve(source tree.Handle, stmt scanner.Statement) ([]Resolved, error) {
	item, ok := r.t.Item(source)
	if !ok {
		return nil, fmt.Errorf("resolve: handle %s does not belong to the tree", source)
	}
	if r.opts.ExcludeTypeChecking && stmt.TypeChecking {
		return nil, nil
	}

	fail := func(kind ErrorKind, msg string) *ResolutionError {
		return &ResolutionError{
			Kind:      kind,
			Source:    item.Path,
			File:      item.File,
			Line:      stmt.Line,
			Statement: stmt.String(),
			Msg:       msg,
		}
	}

	if msg := validate(stmt); msg != "" {
		return nil, fail(InvalidStatement, msg)
	}

	base, ok := r.base(source, stmt)
	if !ok {
		var out []Resolved
		for _, key := range unresolvedKeys(stmt) {
			out = append(out, r.external(source, stmt, key)...)
		}
		return out, fail(BeyondRoot, fmt.Sprintf("level %d", stmt.Level))
	}

	matched, full := r.longestPrefix(base)

	if len(stmt.Names) == 0 {
		if !full {
			return r.external(source, stmt, string(base)), nil
		}
		return []Resolved{r.result(source, stmt, Internal(matched), false)}, nil
	}

	var out []Resolved
	for _, name := range stmt.Names {
		switch {
		case !full:
			key := string(base)
			if name.Name != scanner.Wildcard {
				key = string(base.Child(name.Name))
			}
			out = append(out, r.external(source, stmt, key)...)
		case name.Name == scanner.Wildcard:
			out = append(out, r.result(source, stmt, Internal(matched), true))
		default:
			if child, ok := r.t.Child(matched, name.Name); ok {
				out = append(out, r.result(source, stmt, Internal(child), false))
			} else {
				out = append(out, r.result(source, stmt, Internal(matched), true))
			}
		}
	}
	return out, nil
}

// base computes the absolute dotted module path a statement refers to. It
// reports false for relative imports that climb above the root.
func (r *Resolver) base(source tree.Handle, stmt scanner.Statement) (pypath.Path, bool) {
	if stmt.Kind == scanner.Absolute {
		return pypath.Join(stmt.Segments...), true
	}

	pkg, ok := r.t.CurrentPackage(source)
	if !ok {
		return "", false
	}
	for range stmt.Level - 1 {
		pkg = r.t.MustItem(pkg).Parent
		if pkg.IsZero() {
			return "", false
		}
	}

	path := r.t.MustItem(pkg).Path
	for _, seg := range stmt.Segments {
		path = path.Child(seg)
	}
	return path, true
}

// unresolvedKeys builds the external keys of a relative import that climbs
// above the root, one per imported name.
func unresolvedKeys(stmt scanner.Statement) []string {
	module := UnresolvedPrefix + strings.Repeat(".", stmt.Level) + strings.Join(stmt.Segments, ".")
	if len(stmt.Names) == 0 {
		return []string{module}
	}
	keys := make([]string, 0, len(stmt.Names))
	for _, name := range stmt.Names {
		switch {
		case name.Name == scanner.Wildcard:
			keys = append(keys, module)
		case len(stmt.Segments) == 0:
			keys = append(keys, module+name.Name)
		default:
			keys = append(keys, module+"."+name.Name)
		}
	}
	return keys
}

// longestPrefix finds the deepest tree item along path. full is set when the
// whole path names an item.
func (r *Resolver) longestPrefix(path pypath.Path) (h tree.Handle, full bool) {
	for p := path; ; {
		if h, ok := r.t.Lookup(p); ok {
			return h, p == path
		}
		parent, ok := p.Parent()
		if !ok {
			return tree.Handle{}, false
		}
		p = parent
	}
}

func (r *Resolver) external(source tree.Handle, stmt scanner.Statement, key string) []Resolved {
	if r.opts.ExcludeExternal {
		return nil
	}
	return []Resolved{r.result(source, stmt, External(key), false)}
}

func (r *Resolver) result(source tree.Handle, stmt scanner.Statement, target Target, deep bool) Resolved {
	return Resolved{
		Source:       source,
		Target:       target,
		Deep:         deep,
		Line:         stmt.Line,
		TypeChecking: stmt.TypeChecking,
	}
}

// validate returns a description of what is wrong with stmt, or "".
func validate(stmt scanner.Statement) string {
	switch stmt.Kind {
	case scanner.Absolute:
		if stmt.Level != 0 {
			return "absolute import with relative level"
		}
		if len(stmt.Segments) == 0 {
			return "absolute import without module path"
		}
	case scanner.Relative:
		if stmt.Level < 1 {
			return "relative import without level"
		}
	default:
		return fmt.Sprintf("unknown statement kind %d", stmt.Kind)
	}

	for _, seg := range stmt.Segments {
		if !pypath.IsIdentifier(seg) {
			return fmt.Sprintf("invalid module segment %q", seg)
		}
	}
	for _, name := range stmt.Names {
		if name.Name == scanner.Wildcard {
			continue
		}
		if _, err := pypath.Parse(name.Name); err != nil {
			return fmt.Sprintf("invalid imported name %q", name.Name)
		}
	}
	return ""
}

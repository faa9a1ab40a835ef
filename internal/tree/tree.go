// Package tree builds the arena of packages and modules that make up a
// Python package on disk.
package tree

import (
	"slices"

	"pyimports/internal/pypath"
)

// Kind distinguishes packages from modules.
type Kind uint8

const (
	KindPackage Kind = iota + 1
	KindModule
)

func (k Kind) String() string {
	switch k {
	case KindPackage:
		return "package"
	case KindModule:
		return "module"
	default:
		return "unknown"
	}
}

// Item is one package or module. Items are immutable once the tree is built;
// callers must not modify the Children slice.
type Item struct {
	Handle Handle
	Path   pypath.Path
	Kind   Kind
	// File is the source file of a module or the directory of a package. It is
	// empty for an implicit initializer.
	File   string
	Parent Handle

	// IsInit marks a package initializer module.
	IsInit bool
	// Implicit marks an initializer synthesised for a directory without an
	// __init__.py file.
	Implicit bool

	// Init and Children are only set for packages. Children lists the
	// initializer first, then the remaining entries in tree order.
	Init     Handle
	Children []Handle
}

// IsPackage reports whether the item is a package.
func (it Item) IsPackage() bool {
	return it.Kind == KindPackage
}

// Tree is an immutable arena of items. It is safe for concurrent reads.
type Tree struct {
	gen    uint32
	dir    string
	items  []Item
	byPath map[pypath.Path]Handle
}

// Dir returns the absolute directory of the root package.
func (t *Tree) Dir() string {
	return t.dir
}

// Root returns the handle of the root package.
func (t *Tree) Root() Handle {
	return t.items[0].Handle
}

// Len returns the number of items.
func (t *Tree) Len() int {
	return len(t.items)
}

// Contains reports whether h belongs to this tree.
func (t *Tree) Contains(h Handle) bool {
	return h.gen == t.gen && int(h.index) < len(t.items)
}

// Item returns the item for h. The second result is false for handles that do
// not belong to this tree.
func (t *Tree) Item(h Handle) (Item, bool) {
	if !t.Contains(h) {
		return Item{}, false
	}
	return t.items[h.index], true
}

// MustItem returns the item for h and panics on a foreign handle.
func (t *Tree) MustItem(h Handle) Item {
	it, ok := t.Item(h)
	if !ok {
		panic("tree: handle " + h.String() + " does not belong to this tree")
	}
	return it
}

// At returns the handle stored at arena index i.
func (t *Tree) At(i int) Handle {
	return t.items[i].Handle
}

// Lookup finds an item by dotted path.
func (t *Tree) Lookup(path pypath.Path) (Handle, bool) {
	h, ok := t.byPath[path]
	return h, ok
}

// Items returns all items in arena order.
func (t *Tree) Items() []Item {
	return append([]Item(nil), t.items...)
}

// Handles returns every handle in arena order.
func (t *Tree) Handles() []Handle {
	out := make([]Handle, len(t.items))
	for i := range t.items {
		out[i] = t.items[i].Handle
	}
	return out
}

// Modules returns the modules backed by a source file, in arena order.
func (t *Tree) Modules() []Item {
	var out []Item
	for _, it := range t.items {
		if it.Kind == KindModule && !it.Implicit {
			out = append(out, it)
		}
	}
	return out
}

// Descendants returns h and every item below it, in arena order. For a module
// this is just the module itself.
func (t *Tree) Descendants(h Handle) []Handle {
	if !t.Contains(h) {
		return nil
	}
	out := []Handle{h}
	for i := 0; i < len(out); i++ {
		out = append(out, t.items[out[i].index].Children...)
	}
	sortHandles(out)
	return out
}

// CurrentPackage returns the package an import written in h is relative to:
// the package itself for packages, the parent package for modules.
func (t *Tree) CurrentPackage(h Handle) (Handle, bool) {
	it, ok := t.Item(h)
	if !ok {
		return Handle{}, false
	}
	if it.Kind == KindPackage {
		return h, true
	}
	return it.Parent, !it.Parent.IsZero()
}

// Child returns the direct child of package h named name.
func (t *Tree) Child(h Handle, name string) (Handle, bool) {
	it, ok := t.Item(h)
	if !ok || it.Kind != KindPackage {
		return Handle{}, false
	}
	return t.Lookup(it.Path.Child(name))
}

func sortHandles(hs []Handle) {
	slices.SortFunc(hs, Compare)
}

package tree

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	ignore "github.com/sabhiram/go-gitignore"

	"pyimports/internal/pypath"
	"pyimports/util"
)

const initFile = pypath.InitModule + ".py"

// Options controls package discovery.
type Options struct {
	// Exclude holds doublestar globs matched against slash-separated paths
	// relative to the root directory.
	Exclude []string
	// RespectGitignore honours .gitignore files at the root directory and at
	// the enclosing git repository root.
	RespectGitignore bool
	Logger           *slog.Logger
}

type gitignoreMatcher struct {
	base string
	gi   *ignore.GitIgnore
}

type builder struct {
	t        *Tree
	opts     Options
	logger   *slog.Logger
	ignorers []gitignoreMatcher
}

// Build scans root and returns the tree of the package rooted there. The root
// package is named after the base name of the directory.
func Build(root string, opts Options) (*Tree, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	dir, err := filepath.Abs(root)
	if err != nil {
		return nil, &FileSystemError{Op: "resolve", Path: root, Err: err}
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, &FileSystemError{Op: "stat", Path: dir, Err: err}
	}
	if !info.IsDir() {
		return nil, &FileSystemError{Op: "stat", Path: dir, Err: errors.New("not a directory")}
	}

	rootPath, err := pypath.Parse(filepath.Base(dir))
	if err != nil {
		return nil, &FileSystemError{Op: "name", Path: dir, Err: fmt.Errorf("%q: %w", filepath.Base(dir), err)}
	}

	for _, pattern := range opts.Exclude {
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("invalid exclude pattern %q", pattern)
		}
	}

	b := &builder{
		t: &Tree{
			gen:    nextGeneration(),
			dir:    dir,
			byPath: make(map[pypath.Path]Handle),
		},
		opts:   opts,
		logger: logger,
	}
	if opts.RespectGitignore {
		b.loadGitignores(dir)
	}

	if _, err := b.addPackage(dir, rootPath, Handle{}); err != nil {
		return nil, err
	}

	logger.Debug("package tree built", "root", dir, "items", len(b.t.items))
	return b.t, nil
}

func (b *builder) loadGitignores(dir string) {
	bases := []string{dir}
	if gitRoot, ok := util.FindGitRoot(dir); ok && gitRoot != dir {
		bases = append(bases, gitRoot)
	}
	for _, base := range bases {
		path := filepath.Join(base, ".gitignore")
		if _, err := os.Stat(path); err != nil {
			continue
		}
		gi, err := ignore.CompileIgnoreFile(path)
		if err != nil {
			b.logger.Warn("failed to load gitignore", "path", path, "error", err)
			continue
		}
		b.ignorers = append(b.ignorers, gitignoreMatcher{base: base, gi: gi})
	}
}

func (b *builder) add(it Item) Handle {
	h := Handle{index: uint32(len(b.t.items)), gen: b.t.gen}
	it.Handle = h
	b.t.items = append(b.t.items, it)
	b.t.byPath[it.Path] = h
	return h
}

// addPackage appends the package at dir, its initializer and then every
// remaining entry in name order, recursing into subpackages in place.
func (b *builder) addPackage(dir string, path pypath.Path, parent Handle) (Handle, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return Handle{}, &FileSystemError{Op: "readdir", Path: dir, Err: err}
	}

	pkg := b.add(Item{Path: path, Kind: KindPackage, File: dir, Parent: parent})

	initItem := Item{
		Path:     path.Child(pypath.InitModule),
		Kind:     KindModule,
		Parent:   pkg,
		IsInit:   true,
		Implicit: true,
	}
	for _, e := range entries {
		if e.Name() == initFile && !e.IsDir() {
			initItem.File = filepath.Join(dir, initFile)
			initItem.Implicit = false
			break
		}
	}
	init := b.add(initItem)

	children := []Handle{init}
	for _, e := range entries {
		name := e.Name()
		if name == initFile || strings.HasPrefix(name, ".") {
			continue
		}
		full := filepath.Join(dir, name)

		isDir, isFile := b.entryKind(e, full)
		if b.excluded(full, isDir) {
			continue
		}

		switch {
		case isDir:
			if !pypath.IsIdentifier(name) {
				continue
			}
			child, err := b.addPackage(full, path.Child(name), pkg)
			if err != nil {
				return Handle{}, err
			}
			children = append(children, child)

		case isFile && strings.HasSuffix(name, ".py"):
			stem := strings.TrimSuffix(name, ".py")
			if !pypath.IsIdentifier(stem) {
				continue
			}
			modPath := path.Child(stem)
			if _, taken := b.t.byPath[modPath]; taken {
				b.logger.Warn("module shadowed by package of the same name", "file", full, "path", modPath)
				continue
			}
			children = append(children, b.add(Item{Path: modPath, Kind: KindModule, File: full, Parent: pkg}))
		}
	}

	b.t.items[pkg.index].Init = init
	b.t.items[pkg.index].Children = children
	return pkg, nil
}

// entryKind classifies an entry. Symlinked files are followed, symlinked
// directories are not.
func (b *builder) entryKind(e os.DirEntry, full string) (isDir, isFile bool) {
	if e.Type()&os.ModeSymlink == 0 {
		return e.IsDir(), e.Type().IsRegular()
	}
	info, err := os.Stat(full)
	if err != nil {
		b.logger.Debug("skipping broken symlink", "path", full)
		return false, false
	}
	return false, info.Mode().IsRegular()
}

func (b *builder) excluded(full string, isDir bool) bool {
	if rel, err := filepath.Rel(b.t.dir, full); err == nil {
		rel = filepath.ToSlash(rel)
		for _, pattern := range b.opts.Exclude {
			if ok, _ := doublestar.Match(pattern, rel); ok {
				return true
			}
		}
	}

	for _, m := range b.ignorers {
		rel, err := filepath.Rel(m.base, full)
		if err != nil {
			continue
		}
		rel = filepath.ToSlash(rel)
		if isDir {
			rel += "/"
		}
		if m.gi.MatchesPath(rel) {
			return true
		}
	}
	return false
}

// Package pyimports builds the import graph of a Python package and answers
// questions about it.
//
// A build discovers the package tree, extracts the import statements of every
// module in parallel, resolves them against the tree and loads the result into
// an immutable graph:
//
//	cfg := config.Default()
//	cfg.Root = "src/mypackage"
//	g, diags, err := pyimports.Build(ctx, cfg)
//
// Files that fail to parse and imports that fail to resolve do not abort the
// build; they are reported in Diagnostics.
package pyimports

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"pyimports/internal/cache"
	"pyimports/internal/config"
	"pyimports/internal/graph"
	"pyimports/internal/metrics"
	"pyimports/internal/pypath"
	"pyimports/internal/resolver"
	"pyimports/internal/scanner"
	"pyimports/internal/tree"
	"pyimports/util"
)

type (
	Handle    = tree.Handle
	Item      = tree.Item
	Tree      = tree.Tree
	Graph     = graph.Graph
	PathQuery = graph.PathQuery
	Config    = config.Config
)

// Diagnostics collects the non-fatal problems of a build.
type Diagnostics struct {
	// ParseErrors holds *scanner.ParseError and *tree.FileSystemError values.
	ParseErrors []error
	// ResolutionErrors holds *resolver.ResolutionError values.
	ResolutionErrors []error
	Files            int
	CacheHits        int
}

// Empty reports whether the build was clean.
func (d Diagnostics) Empty() bool {
	return len(d.ParseErrors) == 0 && len(d.ResolutionErrors) == 0
}

// Err joins every diagnostic into one error, or returns nil when there are
// none.
func (d Diagnostics) Err() error {
	return errors.Join(append(append([]error(nil), d.ParseErrors...), d.ResolutionErrors...)...)
}

type buildOptions struct {
	logger     *slog.Logger
	metrics    *metrics.Build
	cache      scanner.Cache
	extractors scanner.ExtractorFactory
}

// Option customises a build.
type Option func(*buildOptions)

func WithLogger(logger *slog.Logger) Option {
	return func(o *buildOptions) { o.logger = logger }
}

// WithMetrics records build metrics on m.
func WithMetrics(m *metrics.Build) Option {
	return func(o *buildOptions) { o.metrics = m }
}

// WithCache uses c for parsed statements instead of the cache configured in
// Config.Cache.
func WithCache(c scanner.Cache) Option {
	return func(o *buildOptions) { o.cache = c }
}

// WithExtractor replaces the tree-sitter extractor. The persistent cache of
// Config.Cache is not used with a custom extractor.
func WithExtractor(f scanner.ExtractorFactory) Option {
	return func(o *buildOptions) { o.extractors = f }
}

func newBuildOptions(opts []Option) *buildOptions {
	o := &buildOptions{}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return o
}

// BuildTree discovers the package rooted at root.
func BuildTree(root string, cfg config.Config, opts ...Option) (*tree.Tree, error) {
	o := newBuildOptions(opts)
	start := time.Now()

	t, err := tree.Build(root, tree.Options{
		Exclude:          cfg.Exclude,
		RespectGitignore: cfg.RespectGitignore,
		Logger:           o.logger,
	})
	if err != nil {
		return nil, err
	}
	o.metrics.ObservePhase("tree", start)
	return t, nil
}

// BuildGraph scans, resolves and loads the imports of t. The error is reserved
// for cancellation and setup failures; per-file and per-statement problems are
// returned in Diagnostics alongside a graph of everything that did resolve.
func BuildGraph(ctx context.Context, t *tree.Tree, cfg config.Config, opts ...Option) (*graph.Graph, Diagnostics, error) {
	if t == nil {
		return nil, Diagnostics{}, errors.New("pyimports: nil tree")
	}
	if err := cfg.Validate(); err != nil {
		return nil, Diagnostics{}, err
	}
	o := newBuildOptions(opts)

	c := o.cache
	if c == nil && cfg.Cache.Enabled && o.extractors != nil {
		o.logger.Debug("parse cache disabled for custom extractor")
	} else if c == nil && cfg.Cache.Enabled {
		store, err := openCache(&cfg, o.logger)
		if err != nil {
			o.logger.Warn("parse cache unavailable", "error", err)
		} else {
			defer store.Close()
			c = store
		}
	}

	start := time.Now()
	scanned, err := scanner.Scan(ctx, t, scanner.Options{
		Workers:    cfg.WorkerCount(),
		Extractors: o.extractors,
		Cache:      c,
		Logger:     o.logger,
	})
	if err != nil {
		return nil, Diagnostics{}, fmt.Errorf("failed to scan %s: %w", t.Dir(), err)
	}
	o.metrics.ObservePhase("scan", start)
	o.metrics.Scan(scanned.Files, scanned.CacheHits, len(scanned.Errors))

	start = time.Now()
	imports, resolveErrs := resolver.New(t, resolver.Options{
		ExcludeTypeChecking: cfg.ExcludeTypeChecking,
		ExcludeExternal:     cfg.ExcludeExternal,
		Logger:              o.logger,
	}).ResolveAll(scanned.Statements)
	o.metrics.ObservePhase("resolve", start)
	o.metrics.Resolve(len(resolveErrs))

	start = time.Now()
	g, err := graph.New(t, imports, graph.Options{
		QueryCacheSize: cfg.QueryCacheSize,
		Logger:         o.logger,
	})
	if err != nil {
		return nil, Diagnostics{}, err
	}
	o.metrics.ObservePhase("graph", start)

	stats := g.Stats()
	o.metrics.Graph(stats.Items, stats.Edges, stats.ExternalImports, stats.Cycles)

	diags := Diagnostics{
		ParseErrors:      scanned.Errors,
		ResolutionErrors: resolveErrs,
		Files:            scanned.Files,
		CacheHits:        scanned.CacheHits,
	}
	o.logger.Info("import graph built",
		"root", t.Dir(),
		"items", stats.Items,
		"edges", stats.Edges,
		"external_imports", stats.ExternalImports,
		"cycles", stats.Cycles,
		"parse_errors", len(diags.ParseErrors),
		"resolution_errors", len(diags.ResolutionErrors),
	)
	return g, diags, nil
}

// Build discovers the package at cfg.Root and builds its graph. The tree is
// reachable through Graph.Tree.
func Build(ctx context.Context, cfg config.Config, opts ...Option) (*graph.Graph, Diagnostics, error) {
	if err := cfg.Validate(); err != nil {
		return nil, Diagnostics{}, err
	}
	t, err := BuildTree(cfg.Root, cfg, opts...)
	if err != nil {
		return nil, Diagnostics{}, err
	}
	return BuildGraph(ctx, t, cfg, opts...)
}

// LookupRef finds an item by dotted path or by the file:// URI of its source
// file or package directory.
func LookupRef(t *tree.Tree, ref string) (tree.Handle, error) {
	var (
		p   pypath.Path
		err error
	)
	if strings.HasPrefix(ref, "file://") {
		p, err = pypath.FromFile(t.Dir(), util.URIToPath(ref))
	} else {
		p, err = pypath.Parse(ref)
	}
	if err != nil {
		return tree.Handle{}, fmt.Errorf("%q: %w", ref, err)
	}
	h, ok := t.Lookup(p)
	if !ok {
		return tree.Handle{}, fmt.Errorf("no module or package named %q", ref)
	}
	return h, nil
}

// Summary describes the diagnostics in one line.
func (d Diagnostics) Summary() string {
	return fmt.Sprintf("%d of %d files failed to parse, %d imports failed to resolve",
		len(d.ParseErrors), d.Files, len(d.ResolutionErrors))
}

func openCache(cfg *config.Config, logger *slog.Logger) (*cache.Store, error) {
	path, err := cfg.CacheDBPath()
	if err != nil {
		return nil, err
	}
	return cache.Open(path, logger)
}

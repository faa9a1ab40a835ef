package scanner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"

	"golang.org/x/sync/errgroup"

	"pyimports/internal/tree"
	"pyimports/util"
)

// Cache stores extracted statements keyed by file path and content hash.
type Cache interface {
	Get(path, hash string) ([]Statement, bool)
	Put(path, hash string, stmts []Statement)
}

// Options configures Scan.
type Options struct {
	// Workers bounds parallel extraction. Zero means runtime.NumCPU().
	Workers int
	// Extractors creates one extractor per worker. Defaults to Python.
	Extractors ExtractorFactory
	// CacheVersion names the output format of Extractors and is part of every
	// cache key, so statements written by another extractor are misses.
	// Defaults to PythonExtractorVersion when Extractors is nil.
	CacheVersion string
	Cache        Cache
	Logger       *slog.Logger
}

// Result holds the statements of every item, indexed by arena index. Packages
// and implicit initializers have nil slots.
type Result struct {
	Statements [][]Statement
	// Errors holds per-file *ParseError and *tree.FileSystemError values in
	// tree order.
	Errors    []error
	Files     int
	CacheHits int
}

// For returns the statements of h.
func (r *Result) For(h tree.Handle) []Statement {
	return r.Statements[h.Index()]
}

type slot struct {
	stmts []Statement
	hit   bool
	err   error
}

// Scan extracts the statements of every module of t in parallel. Each worker
// writes only to the slots of the items it was handed, so the result does not
// depend on scheduling. File level failures are reported in Result.Errors;
// the returned error is reserved for cancellation and extractor setup.
func Scan(ctx context.Context, t *tree.Tree, opts Options) (*Result, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	factory := opts.Extractors
	version := opts.CacheVersion
	if factory == nil {
		factory = NewPythonExtractorFactory()
		if version == "" {
			version = PythonExtractorVersion
		}
	}

	modules := t.Modules()
	slots := make([]slot, t.Len())

	numWorkers := opts.Workers
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}
	if numWorkers > len(modules) {
		numWorkers = len(modules)
	}

	jobs := make(chan tree.Item)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(jobs)
		for _, m := range modules {
			if err := gctx.Err(); err != nil {
				return err
			}
			select {
			case jobs <- m:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	for range numWorkers {
		g.Go(func() error {
			ex, err := factory()
			if err != nil {
				return fmt.Errorf("failed to create extractor: %w", err)
			}
			defer ex.Close()

			for m := range jobs {
				slots[m.Handle.Index()] = scanFile(ex, m.File, version, opts.Cache)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	res := &Result{
		Statements: make([][]Statement, t.Len()),
		Files:      len(modules),
	}
	for i, s := range slots {
		res.Statements[i] = s.stmts
		if s.hit {
			res.CacheHits++
		}
		if s.err != nil {
			logger.Warn("failed to extract imports", "error", s.err)
			res.Errors = append(res.Errors, s.err)
		}
	}

	logger.Debug("scan complete", "files", res.Files, "cache_hits", res.CacheHits, "errors", len(res.Errors))
	return res, nil
}

func scanFile(ex Extractor, path, version string, cache Cache) slot {
	content, err := os.ReadFile(path)
	if err != nil {
		return slot{err: &tree.FileSystemError{Op: "read", Path: path, Err: err}}
	}

	var hash string
	if cache != nil {
		hash = version + ":" + util.ContentHash(content)
		if stmts, ok := cache.Get(path, hash); ok {
			return slot{stmts: stmts, hit: true}
		}
	}

	stmts, err := ex.Extract(content)
	if err != nil {
		var pe *ParseError
		if errors.As(err, &pe) {
			pe.File = path
			return slot{err: pe}
		}
		return slot{err: &ParseError{File: path, Msg: err.Error()}}
	}

	if cache != nil {
		cache.Put(path, hash, stmts)
	}
	return slot{stmts: stmts}
}

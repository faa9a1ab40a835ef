// Package server exposes an import graph over the Model Context Protocol.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"pyimports"
	"pyimports/internal/config"
	"pyimports/internal/graph"
	"pyimports/internal/tree"
)

const (
	serverName    = "pyimports"
	serverVersion = "0.1.0"

	indexWaitTimeout = 30 * time.Second
)

// IndexStatus is the state of the graph build.
type IndexStatus string

const (
	IndexStatusNotStarted IndexStatus = "not_started"
	IndexStatusInProgress IndexStatus = "in_progress"
	IndexStatusReady      IndexStatus = "ready"
	IndexStatusFailed     IndexStatus = "failed"
)

// ErrIndexInProgress is returned by Index while another build runs.
var ErrIndexInProgress = errors.New("indexing already in progress")

// Server answers import graph queries for one package.
type Server struct {
	mcpServer    *mcp.Server
	cfg          config.Config
	buildOpts    []pyimports.Option
	logger       *slog.Logger
	systemPrompt string

	indexMu       sync.RWMutex
	indexStatus   IndexStatus
	indexErr      error
	indexDuration time.Duration
	indexReady    chan struct{}
	graph         *graph.Graph
	diags         pyimports.Diagnostics
}

// New creates a server for the package at cfg.Root. The graph is built by
// the index tool or by Index.
func New(cfg config.Config, logger *slog.Logger, opts ...pyimports.Option) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		mcpServer: mcp.NewServer(&mcp.Implementation{
			Name:    serverName,
			Version: serverVersion,
		}, nil),
		cfg:          cfg,
		buildOpts:    append([]pyimports.Option{pyimports.WithLogger(logger)}, opts...),
		logger:       logger,
		systemPrompt: usageGuidelines,
		indexStatus:  IndexStatusNotStarted,
		indexReady:   make(chan struct{}),
	}

	s.registerTools()
	s.registerResources()
	return s
}

// Run indexes the package in the background and serves over stdio until ctx
// is done. When watching is enabled the graph is rebuilt after source changes.
func (s *Server) Run(ctx context.Context) error {
	return s.RunWithTransport(ctx, &mcp.StdioTransport{})
}

// RunWithTransport is Run over an arbitrary transport.
func (s *Server) RunWithTransport(ctx context.Context, transport mcp.Transport) error {
	go func() {
		if err := s.Index(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("initial index failed", "error", err)
		}
	}()

	if s.cfg.Watch.Enabled {
		w, err := NewWatcher(s.cfg.Root, s.cfg.Watch.Debounce, s.logger, s.Index)
		if err != nil {
			return fmt.Errorf("failed to start watcher: %w", err)
		}
		defer w.Close()
		go w.Run(ctx)
	}

	if err := s.mcpServer.Run(ctx, transport); err != nil {
		return fmt.Errorf("mcp server: %w", err)
	}
	return nil
}

// Index builds the graph and publishes it to the query tools. The previous
// graph keeps answering queries until the new one is ready.
func (s *Server) Index(ctx context.Context) error {
	s.indexMu.Lock()
	if s.indexStatus == IndexStatusInProgress {
		s.indexMu.Unlock()
		return ErrIndexInProgress
	}
	if s.indexStatus == IndexStatusReady || s.indexStatus == IndexStatusFailed {
		s.indexReady = make(chan struct{})
	}
	s.indexStatus = IndexStatusInProgress
	s.indexErr = nil
	s.indexMu.Unlock()

	start := time.Now()
	g, diags, err := pyimports.Build(ctx, s.cfg, s.buildOpts...)

	s.indexMu.Lock()
	defer s.indexMu.Unlock()
	s.indexDuration = time.Since(start)
	if err != nil {
		s.indexStatus = IndexStatusFailed
		s.indexErr = err
	} else {
		s.indexStatus = IndexStatusReady
		s.graph = g
		s.diags = diags
	}
	close(s.indexReady)
	return err
}

// GetIndexStatus returns the build state, its error and how long the last
// build took.
func (s *Server) GetIndexStatus() (IndexStatus, error, time.Duration) {
	s.indexMu.RLock()
	defer s.indexMu.RUnlock()
	return s.indexStatus, s.indexErr, s.indexDuration
}

// WaitForIndex blocks until the running build finishes.
func (s *Server) WaitForIndex(ctx context.Context) error {
	s.indexMu.RLock()
	ready := s.indexReady
	s.indexMu.RUnlock()

	select {
	case <-ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// current returns the published graph, waiting for the first build if none
// is available yet.
func (s *Server) current(ctx context.Context) (*graph.Graph, pyimports.Diagnostics, error) {
	s.indexMu.RLock()
	g, diags := s.graph, s.diags
	s.indexMu.RUnlock()
	if g != nil {
		return g, diags, nil
	}

	waitCtx, cancel := context.WithTimeout(ctx, indexWaitTimeout)
	defer cancel()
	if err := s.WaitForIndex(waitCtx); err != nil {
		status, indexErr, _ := s.GetIndexStatus()
		if indexErr != nil {
			return nil, diags, fmt.Errorf("indexing failed: %w", indexErr)
		}
		if status == IndexStatusNotStarted {
			return nil, diags, errors.New("package not indexed, run the index tool first")
		}
		return nil, diags, fmt.Errorf("indexing wait failed: %w", err)
	}

	s.indexMu.RLock()
	defer s.indexMu.RUnlock()
	if s.graph == nil {
		return nil, s.diags, fmt.Errorf("indexing failed: %w", s.indexErr)
	}
	return s.graph, s.diags, nil
}

func lookupAll(t *tree.Tree, dotted []string) ([]tree.Handle, error) {
	out := make([]tree.Handle, 0, len(dotted))
	for _, d := range dotted {
		h, err := pyimports.LookupRef(t, d)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, nil
}

func names(t *tree.Tree, hs []tree.Handle) []string {
	out := make([]string, len(hs))
	for i, h := range hs {
		out[i] = t.MustItem(h).Path.String()
	}
	return out
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

func errorResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
		IsError: true,
	}
}

// Package main provides the pyimports command line tool.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"pyimports"
	"pyimports/internal/config"
	"pyimports/internal/graph"
	"pyimports/internal/metrics"
	"pyimports/internal/server"
)

var (
	configPath string
	rootDir    string
	debug      bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "pyimports",
		Short: "Import graph of a Python package",
		Long: `pyimports builds the import graph of a Python package and answers
questions about it: what a module imports, what depends on it, how two
modules are connected and where the import cycles are.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")
	rootCmd.PersistentFlags().StringVarP(&rootDir, "root", "r", "", "root package directory (overrides the config)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging to stderr")

	rootCmd.AddCommand(serveCmd(), pathCmd(), cyclesCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return cfg, err
	}
	if rootDir != "" {
		cfg.Root = rootDir
	}
	return cfg, nil
}

func serveCmd() *cobra.Command {
	var (
		watch       bool
		metricsAddr string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start an MCP server over stdio",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if watch {
				cfg.Watch.Enabled = true
			}
			logger := newLogger()

			var opts []pyimports.Option
			if metricsAddr != "" {
				reg := prometheus.NewRegistry()
				opts = append(opts, pyimports.WithMetrics(metrics.NewBuild(reg)))

				srv := &http.Server{
					Addr:    metricsAddr,
					Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
				}
				go func() {
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						logger.Error("metrics server failed", "error", err)
					}
				}()
				defer srv.Close()
			}

			return server.New(cfg, logger, opts...).Run(cmd.Context())
		},
	}

	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "rebuild the graph when sources change")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9090")
	return cmd
}

func pathCmd() *cobra.Command {
	var (
		exclude          []string
		asPackages       bool
		skipTypeChecking bool
	)

	cmd := &cobra.Command{
		Use:   "path FROM TO",
		Short: "Print a shortest import chain between two modules or packages",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := build(cmd.Context())
			if err != nil {
				return err
			}
			t := g.Tree()

			q := graph.PathQuery{
				FromPackage:      asPackages,
				ToPackage:        asPackages,
				SkipTypeChecking: skipTypeChecking,
			}
			if q.From, err = pyimports.LookupRef(t, args[0]); err != nil {
				return err
			}
			if q.To, err = pyimports.LookupRef(t, args[1]); err != nil {
				return err
			}
			for _, e := range exclude {
				h, err := pyimports.LookupRef(t, e)
				if err != nil {
					return err
				}
				q.Exclude = append(q.Exclude, h)
			}

			path, ok, err := g.FindPath(q)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%s does not import %s", args[0], args[1])
			}
			hops := make([]string, len(path))
			for i, h := range path {
				hops[i] = t.MustItem(h).Path.String()
			}
			fmt.Fprintln(cmd.OutOrStdout(), strings.Join(hops, " -> "))
			return nil
		},
	}

	cmd.Flags().StringSliceVarP(&exclude, "exclude", "x", nil, "items the chain must not pass through")
	cmd.Flags().BoolVarP(&asPackages, "packages", "p", false, "treat FROM and TO as whole packages")
	cmd.Flags().BoolVar(&skipTypeChecking, "skip-type-checking", false, "ignore imports made only under TYPE_CHECKING")
	return cmd
}

func cyclesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cycles",
		Short: "List import cycles",
		RunE: func(cmd *cobra.Command, _ []string) error {
			g, err := build(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, c := range g.Cycles() {
				members := make([]string, len(c))
				for i, h := range c {
					members[i] = g.Tree().MustItem(h).Path.String()
				}
				fmt.Fprintln(out, strings.Join(members, ", "))
			}
			return nil
		},
	}
}

func build(ctx context.Context) (*graph.Graph, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	g, diags, err := pyimports.Build(ctx, cfg, pyimports.WithLogger(newLogger()))
	if err != nil {
		return nil, err
	}
	if !diags.Empty() {
		fmt.Fprintf(os.Stderr, "warning: incomplete graph: %s (run with --debug for details)\n", diags.Summary())
	}
	return g, nil
}

// Package cli implements the topologyctl subcommands, adapted from the
// teacher's pkg/cli: a single "run" command that loads a YAML topology
// file, starts the Supervisor, exposes Prometheus metrics over HTTP, and
// blocks until SIGINT/SIGTERM.
package cli

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	tracing "github.com/bitwalker/libcluster/pkg/observability/tracing"
	"github.com/bitwalker/libcluster/pkg/registry"
	"github.com/bitwalker/libcluster/pkg/topology"
)

// AddAll attaches topologyctl subcommands to the provided root command.
func AddAll(root *cobra.Command) {
	root.AddCommand(NewRunCmd())
}

// NewRunCmd returns the "run" command used to start a Supervisor from a
// YAML topology file (spec.md §6).
func NewRunCmd() *cobra.Command {
	var (
		configPath  string
		self        string
		hostname    string
		metricsAddr string
		traceEnable bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a topology supervisor from a config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if configPath == "" {
				return fmt.Errorf("missing --config")
			}
			if self == "" {
				return fmt.Errorf("missing --self")
			}
			ctx, cancel := signalContext()
			defer cancel()

			if traceEnable {
				shutdown, err := tracing.Setup(true)
				if err != nil {
					log.Printf("tracing setup error: %v", err)
				} else {
					defer func() { _ = shutdown(context.Background()) }()
				}
			}

			cfg, err := topology.LoadConfig(configPath)
			if err != nil {
				return err
			}
			for name, tc := range cfg {
				tc.Self = topology.Peer(self)
				cfg[name] = tc
			}

			reg := registry.New(topology.Peer(self), hostname)
			defaultCallbacks := reg.Callbacks()

			sup, err := topology.Start(ctx, cfg, topology.Options{
				Logger:           log.Default(),
				DefaultCallbacks: &defaultCallbacks,
			})
			if err != nil {
				return err
			}
			defer sup.Stop()

			if metricsAddr != "" {
				mux := http.NewServeMux()
				mux.Handle("/metrics", promhttp.Handler())
				srv := &http.Server{Addr: metricsAddr, Handler: mux}
				go func() {
					if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
						log.Printf("metrics server error: %v", err)
					}
				}()
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
					defer cancel()
					_ = srv.Shutdown(shutdownCtx)
				}()
			}

			fmt.Println("supervisor running. Press Ctrl+C to exit.")
			<-ctx.Done()
			return nil
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to the YAML topology config (required)")
	cmd.Flags().StringVar(&self, "self", "", "this node's Peer identity, e.g. app@10.0.0.5 (required)")
	cmd.Flags().StringVar(&hostname, "hostname", "", "hostname the in-process registry answers name lookups for (defaults to os.Hostname())")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", ":9521", "address to serve Prometheus metrics on (empty disables)")
	cmd.Flags().BoolVar(&traceEnable, "trace", false, "enable OpenTelemetry stdout tracing (dev)")
	return cmd
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		<-ch
		cancel()
	}()
	return ctx, cancel
}

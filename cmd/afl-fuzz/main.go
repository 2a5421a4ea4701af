// Command afl-fuzz is the CLI entrypoint (C9): it wires cobra flags into a
// RunConfig, constructs the fuzzer engine, and drives it until end-of-tasks
// or an interrupt signal.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/coverfuzz/coverfuzz/internal/engine"
	"github.com/coverfuzz/coverfuzz/internal/fuzzlog"
	"github.com/coverfuzz/coverfuzz/internal/runconfig"
	"github.com/coverfuzz/coverfuzz/internal/stats"
)

var flags runconfig.RunConfig
var configFile string
var useQemu, useValgrind bool

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "afl-fuzz TARGET",
		Short: "Coverage-guided mutational fuzzer",
		Args:  cobra.ExactArgs(1),
		RunE:  run,
	}
	cmd.Flags().StringVar(&configFile, "config", "", "optional JSON run-configuration file")
	cmd.Flags().BoolVar(&useQemu, "qemu", false, "use the fork-server backend (QEMU-style instrumented runner)")
	cmd.Flags().BoolVar(&useValgrind, "valgrind", false, "use the trace-parse backend (Valgrind-style dynamic translation)")
	cmd.Flags().StringVarP(&flags.SeedDir, "seeds", "i", "", "seed input directory (required)")
	cmd.Flags().StringVarP(&flags.OutputDir, "output", "o", "output", "output directory for crashing inputs")
	cmd.Flags().DurationVar(&flags.Timeout, "timeout", 5*time.Second, "per-execution hang timeout, 0 disables")
	cmd.Flags().CountVarP(&flags.Verbose, "verbose", "v", "increase logging verbosity")
	cmd.Flags().DurationVar(&flags.StatusEvery, "status-every", time.Second, "terminal status refresh interval")
	cmd.Flags().StringVar(&flags.MetricsAddr, "metrics-addr", "", "optional host:port to serve Prometheus /metrics")
	return cmd
}

func run(cmd *cobra.Command, args []string) error {
	flags.Target = args[0]

	if useQemu == useValgrind {
		return fmt.Errorf("exactly one of --qemu or --valgrind must be chosen")
	}
	if useQemu {
		flags.Backend = runconfig.BackendForkserver
	} else {
		flags.Backend = runconfig.BackendTraceparse
	}

	cfg := runconfig.Default()
	if configFile != "" {
		fileCfg, err := runconfig.LoadFile(configFile)
		if err != nil {
			return err
		}
		// Flag defaults must not override values the file sets.
		if !cmd.Flags().Changed("timeout") && fileCfg.Timeout != 0 {
			flags.Timeout = 0
		}
		if !cmd.Flags().Changed("status-every") && fileCfg.StatusEvery != 0 {
			flags.StatusEvery = 0
		}
		cfg = fileCfg
	}
	cfg = cfg.Merge(flags)

	if err := cfg.Validate(); err != nil {
		return err
	}

	fuzzlog.SetVerbosity(cfg.Verbose)
	fuzzlog.EnableCaching(64)

	metrics := stats.NewSet()
	if cfg.MetricsAddr != "" {
		srv, err := metrics.ServeHTTP(cfg.MetricsAddr)
		if err != nil {
			return err
		}
		defer srv.Close()
	}

	eng, err := engine.New(cfg, metrics)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := eng.Run(ctx); err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "done: %d executions, %d paths, %d crashes\n",
		eng.Executions(), eng.Paths(), eng.Crashes())
	return nil
}

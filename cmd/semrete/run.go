package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/c360/semrete/config"
	"github.com/c360/semrete/topology"
)

// runFlags are shortcuts over the config file
type runFlags struct {
	rules           string
	input           string
	follow          bool
	output          string
	name            string
	workers         int
	maxSpoutPending int
	noRefeed        bool
}

func newRunCmd(g *globalFlags) *cobra.Command {
	f := &runFlags{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the rules over a fact stream",
		Long: `Compile the rules, submit the topology and wait until the fact source is
exhausted and every derived triple has been written.

SIGINT or SIGTERM kills the run; in-flight facts are drained for at most
topology.drain_timeout.

Examples:
  # the N-Triples file in, consequents appended to out.nt
  semrete run --rules rules.txt --input facts.nt --output out.nt

  # everything from config, with four partitions
  semrete run -c semrete.yaml --workers 4`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(g, func(cfg *config.Config) { f.apply(cmd, cfg) })
			if err != nil {
				return err
			}
			return runTopology(cmd, cfg)
		},
	}

	cmd.Flags().StringVar(&f.rules, "rules", "", "rule file (overrides config)")
	cmd.Flags().StringVar(&f.input, "input", "", "N-Triples input: file path, http(s) URL or - for stdin")
	cmd.Flags().BoolVar(&f.follow, "follow", false, "keep reading the input file as it grows")
	cmd.Flags().StringVar(&f.output, "output", "", "N-Triples output file; replaces configured outputs")
	cmd.Flags().StringVar(&f.name, "name", "", "topology name")
	cmd.Flags().IntVar(&f.workers, "workers", 0, "number of partitions")
	cmd.Flags().IntVar(&f.maxSpoutPending, "max-spout-pending", 0, "bound on unfinished fact trees, 0 for none")
	cmd.Flags().BoolVar(&f.noRefeed, "no-refeed", false, "do not feed consequents back into the network")
	cmd.Flags().Duration("drain-timeout", 0, "bound on draining after a kill")
	return cmd
}

// apply copies the flags that were set onto cfg
func (f *runFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	if f.rules != "" {
		cfg.Rules = f.rules
	}
	if f.input != "" {
		raw, _ := json.Marshal(map[string]any{"url": f.input, "follow": f.follow})
		cfg.Input = topology.ComponentSpec{Type: "ntriples", Config: raw}
	}
	if f.output != "" {
		raw, _ := json.Marshal(map[string]any{"path": f.output})
		cfg.Outputs = []topology.ComponentSpec{{Type: "file", Config: raw}}
	}
	if f.name != "" {
		cfg.Topology.Name = f.name
	}
	if f.workers > 0 {
		cfg.Topology.Workers = f.workers
	}
	if cmd.Flags().Changed("max-spout-pending") {
		cfg.Topology.MaxSpoutPending = f.maxSpoutPending
	}
	if f.noRefeed {
		cfg.Topology.Refeed = false
	}
	if d, ok := durationFlag(cmd, "drain-timeout"); ok {
		cfg.Topology.DrainTimeout = d
	}
}

// runTopology submits the configured topology and waits for it
func runTopology(cmd *cobra.Command, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.close(context.Background())

	if a.needsNATS() {
		if err := a.connectNATS(ctx); err != nil {
			return err
		}
	}

	topo, err := a.buildTopology(topology.NewRegistryBuilder(a.registry, a.deps(), cfg.Input, cfg.Outputs))
	if err != nil {
		return err
	}
	sum := summarize(topo)
	a.logger.Info("Topology built",
		"rules", sum.Rules, "alpha", sum.Alpha, "join", sum.Join, "terminal", sum.Terminal, "workers", sum.Workers)

	cluster := a.newCluster()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Topology.DrainTimeout+5*time.Second)
		defer cancel()
		if err := cluster.Shutdown(shutdownCtx); err != nil {
			a.logger.Warn("Cluster shutdown failed", "error", err)
		}
	}()

	name := cfg.Topology.Name
	if err := cluster.Submit(ctx, name, topo); err != nil {
		return fmt.Errorf("submit topology: %w", err)
	}
	a.watch(cluster, name)

	runErr := cluster.Await(ctx, name)
	if ctx.Err() != nil {
		// Kill drains in-flight trees for at most DrainTimeout and forgets the run
		a.logger.Info("Received shutdown signal, killing run", "topology", name)
		runErr = cluster.Kill(name)
	} else if status, err := cluster.Health(name); err == nil {
		a.logger.Info("Run finished",
			"topology", name,
			"state", status.State.String(),
			"facts", status.FactsIngested,
			"duplicates", status.DuplicateFacts,
			"derived", status.Derived,
			"ill_formed", status.IllFormed,
			"duration", status.Finished.Sub(status.Started).String())
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s: %d facts, %d derived\n", name, status.FactsIngested, status.Derived)
	}

	if runErr != nil {
		return fmt.Errorf("run %s: %w", name, runErr)
	}
	return nil
}

package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/c360/semrete/config"
	"github.com/c360/semrete/errors"
	"github.com/c360/semrete/topology"
)

func newWorkerCmd(g *globalFlags) *cobra.Command {
	var (
		runID      string
		partitions []int
	)

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Host partitions of a run submitted by another process",
		Long: `Join a NATS run as a worker. The worker executes the nodes of the given
partitions until interrupted; the submitting process keeps the fact source, the
sink and the ack trees.

The worker must load the same rules and worker count as the submitter, and
partitions must not overlap with those hosted elsewhere.

Example:
  semrete worker -c semrete.yaml --run-id 7f0c2b1e --partitions 2,3`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(g, func(cfg *config.Config) {
				cfg.Cluster = config.ClusterNATS
				cfg.Topology.NATS.RunID = runID
				cfg.Topology.NATS.Partitions = partitions
			})
			if err != nil {
				return err
			}
			return serveWorker(cmd, cfg)
		},
	}

	cmd.Flags().StringVar(&runID, "run-id", "", "run ID printed by the submitting process")
	cmd.Flags().IntSliceVar(&partitions, "partitions", nil, "partitions to host")
	_ = cmd.MarkFlagRequired("run-id")
	_ = cmd.MarkFlagRequired("partitions")
	return cmd
}

func serveWorker(cmd *cobra.Command, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.close(context.Background())

	if err := a.connectNATS(ctx); err != nil {
		return err
	}

	// workers never open the source or the sink
	topo, err := a.buildTopology(topology.NewStaticBuilder(nil, nil))
	if err != nil {
		return err
	}

	cluster, ok := a.newCluster().(*topology.NATSCluster)
	if !ok {
		return errors.WrapFatal(errors.ErrInvalidConfig, "worker", "serveWorker", "worker requires the nats cluster")
	}
	a.logger.Info("Worker starting", "run", cfg.Topology.NATS.RunID, "partitions", cfg.Topology.NATS.Partitions)

	if err := cluster.Serve(ctx, cfg.Topology.NATS.RunID, topo); err != nil {
		return fmt.Errorf("serve run %s: %w", cfg.Topology.NATS.RunID, err)
	}
	return nil
}

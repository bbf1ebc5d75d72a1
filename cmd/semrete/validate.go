package main

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/c360/semrete/component"
	"github.com/c360/semrete/componentregistry"
	"github.com/c360/semrete/config"
	"github.com/c360/semrete/topology"
)

func newValidateCmd(g *globalFlags) *cobra.Command {
	var rules string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check the configuration and compile the rules without running",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(g, func(cfg *config.Config) {
				if rules != "" {
					cfg.Rules = rules
				}
			})
			if err != nil {
				return err
			}
			return validateAll(cmd, cfg)
		},
	}
	cmd.Flags().StringVar(&rules, "rules", "", "rule file (overrides config)")
	return cmd
}

// validateAll compiles the network and checks every component type is known
func validateAll(cmd *cobra.Command, cfg *config.Config) error {
	registry := component.NewRegistry()
	if err := componentregistry.Register(registry); err != nil {
		return fmt.Errorf("register components: %w", err)
	}

	var inputs, outputs []string
	for _, reg := range registry.ListFactories() {
		if reg.Type == component.TypeInput {
			inputs = append(inputs, reg.Name)
		} else {
			outputs = append(outputs, reg.Name)
		}
	}
	if !slices.Contains(inputs, cfg.Input.Type) {
		return fmt.Errorf("unknown input type %q (available: %v)", cfg.Input.Type, inputs)
	}
	for _, out := range cfg.Outputs {
		if !slices.Contains(outputs, out.Type) {
			return fmt.Errorf("unknown output type %q (available: %v)", out.Type, outputs)
		}
	}

	topo, err := buildTopology(cfg, topology.NewStaticBuilder(nil, nil))
	if err != nil {
		return err
	}

	sum := summarize(topo)
	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Configuration valid\n")
	_, _ = fmt.Fprintf(out, "  rules:     %d\n", sum.Rules)
	_, _ = fmt.Fprintf(out, "  nodes:     %d alpha, %d join, %d terminal\n", sum.Alpha, sum.Join, sum.Terminal)
	_, _ = fmt.Fprintf(out, "  workers:   %d\n", sum.Workers)
	_, _ = fmt.Fprintf(out, "  cluster:   %s\n", cfg.Cluster)
	for _, bp := range topo.Rules() {
		_, _ = fmt.Fprintf(out, "  rule %s: %d body, %d head\n", bp.Name, len(bp.Body), len(bp.Head))
	}
	return nil
}

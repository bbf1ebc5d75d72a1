package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/c360/semrete/config"
)

const appName = "semrete"

// globalFlags are shared by every subcommand
type globalFlags struct {
	configs   []string
	logLevel  string
	logFormat string
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}

	root := &cobra.Command{
		Use:   appName,
		Short: "Forward-chaining rule engine over streaming RDF triples",
		Long: `semrete compiles rules into a Rete network and runs it over a stream of
N-Triples facts, writing every derived triple to the configured outputs.

The network runs in-process or spread across processes over NATS.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	var defaultConfigs []string
	if env := os.Getenv("SEMRETE_CONFIG"); env != "" {
		defaultConfigs = strings.Split(env, ",")
	}
	root.PersistentFlags().StringSliceVarP(&g.configs, "config", "c", defaultConfigs,
		"config file layers, later files override earlier ones (env: SEMRETE_CONFIG)")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "",
		"log level: debug, info, warn, error (overrides config)")
	root.PersistentFlags().StringVar(&g.logFormat, "log-format", "",
		"log format: json, text (overrides config)")

	root.AddCommand(newRunCmd(g), newWorkerCmd(g), newValidateCmd(g), newStatusCmd(), newVersionCmd())
	return root
}

// loadConfig merges the config layers and the environment, then applies
// overrides before validating
func loadConfig(g *globalFlags, override func(*config.Config)) (*config.Config, error) {
	loader := config.NewLoader()
	for _, path := range g.configs {
		loader.AddLayer(path)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if g.logLevel != "" {
		cfg.Log.Level = g.logLevel
	}
	if g.logFormat != "" {
		cfg.Log.Format = g.logFormat
	}
	if override != nil {
		override(cfg)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// durationFlag returns the value when the flag was set
func durationFlag(cmd *cobra.Command, name string) (time.Duration, bool) {
	if !cmd.Flags().Changed(name) {
		return 0, false
	}
	d, err := cmd.Flags().GetDuration(name)
	return d, err == nil
}

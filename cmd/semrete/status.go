package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"github.com/prometheus/common/model"
	"github.com/spf13/cobra"

	"github.com/c360/semrete/errors"
	"github.com/c360/semrete/health"
)

// runCounters are the per-topology counter families shown by status
var runCounters = []struct {
	family string
	label  string
}{
	{"semrete_facts_ingested_total", "facts"},
	{"semrete_facts_malformed_total", "malformed"},
	{"semrete_rules_derived_total", "derived"},
	{"semrete_rules_ill_formed_total", "ill-formed"},
	{"semrete_rules_node_failures_total", "node failures"},
	{"semrete_network_dropped_total", "dropped"},
}

func newStatusCmd() *cobra.Command {
	var (
		addr        string
		metricsPath string
		timeout     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show health and counters of a running engine",
		Long: `status queries the metrics server of a running semrete process
(metrics.addr) and prints the health of every run together with its
fact and rule counters.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			base := strings.TrimSuffix(addr, "/")
			st, err := fetchStatus(ctx, base+"/status")
			if err != nil {
				return err
			}
			families, err := fetchMetrics(ctx, base+metricsPath)
			if err != nil {
				return err
			}
			printStatus(cmd.OutOrStdout(), st, families)
			if st.IsUnhealthy() {
				return fmt.Errorf("%s is %s", st.Component, st.Status)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "http://localhost:9090", "base URL of the metrics server")
	cmd.Flags().StringVar(&metricsPath, "metrics-path", "/metrics", "path of the Prometheus endpoint")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "request timeout")
	return cmd
}

func fetch(ctx context.Context, url, method string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.WrapInvalid(err, "status", method, "create http request")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, errors.WrapTransient(err, "status", method, "fetch "+url)
	}
	return resp, nil
}

// fetchStatus decodes the aggregated health document. A 503 still carries one.
func fetchStatus(ctx context.Context, url string) (health.Status, error) {
	resp, err := fetch(ctx, url, "fetchStatus")
	if err != nil {
		return health.Status{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusServiceUnavailable {
		return health.Status{}, errors.WrapTransient(
			fmt.Errorf("unexpected status code: %d", resp.StatusCode),
			"status", "fetchStatus", "check http status")
	}

	var st health.Status
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return health.Status{}, errors.WrapInvalid(err, "status", "fetchStatus", "decode health status")
	}
	return st, nil
}

// fetchMetrics parses the Prometheus text exposition
func fetchMetrics(ctx context.Context, url string) (map[string]*dto.MetricFamily, error) {
	resp, err := fetch(ctx, url, "fetchMetrics")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.WrapTransient(
			fmt.Errorf("unexpected status code: %d", resp.StatusCode),
			"status", "fetchMetrics", "check http status")
	}

	parser := expfmt.NewTextParser(model.UTF8Validation)
	families, err := parser.TextToMetricFamilies(resp.Body)
	if err != nil {
		return nil, errors.WrapTransient(err, "status", "fetchMetrics", "parse prometheus text format")
	}
	return families, nil
}

// topologyCounters sums a counter family per topology label, folding the
// per-rule series together
func topologyCounters(families map[string]*dto.MetricFamily, name string) map[string]float64 {
	family, ok := families[name]
	if !ok || family.GetType() != dto.MetricType_COUNTER {
		return nil
	}
	sums := make(map[string]float64)
	for _, m := range family.GetMetric() {
		for _, label := range m.GetLabel() {
			if label.GetName() == "topology" {
				sums[label.GetValue()] += m.GetCounter().GetValue()
				break
			}
		}
	}
	return sums
}

// ruleCounters returns derived counts per rule for one topology
func ruleCounters(families map[string]*dto.MetricFamily, topology string) map[string]float64 {
	family, ok := families["semrete_rules_derived_total"]
	if !ok {
		return nil
	}
	rules := make(map[string]float64)
	for _, m := range family.GetMetric() {
		var topo, rule string
		for _, label := range m.GetLabel() {
			switch label.GetName() {
			case "topology":
				topo = label.GetValue()
			case "rule":
				rule = label.GetValue()
			}
		}
		if topo == topology && rule != "" {
			rules[rule] += m.GetCounter().GetValue()
		}
	}
	return rules
}

func printStatus(out io.Writer, st health.Status, families map[string]*dto.MetricFamily) {
	_, _ = fmt.Fprintf(out, "%s: %s\n", st.Component, st.Status)

	counters := make([]map[string]float64, len(runCounters))
	for i, c := range runCounters {
		counters[i] = topologyCounters(families, c.family)
	}

	for _, sub := range st.SubStatuses {
		_, _ = fmt.Fprintf(out, "  %s: %s", sub.Component, sub.Status)
		if sub.Message != "" {
			_, _ = fmt.Fprintf(out, " (%s)", sub.Message)
		}
		_, _ = fmt.Fprintln(out)

		for _, part := range sub.SubStatuses {
			_, _ = fmt.Fprintf(out, "    %s: %s\n", part.Component, part.Status)
		}
		for i, c := range runCounters {
			if v, ok := counters[i][sub.Component]; ok {
				_, _ = fmt.Fprintf(out, "    %-14s %.0f\n", c.label+":", v)
			}
		}

		rules := ruleCounters(families, sub.Component)
		names := make([]string, 0, len(rules))
		for name := range rules {
			names = append(names, name)
		}
		slices.Sort(names)
		for _, name := range names {
			_, _ = fmt.Fprintf(out, "    rule %s: %.0f\n", name, rules[name])
		}
	}
}

package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/semrete/config"
	"github.com/c360/semrete/errors"
	"github.com/c360/semrete/testutil"
)

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var lines []string
	for _, line := range strings.Split(string(data), "\n") {
		if line != "" {
			lines = append(lines, line)
		}
	}
	slices.Sort(lines)
	return slices.Compact(lines)
}

func expectedLines() []string {
	var lines []string
	for _, tr := range testutil.HumanBeingExpected() {
		lines = append(lines, tr.String())
	}
	slices.Sort(lines)
	return lines
}

func TestRun_FilesEndToEnd(t *testing.T) {
	rules := testutil.WriteFile(t, "human.rules", testutil.HumanBeingRules)
	facts := testutil.WriteFile(t, "facts.nt", testutil.HumanBeingFacts)
	out := filepath.Join(t.TempDir(), "derived.nt")

	stdout, _, err := execute(t, "run",
		"--rules", rules, "--input", facts, "--output", out,
		"--workers", "3", "--name", "humans", "--log-level", "error")
	require.NoError(t, err)

	assert.Equal(t, expectedLines(), readLines(t, out))
	assert.Contains(t, stdout, "humans: 10 facts, 4 derived")
}

func TestRun_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	rules := testutil.WriteFile(t, "human.rules", testutil.HumanBeingRules)
	facts := testutil.WriteFile(t, "facts.nt", testutil.HumanBeingFacts)
	out := filepath.Join(dir, "derived.nt")

	cfg := map[string]any{
		"rules": rules,
		"topology": map[string]any{
			"workers":           2,
			"max_spout_pending": 1,
			"drain_timeout":     "5s",
		},
		"input":   map[string]any{"config": map[string]any{"url": facts}},
		"outputs": []any{map[string]any{"type": "file", "config": map[string]any{"path": out, "flush_interval": "10ms"}}},
		"log":     map[string]any{"level": "error", "format": "text"},
	}
	data, err := json.Marshal(cfg)
	require.NoError(t, err)
	cfgPath := filepath.Join(dir, "semrete.json")
	require.NoError(t, os.WriteFile(cfgPath, data, 0o600))

	_, _, err = execute(t, "run", "-c", cfgPath)
	require.NoError(t, err)
	assert.Equal(t, expectedLines(), readLines(t, out))
}

func TestRun_NoRefeed(t *testing.T) {
	rules := testutil.WriteFile(t, "human.rules", testutil.HumanBeingRules)
	facts := testutil.WriteFile(t, "facts.nt", testutil.HumanBeingFacts)
	out := filepath.Join(t.TempDir(), "derived.nt")

	_, _, err := execute(t, "run", "--rules", rules, "--input", facts, "--output", out,
		"--no-refeed", "--log-level", "error")
	require.NoError(t, err)

	lines := readLines(t, out)
	require.Len(t, lines, 2)
	for _, line := range lines {
		assert.Contains(t, line, "Biped")
	}
}

func TestRun_MalformedRules(t *testing.T) {
	rules := testutil.WriteFile(t, "bad.rules", "[bad: (?x <http://example.com/p> ?y) -> (?z <http://example.com/q> ?y)]\n")
	facts := testutil.WriteFile(t, "facts.nt", testutil.HumanBeingFacts)
	out := filepath.Join(t.TempDir(), "derived.nt")

	_, _, err := execute(t, "run", "--rules", rules, "--input", facts, "--output", out, "--log-level", "error")
	require.Error(t, err)
	assert.True(t, errors.IsFatal(err))
	assert.NoFileExists(t, out)
}

func TestRun_MissingRules(t *testing.T) {
	_, _, err := execute(t, "run", "--output", filepath.Join(t.TempDir(), "out.nt"))
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrMissingConfig)
}

func TestValidate(t *testing.T) {
	rules := testutil.WriteFile(t, "ancestors.rules", testutil.AncestorRules)
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "semrete.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`
topology:
  workers: 2
outputs:
  - type: websocket
`), 0o600))

	stdout, _, err := execute(t, "validate", "-c", cfgPath, "--rules", rules)
	require.NoError(t, err)
	assert.Contains(t, stdout, "Configuration valid")
	assert.Contains(t, stdout, "rules:     2")
	assert.Contains(t, stdout, "workers:   2")
	assert.Contains(t, stdout, "rule base:")
	assert.Contains(t, stdout, "rule step:")
}

func TestValidate_UnknownOutput(t *testing.T) {
	rules := testutil.WriteFile(t, "human.rules", testutil.HumanBeingRules)
	cfgPath := filepath.Join(t.TempDir(), "semrete.json")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`{"outputs": [{"type": "kafka"}]}`), 0o600))

	_, _, err := execute(t, "validate", "-c", cfgPath, "--rules", rules)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown output type "kafka"`)
}

func TestWorker_RequiresFlags(t *testing.T) {
	_, _, err := execute(t, "worker")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required flag")
}

func TestVersion(t *testing.T) {
	stdout, _, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, stdout, "semrete "+Version)
	assert.Contains(t, stdout, "Go Version:")
}

func TestLoadConfig_Overrides(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "semrete.json")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`{
		"rules": "rules.txt",
		"outputs": [{"type": "file"}],
		"log": {"level": "warn"}
	}`), 0o600))

	g := &globalFlags{configs: []string{cfgPath}, logFormat: "text"}
	cfg, err := loadConfig(g, func(cfg *config.Config) { cfg.Topology.Workers = 7 })
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, 7, cfg.Topology.Workers)

	g.logLevel = "loud"
	_, err = loadConfig(g, nil)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestSetupLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := setupLogger(&buf, "warn", "json")
	logger.Info("hidden")
	logger.Warn("shown", "k", "v")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "shown", entry["msg"])
	assert.Equal(t, appName, entry["service"])
	assert.Equal(t, "v", entry["k"])

	buf.Reset()
	setupLogger(&buf, "debug", "text").Debug("text line")
	assert.Contains(t, buf.String(), "msg=\"text line\"")
}

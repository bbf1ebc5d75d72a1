package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/c360/semrete/errors"
	"github.com/c360/semrete/pkg/security"
	"github.com/c360/semrete/topology"
)

// Cluster substrates
const (
	ClusterLocal = "local"
	ClusterNATS  = "nats"
)

// Config represents the complete application configuration
type Config struct {
	// Rules is the path of the rule definition file (JSON, YAML or text)
	Rules    string                   `json:"rules"`
	Cluster  string                   `json:"cluster"`
	Topology topology.Config          `json:"topology"`
	Input    topology.ComponentSpec   `json:"input"`
	Outputs  []topology.ComponentSpec `json:"outputs"`
	NATS     NATSConfig               `json:"nats"`
	Metrics  MetricsConfig            `json:"metrics"`
	Log      LogConfig                `json:"log"`
}

// NATSConfig defines NATS connection settings
type NATSConfig struct {
	URLs          []string      `json:"urls,omitempty"`
	MaxReconnects int           `json:"max_reconnects,omitempty"`
	ReconnectWait time.Duration `json:"reconnect_wait,omitempty"`
	PingInterval  time.Duration `json:"ping_interval,omitempty"`
	DrainTimeout  time.Duration `json:"drain_timeout,omitempty"`
	Username      string        `json:"username,omitempty"`
	Password      string        `json:"password,omitempty"`
	Token         string        `json:"token,omitempty"`

	TLS security.ClientTLSConfig `json:"tls"`
}

// MetricsConfig controls the Prometheus endpoint. An empty Addr disables it.
type MetricsConfig struct {
	Addr string `json:"addr,omitempty"`
	Path string `json:"path"`
}

// LogConfig selects the slog handler
type LogConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// Default returns the configuration every loader starts from
func Default() *Config {
	return &Config{
		Cluster:  ClusterLocal,
		Topology: topology.DefaultConfig(),
		Input:    topology.ComponentSpec{Type: "ntriples"},
		NATS: NATSConfig{
			URLs:          []string{"nats://localhost:4222"},
			MaxReconnects: -1,
			ReconnectWait: 2 * time.Second,
		},
		Metrics: MetricsConfig{Path: "/metrics"},
		Log:     LogConfig{Level: "info", Format: "json"},
	}
}

// Validate checks if the config is valid
func (c *Config) Validate() error {
	if c.Rules == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate", "rules path is required")
	}

	switch c.Cluster {
	case ClusterLocal:
	case ClusterNATS:
		if len(c.NATS.URLs) == 0 {
			return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate", "nats.urls required for nats cluster")
		}
	default:
		return errors.WrapInvalid(
			fmt.Errorf("%w: unknown cluster %q", errors.ErrInvalidConfig, c.Cluster),
			"Config", "Validate", "cluster validation")
	}

	if err := c.NATS.TLS.Validate(); err != nil {
		return err
	}

	if err := c.Topology.Validate(); err != nil {
		return err
	}
	if c.Topology.NATS.JetStream && c.Cluster != ClusterNATS {
		return errors.WrapInvalid(
			fmt.Errorf("%w: topology.nats.jetstream requires the nats cluster", errors.ErrInvalidConfig),
			"Config", "Validate", "cluster validation")
	}

	if c.Input.Type == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate", "input.type is required")
	}
	if len(c.Outputs) == 0 {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate", "at least one output is required")
	}
	for i, out := range c.Outputs {
		if out.Type == "" {
			return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate",
				fmt.Sprintf("outputs[%d].type is required", i))
		}
	}

	if c.Metrics.Addr != "" && !strings.HasPrefix(c.Metrics.Path, "/") {
		return errors.WrapInvalid(
			fmt.Errorf("%w: metrics.path %q must start with /", errors.ErrInvalidConfig, c.Metrics.Path),
			"Config", "Validate", "metrics validation")
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return errors.WrapInvalid(
			fmt.Errorf("%w: invalid log level %q", errors.ErrInvalidConfig, c.Log.Level),
			"Config", "Validate", "log validation")
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		return errors.WrapInvalid(
			fmt.Errorf("%w: invalid log format %q", errors.ErrInvalidConfig, c.Log.Format),
			"Config", "Validate", "log validation")
	}

	return nil
}

// String returns a JSON representation of the config with secrets redacted
func (c *Config) String() string {
	redacted := *c
	if redacted.NATS.Password != "" {
		redacted.NATS.Password = "***"
	}
	if redacted.NATS.Token != "" {
		redacted.NATS.Token = "***"
	}
	data, _ := json.MarshalIndent(&redacted, "", "  ")
	return string(data)
}

// SaveToFile saves the configuration to a JSON file
func (c *Config) SaveToFile(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return errors.Wrap(err, "Config", "SaveToFile", "marshal config")
	}
	if err := safeWriteFile(path, data); err != nil {
		return errors.Wrap(err, "Config", "SaveToFile", "write config")
	}
	return nil
}

// Loader handles configuration loading with layers and overrides
type Loader struct {
	layers     []string
	validation bool
	envPrefix  string
}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	return &Loader{
		layers:     []string{},
		validation: false,
		envPrefix:  "SEMRETE",
	}
}

// AddLayer adds a configuration file layer. Later layers override earlier ones.
func (l *Loader) AddLayer(path string) {
	l.layers = append(l.layers, path)
}

// EnableValidation enables or disables configuration validation
func (l *Loader) EnableValidation(enable bool) {
	l.validation = enable
}

// LoadFile loads configuration from a single file
func (l *Loader) LoadFile(path string) (*Config, error) {
	l.layers = []string{path}
	return l.Load()
}

// Load merges defaults, every layer and the environment, in that order
func (l *Loader) Load() (*Config, error) {
	merged, err := toMap(Default())
	if err != nil {
		return nil, errors.Wrap(err, "Loader", "Load", "encode defaults")
	}

	for _, path := range l.layers {
		raw, err := l.loadRaw(path)
		if err != nil {
			return nil, errors.WrapInvalid(err, "Loader", "Load", fmt.Sprintf("load %s", path))
		}
		merged = deepMergeMaps(merged, raw)
	}

	data, err := json.Marshal(merged)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Loader", "Load", "encode merged config")
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, errors.WrapInvalid(err, "Loader", "Load", "decode merged config")
	}

	if err := l.applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}

	if l.validation {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return &cfg, nil
}

// loadRaw reads one layer as a generic map. JSON and YAML are both accepted.
func (l *Loader) loadRaw(path string) (map[string]any, error) {
	data, err := safeReadFile(path)
	if err != nil {
		return nil, err
	}

	var raw map[string]any
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parse YAML: %w", err)
		}
	default:
		if err := validateJSONDepth(data); err != nil {
			return nil, fmt.Errorf("invalid JSON structure: %w", err)
		}
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parse JSON: %w", err)
		}
	}

	if err := parseDurations(raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// durationKeys are the fields decoded into time.Duration anywhere in the tree,
// including component configs
var durationKeys = map[string]bool{
	"timeout":        true,
	"drain_timeout":  true,
	"reconnect_wait": true,
	"flush_interval": true,
	"write_timeout":  true,
	"ping_interval":  true,
	"initial_delay":  true,
	"max_delay":      true,
}

// parseDurations converts duration strings to nanoseconds for json unmarshaling
func parseDurations(node any) error {
	switch v := node.(type) {
	case map[string]any:
		for k, child := range v {
			if s, ok := child.(string); ok && durationKeys[k] {
				d, err := time.ParseDuration(s)
				if err != nil {
					return fmt.Errorf("%s: %w", k, err)
				}
				v[k] = d.Nanoseconds()
				continue
			}
			if err := parseDurations(child); err != nil {
				return err
			}
		}
	case []any:
		for _, child := range v {
			if err := parseDurations(child); err != nil {
				return err
			}
		}
	}
	return nil
}

func toMap(cfg *Config) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// deepMergeMaps recursively merges two maps, with override taking precedence.
// Lists are replaced, not appended.
func deepMergeMaps(base, override map[string]any) map[string]any {
	result := make(map[string]any, len(base)+len(override))
	for k, v := range base {
		result[k] = v
	}

	for k, v := range override {
		if v == nil {
			continue
		}
		if baseMap, ok := base[k].(map[string]any); ok {
			if overrideMap, ok := v.(map[string]any); ok {
				result[k] = deepMergeMaps(baseMap, overrideMap)
				continue
			}
		}
		result[k] = v
	}
	return result
}

// applyEnvOverrides applies environment variable overrides
func (l *Loader) applyEnvOverrides(cfg *Config) error {
	str := func(name string, dst *string) error {
		val := os.Getenv(l.envPrefix + "_" + name)
		if err := validateEnvVar(l.envPrefix+"_"+name, val); err != nil {
			return errors.WrapInvalid(err, "Loader", "applyEnvOverrides", "environment validation")
		}
		if val != "" {
			*dst = val
		}
		return nil
	}
	num := func(name string, dst *int) error {
		var val string
		if err := str(name, &val); err != nil || val == "" {
			return err
		}
		n, err := strconv.Atoi(val)
		if err != nil {
			return errors.WrapInvalid(
				fmt.Errorf("%w: %s_%s=%q", errors.ErrInvalidConfig, l.envPrefix, name, val),
				"Loader", "applyEnvOverrides", "environment parse")
		}
		*dst = n
		return nil
	}

	var urls string
	for _, err := range []error{
		str("RULES", &cfg.Rules),
		str("CLUSTER", &cfg.Cluster),
		num("WORKERS", &cfg.Topology.Workers),
		num("PARALLELISM", &cfg.Topology.Parallelism),
		num("MAX_SPOUT_PENDING", &cfg.Topology.MaxSpoutPending),
		str("NATS_URLS", &urls),
		str("NATS_USERNAME", &cfg.NATS.Username),
		str("NATS_PASSWORD", &cfg.NATS.Password),
		str("NATS_TOKEN", &cfg.NATS.Token),
		str("METRICS_ADDR", &cfg.Metrics.Addr),
		str("LOG_LEVEL", &cfg.Log.Level),
		str("LOG_FORMAT", &cfg.Log.Format),
	} {
		if err != nil {
			return err
		}
	}
	if urls != "" {
		cfg.NATS.URLs = strings.Split(urls, ",")
	}
	return nil
}

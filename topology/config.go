package topology

import (
	"fmt"
	"strings"
	"time"

	"github.com/c360/semrete/errors"
)

// CodecJSON is the only wire codec for NATS envelopes
const CodecJSON = "json"

// Config controls how a topology runs
type Config struct {
	// Name labels logs and metrics. Cluster.Submit overrides it with the submitted name.
	Name string `json:"name,omitempty"`
	// Workers is the number of partitions nodes are spread over
	Workers int `json:"workers"`
	// Parallelism is the number of executor goroutines per process
	Parallelism int `json:"parallelism"`
	// MaxSpoutPending bounds fact trees that are not fully processed; 0 means unlimited
	MaxSpoutPending int `json:"max_spout_pending"`
	// QueueSize is the executor queue length
	QueueSize int `json:"queue_size"`
	// Refeed sends novel consequents back into the network
	Refeed bool `json:"refeed"`
	// DrainTimeout bounds how long Kill waits for in-flight trees
	DrainTimeout time.Duration `json:"drain_timeout"`
	// Debug logs every derived triple
	Debug bool `json:"debug"`
	// Codec selects the envelope encoding for NATS transport
	Codec string `json:"codec"`

	NATS NATSConfig `json:"nats"`
}

// NATSConfig controls the NATS substrate
type NATSConfig struct {
	// SubjectPrefix is the first subject token, "semrete" by default
	SubjectPrefix string `json:"subject_prefix"`
	// RunID names the run on the wire. Empty means a generated UUID; remote
	// hosts must be given the submitter's run ID.
	RunID string `json:"run_id,omitempty"`
	// Partitions hosted by this process; empty hosts all of them
	Partitions []int `json:"partitions,omitempty"`
	// JetStream routes ingested facts through a stream with explicit acks
	JetStream bool `json:"jetstream"`
	// Stream overrides the JetStream stream name
	Stream string `json:"stream,omitempty"`
}

// DefaultConfig returns the configuration used when none is given
func DefaultConfig() Config {
	return Config{
		Name:            "semrete",
		Workers:         1,
		Parallelism:     4,
		MaxSpoutPending: 0,
		QueueSize:       1024,
		Refeed:          true,
		DrainTimeout:    30 * time.Second,
		Codec:           CodecJSON,
		NATS: NATSConfig{
			SubjectPrefix: "semrete",
		},
	}
}

// Validate checks the configuration
func (c Config) Validate() error {
	var problems []string
	if c.Workers < 1 {
		problems = append(problems, "workers must be at least 1")
	}
	if c.Parallelism < 1 {
		problems = append(problems, "parallelism must be at least 1")
	}
	if c.MaxSpoutPending < 0 {
		problems = append(problems, "max_spout_pending must not be negative")
	}
	if c.QueueSize < 1 {
		problems = append(problems, "queue_size must be at least 1")
	}
	if c.DrainTimeout < 0 {
		problems = append(problems, "drain_timeout must not be negative")
	}
	if c.Codec != CodecJSON {
		problems = append(problems, fmt.Sprintf("unsupported codec %q", c.Codec))
	}
	if c.NATS.SubjectPrefix == "" || strings.ContainsAny(c.NATS.SubjectPrefix, " *>") {
		problems = append(problems, fmt.Sprintf("invalid subject prefix %q", c.NATS.SubjectPrefix))
	}
	for _, p := range c.NATS.Partitions {
		if p < 0 || p >= c.Workers {
			problems = append(problems, fmt.Sprintf("hosted partition %d outside 0..%d", p, c.Workers-1))
		}
	}
	if len(problems) > 0 {
		return errors.WrapInvalid(
			fmt.Errorf("%w: %s", errors.ErrInvalidConfig, strings.Join(problems, "; ")),
			"Config", "Validate", "topology config validation")
	}
	return nil
}

func (c Config) hosts(partition int) bool {
	if len(c.NATS.Partitions) == 0 {
		return true
	}
	for _, p := range c.NATS.Partitions {
		if p == partition {
			return true
		}
	}
	return false
}

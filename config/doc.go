// Package config loads the semrete run configuration.
//
// A Loader starts from Default, merges each file layer over it and then
// applies SEMRETE_* environment overrides:
//
//	loader := config.NewLoader()
//	loader.AddLayer("semrete.yaml")
//	loader.AddLayer("semrete.prod.json") // overrides the first layer
//	loader.EnableValidation(true)
//
//	cfg, err := loader.Load()
//
// Layers may be JSON or YAML, chosen by file extension. Maps merge key by key;
// lists such as outputs replace the earlier value. Duration fields accept Go
// duration strings ("30s") at any depth, including inside component configs.
//
// # Example
//
//	rules: rules/human.yaml
//	cluster: local
//	topology:
//	  workers: 4
//	  max_spout_pending: 256
//	  drain_timeout: 10s
//	input:
//	  type: ntriples
//	  config:
//	    url: facts.nt
//	outputs:
//	  - type: file
//	    config:
//	      path: derived.nt
//	      flush_interval: 1s
//	metrics:
//	  addr: ":9090"
//
// # Environment
//
// SEMRETE_RULES, SEMRETE_CLUSTER, SEMRETE_WORKERS, SEMRETE_PARALLELISM,
// SEMRETE_MAX_SPOUT_PENDING, SEMRETE_NATS_URLS (comma separated),
// SEMRETE_NATS_USERNAME, SEMRETE_NATS_PASSWORD, SEMRETE_NATS_TOKEN,
// SEMRETE_METRICS_ADDR, SEMRETE_LOG_LEVEL and SEMRETE_LOG_FORMAT override the
// merged file values.
package config

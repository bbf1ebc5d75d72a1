// Package metric provides Prometheus metrics for SemRete and an HTTP server
// exposing them.
//
// NewMetricsRegistry registers the rule engine metrics (facts ingested and
// malformed, tokens per node kind, join memory, open fact trees, derivations
// per rule, terminal failures, sink writes, retries and duplicates, NATS
// connection state) plus the Go runtime collectors. Components register their
// own collectors through MetricsRegistrar:
//
//	registry := metric.NewMetricsRegistry()
//	pool := worker.NewPool(8, 1024, process,
//		worker.WithMetricsRegistry[task](registry, "semrete_executor"))
//
// Every Record method is safe on a nil *Metrics, so components take the
// registry as optional and pass registry.CoreMetrics() or nil.
//
//	srv := metric.NewServer(":9090", "/metrics", registry)
//	if err := srv.Start(); err != nil { ... }
//	defer srv.Stop(ctx)
package metric
